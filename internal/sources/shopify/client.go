// Package shopify fetches storefront orders from the Shopify Admin REST API.
package shopify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"cod-reconciliation-service/internal/models"
	"cod-reconciliation-service/internal/sources"
	"cod-reconciliation-service/pkg/errors"
	"cod-reconciliation-service/pkg/logger"
)

const (
	sourceName        = "shopify"
	defaultAPIVersion = "2024-04"
	defaultPageSize   = 250
	maxPageSize       = 250
	accessTokenHeader = "X-Shopify-Access-Token"
)

// Config holds the Shopify connection settings
type Config struct {
	StoreDomain string
	AccessToken string
	APIVersion  string
	PageSize    int
	// Since limits the fetch to orders created at or after it. Zero fetches all.
	Since time.Time
	// BaseURL overrides https://<StoreDomain>. Used by tests.
	BaseURL     string
	HTTPTimeout time.Duration
	Retry       sources.RetryPolicy
}

// Client is an order source backed by the Admin API
type Client struct {
	baseURL    string
	apiVersion string
	token      string
	pageSize   int
	since      time.Time
	http       *http.Client
	retry      sources.RetryPolicy
	logger     logger.Logger
}

// NewClient validates cfg and returns a Client
func NewClient(cfg Config, log logger.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.AccessToken) == "" {
		return nil, errors.ConfigurationError(errors.CodeMissingConfig, "shopify.access_token", "", nil)
	}

	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		domain := strings.TrimSpace(cfg.StoreDomain)
		if domain == "" {
			return nil, errors.ConfigurationError(errors.CodeMissingConfig, "shopify.store_domain", "", nil)
		}
		domain = strings.TrimPrefix(strings.TrimPrefix(domain, "https://"), "http://")
		baseURL = "https://" + domain
	}

	apiVersion := cfg.APIVersion
	if apiVersion == "" {
		apiVersion = defaultAPIVersion
	}

	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}

	if log == nil {
		log = logger.GetGlobalLogger()
	}

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiVersion: apiVersion,
		token:      cfg.AccessToken,
		pageSize:   pageSize,
		since:      cfg.Since,
		http:       sources.NewHTTPClient(cfg.HTTPTimeout),
		retry:      cfg.Retry,
		logger:     log.WithComponent("shopify"),
	}, nil
}

type ordersResponse struct {
	Orders []apiOrder `json:"orders"`
}

type apiOrder struct {
	ID                  json.Number   `json:"id"`
	Name                string        `json:"name"`
	CreatedAt           string        `json:"created_at"`
	TotalPrice          models.Amount `json:"total_price"`
	FinancialStatus     string        `json:"financial_status"`
	FulfillmentStatus   string        `json:"fulfillment_status"`
	Gateway             string        `json:"gateway"`
	PaymentGatewayNames []string      `json:"payment_gateway_names"`
	Customer            *struct {
		FirstName string `json:"first_name"`
		LastName  string `json:"last_name"`
	} `json:"customer"`
	BillingAddress *struct {
		Name string `json:"name"`
	} `json:"billing_address"`
}

// FetchOrders pages through every order, following the Link header until no
// next page is advertised. Orders are returned in API order.
func (c *Client) FetchOrders(ctx context.Context) ([]models.OrderRecord, error) {
	tracker := logger.NewProgressTracker(logger.ProgressConfig{
		Operation: "fetch_shopify_orders",
		Logger:    c.logger,
	})

	var orders []models.OrderRecord
	next := c.firstPageURL()

	for next != "" {
		page, link, err := c.fetchPage(ctx, next)
		if err != nil {
			tracker.CompleteWithError(err)
			return nil, err
		}

		for _, o := range page.Orders {
			orders = append(orders, o.toRecord())
		}
		tracker.Page(len(page.Orders))
		next = nextPageURL(link)
	}

	tracker.Complete()
	return orders, nil
}

func (c *Client) firstPageURL() string {
	params := url.Values{}
	params.Set("status", "any")
	params.Set("limit", fmt.Sprintf("%d", c.pageSize))
	if !c.since.IsZero() {
		params.Set("created_at_min", c.since.UTC().Format(time.RFC3339))
	}
	return fmt.Sprintf("%s/admin/api/%s/orders.json?%s", c.baseURL, c.apiVersion, params.Encode())
}

func (c *Client) fetchPage(ctx context.Context, endpoint string) (*ordersResponse, string, error) {
	resp, err := sources.Do(ctx, c.http, c.retry, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set(accessTokenHeader, c.token)
		req.Header.Set("Accept", "application/json")
		return req, nil
	})
	if err != nil {
		return nil, "", sources.TransportError(sourceName, err)
	}
	if !resp.IsSuccess() {
		return nil, "", sources.StatusError(sourceName, resp)
	}

	var parsed ordersResponse
	if err := json.Unmarshal(resp.Body, &parsed); err != nil {
		return nil, "", sources.MalformedError(sourceName, err)
	}
	return &parsed, resp.Header.Get("Link"), nil
}

func (o apiOrder) toRecord() models.OrderRecord {
	method := strings.Join(o.PaymentGatewayNames, ", ")
	if method == "" {
		method = o.Gateway
	}

	return models.OrderRecord{
		OrderID:           o.ID.String(),
		OrderNumber:       o.Name,
		OrderDate:         orderDate(o.CreatedAt),
		CustomerName:      o.customerName(),
		PaymentMethod:     method,
		OrderTotal:        o.TotalPrice,
		FinancialStatus:   o.FinancialStatus,
		FulfillmentStatus: o.FulfillmentStatus,
		PaymentType:       ClassifyGateways(o.PaymentGatewayNames, o.Gateway),
	}
}

func (o apiOrder) customerName() string {
	if o.BillingAddress != nil && strings.TrimSpace(o.BillingAddress.Name) != "" {
		return strings.TrimSpace(o.BillingAddress.Name)
	}
	if o.Customer != nil {
		return strings.TrimSpace(o.Customer.FirstName + " " + o.Customer.LastName)
	}
	return ""
}

// orderDate keeps the calendar date of an RFC 3339 timestamp
func orderDate(createdAt string) string {
	if t, err := time.Parse(time.RFC3339, createdAt); err == nil {
		return t.Format("2006-01-02")
	}
	return createdAt
}

// ClassifyGateways derives the payment type from the gateways that settled
// the order. A gateway whose name contains "cod" or "cash on delivery" makes
// the order COD. Otherwise any gateway makes it prepaid, and no gateway at
// all leaves it Unknown so the classifier falls back to the payment method.
func ClassifyGateways(names []string, gateway string) models.PaymentType {
	all := append([]string{gateway}, names...)
	seen := false
	for _, name := range all {
		n := strings.ToLower(strings.TrimSpace(name))
		if n == "" {
			continue
		}
		seen = true
		if strings.Contains(n, "cod") || strings.Contains(n, "cash on delivery") {
			return models.PaymentTypeCOD
		}
	}
	if seen {
		return models.PaymentTypePrepaid
	}
	return models.PaymentTypeUnknown
}

// nextPageURL extracts the rel="next" target of a Link header
func nextPageURL(link string) string {
	for _, part := range strings.Split(link, ",") {
		segments := strings.Split(part, ";")
		if len(segments) < 2 {
			continue
		}
		target := strings.TrimSpace(segments[0])
		if !strings.HasPrefix(target, "<") || !strings.HasSuffix(target, ">") {
			continue
		}
		for _, attr := range segments[1:] {
			if strings.ReplaceAll(strings.TrimSpace(attr), " ", "") == `rel="next"` {
				return strings.Trim(target, "<>")
			}
		}
	}
	return ""
}
