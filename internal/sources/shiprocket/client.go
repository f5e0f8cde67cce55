// Package shiprocket fetches COD remittance records and shipment charges from
// the Shiprocket external API.
//
// Authentication is a login exchanging email and password for a bearer
// token. The token is cached for an explicit TTL and refreshed once when the
// API rejects it mid-run.
package shiprocket

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"cod-reconciliation-service/internal/models"
	"cod-reconciliation-service/internal/sources"
	"cod-reconciliation-service/pkg/errors"
	"cod-reconciliation-service/pkg/logger"
)

const (
	sourceName = "shiprocket"

	DefaultBaseURL         = "https://apiv2.shiprocket.in"
	DefaultSettlementsPath = "/v1/external/settlements/cod"
	DefaultShipmentsPath   = "/v1/external/shipments"

	loginPath       = "/v1/external/auth/login"
	defaultPageSize = 100
	maxPageSize     = 500

	// DefaultTokenTTL refreshes tokens a day before their ten day lifetime ends
	DefaultTokenTTL = 9 * 24 * time.Hour
)

// Config holds the Shiprocket connection settings
type Config struct {
	Email           string
	Password        string
	BaseURL         string
	SettlementsPath string
	ShipmentsPath   string
	PageSize        int
	TokenTTL        time.Duration
	// From and To bound the remittance dates requested. Zero values are omitted.
	From        time.Time
	To          time.Time
	HTTPTimeout time.Duration
	Retry       sources.RetryPolicy
}

// Client is a settlement and fee breakdown source
type Client struct {
	baseURL         string
	settlementsPath string
	shipmentsPath   string
	email           string
	password        string
	pageSize        int
	from            time.Time
	to              time.Time
	tokens          *tokenCache
	http            *http.Client
	retry           sources.RetryPolicy
	logger          logger.Logger
}

// NewClient validates cfg and returns a Client
func NewClient(cfg Config, log logger.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.Email) == "" {
		return nil, errors.ConfigurationError(errors.CodeMissingConfig, "shiprocket.email", "", nil)
	}
	if cfg.Password == "" {
		return nil, errors.ConfigurationError(errors.CodeMissingConfig, "shiprocket.password", "", nil)
	}
	if !cfg.From.IsZero() && !cfg.To.IsZero() && cfg.To.Before(cfg.From) {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "shiprocket.to", cfg.To.Format("2006-01-02"),
			fmt.Errorf("end date is before start date %s", cfg.From.Format("2006-01-02")))
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	settlementsPath := cfg.SettlementsPath
	if settlementsPath == "" {
		settlementsPath = DefaultSettlementsPath
	}
	shipmentsPath := cfg.ShipmentsPath
	if shipmentsPath == "" {
		shipmentsPath = DefaultShipmentsPath
	}
	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	if log == nil {
		log = logger.GetGlobalLogger()
	}

	return &Client{
		baseURL:         strings.TrimRight(baseURL, "/"),
		settlementsPath: settlementsPath,
		shipmentsPath:   shipmentsPath,
		email:           cfg.Email,
		password:        cfg.Password,
		pageSize:        pageSize,
		from:            cfg.From,
		to:              cfg.To,
		tokens:          newTokenCache(ttl),
		http:            sources.NewHTTPClient(cfg.HTTPTimeout),
		retry:           cfg.Retry,
		logger:          log.WithComponent("shiprocket"),
	}, nil
}

type loginResponse struct {
	Token string `json:"token"`
}

// token returns a valid bearer token, logging in when the cache is empty or
// expired. Concurrent callers share one login.
func (c *Client) token(ctx context.Context) (string, error) {
	c.tokens.mu.Lock()
	defer c.tokens.mu.Unlock()

	if t := c.tokens.get(); t != "" {
		return t, nil
	}

	payload, err := json.Marshal(map[string]string{"email": c.email, "password": c.password})
	if err != nil {
		return "", errors.InternalError("shiprocket_login", err)
	}

	resp, err := sources.Do(ctx, c.http, c.retry, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+loginPath, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")
		return req, nil
	})
	if err != nil {
		return "", sources.TransportError(sourceName, err)
	}
	if resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return "", errors.AuthError(errors.CodeInvalidCredentials, sourceName,
			fmt.Errorf("login rejected with status %d", resp.StatusCode)).WithContext("status", resp.StatusCode)
	}
	if !resp.IsSuccess() {
		return "", sources.StatusError(sourceName, resp)
	}

	var parsed loginResponse
	if err := json.Unmarshal(resp.Body, &parsed); err != nil {
		return "", sources.MalformedError(sourceName, err)
	}
	if parsed.Token == "" {
		return "", sources.MalformedError(sourceName, fmt.Errorf("login response carried no token"))
	}

	c.tokens.set(parsed.Token)
	c.logger.Debug("Obtained new API token")
	return parsed.Token, nil
}

// get performs an authenticated GET. A 401 on a cached token triggers one
// fresh login; a second 401 means the credentials no longer work.
func (c *Client) get(ctx context.Context, path string, params url.Values) ([]byte, error) {
	endpoint := c.baseURL + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	resp, token, err := c.authorizedGet(ctx, endpoint)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusUnauthorized {
		c.tokens.invalidate(token)
		c.logger.Warn("API token rejected, logging in again")

		resp, token, err = c.authorizedGet(ctx, endpoint)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode == http.StatusUnauthorized {
			c.tokens.invalidate(token)
			return nil, errors.AuthError(errors.CodeTokenExpired, sourceName,
				fmt.Errorf("token rejected after refresh")).WithContext("status", resp.StatusCode)
		}
	}
	if !resp.IsSuccess() {
		return nil, sources.StatusError(sourceName, resp)
	}
	return resp.Body, nil
}

func (c *Client) authorizedGet(ctx context.Context, endpoint string) (*sources.Response, string, error) {
	token, err := c.token(ctx)
	if err != nil {
		return nil, "", err
	}

	resp, err := sources.Do(ctx, c.http, c.retry, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Accept", "application/json")
		return req, nil
	})
	if err != nil {
		return nil, "", sources.TransportError(sourceName, err)
	}
	return resp, token, nil
}

// pageMeta is the pagination block of list responses
type pageMeta struct {
	Pagination struct {
		Total       int `json:"total"`
		CurrentPage int `json:"current_page"`
		TotalPages  int `json:"total_pages"`
	} `json:"pagination"`
}

type listResponse struct {
	Data json.RawMessage `json:"data"`
	Meta *pageMeta       `json:"meta"`
}

// eachPage walks a paginated list and hands each page's data to decode,
// which returns the number of items it consumed. Without pagination metadata
// the walk stops at the first short page.
func (c *Client) eachPage(ctx context.Context, operation, path string, decode func(data json.RawMessage) (int, error)) error {
	tracker := logger.NewProgressTracker(logger.ProgressConfig{
		Operation: operation,
		Logger:    c.logger,
	})

	for page := 1; ; page++ {
		params := url.Values{}
		params.Set("page", strconv.Itoa(page))
		params.Set("per_page", strconv.Itoa(c.pageSize))
		if !c.from.IsZero() {
			params.Set("from", c.from.Format("2006-01-02"))
		}
		if !c.to.IsZero() {
			params.Set("to", c.to.Format("2006-01-02"))
		}

		body, err := c.get(ctx, path, params)
		if err != nil {
			tracker.CompleteWithError(err)
			return err
		}

		var parsed listResponse
		if err := json.Unmarshal(body, &parsed); err != nil {
			err = sources.MalformedError(sourceName, err)
			tracker.CompleteWithError(err)
			return err
		}

		n := 0
		if len(parsed.Data) > 0 && string(parsed.Data) != "null" {
			n, err = decode(parsed.Data)
			if err != nil {
				err = sources.MalformedError(sourceName, err)
				tracker.CompleteWithError(err)
				return err
			}
		}
		tracker.Page(n)

		if parsed.Meta != nil && parsed.Meta.Pagination.TotalPages > 0 {
			if page >= parsed.Meta.Pagination.TotalPages {
				break
			}
			continue
		}
		if n < c.pageSize {
			break
		}
	}

	tracker.Complete()
	return nil
}

// flexString decodes identifiers the API sends as numbers or strings
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	var a models.Amount
	if err := a.UnmarshalJSON(data); err != nil {
		return err
	}
	*f = flexString(strings.TrimSpace(a.String()))
	return nil
}
