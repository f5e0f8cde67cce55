package shopify

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cod-reconciliation-service/internal/models"
	"cod-reconciliation-service/internal/sources"
	"cod-reconciliation-service/pkg/errors"
	"cod-reconciliation-service/pkg/logger"
)

func newTestClient(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()
	c, err := NewClient(Config{
		AccessToken: "shpat_test",
		BaseURL:     srv.URL,
		PageSize:    2,
		Retry: sources.RetryPolicy{
			MaxAttempts:    2,
			InitialBackoff: time.Millisecond,
			MaximumBackoff: time.Millisecond,
		},
	}, logger.Discard())
	require.NoError(t, err)
	return c
}

func TestFetchOrders_FollowsLinkHeader(t *testing.T) {
	var srvURL string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "shpat_test", r.Header.Get(accessTokenHeader))
		assert.Equal(t, "/admin/api/2024-04/orders.json", r.URL.Path)

		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Query().Get("page_info") {
		case "":
			assert.Equal(t, "any", r.URL.Query().Get("status"))
			assert.Equal(t, "2", r.URL.Query().Get("limit"))
			w.Header().Set("Link", fmt.Sprintf(`<%s/admin/api/2024-04/orders.json?limit=2&page_info=p2>; rel="next"`, srvURL))
			fmt.Fprint(w, `{"orders":[
				{"id":1001,"name":"#3272","created_at":"2024-05-01T10:00:00+05:30","total_price":"1190.00",
				 "financial_status":"pending","fulfillment_status":"fulfilled","gateway":"Cash on Delivery (COD)",
				 "payment_gateway_names":["Cash on Delivery (COD)"],"billing_address":{"name":"Asha Rao"}},
				{"id":1002,"name":"#3273","created_at":"2024-05-02T10:00:00Z","total_price":"1450.50",
				 "financial_status":"paid","fulfillment_status":null,"payment_gateway_names":["razorpay"],
				 "customer":{"first_name":"Vikram","last_name":"Shah"}}
			]}`)
		case "p2":
			w.Header().Set("Link", fmt.Sprintf(`<%s/admin/api/2024-04/orders.json?limit=2&page_info=p1>; rel="previous"`, srvURL))
			fmt.Fprint(w, `{"orders":[{"id":1003,"name":"#3274","created_at":"bad-date","total_price":"99","payment_gateway_names":[]}]}`)
		default:
			t.Errorf("unexpected page_info %q", r.URL.Query().Get("page_info"))
		}
	}))
	defer srv.Close()
	srvURL = srv.URL

	orders, err := newTestClient(t, srv).FetchOrders(context.Background())
	require.NoError(t, err)
	require.Len(t, orders, 3)

	assert.Equal(t, models.OrderRecord{
		OrderID:           "1001",
		OrderNumber:       "#3272",
		OrderDate:         "2024-05-01",
		CustomerName:      "Asha Rao",
		PaymentMethod:     "Cash on Delivery (COD)",
		OrderTotal:        "1190.00",
		FinancialStatus:   "pending",
		FulfillmentStatus: "fulfilled",
		PaymentType:       models.PaymentTypeCOD,
	}, orders[0])

	assert.Equal(t, "Vikram Shah", orders[1].CustomerName)
	assert.Equal(t, models.PaymentTypePrepaid, orders[1].PaymentType)
	assert.Empty(t, orders[1].FulfillmentStatus)

	assert.Equal(t, "bad-date", orders[2].OrderDate)
	assert.Equal(t, models.PaymentTypeUnknown, orders[2].PaymentType)
}

func TestFetchOrders_SinceFilter(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "2024-05-01T00:00:00Z", r.URL.Query().Get("created_at_min"))
		fmt.Fprint(w, `{"orders":[]}`)
	}))
	defer srv.Close()

	c, err := NewClient(Config{
		AccessToken: "t",
		BaseURL:     srv.URL,
		Since:       time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
	}, logger.Discard())
	require.NoError(t, err)

	orders, err := c.FetchOrders(context.Background())
	require.NoError(t, err)
	assert.Empty(t, orders)
}

func TestFetchOrders_Errors(t *testing.T) {
	tests := []struct {
		name         string
		status       int
		body         string
		wantCategory errors.ErrorCategory
		wantCode     errors.ErrorCode
		wantCalls    int32
	}{
		{"Unauthorized", http.StatusUnauthorized, `{"errors":"Invalid API key"}`, errors.CategoryAuth, errors.CodeInvalidCredentials, 1},
		{"Forbidden", http.StatusForbidden, `{"errors":"forbidden"}`, errors.CategoryAuth, errors.CodeInvalidCredentials, 1},
		{"Server error is retried", http.StatusBadGateway, `bad gateway`, errors.CategorySource, errors.CodeSourceUnavailable, 2},
		{"Throttled is retried", http.StatusTooManyRequests, `slow down`, errors.CategorySource, errors.CodeSourceUnavailable, 2},
		{"Malformed body", http.StatusOK, `{"orders":`, errors.CategorySource, errors.CodeMalformedResponse, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				atomic.AddInt32(&calls, 1)
				w.WriteHeader(tt.status)
				fmt.Fprint(w, tt.body)
			}))
			defer srv.Close()

			_, err := newTestClient(t, srv).FetchOrders(context.Background())
			require.Error(t, err)

			rerr, ok := errors.AsReconcilerError(err)
			require.True(t, ok, "expected ReconcilerError, got %T", err)
			assert.Equal(t, tt.wantCategory, rerr.Category)
			assert.Equal(t, tt.wantCode, rerr.Code)
			assert.Equal(t, tt.wantCalls, atomic.LoadInt32(&calls))
		})
	}
}

func TestFetchOrders_CancelledContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"orders":[]}`)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestClient(t, srv).FetchOrders(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewClient_Validation(t *testing.T) {
	_, err := NewClient(Config{StoreDomain: "shop.myshopify.com"}, logger.Discard())
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))

	_, err = NewClient(Config{AccessToken: "t"}, logger.Discard())
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))

	c, err := NewClient(Config{AccessToken: "t", StoreDomain: "https://shop.myshopify.com/", PageSize: 1000}, logger.Discard())
	require.NoError(t, err)
	assert.Equal(t, "https://shop.myshopify.com", c.baseURL)
	assert.Equal(t, maxPageSize, c.pageSize)
}

func TestClassifyGateways(t *testing.T) {
	tests := []struct {
		names    []string
		gateway  string
		expected models.PaymentType
	}{
		{[]string{"Cash on Delivery (COD)"}, "", models.PaymentTypeCOD},
		{nil, "cod", models.PaymentTypeCOD},
		{[]string{"gift_card", "Cash on Delivery (COD)"}, "", models.PaymentTypeCOD},
		{[]string{"Shiprocket COD"}, "Shiprocket COD", models.PaymentTypeCOD},
		{[]string{"gokwik_cod"}, "gokwik_cod", models.PaymentTypeCOD},
		{[]string{"COD - Razorpay"}, "", models.PaymentTypeCOD},
		{[]string{"Cash on Delivery"}, "", models.PaymentTypeCOD},
		{[]string{"razorpay"}, "razorpay", models.PaymentTypePrepaid},
		{nil, "", models.PaymentTypeUnknown},
		{[]string{" "}, "", models.PaymentTypeUnknown},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%v/%s", tt.names, tt.gateway), func(t *testing.T) {
			assert.Equal(t, tt.expected, ClassifyGateways(tt.names, tt.gateway))
		})
	}
}

func TestToRecord_CODGatewaysStayCOD(t *testing.T) {
	for _, gw := range []string{"Shiprocket COD", "gokwik_cod", "COD - Razorpay", "Cash on Delivery (COD)"} {
		t.Run(gw, func(t *testing.T) {
			rec := apiOrder{ID: "1", Name: "#1001", Gateway: gw, PaymentGatewayNames: []string{gw}}.toRecord()
			assert.Equal(t, gw, rec.PaymentMethod)
			assert.Equal(t, models.PaymentTypeCOD, rec.PaymentType)
		})
	}
}

func TestNextPageURL(t *testing.T) {
	tests := []struct {
		link     string
		expected string
	}{
		{"", ""},
		{`<https://s/orders.json?page_info=a>; rel="next"`, "https://s/orders.json?page_info=a"},
		{`<https://s/o?page_info=p>; rel="previous", <https://s/o?page_info=n>; rel="next"`, "https://s/o?page_info=n"},
		{`<https://s/o?page_info=p>; rel="previous"`, ""},
		{`garbage`, ""},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, nextPageURL(tt.link), tt.link)
	}
}
