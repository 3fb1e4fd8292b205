package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-storefront/pkg/clock"
	"go-storefront/pkg/config"
	"go-storefront/pkg/db"
	"go-storefront/pkg/logger"
)

func testConfig() *config.Config {
	return &config.Config{
		ServiceName:           "storefront-test",
		DBDriver:              db.DriverMemory,
		HTTPTimeout:           time.Second,
		JWTSecret:             "test-secret",
		JWTTTL:                time.Hour,
		PasswordResetTTL:      time.Hour,
		PayPalBaseURL:         "http://127.0.0.1:0",
		TaxRate:               "0.15",
		ShippingFee:           "10.00",
		FreeShippingThreshold: "100.00",
		OrderExpiryThreshold:  2 * time.Minute,
		SweepInterval:         time.Minute,
		PaginationLimit:       8,
	}
}

type envelope struct {
	Data json.RawMessage `json:"data"`
}

func call(t *testing.T, router *gin.Engine, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	require.NoError(t, json.Unmarshal(env.Data, out))
}

func TestStorefront_EndToEnd(t *testing.T) {
	// Arrange
	cfg := testConfig()
	log := logger.NewNop()
	clk := clock.NewFixed(time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC))

	st, err := openStores(cfg, log)
	require.NoError(t, err)
	app, err := buildServices(cfg, st, noopBus(), clk, log)
	require.NoError(t, err)
	require.NoError(t, app.users.EnsureAdmin(context.Background(), "Admin", "admin@example.com", "secret1"))
	router := newRouter(app, log)

	var admin struct {
		Token string `json:"token"`
	}
	rec := call(t, router, http.MethodPost, "/api/v1/users/login", "", map[string]string{
		"email": "admin@example.com", "password": "secret1",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	decode(t, rec, &admin)

	// Act & Assert: catalog
	var product struct {
		ID            uint    `json:"id"`
		DiscountPrice *string `json:"discount_price"`
		CountInStock  int     `json:"count_in_stock"`
	}
	rec = call(t, router, http.MethodPost, "/api/v1/products", admin.Token, map[string]interface{}{
		"name": "Desk Lamp", "brand": "Lumo", "category": "Lighting",
		"price": "100.00", "count_in_stock": 5,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	decode(t, rec, &product)
	productPath := "/api/v1/products/" + strconv.Itoa(int(product.ID))

	// Act & Assert: promotion lowers the listed price once active
	var promotion struct {
		ID     uint `json:"id"`
		Active bool `json:"active"`
	}
	rec = call(t, router, http.MethodPost, "/api/v1/promotions", admin.Token, map[string]interface{}{
		"name": "Spring", "discount_percentage": "20", "duration_days": 7,
		"product_ids": []uint{product.ID},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	decode(t, rec, &promotion)

	rec = call(t, router, http.MethodPut, "/api/v1/promotions/"+strconv.Itoa(int(promotion.ID))+"/toggle", admin.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	decode(t, rec, &promotion)
	assert.True(t, promotion.Active)

	rec = call(t, router, http.MethodGet, productPath, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &product)
	require.NotNil(t, product.DiscountPrice)
	assert.Equal(t, "80.00", *product.DiscountPrice)

	// Act & Assert: a shopper buys two at the discounted price
	var shopper struct {
		Token string `json:"token"`
	}
	rec = call(t, router, http.MethodPost, "/api/v1/users", "", map[string]string{
		"name": "Ana", "email": "ana@example.com", "password": "hunter22",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	decode(t, rec, &shopper)

	var order struct {
		ItemsPrice    string `json:"items_price"`
		TaxPrice      string `json:"tax_price"`
		ShippingPrice string `json:"shipping_price"`
		TotalPrice    string `json:"total_price"`
		IsPaid        bool   `json:"is_paid"`
	}
	rec = call(t, router, http.MethodPost, "/api/v1/orders", shopper.Token, map[string]interface{}{
		"order_items": []map[string]interface{}{{"product_id": product.ID, "quantity": 2}},
		"shipping_address": map[string]string{
			"address": "1 Main St", "city": "Lisbon", "postal_code": "1000-001", "country": "PT",
		},
		"payment_method": "PayPal",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	decode(t, rec, &order)
	assert.Equal(t, "160.00", order.ItemsPrice)
	assert.Equal(t, "24.00", order.TaxPrice)
	assert.Equal(t, "0.00", order.ShippingPrice)
	assert.Equal(t, "184.00", order.TotalPrice)
	assert.False(t, order.IsPaid)

	rec = call(t, router, http.MethodGet, productPath, "", nil)
	decode(t, rec, &product)
	assert.Equal(t, 3, product.CountInStock)

	// Act & Assert: access control
	rec = call(t, router, http.MethodPost, "/api/v1/products", shopper.Token, map[string]interface{}{
		"name": "Nope", "price": "1.00", "count_in_stock": 1,
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = call(t, router, http.MethodPost, "/api/v1/orders", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = call(t, router, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestBuildServices_RejectsBadPricing(t *testing.T) {
	cfg := testConfig()
	cfg.TaxRate = "-0.1"

	st, err := openStores(cfg, logger.NewNop())
	require.NoError(t, err)

	_, err = buildServices(cfg, st, noopBus(), clock.Real{}, logger.NewNop())
	assert.Error(t, err)
}
