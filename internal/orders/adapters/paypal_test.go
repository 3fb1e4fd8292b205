package adapters

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-storefront/pkg/errors"
	"go-storefront/pkg/logger"
	"go-storefront/pkg/money"
)

func newPayPalServer(t *testing.T, orders map[string]string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "client" || pass != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"tok","token_type":"Bearer"}`))
	})
	mux.HandleFunc("/v2/checkout/orders/", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		id := r.URL.Path[len("/v2/checkout/orders/"):]
		body, ok := orders[id]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(body))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestPayPalVerifier_Verify(t *testing.T) {
	srv := newPayPalServer(t, map[string]string{
		"done":    `{"id":"done","status":"COMPLETED","purchase_units":[{"amount":{"currency_code":"USD","value":"125.00"}}]}`,
		"pending": `{"id":"pending","status":"APPROVED","purchase_units":[{"amount":{"currency_code":"USD","value":"10.00"}}]}`,
	})
	v := NewPayPalVerifier(srv.URL, "client", "secret", 5*time.Second, logger.NewNop())

	tests := []struct {
		name     string
		txnID    string
		verified bool
		amount   string
	}{
		{"completed", "done", true, "125.00"},
		{"not completed", "pending", false, "10.00"},
		{"unknown", "missing", false, "0.00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := v.Verify(context.Background(), tt.txnID)

			require.NoError(t, err)
			assert.Equal(t, tt.verified, got.Verified)
			assert.Equal(t, tt.amount, money.Format(got.Amount))
		})
	}
}

func TestPayPalVerifier_BadCredentialsIsExternalError(t *testing.T) {
	srv := newPayPalServer(t, nil)
	v := NewPayPalVerifier(srv.URL, "client", "wrong", 5*time.Second, logger.NewNop())

	_, err := v.Verify(context.Background(), "done")

	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.CodeExternalService))
}

func TestPayPalVerifier_Unconfigured(t *testing.T) {
	v := NewPayPalVerifier("http://127.0.0.1:0", "", "", time.Second, logger.NewNop())

	_, err := v.Verify(context.Background(), "x")

	assert.True(t, errors.Is(err, errors.CodeExternalService))
}
