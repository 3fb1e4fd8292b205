package adapters

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"go-storefront/internal/orders/ports"
	"go-storefront/pkg/errors"
	"go-storefront/pkg/logger"
	"go-storefront/pkg/money"
)

const paypalStatusCompleted = "COMPLETED"

// PayPalVerifier implements PaymentVerifier against the PayPal REST API
type PayPalVerifier struct {
	baseURL      string
	clientID     string
	clientSecret string
	client       *http.Client
	log          *logger.Logger
}

// NewPayPalVerifier creates a verifier for the given API base URL
func NewPayPalVerifier(baseURL, clientID, clientSecret string, timeout time.Duration, log *logger.Logger) *PayPalVerifier {
	return &PayPalVerifier{
		baseURL:      strings.TrimRight(baseURL, "/"),
		clientID:     clientID,
		clientSecret: clientSecret,
		client:       &http.Client{Timeout: timeout},
		log:          log,
	}
}

type paypalToken struct {
	AccessToken string `json:"access_token"`
}

type paypalOrder struct {
	ID            string `json:"id"`
	Status        string `json:"status"`
	PurchaseUnits []struct {
		Amount struct {
			CurrencyCode string `json:"currency_code"`
			Value        string `json:"value"`
		} `json:"amount"`
	} `json:"purchase_units"`
}

// Verify fetches the checkout order. It is verified when PayPal reports it
// completed; the amount is the first purchase unit's value. An unknown
// transaction is reported as unverified.
func (v *PayPalVerifier) Verify(ctx context.Context, transactionID string) (*ports.PaymentVerification, error) {
	if v.clientID == "" || v.clientSecret == "" {
		return nil, errors.NewExternalService("payment verifier", fmt.Errorf("paypal credentials are not configured"))
	}

	token, err := v.accessToken(ctx)
	if err != nil {
		return nil, errors.NewExternalService("payment verifier", err)
	}

	endpoint := v.baseURL + "/v2/checkout/orders/" + url.PathEscape(transactionID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, errors.NewInternal("failed to build paypal request", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := v.client.Do(req)
	if err != nil {
		return nil, errors.NewExternalService("payment verifier", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return &ports.PaymentVerification{Verified: false}, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errors.NewExternalService("payment verifier", unexpectedStatus(resp))
	}

	var order paypalOrder
	if err := json.NewDecoder(resp.Body).Decode(&order); err != nil {
		return nil, errors.NewExternalService("payment verifier", fmt.Errorf("decode order: %w", err))
	}

	result := &ports.PaymentVerification{Verified: order.Status == paypalStatusCompleted}
	if len(order.PurchaseUnits) > 0 {
		amount, err := money.Parse(order.PurchaseUnits[0].Amount.Value)
		if err != nil {
			return nil, errors.NewExternalService("payment verifier", err)
		}
		result.Amount = amount
	} else {
		result.Verified = false
	}

	v.log.WithContext(ctx).Debug("paypal order fetched",
		zap.String("transaction_id", transactionID),
		zap.String("status", order.Status),
		zap.Bool("verified", result.Verified),
	)
	return result, nil
}

func (v *PayPalVerifier) accessToken(ctx context.Context) (string, error) {
	form := url.Values{"grant_type": {"client_credentials"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.baseURL+"/v1/oauth2/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(v.clientID, v.clientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := v.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", unexpectedStatus(resp)
	}

	var token paypalToken
	if err := json.NewDecoder(resp.Body).Decode(&token); err != nil {
		return "", fmt.Errorf("decode token: %w", err)
	}
	if token.AccessToken == "" {
		return "", fmt.Errorf("paypal returned an empty access token")
	}
	return token.AccessToken, nil
}

func unexpectedStatus(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return fmt.Errorf("paypal responded %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
}
