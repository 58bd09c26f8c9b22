// Package payment integrates the payment provider's checkout API: a
// client-credentials grant for application auth, order creation, and order
// capture.
package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const (
	// SandboxBaseURL is the payment provider's test environment.
	SandboxBaseURL = "https://api-m.sandbox.paypal.com"
	// LiveBaseURL is the payment provider's production environment.
	LiveBaseURL = "https://api-m.paypal.com"

	tokenPath  = "/v1/oauth2/token"
	ordersPath = "/v2/checkout/orders"
)

// ResolveBaseURL maps the configured payment mode to an API origin.
func ResolveBaseURL(mode string) string {
	if strings.EqualFold(mode, "live") {
		return LiveBaseURL
	}
	return SandboxBaseURL
}

// ClientConfig configures the payment client. BaseURL overrides the
// mode-derived origin, which tests rely on.
type ClientConfig struct {
	ClientID string
	Secret   string
	Mode     string
	BaseURL  string
}

// Client calls the payment provider's checkout API.
type Client struct {
	baseURL     string
	credentials clientcredentials.Config
	httpClient  *http.Client
	logger      *zap.Logger
}

// NewClient constructs a payment client. The HTTP client must carry a
// bounded timeout.
func NewClient(configuration ClientConfig, httpClient *http.Client, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	baseURL := strings.TrimSuffix(configuration.BaseURL, "/")
	if baseURL == "" {
		baseURL = ResolveBaseURL(configuration.Mode)
	}
	return &Client{
		baseURL: baseURL,
		credentials: clientcredentials.Config{
			ClientID:     configuration.ClientID,
			ClientSecret: configuration.Secret,
			TokenURL:     baseURL + tokenPath,
			AuthStyle:    oauth2.AuthStyleInHeader,
		},
		httpClient: httpClient,
		logger:     logger,
	}
}

// bearerToken obtains a fresh client-credentials token; every order
// operation authenticates independently.
func (client *Client) bearerToken(ctx context.Context) (string, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, client.httpClient)
	token, tokenErr := client.credentials.Token(ctx)
	if tokenErr != nil {
		return "", fmt.Errorf("payment.token.transport: %w", tokenErr)
	}
	if strings.TrimSpace(token.AccessToken) == "" {
		return "", fmt.Errorf("payment.token.empty_access_token")
	}
	return token.AccessToken, nil
}

type orderAmount struct {
	CurrencyCode string `json:"currency_code"`
	Value        string `json:"value"`
}

type purchaseUnit struct {
	Amount      orderAmount `json:"amount"`
	Description string      `json:"description"`
}

type orderApplicationContext struct {
	ReturnURL string `json:"return_url"`
	CancelURL string `json:"cancel_url"`
}

type orderRequest struct {
	Intent             string                  `json:"intent"`
	PurchaseUnits      []purchaseUnit          `json:"purchase_units"`
	ApplicationContext orderApplicationContext `json:"application_context"`
}

// CreateOrder creates a single-line-item USD order and returns the
// provider's order descriptor verbatim.
func (client *Client) CreateOrder(ctx context.Context, planName string, price float64, returnURL string, cancelURL string) (json.RawMessage, error) {
	accessToken, tokenErr := client.bearerToken(ctx)
	if tokenErr != nil {
		return nil, tokenErr
	}

	payload := orderRequest{
		Intent: "CAPTURE",
		PurchaseUnits: []purchaseUnit{{
			Amount:      orderAmount{CurrencyCode: "USD", Value: strconv.FormatFloat(price, 'f', 2, 64)},
			Description: planName,
		}},
		ApplicationContext: orderApplicationContext{
			ReturnURL: returnURL,
			CancelURL: cancelURL,
		},
	}
	encoded, encodeErr := json.Marshal(payload)
	if encodeErr != nil {
		return nil, fmt.Errorf("payment.order_create.encode: %w", encodeErr)
	}

	body, requestErr := client.postJSON(ctx, client.baseURL+ordersPath, accessToken, encoded, "payment.order_create")
	if requestErr != nil {
		return nil, requestErr
	}
	return json.RawMessage(body), nil
}

// CaptureResult summarizes a captured order alongside the provider's raw
// descriptor.
type CaptureResult struct {
	PlanName string
	Amount   string
	Raw      json.RawMessage
}

// CaptureOrder captures the order identified by the provider-issued token.
func (client *Client) CaptureOrder(ctx context.Context, orderToken string) (CaptureResult, error) {
	accessToken, tokenErr := client.bearerToken(ctx)
	if tokenErr != nil {
		return CaptureResult{}, tokenErr
	}

	endpoint := fmt.Sprintf("%s%s/%s/capture", client.baseURL, ordersPath, orderToken)
	body, requestErr := client.postJSON(ctx, endpoint, accessToken, nil, "payment.capture")
	if requestErr != nil {
		return CaptureResult{}, requestErr
	}

	var parsed struct {
		PurchaseUnits []struct {
			Description string `json:"description"`
			Amount      struct {
				Value string `json:"value"`
			} `json:"amount"`
		} `json:"purchase_units"`
	}
	if decodeErr := json.Unmarshal(body, &parsed); decodeErr != nil {
		return CaptureResult{}, fmt.Errorf("payment.capture.decode: %w", decodeErr)
	}
	result := CaptureResult{Raw: json.RawMessage(body)}
	if len(parsed.PurchaseUnits) > 0 {
		result.PlanName = parsed.PurchaseUnits[0].Description
		result.Amount = parsed.PurchaseUnits[0].Amount.Value
	}
	return result, nil
}

func (client *Client) postJSON(ctx context.Context, endpoint string, accessToken string, payload []byte, operation string) ([]byte, error) {
	var bodyReader io.Reader
	if payload != nil {
		bodyReader = bytes.NewReader(payload)
	}
	request, requestErr := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bodyReader)
	if requestErr != nil {
		return nil, fmt.Errorf("%s.request: %w", operation, requestErr)
	}
	request.Header.Set("Content-Type", "application/json")
	request.Header.Set("Authorization", "Bearer "+accessToken)

	response, doErr := client.httpClient.Do(request)
	if doErr != nil {
		return nil, fmt.Errorf("%s.transport: %w", operation, doErr)
	}
	defer func() { _ = response.Body.Close() }()

	body, readErr := io.ReadAll(response.Body)
	if readErr != nil {
		return nil, fmt.Errorf("%s.read: %w", operation, readErr)
	}
	if response.StatusCode < 200 || response.StatusCode > 299 {
		return nil, fmt.Errorf("%s.status_%d", operation, response.StatusCode)
	}
	return body, nil
}
