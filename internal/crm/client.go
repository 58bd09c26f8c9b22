// Package crm looks up subscription entitlements in an external CRM, keyed
// by the email address carried on the identity provider's user profile.
package crm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"
)

const contactSearchPath = "/v1/contacts/search"

// ErrMissingEmail indicates an entitlement lookup without an email address;
// the caller treats this as not entitled.
var ErrMissingEmail = errors.New("crm.lookup.missing_email")

type contactRecord struct {
	Email      string `json:"email"`
	Subscribed bool   `json:"subscribed"`
}

type searchResponse struct {
	Contacts []contactRecord `json:"contacts"`
}

// Client queries the CRM's contact-search API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient constructs a CRM client. The HTTP client must carry a bounded
// timeout.
func NewClient(baseURL string, apiKey string, httpClient *http.Client, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: httpClient,
		logger:     logger,
	}
}

// LookupSubscription reports whether the CRM holds a contact for the email
// with an affirmatively true subscription flag. A missing contact is not an
// error; it is simply not entitled.
func (client *Client) LookupSubscription(ctx context.Context, email string) (bool, error) {
	if strings.TrimSpace(email) == "" {
		return false, ErrMissingEmail
	}

	endpoint := client.baseURL + contactSearchPath + "?email=" + url.QueryEscape(email)
	request, requestErr := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if requestErr != nil {
		return false, fmt.Errorf("crm.lookup.request: %w", requestErr)
	}
	request.Header.Set("Authorization", "Bearer "+client.apiKey)

	response, doErr := client.httpClient.Do(request)
	if doErr != nil {
		return false, fmt.Errorf("crm.lookup.transport: %w", doErr)
	}
	defer func() { _ = response.Body.Close() }()

	if response.StatusCode == http.StatusNotFound {
		return false, nil
	}
	if response.StatusCode < 200 || response.StatusCode > 299 {
		return false, fmt.Errorf("crm.lookup.status_%d", response.StatusCode)
	}

	var decoded searchResponse
	if decodeErr := json.NewDecoder(response.Body).Decode(&decoded); decodeErr != nil {
		return false, fmt.Errorf("crm.lookup.decode: %w", decodeErr)
	}
	for _, contact := range decoded.Contacts {
		if strings.EqualFold(contact.Email, email) && contact.Subscribed {
			return true, nil
		}
	}
	return false, nil
}
