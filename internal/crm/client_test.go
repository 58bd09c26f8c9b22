package crm

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap/zaptest"
)

func TestLookupSubscription(t *testing.T) {
	testCases := []struct {
		name       string
		email      string
		status     int
		body       string
		expected   bool
		expectErr  bool
		sentinel   error
	}{
		{
			name:     "affirmative subscription",
			email:    "a@x.com",
			status:   http.StatusOK,
			body:     `{"contacts":[{"email":"a@x.com","subscribed":true}]}`,
			expected: true,
		},
		{
			name:     "contact without subscription flag",
			email:    "a@x.com",
			status:   http.StatusOK,
			body:     `{"contacts":[{"email":"a@x.com","subscribed":false}]}`,
			expected: false,
		},
		{
			name:     "no matching contact",
			email:    "a@x.com",
			status:   http.StatusOK,
			body:     `{"contacts":[]}`,
			expected: false,
		},
		{
			name:     "not found is not entitled",
			email:    "a@x.com",
			status:   http.StatusNotFound,
			body:     `{"error":"not_found"}`,
			expected: false,
		},
		{
			name:      "server error propagates",
			email:     "a@x.com",
			status:    http.StatusInternalServerError,
			body:      `{}`,
			expectErr: true,
		},
		{
			name:      "missing email",
			email:     "",
			expectErr: true,
			sentinel:  ErrMissingEmail,
		},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			var capturedAuthorization string
			server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
				capturedAuthorization = request.Header.Get("Authorization")
				writer.WriteHeader(testCase.status)
				_, _ = writer.Write([]byte(testCase.body))
			}))
			defer server.Close()

			client := NewClient(server.URL, "crm-key", server.Client(), zaptest.NewLogger(t))
			subscribed, lookupErr := client.LookupSubscription(context.Background(), testCase.email)
			if testCase.expectErr {
				if lookupErr == nil {
					t.Fatalf("expected error")
				}
				if testCase.sentinel != nil && !errors.Is(lookupErr, testCase.sentinel) {
					t.Fatalf("expected %v, got %v", testCase.sentinel, lookupErr)
				}
				return
			}
			if lookupErr != nil {
				t.Fatalf("lookup failed: %v", lookupErr)
			}
			if subscribed != testCase.expected {
				t.Fatalf("expected subscribed=%v, got %v", testCase.expected, subscribed)
			}
			if capturedAuthorization != "Bearer crm-key" {
				t.Fatalf("expected api key header, got %q", capturedAuthorization)
			}
		})
	}
}
