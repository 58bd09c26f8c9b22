package session

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func testCookieConfig() CookieConfig {
	return CookieConfig{
		Name:         "premium_session",
		SigningKey:   []byte("test-signing-key"),
		Issuer:       "premium-gateway",
		TTL:          time.Hour,
		SameSiteMode: http.SameSiteStrictMode,
	}
}

func TestCookieTokenRoundTrip(t *testing.T) {
	configuration := testCookieConfig()
	signed, expiresAt, mintErr := MintCookieToken(configuration, "sid-42")
	if mintErr != nil {
		t.Fatalf("mint error: %v", mintErr)
	}
	if time.Until(expiresAt) > time.Hour || time.Until(expiresAt) < 55*time.Minute {
		t.Fatalf("unexpected expiry %v", expiresAt)
	}
	sessionID, parseErr := ParseCookieToken(configuration, signed)
	if parseErr != nil {
		t.Fatalf("parse error: %v", parseErr)
	}
	if sessionID != "sid-42" {
		t.Fatalf("expected sid-42, got %q", sessionID)
	}
}

func TestParseCookieTokenRejectsTampering(t *testing.T) {
	configuration := testCookieConfig()
	signed, _, mintErr := MintCookieToken(configuration, "sid-42")
	if mintErr != nil {
		t.Fatalf("mint error: %v", mintErr)
	}

	testCases := []struct {
		name  string
		token string
	}{
		{name: "garbage", token: "not-a-jwt"},
		{name: "empty", token: ""},
		{name: "truncated", token: signed[:len(signed)-4]},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			if _, parseErr := ParseCookieToken(configuration, testCase.token); !errors.Is(parseErr, ErrInvalidCookieToken) {
				t.Fatalf("expected ErrInvalidCookieToken, got %v", parseErr)
			}
		})
	}
}

func TestParseCookieTokenRejectsWrongIssuer(t *testing.T) {
	configuration := testCookieConfig()
	signed, _, mintErr := MintCookieToken(configuration, "sid-42")
	if mintErr != nil {
		t.Fatalf("mint error: %v", mintErr)
	}
	otherIssuer := configuration
	otherIssuer.Issuer = "someone-else"
	if _, parseErr := ParseCookieToken(otherIssuer, signed); !errors.Is(parseErr, ErrInvalidCookieToken) {
		t.Fatalf("expected ErrInvalidCookieToken, got %v", parseErr)
	}
}

func TestSessionIDFromRequest(t *testing.T) {
	configuration := testCookieConfig()
	signed, _, mintErr := MintCookieToken(configuration, "sid-42")
	if mintErr != nil {
		t.Fatalf("mint error: %v", mintErr)
	}

	request := httptest.NewRequest(http.MethodGet, "/api/capture-order", nil)
	request.AddCookie(&http.Cookie{Name: configuration.CookieName(), Value: signed})
	sessionID, readErr := SessionIDFromRequest(configuration, request)
	if readErr != nil {
		t.Fatalf("read error: %v", readErr)
	}
	if sessionID != "sid-42" {
		t.Fatalf("expected sid-42, got %q", sessionID)
	}

	bare := httptest.NewRequest(http.MethodGet, "/api/capture-order", nil)
	if _, missingErr := SessionIDFromRequest(configuration, bare); !errors.Is(missingErr, ErrMissingCookie) {
		t.Fatalf("expected ErrMissingCookie, got %v", missingErr)
	}
}
