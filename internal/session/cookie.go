package session

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// DefaultCookieName is used when CookieConfig.Name is empty.
const DefaultCookieName = "premium_session"

var (
	// ErrMissingCookie indicates the request carried no session cookie.
	ErrMissingCookie = errors.New("session_cookie.missing")
	// ErrInvalidCookieToken indicates the cookie JWT failed validation.
	ErrInvalidCookieToken = errors.New("session_cookie.invalid_token")
)

// CookieConfig describes how the session-id cookie is minted and validated.
type CookieConfig struct {
	Name         string
	SigningKey   []byte
	Issuer       string
	Domain       string
	TTL          time.Duration
	SameSiteMode http.SameSite
	// AllowInsecureHTTP drops the Secure attribute for local development.
	AllowInsecureHTTP bool
}

// CookieName resolves the configured or default cookie name.
func (configuration CookieConfig) CookieName() string {
	if strings.TrimSpace(configuration.Name) == "" {
		return DefaultCookieName
	}
	return configuration.Name
}

// CookieClaims wrap the opaque session id inside the signed cookie.
type CookieClaims struct {
	SessionID string `json:"sid"`
	jwt.RegisteredClaims
}

// MintCookieToken signs an HS256 JWT carrying the session id.
func MintCookieToken(configuration CookieConfig, sessionID string) (string, time.Time, error) {
	issuedAt := time.Now().UTC()
	expiresAt := issuedAt.Add(configuration.TTL)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, CookieClaims{
		SessionID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    configuration.Issuer,
			Subject:   sessionID,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			NotBefore: jwt.NewNumericDate(issuedAt.Add(-30 * time.Second)),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	})
	signed, signErr := token.SignedString(configuration.SigningKey)
	if signErr != nil {
		return "", time.Time{}, fmt.Errorf("session_cookie.mint: %w", signErr)
	}
	return signed, expiresAt, nil
}

// ParseCookieToken validates the signed cookie value and returns the session id.
func ParseCookieToken(configuration CookieConfig, tokenString string) (string, error) {
	if strings.TrimSpace(tokenString) == "" {
		return "", fmt.Errorf("session_cookie.parse: %w", ErrInvalidCookieToken)
	}
	parsedToken, parseErr := jwt.ParseWithClaims(tokenString, &CookieClaims{}, func(parsed *jwt.Token) (interface{}, error) {
		return configuration.SigningKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if parseErr != nil || parsedToken == nil || !parsedToken.Valid {
		return "", fmt.Errorf("session_cookie.parse: %w", ErrInvalidCookieToken)
	}
	claims, ok := parsedToken.Claims.(*CookieClaims)
	if !ok || claims.Issuer != configuration.Issuer || strings.TrimSpace(claims.SessionID) == "" {
		return "", fmt.Errorf("session_cookie.parse: %w", ErrInvalidCookieToken)
	}
	return claims.SessionID, nil
}

// SessionIDFromRequest reads and validates the session cookie on a request.
func SessionIDFromRequest(configuration CookieConfig, request *http.Request) (string, error) {
	cookie, cookieErr := request.Cookie(configuration.CookieName())
	if cookieErr != nil || cookie == nil || strings.TrimSpace(cookie.Value) == "" {
		return "", fmt.Errorf("session_cookie.read: %w", ErrMissingCookie)
	}
	return ParseCookieToken(configuration, cookie.Value)
}

// WriteCookie sets the signed session cookie on the response.
func WriteCookie(contextGin *gin.Context, configuration CookieConfig, signedToken string, expiresAt time.Time) {
	http.SetCookie(contextGin.Writer, &http.Cookie{
		Name:     configuration.CookieName(),
		Value:    signedToken,
		Path:     "/",
		Domain:   configuration.Domain,
		Expires:  expiresAt,
		Secure:   !configuration.AllowInsecureHTTP,
		HttpOnly: true,
		SameSite: configuration.SameSiteMode,
	})
}

// ClearCookie expires the session cookie on the response.
func ClearCookie(contextGin *gin.Context, configuration CookieConfig) {
	http.SetCookie(contextGin.Writer, &http.Cookie{
		Name:     configuration.CookieName(),
		Value:    "",
		Path:     "/",
		Domain:   configuration.Domain,
		MaxAge:   -1,
		Secure:   !configuration.AllowInsecureHTTP,
		HttpOnly: true,
		SameSite: configuration.SameSiteMode,
	})
}
