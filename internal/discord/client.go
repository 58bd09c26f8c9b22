package discord

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"
)

const (
	// DefaultBaseURL is the identity provider's API origin.
	DefaultBaseURL = "https://discord.com"
	// DefaultCDNBaseURL serves user avatar images.
	DefaultCDNBaseURL = "https://cdn.discordapp.com"

	tokenPath   = "/api/oauth2/token"
	profilePath = "/api/users/@me"
)

var (
	// ErrEmptyAccessToken indicates the token response carried neither an error field nor an access token.
	ErrEmptyAccessToken = errors.New("discord.token_exchange.empty_access_token")
	// ErrOutboundTimeout indicates an outbound call exceeded its deadline.
	ErrOutboundTimeout = errors.New("discord.outbound_timeout")
)

// ProviderError carries an error body reported by the identity provider so
// callers can echo it back verbatim.
type ProviderError struct {
	StatusCode int
	Body       []byte
	Code       string
}

func (providerError *ProviderError) Error() string {
	return fmt.Sprintf("discord.provider_error: %s", providerError.Code)
}

// TokenResponse is the provider's answer to an authorization-code exchange.
// It is requested and discarded per callback; nothing refreshes or stores it.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	Scope       string `json:"scope"`
	ExpiresIn   int64  `json:"expires_in"`
	ErrorCode   string `json:"error"`
}

// UserProfile is the provider's view of the authenticated user. It is
// authoritative only for the lifetime of one callback invocation.
type UserProfile struct {
	ID            string `json:"id"`
	Username      string `json:"username"`
	Discriminator string `json:"discriminator"`
	Email         string `json:"email"`
	Avatar        string `json:"avatar"`
}

// AvatarURL builds the CDN image URL from the profile's avatar hash.
// An empty hash yields an empty URL.
func (profile UserProfile) AvatarURL() string {
	if profile.Avatar == "" || profile.ID == "" {
		return ""
	}
	return fmt.Sprintf("%s/avatars/%s/%s.png", DefaultCDNBaseURL, profile.ID, profile.Avatar)
}

// Tag renders the username#discriminator form; users without a discriminator
// are rendered as the bare username.
func (profile UserProfile) Tag() string {
	if profile.Discriminator == "" || profile.Discriminator == "0" {
		return profile.Username
	}
	return profile.Username + "#" + profile.Discriminator
}

// ClientConfig configures the identity-provider client.
type ClientConfig struct {
	BaseURL      string
	ClientID     string
	ClientSecret string
	RedirectURI  string
	Scopes       []string
	HTTPClient   *http.Client
}

// Client calls the identity provider's OAuth2 and user APIs.
type Client struct {
	baseURL      string
	clientID     string
	clientSecret string
	redirectURI  string
	scopes       []string
	httpClient   *http.Client
	logger       *zap.Logger
}

// NewClient constructs a provider client. The HTTP client must carry a
// bounded timeout; outbound calls are never retried.
func NewClient(configuration ClientConfig, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	baseURL := strings.TrimSuffix(configuration.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	httpClient := configuration.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		baseURL:      baseURL,
		clientID:     configuration.ClientID,
		clientSecret: configuration.ClientSecret,
		redirectURI:  configuration.RedirectURI,
		scopes:       configuration.Scopes,
		httpClient:   httpClient,
		logger:       logger,
	}
}

// ExchangeCode trades a single-use authorization code for a bearer token.
// Detection rule: a provider body with an "error" field is surfaced as a
// *ProviderError; a body with neither an error field nor an access token
// fails with ErrEmptyAccessToken.
func (client *Client) ExchangeCode(ctx context.Context, authorizationCode string) (TokenResponse, error) {
	form := url.Values{}
	form.Set("client_id", client.clientID)
	form.Set("client_secret", client.clientSecret)
	form.Set("grant_type", "authorization_code")
	form.Set("code", authorizationCode)
	form.Set("redirect_uri", client.redirectURI)
	form.Set("scope", strings.Join(client.scopes, " "))

	request, requestErr := http.NewRequestWithContext(ctx, http.MethodPost, client.baseURL+tokenPath, strings.NewReader(form.Encode()))
	if requestErr != nil {
		return TokenResponse{}, fmt.Errorf("discord.token_exchange.request: %w", requestErr)
	}
	request.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	response, doErr := client.httpClient.Do(request)
	if doErr != nil {
		return TokenResponse{}, wrapTransportError("discord.token_exchange", doErr)
	}
	defer func() { _ = response.Body.Close() }()

	body, readErr := io.ReadAll(response.Body)
	if readErr != nil {
		return TokenResponse{}, fmt.Errorf("discord.token_exchange.read: %w", readErr)
	}

	var tokenResponse TokenResponse
	if decodeErr := json.Unmarshal(body, &tokenResponse); decodeErr != nil {
		return TokenResponse{}, fmt.Errorf("discord.token_exchange.decode: %w", decodeErr)
	}
	if tokenResponse.ErrorCode != "" {
		return TokenResponse{}, &ProviderError{
			StatusCode: response.StatusCode,
			Body:       body,
			Code:       tokenResponse.ErrorCode,
		}
	}
	if strings.TrimSpace(tokenResponse.AccessToken) == "" {
		return TokenResponse{}, ErrEmptyAccessToken
	}
	return tokenResponse, nil
}

// FetchProfile retrieves the user profile with the supplied bearer token.
// No scope or expiry validation is performed on the token.
func (client *Client) FetchProfile(ctx context.Context, accessToken string) (UserProfile, error) {
	request, requestErr := http.NewRequestWithContext(ctx, http.MethodGet, client.baseURL+profilePath, nil)
	if requestErr != nil {
		return UserProfile{}, fmt.Errorf("discord.profile_fetch.request: %w", requestErr)
	}
	request.Header.Set("Authorization", "Bearer "+accessToken)

	response, doErr := client.httpClient.Do(request)
	if doErr != nil {
		return UserProfile{}, wrapTransportError("discord.profile_fetch", doErr)
	}
	defer func() { _ = response.Body.Close() }()

	if response.StatusCode < 200 || response.StatusCode > 299 {
		return UserProfile{}, fmt.Errorf("discord.profile_fetch.status_%d", response.StatusCode)
	}
	var profile UserProfile
	if decodeErr := json.NewDecoder(response.Body).Decode(&profile); decodeErr != nil {
		return UserProfile{}, fmt.Errorf("discord.profile_fetch.decode: %w", decodeErr)
	}
	return profile, nil
}

// JoinGuild adds the user to a guild and assigns a role, authenticating with
// the bot credential plus the user's own bearer token.
func (client *Client) JoinGuild(ctx context.Context, botToken string, guildID string, roleID string, userID string, userAccessToken string) error {
	payload := struct {
		AccessToken string   `json:"access_token"`
		Roles       []string `json:"roles,omitempty"`
	}{
		AccessToken: userAccessToken,
	}
	if roleID != "" {
		payload.Roles = []string{roleID}
	}
	encoded, encodeErr := json.Marshal(payload)
	if encodeErr != nil {
		return fmt.Errorf("discord.guild_join.encode: %w", encodeErr)
	}

	endpoint := fmt.Sprintf("%s/api/guilds/%s/members/%s", client.baseURL, guildID, userID)
	request, requestErr := http.NewRequestWithContext(ctx, http.MethodPut, endpoint, bytes.NewReader(encoded))
	if requestErr != nil {
		return fmt.Errorf("discord.guild_join.request: %w", requestErr)
	}
	request.Header.Set("Content-Type", "application/json")
	request.Header.Set("Authorization", "Bot "+botToken)

	response, doErr := client.httpClient.Do(request)
	if doErr != nil {
		return wrapTransportError("discord.guild_join", doErr)
	}
	defer func() { _ = response.Body.Close() }()

	if response.StatusCode < 200 || response.StatusCode > 299 {
		return fmt.Errorf("discord.guild_join.status_%d", response.StatusCode)
	}
	return nil
}

func wrapTransportError(operation string, err error) error {
	if isTimeout(err) {
		return fmt.Errorf("%s: %w", operation, ErrOutboundTimeout)
	}
	return fmt.Errorf("%s.transport: %w", operation, err)
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
