package discord

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	client := NewClient(ClientConfig{
		BaseURL:      server.URL,
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		RedirectURI:  "https://app.example.com/auth/callback",
		Scopes:       []string{"identify", "email", "guilds.join"},
		HTTPClient:   server.Client(),
	}, zaptest.NewLogger(t))
	return client, server
}

func TestExchangeCodeSendsFormAndParsesToken(t *testing.T) {
	var capturedForm map[string]string
	client, _ := newTestClient(t, http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		if request.URL.Path != tokenPath {
			t.Errorf("unexpected path %s", request.URL.Path)
		}
		if parseErr := request.ParseForm(); parseErr != nil {
			t.Fatalf("parse form failed: %v", parseErr)
		}
		capturedForm = map[string]string{
			"client_id":    request.PostForm.Get("client_id"),
			"grant_type":   request.PostForm.Get("grant_type"),
			"code":         request.PostForm.Get("code"),
			"redirect_uri": request.PostForm.Get("redirect_uri"),
			"scope":        request.PostForm.Get("scope"),
		}
		_ = json.NewEncoder(writer).Encode(TokenResponse{AccessToken: "tok1", TokenType: "Bearer"})
	}))

	tokenResponse, exchangeErr := client.ExchangeCode(context.Background(), "abc123")
	if exchangeErr != nil {
		t.Fatalf("exchange failed: %v", exchangeErr)
	}
	if tokenResponse.AccessToken != "tok1" {
		t.Fatalf("expected access token tok1, got %q", tokenResponse.AccessToken)
	}
	if capturedForm["grant_type"] != "authorization_code" {
		t.Fatalf("expected authorization_code grant, got %q", capturedForm["grant_type"])
	}
	if capturedForm["code"] != "abc123" {
		t.Fatalf("expected code abc123, got %q", capturedForm["code"])
	}
	if capturedForm["scope"] != "identify email guilds.join" {
		t.Fatalf("expected space-joined scope, got %q", capturedForm["scope"])
	}
}

func TestExchangeCodeSurfacesProviderError(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		writer.WriteHeader(http.StatusBadRequest)
		_, _ = writer.Write([]byte(`{"error":"invalid_grant","error_description":"Invalid authorization code"}`))
	}))

	_, exchangeErr := client.ExchangeCode(context.Background(), "expired")
	var providerError *ProviderError
	if !errors.As(exchangeErr, &providerError) {
		t.Fatalf("expected ProviderError, got %v", exchangeErr)
	}
	if providerError.Code != "invalid_grant" {
		t.Fatalf("expected invalid_grant, got %q", providerError.Code)
	}
	if len(providerError.Body) == 0 {
		t.Fatalf("expected provider body to be preserved for echoing")
	}
}

func TestExchangeCodeFailsOnEmptyAccessToken(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		_, _ = writer.Write([]byte(`{"token_type":"Bearer"}`))
	}))

	_, exchangeErr := client.ExchangeCode(context.Background(), "abc123")
	if !errors.Is(exchangeErr, ErrEmptyAccessToken) {
		t.Fatalf("expected ErrEmptyAccessToken, got %v", exchangeErr)
	}
}

func TestFetchProfileUsesBearerToken(t *testing.T) {
	var capturedAuthorization string
	client, _ := newTestClient(t, http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		capturedAuthorization = request.Header.Get("Authorization")
		_ = json.NewEncoder(writer).Encode(UserProfile{
			ID:            "u1",
			Username:      "alice",
			Discriminator: "0001",
			Email:         "a@x.com",
			Avatar:        "h1",
		})
	}))

	profile, fetchErr := client.FetchProfile(context.Background(), "tok1")
	if fetchErr != nil {
		t.Fatalf("profile fetch failed: %v", fetchErr)
	}
	if capturedAuthorization != "Bearer tok1" {
		t.Fatalf("expected bearer header with exchanged token, got %q", capturedAuthorization)
	}
	if profile.Username != "alice" || profile.ID != "u1" {
		t.Fatalf("unexpected profile: %+v", profile)
	}
}

func TestJoinGuildPutsMemberWithRole(t *testing.T) {
	var capturedMethod, capturedPath, capturedAuthorization string
	var capturedPayload struct {
		AccessToken string   `json:"access_token"`
		Roles       []string `json:"roles"`
	}
	client, _ := newTestClient(t, http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		capturedMethod = request.Method
		capturedPath = request.URL.Path
		capturedAuthorization = request.Header.Get("Authorization")
		_ = json.NewDecoder(request.Body).Decode(&capturedPayload)
		writer.WriteHeader(http.StatusCreated)
	}))

	joinErr := client.JoinGuild(context.Background(), "bot-secret", "guild-1", "role-9", "u1", "tok1")
	if joinErr != nil {
		t.Fatalf("guild join failed: %v", joinErr)
	}
	if capturedMethod != http.MethodPut {
		t.Fatalf("expected PUT, got %s", capturedMethod)
	}
	if capturedPath != "/api/guilds/guild-1/members/u1" {
		t.Fatalf("unexpected path %s", capturedPath)
	}
	if capturedAuthorization != "Bot bot-secret" {
		t.Fatalf("expected bot credential, got %q", capturedAuthorization)
	}
	if capturedPayload.AccessToken != "tok1" || len(capturedPayload.Roles) != 1 || capturedPayload.Roles[0] != "role-9" {
		t.Fatalf("unexpected payload: %+v", capturedPayload)
	}
}

func TestAvatarURL(t *testing.T) {
	testCases := []struct {
		name     string
		profile  UserProfile
		expected string
	}{
		{
			name:     "with hash",
			profile:  UserProfile{ID: "u1", Avatar: "h1"},
			expected: "https://cdn.discordapp.com/avatars/u1/h1.png",
		},
		{
			name:     "missing hash",
			profile:  UserProfile{ID: "u1"},
			expected: "",
		},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			if actual := testCase.profile.AvatarURL(); actual != testCase.expected {
				t.Fatalf("expected %q, got %q", testCase.expected, actual)
			}
		})
	}
}

func TestNotifierSendBuildsEmbed(t *testing.T) {
	var capturedPayload webhookPayload
	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		_ = json.NewDecoder(request.Body).Decode(&capturedPayload)
		writer.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	notifier := NewNotifier(server.URL, server.Client(), zaptest.NewLogger(t))
	notifier.now = func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) }

	sendErr := notifier.Send(context.Background(), Notification{
		Title:    "New Premium Subscription",
		Profile:  UserProfile{ID: "u1", Username: "alice", Discriminator: "0001", Email: "a@x.com", Avatar: "h1"},
		PlanName: "Gold",
		Price:    "9.99",
	})
	if sendErr != nil {
		t.Fatalf("send failed: %v", sendErr)
	}
	if len(capturedPayload.Embeds) != 1 {
		t.Fatalf("expected one embed, got %d", len(capturedPayload.Embeds))
	}
	sent := capturedPayload.Embeds[0]
	if sent.Title != "New Premium Subscription" {
		t.Fatalf("unexpected title %q", sent.Title)
	}
	if len(sent.Fields) != 6 {
		t.Fatalf("expected 6 fields, got %d", len(sent.Fields))
	}
	if sent.Fields[0].Value != "alice#0001" {
		t.Fatalf("expected tag alice#0001, got %q", sent.Fields[0].Value)
	}
	if sent.Thumbnail == nil || sent.Thumbnail.URL != "https://cdn.discordapp.com/avatars/u1/h1.png" {
		t.Fatalf("expected avatar thumbnail, got %+v", sent.Thumbnail)
	}
	if sent.Timestamp != "2025-06-01T12:00:00Z" {
		t.Fatalf("unexpected timestamp %q", sent.Timestamp)
	}
}

func TestNotifierSendReportsFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		writer.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	notifier := NewNotifier(server.URL, server.Client(), zaptest.NewLogger(t))
	if sendErr := notifier.Send(context.Background(), Notification{Title: "x"}); sendErr == nil {
		t.Fatalf("expected error from failing webhook")
	}
}
