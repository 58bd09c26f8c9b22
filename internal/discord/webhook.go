package discord

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
)

const embedColor = 0x7289da

// Notification describes one webhook announcement. Plan and Price are
// included only when non-empty.
type Notification struct {
	Title    string
	Profile  UserProfile
	PlanName string
	Price    string
}

type embedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

type embedThumbnail struct {
	URL string `json:"url"`
}

type embed struct {
	Title     string          `json:"title"`
	Color     int             `json:"color"`
	Fields    []embedField    `json:"fields"`
	Thumbnail *embedThumbnail `json:"thumbnail,omitempty"`
	Timestamp string          `json:"timestamp"`
}

type webhookPayload struct {
	Embeds []embed `json:"embeds"`
}

// Notifier posts embed-style notifications to a configured webhook URL.
// Delivery is best-effort; callers decide whether a failure matters.
type Notifier struct {
	webhookURL string
	httpClient *http.Client
	logger     *zap.Logger
	now        func() time.Time
}

// NewNotifier constructs a Notifier for the given webhook URL.
func NewNotifier(webhookURL string, httpClient *http.Client, logger *zap.Logger) *Notifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Notifier{
		webhookURL: webhookURL,
		httpClient: httpClient,
		logger:     logger,
		now:        time.Now,
	}
}

// Send posts one embed built from the notification. The recipient identity,
// plan and price when applicable, and a timestamp are always carried.
func (notifier *Notifier) Send(ctx context.Context, notification Notification) error {
	timestamp := notifier.now().UTC().Format(time.RFC3339)
	fields := []embedField{
		{Name: "User", Value: notification.Profile.Tag(), Inline: true},
		{Name: "Discord ID", Value: notification.Profile.ID, Inline: true},
		{Name: "Email", Value: notification.Profile.Email, Inline: true},
	}
	if notification.PlanName != "" {
		fields = append(fields, embedField{Name: "Plan", Value: notification.PlanName, Inline: true})
	}
	if notification.Price != "" {
		fields = append(fields, embedField{Name: "Price", Value: "$" + notification.Price, Inline: true})
	}
	fields = append(fields, embedField{Name: "Date", Value: timestamp, Inline: true})

	notificationEmbed := embed{
		Title:     notification.Title,
		Color:     embedColor,
		Fields:    fields,
		Timestamp: timestamp,
	}
	if avatarURL := notification.Profile.AvatarURL(); avatarURL != "" {
		notificationEmbed.Thumbnail = &embedThumbnail{URL: avatarURL}
	}

	encoded, encodeErr := json.Marshal(webhookPayload{Embeds: []embed{notificationEmbed}})
	if encodeErr != nil {
		return fmt.Errorf("discord.webhook.encode: %w", encodeErr)
	}

	request, requestErr := http.NewRequestWithContext(ctx, http.MethodPost, notifier.webhookURL, bytes.NewReader(encoded))
	if requestErr != nil {
		return fmt.Errorf("discord.webhook.request: %w", requestErr)
	}
	request.Header.Set("Content-Type", "application/json")

	response, doErr := notifier.httpClient.Do(request)
	if doErr != nil {
		return wrapTransportError("discord.webhook", doErr)
	}
	defer func() { _ = response.Body.Close() }()

	if response.StatusCode < 200 || response.StatusCode > 299 {
		return fmt.Errorf("discord.webhook.status_%d", response.StatusCode)
	}
	return nil
}
