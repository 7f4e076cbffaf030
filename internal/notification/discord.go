package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Embed colours by level.
const (
	colorInfo     = 0x2ECC71
	colorWarning  = 0xF1C40F
	colorCritical = 0xE74C3C
)

// DiscordNotifier posts alerts as embeds to a Discord webhook.
type DiscordNotifier struct {
	url    string
	client *http.Client
}

// NewDiscordNotifier creates a Discord notifier for a channel webhook URL.
func NewDiscordNotifier(webhookURL string) *DiscordNotifier {
	return &DiscordNotifier{
		url:    webhookURL,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

type discordEmbedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

type discordFooter struct {
	Text string `json:"text"`
}

type discordEmbed struct {
	Title       string              `json:"title"`
	Description string              `json:"description,omitempty"`
	Color       int                 `json:"color"`
	Fields      []discordEmbedField `json:"fields,omitempty"`
	Footer      *discordFooter      `json:"footer,omitempty"`
	Timestamp   string              `json:"timestamp"`
}

func (d *DiscordNotifier) Send(ctx context.Context, alert Alert) error {
	embed := discordEmbed{
		Title:       alert.Title,
		Description: alert.Message,
		Color:       colorInfo,
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
	}
	switch alert.Level {
	case AlertWarning:
		embed.Color = colorWarning
	case AlertCritical:
		embed.Color = colorCritical
	}
	for _, f := range alert.Fields {
		embed.Fields = append(embed.Fields, discordEmbedField{Name: f.Name, Value: f.Value, Inline: true})
	}
	if alert.SetupID != "" {
		embed.Footer = &discordFooter{Text: alert.SetupID}
	}

	body, err := json.Marshal(map[string]interface{}{"embeds": []discordEmbed{embed}})
	if err != nil {
		return fmt.Errorf("discord: marshal: %w", err)
	}
	return postJSON(ctx, d.client, d.url, body, "discord")
}
