// Package slack sends incident notifications to Slack via incoming webhooks.
package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/soporte/internal/support"
)

const (
	maxDescriptionLen = 3000
	httpTimeout       = 10 * time.Second
)

// Notifier posts critical incidents to a Slack webhook.
type Notifier struct {
	webhookURL string
	client     *http.Client
	logger     log.Logger
}

// New creates a new Slack notifier. If webhookURL is empty, IncidentCreated
// is a no-op. logger may be nil (Nop).
func New(webhookURL string, logger log.Logger) *Notifier {
	if logger == nil {
		logger = log.Nop()
	}
	return &Notifier{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: httpTimeout},
		logger:     logger,
	}
}

// IncidentCreated posts a newly created incident to the configured webhook.
// If no webhook URL is configured, it returns nil immediately.
func (n *Notifier) IncidentCreated(ctx context.Context, c *support.Customer, in *support.Incident) error {
	if n.webhookURL == "" {
		return nil
	}

	msg := buildMessage(c, in)

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("slack: marshal message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("slack: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req) //nolint:gosec // G704: webhookURL is from trusted config, not user input
	if err != nil {
		return fmt.Errorf("slack: post webhook: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("slack: webhook returned %d: %s", resp.StatusCode, string(respBody))
	}

	n.logger.Info(ctx, "slack notification sent", "incident_id", in.ID, "customer_id", c.ID)
	return nil
}

func buildMessage(c *support.Customer, in *support.Incident) map[string]any {
	return map[string]any{
		"blocks": []map[string]any{
			headerBlock(in),
			{"type": "divider"},
			fieldsBlock(c, in),
			{"type": "divider"},
			descriptionBlock(in),
			{"type": "divider"},
			contextBlock(in),
		},
	}
}

func headerBlock(in *support.Incident) map[string]any {
	return map[string]any{
		"type": "header",
		"text": map[string]any{
			"type": "plain_text",
			"text": fmt.Sprintf("\U0001f534 Critical Incident #%d", in.ID),
		},
	}
}

func fieldsBlock(c *support.Customer, in *support.Incident) map[string]any {
	fields := []map[string]any{
		{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*Customer:* %s", c.Name),
		},
		{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*Email:* %s", c.Email),
		},
		{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*Phone:* %s", c.Phone),
		},
		{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*Date:* %s", in.Date),
		},
		{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*Tier:* %s", in.PriorityTier),
		},
		{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*Score:* %.2f", in.PriorityScore),
		},
	}

	return map[string]any{
		"type":   "section",
		"fields": fields,
	}
}

func descriptionBlock(in *support.Incident) map[string]any {
	text := truncate(in.Description, maxDescriptionLen)
	if text == "" {
		text = "_No description._"
	}

	return map[string]any{
		"type": "section",
		"text": map[string]any{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*Description*\n\n%s", text),
		},
	}
}

func contextBlock(in *support.Incident) map[string]any {
	elements := []map[string]any{
		{
			"type": "mrkdwn",
			"text": fmt.Sprintf("soporte • incident %d • %s", in.ID, in.CreatedAt.UTC().Format("2006-01-02 15:04 UTC")),
		},
	}

	return map[string]any{
		"type":     "context",
		"elements": elements,
	}
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit-3] + "..."
}
