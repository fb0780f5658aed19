// Package slack delivers alert intents to Slack via incoming webhooks, one
// webhook per channel class.
package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"
	"unicode/utf8"

	"github.com/linnemanlabs/klaxon/internal/classify"
	"github.com/linnemanlabs/klaxon/internal/notify"
)

const (
	maxMessageLen = 500
	httpTimeout   = 10 * time.Second
)

// Notifier posts intents to per-channel-class webhooks. Classes without a
// configured webhook fall back to the default; with no default either, Send
// is a no-op for that class.
type Notifier struct {
	webhooks   map[notify.Channel]string
	defaultURL string
	client     *http.Client
}

// New creates a Slack notifier. defaultURL may be empty; overrides may cover
// any subset of channel classes.
func New(defaultURL string, overrides map[notify.Channel]string) *Notifier {
	return &Notifier{
		webhooks:   overrides,
		defaultURL: defaultURL,
		client:     &http.Client{Timeout: httpTimeout},
	}
}

// Send posts the intent to the webhook for its channel class.
func (n *Notifier) Send(ctx context.Context, intent *notify.Intent) error {
	url := n.defaultURL
	if u, ok := n.webhooks[intent.Channel]; ok && u != "" {
		url = u
	}
	if url == "" {
		return nil
	}

	var msg map[string]any
	if intent.Kind == notify.KindBatchSummary {
		msg = buildSummaryMessage(intent)
	} else {
		msg = buildAlertMessage(intent)
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("slack: marshal message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("slack: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req) //nolint:gosec // G704: webhook URL is from trusted config, not user input
	if err != nil {
		return fmt.Errorf("slack: post webhook: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("slack: webhook returned %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}

func buildAlertMessage(in *notify.Intent) map[string]any {
	return map[string]any{
		"blocks": []map[string]any{
			headerBlock(in),
			{"type": "divider"},
			fieldsBlock(in),
			messageBlock(in),
			contextBlock(in),
		},
	}
}

func buildSummaryMessage(in *notify.Intent) map[string]any {
	return map[string]any{
		"blocks": []map[string]any{
			{
				"type": "header",
				"text": map[string]any{
					"type": "plain_text",
					"text": "\U0001f4ca Batch Processing Summary",
				},
			},
			{"type": "divider"},
			summaryFieldsBlock(in.Batch),
			categoryBlock(in.Batch),
			contextBlock(in),
		},
	}
}

func headerBlock(in *notify.Intent) map[string]any {
	emoji, level := severityBadge(in.Severity)
	return map[string]any{
		"type": "header",
		"text": map[string]any{
			"type": "plain_text",
			"text": fmt.Sprintf("%s %s Alert - %s", emoji, level, in.Category),
		},
	}
}

func fieldsBlock(in *notify.Intent) map[string]any {
	return map[string]any{
		"type": "section",
		"fields": []map[string]any{
			{"type": "mrkdwn", "text": fmt.Sprintf("*Category:*\n%s", in.Category)},
			{"type": "mrkdwn", "text": fmt.Sprintf("*Source:*\n%s", in.Source)},
			{"type": "mrkdwn", "text": fmt.Sprintf("*Severity:*\n%d/10", in.Severity)},
			{"type": "mrkdwn", "text": fmt.Sprintf("*Fingerprint:*\n`%s`", in.Fingerprint)},
		},
	}
}

func messageBlock(in *notify.Intent) map[string]any {
	return map[string]any{
		"type": "section",
		"text": map[string]any{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*Log Message:*\n```%s```", truncate(in.Summary, maxMessageLen)),
		},
	}
}

func summaryFieldsBlock(b *notify.BatchReport) map[string]any {
	return map[string]any{
		"type": "section",
		"fields": []map[string]any{
			{"type": "mrkdwn", "text": fmt.Sprintf("*Logs Processed:*\n%d", b.Total)},
			{"type": "mrkdwn", "text": fmt.Sprintf("*Critical (8+):*\n\U0001f6a8 %d", b.Critical)},
			{"type": "mrkdwn", "text": fmt.Sprintf("*High (6-7):*\n⚠️ %d", b.HighSeverity)},
			{"type": "mrkdwn", "text": fmt.Sprintf("*Suppressed:*\n%d", b.Suppressed)},
		},
	}
}

func categoryBlock(b *notify.BatchReport) map[string]any {
	cats := make([]classify.Category, 0, len(b.ByCategory))
	for c := range b.ByCategory {
		cats = append(cats, c)
	}
	sort.Slice(cats, func(i, j int) bool { return cats[i] < cats[j] })

	var text bytes.Buffer
	text.WriteString("*Distribution:*\n")
	for _, c := range cats {
		fmt.Fprintf(&text, "• %s: %d\n", c, b.ByCategory[c])
	}
	return map[string]any{
		"type": "section",
		"text": map[string]any{"type": "mrkdwn", "text": text.String()},
	}
}

func contextBlock(in *notify.Intent) map[string]any {
	return map[string]any{
		"type": "context",
		"elements": []map[string]any{
			{
				"type": "mrkdwn",
				"text": fmt.Sprintf("klaxon • %s • %s", in.Kind, in.CreatedAt.UTC().Format("2006-01-02 15:04 UTC")),
			},
		},
	}
}

func severityBadge(severity int) (emoji, level string) {
	switch {
	case severity >= 8:
		return "\U0001f6a8", "CRITICAL"
	case severity >= 6:
		return "⚠️", "HIGH"
	case severity >= 4:
		return "ℹ️", "MEDIUM"
	default:
		return "✅", "LOW"
	}
}

// truncate shortens s to at most limit bytes, cutting on a rune boundary
// so the payload stays valid UTF-8.
func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := limit - 3
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
