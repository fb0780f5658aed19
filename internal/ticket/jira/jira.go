// Package jira files Jira issues for escalated incidents via the REST v2 API.
package jira

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/linnemanlabs/klaxon/internal/incident"
)

// automationLabel marks issues filed by this service so dashboards and
// notification rules can filter them.
const automationLabel = "klaxon-automated"

// Config holds Jira connection settings.
type Config struct {
	// BaseURL is the Jira site root, e.g. https://example.atlassian.net.
	BaseURL string
	// ProjectKey is the target project, e.g. OPS.
	ProjectKey string
	// Email and APIToken authenticate via basic auth.
	Email    string
	APIToken string
	// IssueType defaults to "Incident".
	IssueType string
}

// Ticketer files Jira issues. Implements incident.Ticketer.
type Ticketer struct {
	cfg    Config
	client *http.Client
}

// New creates a Jira ticketer.
func New(cfg Config) *Ticketer {
	if cfg.IssueType == "" {
		cfg.IssueType = "Incident"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Ticketer{
		cfg:    cfg,
		client: &http.Client{Timeout: 15 * time.Second},
	}
}

type issueFields struct {
	Project     nameRef   `json:"project"`
	Summary     string    `json:"summary"`
	Description string    `json:"description"`
	IssueType   typeRef   `json:"issuetype"`
	Priority    *priorRef `json:"priority,omitempty"`
	Labels      []string  `json:"labels"`
}

type nameRef struct {
	Key string `json:"key"`
}

type typeRef struct {
	Name string `json:"name"`
}

type priorRef struct {
	Name string `json:"name"`
}

type createRequest struct {
	Fields issueFields `json:"fields"`
}

type createResponse struct {
	Key string `json:"key"`
}

// CreateTicket files an issue for the incident and returns the issue key.
func (t *Ticketer) CreateTicket(ctx context.Context, inc *incident.Incident) (string, error) {
	payload := createRequest{
		Fields: issueFields{
			Project:     nameRef{Key: t.cfg.ProjectKey},
			Summary:     fmt.Sprintf("[%s] %s from %s", inc.Category, inc.Priority, inc.Source),
			Description: buildDescription(inc),
			IssueType:   typeRef{Name: t.cfg.IssueType},
			Priority:    &priorRef{Name: string(inc.Priority)},
			Labels:      []string{automationLabel},
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal issue: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		t.cfg.BaseURL+"/rest/api/2/issue", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(t.cfg.Email, t.cfg.APIToken)

	resp, err := t.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("post issue: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return "", fmt.Errorf("jira returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var created createResponse
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if created.Key == "" {
		return "", fmt.Errorf("jira response missing issue key")
	}
	return created.Key, nil
}

func buildDescription(inc *incident.Incident) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Automated incident %s\n\n", inc.ID)
	fmt.Fprintf(&b, "*Category:* %s\n", inc.Category)
	fmt.Fprintf(&b, "*Source:* %s\n", inc.Source)
	fmt.Fprintf(&b, "*Severity:* %d/10\n", inc.Severity)
	fmt.Fprintf(&b, "*SLA deadline:* %s\n\n", inc.DueAt.Format(time.RFC3339))
	fmt.Fprintf(&b, "{noformat}\n%s\n{noformat}\n", inc.Summary)
	return b.String()
}
