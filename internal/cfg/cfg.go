package cfg

import (
	"errors"
	"flag"
	"fmt"
	"time"
)

// Config adds service-specific configuration fields to the
// common cfg.Registerable and cfg.Validatable interfaces
type Config struct {
	DrainSeconds          int
	ShutdownBudgetSeconds int
	APIPort               int
	APIToken              string

	DatabaseURL string

	RulesPath string
	Workers   int

	EmbedderEndpoint     string
	ClusterIndexPath     string
	SemanticMinExemplars int
	SemanticFloor        float64

	ClaudeAPIKey             string
	ClaudeModel              string
	GenerativeConcurrency    int
	GenerativeTimeoutSeconds int
	FallbackConfidence       float64

	CriticalSeverity           int
	HighSeverity               int
	RateLimitWindowSeconds     int
	BatchSizeThreshold         int
	HighSeverityBatchThreshold int

	IncidentSeverityFloor int
	SLAHighest            time.Duration
	SLAHigh               time.Duration
	SLAMedium             time.Duration
	SLALow                time.Duration
	SLALowest             time.Duration

	SlackWebhookURL         string
	SlackSecurityWebhookURL string
	SlackSystemWebhookURL   string
	SlackIncidentWebhookURL string

	JiraBaseURL    string
	JiraProjectKey string
	JiraEmail      string
	JiraAPIToken   string
}

// RegisterFlags binds Config fields to the given FlagSet with defaults inline
func (c *Config) RegisterFlags(fs *flag.FlagSet) {
	fs.IntVar(&c.DrainSeconds, "drain-seconds", 60, "seconds to wait for in-flight requests to drain before shutdown (1..300)")
	fs.IntVar(&c.ShutdownBudgetSeconds, "shutdown-budget-seconds", 90, "total seconds for component shutdown after drain (1..300)")
	fs.IntVar(&c.APIPort, "http-port", 8080, "API listen TCP port (1..65535)")
	fs.StringVar(&c.APIToken, "api-token", "", "bearer token protecting the API (empty = no auth)")
	fs.StringVar(&c.DatabaseURL, "database-url", "", "PostgreSQL connection URL (empty = in-memory store)")
	fs.StringVar(&c.RulesPath, "rules-path", "", "YAML ruleset for the pattern stage (empty = built-in rules)")
	fs.IntVar(&c.Workers, "workers", 8, "concurrent classification workers per batch (1..128)")
	fs.StringVar(&c.EmbedderEndpoint, "embedder-endpoint", "", "embedding service URL (empty = semantic stage disabled)")
	fs.StringVar(&c.ClusterIndexPath, "cluster-index-path", "", "JSON cluster index for the semantic stage")
	fs.IntVar(&c.SemanticMinExemplars, "semantic-min-exemplars", 25, "minimum exemplar count before the semantic stage activates")
	fs.Float64Var(&c.SemanticFloor, "semantic-floor", 0.55, "minimum cluster purity for a semantic match (0..1)")
	fs.StringVar(&c.ClaudeAPIKey, "claude-api-key", "", "API key for the Claude generative stage (empty = stage disabled)")
	fs.StringVar(&c.ClaudeModel, "claude-model", "claude-sonnet-4-5", "Claude model to use")
	fs.IntVar(&c.GenerativeConcurrency, "generative-concurrency", 2, "max in-flight generative requests (1..32)")
	fs.IntVar(&c.GenerativeTimeoutSeconds, "generative-timeout-seconds", 30, "per-request generative timeout (1..300)")
	fs.Float64Var(&c.FallbackConfidence, "fallback-confidence", 0.6, "fixed confidence assigned to generative classifications (0..1)")
	fs.IntVar(&c.CriticalSeverity, "critical-severity", 8, "severity at which alerts go to the security channel (1..10)")
	fs.IntVar(&c.HighSeverity, "high-severity", 6, "severity at which alerts go to the system channel (1..10)")
	fs.IntVar(&c.RateLimitWindowSeconds, "rate-limit-window-seconds", 300, "dedup window for repeat alerts (1..86400)")
	fs.IntVar(&c.BatchSizeThreshold, "batch-size-threshold", 10, "batch size that triggers a summary notification")
	fs.IntVar(&c.HighSeverityBatchThreshold, "high-severity-batch-threshold", 5, "high-severity count that triggers a summary notification")
	fs.IntVar(&c.IncidentSeverityFloor, "incident-severity-floor", 9, "severity that opens an incident regardless of category (1..10)")
	fs.DurationVar(&c.SLAHighest, "sla-highest", time.Hour, "resolution deadline for Highest priority incidents")
	fs.DurationVar(&c.SLAHigh, "sla-high", 4*time.Hour, "resolution deadline for High priority incidents")
	fs.DurationVar(&c.SLAMedium, "sla-medium", 24*time.Hour, "resolution deadline for Medium priority incidents")
	fs.DurationVar(&c.SLALow, "sla-low", 72*time.Hour, "resolution deadline for Low priority incidents")
	fs.DurationVar(&c.SLALowest, "sla-lowest", 168*time.Hour, "resolution deadline for Lowest priority incidents")
	fs.StringVar(&c.SlackWebhookURL, "slack-webhook-url", "", "default Slack webhook URL for notifications")
	fs.StringVar(&c.SlackSecurityWebhookURL, "slack-security-webhook-url", "", "Slack webhook for the security channel (empty = default webhook)")
	fs.StringVar(&c.SlackSystemWebhookURL, "slack-system-webhook-url", "", "Slack webhook for the system channel (empty = default webhook)")
	fs.StringVar(&c.SlackIncidentWebhookURL, "slack-incident-webhook-url", "", "Slack webhook for the incident channel (empty = default webhook)")
	fs.StringVar(&c.JiraBaseURL, "jira-base-url", "", "Jira site URL for incident tickets (empty = ticketing disabled)")
	fs.StringVar(&c.JiraProjectKey, "jira-project-key", "", "Jira project for incident tickets")
	fs.StringVar(&c.JiraEmail, "jira-email", "", "Jira account email for basic auth")
	fs.StringVar(&c.JiraAPIToken, "jira-api-token", "", "Jira API token for basic auth")
}

// Validate checks all configuration fields for correctness.
// It returns an error if any field is invalid, or nil if all fields are valid.
func (c *Config) Validate() error {
	var errs []error

	// Drain and shutdown budgets
	if c.DrainSeconds <= 0 || c.DrainSeconds > 300 {
		errs = append(errs, fmt.Errorf("invalid DRAIN_SECONDS %d (must be 1..300)", c.DrainSeconds))
	}
	if c.ShutdownBudgetSeconds <= 0 || c.ShutdownBudgetSeconds > 300 {
		errs = append(errs, fmt.Errorf("invalid SHUTDOWN_BUDGET_SECONDS %d (must be 1..300)", c.ShutdownBudgetSeconds))
	}

	// Shutdown budget must be greater than drain time
	if c.ShutdownBudgetSeconds <= c.DrainSeconds {
		errs = append(errs, fmt.Errorf("SHUTDOWN_BUDGET_SECONDS %d must be greater than DRAIN_SECONDS %d", c.ShutdownBudgetSeconds, c.DrainSeconds))
	}

	// API port must be valid TCP port number
	if c.APIPort <= 0 || c.APIPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid HTTP_PORT %d (must be 1..65535)", c.APIPort))
	}

	if c.Workers <= 0 || c.Workers > 128 {
		errs = append(errs, fmt.Errorf("invalid WORKERS %d (must be 1..128)", c.Workers))
	}

	// The semantic stage needs both halves or neither.
	if (c.EmbedderEndpoint == "") != (c.ClusterIndexPath == "") {
		errs = append(errs, errors.New("EMBEDDER_ENDPOINT and CLUSTER_INDEX_PATH must be set together"))
	}
	if c.SemanticMinExemplars < 0 {
		errs = append(errs, fmt.Errorf("invalid SEMANTIC_MIN_EXEMPLARS %d (must be >= 0)", c.SemanticMinExemplars))
	}
	if c.SemanticFloor < 0 || c.SemanticFloor > 1 {
		errs = append(errs, fmt.Errorf("invalid SEMANTIC_FLOOR %v (must be 0..1)", c.SemanticFloor))
	}

	if c.ClaudeAPIKey != "" && c.ClaudeModel == "" {
		errs = append(errs, errors.New("CLAUDE_MODEL is required when CLAUDE_API_KEY is set"))
	}
	if c.GenerativeConcurrency <= 0 || c.GenerativeConcurrency > 32 {
		errs = append(errs, fmt.Errorf("invalid GENERATIVE_CONCURRENCY %d (must be 1..32)", c.GenerativeConcurrency))
	}
	if c.GenerativeTimeoutSeconds <= 0 || c.GenerativeTimeoutSeconds > 300 {
		errs = append(errs, fmt.Errorf("invalid GENERATIVE_TIMEOUT_SECONDS %d (must be 1..300)", c.GenerativeTimeoutSeconds))
	}
	if c.FallbackConfidence < 0 || c.FallbackConfidence > 1 {
		errs = append(errs, fmt.Errorf("invalid FALLBACK_CONFIDENCE %v (must be 0..1)", c.FallbackConfidence))
	}

	if c.CriticalSeverity < 1 || c.CriticalSeverity > 10 {
		errs = append(errs, fmt.Errorf("invalid CRITICAL_SEVERITY %d (must be 1..10)", c.CriticalSeverity))
	}
	if c.HighSeverity < 1 || c.HighSeverity > 10 {
		errs = append(errs, fmt.Errorf("invalid HIGH_SEVERITY %d (must be 1..10)", c.HighSeverity))
	}
	if c.HighSeverity > c.CriticalSeverity {
		errs = append(errs, fmt.Errorf("HIGH_SEVERITY %d must not exceed CRITICAL_SEVERITY %d", c.HighSeverity, c.CriticalSeverity))
	}
	if c.RateLimitWindowSeconds <= 0 || c.RateLimitWindowSeconds > 86400 {
		errs = append(errs, fmt.Errorf("invalid RATE_LIMIT_WINDOW_SECONDS %d (must be 1..86400)", c.RateLimitWindowSeconds))
	}
	if c.BatchSizeThreshold <= 0 {
		errs = append(errs, fmt.Errorf("invalid BATCH_SIZE_THRESHOLD %d (must be >= 1)", c.BatchSizeThreshold))
	}
	if c.HighSeverityBatchThreshold <= 0 {
		errs = append(errs, fmt.Errorf("invalid HIGH_SEVERITY_BATCH_THRESHOLD %d (must be >= 1)", c.HighSeverityBatchThreshold))
	}

	if c.IncidentSeverityFloor < 1 || c.IncidentSeverityFloor > 10 {
		errs = append(errs, fmt.Errorf("invalid INCIDENT_SEVERITY_FLOOR %d (must be 1..10)", c.IncidentSeverityFloor))
	}
	for _, sla := range []struct {
		name string
		d    time.Duration
	}{
		{"SLA_HIGHEST", c.SLAHighest},
		{"SLA_HIGH", c.SLAHigh},
		{"SLA_MEDIUM", c.SLAMedium},
		{"SLA_LOW", c.SLALow},
		{"SLA_LOWEST", c.SLALowest},
	} {
		if sla.d <= 0 {
			errs = append(errs, fmt.Errorf("invalid %s %v (must be positive)", sla.name, sla.d))
		}
	}

	// Ticketing needs the full Jira tuple.
	if c.JiraBaseURL != "" {
		if c.JiraProjectKey == "" {
			errs = append(errs, errors.New("JIRA_PROJECT_KEY is required when JIRA_BASE_URL is set"))
		}
		if c.JiraEmail == "" || c.JiraAPIToken == "" {
			errs = append(errs, errors.New("JIRA_EMAIL and JIRA_API_TOKEN are required when JIRA_BASE_URL is set"))
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
