package classify

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v2"
)

// Rule maps an ordered list of regular-expression triggers to a category.
// Rules are evaluated in declaration order; the first trigger that matches
// wins.
type Rule struct {
	Category Category `yaml:"category"`
	Triggers []string `yaml:"triggers"`
}

type compiledRule struct {
	category Category
	triggers []*regexp.Regexp
}

// PatternClassifier is the first cascade stage: a deterministic, ordered rule
// matcher. It holds only precompiled state and is safe for concurrent use.
type PatternClassifier struct {
	rules []compiledRule
}

// NewPattern compiles the given rules. Triggers are matched case-insensitively.
func NewPattern(rules []Rule) (*PatternClassifier, error) {
	if len(rules) == 0 {
		return nil, fmt.Errorf("pattern classifier requires at least one rule")
	}
	compiled := make([]compiledRule, 0, len(rules))
	for i, r := range rules {
		if _, err := ParseCategory(string(r.Category)); err != nil {
			return nil, fmt.Errorf("rule %d: %w", i, err)
		}
		if len(r.Triggers) == 0 {
			return nil, fmt.Errorf("rule %d (%s): no triggers", i, r.Category)
		}
		cr := compiledRule{category: r.Category, triggers: make([]*regexp.Regexp, 0, len(r.Triggers))}
		for _, t := range r.Triggers {
			re, err := regexp.Compile("(?i)" + t)
			if err != nil {
				return nil, fmt.Errorf("rule %d (%s): trigger %q: %w", i, r.Category, t, err)
			}
			cr.triggers = append(cr.triggers, re)
		}
		compiled = append(compiled, cr)
	}
	return &PatternClassifier{rules: compiled}, nil
}

// Stage implements Classifier.
func (p *PatternClassifier) Stage() Stage { return StagePattern }

// Classify runs the ordered rule list against the message. A match yields
// confidence 1.0 with the matched text as the signal; no match yields the
// explicit no-result sentinel.
func (p *PatternClassifier) Classify(_ context.Context, message string) (Outcome, bool, error) {
	for _, r := range p.rules {
		for _, re := range r.triggers {
			if m := re.FindString(message); m != "" {
				return Outcome{
					Category:   r.category,
					Confidence: 1.0,
					Signals:    []string{strings.ToLower(m)},
				}, true, nil
			}
		}
	}
	return Outcome{}, false, nil
}

// LoadRules reads an operator-supplied ruleset file. The file replaces the
// built-in defaults wholesale so rule order stays explicit.
func LoadRules(path string) ([]Rule, error) {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is from trusted config, not user input
	if err != nil {
		return nil, fmt.Errorf("read ruleset: %w", err)
	}
	var doc struct {
		Rules []Rule `yaml:"rules"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse ruleset: %w", err)
	}
	if len(doc.Rules) == 0 {
		return nil, fmt.Errorf("ruleset %s contains no rules", path)
	}
	return doc.Rules, nil
}

// DefaultRules is the built-in ruleset. Security rules come first so a
// message matching both a security trigger and a routine trigger always
// resolves to the security category.
func DefaultRules() []Rule {
	return []Rule{
		{Category: SecurityAlert, Triggers: []string{
			`(multiple )?failed (root )?login attempts`,
			`login failures? occurred`,
			`unauthorized access`,
			`blocked due to (a )?potential attack`,
			`(admin|privilege) (access )?escalation detected`,
			`security breach`,
			`brute[- ]force`,
		}},
		{Category: CriticalError, Triggers: []string{
			`system crashed`,
			`kernel panic`,
			`fatal error`,
			`restarted unexpectedly`,
			`data corruption detected`,
		}},
		{Category: ResourceUsage, Triggers: []string{
			`(disk|memory|cpu) (space |usage )?(limit |threshold )?exceeded`,
			`out of memory`,
			`quota exceeded`,
			`disk space (is )?(critically )?low`,
		}},
		{Category: WorkflowError, Triggers: []string{
			`(process|generation|escalation|task|job) .*(aborted|failed)`,
			`failed repeatedly`,
			`pipeline .*stalled`,
		}},
		{Category: UserAction, Triggers: []string{
			`user user\d+ logged (in|out)`,
			`account with id .* created by`,
			`password changed for user`,
		}},
		{Category: SystemNotification, Triggers: []string{
			`backup (started|ended) at`,
			`backup completed successfully`,
			`system updated to version`,
			`file .* uploaded successfully by user`,
			`disk cleanup completed successfully`,
			`system reboot initiated by user`,
		}},
		{Category: HTTPStatus, Triggers: []string{
			`(GET|POST|PUT|DELETE|PATCH) /\S+ HTTP/\d\.\d`,
			`rcode\s+\d{3}`,
			`returned \d{3} .*error`,
		}},
		{Category: DeprecationWarning, Triggers: []string{
			`no longer supported`,
			`will be (retired|deprecated) in version`,
			`deprecated`,
		}},
	}
}
