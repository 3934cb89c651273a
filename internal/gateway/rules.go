package gateway

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

// ThreatRule is one (matcher, name) pair in the ordered pattern table.
// First match wins; rules are not cumulative.
type ThreatRule struct {
	Name    string
	Pattern *regexp.Regexp
}

// RiskRule maps a path-substring pattern to a base score and level.
// More specific patterns must be listed before general ones.
type RiskRule struct {
	Pattern *regexp.Regexp
	Score   int
	Level   RiskLevel
}

// DefaultThreatRules returns the compiled-in malicious pattern set:
// SQL-injection tokens, script/event-handler markup and shell
// metacharacters. Order matters only for which rule name gets reported.
func DefaultThreatRules() []ThreatRule {
	return []ThreatRule{
		{Name: "sql_injection", Pattern: regexp.MustCompile(`(?i)(\bUNION\b|\bSELECT\b|\bDROP\b|\bINSERT\b|\bUPDATE\b|['"` + "`" + `]\s*or\s*['"` + "`" + `])`)},
		{Name: "xss", Pattern: regexp.MustCompile(`(?i)(<script\b|onerror=|onload=|alert\(|<img\b)`)},
		{Name: "command_injection", Pattern: regexp.MustCompile(`(?i)(;|\|\||&&|\bexec\b|\bbash\b|\bsh\b)`)},
	}
}

// DefaultRiskRules returns the compiled-in risk table. Administrative
// paths score highest, then authentication, then the downstream services.
func DefaultRiskRules() []RiskRule {
	return []RiskRule{
		{Pattern: regexp.MustCompile(`(?i)/admin`), Score: 90, Level: RiskHigh},
		{Pattern: regexp.MustCompile(`(?i)/auth/login`), Score: 70, Level: RiskHigh},
		{Pattern: regexp.MustCompile(`(?i)/api/service-b`), Score: 60, Level: RiskMedium},
		{Pattern: regexp.MustCompile(`(?i)/api/service-a`), Score: 40, Level: RiskMedium},
	}
}

// ruleFile is the YAML schema for externally-loaded rule tables.
type ruleFile struct {
	ThreatRules []struct {
		Name    string `yaml:"name"`
		Pattern string `yaml:"pattern"`
	} `yaml:"threat_rules"`
	RiskRules []struct {
		Pattern string `yaml:"pattern"`
		Score   int    `yaml:"score"`
		Level   string `yaml:"level"`
	} `yaml:"risk_rules"`
}

// LoadRules parses a YAML rule table. Either section may be empty, in
// which case the compiled-in defaults for that section apply.
func LoadRules(path string) ([]ThreatRule, []RiskRule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("read rules file: %w", err)
	}
	return ParseRules(data)
}

// ParseRules parses YAML rule data.
func ParseRules(data []byte) ([]ThreatRule, []RiskRule, error) {
	var rf ruleFile
	if err := yaml.Unmarshal(data, &rf); err != nil {
		return nil, nil, fmt.Errorf("parse rules: %w", err)
	}

	threats := DefaultThreatRules()
	if len(rf.ThreatRules) > 0 {
		threats = make([]ThreatRule, 0, len(rf.ThreatRules))
		for _, r := range rf.ThreatRules {
			if r.Name == "" {
				return nil, nil, fmt.Errorf("threat rule without a name")
			}
			re, err := regexp.Compile("(?i)" + r.Pattern)
			if err != nil {
				return nil, nil, fmt.Errorf("threat rule %q: %w", r.Name, err)
			}
			threats = append(threats, ThreatRule{Name: r.Name, Pattern: re})
		}
	}

	risks := DefaultRiskRules()
	if len(rf.RiskRules) > 0 {
		risks = make([]RiskRule, 0, len(rf.RiskRules))
		for _, r := range rf.RiskRules {
			re, err := regexp.Compile("(?i)" + r.Pattern)
			if err != nil {
				return nil, nil, fmt.Errorf("risk rule %q: %w", r.Pattern, err)
			}
			level := RiskLevel(r.Level)
			switch level {
			case RiskLow, RiskMedium, RiskHigh:
			default:
				return nil, nil, fmt.Errorf("risk rule %q: unknown level %q", r.Pattern, r.Level)
			}
			risks = append(risks, RiskRule{Pattern: re, Score: r.Score, Level: level})
		}
	}

	return threats, risks, nil
}
