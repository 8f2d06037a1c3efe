package fraud

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// ruleFixture is the on-disk shape of one declared rule: conditions inline
// as YAML, marshaled to Rule.ConditionsJSON on load since the DB column is
// the normalized storage form.
type ruleFixture struct {
	ID               string      `yaml:"id"`
	AppliesToContext string      `yaml:"applies_to_context"`
	Severity         string      `yaml:"severity"`
	Action           Action      `yaml:"action"`
	Priority         int         `yaml:"priority"`
	ReasonCode       string      `yaml:"reason_code"`
	CreateCase       bool        `yaml:"create_case"`
	Conditions       []Condition `yaml:"conditions"`
}

// LoadRuleFixtureDir reads every *.yaml/*.yml file in dir as one declared
// rule, for seeding a non-production rules version or CLI dry-run without a
// database (mirrors internal/policy.LoadFixtureDir's bootstrap role).
func LoadRuleFixtureDir(dir string) ([]Rule, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var rules []Rule
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := filepath.Ext(e.Name())
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		rule, err := loadRuleFixtureFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("fraud: load %s: %w", e.Name(), err)
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

func loadRuleFixtureFile(path string) (Rule, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Rule{}, err
	}
	var f ruleFixture
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return Rule{}, err
	}
	conditionsJSON, err := json.Marshal(f.Conditions)
	if err != nil {
		return Rule{}, fmt.Errorf("fraud: encode conditions: %w", err)
	}
	return Rule{
		ID:               f.ID,
		AppliesToContext: f.AppliesToContext,
		Severity:         f.Severity,
		Action:           f.Action,
		Priority:         f.Priority,
		ReasonCode:       f.ReasonCode,
		CreateCase:       f.CreateCase,
		ConditionsJSON:   string(conditionsJSON),
	}, nil
}
