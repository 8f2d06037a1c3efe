package policy

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// fixtureFile is the on-disk shape of one YAML policy fixture: a policy
// with its stages/conditions/bindings inline (Policy's own yaml keys), even
// though gorm stores those as separate normalized rows (`gorm:"-"`) once
// loaded into storage.
type fixtureFile struct {
	Policy `yaml:",inline"`
}

// LoadFixtureDir reads every *.yaml/*.yml file in dir as one ApprovalPolicy
// fixture, for seeding a non-production environment or CLI --dry-run match
// against a policy set without a database. Returned policies carry their
// Conditions/Stages/Bindings populated in-memory (normally gorm columns
// tagged "-" and loaded via a separate child-table query).
func LoadFixtureDir(dir string) ([]Policy, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var policies []Policy
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := filepath.Ext(e.Name())
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		p, err := loadFixtureFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("policy: load %s: %w", e.Name(), err)
		}
		policies = append(policies, p)
	}
	return policies, nil
}

func loadFixtureFile(path string) (Policy, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Policy{}, err
	}
	var f fixtureFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return Policy{}, err
	}
	return f.Policy, nil
}
