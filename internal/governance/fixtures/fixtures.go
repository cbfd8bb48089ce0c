// Package fixtures loads contracts-as-code bulk-load documents from YAML, the
// "ops" operator format for seeding a tenant's contract catalog without
// driving each draft/publish/sign/activate step by hand. Grounded on the
// certenIO pack's pkg/config YAML-struct-tag loader shape.
package fixtures

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ContractFixture is one contract document plus the lifecycle metadata an
// operator bulk-load needs to drive it through governance.
type ContractFixture struct {
	ContractID      string         `yaml:"contract_id"`
	RequiredSigners []string       `yaml:"required_signers"`
	Doc             map[string]any `yaml:"doc"`
}

// Bundle is a full fixture file: every contract an operator wants to seed in
// one pass.
type Bundle struct {
	Contracts []ContractFixture `yaml:"contracts"`
}

// Load reads and parses a contract fixture bundle from path.
func Load(path string) (Bundle, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Bundle{}, fmt.Errorf("fixtures: read %s: %w", path, err)
	}

	var b Bundle

	if err := yaml.Unmarshal(raw, &b); err != nil {
		return Bundle{}, fmt.Errorf("fixtures: parse %s: %w", path, err)
	}

	for i, c := range b.Contracts {
		if c.ContractID == "" {
			return Bundle{}, fmt.Errorf("fixtures: contract at index %d is missing contract_id", i)
		}
	}

	return b, nil
}
