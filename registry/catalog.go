package registry

import (
	_ "embed"
	"fmt"

	"github.com/hupe1980/invoicemesh/core"
	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultCatalog []byte

type catalogFile struct {
	Agents []core.AgentDescriptor `yaml:"agents"`
}

// DefaultCatalog returns the built-in agent descriptors.
func DefaultCatalog() ([]core.AgentDescriptor, error) {
	return ParseCatalog(defaultCatalog)
}

// ParseCatalog decodes a YAML catalog and validates every descriptor.
func ParseCatalog(data []byte) ([]core.AgentDescriptor, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse agent catalog: %w", err)
	}
	seen := make(map[string]struct{}, len(f.Agents))
	for i := range f.Agents {
		d := &f.Agents[i]
		if d.Weight == 0 {
			d.Weight = 1.0
		}
		if err := validateDescriptor(*d); err != nil {
			return nil, err
		}
		if _, dup := seen[d.Name]; dup {
			return nil, fmt.Errorf("parse agent catalog: duplicate agent %q", d.Name)
		}
		seen[d.Name] = struct{}{}
	}
	return f.Agents, nil
}

func validateDescriptor(d core.AgentDescriptor) error {
	switch {
	case d.Name == "":
		return fmt.Errorf("%w: empty name", core.ErrInvalidUpdate)
	case d.Weight <= 0:
		return fmt.Errorf("%w: %s: weight must be positive", core.ErrInvalidUpdate, d.Name)
	case d.Timeout <= 0:
		return fmt.Errorf("%w: %s: timeout must be positive", core.ErrInvalidUpdate, d.Name)
	case d.MaxRetries < 0:
		return fmt.Errorf("%w: %s: max retries must not be negative", core.ErrInvalidUpdate, d.Name)
	case len(d.Specializations) == 0:
		return fmt.Errorf("%w: %s: at least one specialization required", core.ErrInvalidUpdate, d.Name)
	case d.UsesModel && d.PromptTemplate == "":
		return fmt.Errorf("%w: %s: prompt required", core.ErrInvalidUpdate, d.Name)
	}
	return nil
}
