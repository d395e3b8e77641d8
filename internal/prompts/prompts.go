package prompts

import (
	_ "embed"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultPack []byte

// Pack holds the text blobs the planner and composer send to the model.
type Pack struct {
	PlannerSystem string `yaml:"planner_system"`
	Planning      string `yaml:"planning"`
	Persona       string `yaml:"persona"`
	DomainNotes   string `yaml:"domain_notes"`
	Composition   string `yaml:"composition"`
}

// Default returns the pack compiled into the binary.
func Default() (Pack, error) {
	return Parse(defaultPack)
}

func Parse(raw []byte) (Pack, error) {
	var pack Pack
	if err := yaml.Unmarshal(raw, &pack); err != nil {
		return Pack{}, fmt.Errorf("decode prompt pack: %w", err)
	}
	if err := pack.Validate(); err != nil {
		return Pack{}, err
	}
	return pack, nil
}

func (p Pack) Validate() error {
	missing := make([]string, 0)
	if strings.TrimSpace(p.PlannerSystem) == "" {
		missing = append(missing, "planner_system")
	}
	if strings.TrimSpace(p.Planning) == "" {
		missing = append(missing, "planning")
	}
	if strings.TrimSpace(p.Persona) == "" {
		missing = append(missing, "persona")
	}
	if strings.TrimSpace(p.Composition) == "" {
		missing = append(missing, "composition")
	}
	if len(missing) > 0 {
		return fmt.Errorf("prompt pack missing keys: %s", strings.Join(missing, ", "))
	}
	return nil
}
