package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"baseline/internal/domain"
)

// Config models baseline.yml. It is stored per project in the database and
// seeded from the default template when missing.
type Config struct {
	Project struct {
		ID   string `yaml:"id"`
		Name string `yaml:"name"`
	} `yaml:"project"`
	Workflow struct {
		// RejectionConfirmation is the exact literal a caller must echo
		// back when finally rejecting a submitted artifact.
		RejectionConfirmation string `yaml:"rejection_confirmation"`
		// WIPLimits are advisory per-lane card counts. Exceeding one
		// produces a warning, never an error.
		WIPLimits map[string]int `yaml:"wip_limits"`
	} `yaml:"workflow"`
}

// DefaultRejectionConfirmation is used when the config omits its own literal.
const DefaultRejectionConfirmation = "REJECT PERMANENTLY"

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Project.ID == "" {
		return fmt.Errorf("config.project.id is required")
	}
	if c.Workflow.RejectionConfirmation == "" {
		return fmt.Errorf("config.workflow.rejection_confirmation is required")
	}
	for lane, limit := range c.Workflow.WIPLimits {
		if _, ok := domain.ValidLane(lane); !ok {
			return fmt.Errorf("config.workflow.wip_limits references unknown lane %s", lane)
		}
		if limit <= 0 {
			return fmt.Errorf("wip limit for lane %s must be positive", lane)
		}
	}
	return nil
}

// WIPLimit returns the advisory limit for a lane, or 0 when unlimited.
func (c *Config) WIPLimit(lane domain.DeliveryLane) int {
	if c == nil || c.Workflow.WIPLimits == nil {
		return 0
	}
	return c.Workflow.WIPLimits[string(lane)]
}

// Default returns the default Config struct for a project.
func Default(projectID string) *Config {
	var cfg Config
	_ = yaml.Unmarshal([]byte(fmt.Sprintf(defaultTemplate, projectID)), &cfg)
	cfg.Project.ID = projectID
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `project:
  id: %s
  name: ""

workflow:
  rejection_confirmation: "REJECT PERMANENTLY"
  wip_limits:
    analysis: 5
    review: 3
    in_progress: 4
`
