package config

import (
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds deployment settings loaded from medisuite.yml.
type Config struct {
	// Listen is the HTTP bind address for serve mode.
	Listen string `yaml:"listen,omitempty"`

	// DataDir overrides the embedded reference tables with YAML files from
	// disk. Empty means the embedded defaults.
	DataDir string `yaml:"dataDir,omitempty"`

	// OutputDir is where rendered claim forms are written. Empty keeps them
	// in memory only.
	OutputDir string `yaml:"outputDir,omitempty"`

	Inference InferenceConfig `yaml:"inference,omitempty"`
	Triage    TriageConfig    `yaml:"triage,omitempty"`
	Audit     AuditConfig     `yaml:"audit,omitempty"`
}

// InferenceConfig points at the remote inference capability. An empty
// endpoint leaves every stage on its deterministic fallback.
type InferenceConfig struct {
	Endpoint       string `yaml:"endpoint,omitempty"`
	Model          string `yaml:"model,omitempty"`
	TimeoutSeconds int    `yaml:"timeoutSeconds,omitempty"`
}

// Timeout returns the per-call timeout, zero when unset.
func (c InferenceConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// TriageConfig tunes the rule engine. Zero values use the engine defaults.
type TriageConfig struct {
	HighCostThreshold float64 `yaml:"highCostThreshold,omitempty"`
	FallbackPenalty   float64 `yaml:"fallbackPenalty,omitempty"`
	RulePenalty       float64 `yaml:"rulePenalty,omitempty"`

	// ArtifactAdvisory downgrades claim-form storage faults from run-halting
	// to review-worthy.
	ArtifactAdvisory bool `yaml:"artifactAdvisory,omitempty"`
}

// AuditConfig selects the audit sink. Empty DSN means the in-memory sink.
type AuditConfig struct {
	PostgresDSN string `yaml:"postgresDSN,omitempty"`
}

// Load attempts to read medisuite.yml or medisuite.yaml from the given
// directory. Returns a zero-value config (not an error) if no config file
// exists.
func Load(dir string) (*Config, error) {
	for _, name := range []string{"medisuite.yml", "medisuite.yaml"} {
		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		var cfg Config
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, err
		}
		return &cfg, nil
	}
	return &Config{}, nil
}
