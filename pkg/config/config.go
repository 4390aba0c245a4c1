// Package config loads the YAML run configuration for an abcsim sampling
// job: which algorithm to run, its hyperparameters, backend topology, and
// reporting settings.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level sampling-job configuration.
type Config struct {
	Run       RunConfig       `yaml:"run"`
	Algorithm AlgorithmConfig `yaml:"algorithm"`
	Backend   BackendConfig   `yaml:"backend"`
	Reporting ReportingConfig `yaml:"reporting"`
}

// RunConfig carries general framework settings.
type RunConfig struct {
	Name      string `yaml:"name"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
	Seed      int64  `yaml:"seed"`
}

// AlgorithmConfig selects one of the eight drivers and carries the
// hyperparameters common across all of them; the fields specific to a
// single algorithm live in their own sub-structs and are only consulted
// when Name selects that algorithm.
type AlgorithmConfig struct {
	Name             string    `yaml:"name"` // rejection, pmcabc, pmc, sabc, abcsubsim, rsmcabc, apmcabc, smcabc
	N                int       `yaml:"n"`
	Steps            int       `yaml:"steps"`
	EpsilonInit      []float64 `yaml:"epsilon_init"`
	NSamplesPerParam int       `yaml:"n_samples_per_param"`
	Epochs           int       `yaml:"epochs"`
	FullOutput       int       `yaml:"full_output"`
	CovFactor        float64   `yaml:"cov_factor"`

	PMCABC    PMCABCTuning    `yaml:"pmcabc"`
	SABC      SABCTuning      `yaml:"sabc"`
	ABCsubsim ABCsubsimTuning `yaml:"abcsubsim"`
	RSMCABC   RSMCABCTuning   `yaml:"rsmcabc"`
	APMCABC   APMCABCTuning   `yaml:"apmcabc"`
	SMCABC    SMCABCTuning    `yaml:"smcabc"`
}

// PMCABCTuning holds PMC-ABC's epsilon-percentile schedule hyperparameter.
type PMCABCTuning struct {
	EpsilonPercentile float64 `yaml:"epsilon_percentile"`
}

// SABCTuning holds Simulated-Annealing ABC's annealing hyperparameters.
type SABCTuning struct {
	Beta     float64 `yaml:"beta"`
	Delta    float64 `yaml:"delta"`
	V        float64 `yaml:"v"`
	ArCutoff float64 `yaml:"ar_cutoff"`
	Resample int     `yaml:"resample"`
}

// ABCsubsimTuning holds subset-simulation's chain hyperparameters.
type ABCsubsimTuning struct {
	ChainLength    int     `yaml:"chain_length"`
	ApChangeCutoff float64 `yaml:"ap_change_cutoff"`
}

// RSMCABCTuning holds replenishment SMC-ABC's hyperparameters.
type RSMCABCTuning struct {
	Alpha        float64 `yaml:"alpha"`
	RConstant    float64 `yaml:"r_constant"`
	EpsilonFinal float64 `yaml:"epsilon_final"`
}

// APMCABCTuning holds Lenormand adaptive-PMC-ABC's hyperparameters.
type APMCABCTuning struct {
	Alpha            float64 `yaml:"alpha"`
	AcceptanceCutoff float64 `yaml:"acceptance_cutoff"`
}

// SMCABCTuning holds Del Moral SMC-ABC's hyperparameters.
type SMCABCTuning struct {
	EssAlpha     float64 `yaml:"ess_alpha"`
	ResampleFrac float64 `yaml:"resample_frac"`
	EpsilonFinal float64 `yaml:"epsilon_final"`
}

// BackendConfig selects and sizes the compute backend.
type BackendConfig struct {
	Kind        string `yaml:"kind"` // only "local" is implemented
	Concurrency int    `yaml:"concurrency"`
}

// ReportingConfig controls journal/metrics output.
type ReportingConfig struct {
	OutputDir     string        `yaml:"output_dir"`
	MetricsAddr   string        `yaml:"metrics_addr"`
	FlushInterval time.Duration `yaml:"flush_interval"`
}

// DefaultConfig returns a runnable configuration for a small rejection-ABC
// smoke run.
func DefaultConfig() *Config {
	return &Config{
		Run: RunConfig{
			Name:      "abcsim-run",
			LogLevel:  "info",
			LogFormat: "text",
			Seed:      1,
		},
		Algorithm: AlgorithmConfig{
			Name:             "rejection",
			N:                100,
			Steps:            1,
			EpsilonInit:      []float64{1.0},
			NSamplesPerParam: 1,
			Epochs:           1000,
			FullOutput:       0,
			CovFactor:        1.0,
			PMCABC:           PMCABCTuning{EpsilonPercentile: 0.5},
			SABC:             SABCTuning{Beta: 2.0, Delta: 0.2, V: 0.3, ArCutoff: 0.05, Resample: 20},
			ABCsubsim:        ABCsubsimTuning{ChainLength: 5, ApChangeCutoff: 0.1},
			RSMCABC:          RSMCABCTuning{Alpha: 0.3, RConstant: 0.01, EpsilonFinal: 0.01},
			APMCABC:          APMCABCTuning{Alpha: 0.5, AcceptanceCutoff: 0.05},
			SMCABC:           SMCABCTuning{EssAlpha: 0.9, ResampleFrac: 0.5, EpsilonFinal: 0.01},
		},
		Backend: BackendConfig{
			Kind:        "local",
			Concurrency: 4,
		},
		Reporting: ReportingConfig{
			OutputDir:     "./reports",
			MetricsAddr:   ":9100",
			FlushInterval: 5 * time.Second,
		},
	}
}

// Load reads configuration from a YAML file, falling back to DefaultConfig
// when path is empty or the file does not exist. Environment variables
// referenced in the file (e.g. ${ABCSIM_SEED}) are expanded before parsing.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		path = "abcsim.yaml"
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	expanded := []byte(os.ExpandEnv(string(data)))
	if err := yaml.Unmarshal(expanded, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return cfg, nil
}

// Save writes the configuration to a YAML file.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Validate checks the settings Load cannot validate structurally.
func (c *Config) Validate() error {
	if c.Algorithm.N < 1 {
		return fmt.Errorf("algorithm.n must be at least 1")
	}
	if c.Algorithm.Steps < 1 {
		return fmt.Errorf("algorithm.steps must be at least 1")
	}
	if c.Algorithm.Epochs < 1 {
		return fmt.Errorf("algorithm.epochs must be at least 1")
	}
	if len(c.Algorithm.EpsilonInit) != 1 && len(c.Algorithm.EpsilonInit) != c.Algorithm.Steps {
		return fmt.Errorf("algorithm.epsilon_init must have length 1 or steps")
	}
	if c.Backend.Concurrency < 1 {
		return fmt.Errorf("backend.concurrency must be at least 1")
	}
	if c.Reporting.OutputDir == "" {
		return fmt.Errorf("reporting.output_dir is required")
	}
	switch c.Algorithm.Name {
	case "rejection", "pmcabc", "pmc", "sabc", "abcsubsim", "rsmcabc", "apmcabc", "smcabc":
	default:
		return fmt.Errorf("algorithm.name %q is not a known algorithm", c.Algorithm.Name)
	}
	return nil
}
