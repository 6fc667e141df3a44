package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the main configuration
type Config struct {
	Version    string          `yaml:"version"`
	Connectors []ConnectorSpec `yaml:"connectors"`
	Intervals  Intervals       `yaml:"intervals,omitempty"`
	Thresholds Thresholds      `yaml:"thresholds,omitempty"`
	History    HistoryConfig   `yaml:"history,omitempty"`
	Responses  ResponseConfig  `yaml:"responses,omitempty"`
	API        APIConfig       `yaml:"api,omitempty"`
	Telemetry  TelemetryConfig `yaml:"telemetry,omitempty"`
}

// ConnectorSpec names a cloud connector to run
type ConnectorSpec struct {
	Provider string `yaml:"provider"`
	Region   string `yaml:"region,omitempty"`
}

// Intervals control the five monitoring loops. Retry is the shortened sleep
// used after a failed cycle.
type Intervals struct {
	ResourceDiscovery time.Duration `yaml:"resource_discovery"`
	EventIngestion    time.Duration `yaml:"event_ingestion"`
	ModelAudit        time.Duration `yaml:"model_audit"`
	IntelRefresh      time.Duration `yaml:"intel_refresh"`
	ResponseDrain     time.Duration `yaml:"response_drain"`
	Retry             time.Duration `yaml:"retry"`
}

// Thresholds are the scoring and escalation tunables
type Thresholds struct {
	HighRisk          float64 `yaml:"high_risk"`
	ModelDrift        float64 `yaml:"model_drift"`
	AdversarialCount  int     `yaml:"adversarial_count"`
	PromoteConfidence float64 `yaml:"promote_confidence"`
	AnomalySigma      float64 `yaml:"anomaly_sigma"`
	AnomalyMinSamples int     `yaml:"anomaly_min_samples"`
}

// HistoryConfig controls the bounded event history and durable archive
type HistoryConfig struct {
	Capacity   int           `yaml:"capacity"`
	Window     time.Duration `yaml:"window"`
	ArchiveDir string        `yaml:"archive_dir"`
}

// ResponseConfig controls the response orchestrator
type ResponseConfig struct {
	QueueCapacity    int           `yaml:"queue_capacity"`
	ThreatTTL        time.Duration `yaml:"threat_ttl"`
	WALDir           string        `yaml:"wal_dir"`
	WALRetentionDays int           `yaml:"wal_retention_days"`
	PolicyDir        string        `yaml:"policy_dir,omitempty"`
}

// APIConfig controls the HTTP API server
type APIConfig struct {
	Addr string `yaml:"addr"`
}

// TelemetryConfig controls logging and OTEL export
type TelemetryConfig struct {
	OTELEndpoint string `yaml:"otel_endpoint,omitempty"`
	Debug        bool   `yaml:"debug,omitempty"`
}

// Load reads configuration from file and applies defaults
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path is intentional user input
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// Default returns a config with a single connector and all defaults applied
func Default(provider, region string) *Config {
	cfg := &Config{
		Version:    "1",
		Connectors: []ConnectorSpec{{Provider: provider, Region: region}},
	}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills unset fields with production defaults
func (c *Config) ApplyDefaults() {
	if c.Intervals.ResourceDiscovery == 0 {
		c.Intervals.ResourceDiscovery = 300 * time.Second
	}
	if c.Intervals.EventIngestion == 0 {
		c.Intervals.EventIngestion = 30 * time.Second
	}
	if c.Intervals.ModelAudit == 0 {
		c.Intervals.ModelAudit = 600 * time.Second
	}
	if c.Intervals.IntelRefresh == 0 {
		c.Intervals.IntelRefresh = 1800 * time.Second
	}
	if c.Intervals.ResponseDrain == 0 {
		c.Intervals.ResponseDrain = 10 * time.Second
	}
	if c.Intervals.Retry == 0 {
		c.Intervals.Retry = 60 * time.Second
	}
	if c.Thresholds.HighRisk == 0 {
		c.Thresholds.HighRisk = 0.7
	}
	if c.Thresholds.ModelDrift == 0 {
		c.Thresholds.ModelDrift = 0.3
	}
	if c.Thresholds.AdversarialCount == 0 {
		c.Thresholds.AdversarialCount = 10
	}
	if c.Thresholds.PromoteConfidence == 0 {
		c.Thresholds.PromoteConfidence = 0.8
	}
	if c.Thresholds.AnomalySigma == 0 {
		c.Thresholds.AnomalySigma = 3.0
	}
	if c.Thresholds.AnomalyMinSamples == 0 {
		c.Thresholds.AnomalyMinSamples = 5
	}
	if c.History.Capacity == 0 {
		c.History.Capacity = 10000
	}
	if c.History.Window == 0 {
		c.History.Window = 24 * time.Hour
	}
	if c.History.ArchiveDir == "" {
		c.History.ArchiveDir = "./vigil-data"
	}
	if c.Responses.QueueCapacity == 0 {
		c.Responses.QueueCapacity = 1024
	}
	if c.Responses.ThreatTTL == 0 {
		c.Responses.ThreatTTL = 24 * time.Hour
	}
	if c.Responses.WALDir == "" {
		c.Responses.WALDir = "./vigil-data/wal"
	}
	if c.Responses.WALRetentionDays == 0 {
		c.Responses.WALRetentionDays = 7
	}
	if c.API.Addr == "" {
		c.API.Addr = ":8080"
	}
}

// Validate ensures config has required fields. Running with zero connectors
// is a startup error, not a silent no-op.
func (c *Config) Validate() error {
	if c.Version == "" {
		return fmt.Errorf("version is required")
	}
	if len(c.Connectors) == 0 {
		return fmt.Errorf("at least one connector is required")
	}
	for i, conn := range c.Connectors {
		if conn.Provider == "" {
			return fmt.Errorf("connector %d: provider is required", i)
		}
	}
	if c.History.Capacity < 1 {
		return fmt.Errorf("history capacity must be positive")
	}
	if c.Responses.QueueCapacity < 1 {
		return fmt.Errorf("response queue capacity must be positive")
	}
	return nil
}
