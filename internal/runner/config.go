package runner

import (
	_ "embed"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed run_config.yaml
var runConfigYAML []byte

// Config holds the run-loop tuning knobs. Defaults ship embedded; tests zero
// the simulated-streaming sleeps.
type Config struct {
	Version int `yaml:"version"`

	Lock struct {
		TTLSeconds  int `yaml:"ttl_seconds"`
		WaitSeconds int `yaml:"wait_seconds"`
	} `yaml:"lock"`

	Stream struct {
		QueueSize                int `yaml:"queue_size"`
		HeartbeatSeconds         int `yaml:"heartbeat_seconds"`
		WorkerJoinTimeoutSeconds int `yaml:"worker_join_timeout_seconds"`
	} `yaml:"stream"`

	SimulateStreaming struct {
		ChunkRunes int `yaml:"chunk_runes"`
		MaxSleepMS int `yaml:"max_sleep_ms"`
	} `yaml:"simulate_streaming"`

	Input struct {
		SystemPrompt string `yaml:"system_prompt"`
	} `yaml:"input"`
}

func LoadConfig() (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(runConfigYAML, &cfg); err != nil {
		return nil, fmt.Errorf("decode run config: %w", err)
	}
	if cfg.Stream.QueueSize <= 0 {
		cfg.Stream.QueueSize = 64
	}
	if cfg.Stream.HeartbeatSeconds <= 0 {
		cfg.Stream.HeartbeatSeconds = 15
	}
	if cfg.Stream.WorkerJoinTimeoutSeconds <= 0 {
		cfg.Stream.WorkerJoinTimeoutSeconds = 10
	}
	if cfg.Lock.TTLSeconds <= 0 {
		cfg.Lock.TTLSeconds = 300
	}
	if cfg.Lock.WaitSeconds <= 0 {
		cfg.Lock.WaitSeconds = 3
	}
	return &cfg, nil
}

func (c *Config) LockTTL() time.Duration    { return time.Duration(c.Lock.TTLSeconds) * time.Second }
func (c *Config) LockWait() time.Duration   { return time.Duration(c.Lock.WaitSeconds) * time.Second }
func (c *Config) Heartbeat() time.Duration  { return time.Duration(c.Stream.HeartbeatSeconds) * time.Second }
func (c *Config) WorkerJoin() time.Duration {
	return time.Duration(c.Stream.WorkerJoinTimeoutSeconds) * time.Second
}
