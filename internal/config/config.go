// Package config loads the kintone-sync configuration from YAML with
// environment overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/nucleus/ucl-kintone/internal/connector/kintone"
	"github.com/nucleus/ucl-kintone/internal/sink"
)

// Sink types.
const (
	SinkJSONL    = "jsonl"
	SinkPostgres = "postgres"
	SinkObject   = "object"
)

// DefaultMetricsAddr is where the schedule command serves /metrics.
const DefaultMetricsAddr = ":9108"

type Config struct {
	Kintone  kintone.Config `yaml:"kintone"`
	Sink     SinkConfig     `yaml:"sink"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Schedule ScheduleConfig `yaml:"schedule"`
}

type SinkConfig struct {
	Type string `yaml:"type"`

	// jsonl
	Path     string `yaml:"path"`
	Envelope bool   `yaml:"envelope"`

	// postgres
	DSN   string `yaml:"dsn"`
	Table string `yaml:"table"`

	// object
	Bucket string           `yaml:"bucket"`
	Prefix string           `yaml:"prefix"`
	Format string           `yaml:"format"`
	Minio  sink.MinioConfig `yaml:"minio"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

type ScheduleConfig struct {
	Cron     string `yaml:"cron"`
	FailFast bool   `yaml:"failFast"`
}

// Load reads path (optional), applies environment overrides and defaults,
// and validates the result.
func Load(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv() {
	k := &c.Kintone
	k.Domain = getEnv("KINTONE_DOMAIN", k.Domain)
	k.AuthType.Username = getEnv("KINTONE_USERNAME", k.AuthType.Username)
	k.AuthType.Password = getEnv("KINTONE_PASSWORD", k.AuthType.Password)
	if token := os.Getenv("KINTONE_API_TOKEN"); token != "" {
		k.AuthType.APIToken = token
		if k.AuthType.Option == "" {
			k.AuthType.Option = kintone.AuthAPIToken
		}
	}
	if ids := os.Getenv("KINTONE_APP_IDS"); ids != "" {
		k.AppIDs = strings.Split(ids, ",")
	}
	k.GuestSpaceID = getEnv("KINTONE_GUEST_SPACE_ID", k.GuestSpaceID)
	k.PageSize = getEnvInt("KINTONE_PAGE_SIZE", k.PageSize)

	c.Metrics.Addr = getEnv("KINTONE_METRICS_ADDR", c.Metrics.Addr)
	c.Sink.DSN = getEnv("KINTONE_SINK_DSN", c.Sink.DSN)
	c.Sink.Minio.AccessKeyID = getEnv("MINIO_ACCESS_KEY", c.Sink.Minio.AccessKeyID)
	c.Sink.Minio.SecretAccessKey = getEnv("MINIO_SECRET_KEY", c.Sink.Minio.SecretAccessKey)
}

func (c *Config) applyDefaults() {
	if c.Sink.Type == "" {
		c.Sink.Type = SinkJSONL
	}
	if c.Sink.Type == SinkPostgres && c.Sink.Table == "" {
		c.Sink.Table = sink.DefaultTable
	}
	if c.Sink.Type == SinkObject && c.Sink.Format == "" {
		c.Sink.Format = sink.FormatParquet
	}
	if c.Metrics.Addr == "" {
		c.Metrics.Addr = DefaultMetricsAddr
	}
}

func (c *Config) validate() error {
	if err := c.Kintone.Validate(); err != nil {
		return fmt.Errorf("kintone config: %w", err)
	}
	switch c.Sink.Type {
	case SinkJSONL:
	case SinkPostgres:
		if c.Sink.DSN == "" {
			return fmt.Errorf("sink.dsn is required for the postgres sink")
		}
	case SinkObject:
		if c.Sink.Bucket == "" {
			return fmt.Errorf("sink.bucket is required for the object sink")
		}
		if c.Sink.Minio.EndpointURL == "" {
			return fmt.Errorf("sink.minio.endpointUrl is required for the object sink")
		}
		if c.Sink.Format != sink.FormatParquet && c.Sink.Format != sink.FormatJSONLGz {
			return fmt.Errorf("sink.format %q is not supported", c.Sink.Format)
		}
	default:
		return fmt.Errorf("sink.type %q is not supported", c.Sink.Type)
	}
	return nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return defaultVal
}
