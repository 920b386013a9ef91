// Package config loads service settings from the environment.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Record sources a reader can be assembled from.
const (
	SourceFile     = "file"
	SourceKafka    = "kafka"
	SourceSnapshot = "snapshot"
)

type Config struct {
	HTTPAddr string `env:"NDISVIEW_HTTP_ADDR" envDefault:":8080"`

	// Sources is an ordered list; records of each are concatenated.
	Sources      []string `env:"NDISVIEW_SOURCES" envDefault:"file" envSeparator:","`
	EventLogPath string   `env:"NDISVIEW_EVENTLOG_PATH" envDefault:"./eventlog/events.jsonl"`
	SnapshotDir  string   `env:"NDISVIEW_SNAPSHOT_DIR" envDefault:"./snapshots"`
	MaxRecords   int      `env:"NDISVIEW_MAX_RECORDS" envDefault:"10000"`

	// IntentsDir receives the intent journal when no Kafka bootstrap is set.
	IntentsDir string `env:"NDISVIEW_INTENTS_DIR" envDefault:"./intents"`

	KafkaBootstrap  string `env:"NDISVIEW_KAFKA_BOOTSTRAP"`
	EventsTopic     string `env:"NDISVIEW_EVENTS_TOPIC" envDefault:"ndis.events"`
	IntentsTopic    string `env:"NDISVIEW_INTENTS_TOPIC" envDefault:"ndis.intents"`
	TransactionalID string `env:"NDISVIEW_TRANSACTIONAL_ID" envDefault:"ndisview-intents"`
	ManifestTopic   string `env:"NDISVIEW_MANIFEST_TOPIC"`
	ManifestKey     string `env:"NDISVIEW_MANIFEST_KEY" envDefault:"ndis-snapshot-latest"`

	// DirectoryDir holds the Pebble account directory; empty keeps it in memory.
	DirectoryDir  string `env:"NDISVIEW_DIRECTORY_DIR"`
	Administrator string `env:"NDISVIEW_ADMINISTRATOR"`
	// ContractDump, when set, replaces the directory at startup.
	ContractDump string `env:"NDISVIEW_CONTRACT_DUMP"`

	ReadTimeout   time.Duration `env:"NDISVIEW_READ_TIMEOUT" envDefault:"20s"`
	SubmitTimeout time.Duration `env:"NDISVIEW_SUBMIT_TIMEOUT" envDefault:"10s"`
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Parse reads the service configuration from the environment without
// validating it, so callers can apply flag overrides first.
func Parse() (Config, error) {
	var cfg Config
	if err := ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Load parses and validates the service configuration.
func Load() (Config, error) {
	cfg, err := Parse()
	if err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks source names and the settings each source needs.
func (c *Config) Validate() error {
	if len(c.Sources) == 0 {
		return fmt.Errorf("config: no record sources")
	}
	for i, s := range c.Sources {
		s = strings.ToLower(strings.TrimSpace(s))
		c.Sources[i] = s
		switch s {
		case SourceFile:
			if c.EventLogPath == "" {
				return fmt.Errorf("config: file source needs NDISVIEW_EVENTLOG_PATH")
			}
		case SourceKafka:
			if c.KafkaBootstrap == "" {
				return fmt.Errorf("config: kafka source needs NDISVIEW_KAFKA_BOOTSTRAP")
			}
		case SourceSnapshot:
			if c.SnapshotDir == "" {
				return fmt.Errorf("config: snapshot source needs NDISVIEW_SNAPSHOT_DIR")
			}
		default:
			return fmt.Errorf("config: unknown source %q", s)
		}
	}
	if c.MaxRecords < 0 {
		return fmt.Errorf("config: max records must be >= 0")
	}
	return nil
}
