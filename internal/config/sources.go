package config

import (
	"fmt"

	"ndisview/internal/chain"
	"ndisview/internal/eventlog"
	"ndisview/internal/manifest"
	"ndisview/internal/snapshot"
)

// ManifestReader reads snapshot manifests from Kafka when a manifest topic
// is configured, otherwise from SnapshotDir.
func (c Config) ManifestReader() manifest.Reader {
	if c.ManifestTopic != "" && c.KafkaBootstrap != "" {
		return manifest.NewKafkaReader(eventlog.SplitBrokers(c.KafkaBootstrap), c.ManifestTopic, c.ManifestKey)
	}
	return manifest.NewFilesystemManifest(c.SnapshotDir)
}

// ManifestPublisher publishes to SnapshotDir and, when configured, Kafka.
func (c Config) ManifestPublisher() manifest.Publisher {
	fs := manifest.NewFilesystemManifest(c.SnapshotDir)
	if c.ManifestTopic != "" && c.KafkaBootstrap != "" {
		return manifest.NewMultiPublisher(fs, manifest.NewKafkaManifest(eventlog.SplitBrokers(c.KafkaBootstrap), c.ManifestTopic, c.ManifestKey))
	}
	return fs
}

// Reader assembles the configured sources in order.
func (c Config) Reader() (chain.Reader, error) {
	var rs []chain.Reader
	for _, s := range c.Sources {
		switch s {
		case SourceFile:
			rs = append(rs, eventlog.NewFileSource(c.EventLogPath))
		case SourceKafka:
			rs = append(rs, eventlog.NewKafkaSource(eventlog.SplitBrokers(c.KafkaBootstrap), c.EventsTopic, c.ReadTimeout))
		case SourceSnapshot:
			rs = append(rs, snapshot.NewSource(c.SnapshotDir, c.ManifestReader(), c.MaxRecords))
		default:
			return nil, fmt.Errorf("%w: unknown source %q", chain.ErrConfiguration, s)
		}
	}
	if len(rs) == 1 {
		return rs[0], nil
	}
	return chain.NewMultiReader(rs...), nil
}
