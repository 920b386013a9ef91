package config

import (
	"errors"
	"strings"
	"testing"
	"time"

	"ndisview/internal/chain"
	"ndisview/internal/eventlog"
	"ndisview/internal/manifest"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HTTPAddr != ":8080" || len(cfg.Sources) != 1 || cfg.Sources[0] != SourceFile {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.ReadTimeout != 20*time.Second || cfg.MaxRecords != 10000 {
		t.Fatalf("unexpected timeouts/bounds: %+v", cfg)
	}
}

func TestLoadSources(t *testing.T) {
	t.Setenv("NDISVIEW_SOURCES", "Snapshot, kafka")
	t.Setenv("NDISVIEW_KAFKA_BOOTSTRAP", "localhost:9092")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Sources[0] != SourceSnapshot || cfg.Sources[1] != SourceKafka {
		t.Fatalf("sources not normalized: %v", cfg.Sources)
	}
}

func TestLoadErrors(t *testing.T) {
	t.Setenv("NDISVIEW_SOURCES", "kafka")
	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "NDISVIEW_KAFKA_BOOTSTRAP") {
		t.Fatalf("kafka without bootstrap should fail, got %v", err)
	}

	t.Setenv("NDISVIEW_SOURCES", "ipfs")
	if _, err := Load(); err == nil {
		t.Fatalf("unknown source should fail")
	}

	t.Setenv("NDISVIEW_SOURCES", "file")
	t.Setenv("NDISVIEW_READ_TIMEOUT", "soon")
	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "parse env:") {
		t.Fatalf("expected parse env error, got %v", err)
	}
}

func TestReaderAssembly(t *testing.T) {
	cfg := Config{Sources: []string{SourceFile}, EventLogPath: "events.jsonl"}
	rd, err := cfg.Reader()
	if err != nil {
		t.Fatalf("reader: %v", err)
	}
	if _, ok := rd.(*eventlog.FileSource); !ok {
		t.Fatalf("single source should not be wrapped, got %T", rd)
	}

	cfg.Sources = []string{SourceSnapshot, SourceFile}
	cfg.SnapshotDir = t.TempDir()
	rd, err = cfg.Reader()
	if err != nil {
		t.Fatalf("reader: %v", err)
	}
	if _, ok := rd.(*chain.MultiReader); !ok {
		t.Fatalf("want MultiReader, got %T", rd)
	}
	if _, ok := cfg.ManifestReader().(*manifest.FilesystemManifest); !ok {
		t.Fatalf("manifest reader should default to filesystem")
	}

	cfg.Sources = []string{"ipfs"}
	if _, err := cfg.Reader(); !errors.Is(err, chain.ErrConfiguration) {
		t.Fatalf("want ErrConfiguration, got %v", err)
	}
}
