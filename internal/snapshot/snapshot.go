// Package snapshot stores the bounded array results of contract calls such as
// getWithdrawalRequests() and serves the latest one back as a chain.Reader.
package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"ndisview/internal/chain"
	"ndisview/internal/manifest"
	"ndisview/internal/model"
)

// ErrTooManyRecords is returned when a dump exceeds the reader's bound.
var ErrTooManyRecords = errors.New("snapshot exceeds max records")

const dumpFile = "records.json"

type Snapshotter interface {
	WriteSnapshot(snapshotID string, records []model.Record) error
}

type FilesystemSnapshotter struct {
	baseDir string
}

func NewFilesystemSnapshotter(baseDir string) *FilesystemSnapshotter {
	return &FilesystemSnapshotter{baseDir: baseDir}
}

// NewID returns a fresh snapshot id.
func NewID() string { return uuid.NewString() }

func (f *FilesystemSnapshotter) WriteSnapshot(snapshotID string, records []model.Record) error {
	if snapshotID == "" {
		return fmt.Errorf("write snapshot: empty id")
	}
	if err := os.MkdirAll(filepath.Join(f.baseDir, snapshotID), 0o755); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}
	file := filepath.Join(f.baseDir, snapshotID, dumpFile)
	out, err := os.Create(file)
	if err != nil {
		return fmt.Errorf("create: %w", err)
	}
	defer out.Close()

	if records == nil {
		records = []model.Record{}
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(records); err != nil {
		return fmt.Errorf("encode: %w", err)
	}
	return nil
}

// ReadSnapshot loads the dump written under snapshotID.
func (f *FilesystemSnapshotter) ReadSnapshot(snapshotID string) ([]model.Record, error) {
	path := filepath.Join(f.baseDir, snapshotID, dumpFile)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	var recs []model.Record
	if err := json.Unmarshal(data, &recs); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return recs, nil
}

// Publish writes records as a new snapshot and points the manifest at it.
// It returns the new snapshot id.
func Publish(snap *FilesystemSnapshotter, pub manifest.Publisher, block int64, records []model.Record) (string, error) {
	sid := NewID()
	if err := snap.WriteSnapshot(sid, records); err != nil {
		return "", err
	}
	if err := pub.PublishLatest(sid, block); err != nil {
		return "", fmt.Errorf("publish manifest: %w", err)
	}
	log.Printf("snapshot: published id=%s records=%d block=%d", sid, len(records), block)
	return sid, nil
}

// Source answers a direct state query with the latest published snapshot.
// A call result is a point-in-time read of the head state, so the block range
// is not consulted.
type Source struct {
	snap       *FilesystemSnapshotter
	manifests  manifest.Reader
	maxRecords int
}

// NewSource reads dumps under baseDir; maxRecords <= 0 disables the bound.
func NewSource(baseDir string, mr manifest.Reader, maxRecords int) *Source {
	return &Source{snap: NewFilesystemSnapshotter(baseDir), manifests: mr, maxRecords: maxRecords}
}

func (s *Source) ReadRecords(ctx context.Context, r chain.BlockRange) ([]model.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m, err := s.manifests.ReadLatest(ctx)
	if err != nil {
		if errors.Is(err, manifest.ErrNoManifest) {
			return []model.Record{}, nil
		}
		if ctx.Err() != nil {
			return nil, fmt.Errorf("read manifest: %w", ctx.Err())
		}
		return nil, fmt.Errorf("%w: %v", chain.ErrConnection, err)
	}
	recs, err := s.snap.ReadSnapshot(m.SnapshotID)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: snapshot %s referenced by manifest is missing", chain.ErrConfiguration, m.SnapshotID)
		}
		return nil, err
	}
	if s.maxRecords > 0 && len(recs) > s.maxRecords {
		return nil, fmt.Errorf("%w: %d > %d", ErrTooManyRecords, len(recs), s.maxRecords)
	}
	if recs == nil {
		recs = []model.Record{}
	}
	return recs, nil
}
