package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"ndisview/internal/chain"
	"ndisview/internal/manifest"
	"ndisview/internal/model"
)

func withdrawals() []model.Record {
	return []model.Record{
		model.WithdrawalTuple{Requester: "0xA", Amount: model.NewWei(10), ParticipantID: "u1", Description: "physio"}.Normalize(),
		model.WithdrawalTuple{Requester: "0xB", Amount: model.NewWei(20), ParticipantID: "u2", Description: "ot", Approved: true}.Normalize(),
	}
}

func TestWriteSnapshot_WritesRecordsJSON(t *testing.T) {
	dir := t.TempDir()
	snap := NewFilesystemSnapshotter(dir)
	if err := snap.WriteSnapshot("sid", withdrawals()); err != nil {
		t.Fatalf("WriteSnapshot error: %v", err)
	}

	b, err := os.ReadFile(filepath.Join(dir, "sid", "records.json"))
	if err != nil {
		t.Fatalf("records.json missing: %v", err)
	}
	var recs []model.Record
	if err := json.Unmarshal(b, &recs); err != nil {
		t.Fatalf("bad json: %v", err)
	}
	if len(recs) != 2 || recs[1].Approved == nil || !*recs[1].Approved {
		t.Fatalf("unexpected records: %+v", recs)
	}
}

func TestSource_ReadsLatestPublished(t *testing.T) {
	dir := t.TempDir()
	snap := NewFilesystemSnapshotter(dir)
	mf := manifest.NewFilesystemManifest(dir)

	src := NewSource(dir, mf, 10)
	got, err := src.ReadRecords(context.Background(), chain.FullRange())
	if err != nil || len(got) != 0 {
		t.Fatalf("nothing published should read empty, got %v %v", got, err)
	}

	if _, err := Publish(snap, mf, 100, withdrawals()[:1]); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if _, err := Publish(snap, mf, 101, withdrawals()); err != nil {
		t.Fatalf("publish: %v", err)
	}
	got, err = src.ReadRecords(context.Background(), chain.LatestOnly())
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("want latest snapshot with 2 records, got %d", len(got))
	}
}

func TestSource_MaxRecords(t *testing.T) {
	dir := t.TempDir()
	mf := manifest.NewFilesystemManifest(dir)
	if _, err := Publish(NewFilesystemSnapshotter(dir), mf, 1, withdrawals()); err != nil {
		t.Fatalf("publish: %v", err)
	}
	_, err := NewSource(dir, mf, 1).ReadRecords(context.Background(), chain.FullRange())
	if !errors.Is(err, ErrTooManyRecords) {
		t.Fatalf("want ErrTooManyRecords, got %v", err)
	}
}

func TestSource_DanglingManifest(t *testing.T) {
	dir := t.TempDir()
	mf := manifest.NewFilesystemManifest(dir)
	if err := mf.PublishLatest("gone", 5); err != nil {
		t.Fatalf("publish: %v", err)
	}
	_, err := NewSource(dir, mf, 0).ReadRecords(context.Background(), chain.FullRange())
	if !errors.Is(err, chain.ErrConfiguration) {
		t.Fatalf("want ErrConfiguration, got %v", err)
	}
}

func TestSource_WeiAmountsAboveInt64(t *testing.T) {
	dir := t.TempDir()
	mf := manifest.NewFilesystemManifest(dir)
	ten, _ := model.ParseWei("10000000000000000000")
	rec := model.WithdrawalTuple{Requester: "0xA", Amount: ten, ParticipantID: "u1", Description: "physio"}.Normalize()
	if _, err := Publish(NewFilesystemSnapshotter(dir), mf, 7, []model.Record{rec}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	got, err := NewSource(dir, mf, 0).ReadRecords(context.Background(), chain.FullRange())
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(got) != 1 || got[0].Amount.Cmp(ten) != 0 {
		t.Fatalf("amount changed on the way through: %+v", got)
	}
}
