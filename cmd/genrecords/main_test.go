package main

import (
	"math/rand"
	"testing"

	"ndisview/internal/directory"
	"ndisview/internal/model"
	"ndisview/internal/projector"
)

func TestGenerate_DuplicatesCollapse(t *testing.T) {
	entries, _ := generate(rand.New(rand.NewSource(7)), 40, 0.5)
	if len(entries) <= 40 {
		t.Fatalf("expected re-emitted entries, got %d", len(entries))
	}
	recs := make([]model.Record, 0, len(entries))
	for _, e := range entries {
		recs = append(recs, e.Record)
	}
	rows, stats, err := projector.Project(recs, model.RoleAdministrator, "", projector.Options{})
	if err != nil {
		t.Fatalf("generated records must project cleanly: %v", err)
	}
	if len(rows) != 40 || stats.Duplicates != len(entries)-40 {
		t.Fatalf("rows=%d stats=%+v", len(rows), stats)
	}
}

func TestContractDump_Restores(t *testing.T) {
	entries, _ := generate(rand.New(rand.NewSource(11)), 60, 0.5)
	d := contractDump("0xAdmin", entries)
	if len(d.Accounts) == 0 || d.ParticipantFunds.Sign() <= 0 {
		t.Fatalf("unexpected dump: accounts=%d funds=%s", len(d.Accounts), d.ParticipantFunds)
	}

	r, err := directory.NewResolver(directory.NewInMemoryStore(), "")
	if err != nil {
		t.Fatalf("resolver: %v", err)
	}
	if err := r.Restore(d); err != nil {
		t.Fatalf("restore: %v", err)
	}
	if r.Facts().Administrator != "0xadmin" {
		t.Fatalf("administrator not adopted: %+v", r.Facts())
	}
	role, err := r.RoleOf(entries[0].Record.RequesterAddress)
	if err != nil || role != model.RoleParticipant {
		t.Fatalf("requester not registered: %q %v", role, err)
	}
}
