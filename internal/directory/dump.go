package directory

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"ndisview/internal/model"
)

// Dump is a point-in-time read of the contract's account state: ndia(),
// participantFunds() and the registered participants and providers.
type Dump struct {
	Administrator    string    `json:"administrator"`
	ParticipantFunds model.Wei `json:"participantFunds"`
	Accounts         []Account `json:"accounts"`
}

// ReadDump loads a dump written by WriteDump.
func ReadDump(path string) (Dump, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Dump{}, fmt.Errorf("read dump: %w", err)
	}
	var d Dump
	if err := json.Unmarshal(data, &d); err != nil {
		return Dump{}, fmt.Errorf("unmarshal dump: %w", err)
	}
	return d, nil
}

// WriteDump replaces path via a temp file and rename.
func WriteDump(path string, d Dump) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}
	b, err := json.MarshalIndent(&d, "", "  ")
	if err != nil {
		return fmt.Errorf("encode dump: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return fmt.Errorf("write dump: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename dump: %w", err)
	}
	return nil
}
