package backupstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fleetmetra/geoingest/internal/model"
)

const (
	pendingDir    = "pending"
	quarantineDir = "quarantine"
)

func entryFileName(backupID string) string {
	return backupID + ".json"
}

func readEntry(path string) (model.BackupEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return model.BackupEntry{}, err
	}
	var e model.BackupEntry
	if err := json.Unmarshal(data, &e); err != nil {
		return model.BackupEntry{}, fmt.Errorf("backupstore: corrupted entry %s: %w", path, err)
	}
	return e, nil
}

// writeEntryAtomic serializes e to a temp file in dir and renames it into
// place, so a reader never observes a partially written backup entry even
// if the process is killed mid-write.
func writeEntryAtomic(dir string, e model.BackupEntry) error {
	data, err := json.MarshalIndent(e, "", "  ")
	if err != nil {
		return fmt.Errorf("backupstore: marshal entry %s: %w", e.BackupID, err)
	}

	tmp, err := os.CreateTemp(dir, entryFileName(e.BackupID)+".tmp-*")
	if err != nil {
		return fmt.Errorf("backupstore: create temp file for %s: %w", e.BackupID, err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("backupstore: write temp file for %s: %w", e.BackupID, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("backupstore: close temp file for %s: %w", e.BackupID, err)
	}

	finalPath := filepath.Join(dir, entryFileName(e.BackupID))
	if err := os.Rename(tmpPath, finalPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("backupstore: rename into place for %s: %w", e.BackupID, err)
	}
	return nil
}
