// Package backupstore implements the durable, on-disk fallback a
// BatchShipper writes to when a batch cannot be shipped, and a
// BackupReplayer reads from to retry those batches on a later cycle.
//
// Every batch that reaches this store is first persisted to a
// "pending" directory as one JSON file per backupId. An entry is
// moved to "quarantine" once it exhausts its retry budget, where it
// sits until an operator intervenes or PurgeExpired reclaims it.
package backupstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fleetmetra/geoingest/internal/model"
)

// Store is the on-disk LocalBackupStore. It is safe for concurrent use:
// writes to distinct backupIds proceed independently, and writes to
// the same backupId are serialized through a per-key lock so a
// markAttempt racing a concurrent read never observes a torn file.
type Store struct {
	root string

	keyMu sync.Mutex
	keys  map[string]*sync.Mutex
}

// NewStore returns a Store rooted at dir, creating the pending and
// quarantine subdirectories if they do not already exist.
func NewStore(dir string) (*Store, error) {
	for _, sub := range []string{pendingDir, quarantineDir} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return nil, fmt.Errorf("backupstore: create %s dir: %w", sub, err)
		}
	}
	return &Store{root: dir, keys: make(map[string]*sync.Mutex)}, nil
}

func (s *Store) lockFor(backupID string) *sync.Mutex {
	s.keyMu.Lock()
	defer s.keyMu.Unlock()
	l, ok := s.keys[backupID]
	if !ok {
		l = &sync.Mutex{}
		s.keys[backupID] = l
	}
	return l
}

func (s *Store) pendingPath(backupID string) string {
	return filepath.Join(s.root, pendingDir, entryFileName(backupID))
}

func (s *Store) quarantinePath(backupID string) string {
	return filepath.Join(s.root, quarantineDir, entryFileName(backupID))
}

// Create persists a new pending backup entry for records that a
// BatchShipper failed to ship, and returns the entry it wrote.
func (s *Store) Create(_ context.Context, family model.Family, records []model.Record, maxRetries int, lastErr error) (model.BackupEntry, error) {
	e := model.BackupEntry{
		BackupID:   uuid.NewString(),
		Family:     family,
		Records:    records,
		CreatedAt:  time.Now().UTC(),
		MaxRetries: maxRetries,
		Status:     model.BackupPending,
	}
	if lastErr != nil {
		e.LastError = lastErr.Error()
	}

	lock := s.lockFor(e.BackupID)
	lock.Lock()
	defer lock.Unlock()

	if err := writeEntryAtomic(filepath.Join(s.root, pendingDir), e); err != nil {
		return model.BackupEntry{}, err
	}
	return e, nil
}

// ListPending returns every pending entry, ordered oldest-first by
// CreatedAt so BackupReplayer retries the longest-waiting batches
// first.
func (s *Store) ListPending(_ context.Context) ([]model.BackupEntry, error) {
	dir := filepath.Join(s.root, pendingDir)
	files, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("backupstore: list pending: %w", err)
	}

	entries := make([]model.BackupEntry, 0, len(files))
	for _, f := range files {
		if f.IsDir() {
			continue
		}
		e, err := readEntry(filepath.Join(dir, f.Name()))
		if err != nil {
			continue // skip a corrupted or mid-write entry rather than fail the whole listing
		}
		entries = append(entries, e)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].CreatedAt.Before(entries[j].CreatedAt)
	})
	return entries, nil
}

// MarkAttempt records a failed replay attempt against backupID. Once
// RetryCount reaches MaxRetries the entry is moved to quarantine and
// its status becomes BackupExhausted; otherwise it remains pending
// for the next replay cycle.
func (s *Store) MarkAttempt(_ context.Context, backupID string, attemptErr error) (model.BackupEntry, error) {
	lock := s.lockFor(backupID)
	lock.Lock()
	defer lock.Unlock()

	path := s.pendingPath(backupID)
	e, err := readEntry(path)
	if err != nil {
		if os.IsNotExist(err) {
			return model.BackupEntry{}, ErrNotFound
		}
		return model.BackupEntry{}, fmt.Errorf("backupstore: mark attempt %s: %w", backupID, err)
	}

	e.RetryCount++
	if attemptErr != nil {
		e.LastError = attemptErr.Error()
	}

	if e.RetryCount >= e.MaxRetries {
		e.Status = model.BackupExhausted
		if err := writeEntryAtomic(filepath.Join(s.root, quarantineDir), e); err != nil {
			return model.BackupEntry{}, err
		}
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return model.BackupEntry{}, fmt.Errorf("backupstore: remove exhausted pending entry %s: %w", backupID, err)
		}
		return e, nil
	}

	e.Status = model.BackupInProgress
	if err := writeEntryAtomic(filepath.Join(s.root, pendingDir), e); err != nil {
		return model.BackupEntry{}, err
	}
	return e, nil
}

// Remove deletes a pending entry after it has been successfully
// reshipped. Removing an entry that no longer exists is not an error.
func (s *Store) Remove(_ context.Context, backupID string) error {
	lock := s.lockFor(backupID)
	lock.Lock()
	defer lock.Unlock()

	if err := os.Remove(s.pendingPath(backupID)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("backupstore: remove %s: %w", backupID, err)
	}
	return nil
}

// PurgeExpired removes quarantined entries whose CreatedAt is older
// than olderThan, returning the number removed. It never touches
// pending entries — only batches that have already exhausted their
// retry budget are eligible for reclamation.
func (s *Store) PurgeExpired(_ context.Context, olderThan time.Duration) (int, error) {
	dir := filepath.Join(s.root, quarantineDir)
	files, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("backupstore: purge expired: %w", err)
	}

	cutoff := time.Now().UTC().Add(-olderThan)
	removed := 0
	for _, f := range files {
		if f.IsDir() {
			continue
		}
		path := filepath.Join(dir, f.Name())
		e, err := readEntry(path)
		if err != nil {
			continue
		}
		if e.CreatedAt.Before(cutoff) {
			if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
				return removed, fmt.Errorf("backupstore: purge %s: %w", e.BackupID, err)
			}
			removed++
		}
	}
	return removed, nil
}
