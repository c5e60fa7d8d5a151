// Package memory owns durable read/write of one experiment's Memory Document
// (the free-text README treated as the single source of truth) and its file
// registry. It provides concurrency safety and non-destructive append, not
// text understanding; producing the merged document text is delegated to the
// injected Updater, which is the reasoning-step collaborator.
package memory

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"lab-notebook/notebook_go/pkg/errs"
	"lab-notebook/notebook_go/pkg/logger"
)

const (
	// MemoryFileName is the fixed relative path of the Memory Document
	// inside an experiment folder. Humans and tools both read it directly.
	MemoryFileName = "README.md"

	// OriginalsDirName holds uploaded original files.
	OriginalsDirName = "originals"

	metaDirName        = ".meta"
	registryFileName   = "registry.json"
	experimentFileName = "experiment.json"
	convertedDirName   = "converted"

	// changeLogHeading marks the append-only change-history region of the
	// document. It is only ever appended to, never parsed for meaning.
	changeLogHeading = "## Change Log"
)

// emptyTemplate is what a reader sees before the first write. Nothing is
// created on read; the document comes into existence on the first write.
const emptyTemplate = "# Experiment Notes\n\nNothing recorded yet.\n"

// Snapshot is a copy-on-read view of the Memory Document. Hash captures the
// on-disk content at read time so a later write can detect a lost race.
type Snapshot struct {
	Text   string
	Hash   string
	Exists bool
}

// Updater produces the full replacement document for a merge. It is the
// trust boundary for semantic soundness; the store only guards against
// conflicting concurrent edits.
type Updater interface {
	ProposeUpdate(ctx context.Context, document, newInformation string) (string, error)
}

// WriteResult reports what a committed merge changed, so callers can show
// the user a diff of old vs. new.
type WriteResult struct {
	OldText string
	NewText string
	Diff    string
}

// Store is a process-wide service over the filesystem. Disk is always the
// source of truth; the store keeps no authoritative in-memory content.
type Store struct {
	logger logger.ExtendedLogger

	mu    sync.Mutex
	locks map[string]*sync.Mutex // experiment dir -> write lock
}

// NewStore creates a Memory Store.
func NewStore(log logger.ExtendedLogger) *Store {
	return &Store{
		logger: log,
		locks:  make(map[string]*sync.Mutex),
	}
}

// lockFor returns the single write lock for one experiment, creating it
// lazily under the table lock.
func (s *Store) lockFor(expDir string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[expDir]
	if !ok {
		l = &sync.Mutex{}
		s.locks[expDir] = l
	}
	return l
}

// Read returns a snapshot of the Memory Document. Readers take no lock; a
// concurrent writer's change is simply not visible until the next read.
// A missing document is empty memory, not an error; a missing experiment
// folder is *errs.NotFoundError.
func (s *Store) Read(ctx context.Context, expDir string) (Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return Snapshot{}, err
	}
	if _, err := os.Stat(expDir); err != nil {
		if os.IsNotExist(err) {
			return Snapshot{}, &errs.NotFoundError{Kind: "experiment", Name: filepath.Base(expDir)}
		}
		return Snapshot{}, fmt.Errorf("failed to stat experiment folder %q: %w", filepath.Base(expDir), err)
	}

	data, err := os.ReadFile(filepath.Join(expDir, MemoryFileName))
	if err != nil {
		if os.IsNotExist(err) {
			return Snapshot{Text: emptyTemplate, Exists: false}, nil
		}
		return Snapshot{}, fmt.Errorf("failed to read memory document of %q: %w", filepath.Base(expDir), err)
	}
	return Snapshot{Text: string(data), Hash: contentHash(data), Exists: true}, nil
}

// WriteSection merges new information into the Memory Document. The patch is
// a natural-language description of what changed, not a field name. The
// updater runs outside the lock (it is the slow reasoning call); the commit
// happens under the per-experiment lock and only if the on-disk content still
// matches the snapshot the updater saw. On a lost race the whole
// read-update-commit cycle is retried once, then the write fails with
// *errs.ConcurrentModificationError.
func (s *Store) WriteSection(ctx context.Context, expDir, patch string, updater Updater) (*WriteResult, error) {
	const attempts = 2

	for attempt := 1; attempt <= attempts; attempt++ {
		snap, err := s.Read(ctx, expDir)
		if err != nil {
			return nil, err
		}

		updated, err := updater.ProposeUpdate(ctx, snap.Text, patch)
		if err != nil {
			return nil, fmt.Errorf("failed to merge update into memory of %q: %w", filepath.Base(expDir), err)
		}
		updated = appendChangeLog(updated, patch)

		committed, err := s.commit(expDir, snap, updated)
		if err != nil {
			return nil, err
		}
		if committed {
			s.logger.Infof("memory of %q updated (attempt %d): %s", filepath.Base(expDir), attempt, patch)
			return &WriteResult{
				OldText: snap.Text,
				NewText: updated,
				Diff:    Diff(snap.Text, updated),
			}, nil
		}
		s.logger.Warnf("memory of %q changed on disk during merge, re-reading (attempt %d)", filepath.Base(expDir), attempt)
	}

	return nil, &errs.ConcurrentModificationError{Experiment: filepath.Base(expDir)}
}

// commit writes the updated document if the on-disk state still matches the
// snapshot. Returns false when the race was lost.
func (s *Store) commit(expDir string, snap Snapshot, updated string) (bool, error) {
	lock := s.lockFor(expDir)
	lock.Lock()
	defer lock.Unlock()

	path := filepath.Join(expDir, MemoryFileName)
	current, err := os.ReadFile(path)
	switch {
	case err == nil:
		if !snap.Exists || contentHash(current) != snap.Hash {
			return false, nil
		}
	case os.IsNotExist(err):
		if snap.Exists {
			return false, nil
		}
	default:
		return false, fmt.Errorf("failed to re-read memory document of %q: %w", filepath.Base(expDir), err)
	}

	if err := writeFileAtomic(path, []byte(updated)); err != nil {
		return false, fmt.Errorf("failed to write memory document of %q: %w", filepath.Base(expDir), err)
	}
	return true, nil
}

// appendChangeLog appends a timestamped entry under the change-log heading,
// creating the heading at the end of the document if it is not present yet.
// This is the only structure-aware edit the store makes.
func appendChangeLog(doc, patch string) string {
	entry := fmt.Sprintf("- %s: %s", time.Now().UTC().Format(time.RFC3339), strings.TrimSpace(patch))
	doc = strings.TrimRight(doc, "\n")
	if !strings.Contains(doc, changeLogHeading) {
		return doc + "\n\n" + changeLogHeading + "\n\n" + entry + "\n"
	}
	return doc + "\n" + entry + "\n"
}

// StatusLine derives a one-line status from a memory document: the first
// non-empty line that is not a heading. Used for cheap sibling listings so
// browsing never needs a reasoning call.
func StatusLine(text string) string {
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		return trimmed
	}
	return "(empty)"
}

func contentHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// writeFileAtomic writes via a temp file in the same directory plus rename,
// so a concurrent reader never observes a truncated document.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file in %q: %w", dir, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to rename temp file into place: %w", err)
	}
	return nil
}
