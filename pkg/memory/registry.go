package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// File registry statuses. The registry is machine-internal bookkeeping; it is
// never presented as "the" memory.
const (
	StatusPending    = "pending"
	StatusConverting = "converting"
	StatusAnalyzed   = "analyzed"
	StatusFailed     = "failed"
	StatusStale      = "stale"
)

// RegistryEntry maps one uploaded original file to zero-or-one converted
// representation plus lightweight metadata. All paths are relative to the
// experiment folder, so the registry stays valid when a project moves.
type RegistryEntry struct {
	OriginalName  string    `json:"original_name"`
	OriginalPath  string    `json:"original_path"`
	ConvertedPath string    `json:"converted_path,omitempty"`
	Summary       string    `json:"summary,omitempty"`
	Status        string    `json:"status"`
	SHA256        string    `json:"sha256,omitempty"`
	SizeBytes     int64     `json:"size_bytes,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Registry is the on-disk index at .meta/registry.json.
type Registry struct {
	Files []RegistryEntry `json:"files"`
}

func registryPath(expDir string) string {
	return filepath.Join(expDir, metaDirName, registryFileName)
}

// ConvertedDir is where converted representations are stored, under the
// experiment's .meta directory.
func ConvertedDir(expDir string) string {
	return filepath.Join(expDir, metaDirName, convertedDirName)
}

// ConvertedRelPath is the experiment-relative path of one converted file,
// the form stored in registry entries.
func ConvertedRelPath(name string) string {
	return filepath.Join(metaDirName, convertedDirName, name)
}

// LoadRegistry reads the registry of an experiment. A missing registry file
// is an empty registry, not an error.
func (s *Store) LoadRegistry(ctx context.Context, expDir string) (Registry, error) {
	if err := ctx.Err(); err != nil {
		return Registry{}, err
	}
	data, err := os.ReadFile(registryPath(expDir))
	if err != nil {
		if os.IsNotExist(err) {
			return Registry{}, nil
		}
		return Registry{}, fmt.Errorf("failed to read file registry of %q: %w", filepath.Base(expDir), err)
	}
	var reg Registry
	if err := json.Unmarshal(data, &reg); err != nil {
		return Registry{}, fmt.Errorf("failed to parse file registry of %q: %w", filepath.Base(expDir), err)
	}
	return reg, nil
}

// RegisterFile upserts one entry, keyed by original name. Re-registering the
// same original updates in place rather than duplicating. The write goes
// through the same per-experiment lock as memory updates.
func (s *Store) RegisterFile(ctx context.Context, expDir string, entry RegistryEntry) (RegistryEntry, error) {
	lock := s.lockFor(expDir)
	lock.Lock()
	defer lock.Unlock()

	reg, err := s.LoadRegistry(ctx, expDir)
	if err != nil {
		return RegistryEntry{}, err
	}

	now := time.Now().UTC()
	entry.UpdatedAt = now

	replaced := false
	for i := range reg.Files {
		if reg.Files[i].OriginalName == entry.OriginalName {
			entry.CreatedAt = reg.Files[i].CreatedAt
			// Status transitions don't re-state content metadata.
			if entry.SHA256 == "" {
				entry.SHA256 = reg.Files[i].SHA256
			}
			if entry.SizeBytes == 0 {
				entry.SizeBytes = reg.Files[i].SizeBytes
			}
			reg.Files[i] = entry
			replaced = true
			break
		}
	}
	if !replaced {
		entry.CreatedAt = now
		reg.Files = append(reg.Files, entry)
	}

	if err := s.saveRegistry(expDir, reg); err != nil {
		return RegistryEntry{}, err
	}
	s.logger.Infof("registered file %q in %q (status=%s, replaced=%v)", entry.OriginalName, filepath.Base(expDir), entry.Status, replaced)
	return entry, nil
}

// ValidateRegistry marks entries whose converted representation vanished from
// disk as stale, and persists the result. The registry must always point at
// representations that actually exist.
func (s *Store) ValidateRegistry(ctx context.Context, expDir string) (Registry, error) {
	lock := s.lockFor(expDir)
	lock.Lock()
	defer lock.Unlock()

	reg, err := s.LoadRegistry(ctx, expDir)
	if err != nil {
		return Registry{}, err
	}

	changed := false
	for i := range reg.Files {
		e := &reg.Files[i]
		if e.ConvertedPath == "" || e.Status == StatusStale {
			continue
		}
		if _, err := os.Stat(filepath.Join(expDir, e.ConvertedPath)); os.IsNotExist(err) {
			e.Status = StatusStale
			e.UpdatedAt = time.Now().UTC()
			changed = true
			s.logger.Warnf("converted file for %q in %q is missing, marking stale", e.OriginalName, filepath.Base(expDir))
		}
	}

	if changed {
		if err := s.saveRegistry(expDir, reg); err != nil {
			return Registry{}, err
		}
	}
	return reg, nil
}

func (s *Store) saveRegistry(expDir string, reg Registry) error {
	if err := os.MkdirAll(filepath.Join(expDir, metaDirName), 0755); err != nil {
		return fmt.Errorf("failed to create meta directory in %q: %w", filepath.Base(expDir), err)
	}
	data, err := json.MarshalIndent(reg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode file registry: %w", err)
	}
	if err := writeFileAtomic(registryPath(expDir), data); err != nil {
		return fmt.Errorf("failed to write file registry of %q: %w", filepath.Base(expDir), err)
	}
	return nil
}
