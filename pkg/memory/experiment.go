package memory

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"lab-notebook/notebook_go/pkg/errs"
)

// ExperimentRecord is the stable identity of an experiment, persisted inside
// the experiment folder at .meta/experiment.json. Folder names are editable
// by the user at any time; the id never changes, so a rename is detected when
// a known id shows up under a new folder name.
type ExperimentRecord struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

func experimentRecordPath(expDir string) string {
	return filepath.Join(expDir, metaDirName, experimentFileName)
}

// LoadExperiment reads the identity record of an existing experiment folder.
func LoadExperiment(expDir string) (*ExperimentRecord, error) {
	data, err := os.ReadFile(experimentRecordPath(expDir))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &errs.NotFoundError{Kind: "experiment", Name: filepath.Base(expDir)}
		}
		return nil, fmt.Errorf("failed to read experiment record in %q: %w", filepath.Base(expDir), err)
	}
	var rec ExperimentRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to parse experiment record in %q: %w", filepath.Base(expDir), err)
	}
	return &rec, nil
}

// EnsureExperiment creates the experiment folder (and its identity record) if
// it does not exist yet, and returns the record either way. An existing
// record is never overwritten.
func EnsureExperiment(expDir string) (*ExperimentRecord, error) {
	if rec, err := LoadExperiment(expDir); err == nil {
		return rec, nil
	}

	if err := os.MkdirAll(filepath.Join(expDir, metaDirName), 0755); err != nil {
		return nil, fmt.Errorf("failed to create experiment folder %q: %w", filepath.Base(expDir), err)
	}

	rec := &ExperimentRecord{
		ID:        uuid.NewString(),
		Name:      filepath.Base(expDir),
		CreatedAt: time.Now().UTC(),
	}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode experiment record: %w", err)
	}
	if err := writeFileAtomic(experimentRecordPath(expDir), data); err != nil {
		return nil, fmt.Errorf("failed to write experiment record in %q: %w", filepath.Base(expDir), err)
	}
	return rec, nil
}
