package notebook

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"lab-notebook/notebook_go/pkg/database"
	"lab-notebook/notebook_go/pkg/memory"
	"lab-notebook/notebook_go/pkg/paths"
)

// ExperimentSummary is one row of a project's experiment listing.
type ExperimentSummary struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Status    string    `json:"status"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ListExperiments scans the project root for experiment folders. Disk is
// authoritative; the catalog index is refreshed as a side effect so renames
// (a known id under a new folder name) are picked up on the next scan.
func (n *Notebook) ListExperiments(ctx context.Context, project *database.Project) ([]ExperimentSummary, error) {
	resolver, err := paths.NewResolver(project.RootPath)
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(resolver.Root())
	if err != nil {
		return nil, fmt.Errorf("failed to scan project root: %w", err)
	}

	var out []ExperimentSummary
	for _, e := range entries {
		if !e.IsDir() || e.Name()[0] == '.' {
			continue
		}
		dir := filepath.Join(resolver.Root(), e.Name())
		rec, err := memory.LoadExperiment(dir)
		if err != nil {
			// Plain folders without an identity record are not experiments.
			continue
		}

		summary := ExperimentSummary{ID: rec.ID, Name: e.Name()}
		docPath := filepath.Join(dir, memory.MemoryFileName)
		if info, serr := os.Stat(docPath); serr == nil {
			summary.UpdatedAt = info.ModTime().UTC()
			if data, rerr := os.ReadFile(docPath); rerr == nil {
				summary.Status = memory.StatusLine(string(data))
			}
		} else {
			summary.Status = "no notes yet"
			summary.UpdatedAt = rec.CreatedAt
		}

		if err := n.db.UpsertExperiment(ctx, rec.ID, project.ID, e.Name()); err != nil {
			n.logger.Warnf("failed to refresh experiment index for %q: %v", e.Name(), err)
		}
		out = append(out, summary)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// CreateExperiment makes a new experiment folder with a stable identity and
// indexes it. The name goes through the session's resolver, so traversal in
// a folder name fails the same way it does everywhere else.
func (n *Notebook) CreateExperiment(ctx context.Context, session *Session, name string) (*memory.ExperimentRecord, error) {
	dir, err := session.Resolver().Resolve(name)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create experiment folder %q: %w", name, err)
	}
	rec, err := memory.EnsureExperiment(dir)
	if err != nil {
		return nil, err
	}
	if err := n.db.UpsertExperiment(ctx, rec.ID, session.Project.ID, filepath.Base(dir)); err != nil {
		n.logger.Warnf("failed to index new experiment %q: %v", name, err)
	}
	return rec, nil
}
