package notebook

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"lab-notebook/notebook_go/pkg/events"
	"lab-notebook/notebook_go/pkg/jobs"
	"lab-notebook/notebook_go/pkg/memory"
)

// Upload stores one original file under the bound experiment's originals
// folder, registers it as pending and enqueues its conversion. The original
// is never modified afterwards; conversions write separate files.
func (n *Notebook) Upload(ctx context.Context, session *Session, name string, content io.Reader) (memory.RegistryEntry, error) {
	rec, expDir := session.CurrentExperiment()
	if rec == nil {
		return memory.RegistryEntry{}, fmt.Errorf("no experiment selected; move the session into an experiment folder before uploading")
	}

	// The name arrives from outside; run it through the resolver like any
	// other reference so "../x" cannot land outside the experiment.
	base := filepath.Base(name)
	ref := filepath.Join(session.Resolver().Rel(expDir), memory.OriginalsDirName, base)
	dest, err := session.Resolver().Resolve(ref)
	if err != nil {
		return memory.RegistryEntry{}, err
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return memory.RegistryEntry{}, fmt.Errorf("failed to create originals folder: %w", err)
	}

	hasher := sha256.New()
	tmp, err := os.CreateTemp(filepath.Dir(dest), ".upload-*")
	if err != nil {
		return memory.RegistryEntry{}, fmt.Errorf("failed to stage upload: %w", err)
	}
	size, err := io.Copy(io.MultiWriter(tmp, hasher), content)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmp.Name())
		return memory.RegistryEntry{}, fmt.Errorf("failed to write upload %q: %w", base, err)
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		os.Remove(tmp.Name())
		return memory.RegistryEntry{}, fmt.Errorf("failed to finalize upload %q: %w", base, err)
	}

	entry, err := n.store.RegisterFile(ctx, expDir, memory.RegistryEntry{
		OriginalName: base,
		OriginalPath: filepath.Join(memory.OriginalsDirName, base),
		Status:       memory.StatusPending,
		SHA256:       hex.EncodeToString(hasher.Sum(nil)),
		SizeBytes:    size,
	})
	if err != nil {
		return memory.RegistryEntry{}, err
	}

	if n.queue != nil {
		job, err := n.queue.Enqueue(ctx, jobs.ConversionJob{
			ProjectID:     session.Project.ID,
			ExperimentID:  rec.ID,
			ExperimentDir: expDir,
			OriginalName:  base,
			OriginalPath:  dest,
		})
		if err != nil {
			return entry, fmt.Errorf("upload stored but conversion could not be queued: %w", err)
		}
		n.jobSessions.Store(job.ID, session.ID)
	}

	n.events.Emit(session.ID, events.UploadReceived, rec.ID, map[string]interface{}{
		"file":  base,
		"bytes": size,
	})
	return entry, nil
}

// NamedReader pairs an upload's file name with its content.
type NamedReader struct {
	Name    string
	Content io.Reader
}

// UploadAll stores a batch of files in parallel. It fails fast on the first
// error; files already stored stay stored and queued.
func (n *Notebook) UploadAll(ctx context.Context, session *Session, files []NamedReader) ([]memory.RegistryEntry, error) {
	entries := make([]memory.RegistryEntry, len(files))
	g, gctx := errgroup.WithContext(ctx)
	for i, f := range files {
		g.Go(func() error {
			entry, err := n.Upload(gctx, session, f.Name, f.Content)
			if err != nil {
				return fmt.Errorf("upload %q: %w", f.Name, err)
			}
			entries[i] = entry
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return entries, nil
}

// handleConversionJob runs in a worker: convert the original to text, file
// the result in the registry, ask the reasoning step for a short summary and
// append it to the experiment's notes. A returned error sends the job back
// through the queue's retry path.
func (n *Notebook) handleConversionJob(ctx context.Context, job *jobs.ConversionJob) error {
	sessionID := ""
	if v, ok := n.jobSessions.Load(job.ID); ok {
		sessionID = v.(string)
	}

	text, err := n.converter.Convert(ctx, job.OriginalPath)
	if err != nil {
		n.failConversion(ctx, job, sessionID, err)
		return err
	}

	convDir := memory.ConvertedDir(job.ExperimentDir)
	if err := os.MkdirAll(convDir, 0o755); err != nil {
		n.failConversion(ctx, job, sessionID, err)
		return err
	}
	convName := job.OriginalName + ".md"
	if err := os.WriteFile(filepath.Join(convDir, convName), []byte(text), 0o644); err != nil {
		n.failConversion(ctx, job, sessionID, err)
		return err
	}

	summary, err := n.protocol.Extract(ctx, text,
		"Summarize this instrument or data file in at most three sentences for a lab notebook.")
	if err != nil {
		// The conversion itself succeeded; keep it and note the missing
		// summary rather than burning a retry on the reasoning step.
		n.logger.Warnf("summary for %q failed: %v", job.OriginalName, err)
		summary = ""
	}

	if _, err := n.store.RegisterFile(ctx, job.ExperimentDir, memory.RegistryEntry{
		OriginalName:  job.OriginalName,
		OriginalPath:  filepath.Join(memory.OriginalsDirName, job.OriginalName),
		ConvertedPath: memory.ConvertedRelPath(convName),
		Summary:       summary,
		Status:        memory.StatusAnalyzed,
	}); err != nil {
		n.failConversion(ctx, job, sessionID, err)
		return err
	}

	if summary != "" {
		patch := fmt.Sprintf("Analyzed uploaded file %s: %s", job.OriginalName, summary)
		if _, err := n.store.WriteSection(ctx, job.ExperimentDir, patch, n.protocol); err != nil {
			n.logger.Warnf("failed to note analysis of %q in memory: %v", job.OriginalName, err)
		}
	}

	if sessionID != "" {
		n.events.Emit(sessionID, events.ConversionCompleted, job.ExperimentID, map[string]interface{}{
			"file": job.OriginalName,
		})
	}
	n.jobSessions.Delete(job.ID)
	return nil
}

// failConversion marks the registry entry failed and emits the failure
// event. The job's own retry accounting lives in the queue.
func (n *Notebook) failConversion(ctx context.Context, job *jobs.ConversionJob, sessionID string, cause error) {
	if _, err := n.store.RegisterFile(ctx, job.ExperimentDir, memory.RegistryEntry{
		OriginalName: job.OriginalName,
		OriginalPath: filepath.Join(memory.OriginalsDirName, job.OriginalName),
		Status:       memory.StatusFailed,
	}); err != nil {
		n.logger.Warnf("failed to mark %q failed in registry: %v", job.OriginalName, err)
	}
	if sessionID != "" {
		n.events.Emit(sessionID, events.ConversionFailed, job.ExperimentID, map[string]interface{}{
			"file":  job.OriginalName,
			"error": cause.Error(),
		})
	}
}
