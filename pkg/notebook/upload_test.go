package notebook

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"lab-notebook/notebook_go/internal/convert"
	"lab-notebook/notebook_go/pkg/jobs"
	"lab-notebook/notebook_go/pkg/memory"
)

func TestUploadStoresOriginalAndRegistersPending(t *testing.T) {
	nb, session, root := newTestNotebook(t, Config{Model: &fakeModel{}})
	enterExperiment(t, nb, session, "exp_a")

	content := "time,temp\n0,25\n10,62\n"
	entry, err := nb.Upload(context.Background(), session, "run1.csv", strings.NewReader(content))
	if err != nil {
		t.Fatalf("Upload failed: %v", err)
	}

	if entry.Status != memory.StatusPending {
		t.Errorf("entry status = %q, want pending", entry.Status)
	}
	if entry.SizeBytes != int64(len(content)) || entry.SHA256 == "" {
		t.Errorf("entry metadata = %+v, want size and hash recorded", entry)
	}

	stored, err := os.ReadFile(filepath.Join(root, "exp_a", memory.OriginalsDirName, "run1.csv"))
	if err != nil {
		t.Fatalf("original not stored: %v", err)
	}
	if string(stored) != content {
		t.Error("stored original differs from the upload")
	}
}

func TestUploadStripsDirectoryComponents(t *testing.T) {
	nb, session, root := newTestNotebook(t, Config{Model: &fakeModel{}})
	enterExperiment(t, nb, session, "exp_a")

	if _, err := nb.Upload(context.Background(), session, "../../evil.txt", strings.NewReader("x")); err != nil {
		t.Fatalf("Upload failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "exp_a", memory.OriginalsDirName, "evil.txt")); err != nil {
		t.Errorf("upload did not land in the originals folder: %v", err)
	}
	if _, err := os.Stat(filepath.Join(filepath.Dir(root), "evil.txt")); err == nil {
		t.Error("upload escaped the project root")
	}
}

func TestUploadRequiresExperiment(t *testing.T) {
	nb, session, _ := newTestNotebook(t, Config{Model: &fakeModel{}})
	if _, err := nb.Upload(context.Background(), session, "run1.csv", strings.NewReader("x")); err == nil {
		t.Fatal("Upload at project root succeeded, want an error")
	}
}

func TestUploadAllStoresEveryFile(t *testing.T) {
	nb, session, root := newTestNotebook(t, Config{Model: &fakeModel{}})
	enterExperiment(t, nb, session, "exp_a")

	files := []NamedReader{
		{Name: "a.txt", Content: strings.NewReader("alpha")},
		{Name: "b.txt", Content: strings.NewReader("beta")},
		{Name: "c.txt", Content: strings.NewReader("gamma")},
	}
	entries, err := nb.UploadAll(context.Background(), session, files)
	if err != nil {
		t.Fatalf("UploadAll failed: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("got %d entries, want 3", len(entries))
	}
	for _, f := range files {
		if _, err := os.Stat(filepath.Join(root, "exp_a", memory.OriginalsDirName, f.Name)); err != nil {
			t.Errorf("file %q not stored: %v", f.Name, err)
		}
	}
}

func TestConversionJobAnalyzesAndNotesFile(t *testing.T) {
	proto := &scriptedProtocol{
		extract: func(document, question string) (string, error) {
			return "Temperature ramp from 25 to 62 over ten minutes.", nil
		},
	}
	nb, session, root := newTestNotebook(t, Config{
		Model:     &fakeModel{},
		Protocol:  proto,
		Converter: convert.PlainText{},
	})
	enterExperiment(t, nb, session, "exp_a")

	if _, err := nb.Upload(context.Background(), session, "run1.csv", strings.NewReader("time,temp\n0,25\n10,62\n")); err != nil {
		t.Fatalf("Upload failed: %v", err)
	}

	expDir := filepath.Join(root, "exp_a")
	job := &jobs.ConversionJob{
		ID:            "job-1",
		ProjectID:     session.Project.ID,
		ExperimentDir: expDir,
		OriginalName:  "run1.csv",
		OriginalPath:  filepath.Join(expDir, memory.OriginalsDirName, "run1.csv"),
	}
	if err := nb.handleConversionJob(context.Background(), job); err != nil {
		t.Fatalf("conversion job failed: %v", err)
	}

	reg, err := nb.store.LoadRegistry(context.Background(), expDir)
	if err != nil {
		t.Fatalf("LoadRegistry failed: %v", err)
	}
	if len(reg.Files) != 1 {
		t.Fatalf("registry has %d entries, want 1", len(reg.Files))
	}
	entry := reg.Files[0]
	if entry.Status != memory.StatusAnalyzed || entry.ConvertedPath == "" || entry.Summary == "" {
		t.Errorf("entry after conversion = %+v, want analyzed with summary and conversion", entry)
	}
	if entry.SHA256 == "" {
		t.Error("conversion dropped the upload's content hash")
	}

	if _, err := os.Stat(filepath.Join(expDir, entry.ConvertedPath)); err != nil {
		t.Errorf("converted representation missing: %v", err)
	}

	doc, err := os.ReadFile(filepath.Join(expDir, memory.MemoryFileName))
	if err != nil {
		t.Fatalf("failed to read notes: %v", err)
	}
	if !strings.Contains(string(doc), "run1.csv") {
		t.Errorf("notes do not mention the analyzed file:\n%s", doc)
	}
}

func TestConversionFailureMarksRegistryFailed(t *testing.T) {
	nb, session, root := newTestNotebook(t, Config{
		Model:     &fakeModel{},
		Converter: convert.PlainText{},
	})
	enterExperiment(t, nb, session, "exp_a")

	expDir := filepath.Join(root, "exp_a")
	job := &jobs.ConversionJob{
		ID:            "job-1",
		ExperimentDir: expDir,
		OriginalName:  "missing.csv",
		OriginalPath:  filepath.Join(expDir, memory.OriginalsDirName, "missing.csv"),
	}
	if err := nb.handleConversionJob(context.Background(), job); err == nil {
		t.Fatal("conversion of a missing file succeeded, want an error for the retry path")
	}

	reg, err := nb.store.LoadRegistry(context.Background(), expDir)
	if err != nil {
		t.Fatalf("LoadRegistry failed: %v", err)
	}
	if len(reg.Files) != 1 || reg.Files[0].Status != memory.StatusFailed {
		t.Errorf("registry = %+v, want the file marked failed", reg.Files)
	}
}

// A converted file is what read_file serves once analysis completed.
func TestReadFileServesConvertedText(t *testing.T) {
	proto := &scriptedProtocol{
		extract: func(document, question string) (string, error) { return "summary", nil },
	}
	nb, session, root := newTestNotebook(t, Config{
		Model:     &fakeModel{},
		Protocol:  proto,
		Converter: convert.PlainText{},
	})
	enterExperiment(t, nb, session, "exp_a")

	if _, err := nb.Upload(context.Background(), session, "run1.txt", strings.NewReader("raw text body")); err != nil {
		t.Fatalf("Upload failed: %v", err)
	}
	expDir := filepath.Join(root, "exp_a")
	job := &jobs.ConversionJob{
		ID:            "job-1",
		ExperimentDir: expDir,
		OriginalName:  "run1.txt",
		OriginalPath:  filepath.Join(expDir, memory.OriginalsDirName, "run1.txt"),
	}
	if err := nb.handleConversionJob(context.Background(), job); err != nil {
		t.Fatalf("conversion job failed: %v", err)
	}

	out, err := nb.toolReadFile(context.Background(), session, readFileArgs{
		Path: filepath.Join("exp_a", memory.OriginalsDirName, "run1.txt"),
	})
	if err != nil {
		t.Fatalf("read_file failed: %v", err)
	}
	if !strings.Contains(out, "raw text body") {
		t.Errorf("read_file = %q, want the converted text", out)
	}
}
