package memory

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestRegisterFileIsIdempotent(t *testing.T) {
	store, expDir := newTestStore(t)
	ctx := context.Background()

	entry := RegistryEntry{
		OriginalName:  "data.csv",
		OriginalPath:  filepath.Join(OriginalsDirName, "data.csv"),
		ConvertedPath: filepath.Join(metaDirName, convertedDirName, "data.csv.md"),
		Status:        StatusAnalyzed,
	}
	first, err := store.RegisterFile(ctx, expDir, entry)
	if err != nil {
		t.Fatalf("first RegisterFile failed: %v", err)
	}

	entry.Summary = "yield table across annealing temperatures"
	if _, err := store.RegisterFile(ctx, expDir, entry); err != nil {
		t.Fatalf("second RegisterFile failed: %v", err)
	}

	reg, err := store.LoadRegistry(ctx, expDir)
	if err != nil {
		t.Fatalf("LoadRegistry failed: %v", err)
	}
	if len(reg.Files) != 1 {
		t.Fatalf("registry holds %d entries after re-registration, want 1", len(reg.Files))
	}
	got := reg.Files[0]
	if got.Summary != entry.Summary {
		t.Errorf("re-registration did not update the entry: summary %q", got.Summary)
	}
	if !got.CreatedAt.Equal(first.CreatedAt) {
		t.Errorf("re-registration changed CreatedAt: %v vs %v", got.CreatedAt, first.CreatedAt)
	}
}

func TestValidateRegistryMarksMissingConversionsStale(t *testing.T) {
	store, expDir := newTestStore(t)
	ctx := context.Background()

	convDir := ConvertedDir(expDir)
	if err := os.MkdirAll(convDir, 0755); err != nil {
		t.Fatalf("failed to create converted dir: %v", err)
	}
	present := filepath.Join(convDir, "present.pdf.md")
	if err := os.WriteFile(present, []byte("extracted text"), 0644); err != nil {
		t.Fatalf("failed to write converted file: %v", err)
	}

	for _, e := range []RegistryEntry{
		{OriginalName: "present.pdf", ConvertedPath: filepath.Join(metaDirName, convertedDirName, "present.pdf.md"), Status: StatusAnalyzed},
		{OriginalName: "vanished.pdf", ConvertedPath: filepath.Join(metaDirName, convertedDirName, "vanished.pdf.md"), Status: StatusAnalyzed},
	} {
		if _, err := store.RegisterFile(ctx, expDir, e); err != nil {
			t.Fatalf("RegisterFile(%s) failed: %v", e.OriginalName, err)
		}
	}

	reg, err := store.ValidateRegistry(ctx, expDir)
	if err != nil {
		t.Fatalf("ValidateRegistry failed: %v", err)
	}
	byName := map[string]RegistryEntry{}
	for _, e := range reg.Files {
		byName[e.OriginalName] = e
	}
	if byName["present.pdf"].Status != StatusAnalyzed {
		t.Errorf("entry with existing conversion was changed to %q", byName["present.pdf"].Status)
	}
	if byName["vanished.pdf"].Status != StatusStale {
		t.Errorf("entry with missing conversion is %q, want %q", byName["vanished.pdf"].Status, StatusStale)
	}
}

func TestEnsureExperimentKeepsExistingIdentity(t *testing.T) {
	_, expDir := newTestStore(t)

	first, err := EnsureExperiment(expDir)
	if err != nil {
		t.Fatalf("EnsureExperiment failed: %v", err)
	}
	if first.ID == "" {
		t.Fatal("experiment record has no id")
	}

	second, err := EnsureExperiment(expDir)
	if err != nil {
		t.Fatalf("second EnsureExperiment failed: %v", err)
	}
	if second.ID != first.ID {
		t.Errorf("EnsureExperiment regenerated the id: %q vs %q", second.ID, first.ID)
	}
}
