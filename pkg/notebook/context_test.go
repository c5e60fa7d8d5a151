package notebook

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"lab-notebook/notebook_go/pkg/memory"
)

func TestBuildContextDegradesWhenMemoryUnreadable(t *testing.T) {
	nb, session, root := newTestNotebook(t, Config{Model: &fakeModel{}})
	enterExperiment(t, nb, session, "exp_a")

	// A directory where the notes file should be makes the read fail
	// without the experiment itself being missing.
	if err := os.Mkdir(filepath.Join(root, "exp_a", memory.MemoryFileName), 0o755); err != nil {
		t.Fatalf("failed to break the notes file: %v", err)
	}

	bundle := nb.BuildContext(context.Background(), session, "what do we know?")
	if bundle.MemoryAvailable {
		t.Error("MemoryAvailable = true, want degraded bundle")
	}
	if bundle.ExperimentName != "exp_a" {
		t.Errorf("ExperimentName = %q, want exp_a", bundle.ExperimentName)
	}
	if !strings.Contains(renderBundle(bundle), "could not be read") {
		t.Error("rendered bundle does not state that the notes are unavailable")
	}
}

func TestBuildContextSiblingsNamedNotQuoted(t *testing.T) {
	proto := &scriptedProtocol{
		selectRelevant: func(message string, candidates []string) ([]string, error) {
			return nil, nil
		},
	}
	nb, session, root := newTestNotebook(t, Config{Model: &fakeModel{}, Protocol: proto})
	enterExperiment(t, nb, session, "exp_b")
	if err := os.WriteFile(filepath.Join(root, "exp_b", memory.MemoryFileName), []byte("# exp_b\n\nSecret result: 55\n"), 0o644); err != nil {
		t.Fatalf("failed to seed exp_b notes: %v", err)
	}
	enterExperiment(t, nb, session, "exp_a")

	bundle := nb.BuildContext(context.Background(), session, "status?")
	if len(bundle.Siblings) != 1 || bundle.Siblings[0].Name != "exp_b" {
		t.Fatalf("siblings = %+v, want exp_b listed by name", bundle.Siblings)
	}
	if len(bundle.SiblingDocs) != 0 {
		t.Errorf("sibling documents included without selection: %v", bundle.SiblingDocs)
	}
	if strings.Contains(renderBundle(bundle), "Secret result") {
		t.Error("unselected sibling's notes leaked into the bundle")
	}
}

func TestBuildContextIncludesSelectedSiblingDocs(t *testing.T) {
	proto := &scriptedProtocol{
		selectRelevant: func(message string, candidates []string) ([]string, error) {
			return []string{"exp_b"}, nil
		},
	}
	nb, session, root := newTestNotebook(t, Config{Model: &fakeModel{}, Protocol: proto})
	enterExperiment(t, nb, session, "exp_b")
	if err := os.WriteFile(filepath.Join(root, "exp_b", memory.MemoryFileName), []byte("# exp_b\n\nResult: 55\n"), 0o644); err != nil {
		t.Fatalf("failed to seed exp_b notes: %v", err)
	}
	enterExperiment(t, nb, session, "exp_a")

	bundle := nb.BuildContext(context.Background(), session, "compare with exp_b")
	if doc, ok := bundle.SiblingDocs["exp_b"]; !ok || !strings.Contains(doc, "Result: 55") {
		t.Errorf("SiblingDocs = %v, want exp_b's notes included", bundle.SiblingDocs)
	}
}

func TestTrimToBudgetDropsHistoryBeforeMemory(t *testing.T) {
	nb, session, root := newTestNotebook(t, Config{Model: &fakeModel{}, TokenBudget: 120})
	enterExperiment(t, nb, session, "exp_a")
	if err := os.WriteFile(filepath.Join(root, "exp_a", memory.MemoryFileName), []byte("# exp_a\n\nKeystone fact\n"), 0o644); err != nil {
		t.Fatalf("failed to seed notes: %v", err)
	}
	for i := 0; i < 8; i++ {
		session.AppendTurn(strings.Repeat("long question ", 20), strings.Repeat("long answer ", 20))
	}

	bundle := nb.BuildContext(context.Background(), session, "status?")
	if len(bundle.History) >= 16 {
		t.Errorf("history length = %d, want trimmed below the full 16 turns", len(bundle.History))
	}
	if !bundle.MemoryAvailable || !strings.Contains(bundle.MemoryText, "Keystone fact") {
		t.Error("current experiment's notes must survive trimming")
	}
	if len(bundle.History)%2 != 0 {
		t.Errorf("history trimmed mid-pair: %d entries", len(bundle.History))
	}
}
