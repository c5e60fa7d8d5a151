package convert

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"lab-notebook/notebook_go/pkg/errs"
)

func TestPlainTextReadsTextFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.csv")
	if err := os.WriteFile(path, []byte("temp,yield\n62,0.91\n"), 0644); err != nil {
		t.Fatalf("failed to write fixture: %v", err)
	}

	got, err := PlainText{}.Convert(context.Background(), path)
	if err != nil {
		t.Fatalf("Convert failed: %v", err)
	}
	if got != "temp,yield\n62,0.91\n" {
		t.Errorf("Convert returned %q", got)
	}
}

func TestPlainTextRejectsBinaryFormats(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "scan.pdf")
	if err := os.WriteFile(path, []byte("%PDF-1.4"), 0644); err != nil {
		t.Fatalf("failed to write fixture: %v", err)
	}

	_, err := PlainText{}.Convert(context.Background(), path)
	var cf *errs.CollaboratorFailureError
	if !errors.As(err, &cf) {
		t.Errorf("Convert on pdf = %v, want *errs.CollaboratorFailureError", err)
	}
}

func TestAutoPrefersDirectReadForText(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "notes.md")
	if err := os.WriteFile(path, []byte("# notes\n"), 0644); err != nil {
		t.Fatalf("failed to write fixture: %v", err)
	}

	// External converter that would fail if consulted.
	auto := Auto{External: Command{Bin: "/nonexistent/converter"}}
	got, err := auto.Convert(context.Background(), path)
	if err != nil {
		t.Fatalf("Auto.Convert failed: %v", err)
	}
	if got != "# notes\n" {
		t.Errorf("Auto.Convert returned %q", got)
	}
}
