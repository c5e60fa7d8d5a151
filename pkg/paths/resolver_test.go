package paths

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"lab-notebook/notebook_go/pkg/errs"
)

func newTestResolver(t *testing.T) (*Resolver, string) {
	t.Helper()
	root := t.TempDir()
	r, err := NewResolver(root)
	if err != nil {
		t.Fatalf("failed to create resolver: %v", err)
	}
	return r, r.Root()
}

func TestResolveInsideRoot(t *testing.T) {
	r, root := newTestResolver(t)

	tests := []struct {
		name string
		ref  string
		want string
	}{
		{name: "empty string resolves to root", ref: "", want: root},
		{name: "dot resolves to root", ref: ".", want: root},
		{name: "whitespace resolves to root", ref: "  ", want: root},
		{name: "bare name", ref: "exp_001", want: filepath.Join(root, "exp_001")},
		{name: "nested path", ref: "exp_001/originals/data.csv", want: filepath.Join(root, "exp_001", "originals", "data.csv")},
		{name: "internal dotdot that stays inside", ref: "exp_001/../exp_002", want: filepath.Join(root, "exp_002")},
		{name: "validated absolute handle passed back", ref: filepath.Join(root, "exp_001"), want: filepath.Join(root, "exp_001")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.Resolve(tt.ref)
			if err != nil {
				t.Fatalf("Resolve(%q) failed: %v", tt.ref, err)
			}
			if got != tt.want {
				t.Errorf("Resolve(%q) = %q, want %q", tt.ref, got, tt.want)
			}
		})
	}
}

func TestResolveRejectsEscapes(t *testing.T) {
	r, _ := newTestResolver(t)

	tests := []struct {
		name string
		ref  string
	}{
		{name: "parent traversal", ref: "../outside"},
		{name: "deep traversal", ref: "../../etc/passwd"},
		{name: "traversal hidden mid-path", ref: "exp_001/../../../etc/passwd"},
		{name: "absolute path outside root", ref: "/etc/passwd"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.Resolve(tt.ref)
			if err == nil {
				t.Fatalf("Resolve(%q) = %q, want PathEscapeError", tt.ref, got)
			}
			var pe *errs.PathEscapeError
			if !errors.As(err, &pe) {
				t.Errorf("Resolve(%q) returned %T, want *errs.PathEscapeError", tt.ref, err)
			}
		})
	}
}

func TestResolveRejectsSymlinkEscape(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlink test not supported on windows")
	}
	r, root := newTestResolver(t)

	outside := t.TempDir()
	link := filepath.Join(root, "sneaky")
	if err := os.Symlink(outside, link); err != nil {
		t.Fatalf("failed to create symlink: %v", err)
	}

	for _, ref := range []string{"sneaky", "sneaky/secret.txt"} {
		_, err := r.Resolve(ref)
		var pe *errs.PathEscapeError
		if !errors.As(err, &pe) {
			t.Errorf("Resolve(%q) = %v, want *errs.PathEscapeError", ref, err)
		}
	}
}

func TestResolveExisting(t *testing.T) {
	r, root := newTestResolver(t)
	if err := os.WriteFile(filepath.Join(root, "notes.txt"), []byte("x"), 0644); err != nil {
		t.Fatalf("failed to write fixture: %v", err)
	}

	if _, err := r.ResolveExisting("notes.txt"); err != nil {
		t.Errorf("ResolveExisting on existing file failed: %v", err)
	}

	_, err := r.ResolveExisting("missing.txt")
	var nf *errs.NotFoundError
	if !errors.As(err, &nf) {
		t.Errorf("ResolveExisting on missing file = %v, want *errs.NotFoundError", err)
	}
}

func TestRel(t *testing.T) {
	r, root := newTestResolver(t)
	if got := r.Rel(root); got != "." {
		t.Errorf("Rel(root) = %q, want %q", got, ".")
	}
	abs := filepath.Join(root, "exp_001", "README.md")
	if got := r.Rel(abs); got != filepath.Join("exp_001", "README.md") {
		t.Errorf("Rel(%q) = %q", abs, got)
	}
}

func TestNoFileOutsideRootIsEverOpened(t *testing.T) {
	r, _ := newTestResolver(t)

	// End-to-end check for the attack path: the resolver must fail before any
	// caller could open anything outside the root.
	resolved, err := r.Resolve("../../etc/passwd")
	if err == nil {
		t.Fatalf("expected PathEscapeError, got path %q", resolved)
	}
	if resolved != "" {
		t.Errorf("failed resolution must not return a partially-validated path, got %q", resolved)
	}
	if strings.Contains(resolved, "etc") {
		t.Errorf("resolved path leaked outside reference: %q", resolved)
	}
}
