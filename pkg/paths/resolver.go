// Package paths guarantees that every filesystem access stays inside one
// project root. Every other component resolves caller-supplied references
// here before touching disk; a validated absolute path is then passed around
// as a handle and never re-derived from string fragments.
package paths

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"lab-notebook/notebook_go/pkg/errs"
)

// Resolver maps loosely-specified references (relative paths, bare names,
// "." for the root) to canonical absolute paths inside a single project root.
type Resolver struct {
	root string
}

// NewResolver canonicalizes the project root once. The root must exist; it is
// resolved through symlinks so that containment checks compare canonical
// forms.
func NewResolver(root string) (*Resolver, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to determine absolute project root for %q: %w", root, err)
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &errs.NotFoundError{Kind: "project", Name: root}
		}
		return nil, fmt.Errorf("failed to canonicalize project root %q: %w", root, err)
	}
	return &Resolver{root: resolved}, nil
}

// Root returns the canonical project root.
func (r *Resolver) Root() string {
	return r.root
}

// Resolve turns ref into one canonical absolute path inside the root, or
// fails with *errs.PathEscapeError. The containment check runs on the
// canonicalized form after symlink resolution, not on the raw string, so
// symlink and ".." tricks cannot escape. The target itself does not have to
// exist; symlinks are resolved on the deepest existing ancestor so paths
// about to be created can still be validated.
func (r *Resolver) Resolve(ref string) (string, error) {
	trimmed := strings.TrimSpace(ref)
	if trimmed == "" || trimmed == "." {
		return r.root, nil
	}

	var candidate string
	if filepath.IsAbs(trimmed) {
		// Absolute references are accepted only when they already point
		// inside the root (a previously validated handle being passed back).
		candidate = filepath.Clean(trimmed)
	} else {
		candidate = filepath.Join(r.root, trimmed)
	}

	if !r.contains(candidate) {
		return "", &errs.PathEscapeError{Ref: ref, Root: r.root}
	}

	resolved, err := r.evalDeepestExisting(candidate)
	if err != nil {
		return "", fmt.Errorf("failed to resolve symlinks for %q: %w", ref, err)
	}
	if !r.contains(resolved) {
		return "", &errs.PathEscapeError{Ref: ref, Root: r.root}
	}
	return resolved, nil
}

// ResolveExisting is Resolve plus an existence requirement on the target.
func (r *Resolver) ResolveExisting(ref string) (string, error) {
	resolved, err := r.Resolve(ref)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(resolved); err != nil {
		if os.IsNotExist(err) {
			return "", &errs.NotFoundError{Kind: "file", Name: ref}
		}
		return "", fmt.Errorf("failed to stat %q: %w", ref, err)
	}
	return resolved, nil
}

// Rel returns the root-relative form of a previously resolved absolute path,
// for display and session storage. The root itself maps to ".".
func (r *Resolver) Rel(abs string) string {
	rel, err := filepath.Rel(r.root, abs)
	if err != nil {
		return abs
	}
	return rel
}

// evalDeepestExisting resolves symlinks on the deepest existing ancestor of
// path and re-joins the not-yet-existing remainder.
func (r *Resolver) evalDeepestExisting(path string) (string, error) {
	prefix := path
	var remainder []string
	for {
		resolved, err := filepath.EvalSymlinks(prefix)
		if err == nil {
			for i := len(remainder) - 1; i >= 0; i-- {
				resolved = filepath.Join(resolved, remainder[i])
			}
			return resolved, nil
		}
		if !os.IsNotExist(err) {
			return "", err
		}
		parent := filepath.Dir(prefix)
		if parent == prefix {
			// Walked off the top without finding anything that exists.
			return path, nil
		}
		remainder = append(remainder, filepath.Base(prefix))
		prefix = parent
	}
}

func (r *Resolver) contains(path string) bool {
	return path == r.root || strings.HasPrefix(path, r.root+string(filepath.Separator))
}
