// Package convert is the document-conversion collaborator boundary: file in,
// plain text out. Conversion quality and method are out of scope here; the
// notebook only needs a synchronous call/response contract.
package convert

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"lab-notebook/notebook_go/pkg/errs"
)

// Converter turns one file into a text representation.
type Converter interface {
	Convert(ctx context.Context, path string) (string, error)
}

// plainTextExtensions are served by reading the file directly.
var plainTextExtensions = map[string]bool{
	".txt": true, ".csv": true, ".tsv": true, ".md": true, ".json": true, ".log": true,
}

// PlainText handles files that already are text. Anything else fails with a
// collaborator error so the caller can pick a richer converter.
type PlainText struct{}

func (PlainText) Convert(ctx context.Context, path string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	ext := strings.ToLower(filepath.Ext(path))
	if !plainTextExtensions[ext] {
		return "", &errs.CollaboratorFailureError{
			Collaborator: "document conversion",
			Err:          fmt.Errorf("no plain-text reader for %q files", ext),
		}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read %q: %w", filepath.Base(path), err)
	}
	return string(data), nil
}

// Command shells out to an external converter binary (pandoc by default)
// that writes markdown to stdout.
type Command struct {
	Bin string
}

func (c Command) Convert(ctx context.Context, path string) (string, error) {
	bin := c.Bin
	if bin == "" {
		bin = "pandoc"
	}
	var out, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, bin, "--to=markdown", path)
	cmd.Stdout = &out
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", &errs.CollaboratorFailureError{
				Collaborator: "document conversion",
				Err:          fmt.Errorf("%s timed out on %q", bin, filepath.Base(path)),
			}
		}
		return "", &errs.CollaboratorFailureError{
			Collaborator: "document conversion",
			Err:          fmt.Errorf("%s failed on %q: %v (%s)", bin, filepath.Base(path), err, strings.TrimSpace(stderr.String())),
		}
	}
	return out.String(), nil
}

// Auto serves text files directly and hands everything else to the external
// converter.
type Auto struct {
	External Converter
}

func (a Auto) Convert(ctx context.Context, path string) (string, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if plainTextExtensions[ext] {
		return PlainText{}.Convert(ctx, path)
	}
	if a.External == nil {
		return Command{}.Convert(ctx, path)
	}
	return a.External.Convert(ctx, path)
}
