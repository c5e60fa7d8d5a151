package errs

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
)

func TestErrorMessagesNameTheSubject(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want []string
	}{
		{
			name: "path escape names ref and root",
			err:  &PathEscapeError{Ref: "../../etc/passwd", Root: "/data/proj"},
			want: []string{"../../etc/passwd", "/data/proj"},
		},
		{
			name: "not found suggests listing",
			err:  &NotFoundError{Kind: "experiment", Name: "exp_042"},
			want: []string{"exp_042", "list available"},
		},
		{
			name: "concurrent modification names experiment",
			err:  &ConcurrentModificationError{Experiment: "exp_001"},
			want: []string{"exp_001", "retry"},
		},
		{
			name: "permission names user and action",
			err:  &PermissionError{User: "mallory", Action: "share", Project: "plasmids"},
			want: []string{"mallory", "share", "plasmids"},
		},
		{
			name: "timeout names collaborator and budget",
			err:  &CollaboratorTimeoutError{Collaborator: "reasoning step", Timeout: 30 * time.Second},
			want: []string{"reasoning step", "30s"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := tt.err.Error()
			for _, w := range tt.want {
				if !strings.Contains(msg, w) {
					t.Errorf("message %q missing %q", msg, w)
				}
			}
		})
	}
}

func TestCollaboratorFailureUnwraps(t *testing.T) {
	cause := errors.New("connection refused")
	err := fmt.Errorf("failed to search literature: %w", &CollaboratorFailureError{Collaborator: "literature search", Err: cause})

	var cf *CollaboratorFailureError
	if !errors.As(err, &cf) {
		t.Fatal("expected errors.As to find CollaboratorFailureError")
	}
	if !errors.Is(err, cause) {
		t.Error("expected errors.Is to reach the wrapped cause")
	}
}
