// Package errs defines the error taxonomy shared by every layer of the
// notebook. The types here are the contract between the storage/resolver
// layer and the session/context layer: callers decide retry vs. degrade by
// type, never by matching message strings.
package errs

import (
	"fmt"
	"time"
)

// PathEscapeError is returned when a resolved path falls outside the project
// root. It is fatal to the operation and never retried automatically.
type PathEscapeError struct {
	Ref  string // the caller-supplied reference
	Root string // the project root it escaped
}

func (e *PathEscapeError) Error() string {
	return fmt.Sprintf("path %q resolves outside the project root %q", e.Ref, e.Root)
}

// NotFoundError is returned when a referenced project, experiment or file does
// not exist. Recoverable: the message tells the caller what to list.
type NotFoundError struct {
	Kind string // "project", "experiment", "file"
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found; list available %ss to see what exists", e.Kind, e.Name, e.Kind)
}

// ConcurrentModificationError is returned when a memory write lost the race
// against another writer and the internal re-read-and-retry also failed.
// Recoverable: the caller should re-read and retry.
type ConcurrentModificationError struct {
	Experiment string
}

func (e *ConcurrentModificationError) Error() string {
	return fmt.Sprintf("memory document of experiment %q changed while the update was in flight; re-read and retry", e.Experiment)
}

// PermissionError is returned when a session lacks the required access level.
// Fatal to the operation, not retried.
type PermissionError struct {
	User    string
	Action  string
	Project string
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("user %q is not permitted to %s on project %q", e.User, e.Action, e.Project)
}

// CollaboratorTimeoutError is returned when an external collaborator (the
// reasoning step, the search provider, the converter) exceeded its time
// budget. Recoverable by retry.
type CollaboratorTimeoutError struct {
	Collaborator string
	Timeout      time.Duration
}

func (e *CollaboratorTimeoutError) Error() string {
	return fmt.Sprintf("%s did not respond within %s", e.Collaborator, e.Timeout)
}

// CollaboratorFailureError is returned when an external collaborator failed
// outright. Recoverable by retry or graceful degradation; it must never be
// silently swallowed as a successful empty answer.
type CollaboratorFailureError struct {
	Collaborator string
	Err          error
}

func (e *CollaboratorFailureError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Collaborator, e.Err)
}

func (e *CollaboratorFailureError) Unwrap() error {
	return e.Err
}
