package digest

import (
	"errors"
	"fmt"

	"mail-digest-go/internal/model"
)

var (
	ErrInactive          = errors.New("the digest feature is not enabled")
	ErrNotFound          = errors.New("digest not found")
	ErrIllegalTransition = errors.New("illegal digest status transition")
	ErrInvalidState      = errors.New("digest is not in a valid state for this operation")
	ErrConcurrentPrepare = errors.New("a newer digest was created concurrently")
	ErrPrepareInProgress = errors.New("digest preparation already in progress")
	ErrNothingRendered   = errors.New("no digest item could be rendered")
	ErrNoRecipients      = errors.New("no recipients resolved")
	ErrDuplicateContent  = errors.New("digest items contain a duplicate content id")
)

// ConfigurationError reports a disabled feature or a missing/invalid setting.
type ConfigurationError struct {
	Field string
	Err   error
}

func (e *ConfigurationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("digest configuration: %v", e.Err)
	}
	return fmt.Sprintf("digest configuration: %s %v", e.Field, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// SelectionError reports a mailing log failure during candidate selection.
type SelectionError struct {
	Err error
}

func (e *SelectionError) Error() string {
	return fmt.Sprintf("candidate selection failed: %v", e.Err)
}

func (e *SelectionError) Unwrap() error { return e.Err }

// RenderError reports a content item that could not be rendered. An empty
// ContentID means the digest as a whole could not be assembled.
type RenderError struct {
	ContentID   string
	ContentType string
	Err         error
}

func (e *RenderError) Error() string {
	if e.ContentID == "" {
		return fmt.Sprintf("render digest: %v", e.Err)
	}
	return fmt.Sprintf("render %s %s: %v", e.ContentType, e.ContentID, e.Err)
}

func (e *RenderError) Unwrap() error { return e.Err }

// DispatchError reports a notification dispatcher failure.
type DispatchError struct {
	Kind     string
	DigestID uint
	Err      error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("dispatch %s of digest %d failed: %v", e.Kind, e.DigestID, e.Err)
}

func (e *DispatchError) Unwrap() error { return e.Err }

// PersistenceError reports a digest store failure.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("digest store %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// TransitionError is returned by the store for a status change outside the
// transition table.
type TransitionError struct {
	DigestID uint
	From     model.DigestStatus
	To       model.DigestStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("digest %d: cannot move from %s to %s", e.DigestID, e.From, e.To)
}

func (e *TransitionError) Unwrap() error { return ErrIllegalTransition }

// StateError is returned when an operation's status precondition fails.
type StateError struct {
	DigestID uint
	Op       string
	Status   model.DigestStatus
}

func (e *StateError) Error() string {
	return fmt.Sprintf("%s: digest %d is %s", e.Op, e.DigestID, e.Status)
}

func (e *StateError) Unwrap() error { return ErrInvalidState }
