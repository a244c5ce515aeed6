package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingArtifact means the live file or registry subtree does not
	// exist. The owning entry is disabled when this is observed.
	ErrMissingArtifact = errors.New("live artifact missing")

	// ErrDriftConflict means both the stored and the live artifact changed
	// and nobody decided which one wins.
	ErrDriftConflict = errors.New("drift conflict unresolved")

	// ErrIOFailure means reading or writing an artifact failed for a reason
	// other than absence.
	ErrIOFailure = errors.New("artifact i/o failure")

	// ErrSubtreeNotFound is returned by registry export when the subtree is
	// absent.
	ErrSubtreeNotFound = errors.New("registry subtree not found")
)

// ArtifactError describes a failed operation on one settings entry.
type ArtifactError struct {
	TitleID string
	EntryID string
	Path    string
	Op      string
	Err     error
}

func (e *ArtifactError) Error() string {
	return fmt.Sprintf("%s %s (title %s, entry %s): %v", e.Op, e.Path, e.TitleID, e.EntryID, e.Err)
}

func (e *ArtifactError) Unwrap() error {
	return e.Err
}

// TitleNotFoundError is returned when a title lookup fails.
type TitleNotFoundError struct {
	ID string
}

func (e *TitleNotFoundError) Error() string {
	return fmt.Sprintf("title not found: %s", e.ID)
}

// EntryNotFoundError is returned when a settings entry lookup fails.
type EntryNotFoundError struct {
	TitleID string
	EntryID string
}

func (e *EntryNotFoundError) Error() string {
	return fmt.Sprintf("settings entry %s not found on title %s", e.EntryID, e.TitleID)
}

// DuplicateTitleError is returned when adding a title whose ID is taken.
type DuplicateTitleError struct {
	ID string
}

func (e *DuplicateTitleError) Error() string {
	return fmt.Sprintf("title already registered: %s", e.ID)
}
