// Package domain provides the pure domain layer for titles and their
// settings snapshots.
//
// This package holds:
//   - The Title entity and its ordered SettingsEntry list
//   - The ArtifactStore keeping one snapshot per environment state
//   - Location template expansion
//   - The TitleRepository interface for persistence abstraction
//   - Domain-specific error values
//
// The domain layer has no knowledge of databases, the registry hive or the
// process table; those live behind interfaces owned by the consuming packages.
package domain

import (
	"fmt"
	"strings"
)

// StateKey identifies one environment state slot in an ArtifactStore.
// The empty key means "no state", e.g. a title that was never synced.
type StateKey string

// IsZero reports whether the key is the empty "no state" key.
func (k StateKey) IsZero() bool {
	return k == ""
}

func (k StateKey) String() string {
	if k == "" {
		return "<none>"
	}
	return string(k)
}

// Kind is the type of live artifact a SettingsEntry points at.
type Kind int

const (
	// KindFile is a single file on disk.
	KindFile Kind = iota
	// KindRegistry is a registry subtree moved around as an export blob.
	KindRegistry
)

func (k Kind) String() string {
	switch k {
	case KindFile:
		return "file"
	case KindRegistry:
		return "registry"
	default:
		return "unknown"
	}
}

// ParseKind parses a kind name as written in manifests and the database.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "file", "":
		return KindFile, nil
	case "registry", "reg":
		return KindRegistry, nil
	default:
		return KindFile, fmt.Errorf("unknown settings kind %q", s)
	}
}

// ErrorState is a title-level problem that excludes the title from every
// sync and reconciliation operation.
type ErrorState int

const (
	ErrorNone ErrorState = iota
	ErrorMissingExecutable
	ErrorMissingLocation
	ErrorNoSettings
)

func (e ErrorState) String() string {
	switch e {
	case ErrorNone:
		return "none"
	case ErrorMissingExecutable:
		return "missing_executable"
	case ErrorMissingLocation:
		return "missing_location"
	case ErrorNoSettings:
		return "no_settings"
	default:
		return "unknown"
	}
}

// ParseErrorState is the inverse of ErrorState.String. Unrecognized values
// map to ErrorNone so a stale database row never blocks a title forever.
func ParseErrorState(s string) ErrorState {
	switch s {
	case "missing_executable":
		return ErrorMissingExecutable
	case "missing_location":
		return ErrorMissingLocation
	case "no_settings":
		return ErrorNoSettings
	default:
		return ErrorNone
	}
}
