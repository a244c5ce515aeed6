// Package reconcile implements the first-boot reconciliation pass: it
// compares every enabled settings entry against the stored snapshot for
// the current environment state and autosyncs, asks, or leaves it alone.
package reconcile

import "github.com/zjrosen/dockswap/internal/titles/domain"

// Class is the reconciliation category of one entry.
type Class int

const (
	// ClassClean means stored and live agree; nothing to do.
	ClassClean Class = iota
	// ClassAutosync means the title was last synced against another state.
	ClassAutosync
	// ClassConflict means the state matches but the live artifact drifted
	// from the stored snapshot.
	ClassConflict
)

func (c Class) String() string {
	switch c {
	case ClassClean:
		return "clean"
	case ClassAutosync:
		return "autosync"
	case ClassConflict:
		return "conflict"
	default:
		return "unknown"
	}
}

// Classify decides what reconciliation does with one entry. An absent
// stored snapshot always differs from the live bytes.
func Classify(fingerprint, current domain.StateKey, stored domain.Blob, live []byte) Class {
	if fingerprint != current {
		return ClassAutosync
	}
	if !domain.EqualBlobs(stored, domain.PresentBlob(live)) {
		return ClassConflict
	}
	return ClassClean
}
