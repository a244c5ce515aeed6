package syncengine

import (
	"fmt"

	"github.com/zjrosen/dockswap/internal/titles/domain"
)

// Intent says which directions a sync runs in.
type Intent int

const (
	// IntentNone touches no artifact; only the fingerprint is committed.
	IntentNone Intent = iota
	// IntentFullSwap captures into the old state, then restores the new one.
	IntentFullSwap
	// IntentCaptureOnly captures the live artifact without restoring.
	IntentCaptureOnly
	// IntentRestoreOnly restores a stored snapshot without capturing.
	IntentRestoreOnly
)

func (i Intent) String() string {
	switch i {
	case IntentNone:
		return "none"
	case IntentFullSwap:
		return "full_swap"
	case IntentCaptureOnly:
		return "capture_only"
	case IntentRestoreOnly:
		return "restore_only"
	default:
		return "unknown"
	}
}

// Captures reports whether the intent reads live artifacts into the store.
func (i Intent) Captures() bool {
	return i == IntentFullSwap || i == IntentCaptureOnly
}

// Restores reports whether the intent writes stored snapshots back.
func (i Intent) Restores() bool {
	return i == IntentFullSwap || i == IntentRestoreOnly
}

// Plan is one sync request. Active is the state the title is considered
// synced against afterwards.
type Plan struct {
	Intent     Intent
	CaptureKey domain.StateKey
	RestoreKey domain.StateKey
	Active     domain.StateKey
}

// FullSwap captures into from and restores to.
func FullSwap(from, to domain.StateKey) Plan {
	return Plan{Intent: IntentFullSwap, CaptureKey: from, RestoreKey: to, Active: to}
}

// CaptureOnly captures into key and marks the title synced against active.
func CaptureOnly(key, active domain.StateKey) Plan {
	return Plan{Intent: IntentCaptureOnly, CaptureKey: key, Active: active}
}

// RestoreOnly restores key.
func RestoreOnly(key domain.StateKey) Plan {
	return Plan{Intent: IntentRestoreOnly, RestoreKey: key, Active: key}
}

// NoOp commits active without touching artifacts.
func NoOp(active domain.StateKey) Plan {
	return Plan{Intent: IntentNone, Active: active}
}

// Validate rejects plans missing a key their intent needs.
func (p Plan) Validate() error {
	switch p.Intent {
	case IntentNone:
		return nil
	case IntentFullSwap, IntentCaptureOnly, IntentRestoreOnly:
	default:
		return fmt.Errorf("unknown sync intent %d", int(p.Intent))
	}
	if p.Intent.Captures() && p.CaptureKey.IsZero() {
		return fmt.Errorf("%s plan needs a capture key", p.Intent)
	}
	if p.Intent.Restores() && p.RestoreKey.IsZero() {
		return fmt.Errorf("%s plan needs a restore key", p.Intent)
	}
	if p.Active.IsZero() {
		return fmt.Errorf("%s plan needs an active state", p.Intent)
	}
	return nil
}

func (p Plan) String() string {
	switch p.Intent {
	case IntentFullSwap:
		return fmt.Sprintf("%s %s->%s", p.Intent, p.CaptureKey, p.RestoreKey)
	case IntentCaptureOnly:
		return fmt.Sprintf("%s into %s (active %s)", p.Intent, p.CaptureKey, p.Active)
	case IntentRestoreOnly:
		return fmt.Sprintf("%s from %s", p.Intent, p.RestoreKey)
	default:
		return fmt.Sprintf("%s (active %s)", p.Intent, p.Active)
	}
}
