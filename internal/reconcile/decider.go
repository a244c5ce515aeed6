package reconcile

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/zjrosen/dockswap/internal/titles/domain"
)

// Resolution is the outcome of a conflict decision.
type Resolution int

const (
	// KeepStored restores the stored snapshot over the live artifact.
	KeepStored Resolution = iota
	// KeepLive captures the live artifact over the stored snapshot.
	KeepLive
)

func (r Resolution) String() string {
	switch r {
	case KeepStored:
		return "keep-stored"
	case KeepLive:
		return "keep-live"
	default:
		return "unknown"
	}
}

// ParseResolution parses "keep-stored" or "keep-live".
func ParseResolution(s string) (Resolution, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "keep-stored", "stored":
		return KeepStored, nil
	case "keep-live", "live":
		return KeepLive, nil
	default:
		return KeepStored, fmt.Errorf("unknown conflict resolution %q", s)
	}
}

// Conflict describes one drifted entry.
type Conflict struct {
	Title         *domain.Title
	Entry         *domain.SettingsEntry
	Path          string
	State         domain.StateKey
	Live          []byte
	LiveModTime   time.Time
	Stored        domain.Blob
	StoredModTime time.Time

	// LastCheck is the title's LastSync before this pass started.
	LastCheck time.Time
}

// Decider resolves conflicts. It is called at most once per conflicting
// entry per pass.
type Decider interface {
	Decide(ctx context.Context, c Conflict) (Resolution, error)
}

// DeciderFunc adapts a function to Decider.
type DeciderFunc func(ctx context.Context, c Conflict) (Resolution, error)

// Decide calls f.
func (f DeciderFunc) Decide(ctx context.Context, c Conflict) (Resolution, error) {
	return f(ctx, c)
}

// PolicyDecider always answers with the same resolution.
type PolicyDecider struct {
	Resolution Resolution
}

// Decide returns the fixed resolution.
func (p PolicyDecider) Decide(context.Context, Conflict) (Resolution, error) {
	return p.Resolution, nil
}
