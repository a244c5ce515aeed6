package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/zjrosen/dockswap/internal/log"
	"github.com/zjrosen/dockswap/internal/syncengine"
	"github.com/zjrosen/dockswap/internal/titles/domain"
	"github.com/zjrosen/dockswap/internal/titles/registry"
	"github.com/zjrosen/dockswap/internal/tracing"
)

// TitleLister returns the titles a pass walks over.
type TitleLister interface {
	List(q registry.ListQuery) []*domain.Title
}

// EntryOutcome is what the pass did with one entry.
type EntryOutcome struct {
	EntryID    string
	Path       string
	Class      Class
	Resolution *Resolution
	Result     syncengine.EntryResult
	Err        error
}

// TitleReport summarizes one title.
type TitleReport struct {
	TitleID   string
	TitleName string
	Skipped   bool
	Stepped   bool
	Entries   []EntryOutcome
	Err       error
}

// Conflicts counts entries classified as conflicts.
func (r TitleReport) Conflicts() int {
	n := 0
	for _, e := range r.Entries {
		if e.Class == ClassConflict {
			n++
		}
	}
	return n
}

// Report summarizes a full pass.
type Report struct {
	State  domain.StateKey
	Titles []TitleReport
}

// Errs returns the per-title errors of the pass.
func (r Report) Errs() []error {
	var errs []error
	for _, t := range r.Titles {
		if t.Err != nil {
			errs = append(errs, t.Err)
		}
	}
	return errs
}

// Pass reconciles stored snapshots with live artifacts when the current
// environment state is first observed.
type Pass struct {
	engine   *syncengine.Engine
	titles   TitleLister
	decider  Decider
	notifier syncengine.Notifier
}

// NewPass creates a Pass. A nil decider keeps stored snapshots; a nil
// notifier drops conflict notices.
func NewPass(engine *syncengine.Engine, titles TitleLister, decider Decider, notifier syncengine.Notifier) *Pass {
	if decider == nil {
		decider = PolicyDecider{Resolution: KeepStored}
	}
	return &Pass{engine: engine, titles: titles, decider: decider, notifier: notifier}
}

// Run reconciles every registered title against current, in registry
// order. Cancellation is checked between titles.
func (p *Pass) Run(ctx context.Context, current domain.StateKey) Report {
	report := Report{State: current}
	ctx, span := p.engine.Tracer().Start(ctx, tracing.SpanReconcile,
		trace.WithAttributes(attribute.String(tracing.AttrStateTo, string(current))))
	defer span.End()

	titles := p.titles.List(registry.ListQuery{})
	log.Info(log.CatReconcile, "Reconciliation started", "state", current, "titles", len(titles))
	for _, t := range titles {
		if ctx.Err() != nil {
			log.Warn(log.CatReconcile, "Reconciliation cancelled", "remaining", len(titles)-len(report.Titles))
			break
		}
		tr := p.RunTitle(ctx, t, current)
		if tr.Err != nil {
			log.ErrorErr(log.CatReconcile, "Reconciling title failed", tr.Err, "title", t.Name)
		}
		report.Titles = append(report.Titles, tr)
	}
	span.SetAttributes(attribute.Int(tracing.AttrFailures, len(report.Errs())))
	log.Info(log.CatReconcile, "Reconciliation finished", "state", current, "titles", len(report.Titles))
	return report
}

// RunTitle reconciles one title against current while holding its sync
// lock.
func (p *Pass) RunTitle(ctx context.Context, t *domain.Title, current domain.StateKey) TitleReport {
	report := TitleReport{TitleID: t.ID, TitleName: t.Name}
	if current.IsZero() {
		report.Err = errors.New("reconcile: current state is empty")
		return report
	}

	release := t.BeginSync()
	defer release()

	removed, err := p.engine.Refresh(t)
	if err != nil {
		report.Err = err
		return report
	}
	if removed {
		report.Skipped = true
		return report
	}
	if !t.Syncable() {
		report.Skipped = true
		log.Info(log.CatReconcile, "Skipping title with error state", "title", t.Name, "state", t.ErrorState)
		return report
	}

	ctx, span := p.engine.Tracer().Start(ctx, tracing.SpanReconcileTitle,
		trace.WithAttributes(tracing.TitleAttrs(t.ID, t.Name)...))
	defer span.End()

	lastCheck := t.LastSync
	stamp := func() {
		if !report.Stepped {
			t.LastSync = p.engine.Now()
			report.Stepped = true
		}
	}

	for _, entry := range t.Settings {
		if !entry.Enabled {
			continue
		}
		out := p.reconcileEntry(ctx, t, entry, current, lastCheck, stamp)
		if out.Err != nil {
			log.WarnErr(log.CatReconcile, "Entry reconciliation failed", out.Err, "title", t.Name, "entry", entry.ID)
		}
		report.Entries = append(report.Entries, out)
	}

	if err := p.engine.Commit(t, current, report.Stepped); err != nil {
		tracing.RecordError(span, err)
		report.Err = err
	}
	log.Debug(log.CatReconcile, "Title reconciled", "title", t.Name, "entries", len(report.Entries),
		"conflicts", report.Conflicts(), "stepped", report.Stepped)
	return report
}

func (p *Pass) reconcileEntry(
	ctx context.Context,
	t *domain.Title,
	entry *domain.SettingsEntry,
	current domain.StateKey,
	lastCheck time.Time,
	stamp func(),
) EntryOutcome {
	live, err := p.engine.ReadLive(ctx, t, entry)
	out := EntryOutcome{EntryID: entry.ID, Path: live.Path}
	if err != nil {
		entry.Disable()
		out.Err = err
		out.Result = syncengine.EntryResult{EntryID: entry.ID, Path: live.Path, Disabled: true, Err: err}
		trace.SpanFromContext(ctx).AddEvent(tracing.EventEntryDisabled, trace.WithAttributes(
			attribute.String(tracing.AttrEntryID, entry.ID),
			attribute.String(tracing.AttrEntryPath, live.Path),
		))
		return out
	}

	stored := entry.Store.Blob(current)
	out.Class = Classify(t.Fingerprint, current, stored, live.Data)

	var plan syncengine.Plan
	switch out.Class {
	case ClassClean:
		return out
	case ClassAutosync:
		if t.Fingerprint.IsZero() {
			plan = syncengine.CaptureOnly(current, current)
		} else {
			plan = syncengine.FullSwap(t.Fingerprint, current)
		}
	case ClassConflict:
		storedMod, _ := entry.Store.ModTime(current)
		c := Conflict{
			Title:         t,
			Entry:         entry,
			Path:          live.Path,
			State:         current,
			Live:          live.Data,
			LiveModTime:   live.ModTime,
			Stored:        stored,
			StoredModTime: storedMod,
			LastCheck:     lastCheck,
		}
		trace.SpanFromContext(ctx).AddEvent(tracing.EventConflict, trace.WithAttributes(
			attribute.String(tracing.AttrEntryID, entry.ID),
			attribute.String(tracing.AttrEntryPath, live.Path),
		))
		res, err := p.decider.Decide(ctx, c)
		if err != nil {
			out.Err = &domain.ArtifactError{
				TitleID: t.ID, EntryID: entry.ID, Path: live.Path, Op: "reconcile",
				Err: fmt.Errorf("%w: %v", domain.ErrDriftConflict, err),
			}
			if p.notifier != nil {
				p.notifier.Notify(fmt.Sprintf("%s has unresolved settings changes", t.Name), true)
			}
			return out
		}
		out.Resolution = &res
		log.Info(log.CatReconcile, "Conflict resolved", "title", t.Name, "path", live.Path, "resolution", res)
		if res == KeepLive {
			plan = syncengine.CaptureOnly(current, current)
		} else {
			plan = syncengine.RestoreOnly(current)
		}
	}

	stamp()
	out.Result = p.engine.SyncEntry(ctx, t, entry, plan)
	out.Err = out.Result.Err
	return out
}
