// Package syncengine moves settings artifacts between their live location
// and a title's per-state snapshot store.
//
// Every sync of a title runs under the title's sync lock. Entry failures
// are logged and counted but never abort the rest of the title.
package syncengine

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/zjrosen/dockswap/internal/log"
	"github.com/zjrosen/dockswap/internal/titles/domain"
	"github.com/zjrosen/dockswap/internal/tracing"
)

// RegistryBlobService exports and imports registry subtrees as opaque
// blobs. ExportSubtree returns domain.ErrSubtreeNotFound for a missing
// subtree.
type RegistryBlobService interface {
	ExportSubtree(ctx context.Context, path string) ([]byte, error)
	ImportSubtree(ctx context.Context, path string, data []byte) error
}

// Persister saves one title.
type Persister interface {
	Save(title *domain.Title) error
}

// Refresher reloads a title's sync state from its authoritative record.
// When the Persister also implements Refresher, every sync refreshes the
// title right after taking its lock. A domain.TitleNotFoundError means the
// title was removed elsewhere.
type Refresher interface {
	Refresh(title *domain.Title) error
}

// Notifier shows a short message to the user.
type Notifier interface {
	Notify(message string, isError bool)
}

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

type nopPersister struct{}

func (nopPersister) Save(*domain.Title) error { return nil }

type nopNotifier struct{}

func (nopNotifier) Notify(string, bool) {}

// Config holds the engine's collaborators. Only Blobs is required for
// registry entries; everything else has a usable default.
type Config struct {
	Blobs     RegistryBlobService
	Persister Persister
	Notifier  Notifier
	Clock     Clock
	Tracer    trace.Tracer
	LookupEnv domain.LookupFunc
}

// Engine performs capture and restore operations.
type Engine struct {
	blobs     RegistryBlobService
	persister Persister
	notifier  Notifier
	clock     Clock
	tracer    trace.Tracer
	lookupEnv domain.LookupFunc
}

// New creates an Engine, filling unset collaborators with defaults.
func New(cfg Config) *Engine {
	e := &Engine{
		blobs:     cfg.Blobs,
		persister: cfg.Persister,
		notifier:  cfg.Notifier,
		clock:     cfg.Clock,
		tracer:    cfg.Tracer,
		lookupEnv: cfg.LookupEnv,
	}
	if e.persister == nil {
		e.persister = nopPersister{}
	}
	if e.notifier == nil {
		e.notifier = nopNotifier{}
	}
	if e.clock == nil {
		e.clock = systemClock{}
	}
	if e.tracer == nil {
		e.tracer = tracing.NoopTracer()
	}
	if e.lookupEnv == nil {
		e.lookupEnv = os.LookupEnv
	}
	return e
}

// Now returns the engine clock's current time.
func (e *Engine) Now() time.Time {
	return e.clock.Now()
}

// Tracer returns the engine's tracer so callers can parent their spans.
func (e *Engine) Tracer() trace.Tracer {
	return e.tracer
}

// Refresh reloads t through the Persister when it is a Refresher and
// reports whether t was removed elsewhere. The caller must hold t's sync
// lock.
func (e *Engine) Refresh(t *domain.Title) (removed bool, err error) {
	r, ok := e.persister.(Refresher)
	if !ok {
		return false, nil
	}
	err = r.Refresh(t)
	var nf *domain.TitleNotFoundError
	if errors.As(err, &nf) {
		log.Info(log.CatSync, "Title was removed, skipping", "title", t.Name, "id", t.ID)
		return true, nil
	}
	return false, err
}

// ResolvePath expands an entry's location for a title.
func (e *Engine) ResolvePath(t *domain.Title, entry *domain.SettingsEntry) string {
	return t.ResolveLocation(entry, e.lookupEnv)
}

// LiveArtifact is the current content of an entry's live location.
type LiveArtifact struct {
	Path    string
	Data    []byte
	ModTime time.Time
}

// ReadLive reads the live artifact. A missing artifact yields an
// ArtifactError wrapping domain.ErrMissingArtifact; the entry is not
// modified.
func (e *Engine) ReadLive(ctx context.Context, t *domain.Title, entry *domain.SettingsEntry) (LiveArtifact, error) {
	path := e.ResolvePath(t, entry)
	live := LiveArtifact{Path: path}
	fail := func(err error) (LiveArtifact, error) {
		return live, &domain.ArtifactError{TitleID: t.ID, EntryID: entry.ID, Path: path, Op: "read", Err: err}
	}
	if path == "" {
		return fail(fmt.Errorf("%w: location expands to nothing", domain.ErrMissingArtifact))
	}

	switch entry.Kind {
	case domain.KindRegistry:
		if e.blobs == nil {
			return fail(fmt.Errorf("%w: registry service unavailable", domain.ErrIOFailure))
		}
		data, err := e.blobs.ExportSubtree(ctx, path)
		if errors.Is(err, domain.ErrSubtreeNotFound) {
			return fail(fmt.Errorf("%w: %v", domain.ErrMissingArtifact, err))
		}
		if err != nil {
			return fail(fmt.Errorf("%w: %v", domain.ErrIOFailure, err))
		}
		live.Data = data
		live.ModTime = e.clock.Now()
		return live, nil
	default:
		info, err := os.Stat(path)
		if errors.Is(err, fs.ErrNotExist) {
			return fail(domain.ErrMissingArtifact)
		}
		if err != nil {
			return fail(fmt.Errorf("%w: %v", domain.ErrIOFailure, err))
		}
		if info.IsDir() {
			return fail(fmt.Errorf("%w: %s is a directory", domain.ErrIOFailure, path))
		}
		data, err := os.ReadFile(path) //nolint:gosec // G304: path comes from the user's title configuration
		if err != nil {
			return fail(fmt.Errorf("%w: %v", domain.ErrIOFailure, err))
		}
		live.Data = data
		live.ModTime = info.ModTime()
		return live, nil
	}
}

// Capture reads the live artifact into the store under key. A missing live
// artifact disables the entry and returns an error wrapping
// domain.ErrMissingArtifact.
func (e *Engine) Capture(ctx context.Context, t *domain.Title, entry *domain.SettingsEntry, key domain.StateKey) error {
	live, err := e.ReadLive(ctx, t, entry)
	if err != nil {
		if errors.Is(err, domain.ErrMissingArtifact) {
			e.disable(ctx, t, entry, live.Path)
		}
		return err
	}
	entry.Store.Put(key, live.Data)
	entry.Store.SetModTime(key, live.ModTime)
	log.Debug(log.CatSync, "Captured", "title", t.Name, "entry", entry.ID, "key", key, "bytes", len(live.Data))
	trace.SpanFromContext(ctx).AddEvent(tracing.EventCaptured, trace.WithAttributes(
		attribute.String(tracing.AttrEntryID, entry.ID),
		attribute.String(tracing.AttrCaptureKey, string(key)),
	))
	return nil
}

// Restore writes the snapshot stored under key back to the live location.
// An absent key is a no-op. Restored files get title.LastSync as their
// modification time.
func (e *Engine) Restore(ctx context.Context, t *domain.Title, entry *domain.SettingsEntry, key domain.StateKey) error {
	_, err := e.restore(ctx, t, entry, key)
	return err
}

func (e *Engine) restore(ctx context.Context, t *domain.Title, entry *domain.SettingsEntry, key domain.StateKey) (bool, error) {
	data, ok := entry.Store.Get(key)
	if !ok {
		log.Debug(log.CatSync, "Restore skipped, nothing stored", "title", t.Name, "entry", entry.ID, "key", key)
		return false, nil
	}

	path := e.ResolvePath(t, entry)
	fail := func(err error) (bool, error) {
		return false, &domain.ArtifactError{TitleID: t.ID, EntryID: entry.ID, Path: path, Op: "restore", Err: err}
	}

	switch entry.Kind {
	case domain.KindRegistry:
		if e.blobs == nil {
			return fail(fmt.Errorf("%w: registry service unavailable", domain.ErrIOFailure))
		}
		if err := e.blobs.ImportSubtree(ctx, path, data); err != nil {
			return fail(fmt.Errorf("%w: %v", domain.ErrIOFailure, err))
		}
	default:
		info, err := os.Stat(path)
		if errors.Is(err, fs.ErrNotExist) {
			e.disable(ctx, t, entry, path)
			return fail(domain.ErrMissingArtifact)
		}
		if err != nil {
			return fail(fmt.Errorf("%w: %v", domain.ErrIOFailure, err))
		}
		if err := writeFileAtomic(path, data, info.Mode().Perm()); err != nil {
			return fail(fmt.Errorf("%w: %v", domain.ErrIOFailure, err))
		}
		if !t.LastSync.IsZero() {
			if err := os.Chtimes(path, t.LastSync, t.LastSync); err != nil {
				log.WarnErr(log.CatSync, "Setting restored file time failed", err, "path", path)
			}
		}
	}

	log.Debug(log.CatSync, "Restored", "title", t.Name, "entry", entry.ID, "key", key, "bytes", len(data))
	trace.SpanFromContext(ctx).AddEvent(tracing.EventRestored, trace.WithAttributes(
		attribute.String(tracing.AttrEntryID, entry.ID),
		attribute.String(tracing.AttrRestoreKey, string(key)),
	))
	return true, nil
}

func (e *Engine) disable(ctx context.Context, t *domain.Title, entry *domain.SettingsEntry, path string) {
	if !entry.Enabled {
		return
	}
	entry.Disable()
	log.Warn(log.CatSync, "Live artifact missing, entry disabled", "title", t.Name, "entry", entry.ID, "path", path)
	trace.SpanFromContext(ctx).AddEvent(tracing.EventEntryDisabled, trace.WithAttributes(
		attribute.String(tracing.AttrEntryID, entry.ID),
		attribute.String(tracing.AttrEntryPath, path),
	))
}

// SyncEntry runs plan against one entry. The caller must hold the title's
// sync lock. A failed capture skips the restore.
func (e *Engine) SyncEntry(ctx context.Context, t *domain.Title, entry *domain.SettingsEntry, plan Plan) EntryResult {
	res := EntryResult{EntryID: entry.ID, Path: e.ResolvePath(t, entry)}
	if !entry.Enabled {
		return res
	}

	if plan.Intent.Captures() {
		if err := e.Capture(ctx, t, entry, plan.CaptureKey); err != nil {
			res.Err = err
			res.Disabled = !entry.Enabled
			return res
		}
		res.Captured = true
	}
	if plan.Intent.Restores() {
		restored, err := e.restore(ctx, t, entry, plan.RestoreKey)
		if err != nil {
			res.Err = err
			res.Disabled = !entry.Enabled
			return res
		}
		res.Restored = restored
	}
	return res
}

// SyncTitle runs plan over every enabled entry of t in order, then commits
// plan.Active as the title's fingerprint and persists it. Titles with an
// error state are skipped.
func (e *Engine) SyncTitle(ctx context.Context, t *domain.Title, plan Plan) (Report, error) {
	report := newReport(t, plan)
	if err := plan.Validate(); err != nil {
		return report, err
	}

	release := t.BeginSync()
	defer release()

	removed, err := e.Refresh(t)
	if err != nil {
		return report, err
	}
	if removed {
		report.Skipped = true
		return report, nil
	}
	if !t.Syncable() {
		report.Skipped = true
		log.Debug(log.CatSync, "Skipping title with error state", "title", t.Name, "state", t.ErrorState)
		return report, nil
	}

	ctx, span := e.tracer.Start(ctx, tracing.SpanSyncTitle, trace.WithAttributes(tracing.TitleAttrs(t.ID, t.Name)...))
	defer span.End()
	span.SetAttributes(
		attribute.String(tracing.AttrIntent, plan.Intent.String()),
		attribute.String(tracing.AttrActiveState, string(plan.Active)),
	)

	t.LastSync = e.clock.Now()
	for _, entry := range t.Settings {
		if !entry.Enabled {
			continue
		}
		res := e.SyncEntry(ctx, t, entry, plan)
		if res.Err != nil {
			log.WarnErr(log.CatSync, "Entry sync failed", res.Err, "title", t.Name, "entry", entry.ID, "plan", plan)
		}
		report.Entries = append(report.Entries, res)
	}
	span.SetAttributes(attribute.Int(tracing.AttrFailures, report.Failures()))

	if err := e.Commit(t, plan.Active, true); err != nil {
		tracing.RecordError(span, err)
		return report, err
	}
	log.Info(log.CatSync, "Title synced", "title", t.Name, "plan", plan, "entries", len(report.Entries), "failures", report.Failures())
	return report, nil
}

// Commit records active as the title's fingerprint, persists the title and,
// when changed is set, tells the user its settings were updated. The
// caller must hold the title's sync lock.
func (e *Engine) Commit(t *domain.Title, active domain.StateKey, changed bool) error {
	if !active.IsZero() {
		t.Fingerprint = active
	}
	if err := e.persister.Save(t); err != nil {
		e.notifier.Notify(fmt.Sprintf("%s settings could not be saved", t.Name), true)
		return fmt.Errorf("persisting %s: %w", t.Name, err)
	}
	if changed {
		e.notifier.Notify(fmt.Sprintf("%s settings have been updated", t.Name), false)
	}
	return nil
}

// Seed captures every enabled entry into each of keys without restoring,
// so that a freshly added title has data for every state. The fingerprint
// is left untouched.
func (e *Engine) Seed(ctx context.Context, t *domain.Title, keys ...domain.StateKey) (Report, error) {
	report := newReport(t, Plan{Intent: IntentCaptureOnly})
	release := t.BeginSync()
	defer release()

	removed, err := e.Refresh(t)
	if err != nil {
		return report, err
	}
	if removed || !t.Syncable() {
		report.Skipped = true
		return report, nil
	}

	ctx, span := e.tracer.Start(ctx, tracing.SpanSeed, trace.WithAttributes(tracing.TitleAttrs(t.ID, t.Name)...))
	defer span.End()

	for _, entry := range t.Settings {
		if !entry.Enabled {
			continue
		}
		live, err := e.ReadLive(ctx, t, entry)
		res := EntryResult{EntryID: entry.ID, Path: live.Path}
		if err != nil {
			if errors.Is(err, domain.ErrMissingArtifact) {
				e.disable(ctx, t, entry, live.Path)
				res.Disabled = true
			}
			res.Err = err
			log.WarnErr(log.CatSync, "Seeding entry failed", err, "title", t.Name, "entry", entry.ID)
			report.Entries = append(report.Entries, res)
			continue
		}
		for _, key := range keys {
			if key.IsZero() {
				continue
			}
			entry.Store.Put(key, live.Data)
			entry.Store.SetModTime(key, live.ModTime)
		}
		res.Captured = true
		report.Entries = append(report.Entries, res)
	}

	if err := e.persister.Save(t); err != nil {
		tracing.RecordError(span, err)
		return report, fmt.Errorf("persisting %s: %w", t.Name, err)
	}
	log.Info(log.CatSync, "Title seeded", "title", t.Name, "keys", len(keys), "entries", len(report.Entries))
	return report, nil
}

// Drifted reports whether an entry's live artifact differs from the
// snapshot stored under the title's fingerprint. A title that was never
// synced has not drifted, and neither has an entry the title no longer
// has. It takes the title's sync lock.
func (e *Engine) Drifted(ctx context.Context, t *domain.Title, entry *domain.SettingsEntry) (bool, error) {
	release := t.BeginSync()
	defer release()

	entry, ok := t.Setting(entry.ID)
	if !ok || t.Fingerprint.IsZero() || !entry.Enabled {
		return false, nil
	}
	live, err := e.ReadLive(ctx, t, entry)
	if err != nil {
		return false, err
	}
	return !domain.EqualBlobs(entry.Store.Blob(t.Fingerprint), domain.PresentBlob(live.Data)), nil
}

// writeFileAtomic writes data to a temp file beside path and renames it
// into place.
func writeFileAtomic(path string, data []byte, perm fs.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".dockswap-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return err
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		cleanup()
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return err
	}
	return nil
}
