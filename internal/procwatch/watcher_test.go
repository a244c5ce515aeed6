package procwatch

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/dockswap/internal/monitor"
	"github.com/zjrosen/dockswap/internal/syncengine"
	"github.com/zjrosen/dockswap/internal/testutil"
	"github.com/zjrosen/dockswap/internal/titles/domain"
	"github.com/zjrosen/dockswap/internal/titles/registry"
)

const (
	stateA domain.StateKey = testutil.StateA
	stateB domain.StateKey = testutil.StateB
)

type fakeSource struct {
	mu    sync.Mutex
	procs []Process
	err   error
}

func (f *fakeSource) set(procs ...Process) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.procs = procs
}

func (f *fakeSource) List(context.Context) ([]Process, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Process(nil), f.procs...), f.err
}

var states = monitor.States{A: stateA, B: stateB}

// signalAt returns a signal reporting key, or an unknown signal for "".
func signalAt(key domain.StateKey) *monitor.Signal {
	s := &monitor.Signal{}
	if !key.IsZero() {
		s.Set(key == stateB)
	}
	return s
}

type failingSignal struct{}

func (failingSignal) Current(context.Context) (bool, bool, error) {
	return false, false, errors.New("signal unreadable")
}

func newWatcher(t *testing.T, src ProcessSource, policy ExitPolicy, signal monitor.SignalSource, titles ...*domain.Title) *Watcher {
	t.Helper()
	reg := registry.New()
	for _, title := range titles {
		require.NoError(t, reg.Add(title))
	}
	engine := syncengine.New(syncengine.Config{
		Persister: testutil.NewMemRepository(),
		Clock:     testutil.NewFakeClock(time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)),
	})
	return New(Config{Source: src, Titles: reg, Engine: engine, Signal: signal, States: states, Policy: policy})
}

func TestWatcher_ExitCapturesIntoOppositeKey(t *testing.T) {
	title := testutil.NewTitle(t, "Game",
		testutil.Fingerprint(stateA),
		testutil.WithFile("cfg.ini", "played", testutil.Snap(stateA, "a stored"), testutil.Snap(stateB, "b stored")))
	entry := title.Settings[0]
	src := &fakeSource{}
	w := newWatcher(t, src, ExitCaptureOpposite, signalAt(stateA), title)
	ctx := context.Background()

	src.set(Process{PID: 10, Path: strings.ToUpper(title.ExecutablePath())}, Process{PID: 11, Path: "/usr/bin/other"})
	require.NoError(t, w.Poll(ctx))
	require.Equal(t, map[int]string{10: title.ID}, w.Tracked())

	src.set(Process{PID: 11, Path: "/usr/bin/other"})
	require.NoError(t, w.Poll(ctx))
	require.Empty(t, w.Tracked())

	require.Equal(t, "played", testutil.Stored(t, entry, stateB))
	require.Equal(t, "a stored", testutil.Stored(t, entry, stateA), "current key untouched")
	require.Equal(t, "played", testutil.ReadLive(t, title, entry), "live untouched")
	require.Equal(t, stateA, title.Fingerprint)
}

func TestWatcher_ExitCapturesIntoCurrentKey(t *testing.T) {
	title := testutil.NewTitle(t, "Game",
		testutil.Fingerprint(stateB),
		testutil.WithFile("cfg.ini", "played"))
	entry := title.Settings[0]
	src := &fakeSource{}
	w := newWatcher(t, src, ExitCaptureCurrent, signalAt(stateB), title)
	ctx := context.Background()

	src.set(Process{PID: 3, Path: title.ExecutablePath()})
	require.NoError(t, w.Poll(ctx))
	src.set()
	require.NoError(t, w.Poll(ctx))

	require.Equal(t, "played", testutil.Stored(t, entry, stateB))
	require.False(t, entry.Store.Has(stateA))
}

func TestWatcher_ExitReadsSignalBeforeMonitorApplies(t *testing.T) {
	title := testutil.NewTitle(t, "Game",
		testutil.Fingerprint(stateA),
		testutil.WithFile("cfg.ini", "a config", testutil.Snap(stateB, "b stored")))
	entry := title.Settings[0]
	src := &fakeSource{}
	signal := signalAt(stateA)
	w := newWatcher(t, src, ExitCaptureOpposite, signal, title)
	ctx := context.Background()

	src.set(Process{PID: 7, Start: "100", Path: title.ExecutablePath()})
	require.NoError(t, w.Poll(ctx))

	// docked, but the state monitor has not swapped yet
	signal.Set(true)
	src.set()
	require.NoError(t, w.Poll(ctx))

	require.Equal(t, "a config", testutil.Stored(t, entry, stateA), "captured into the state left behind")
	require.Equal(t, "b stored", testutil.Stored(t, entry, stateB), "docked snapshot survives")

	_, err := w.engine.SyncTitle(ctx, title, syncengine.FullSwap(stateA, stateB))
	require.NoError(t, err)
	require.Equal(t, "b stored", testutil.ReadLive(t, title, entry))
}

func TestWatcher_ReusedPIDIsAnExit(t *testing.T) {
	title := testutil.NewTitle(t, "Game",
		testutil.Fingerprint(stateA),
		testutil.WithFile("cfg.ini", "played"))
	entry := title.Settings[0]
	src := &fakeSource{}
	w := newWatcher(t, src, ExitCaptureOpposite, signalAt(stateA), title)
	ctx := context.Background()

	src.set(Process{PID: 42, Start: "1", Path: title.ExecutablePath()})
	require.NoError(t, w.Poll(ctx))
	require.False(t, entry.Store.Has(stateB))

	src.set(Process{PID: 42, Start: "2", Path: title.ExecutablePath()})
	require.NoError(t, w.Poll(ctx))
	require.Equal(t, "played", testutil.Stored(t, entry, stateB), "the first instance exited")
	require.Equal(t, map[int]string{42: title.ID}, w.Tracked(), "the new instance is tracked")
}

func TestWatcher_UnreadableSignalSkipsCapture(t *testing.T) {
	title := testutil.NewTitle(t, "Game", testutil.WithFile("cfg.ini", "played"))
	src := &fakeSource{}
	w := newWatcher(t, src, ExitCaptureOpposite, failingSignal{}, title)
	ctx := context.Background()

	src.set(Process{PID: 5, Path: title.ExecutablePath()})
	require.NoError(t, w.Poll(ctx))
	src.set()
	require.NoError(t, w.Poll(ctx))
	require.Zero(t, title.Settings[0].Store.Len())
}

func TestWatcher_IgnoresErrorTitlesAndUnknownState(t *testing.T) {
	broken := testutil.NewTitle(t, "Broken", testutil.WithFile("cfg.ini", "x"))
	broken.ErrorState = domain.ErrorMissingLocation
	src := &fakeSource{}
	w := newWatcher(t, src, ExitCaptureOpposite, signalAt(""), broken)

	src.set(Process{PID: 1, Path: broken.ExecutablePath()})
	require.NoError(t, w.Poll(context.Background()))
	require.Empty(t, w.Tracked(), "error titles never correlate")

	ok := testutil.NewTitle(t, "Game", testutil.WithFile("cfg.ini", "live"))
	w = newWatcher(t, src, ExitCaptureOpposite, signalAt(""), ok)
	src.set(Process{PID: 2, Path: ok.ExecutablePath()})
	require.NoError(t, w.Poll(context.Background()))
	src.set()
	require.NoError(t, w.Poll(context.Background()))
	require.Zero(t, ok.Settings[0].Store.Len(), "nothing captured without a known state")
}

func TestWatcher_SourceError(t *testing.T) {
	src := &fakeSource{err: errors.New("denied")}
	w := newWatcher(t, src, ExitCaptureOpposite, signalAt(stateA))
	require.Error(t, w.Poll(context.Background()))
}

func TestParseExitPolicy(t *testing.T) {
	p, err := ParseExitPolicy("")
	require.NoError(t, err)
	require.Equal(t, ExitCaptureOpposite, p)

	p, err = ParseExitPolicy("Current")
	require.NoError(t, err)
	require.Equal(t, ExitCaptureCurrent, p)

	_, err = ParseExitPolicy("both")
	require.Error(t, err)
}
