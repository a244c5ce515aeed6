package reconcile

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/zjrosen/dockswap/internal/syncengine"
	"github.com/zjrosen/dockswap/internal/testutil"
	"github.com/zjrosen/dockswap/internal/titles/domain"
	"github.com/zjrosen/dockswap/internal/titles/registry"
)

const (
	stateA domain.StateKey = testutil.StateA
	stateB domain.StateKey = testutil.StateB
)

type mockDecider struct {
	mock.Mock
}

func (m *mockDecider) Decide(ctx context.Context, c Conflict) (Resolution, error) {
	args := m.Called(ctx, c)
	return args.Get(0).(Resolution), args.Error(1)
}

type fixture struct {
	engine   *syncengine.Engine
	registry *registry.Registry
	clock    *testutil.FakeClock
	repo     *testutil.MemRepository
	notifier *testutil.RecordingNotifier
}

func newFixture(t *testing.T, titles ...*domain.Title) *fixture {
	t.Helper()
	f := &fixture{
		registry: registry.New(),
		clock:    testutil.NewFakeClock(time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)),
		repo:     testutil.NewMemRepository(),
		notifier: &testutil.RecordingNotifier{},
	}
	f.engine = syncengine.New(syncengine.Config{
		Blobs:     testutil.NewMemHive(),
		Persister: f.repo,
		Notifier:  f.notifier,
		Clock:     f.clock,
		LookupEnv: func(string) (string, bool) { return "", false },
	})
	for _, title := range titles {
		require.NoError(t, f.registry.Add(title))
	}
	return f
}

func (f *fixture) pass(d Decider) *Pass {
	return NewPass(f.engine, f.registry, d, f.notifier)
}

func TestPass_FirstBootThenSwaps(t *testing.T) {
	title := testutil.NewTitle(t, "Game", testutil.WithFile("cfg.ini", "undocked"))
	entry := title.Settings[0]
	f := newFixture(t, title)
	ctx := context.Background()

	report := f.pass(nil).Run(ctx, stateA)
	require.Empty(t, report.Errs())
	require.Len(t, report.Titles, 1)
	require.Equal(t, ClassAutosync, report.Titles[0].Entries[0].Class)
	require.Equal(t, stateA, title.Fingerprint)
	require.Equal(t, "undocked", testutil.Stored(t, entry, stateA))
	require.False(t, entry.Store.Has(stateB))
	require.Equal(t, f.clock.Now(), title.LastSync)

	// A -> B: the live file is captured into A; B has nothing to restore.
	f.clock.Advance(time.Minute)
	_, err := f.engine.SyncTitle(ctx, title, syncengine.FullSwap(stateA, stateB))
	require.NoError(t, err)
	require.Equal(t, "undocked", testutil.ReadLive(t, title, entry))

	testutil.WriteLive(t, title, entry, "docked")

	// B -> A: "docked" lands in B and A is restored.
	f.clock.Advance(time.Minute)
	_, err = f.engine.SyncTitle(ctx, title, syncengine.FullSwap(stateB, stateA))
	require.NoError(t, err)
	require.Equal(t, "undocked", testutil.ReadLive(t, title, entry))
	require.Equal(t, "docked", testutil.Stored(t, entry, stateB))
	require.Equal(t, stateA, title.Fingerprint)
}

func TestPass_AutosyncFromOtherState(t *testing.T) {
	title := testutil.NewTitle(t, "Game",
		testutil.Fingerprint(stateB),
		testutil.WithFile("cfg.ini", "edited while b", testutil.Snap(stateA, "a settings")))
	entry := title.Settings[0]
	f := newFixture(t, title)
	d := &mockDecider{}

	f.pass(d).Run(context.Background(), stateA)

	d.AssertNotCalled(t, "Decide", mock.Anything, mock.Anything)
	require.Equal(t, "edited while b", testutil.Stored(t, entry, stateB))
	require.Equal(t, "a settings", testutil.ReadLive(t, title, entry))
	require.Equal(t, stateA, title.Fingerprint)
	require.Equal(t, 1, f.repo.SaveCount(title.ID))
}

func TestPass_ConflictInvokesDeciderOnce(t *testing.T) {
	lastSync := time.Date(2024, 4, 1, 8, 0, 0, 0, time.UTC)
	title := testutil.NewTitle(t, "Game",
		testutil.Fingerprint(stateA),
		testutil.LastSync(lastSync),
		testutil.WithFile("cfg.ini", "user edit", testutil.Snap(stateA, "stored")))
	entry := title.Settings[0]
	f := newFixture(t, title)

	d := &mockDecider{}
	d.On("Decide", mock.Anything, mock.MatchedBy(func(c Conflict) bool {
		return c.Title == title &&
			c.Entry == entry &&
			c.State == stateA &&
			string(c.Live) == "user edit" &&
			c.Stored.Present && string(c.Stored.Data) == "stored" &&
			c.LastCheck.Equal(lastSync) &&
			c.Path == testutil.LivePath(title, entry)
	})).Return(KeepStored, nil).Once()

	report := f.pass(d).Run(context.Background(), stateA)

	d.AssertExpectations(t)
	d.AssertNumberOfCalls(t, "Decide", 1)
	out := report.Titles[0].Entries[0]
	require.Equal(t, ClassConflict, out.Class)
	require.NotNil(t, out.Resolution)
	require.Equal(t, KeepStored, *out.Resolution)
	require.Equal(t, "stored", testutil.ReadLive(t, title, entry))
	require.Equal(t, "stored", testutil.Stored(t, entry, stateA))
	require.Equal(t, f.clock.Now(), title.LastSync)
}

func TestPass_ConflictKeepLive(t *testing.T) {
	title := testutil.NewTitle(t, "Game",
		testutil.Fingerprint(stateA),
		testutil.WithFile("cfg.ini", "user edit", testutil.Snap(stateA, "stored"), testutil.Snap(stateB, "b")))
	entry := title.Settings[0]
	f := newFixture(t, title)

	f.pass(PolicyDecider{Resolution: KeepLive}).Run(context.Background(), stateA)

	require.Equal(t, "user edit", testutil.ReadLive(t, title, entry))
	require.Equal(t, "user edit", testutil.Stored(t, entry, stateA))
	require.Equal(t, "b", testutil.Stored(t, entry, stateB), "other slot untouched")
}

func TestPass_DeciderErrorIsDriftConflict(t *testing.T) {
	title := testutil.NewTitle(t, "Game",
		testutil.Fingerprint(stateA),
		testutil.WithFile("cfg.ini", "user edit", testutil.Snap(stateA, "stored")))
	entry := title.Settings[0]
	f := newFixture(t, title)

	failing := DeciderFunc(func(context.Context, Conflict) (Resolution, error) {
		return KeepStored, errors.New("prompt closed")
	})
	report := f.pass(failing).Run(context.Background(), stateA)

	out := report.Titles[0].Entries[0]
	require.ErrorIs(t, out.Err, domain.ErrDriftConflict)
	require.Nil(t, out.Resolution)
	require.Equal(t, "user edit", testutil.ReadLive(t, title, entry), "unresolved conflict leaves live alone")
	require.Equal(t, "stored", testutil.Stored(t, entry, stateA))
	require.True(t, entry.Enabled)
	require.Contains(t, f.notifier.Messages(), testutil.Notification{Message: "Game has unresolved settings changes", IsError: true})
}

func TestPass_CleanTitleDoesNotTouchLastSync(t *testing.T) {
	lastSync := time.Date(2024, 4, 1, 8, 0, 0, 0, time.UTC)
	title := testutil.NewTitle(t, "Game",
		testutil.Fingerprint(stateA),
		testutil.LastSync(lastSync),
		testutil.WithFile("cfg.ini", "same", testutil.Snap(stateA, "same")))
	f := newFixture(t, title)

	report := f.pass(&mockDecider{}).Run(context.Background(), stateA)

	tr := report.Titles[0]
	require.False(t, tr.Stepped)
	require.Equal(t, ClassClean, tr.Entries[0].Class)
	require.True(t, title.LastSync.Equal(lastSync))
	require.Empty(t, f.notifier.Messages(), "nothing changed, nothing announced")
}

func TestPass_MissingEntryIsDisabledAndPassContinues(t *testing.T) {
	title := testutil.NewTitle(t, "Game",
		testutil.Fingerprint(stateB),
		testutil.WithMissingFile("gone.ini", testutil.Snap(stateA, "gone")),
		testutil.WithFile("cfg.ini", "b live", testutil.Snap(stateA, "a stored")))
	gone, kept := title.Settings[0], title.Settings[1]
	f := newFixture(t, title)

	report := f.pass(nil).Run(context.Background(), stateA)

	tr := report.Titles[0]
	require.Len(t, tr.Entries, 2)
	require.ErrorIs(t, tr.Entries[0].Err, domain.ErrMissingArtifact)
	require.False(t, gone.Enabled)
	require.NoError(t, tr.Entries[1].Err)
	require.Equal(t, "a stored", testutil.ReadLive(t, title, kept))
	require.Equal(t, "b live", testutil.Stored(t, kept, stateB))
}

func TestPass_SkipsTitlesWithErrorState(t *testing.T) {
	titles := testutil.NewBuilder(t).WithStandardTitles().Build()
	f := newFixture(t, titles...)

	report := f.pass(PolicyDecider{Resolution: KeepStored}).Run(context.Background(), stateA)

	require.Len(t, report.Titles, 3)
	byName := map[string]TitleReport{}
	for _, tr := range report.Titles {
		byName[tr.TitleName] = tr
	}
	require.True(t, byName["Charlie"].Skipped)
	require.Empty(t, byName["Charlie"].Entries)
	require.False(t, byName["Alpha"].Skipped)
	require.False(t, byName["Bravo"].Skipped)
	require.Equal(t, stateA, titles[1].Fingerprint, "never-synced Bravo adopts the current state")
	require.Equal(t, domain.StateKey(""), titles[2].Fingerprint)
}

func TestPass_RunStopsWhenCancelled(t *testing.T) {
	titles := testutil.NewBuilder(t).WithStandardTitles().Build()
	f := newFixture(t, titles...)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report := f.pass(nil).Run(ctx, stateA)
	require.Empty(t, report.Titles)
}

func TestPass_RunTitleRejectsEmptyState(t *testing.T) {
	title := testutil.NewTitle(t, "Game", testutil.WithFile("cfg.ini", "x"))
	f := newFixture(t, title)

	tr := f.pass(nil).RunTitle(context.Background(), title, "")
	require.Error(t, tr.Err)
	require.Empty(t, tr.Entries)
}
