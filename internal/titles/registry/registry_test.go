package registry

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/zjrosen/dockswap/internal/testutil"
	"github.com/zjrosen/dockswap/internal/titles/domain"
)

type mockRepository struct {
	mock.Mock
}

func (m *mockRepository) LoadAll() ([]*domain.Title, error) {
	args := m.Called()
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Title), args.Error(1)
}

func (m *mockRepository) Get(id string) (*domain.Title, error) {
	args := m.Called(id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Title), args.Error(1)
}

func (m *mockRepository) Create(t *domain.Title) error {
	return m.Called(t).Error(0)
}

func (m *mockRepository) Save(t *domain.Title) error {
	return m.Called(t).Error(0)
}

func (m *mockRepository) Delete(id string) error {
	return m.Called(id).Error(0)
}

func (m *mockRepository) Close() error {
	return m.Called().Error(0)
}

func TestRegistry_AddGetList(t *testing.T) {
	r := New()
	b := domain.NewTitle("Bravo", "/b", "")
	a := domain.NewTitle("Alpha", "/a", "")

	require.NoError(t, r.Add(b))
	require.NoError(t, r.Add(a))

	got, ok := r.Get(a.ID)
	require.True(t, ok)
	require.Same(t, a, got)

	require.Equal(t, []*domain.Title{a, b}, r.List(ListQuery{}), "list is ordered by name")
	require.Equal(t, 2, r.Len())
}

func TestRegistry_AddDuplicate(t *testing.T) {
	r := New()
	title := domain.NewTitle("A", "/a", "")
	require.NoError(t, r.Add(title))

	err := r.Add(title)
	var dup *domain.DuplicateTitleError
	require.ErrorAs(t, err, &dup)
	require.Equal(t, title.ID, dup.ID)
}

func TestRegistry_AddRejectsInvalid(t *testing.T) {
	r := New()
	require.Error(t, r.Add(nil))
	require.Error(t, r.Add(&domain.Title{Name: "no id"}))
}

func TestRegistry_ListQuery(t *testing.T) {
	titles := testutil.NewBuilder(t).WithStandardTitles().Build()
	titles[1].Source = domain.SourceImport

	r := New()
	for _, title := range titles {
		require.NoError(t, r.Add(title))
	}

	syncable := r.List(ListQuery{SyncableOnly: true})
	require.Len(t, syncable, 2)
	for _, title := range syncable {
		require.True(t, title.Syncable())
	}

	imported := r.List(ListQuery{Source: domain.SourceImport})
	require.Equal(t, []*domain.Title{titles[1]}, imported)
}

func TestRegistry_Lookup(t *testing.T) {
	r := New()
	title := domain.NewTitle("Half-Life", "/hl", "")
	require.NoError(t, r.Add(title))

	got, err := r.Lookup(title.ID)
	require.NoError(t, err)
	require.Same(t, title, got)

	got, err = r.Lookup("half-life")
	require.NoError(t, err)
	require.Same(t, title, got)

	_, err = r.Lookup("portal")
	var nf *domain.TitleNotFoundError
	require.ErrorAs(t, err, &nf)
}

func TestRegistry_DurablePersistsBeforeMap(t *testing.T) {
	repo := &mockRepository{}
	title := domain.NewTitle("A", "/a", "")
	repo.On("Create", title).Return(errors.New("disk full")).Once()

	r := NewDurable(repo)
	err := r.Add(title)
	require.Error(t, err)
	require.Equal(t, 0, r.Len(), "failed persist must not register the title")
	repo.AssertExpectations(t)
}

func TestRegistry_RemoveDeletesPersistedRecordFirst(t *testing.T) {
	repo := &mockRepository{}
	title := domain.NewTitle("A", "/a", "")
	repo.On("Create", title).Return(nil)
	repo.On("Delete", title.ID).Return(errors.New("locked")).Once()
	repo.On("Delete", title.ID).Return(nil).Once()

	r := NewDurable(repo)
	require.NoError(t, r.Add(title))

	require.Error(t, r.Remove(title.ID))
	_, ok := r.Get(title.ID)
	require.True(t, ok, "title stays registered when the delete fails")

	require.NoError(t, r.Remove(title.ID))
	_, ok = r.Get(title.ID)
	require.False(t, ok)

	var nf *domain.TitleNotFoundError
	require.ErrorAs(t, r.Remove(title.ID), &nf)
	repo.AssertExpectations(t)
}

func TestRegistry_Load(t *testing.T) {
	a := domain.NewTitle("A", "/a", "")
	b := domain.NewTitle("B", "/b", "")
	repo := testutil.NewMemRepository(a, b)

	r := NewDurable(repo)
	require.NoError(t, r.Load())
	require.Equal(t, 2, r.Len())

	require.NoError(t, New().Load(), "load without repository is a no-op")
}

func TestRegistry_UpdatePersists(t *testing.T) {
	repo := testutil.NewMemRepository()
	r := NewDurable(repo)
	title := domain.NewTitle("A", "/a", "")
	entry := title.AddSetting(domain.KindFile, "x.ini")
	require.NoError(t, r.Add(title))

	err := r.Update(title.ID, func(t *domain.Title) { entry.Disable() })
	require.NoError(t, err)
	require.False(t, entry.Enabled)
	require.Equal(t, 2, repo.SaveCount(title.ID))

	require.Error(t, r.Update("missing", func(*domain.Title) {}))
	require.Error(t, r.Update(title.ID, nil))
}

func TestRegistry_SaveDropsTitleDeletedElsewhere(t *testing.T) {
	repo := &mockRepository{}
	title := domain.NewTitle("A", "/a", "")
	repo.On("Create", title).Return(nil)
	repo.On("Save", title).Return(&domain.TitleNotFoundError{ID: title.ID}).Once()

	r := NewDurable(repo)
	require.NoError(t, r.Add(title))

	var nf *domain.TitleNotFoundError
	require.ErrorAs(t, r.Save(title), &nf)
	_, ok := r.Get(title.ID)
	require.False(t, ok, "a deleted title is dropped, not written back")
	repo.AssertExpectations(t)
}

func TestRegistry_RefreshTakesPersistedState(t *testing.T) {
	repo := &mockRepository{}
	title := domain.NewTitle("A", "/a", "")
	entry := title.AddSetting(domain.KindFile, "a.ini")
	repo.On("Create", title).Return(nil)

	stored := &domain.Title{ID: title.ID, Name: title.Name, Fingerprint: "b"}
	stored.Settings = []*domain.SettingsEntry{{ID: entry.ID, Kind: domain.KindFile, Location: "a.ini", Store: domain.NewArtifactStore()}}
	repo.On("Get", title.ID).Return(stored, nil).Once()
	repo.On("Get", title.ID).Return(nil, &domain.TitleNotFoundError{ID: title.ID}).Once()

	r := NewDurable(repo)
	require.NoError(t, r.Add(title))

	release := title.BeginSync()
	require.NoError(t, r.Refresh(title))
	release()
	require.Equal(t, domain.StateKey("b"), title.Fingerprint)
	require.False(t, entry.Enabled, "disabled elsewhere")
	require.Same(t, entry, title.Settings[0])

	release = title.BeginSync()
	err := r.Refresh(title)
	release()
	var nf *domain.TitleNotFoundError
	require.ErrorAs(t, err, &nf)
	require.Equal(t, 0, r.Len())
	repo.AssertExpectations(t)
}

func TestRegistry_UpdateRefreshesBeforeApplying(t *testing.T) {
	repo := &mockRepository{}
	title := domain.NewTitle("A", "/a", "")
	title.AddSetting(domain.KindFile, "a.ini")
	repo.On("Create", title).Return(nil)
	repo.On("Get", title.ID).Return(&domain.Title{ID: title.ID, Fingerprint: "b"}, nil).Once()
	repo.On("Save", title).Return(nil).Once()

	r := NewDurable(repo)
	require.NoError(t, r.Add(title))

	var seen domain.StateKey
	require.NoError(t, r.Update(title.ID, func(t *domain.Title) { seen = t.Fingerprint }))
	require.Equal(t, domain.StateKey("b"), seen)
	require.Empty(t, title.Settings, "settings removed elsewhere are gone")
	repo.AssertExpectations(t)
}

func TestRegistry_ReloadFollowsAnotherRegistry(t *testing.T) {
	repo := testutil.NewMemRepository()
	cli := NewDurable(repo)
	kept := domain.NewTitle("Kept", "/k", "")
	removed := domain.NewTitle("Removed", "/r", "")
	require.NoError(t, cli.Add(kept))
	require.NoError(t, cli.Add(removed))

	daemon := NewDurable(repo)
	require.NoError(t, daemon.Load())
	require.Equal(t, 2, daemon.Len())

	require.NoError(t, cli.Add(domain.NewTitle("Added", "/n", "")))
	require.NoError(t, cli.Remove(removed.ID))

	added, dropped, err := daemon.Reload()
	require.NoError(t, err)
	require.Equal(t, 1, added)
	require.Equal(t, 1, dropped)

	names := make([]string, 0, 2)
	for _, title := range daemon.List(ListQuery{}) {
		names = append(names, title.Name)
	}
	require.Equal(t, []string{"Added", "Kept"}, names)

	added, dropped, err = New().Reload()
	require.NoError(t, err)
	require.Zero(t, added+dropped, "reload without repository is a no-op")
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	r := New()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = r.Add(domain.NewTitle("T", "/t", ""))
		}()
		go func() {
			defer wg.Done()
			_ = r.List(ListQuery{})
		}()
	}
	wg.Wait()
	require.Equal(t, 20, r.Len())
}

func TestRegistry_Properties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		r := New()
		live := make(map[string]bool)
		var ids []string

		n := rapid.IntRange(1, 50).Draw(t, "ops")
		for i := 0; i < n; i++ {
			switch rapid.IntRange(0, 1).Draw(t, "op") {
			case 0:
				title := domain.NewTitle(rapid.StringMatching(`[a-z]{1,8}`).Draw(t, "name"), "/x", "")
				if err := r.Add(title); err != nil {
					t.Fatalf("add failed: %v", err)
				}
				live[title.ID] = true
				ids = append(ids, title.ID)
			case 1:
				if len(ids) == 0 {
					continue
				}
				id := rapid.SampledFrom(ids).Draw(t, "id")
				err := r.Remove(id)
				if live[id] && err != nil {
					t.Fatalf("remove of live title failed: %v", err)
				}
				if !live[id] && err == nil {
					t.Fatalf("remove of removed title succeeded")
				}
				delete(live, id)
			}
		}

		if r.Len() != len(live) {
			t.Fatalf("len %d, want %d", r.Len(), len(live))
		}
		list := r.List(ListQuery{})
		for i := 1; i < len(list); i++ {
			if list[i-1].Name > list[i].Name {
				t.Fatalf("list not sorted at %d", i)
			}
		}
	})
}
