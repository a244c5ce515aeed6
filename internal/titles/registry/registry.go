// Package registry holds the process-wide set of tracked titles.
//
// The Registry is safe for concurrent use by the monitor loops and the CLI.
// Title pointers handed out are shared; mutating a title's sync state must
// happen under the title's own sync lock (domain.Title.BeginSync).
//
// When backed by a repository, writes go to the repository first and then
// to the in-memory map, so a failed write never leaves a phantom entry.
// The repository is shared with other dockswap processes: titles are
// refreshed from it before they are changed, and a title deleted there is
// dropped here rather than written back.
package registry

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/zjrosen/dockswap/internal/log"
	"github.com/zjrosen/dockswap/internal/titles/domain"
)

// ListQuery filters List results. The zero value matches every title.
type ListQuery struct {
	// SyncableOnly excludes titles with an error state.
	SyncableOnly bool

	// Source restricts results to one discovery source.
	Source string
}

// Registry is a concurrent map of titles keyed by ID.
type Registry struct {
	mu     sync.RWMutex
	titles map[string]*domain.Title
	repo   domain.TitleRepository
}

// New creates an in-memory registry with no persistence.
func New() *Registry {
	return &Registry{titles: make(map[string]*domain.Title)}
}

// NewDurable creates a registry that persists through repo.
func NewDurable(repo domain.TitleRepository) *Registry {
	r := New()
	r.repo = repo
	return r
}

// Load replaces the in-memory contents with the repository's titles.
func (r *Registry) Load() error {
	if r.repo == nil {
		return nil
	}
	titles, err := r.repo.LoadAll()
	if err != nil {
		return fmt.Errorf("loading titles: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.titles = make(map[string]*domain.Title, len(titles))
	for _, t := range titles {
		r.titles[t.ID] = t
	}
	log.Info(log.CatRegistry, "Loaded titles", "count", len(titles))
	return nil
}

// Add registers a new title. Returns DuplicateTitleError if the ID is taken.
func (r *Registry) Add(t *domain.Title) error {
	if t == nil {
		return fmt.Errorf("title cannot be nil")
	}
	if t.ID == "" {
		return fmt.Errorf("title has empty ID")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.titles[t.ID]; exists {
		return &domain.DuplicateTitleError{ID: t.ID}
	}
	t.UpdatedAt = time.Now()
	if r.repo != nil {
		if err := r.repo.Create(t); err != nil {
			log.ErrorErr(log.CatRegistry, "Persisting new title failed", err, "id", t.ID)
			return fmt.Errorf("persisting title %s: %w", t.ID, err)
		}
	}
	r.titles[t.ID] = t
	log.Info(log.CatRegistry, "Title added", "id", t.ID, "name", t.Name)
	return nil
}

// Get returns the title with the given ID.
func (r *Registry) Get(id string) (*domain.Title, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.titles[id]
	return t, ok
}

// Lookup finds a title by exact ID, or failing that by case-insensitive name.
func (r *Registry) Lookup(idOrName string) (*domain.Title, error) {
	if t, ok := r.Get(idOrName); ok {
		return t, nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, t := range r.titles {
		if strings.EqualFold(t.Name, idOrName) {
			return t, nil
		}
	}
	return nil, &domain.TitleNotFoundError{ID: idOrName}
}

// Remove deletes the persisted record and then the registry entry.
func (r *Registry) Remove(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.titles[id]; !ok {
		return &domain.TitleNotFoundError{ID: id}
	}
	if r.repo != nil {
		if err := r.repo.Delete(id); err != nil {
			return fmt.Errorf("deleting title %s: %w", id, err)
		}
	}
	delete(r.titles, id)
	log.Info(log.CatRegistry, "Title removed", "id", id)
	return nil
}

// Update applies fn to a title while holding its sync lock and persists
// the result. The title is refreshed from the repository first, so fn
// sees what other processes saved.
func (r *Registry) Update(id string, fn func(*domain.Title)) error {
	if fn == nil {
		return fmt.Errorf("update function cannot be nil")
	}
	t, ok := r.Get(id)
	if !ok {
		return &domain.TitleNotFoundError{ID: id}
	}

	release := t.BeginSync()
	defer release()

	if err := r.Refresh(t); err != nil {
		return err
	}
	fn(t)
	return r.Save(t)
}

// Save persists a title's current state. It is the Persister used by the
// sync engine; callers hold the title's sync lock. A title deleted from
// the repository is dropped from the registry instead of being recreated.
func (r *Registry) Save(t *domain.Title) error {
	t.UpdatedAt = time.Now()
	if r.repo == nil {
		return nil
	}
	if err := r.repo.Save(t); err != nil {
		if isNotFound(err) {
			r.drop(t.ID)
		} else {
			log.ErrorErr(log.CatRegistry, "Persisting title failed", err, "id", t.ID)
		}
		return fmt.Errorf("persisting title %s: %w", t.ID, err)
	}
	return nil
}

// Refresh replaces t's sync state with its persisted record. Callers hold
// the title's sync lock. A title deleted from the repository is dropped
// from the registry and TitleNotFoundError is returned.
func (r *Registry) Refresh(t *domain.Title) error {
	if r.repo == nil {
		return nil
	}
	stored, err := r.repo.Get(t.ID)
	if err != nil {
		if isNotFound(err) {
			r.drop(t.ID)
			return err
		}
		return fmt.Errorf("refreshing title %s: %w", t.ID, err)
	}
	t.Assign(stored)
	return nil
}

// Reload brings the registry in line with the repository: registered
// titles are refreshed, titles deleted elsewhere are dropped and titles
// created elsewhere are added. It returns how many were added and removed.
func (r *Registry) Reload() (added, removed int, err error) {
	if r.repo == nil {
		return 0, 0, nil
	}

	for _, t := range r.snapshot() {
		release := t.BeginSync()
		err := r.Refresh(t)
		release()
		switch {
		case isNotFound(err):
			removed++
		case err != nil:
			return added, removed, err
		}
	}

	stored, err := r.repo.LoadAll()
	if err != nil {
		return added, removed, fmt.Errorf("loading titles: %w", err)
	}
	r.mu.Lock()
	for _, t := range stored {
		if _, ok := r.titles[t.ID]; !ok {
			r.titles[t.ID] = t
			added++
		}
	}
	r.mu.Unlock()

	if added > 0 || removed > 0 {
		log.Info(log.CatRegistry, "Titles reloaded", "added", added, "removed", removed)
	}
	return added, removed, nil
}

func (r *Registry) drop(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.titles[id]; ok {
		delete(r.titles, id)
		log.Info(log.CatRegistry, "Title removed elsewhere, dropped", "id", id)
	}
}

func (r *Registry) snapshot() []*domain.Title {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*domain.Title, 0, len(r.titles))
	for _, t := range r.titles {
		out = append(out, t)
	}
	return out
}

func isNotFound(err error) bool {
	var nf *domain.TitleNotFoundError
	return errors.As(err, &nf)
}

// List returns a snapshot of matching titles ordered by name, then ID.
// The SyncableOnly filter reads each title's error state under its sync
// lock, so List must not be called while holding one.
func (r *Registry) List(q ListQuery) []*domain.Title {
	out := make([]*domain.Title, 0, r.Len())
	for _, t := range r.snapshot() {
		if q.Source != "" && t.Source != q.Source {
			continue
		}
		if q.SyncableOnly && !syncable(t) {
			continue
		}
		out = append(out, t)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func syncable(t *domain.Title) bool {
	release := t.BeginSync()
	defer release()
	return t.Syncable()
}

// Len returns the number of registered titles.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.titles)
}
