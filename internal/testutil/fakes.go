package testutil

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/zjrosen/dockswap/internal/titles/domain"
)

// FakeClock is a settable clock.
type FakeClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewFakeClock creates a clock frozen at t.
func NewFakeClock(t time.Time) *FakeClock {
	return &FakeClock{now: t}
}

// Now returns the current fake time.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// MemRepository is an in-memory domain.TitleRepository that counts saves.
type MemRepository struct {
	mu      sync.Mutex
	titles  map[string]*domain.Title
	saves   map[string]int
	SaveErr error
}

var _ domain.TitleRepository = (*MemRepository)(nil)

// NewMemRepository creates an empty repository preloaded with titles.
func NewMemRepository(titles ...*domain.Title) *MemRepository {
	r := &MemRepository{
		titles: make(map[string]*domain.Title),
		saves:  make(map[string]int),
	}
	for _, t := range titles {
		r.titles[t.ID] = t
	}
	return r
}

func (r *MemRepository) LoadAll() ([]*domain.Title, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*domain.Title, 0, len(r.titles))
	for _, t := range r.titles {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *MemRepository) Get(id string) (*domain.Title, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.titles[id]
	if !ok {
		return nil, &domain.TitleNotFoundError{ID: id}
	}
	return t, nil
}

func (r *MemRepository) Create(t *domain.Title) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.SaveErr != nil {
		return r.SaveErr
	}
	if _, ok := r.titles[t.ID]; ok {
		return &domain.DuplicateTitleError{ID: t.ID}
	}
	r.titles[t.ID] = t
	r.saves[t.ID]++
	return nil
}

// Save stores t even when it was never created, so the repository can
// stand in as a bare engine Persister.
func (r *MemRepository) Save(t *domain.Title) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.SaveErr != nil {
		return r.SaveErr
	}
	r.titles[t.ID] = t
	r.saves[t.ID]++
	return nil
}

func (r *MemRepository) Delete(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.titles[id]; !ok {
		return &domain.TitleNotFoundError{ID: id}
	}
	delete(r.titles, id)
	return nil
}

func (r *MemRepository) Close() error { return nil }

// SaveCount returns how often a title was created or saved.
func (r *MemRepository) SaveCount(id string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.saves[id]
}

// Has reports whether a title is persisted.
func (r *MemRepository) Has(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.titles[id]
	return ok
}

// Notification is one recorded notification.
type Notification struct {
	Message string
	IsError bool
}

// RecordingNotifier records every notification.
type RecordingNotifier struct {
	mu   sync.Mutex
	sent []Notification
}

// Notify records a message.
func (n *RecordingNotifier) Notify(message string, isError bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, Notification{Message: message, IsError: isError})
}

// Messages returns a copy of every recorded notification.
func (n *RecordingNotifier) Messages() []Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Notification(nil), n.sent...)
}

// MemHive is an in-memory registry subtree store standing in for the
// registry export/import service.
type MemHive struct {
	mu      sync.Mutex
	trees   map[string][]byte
	Exports int
	Imports int
}

// NewMemHive creates an empty hive.
func NewMemHive() *MemHive {
	return &MemHive{trees: make(map[string][]byte)}
}

func hiveKey(path string) string {
	return strings.ToLower(path)
}

// Set seeds a subtree.
func (h *MemHive) Set(path string, data []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.trees[hiveKey(path)] = append([]byte(nil), data...)
}

// Value returns a subtree's current export.
func (h *MemHive) Value(path string) ([]byte, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	v, ok := h.trees[hiveKey(path)]
	return v, ok
}

// ExportSubtree returns the subtree or domain.ErrSubtreeNotFound.
func (h *MemHive) ExportSubtree(_ context.Context, path string) ([]byte, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.Exports++
	v, ok := h.trees[hiveKey(path)]
	if !ok {
		return nil, domain.ErrSubtreeNotFound
	}
	return append([]byte(nil), v...), nil
}

// ImportSubtree replaces the subtree.
func (h *MemHive) ImportSubtree(_ context.Context, path string, data []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.Imports++
	h.trees[hiveKey(path)] = append([]byte(nil), data...)
	return nil
}
