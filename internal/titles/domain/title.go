package domain

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Sources recorded on titles.
const (
	SourceManual = "manual"
	SourceImport = "import"
)

// Scope variable names available to location templates.
const (
	VarTitleDir  = "TITLE_DIR"
	VarTitleName = "TITLE_NAME"
	VarTitleID   = "TITLE_ID"
	VarTitleExe  = "TITLE_EXE"
)

// Title is an application whose settings follow the environment state.
//
// Field mutation outside of construction happens while the title's sync
// lock is held (see BeginSync); readers that only need identity fields may
// read without it.
type Title struct {
	ID         string
	Name       string
	Location   string
	Executable string
	Source     string

	// LastSync is stamped when a sync starts and is used as the mtime of
	// restored files.
	LastSync time.Time

	// Fingerprint is the state the title was last synced against.
	Fingerprint StateKey

	ErrorState ErrorState
	Settings   []*SettingsEntry

	CreatedAt time.Time
	UpdatedAt time.Time

	syncMu sync.Mutex
}

// NewTitle creates a manually added title with a fresh ID.
func NewTitle(name, location, executable string) *Title {
	now := time.Now()
	return &Title{
		ID:         uuid.NewString(),
		Name:       name,
		Location:   location,
		Executable: executable,
		Source:     SourceManual,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// BeginSync acquires the title's sync lock. The returned func releases it
// and must be called exactly once.
func (t *Title) BeginSync() (release func()) {
	t.syncMu.Lock()
	var once sync.Once
	return func() { once.Do(t.syncMu.Unlock) }
}

// Assign replaces t's sync state (last sync, fingerprint, error state and
// settings) with src's. Identity fields never change after creation and
// are left alone. Entries already on t are updated in place, so pointers
// to them stay valid; the settings order follows src. The caller holds t's
// sync lock; src must not be used afterwards.
func (t *Title) Assign(src *Title) {
	t.LastSync = src.LastSync
	t.Fingerprint = src.Fingerprint
	t.ErrorState = src.ErrorState
	t.UpdatedAt = src.UpdatedAt

	current := make(map[string]*SettingsEntry, len(t.Settings))
	for _, e := range t.Settings {
		current[e.ID] = e
	}
	settings := make([]*SettingsEntry, 0, len(src.Settings))
	for _, s := range src.Settings {
		e, ok := current[s.ID]
		if !ok {
			settings = append(settings, s)
			continue
		}
		e.Kind = s.Kind
		e.Location = s.Location
		e.Enabled = s.Enabled
		e.Store = s.Store
		settings = append(settings, e)
	}
	t.Settings = settings
}

// AddSetting appends a new enabled entry and returns it.
func (t *Title) AddSetting(kind Kind, location string) *SettingsEntry {
	e := NewSettingsEntry(kind, location)
	t.Settings = append(t.Settings, e)
	return e
}

// Setting finds an entry by ID.
func (t *Title) Setting(id string) (*SettingsEntry, bool) {
	for _, e := range t.Settings {
		if e.ID == id {
			return e, true
		}
	}
	return nil, false
}

// EnabledSettings returns the enabled entries in insertion order.
func (t *Title) EnabledSettings() []*SettingsEntry {
	out := make([]*SettingsEntry, 0, len(t.Settings))
	for _, e := range t.Settings {
		if e.Enabled {
			out = append(out, e)
		}
	}
	return out
}

// ExecutablePath joins Location and Executable.
func (t *Title) ExecutablePath() string {
	if t.Executable == "" {
		return ""
	}
	if filepath.IsAbs(t.Executable) {
		return filepath.Clean(t.Executable)
	}
	return filepath.Join(t.Location, t.Executable)
}

// Scope returns the title-scoped template variables.
func (t *Title) Scope() map[string]string {
	return map[string]string{
		VarTitleDir:  t.Location,
		VarTitleName: t.Name,
		VarTitleID:   t.ID,
		VarTitleExe:  t.ExecutablePath(),
	}
}

// ResolveLocation expands an entry's location template for this title.
// File locations are cleaned; registry paths are returned as expanded.
func (t *Title) ResolveLocation(e *SettingsEntry, env LookupFunc) string {
	loc := Expand(e.Location, t.Scope(), env)
	if e.Kind == KindFile && loc != "" {
		return filepath.Clean(loc)
	}
	return loc
}

// Validate recomputes ErrorState from the filesystem and the settings list
// and returns the new value.
func (t *Title) Validate() ErrorState {
	t.ErrorState = t.check()
	return t.ErrorState
}

func (t *Title) check() ErrorState {
	info, err := os.Stat(t.Location)
	if err != nil || !info.IsDir() {
		return ErrorMissingLocation
	}
	if t.Executable != "" {
		info, err = os.Stat(t.ExecutablePath())
		if err != nil || info.IsDir() {
			return ErrorMissingExecutable
		}
	}
	if len(t.Settings) == 0 {
		return ErrorNoSettings
	}
	return ErrorNone
}

// Syncable reports whether the title takes part in sync operations.
func (t *Title) Syncable() bool {
	return t.ErrorState == ErrorNone
}
