package domain

import "github.com/google/uuid"

// SettingsEntry is one configuration artifact of a title: a file path or a
// registry subtree, plus the snapshots captured for it.
//
// Enabled is only ever cleared automatically (when the live artifact is
// found missing) and must be set again by hand.
type SettingsEntry struct {
	ID       string
	Kind     Kind
	Location string
	Enabled  bool
	Store    *ArtifactStore
}

// NewSettingsEntry creates an enabled entry with a fresh ID and empty store.
func NewSettingsEntry(kind Kind, location string) *SettingsEntry {
	return &SettingsEntry{
		ID:       uuid.NewString(),
		Kind:     kind,
		Location: location,
		Enabled:  true,
		Store:    NewArtifactStore(),
	}
}

// Disable turns the entry off until it is manually re-enabled.
func (e *SettingsEntry) Disable() {
	e.Enabled = false
}
