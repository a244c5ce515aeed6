// Package testutil provides builders and fakes shared by package tests.
package testutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/dockswap/internal/titles/domain"
)

// Builder accumulates titles and materializes them under a temp directory:
// install dir, executable and live settings files.
type Builder struct {
	t      *testing.T
	root   string
	titles []titleData
}

// NewBuilder creates a builder rooted in a fresh temp directory.
func NewBuilder(t *testing.T) *Builder {
	t.Helper()
	return &Builder{t: t, root: t.TempDir()}
}

// Root returns the temp directory holding every built title.
func (b *Builder) Root() string {
	return b.root
}

// WithTitle adds a title with optional configuration.
func (b *Builder) WithTitle(name string, opts ...TitleOption) *Builder {
	d := defaultTitle(name)
	for _, opt := range opts {
		opt(&d)
	}
	b.titles = append(b.titles, d)
	return b
}

// Build creates the files on disk and returns the titles in the order they
// were added. Titles are validated, so missing pieces show up as error
// states.
func (b *Builder) Build() []*domain.Title {
	b.t.Helper()
	out := make([]*domain.Title, 0, len(b.titles))
	for _, d := range b.titles {
		out = append(out, b.build(d))
	}
	return out
}

func (b *Builder) build(d titleData) *domain.Title {
	b.t.Helper()
	dir := filepath.Join(b.root, dirName(d.name))
	require.NoError(b.t, os.MkdirAll(dir, 0o755))

	title := domain.NewTitle(d.name, dir, d.executable)
	title.Source = d.source
	title.Fingerprint = d.fingerprint
	title.LastSync = d.lastSync

	if d.createExe && d.executable != "" {
		exe := title.ExecutablePath()
		require.NoError(b.t, os.MkdirAll(filepath.Dir(exe), 0o755))
		require.NoError(b.t, os.WriteFile(exe, []byte("MZ"), 0o644))
	}

	for _, s := range d.settings {
		entry := title.AddSetting(s.kind, s.location)
		entry.Enabled = !s.disabled
		if s.content != nil {
			path := title.ResolveLocation(entry, nil)
			require.NoError(b.t, os.MkdirAll(filepath.Dir(path), 0o755))
			require.NoError(b.t, os.WriteFile(path, []byte(*s.content), 0o644))
		}
		for _, snap := range s.snaps {
			entry.Store.Put(snap.Key, []byte(snap.Content))
		}
	}

	title.Validate()
	return title
}

// NewTitle builds a single title.
func NewTitle(t *testing.T, name string, opts ...TitleOption) *domain.Title {
	t.Helper()
	return NewBuilder(t).WithTitle(name, opts...).Build()[0]
}

// LivePath resolves the live path of a file entry.
func LivePath(title *domain.Title, entry *domain.SettingsEntry) string {
	return title.ResolveLocation(entry, nil)
}

// ReadLive reads the live file of an entry, failing the test on error.
func ReadLive(t *testing.T, title *domain.Title, entry *domain.SettingsEntry) string {
	t.Helper()
	data, err := os.ReadFile(LivePath(title, entry))
	require.NoError(t, err)
	return string(data)
}

// WriteLive overwrites the live file of an entry.
func WriteLive(t *testing.T, title *domain.Title, entry *domain.SettingsEntry, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(LivePath(title, entry), []byte(content), 0o644))
}

// Stored returns the stored snapshot under key as a string, failing when
// absent.
func Stored(t *testing.T, entry *domain.SettingsEntry, key domain.StateKey) string {
	t.Helper()
	data, ok := entry.Store.Get(key)
	require.True(t, ok, fmt.Sprintf("expected snapshot under %s", key))
	return string(data)
}

func dirName(name string) string {
	r := strings.NewReplacer(" ", "-", "/", "-", `\`, "-", ":", "-")
	return strings.ToLower(r.Replace(name))
}
