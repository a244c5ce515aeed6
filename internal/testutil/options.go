package testutil

import (
	"time"

	"github.com/zjrosen/dockswap/internal/titles/domain"
)

// SnapData is a pre-captured snapshot for a settings entry.
type SnapData struct {
	Key     domain.StateKey
	Content string
}

// Snap creates a SnapData structure.
func Snap(key domain.StateKey, content string) SnapData {
	return SnapData{Key: key, Content: content}
}

// settingData holds everything needed to create one settings entry.
type settingData struct {
	kind     domain.Kind
	location string
	content  *string
	disabled bool
	snaps    []SnapData
}

// titleData holds all data for a title to be built.
type titleData struct {
	name        string
	executable  string
	source      string
	fingerprint domain.StateKey
	lastSync    time.Time
	createExe   bool
	settings    []settingData
}

// TitleOption configures a title built by the Builder.
type TitleOption func(*titleData)

func defaultTitle(name string) titleData {
	return titleData{
		name:       name,
		executable: "game.exe",
		source:     domain.SourceManual,
		createExe:  true,
	}
}

// Executable sets the executable path relative to the title directory.
func Executable(rel string) TitleOption {
	return func(d *titleData) { d.executable = rel }
}

// NoExecutable leaves the executable file missing on disk.
func NoExecutable() TitleOption {
	return func(d *titleData) { d.createExe = false }
}

// Source sets the discovery source.
func Source(s string) TitleOption {
	return func(d *titleData) { d.source = s }
}

// Fingerprint sets the state the title was last synced against.
func Fingerprint(k domain.StateKey) TitleOption {
	return func(d *titleData) { d.fingerprint = k }
}

// LastSync sets the last sync timestamp.
func LastSync(t time.Time) TitleOption {
	return func(d *titleData) { d.lastSync = t }
}

// WithFile adds a file entry at rel under the title directory whose live
// file holds content.
func WithFile(rel, content string, snaps ...SnapData) TitleOption {
	return func(d *titleData) {
		c := content
		d.settings = append(d.settings, settingData{
			kind:     domain.KindFile,
			location: "%" + domain.VarTitleDir + "%/" + rel,
			content:  &c,
			snaps:    snaps,
		})
	}
}

// WithMissingFile adds a file entry whose live file does not exist.
func WithMissingFile(rel string, snaps ...SnapData) TitleOption {
	return func(d *titleData) {
		d.settings = append(d.settings, settingData{
			kind:     domain.KindFile,
			location: "%" + domain.VarTitleDir + "%/" + rel,
			snaps:    snaps,
		})
	}
}

// WithDisabledFile adds a disabled file entry with live content.
func WithDisabledFile(rel, content string) TitleOption {
	return func(d *titleData) {
		c := content
		d.settings = append(d.settings, settingData{
			kind:     domain.KindFile,
			location: "%" + domain.VarTitleDir + "%/" + rel,
			content:  &c,
			disabled: true,
		})
	}
}

// WithRegistry adds a registry entry. The live subtree must be seeded in a
// MemHive by the caller.
func WithRegistry(path string, snaps ...SnapData) TitleOption {
	return func(d *titleData) {
		d.settings = append(d.settings, settingData{
			kind:     domain.KindRegistry,
			location: path,
			snaps:    snaps,
		})
	}
}
