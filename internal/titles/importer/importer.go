// Package importer reads title definitions from YAML manifests and adds
// them to a registry.
package importer

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/zjrosen/dockswap/internal/log"
	"github.com/zjrosen/dockswap/internal/titles/domain"
)

// Manifest is the YAML document layout.
type Manifest struct {
	Titles []TitleSpec `yaml:"titles"`
}

// TitleSpec describes one title.
type TitleSpec struct {
	ID         string        `yaml:"id,omitempty"`
	Name       string        `yaml:"name"`
	Location   string        `yaml:"location"`
	Executable string        `yaml:"executable,omitempty"`
	Source     string        `yaml:"source,omitempty"`
	Settings   []SettingSpec `yaml:"settings"`
}

// SettingSpec describes one settings entry.
type SettingSpec struct {
	Kind     string `yaml:"kind,omitempty"`
	Location string `yaml:"location"`
	Disabled bool   `yaml:"disabled,omitempty"`
}

// Parse decodes a manifest and builds titles. Unknown fields are rejected.
func Parse(r io.Reader) ([]*domain.Title, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var m Manifest
	if err := dec.Decode(&m); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("decoding manifest: %w", err)
	}
	out := make([]*domain.Title, 0, len(m.Titles))
	for i, spec := range m.Titles {
		t, err := spec.Build()
		if err != nil {
			return nil, fmt.Errorf("title %d: %w", i+1, err)
		}
		out = append(out, t)
	}
	return out, nil
}

// Build turns a spec into a validated title.
func (s TitleSpec) Build() (*domain.Title, error) {
	if strings.TrimSpace(s.Name) == "" {
		return nil, errors.New("name is required")
	}
	if strings.TrimSpace(s.Location) == "" {
		return nil, fmt.Errorf("%s: location is required", s.Name)
	}
	t := domain.NewTitle(s.Name, s.Location, s.Executable)
	if s.ID != "" {
		t.ID = s.ID
	}
	t.Source = domain.SourceImport
	if s.Source != "" {
		t.Source = s.Source
	}
	for j, st := range s.Settings {
		kind, err := domain.ParseKind(st.Kind)
		if err != nil {
			return nil, fmt.Errorf("%s: setting %d: %w", s.Name, j+1, err)
		}
		if strings.TrimSpace(st.Location) == "" {
			return nil, fmt.Errorf("%s: setting %d: location is required", s.Name, j+1)
		}
		e := t.AddSetting(kind, st.Location)
		if st.Disabled {
			e.Disable()
		}
	}
	t.Validate()
	return t, nil
}

// Adder receives imported titles.
type Adder interface {
	Add(t *domain.Title) error
}

// Result summarizes an import.
type Result struct {
	Added   []*domain.Title
	Skipped []string
	Errors  []error
}

// Import adds every title to reg. Titles whose ID is already registered
// are skipped; other failures are collected and the import continues.
func Import(reg Adder, titles []*domain.Title) Result {
	var res Result
	for _, t := range titles {
		err := reg.Add(t)
		var dup *domain.DuplicateTitleError
		switch {
		case err == nil:
			res.Added = append(res.Added, t)
			log.Info(log.CatRegistry, "Imported title", "title", t.Name, "id", t.ID, "error_state", t.ErrorState)
		case errors.As(err, &dup):
			res.Skipped = append(res.Skipped, t.Name)
		default:
			res.Errors = append(res.Errors, fmt.Errorf("%s: %w", t.Name, err))
		}
	}
	return res
}
