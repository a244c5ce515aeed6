package sqlite

import (
	"time"

	"github.com/zjrosen/dockswap/internal/titles/domain"
)

// TitleModel represents the database row for the titles table.
// Time values are stored as Unix nanoseconds.
type TitleModel struct {
	ID          string
	Name        string
	Location    string
	Executable  string
	Source      string
	Fingerprint string
	ErrorState  string
	LastSyncAt  *int64 // nullable
	CreatedAt   int64
	UpdatedAt   int64
}

// SettingModel represents the database row for the settings table.
type SettingModel struct {
	ID       string
	TitleID  string
	Position int
	Kind     string
	Location string
	Enabled  bool
}

// SnapshotModel represents the database row for the snapshots table.
type SnapshotModel struct {
	SettingID string
	StateKey  string
	Data      []byte
	Digest    string
	ModTime   *int64 // nullable
}

func toTitleModel(t *domain.Title) *TitleModel {
	m := &TitleModel{
		ID:          t.ID,
		Name:        t.Name,
		Location:    t.Location,
		Executable:  t.Executable,
		Source:      t.Source,
		Fingerprint: string(t.Fingerprint),
		ErrorState:  t.ErrorState.String(),
		CreatedAt:   t.CreatedAt.UnixNano(),
		UpdatedAt:   t.UpdatedAt.UnixNano(),
	}
	m.LastSyncAt = nullableTime(t.LastSync)
	return m
}

func (m *TitleModel) toDomain() *domain.Title {
	t := &domain.Title{
		ID:          m.ID,
		Name:        m.Name,
		Location:    m.Location,
		Executable:  m.Executable,
		Source:      m.Source,
		Fingerprint: domain.StateKey(m.Fingerprint),
		ErrorState:  domain.ParseErrorState(m.ErrorState),
		CreatedAt:   time.Unix(0, m.CreatedAt),
		UpdatedAt:   time.Unix(0, m.UpdatedAt),
	}
	t.LastSync = fromNullableTime(m.LastSyncAt)
	return t
}

func toSettingModel(titleID string, position int, e *domain.SettingsEntry) *SettingModel {
	return &SettingModel{
		ID:       e.ID,
		TitleID:  titleID,
		Position: position,
		Kind:     e.Kind.String(),
		Location: e.Location,
		Enabled:  e.Enabled,
	}
}

func (m *SettingModel) toDomain() (*domain.SettingsEntry, error) {
	kind, err := domain.ParseKind(m.Kind)
	if err != nil {
		return nil, err
	}
	return &domain.SettingsEntry{
		ID:       m.ID,
		Kind:     kind,
		Location: m.Location,
		Enabled:  m.Enabled,
		Store:    domain.NewArtifactStore(),
	}, nil
}

func toSnapshotModel(settingID string, s domain.Snapshot) *SnapshotModel {
	return &SnapshotModel{
		SettingID: settingID,
		StateKey:  string(s.Key),
		Data:      s.Data,
		Digest:    s.Digest,
		ModTime:   nullableTime(s.ModTime),
	}
}

func (m *SnapshotModel) toDomain() domain.Snapshot {
	return domain.Snapshot{
		Key:     domain.StateKey(m.StateKey),
		Data:    m.Data,
		Digest:  m.Digest,
		ModTime: fromNullableTime(m.ModTime),
	}
}

func nullableTime(t time.Time) *int64 {
	if t.IsZero() {
		return nil
	}
	n := t.UnixNano()
	return &n
}

func fromNullableTime(n *int64) time.Time {
	if n == nil {
		return time.Time{}
	}
	return time.Unix(0, *n)
}
