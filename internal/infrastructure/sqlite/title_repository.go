package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/zjrosen/dockswap/internal/titles/domain"
)

// titleColumns is the list of columns to select for title queries.
const titleColumns = `id, name, location, executable, source, fingerprint, error_state,
	last_sync_at, created_at, updated_at`

// titleRepository implements domain.TitleRepository using SQLite.
type titleRepository struct {
	db *sql.DB
}

// newTitleRepository creates a new titleRepository instance.
func newTitleRepository(db *sql.DB) *titleRepository {
	return &titleRepository{db: db}
}

// Ensure titleRepository implements domain.TitleRepository.
var _ domain.TitleRepository = (*titleRepository)(nil)

// scanTitle scans a row into a TitleModel.
func scanTitle(scanner interface{ Scan(...any) error }) (*TitleModel, error) {
	var model TitleModel
	err := scanner.Scan(
		&model.ID, &model.Name, &model.Location, &model.Executable, &model.Source,
		&model.Fingerprint, &model.ErrorState,
		&model.LastSyncAt, &model.CreatedAt, &model.UpdatedAt,
	)
	return &model, err
}

// LoadAll returns every title with its settings and snapshots, ordered by
// name.
func (r *titleRepository) LoadAll() ([]*domain.Title, error) {
	rows, err := r.db.Query(`SELECT ` + titleColumns + ` FROM titles ORDER BY name, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query titles: %w", err)
	}
	var titles []*domain.Title
	byID := make(map[string]*domain.Title)
	for rows.Next() {
		model, err := scanTitle(rows)
		if err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("failed to scan title: %w", err)
		}
		t := model.toDomain()
		titles = append(titles, t)
		byID[t.ID] = t
	}
	if err := rows.Close(); err != nil {
		return nil, fmt.Errorf("failed to read titles: %w", err)
	}

	entries, err := r.loadSettings(byID, "")
	if err != nil {
		return nil, err
	}
	if err := r.loadSnapshots(entries, ""); err != nil {
		return nil, err
	}
	return titles, nil
}

// Get returns one title with its settings and snapshots.
// Returns TitleNotFoundError if no matching title exists.
func (r *titleRepository) Get(id string) (*domain.Title, error) {
	model, err := scanTitle(r.db.QueryRow(`SELECT `+titleColumns+` FROM titles WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &domain.TitleNotFoundError{ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get title: %w", err)
	}
	t := model.toDomain()

	entries, err := r.loadSettings(map[string]*domain.Title{t.ID: t}, t.ID)
	if err != nil {
		return nil, err
	}
	if err := r.loadSnapshots(entries, t.ID); err != nil {
		return nil, err
	}
	return t, nil
}

// loadSettings attaches settings to the titles in byID. A non-empty
// titleID restricts the query to that title.
func (r *titleRepository) loadSettings(byID map[string]*domain.Title, titleID string) (map[string]*domain.SettingsEntry, error) {
	query := `SELECT id, title_id, position, kind, location, enabled FROM settings`
	var args []any
	if titleID != "" {
		query += ` WHERE title_id = ?`
		args = append(args, titleID)
	}
	rows, err := r.db.Query(query+` ORDER BY title_id, position`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query settings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	entries := make(map[string]*domain.SettingsEntry)
	for rows.Next() {
		var m SettingModel
		if err := rows.Scan(&m.ID, &m.TitleID, &m.Position, &m.Kind, &m.Location, &m.Enabled); err != nil {
			return nil, fmt.Errorf("failed to scan setting: %w", err)
		}
		title, ok := byID[m.TitleID]
		if !ok {
			continue
		}
		entry, err := m.toDomain()
		if err != nil {
			return nil, fmt.Errorf("setting %s: %w", m.ID, err)
		}
		title.Settings = append(title.Settings, entry)
		entries[entry.ID] = entry
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read settings: %w", err)
	}
	return entries, nil
}

func (r *titleRepository) loadSnapshots(entries map[string]*domain.SettingsEntry, titleID string) error {
	query := `SELECT sn.setting_id, sn.state_key, sn.data, sn.digest, sn.mod_time FROM snapshots sn`
	var args []any
	if titleID != "" {
		query += ` JOIN settings st ON st.id = sn.setting_id WHERE st.title_id = ?`
		args = append(args, titleID)
	}
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return fmt.Errorf("failed to query snapshots: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var m SnapshotModel
		if err := rows.Scan(&m.SettingID, &m.StateKey, &m.Data, &m.Digest, &m.ModTime); err != nil {
			return fmt.Errorf("failed to scan snapshot: %w", err)
		}
		if entry, ok := entries[m.SettingID]; ok {
			entry.Store.Load(m.toDomain())
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to read snapshots: %w", err)
	}
	return nil
}

// Create inserts a new title with its settings and snapshots.
func (r *titleRepository) Create(t *domain.Title) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	m := toTitleModel(t)
	_, err = tx.Exec(
		`INSERT INTO titles (`+titleColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.Name, m.Location, m.Executable, m.Source, m.Fingerprint, m.ErrorState,
		m.LastSyncAt, m.CreatedAt, m.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert title: %w", err)
	}
	if err := writeSettings(tx, t); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit title: %w", err)
	}
	return nil
}

// Save updates an existing title, its ordered settings and any snapshot
// whose content or mod time changed, in one transaction. Settings no
// longer on the title are deleted along with their snapshots.
// Returns TitleNotFoundError if the title was deleted.
func (r *titleRepository) Save(t *domain.Title) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	m := toTitleModel(t)
	result, err := tx.Exec(
		`UPDATE titles SET
			name = ?, location = ?, executable = ?, source = ?, fingerprint = ?,
			error_state = ?, last_sync_at = ?, updated_at = ?
		WHERE id = ?`,
		m.Name, m.Location, m.Executable, m.Source, m.Fingerprint,
		m.ErrorState, m.LastSyncAt, m.UpdatedAt, m.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update title: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return &domain.TitleNotFoundError{ID: t.ID}
	}

	if err := deleteStaleSettings(tx, t); err != nil {
		return err
	}
	if err := writeSettings(tx, t); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit title: %w", err)
	}
	return nil
}

func writeSettings(tx *sql.Tx, t *domain.Title) error {
	for i, e := range t.Settings {
		sm := toSettingModel(t.ID, i, e)
		_, err := tx.Exec(
			`INSERT INTO settings (id, title_id, position, kind, location, enabled) VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				position = excluded.position, kind = excluded.kind,
				location = excluded.location, enabled = excluded.enabled`,
			sm.ID, sm.TitleID, sm.Position, sm.Kind, sm.Location, sm.Enabled,
		)
		if err != nil {
			return fmt.Errorf("failed to upsert setting %s: %w", e.ID, err)
		}

		for _, snap := range e.Store.Snapshots() {
			nm := toSnapshotModel(e.ID, snap)
			_, err := tx.Exec(
				`INSERT INTO snapshots (setting_id, state_key, data, digest, mod_time) VALUES (?, ?, ?, ?, ?)
				ON CONFLICT(setting_id, state_key) DO UPDATE SET
					data = excluded.data, digest = excluded.digest, mod_time = excluded.mod_time
				WHERE snapshots.digest != excluded.digest
					OR COALESCE(snapshots.mod_time, 0) != COALESCE(excluded.mod_time, 0)`,
				nm.SettingID, nm.StateKey, nm.Data, nm.Digest, nm.ModTime,
			)
			if err != nil {
				return fmt.Errorf("failed to upsert snapshot %s/%s: %w", e.ID, snap.Key, err)
			}
		}
	}
	return nil
}

func deleteStaleSettings(tx *sql.Tx, t *domain.Title) error {
	query := `DELETE FROM settings WHERE title_id = ?`
	args := []any{t.ID}
	if len(t.Settings) > 0 {
		placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(t.Settings)), ", ")
		query += ` AND id NOT IN (` + placeholders + `)`
		for _, e := range t.Settings {
			args = append(args, e.ID)
		}
	}
	if _, err := tx.Exec(query, args...); err != nil {
		return fmt.Errorf("failed to delete stale settings: %w", err)
	}
	return nil
}

// Delete removes a title; settings and snapshots cascade.
// Returns TitleNotFoundError if no matching title exists.
func (r *titleRepository) Delete(id string) error {
	result, err := r.db.Exec(`DELETE FROM titles WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete title: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return &domain.TitleNotFoundError{ID: id}
	}
	return nil
}

// Close is a no-op; the connection is owned by DB.
func (r *titleRepository) Close() error {
	return nil
}
