package domain

// TitleRepository defines the persistence interface for titles, their
// settings entries and the captured snapshots.
//
// The repository is the authoritative copy shared by every dockswap
// process; Save never recreates a title that was deleted elsewhere.
type TitleRepository interface {
	// LoadAll returns every persisted title with settings and snapshots.
	// Titles are ordered by name.
	LoadAll() ([]*Title, error)

	// Get returns one persisted title.
	// Returns TitleNotFoundError if no matching title exists.
	Get(id string) (*Title, error)

	// Create inserts a new title with its settings and snapshots.
	Create(title *Title) error

	// Save updates an existing title, replacing its settings list and
	// writing every snapshot whose digest changed.
	// Returns TitleNotFoundError if no matching title exists.
	Save(title *Title) error

	// Delete removes a title and everything attached to it.
	// Returns TitleNotFoundError if no matching title exists.
	Delete(id string) error

	// Close releases any resources held by the repository.
	Close() error
}
