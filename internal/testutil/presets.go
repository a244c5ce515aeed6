package testutil

// Standard state keys used across tests.
const (
	StateA = "a"
	StateB = "b"
)

// WithStandardTitles adds the standard test dataset:
//   - "Alpha": synced against a, one file with both snapshots
//   - "Bravo": never synced, one file and no snapshots
//   - "Charlie": executable missing on disk
func (b *Builder) WithStandardTitles() *Builder {
	return b.
		WithTitle("Alpha",
			Fingerprint(StateA),
			WithFile("alpha.ini", "alpha-live", Snap(StateA, "alpha-a"), Snap(StateB, "alpha-b"))).
		WithTitle("Bravo",
			WithFile("bravo.cfg", "bravo-live")).
		WithTitle("Charlie",
			NoExecutable(),
			WithFile("charlie.ini", "charlie-live"))
}
