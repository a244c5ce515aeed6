package domain

import (
	"bytes"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
)

// Blob is a stored value together with its presence. An absent blob was
// never captured and is distinct from a present empty one.
type Blob struct {
	Data    []byte
	Present bool
}

// PresentBlob wraps data as a present blob.
func PresentBlob(data []byte) Blob {
	return Blob{Data: data, Present: true}
}

// Equal compares two byte slices. Lengths are compared first; differing
// lengths are never equal.
func Equal(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	return bytes.Equal(a, b)
}

// EqualBlobs compares two blobs including presence. An absent blob never
// equals a present one, two absent blobs are equal.
func EqualBlobs(a, b Blob) bool {
	if a.Present != b.Present {
		return false
	}
	if !a.Present {
		return true
	}
	return Equal(a.Data, b.Data)
}

// Digest returns the hex xxhash64 of data.
func Digest(data []byte) string {
	return fmt.Sprintf("%016x", xxhash.Sum64(data))
}

// Snapshot is one state slot of an ArtifactStore, used for persistence.
type Snapshot struct {
	Key     StateKey
	Data    []byte
	Digest  string
	ModTime time.Time
}

type slot struct {
	data    []byte
	digest  string
	modTime time.Time
}

// ArtifactStore maps state keys to captured bytes. Key presence is the only
// existence signal. It is safe for concurrent use.
type ArtifactStore struct {
	mu    sync.RWMutex
	slots map[StateKey]*slot
}

// NewArtifactStore creates an empty store.
func NewArtifactStore() *ArtifactStore {
	return &ArtifactStore{slots: make(map[StateKey]*slot)}
}

// Put overwrites the slot for key with a copy of data. The previous value
// and its modification time are discarded.
func (s *ArtifactStore) Put(key StateKey, data []byte) {
	cp := bytes.Clone(data)
	if cp == nil {
		cp = []byte{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.slots[key] = &slot{data: cp, digest: Digest(cp)}
}

// Get returns a copy of the bytes stored under key.
func (s *ArtifactStore) Get(key StateKey) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sl, ok := s.slots[key]
	if !ok {
		return nil, false
	}
	return bytes.Clone(sl.data), true
}

// Blob returns the value under key with its presence.
func (s *ArtifactStore) Blob(key StateKey) Blob {
	data, ok := s.Get(key)
	return Blob{Data: data, Present: ok}
}

// Has reports whether key was ever captured.
func (s *ArtifactStore) Has(key StateKey) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.slots[key]
	return ok
}

// Keys returns the captured keys in sorted order.
func (s *ArtifactStore) Keys() []StateKey {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]StateKey, 0, len(s.slots))
	for k := range s.slots {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// Len returns the number of captured slots.
func (s *ArtifactStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.slots)
}

// Digest returns the content digest recorded when key was captured.
func (s *ArtifactStore) Digest(key StateKey) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sl, ok := s.slots[key]
	if !ok {
		return "", false
	}
	return sl.digest, true
}

// ModTime returns the live artifact's modification time at capture.
func (s *ArtifactStore) ModTime(key StateKey) (time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sl, ok := s.slots[key]
	if !ok {
		return time.Time{}, false
	}
	return sl.modTime, true
}

// SetModTime records the capture-time modification time for an existing
// key. It is a no-op when key is absent.
func (s *ArtifactStore) SetModTime(key StateKey, t time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sl, ok := s.slots[key]; ok {
		sl.modTime = t
	}
}

// Snapshots returns copies of every slot ordered by key.
func (s *ArtifactStore) Snapshots() []Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Snapshot, 0, len(s.slots))
	for k, sl := range s.slots {
		out = append(out, Snapshot{
			Key:     k,
			Data:    bytes.Clone(sl.data),
			Digest:  sl.digest,
			ModTime: sl.modTime,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Load installs a persisted snapshot. A missing digest is recomputed.
func (s *ArtifactStore) Load(snap Snapshot) {
	data := bytes.Clone(snap.Data)
	if data == nil {
		data = []byte{}
	}
	digest := snap.Digest
	if digest == "" {
		digest = Digest(data)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.slots[snap.Key] = &slot{data: data, digest: digest, modTime: snap.ModTime}
}
