package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestArtifactStore_PutGet(t *testing.T) {
	s := NewArtifactStore()

	_, ok := s.Get("a")
	require.False(t, ok, "fresh store has no keys")
	require.False(t, s.Has("a"))

	s.Put("a", []byte("alpha"))
	got, ok := s.Get("a")
	require.True(t, ok)
	require.Equal(t, []byte("alpha"), got)
	require.True(t, s.Has("a"))
	require.False(t, s.Has("b"))
}

func TestArtifactStore_PutOverwritesAndResetsModTime(t *testing.T) {
	s := NewArtifactStore()
	s.Put("a", []byte("one"))
	s.SetModTime("a", time.Unix(100, 0))

	s.Put("a", []byte("two"))
	got, _ := s.Get("a")
	require.Equal(t, []byte("two"), got)

	mt, ok := s.ModTime("a")
	require.True(t, ok)
	require.True(t, mt.IsZero(), "overwrite discards previous mod time")
}

func TestArtifactStore_CopiesInputAndOutput(t *testing.T) {
	s := NewArtifactStore()
	in := []byte("abc")
	s.Put("a", in)
	in[0] = 'x'

	out, _ := s.Get("a")
	require.Equal(t, []byte("abc"), out, "store must not alias caller input")

	out[0] = 'y'
	again, _ := s.Get("a")
	require.Equal(t, []byte("abc"), again, "store must not alias returned slice")
}

func TestArtifactStore_EmptyValueIsPresent(t *testing.T) {
	s := NewArtifactStore()
	s.Put("a", nil)

	got, ok := s.Get("a")
	require.True(t, ok, "nil put still creates the slot")
	require.Empty(t, got)
	require.True(t, s.Blob("a").Present)
	require.False(t, s.Blob("b").Present)
}

func TestArtifactStore_SetModTimeOnAbsentKeyIsNoop(t *testing.T) {
	s := NewArtifactStore()
	s.SetModTime("a", time.Now())
	require.False(t, s.Has("a"))
}

func TestArtifactStore_DigestAndKeys(t *testing.T) {
	s := NewArtifactStore()
	s.Put("b", []byte("bravo"))
	s.Put("a", []byte("alpha"))

	require.Equal(t, []StateKey{"a", "b"}, s.Keys())
	require.Equal(t, 2, s.Len())

	d, ok := s.Digest("a")
	require.True(t, ok)
	require.Equal(t, Digest([]byte("alpha")), d)
	require.Len(t, d, 16)

	_, ok = s.Digest("missing")
	require.False(t, ok)
}

func TestArtifactStore_SnapshotsLoadRoundTrip(t *testing.T) {
	s := NewArtifactStore()
	s.Put("a", []byte("alpha"))
	s.SetModTime("a", time.Unix(42, 0))
	s.Put("b", []byte{})

	other := NewArtifactStore()
	for _, snap := range s.Snapshots() {
		other.Load(snap)
	}

	require.Equal(t, s.Keys(), other.Keys())
	a, _ := other.Get("a")
	require.Equal(t, []byte("alpha"), a)
	mt, _ := other.ModTime("a")
	require.Equal(t, time.Unix(42, 0), mt)
	require.True(t, other.Has("b"))
}

func TestArtifactStore_LoadRecomputesMissingDigest(t *testing.T) {
	s := NewArtifactStore()
	s.Load(Snapshot{Key: "a", Data: []byte("alpha")})

	d, ok := s.Digest("a")
	require.True(t, ok)
	require.Equal(t, Digest([]byte("alpha")), d)
}

func TestEqualBlobs(t *testing.T) {
	tests := []struct {
		name string
		a, b Blob
		want bool
	}{
		{"both present equal", PresentBlob([]byte("x")), PresentBlob([]byte("x")), true},
		{"both present differ", PresentBlob([]byte("x")), PresentBlob([]byte("y")), false},
		{"length differs", PresentBlob([]byte("x")), PresentBlob([]byte("xx")), false},
		{"absent vs present empty", Blob{}, PresentBlob([]byte{}), false},
		{"present empty vs absent", PresentBlob(nil), Blob{}, false},
		{"both present empty", PresentBlob(nil), PresentBlob([]byte{}), true},
		{"both absent", Blob{}, Blob{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, EqualBlobs(tt.a, tt.b))
		})
	}
}

func TestEqual_Properties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		a := rapid.SliceOf(rapid.Byte()).Draw(t, "a")
		b := rapid.SliceOf(rapid.Byte()).Draw(t, "b")

		if !Equal(a, a) {
			t.Fatalf("Equal is not reflexive for %v", a)
		}
		if Equal(a, b) != Equal(b, a) {
			t.Fatalf("Equal is not symmetric for %v, %v", a, b)
		}
		if len(a) != len(b) && Equal(a, b) {
			t.Fatalf("Equal reported true for different lengths %d and %d", len(a), len(b))
		}
	})
}

func TestArtifactStore_PutGetProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		s := NewArtifactStore()
		want := make(map[StateKey][]byte)

		n := rapid.IntRange(1, 30).Draw(t, "ops")
		for i := 0; i < n; i++ {
			key := StateKey(rapid.SampledFrom([]string{"a", "b", "c"}).Draw(t, "key"))
			data := rapid.SliceOf(rapid.Byte()).Draw(t, "data")
			s.Put(key, data)
			want[key] = data
		}

		for key, data := range want {
			got, ok := s.Get(key)
			if !ok {
				t.Fatalf("key %s missing after put", key)
			}
			if !Equal(got, data) && !(len(got) == 0 && len(data) == 0) {
				t.Fatalf("key %s: got %v want %v", key, got, data)
			}
		}
		if s.Len() != len(want) {
			t.Fatalf("len %d want %d", s.Len(), len(want))
		}
	})
}
