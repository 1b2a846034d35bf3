package storage

import (
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// backends runs fn against every Store implementation.
func backends(t *testing.T, fn func(t *testing.T, s Store), opts ...Option) {
	t.Run("memory", func(t *testing.T) {
		fn(t, NewMemory(opts...))
	})
	t.Run("file", func(t *testing.T) {
		s, err := OpenFile(afero.NewMemMapFs(), "/data/store.json", nil, opts...)
		require.NoError(t, err)
		fn(t, s)
	})
}

func TestSetGet(t *testing.T) {
	backends(t, func(t *testing.T, s Store) {
		require.NoError(t, s.Set("foo", "bar"))

		val, ok, err := s.Get("foo")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "bar", val)
	})
}

func TestGetMissing(t *testing.T) {
	backends(t, func(t *testing.T, s Store) {
		val, ok, err := s.Get("missing")
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Empty(t, val)
	})
}

func TestOverwriteAndDelete(t *testing.T) {
	backends(t, func(t *testing.T, s Store) {
		require.NoError(t, s.Set("foo", "original"))
		require.NoError(t, s.Set("foo", "updated"))

		val, _, _ := s.Get("foo")
		assert.Equal(t, "updated", val)

		require.NoError(t, s.Delete("foo"))
		require.NoError(t, s.Delete("foo"))
		_, ok, _ := s.Get("foo")
		assert.False(t, ok)
	})
}

func TestLimits(t *testing.T) {
	backends(t, func(t *testing.T, s Store) {
		assert.ErrorIs(t, s.Set("this-key-is-too-long", "x"), ErrKeyTooLarge)
		assert.ErrorIs(t, s.Set("k", "this-value-is-way-too-large"), ErrValueTooLarge)
		assert.ErrorIs(t, s.Set("", "x"), ErrEmptyKey)

		require.NoError(t, s.Set("a", "1"))
		require.NoError(t, s.Set("b", "2"))
		assert.ErrorIs(t, s.Set("c", "3"), ErrTooManyEntries)

		// Replacing an existing key does not count as a new entry.
		assert.NoError(t, s.Set("a", "one"))
	}, WithMaxKeySize(10), WithMaxValueSize(10), WithMaxEntries(2))
}

func TestZeroDisablesLimit(t *testing.T) {
	s := NewMemory(WithMaxValueSize(0))
	assert.NoError(t, s.Set("big", strings.Repeat("x", 6<<20)))
}

func TestMemoryKeys(t *testing.T) {
	s := NewMemory()
	for _, k := range []string{"c", "a", "b"} {
		require.NoError(t, s.Set(k, k))
	}
	assert.Equal(t, []string{"a", "b", "c"}, s.Keys())
}

func TestConcurrent(t *testing.T) {
	backends(t, func(t *testing.T, s Store) {
		var wg sync.WaitGroup
		for i := 0; i < 100; i++ {
			wg.Add(1)
			go func(n int) {
				defer wg.Done()
				key := string(rune('a' + (n % 26)))
				assert.NoError(t, s.Set(key, fmt.Sprint(n)))
				s.Get(key)
			}(i)
		}
		wg.Wait()
	})
}

func TestFilePersists(t *testing.T) {
	fs := afero.NewMemMapFs()
	s, err := OpenFile(fs, "/home/u/.quickhub/store.json", nil)
	require.NoError(t, err)
	require.NoError(t, s.Set("quickhub.tabs.v1", `{"tabs":[]}`))
	assert.Equal(t, "/home/u/.quickhub/store.json", s.Path())

	reopened, err := OpenFile(fs, "/home/u/.quickhub/store.json", nil)
	require.NoError(t, err)
	val, ok, err := reopened.Get("quickhub.tabs.v1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, `{"tabs":[]}`, val)

	// No temp files are left behind.
	entries, err := afero.ReadDir(fs, "/home/u/.quickhub")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "store.json", entries[0].Name())
}

func TestFileCorruptReadsAsEmpty(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/store.json", []byte("{not json"), 0o644))

	s, err := OpenFile(fs, "/store.json", nil)
	require.NoError(t, err)
	_, ok, _ := s.Get("anything")
	assert.False(t, ok)

	require.NoError(t, s.Set("k", "v"))
	raw, err := afero.ReadFile(fs, "/store.json")
	require.NoError(t, err)
	assert.JSONEq(t, `{"k":"v"}`, string(raw))
}

func TestFileWriteFailureKeepsPreviousState(t *testing.T) {
	base := afero.NewMemMapFs()
	s, err := OpenFile(base, "/store.json", nil)
	require.NoError(t, err)
	require.NoError(t, s.Set("k", "v1"))

	s.fs = afero.NewReadOnlyFs(base)
	assert.Error(t, s.Set("k", "v2"))
	assert.Error(t, s.Set("new", "x"))
	assert.Error(t, s.Delete("k"))

	val, _, _ := s.Get("k")
	assert.Equal(t, "v1", val)
	_, ok, _ := s.Get("new")
	assert.False(t, ok)
}
