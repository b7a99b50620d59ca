package kv

import (
	"errors"
	"testing"

	"github.com/gasparian/lsh-search-go/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect(t *testing.T, it store.Iterator) []string {
	t.Helper()
	defer it.Close()
	keys := make([]string, 0)
	for {
		res, ok := it.Next()
		if !ok {
			break
		}
		keys = append(keys, res.Key)
	}
	require.NoError(t, it.Err())
	return keys
}

func TestKvStore(t *testing.T) {
	s := NewKVStore()

	t.Run("Put", func(t *testing.T) {
		val := []byte{1, 2}
		require.NoError(t, s.Put("lsh/0/1/1", val))
		val[0] = 9
		it, err := s.FindMatching("lsh/0/1/1")
		require.NoError(t, err)
		res, ok := it.Next()
		require.True(t, ok)
		assert.Equal(t, []byte{1, 2}, res.Value)
	})

	t.Run("FindMatching", func(t *testing.T) {
		require.NoError(t, s.Put("lsh/0/1/0", nil))
		require.NoError(t, s.Put("lsh/0/10/0", nil))
		require.NoError(t, s.Put("lsh/1/1/0", nil))
		it, err := s.FindMatching("lsh/0/1/*")
		require.NoError(t, err)
		assert.Equal(t, []string{"lsh/0/1/0", "lsh/0/1/1"}, collect(t, it))

		it, err = s.FindMatching("lsh/*/1/0")
		require.NoError(t, err)
		assert.Equal(t, []string{"lsh/0/1/0", "lsh/1/1/0"}, collect(t, it))

		it, err = s.FindMatching("nothing/*")
		require.NoError(t, err)
		assert.Empty(t, collect(t, it))
	})

	t.Run("Tx", func(t *testing.T) {
		tx, err := s.Begin()
		require.NoError(t, err)
		require.NoError(t, tx.Put("tx/a", []byte("a")))
		require.NoError(t, tx.Put("tx/b", []byte("b")))
		it, _ := s.FindMatching("tx/*")
		assert.Empty(t, collect(t, it))
		require.NoError(t, tx.Commit())
		it, _ = s.FindMatching("tx/*")
		assert.Equal(t, []string{"tx/a", "tx/b"}, collect(t, it))

		tx, err = s.Begin()
		require.NoError(t, err)
		require.NoError(t, tx.Put("tx/c", nil))
		require.NoError(t, tx.Rollback())
		it, _ = s.FindMatching("tx/c")
		assert.Empty(t, collect(t, it))
	})

	t.Run("Clear", func(t *testing.T) {
		require.NoError(t, s.Clear())
		assert.Equal(t, 0, s.Len())
	})

	t.Run("Close", func(t *testing.T) {
		require.NoError(t, s.Close())
		assert.True(t, errors.Is(s.Put("k", nil), store.ErrClosed))
		_, err := s.FindMatching("*")
		assert.True(t, errors.Is(err, store.ErrClosed))
		_, err = s.Begin()
		assert.True(t, errors.Is(err, store.ErrClosed))
	})
}
