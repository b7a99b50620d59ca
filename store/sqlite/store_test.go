package sqlite

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gasparian/lsh-search-go/store"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "index.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func keys(t *testing.T, s *Store, pattern string) []string {
	t.Helper()
	it, err := s.FindMatching(pattern)
	require.NoError(t, err)
	defer it.Close()
	out := make([]string, 0)
	for {
		res, ok := it.Next()
		if !ok {
			break
		}
		out = append(out, res.Key)
	}
	require.NoError(t, it.Err())
	return out
}

func TestPutAndFind(t *testing.T) {
	s := setupTestStore(t)

	require.NoError(t, s.Put("lsh/0/1/0", []byte{1}))
	require.NoError(t, s.Put("lsh/0/1/0", []byte{2}))
	require.NoError(t, s.Put("lsh/0/10/0", nil))
	require.NoError(t, s.Put("lsh/1/1/0", nil))

	assert.Equal(t, []string{"lsh/0/1/0"}, keys(t, s, "lsh/0/1/*"))
	assert.Equal(t, []string{"lsh/0/1/0", "lsh/0/10/0"}, keys(t, s, "lsh/0/*"))
	assert.Equal(t, []string{"lsh/0/1/0", "lsh/1/1/0"}, keys(t, s, "lsh/*/1/0"))

	it, err := s.FindMatching("lsh/0/1/0")
	require.NoError(t, err)
	defer it.Close()
	res, ok := it.Next()
	require.True(t, ok)
	assert.Equal(t, []byte{2}, res.Value)
}

func TestTx(t *testing.T) {
	s := setupTestStore(t)

	tx, err := s.Begin()
	require.NoError(t, err)
	require.NoError(t, tx.Put("a", []byte("a")))
	require.NoError(t, tx.Put("b", []byte("b")))
	require.NoError(t, tx.Commit())
	assert.Equal(t, []string{"a", "b"}, keys(t, s, "*"))
	assert.True(t, errors.Is(tx.Commit(), store.ErrTxDone))

	tx, err = s.Begin()
	require.NoError(t, err)
	require.NoError(t, tx.Put("c", nil))
	require.NoError(t, tx.Rollback())
	assert.Equal(t, []string{"a", "b"}, keys(t, s, "*"))
}

func TestReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.db")
	s, err := New(path)
	require.NoError(t, err)
	require.NoError(t, s.Put("k", []byte("v")))
	require.NoError(t, s.Close())

	s, err = New(path)
	require.NoError(t, err)
	defer s.Close()
	assert.Equal(t, []string{"k"}, keys(t, s, "k"))
}
