package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "narrations.json")
	s, err := Open(path)
	require.NoError(t, err)
	return s, path
}

func TestStore_AddAndGet(t *testing.T) {
	s, _ := testStore(t)

	added, err := s.Add(Narration{SourcePath: "book.epub", Voice: "af_sky", Chunks: 10})
	require.NoError(t, err)
	assert.NotEmpty(t, added.ID)
	assert.False(t, added.CreatedAt.IsZero())

	got, err := s.Get(added.ID)
	require.NoError(t, err)
	assert.Equal(t, "book.epub", got.SourcePath)
	assert.Equal(t, "af_sky", got.Voice)
}

func TestStore_GetMissing(t *testing.T) {
	s, _ := testStore(t)
	_, err := s.Get("nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_PersistsAcrossOpens(t *testing.T) {
	s, path := testStore(t)
	added, err := s.Add(Narration{SourcePath: "book.pdf", Chunks: 3})
	require.NoError(t, err)

	reopened, err := Open(path)
	require.NoError(t, err)
	got, err := reopened.Get(added.ID)
	require.NoError(t, err)
	assert.Equal(t, "book.pdf", got.SourcePath)
}

func TestStore_Update(t *testing.T) {
	s, _ := testStore(t)
	added, err := s.Add(Narration{Chunks: 5})
	require.NoError(t, err)

	updated, err := s.Update(added.ID, func(n *Narration) {
		n.ChunksDone = 5
	})
	require.NoError(t, err)
	assert.True(t, updated.Complete())
	assert.True(t, updated.UpdatedAt.After(added.UpdatedAt) || updated.UpdatedAt.Equal(added.UpdatedAt))
}

func TestStore_Remove(t *testing.T) {
	s, _ := testStore(t)
	added, err := s.Add(Narration{})
	require.NoError(t, err)

	require.NoError(t, s.Remove(added.ID))
	_, err = s.Get(added.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.Remove(added.ID), ErrNotFound)
}

func TestStore_ListNewestFirst(t *testing.T) {
	s, _ := testStore(t)
	first, err := s.Add(Narration{SourcePath: "a.txt"})
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)
	second, err := s.Add(Narration{SourcePath: "b.txt"})
	require.NoError(t, err)

	list := s.List()
	require.Len(t, list, 2)
	assert.Equal(t, second.ID, list[0].ID)
	assert.Equal(t, first.ID, list[1].ID)
}
