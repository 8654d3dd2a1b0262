package document

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recipebook/recipebook/internal/model"
)

func newStore(t *testing.T) *FileStore {
	t.Helper()
	s, err := NewFileStore(filepath.Join(t.TempDir(), "recipes"))
	require.NoError(t, err)
	return s
}

func sampleDoc() *model.RecipeDocument {
	return &model.RecipeDocument{
		Title:       "Soup",
		Description: "Warm soup",
		Ingredients: []model.Ingredient{{Name: "Water", Unit: model.UnitLitre, Amount: 1.5}},
		Steps:       []model.Step{{Order: 1, Text: "Boil water"}},
	}
}

func TestNewRef(t *testing.T) {
	ref := NewRef(42)
	assert.True(t, ValidRef(ref), "ref %q", ref)
	assert.Regexp(t, `^42-`, ref)
	assert.Len(t, Suffix(ref), 26)
	assert.NotEqual(t, ref, NewRef(42))
}

func TestValidRef(t *testing.T) {
	assert.True(t, ValidRef("1-01hzx"))
	assert.False(t, ValidRef("../etc/passwd"))
	assert.False(t, ValidRef("1-ABC"))
	assert.False(t, ValidRef("abc-01"))
	assert.False(t, ValidRef("1"))
}

func TestFileStore_WriteRead(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	ref := NewRef(1)

	require.NoError(t, s.Write(ctx, ref, sampleDoc()))

	got, err := s.Read(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, sampleDoc(), got)

	// Filename is the reference itself.
	_, err = os.Stat(filepath.Join(s.Dir(), ref))
	require.NoError(t, err)
}

func TestFileStore_Overwrite(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	ref := NewRef(1)

	require.NoError(t, s.Write(ctx, ref, sampleDoc()))

	updated := sampleDoc()
	updated.Title = "Better soup"
	require.NoError(t, s.Write(ctx, ref, updated))

	got, err := s.Read(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, "Better soup", got.Title)

	// No temp files left behind.
	entries, err := os.ReadDir(s.Dir())
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestFileStore_ReadMissing(t *testing.T) {
	s := newStore(t)
	_, err := s.Read(context.Background(), NewRef(1))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFileStore_ReadCorrupt(t *testing.T) {
	s := newStore(t)
	ref := NewRef(1)
	require.NoError(t, os.WriteFile(filepath.Join(s.Dir(), ref), []byte("{not json"), 0o640))

	_, err := s.Read(context.Background(), ref)
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestFileStore_DeleteIdempotent(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	ref := NewRef(1)

	require.NoError(t, s.Write(ctx, ref, sampleDoc()))
	require.NoError(t, s.Delete(ctx, ref))
	require.NoError(t, s.Delete(ctx, ref))

	_, err := s.Read(ctx, ref)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFileStore_RejectsBadRef(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	assert.ErrorIs(t, s.Write(ctx, "../escape", sampleDoc()), ErrInvalidRef)
	_, err := s.Read(ctx, "../escape")
	assert.ErrorIs(t, err, ErrInvalidRef)
	assert.ErrorIs(t, s.Delete(ctx, "../escape"), ErrInvalidRef)
}

func TestFileStore_CancelledContext(t *testing.T) {
	s := newStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := s.Write(ctx, NewRef(1), sampleDoc())
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestFileStore_Ping(t *testing.T) {
	s := newStore(t)
	require.NoError(t, s.Ping(context.Background()))
}

func TestFileStore_ExpiredWriteKeepsPrevious(t *testing.T) {
	s := newStore(t)
	ref := NewRef(1)
	require.NoError(t, s.Write(context.Background(), ref, sampleDoc()))

	path, err := s.path(ref)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	// The deadline passes while the write is in progress.
	err = run(ctx, func() error {
		time.Sleep(50 * time.Millisecond)
		return writeAtomic(ctx, path, []byte(`{"title":"New"}`))
	})
	require.ErrorIs(t, err, context.DeadlineExceeded)

	got, err := s.Read(context.Background(), ref)
	require.NoError(t, err)
	assert.Equal(t, "Soup", got.Title)

	entries, err := os.ReadDir(s.Dir())
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
