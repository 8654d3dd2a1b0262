//go:build integration

package repository_test

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recipebook/recipebook/internal/model"
	"github.com/recipebook/recipebook/internal/repository"
	"github.com/recipebook/recipebook/internal/testutil"
)

type repoTestEnv struct {
	repo *repository.Repository
	db   *sql.DB
	ctx  context.Context
	url  string
}

func newRepoTestEnv(t *testing.T) *repoTestEnv {
	t.Helper()

	databaseURL := testutil.PostgresURL(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	require.NoError(t, repository.Migrate(databaseURL, logger))

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	t.Cleanup(cancel)

	repo, err := repository.New(ctx, repository.Options{URL: databaseURL})
	require.NoError(t, err)
	t.Cleanup(repo.Close)

	unlock, err := testutil.AcquireDBLock(ctx, repo.Pool())
	require.NoError(t, err)
	t.Cleanup(func() { _ = unlock() })

	require.NoError(t, testutil.TruncateAll(ctx, repo.Pool()))

	db, err := sql.Open("postgres", databaseURL)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	return &repoTestEnv{repo: repo, db: db, ctx: ctx, url: databaseURL}
}

func (e *repoTestEnv) columnExists(t *testing.T, table, column string) bool {
	t.Helper()
	var exists bool
	err := e.db.QueryRowContext(e.ctx, `
		SELECT EXISTS (
			SELECT 1 FROM information_schema.columns
			WHERE table_schema = 'public' AND table_name = $1 AND column_name = $2
		)`, table, column).Scan(&exists)
	require.NoError(t, err)
	return exists
}

func (e *repoTestEnv) createUser(t *testing.T, prefix string) *model.User {
	t.Helper()
	user := testutil.NewTestUser(t, prefix)
	require.NoError(t, e.repo.CreateUser(e.ctx, user))
	return user
}

func (e *repoTestEnv) createRecipe(t *testing.T, ownerID int64, ref string) *model.Recipe {
	t.Helper()
	recipe := &model.Recipe{OwnerID: ownerID, DocumentRef: ref}
	require.NoError(t, e.repo.CreateRecipe(e.ctx, recipe))
	return recipe
}

func TestMigrate_Schema(t *testing.T) {
	env := newRepoTestEnv(t)

	expected := map[string][]string{
		"users":             {"id", "username", "email", "password_digest", "created_at"},
		"recipes":           {"id", "owner_id", "document_ref", "created_at"},
		"recipe_thumbnails": {"recipe_id", "path", "updated_at"},
	}
	for table, columns := range expected {
		for _, column := range columns {
			assert.Truef(t, env.columnExists(t, table, column), "%s.%s missing", table, column)
		}
	}

	// A second run is a no-op.
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	require.NoError(t, repository.Migrate(env.url, logger))
}

func TestUser_CreateAndConflicts(t *testing.T) {
	env := newRepoTestEnv(t)

	alice := &model.User{Username: "alice", Email: "alice@example.com", PasswordDigest: "digest"}
	require.NoError(t, env.repo.CreateUser(env.ctx, alice))
	assert.NotZero(t, alice.ID)
	assert.False(t, alice.CreatedAt.IsZero())

	dupName := &model.User{Username: "alice", Email: "other@example.com", PasswordDigest: "digest"}
	assert.ErrorIs(t, env.repo.CreateUser(env.ctx, dupName), repository.ErrUsernameExists)

	dupEmail := &model.User{Username: "alice2", Email: "alice@example.com", PasswordDigest: "digest"}
	assert.ErrorIs(t, env.repo.CreateUser(env.ctx, dupEmail), repository.ErrEmailExists)

	byName, err := env.repo.GetUserByUsername(env.ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, alice.ID, byName.ID)
	assert.Equal(t, "digest", byName.PasswordDigest)

	exists, err := env.repo.UserExists(env.ctx, alice.ID)
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = env.repo.UserExists(env.ctx, alice.ID+1000)
	require.NoError(t, err)
	assert.False(t, exists)

	_, err = env.repo.GetUserByID(env.ctx, alice.ID+1000)
	assert.ErrorIs(t, err, repository.ErrUserNotFound)
}

func TestRecipe_Lifecycle(t *testing.T) {
	env := newRepoTestEnv(t)
	owner := env.createUser(t, "owner")

	ref := "1-01hzx0000000000000000000aa"
	recipe := env.createRecipe(t, owner.ID, ref)
	assert.NotZero(t, recipe.ID)

	dup := &model.Recipe{OwnerID: owner.ID, DocumentRef: ref}
	assert.ErrorIs(t, env.repo.CreateRecipe(env.ctx, dup), repository.ErrDocumentRefExists)

	got, err := env.repo.GetRecipeByID(env.ctx, recipe.ID)
	require.NoError(t, err)
	assert.Equal(t, owner.ID, got.OwnerID)
	assert.Equal(t, ref, got.DocumentRef)
	assert.Empty(t, got.ThumbnailPath)

	ownerID, err := env.repo.GetRecipeOwnerID(env.ctx, recipe.ID)
	require.NoError(t, err)
	assert.Equal(t, owner.ID, ownerID)

	exists, err := env.repo.RecipeExists(env.ctx, recipe.ID)
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, env.repo.DeleteRecipe(env.ctx, recipe.ID))
	assert.ErrorIs(t, env.repo.DeleteRecipe(env.ctx, recipe.ID), repository.ErrRecipeNotFound)

	_, err = env.repo.GetRecipeByID(env.ctx, recipe.ID)
	assert.ErrorIs(t, err, repository.ErrRecipeNotFound)

	_, err = env.repo.GetRecipeOwnerID(env.ctx, recipe.ID)
	assert.ErrorIs(t, err, repository.ErrRecipeNotFound)
}

func TestRecipe_ListPagination(t *testing.T) {
	env := newRepoTestEnv(t)
	owner := env.createUser(t, "lister")
	other := env.createUser(t, "other")

	var ids []int64
	for i := 0; i < 15; i++ {
		ownerID := owner.ID
		if i%3 == 0 {
			ownerID = other.ID
		}
		r := env.createRecipe(t, ownerID, "1-ref"+string(rune('a'+i)))
		ids = append(ids, r.ID)
	}

	page, err := env.repo.ListRecipes(env.ctx, repository.NewPage(0, 500))
	require.NoError(t, err)
	require.Len(t, page, repository.MaxPageLimit)
	for i := 1; i < len(page); i++ {
		assert.Less(t, page[i-1].ID, page[i].ID)
	}
	assert.Equal(t, ids[0], page[0].ID)

	rest, err := env.repo.ListRecipes(env.ctx, repository.NewPage(10, 10))
	require.NoError(t, err)
	assert.Len(t, rest, 5)
	assert.Equal(t, ids[10], rest[0].ID)

	empty, err := env.repo.ListRecipes(env.ctx, repository.NewPage(100, 10))
	require.NoError(t, err)
	assert.Empty(t, empty)

	mine, err := env.repo.ListRecipesByOwner(env.ctx, owner.ID, repository.NewPage(0, 0))
	require.NoError(t, err)
	assert.Len(t, mine, 10)
	for _, r := range mine {
		assert.Equal(t, owner.ID, r.OwnerID)
	}
}

func TestThumbnail_Upsert(t *testing.T) {
	env := newRepoTestEnv(t)
	owner := env.createUser(t, "thumb")
	recipe := env.createRecipe(t, owner.ID, "1-thumbref")

	previous, err := env.repo.UpsertThumbnail(env.ctx, &model.Thumbnail{RecipeID: recipe.ID, Path: "a.png"})
	require.NoError(t, err)
	assert.Empty(t, previous)

	previous, err = env.repo.UpsertThumbnail(env.ctx, &model.Thumbnail{RecipeID: recipe.ID, Path: "b.jpg"})
	require.NoError(t, err)
	assert.Equal(t, "a.png", previous)

	got, err := env.repo.GetRecipeByID(env.ctx, recipe.ID)
	require.NoError(t, err)
	assert.Equal(t, "b.jpg", got.ThumbnailPath)

	var count int
	require.NoError(t, env.db.QueryRowContext(env.ctx,
		`SELECT COUNT(*) FROM recipe_thumbnails WHERE recipe_id = $1`, recipe.ID).Scan(&count))
	assert.Equal(t, 1, count)

	// Deleting the recipe cascades to the thumbnail record.
	require.NoError(t, env.repo.DeleteRecipe(env.ctx, recipe.ID))
	require.NoError(t, env.db.QueryRowContext(env.ctx,
		`SELECT COUNT(*) FROM recipe_thumbnails WHERE recipe_id = $1`, recipe.ID).Scan(&count))
	assert.Zero(t, count)
}
