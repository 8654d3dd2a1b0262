package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/recipebook/recipebook/internal/auth"
	"github.com/recipebook/recipebook/internal/document"
	"github.com/recipebook/recipebook/internal/model"
	"github.com/recipebook/recipebook/internal/repository"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fastHasher keeps argon2 cheap in unit tests.
func fastHasher() auth.PasswordHasher {
	return auth.NewArgon2Hasher(auth.Argon2Params{Time: 1, Memory: 8 * 1024, Threads: 1, KeyLen: 16, SaltLen: 8})
}

type memUsers struct {
	mu     sync.Mutex
	nextID int64
	byID   map[int64]*model.User
	err    error
}

func newMemUsers() *memUsers {
	return &memUsers{byID: make(map[int64]*model.User)}
}

func (m *memUsers) CreateUser(ctx context.Context, user *model.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	for _, u := range m.byID {
		if u.Username == user.Username {
			return repository.ErrUsernameExists
		}
		if u.Email == user.Email {
			return repository.ErrEmailExists
		}
	}
	m.nextID++
	user.ID = m.nextID
	user.CreatedAt = time.Now().UTC()
	stored := *user
	m.byID[user.ID] = &stored
	return nil
}

func (m *memUsers) GetUserByID(ctx context.Context, id int64) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	u, ok := m.byID[id]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	out := *u
	return &out, nil
}

func (m *memUsers) GetUserByUsername(ctx context.Context, username string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	for _, u := range m.byID {
		if u.Username == username {
			out := *u
			return &out, nil
		}
	}
	return nil, repository.ErrUserNotFound
}

func (m *memUsers) ListUsers(ctx context.Context, page repository.Page) ([]*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]int64, 0, len(m.byID))
	for id := range m.byID {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	var out []*model.User
	for _, id := range pageOf(ids, page) {
		u := *m.byID[id]
		out = append(out, &u)
	}
	return out, nil
}

func pageOf(ids []int64, page repository.Page) []int64 {
	if page.Offset >= len(ids) {
		return nil
	}
	end := page.Offset + page.Limit
	if end > len(ids) {
		end = len(ids)
	}
	return ids[page.Offset:end]
}

type memRecipes struct {
	mu         sync.Mutex
	nextID     int64
	rows       map[int64]*model.Recipe
	thumbs     map[int64]string
	createErr  error
	thumbErr   error
	blockUntil <-chan struct{}
}

func newMemRecipes() *memRecipes {
	return &memRecipes{rows: make(map[int64]*model.Recipe), thumbs: make(map[int64]string)}
}

func (m *memRecipes) CreateRecipe(ctx context.Context, recipe *model.Recipe) error {
	if m.blockUntil != nil {
		select {
		case <-m.blockUntil:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	for _, r := range m.rows {
		if r.DocumentRef == recipe.DocumentRef {
			return repository.ErrDocumentRefExists
		}
	}
	m.nextID++
	recipe.ID = m.nextID
	recipe.CreatedAt = time.Now().UTC()
	stored := *recipe
	m.rows[recipe.ID] = &stored
	return nil
}

func (m *memRecipes) GetRecipeByID(ctx context.Context, id int64) (*model.Recipe, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[id]
	if !ok {
		return nil, repository.ErrRecipeNotFound
	}
	out := *r
	out.ThumbnailPath = m.thumbs[id]
	return &out, nil
}

func (m *memRecipes) RecipeExists(ctx context.Context, id int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.rows[id]
	return ok, nil
}

func (m *memRecipes) GetRecipeOwnerID(ctx context.Context, id int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[id]
	if !ok {
		return 0, repository.ErrRecipeNotFound
	}
	return r.OwnerID, nil
}

func (m *memRecipes) DeleteRecipe(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[id]; !ok {
		return repository.ErrRecipeNotFound
	}
	delete(m.rows, id)
	delete(m.thumbs, id)
	return nil
}

func (m *memRecipes) list(page repository.Page, keep func(*model.Recipe) bool) []*model.Recipe {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]int64, 0, len(m.rows))
	for id, r := range m.rows {
		if keep(r) {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	var out []*model.Recipe
	for _, id := range pageOf(ids, page) {
		r := *m.rows[id]
		r.ThumbnailPath = m.thumbs[id]
		out = append(out, &r)
	}
	return out
}

func (m *memRecipes) ListRecipes(ctx context.Context, page repository.Page) ([]*model.Recipe, error) {
	return m.list(page, func(*model.Recipe) bool { return true }), nil
}

func (m *memRecipes) ListRecipesByOwner(ctx context.Context, ownerID int64, page repository.Page) ([]*model.Recipe, error) {
	return m.list(page, func(r *model.Recipe) bool { return r.OwnerID == ownerID }), nil
}

func (m *memRecipes) UpsertThumbnail(ctx context.Context, thumb *model.Thumbnail) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.thumbErr != nil {
		return "", m.thumbErr
	}
	if _, ok := m.rows[thumb.RecipeID]; !ok {
		return "", repository.ErrRecipeNotFound
	}
	previous := m.thumbs[thumb.RecipeID]
	m.thumbs[thumb.RecipeID] = thumb.Path
	return previous, nil
}

func (m *memRecipes) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows)
}

type memDocs struct {
	mu        sync.Mutex
	docs      map[string]model.RecipeDocument
	corrupt   map[string]bool
	writeErr  error
	deleteErr error
}

func newMemDocs() *memDocs {
	return &memDocs{docs: make(map[string]model.RecipeDocument), corrupt: make(map[string]bool)}
}

func (m *memDocs) Write(ctx context.Context, ref string, doc *model.RecipeDocument) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.writeErr != nil {
		return m.writeErr
	}
	m.docs[ref] = *doc
	return nil
}

func (m *memDocs) Read(ctx context.Context, ref string) (*model.RecipeDocument, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.corrupt[ref] {
		return nil, document.ErrCorrupt
	}
	doc, ok := m.docs[ref]
	if !ok {
		return nil, document.ErrNotFound
	}
	return &doc, nil
}

func (m *memDocs) Delete(ctx context.Context, ref string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deleteErr != nil {
		return m.deleteErr
	}
	delete(m.docs, ref)
	return nil
}

func (m *memDocs) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.docs)
}

type memThumbs struct {
	mu      sync.Mutex
	files   map[string][]byte
	saveErr error
}

func newMemThumbs() *memThumbs {
	return &memThumbs{files: make(map[string][]byte)}
}

func (m *memThumbs) Save(ctx context.Context, name string, data []byte, contentType string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return "", m.saveErr
	}
	m.files[name] = data
	return name, nil
}

func (m *memThumbs) Delete(ctx context.Context, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.files, path)
	return nil
}

func (m *memThumbs) Ping(ctx context.Context) error { return nil }

func (m *memThumbs) has(path string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.files[path]
	return ok
}

var errBoom = errors.New("boom")
