package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recipebook/recipebook/internal/apperror"
	"github.com/recipebook/recipebook/internal/auth"
	"github.com/recipebook/recipebook/internal/document"
	"github.com/recipebook/recipebook/internal/handler/dto"
	"github.com/recipebook/recipebook/internal/metrics"
	"github.com/recipebook/recipebook/internal/middleware"
	"github.com/recipebook/recipebook/internal/model"
	"github.com/recipebook/recipebook/internal/repository"
	"github.com/recipebook/recipebook/internal/service"
	"github.com/recipebook/recipebook/internal/thumbnail"
)

func TestHandler_NotFound(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/nonexistent", nil)
	rec := httptest.NewRecorder()

	NotFound(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("expected status 404, got %d", rec.Code)
	}

	var response apperror.Response
	if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if response.Description != "resource not found" {
		t.Errorf("unexpected description: %s", response.Description)
	}
}

func TestHandler_MethodNotAllowed(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	rec := httptest.NewRecorder()

	MethodNotAllowed(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected status 405, got %d", rec.Code)
	}

	var response apperror.Response
	if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if response.Code != "METHOD_NOT_ALLOWED" {
		t.Errorf("unexpected code: %s", response.Code)
	}
}

// memStore is an in-memory stand-in for the Postgres repository.
type memStore struct {
	mu      sync.Mutex
	users   []*model.User
	recipes map[int64]*model.Recipe
	thumbs  map[int64]string
	nextID  int64
}

func newMemStore() *memStore {
	return &memStore{recipes: make(map[int64]*model.Recipe), thumbs: make(map[int64]string)}
}

func (m *memStore) CreateUser(ctx context.Context, user *model.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Username == user.Username {
			return repository.ErrUsernameExists
		}
		if u.Email == user.Email {
			return repository.ErrEmailExists
		}
	}
	user.ID = int64(len(m.users) + 1)
	user.CreatedAt = time.Now().UTC()
	stored := *user
	m.users = append(m.users, &stored)
	return nil
}

func (m *memStore) GetUserByID(ctx context.Context, id int64) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.ID == id {
			out := *u
			return &out, nil
		}
	}
	return nil, repository.ErrUserNotFound
}

func (m *memStore) GetUserByUsername(ctx context.Context, username string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Username == username {
			out := *u
			return &out, nil
		}
	}
	return nil, repository.ErrUserNotFound
}

func (m *memStore) UserExists(ctx context.Context, id int64) (bool, error) {
	_, err := m.GetUserByID(ctx, id)
	return err == nil, nil
}

func (m *memStore) ListUsers(ctx context.Context, page repository.Page) ([]*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.User
	for i := page.Offset; i < len(m.users) && len(out) < page.Limit; i++ {
		u := *m.users[i]
		out = append(out, &u)
	}
	return out, nil
}

func (m *memStore) CreateRecipe(ctx context.Context, recipe *model.Recipe) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	recipe.ID = m.nextID
	recipe.CreatedAt = time.Now().UTC()
	stored := *recipe
	m.recipes[recipe.ID] = &stored
	return nil
}

func (m *memStore) GetRecipeByID(ctx context.Context, id int64) (*model.Recipe, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.recipes[id]
	if !ok {
		return nil, repository.ErrRecipeNotFound
	}
	out := *r
	out.ThumbnailPath = m.thumbs[id]
	return &out, nil
}

func (m *memStore) RecipeExists(ctx context.Context, id int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.recipes[id]
	return ok, nil
}

func (m *memStore) GetRecipeOwnerID(ctx context.Context, id int64) (int64, error) {
	r, err := m.GetRecipeByID(ctx, id)
	if err != nil {
		return 0, err
	}
	return r.OwnerID, nil
}

func (m *memStore) DeleteRecipe(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.recipes[id]; !ok {
		return repository.ErrRecipeNotFound
	}
	delete(m.recipes, id)
	delete(m.thumbs, id)
	return nil
}

func (m *memStore) listWhere(page repository.Page, keep func(*model.Recipe) bool) []*model.Recipe {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []int64
	for id, r := range m.recipes {
		if keep(r) {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	var out []*model.Recipe
	for i := page.Offset; i < len(ids) && len(out) < page.Limit; i++ {
		r := *m.recipes[ids[i]]
		r.ThumbnailPath = m.thumbs[r.ID]
		out = append(out, &r)
	}
	return out
}

func (m *memStore) ListRecipes(ctx context.Context, page repository.Page) ([]*model.Recipe, error) {
	return m.listWhere(page, func(*model.Recipe) bool { return true }), nil
}

func (m *memStore) ListRecipesByOwner(ctx context.Context, ownerID int64, page repository.Page) ([]*model.Recipe, error) {
	return m.listWhere(page, func(r *model.Recipe) bool { return r.OwnerID == ownerID }), nil
}

func (m *memStore) UpsertThumbnail(ctx context.Context, thumb *model.Thumbnail) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	previous := m.thumbs[thumb.RecipeID]
	m.thumbs[thumb.RecipeID] = thumb.Path
	return previous, nil
}

type apiEnv struct {
	server   *httptest.Server
	store    *memStore
	recorder *metrics.InMemoryRecorder
}

func newAPIEnv(t *testing.T) *apiEnv {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := newMemStore()
	recorder := metrics.NewInMemory()

	docs, err := document.NewFileStore(t.TempDir())
	require.NoError(t, err)
	thumbs, err := thumbnail.NewLocalStore(t.TempDir())
	require.NoError(t, err)

	codec := auth.NewTokenCodec([]byte("0123456789abcdef0123456789abcdef0123456789abcdef"), 0)
	hasher := auth.NewArgon2Hasher(auth.Argon2Params{Time: 1, Memory: 8 * 1024, Threads: 1, KeyLen: 16, SaltLen: 8})

	userSvc := service.NewUserService(store, hasher, codec, time.Second, recorder, logger)
	recipeSvc := service.NewRecipeService(store, store, docs, thumbs, 1<<20, time.Second, recorder, logger)

	router := NewRouter(RouterConfig{
		Logger:   logger,
		Users:    NewUserHandler(userSvc, logger),
		Recipes:  NewRecipeHandler(recipeSvc, 1<<20, logger),
		Health:   NewHealthHandler(NamedChecker{Name: "documents", Checker: docs}),
		Recorder: recorder,
		Auth: middleware.AuthConfig{
			Logger:       logger,
			Verifier:     codec,
			Metrics:      recorder,
			Strict:       true,
			Subjects:     store,
			StoreTimeout: time.Second,
		},
		RateLimit: middleware.RateLimitConfig{Logger: logger},
		Security:  middleware.SecurityConfig{IsDevelopment: true},
		CORS:      middleware.DefaultCORSConfig(),
	})

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return &apiEnv{server: srv, store: store, recorder: recorder}
}

func (e *apiEnv) do(t *testing.T, method, path, token, contentType string, body io.Reader) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, e.server.URL+path, body)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := e.server.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func (e *apiEnv) postJSON(t *testing.T, path string, body any) *http.Response {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	return e.do(t, http.MethodPost, path, "", "application/json", bytes.NewReader(raw))
}

func (e *apiEnv) register(t *testing.T, username string) {
	t.Helper()
	resp := e.postJSON(t, "/v1/users/register", map[string]string{
		"username":         username,
		"email":            username + "@example.com",
		"password":         "Str0ng!Pass",
		"confirm_password": "Str0ng!Pass",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
}

func (e *apiEnv) login(t *testing.T, username string) string {
	t.Helper()
	resp := e.postJSON(t, "/v1/users/login", map[string]string{
		"username": username,
		"password": "Str0ng!Pass",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body dto.LoginResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.NotEmpty(t, body.Token)
	return body.Token
}

type part struct {
	field       string
	filename    string
	contentType string
	data        []byte
}

func multipartBody(t *testing.T, parts ...part) (string, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, p := range parts {
		if p.filename == "" {
			require.NoError(t, mw.WriteField(p.field, string(p.data)))
			continue
		}
		header := make(textproto.MIMEHeader)
		header.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, p.field, p.filename))
		header.Set("Content-Type", p.contentType)
		w, err := mw.CreatePart(header)
		require.NoError(t, err)
		_, err = w.Write(p.data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return mw.FormDataContentType(), &buf
}

const soupJSON = `{"title":"Soup","description":"Warm soup","ingredients":[],"steps":[{"order":1,"text":"Boil water"}]}`

func (e *apiEnv) createRecipe(t *testing.T, token string, parts ...part) *http.Response {
	t.Helper()
	contentType, body := multipartBody(t, parts...)
	return e.do(t, http.MethodPost, "/v1/recipes", token, contentType, body)
}

func decodeError(t *testing.T, resp *http.Response) apperror.Response {
	t.Helper()
	var body apperror.Response
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body
}

func TestAPI_AliceScenario(t *testing.T) {
	env := newAPIEnv(t)

	env.register(t, "alice")
	token := env.login(t, "alice")

	codec := auth.NewTokenCodec([]byte("0123456789abcdef0123456789abcdef0123456789abcdef"), 0)
	identity, err := codec.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "alice", identity.Username)

	resp := env.createRecipe(t, token, part{field: "recipe", data: []byte(soupJSON)})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var created dto.RecipeWriteResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	require.NotZero(t, created.ID)
	assert.Empty(t, created.ThumbnailError)

	resp = env.do(t, http.MethodGet, fmt.Sprintf("/v1/recipes/%d", created.ID), "", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var full model.FullRecipe
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&full))
	assert.Equal(t, created.ID, full.ID)
	assert.Equal(t, "Soup", full.Recipe.Title)
	assert.Equal(t, "Warm soup", full.Recipe.Description)
	assert.Equal(t, []model.Step{{Order: 1, Text: "Boil water"}}, full.Recipe.Steps)
	assert.Equal(t, "alice", full.Poster.Username)

	resp = env.do(t, http.MethodGet, "/v1/account/verify", token, "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var verify dto.VerifyResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&verify))
	assert.Equal(t, "alice", verify.Username)

	snap := env.recorder.Snapshot()
	assert.Equal(t, uint64(1), snap.UsersRegistered)
	assert.Equal(t, uint64(1), snap.RecipesCreated)
	assert.Equal(t, uint64(1), snap.HTTPRequests["POST /v1/recipes/ 201"]+snap.HTTPRequests["POST /v1/recipes 201"])
}

func TestAPI_CreateRequiresToken(t *testing.T) {
	env := newAPIEnv(t)

	resp := env.createRecipe(t, "", part{field: "recipe", data: []byte(soupJSON)})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	body := decodeError(t, resp)
	assert.Equal(t, "AuthError", body.Error)
	assert.NotEmpty(t, body.Description)

	resp = env.createRecipe(t, "not-a-token", part{field: "recipe", data: []byte(soupJSON)})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestAPI_CreateValidation(t *testing.T) {
	env := newAPIEnv(t)
	env.register(t, "alice")
	token := env.login(t, "alice")

	tests := []struct {
		name     string
		parts    []part
		wantCode string
	}{
		{
			name:     "duplicate step order",
			parts:    []part{{field: "recipe", data: []byte(`{"title":"Soup","description":"Warm soup","ingredients":[],"steps":[{"order":1,"text":"a"},{"order":1,"text":"b"}]}`)}},
			wantCode: "DUPLICATE_STEP_ORDER",
		},
		{
			name:     "missing recipe",
			parts:    []part{{field: "other", data: []byte("x")}},
			wantCode: "INVALID_INPUT",
		},
		{
			name:     "unknown unit",
			parts:    []part{{field: "recipe", data: []byte(`{"title":"Soup","description":"Warm soup","ingredients":[{"name":"Salt","unit":"Pinch","amount":1}],"steps":[{"order":1,"text":"a"}]}`)}},
			wantCode: "INVALID_INPUT",
		},
		{
			name: "gif thumbnail",
			parts: []part{
				{field: "recipe", data: []byte(soupJSON)},
				{field: "thumbnail", filename: "a.gif", contentType: "image/gif", data: []byte("GIF89a......")},
			},
			wantCode: "UNSUPPORTED_MEDIA",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := env.createRecipe(t, token, tt.parts...)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			assert.Equal(t, tt.wantCode, decodeError(t, resp).Code)
		})
	}

	env.store.mu.Lock()
	defer env.store.mu.Unlock()
	assert.Empty(t, env.store.recipes, "no recipe row written")
}

func TestAPI_EditAndDeleteOwnership(t *testing.T) {
	env := newAPIEnv(t)
	env.register(t, "alice")
	env.register(t, "bob")
	alice := env.login(t, "alice")
	bob := env.login(t, "bob")

	png := append([]byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"), make([]byte, 32)...)
	resp := env.createRecipe(t, alice,
		part{field: "recipe", data: []byte(soupJSON)},
		part{field: "thumbnail", filename: "soup.png", contentType: "image/png", data: png},
	)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var created dto.RecipeWriteResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	path := fmt.Sprintf("/v1/recipes/%d", created.ID)

	edited := `{"title":"Stolen soup","description":"Mine","ingredients":[],"steps":[{"order":1,"text":"Take"}]}`
	contentType, body := multipartBody(t, part{field: "recipe", data: []byte(edited)})
	resp = env.do(t, http.MethodPut, path, bob, contentType, body)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "NOT_OWNER", decodeError(t, resp).Code)

	resp = env.do(t, http.MethodDelete, path, bob, "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = env.do(t, http.MethodGet, path, "", "", nil)
	var full model.FullRecipe
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&full))
	assert.Equal(t, "Soup", full.Recipe.Title)
	assert.NotEmpty(t, full.Thumbnail)

	contentType, body = multipartBody(t, part{field: "recipe", data: []byte(`{"title":"Soup","description":"Hotter soup","ingredients":[],"steps":[{"order":1,"text":"Boil water"}]}`)})
	resp = env.do(t, http.MethodPut, path, alice, contentType, body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = env.do(t, http.MethodHead, path, "", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = env.do(t, http.MethodDelete, path, alice, "", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = env.do(t, http.MethodHead, path, "", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = env.do(t, http.MethodGet, path, "", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAPI_ListPagination(t *testing.T) {
	env := newAPIEnv(t)
	env.register(t, "alice")
	token := env.login(t, "alice")

	for i := 0; i < 12; i++ {
		resp := env.createRecipe(t, token, part{field: "recipe", data: []byte(soupJSON)})
		require.Equal(t, http.StatusCreated, resp.StatusCode)
	}

	resp := env.do(t, http.MethodGet, "/v1/recipes?limit=500", "", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var page dto.RecipeListResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&page))
	assert.Len(t, page.Data, repository.MaxPageLimit)
	assert.Equal(t, repository.MaxPageLimit, page.Pagination.Limit)
	for i := 1; i < len(page.Data); i++ {
		assert.Less(t, page.Data[i-1].ID, page.Data[i].ID)
	}
	assert.Equal(t, "Soup", page.Data[0].Title)

	resp = env.do(t, http.MethodGet, "/v1/recipes?offset=10", "", "", nil)
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&page))
	assert.Len(t, page.Data, 2)

	resp = env.do(t, http.MethodGet, "/v1/recipes?offset=abc", "", "", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = env.do(t, http.MethodGet, "/v1/users/1/recipes", "", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = env.do(t, http.MethodGet, "/v1/users/99/recipes", "", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAPI_RegisterAndLoginErrors(t *testing.T) {
	env := newAPIEnv(t)
	env.register(t, "alice")

	resp := env.postJSON(t, "/v1/users/register", map[string]string{
		"username":         "alice",
		"email":            "other@example.com",
		"password":         "Str0ng!Pass",
		"confirm_password": "Str0ng!Pass",
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "USERNAME_TAKEN", decodeError(t, resp).Code)

	resp = env.postJSON(t, "/v1/users/login", map[string]string{"username": "alice", "password": "Wrong!Pass1"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "INVALID_CREDENTIALS", decodeError(t, resp).Code)

	resp = env.do(t, http.MethodPost, "/v1/users/login", "", "application/json", bytes.NewReader([]byte("{")))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = env.do(t, http.MethodGet, "/v1/users/1", "", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var user model.PublicUser
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&user))
	assert.Equal(t, "alice", user.Username)
}

func TestAPI_UnknownRoute(t *testing.T) {
	env := newAPIEnv(t)

	resp := env.do(t, http.MethodGet, "/nope", "", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
}
