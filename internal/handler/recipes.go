package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/recipebook/recipebook/internal/apperror"
	"github.com/recipebook/recipebook/internal/auth"
	"github.com/recipebook/recipebook/internal/handler/dto"
	"github.com/recipebook/recipebook/internal/model"
	"github.com/recipebook/recipebook/internal/service"
)

// Multipart field names of recipe writes.
const (
	recipeField    = "recipe"
	thumbnailField = "thumbnail"
)

// multipartMemory is how much of a multipart body is kept in memory
// before parts spill to temporary files.
const multipartMemory = 8 << 20

// RecipeHandler handles recipe endpoints.
type RecipeHandler struct {
	svc          *service.RecipeService
	maxThumbSize int64
	logger       *slog.Logger
}

// NewRecipeHandler creates a new RecipeHandler.
func NewRecipeHandler(svc *service.RecipeService, maxThumbSize int64, logger *slog.Logger) *RecipeHandler {
	return &RecipeHandler{
		svc:          svc,
		maxThumbSize: maxThumbSize,
		logger:       logger,
	}
}

// Create handles POST /v1/recipes.
func (h *RecipeHandler) Create(w http.ResponseWriter, r *http.Request) {
	identity := auth.MustIdentityFromContext(r.Context())

	doc, upload, err := h.readForm(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	result, err := h.svc.Create(r.Context(), identity, doc, upload)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, writeResponse(result))
}

// Edit handles PUT /v1/recipes/{id}.
func (h *RecipeHandler) Edit(w http.ResponseWriter, r *http.Request) {
	identity := auth.MustIdentityFromContext(r.Context())

	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	doc, upload, err := h.readForm(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	result, err := h.svc.Edit(r.Context(), identity, id, doc, upload)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, writeResponse(result))
}

// Delete handles DELETE /v1/recipes/{id}.
func (h *RecipeHandler) Delete(w http.ResponseWriter, r *http.Request) {
	identity := auth.MustIdentityFromContext(r.Context())

	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	if err := h.svc.Delete(r.Context(), identity, id); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Get handles GET /v1/recipes/{id}.
func (h *RecipeHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	recipe, err := h.svc.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, recipe)
}

// Head handles HEAD /v1/recipes/{id}.
func (h *RecipeHandler) Head(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	exists, err := h.svc.Exists(r.Context(), id)
	if err != nil {
		w.WriteHeader(apperror.Status(err))
		return
	}
	if !exists {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// List handles GET /v1/recipes.
func (h *RecipeHandler) List(w http.ResponseWriter, r *http.Request) {
	page, err := pageQuery(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	recipes, err := h.svc.List(r.Context(), page)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.ToRecipeListResponse(recipes, page.Offset, page.Limit))
}

// ListByOwner handles GET /v1/users/{id}/recipes.
func (h *RecipeHandler) ListByOwner(w http.ResponseWriter, r *http.Request) {
	ownerID, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	page, err := pageQuery(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	recipes, err := h.svc.ListByOwner(r.Context(), ownerID, page)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.ToRecipeListResponse(recipes, page.Offset, page.Limit))
}

// readForm parses a recipe write: a JSON document in the recipe field and
// an optional thumbnail file.
func (h *RecipeHandler) readForm(r *http.Request) (*model.RecipeDocument, *service.ThumbnailUpload, error) {
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, nil, apperror.Wrap(apperror.KindInvalidInput, "request body is too large", err)
		}
		return nil, nil, apperror.Wrap(apperror.KindInvalidInput, "request must be multipart/form-data", err)
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	raw := r.FormValue(recipeField)
	if raw == "" {
		return nil, nil, apperror.New(apperror.KindInvalidInput, "recipe is required")
	}

	var doc model.RecipeDocument
	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&doc); err != nil {
		return nil, nil, apperror.Wrap(apperror.KindInvalidInput,
			"recipe must be a valid recipe document: "+err.Error(), err)
	}

	upload, err := h.readThumbnail(r)
	if err != nil {
		return nil, nil, err
	}
	return &doc, upload, nil
}

func (h *RecipeHandler) readThumbnail(r *http.Request) (*service.ThumbnailUpload, error) {
	file, header, err := r.FormFile(thumbnailField)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return nil, nil
		}
		return nil, apperror.Wrap(apperror.KindInvalidInput, "thumbnail could not be read", err)
	}
	defer file.Close()

	if h.maxThumbSize > 0 && header.Size > h.maxThumbSize {
		return nil, apperror.New(apperror.KindInvalidInput,
			fmt.Sprintf("thumbnail exceeds %d bytes", h.maxThumbSize))
	}

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, apperror.Wrap(apperror.KindInvalidInput, "thumbnail could not be read", err)
	}

	return &service.ThumbnailUpload{
		Data:        data,
		ContentType: header.Header.Get("Content-Type"),
		FileName:    header.Filename,
	}, nil
}

func writeResponse(result *service.RecipeResult) dto.RecipeWriteResponse {
	resp := dto.RecipeWriteResponse{ID: result.ID}
	if result.ThumbnailErr != nil {
		resp.ThumbnailError = apperror.ToResponse(result.ThumbnailErr).Description
	}
	return resp
}
