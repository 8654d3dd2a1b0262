// Package handler provides HTTP request handlers.
package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/recipebook/recipebook/internal/apperror"
	"github.com/recipebook/recipebook/internal/middleware"
	"github.com/recipebook/recipebook/internal/repository"
)

// NotFound handles 404 responses.
func NotFound(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusNotFound, apperror.Response{
		Error:       string(apperror.CategoryStorage),
		Description: "resource not found",
		Code:        apperror.KindNotFound.Code(),
	})
}

// MethodNotAllowed handles 405 responses.
func MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusMethodNotAllowed, apperror.Response{
		Error:       string(apperror.CategoryValidation),
		Description: "method not allowed",
		Code:        "METHOD_NOT_ALLOWED",
	})
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError renders err as the structured error body. Server-side
// failures are logged with their internal cause, which never reaches the
// client.
func writeError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	status := apperror.Status(err)
	if status >= http.StatusInternalServerError {
		logger.Error("request failed",
			slog.String("request_id", middleware.GetRequestID(r.Context())),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("code", apperror.KindOf(err).Code()),
			slog.String("error", err.Error()),
		)
	}
	writeJSON(w, status, apperror.ToResponse(err))
}

// pathID reads a positive integer URL parameter.
func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperror.New(apperror.KindInvalidInput, name+" must be a positive integer")
	}
	return id, nil
}

// pageQuery reads offset and limit query parameters. Missing values take
// the defaults and out-of-range values are clamped.
func pageQuery(r *http.Request) (repository.Page, error) {
	query := r.URL.Query()

	offset, err := intQuery(query.Get("offset"), "offset")
	if err != nil {
		return repository.Page{}, err
	}
	limit, err := intQuery(query.Get("limit"), "limit")
	if err != nil {
		return repository.Page{}, err
	}
	return repository.NewPage(offset, limit), nil
}

func intQuery(raw, name string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperror.New(apperror.KindInvalidInput, name+" must be an integer")
	}
	return n, nil
}

// decodeJSON decodes a JSON request body into dst.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return apperror.Wrap(apperror.KindInvalidInput, "Invalid request body", err)
	}
	return nil
}
