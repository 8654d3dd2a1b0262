package middleware

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/recipebook/recipebook/internal/apperror"
)

// SecurityConfig controls the hardening headers and the body limit.
type SecurityConfig struct {
	// IsDevelopment turns off HSTS so plain-HTTP local runs keep working.
	IsDevelopment bool
	// MaxRequestBodySize caps request bodies, recipe JSON and thumbnail
	// together.
	MaxRequestBodySize int64
}

// DefaultSecurityConfig returns the production settings.
func DefaultSecurityConfig() SecurityConfig {
	return SecurityConfig{MaxRequestBodySize: 4 << 20}
}

type header struct{ name, value string }

// apiHeaders apply to every response. The API serves JSON only, so the
// content policy forbids everything a browser could load from it.
var apiHeaders = []header{
	{"X-Content-Type-Options", "nosniff"},
	{"X-Frame-Options", "DENY"},
	{"X-XSS-Protection", "0"},
	{"Referrer-Policy", "strict-origin-when-cross-origin"},
	{"Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'"},
	{"Permissions-Policy", "geolocation=(), microphone=(), camera=(), payment=(), usb=()"},
	{"Cache-Control", "no-store"},
}

const hstsValue = "max-age=31536000; includeSubDomains; preload"

// Security sets the hardening headers on every response.
func Security(cfg SecurityConfig) func(http.Handler) http.Handler {
	headers := apiHeaders
	if !cfg.IsDevelopment {
		headers = append(append([]header(nil), apiHeaders...), header{"Strict-Transport-Security", hstsValue})
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			for _, hdr := range headers {
				h.Set(hdr.name, hdr.value)
			}
			h.Del("Server")
			next.ServeHTTP(w, r)
		})
	}
}

// MaxBodySize rejects bodies whose declared length exceeds maxBytes with 413
// and caps the rest with http.MaxBytesReader, so an undeclared oversized
// upload fails while it is being read.
func MaxBodySize(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Body != nil && r.ContentLength > maxBytes {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusRequestEntityTooLarge)
				_ = json.NewEncoder(w).Encode(apperror.Response{
					Error:       string(apperror.CategoryValidation),
					Description: fmt.Sprintf("Request body exceeds %d bytes", maxBytes),
					Code:        "PAYLOAD_TOO_LARGE",
				})
				return
			}

			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}
