package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/recipebook/recipebook/internal/apperror"
	"github.com/recipebook/recipebook/internal/auth"
	"github.com/recipebook/recipebook/internal/metrics"
	"github.com/recipebook/recipebook/internal/model"
)

const bearerPrefix = "Bearer "

// TokenVerifier turns a bearer token into an identity.
type TokenVerifier interface {
	Verify(token string) (*model.Identity, error)
}

// SubjectLookup reports whether a token subject still exists.
type SubjectLookup interface {
	UserExists(ctx context.Context, id int64) (bool, error)
}

// SubjectCache remembers subjects recently confirmed to exist.
type SubjectCache interface {
	IsKnownUser(ctx context.Context, userID int64) (bool, error)
	MarkKnownUser(ctx context.Context, userID int64, ttl time.Duration) error
}

// AuthConfig holds configuration for the auth middleware.
type AuthConfig struct {
	Logger   *slog.Logger
	Verifier TokenVerifier
	Metrics  metrics.Recorder

	// Strict re-validates the token subject against Subjects on every
	// request. Cache, when set, short-circuits recent positive answers.
	Strict       bool
	Subjects     SubjectLookup
	Cache        SubjectCache
	CacheTTL     time.Duration
	StoreTimeout time.Duration
}

// Auth returns a middleware that authenticates requests with a bearer token
// and attaches the verified identity to the request context.
func Auth(cfg AuthConfig) func(http.Handler) http.Handler {
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.NewNoop()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := bearerToken(r)
			if err != nil {
				reject(cfg, w, r, err)
				return
			}

			identity, err := cfg.Verifier.Verify(token)
			if err != nil {
				reject(cfg, w, r, err)
				return
			}

			if cfg.Strict && cfg.Subjects != nil {
				if err := checkSubject(r.Context(), cfg, identity.UserID); err != nil {
					reject(cfg, w, r, err)
					return
				}
			}

			cfg.Logger.Debug("authentication successful",
				slog.Int64("user_id", identity.UserID),
				slog.String("endpoint", r.Method+" "+r.URL.Path),
				slog.String("request_id", GetRequestID(r.Context())),
			)

			ctx := auth.ContextWithIdentity(r.Context(), identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// bearerToken extracts the token from the Authorization header.
func bearerToken(r *http.Request) (string, error) {
	values := r.Header.Values("Authorization")
	if len(values) == 0 {
		return "", apperror.New(apperror.KindMissingHeader, "Authorization header is required")
	}

	header := values[0]
	if !utf8.ValidString(header) || !strings.HasPrefix(header, bearerPrefix) {
		return "", apperror.New(apperror.KindMalformedHeader, "Authorization header must use the Bearer scheme")
	}

	token := strings.TrimSpace(strings.TrimPrefix(header, bearerPrefix))
	if token == "" {
		return "", apperror.New(apperror.KindMalformedHeader, "Bearer token is empty")
	}
	return token, nil
}

// checkSubject confirms that userID still exists. Cache failures fall
// through to the store; store failures are reported as DbFailure.
func checkSubject(ctx context.Context, cfg AuthConfig, userID int64) error {
	if cfg.Cache != nil {
		known, err := cfg.Cache.IsKnownUser(ctx, userID)
		if err != nil {
			cfg.Logger.Warn("subject cache lookup failed",
				slog.Int64("user_id", userID),
				slog.String("error", err.Error()),
			)
		} else if known {
			return nil
		}
	}

	lookupCtx := ctx
	if cfg.StoreTimeout > 0 {
		var cancel context.CancelFunc
		lookupCtx, cancel = context.WithTimeout(ctx, cfg.StoreTimeout)
		defer cancel()
	}

	start := time.Now()
	exists, err := cfg.Subjects.UserExists(lookupCtx, userID)
	cfg.Metrics.ObserveStoreDuration(metrics.StoreDatabase, "user_exists", time.Since(start))
	if err != nil {
		return apperror.Wrap(apperror.KindDbFailure, "could not confirm token subject", err)
	}
	if !exists {
		return apperror.New(apperror.KindUnknownSubject, "token subject no longer exists")
	}

	if cfg.Cache != nil {
		if err := cfg.Cache.MarkKnownUser(ctx, userID, cfg.CacheTTL); err != nil {
			cfg.Logger.Warn("subject cache update failed",
				slog.Int64("user_id", userID),
				slog.String("error", err.Error()),
			)
		}
	}
	return nil
}

// reject logs and renders an authentication failure.
func reject(cfg AuthConfig, w http.ResponseWriter, r *http.Request, err error) {
	kind := apperror.KindOf(err)
	reason := strings.ToLower(kind.Code())
	cfg.Metrics.IncAuthRejected(reason)

	attrs := []any{
		slog.String("reason", reason),
		slog.String("ip", r.RemoteAddr),
		slog.String("endpoint", r.Method+" "+r.URL.Path),
		slog.String("request_id", GetRequestID(r.Context())),
	}
	if kind.Status() >= http.StatusInternalServerError {
		cfg.Logger.Error("authentication error", append(attrs, slog.String("error", err.Error()))...)
	} else {
		cfg.Logger.Warn("authentication failed", attrs...)
	}

	writeError(w, err)
}
