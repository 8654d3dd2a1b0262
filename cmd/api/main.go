// Package main is the entrypoint for the recipebook API server.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"regexp"
	"strings"

	"github.com/recipebook/recipebook/internal/auth"
	"github.com/recipebook/recipebook/internal/cache"
	"github.com/recipebook/recipebook/internal/config"
	"github.com/recipebook/recipebook/internal/document"
	"github.com/recipebook/recipebook/internal/handler"
	"github.com/recipebook/recipebook/internal/metrics"
	"github.com/recipebook/recipebook/internal/middleware"
	"github.com/recipebook/recipebook/internal/repository"
	"github.com/recipebook/recipebook/internal/server"
	"github.com/recipebook/recipebook/internal/service"
	"github.com/recipebook/recipebook/internal/thumbnail"
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := initLogger(cfg)

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server error", slog.String("error", sanitizeError(err, cfg.DatabaseURL, cfg.RedisURL)))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	if cfg.MigrateOnStart {
		if err := repository.Migrate(cfg.DatabaseURL, logger); err != nil {
			return fmt.Errorf("migrate database: %w", err)
		}
	}

	repo, err := repository.New(ctx, repository.Options{
		URL:         cfg.DatabaseURL,
		MaxConns:    cfg.DBMaxConns,
		MinConns:    cfg.DBMinConns,
		PingTimeout: cfg.StoreTimeout,
	})
	if err != nil {
		logger.Error("failed to connect to database",
			slog.String("database_url", redactURL(cfg.DatabaseURL)),
		)
		return err
	}
	logger.Info("connected to database")

	cacheClient, err := cache.New(ctx, cache.Options{
		URL:          cfg.RedisURL,
		PoolSize:     cfg.RedisPoolSize,
		MinIdleConns: cfg.RedisMinIdleConns,
		PingTimeout:  cfg.StoreTimeout,
	})
	if err != nil {
		repo.Close()
		logger.Error("failed to connect to Redis",
			slog.String("redis_url", redactURL(cfg.RedisURL)),
		)
		return err
	}
	logger.Info("connected to Redis")

	docs, err := document.NewFileStore(cfg.DocumentDir)
	if err != nil {
		repo.Close()
		_ = cacheClient.Close()
		return err
	}

	thumbs, err := newThumbnailStore(ctx, cfg)
	if err != nil {
		repo.Close()
		_ = cacheClient.Close()
		return err
	}
	logger.Info("stores ready",
		slog.String("document_dir", docs.Dir()),
		slog.String("thumbnail_backend", cfg.ThumbnailBackend),
	)

	recorder := metrics.NewPrometheus()
	codec := auth.NewTokenCodec([]byte(cfg.JWTSecret), cfg.TokenTTL)
	hasher := auth.NewArgon2Hasher(auth.DefaultArgon2Params)

	userSvc := service.NewUserService(repo, hasher, codec, cfg.StoreTimeout, recorder, logger)
	recipeSvc := service.NewRecipeService(repo, repo, docs, thumbs, cfg.MaxThumbnailSize, cfg.StoreTimeout, recorder, logger)

	corsCfg := middleware.DefaultCORSConfig()
	corsCfg.AllowedOrigins = cfg.GetCORSAllowedOrigins()

	router := handler.NewRouter(handler.RouterConfig{
		Logger:  logger,
		Users:   handler.NewUserHandler(userSvc, logger),
		Recipes: handler.NewRecipeHandler(recipeSvc, cfg.MaxThumbnailSize, logger),
		Health: handler.NewHealthHandler(
			handler.NamedChecker{Name: "postgres", Checker: repo},
			handler.NamedChecker{Name: "redis", Checker: cacheClient},
			handler.NamedChecker{Name: "documents", Checker: docs},
			handler.NamedChecker{Name: "thumbnails", Checker: thumbs},
		),
		Metrics:  recorder.Handler(),
		Recorder: recorder,
		Auth: middleware.AuthConfig{
			Logger:       logger,
			Verifier:     codec,
			Metrics:      recorder,
			Strict:       cfg.AuthStrictSubject,
			Subjects:     repo,
			Cache:        cacheClient,
			CacheTTL:     cfg.AuthSubjectCacheTTL,
			StoreTimeout: cfg.StoreTimeout,
		},
		RateLimit: middleware.RateLimitConfig{
			Logger:    logger,
			Limiter:   cacheClient,
			Enabled:   cfg.RateLimitEnabled,
			UserRPM:   cfg.RateLimitUserRPM,
			UserBurst: cfg.RateLimitUserBurst,
			IPRPS:     cfg.RateLimitIPRPS,
			IPBurst:   cfg.RateLimitIPBurst,
		},
		Security: middleware.SecurityConfig{
			IsDevelopment:      cfg.IsDevelopment(),
			MaxRequestBodySize: cfg.MaxRequestBodySize,
		},
		CORS:        corsCfg,
		MaxBodySize: cfg.MaxRequestBodySize,
	})

	srv := server.New(router, server.Config{
		Port:            cfg.AppPort,
		ReadTimeout:     cfg.ReadTimeout,
		WriteTimeout:    cfg.WriteTimeout,
		ShutdownTimeout: cfg.ShutdownTimeout,
	}, logger)

	srv.OnShutdown("database", func(ctx context.Context) error {
		repo.Close()
		return nil
	})
	srv.OnShutdown("redis", func(ctx context.Context) error {
		return cacheClient.Close()
	})

	logger.Info("starting server",
		slog.Int("port", cfg.AppPort),
		slog.String("env", cfg.AppEnv),
		slog.Bool("strict_subject", cfg.AuthStrictSubject),
	)

	return srv.Run(ctx)
}

// newThumbnailStore builds the configured thumbnail backend.
func newThumbnailStore(ctx context.Context, cfg *config.Config) (thumbnail.Store, error) {
	switch cfg.ThumbnailBackend {
	case config.ThumbnailBackendS3:
		return thumbnail.NewS3Store(ctx, thumbnail.S3Config{
			Endpoint:        cfg.S3Endpoint,
			Region:          cfg.S3Region,
			Bucket:          cfg.S3Bucket,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
			UsePathStyle:    cfg.S3UsePathStyle,
		})
	default:
		return thumbnail.NewLocalStore(cfg.ThumbnailDir)
	}
}

// initLogger initializes the slog logger based on configuration.
func initLogger(cfg *config.Config) *slog.Logger {
	var h slog.Handler

	opts := &slog.HandlerOptions{
		Level: parseLogLevel(cfg.LogLevel),
	}

	if cfg.LogFormat == "json" {
		h = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		h = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(h)
	slog.SetDefault(logger)

	return logger
}

// parseLogLevel converts string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

var passwordPattern = regexp.MustCompile(`(?i)password=[^\s]+`)

func redactURL(raw string) string {
	if raw == "" {
		return ""
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return "[redacted]"
	}

	if parsed.User != nil {
		username := parsed.User.Username()
		if username == "" {
			parsed.User = url.User("redacted")
		} else {
			parsed.User = url.User(username)
		}
	}

	return parsed.String()
}

func sanitizeError(err error, secrets ...string) string {
	if err == nil {
		return ""
	}

	msg := err.Error()
	for _, secret := range secrets {
		if secret == "" {
			continue
		}
		redacted := redactURL(secret)
		if redacted == "" {
			redacted = "[redacted]"
		}
		msg = strings.ReplaceAll(msg, secret, redacted)
	}

	return passwordPattern.ReplaceAllString(msg, "password=redacted")
}
