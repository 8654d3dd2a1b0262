// Package service provides business logic for the application.
package service

import (
	"context"
	"errors"
	"time"

	"github.com/recipebook/recipebook/internal/apperror"
	"github.com/recipebook/recipebook/internal/metrics"
)

// DefaultStoreTimeout bounds store calls when no timeout is configured.
const DefaultStoreTimeout = 5 * time.Second

// storeCaller runs store calls under a timeout and records their duration.
type storeCaller struct {
	timeout time.Duration
	metrics metrics.Recorder
}

func newStoreCaller(timeout time.Duration, recorder metrics.Recorder) storeCaller {
	if timeout <= 0 {
		timeout = DefaultStoreTimeout
	}
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return storeCaller{timeout: timeout, metrics: recorder}
}

func (c storeCaller) call(ctx context.Context, store, op string, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	err := fn(ctx)
	c.metrics.ObserveStoreDuration(store, op, time.Since(start))
	return err
}

// detached returns a context that outlives the request, for cleanup work
// that must run even when the client has gone away.
func detached(ctx context.Context) context.Context {
	return context.WithoutCancel(ctx)
}

// storeError wraps a store failure. A timeout is reported as the same kind
// as the store failure itself.
func storeError(kind apperror.Kind, message string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		message += " (timed out)"
	}
	return apperror.Wrap(kind, message, err)
}
