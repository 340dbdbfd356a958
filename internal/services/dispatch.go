package services

import (
	"context"
	"log/slog"
	"time"
)

// dispatchAsync runs a notification send off the request path. The state
// transition that triggered it has already committed; failures are
// logged and otherwise dropped.
func dispatchAsync(logger *slog.Logger, name string, fn func(ctx context.Context) error) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := fn(ctx); err != nil {
			logger.Error("notification dispatch failed",
				slog.String("notification", name),
				slog.Any("error", err))
		}
	}()
}
