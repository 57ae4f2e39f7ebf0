package query

import (
	"context"
	"log/slog"
)

// Strategy is one way of answering a lookup. Fn reports ok=false when it ran
// cleanly but found nothing.
type Strategy[T any] struct {
	Name string
	Fn   func(ctx context.Context) (T, bool, error)
}

// First runs strategies in order and returns the first definite answer.
// Errors are logged and treated like an empty result.
func First[T any](ctx context.Context, logger *slog.Logger, lookup string, strategies ...Strategy[T]) (T, bool) {
	var zero T
	for _, s := range strategies {
		if ctx.Err() != nil {
			return zero, false
		}
		v, ok, err := s.Fn(ctx)
		if err != nil {
			logger.Warn("lookup strategy failed", "lookup", lookup, "strategy", s.Name, "err", err)
			continue
		}
		if ok {
			logger.Debug("lookup resolved", "lookup", lookup, "strategy", s.Name)
			return v, true
		}
	}
	return zero, false
}
