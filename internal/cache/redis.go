package cache

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

const scanCount = 500

// DefaultPatterns match the storefront page and block caches that embed url
// rewrites.
var DefaultPatterns = []string{"page:*", "block:*", "url_rewrite:*"}

// Invalidator drops storefront cache entries from Redis after a run.
type Invalidator struct {
	client   *redis.Client
	patterns []string
	logger   *slog.Logger
}

// NewInvalidator creates a Redis-backed invalidator. Clean deletes the keys
// matching patterns; DefaultPatterns are used when none are given.
func NewInvalidator(client *redis.Client, patterns []string, logger *slog.Logger) *Invalidator {
	if len(patterns) == 0 {
		patterns = DefaultPatterns
	}
	return &Invalidator{
		client:   client,
		patterns: patterns,
		logger:   logger,
	}
}

// Clean deletes every key matching one of the configured patterns. Keys are
// walked with SCAN so the server is never blocked by a KEYS call.
func (i *Invalidator) Clean(ctx context.Context) error {
	var total int64
	for _, pattern := range i.patterns {
		n, err := i.deleteMatching(ctx, pattern)
		total += n
		if err != nil {
			return fmt.Errorf("redis clean %q: %w", pattern, err)
		}
	}
	i.logger.InfoContext(ctx, "storefront cache cleaned",
		slog.Int64("deleted_keys", total),
		slog.Int("patterns", len(i.patterns)),
	)
	return nil
}

func (i *Invalidator) deleteMatching(ctx context.Context, pattern string) (int64, error) {
	var (
		cursor  uint64
		deleted int64
	)
	for {
		keys, next, err := i.client.Scan(ctx, cursor, pattern, scanCount).Result()
		if err != nil {
			return deleted, err
		}
		if len(keys) > 0 {
			n, err := i.client.Del(ctx, keys...).Result()
			if err != nil {
				return deleted, err
			}
			deleted += n
		}
		if next == 0 {
			return deleted, nil
		}
		cursor = next
	}
}

// Flush empties the whole cache database.
func (i *Invalidator) Flush(ctx context.Context) error {
	if err := i.client.FlushDB(ctx).Err(); err != nil {
		return fmt.Errorf("redis flushdb: %w", err)
	}
	i.logger.InfoContext(ctx, "storefront cache flushed")
	return nil
}

// Noop stands in when no cache is configured.
type Noop struct{}

func (Noop) Clean(context.Context) error { return nil }
func (Noop) Flush(context.Context) error { return nil }
