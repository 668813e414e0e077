package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gamelend/internal/middleware"

	"github.com/redis/go-redis/v9"
)

const (
	AccountKeyPrefix         = "account:%d"
	ApprovedPeriodsKeyPrefix = "game:%d:approved"
)

const (
	AccountTTL         = 5 * time.Minute
	ApprovedPeriodsTTL = 2 * time.Minute
)

func AccountKey(accountID uint) string {
	return fmt.Sprintf(AccountKeyPrefix, accountID)
}

func ApprovedPeriodsKey(gameID uint) string {
	return fmt.Sprintf(ApprovedPeriodsKeyPrefix, gameID)
}

// Aside reads key into dest, or runs fetch to fill dest and stores the
// result for ttl. Without a client it only runs fetch. Redis failures never
// fail the read.
func Aside(ctx context.Context, key string, dest interface{}, ttl time.Duration, fetch func() error) error {
	if client == nil {
		return fetch()
	}

	raw, err := client.Get(ctx, key).Bytes()
	if err == nil {
		if jsonErr := json.Unmarshal(raw, dest); jsonErr == nil {
			return nil
		}
	} else if !errors.Is(err, redis.Nil) {
		middleware.Logger.WarnContext(ctx, "cache read failed", slog.String("key", key), slog.String("error", err.Error()))
	}

	if err := fetch(); err != nil {
		return err
	}

	payload, err := json.Marshal(dest)
	if err != nil {
		return nil
	}
	if err := client.Set(ctx, key, payload, ttl).Err(); err != nil {
		middleware.Logger.WarnContext(ctx, "cache write failed", slog.String("key", key), slog.String("error", err.Error()))
	}
	return nil
}

func Invalidate(ctx context.Context, key string) {
	if client != nil {
		client.Del(ctx, key)
	}
}

func InvalidateApprovedPeriods(ctx context.Context, gameID uint) {
	Invalidate(ctx, ApprovedPeriodsKey(gameID))
}
