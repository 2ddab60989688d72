// Package cache keeps the live Version of each tour and environment in
// Redis so viewer reads skip the database. A Cache without a client is a
// no-op, and Redis errors count as misses.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/playperu/tourcast/internal/audiotour"
)

type Cache struct {
	rdb    *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// New returns a Cache backed by rdb. A nil rdb disables caching.
func New(rdb *redis.Client, ttl time.Duration, logger *slog.Logger) *Cache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Cache{rdb: rdb, ttl: ttl, logger: logger}
}

// Key is the Redis key of a tour's live version in one environment.
func Key(tourID string, staging bool) string {
	env := "production"
	if staging {
		env = "staging"
	}
	return "tourcast:live:" + tourID + ":" + env
}

type entry struct {
	ID           string          `json:"id"`
	TourID       string          `json:"tourId"`
	IsStaging    bool            `json:"isStaging"`
	PasswordHash string          `json:"passwordHash,omitempty"`
	Data         json.RawMessage `json:"data"`
	CreatedAt    time.Time       `json:"createdAt"`
	UpdatedAt    time.Time       `json:"updatedAt"`
}

func (c *Cache) LiveVersion(ctx context.Context, tourID string, staging bool) (audiotour.Version, bool) {
	if c.rdb == nil {
		return audiotour.Version{}, false
	}
	bs, err := c.rdb.Get(ctx, Key(tourID, staging)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("cache read failed", "tour_id", tourID, "error", err)
		}
		return audiotour.Version{}, false
	}
	var e entry
	if err := json.Unmarshal(bs, &e); err != nil {
		c.logger.Warn("cache entry unreadable", "tour_id", tourID, "error", err)
		return audiotour.Version{}, false
	}
	return audiotour.Version{
		ID:           e.ID,
		TourID:       e.TourID,
		IsStaging:    e.IsStaging,
		IsLive:       true,
		PasswordHash: e.PasswordHash,
		Data:         e.Data,
		CreatedAt:    e.CreatedAt,
		UpdatedAt:    e.UpdatedAt,
	}, true
}

func (c *Cache) SetLiveVersion(ctx context.Context, v audiotour.Version) {
	if c.rdb == nil {
		return
	}
	bs, err := json.Marshal(entry{
		ID:           v.ID,
		TourID:       v.TourID,
		IsStaging:    v.IsStaging,
		PasswordHash: v.PasswordHash,
		Data:         v.Data,
		CreatedAt:    v.CreatedAt,
		UpdatedAt:    v.UpdatedAt,
	})
	if err != nil {
		return
	}
	if err := c.rdb.SetEx(ctx, Key(v.TourID, v.IsStaging), bs, c.ttl).Err(); err != nil {
		c.logger.Warn("cache write failed", "tour_id", v.TourID, "error", err)
	}
}

// Invalidate drops both environments of a tour.
func (c *Cache) Invalidate(ctx context.Context, tourID string) {
	if c.rdb == nil {
		return
	}
	if err := c.rdb.Del(ctx, Key(tourID, false), Key(tourID, true)).Err(); err != nil {
		c.logger.Warn("cache invalidation failed", "tour_id", tourID, "error", err)
	}
}
