package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// BetCache guarda a visão serializada de uma aposta (cache-aside)
type BetCache struct {
	R   *redis.Client
	TTL time.Duration
}

func New(r *redis.Client, ttl time.Duration) *BetCache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &BetCache{R: r, TTL: ttl}
}

func keyBet(betID string) string { return "escrow:bet:" + betID }

func (c *BetCache) GetBet(ctx context.Context, betID string, dst any) (bool, error) {
	b, err := c.R.Get(ctx, keyBet(betID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(b, dst); err != nil {
		return false, fmt.Errorf("decode cached bet %s: %w", betID, err)
	}
	return true, nil
}

func (c *BetCache) SetBet(ctx context.Context, betID string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.R.Set(ctx, keyBet(betID), b, c.TTL).Err()
}

// Invalidate remove a entrada após qualquer mutação da aposta
func (c *BetCache) Invalidate(ctx context.Context, betID string) error {
	return c.R.Del(ctx, keyBet(betID)).Err()
}
