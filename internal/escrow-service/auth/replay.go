package auth

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ReplayGuard lembra requisições assinadas já aceitas.
// Claim devolve false quando a chave já foi usada dentro do ttl.
type ReplayGuard interface {
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

// RedisReplay compartilha o registro entre instâncias via SET NX com expiração
type RedisReplay struct {
	R *redis.Client
}

func (g RedisReplay) Claim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return g.R.SetNX(ctx, "escrow:auth:seen:"+key, 1, ttl).Result()
}

// MemoryReplay é o registro local usado quando não há Redis
type MemoryReplay struct {
	mu   sync.Mutex
	seen map[string]time.Time // chave -> expiração
	Now  func() time.Time
}

func NewMemoryReplay() *MemoryReplay {
	return &MemoryReplay{seen: make(map[string]time.Time), Now: time.Now}
}

func (g *MemoryReplay) Claim(_ context.Context, key string, ttl time.Duration) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.Now()
	for k, exp := range g.seen {
		if !now.Before(exp) {
			delete(g.seen, k)
		}
	}
	if _, ok := g.seen[key]; ok {
		return false, nil
	}
	g.seen[key] = now.Add(ttl)
	return true, nil
}
