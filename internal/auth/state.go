package auth

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// StateStore registers pending authorization state tokens with a TTL and
// consumes them exactly once when the callback arrives.
type StateStore interface {
	Put(ctx context.Context, token string, ttl time.Duration) error
	// Take consumes the token, reporting whether it was pending and unexpired.
	Take(ctx context.Context, token string) (bool, error)
}

// MemoryStateStore is the single-process default. Expired entries linger
// until Sweep runs or Take observes them.
type MemoryStateStore struct {
	mu     sync.Mutex
	states map[string]time.Time
}

func NewMemoryStateStore() *MemoryStateStore {
	return &MemoryStateStore{states: make(map[string]time.Time)}
}

func (s *MemoryStateStore) Put(ctx context.Context, token string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[token] = time.Now().Add(ttl)
	return nil
}

func (s *MemoryStateStore) Take(ctx context.Context, token string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	expiry, ok := s.states[token]
	if !ok {
		return false, nil
	}
	delete(s.states, token)
	return time.Now().Before(expiry), nil
}

// Sweep drops expired entries and returns how many were removed.
func (s *MemoryStateStore) Sweep(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	var removed int64
	for token, expiry := range s.states {
		if now.After(expiry) {
			delete(s.states, token)
			removed++
		}
	}
	return removed, nil
}

const stateKeyPrefix = "authstate:"

// RedisStateStore keeps pending states in redis, expiring them natively.
type RedisStateStore struct {
	client *redis.Client
}

func NewRedisStateStore(client *redis.Client) *RedisStateStore {
	return &RedisStateStore{client: client}
}

func (s *RedisStateStore) Put(ctx context.Context, token string, ttl time.Duration) error {
	return s.client.SetEx(ctx, stateKeyPrefix+token, "1", ttl).Err()
}

func (s *RedisStateStore) Take(ctx context.Context, token string) (bool, error) {
	err := s.client.GetDel(ctx, stateKeyPrefix+token).Err()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
