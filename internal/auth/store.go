package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store persists the player's token for the duration of a browsing session,
// so a reload does not force a new login.
type Store interface {
	// Load returns the stored token and whether one was found.
	Load(ctx context.Context) (Token, bool, error)
	Save(ctx context.Context, token Token) error
	Clear(ctx context.Context) error
}

// MemoryStore keeps the token in process memory.
type MemoryStore struct {
	mu    sync.Mutex
	token *Token
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Load(ctx context.Context) (Token, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.token == nil {
		return Token{}, false, nil
	}
	return *s.token, true, nil
}

func (s *MemoryStore) Save(ctx context.Context, token Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = &token
	return nil
}

func (s *MemoryStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = nil
	return nil
}

const (
	sessionKeyPrefix = "bullet-mania:session:"
	fieldToken       = "token"
	fieldTokenType   = "type"
)

// RedisStore keeps the token in a Redis hash keyed by session id. Both Load
// and Save push the key's expiry TTL into the future, so it lapses after TTL
// without use.
type RedisStore struct {
	rdb       *redis.Client
	sessionID string
	ttl       time.Duration
}

// NewRedisStore binds a store to one session. ttl <= 0 means no expiry.
func NewRedisStore(rdb *redis.Client, sessionID string, ttl time.Duration) *RedisStore {
	return &RedisStore{rdb: rdb, sessionID: sessionID, ttl: ttl}
}

// ConnectRedis opens a client and checks it answers a ping.
func ConnectRedis(ctx context.Context, addr string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   db,
	})
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}
	return rdb, nil
}

func (s *RedisStore) key() string {
	return sessionKeyPrefix + s.sessionID
}

func (s *RedisStore) Load(ctx context.Context) (Token, bool, error) {
	vals, err := s.rdb.HMGet(ctx, s.key(), fieldToken, fieldTokenType).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Token{}, false, nil
		}
		return Token{}, false, fmt.Errorf("load session %s: %w", s.sessionID, err)
	}
	value, _ := vals[0].(string)
	kind, _ := vals[1].(string)
	if value == "" || !Kind(kind).Valid() {
		return Token{}, false, nil
	}
	if s.ttl > 0 {
		if err := s.rdb.Expire(ctx, s.key(), s.ttl).Err(); err != nil {
			return Token{}, false, fmt.Errorf("refresh session %s: %w", s.sessionID, err)
		}
	}
	return Token{Kind: Kind(kind), Value: value}, true, nil
}

func (s *RedisStore) Save(ctx context.Context, token Token) error {
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, s.key(), fieldToken, token.Value, fieldTokenType, string(token.Kind))
		if s.ttl > 0 {
			pipe.Expire(ctx, s.key(), s.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("save session %s: %w", s.sessionID, err)
	}
	return nil
}

func (s *RedisStore) Clear(ctx context.Context) error {
	if err := s.rdb.Del(ctx, s.key()).Err(); err != nil {
		return fmt.Errorf("clear session %s: %w", s.sessionID, err)
	}
	return nil
}
