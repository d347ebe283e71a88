package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/Nixie-Tech-LLC/signage/internal/model"
)

const (
	stateKey = "signage:activation:state"
	lockKey  = "signage:activation:lock"
)

// Config is the connection info for the shared Redis instance.
type Config struct {
	Address  string
	Username string
	Password string
	DB       int
}

// Connect opens a client and verifies it with PING.
func Connect(ctx context.Context, cfg Config) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Username: cfg.Username,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Address, err)
	}
	log.Info().Str("address", cfg.Address).Msg("connected to redis")
	return rdb, nil
}

// StateStore keeps the activation state in a single Redis key so ticks
// from separate processes agree on which schedule is active.
type StateStore struct {
	rdb *redis.Client
	key string
}

func NewStateStore(rdb *redis.Client) *StateStore {
	return &StateStore{rdb: rdb, key: stateKey}
}

func (s *StateStore) Load(ctx context.Context) (model.ActivationState, error) {
	var state model.ActivationState
	raw, err := s.rdb.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return state, nil
	}
	if err != nil {
		return state, fmt.Errorf("load activation state: %w", err)
	}
	if err := json.Unmarshal(raw, &state); err != nil {
		return model.ActivationState{}, fmt.Errorf("decode activation state: %w", err)
	}
	return state, nil
}

func (s *StateStore) Save(ctx context.Context, state model.ActivationState) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return err
	}
	if err := s.rdb.Set(ctx, s.key, raw, 0).Err(); err != nil {
		return fmt.Errorf("save activation state: %w", err)
	}
	return nil
}

// releaseScript deletes the lock only if it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// TickLock is a best-effort cross-process mutex around a tick.
type TickLock struct {
	rdb *redis.Client
	key string
	ttl time.Duration
}

func NewTickLock(rdb *redis.Client, ttl time.Duration) *TickLock {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &TickLock{rdb: rdb, key: lockKey, ttl: ttl}
}

// TryAcquire returns a release func when the lock was taken, or ok=false
// when another process holds it.
func (l *TickLock) TryAcquire(ctx context.Context) (release func(), ok bool, err error) {
	token := uuid.NewString()
	ok, err = l.rdb.SetNX(ctx, l.key, token, l.ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("acquire tick lock: %w", err)
	}
	if !ok {
		return nil, false, nil
	}
	release = func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := releaseScript.Run(ctx, l.rdb, []string{l.key}, token).Err(); err != nil {
			log.Warn().Err(err).Msg("failed to release tick lock")
		}
	}
	return release, true, nil
}
