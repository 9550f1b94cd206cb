package serverstate

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// stateKey is the single key the server state lives under. More than one
// webpuppet pointed at the same Redis shares the state deliberately, so a
// restart (or a standby) resumes as draining if a drain was in progress.
const stateKey = "webpuppet:state"

const redisOpTimeout = 2 * time.Second

// redisStore persists the lifecycle state in Redis.
type redisStore struct {
	client *redis.Client
}

// NewRedisStore connects to addr and returns a Store. addr is either a plain
// host:port or a redis:// / rediss:// URL (credentials and db number per the
// usual URL form). The state key is seeded only if absent.
func NewRedisStore(addr string) (*redisStore, error) {
	opts, err := parseRedisAddr(addr)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	seed, _ := json.Marshal(State{Status: "not_ready"})
	_ = client.SetNX(ctx, stateKey, seed, 0).Err()
	return &redisStore{client: client}, nil
}

// parseRedisAddr accepts the two forms the --redis-addr flag documents: a bare
// host:port, or a URL that go-redis knows how to parse.
func parseRedisAddr(addr string) (*redis.Options, error) {
	if !strings.Contains(addr, "://") {
		return &redis.Options{Addr: addr}, nil
	}
	return redis.ParseURL(addr)
}

func (r *redisStore) Load() State {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()
	b, err := r.client.Get(ctx, stateKey).Bytes()
	if err == redis.Nil {
		return State{Status: "not_ready"}
	}
	var st State
	if err != nil || json.Unmarshal(b, &st) != nil {
		return State{Status: "unknown"}
	}
	return st
}

func (r *redisStore) Store(s State) {
	b, err := json.Marshal(s)
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()
	_ = r.client.Set(ctx, stateKey, b, 0).Err()
}
