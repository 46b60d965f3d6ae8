package genstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// bumpScript increments KEYS[1] and refreshes its expiry. With a non-empty
// ARGV[1] it only increments while the stored generation (missing => 0)
// equals ARGV[1], and returns -1 otherwise.
var bumpScript = redis.NewScript(`
if ARGV[1] ~= '' then
  local cur = tonumber(redis.call('GET', KEYS[1]) or '0')
  if cur ~= tonumber(ARGV[1]) then
    return -1
  end
end
local n = redis.call('INCR', KEYS[1])
if tonumber(ARGV[2]) > 0 then
  redis.call('PEXPIRE', KEYS[1], ARGV[2])
end
return n
`)

// RedisOptions configure a RedisGenStore.
type RedisOptions struct {
	// Namespace prefixes every generation key: gen:<Namespace>:<slot key>.
	Namespace string
	// TTL expires idle generation keys; 0 keeps them forever. An expired
	// generation reads as 0 and the slot it guarded self-heals.
	TTL time.Duration
	// OwnClient makes Close close the client.
	OwnClient bool
}

// RedisGenStore keeps slot generations in Redis so every replica serving
// the same store agrees on versions, and a restart does not resurrect
// slots a peer already replaced.
type RedisGenStore struct {
	rdb  redis.UniversalClient
	opts RedisOptions
}

var _ GenStore = (*RedisGenStore)(nil)

func NewRedisGenStore(client redis.UniversalClient, opts RedisOptions) *RedisGenStore {
	return &RedisGenStore{rdb: client, opts: opts}
}

func (s *RedisGenStore) key(k string) string { return "gen:" + s.opts.Namespace + ":" + k }

func (s *RedisGenStore) Snapshot(ctx context.Context, storageKey string) (uint64, error) {
	g, err := s.rdb.Get(ctx, s.key(storageKey)).Uint64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("redis gen snapshot: %w", err)
	}
	return g, nil
}

func (s *RedisGenStore) Bump(ctx context.Context, storageKey string) (uint64, error) {
	g, _, err := s.run(ctx, storageKey, "")
	return g, err
}

// CompareAndBump compares and increments server-side in one script call.
func (s *RedisGenStore) CompareAndBump(ctx context.Context, storageKey string, expected uint64) (uint64, bool, error) {
	return s.run(ctx, storageKey, strconv.FormatUint(expected, 10))
}

func (s *RedisGenStore) run(ctx context.Context, storageKey, expected string) (uint64, bool, error) {
	v, err := bumpScript.Run(ctx, s.rdb, []string{s.key(storageKey)}, expected, s.opts.TTL.Milliseconds()).Int64()
	if err != nil {
		return 0, false, fmt.Errorf("redis gen bump: %w", err)
	}
	if v < 0 {
		return 0, false, nil
	}
	return uint64(v), true, nil
}

// Cleanup is a no-op; Redis expires generation keys itself when TTL is set.
func (s *RedisGenStore) Cleanup(time.Duration) {}

func (s *RedisGenStore) Close(context.Context) error {
	if !s.opts.OwnClient {
		return nil
	}
	if err := s.rdb.Close(); err != nil && !errors.Is(err, redis.ErrClosed) {
		return err
	}
	return nil
}
