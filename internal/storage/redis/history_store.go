package redis

import (
	"context"
	"encoding/json"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"leaderboard-kinetics/internal/domain"
	"leaderboard-kinetics/internal/storage"
)

// luaAppend adds a member unless its score already exists, then trims the
// set to the most recent retain members.
// KEYS[1] = series key
// ARGV[1] = timestamp_ms
// ARGV[2] = encoded snapshot
// ARGV[3] = retain (0 keeps everything)
var luaAppend = goredis.NewScript(`
local key    = KEYS[1]
local ts     = ARGV[1]
local retain = tonumber(ARGV[3])

if redis.call('ZCOUNT', key, ts, ts) > 0 then
  return 0
end

redis.call('ZADD', key, ts, ARGV[2])
if retain > 0 then
  redis.call('ZREMRANGEBYRANK', key, 0, -retain - 1)
  if not redis.call('ZSCORE', key, ARGV[2]) then
    return 0
  end
end
return 1
`)

// HistoryStore implements storage.HistoryStore using Redis sorted sets.
type HistoryStore struct {
	rdb    *Client
	keys   keys
	retain int
}

// NewHistoryStore creates a new HistoryStore. Keys are namespaced by prefix.
// When retain > 0 each series keeps at most retain most recent snapshots.
func NewHistoryStore(rdb *Client, prefix string, retain int) *HistoryStore {
	return &HistoryStore{rdb: rdb, keys: newKeys(prefix), retain: retain}
}

// Compile-time interface check.
var _ storage.HistoryStore = (*HistoryStore)(nil)

// Append adds snap atomically. Returns false if the timestamp already exists.
func (s *HistoryStore) Append(ctx context.Context, tag string, snap domain.Snapshot) (bool, error) {
	if err := storage.ValidateKey(tag, snap.Symbol); err != nil {
		return false, err
	}

	member, err := json.Marshal(snap)
	if err != nil {
		return false, fmt.Errorf("encode snapshot: %w", err)
	}

	added, err := luaAppend.Run(ctx, s.rdb, []string{s.keys.history(tag, snap.Symbol)},
		snap.TimestampMs,
		member,
		s.retain,
	).Int()
	if err != nil {
		return false, fmt.Errorf("append snapshot %s/%s: %w", tag, snap.Symbol, err)
	}
	return added == 1, nil
}

// ReadTail returns the last limit snapshots ordered by timestamp ASC.
func (s *HistoryStore) ReadTail(ctx context.Context, tag, symbol string, limit int) (domain.HistorySeries, error) {
	if err := storage.ValidateKey(tag, symbol); err != nil {
		return nil, err
	}

	start := int64(0)
	if limit > 0 {
		start = int64(-limit)
	}

	members, err := s.rdb.ZRange(ctx, s.keys.history(tag, symbol), start, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("read history %s/%s: %w", tag, symbol, err)
	}

	series := make(domain.HistorySeries, 0, len(members))
	for _, m := range members {
		var snap domain.Snapshot
		if err := json.Unmarshal([]byte(m), &snap); err != nil {
			return nil, fmt.Errorf("decode snapshot: %w", err)
		}
		series = append(series, snap)
	}
	return series, nil
}
