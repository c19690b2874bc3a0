package blacklist

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/supplier-verify/internal/model"
)

const (
	redisBatchSize   = 1000
	redisImportsKept = 100
	// Superseded sets stay readable briefly for scripts already holding the
	// old version number.
	redisStaleTTL = 10 * time.Minute
)

// Both scripts resolve the pointer and read the set in one atomic step.
var (
	containsScript = redis.NewScript(`
local v = redis.call('GET', KEYS[1])
if not v then return 0 end
return redis.call('SISMEMBER', ARGV[1] .. v, ARGV[2])
`)
	countScript = redis.NewScript(`
local v = redis.call('GET', KEYS[1])
if not v then return 0 end
return redis.call('SCARD', ARGV[1] .. v)
`)
)

// RedisStore keeps each import in its own set key and swaps a pointer key.
type RedisStore struct {
	rdb    redis.UniversalClient
	prefix string
}

// NewRedis wraps a connected client. Keys live under prefix (default
// "blacklist").
func NewRedis(rdb redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "blacklist"
	}
	return &RedisStore{rdb: rdb, prefix: prefix}
}

// ConnectRedis parses a redis:// URL, connects and pings.
func ConnectRedis(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, eris.Wrap(err, "redis: parse url")
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close() //nolint:errcheck
		return nil, eris.Wrap(err, "redis: ping")
	}
	return client, nil
}

func (s *RedisStore) versionKey() string { return s.prefix + ":version" }
func (s *RedisStore) currentKey() string { return s.prefix + ":current" }
func (s *RedisStore) importsKey() string { return s.prefix + ":imports" }
func (s *RedisStore) setPrefix() string  { return s.prefix + ":v:" }

func (s *RedisStore) setKey(version int64) string {
	return s.setPrefix() + strconv.FormatInt(version, 10)
}

func (s *RedisStore) Replace(ctx context.Context, snap Snapshot) (*model.ImportRecord, error) {
	if err := snap.validate(); err != nil {
		return nil, err
	}

	version, err := s.rdb.Incr(ctx, s.versionKey()).Result()
	if err != nil {
		return nil, eris.Wrap(err, "redis: next blacklist version")
	}
	key := s.setKey(version)
	rec := snap.record(uuid.NewString(), version)

	for start := 0; start < len(snap.RFCs); start += redisBatchSize {
		end := min(start+redisBatchSize, len(snap.RFCs))
		members := make([]any, 0, end-start)
		for _, rfc := range snap.RFCs[start:end] {
			members = append(members, rfc)
		}
		if err := s.rdb.SAdd(ctx, key, members...).Err(); err != nil {
			s.rdb.Del(ctx, key) //nolint:errcheck
			return nil, eris.Wrapf(err, "redis: load blacklist version %d", version)
		}
	}

	payload, err := json.Marshal(rec)
	if err != nil {
		return nil, eris.Wrap(err, "redis: encode import record")
	}

	previous, err := s.rdb.Get(ctx, s.currentKey()).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, eris.Wrap(err, "redis: read blacklist pointer")
	}

	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.currentKey(), version, 0)
		pipe.LPush(ctx, s.importsKey(), payload)
		pipe.LTrim(ctx, s.importsKey(), 0, redisImportsKept-1)
		return nil
	})
	if err != nil {
		return nil, eris.Wrap(err, "redis: swap blacklist pointer")
	}

	if previous != "" && previous != strconv.FormatInt(version, 10) {
		if err := s.rdb.Expire(ctx, s.setPrefix()+previous, redisStaleTTL).Err(); err != nil {
			zap.L().Warn("blacklist: expire previous set failed",
				zap.String("version", previous), zap.Error(err))
		}
	}
	return rec, nil
}

func (s *RedisStore) Contains(ctx context.Context, rfc string) (bool, error) {
	n, err := containsScript.Run(ctx, s.rdb,
		[]string{s.currentKey()}, s.setPrefix(), model.NormalizeRFC(rfc)).Int()
	if err != nil {
		return false, eris.Wrap(err, "redis: blacklist contains")
	}
	return n == 1, nil
}

func (s *RedisStore) Count(ctx context.Context) (int, error) {
	n, err := countScript.Run(ctx, s.rdb, []string{s.currentKey()}, s.setPrefix()).Int()
	if err != nil {
		return 0, eris.Wrap(err, "redis: blacklist count")
	}
	return n, nil
}

func (s *RedisStore) LastImport(ctx context.Context) (*model.ImportRecord, error) {
	raw, err := s.rdb.LIndex(ctx, s.importsKey(), 0).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "redis: last blacklist import")
	}
	var rec model.ImportRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, eris.Wrap(err, "redis: decode import record")
	}
	return &rec, nil
}
