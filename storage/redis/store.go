// Package redis stores traces in Redis for deployments where several
// processes share one trace log.
//
// Layout under the key prefix:
//
//	<prefix>:seq                 INCR counter for trace ids, raised by mirrors
//	<prefix>:trace:<id>          JSON-encoded trace
//	<prefix>:run:<run_id>        list of trace ids in insertion order
//	<prefix>:runcost:<run_id>    running sum of estimated_cost
//	<prefix>:traces              sorted set of all trace ids scored by id
//	<prefix>:settings            hash of settings
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/PipeOpsHQ/airos/storage"
)

const (
	defaultLimit  = 100
	defaultPrefix = "airos"
)

type Store struct {
	client   *goredis.Client
	ttl      time.Duration
	prefix   string
	addr     string
	db       int
	password string
}

type Option func(*Store)

func WithPassword(password string) Option {
	return func(s *Store) {
		s.password = password
	}
}

func WithDB(db int) Option {
	return func(s *Store) {
		s.db = db
	}
}

// WithTTL expires trace keys after ttl. Zero keeps them forever.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		if ttl >= 0 {
			s.ttl = ttl
		}
	}
}

func WithPrefix(prefix string) Option {
	return func(s *Store) {
		if strings.TrimSpace(prefix) != "" {
			s.prefix = strings.TrimSpace(prefix)
		}
	}
}

func WithClient(client *goredis.Client) Option {
	return func(s *Store) {
		if client != nil {
			s.client = client
		}
	}
}

func New(addr string, opts ...Option) (*Store, error) {
	if strings.TrimSpace(addr) == "" {
		return nil, fmt.Errorf("redis addr is required")
	}

	s := &Store{
		prefix: defaultPrefix,
		addr:   addr,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.client == nil {
		s.client = goredis.NewClient(&goredis.Options{
			Addr:     s.addr,
			Password: s.password,
			DB:       s.db,
		})
	}

	if err := s.client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return s, nil
}

func (s *Store) LogTrace(ctx context.Context, trace storage.Trace) (storage.Trace, error) {
	prepared, err := storage.Prepare(trace, time.Now().UTC())
	if err != nil {
		return storage.Trace{}, err
	}

	id, err := s.client.Incr(ctx, s.seqKey()).Result()
	if err != nil {
		return storage.Trace{}, fmt.Errorf("failed to allocate trace id: %w", err)
	}
	prepared.ID = id

	raw, err := json.Marshal(prepared)
	if err != nil {
		return storage.Trace{}, fmt.Errorf("failed to marshal trace: %w", err)
	}

	member := strconv.FormatInt(id, 10)
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.traceKey(id), string(raw), s.ttl)
	pipe.RPush(ctx, s.runKey(prepared.RunID), member)
	pipe.IncrByFloat(ctx, s.runCostKey(prepared.RunID), prepared.EstimatedCost)
	pipe.ZAdd(ctx, s.indexKey(), goredis.Z{Score: float64(id), Member: member})
	if s.ttl > 0 {
		pipe.Expire(ctx, s.runKey(prepared.RunID), s.ttl)
		pipe.Expire(ctx, s.runCostKey(prepared.RunID), s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return storage.Trace{}, fmt.Errorf("failed to save trace in redis: %w", err)
	}
	return prepared, nil
}

// raiseSeq lifts the id counter to at least ARGV[1] so later LogTrace calls
// never reuse a mirrored id.
var raiseSeq = goredis.NewScript(`
local cur = tonumber(redis.call('GET', KEYS[1]) or '0')
if tonumber(ARGV[1]) > cur then
	redis.call('SET', KEYS[1], ARGV[1])
end
return 0
`)

// MirrorTrace stores a copy of a trace numbered by another store under its
// existing id. A trace already present under that id is left untouched.
func (s *Store) MirrorTrace(ctx context.Context, trace storage.Trace) error {
	id := trace.ID
	if id <= 0 {
		return fmt.Errorf("%w: mirrored trace needs an id", storage.ErrInvalidTrace)
	}
	prepared, err := storage.Prepare(trace, time.Now().UTC())
	if err != nil {
		return err
	}
	prepared.ID = id

	raw, err := json.Marshal(prepared)
	if err != nil {
		return fmt.Errorf("failed to marshal trace: %w", err)
	}
	created, err := s.client.SetNX(ctx, s.traceKey(id), string(raw), s.ttl).Result()
	if err != nil {
		return fmt.Errorf("failed to mirror trace in redis: %w", err)
	}
	if !created {
		return nil
	}

	member := strconv.FormatInt(id, 10)
	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, s.runKey(prepared.RunID), member)
	pipe.IncrByFloat(ctx, s.runCostKey(prepared.RunID), prepared.EstimatedCost)
	pipe.ZAdd(ctx, s.indexKey(), goredis.Z{Score: float64(id), Member: member})
	raiseSeq.Eval(ctx, pipe, []string{s.seqKey()}, id)
	if s.ttl > 0 {
		pipe.Expire(ctx, s.runKey(prepared.RunID), s.ttl)
		pipe.Expire(ctx, s.runCostKey(prepared.RunID), s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to mirror trace in redis: %w", err)
	}
	return nil
}

func (s *Store) RunHistory(ctx context.Context, runID string) ([]storage.Trace, error) {
	if strings.TrimSpace(runID) == "" {
		return nil, fmt.Errorf("run_id is required")
	}
	members, err := s.client.LRange(ctx, s.runKey(runID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load run history from redis: %w", err)
	}
	traces, err := s.loadTraces(ctx, members)
	if err != nil {
		return nil, err
	}
	// Concurrent writers can RPUSH out of id order.
	sort.Slice(traces, func(i, j int) bool { return traces[i].ID < traces[j].ID })
	return traces, nil
}

func (s *Store) RunCost(ctx context.Context, runID string) (float64, error) {
	if strings.TrimSpace(runID) == "" {
		return 0, fmt.Errorf("run_id is required")
	}
	total, err := s.client.Get(ctx, s.runCostKey(runID)).Float64()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to load run cost from redis: %w", err)
	}
	return total, nil
}

func (s *Store) ListTraces(ctx context.Context, query storage.ListQuery) ([]storage.Trace, error) {
	query = query.Normalize(defaultLimit)

	var members []string
	var err error
	if query.RunID != "" {
		members, err = s.client.LRange(ctx, s.runKey(query.RunID), 0, -1).Result()
	} else {
		members, err = s.client.ZRevRange(ctx, s.indexKey(), 0, -1).Result()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list traces from redis: %w", err)
	}

	traces, err := s.loadTraces(ctx, members)
	if err != nil {
		return nil, err
	}
	sort.Slice(traces, func(i, j int) bool { return traces[i].ID > traces[j].ID })

	out := make([]storage.Trace, 0, query.Limit)
	skipped := 0
	for _, t := range traces {
		if !query.Matches(t) {
			continue
		}
		if skipped < query.Offset {
			skipped++
			continue
		}
		out = append(out, t)
		if len(out) >= query.Limit {
			break
		}
	}
	return out, nil
}

func (s *Store) GetSetting(ctx context.Context, key string) (string, error) {
	v, err := s.client.HGet(ctx, s.settingsKey(), key).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return "", storage.ErrNotFound
		}
		return "", fmt.Errorf("failed to load setting from redis: %w", err)
	}
	return v, nil
}

func (s *Store) SetSetting(ctx context.Context, key, value string) error {
	if strings.TrimSpace(key) == "" {
		return fmt.Errorf("setting key is required")
	}
	if err := s.client.HSet(ctx, s.settingsKey(), key, value).Err(); err != nil {
		return fmt.Errorf("failed to save setting in redis: %w", err)
	}
	return nil
}

func (s *Store) ListSettings(ctx context.Context) (map[string]string, error) {
	out, err := s.client.HGetAll(ctx, s.settingsKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list settings from redis: %w", err)
	}
	if out == nil {
		out = map[string]string{}
	}
	return out, nil
}

func (s *Store) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

func (s *Store) loadTraces(ctx context.Context, members []string) ([]storage.Trace, error) {
	out := []storage.Trace{}
	if len(members) == 0 {
		return out, nil
	}
	keys := make([]string, 0, len(members))
	for _, m := range members {
		id, err := strconv.ParseInt(m, 10, 64)
		if err != nil {
			continue
		}
		keys = append(keys, s.traceKey(id))
	}
	if len(keys) == 0 {
		return out, nil
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load traces from redis: %w", err)
	}
	for _, v := range values {
		raw, ok := v.(string)
		if !ok {
			// expired or never written
			continue
		}
		var t storage.Trace
		if err := json.Unmarshal([]byte(raw), &t); err != nil {
			return nil, fmt.Errorf("failed to decode trace: %w", err)
		}
		out = append(out, t)
	}
	return out, nil
}

func (s *Store) seqKey() string {
	return s.prefix + ":seq"
}

func (s *Store) traceKey(id int64) string {
	return fmt.Sprintf("%s:trace:%d", s.prefix, id)
}

func (s *Store) runKey(runID string) string {
	return s.prefix + ":run:" + runID
}

func (s *Store) runCostKey(runID string) string {
	return s.prefix + ":runcost:" + runID
}

func (s *Store) indexKey() string {
	return s.prefix + ":traces"
}

func (s *Store) settingsKey() string {
	return s.prefix + ":settings"
}

var (
	_ storage.Store  = (*Store)(nil)
	_ storage.Mirror = (*Store)(nil)
)
