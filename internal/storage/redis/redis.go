// Package redis implements the verdict store on Redis for deployments where
// several engine replicas share one cache of verdicts.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"token-vetting/internal/domain"
	"token-vetting/internal/storage"
)

// DefaultKeyPrefix namespaces every key the store writes.
const DefaultKeyPrefix = "token-vetting:"

// saveScript replaces the latest verdict and archives the previous one
// atomically.
// KEYS[1] = latest hash (fields run_id, verdict)
// KEYS[2] = history list, newest at the head
// ARGV[1] = run id of the new verdict
// ARGV[2] = verdict JSON
// ARGV[3] = history limit
var saveScript = goredis.NewScript(`
local prev = redis.call("HMGET", KEYS[1], "run_id", "verdict")
if prev[2] then
    if ARGV[1] ~= "" and prev[1] == ARGV[1] then
        return 0
    end
    redis.call("LPUSH", KEYS[2], prev[2])
    redis.call("LTRIM", KEYS[2], 0, tonumber(ARGV[3]) - 1)
end
redis.call("HSET", KEYS[1], "run_id", ARGV[1], "verdict", ARGV[2])
return 1
`)

// VettingStore implements storage.VettingStore using Redis.
type VettingStore struct {
	client       goredis.UniversalClient
	prefix       string
	historyLimit int
}

// Option configures a VettingStore.
type Option func(*VettingStore)

// WithKeyPrefix overrides DefaultKeyPrefix.
func WithKeyPrefix(prefix string) Option {
	return func(s *VettingStore) { s.prefix = prefix }
}

// NewClient connects to addr and verifies the connection.
func NewClient(ctx context.Context, addr, password string, db int) (*goredis.Client, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", addr, err)
	}
	return client, nil
}

// NewVettingStore wraps client.
func NewVettingStore(client goredis.UniversalClient, historyLimit int, opts ...Option) *VettingStore {
	if historyLimit <= 0 {
		historyLimit = storage.DefaultHistoryLimit
	}
	s := &VettingStore{client: client, prefix: DefaultKeyPrefix, historyLimit: historyLimit}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ storage.VettingStore = (*VettingStore)(nil)

// Both keys of a token carry the token as hash tag so the save script
// touches a single cluster slot.
func (s *VettingStore) latestKey(token domain.TokenID) string {
	return s.prefix + "verdict:{" + token.String() + "}:latest"
}

func (s *VettingStore) historyKey(token domain.TokenID) string {
	return s.prefix + "verdict:{" + token.String() + "}:history"
}

// GetLatest returns the current verdict. Returns ErrNotFound if none.
func (s *VettingStore) GetLatest(ctx context.Context, token domain.TokenID) (*domain.Verdict, error) {
	raw, err := s.client.HGet(ctx, s.latestKey(token), "verdict").Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get latest verdict: %w", err)
	}
	return decodeVerdict(raw)
}

// Save replaces the latest verdict in one server-side script.
func (s *VettingStore) Save(ctx context.Context, token domain.TokenID, v *domain.Verdict) error {
	verdict, err := storage.Prepare(token, v)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(verdict)
	if err != nil {
		return fmt.Errorf("marshal verdict: %w", err)
	}

	keys := []string{s.latestKey(token), s.historyKey(token)}
	if err := saveScript.Run(ctx, s.client, keys, verdict.RunID, raw, s.historyLimit).Err(); err != nil {
		return fmt.Errorf("save verdict: %w", err)
	}
	return nil
}

// History returns superseded verdicts, newest first.
func (s *VettingStore) History(ctx context.Context, token domain.TokenID, limit int) ([]*domain.Verdict, error) {
	if limit <= 0 || limit > s.historyLimit {
		limit = s.historyLimit
	}

	items, err := s.client.LRange(ctx, s.historyKey(token), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("read history: %w", err)
	}

	out := make([]*domain.Verdict, 0, len(items))
	for _, item := range items {
		v, err := decodeVerdict([]byte(item))
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// Delete removes the token's keys.
func (s *VettingStore) Delete(ctx context.Context, token domain.TokenID) error {
	n, err := s.client.Del(ctx, s.latestKey(token), s.historyKey(token)).Result()
	if err != nil {
		return fmt.Errorf("delete verdict: %w", err)
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func decodeVerdict(raw []byte) (*domain.Verdict, error) {
	var v domain.Verdict
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("decode verdict: %w", err)
	}
	return &v, nil
}
