package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"coldcall-platform/internal/session"

	"github.com/redis/go-redis/v9"
)

const (
	sessionKeyPrefix      = "coldcall:session:"
	providerCallKeyPrefix = "coldcall:provider-call:"

	DefaultSnapshotTTL = 12 * time.Hour
)

// RedisSnapshots stores session snapshots as JSON strings with a TTL.
type RedisSnapshots struct {
	rdb redis.Cmdable
	ttl time.Duration
}

var _ session.SnapshotStore = (*RedisSnapshots)(nil)

func NewRedisSnapshots(rdb redis.Cmdable, ttl time.Duration) *RedisSnapshots {
	if ttl <= 0 {
		ttl = DefaultSnapshotTTL
	}
	return &RedisSnapshots{rdb: rdb, ttl: ttl}
}

func sessionKey(id string) string { return sessionKeyPrefix + id }

func providerCallKey(sid string) string { return providerCallKeyPrefix + sid }

func encodeState(st session.State) ([]byte, error) {
	if strings.TrimSpace(st.ID) == "" {
		return nil, fmt.Errorf("%w: snapshot id", ErrInvalidField)
	}
	return json.Marshal(st)
}

func decodeState(raw []byte) (session.State, error) {
	var st session.State
	if err := json.Unmarshal(raw, &st); err != nil {
		return session.State{}, fmt.Errorf("decode session snapshot: %w", err)
	}
	return st, nil
}

func (r *RedisSnapshots) Save(ctx context.Context, st session.State) error {
	raw, err := encodeState(st)
	if err != nil {
		return err
	}
	return r.rdb.Set(ctx, sessionKey(st.ID), raw, r.ttl).Err()
}

func (r *RedisSnapshots) Load(ctx context.Context, id string) (session.State, bool, error) {
	raw, err := r.rdb.Get(ctx, sessionKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return session.State{}, false, nil
	}
	if err != nil {
		return session.State{}, false, err
	}
	st, err := decodeState(raw)
	if err != nil {
		return session.State{}, false, err
	}
	return st, true, nil
}

func (r *RedisSnapshots) Delete(ctx context.Context, id string) error {
	return r.rdb.Del(ctx, sessionKey(id)).Err()
}

func (r *RedisSnapshots) BindProviderCall(ctx context.Context, providerCallID, sessionID string) error {
	if providerCallID == "" || sessionID == "" {
		return fmt.Errorf("%w: provider call binding", ErrInvalidField)
	}
	return r.rdb.Set(ctx, providerCallKey(providerCallID), sessionID, r.ttl).Err()
}

func (r *RedisSnapshots) LookupProviderCall(ctx context.Context, providerCallID string) (string, bool, error) {
	id, err := r.rdb.Get(ctx, providerCallKey(providerCallID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return id, true, nil
}
