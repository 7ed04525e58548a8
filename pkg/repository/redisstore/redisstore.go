// Package redisstore keeps hashed refresh token records in Redis.
//
// Each record is a hash at {<prefix>}:rt:<id> expiring with the token. A set
// per account indexes its record IDs and a sorted set tracks revocation
// times for the sweeper. Revocation and rotation run as Lua scripts so a
// token can be redeemed only once even across replicas.
//
// The braces are a Redis Cluster hash tag: every key of a Store maps to the
// same slot, so the scripts also run on a cluster client.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/tendant/simple-accounts/pkg/domain"
)

const DefaultPrefix = "accounts"

const (
	statusNotFound int64 = 0
	statusRevoked  int64 = 1
	statusOK       int64 = 2
)

// revokePrelude marks KEYS[1] revoked if it belongs to ARGV[1].
// KEYS: record, revoked zset. ARGV: account id, record id, now (ns), now (ms).
const revokePrelude = `
local owner = redis.call("HGET", KEYS[1], "account_id")
if not owner or owner ~= ARGV[1] then
  return 0
end
if redis.call("HEXISTS", KEYS[1], "revoked_at") == 1 then
  return 1
end
redis.call("HSET", KEYS[1], "revoked_at", ARGV[3])
redis.call("ZADD", KEYS[2], ARGV[4], ARGV[2])
`

var revokeLua = redis.NewScript(revokePrelude + `
return 2
`)

// KEYS adds: next record, account index.
// ARGV adds: next id, token hash, created (ns), expires (ns), ip, user agent, expires (ms).
var rotateLua = redis.NewScript(revokePrelude + `
redis.call("HSET", KEYS[3],
  "account_id", ARGV[1],
  "token_hash", ARGV[6],
  "created_at", ARGV[7],
  "expires_at", ARGV[8],
  "ip", ARGV[9],
  "user_agent", ARGV[10])
redis.call("PEXPIREAT", KEYS[3], ARGV[11])
redis.call("SADD", KEYS[4], ARGV[5])
return 2
`)

// Store implements the refresh token store on a Redis client.
type Store struct {
	rdb redis.UniversalClient
	// base is the hash-tagged prefix shared by every key.
	base string
}

// New creates a Store. An empty prefix uses DefaultPrefix.
func New(rdb redis.UniversalClient, prefix string) *Store {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Store{rdb: rdb, base: "{" + prefix + "}"}
}

func (s *Store) recordKey(id uuid.UUID) string {
	return s.base + ":rt:" + id.String()
}

func (s *Store) accountKey(accountID uuid.UUID) string {
	return s.base + ":rt:account:" + accountID.String()
}

func (s *Store) revokedKey() string {
	return s.base + ":rt:revoked"
}

// ListActive returns the account's unrevoked, unexpired records. Index
// entries whose record has expired are pruned.
func (s *Store) ListActive(ctx context.Context, accountID uuid.UUID, now time.Time) ([]*domain.RefreshToken, error) {
	ids, err := s.rdb.SMembers(ctx, s.accountKey(accountID)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis smembers: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	cmds := make([]*redis.MapStringStringCmd, len(ids))
	_, err = s.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, id := range ids {
			cmds[i] = pipe.HGetAll(ctx, s.base+":rt:"+id)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("redis hgetall: %w", err)
	}

	var (
		active []*domain.RefreshToken
		gone   []any
	)
	for i, cmd := range cmds {
		fields := cmd.Val()
		if len(fields) == 0 {
			gone = append(gone, ids[i])
			continue
		}
		rec, err := decode(ids[i], fields)
		if err != nil {
			return nil, err
		}
		if rec.IsActive(now) {
			active = append(active, rec)
		}
	}
	if len(gone) > 0 {
		if err := s.rdb.SRem(ctx, s.accountKey(accountID), gone...).Err(); err != nil {
			return nil, fmt.Errorf("redis srem: %w", err)
		}
	}
	return active, nil
}

// Insert stores a new record.
func (s *Store) Insert(ctx context.Context, t *domain.RefreshToken) error {
	key := s.recordKey(t.ID)
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, encode(t))
		pipe.PExpireAt(ctx, key, t.ExpiresAt)
		pipe.SAdd(ctx, s.accountKey(t.AccountID), t.ID.String())
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis insert refresh token: %w", err)
	}
	return nil
}

// Rotate revokes revokeID and stores next in one script execution.
func (s *Store) Rotate(ctx context.Context, accountID, revokeID uuid.UUID, next *domain.RefreshToken, now time.Time) error {
	keys := []string{
		s.recordKey(revokeID),
		s.revokedKey(),
		s.recordKey(next.ID),
		s.accountKey(accountID),
	}
	args := []any{
		accountID.String(),
		revokeID.String(),
		now.UnixNano(),
		now.UnixMilli(),
		next.ID.String(),
		next.TokenHash,
		next.CreatedAt.UnixNano(),
		next.ExpiresAt.UnixNano(),
		next.IP,
		next.UserAgent,
		next.ExpiresAt.UnixMilli(),
	}
	return s.runRevoke(ctx, rotateLua, keys, args)
}

// Revoke marks one record revoked.
func (s *Store) Revoke(ctx context.Context, accountID, id uuid.UUID, now time.Time) error {
	keys := []string{s.recordKey(id), s.revokedKey()}
	args := []any{accountID.String(), id.String(), now.UnixNano(), now.UnixMilli()}
	return s.runRevoke(ctx, revokeLua, keys, args)
}

func (s *Store) runRevoke(ctx context.Context, script *redis.Script, keys []string, args []any) error {
	code, err := script.Run(ctx, s.rdb, keys, args...).Int64()
	if err != nil {
		return fmt.Errorf("redis revoke script: %w", err)
	}
	switch code {
	case statusOK:
		return nil
	case statusRevoked:
		return domain.ErrTokenRevoked
	case statusNotFound:
		return domain.ErrTokenNotFound
	}
	return fmt.Errorf("redis revoke script: unexpected status %d", code)
}

// RevokeAll revokes every record of the account. Already revoked records
// keep their original revocation time.
func (s *Store) RevokeAll(ctx context.Context, accountID uuid.UUID, now time.Time) error {
	ids, err := s.rdb.SMembers(ctx, s.accountKey(accountID)).Result()
	if err != nil {
		return fmt.Errorf("redis smembers: %w", err)
	}
	for _, raw := range ids {
		id, err := uuid.Parse(raw)
		if err != nil {
			continue
		}
		err = s.Revoke(ctx, accountID, id, now)
		if err != nil && !errors.Is(err, domain.ErrTokenRevoked) && !errors.Is(err, domain.ErrTokenNotFound) {
			return err
		}
	}
	return nil
}

// DeleteStale removes records revoked before cutoff. Expired records are
// evicted by Redis itself and are not counted.
func (s *Store) DeleteStale(ctx context.Context, cutoff time.Time) (int64, error) {
	ids, err := s.rdb.ZRangeByScore(ctx, s.revokedKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(cutoff.UnixMilli(), 10),
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("redis zrangebyscore: %w", err)
	}

	var deleted int64
	for _, raw := range ids {
		id, err := uuid.Parse(raw)
		if err != nil {
			s.rdb.ZRem(ctx, s.revokedKey(), raw)
			continue
		}
		key := s.recordKey(id)
		owner, err := s.rdb.HGet(ctx, key, "account_id").Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return deleted, fmt.Errorf("redis hget: %w", err)
		}

		var del *redis.IntCmd
		_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			del = pipe.Del(ctx, key)
			pipe.ZRem(ctx, s.revokedKey(), raw)
			if owner != "" {
				pipe.SRem(ctx, s.base+":rt:account:"+owner, raw)
			}
			return nil
		})
		if err != nil {
			return deleted, fmt.Errorf("redis delete stale: %w", err)
		}
		if del.Val() > 0 {
			deleted++
		}
	}
	return deleted, nil
}

func encode(t *domain.RefreshToken) map[string]any {
	fields := map[string]any{
		"account_id": t.AccountID.String(),
		"token_hash": t.TokenHash,
		"created_at": t.CreatedAt.UnixNano(),
		"expires_at": t.ExpiresAt.UnixNano(),
		"ip":         t.IP,
		"user_agent": t.UserAgent,
	}
	if t.RevokedAt != nil {
		fields["revoked_at"] = t.RevokedAt.UnixNano()
	}
	return fields
}

func decode(id string, fields map[string]string) (*domain.RefreshToken, error) {
	rec := &domain.RefreshToken{
		TokenHash: fields["token_hash"],
		IP:        fields["ip"],
		UserAgent: fields["user_agent"],
	}

	var err error
	if rec.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("decode refresh token %s: %w", id, err)
	}
	if rec.AccountID, err = uuid.Parse(fields["account_id"]); err != nil {
		return nil, fmt.Errorf("decode refresh token %s: %w", id, err)
	}
	if rec.CreatedAt, err = unixNano(fields["created_at"]); err != nil {
		return nil, fmt.Errorf("decode refresh token %s: %w", id, err)
	}
	if rec.ExpiresAt, err = unixNano(fields["expires_at"]); err != nil {
		return nil, fmt.Errorf("decode refresh token %s: %w", id, err)
	}
	if v, ok := fields["revoked_at"]; ok {
		at, err := unixNano(v)
		if err != nil {
			return nil, fmt.Errorf("decode refresh token %s: %w", id, err)
		}
		rec.Revoked = true
		rec.RevokedAt = &at
	}
	return rec, nil
}

func unixNano(s string) (time.Time, error) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(0, n), nil
}
