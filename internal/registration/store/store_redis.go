package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"github.com/redis/go-redis/v9"

	"voltgrid/internal/registration/models"
	vermodels "voltgrid/internal/versions/models"
	"voltgrid/pkg/domain"
	"voltgrid/pkg/platform/sentinel"
)

// RedisStore keeps registration records as JSON values. Commit runs under
// WATCH on the record key so a concurrent writer aborts the MULTI block.
//
// Keys:
//
//	{prefix}:reg:{CC:PID:ROLE}          record
//	{prefix}:reg:token:{sha256(token)}  identity key of the Registered owner
//	{prefix}:reg:index                  set of identity keys
//	{prefix}:reg:history:{CC:PID:ROLE}  list of retired records
type RedisStore struct {
	client *redis.Client
	prefix string
}

func NewRedis(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "ocpi"
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) recordKey(identityKey string) string {
	return s.prefix + ":reg:" + identityKey
}

// tokenKey hashes the token so raw bearer secrets never appear in key listings.
func (s *RedisStore) tokenKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return s.prefix + ":reg:token:" + hex.EncodeToString(sum[:])
}

func (s *RedisStore) indexKey() string {
	return s.prefix + ":reg:index"
}

func (s *RedisStore) historyKey(identityKey string) string {
	return s.prefix + ":reg:history:" + identityKey
}

func (s *RedisStore) Get(ctx context.Context, identity domain.PartyIdentity) (*models.Record, error) {
	raw, err := s.client.Get(ctx, s.recordKey(identity.Key())).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("registration %s: %w", identity, sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get registration: %w", err)
	}
	return decodeRecord(raw)
}

func (s *RedisStore) FindByRemoteToken(ctx context.Context, token string) (*models.Record, error) {
	if token == "" {
		return nil, fmt.Errorf("registration by token: %w", sentinel.ErrNotFound)
	}
	key, err := s.client.Get(ctx, s.tokenKey(token)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("registration by token: %w", sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find registration by token: %w", err)
	}
	raw, err := s.client.Get(ctx, s.recordKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("registration by token: %w", sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find registration by token: %w", err)
	}
	rec, err := decodeRecord(raw)
	if err != nil {
		return nil, err
	}
	// The index entry can outlive a rotation that raced this read.
	if rec.Status != models.StatusRegistered || rec.RemoteCredentials.Token != token {
		return nil, fmt.Errorf("registration by token: %w", sentinel.ErrNotFound)
	}
	return rec, nil
}

func (s *RedisStore) History(ctx context.Context, identity domain.PartyIdentity) ([]*models.Record, error) {
	raws, err := s.client.LRange(ctx, s.historyKey(identity.Key()), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("registration history: %w", err)
	}
	out := make([]*models.Record, 0, len(raws))
	for _, raw := range raws {
		rec, err := decodeRecord([]byte(raw))
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func (s *RedisStore) List(ctx context.Context) ([]*models.Record, error) {
	keys, err := s.client.SMembers(ctx, s.indexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("list registrations: %w", err)
	}
	if len(keys) == 0 {
		return nil, nil
	}
	slices.Sort(keys)
	recordKeys := make([]string, len(keys))
	for i, k := range keys {
		recordKeys[i] = s.recordKey(k)
	}
	vals, err := s.client.MGet(ctx, recordKeys...).Result()
	if err != nil {
		return nil, fmt.Errorf("list registrations: %w", err)
	}
	out := make([]*models.Record, 0, len(vals))
	for _, v := range vals {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		rec, err := decodeRecord([]byte(raw))
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func (s *RedisStore) ListByModule(ctx context.Context, module vermodels.ModuleID) ([]*models.Record, error) {
	all, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	return slices.DeleteFunc(all, func(r *models.Record) bool {
		return r.Status != models.StatusRegistered || !slices.Contains(vermodels.Identifiers(r.NegotiatedEndpoints), module)
	}), nil
}

// Commit stores rec if the current status equals expected and rec was read
// at the stored revision. On success rec.Revision holds the committed revision.
func (s *RedisStore) Commit(ctx context.Context, rec *models.Record, expected models.Status) error {
	if rec == nil {
		return models.ValidateCommit(nil, nil)
	}
	key := rec.Identity.Key()
	recKey := s.recordKey(key)
	newTokenKey := s.tokenKey(rec.RemoteCredentials.Token)
	var revision int64

	err := s.client.Watch(ctx, func(txn *redis.Tx) error {
		storedRaw, err := txn.Get(ctx, recKey).Bytes()
		if err != nil && !errors.Is(err, redis.Nil) {
			return fmt.Errorf("read registration: %w", err)
		}
		var stored *models.Record
		current := models.StatusUnregistered
		if err == nil {
			if stored, err = decodeRecord(storedRaw); err != nil {
				return err
			}
			current = stored.Status
		}
		if current != expected {
			return fmt.Errorf("registration %s is %s, expected %s: %w", key, current, expected, sentinel.ErrConflict)
		}
		if models.Stale(stored, rec) {
			return fmt.Errorf("registration %s is at revision %d, read at %d: %w", key, stored.Revision, rec.Revision, sentinel.ErrConflict)
		}
		if err := models.ValidateCommit(stored, rec); err != nil {
			return err
		}

		revision = models.NextRevision(stored)
		written := rec.Clone()
		written.Revision = revision
		data, err := json.Marshal(written)
		if err != nil {
			return fmt.Errorf("encode registration: %w", err)
		}

		live := rec.Status == models.StatusRegistered && rec.RemoteCredentials.Token != ""
		if live {
			owner, err := txn.Get(ctx, newTokenKey).Result()
			if err != nil && !errors.Is(err, redis.Nil) {
				return fmt.Errorf("read token index: %w", err)
			}
			if err == nil && owner != key {
				return fmt.Errorf("remote token already bound to %s: %w", owner, sentinel.ErrConflict)
			}
		}

		_, err = txn.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if stored != nil {
				pipe.Del(ctx, s.tokenKey(stored.RemoteCredentials.Token))
				if stored.ID != rec.ID {
					pipe.RPush(ctx, s.historyKey(key), storedRaw)
				}
			}
			pipe.Set(ctx, recKey, data, 0)
			pipe.SAdd(ctx, s.indexKey(), key)
			if live {
				pipe.Set(ctx, newTokenKey, key, 0)
			}
			return nil
		})
		return err
	}, recKey, newTokenKey)

	if errors.Is(err, redis.TxFailedErr) {
		return fmt.Errorf("registration %s changed concurrently: %w", key, sentinel.ErrConflict)
	}
	if err != nil {
		return err
	}
	rec.Revision = revision
	return nil
}

func decodeRecord(raw []byte) (*models.Record, error) {
	var rec models.Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("decode registration: %w", err)
	}
	return &rec, nil
}
