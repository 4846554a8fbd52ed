package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"voltgrid/internal/partners/models"
	"voltgrid/pkg/domain"
	"voltgrid/pkg/platform/sentinel"
)

// RedisStore keeps every partner as a JSON field of one hash,
// {prefix}:partners, keyed by identity.
type RedisStore struct {
	client *redis.Client
	key    string
}

func NewRedis(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "ocpi"
	}
	return &RedisStore{client: client, key: prefix + ":partners"}
}

func (s *RedisStore) Get(ctx context.Context, identity domain.PartyIdentity) (*models.Partner, error) {
	raw, err := s.client.HGet(ctx, s.key, identity.Key()).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("partner %s: %w", identity, sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get partner: %w", err)
	}
	var p models.Partner
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("decode partner: %w", err)
	}
	return &p, nil
}

func (s *RedisStore) Save(ctx context.Context, p *models.Partner) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode partner: %w", err)
	}
	if err := s.client.HSet(ctx, s.key, p.Identity.Key(), raw).Err(); err != nil {
		return fmt.Errorf("save partner: %w", err)
	}
	return nil
}

func (s *RedisStore) List(ctx context.Context) ([]*models.Partner, error) {
	vals, err := s.client.HVals(ctx, s.key).Result()
	if err != nil {
		return nil, fmt.Errorf("list partners: %w", err)
	}
	out := make([]*models.Partner, 0, len(vals))
	for _, v := range vals {
		var p models.Partner
		if err := json.Unmarshal([]byte(v), &p); err != nil {
			return nil, fmt.Errorf("decode partner: %w", err)
		}
		out = append(out, &p)
	}
	sortByKey(out)
	return out, nil
}
