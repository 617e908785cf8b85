// Package redis stores cooldown records as one Redis string per identity.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"enlist/internal/cooldown/models"
	"enlist/pkg/domain"
	"enlist/pkg/platform/sentinel"
)

const (
	keyPrefix  = "cooldown:"
	maxRetries = 3
)

// setIfNewer writes ARGV[1] unless the stored value is already larger.
var setIfNewer = redis.NewScript(`
local current = redis.call('GET', KEYS[1])
if current == false or tonumber(current) <= tonumber(ARGV[1]) then
	redis.call('SET', KEYS[1], ARGV[1])
	return 1
end
return 0
`)

// Store is a Redis-backed models.Store. Records never expire.
type Store struct {
	client redis.UniversalClient
}

func New(client redis.UniversalClient) *Store {
	return &Store{client: client}
}

func key(id domain.IdentityID) string {
	return keyPrefix + id.String()
}

func (s *Store) Get(ctx context.Context, id domain.IdentityID) (*models.CooldownRecord, error) {
	ms, err := s.client.Get(ctx, key(id)).Int64()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get cooldown: %w", err)
	}
	return &models.CooldownRecord{IdentityID: id, LastActionAt: time.UnixMilli(ms).UTC()}, nil
}

func (s *Store) Set(ctx context.Context, id domain.IdentityID, at time.Time) error {
	if err := setIfNewer.Run(ctx, s.client, []string{key(id)}, at.UnixMilli()).Err(); err != nil {
		return fmt.Errorf("set cooldown: %w", err)
	}
	return nil
}

// Execute uses an optimistic WATCH/MULTI transaction. If another writer
// touches the key between the read and EXEC the attempt is retried with the
// fresh value; after maxRetries it gives up with sentinel.ErrConflict.
func (s *Store) Execute(ctx context.Context, id domain.IdentityID, validate func(*models.CooldownRecord) error, at time.Time) (*models.CooldownRecord, error) {
	k := key(id)
	var written int64

	txf := func(tx *redis.Tx) error {
		current := &models.CooldownRecord{IdentityID: id}
		ms, err := tx.Get(ctx, k).Int64()
		switch {
		case errors.Is(err, redis.Nil):
		case err != nil:
			return fmt.Errorf("read cooldown: %w", err)
		default:
			current.LastActionAt = time.UnixMilli(ms).UTC()
		}

		if err := validate(current); err != nil {
			return err
		}

		written = max(at.UnixMilli(), ms)
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, k, written, 0)
			return nil
		})
		return err
	}

	for range maxRetries {
		err := s.client.Watch(ctx, txf, k)
		if err == nil {
			return &models.CooldownRecord{IdentityID: id, LastActionAt: time.UnixMilli(written).UTC()}, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return nil, err
	}
	return nil, fmt.Errorf("write cooldown for %s: %w", id, sentinel.ErrConflict)
}

// Ping reports Redis reachability for health checks.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
