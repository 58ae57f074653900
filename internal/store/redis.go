package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/songmatch/songmatch/internal/shared"
)

// keyPrefix namespaces session records in the shared keyspace.
const keyPrefix = "sess:"

// mergeRetries bounds the optimistic-concurrency loop. Two parties racing
// on one key resolve in a single retry; anything past this is a stuck store.
const mergeRetries = 8

// Redis is a [Store] backed by a Redis instance. Mutations run inside
// WATCH-guarded transactions so a merge can never drop a sibling field
// written between the read and the conditional write.
type Redis struct {
	client *redis.Client
}

// NewRedis creates a Redis-backed session store.
func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client}
}

func sessionKey(id string) string {
	return keyPrefix + id
}

func marshalSession(s *Session) ([]byte, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("%w: marshal session: %v", shared.ErrStorage, err)
	}
	return data, nil
}

func unmarshalSession(data []byte) (*Session, error) {
	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("%w: unmarshal session: %v", shared.ErrStorage, err)
	}
	return &s, nil
}

// Create allocates a new unique session id and persists an empty record with
// a fresh TTL. Id collisions are rerolled via SET NX.
func (r *Redis) Create(ctx context.Context) (*Session, error) {
	for {
		s := &Session{
			ID:        shared.GenerateSessionID(),
			CreatedAt: time.Now().UTC(),
		}

		data, err := marshalSession(s)
		if err != nil {
			return nil, err
		}

		ok, err := r.client.SetNX(ctx, sessionKey(s.ID), data, TTL).Result()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", shared.ErrStorage, err)
		}
		if ok {
			return s, nil
		}
	}
}

// Get returns the session for id, or (nil, nil) when absent or expired.
func (r *Redis) Get(ctx context.Context, id string) (*Session, error) {
	data, err := r.client.Get(ctx, sessionKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrStorage, err)
	}
	return unmarshalSession(data)
}

// MergeParty shallow-merges patch into the role's slot under optimistic
// concurrency and renews the TTL.
func (r *Redis) MergeParty(ctx context.Context, id string, role Role, patch Party) (*Session, error) {
	return r.update(ctx, id, func(s *Session) {
		s.apply(role, patch)
	})
}

// SetCommon stores the computed intersection and renews the TTL.
func (r *Redis) SetCommon(ctx context.Context, id string, common Intersection) (*Session, error) {
	return r.update(ctx, id, func(s *Session) {
		s.Common = &common
	})
}

// update runs mutate inside a WATCH transaction on the session key,
// retrying when a concurrent writer invalidates the read.
func (r *Redis) update(ctx context.Context, id string, mutate func(*Session)) (*Session, error) {
	key := sessionKey(id)

	var updated *Session
	txn := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			updated = nil
			return nil
		}
		if err != nil {
			return err
		}

		s, err := unmarshalSession(data)
		if err != nil {
			return err
		}
		mutate(s)

		out, err := marshalSession(s)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, out, TTL)
			return nil
		})
		if err == nil {
			updated = s
		}
		return err
	}

	for range mergeRetries {
		err := r.client.Watch(ctx, txn, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			if errors.Is(err, shared.ErrStorage) {
				return nil, err
			}
			return nil, fmt.Errorf("%w: %v", shared.ErrStorage, err)
		}
		return updated, nil
	}

	return nil, fmt.Errorf("%w: merge contention on session %s", shared.ErrStorage, id)
}
