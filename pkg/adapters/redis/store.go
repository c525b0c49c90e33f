package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aretw0/labflow/pkg/domain"
	backend "github.com/redis/go-redis/v9"
)

// DefaultPrefix namespaces every key of the store.
const DefaultPrefix = "labflow:"

// Store implements ports.StateStore on Redis.
//
// Layout, under the prefix:
//
//	state:<uid>    hash of axis to state
//	history:<uid>  list of JSON entries, newest at the head
//	index          sorted set of UIDs scored by last change (unix nanoseconds)
type Store struct {
	client backend.UniversalClient
	prefix string
	ttl    time.Duration
	now    func() time.Time
}

// Option configures the Store.
type Option func(*Store)

// WithPrefix replaces DefaultPrefix.
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		s.prefix = prefix
	}
}

// WithTTL expires entities that did not change for ttl. Zero keeps them forever.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		s.ttl = ttl
	}
}

// New connects to the Redis server at addr.
func New(addr string, opts ...Option) *Store {
	return NewFromClient(backend.NewClient(&backend.Options{Addr: addr}), opts...)
}

// NewFromClient creates a store over an existing client.
func NewFromClient(client backend.UniversalClient, opts ...Option) *Store {
	s := &Store{
		client: client,
		prefix: DefaultPrefix,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) stateKey(uid string) string   { return s.prefix + "state:" + uid }
func (s *Store) historyKey(uid string) string { return s.prefix + "history:" + uid }
func (s *Store) indexKey() string             { return s.prefix + "index" }

// GetState returns the state of uid on axis.
func (s *Store) GetState(ctx context.Context, uid string, axis domain.Axis) (domain.StateID, error) {
	val, err := s.client.HGet(ctx, s.stateKey(uid), string(axis)).Result()
	if errors.Is(err, backend.Nil) {
		return "", domain.ErrStateNotFound
	}
	if err != nil {
		return "", fmt.Errorf("redis get state %s: %w", uid, err)
	}
	return domain.StateID(val), nil
}

// SetState writes the state, the history entry and the index in one MULTI/EXEC.
func (s *Store) SetState(ctx context.Context, uid string, axis domain.Axis, state domain.StateID, entry domain.HistoryEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal history entry: %w", err)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe backend.Pipeliner) error {
		pipe.HSet(ctx, s.stateKey(uid), string(axis), string(state))
		pipe.LPush(ctx, s.historyKey(uid), data)
		pipe.ZAdd(ctx, s.indexKey(), backend.Z{Score: s.score(), Member: uid})
		if s.ttl > 0 {
			pipe.Expire(ctx, s.stateKey(uid), s.ttl)
			pipe.Expire(ctx, s.historyKey(uid), s.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis set state %s: %w", uid, err)
	}
	return nil
}

// History returns the entries of uid, newest first.
func (s *Store) History(ctx context.Context, uid string) ([]domain.HistoryEntry, error) {
	raw, err := s.client.LRange(ctx, s.historyKey(uid), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis history %s: %w", uid, err)
	}
	out := make([]domain.HistoryEntry, 0, len(raw))
	for _, item := range raw {
		var entry domain.HistoryEntry
		if err := json.Unmarshal([]byte(item), &entry); err != nil {
			return nil, fmt.Errorf("failed to unmarshal history entry of %s: %w", uid, err)
		}
		out = append(out, entry)
	}
	return out, nil
}

// Reindex refreshes the index score of uid and the TTL of its keys.
func (s *Store) Reindex(ctx context.Context, uid string, _ ...domain.Axis) error {
	_, err := s.client.Pipelined(ctx, func(pipe backend.Pipeliner) error {
		pipe.ZAddXX(ctx, s.indexKey(), backend.Z{Score: s.score(), Member: uid})
		if s.ttl > 0 {
			pipe.Expire(ctx, s.stateKey(uid), s.ttl)
			pipe.Expire(ctx, s.historyKey(uid), s.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis reindex %s: %w", uid, err)
	}
	return nil
}

// Delete removes the state, the history and the index entry of uid.
func (s *Store) Delete(ctx context.Context, uid string) error {
	_, err := s.client.TxPipelined(ctx, func(pipe backend.Pipeliner) error {
		pipe.Del(ctx, s.stateKey(uid), s.historyKey(uid))
		pipe.ZRem(ctx, s.indexKey(), uid)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis delete %s: %w", uid, err)
	}
	return nil
}

// List returns the indexed UIDs, oldest change first. With a TTL, expired
// members are pruned from the index first.
func (s *Store) List(ctx context.Context) ([]string, error) {
	if s.ttl > 0 {
		cutoff := strconv.FormatInt(s.now().Add(-s.ttl).UnixNano(), 10)
		if err := s.client.ZRemRangeByScore(ctx, s.indexKey(), "-inf", "("+cutoff).Err(); err != nil {
			return nil, fmt.Errorf("redis prune index: %w", err)
		}
	}
	uids, err := s.client.ZRange(ctx, s.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis list: %w", err)
	}
	return uids, nil
}

func (s *Store) score() float64 {
	return float64(s.now().UnixNano())
}
