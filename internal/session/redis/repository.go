// Package redis provides a Redis implementation of the session repository.
// Each session is one JSON document; saves use WATCH for optimistic locking.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/bissquit/apron-guard/internal/session"
	"github.com/redis/go-redis/v9"
)

// Config configures the Redis session store.
type Config struct {
	Address  string
	Password string
	Database int
	// Prefix is prepended to every session key.
	Prefix string
	// TTL expires idle sessions. Zero keeps them forever.
	TTL     time.Duration
	Timeout time.Duration
}

// DefaultConfig returns defaults for address.
func DefaultConfig(address string) Config {
	return Config{
		Address: address,
		Prefix:  "apronguard:session:",
		TTL:     72 * time.Hour,
		Timeout: 5 * time.Second,
	}
}

// Repository implements session.Repository on Redis.
type Repository struct {
	cfg    Config
	client *redis.Client
}

// Connect opens a client and pings the server.
func Connect(ctx context.Context, cfg Config) (*Repository, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.Database,
		ReadTimeout:  cfg.Timeout,
		WriteTimeout: cfg.Timeout,
	})

	pingCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewRepository(client, cfg), nil
}

// NewRepository wraps an existing client.
func NewRepository(client *redis.Client, cfg Config) *Repository {
	return &Repository{cfg: cfg, client: client}
}

// Close closes the client.
func (r *Repository) Close() error {
	return r.client.Close()
}

// PoolStats returns client connection pool statistics.
func (r *Repository) PoolStats() *redis.PoolStats {
	return r.client.PoolStats()
}

func (r *Repository) key(id string) string {
	return r.cfg.Prefix + id
}

// Create stores a new session with version 1.
func (r *Repository) Create(ctx context.Context, s *session.Session) error {
	s.Version = 1
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	ok, err := r.client.SetNX(ctx, r.key(s.ID), data, r.cfg.TTL).Result()
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	if !ok {
		return fmt.Errorf("create session %s: already exists", s.ID)
	}
	return nil
}

// Get loads a session.
func (r *Repository) Get(ctx context.Context, id string) (*session.Session, error) {
	return r.load(ctx, r.client, id)
}

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func (r *Repository) load(ctx context.Context, c getter, id string) (*session.Session, error) {
	data, err := c.Get(ctx, r.key(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, session.ErrSessionNotFound
		}
		return nil, fmt.Errorf("get session: %w", err)
	}

	var s session.Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("unmarshal session: %w", err)
	}
	return &s, nil
}

// Save writes s if the stored version matches, then bumps s.Version.
func (r *Repository) Save(ctx context.Context, s *session.Session) error {
	key := r.key(s.ID)
	next := s.Clone()
	next.Version = s.Version + 1
	next.UpdatedAt = time.Now().UTC()

	err := r.client.Watch(ctx, func(tx *redis.Tx) error {
		stored, err := r.load(ctx, tx, s.ID)
		if err != nil {
			return err
		}
		if stored.Version != s.Version {
			return fmt.Errorf("%w: have %d, stored %d", session.ErrVersionConflict, s.Version, stored.Version)
		}
		if err := session.CheckAppendOnly(stored.Trail, next.Trail); err != nil {
			return err
		}

		data, err := json.Marshal(next)
		if err != nil {
			return fmt.Errorf("marshal session: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, r.cfg.TTL)
			return nil
		})
		return err
	}, key)

	if errors.Is(err, redis.TxFailedErr) {
		return fmt.Errorf("%w: key changed during save", session.ErrVersionConflict)
	}
	if err != nil {
		return err
	}

	s.Version = next.Version
	s.UpdatedAt = next.UpdatedAt
	return nil
}

// Delete removes a session.
func (r *Repository) Delete(ctx context.Context, id string) error {
	n, err := r.client.Del(ctx, r.key(id)).Result()
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if n == 0 {
		return session.ErrSessionNotFound
	}
	return nil
}

// Ping checks the connection.
func (r *Repository) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()
	return r.client.Ping(ctx).Err()
}
