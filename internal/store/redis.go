package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix          = "cfplot:"
	ratingsKey         = keyPrefix + "ratings"
	fetchedAtKey       = keyPrefix + "ratings:fetched_at"
	defaultSnapshotTTL = 24 * time.Hour
)

// Redis shares links and snapshots between several bot instances.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
	mu     sync.Mutex
}

// OpenRedis connects to addr and verifies the connection. A zero ttl keeps
// snapshots for a day.
func OpenRedis(addr, password string, db int, ttl time.Duration) (*Redis, error) {
	if addr == "" {
		return nil, errors.New("redis address cannot be empty")
	}
	if db < 0 {
		return nil, errors.New("redis database number must be >= 0")
	}
	if ttl == 0 {
		ttl = defaultSnapshotTTL
	}

	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		if cerr := client.Close(); cerr != nil {
			_ = cerr
		}
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}
	return &Redis{client: client, ttl: ttl}, nil
}

func handleKey(member string) string {
	return keyPrefix + "handle:" + member
}

// SetHandle links member to handle. Links never expire.
func (r *Redis) SetHandle(ctx context.Context, member, handle string) error {
	if err := r.client.Set(ctx, handleKey(member), handle, 0).Err(); err != nil {
		return fmt.Errorf("failed to store handle in redis: %w", err)
	}
	return nil
}

// Handle returns the handle linked to member.
func (r *Redis) Handle(ctx context.Context, member string) (string, error) {
	handle, err := r.client.Get(ctx, handleKey(member)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to get handle from redis: %w", err)
	}
	return handle, nil
}

// SaveRatings stores snap with the configured TTL.
func (r *Redis) SaveRatings(ctx context.Context, snap Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, ratingsKey, data, r.ttl)
		pipe.Set(ctx, fetchedAtKey, snap.FetchedAt.UTC().Format(time.RFC3339Nano), r.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to store snapshot in redis: %w", err)
	}
	return nil
}

// SnapshotTime returns when the stored snapshot was fetched without loading it.
func (r *Redis) SnapshotTime(ctx context.Context) (time.Time, error) {
	raw, err := r.client.Get(ctx, fetchedAtKey).Result()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, ErrNotFound
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to get snapshot time from redis: %w", err)
	}
	at, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid snapshot time %q: %w", raw, err)
	}
	return at, nil
}

// Ratings returns the stored snapshot, or ErrNotFound once it has expired.
func (r *Redis) Ratings(ctx context.Context) (Snapshot, error) {
	data, err := r.client.Get(ctx, ratingsKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return Snapshot{}, ErrNotFound
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to get snapshot from redis: %w", err)
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}
	return snap, nil
}

// Close closes the client; calling it twice is safe.
func (r *Redis) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.client == nil {
		return nil
	}
	err := r.client.Close()
	r.client = nil
	return err
}
