// Package store persists handle links and the rating population snapshot.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/verte-zerg/cfplot/internal/model"
)

// Backend names accepted by Open.
const (
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

// ErrNotFound is returned when a handle link or snapshot does not exist.
var ErrNotFound = errors.New("not found")

// Snapshot is the stored rating population.
type Snapshot struct {
	Ratings   []int     `json:"ratings"`
	FetchedAt time.Time `json:"fetched_at"`
}

// Store is implemented by every backend.
type Store interface {
	SetHandle(ctx context.Context, member, handle string) error
	Handle(ctx context.Context, member string) (string, error)
	SaveRatings(ctx context.Context, snap Snapshot) error
	Ratings(ctx context.Context) (Snapshot, error)
	SnapshotTime(ctx context.Context) (time.Time, error)
	Close() error
}

// Open returns the backend selected by cfg.StoreBackend.
func Open(cfg model.Config) (Store, error) {
	switch cfg.StoreBackend {
	case "", BackendSQLite:
		return OpenSQLite(cfg.StorePath)
	case BackendRedis:
		return OpenRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.SnapshotTTL)
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}
