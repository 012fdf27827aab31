package bot

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/verte-zerg/cfplot/internal/stats"
	"github.com/verte-zerg/cfplot/internal/store"
)

// SnapshotStore is the part of store.Store the population cache reads.
type SnapshotStore interface {
	Ratings(ctx context.Context) (store.Snapshot, error)
	SnapshotTime(ctx context.Context) (time.Time, error)
}

var errNoSnapshot = userErrorf("No rating snapshot available yet. Run `cfplot sync` first.")

// StorePopulation serves the stored snapshot. It checks the snapshot time on
// every call and loads the ratings only when a newer snapshot appears.
type StorePopulation struct {
	Store SnapshotStore

	mu        sync.Mutex
	pop       *stats.Population
	fetchedAt time.Time
}

// Population implements PopulationSource.
func (p *StorePopulation) Population(ctx context.Context) (*stats.Population, error) {
	at, err := p.Store.SnapshotTime(ctx)
	if errors.Is(err, store.ErrNotFound) {
		return nil, errNoSnapshot
	}
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pop != nil && p.fetchedAt.Equal(at) {
		return p.pop, nil
	}
	snap, err := p.Store.Ratings(ctx)
	if errors.Is(err, store.ErrNotFound) {
		return nil, errNoSnapshot
	}
	if err != nil {
		return nil, err
	}
	pop, err := stats.NewPopulation(snap.Ratings)
	if err != nil {
		return nil, err
	}
	p.pop, p.fetchedAt = pop, snap.FetchedAt
	return pop, nil
}
