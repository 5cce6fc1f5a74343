package refdata

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/opensource-fisheries/gannet/internal/domain"
)

// Loaders supplies full replacement tables from the external reference-data
// sources. Each loader returns the complete table; the cache never merges.
type Loaders struct {
	Vessels           func(ctx context.Context) ([]domain.Vessel, error)
	VesselsOfInterest func(ctx context.Context) ([]domain.VesselOfInterest, error)
	Weighting         func(ctx context.Context) (*domain.Weighting, error)
	SpeciesAliases    func(ctx context.Context) ([]domain.SpeciesAlias, error)
	ConversionFactors func(ctx context.Context) ([]domain.ConversionFactor, error)
	ExporterBehaviour func(ctx context.Context) ([]domain.ExporterBehaviour, error)
}

// Cache holds the current reference-data snapshot. Refresh builds a complete
// new snapshot and swaps it in under the lock; in-flight readers keep the
// snapshot they already hold.
type Cache struct {
	mu      sync.RWMutex
	loaders Loaders
	current *Snapshot

	// raw tables retained so risking-only refreshes can rebuild the snapshot
	// without re-running every loader
	vessels   []domain.Vessel
	voi       []domain.VesselOfInterest
	weighting *domain.Weighting
	aliases   []domain.SpeciesAlias
	factors   []domain.ConversionFactor
	behaviour []domain.ExporterBehaviour
}

// New creates a reference-data cache. The cache starts empty; call Refresh
// before the first consolidation run.
func New(loaders Loaders) *Cache {
	return &Cache{
		loaders: loaders,
		current: emptySnapshot(),
	}
}

// Snapshot returns the current immutable snapshot.
func (c *Cache) Snapshot() *Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current
}

// Refresh re-runs every loader and swaps in a fresh snapshot. On error the
// previous snapshot stays live.
func (c *Cache) Refresh(ctx context.Context) error {
	vessels, err := load(ctx, c.loaders.Vessels)
	if err != nil {
		return fmt.Errorf("failed to load vessel roster: %w", err)
	}
	voi, err := load(ctx, c.loaders.VesselsOfInterest)
	if err != nil {
		return fmt.Errorf("failed to load vessels of interest: %w", err)
	}
	var weighting *domain.Weighting
	if c.loaders.Weighting != nil {
		weighting, err = c.loaders.Weighting(ctx)
		if err != nil {
			return fmt.Errorf("failed to load weighting: %w", err)
		}
	}
	aliases, err := load(ctx, c.loaders.SpeciesAliases)
	if err != nil {
		return fmt.Errorf("failed to load species aliases: %w", err)
	}
	factors, err := load(ctx, c.loaders.ConversionFactors)
	if err != nil {
		return fmt.Errorf("failed to load conversion factors: %w", err)
	}
	behaviour, err := load(ctx, c.loaders.ExporterBehaviour)
	if err != nil {
		return fmt.Errorf("failed to load exporter behaviour: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.vessels = vessels
	c.voi = voi
	c.weighting = weighting
	c.aliases = aliases
	c.factors = factors
	c.behaviour = behaviour
	c.current = buildSnapshot(vessels, voi, weighting, aliases, factors, behaviour)
	return nil
}

// RefreshRisking reloads only the risking tables (vessel-of-interest list
// and weighting), keeping the other tables from the previous refresh. Used
// before each batch so risk scoring runs against current data without the
// cost of a full reload.
func (c *Cache) RefreshRisking(ctx context.Context) error {
	voi, err := load(ctx, c.loaders.VesselsOfInterest)
	if err != nil {
		return fmt.Errorf("failed to load vessels of interest: %w", err)
	}
	var weighting *domain.Weighting
	if c.loaders.Weighting != nil {
		weighting, err = c.loaders.Weighting(ctx)
		if err != nil {
			return fmt.Errorf("failed to load weighting: %w", err)
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.voi = voi
	c.weighting = weighting
	c.current = buildSnapshot(c.vessels, voi, weighting, c.aliases, c.factors, c.behaviour)
	return nil
}

// Purge drops the cache to an empty snapshot. The next Refresh repopulates it.
func (c *Cache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.vessels = nil
	c.voi = nil
	c.weighting = nil
	c.aliases = nil
	c.factors = nil
	c.behaviour = nil
	c.current = emptySnapshot()
}

// StartAutoRefresh refreshes the cache on the given interval until ctx is
// cancelled. A failed refresh is logged and the previous snapshot stays live.
func (c *Cache) StartAutoRefresh(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := c.Refresh(ctx); err != nil {
					slog.Error("reference data refresh failed, keeping previous snapshot", "error", err)
				} else {
					slog.Debug("reference data refreshed")
				}
			}
		}
	}()
}

func load[T any](ctx context.Context, loader func(ctx context.Context) ([]T, error)) ([]T, error) {
	if loader == nil {
		return nil, nil
	}
	return loader(ctx)
}
