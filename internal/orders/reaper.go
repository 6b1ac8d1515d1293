package orders

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Sweeper is any periodic cleanup that can ride on the reaper's ticker.
type Sweeper interface {
	Sweep(now time.Time) int
}

// Reaper removes expired orders. An order older than the expiry age is
// removed whatever its status; a terminal order is also removed once it is
// older than the retention window.
//
// Removal wins over concurrent mutation: an order completed at the instant
// it expires may be lost.
type Reaper struct {
	store     *Store
	index     *OwnerIndex
	expiryAge time.Duration
	retention time.Duration
	nowFunc   func() time.Time
	logger    *slog.Logger
	onRemove  func(o Order, at time.Time)
	extra     []Sweeper
}

// Attach adds s to every subsequent sweep. Not safe to call while Run is active.
func (r *Reaper) Attach(s Sweeper) {
	r.extra = append(r.extra, s)
}

func (r *Reaper) expired(o Order, now time.Time) bool {
	age := now.Sub(o.CreatedAt)
	if age > r.expiryAge {
		return true
	}
	return o.Status.Terminal() && age > r.retention
}

// Sweep performs one pass and returns the number of orders removed.
func (r *Reaper) Sweep() int {
	now := r.nowFunc()

	var doomed []uuid.UUID
	r.store.each(func(o Order) {
		if r.expired(o, now) {
			doomed = append(doomed, o.ID)
		}
	})

	removed := 0
	for _, id := range doomed {
		o, ok := r.store.Take(id)
		if !ok {
			continue
		}
		r.index.Remove(o.OwnerID, o.ID)
		removed++
		if r.onRemove != nil {
			r.onRemove(o, now)
		}
	}

	for _, s := range r.extra {
		s.Sweep(now)
	}

	if removed == 0 {
		r.logger.Debug("expiry sweep found nothing to remove")
		return 0
	}
	r.logger.Info("expired orders removed", "count", removed)
	return removed
}

// Run sweeps every interval until ctx is cancelled.
func (r *Reaper) Run(ctx context.Context, interval time.Duration) {
	r.logger.Info("starting expiry reaper", "interval", interval)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("expiry reaper stopped")
			return
		case <-ticker.C:
			r.Sweep()
		}
	}
}
