package persist

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/imrishuroy/go-courier-orders/internal/orders"
)

// ErrDegraded is returned by Flush while the snapshot on disk could not be
// loaded. Writing would rotate the unreadable files away, so periodic
// flushes are held back until an operator reloads or forces a flush.
var ErrDegraded = errors.New("persistence degraded")

// Mirror receives a copy of every order after a successful save.
type Mirror interface {
	Mirror(ctx context.Context, list []orders.Order) error
}

// Health describes the state of the persistence path.
type Health struct {
	Degraded    bool      `json:"degraded"`
	LastFlush   time.Time `json:"last_flush,omitempty"`
	LastError   string    `json:"last_error,omitempty"`
	Failures    int       `json:"consecutive_failures"`
	Written     int       `json:"last_written"`
	MirrorError string    `json:"mirror_error,omitempty"`
}

// Flusher writes the store to its FileStore whenever it is dirty.
type Flusher struct {
	file    *FileStore
	store   *orders.Store
	mirror  Mirror
	logger  *slog.Logger
	nowFunc func() time.Time

	mu     sync.Mutex
	health Health
}

// NewFlusher returns a Flusher saving store to file. mirror may be nil.
func NewFlusher(file *FileStore, store *orders.Store, mirror Mirror, logger *slog.Logger) *Flusher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Flusher{
		file:    file,
		store:   store,
		mirror:  mirror,
		logger:  logger,
		nowFunc: time.Now,
	}
}

// MarkDegraded records that the snapshot could not be loaded.
func (f *Flusher) MarkDegraded(err error) {
	f.mu.Lock()
	f.health.Degraded = true
	f.health.LastError = err.Error()
	f.mu.Unlock()
	f.logger.Error("persistence degraded, periodic flush disabled", "error", err)
}

// ClearDegraded re-enables periodic flushes.
func (f *Flusher) ClearDegraded() {
	f.mu.Lock()
	f.health.Degraded = false
	f.mu.Unlock()
}

// Health returns a copy of the current persistence health.
func (f *Flusher) Health() Health {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.health
}

// Flush saves the store if it changed since the last save and reports
// whether a snapshot was written. On failure the store stays dirty so the
// next tick retries.
func (f *Flusher) Flush(ctx context.Context) (bool, error) {
	if f.Health().Degraded {
		return false, ErrDegraded
	}
	if !f.store.TakeDirty() {
		return false, nil
	}
	return true, f.save(ctx)
}

// ForceFlush saves unconditionally and leaves degraded mode on success.
func (f *Flusher) ForceFlush(ctx context.Context) error {
	f.store.TakeDirty()
	if err := f.save(ctx); err != nil {
		return err
	}
	f.ClearDegraded()
	return nil
}

func (f *Flusher) save(ctx context.Context) error {
	report, err := f.file.Save(f.store)
	if err != nil {
		f.store.MarkDirty()
		f.mu.Lock()
		f.health.LastError = err.Error()
		f.health.Failures++
		failures := f.health.Failures
		f.mu.Unlock()
		f.logger.Error("order snapshot flush failed", "path", f.file.Path(), "failures", failures, "error", err)
		return err
	}

	f.mu.Lock()
	f.health.LastFlush = f.nowFunc()
	f.health.LastError = ""
	f.health.Failures = 0
	f.health.Written = report.Written
	f.mu.Unlock()
	f.logger.Debug("order snapshot flushed", "path", f.file.Path(), "written", report.Written, "omitted", report.Omitted)

	if f.mirror != nil {
		mirrorErr := f.mirror.Mirror(ctx, f.store.All())
		f.mu.Lock()
		if mirrorErr != nil {
			f.health.MirrorError = mirrorErr.Error()
		} else {
			f.health.MirrorError = ""
		}
		f.mu.Unlock()
		if mirrorErr != nil {
			f.logger.Warn("order mirror failed", "error", mirrorErr)
		}
	}
	return nil
}

// Run flushes every interval until ctx is cancelled, then performs a final
// flush so that a clean shutdown loses nothing.
func (f *Flusher) Run(ctx context.Context, interval time.Duration) {
	f.logger.Info("starting snapshot flusher", "interval", interval, "path", f.file.Path())
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			// ctx is already done; the mirror gets a fresh short deadline.
			final, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if _, err := f.Flush(final); err != nil && !errors.Is(err, ErrDegraded) {
				f.logger.Error("final snapshot flush failed", "error", err)
			}
			cancel()
			f.logger.Info("snapshot flusher stopped")
			return
		case <-ticker.C:
			_, _ = f.Flush(ctx)
		}
	}
}
