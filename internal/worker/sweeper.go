package worker

import (
	"context"
	"errors"
	"time"

	"github.com/charmbracelet/log"

	"travelchat/internal/cache"
	"travelchat/internal/metrics"
	"travelchat/internal/model"
)

// Deleter removes a stored object by ref.
type Deleter interface {
	Delete(ctx context.Context, ref string) error
}

// SweeperConfig controls retention.
type SweeperConfig struct {
	Retention time.Duration
	Interval  time.Duration
	BatchSize int64
}

// Sweeper deletes uploads older than the retention window.
type Sweeper struct {
	index   cache.UploadIndex
	deleter Deleter
	cfg     SweeperConfig
	metrics *metrics.Recorder
	logger  *log.Logger
	now     func() time.Time
}

func NewSweeper(index cache.UploadIndex, deleter Deleter, cfg SweeperConfig, rec *metrics.Recorder, logger *log.Logger) *Sweeper {
	if cfg.Interval <= 0 {
		cfg.Interval = 15 * time.Minute
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	return &Sweeper{
		index:   index,
		deleter: deleter,
		cfg:     cfg,
		metrics: rec,
		logger:  logger.WithPrefix("Sweeper"),
		now:     time.Now,
	}
}

// Run sweeps every Interval until ctx is cancelled. A zero Retention disables sweeping.
func (s *Sweeper) Run(ctx context.Context) error {
	if s.cfg.Retention <= 0 {
		s.logger.Info("retention disabled")
		return nil
	}

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		if _, err := s.SweepOnce(ctx); err != nil && ctx.Err() == nil {
			s.logger.Error("sweep failed", "err", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// SweepOnce deletes one batch of expired uploads and returns how many were removed.
// Refs whose delete fails stay indexed, rescored to the cutoff so they queue behind
// every older expired ref instead of filling the next batch again.
func (s *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	cutoff := s.now().Add(-s.cfg.Retention)
	refs, err := s.index.Expired(ctx, cutoff, s.cfg.BatchSize)
	if err != nil {
		return 0, err
	}

	done := make([]string, 0, len(refs))
	var failed []string
	for _, ref := range refs {
		err := s.deleter.Delete(ctx, ref)
		s.metrics.ObserveSweep(err)
		switch {
		case err == nil:
			done = append(done, ref)
		case errors.Is(err, model.ErrInvalidReference):
			// unparseable or foreign refs can never be deleted; stop tracking them
			s.logger.Warn("dropping invalid ref", "ref", ref, "err", err)
			done = append(done, ref)
		default:
			s.logger.Warn("delete failed", "ref", ref, "err", err)
			failed = append(failed, ref)
		}
	}

	for _, ref := range failed {
		if err := s.index.Add(ctx, ref, cutoff); err != nil {
			s.logger.Warn("requeue failed", "ref", ref, "err", err)
		}
	}

	if err := s.index.Remove(ctx, done...); err != nil {
		return 0, err
	}
	if len(done) > 0 {
		s.logger.Info("swept expired uploads", "count", len(done), "cutoff", cutoff.UTC().Format(time.RFC3339))
	}
	return len(done), nil
}
