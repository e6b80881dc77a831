package service

import (
	"context"
	"sync"
	"time"

	"github.com/Harshitk-cp/fastinf/internal/domain"
	"go.uber.org/zap"
)

const (
	defaultExpirerInterval = 1 * time.Hour
	defaultRunRetention    = 7 * 24 * time.Hour
)

// ExpirerService deletes stored runs older than the retention period.
type ExpirerService struct {
	store  domain.RunStore
	logger *zap.Logger

	retention time.Duration
	interval  time.Duration
	now       func() time.Time
	stopCh    chan struct{}
	wg        sync.WaitGroup
}

func NewExpirerService(s domain.RunStore, logger *zap.Logger) *ExpirerService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExpirerService{
		store:     s,
		logger:    logger,
		retention: defaultRunRetention,
		interval:  defaultExpirerInterval,
		now:       time.Now,
		stopCh:    make(chan struct{}),
	}
}

func (s *ExpirerService) SetInterval(d time.Duration) {
	s.interval = d
}

func (s *ExpirerService) SetRetention(d time.Duration) {
	s.retention = d
}

// Start runs the expirer on a periodic schedule in a background goroutine.
func (s *ExpirerService) Start() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.logger.Info("run expirer started",
			zap.Duration("interval", s.interval),
			zap.Duration("retention", s.retention))

		for {
			select {
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				s.run(ctx)
				cancel()
			case <-s.stopCh:
				s.logger.Info("run expirer stopped")
				return
			}
		}
	}()
}

// Stop gracefully stops the expirer.
func (s *ExpirerService) Stop() {
	close(s.stopCh)
	s.wg.Wait()
}

func (s *ExpirerService) run(ctx context.Context) {
	cutoff := s.now().Add(-s.retention)
	deleted, err := s.store.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		s.logger.Error("failed to delete expired runs", zap.Error(err))
		return
	}
	if deleted > 0 {
		s.logger.Info("deleted expired runs",
			zap.Int64("count", deleted),
			zap.Time("cutoff", cutoff))
	}
}
