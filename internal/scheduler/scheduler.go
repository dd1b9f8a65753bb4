package scheduler

import (
	"context"
	"log"
	"sync"
	"time"

	"notekeeper/internal/model"
)

// Runner is the backup entry point the scheduler drives.
type Runner interface {
	BackupNow(ctx context.Context, kind model.BackupKind) (string, error)
}

// BackupScheduler runs one backup at startup and then one per interval.
// Failures are reported through the notice queue by the runner itself; the
// scheduler only logs and keeps ticking.
type BackupScheduler struct {
	runner     Runner
	interval   time.Duration
	runTimeout time.Duration

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewBackupScheduler(runner Runner, interval time.Duration) *BackupScheduler {
	return &BackupScheduler{
		runner:     runner,
		interval:   interval,
		runTimeout: 15 * time.Minute,
	}
}

func (s *BackupScheduler) Start(ctx context.Context) {
	if s.cancel != nil {
		return
	}

	schedCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		s.run(schedCtx, model.BackupInitial)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-schedCtx.Done():
				return
			case <-ticker.C:
				s.run(schedCtx, model.BackupScheduled)
			}
		}
	}()
}

func (s *BackupScheduler) run(ctx context.Context, kind model.BackupKind) {
	runCtx, cancel := context.WithTimeout(ctx, s.runTimeout)
	defer cancel()

	if _, err := s.runner.BackupNow(runCtx, kind); err != nil {
		log.Printf("%s backup failed: %v", kind, err)
	}
}

func (s *BackupScheduler) Close() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}
