package directory

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Sweeper 定时清理过期邮箱
type Sweeper struct {
	dir      *Directory
	interval time.Duration
	logger   *zap.Logger
	onSweep  func(removed, live int)
}

// NewSweeper 创建清理任务
func NewSweeper(dir *Directory, interval time.Duration, logger *zap.Logger) *Sweeper {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = time.Minute
	}
	return &Sweeper{dir: dir, interval: interval, logger: logger}
}

// OnSweep 设置每轮清理后的回调
func (s *Sweeper) OnSweep(fn func(removed, live int)) {
	s.onSweep = fn
}

// Run 按间隔清理，直到 ctx 结束。
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("mailbox sweeper started", zap.Duration("interval", s.interval))
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("mailbox sweeper stopped")
			return nil
		case <-ticker.C:
			s.SweepOnce()
		}
	}
}

// SweepOnce 执行一轮清理
func (s *Sweeper) SweepOnce() int {
	removed := s.dir.SweepExpired()
	live := s.dir.ConnectedCount()
	if removed > 0 {
		s.logger.Info("expired mailboxes removed", zap.Int("count", removed), zap.Int("live", live))
	}
	if s.onSweep != nil {
		s.onSweep(removed, live)
	}
	return removed
}
