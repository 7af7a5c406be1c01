package refresh

import (
	"context"
	"log/slog"
	"time"
)

const (
	// initialBackoff は再同期失敗時の初回待機時間。
	initialBackoff = 30 * time.Second
)

// Scheduler は一定間隔で再同期を実行する。
// 失敗が続いた場合は指数バックオフで間隔を詰め、成功すると通常間隔に戻る。
type Scheduler struct {
	syncer *Syncer
	logger *slog.Logger

	consecutiveErrors int
}

// NewScheduler はSchedulerを生成する。
func NewScheduler(syncer *Syncer, logger *slog.Logger) *Scheduler {
	return &Scheduler{syncer: syncer, logger: logger}
}

// Start は起動直後に1回再同期し、以降はintervalごとに実行する。
// コンテキストがキャンセルされるまで実行を継続する。
func (s *Scheduler) Start(ctx context.Context, interval time.Duration) {
	s.logger.Info("再同期スケジューラを開始しました",
		slog.Duration("interval", interval),
	)

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("再同期スケジューラを停止しました")
			return
		case <-timer.C:
			timer.Reset(s.RunOnce(ctx, interval))
		}
	}
}

// RunOnce は再同期を1回実行し、次回実行までの待機時間を返す。
func (s *Scheduler) RunOnce(ctx context.Context, interval time.Duration) time.Duration {
	if err := s.syncer.Resync(ctx); err != nil {
		s.consecutiveErrors++
		next := CalculateBackoff(s.consecutiveErrors-1, interval)
		s.logger.Error("再同期に失敗しました",
			slog.String("error", err.Error()),
			slog.Int("consecutive_errors", s.consecutiveErrors),
			slog.Duration("next_in", next),
		)
		return next
	}

	s.consecutiveErrors = 0
	return interval
}

// CalculateBackoff は連続エラー回数に基づいて指数バックオフ遅延を計算する。
// 初回30秒、2倍ずつ増加、最大はmaxDelay。
func CalculateBackoff(consecutiveErrors int, maxDelay time.Duration) time.Duration {
	delay := initialBackoff
	if delay > maxDelay {
		return maxDelay
	}
	for i := 0; i < consecutiveErrors; i++ {
		delay *= 2
		if delay > maxDelay {
			return maxDelay
		}
	}
	return delay
}
