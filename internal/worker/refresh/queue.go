// Package refresh はスナップショットとローカルストアへのバックグラウンド書き込みを提供する。
// 書き込みは有界キューに積まれ、単一のワーカーgoroutineが順に処理する。
package refresh

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/citycontent/internal/metrics"
)

// タスク種別。
const (
	KindSnapshot = "snapshot"
	KindResync   = "resync"
)

var errPanic = errors.New("refresh: task panicked")

// defaultQueueSize はキューサイズ未指定時のデフォルト。
const defaultQueueSize = 16

// Task はバックグラウンドで実行する書き込み処理。
type Task struct {
	Kind string
	Run  func(ctx context.Context) error
}

// Queue は有界のタスクキュー。
// 満杯の場合、新しいタスクは警告ログを出して破棄される（呼び出し側はブロックしない）。
type Queue struct {
	tasks   chan Task
	logger  *slog.Logger
	metrics metrics.MetricsCollector

	wg sync.WaitGroup
}

// NewQueue はQueueを生成する。sizeが0以下の場合はデフォルト値16を使用する。
func NewQueue(size int, logger *slog.Logger, mc metrics.MetricsCollector) *Queue {
	if size <= 0 {
		size = defaultQueueSize
	}
	if mc == nil {
		mc = metrics.Nop{}
	}
	return &Queue{
		tasks:   make(chan Task, size),
		logger:  logger,
		metrics: mc,
	}
}

// Enqueue はタスクをキューに積む。満杯の場合はfalseを返す。
func (q *Queue) Enqueue(task Task) bool {
	select {
	case q.tasks <- task:
		return true
	default:
		q.logger.Warn("バックグラウンドキューが満杯のためタスクを破棄しました",
			slog.String("kind", task.Kind),
			slog.Int("capacity", cap(q.tasks)),
		)
		q.metrics.RecordRefreshDropped(task.Kind)
		return false
	}
}

// Pending はキューに残っているタスク数を返す。
func (q *Queue) Pending() int {
	return len(q.tasks)
}

// Start はワーカーgoroutineを起動する。ctxがキャンセルされると停止する。
func (q *Queue) Start(ctx context.Context) {
	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		q.run(ctx)
	}()
}

// Wait はワーカーの停止を待つ。
func (q *Queue) Wait() {
	q.wg.Wait()
}

func (q *Queue) run(ctx context.Context) {
	q.logger.Info("バックグラウンドワーカーを開始しました",
		slog.Int("capacity", cap(q.tasks)),
	)
	for {
		select {
		case <-ctx.Done():
			q.logger.Info("バックグラウンドワーカーを停止しました",
				slog.Int("pending", len(q.tasks)),
			)
			return
		case task := <-q.tasks:
			q.execute(ctx, task)
		}
	}
}

// execute はタスクを1件実行する。失敗はログに記録して破棄する。
func (q *Queue) execute(ctx context.Context, task Task) {
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			q.logger.Error("バックグラウンドタスクでpanicが発生しました",
				slog.String("kind", task.Kind),
				slog.Any("panic", r),
			)
			q.metrics.RecordRefreshTask(task.Kind, errPanic)
		}
	}()

	err := task.Run(ctx)
	q.metrics.RecordRefreshTask(task.Kind, err)
	if err != nil {
		q.logger.Error("バックグラウンドタスクの実行に失敗しました",
			slog.String("kind", task.Kind),
			slog.String("error", err.Error()),
		)
		return
	}

	q.logger.Debug("バックグラウンドタスクが完了しました",
		slog.String("kind", task.Kind),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
}
