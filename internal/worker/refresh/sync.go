package refresh

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/citycontent/internal/metrics"
	"github.com/hitoshi/citycontent/internal/model"
)

// RecordSource はリモートストアから全レコードを取得するインターフェース。
type RecordSource interface {
	FetchRecords(ctx context.Context) ([]model.ContentRecord, error)
}

// RawStore はローカルJSONストアを丸ごと置き換えるインターフェース。
type RawStore interface {
	ReplaceAll(records []model.ContentRecord) error
}

// SnapshotWriter はスナップショットファイルへの書き込みインターフェース。
type SnapshotWriter interface {
	Write(items []model.ContentItem) error
	Size() (int64, error)
}

// Syncer はスナップショットとローカルストアの書き込みタスクを生成する。
type Syncer struct {
	source   RecordSource
	raw      RawStore
	snapshot SnapshotWriter
	queue    *Queue
	logger   *slog.Logger
	metrics  metrics.MetricsCollector
}

// NewSyncer はSyncerを生成する。
func NewSyncer(source RecordSource, raw RawStore, snapshot SnapshotWriter, queue *Queue, logger *slog.Logger, mc metrics.MetricsCollector) *Syncer {
	if mc == nil {
		mc = metrics.Nop{}
	}
	return &Syncer{
		source:   source,
		raw:      raw,
		snapshot: snapshot,
		queue:    queue,
		logger:   logger,
		metrics:  mc,
	}
}

// ScheduleSnapshot はitemsでスナップショットを上書きするタスクを積む。
// itemsは呼び出し側で以降変更しないこと。
func (s *Syncer) ScheduleSnapshot(items []model.ContentItem) bool {
	return s.queue.Enqueue(Task{
		Kind: KindSnapshot,
		Run: func(_ context.Context) error {
			return s.writeSnapshot(items)
		},
	})
}

// ScheduleResync はリモートから全件を取り直してローカルストアとスナップショットを
// 書き直すタスクを積む。
func (s *Syncer) ScheduleResync() bool {
	return s.queue.Enqueue(Task{
		Kind: KindResync,
		Run:  s.Resync,
	})
}

// Resync はリモートの全レコードでローカルストアとスナップショットを置き換える。
// リモートの取得に失敗した場合は何も書き換えない。
func (s *Syncer) Resync(ctx context.Context) error {
	start := time.Now()

	records, err := s.source.FetchRecords(ctx)
	if err != nil {
		return fmt.Errorf("再同期用の全件取得に失敗: %w", err)
	}

	if err := s.raw.ReplaceAll(records); err != nil {
		return fmt.Errorf("ローカルストアの置き換えに失敗: %w", err)
	}

	items := make([]model.ContentItem, 0, len(records))
	for i := range records {
		items = append(items, records[i].ToItem())
	}
	if err := s.writeSnapshot(items); err != nil {
		return err
	}

	s.logger.Info("ローカルストアを再同期しました",
		slog.Int("record_count", len(records)),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return nil
}

func (s *Syncer) writeSnapshot(items []model.ContentItem) error {
	if err := s.snapshot.Write(items); err != nil {
		return fmt.Errorf("スナップショットの書き込みに失敗: %w", err)
	}
	if size, err := s.snapshot.Size(); err == nil {
		s.metrics.RecordSnapshotSize(size)
	}
	return nil
}
