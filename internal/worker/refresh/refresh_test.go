package refresh

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hitoshi/citycontent/internal/model"
)

// --- モック定義 ---

type mockRecordSource struct {
	records []model.ContentRecord
	err     error
	calls   atomic.Int32
}

func (m *mockRecordSource) FetchRecords(_ context.Context) ([]model.ContentRecord, error) {
	m.calls.Add(1)
	return m.records, m.err
}

type mockRawStore struct {
	mu       sync.Mutex
	replaced [][]model.ContentRecord
	err      error
}

func (m *mockRawStore) ReplaceAll(records []model.ContentRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.replaced = append(m.replaced, records)
	return nil
}

type mockSnapshot struct {
	mu      sync.Mutex
	written [][]model.ContentItem
	err     error
}

func (m *mockSnapshot) Write(items []model.ContentItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.written = append(m.written, items)
	return nil
}

func (m *mockSnapshot) Size() (int64, error) {
	return 42, nil
}

func (m *mockSnapshot) writes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.written)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

// eventually は条件が満たされるまで待つ。
func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met within deadline")
}

// --- Queue ---

// キューが満杯の場合、呼び出し側をブロックせずに破棄することを検証
func TestQueue_FullDropsWithWarning(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	q := NewQueue(1, logger, nil)

	noop := Task{Kind: KindSnapshot, Run: func(context.Context) error { return nil }}
	if !q.Enqueue(noop) {
		t.Fatal("first enqueue should succeed")
	}
	if q.Enqueue(noop) {
		t.Fatal("second enqueue should be dropped")
	}
	if !strings.Contains(buf.String(), "破棄") {
		t.Errorf("expected drop warning, got %q", buf.String())
	}
	if q.Pending() != 1 {
		t.Errorf("Pending() = %d, want 1", q.Pending())
	}
}

// ワーカーがタスクを順に実行し、失敗やpanicの後も継続することを検証
func TestQueue_RunsTasksAndSurvivesFailures(t *testing.T) {
	q := NewQueue(8, discardLogger(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)

	var ran atomic.Int32
	q.Enqueue(Task{Kind: KindSnapshot, Run: func(context.Context) error { return errors.New("disk full") }})
	q.Enqueue(Task{Kind: KindSnapshot, Run: func(context.Context) error { panic("boom") }})
	q.Enqueue(Task{Kind: KindResync, Run: func(context.Context) error { ran.Add(1); return nil }})

	eventually(t, func() bool { return ran.Load() == 1 })

	cancel()
	q.Wait()
}

// サイズ0以下はデフォルトになることを検証
func TestNewQueue_DefaultSize(t *testing.T) {
	q := NewQueue(0, discardLogger(), nil)
	if cap(q.tasks) != defaultQueueSize {
		t.Errorf("capacity = %d, want %d", cap(q.tasks), defaultQueueSize)
	}
}

// --- Syncer ---

// 再同期がローカルストアとスナップショットを書き換えることを検証
func TestSyncer_Resync(t *testing.T) {
	src := &mockRecordSource{records: []model.ContentRecord{{ID: "a", Title: "A"}, {ID: "b", Title: "B"}}}
	raw := &mockRawStore{}
	snap := &mockSnapshot{}
	s := NewSyncer(src, raw, snap, NewQueue(4, discardLogger(), nil), discardLogger(), nil)

	if err := s.Resync(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(raw.replaced) != 1 || len(raw.replaced[0]) != 2 {
		t.Errorf("raw.replaced = %+v", raw.replaced)
	}
	if snap.writes() != 1 || snap.written[0][1].ID != "b" {
		t.Errorf("snapshot writes = %+v", snap.written)
	}
}

// リモート取得に失敗した場合は何も書き換えないことを検証
func TestSyncer_Resync_RemoteFailureLeavesStoresUntouched(t *testing.T) {
	src := &mockRecordSource{err: errors.New("timeout")}
	raw := &mockRawStore{}
	snap := &mockSnapshot{}
	s := NewSyncer(src, raw, snap, NewQueue(4, discardLogger(), nil), discardLogger(), nil)

	if err := s.Resync(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if len(raw.replaced) != 0 || snap.writes() != 0 {
		t.Error("stores must not be touched on remote failure")
	}
}

// スケジュールしたタスクがワーカーで実行されることを検証
func TestSyncer_ScheduleSnapshotAndResync(t *testing.T) {
	src := &mockRecordSource{records: []model.ContentRecord{{ID: "a"}}}
	raw := &mockRawStore{}
	snap := &mockSnapshot{}
	q := NewQueue(4, discardLogger(), nil)
	s := NewSyncer(src, raw, snap, q, discardLogger(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)

	if !s.ScheduleSnapshot([]model.ContentItem{{ID: "x"}}) {
		t.Fatal("ScheduleSnapshot should be accepted")
	}
	if !s.ScheduleResync() {
		t.Fatal("ScheduleResync should be accepted")
	}

	eventually(t, func() bool { return snap.writes() == 2 })
	if src.calls.Load() != 1 {
		t.Errorf("FetchRecords calls = %d, want 1", src.calls.Load())
	}
}

// --- Scheduler ---

// 失敗時はバックオフ、成功時は通常間隔を返すことを検証
func TestScheduler_RunOnce_Backoff(t *testing.T) {
	src := &mockRecordSource{err: errors.New("down")}
	s := NewScheduler(NewSyncer(src, &mockRawStore{}, &mockSnapshot{}, NewQueue(1, discardLogger(), nil), discardLogger(), nil), discardLogger())
	interval := 15 * time.Minute

	if got := s.RunOnce(context.Background(), interval); got != 30*time.Second {
		t.Errorf("1st failure: next = %v, want 30s", got)
	}
	if got := s.RunOnce(context.Background(), interval); got != time.Minute {
		t.Errorf("2nd failure: next = %v, want 1m", got)
	}

	src.err = nil
	if got := s.RunOnce(context.Background(), interval); got != interval {
		t.Errorf("success: next = %v, want %v", got, interval)
	}
	if s.consecutiveErrors != 0 {
		t.Errorf("consecutiveErrors = %d, want 0", s.consecutiveErrors)
	}
}

// 起動直後に1回実行され、キャンセルで停止することを検証
func TestScheduler_Start_RunsImmediately(t *testing.T) {
	src := &mockRecordSource{}
	s := NewScheduler(NewSyncer(src, &mockRawStore{}, &mockSnapshot{}, NewQueue(1, discardLogger(), nil), discardLogger(), nil), discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Start(ctx, time.Hour)
		close(done)
	}()

	eventually(t, func() bool { return src.calls.Load() >= 1 })
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop after cancel")
	}
}

// バックオフ計算を検証
func TestCalculateBackoff(t *testing.T) {
	tests := []struct {
		errors int
		max    time.Duration
		want   time.Duration
	}{
		{0, time.Hour, 30 * time.Second},
		{1, time.Hour, time.Minute},
		{3, time.Hour, 4 * time.Minute},
		{20, time.Hour, time.Hour},
		{0, 10 * time.Second, 10 * time.Second},
	}
	for _, tt := range tests {
		if got := CalculateBackoff(tt.errors, tt.max); got != tt.want {
			t.Errorf("CalculateBackoff(%d, %v) = %v, want %v", tt.errors, tt.max, got, tt.want)
		}
	}
}
