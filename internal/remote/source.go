// Package remote はリモートストア（正本）への読み書きを、時間予算付きで提供する。
package remote

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/citycontent/internal/content"
	"github.com/hitoshi/citycontent/internal/model"
	"github.com/hitoshi/citycontent/internal/repository"
)

// ErrTimeout はリモート呼び出しが時間予算内に完了しなかったことを示す。
var ErrTimeout = errors.New("remote: timed out")

// Timeouts は呼び出し種別ごとの時間予算。
type Timeouts struct {
	Homepage   time.Duration
	Collection time.Duration
	Item       time.Duration
}

// DefaultTimeouts はデフォルトの時間予算を返す。
// トップページが最も長く、単一アイテムが最も短い。
func DefaultTimeouts() Timeouts {
	return Timeouts{
		Homepage:   10 * time.Second,
		Collection: 6 * time.Second,
		Item:       3 * time.Second,
	}
}

// Source はリモートストアのアダプター。
// 読み取りはすべてタイムアウトと競争させ、負けた側のコンテキストはキャンセルする。
type Source struct {
	repo     repository.ContentRepository
	timeouts Timeouts
	logger   *slog.Logger
	now      func() time.Time
}

// NewSource はSourceを生成する。
func NewSource(repo repository.ContentRepository, timeouts Timeouts, logger *slog.Logger) *Source {
	return &Source{
		repo:     repo,
		timeouts: timeouts,
		logger:   logger,
		now:      time.Now,
	}
}

// Timeouts は設定済みの時間予算を返す。
func (s *Source) Timeouts() Timeouts {
	return s.timeouts
}

// FetchCollection は条件に一致するアイテムを取得する。
// budget以内に応答がない場合はErrTimeoutを返す。
func (s *Source) FetchCollection(ctx context.Context, q model.ContentQuery, budget time.Duration) ([]model.ContentItem, error) {
	q.Fields = EnsureImageFields(q.Fields)

	records, err := race(ctx, budget, func(ctx context.Context) ([]model.ContentRecord, error) {
		return s.repo.List(ctx, q)
	})
	if err != nil {
		s.logger.Warn("リモートストアからの一覧取得に失敗しました",
			slog.String("error", err.Error()),
			slog.Duration("budget", budget),
		)
		return nil, err
	}

	return toItems(records), nil
}

// FetchRecords は全レコードをsnake_caseの生の形で取得する。ローカルストアの再同期に使う。
func (s *Source) FetchRecords(ctx context.Context) ([]model.ContentRecord, error) {
	records, err := race(ctx, s.timeouts.Homepage, func(ctx context.Context) ([]model.ContentRecord, error) {
		return s.repo.List(ctx, model.ContentQuery{SortBy: "created_at", Descending: true})
	})
	if err != nil {
		s.logger.Warn("リモートストアからの全件取得に失敗しました",
			slog.String("error", err.Error()),
		)
		return nil, err
	}
	if records == nil {
		records = []model.ContentRecord{}
	}
	return records, nil
}

// FetchByID は指定IDのアイテムを取得する。存在しない場合はnilを返す。
func (s *Source) FetchByID(ctx context.Context, id string) (*model.ContentItem, error) {
	rec, err := race(ctx, s.timeouts.Item, func(ctx context.Context) (*model.ContentRecord, error) {
		return s.repo.FindByID(ctx, id)
	})
	if err != nil {
		s.logger.Warn("リモートストアからの取得に失敗しました",
			slog.String("id", id),
			slog.String("error", err.Error()),
		)
		return nil, err
	}
	if rec == nil {
		return nil, nil
	}

	item := content.SanitizeImage(rec.ToItem())
	return &item, nil
}

// Create はアイテムを作成する。IDが空の場合は採番し、作成日時・更新日時を設定する。
func (s *Source) Create(ctx context.Context, item model.ContentItem) (*model.ContentItem, error) {
	if item.ID == "" {
		item.ID = uuid.New().String()
	}
	now := s.now().UTC()
	item.CreatedAt = now
	item.UpdatedAt = now

	rec := model.RecordFromItem(item)
	_, err := race(ctx, s.timeouts.Collection, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, s.repo.Create(ctx, &rec)
	})
	if err != nil {
		s.logger.Error("リモートストアへの作成に失敗しました",
			slog.String("id", item.ID),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	created := content.SanitizeImage(item)
	return &created, nil
}

// Update はアイテムを更新する。作成日時は既存の値を維持し、更新日時を現在時刻にする。
// 対象が存在しない場合はrepository.ErrNotFoundを返す。
func (s *Source) Update(ctx context.Context, item model.ContentItem) (*model.ContentItem, error) {
	updated, err := race(ctx, s.timeouts.Collection, func(ctx context.Context) (model.ContentItem, error) {
		existing, err := s.repo.FindByID(ctx, item.ID)
		if err != nil {
			return model.ContentItem{}, err
		}
		if existing == nil {
			return model.ContentItem{}, repository.ErrNotFound
		}

		next := item
		next.CreatedAt = existing.ToItem().CreatedAt
		next.UpdatedAt = s.now().UTC()
		rec := model.RecordFromItem(next)
		if err := s.repo.Update(ctx, &rec); err != nil {
			return model.ContentItem{}, err
		}
		return next, nil
	})
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			s.logger.Error("リモートストアの更新に失敗しました",
				slog.String("id", item.ID),
				slog.String("error", err.Error()),
			)
		}
		return nil, err
	}

	updated = content.SanitizeImage(updated)
	return &updated, nil
}

// Delete は指定IDのアイテムを削除する。
func (s *Source) Delete(ctx context.Context, id string) error {
	_, err := race(ctx, s.timeouts.Collection, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, s.repo.Delete(ctx, id)
	})
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		s.logger.Error("リモートストアからの削除に失敗しました",
			slog.String("id", id),
			slog.String("error", err.Error()),
		)
	}
	return err
}

// Ping はリモートストアへの疎通を確認する。
func (s *Source) Ping(ctx context.Context) error {
	_, err := race(ctx, s.timeouts.Item, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, s.repo.Ping(ctx)
	})
	return err
}

// EnsureImageFields は取得カラムにimage_urlとimageが含まれるようにする。
// 空（全カラム）の場合はそのまま返す。
func EnsureImageFields(fields []string) []string {
	if len(fields) == 0 {
		return fields
	}

	out := make([]string, len(fields), len(fields)+2)
	copy(out, fields)
	for _, required := range []string{"image_url", "image"} {
		found := false
		for _, f := range fields {
			if f == required {
				found = true
				break
			}
		}
		if !found {
			out = append(out, required)
		}
	}
	return out
}

// toItems はレコードをContentItemに変換し、画像URLを検証する。
func toItems(records []model.ContentRecord) []model.ContentItem {
	items := make([]model.ContentItem, 0, len(records))
	for i := range records {
		items = append(items, content.SanitizeImage(records[i].ToItem()))
	}
	return items
}

// race はfnをbudgetのタイムアウトと競争させる。
// タイムアウト時はfnに渡したコンテキストをキャンセルし、fnの終了を待たずにErrTimeoutを返す。
func race[T any](ctx context.Context, budget time.Duration, fn func(ctx context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	type result struct {
		v   T
		err error
	}
	done := make(chan result, 1)
	go func() {
		v, err := fn(ctx)
		done <- result{v: v, err: err}
	}()

	select {
	case r := <-done:
		return r.v, r.err
	case <-ctx.Done():
		var zero T
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return zero, fmt.Errorf("%w after %s", ErrTimeout, budget)
		}
		return zero, ctx.Err()
	}
}
