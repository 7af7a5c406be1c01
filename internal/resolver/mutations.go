package resolver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hitoshi/citycontent/internal/localstore"
	"github.com/hitoshi/citycontent/internal/model"
	"github.com/hitoshi/citycontent/internal/repository"
)

// ErrInvalidContent は入力が不正な場合のエラー。
var ErrInvalidContent = errors.New("resolver: invalid content")

// Mutation は変更操作の結果。
// Degradedがtrueの場合、リモートストアへの書き込みに失敗しローカルストアにのみ反映されている。
type Mutation struct {
	Item     *model.ContentItem
	Degraded bool
}

// Create はコンテンツを作成する。
func (e *Engine) Create(ctx context.Context, item model.ContentItem) (Mutation, error) {
	if err := validate(item); err != nil {
		return Mutation{}, err
	}

	created, err := e.remote.Create(ctx, item)
	if err == nil {
		e.afterRemoteMutation("create", created.ID)
		return Mutation{Item: created}, nil
	}

	e.logger.Warn("リモートストアへの作成に失敗したためローカルストアに書き込みます",
		slog.String("error", err.Error()),
	)
	local, lerr := e.local.Create(item)
	if lerr != nil {
		return Mutation{}, fmt.Errorf("コンテンツの作成に失敗しました: %w", errors.Join(err, lerr))
	}
	e.afterLocalMutation("create", local.ID)
	return Mutation{Item: local, Degraded: true}, nil
}

// Update はコンテンツを更新する。
func (e *Engine) Update(ctx context.Context, item model.ContentItem) (Mutation, error) {
	if item.ID == "" {
		return Mutation{}, fmt.Errorf("%w: id is required", ErrInvalidContent)
	}
	if err := validate(item); err != nil {
		return Mutation{}, err
	}

	updated, err := e.remote.Update(ctx, item)
	if err == nil {
		e.afterRemoteMutation("update", updated.ID)
		return Mutation{Item: updated}, nil
	}
	if errors.Is(err, repository.ErrNotFound) {
		return Mutation{}, ErrNotFound
	}

	e.logger.Warn("リモートストアの更新に失敗したためローカルストアに書き込みます",
		slog.String("id", item.ID),
		slog.String("error", err.Error()),
	)
	local, lerr := e.local.Update(item)
	if errors.Is(lerr, localstore.ErrNotFound) {
		return Mutation{}, ErrNotFound
	}
	if lerr != nil {
		return Mutation{}, fmt.Errorf("コンテンツの更新に失敗しました: %w", errors.Join(err, lerr))
	}
	e.afterLocalMutation("update", local.ID)
	return Mutation{Item: local, Degraded: true}, nil
}

// Delete はコンテンツを削除する。
func (e *Engine) Delete(ctx context.Context, id string) (Mutation, error) {
	if id == "" {
		return Mutation{}, fmt.Errorf("%w: id is required", ErrInvalidContent)
	}

	err := e.remote.Delete(ctx, id)
	if err == nil {
		e.afterRemoteMutation("delete", id)
		return Mutation{}, nil
	}
	if errors.Is(err, repository.ErrNotFound) {
		return Mutation{}, ErrNotFound
	}

	e.logger.Warn("リモートストアからの削除に失敗したためローカルストアから削除します",
		slog.String("id", id),
		slog.String("error", err.Error()),
	)
	lerr := e.local.Delete(id)
	if errors.Is(lerr, localstore.ErrNotFound) {
		return Mutation{}, ErrNotFound
	}
	if lerr != nil {
		return Mutation{}, fmt.Errorf("コンテンツの削除に失敗しました: %w", errors.Join(err, lerr))
	}
	e.afterLocalMutation("delete", id)
	return Mutation{Degraded: true}, nil
}

// Sync はリモートストアの全件でローカルストアとスナップショットを同期的に書き直す。
func (e *Engine) Sync(ctx context.Context) error {
	if err := e.refresher.Resync(ctx); err != nil {
		return err
	}
	e.invalidate()
	return nil
}

// Invalidate はメモリキャッシュを破棄する。
func (e *Engine) Invalidate() {
	e.invalidate()
}

// afterRemoteMutation はリモートへの変更成功後にキャッシュを同期的に破棄し、
// ローカルストアとスナップショットの再同期をバックグラウンドに積む。
func (e *Engine) afterRemoteMutation(action, id string) {
	e.invalidate()
	if !e.refresher.ScheduleResync() {
		e.logger.Warn("再同期タスクを積めませんでした",
			slog.String("action", action),
			slog.String("id", id),
		)
	}
	e.logger.Info("コンテンツを変更しました",
		slog.String("action", action),
		slog.String("id", id),
	)
}

// afterLocalMutation はローカルストアのみへの変更後にキャッシュを破棄する。
// リモートとローカルは次回の再同期まで乖離する。
func (e *Engine) afterLocalMutation(action, id string) {
	e.invalidate()
	e.logger.Warn("コンテンツをローカルストアのみで変更しました",
		slog.String("action", action),
		slog.String("id", id),
	)
}

func (e *Engine) invalidate() {
	e.cache.InvalidateAll()
}

func validate(item model.ContentItem) error {
	if strings.TrimSpace(item.Title) == "" {
		return fmt.Errorf("%w: title is required", ErrInvalidContent)
	}
	switch {
	case item.Type == "",
		strings.EqualFold(string(item.Type), string(model.ContentTypeArticle)),
		strings.EqualFold(string(item.Type), string(model.ContentTypeEvent)):
	default:
		return fmt.Errorf("%w: unknown type %q", ErrInvalidContent, item.Type)
	}
	return nil
}
