// Package resolver はコンテンツ読み取りの解決エンジンを提供する。
// メモリキャッシュ、リモートストア、スナップショット、ローカルJSONストアの順に試し、
// 読み取りの失敗を呼び出し側へ返さない。
package resolver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hitoshi/citycontent/internal/content"
	"github.com/hitoshi/citycontent/internal/inflight"
	"github.com/hitoshi/citycontent/internal/memcache"
	"github.com/hitoshi/citycontent/internal/metrics"
	"github.com/hitoshi/citycontent/internal/model"
	"github.com/hitoshi/citycontent/internal/remote"
)

// RemoteSource はリモートストアアダプターのインターフェース。
type RemoteSource interface {
	FetchCollection(ctx context.Context, q model.ContentQuery, budget time.Duration) ([]model.ContentItem, error)
	FetchByID(ctx context.Context, id string) (*model.ContentItem, error)
	Create(ctx context.Context, item model.ContentItem) (*model.ContentItem, error)
	Update(ctx context.Context, item model.ContentItem) (*model.ContentItem, error)
	Delete(ctx context.Context, id string) error
	Timeouts() remote.Timeouts
}

// SnapshotReader はスナップショットファイルの読み取りインターフェース。
type SnapshotReader interface {
	Read() ([]model.ContentItem, error)
}

// LocalStore はローカルJSONストアのインターフェース。
type LocalStore interface {
	ReadAll() ([]model.ContentItem, error)
	ReadByID(id string) (*model.ContentItem, error)
	Create(item model.ContentItem) (*model.ContentItem, error)
	Update(item model.ContentItem) (*model.ContentItem, error)
	Delete(id string) error
}

// Refresher はバックグラウンド書き込みのスケジューラ。
type Refresher interface {
	ScheduleSnapshot(items []model.ContentItem) bool
	ScheduleResync() bool
	Resync(ctx context.Context) error
}

// Deps はEngineの依存関係。
type Deps struct {
	Remote    RemoteSource
	Cache     *memcache.Store
	Snapshot  SnapshotReader
	Local     LocalStore
	Refresher Refresher
	Logger    *slog.Logger
	Metrics   metrics.MetricsCollector
	Clock     func() time.Time
}

// Engine はコンテンツ読み取りの解決エンジン。
type Engine struct {
	remote    RemoteSource
	cache     *memcache.Store
	group     *inflight.Group[[]model.ContentItem]
	itemGroup *inflight.Group[*model.ContentItem]
	snapshot  SnapshotReader
	local     LocalStore
	refresher Refresher
	logger    *slog.Logger
	metrics   metrics.MetricsCollector
	now       func() time.Time
}

// NewEngine はEngineを生成する。
func NewEngine(deps Deps) *Engine {
	mc := deps.Metrics
	if mc == nil {
		mc = metrics.Nop{}
	}
	now := deps.Clock
	if now == nil {
		now = time.Now
	}
	return &Engine{
		remote:    deps.Remote,
		cache:     deps.Cache,
		group:     inflight.New[[]model.ContentItem](),
		itemGroup: inflight.New[*model.ContentItem](),
		snapshot:  deps.Snapshot,
		local:     deps.Local,
		refresher: deps.Refresher,
		logger:    deps.Logger,
		metrics:   mc,
		now:       now,
	}
}

// ErrNotFound はどの層にも対象が存在しない場合のエラー。
var ErrNotFound = errors.New("resolver: content not found")

// キャッシュキーと操作名。
const (
	opAll      = "all"
	opHomepage = "homepage"
	opByID     = "by_id"
	opBySlug   = "by_slug"
	opCity     = "city"
	opEvents   = "events"
	opCategory = "category"
	opFeatured = "featured"
)

// collectionRequest は一覧取得1件分の条件。
type collectionRequest struct {
	op     string
	key    string
	query  model.ContentQuery
	budget time.Duration
	// post はフィルタ後の一覧に適用する追加の絞り込みと並び替え。nilは何もしない。
	post func(items []model.ContentItem) []model.ContentItem
	// full はクエリが全件取得であることを示す。成功時にスナップショットを書き直す
	full bool
}

// FetchAll は全コンテンツを取得する。
func (e *Engine) FetchAll(ctx context.Context) Result {
	return e.resolveCollection(ctx, collectionRequest{
		op:     opAll,
		key:    opAll,
		query:  model.ContentQuery{SortBy: "created_at", Descending: true},
		budget: e.remote.Timeouts().Collection,
		full:   true,
	})
}

// FetchHomepage はトップページ用に下書きを除いたコンテンツを日付の新しい順で返す。
// 時間予算は最も長い。
func (e *Engine) FetchHomepage(ctx context.Context) Result {
	return e.resolveCollection(ctx, collectionRequest{
		op:     opHomepage,
		key:    opHomepage,
		query:  model.ContentQuery{SortBy: "created_at", Descending: true},
		budget: e.remote.Timeouts().Homepage,
		post: func(items []model.ContentItem) []model.ContentItem {
			items = excludeDrafts(items)
			content.SortByDateDesc(items)
			return items
		},
		full: true,
	})
}

// FetchCityArticles は都市に属する記事（イベント以外）を日付の新しい順で返す。
func (e *Engine) FetchCityArticles(ctx context.Context, city string) Result {
	city = strings.TrimSpace(city)
	return e.resolveCollection(ctx, collectionRequest{
		op:     opCity,
		key:    "city:" + strings.ToLower(city),
		query:  model.ContentQuery{Filter: model.ContentFilter{City: city}, SortBy: "created_at", Descending: true},
		budget: e.remote.Timeouts().Collection,
		post: func(items []model.ContentItem) []model.ContentItem {
			out := items[:0]
			for i := range items {
				if !items[i].IsEvent() {
					out = append(out, items[i])
				}
			}
			content.SortByDateDesc(out)
			return out
		},
	})
}

// FetchEvents はイベントを日付の古い順で返す。
func (e *Engine) FetchEvents(ctx context.Context) Result {
	return e.resolveCollection(ctx, collectionRequest{
		op:     opEvents,
		key:    opEvents,
		query:  model.ContentQuery{Filter: model.ContentFilter{Type: model.ContentTypeEvent}, SortBy: "date"},
		budget: e.remote.Timeouts().Collection,
		post: func(items []model.ContentItem) []model.ContentItem {
			content.SortByDateAsc(items)
			return items
		},
	})
}

// FetchUpcomingEvents は開催日が当日以降のイベントを日付の古い順で返す。
// 日付を解釈できないイベントは対象外とし、警告ログを出す。日付が空のイベントはデバッグログのみ。
func (e *Engine) FetchUpcomingEvents(ctx context.Context) Result {
	res := e.FetchEvents(ctx)
	now := e.now()

	upcoming := make([]model.ContentItem, 0, len(res.Items))
	for _, item := range res.Items {
		date, err := content.ParseEventDate(item.Date)
		if errors.Is(err, content.ErrEmptyDate) {
			e.logger.Debug("イベント日付が未設定です", slog.String("id", item.ID))
			continue
		}
		if err != nil {
			e.logger.Warn("イベント日付を解釈できません",
				slog.String("id", item.ID),
				slog.String("date", item.Date),
				slog.String("error", err.Error()),
			)
			continue
		}
		if content.IsUpcoming(date, now) {
			upcoming = append(upcoming, item)
		}
	}

	res.Items = upcoming
	return res
}

// FetchByCategory はカテゴリに属するコンテンツを日付の新しい順で返す。
func (e *Engine) FetchByCategory(ctx context.Context, category string) Result {
	category = strings.TrimSpace(category)
	return e.resolveCollection(ctx, collectionRequest{
		op:     opCategory,
		key:    "category:" + strings.ToLower(category),
		query:  model.ContentQuery{Filter: model.ContentFilter{Category: category}, SortBy: "created_at", Descending: true},
		budget: e.remote.Timeouts().Collection,
		post:   sortDesc,
	})
}

// FetchFeatured は掲載面のフラグが立っているコンテンツを日付の新しい順で返す。
func (e *Engine) FetchFeatured(ctx context.Context, surface model.Surface) Result {
	return e.resolveCollection(ctx, collectionRequest{
		op:     opFeatured,
		key:    "surface:" + string(surface),
		query:  model.ContentQuery{Filter: model.ContentFilter{Surface: surface}, SortBy: "created_at", Descending: true},
		budget: e.remote.Timeouts().Collection,
		post:   sortDesc,
	})
}

// FetchByID はIDでコンテンツを取得する。どの層にも存在しない場合はMissを返す。
func (e *Engine) FetchByID(ctx context.Context, id string) Result {
	return Chain(ctx, opByID, e.logger, e.metrics,
		Tier{Source: SourceCache, Fetch: func(context.Context) Result {
			if item, ok := e.cache.GetItem(id); ok {
				return Hit(SourceCache, []model.ContentItem{item})
			}
			return Miss(SourceCache, "not cached")
		}},
		Tier{Source: SourceRemote, Fetch: func(ctx context.Context) Result {
			// 世代はキャッシュが持ち、変更前に始まった取得の結果は共有も格納もしない
			gen := e.cache.Generation()
			start := time.Now()
			item, shared, err := e.itemGroup.Do(ctx, dedupKey(gen, "id:"+id), func(ctx context.Context) (*model.ContentItem, error) {
				return e.remote.FetchByID(ctx, id)
			})
			e.observeRemote(opByID, start, shared, err)
			if err != nil {
				return Miss(SourceRemote, err.Error())
			}
			if item == nil {
				return Miss(SourceRemote, "not found")
			}
			e.cache.PutItem(gen, *item, 0)
			return Hit(SourceRemote, []model.ContentItem{*item})
		}},
		Tier{Source: SourceSnapshot, Fetch: func(context.Context) Result {
			items, err := e.snapshot.Read()
			if err != nil {
				return Miss(SourceSnapshot, err.Error())
			}
			for i := range items {
				if items[i].ID == id {
					return Hit(SourceSnapshot, []model.ContentItem{items[i]})
				}
			}
			return Miss(SourceSnapshot, "not found")
		}},
		Tier{Source: SourceLocal, Fetch: func(context.Context) Result {
			item, err := e.local.ReadByID(id)
			if err != nil {
				return Miss(SourceLocal, err.Error())
			}
			if item == nil {
				return Miss(SourceLocal, "not found")
			}
			return Hit(SourceLocal, []model.ContentItem{*item})
		}},
	)
}

// FetchBySlug はスラッグでコンテンツを取得する。
// 全件を解決ポリシーで取得し、導出スラッグの完全一致、次に曖昧一致で探す。
func (e *Engine) FetchBySlug(ctx context.Context, slug string) Result {
	want := content.Normalize(slug)
	if want == "" {
		return Miss(SourceNone, "empty slug")
	}

	if item, ok := e.cache.GetItemBySlug(want); ok {
		e.metrics.RecordTierResult(opBySlug, string(SourceCache), true)
		return Hit(SourceCache, []model.ContentItem{item})
	}

	all := e.FetchAll(ctx)
	item, fuzzy := content.FindBySlug(all.Items, want)
	e.metrics.RecordTierResult(opBySlug, string(all.Source), item != nil)
	if item == nil {
		return Miss(all.Source, "slug not found")
	}
	if fuzzy {
		e.logger.Info("スラッグを曖昧一致で解決しました",
			slog.String("slug", want),
			slog.String("id", item.ID),
			slog.String("matched_slug", content.Slug(item)),
		)
	}
	return Hit(all.Source, []model.ContentItem{*item})
}

// resolveCollection は一覧取得の解決ポリシーを適用する。
func (e *Engine) resolveCollection(ctx context.Context, req collectionRequest) Result {
	shape := func(items []model.ContentItem) []model.ContentItem {
		items = content.Filter(items, req.query.Filter)
		if req.post != nil {
			items = req.post(items)
		}
		return items
	}

	return Chain(ctx, req.op, e.logger, e.metrics,
		Tier{Source: SourceCache, Fetch: func(context.Context) Result {
			if items, ok := e.cache.GetCollection(req.key); ok {
				return Hit(SourceCache, items)
			}
			return Miss(SourceCache, "not cached")
		}},
		Tier{Source: SourceRemote, Fetch: func(ctx context.Context) Result {
			return e.remoteTier(ctx, req, shape)
		}},
		Tier{Source: SourceSnapshot, Fetch: func(context.Context) Result {
			items, err := e.snapshot.Read()
			if err != nil {
				return Miss(SourceSnapshot, err.Error())
			}
			if items = shape(items); len(items) == 0 {
				return Miss(SourceSnapshot, "empty")
			}
			return Hit(SourceSnapshot, items)
		}},
		Tier{Source: SourceLocal, Fetch: func(context.Context) Result {
			items, err := e.local.ReadAll()
			if err != nil {
				return Miss(SourceLocal, err.Error())
			}
			if items = shape(items); len(items) == 0 {
				return Miss(SourceLocal, "empty")
			}
			return Hit(SourceLocal, items)
		}},
	)
}

// remoteTier はリモートストアから取得し、成功時にキャッシュとスナップショットを更新する。
func (e *Engine) remoteTier(ctx context.Context, req collectionRequest, shape func([]model.ContentItem) []model.ContentItem) Result {
	gen := e.cache.Generation()
	start := time.Now()
	items, shared, err := e.group.Do(ctx, dedupKey(gen, req.key), func(ctx context.Context) ([]model.ContentItem, error) {
		items, err := e.remote.FetchCollection(ctx, req.query, req.budget)
		// スナップショットの書き直しは実際にリモートへ問い合わせた1回だけ積む
		if err == nil && len(items) > 0 && req.full && e.cache.Generation() == gen {
			e.refresher.ScheduleSnapshot(append([]model.ContentItem(nil), items...))
		}
		return items, err
	})
	e.observeRemote(req.op, start, shared, err)
	if err != nil {
		return Miss(SourceRemote, err.Error())
	}
	if len(items) == 0 {
		return Miss(SourceRemote, "empty")
	}

	// shapeは新しいスライスを返すため、共有された結果そのものは変更しない
	shaped := shape(items)
	if len(shaped) == 0 {
		return Miss(SourceRemote, "empty after filter")
	}
	// 変更操作を挟んだ場合は古い結果をキャッシュに残さない
	e.cache.PutCollection(gen, req.key, shaped, 0)
	return Hit(SourceRemote, shaped)
}

func (e *Engine) observeRemote(op string, start time.Time, shared bool, err error) {
	e.metrics.RecordRemoteLatency(op, time.Since(start))
	if shared {
		e.metrics.RecordSharedFetch(op)
	}
	if err != nil {
		reason := "error"
		switch {
		case errors.Is(err, remote.ErrTimeout):
			reason = "timeout"
		case errors.Is(err, context.Canceled):
			reason = "canceled"
		}
		e.metrics.RecordRemoteFailure(op, reason)
	}
}

func dedupKey(gen uint64, key string) string {
	return fmt.Sprintf("%d|%s", gen, key)
}

func sortDesc(items []model.ContentItem) []model.ContentItem {
	content.SortByDateDesc(items)
	return items
}

// excludeDrafts は下書きを除く。statusが空のものは公開扱いとする。
func excludeDrafts(items []model.ContentItem) []model.ContentItem {
	out := items[:0]
	for i := range items {
		if !strings.EqualFold(string(items[i].Status), string(model.ContentStatusDraft)) {
			out = append(out, items[i])
		}
	}
	return out
}
