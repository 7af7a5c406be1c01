package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/citycontent/internal/content"
	"github.com/hitoshi/citycontent/internal/middleware"
	"github.com/hitoshi/citycontent/internal/model"
	"github.com/hitoshi/citycontent/internal/resolver"
)

// maxRequestBodySize は管理APIのリクエストボディ上限（1MB）。
const maxRequestBodySize = 1 << 20

// ContentReader はコンテンツ読み取りハンドラーが必要とするインターフェース。
// 読み取りはエラーを返さず、どの層が応答したかをResultに含める。
type ContentReader interface {
	FetchAll(ctx context.Context) resolver.Result
	FetchHomepage(ctx context.Context) resolver.Result
	FetchCityArticles(ctx context.Context, city string) resolver.Result
	FetchEvents(ctx context.Context) resolver.Result
	FetchUpcomingEvents(ctx context.Context) resolver.Result
	FetchByCategory(ctx context.Context, category string) resolver.Result
	FetchFeatured(ctx context.Context, surface model.Surface) resolver.Result
	FetchByID(ctx context.Context, id string) resolver.Result
	FetchBySlug(ctx context.Context, slug string) resolver.Result
}

// ContentWriter はコンテンツ変更ハンドラーが必要とするインターフェース。
type ContentWriter interface {
	Create(ctx context.Context, item model.ContentItem) (resolver.Mutation, error)
	Update(ctx context.Context, item model.ContentItem) (resolver.Mutation, error)
	Delete(ctx context.Context, id string) (resolver.Mutation, error)
	Sync(ctx context.Context) error
}

// ContentHandler はコンテンツAPIのHTTPハンドラー。
type ContentHandler struct {
	reader ContentReader
	writer ContentWriter
}

// NewContentHandler はContentHandlerを生成する。
func NewContentHandler(reader ContentReader, writer ContentWriter) *ContentHandler {
	return &ContentHandler{
		reader: reader,
		writer: writer,
	}
}

// --- レスポンス型 ---

// contentListResponse はコンテンツ一覧のレスポンス。
type contentListResponse struct {
	Items  []model.ContentItem `json:"items"`
	Count  int                 `json:"count"`
	Source string              `json:"source"`
}

// mutationResponse は変更操作のレスポンス。
// degradedがtrueの場合はローカルストアにのみ反映されている。
type mutationResponse struct {
	Item     *model.ContentItem `json:"item,omitempty"`
	ID       string             `json:"id,omitempty"`
	Degraded bool               `json:"degraded"`
}

// syncResponse は同期要求のレスポンス。
type syncResponse struct {
	Status string `json:"status"`
}

// ListAll は全コンテンツを返す。
// GET /api/content
func (h *ContentHandler) ListAll(w http.ResponseWriter, r *http.Request) {
	writeList(w, h.reader.FetchAll(r.Context()))
}

// Homepage はトップページ用の一覧を返す。
// GET /api/homepage
func (h *ContentHandler) Homepage(w http.ResponseWriter, r *http.Request) {
	writeList(w, h.reader.FetchHomepage(r.Context()))
}

// CityArticles は都市ごとの記事一覧を返す。
// GET /api/cities/{city}/articles
func (h *ContentHandler) CityArticles(w http.ResponseWriter, r *http.Request) {
	writeList(w, h.reader.FetchCityArticles(r.Context(), chi.URLParam(r, "city")))
}

// Events はイベント一覧を返す。
// GET /api/events
func (h *ContentHandler) Events(w http.ResponseWriter, r *http.Request) {
	writeList(w, h.reader.FetchEvents(r.Context()))
}

// UpcomingEvents は今日以降のイベント一覧を返す。
// GET /api/events/upcoming
func (h *ContentHandler) UpcomingEvents(w http.ResponseWriter, r *http.Request) {
	writeList(w, h.reader.FetchUpcomingEvents(r.Context()))
}

// ByCategory はカテゴリ別の一覧を返す。
// GET /api/categories/{category}
func (h *ContentHandler) ByCategory(w http.ResponseWriter, r *http.Request) {
	writeList(w, h.reader.FetchByCategory(r.Context(), chi.URLParam(r, "category")))
}

// Featured は掲載面ごとのトレンド・特集一覧を返す。
// GET /api/featured/{surface}
func (h *ContentHandler) Featured(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "surface")
	surface, ok := model.ParseSurface(raw)
	if !ok {
		middleware.WriteAPIError(w, model.NewInvalidSurfaceError(raw))
		return
	}
	writeList(w, h.reader.FetchFeatured(r.Context(), surface))
}

// GetByID はIDでコンテンツを返す。
// GET /api/content/{id}
func (h *ContentHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	writeItem(w, h.reader.FetchByID(r.Context(), id), id)
}

// GetBySlug はスラッグでコンテンツを返す。
// GET /api/content/slug/{slug}
func (h *ContentHandler) GetBySlug(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")
	writeItem(w, h.reader.FetchBySlug(r.Context(), slug), slug)
}

// Create はコンテンツを作成する。
// POST /api/admin/content
func (h *ContentHandler) Create(w http.ResponseWriter, r *http.Request) {
	var item model.ContentItem
	if !decodeBody(w, r, &item) {
		return
	}

	m, err := h.writer.Create(r.Context(), item)
	if err != nil {
		handleServiceError(w, err, "")
		return
	}

	writeJSON(w, http.StatusCreated, mutationResponse{Item: withSlug(m.Item), Degraded: m.Degraded})
}

// Update はコンテンツを更新する。IDはURLの値を優先する。
// PUT /api/admin/content/{id}
func (h *ContentHandler) Update(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var item model.ContentItem
	if !decodeBody(w, r, &item) {
		return
	}
	item.ID = id

	m, err := h.writer.Update(r.Context(), item)
	if err != nil {
		handleServiceError(w, err, id)
		return
	}

	writeJSON(w, http.StatusOK, mutationResponse{Item: withSlug(m.Item), Degraded: m.Degraded})
}

// Delete はコンテンツを削除する。
// DELETE /api/admin/content/{id}
func (h *ContentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	m, err := h.writer.Delete(r.Context(), id)
	if err != nil {
		handleServiceError(w, err, id)
		return
	}

	writeJSON(w, http.StatusOK, mutationResponse{ID: id, Degraded: m.Degraded})
}

// Sync はリモートストアからローカルストアとスナップショットを同期的に書き直す。
// POST /api/admin/sync
func (h *ContentHandler) Sync(w http.ResponseWriter, r *http.Request) {
	if err := h.writer.Sync(r.Context()); err != nil {
		slog.Error("sync failed", slog.String("error", err.Error()))
		middleware.WriteAPIError(w, model.NewSyncFailedError())
		return
	}
	writeJSON(w, http.StatusOK, syncResponse{Status: "synced"})
}

// --- ヘルパー ---

// writeList は一覧結果を書き込む。どの層もヒットしなくても空配列の200を返す。
// slugは保存値を持たないため、応答のたびにタイトルから導出する。
func writeList(w http.ResponseWriter, res resolver.Result) {
	items := content.WithSlugs(res.Items)
	w.Header().Set(middleware.ContentSourceHeader, string(res.Source))
	writeJSON(w, http.StatusOK, contentListResponse{
		Items:  items,
		Count:  len(items),
		Source: string(res.Source),
	})
}

// writeItem は単一取得の結果を書き込む。ヒットしなければ404を返す。
func writeItem(w http.ResponseWriter, res resolver.Result, key string) {
	w.Header().Set(middleware.ContentSourceHeader, string(res.Source))
	item, ok := res.First()
	if !ok {
		middleware.WriteAPIError(w, model.NewContentNotFoundError(key))
		return
	}
	item.Slug = content.Slug(item)
	writeJSON(w, http.StatusOK, item)
}

func withSlug(item *model.ContentItem) *model.ContentItem {
	if item == nil {
		return nil
	}
	out := *item
	out.Slug = content.Slug(&out)
	return &out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// decodeBody はリクエストボディをJSONとして読み込む。失敗時は400を書き込みfalseを返す。
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		middleware.WriteAPIError(w, model.NewInvalidRequestError())
		return false
	}
	return true
}

// handleServiceError は変更操作のエラーを適切なHTTPステータスコードに変換する。
func handleServiceError(w http.ResponseWriter, err error, id string) {
	switch {
	case errors.Is(err, resolver.ErrNotFound):
		middleware.WriteAPIError(w, model.NewContentNotFoundError(id))
	case errors.Is(err, resolver.ErrInvalidContent):
		middleware.WriteAPIError(w, model.NewInvalidContentError(err.Error()))
	default:
		slog.Error("internal server error", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
	}
}
