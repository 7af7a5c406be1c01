package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/citycontent/internal/model"
	"github.com/hitoshi/citycontent/internal/resolver"
)

// --- モック定義 ---

// mockReader はContentReaderのモック実装。未設定の操作はどの層もヒットしなかった結果を返す。
type mockReader struct {
	fetchAllFn      func(ctx context.Context) resolver.Result
	fetchHomepageFn func(ctx context.Context) resolver.Result
	fetchCityFn     func(ctx context.Context, city string) resolver.Result
	fetchEventsFn   func(ctx context.Context) resolver.Result
	fetchUpcomingFn func(ctx context.Context) resolver.Result
	fetchCategoryFn func(ctx context.Context, category string) resolver.Result
	fetchFeaturedFn func(ctx context.Context, surface model.Surface) resolver.Result
	fetchByIDFn     func(ctx context.Context, id string) resolver.Result
	fetchBySlugFn   func(ctx context.Context, slug string) resolver.Result
}

func none() resolver.Result {
	return resolver.Miss(resolver.SourceNone, "no tier")
}

func (m *mockReader) FetchAll(ctx context.Context) resolver.Result {
	if m.fetchAllFn != nil {
		return m.fetchAllFn(ctx)
	}
	return none()
}

func (m *mockReader) FetchHomepage(ctx context.Context) resolver.Result {
	if m.fetchHomepageFn != nil {
		return m.fetchHomepageFn(ctx)
	}
	return none()
}

func (m *mockReader) FetchCityArticles(ctx context.Context, city string) resolver.Result {
	if m.fetchCityFn != nil {
		return m.fetchCityFn(ctx, city)
	}
	return none()
}

func (m *mockReader) FetchEvents(ctx context.Context) resolver.Result {
	if m.fetchEventsFn != nil {
		return m.fetchEventsFn(ctx)
	}
	return none()
}

func (m *mockReader) FetchUpcomingEvents(ctx context.Context) resolver.Result {
	if m.fetchUpcomingFn != nil {
		return m.fetchUpcomingFn(ctx)
	}
	return none()
}

func (m *mockReader) FetchByCategory(ctx context.Context, category string) resolver.Result {
	if m.fetchCategoryFn != nil {
		return m.fetchCategoryFn(ctx, category)
	}
	return none()
}

func (m *mockReader) FetchFeatured(ctx context.Context, surface model.Surface) resolver.Result {
	if m.fetchFeaturedFn != nil {
		return m.fetchFeaturedFn(ctx, surface)
	}
	return none()
}

func (m *mockReader) FetchByID(ctx context.Context, id string) resolver.Result {
	if m.fetchByIDFn != nil {
		return m.fetchByIDFn(ctx, id)
	}
	return none()
}

func (m *mockReader) FetchBySlug(ctx context.Context, slug string) resolver.Result {
	if m.fetchBySlugFn != nil {
		return m.fetchBySlugFn(ctx, slug)
	}
	return none()
}

// mockWriter はContentWriterのモック実装。
type mockWriter struct {
	createFn func(ctx context.Context, item model.ContentItem) (resolver.Mutation, error)
	updateFn func(ctx context.Context, item model.ContentItem) (resolver.Mutation, error)
	deleteFn func(ctx context.Context, id string) (resolver.Mutation, error)
	syncFn   func(ctx context.Context) error
}

func (m *mockWriter) Create(ctx context.Context, item model.ContentItem) (resolver.Mutation, error) {
	if m.createFn != nil {
		return m.createFn(ctx, item)
	}
	return resolver.Mutation{Item: &item}, nil
}

func (m *mockWriter) Update(ctx context.Context, item model.ContentItem) (resolver.Mutation, error) {
	if m.updateFn != nil {
		return m.updateFn(ctx, item)
	}
	return resolver.Mutation{Item: &item}, nil
}

func (m *mockWriter) Delete(ctx context.Context, id string) (resolver.Mutation, error) {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, id)
	}
	return resolver.Mutation{}, nil
}

func (m *mockWriter) Sync(ctx context.Context) error {
	if m.syncFn != nil {
		return m.syncFn(ctx)
	}
	return nil
}

// --- ヘルパー ---

// withChiURLParam はテスト用にchiのURLパラメータを注入するヘルパー。
func withChiURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	ctx := context.WithValue(r.Context(), chi.RouteCtxKey, rctx)
	return r.WithContext(ctx)
}

// parseAPIErrorResponse はレスポンスボディからAPIErrorレスポンスをパースするヘルパー。
func parseAPIErrorResponse(t *testing.T, w *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var result map[string]string
	if err := json.NewDecoder(w.Body).Decode(&result); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}
	return result
}

func decodeList(t *testing.T, w *httptest.ResponseRecorder) contentListResponse {
	t.Helper()
	var result contentListResponse
	if err := json.NewDecoder(w.Body).Decode(&result); err != nil {
		t.Fatalf("failed to decode list response: %v", err)
	}
	return result
}

func sampleItems(n int) []model.ContentItem {
	items := make([]model.ContentItem, n)
	for i := range items {
		items[i] = model.ContentItem{
			ID:    fmt.Sprintf("c-%d", i+1),
			Title: fmt.Sprintf("Edmonton Guide %d", i+1),
			Type:  model.ContentTypeArticle,
		}
	}
	return items
}

// --- 一覧取得テスト ---

func TestContentHandler_ListAll_ReturnsItemsAndSource(t *testing.T) {
	reader := &mockReader{
		fetchAllFn: func(ctx context.Context) resolver.Result {
			return resolver.Hit(resolver.SourceSnapshot, sampleItems(3))
		},
	}
	h := NewContentHandler(reader, &mockWriter{})

	req := httptest.NewRequest(http.MethodGet, "/api/content", nil)
	w := httptest.NewRecorder()

	h.ListAll(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	if got := resp.Header.Get("X-Content-Source"); got != "snapshot" {
		t.Errorf("X-Content-Source = %q, want %q", got, "snapshot")
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want %q", ct, "application/json")
	}

	body := decodeList(t, w)
	if body.Count != 3 || len(body.Items) != 3 {
		t.Errorf("count = %d, items = %d, want 3", body.Count, len(body.Items))
	}
	if body.Source != "snapshot" {
		t.Errorf("source = %q, want %q", body.Source, "snapshot")
	}
	// slugはタイトルから導出されて応答に含まれる
	if len(body.Items) > 0 && body.Items[0].Slug != "edmonton-guide-1" {
		t.Errorf("items[0].slug = %q, want %q", body.Items[0].Slug, "edmonton-guide-1")
	}
}

// TestContentHandler_ListAll_AllTiersMiss_ReturnsEmptyArray は
// どの層もヒットしない場合でもエラーではなく空配列が返ることを検証する。
func TestContentHandler_ListAll_AllTiersMiss_ReturnsEmptyArray(t *testing.T) {
	h := NewContentHandler(&mockReader{}, &mockWriter{})

	req := httptest.NewRequest(http.MethodGet, "/api/content", nil)
	w := httptest.NewRecorder()

	h.ListAll(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if got := w.Header().Get("X-Content-Source"); got != "none" {
		t.Errorf("X-Content-Source = %q, want %q", got, "none")
	}

	var raw map[string]json.RawMessage
	if err := json.NewDecoder(w.Body).Decode(&raw); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if string(raw["items"]) != "[]" {
		t.Errorf("items = %s, want []", raw["items"])
	}
}

func TestContentHandler_CityArticles_PassesCity(t *testing.T) {
	var gotCity string
	reader := &mockReader{
		fetchCityFn: func(ctx context.Context, city string) resolver.Result {
			gotCity = city
			return resolver.Hit(resolver.SourceRemote, sampleItems(1))
		},
	}
	h := NewContentHandler(reader, &mockWriter{})

	req := httptest.NewRequest(http.MethodGet, "/api/cities/calgary/articles", nil)
	req = withChiURLParam(req, "city", "calgary")
	w := httptest.NewRecorder()

	h.CityArticles(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if gotCity != "calgary" {
		t.Errorf("city = %q, want %q", gotCity, "calgary")
	}
	if got := w.Header().Get("X-Content-Source"); got != "remote" {
		t.Errorf("X-Content-Source = %q, want %q", got, "remote")
	}
}

func TestContentHandler_ByCategory_PassesCategory(t *testing.T) {
	var gotCategory string
	reader := &mockReader{
		fetchCategoryFn: func(ctx context.Context, category string) resolver.Result {
			gotCategory = category
			return resolver.Hit(resolver.SourceCache, nil)
		},
	}
	h := NewContentHandler(reader, &mockWriter{})

	req := httptest.NewRequest(http.MethodGet, "/api/categories/food-drink", nil)
	req = withChiURLParam(req, "category", "food-drink")
	w := httptest.NewRecorder()

	h.ByCategory(w, req)

	if gotCategory != "food-drink" {
		t.Errorf("category = %q, want %q", gotCategory, "food-drink")
	}
	body := decodeList(t, w)
	if body.Count != 0 || body.Items == nil {
		t.Errorf("expected empty non-nil items, got %+v", body)
	}
}

func TestContentHandler_Featured(t *testing.T) {
	tests := []struct {
		name        string
		surface     string
		wantStatus  int
		wantSurface model.Surface
	}{
		{"underscore", "trending_home", http.StatusOK, model.SurfaceTrendingHome},
		{"hyphen", "featured-edmonton", http.StatusOK, model.SurfaceFeaturedEdmonton},
		{"unknown", "trending_vancouver", http.StatusBadRequest, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got model.Surface
			reader := &mockReader{
				fetchFeaturedFn: func(ctx context.Context, surface model.Surface) resolver.Result {
					got = surface
					return resolver.Hit(resolver.SourceCache, sampleItems(2))
				},
			}
			h := NewContentHandler(reader, &mockWriter{})

			req := httptest.NewRequest(http.MethodGet, "/api/featured/"+tt.surface, nil)
			req = withChiURLParam(req, "surface", tt.surface)
			w := httptest.NewRecorder()

			h.Featured(w, req)

			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if tt.wantStatus == http.StatusBadRequest {
				body := parseAPIErrorResponse(t, w)
				if body["code"] != model.ErrCodeInvalidSurface {
					t.Errorf("code = %q, want %q", body["code"], model.ErrCodeInvalidSurface)
				}
				return
			}
			if got != tt.wantSurface {
				t.Errorf("surface = %q, want %q", got, tt.wantSurface)
			}
		})
	}
}

// --- 単一取得テスト ---

func TestContentHandler_GetByID_Found(t *testing.T) {
	reader := &mockReader{
		fetchByIDFn: func(ctx context.Context, id string) resolver.Result {
			return resolver.Hit(resolver.SourceLocal, []model.ContentItem{{ID: id, Title: "Local Only"}})
		},
	}
	h := NewContentHandler(reader, &mockWriter{})

	req := httptest.NewRequest(http.MethodGet, "/api/content/c-9", nil)
	req = withChiURLParam(req, "id", "c-9")
	w := httptest.NewRecorder()

	h.GetByID(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if got := w.Header().Get("X-Content-Source"); got != "local" {
		t.Errorf("X-Content-Source = %q, want %q", got, "local")
	}
	var item model.ContentItem
	if err := json.NewDecoder(w.Body).Decode(&item); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if item.ID != "c-9" || item.Title != "Local Only" {
		t.Errorf("item = %+v", item)
	}
	if item.Slug != "local-only" {
		t.Errorf("slug = %q, want %q", item.Slug, "local-only")
	}
}

func TestContentHandler_GetByID_NotFound_Returns404(t *testing.T) {
	h := NewContentHandler(&mockReader{}, &mockWriter{})

	req := httptest.NewRequest(http.MethodGet, "/api/content/missing", nil)
	req = withChiURLParam(req, "id", "missing")
	w := httptest.NewRecorder()

	h.GetByID(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
	body := parseAPIErrorResponse(t, w)
	if body["code"] != model.ErrCodeContentNotFound {
		t.Errorf("code = %q, want %q", body["code"], model.ErrCodeContentNotFound)
	}
	if body["category"] != "content" {
		t.Errorf("category = %q, want %q", body["category"], "content")
	}
}

func TestContentHandler_GetBySlug(t *testing.T) {
	reader := &mockReader{
		fetchBySlugFn: func(ctx context.Context, slug string) resolver.Result {
			if slug == "best-patios-in-edmonton" {
				return resolver.Hit(resolver.SourceCache, []model.ContentItem{{ID: "c-1", Title: "Best Patios in Edmonton"}})
			}
			return resolver.Miss(resolver.SourceRemote, "slug not found")
		},
	}
	h := NewContentHandler(reader, &mockWriter{})

	req := httptest.NewRequest(http.MethodGet, "/api/content/slug/best-patios-in-edmonton", nil)
	req = withChiURLParam(req, "slug", "best-patios-in-edmonton")
	w := httptest.NewRecorder()
	h.GetBySlug(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	var item model.ContentItem
	if err := json.NewDecoder(w.Body).Decode(&item); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if item.Slug != "best-patios-in-edmonton" {
		t.Errorf("slug = %q, want %q", item.Slug, "best-patios-in-edmonton")
	}

	req = httptest.NewRequest(http.MethodGet, "/api/content/slug/nope", nil)
	req = withChiURLParam(req, "slug", "nope")
	w = httptest.NewRecorder()
	h.GetBySlug(w, req)
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

// --- 変更操作テスト ---

func TestContentHandler_Create_Success(t *testing.T) {
	writer := &mockWriter{
		createFn: func(ctx context.Context, item model.ContentItem) (resolver.Mutation, error) {
			if item.Title != "Winter Festival" {
				t.Errorf("title = %q, want %q", item.Title, "Winter Festival")
			}
			item.ID = "new-id"
			return resolver.Mutation{Item: &item}, nil
		},
	}
	h := NewContentHandler(&mockReader{}, writer)

	body := bytes.NewBufferString(`{"title":"Winter Festival","type":"event","date":"2026-12-01"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/admin/content", body)
	w := httptest.NewRecorder()

	h.Create(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusCreated)
	}
	var resp mutationResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if resp.Item == nil || resp.Item.ID != "new-id" {
		t.Errorf("item = %+v, want id new-id", resp.Item)
	}
	if resp.Degraded {
		t.Error("degraded = true, want false")
	}
}

func TestContentHandler_Create_Degraded(t *testing.T) {
	writer := &mockWriter{
		createFn: func(ctx context.Context, item model.ContentItem) (resolver.Mutation, error) {
			item.ID = "local-id"
			return resolver.Mutation{Item: &item, Degraded: true}, nil
		},
	}
	h := NewContentHandler(&mockReader{}, writer)

	req := httptest.NewRequest(http.MethodPost, "/api/admin/content", bytes.NewBufferString(`{"title":"Offline"}`))
	w := httptest.NewRecorder()

	h.Create(w, req)

	var resp mutationResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if !resp.Degraded {
		t.Error("degraded = false, want true")
	}
}

func TestContentHandler_Create_InvalidJSON_Returns400(t *testing.T) {
	h := NewContentHandler(&mockReader{}, &mockWriter{})

	req := httptest.NewRequest(http.MethodPost, "/api/admin/content", bytes.NewBufferString(`{"title":`))
	w := httptest.NewRecorder()

	h.Create(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
	body := parseAPIErrorResponse(t, w)
	if body["code"] != "INVALID_REQUEST" {
		t.Errorf("code = %q, want %q", body["code"], "INVALID_REQUEST")
	}
}

func TestContentHandler_Create_ValidationError_Returns400(t *testing.T) {
	writer := &mockWriter{
		createFn: func(ctx context.Context, item model.ContentItem) (resolver.Mutation, error) {
			return resolver.Mutation{}, fmt.Errorf("%w: title is required", resolver.ErrInvalidContent)
		},
	}
	h := NewContentHandler(&mockReader{}, writer)

	req := httptest.NewRequest(http.MethodPost, "/api/admin/content", bytes.NewBufferString(`{"title":""}`))
	w := httptest.NewRecorder()

	h.Create(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
	body := parseAPIErrorResponse(t, w)
	if body["code"] != model.ErrCodeInvalidContent {
		t.Errorf("code = %q, want %q", body["code"], model.ErrCodeInvalidContent)
	}
}

func TestContentHandler_Update_UsesURLID(t *testing.T) {
	writer := &mockWriter{
		updateFn: func(ctx context.Context, item model.ContentItem) (resolver.Mutation, error) {
			if item.ID != "c-1" {
				t.Errorf("id = %q, want %q", item.ID, "c-1")
			}
			return resolver.Mutation{Item: &item}, nil
		},
	}
	h := NewContentHandler(&mockReader{}, writer)

	req := httptest.NewRequest(http.MethodPut, "/api/admin/content/c-1", bytes.NewBufferString(`{"id":"other","title":"Renamed"}`))
	req = withChiURLParam(req, "id", "c-1")
	w := httptest.NewRecorder()

	h.Update(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
}

func TestContentHandler_Update_NotFound_Returns404(t *testing.T) {
	writer := &mockWriter{
		updateFn: func(ctx context.Context, item model.ContentItem) (resolver.Mutation, error) {
			return resolver.Mutation{}, resolver.ErrNotFound
		},
	}
	h := NewContentHandler(&mockReader{}, writer)

	req := httptest.NewRequest(http.MethodPut, "/api/admin/content/ghost", bytes.NewBufferString(`{"title":"x"}`))
	req = withChiURLParam(req, "id", "ghost")
	w := httptest.NewRecorder()

	h.Update(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestContentHandler_Delete(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		degraded   bool
		wantStatus int
	}{
		{"remote success", nil, false, http.StatusOK},
		{"degraded local delete", nil, true, http.StatusOK},
		{"not found", resolver.ErrNotFound, false, http.StatusNotFound},
		{"unexpected", errors.New("disk full"), false, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			writer := &mockWriter{
				deleteFn: func(ctx context.Context, id string) (resolver.Mutation, error) {
					return resolver.Mutation{Degraded: tt.degraded}, tt.err
				},
			}
			h := NewContentHandler(&mockReader{}, writer)

			req := httptest.NewRequest(http.MethodDelete, "/api/admin/content/c-1", nil)
			req = withChiURLParam(req, "id", "c-1")
			w := httptest.NewRecorder()

			h.Delete(w, req)

			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if tt.wantStatus != http.StatusOK {
				return
			}
			var resp mutationResponse
			if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
				t.Fatalf("failed to decode: %v", err)
			}
			if resp.ID != "c-1" {
				t.Errorf("id = %q, want %q", resp.ID, "c-1")
			}
			if resp.Degraded != tt.degraded {
				t.Errorf("degraded = %v, want %v", resp.Degraded, tt.degraded)
			}
		})
	}
}

func TestContentHandler_Sync(t *testing.T) {
	h := NewContentHandler(&mockReader{}, &mockWriter{})
	w := httptest.NewRecorder()
	h.Sync(w, httptest.NewRequest(http.MethodPost, "/api/admin/sync", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	failing := NewContentHandler(&mockReader{}, &mockWriter{
		syncFn: func(ctx context.Context) error { return errors.New("remote down") },
	})
	w = httptest.NewRecorder()
	failing.Sync(w, httptest.NewRequest(http.MethodPost, "/api/admin/sync", nil))
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
	body := parseAPIErrorResponse(t, w)
	if body["code"] != model.ErrCodeSyncFailed {
		t.Errorf("code = %q, want %q", body["code"], model.ErrCodeSyncFailed)
	}
}
