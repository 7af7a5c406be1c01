// Package memcache はコンテンツ一覧と個別コンテンツの期限付きメモリキャッシュを提供する。
// プロセスごとに1つ生成し、解決エンジンに参照で渡す。複数プロセス間の整合性は扱わない。
package memcache

import (
	"sync"
	"time"

	"github.com/hitoshi/citycontent/internal/content"
	"github.com/hitoshi/citycontent/internal/model"
)

// Clock は現在時刻を返す関数。テストで差し替える。
type Clock func() time.Time

type collectionEntry struct {
	items     []model.ContentItem
	expiresAt time.Time
}

type itemEntry struct {
	item      model.ContentItem
	expiresAt time.Time
}

// Store は期限付きのメモリキャッシュ。
// 一覧はキー単位で保持し、格納時に含まれる各コンテンツをID・スラッグで索引する。
type Store struct {
	now        Clock
	defaultTTL time.Duration

	mu          sync.RWMutex
	generation  uint64 // InvalidateAllのたびに進む
	collections map[string]collectionEntry
	byID        map[string]itemEntry
	bySlug      map[string]string // slug -> id
}

// New はStoreを生成する。clockがnilの場合はtime.Nowを使う。
func New(clock Clock, defaultTTL time.Duration) *Store {
	if clock == nil {
		clock = time.Now
	}
	return &Store{
		now:         clock,
		defaultTTL:  defaultTTL,
		collections: make(map[string]collectionEntry),
		byID:        make(map[string]itemEntry),
		bySlug:      make(map[string]string),
	}
}

// Generation は現在の世代を返す。
// 取得を始める前に読み、格納時にPutCollection・PutItemへ渡す。
func (s *Store) Generation() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.generation
}

// GetCollection はキーに対応する一覧を返す。期限切れまたは未登録の場合はfalse。
// 返す一覧はコピーなので呼び出し側で変更してよい。
func (s *Store) GetCollection(key string) ([]model.ContentItem, bool) {
	s.mu.RLock()
	entry, ok := s.collections[key]
	s.mu.RUnlock()

	if !ok || !s.now().Before(entry.expiresAt) {
		return nil, false
	}
	return cloneItems(entry.items), true
}

// PutCollection は一覧をキャッシュする。ttlが0以下の場合は既定のTTLを使う。
// genが現在の世代と異なる場合（取得中にInvalidateAllされた場合）は格納せずfalseを返す。
func (s *Store) PutCollection(gen uint64, key string, items []model.ContentItem, ttl time.Duration) bool {
	if ttl <= 0 {
		ttl = s.defaultTTL
	}
	now := s.now()
	expiresAt := now.Add(ttl)

	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.generation {
		return false
	}
	s.collections[key] = collectionEntry{items: cloneItems(items), expiresAt: expiresAt}
	for i := range items {
		s.indexLocked(items[i], now, expiresAt)
	}
	return true
}

// PutItem は個別コンテンツをキャッシュする。世代の扱いはPutCollectionと同じ。
func (s *Store) PutItem(gen uint64, item model.ContentItem, ttl time.Duration) bool {
	if ttl <= 0 {
		ttl = s.defaultTTL
	}
	now := s.now()
	expiresAt := now.Add(ttl)

	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.generation {
		return false
	}
	s.indexLocked(item, now, expiresAt)
	return true
}

// GetItem はIDでコンテンツを返す。期限切れまたは未登録の場合はfalse。
func (s *Store) GetItem(id string) (model.ContentItem, bool) {
	s.mu.RLock()
	entry, ok := s.byID[id]
	s.mu.RUnlock()

	if !ok || !s.now().Before(entry.expiresAt) {
		return model.ContentItem{}, false
	}
	return entry.item, true
}

// GetItemBySlug は導出スラッグの完全一致でコンテンツを返す。
func (s *Store) GetItemBySlug(slug string) (model.ContentItem, bool) {
	s.mu.RLock()
	id, ok := s.bySlug[slug]
	s.mu.RUnlock()
	if !ok {
		return model.ContentItem{}, false
	}
	return s.GetItem(id)
}

// InvalidateAll は全エントリを破棄し、世代を進める。
// 以前の世代で始まった取得結果はこれ以降格納されない。
// リモートへの作成・更新・削除が成功した直後に同期的に呼ばれる。
func (s *Store) InvalidateAll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.generation++
	s.collections = make(map[string]collectionEntry)
	s.byID = make(map[string]itemEntry)
	s.bySlug = make(map[string]string)
}

// Len は保持している一覧の数を返す。期限切れも含む。
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.collections)
}

// indexLocked は呼び出し側でロックを保持し、時刻も事前に取得しておくこと。
func (s *Store) indexLocked(item model.ContentItem, now, expiresAt time.Time) {
	if item.ID == "" {
		return
	}
	s.byID[item.ID] = itemEntry{item: item, expiresAt: expiresAt}

	// スラッグの衝突は走査順で先に格納されたものを優先する
	slug := content.Slug(&item)
	if slug == "" {
		return
	}
	if existing, ok := s.bySlug[slug]; ok && existing != item.ID {
		if e, live := s.byID[existing]; live && now.Before(e.expiresAt) && content.Slug(&e.item) == slug {
			return
		}
	}
	s.bySlug[slug] = item.ID
}

func cloneItems(items []model.ContentItem) []model.ContentItem {
	if items == nil {
		return nil
	}
	out := make([]model.ContentItem, len(items))
	copy(out, items)
	return out
}
