// Package snapshot はコンテンツ一覧の軽量スナップショットファイルを管理する。
// リモートストアが利用できない場合の第2段のフォールバックとして使われる。
// スナップショットは常にリモートの全件から作り直す非可逆な射影で、差分マージは行わない。
package snapshot

import (
	"fmt"
	"html"
	"log/slog"
	"sync"

	"github.com/microcosm-cc/bluemonday"

	"github.com/hitoshi/citycontent/internal/content"
	"github.com/hitoshi/citycontent/internal/jsonfile"
	"github.com/hitoshi/citycontent/internal/model"
)

const (
	// MaxTitleLength はスナップショット内のタイトルの最大文字数。
	MaxTitleLength = 80
	// MaxExcerptLength はスナップショット内の抜粋の最大文字数。
	MaxExcerptLength = 150
	// MaxContentLength はスナップショット内の本文の最大文字数。
	MaxContentLength = 1_000_000
	// ellipsis は切り詰めた値の末尾に付与する。
	ellipsis = "..."
	// defaultWarnSize はファイルサイズ警告の閾値（500KB）。
	defaultWarnSize = 500 * 1024
)

// Store はスナップショットファイルの読み書きを行う。
// 同一プロセス内の書き込みは直列化し、ファイルは一時ファイルからのrenameで丸ごと置き換える。
type Store struct {
	path     string
	logger   *slog.Logger
	policy   *bluemonday.Policy
	warnSize int64

	mu sync.Mutex
}

// NewStore はStoreを生成する。
func NewStore(path string, logger *slog.Logger) *Store {
	return &Store{
		path:     path,
		logger:   logger,
		policy:   bluemonday.StrictPolicy(),
		warnSize: defaultWarnSize,
	}
}

// Path はスナップショットファイルのパスを返す。
func (s *Store) Path() string {
	return s.path
}

// Write はコンテンツ一覧を射影してスナップショットファイルを上書きする。
func (s *Store) Write(items []model.ContentItem) error {
	projected := make([]model.ContentItem, len(items))
	for i := range items {
		projected[i] = s.Project(items[i])
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	n, err := jsonfile.Save(s.path, projected, false)
	if err != nil {
		return fmt.Errorf("スナップショットの書き込みに失敗しました: %w", err)
	}

	size := int64(n)
	if size > s.warnSize {
		// 上限値の見直しが必要なことを知らせるだけで、書き込みは拒否しない
		s.logger.Warn("スナップショットのサイズが閾値を超えています",
			slog.String("path", s.path),
			slog.Int64("size_bytes", size),
			slog.Int64("warn_bytes", s.warnSize),
		)
	}

	s.logger.Info("スナップショットを書き込みました",
		slog.String("path", s.path),
		slog.Int("item_count", len(projected)),
		slog.Int64("size_bytes", size),
	)
	return nil
}

// Read はスナップショットファイルを読み込む。
// ファイルが存在しない場合はエラーではなく空の一覧を返す。
// 欠けているフィールドはゼロ値のまま扱い、画像URLは検証して不正なら空にする。
func (s *Store) Read() ([]model.ContentItem, error) {
	var items []model.ContentItem
	found, err := jsonfile.Load(s.path, &items)
	if err != nil {
		return nil, fmt.Errorf("スナップショットの読み込みに失敗しました: %w", err)
	}
	if !found || items == nil {
		return []model.ContentItem{}, nil
	}

	for i := range items {
		items[i] = content.SanitizeImage(items[i])
	}
	return items, nil
}

// Size は現在のスナップショットファイルのサイズを返す。存在しない場合は0。
func (s *Store) Size() (int64, error) {
	return jsonfile.Size(s.path)
}

// Project はコンテンツをスナップショット用に射影する。
// 抜粋が空の場合はdescription、contentの順に導出し、HTMLを除去してから切り詰める。
// descriptionは抜粋に畳み込み、スナップショットには保持しない。
func (s *Store) Project(item model.ContentItem) model.ContentItem {
	excerpt := item.Excerpt
	if excerpt == "" {
		excerpt = item.Description
	}
	if excerpt == "" {
		excerpt = item.Content
	}
	excerpt = collapseSpaces(html.UnescapeString(s.policy.Sanitize(excerpt)))

	item.Title = truncate(item.Title, MaxTitleLength)
	item.Excerpt = truncate(excerpt, MaxExcerptLength)
	item.Content = truncate(item.Content, MaxContentLength)
	item.Description = ""
	item.Slug = ""
	return content.SanitizeImage(item)
}

// truncate は文字数（rune単位）でmaxを超える場合に切り詰めて省略記号を付ける。
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + ellipsis
}

// collapseSpaces は連続する空白を1つにまとめ、前後の空白を除去する。
func collapseSpaces(s string) string {
	out := make([]rune, 0, len(s))
	space := false
	for _, r := range s {
		if r == ' ' || r == '\n' || r == '\t' || r == '\r' {
			space = true
			continue
		}
		if space && len(out) > 0 {
			out = append(out, ' ')
		}
		space = false
		out = append(out, r)
	}
	return string(out)
}
