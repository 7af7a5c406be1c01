package content

import (
	"strings"

	"github.com/hitoshi/citycontent/internal/model"
)

// InCity はコンテンツが都市に属するかを判定する。
// category、location、categories、tags、titleのいずれかに都市名が
// 大文字小文字を区別せずに含まれていれば真。
func InCity(item *model.ContentItem, city string) bool {
	needle := strings.ToLower(strings.TrimSpace(city))
	if needle == "" {
		return false
	}

	if containsFold(item.Category, needle) || containsFold(item.Location, needle) {
		return true
	}
	for _, c := range item.Categories {
		if containsFold(c, needle) {
			return true
		}
	}
	for _, tag := range item.Tags {
		if containsFold(tag, needle) {
			return true
		}
	}
	// 都市名がタイトルにしか現れない記事が多いため、タイトルも対象にする
	return containsFold(item.Title, needle)
}

// InCategory はcategoryまたはcategoriesにカテゴリ名が含まれるかを判定する。
func InCategory(item *model.ContentItem, category string) bool {
	needle := strings.ToLower(strings.TrimSpace(category))
	if needle == "" {
		return false
	}
	if containsFold(item.Category, needle) {
		return true
	}
	for _, c := range item.Categories {
		if containsFold(c, needle) {
			return true
		}
	}
	return false
}

// Matches はフィルタ条件をクライアント側で適用する。
// リモートストア側のフィルタは部分的な場合があるため、成功時にも必ず適用する。
func Matches(item *model.ContentItem, f model.ContentFilter) bool {
	if f.Type != "" && !strings.EqualFold(string(item.Type), string(f.Type)) {
		return false
	}
	if f.Status != "" && !strings.EqualFold(string(item.Status), string(f.Status)) {
		return false
	}
	if f.Category != "" && !InCategory(item, f.Category) {
		return false
	}
	if f.City != "" && !InCity(item, f.City) {
		return false
	}
	if f.Surface != "" && !item.Flag(f.Surface) {
		return false
	}
	return true
}

// Filter はフィルタ条件に一致するコンテンツのみを返す。
func Filter(items []model.ContentItem, f model.ContentFilter) []model.ContentItem {
	out := make([]model.ContentItem, 0, len(items))
	for i := range items {
		if Matches(&items[i], f) {
			out = append(out, items[i])
		}
	}
	return out
}

// containsFold はneedle（小文字化済み）がsに大文字小文字を区別せずに含まれるかを返す。
func containsFold(s, needle string) bool {
	return s != "" && strings.Contains(strings.ToLower(s), needle)
}
