// Package content はコンテンツの導出値と分類ロジックを提供する。
// スラッグ生成、都市・イベント判定、日付解釈、画像URL検証など、
// ストアに依存しない純粋関数のみを置く。
package content

import (
	"strings"

	"github.com/hitoshi/citycontent/internal/model"
)

const (
	// maxSlugLength はスラッグの最大長。
	maxSlugLength = 100
	// fuzzyThreshold はスラッグの曖昧一致に必要なトークン一致率。
	fuzzyThreshold = 0.7
)

// Normalize はタイトル等の文字列をURLセーフなスラッグに正規化する。
// 小文字化し、英数字・ハイフン・空白以外を除去し、空白の連続を1つのハイフンに、
// ハイフンの連続を1つにまとめ、前後のハイフンを除去して100文字に切り詰める。
// 冪等: Normalize(Normalize(x)) == Normalize(x)
func Normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	pendingHyphen := false
	for _, r := range strings.ToLower(s) {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9'):
			if pendingHyphen && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingHyphen = false
			b.WriteRune(r)
		case r == '-' || r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == '\f' || r == '\v':
			pendingHyphen = true
		default:
			// 記号は区切りとして扱わずに除去する（"Rock'n'Roll" -> "rocknroll"）
		}
	}

	slug := b.String()
	if len(slug) > maxSlugLength {
		slug = strings.TrimRight(slug[:maxSlugLength], "-")
	}
	return slug
}

// Slug はコンテンツのスラッグをタイトルから導出する。
func Slug(item *model.ContentItem) string {
	return Normalize(item.Title)
}

// WithSlugs は各コンテンツのSlugフィールドを導出値で埋めたコピーを返す。
func WithSlugs(items []model.ContentItem) []model.ContentItem {
	out := make([]model.ContentItem, len(items))
	for i := range items {
		out[i] = items[i]
		out[i].Slug = Slug(&items[i])
	}
	return out
}

// FindBySlug はスラッグに一致するコンテンツを探す。
// まず導出スラッグの完全一致を走査順で探し、見つからなければ
// トークン一致率が70%以上の最初の候補を返す。fuzzyは曖昧一致で見つかった場合にtrue。
func FindBySlug(items []model.ContentItem, slug string) (item *model.ContentItem, fuzzy bool) {
	want := Normalize(slug)
	if want == "" {
		return nil, false
	}

	for i := range items {
		if Slug(&items[i]) == want {
			return &items[i], false
		}
	}

	wantTokens := strings.Split(want, "-")
	for i := range items {
		if TokenOverlap(wantTokens, Slug(&items[i])) >= fuzzyThreshold {
			return &items[i], true
		}
	}
	return nil, false
}

// TokenOverlap は要求トークンのうち候補スラッグのトークンに含まれる割合を返す。
func TokenOverlap(wantTokens []string, candidateSlug string) float64 {
	if len(wantTokens) == 0 || candidateSlug == "" {
		return 0
	}

	candidate := make(map[string]struct{})
	for _, tok := range strings.Split(candidateSlug, "-") {
		candidate[tok] = struct{}{}
	}

	matched := 0
	for _, tok := range wantTokens {
		if _, ok := candidate[tok]; ok {
			matched++
		}
	}
	return float64(matched) / float64(len(wantTokens))
}
