package model

import "strings"

// Surface はトレンド・特集フラグを持つ掲載面を表す。
type Surface string

const (
	SurfaceTrendingHome     Surface = "trending_home"
	SurfaceFeaturedHome     Surface = "featured_home"
	SurfaceTrendingEdmonton Surface = "trending_edmonton"
	SurfaceFeaturedEdmonton Surface = "featured_edmonton"
	SurfaceTrendingCalgary  Surface = "trending_calgary"
	SurfaceFeaturedCalgary  Surface = "featured_calgary"
)

// ParseSurface は文字列を掲載面に変換する。ハイフン区切りも受け付ける。
func ParseSurface(s string) (Surface, bool) {
	sf := Surface(strings.ReplaceAll(strings.ToLower(s), "-", "_"))
	switch sf {
	case SurfaceTrendingHome, SurfaceFeaturedHome,
		SurfaceTrendingEdmonton, SurfaceFeaturedEdmonton,
		SurfaceTrendingCalgary, SurfaceFeaturedCalgary:
		return sf, true
	}
	return "", false
}

// Flag は掲載面に対応するフラグ値を返す。
func (c *ContentItem) Flag(s Surface) bool {
	switch s {
	case SurfaceTrendingHome:
		return c.TrendingHome
	case SurfaceFeaturedHome:
		return c.FeaturedHome
	case SurfaceTrendingEdmonton:
		return c.TrendingEdmonton
	case SurfaceFeaturedEdmonton:
		return c.FeaturedEdmonton
	case SurfaceTrendingCalgary:
		return c.TrendingCalgary
	case SurfaceFeaturedCalgary:
		return c.FeaturedCalgary
	}
	return false
}

// ContentFilter はリモートストアに渡す絞り込み条件。
// サーバー側の絞り込みは部分一致・曖昧になり得るため、呼び出し側で再度フィルタする前提。
type ContentFilter struct {
	Type     ContentType
	Status   ContentStatus
	Category string
	City     string  // category / location / categories / tags / title の部分一致
	Surface  Surface // 指定時はそのフラグがtrueの行に限定
}

// ContentQuery はリモートストアへの一覧取得条件。
type ContentQuery struct {
	Filter     ContentFilter
	SortBy     string // カラム名。空の場合はcreated_at
	Descending bool
	Limit      int      // 0は無制限
	Fields     []string // 空の場合は全カラム
}
