// Package model はドメインモデルを定義する。
package model

import (
	"strings"
	"time"
)

// ContentType はコンテンツ種別を表す。
type ContentType string

const (
	// ContentTypeArticle は記事。
	ContentTypeArticle ContentType = "article"
	// ContentTypeEvent はイベント。
	ContentTypeEvent ContentType = "event"
)

// ContentStatus は公開状態を表す。
type ContentStatus string

const (
	// ContentStatusDraft は下書き。
	ContentStatusDraft ContentStatus = "draft"
	// ContentStatusPublished は公開済み。
	ContentStatusPublished ContentStatus = "published"
)

// ContentItem は記事とイベントを統一的に扱うコンテンツ。
// スナップショットファイルとAPIレスポンスではこの形（camelCase）でシリアライズされる。
type ContentItem struct {
	ID          string        `json:"id"`
	Title       string        `json:"title"`
	Slug        string        `json:"slug,omitempty"` // タイトルから導出する。永続値としては扱わない
	Excerpt     string        `json:"excerpt,omitempty"`
	Description string        `json:"description,omitempty"`
	Content     string        `json:"content,omitempty"`
	Category    string        `json:"category,omitempty"`
	Categories  []string      `json:"categories,omitempty"`
	Tags        []string      `json:"tags,omitempty"`
	Location    string        `json:"location,omitempty"`
	Author      string        `json:"author,omitempty"`
	Type        ContentType   `json:"type,omitempty"`
	Status      ContentStatus `json:"status,omitempty"`
	ImageURL    string        `json:"imageUrl,omitempty"`
	Date        string        `json:"date,omitempty"`
	CreatedAt   time.Time     `json:"createdAt"`
	UpdatedAt   time.Time     `json:"updatedAt"`

	TrendingHome     bool `json:"trendingHome"`
	FeaturedHome     bool `json:"featuredHome"`
	TrendingEdmonton bool `json:"trendingEdmonton"`
	FeaturedEdmonton bool `json:"featuredEdmonton"`
	TrendingCalgary  bool `json:"trendingCalgary"`
	FeaturedCalgary  bool `json:"featuredCalgary"`
}

// ContentRecord はリモートストアおよびローカルJSONストアの行（snake_case）を表す。
// フラグは未設定を区別するためポインタで保持し、ContentItemへの変換時にfalseへ補完する。
type ContentRecord struct {
	ID          string     `json:"id" bson:"_id"`
	Title       string     `json:"title" bson:"title"`
	Excerpt     string     `json:"excerpt,omitempty" bson:"excerpt,omitempty"`
	Description string     `json:"description,omitempty" bson:"description,omitempty"`
	Content     string     `json:"content,omitempty" bson:"content,omitempty"`
	Category    string     `json:"category,omitempty" bson:"category,omitempty"`
	Categories  []string   `json:"categories,omitempty" bson:"categories,omitempty"`
	Location    string     `json:"location,omitempty" bson:"location,omitempty"`
	Author      string     `json:"author,omitempty" bson:"author,omitempty"`
	Tags        []string   `json:"tags,omitempty" bson:"tags,omitempty"`
	Type        string     `json:"type,omitempty" bson:"type,omitempty"`
	Status      string     `json:"status,omitempty" bson:"status,omitempty"`
	ImageURL    string     `json:"image_url,omitempty" bson:"image_url,omitempty"`
	Image       string     `json:"image,omitempty" bson:"image,omitempty"`
	Date        string     `json:"date,omitempty" bson:"date,omitempty"`
	CreatedAt   *time.Time `json:"created_at,omitempty" bson:"created_at,omitempty"`
	UpdatedAt   *time.Time `json:"updated_at,omitempty" bson:"updated_at,omitempty"`

	TrendingHome     *bool `json:"trending_home,omitempty" bson:"trending_home,omitempty"`
	FeaturedHome     *bool `json:"featured_home,omitempty" bson:"featured_home,omitempty"`
	TrendingEdmonton *bool `json:"trending_edmonton,omitempty" bson:"trending_edmonton,omitempty"`
	FeaturedEdmonton *bool `json:"featured_edmonton,omitempty" bson:"featured_edmonton,omitempty"`
	TrendingCalgary  *bool `json:"trending_calgary,omitempty" bson:"trending_calgary,omitempty"`
	FeaturedCalgary  *bool `json:"featured_calgary,omitempty" bson:"featured_calgary,omitempty"`
}

// ToItem はレコードをContentItemに変換する。
// 画像はimage_urlを優先し、空の場合はimageを使う。検証はここでは行わない。
func (r *ContentRecord) ToItem() ContentItem {
	item := ContentItem{
		ID:          r.ID,
		Title:       r.Title,
		Excerpt:     r.Excerpt,
		Description: r.Description,
		Content:     r.Content,
		Category:    r.Category,
		Categories:  r.Categories,
		Tags:        r.Tags,
		Location:    r.Location,
		Author:      r.Author,
		Type:        ContentType(r.Type),
		Status:      ContentStatus(r.Status),
		ImageURL:    r.ImageURL,
		Date:        r.Date,

		TrendingHome:     boolValue(r.TrendingHome),
		FeaturedHome:     boolValue(r.FeaturedHome),
		TrendingEdmonton: boolValue(r.TrendingEdmonton),
		FeaturedEdmonton: boolValue(r.FeaturedEdmonton),
		TrendingCalgary:  boolValue(r.TrendingCalgary),
		FeaturedCalgary:  boolValue(r.FeaturedCalgary),
	}
	if item.ImageURL == "" {
		item.ImageURL = r.Image
	}
	if r.CreatedAt != nil {
		item.CreatedAt = *r.CreatedAt
	}
	if r.UpdatedAt != nil {
		item.UpdatedAt = *r.UpdatedAt
	}
	return item
}

// RecordFromItem はContentItemをストア用レコードに変換する。
func RecordFromItem(item ContentItem) ContentRecord {
	rec := ContentRecord{
		ID:          item.ID,
		Title:       item.Title,
		Excerpt:     item.Excerpt,
		Description: item.Description,
		Content:     item.Content,
		Category:    item.Category,
		Categories:  item.Categories,
		Location:    item.Location,
		Author:      item.Author,
		Tags:        item.Tags,
		Type:        string(item.Type),
		Status:      string(item.Status),
		ImageURL:    item.ImageURL,
		Date:        item.Date,

		TrendingHome:     boolPtr(item.TrendingHome),
		FeaturedHome:     boolPtr(item.FeaturedHome),
		TrendingEdmonton: boolPtr(item.TrendingEdmonton),
		FeaturedEdmonton: boolPtr(item.FeaturedEdmonton),
		TrendingCalgary:  boolPtr(item.TrendingCalgary),
		FeaturedCalgary:  boolPtr(item.FeaturedCalgary),
	}
	if !item.CreatedAt.IsZero() {
		t := item.CreatedAt
		rec.CreatedAt = &t
	}
	if !item.UpdatedAt.IsZero() {
		t := item.UpdatedAt
		rec.UpdatedAt = &t
	}
	return rec
}

// IsEvent はtypeがeventかどうかを大文字小文字を区別せずに判定する。
func (c *ContentItem) IsEvent() bool {
	return strings.EqualFold(string(c.Type), string(ContentTypeEvent))
}

func boolValue(b *bool) bool {
	return b != nil && *b
}

func boolPtr(b bool) *bool {
	return &b
}
