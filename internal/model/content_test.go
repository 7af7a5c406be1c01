package model

import (
	"testing"
	"time"
)

func TestContentRecord_ToItem_DefaultsFlagsToFalse(t *testing.T) {
	rec := ContentRecord{ID: "a", Title: "Title"}
	item := rec.ToItem()

	if item.TrendingHome || item.FeaturedHome || item.TrendingEdmonton ||
		item.FeaturedEdmonton || item.TrendingCalgary || item.FeaturedCalgary {
		t.Errorf("expected all flags false, got %+v", item)
	}
}

func TestContentRecord_ToItem_MapsFields(t *testing.T) {
	created := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	yes := true
	rec := ContentRecord{
		ID:           "a",
		Title:        "Calgary Jazz Fest",
		Type:         "event",
		Status:       "published",
		ImageURL:     "https://example.com/a.jpg",
		Categories:   []string{"Music"},
		CreatedAt:    &created,
		TrendingHome: &yes,
	}
	item := rec.ToItem()

	if item.ID != "a" {
		t.Errorf("ID = %q, want %q", item.ID, "a")
	}
	if item.Type != ContentTypeEvent {
		t.Errorf("Type = %q, want %q", item.Type, ContentTypeEvent)
	}
	if item.ImageURL != "https://example.com/a.jpg" {
		t.Errorf("ImageURL = %q", item.ImageURL)
	}
	if !item.CreatedAt.Equal(created) {
		t.Errorf("CreatedAt = %v, want %v", item.CreatedAt, created)
	}
	if !item.TrendingHome {
		t.Error("TrendingHome = false, want true")
	}
}

func TestContentRecord_ToItem_FallsBackToImage(t *testing.T) {
	rec := ContentRecord{ID: "a", Image: "/images/a.png"}
	if got := rec.ToItem().ImageURL; got != "/images/a.png" {
		t.Errorf("ImageURL = %q, want %q", got, "/images/a.png")
	}
}

func TestRecordFromItem_RoundTrip(t *testing.T) {
	item := ContentItem{ID: "x", Title: "T", FeaturedCalgary: true, UpdatedAt: time.Unix(100, 0).UTC()}
	got := RecordFromItem(item)
	back := got.ToItem()

	if back.ID != "x" || !back.FeaturedCalgary || !back.UpdatedAt.Equal(item.UpdatedAt) {
		t.Errorf("round trip mismatch: %+v", back)
	}
}

func TestContentItem_IsEvent_CaseInsensitive(t *testing.T) {
	tests := []struct {
		typ  ContentType
		want bool
	}{
		{"event", true},
		{"Event", true},
		{"EVENT", true},
		{"article", false},
		{"", false},
	}
	for _, tt := range tests {
		item := ContentItem{Type: tt.typ}
		if got := item.IsEvent(); got != tt.want {
			t.Errorf("IsEvent(%q) = %v, want %v", tt.typ, got, tt.want)
		}
	}
}

func TestParseSurface(t *testing.T) {
	if s, ok := ParseSurface("featured-edmonton"); !ok || s != SurfaceFeaturedEdmonton {
		t.Errorf("ParseSurface(featured-edmonton) = %q, %v", s, ok)
	}
	if _, ok := ParseSurface("sidebar"); ok {
		t.Error("ParseSurface(sidebar) should fail")
	}
}

func TestContentItem_Flag(t *testing.T) {
	item := ContentItem{TrendingCalgary: true}
	if !item.Flag(SurfaceTrendingCalgary) {
		t.Error("expected trending_calgary flag true")
	}
	if item.Flag(SurfaceTrendingHome) {
		t.Error("expected trending_home flag false")
	}
}
