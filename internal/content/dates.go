package content

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/hitoshi/citycontent/internal/model"
)

// ErrEmptyDate はdateが空の場合のエラー。
var ErrEmptyDate = errors.New("date is empty")

var (
	// rangeSeparator は "August 15 - 17, 2025" のような範囲表記の区切り。
	rangeSeparator = regexp.MustCompile(`\s+(?:-|–|—|to)\s+|\s*[–—]\s*`)
	// compactRange は "August 15-17, 2025" のような空白なしの範囲表記。
	compactRange = regexp.MustCompile(`^([A-Za-z]+\.?\s+\d{1,2})\s*-\s*\d`)
	ordinal      = regexp.MustCompile(`(\d{1,2})(?:st|nd|rd|th)\b`)
	yearPattern  = regexp.MustCompile(`\b(\d{4})\b`)
)

// fullLayouts は範囲分割の前に文字列全体で試すレイアウト。
var fullLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// boundLayouts は範囲の開始側に対して試すレイアウト。
var boundLayouts = []string{
	"2006-01-02",
	"January 2, 2006",
	"January 2 2006",
	"Jan 2, 2006",
	"Jan 2 2006",
	"Jan. 2, 2006",
	"Monday, January 2, 2006",
	"Mon, January 2, 2006",
	"January 2, 2006 3:04 PM",
	"January 2, 2006 3PM",
	"2 January 2006",
}

// ParseEventDate はコンテンツのdateを解釈する。
// 範囲表記の場合は開始側のみを使い、開始側に年がなければ文字列末尾の年を補う。
// 解釈できない場合はエラーを返す（呼び出し側は不一致として扱う）。
func ParseEventDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, ErrEmptyDate
	}

	for _, layout := range fullLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}

	first := s
	if loc := rangeSeparator.FindStringIndex(s); loc != nil && loc[0] > 0 {
		first = s[:loc[0]]
	} else if m := compactRange.FindStringSubmatch(s); m != nil {
		first = m[1]
	}

	first = ordinal.ReplaceAllString(strings.TrimSpace(first), "$1")
	if !yearPattern.MatchString(first) {
		if years := yearPattern.FindAllString(s, -1); len(years) > 0 {
			first = first + ", " + years[len(years)-1]
		}
	}

	for _, layout := range boundLayouts {
		if t, err := time.Parse(layout, first); err == nil {
			return t, nil
		}
	}

	return time.Time{}, fmt.Errorf("unrecognized date format: %q", s)
}

// IsUpcoming はイベント日付が当日以降かどうかを判定する。
// 当日のイベントも開催中として含めるため、nowの日付の0時と比較する。
func IsUpcoming(date time.Time, now time.Time) bool {
	startOfDay := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	d := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)
	return !d.Before(startOfDay)
}

// SortKey は並び替え用の時刻を返す。dateが解釈できなければcreatedAtを使う。
func SortKey(item *model.ContentItem) time.Time {
	if t, err := ParseEventDate(item.Date); err == nil {
		return t
	}
	return item.CreatedAt
}

// SortByDateDesc はdate（なければcreatedAt）の降順に安定ソートする。
func SortByDateDesc(items []model.ContentItem) {
	sortByDate(items, true)
}

// SortByDateAsc はdate（なければcreatedAt）の昇順に安定ソートする。
// 直近のイベント一覧に使う。
func SortByDateAsc(items []model.ContentItem) {
	sortByDate(items, false)
}

func sortByDate(items []model.ContentItem, desc bool) {
	type keyed struct {
		key  time.Time
		item model.ContentItem
	}
	ks := make([]keyed, len(items))
	for i := range items {
		ks[i] = keyed{key: SortKey(&items[i]), item: items[i]}
	}
	sort.SliceStable(ks, func(i, j int) bool {
		if desc {
			return ks[i].key.After(ks[j].key)
		}
		return ks[i].key.Before(ks[j].key)
	})
	for i := range ks {
		items[i] = ks[i].item
	}
}
