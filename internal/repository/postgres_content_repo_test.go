package repository

import (
	"database/sql"
	"strings"
	"testing"
	"time"

	"github.com/lib/pq"

	"github.com/hitoshi/citycontent/internal/model"
)

// PostgresContentRepoはContentRepositoryインターフェースを満たすことを検証
func TestPostgresContentRepo_ImplementsInterface(t *testing.T) {
	var _ ContentRepository = (*PostgresContentRepo)(nil)
}

// NewPostgresContentRepoが正しく初期化されることを検証
func TestNewPostgresContentRepo_Initializes(t *testing.T) {
	if repo := NewPostgresContentRepo(nil); repo == nil {
		t.Fatal("expected non-nil repo")
	}
}

// 条件なしのクエリは全件を作成日時順で取得することを検証
func TestBuildListQuery_NoFilter(t *testing.T) {
	query, args := buildListQuery(Columns, model.ContentQuery{})

	if !strings.Contains(query, "FROM content WHERE 1=1") {
		t.Errorf("query = %q", query)
	}
	if !strings.HasSuffix(query, "ORDER BY created_at ASC NULLS LAST") {
		t.Errorf("query should order by created_at asc, got %q", query)
	}
	if len(args) != 0 {
		t.Errorf("args = %v, want none", args)
	}
}

// 各条件がプレースホルダ付きで組み立てられることを検証
func TestBuildListQuery_AllFilters(t *testing.T) {
	q := model.ContentQuery{
		Filter: model.ContentFilter{
			Type:     model.ContentTypeEvent,
			Status:   model.ContentStatusPublished,
			Category: "Food",
			City:     "calgary",
			Surface:  model.SurfaceFeaturedCalgary,
		},
		SortBy:     "date",
		Descending: true,
		Limit:      12,
	}
	query, args := buildListQuery([]string{"id", "title"}, q)

	for _, want := range []string{
		"SELECT id, title FROM content",
		"LOWER(type) = LOWER($1)",
		"LOWER(status) = LOWER($2)",
		"category ILIKE $3",
		"location ILIKE $4",
		"featured_calgary = true",
		"ORDER BY date DESC NULLS LAST",
		"LIMIT $5",
	} {
		if !strings.Contains(query, want) {
			t.Errorf("query should contain %q, got %q", want, query)
		}
	}

	if len(args) != 5 {
		t.Fatalf("len(args) = %d, want 5", len(args))
	}
	if args[2] != "%Food%" || args[3] != "%calgary%" || args[4] != 12 {
		t.Errorf("args = %v", args)
	}
}

// 都市の条件がcategory・location・title・categories・tagsのすべてに及ぶことを検証
func TestBuildListQuery_CityCoversAllFields(t *testing.T) {
	query, args := buildListQuery([]string{"id"}, model.ContentQuery{
		Filter: model.ContentFilter{City: " edmonton "},
	})

	for _, want := range []string{
		"category ILIKE $1",
		"location ILIKE $1",
		"title ILIKE $1",
		"FROM unnest(categories) AS c WHERE c ILIKE $1",
		"FROM unnest(tags) AS t WHERE t ILIKE $1",
	} {
		if !strings.Contains(query, want) {
			t.Errorf("query should contain %q, got %q", want, query)
		}
	}
	if len(args) != 1 || args[0] != "%edmonton%" {
		t.Errorf("args = %v, want [%%edmonton%%]", args)
	}
}

// 未知のサーフェスは条件に含めないことを検証
func TestBuildListQuery_UnknownSurfaceIgnored(t *testing.T) {
	q := model.ContentQuery{Filter: model.ContentFilter{Surface: model.Surface("x = x OR 1")}}
	query, _ := buildListQuery(Columns, q)
	if strings.Contains(query, "x = x") {
		t.Errorf("unknown surface must not reach the query: %q", query)
	}
}

// 読み取った値がレコードに変換され、NULLのフラグが未設定のまま残ることを検証
func TestRowScanner_Record(t *testing.T) {
	now := time.Date(2025, 8, 1, 10, 0, 0, 0, time.UTC)
	s := rowScanner{
		id:           "c1",
		title:        sql.NullString{String: "夏祭り", Valid: true},
		imageURL:     sql.NullString{},
		image:        sql.NullString{String: "/img/a.jpg", Valid: true},
		categories:   pq.StringArray{"Events", "Edmonton"},
		createdAt:    sql.NullTime{Time: now, Valid: true},
		featuredHome: sql.NullBool{Bool: true, Valid: true},
	}

	rec := s.record()

	if rec.ID != "c1" || rec.Title != "夏祭り" {
		t.Errorf("rec = %+v", rec)
	}
	if rec.Image != "/img/a.jpg" || rec.ImageURL != "" {
		t.Errorf("image fields = %q / %q", rec.ImageURL, rec.Image)
	}
	if len(rec.Categories) != 2 {
		t.Errorf("categories = %v", rec.Categories)
	}
	if rec.CreatedAt == nil || !rec.CreatedAt.Equal(now) {
		t.Errorf("created_at = %v", rec.CreatedAt)
	}
	if rec.UpdatedAt != nil {
		t.Errorf("updated_at should be nil, got %v", rec.UpdatedAt)
	}
	if rec.FeaturedHome == nil || !*rec.FeaturedHome {
		t.Error("featured_home should be true")
	}
	if rec.TrendingHome != nil {
		t.Error("trending_home should stay unset")
	}
}

// Scan先がカラムの数と一致することを検証
func TestRowScanner_TargetsMatchColumns(t *testing.T) {
	var s rowScanner
	targets := s.targets(Columns)
	if len(targets) != len(Columns) {
		t.Fatalf("len(targets) = %d, want %d", len(targets), len(Columns))
	}
	for i, tgt := range targets {
		if tgt == nil {
			t.Errorf("no scan target for column %q", Columns[i])
		}
	}
}

// 引数の数がカラム数と一致し、未設定フラグがfalseになることを検証
func TestRecordArgs(t *testing.T) {
	rec := &model.ContentRecord{ID: "c1", Title: "t"}
	args := recordArgs(rec)

	if len(args) != len(Columns) {
		t.Fatalf("len(args) = %d, want %d", len(args), len(Columns))
	}
	if args[len(args)-1] != false {
		t.Errorf("unset flag should be written as false, got %v", args[len(args)-1])
	}
	if ns, ok := args[2].(sql.NullString); !ok || ns.Valid {
		t.Errorf("empty excerpt should be NULL, got %#v", args[2])
	}
}

// nullString が空文字列をNULLとして扱うことを検証
func TestNullString(t *testing.T) {
	if nullString("").Valid {
		t.Error("empty string should be NULL")
	}
	if ns := nullString("a"); !ns.Valid || ns.String != "a" {
		t.Errorf("nullString(a) = %+v", ns)
	}
}
