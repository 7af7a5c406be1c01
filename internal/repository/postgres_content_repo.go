package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/hitoshi/citycontent/internal/model"
)

// PostgresContentRepo はPostgreSQLを使用したコンテンツリポジトリ。
type PostgresContentRepo struct {
	db *sql.DB
}

// NewPostgresContentRepo はPostgresContentRepoを生成する。
func NewPostgresContentRepo(db *sql.DB) *PostgresContentRepo {
	return &PostgresContentRepo{db: db}
}

// List は条件に一致するレコードを返す。
// サーバー側の絞り込みは部分的（cityはcategory/locationのみ）であり、
// 呼び出し側で改めてフィルタすることを前提とする。
func (r *PostgresContentRepo) List(ctx context.Context, q model.ContentQuery) ([]model.ContentRecord, error) {
	cols := selectColumns(q.Fields)
	query, args := buildListQuery(cols, q)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("コンテンツ一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var records []model.ContentRecord
	for rows.Next() {
		var rs rowScanner
		if err := rows.Scan(rs.targets(cols)...); err != nil {
			return nil, fmt.Errorf("コンテンツ行の読み取りに失敗しました: %w", err)
		}
		records = append(records, rs.record())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("コンテンツ一覧の走査に失敗しました: %w", err)
	}

	return records, nil
}

// FindByID は指定IDのレコードを取得する。見つからない場合はnilを返す。
func (r *PostgresContentRepo) FindByID(ctx context.Context, id string) (*model.ContentRecord, error) {
	var rs rowScanner
	err := r.db.QueryRowContext(ctx,
		`SELECT `+strings.Join(Columns, ", ")+` FROM content WHERE id = $1`,
		id,
	).Scan(rs.targets(Columns)...)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("コンテンツの取得に失敗しました: %w", err)
	}

	rec := rs.record()
	return &rec, nil
}

// Create はレコードを作成する。
func (r *PostgresContentRepo) Create(ctx context.Context, rec *model.ContentRecord) error {
	placeholders := make([]string, len(Columns))
	for i := range Columns {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO content (`+strings.Join(Columns, ", ")+`)
		 VALUES (`+strings.Join(placeholders, ", ")+`)`,
		recordArgs(rec)...,
	)
	if err != nil {
		return fmt.Errorf("コンテンツの作成に失敗しました: %w", err)
	}
	return nil
}

// Update はレコードを上書き更新する。created_atは変更しない。
func (r *PostgresContentRepo) Update(ctx context.Context, rec *model.ContentRecord) error {
	args := recordArgs(rec)

	sets := make([]string, 0, len(Columns))
	updateArgs := []interface{}{rec.ID}
	for i, col := range Columns {
		if col == "id" || col == "created_at" {
			continue
		}
		updateArgs = append(updateArgs, args[i])
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(updateArgs)))
	}

	result, err := r.db.ExecContext(ctx,
		`UPDATE content SET `+strings.Join(sets, ", ")+` WHERE id = $1`,
		updateArgs...,
	)
	if err != nil {
		return fmt.Errorf("コンテンツの更新に失敗しました: %w", err)
	}
	return checkAffected(result)
}

// Delete は指定IDのレコードを削除する。
func (r *PostgresContentRepo) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM content WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("コンテンツの削除に失敗しました: %w", err)
	}
	return checkAffected(result)
}

// Ping はデータベースへの疎通を確認する。
func (r *PostgresContentRepo) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// buildListQuery はSELECT文と引数を組み立てる。
func buildListQuery(cols []string, q model.ContentQuery) (string, []interface{}) {
	query := `SELECT ` + strings.Join(cols, ", ") + ` FROM content WHERE 1=1`
	var args []interface{}

	next := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	f := q.Filter
	if f.Type != "" {
		query += " AND LOWER(type) = LOWER(" + next(string(f.Type)) + ")"
	}
	if f.Status != "" {
		query += " AND LOWER(status) = LOWER(" + next(string(f.Status)) + ")"
	}
	if f.Category != "" {
		p := next("%" + f.Category + "%")
		query += " AND (category ILIKE " + p + " OR EXISTS (SELECT 1 FROM unnest(categories) AS c WHERE c ILIKE " + p + "))"
	}
	if f.City != "" {
		p := next("%" + strings.TrimSpace(f.City) + "%")
		query += " AND (category ILIKE " + p +
			" OR location ILIKE " + p +
			" OR title ILIKE " + p +
			" OR EXISTS (SELECT 1 FROM unnest(categories) AS c WHERE c ILIKE " + p + ")" +
			" OR EXISTS (SELECT 1 FROM unnest(tags) AS t WHERE t ILIKE " + p + "))"
	}
	if f.Surface != "" {
		if surface, ok := model.ParseSurface(string(f.Surface)); ok {
			query += " AND " + string(surface) + " = true"
		}
	}

	direction := "ASC"
	if q.Descending {
		direction = "DESC"
	}
	query += fmt.Sprintf(" ORDER BY %s %s NULLS LAST", sortColumn(q.SortBy), direction)

	if q.Limit > 0 {
		query += " LIMIT " + next(q.Limit)
	}

	return query, args
}

// rowScanner は可変カラムのSELECT結果をレコードに読み取る。
type rowScanner struct {
	id                                                           string
	title, excerpt, description, body, category, location        sql.NullString
	author, typ, status, imageURL, image, date                   sql.NullString
	categories, tags                                             pq.StringArray
	createdAt, updatedAt                                         sql.NullTime
	trendingHome, featuredHome, trendingEdm, featuredEdm         sql.NullBool
	trendingCgy, featuredCgy                                     sql.NullBool
}

// targets はカラム名に対応するScan先を返す。
func (s *rowScanner) targets(cols []string) []interface{} {
	out := make([]interface{}, len(cols))
	for i, col := range cols {
		switch col {
		case "id":
			out[i] = &s.id
		case "title":
			out[i] = &s.title
		case "excerpt":
			out[i] = &s.excerpt
		case "description":
			out[i] = &s.description
		case "content":
			out[i] = &s.body
		case "category":
			out[i] = &s.category
		case "categories":
			out[i] = &s.categories
		case "location":
			out[i] = &s.location
		case "author":
			out[i] = &s.author
		case "tags":
			out[i] = &s.tags
		case "type":
			out[i] = &s.typ
		case "status":
			out[i] = &s.status
		case "image_url":
			out[i] = &s.imageURL
		case "image":
			out[i] = &s.image
		case "date":
			out[i] = &s.date
		case "created_at":
			out[i] = &s.createdAt
		case "updated_at":
			out[i] = &s.updatedAt
		case "trending_home":
			out[i] = &s.trendingHome
		case "featured_home":
			out[i] = &s.featuredHome
		case "trending_edmonton":
			out[i] = &s.trendingEdm
		case "featured_edmonton":
			out[i] = &s.featuredEdm
		case "trending_calgary":
			out[i] = &s.trendingCgy
		case "featured_calgary":
			out[i] = &s.featuredCgy
		}
	}
	return out
}

// record は読み取った値をレコードに変換する。NULLのフラグは未設定（nil）として残す。
func (s *rowScanner) record() model.ContentRecord {
	rec := model.ContentRecord{
		ID:          s.id,
		Title:       nullStringValue(s.title),
		Excerpt:     nullStringValue(s.excerpt),
		Description: nullStringValue(s.description),
		Content:     nullStringValue(s.body),
		Category:    nullStringValue(s.category),
		Categories:  []string(s.categories),
		Location:    nullStringValue(s.location),
		Author:      nullStringValue(s.author),
		Tags:        []string(s.tags),
		Type:        nullStringValue(s.typ),
		Status:      nullStringValue(s.status),
		ImageURL:    nullStringValue(s.imageURL),
		Image:       nullStringValue(s.image),
		Date:        nullStringValue(s.date),

		TrendingHome:     nullBoolPtr(s.trendingHome),
		FeaturedHome:     nullBoolPtr(s.featuredHome),
		TrendingEdmonton: nullBoolPtr(s.trendingEdm),
		FeaturedEdmonton: nullBoolPtr(s.featuredEdm),
		TrendingCalgary:  nullBoolPtr(s.trendingCgy),
		FeaturedCalgary:  nullBoolPtr(s.featuredCgy),
	}
	if s.createdAt.Valid {
		t := s.createdAt.Time
		rec.CreatedAt = &t
	}
	if s.updatedAt.Valid {
		t := s.updatedAt.Time
		rec.UpdatedAt = &t
	}
	return rec
}

// recordArgs はColumnsの順序でINSERT/UPDATE用の引数を返す。
func recordArgs(rec *model.ContentRecord) []interface{} {
	return []interface{}{
		rec.ID, rec.Title, nullString(rec.Excerpt), nullString(rec.Description), nullString(rec.Content),
		nullString(rec.Category), pq.Array(rec.Categories), nullString(rec.Location), nullString(rec.Author), pq.Array(rec.Tags),
		nullString(rec.Type), nullString(rec.Status), nullString(rec.ImageURL), nullString(rec.Image), nullString(rec.Date),
		rec.CreatedAt, rec.UpdatedAt,
		boolArg(rec.TrendingHome), boolArg(rec.FeaturedHome),
		boolArg(rec.TrendingEdmonton), boolArg(rec.FeaturedEdmonton),
		boolArg(rec.TrendingCalgary), boolArg(rec.FeaturedCalgary),
	}
}

func checkAffected(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("更新件数の取得に失敗しました: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// nullString は空文字列をNULLとして扱うsql.NullStringを返す。
func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// nullStringValue はsql.NullStringから文字列を取得する。
func nullStringValue(ns sql.NullString) string {
	if ns.Valid {
		return ns.String
	}
	return ""
}

func nullBoolPtr(nb sql.NullBool) *bool {
	if !nb.Valid {
		return nil
	}
	b := nb.Bool
	return &b
}

// boolArg は未設定のフラグをfalseとして書き込む。
func boolArg(b *bool) bool {
	return b != nil && *b
}

// compile-time interface check
var _ ContentRepository = (*PostgresContentRepo)(nil)
