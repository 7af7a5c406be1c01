// Package repository はリモートストア（編集の唯一の書き込み先）の永続化インターフェースを定義する。
package repository

import (
	"context"
	"errors"

	"github.com/hitoshi/citycontent/internal/model"
)

// ErrNotFound は更新・削除対象のレコードが存在しない場合のエラー。
var ErrNotFound = errors.New("repository: content not found")

// ContentRepository はcontentテーブル（コレクション）の永続化インターフェース。
// 呼び出し側からは「条件Pに一致するN件をFの順で返す」だけの不透明なストアとして扱う。
type ContentRepository interface {
	// List は条件に一致するレコードを返す。
	// q.Fieldsが指定された場合はそのカラムのみを取得する（idは常に含む）。
	List(ctx context.Context, q model.ContentQuery) ([]model.ContentRecord, error)

	// FindByID は指定IDのレコードを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.ContentRecord, error)

	// Create はレコードを作成する。ID・作成日時・更新日時は呼び出し側で設定済みであること。
	Create(ctx context.Context, rec *model.ContentRecord) error

	// Update はレコードを上書き更新する。存在しない場合はErrNotFoundを返す。
	Update(ctx context.Context, rec *model.ContentRecord) error

	// Delete は指定IDのレコードを削除する。存在しない場合はErrNotFoundを返す。
	Delete(ctx context.Context, id string) error

	// Ping はストアへの疎通を確認する。
	Ping(ctx context.Context) error
}

// Columns はcontentテーブルの全カラム。SELECTの順序もこれに従う。
var Columns = []string{
	"id", "title", "excerpt", "description", "content",
	"category", "categories", "location", "author", "tags",
	"type", "status", "image_url", "image", "date",
	"created_at", "updated_at",
	"trending_home", "featured_home",
	"trending_edmonton", "featured_edmonton",
	"trending_calgary", "featured_calgary",
}

// sortableColumns は並び替えに使えるカラム。
var sortableColumns = map[string]bool{
	"created_at": true,
	"updated_at": true,
	"date":       true,
	"title":      true,
}

// selectColumns は取得カラムを検証し、未知のカラムを除いてidを先頭に含めた一覧を返す。
// fieldsが空の場合は全カラム。
func selectColumns(fields []string) []string {
	if len(fields) == 0 {
		return Columns
	}

	known := make(map[string]bool, len(Columns))
	for _, c := range Columns {
		known[c] = true
	}

	cols := []string{"id"}
	seen := map[string]bool{"id": true}
	for _, f := range fields {
		if known[f] && !seen[f] {
			cols = append(cols, f)
			seen[f] = true
		}
	}
	return cols
}

// sortColumn は並び替えカラムを検証し、未知の場合はcreated_atを返す。
func sortColumn(col string) string {
	if sortableColumns[col] {
		return col
	}
	return "created_at"
}
