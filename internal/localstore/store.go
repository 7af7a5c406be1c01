// Package localstore はフル精度のローカルJSONストアを提供する。
// ビルド時にリモートストアへ到達できない場合の読み込み元であり、
// リモートとスナップショットの両方が使えない場合の最終フォールバックでもある。
// リモートストアとはトランザクションで連動しない。同期は明示的な再同期でのみ行う。
package localstore

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/citycontent/internal/content"
	"github.com/hitoshi/citycontent/internal/jsonfile"
	"github.com/hitoshi/citycontent/internal/model"
)

// ErrNotFound は指定IDのレコードが存在しない場合のエラー。
var ErrNotFound = errors.New("localstore: record not found")

// Store はsnake_caseレコードのJSON配列ファイルを読み書きする。
// プロセス内の読み書きはmutexで直列化する。
type Store struct {
	path string
	now  func() time.Time

	mu sync.Mutex
}

// NewStore はStoreを生成する。
func NewStore(path string) *Store {
	return &Store{
		path: path,
		now:  time.Now,
	}
}

// Path はストアファイルのパスを返す。
func (s *Store) Path() string {
	return s.path
}

// ReadAll は全レコードをContentItemとして返す。ファイルがない場合は空の一覧。
func (s *Store) ReadAll() ([]model.ContentItem, error) {
	s.mu.Lock()
	records, err := s.load()
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	items := make([]model.ContentItem, len(records))
	for i := range records {
		items[i] = content.SanitizeImage(records[i].ToItem())
	}
	return items, nil
}

// ReadByID は指定IDのレコードを返す。見つからない場合はnilを返す。
func (s *Store) ReadByID(id string) (*model.ContentItem, error) {
	s.mu.Lock()
	records, err := s.load()
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	for i := range records {
		if records[i].ID == id {
			item := content.SanitizeImage(records[i].ToItem())
			return &item, nil
		}
	}
	return nil, nil
}

// Create はレコードを追加する。IDが空の場合は採番し、作成・更新日時を設定する。
func (s *Store) Create(item model.ContentItem) (*model.ContentItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.load()
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	if item.ID == "" {
		item.ID = uuid.New().String()
	}
	for i := range records {
		if records[i].ID == item.ID {
			return nil, fmt.Errorf("localstore: duplicate id %q", item.ID)
		}
	}
	item.CreatedAt = now
	item.UpdatedAt = now
	item.Slug = ""

	records = append(records, model.RecordFromItem(item))
	if err := s.save(records); err != nil {
		return nil, err
	}
	return &item, nil
}

// Update は同じIDのレコードを置き換え、更新日時を進める。作成日時は保持する。
func (s *Store) Update(item model.ContentItem) (*model.ContentItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.load()
	if err != nil {
		return nil, err
	}

	idx := indexOf(records, item.ID)
	if idx < 0 {
		return nil, ErrNotFound
	}

	if records[idx].CreatedAt != nil {
		item.CreatedAt = *records[idx].CreatedAt
	}
	item.UpdatedAt = s.now().UTC()
	item.Slug = ""

	records[idx] = model.RecordFromItem(item)
	if err := s.save(records); err != nil {
		return nil, err
	}
	return &item, nil
}

// Delete は指定IDのレコードを削除する。
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.load()
	if err != nil {
		return err
	}

	idx := indexOf(records, id)
	if idx < 0 {
		return ErrNotFound
	}
	records = append(records[:idx], records[idx+1:]...)
	return s.save(records)
}

// ReplaceAll はストア全体をリモートの全件で置き換える。再同期で使う。
func (s *Store) ReplaceAll(records []model.ContentRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if records == nil {
		records = []model.ContentRecord{}
	}
	return s.save(records)
}

func (s *Store) load() ([]model.ContentRecord, error) {
	var records []model.ContentRecord
	if _, err := jsonfile.Load(s.path, &records); err != nil {
		return nil, fmt.Errorf("ローカルストアの読み込みに失敗しました: %w", err)
	}
	return records, nil
}

func (s *Store) save(records []model.ContentRecord) error {
	if _, err := jsonfile.Save(s.path, records, true); err != nil {
		return fmt.Errorf("ローカルストアの書き込みに失敗しました: %w", err)
	}
	return nil
}

func indexOf(records []model.ContentRecord, id string) int {
	for i := range records {
		if records[i].ID == id {
			return i
		}
	}
	return -1
}
