package repository

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/hitoshi/citycontent/internal/model"
)

// ContentCollection はコンテンツを保存するMongoDBコレクション名。
const ContentCollection = "content"

// MongoContentRepo はMongoDBを使用したコンテンツリポジトリ。
type MongoContentRepo struct {
	db *mongo.Database
}

// NewMongoContentRepo はMongoContentRepoを生成する。
func NewMongoContentRepo(db *mongo.Database) *MongoContentRepo {
	return &MongoContentRepo{db: db}
}

func (r *MongoContentRepo) coll() *mongo.Collection {
	return r.db.Collection(ContentCollection)
}

// List は条件に一致するドキュメントを返す。
func (r *MongoContentRepo) List(ctx context.Context, q model.ContentQuery) ([]model.ContentRecord, error) {
	opts := options.Find()

	direction := 1
	if q.Descending {
		direction = -1
	}
	opts.SetSort(bson.D{{Key: sortColumn(q.SortBy), Value: direction}})

	if q.Limit > 0 {
		opts.SetLimit(int64(q.Limit))
	}
	if proj := mongoProjection(q.Fields); proj != nil {
		opts.SetProjection(proj)
	}

	cursor, err := r.coll().Find(ctx, mongoFilter(q.Filter), opts)
	if err != nil {
		return nil, fmt.Errorf("コンテンツ一覧の取得に失敗しました: %w", err)
	}
	defer cursor.Close(ctx)

	var records []model.ContentRecord
	if err := cursor.All(ctx, &records); err != nil {
		return nil, fmt.Errorf("コンテンツ一覧の走査に失敗しました: %w", err)
	}
	return records, nil
}

// FindByID は指定IDのドキュメントを取得する。見つからない場合はnilを返す。
func (r *MongoContentRepo) FindByID(ctx context.Context, id string) (*model.ContentRecord, error) {
	var rec model.ContentRecord
	err := r.coll().FindOne(ctx, bson.M{"_id": id}).Decode(&rec)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("コンテンツの取得に失敗しました: %w", err)
	}
	return &rec, nil
}

// Create はドキュメントを作成する。
func (r *MongoContentRepo) Create(ctx context.Context, rec *model.ContentRecord) error {
	if _, err := r.coll().InsertOne(ctx, rec); err != nil {
		return fmt.Errorf("コンテンツの作成に失敗しました: %w", err)
	}
	return nil
}

// Update はドキュメントを更新する。created_atは変更しない。
func (r *MongoContentRepo) Update(ctx context.Context, rec *model.ContentRecord) error {
	set, err := updateDocument(rec)
	if err != nil {
		return fmt.Errorf("コンテンツの更新に失敗しました: %w", err)
	}

	result, err := r.coll().UpdateOne(ctx, bson.M{"_id": rec.ID}, bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("コンテンツの更新に失敗しました: %w", err)
	}
	if result.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete は指定IDのドキュメントを削除する。
func (r *MongoContentRepo) Delete(ctx context.Context, id string) error {
	result, err := r.coll().DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("コンテンツの削除に失敗しました: %w", err)
	}
	if result.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// Ping はMongoDBへの疎通を確認する。
func (r *MongoContentRepo) Ping(ctx context.Context) error {
	return r.db.Client().Ping(ctx, readpref.Primary())
}

// mongoFilter は絞り込み条件をクエリドキュメントに変換する。
func mongoFilter(f model.ContentFilter) bson.M {
	filter := bson.M{}
	var and []bson.M

	if f.Type != "" {
		filter["type"] = exactFold(string(f.Type))
	}
	if f.Status != "" {
		filter["status"] = exactFold(string(f.Status))
	}
	if f.Category != "" {
		re := containsFold(f.Category)
		and = append(and, bson.M{"$or": bson.A{
			bson.M{"category": re},
			bson.M{"categories": re},
		}})
	}
	if f.City != "" {
		re := containsFold(strings.TrimSpace(f.City))
		and = append(and, bson.M{"$or": bson.A{
			bson.M{"category": re},
			bson.M{"location": re},
			bson.M{"categories": re},
			bson.M{"tags": re},
			bson.M{"title": re},
		}})
	}
	if f.Surface != "" {
		if surface, ok := model.ParseSurface(string(f.Surface)); ok {
			filter[string(surface)] = true
		}
	}

	if len(and) > 0 {
		filter["$and"] = and
	}
	return filter
}

func exactFold(s string) bson.M {
	return bson.M{"$regex": "^" + regexp.QuoteMeta(s) + "$", "$options": "i"}
}

func containsFold(s string) bson.M {
	return bson.M{"$regex": regexp.QuoteMeta(s), "$options": "i"}
}

// mongoProjection は取得カラムをプロジェクションに変換する。全カラムの場合はnil。
func mongoProjection(fields []string) bson.M {
	if len(fields) == 0 {
		return nil
	}
	proj := bson.M{}
	for _, col := range selectColumns(fields) {
		if col == "id" {
			continue // _idは常に含まれる
		}
		proj[col] = 1
	}
	return proj
}

// updateDocument は$setに渡すドキュメントを作る。
func updateDocument(rec *model.ContentRecord) (bson.M, error) {
	raw, err := bson.Marshal(rec)
	if err != nil {
		return nil, err
	}
	var doc bson.M
	if err := bson.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	delete(doc, "_id")
	delete(doc, "created_at")
	return doc, nil
}

// compile-time interface check
var _ ContentRepository = (*MongoContentRepo)(nil)
