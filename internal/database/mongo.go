package database

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/x/mongo/driver/connstring"
)

// defaultMongoDatabase は接続URLにデータベース名が含まれない場合に使用する名前。
const defaultMongoDatabase = "citycontent"

// IsMongoURL は接続URLがMongoDBを指すかどうかを判定する。
func IsMongoURL(databaseURL string) bool {
	return strings.HasPrefix(databaseURL, "mongodb://") || strings.HasPrefix(databaseURL, "mongodb+srv://")
}

// OpenMongo はMongoDBへ接続し、接続URLで指定されたデータベースを返す。
// サーバーへの到達は確認しない。到達できない間の読み取りは下位の層で補う。
func OpenMongo(ctx context.Context, databaseURL string) (*mongo.Client, *mongo.Database, error) {
	cs, err := connstring.ParseAndValidate(databaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse mongo url: %w", err)
	}
	dbName := cs.Database
	if dbName == "" {
		dbName = defaultMongoDatabase
	}

	opts := options.Client().
		ApplyURI(databaseURL).
		SetConnectTimeout(10 * time.Second).
		SetServerSelectionTimeout(10 * time.Second)

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect mongo: %w", err)
	}

	return client, client.Database(dbName), nil
}
