package db

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
)

const defaultMongoDatabase = "guildhall"

// IsMongoDSN reports whether dsn points to a document database instead of postgres
func IsMongoDSN(dsn string) bool {
	return strings.HasPrefix(dsn, "mongodb://") || strings.HasPrefix(dsn, "mongodb+srv://")
}

// ConnectMongo connects, pings the primary and returns the database named in dsn path
// (or the default one)
func ConnectMongo(ctx context.Context, dsn string) (*mongo.Database, error) {
	u, err := url.Parse(dsn)
	if err != nil {
		return nil, fmt.Errorf("invalid mongo dsn. Err: %w", err)
	}
	name := strings.Trim(u.Path, "/")
	if name == "" {
		name = defaultMongoDatabase
	}

	serverAPI := options.ServerAPI(options.ServerAPIVersion1)
	opts := options.Client().ApplyURI(dsn).SetServerAPIOptions(serverAPI)

	client, err := mongo.Connect(opts)
	if err != nil {
		return nil, fmt.Errorf("cant connect to mongo. Err: %w", err)
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.WithoutCancel(ctx))
		return nil, fmt.Errorf("mongo ping failed. Err: %w", err)
	}

	return client.Database(name), nil
}
