package mongodb

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/nkiryanov/guildhall/internal/repository"
)

const usersCollection = "users"

type Storage struct {
	users *mongo.Collection
}

// NewStorage makes sure unique indexes exist, so duplicates are reported as apperrors.ErrUserAlreadyExists
func NewStorage(ctx context.Context, db *mongo.Database) (*Storage, error) {
	users := db.Collection(usersCollection)

	_, err := users.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "username", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
	})
	if err != nil {
		return nil, fmt.Errorf("cant create users indexes. Err: %w", err)
	}

	return &Storage{users: users}, nil
}

func (s *Storage) User() repository.UserRepo {
	return &UserRepo{Collection: s.users}
}
