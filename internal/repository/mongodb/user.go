package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/nkiryanov/guildhall/internal/apperrors"
	"github.com/nkiryanov/guildhall/internal/models"
	"github.com/nkiryanov/guildhall/internal/repository"
)

type userDocument struct {
	ID             string    `bson:"_id"`
	CreatedAt      time.Time `bson:"createdAt"`
	Username       string    `bson:"username"`
	Email          string    `bson:"email"`
	HashedPassword string    `bson:"passwordHash"`
	Role           string    `bson:"role"`
	IsActive       bool      `bson:"isActive"`
	LastActiveAt   time.Time `bson:"lastActive"`
	LoginCount     int       `bson:"loginCount"`
	Avatar         string    `bson:"avatar"`
	Bio            string    `bson:"bio"`
	TokenVersion   int       `bson:"tokenVersion"`
}

func (d userDocument) toModel() (models.User, error) {
	id, err := uuid.Parse(d.ID)
	if err != nil {
		return models.User{}, fmt.Errorf("malformed user id %q: %w", d.ID, err)
	}

	return models.User{
		ID:             id,
		CreatedAt:      d.CreatedAt,
		Username:       d.Username,
		Email:          d.Email,
		HashedPassword: d.HashedPassword,
		Role:           models.Role(d.Role),
		IsActive:       d.IsActive,
		LastActiveAt:   d.LastActiveAt,
		LoginCount:     d.LoginCount,
		Avatar:         d.Avatar,
		Bio:            d.Bio,
		TokenVersion:   d.TokenVersion,
	}, nil
}

type UserRepo struct {
	Collection *mongo.Collection
}

func (r *UserRepo) CreateUser(ctx context.Context, params repository.CreateUserParams) (models.User, error) {
	role := params.Role
	if role == "" {
		role = models.RoleUser
	}
	// bson dates keep milliseconds only
	now := time.Now().UTC().Truncate(time.Millisecond)

	doc := userDocument{
		ID:             uuid.NewString(),
		CreatedAt:      now,
		Username:       params.Username,
		Email:          params.Email,
		HashedPassword: params.HashedPassword,
		Role:           string(role),
		IsActive:       true,
		LastActiveAt:   now,
		Avatar:         params.Avatar,
	}

	_, err := r.Collection.InsertOne(ctx, doc)
	switch {
	case err == nil:
		return doc.toModel()
	case mongo.IsDuplicateKeyError(err):
		return models.User{}, apperrors.ErrUserAlreadyExists
	default:
		return models.User{}, fmt.Errorf("db error: %w", err)
	}
}

func (r *UserRepo) GetUserByID(ctx context.Context, id uuid.UUID) (models.User, error) {
	return r.findOne(ctx, bson.M{"_id": id.String()})
}

func (r *UserRepo) GetUserByEmail(ctx context.Context, email string) (models.User, error) {
	return r.findOne(ctx, bson.M{"email": email})
}

func (r *UserRepo) UpdateProfile(ctx context.Context, id uuid.UUID, params repository.UpdateProfileParams) (models.User, error) {
	set := bson.M{}
	if params.Username != nil {
		set["username"] = *params.Username
	}
	if params.Avatar != nil {
		set["avatar"] = *params.Avatar
	}
	if params.Bio != nil {
		set["bio"] = *params.Bio
	}
	if len(set) == 0 {
		return r.GetUserByID(ctx, id)
	}

	return r.findOneAndUpdate(ctx, id, bson.M{"$set": set})
}

func (r *UserRepo) SetActive(ctx context.Context, id uuid.UUID, active bool) (models.User, error) {
	return r.findOneAndUpdate(ctx, id, bson.M{"$set": bson.M{"isActive": active}})
}

func (r *UserRepo) SetRole(ctx context.Context, id uuid.UUID, role models.Role) (models.User, error) {
	return r.findOneAndUpdate(ctx, id, bson.M{"$set": bson.M{"role": string(role)}})
}

func (r *UserRepo) ListUsers(ctx context.Context, params repository.ListUsersParams) ([]models.User, int, error) {
	filter := bson.M{}
	if params.Role != "" {
		filter["role"] = string(params.Role)
	}
	if params.IsActive != nil {
		filter["isActive"] = *params.IsActive
	}

	total, err := r.Collection.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("db error: %w", err)
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: 1}}).
		SetSkip(int64(params.Offset)).
		SetLimit(int64(params.Limit))
	cursor, err := r.Collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("db error: %w", err)
	}

	var docs []userDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, 0, fmt.Errorf("db error: %w", err)
	}

	users := make([]models.User, 0, len(docs))
	for _, d := range docs {
		u, err := d.toModel()
		if err != nil {
			return nil, 0, err
		}
		users = append(users, u)
	}

	return users, int(total), nil
}

func (r *UserRepo) TouchLastActive(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.updateOne(ctx, id, bson.M{"$set": bson.M{"lastActive": at.UTC()}})
}

func (r *UserRepo) RecordLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.updateOne(ctx, id, bson.M{
		"$set": bson.M{"lastActive": at.UTC()},
		"$inc": bson.M{"loginCount": 1},
	})
}

func (r *UserRepo) BumpTokenVersion(ctx context.Context, id uuid.UUID) (int, error) {
	user, err := r.findOneAndUpdate(ctx, id, bson.M{"$inc": bson.M{"tokenVersion": 1}})
	if err != nil {
		return 0, err
	}
	return user.TokenVersion, nil
}

func (r *UserRepo) DeleteUser(ctx context.Context, id uuid.UUID) error {
	res, err := r.Collection.DeleteOne(ctx, bson.M{"_id": id.String()})
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if res.DeletedCount == 0 {
		return apperrors.ErrUserNotFound
	}
	return nil
}

func (r *UserRepo) findOne(ctx context.Context, filter bson.M) (models.User, error) {
	var doc userDocument
	err := r.Collection.FindOne(ctx, filter).Decode(&doc)
	return decodeResult(doc, err)
}

func (r *UserRepo) findOneAndUpdate(ctx context.Context, id uuid.UUID, update bson.M) (models.User, error) {
	var doc userDocument
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	err := r.Collection.FindOneAndUpdate(ctx, bson.M{"_id": id.String()}, update, opts).Decode(&doc)
	return decodeResult(doc, err)
}

func (r *UserRepo) updateOne(ctx context.Context, id uuid.UUID, update bson.M) error {
	res, err := r.Collection.UpdateOne(ctx, bson.M{"_id": id.String()}, update)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if res.MatchedCount == 0 {
		return apperrors.ErrUserNotFound
	}
	return nil
}

func decodeResult(doc userDocument, err error) (models.User, error) {
	switch {
	case err == nil:
		return doc.toModel()
	case errors.Is(err, mongo.ErrNoDocuments):
		return models.User{}, apperrors.ErrUserNotFound
	case mongo.IsDuplicateKeyError(err):
		return models.User{}, apperrors.ErrUserAlreadyExists
	default:
		return models.User{}, fmt.Errorf("db error: %w", err)
	}
}
