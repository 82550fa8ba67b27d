package store

import (
	"context"
	"errors"
	"time"

	"github.com/vidhub/apiserver/types"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const usersCollection = "users"

// mongoUser is the document shape of a user in MongoDB.
type mongoUser struct {
	ID           primitive.ObjectID `bson:"_id,omitempty"`
	Username     string             `bson:"username"`
	Email        string             `bson:"email"`
	Fullname     string             `bson:"fullname"`
	Avatar       string             `bson:"avatar"`
	CoverImage   string             `bson:"coverImage"`
	PasswordHash string             `bson:"password,omitempty"`
	RefreshToken string             `bson:"refreshToken,omitempty"`
	CreatedAt    time.Time          `bson:"createdAt"`
	UpdatedAt    time.Time          `bson:"updatedAt"`
}

func (m mongoUser) toUser() types.User {
	return types.User{
		ID:           m.ID.Hex(),
		Username:     m.Username,
		Email:        m.Email,
		Fullname:     m.Fullname,
		Avatar:       m.Avatar,
		CoverImage:   m.CoverImage,
		PasswordHash: m.PasswordHash,
		RefreshToken: m.RefreshToken,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}

// publicProjection excludes the secret-bearing fields from a read.
var publicProjection = bson.D{{Key: "password", Value: 0}, {Key: "refreshToken", Value: 0}}

// MongoUserRepository handles persistence for users in MongoDB.
type MongoUserRepository struct {
	coll *mongo.Collection
}

func NewMongoUserRepository(db *mongo.Database) *MongoUserRepository {
	return &MongoUserRepository{coll: db.Collection(usersCollection)}
}

// EnsureIndexes creates the unique username and email indexes.
func (r *MongoUserRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "username", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
	})
	return err
}

func (r *MongoUserRepository) GetByID(ctx context.Context, id string) (types.User, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return types.User{}, ErrNotFound
	}
	return r.findOne(ctx, bson.M{"_id": oid})
}

// GetPublicByID reads a user with the secret-bearing fields projected out.
func (r *MongoUserRepository) GetPublicByID(ctx context.Context, id string) (types.PublicUser, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return types.PublicUser{}, ErrNotFound
	}
	var doc mongoUser
	opts := options.FindOne().SetProjection(publicProjection)
	if err := r.coll.FindOne(ctx, bson.M{"_id": oid}, opts).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return types.PublicUser{}, ErrNotFound
		}
		return types.PublicUser{}, err
	}
	return doc.toUser().Public(), nil
}

// FindByUsernameOrEmail returns the first user matching either identifier.
// Empty identifiers never match.
func (r *MongoUserRepository) FindByUsernameOrEmail(ctx context.Context, username, email string) (types.User, error) {
	var clauses bson.A
	if username != "" {
		clauses = append(clauses, bson.M{"username": username})
	}
	if email != "" {
		clauses = append(clauses, bson.M{"email": email})
	}
	if len(clauses) == 0 {
		return types.User{}, ErrNotFound
	}
	return r.findOne(ctx, bson.M{"$or": clauses})
}

func (r *MongoUserRepository) Create(ctx context.Context, user types.User) (types.User, error) {
	now := time.Now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now

	doc := mongoUser{
		Username:     user.Username,
		Email:        user.Email,
		Fullname:     user.Fullname,
		Avatar:       user.Avatar,
		CoverImage:   user.CoverImage,
		PasswordHash: user.PasswordHash,
		RefreshToken: user.RefreshToken,
		CreatedAt:    user.CreatedAt,
		UpdatedAt:    user.UpdatedAt,
	}
	result, err := r.coll.InsertOne(ctx, doc)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return types.User{}, ErrConflict
		}
		return types.User{}, err
	}
	oid, ok := result.InsertedID.(primitive.ObjectID)
	if !ok {
		return types.User{}, errors.New("unexpected inserted id type")
	}
	user.ID = oid.Hex()
	return user, nil
}

// SetRefreshToken overwrites the stored refresh token. An empty token unsets it.
func (r *MongoUserRepository) SetRefreshToken(ctx context.Context, id, token string) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return ErrNotFound
	}

	now := time.Now().UTC()
	update := bson.M{"$set": bson.M{"refreshToken": token, "updatedAt": now}}
	if token == "" {
		update = bson.M{
			"$unset": bson.M{"refreshToken": ""},
			"$set":   bson.M{"updatedAt": now},
		}
	}

	result, err := r.coll.UpdateByID(ctx, oid, update)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// ReplaceRefreshToken stores next only if current is still the stored token.
func (r *MongoUserRepository) ReplaceRefreshToken(ctx context.Context, id, current, next string) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil || current == "" {
		return ErrNotFound
	}

	filter := bson.M{"_id": oid, "refreshToken": current}
	update := bson.M{"$set": bson.M{"refreshToken": next, "updatedAt": time.Now().UTC()}}
	result, err := r.coll.UpdateOne(ctx, filter, update)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *MongoUserRepository) findOne(ctx context.Context, filter any) (types.User, error) {
	var doc mongoUser
	if err := r.coll.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return types.User{}, ErrNotFound
		}
		return types.User{}, err
	}
	return doc.toUser(), nil
}
