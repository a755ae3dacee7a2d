package repository

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/TheSpideX/supporthub-api/services/auth-service/internal/model"
)

// RevokedTokenRepository defines the interface for the token blacklist.
//
// Revoke is the atomic check-and-set behind refresh rotation: the unique JTI
// index guarantees exactly one writer wins for a given token.
type RevokedTokenRepository interface {
	// Revoke inserts a revocation record. Returns ErrDuplicateKey when the
	// token is already revoked.
	Revoke(ctx context.Context, revoked *model.RevokedToken) error

	IsRevoked(ctx context.Context, jti string) (bool, error)

	// PurgeExpired removes records whose underlying token has itself expired;
	// they can no longer verify, so the blacklist row is dead weight.
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}

const revokedTokenCollection = "revoked_tokens"

type revokedTokenMongoRepository struct {
	db *mongo.Database
}

func NewRevokedTokenMongoRepository(
	ctx context.Context,
	logger *zerolog.Logger,
	db *mongo.Database,
) RevokedTokenRepository {
	collection := db.Collection(revokedTokenCollection)

	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "jti", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "expires_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(0),
		},
	}

	_, err := collection.Indexes().CreateMany(ctx, indexes)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create revoked token indexes")
	}

	return &revokedTokenMongoRepository{db: db}
}

func (r *revokedTokenMongoRepository) Revoke(ctx context.Context, revoked *model.RevokedToken) error {
	revoked.CreatedAt = time.Now()

	_, err := r.db.Collection(revokedTokenCollection).InsertOne(ctx, revoked)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return err
	}

	return nil
}

func (r *revokedTokenMongoRepository) IsRevoked(ctx context.Context, jti string) (bool, error) {
	result := r.db.Collection(revokedTokenCollection).FindOne(ctx, bson.M{"jti": jti})
	if result.Err() != nil {
		if errors.Is(result.Err(), mongo.ErrNoDocuments) {
			return false, nil
		}
		return false, result.Err()
	}

	return true, nil
}

func (r *revokedTokenMongoRepository) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.db.Collection(revokedTokenCollection).DeleteMany(
		ctx,
		bson.M{"expires_at": bson.M{"$lt": now}},
	)
	if err != nil {
		return 0, err
	}

	return result.DeletedCount, nil
}
