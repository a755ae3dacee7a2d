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

// DeviceRepository defines the interface for device-related database operations.
//
// Devices are unique per (user_id, fingerprint); concurrent creates for the
// same pair must converge to a single row.
type DeviceRepository interface {
	// CreateDevice inserts a new device. Returns ErrDuplicateKey when a device
	// with the same (user_id, fingerprint) already exists.
	CreateDevice(ctx context.Context, device *model.Device) (*model.Device, error)

	GetDeviceByFingerprint(ctx context.Context, userID, fingerprint string) (*model.Device, error)
	GetDevice(ctx context.Context, id string) (*model.Device, error)
	GetUserDevices(ctx context.Context, userID string) ([]*model.Device, error)

	// TouchDevice bumps last_active, appends the IP if unseen, and applies the
	// trust score, returning the updated device.
	TouchDevice(ctx context.Context, id string, ip string, trustScore int, at time.Time) (*model.Device, error)

	DeleteUserDevices(ctx context.Context, userID string) (int64, error)
}

const deviceCollection = "devices"

type deviceMongoRepository struct {
	db *mongo.Database
}

func NewDeviceMongoRepository(ctx context.Context, logger *zerolog.Logger, db *mongo.Database) DeviceRepository {
	collection := db.Collection(deviceCollection)

	indexes := []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "user_id", Value: 1},
				{Key: "fingerprint", Value: 1},
			},
			Options: options.Index().SetUnique(true),
		},
	}

	_, err := collection.Indexes().CreateMany(ctx, indexes)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create device indexes")
	}

	return &deviceMongoRepository{db: db}
}

func (r *deviceMongoRepository) CreateDevice(ctx context.Context, device *model.Device) (*model.Device, error) {
	now := time.Now()
	device.CreatedAt = now
	device.UpdatedAt = now

	result, err := r.db.Collection(deviceCollection).InsertOne(ctx, device)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, ErrDuplicateKey
		}
		return nil, err
	}

	if objectID, ok := result.InsertedID.(bson.ObjectID); ok {
		device.ID = objectID
	} else {
		return nil, errors.New("failed to convert inserted ID to ObjectID")
	}

	return device, nil
}

func (r *deviceMongoRepository) GetDeviceByFingerprint(
	ctx context.Context,
	userID, fingerprint string,
) (*model.Device, error) {
	result := r.db.Collection(deviceCollection).FindOne(ctx, bson.M{
		"user_id":     userID,
		"fingerprint": fingerprint,
	})
	if result.Err() != nil {
		if errors.Is(result.Err(), mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, result.Err()
	}

	var device model.Device
	if err := result.Decode(&device); err != nil {
		return nil, err
	}

	return &device, nil
}

func (r *deviceMongoRepository) GetDevice(ctx context.Context, id string) (*model.Device, error) {
	objectID, err := bson.ObjectIDFromHex(id)
	if err != nil {
		return nil, ErrNotFound
	}

	result := r.db.Collection(deviceCollection).FindOne(ctx, bson.M{"_id": objectID})
	if result.Err() != nil {
		if errors.Is(result.Err(), mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, result.Err()
	}

	var device model.Device
	if err := result.Decode(&device); err != nil {
		return nil, err
	}

	return &device, nil
}

func (r *deviceMongoRepository) GetUserDevices(ctx context.Context, userID string) ([]*model.Device, error) {
	cursor, err := r.db.Collection(deviceCollection).Find(ctx, bson.M{"user_id": userID})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var devices []*model.Device
	for cursor.Next(ctx) {
		var device model.Device
		if err := cursor.Decode(&device); err != nil {
			return nil, err
		}
		devices = append(devices, &device)
	}

	if err := cursor.Err(); err != nil {
		return nil, err
	}

	return devices, nil
}

func (r *deviceMongoRepository) TouchDevice(
	ctx context.Context,
	id string,
	ip string,
	trustScore int,
	at time.Time,
) (*model.Device, error) {
	objectID, err := bson.ObjectIDFromHex(id)
	if err != nil {
		return nil, ErrNotFound
	}

	update := bson.M{
		"$set": bson.M{
			"last_active": at,
			"trust_score": trustScore,
			"updated_at":  at,
		},
	}
	// Clients behind proxies may report no address at all.
	if ip != "" {
		update["$addToSet"] = bson.M{"ip_addresses": ip}
	}

	result := r.db.Collection(deviceCollection).FindOneAndUpdate(
		ctx,
		bson.M{"_id": objectID},
		update,
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	)
	if result.Err() != nil {
		if errors.Is(result.Err(), mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, result.Err()
	}

	var device model.Device
	if err := result.Decode(&device); err != nil {
		return nil, err
	}

	return &device, nil
}

func (r *deviceMongoRepository) DeleteUserDevices(ctx context.Context, userID string) (int64, error) {
	result, err := r.db.Collection(deviceCollection).DeleteMany(ctx, bson.M{"user_id": userID})
	if err != nil {
		return 0, err
	}

	return result.DeletedCount, nil
}
