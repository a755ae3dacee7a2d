package repository

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/TheSpideX/supporthub-api/services/auth-service/internal/model"
)

// SessionRepository defines the interface for session-related database operations.
//
// All state transitions are conditional updates keyed on the current status so
// that a terminated session can never be revived by a late-arriving write.
type SessionRepository interface {
	CreateSession(ctx context.Context, session *model.Session) (*model.Session, error)
	GetSession(ctx context.Context, id string) (*model.Session, error)
	GetUserSessions(ctx context.Context, userID string) ([]*model.Session, error)

	// UpdateActivity bumps last_activity and merges metadata; a session in
	// idle_warned returns to active. No-op (false) on terminal sessions.
	UpdateActivity(ctx context.Context, id string, at time.Time, meta *model.SessionMetadata) (bool, error)

	// EndSession transitions an active or idle_warned session to ended.
	// Returns false without error when the session is already terminal.
	EndSession(ctx context.Context, id string, reason string, at time.Time) (bool, error)

	// EndUserSessions bulk-ends every live session of the user, optionally
	// keeping one session out of the sweep. Returns the number affected.
	EndUserSessions(ctx context.Context, userID, exceptID, reason string, at time.Time) (int64, error)

	// MarkIdleWarned transitions an active session to idle_warned.
	MarkIdleWarned(ctx context.Context, id string, at time.Time) (bool, error)

	// ExpireSessions transitions live sessions whose expires_at has passed to
	// expired, returning the count. Safe to run concurrently.
	ExpireSessions(ctx context.Context, now time.Time) (int64, error)

	// ListIdleSessions returns active sessions with no activity since the cutoff.
	ListIdleSessions(ctx context.Context, cutoff time.Time) ([]*model.Session, error)

	// ListExpiringSessions returns live sessions whose expires_at has passed,
	// so their rooms can be notified before the bulk transition.
	ListExpiringSessions(ctx context.Context, now time.Time) ([]*model.Session, error)
}

const sessionCollection = "sessions"

// liveStatuses match sessions that still authorize requests.
var liveStatuses = bson.M{"$in": bson.A{model.SessionActive, model.SessionIdleWarned}}

type sessionMongoRepository struct {
	db *mongo.Database
}

func NewSessionMongoRepository(db *mongo.Database) SessionRepository {
	return &sessionMongoRepository{db: db}
}

func (r *sessionMongoRepository) CreateSession(ctx context.Context, session *model.Session) (*model.Session, error) {
	now := time.Now()
	session.CreatedAt = now
	session.UpdatedAt = now

	result, err := r.db.Collection(sessionCollection).InsertOne(ctx, session)
	if err != nil {
		return nil, err
	}

	if objectID, ok := result.InsertedID.(bson.ObjectID); ok {
		session.ID = objectID
	} else {
		return nil, errors.New("failed to convert inserted ID to ObjectID")
	}

	return session, nil
}

func (r *sessionMongoRepository) GetSession(ctx context.Context, id string) (*model.Session, error) {
	objectID, err := bson.ObjectIDFromHex(id)
	if err != nil {
		return nil, ErrNotFound
	}

	result := r.db.Collection(sessionCollection).FindOne(ctx, bson.M{"_id": objectID})
	if result.Err() != nil {
		if errors.Is(result.Err(), mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, result.Err()
	}

	var session model.Session
	if err := result.Decode(&session); err != nil {
		return nil, err
	}

	return &session, nil
}

func (r *sessionMongoRepository) GetUserSessions(ctx context.Context, userID string) ([]*model.Session, error) {
	findOptions := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})

	cursor, err := r.db.Collection(sessionCollection).Find(ctx, bson.M{"user_id": userID}, findOptions)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var sessions []*model.Session
	for cursor.Next(ctx) {
		var session model.Session
		if err := cursor.Decode(&session); err != nil {
			return nil, err
		}
		sessions = append(sessions, &session)
	}

	if err := cursor.Err(); err != nil {
		return nil, err
	}

	return sessions, nil
}

func (r *sessionMongoRepository) UpdateActivity(
	ctx context.Context,
	id string,
	at time.Time,
	meta *model.SessionMetadata,
) (bool, error) {
	objectID, err := bson.ObjectIDFromHex(id)
	if err != nil {
		return false, ErrNotFound
	}

	setMap := bson.M{
		"last_activity": at,
		"status":        model.SessionActive,
		"updated_at":    at,
	}
	if meta != nil {
		if meta.TabID != "" {
			setMap["metadata.tab_id"] = meta.TabID
		}
		setMap["metadata.is_leader"] = meta.IsLeader
	}

	result, err := r.db.Collection(sessionCollection).UpdateOne(
		ctx,
		bson.M{"_id": objectID, "status": liveStatuses},
		bson.M{"$set": setMap},
	)
	if err != nil {
		return false, err
	}

	return result.MatchedCount > 0, nil
}

func (r *sessionMongoRepository) EndSession(
	ctx context.Context,
	id string,
	reason string,
	at time.Time,
) (bool, error) {
	objectID, err := bson.ObjectIDFromHex(id)
	if err != nil {
		return false, ErrNotFound
	}

	result, err := r.db.Collection(sessionCollection).UpdateOne(
		ctx,
		bson.M{"_id": objectID, "status": liveStatuses},
		bson.M{"$set": bson.M{
			"status":                      model.SessionEnded,
			"metadata.termination_reason": reason,
			"updated_at":                  at,
		}},
	)
	if err != nil {
		return false, err
	}

	return result.ModifiedCount > 0, nil
}

func (r *sessionMongoRepository) EndUserSessions(
	ctx context.Context,
	userID, exceptID, reason string,
	at time.Time,
) (int64, error) {
	filter := bson.M{"user_id": userID, "status": liveStatuses}
	if exceptID != "" {
		if objectID, err := bson.ObjectIDFromHex(exceptID); err == nil {
			filter["_id"] = bson.M{"$ne": objectID}
		}
	}

	result, err := r.db.Collection(sessionCollection).UpdateMany(
		ctx,
		filter,
		bson.M{"$set": bson.M{
			"status":                      model.SessionEnded,
			"metadata.termination_reason": reason,
			"updated_at":                  at,
		}},
	)
	if err != nil {
		return 0, err
	}

	return result.ModifiedCount, nil
}

func (r *sessionMongoRepository) MarkIdleWarned(ctx context.Context, id string, at time.Time) (bool, error) {
	objectID, err := bson.ObjectIDFromHex(id)
	if err != nil {
		return false, ErrNotFound
	}

	result, err := r.db.Collection(sessionCollection).UpdateOne(
		ctx,
		bson.M{"_id": objectID, "status": model.SessionActive},
		bson.M{"$set": bson.M{"status": model.SessionIdleWarned, "updated_at": at}},
	)
	if err != nil {
		return false, err
	}

	return result.ModifiedCount > 0, nil
}

func (r *sessionMongoRepository) ExpireSessions(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.db.Collection(sessionCollection).UpdateMany(
		ctx,
		bson.M{"status": liveStatuses, "expires_at": bson.M{"$lt": now}},
		bson.M{"$set": bson.M{
			"status":                      model.SessionExpired,
			"metadata.termination_reason": "absolute_timeout",
			"updated_at":                  now,
		}},
	)
	if err != nil {
		return 0, err
	}

	return result.ModifiedCount, nil
}

func (r *sessionMongoRepository) ListIdleSessions(ctx context.Context, cutoff time.Time) ([]*model.Session, error) {
	return r.list(ctx, bson.M{
		"status":        model.SessionActive,
		"last_activity": bson.M{"$lt": cutoff},
	})
}

func (r *sessionMongoRepository) ListExpiringSessions(ctx context.Context, now time.Time) ([]*model.Session, error) {
	return r.list(ctx, bson.M{
		"status":     liveStatuses,
		"expires_at": bson.M{"$lt": now},
	})
}

func (r *sessionMongoRepository) list(ctx context.Context, filter bson.M) ([]*model.Session, error) {
	cursor, err := r.db.Collection(sessionCollection).Find(ctx, filter)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var sessions []*model.Session
	for cursor.Next(ctx) {
		var session model.Session
		if err := cursor.Decode(&session); err != nil {
			return nil, err
		}
		sessions = append(sessions, &session)
	}

	if err := cursor.Err(); err != nil {
		return nil, err
	}

	return sessions, nil
}
