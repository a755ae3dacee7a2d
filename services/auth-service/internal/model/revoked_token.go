package model

import (
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// RevokedToken records a refresh token (by JTI, never by value) that must no
// longer be accepted, regardless of its cryptographic validity. Rows are
// write-once: the unique JTI index makes the first revocation win.
type RevokedToken struct {
	ID        bson.ObjectID `bson:"_id,omitempty"`
	JTI       string        `bson:"jti"`
	UserID    string        `bson:"user_id"`
	SessionID string        `bson:"session_id"`
	Kind      string        `bson:"kind"`
	Reason    string        `bson:"reason"`
	ExpiresAt time.Time     `bson:"expires_at"`
	CreatedAt time.Time     `bson:"created_at"`
}
