package model

import (
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// Device represents one distinct client installation for a user, keyed by
// fingerprint. At most one Device exists per (user_id, fingerprint) pair.
type Device struct {
	ID          bson.ObjectID `bson:"_id,omitempty"`
	UserID      string        `bson:"user_id"`
	Name        string        `bson:"name"`
	Fingerprint string        `bson:"fingerprint"`
	UserAgent   string        `bson:"user_agent"`
	Browser     string        `bson:"browser"`
	OS          string        `bson:"os"`
	DeviceType  string        `bson:"device_type"`
	Timezone    string        `bson:"timezone"`
	IsVerified  bool          `bson:"is_verified"`
	VerifiedAt  *time.Time    `bson:"verified_at"`
	LastActive  time.Time     `bson:"last_active"`
	IPAddresses []string      `bson:"ip_addresses"`
	TrustScore  int           `bson:"trust_score"`
	CreatedAt   time.Time     `bson:"created_at"`
	UpdatedAt   time.Time     `bson:"updated_at"`
}

// UserRoom returns the realtime room that scopes all of the owner's connections.
func (d *Device) UserRoom() string {
	return "user:" + d.UserID
}

// Room returns the realtime room that scopes connections from this device.
func (d *Device) Room() string {
	return "device:" + d.Fingerprint
}

// HasSeenIP reports whether the device history contains the given IP address.
func (d *Device) HasSeenIP(ip string) bool {
	for _, seen := range d.IPAddresses {
		if seen == ip {
			return true
		}
	}
	return false
}
