package model

import (
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// UserProfile holds the mutable profile fields of a user.
type UserProfile struct {
	FirstName   string `bson:"first_name"`
	LastName    string `bson:"last_name"`
	PhoneNumber string `bson:"phone_number"`
	Timezone    string `bson:"timezone"`
}

// UserSecurity holds the security metadata the auth core reads and updates.
type UserSecurity struct {
	PasswordHash      string     `bson:"password_hash"`
	PasswordChangedAt *time.Time `bson:"password_changed_at"`
	EmailVerified     bool       `bson:"email_verified"`
	LoginAttempts     int        `bson:"login_attempts"`
	LockedUntil       *time.Time `bson:"locked_until"`
	LastLogin         *time.Time `bson:"last_login"`
}

// User represents a user account referenced by sessions and devices.
type User struct {
	ID        bson.ObjectID `bson:"_id,omitempty"`
	Email     string        `bson:"email"`
	Profile   UserProfile   `bson:"profile"`
	Role      string        `bson:"role"`
	IsActive  bool          `bson:"is_active"`
	Security  UserSecurity  `bson:"security"`
	CreatedAt time.Time     `bson:"created_at"`
	UpdatedAt time.Time     `bson:"updated_at"`
}

// Locked reports whether the account is currently locked out.
func (u *User) Locked(now time.Time) bool {
	return u.Security.LockedUntil != nil && u.Security.LockedUntil.After(now)
}
