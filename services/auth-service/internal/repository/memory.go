package repository

import (
	"context"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/TheSpideX/supporthub-api/services/auth-service/internal/model"
)

// In-memory repositories mirror the document-store semantics, including
// unique-index conflicts and conditional status updates. They back unit tests
// and local development without a running database.

type userMemoryRepository struct {
	mu      sync.RWMutex
	users   map[string]*model.User
	byEmail map[string]string
}

func NewUserMemoryRepository() UserRepository {
	return &userMemoryRepository{
		users:   make(map[string]*model.User),
		byEmail: make(map[string]string),
	}
}

func (r *userMemoryRepository) CreateUser(_ context.Context, user *model.User) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byEmail[user.Email]; exists {
		return nil, ErrDuplicateKey
	}

	now := time.Now()
	user.ID = bson.NewObjectID()
	user.CreatedAt = now
	user.UpdatedAt = now

	clone := *user
	r.users[user.ID.Hex()] = &clone
	r.byEmail[user.Email] = user.ID.Hex()

	return user, nil
}

func (r *userMemoryRepository) GetUser(_ context.Context, id string) (*model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	user, ok := r.users[id]
	if !ok {
		return nil, ErrNotFound
	}

	clone := *user
	return &clone, nil
}

func (r *userMemoryRepository) GetUserByEmail(_ context.Context, email string) (*model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byEmail[email]
	if !ok {
		return nil, ErrNotFound
	}

	clone := *r.users[id]
	return &clone, nil
}

func (r *userMemoryRepository) RecordFailedLogin(
	_ context.Context,
	id string,
	lockedUntil *time.Time,
) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.users[id]
	if !ok {
		return nil, ErrNotFound
	}

	user.Security.LoginAttempts++
	if lockedUntil != nil {
		until := *lockedUntil
		user.Security.LockedUntil = &until
	}
	user.UpdatedAt = time.Now()

	clone := *user
	return &clone, nil
}

func (r *userMemoryRepository) RecordSuccessfulLogin(_ context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.users[id]
	if !ok {
		return ErrNotFound
	}

	user.Security.LoginAttempts = 0
	user.Security.LockedUntil = nil
	user.Security.LastLogin = &at
	user.UpdatedAt = at

	return nil
}

func (r *userMemoryRepository) UpdatePassword(
	_ context.Context,
	id string,
	passwordHash string,
	changedAt time.Time,
) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.users[id]
	if !ok {
		return ErrNotFound
	}

	user.Security.PasswordHash = passwordHash
	user.Security.PasswordChangedAt = &changedAt
	user.UpdatedAt = changedAt

	return nil
}

type deviceMemoryRepository struct {
	mu      sync.RWMutex
	devices map[string]*model.Device
	byKey   map[string]string // user_id + "\x00" + fingerprint -> id
}

func NewDeviceMemoryRepository() DeviceRepository {
	return &deviceMemoryRepository{
		devices: make(map[string]*model.Device),
		byKey:   make(map[string]string),
	}
}

func deviceKey(userID, fingerprint string) string {
	return userID + "\x00" + fingerprint
}

func (r *deviceMemoryRepository) CreateDevice(_ context.Context, device *model.Device) (*model.Device, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := deviceKey(device.UserID, device.Fingerprint)
	if _, exists := r.byKey[key]; exists {
		return nil, ErrDuplicateKey
	}

	now := time.Now()
	device.ID = bson.NewObjectID()
	device.CreatedAt = now
	device.UpdatedAt = now

	clone := *device
	clone.IPAddresses = append([]string(nil), device.IPAddresses...)
	r.devices[device.ID.Hex()] = &clone
	r.byKey[key] = device.ID.Hex()

	return device, nil
}

func (r *deviceMemoryRepository) GetDeviceByFingerprint(
	_ context.Context,
	userID, fingerprint string,
) (*model.Device, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byKey[deviceKey(userID, fingerprint)]
	if !ok {
		return nil, ErrNotFound
	}

	return cloneDevice(r.devices[id]), nil
}

func (r *deviceMemoryRepository) GetDevice(_ context.Context, id string) (*model.Device, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	device, ok := r.devices[id]
	if !ok {
		return nil, ErrNotFound
	}

	return cloneDevice(device), nil
}

func (r *deviceMemoryRepository) GetUserDevices(_ context.Context, userID string) ([]*model.Device, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var devices []*model.Device
	for _, device := range r.devices {
		if device.UserID == userID {
			devices = append(devices, cloneDevice(device))
		}
	}

	return devices, nil
}

func (r *deviceMemoryRepository) TouchDevice(
	_ context.Context,
	id string,
	ip string,
	trustScore int,
	at time.Time,
) (*model.Device, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	device, ok := r.devices[id]
	if !ok {
		return nil, ErrNotFound
	}

	if ip != "" && !device.HasSeenIP(ip) {
		device.IPAddresses = append(device.IPAddresses, ip)
	}
	device.LastActive = at
	device.TrustScore = trustScore
	device.UpdatedAt = at

	return cloneDevice(device), nil
}

func (r *deviceMemoryRepository) DeleteUserDevices(_ context.Context, userID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var deleted int64
	for id, device := range r.devices {
		if device.UserID == userID {
			delete(r.devices, id)
			delete(r.byKey, deviceKey(device.UserID, device.Fingerprint))
			deleted++
		}
	}

	return deleted, nil
}

func cloneDevice(device *model.Device) *model.Device {
	clone := *device
	clone.IPAddresses = append([]string(nil), device.IPAddresses...)
	return &clone
}

type sessionMemoryRepository struct {
	mu       sync.RWMutex
	sessions map[string]*model.Session
}

func NewSessionMemoryRepository() SessionRepository {
	return &sessionMemoryRepository{
		sessions: make(map[string]*model.Session),
	}
}

func (r *sessionMemoryRepository) CreateSession(_ context.Context, session *model.Session) (*model.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	session.ID = bson.NewObjectID()
	session.CreatedAt = now
	session.UpdatedAt = now

	clone := *session
	r.sessions[session.ID.Hex()] = &clone

	return session, nil
}

func (r *sessionMemoryRepository) GetSession(_ context.Context, id string) (*model.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	session, ok := r.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}

	clone := *session
	return &clone, nil
}

func (r *sessionMemoryRepository) GetUserSessions(_ context.Context, userID string) ([]*model.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var sessions []*model.Session
	for _, session := range r.sessions {
		if session.UserID == userID {
			clone := *session
			sessions = append(sessions, &clone)
		}
	}

	return sessions, nil
}

func (r *sessionMemoryRepository) UpdateActivity(
	_ context.Context,
	id string,
	at time.Time,
	meta *model.SessionMetadata,
) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, ok := r.sessions[id]
	if !ok || session.Status.Terminal() {
		return false, nil
	}

	session.LastActivity = at
	session.Status = model.SessionActive
	if meta != nil {
		if meta.TabID != "" {
			session.Metadata.TabID = meta.TabID
		}
		session.Metadata.IsLeader = meta.IsLeader
	}
	session.UpdatedAt = at

	return true, nil
}

func (r *sessionMemoryRepository) EndSession(_ context.Context, id string, reason string, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, ok := r.sessions[id]
	if !ok || session.Status.Terminal() {
		return false, nil
	}

	session.Status = model.SessionEnded
	session.Metadata.TerminationReason = reason
	session.UpdatedAt = at

	return true, nil
}

func (r *sessionMemoryRepository) EndUserSessions(
	_ context.Context,
	userID, exceptID, reason string,
	at time.Time,
) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var ended int64
	for id, session := range r.sessions {
		if session.UserID != userID || session.Status.Terminal() || id == exceptID {
			continue
		}

		session.Status = model.SessionEnded
		session.Metadata.TerminationReason = reason
		session.UpdatedAt = at
		ended++
	}

	return ended, nil
}

func (r *sessionMemoryRepository) MarkIdleWarned(_ context.Context, id string, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, ok := r.sessions[id]
	if !ok || session.Status != model.SessionActive {
		return false, nil
	}

	session.Status = model.SessionIdleWarned
	session.UpdatedAt = at

	return true, nil
}

func (r *sessionMemoryRepository) ExpireSessions(_ context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var expired int64
	for _, session := range r.sessions {
		if session.Status.Terminal() || !session.ExpiresAt.Before(now) {
			continue
		}

		session.Status = model.SessionExpired
		session.Metadata.TerminationReason = "absolute_timeout"
		session.UpdatedAt = now
		expired++
	}

	return expired, nil
}

func (r *sessionMemoryRepository) ListIdleSessions(_ context.Context, cutoff time.Time) ([]*model.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var sessions []*model.Session
	for _, session := range r.sessions {
		if session.Status == model.SessionActive && session.LastActivity.Before(cutoff) {
			clone := *session
			sessions = append(sessions, &clone)
		}
	}

	return sessions, nil
}

func (r *sessionMemoryRepository) ListExpiringSessions(_ context.Context, now time.Time) ([]*model.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var sessions []*model.Session
	for _, session := range r.sessions {
		if !session.Status.Terminal() && session.ExpiresAt.Before(now) {
			clone := *session
			sessions = append(sessions, &clone)
		}
	}

	return sessions, nil
}

type revokedTokenMemoryRepository struct {
	mu      sync.RWMutex
	revoked map[string]*model.RevokedToken
}

func NewRevokedTokenMemoryRepository() RevokedTokenRepository {
	return &revokedTokenMemoryRepository{
		revoked: make(map[string]*model.RevokedToken),
	}
}

func (r *revokedTokenMemoryRepository) Revoke(_ context.Context, revoked *model.RevokedToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.revoked[revoked.JTI]; exists {
		return ErrDuplicateKey
	}

	revoked.CreatedAt = time.Now()
	clone := *revoked
	r.revoked[revoked.JTI] = &clone

	return nil
}

func (r *revokedTokenMemoryRepository) IsRevoked(_ context.Context, jti string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, exists := r.revoked[jti]
	return exists, nil
}

func (r *revokedTokenMemoryRepository) PurgeExpired(_ context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var purged int64
	for jti, revoked := range r.revoked {
		if revoked.ExpiresAt.Before(now) {
			delete(r.revoked, jti)
			purged++
		}
	}

	return purged, nil
}
