package usecase

import (
	"time"

	"github.com/TheSpideX/supporthub-api/services/auth-service/internal/model"
)

// RealtimeNotifier pushes session lifecycle events into the realtime layer.
// Notifications are push-only and best-effort; the persistence layer remains
// the single source of truth. The realtime gateway implements this interface;
// NoopNotifier serves callers running without a realtime layer.
type RealtimeNotifier interface {
	NotifyTimeoutWarning(session *model.Session, expiresIn time.Duration)
	NotifySessionExpired(session *model.Session)
	NotifySessionTerminated(session *model.Session, reason string)
	NotifyTokenRefreshed(session *model.Session, accessExpiresIn time.Duration)
	NotifyPasswordChanged(userID string)
}

// NoopNotifier discards all notifications.
type NoopNotifier struct{}

func (NoopNotifier) NotifyTimeoutWarning(*model.Session, time.Duration)  {}
func (NoopNotifier) NotifySessionExpired(*model.Session)                 {}
func (NoopNotifier) NotifySessionTerminated(*model.Session, string)      {}
func (NoopNotifier) NotifyTokenRefreshed(*model.Session, time.Duration)  {}
func (NoopNotifier) NotifyPasswordChanged(string)                        {}
