package usecase

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/TheSpideX/supporthub-api/services/auth-service/internal/model"
	"github.com/TheSpideX/supporthub-api/services/auth-service/internal/repository"
)

// DeviceInfo carries the client signals observed on a login or handshake.
// Fingerprinting uses only the stable signals; IPAddress feeds risk scoring.
type DeviceInfo struct {
	UserAgent        string
	Browser          string
	OS               string
	DeviceType       string
	Platform         string
	ScreenResolution string
	Timezone         string
	Language         string
	IPAddress        string
}

// Fingerprint derives a deterministic identifier from the stable client
// signals. Identical inputs always produce identical output; any changed
// signal changes the output. Volatile signals (IP, timestamps) are excluded.
func Fingerprint(info DeviceInfo) string {
	signals := strings.Join([]string{
		info.UserAgent,
		info.Browser,
		info.OS,
		info.DeviceType,
		info.Platform,
		info.ScreenResolution,
		info.Timezone,
		info.Language,
	}, "|")

	sum := sha256.Sum256([]byte(signals))
	return hex.EncodeToString(sum[:])
}

// RiskWeights are the named weights of the device risk scoring function.
// Each mismatched signal adds its weight; risk grows monotonically with the
// number of mismatches.
type RiskWeights struct {
	UnknownFingerprint int
	NewIP              int
	TimezoneMismatch   int
}

// DefaultRiskWeights are the weights used unless overridden at construction.
var DefaultRiskWeights = RiskWeights{
	UnknownFingerprint: 40,
	NewIP:              30,
	TimezoneMismatch:   20,
}

// Risk level thresholds: low < 30 <= medium < 60 <= high.
const (
	RiskLow    = "low"
	RiskMedium = "medium"
	RiskHigh   = "high"

	riskMediumThreshold = 30
	riskHighThreshold   = 60
)

const (
	initialTrustScore  = 40
	trustScoreStep     = 5
	trustScorePenalty  = 10
	maxTrustScore      = 100
	trustedScoreFloor  = 0
	verifiedTrustLevel = 70
)

// Score computes the risk score and the list of mismatched signals for an
// observation against the recorded device history. Pure: no side effects.
// A nil device means the fingerprint is unknown for the user.
func (w RiskWeights) Score(device *model.Device, info DeviceInfo) (int, []string) {
	var (
		score   int
		signals []string
	)

	if device == nil {
		score += w.UnknownFingerprint
		signals = append(signals, "unknown_fingerprint")
		score += w.NewIP
		signals = append(signals, "new_ip")
		if info.Timezone != "" {
			score += w.TimezoneMismatch
			signals = append(signals, "timezone_mismatch")
		}
		return score, signals
	}

	if info.IPAddress != "" && !device.HasSeenIP(info.IPAddress) {
		score += w.NewIP
		signals = append(signals, "new_ip")
	}
	if info.Timezone != "" && device.Timezone != "" && info.Timezone != device.Timezone {
		score += w.TimezoneMismatch
		signals = append(signals, "timezone_mismatch")
	}

	return score, signals
}

// RiskLevel maps a risk score to its named level.
func RiskLevel(score int) string {
	switch {
	case score >= riskHighThreshold:
		return RiskHigh
	case score >= riskMediumThreshold:
		return RiskMedium
	default:
		return RiskLow
	}
}

// SecurityAssessment is the result of assessing an observation against a
// device's recorded history.
type SecurityAssessment struct {
	DeviceID   string
	TrustScore int
	TrustLevel string
	RiskScore  int
	RiskLevel  string
	Signals    []string
}

// DeviceUsecase implements the device registry: fingerprint resolution,
// find-or-create persistence, and trust/risk assessment.
type DeviceUsecase interface {
	// RecordDeviceInfo finds or creates the device for (userID, fingerprint).
	// On create it initializes trust score and IP history; on find it appends
	// unseen IPs, bumps last_active, and adjusts the trust score. Returns
	// whether the device was newly created. Safe under concurrent calls with
	// an identical fingerprint.
	RecordDeviceInfo(ctx context.Context, userID string, info DeviceInfo) (*model.Device, bool, error)

	// VerifyDeviceConsistency reports whether the fingerprint is already known
	// for the user, returning the resolved device either way (nil when unknown).
	VerifyDeviceConsistency(ctx context.Context, userID string, info DeviceInfo) (*model.Device, bool, error)

	// AssessDeviceSecurity computes trust and risk for an observation without
	// side effects.
	AssessDeviceSecurity(ctx context.Context, userID string, info DeviceInfo) (*SecurityAssessment, error)

	GetDevice(ctx context.Context, id string) (*model.Device, error)
	GetUserDevices(ctx context.Context, userID string) ([]*model.Device, error)
}

type deviceUsecase struct {
	deviceRepo repository.DeviceRepository
	weights    RiskWeights
}

// NewDeviceUsecase creates a DeviceUsecase with the given risk weights.
func NewDeviceUsecase(deviceRepo repository.DeviceRepository, weights RiskWeights) DeviceUsecase {
	return &deviceUsecase{
		deviceRepo: deviceRepo,
		weights:    weights,
	}
}

func (u *deviceUsecase) RecordDeviceInfo(
	ctx context.Context,
	userID string,
	info DeviceInfo,
) (*model.Device, bool, error) {
	fingerprint := Fingerprint(info)
	now := time.Now()

	device, err := u.deviceRepo.GetDeviceByFingerprint(ctx, userID, fingerprint)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			return nil, false, err
		}

		created, err := u.deviceRepo.CreateDevice(ctx, &model.Device{
			UserID:      userID,
			Name:        deviceName(info),
			Fingerprint: fingerprint,
			UserAgent:   info.UserAgent,
			Browser:     info.Browser,
			OS:          info.OS,
			DeviceType:  info.DeviceType,
			Timezone:    info.Timezone,
			LastActive:  now,
			IPAddresses: ipHistory(info.IPAddress),
			TrustScore:  initialTrustScore,
		})
		if err == nil {
			return created, true, nil
		}
		if !errors.Is(err, repository.ErrDuplicateKey) {
			return nil, false, err
		}

		// A concurrent login won the insert; use their row.
		device, err = u.deviceRepo.GetDeviceByFingerprint(ctx, userID, fingerprint)
		if err != nil {
			return nil, false, err
		}
	}

	score, _ := u.weights.Score(device, info)
	trust := device.TrustScore + trustScoreStep
	if RiskLevel(score) == RiskHigh {
		trust = device.TrustScore - trustScorePenalty
	}
	trust = clampTrust(trust)

	touched, err := u.deviceRepo.TouchDevice(ctx, device.ID.Hex(), info.IPAddress, trust, now)
	if err != nil {
		return nil, false, err
	}

	return touched, false, nil
}

func (u *deviceUsecase) VerifyDeviceConsistency(
	ctx context.Context,
	userID string,
	info DeviceInfo,
) (*model.Device, bool, error) {
	device, err := u.deviceRepo.GetDeviceByFingerprint(ctx, userID, Fingerprint(info))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}

	return device, true, nil
}

func (u *deviceUsecase) AssessDeviceSecurity(
	ctx context.Context,
	userID string,
	info DeviceInfo,
) (*SecurityAssessment, error) {
	device, _, err := u.VerifyDeviceConsistency(ctx, userID, info)
	if err != nil {
		return nil, err
	}

	score, signals := u.weights.Score(device, info)

	assessment := &SecurityAssessment{
		RiskScore: score,
		RiskLevel: RiskLevel(score),
		Signals:   signals,
	}
	if device != nil {
		assessment.DeviceID = device.ID.Hex()
		assessment.TrustScore = device.TrustScore
		assessment.TrustLevel = trustLevel(device.TrustScore)
	} else {
		assessment.TrustLevel = "untrusted"
	}

	return assessment, nil
}

func (u *deviceUsecase) GetDevice(ctx context.Context, id string) (*model.Device, error) {
	return u.deviceRepo.GetDevice(ctx, id)
}

func (u *deviceUsecase) GetUserDevices(ctx context.Context, userID string) ([]*model.Device, error) {
	return u.deviceRepo.GetUserDevices(ctx, userID)
}

func deviceName(info DeviceInfo) string {
	parts := make([]string, 0, 2)
	if info.Browser != "" {
		parts = append(parts, info.Browser)
	}
	if info.OS != "" {
		parts = append(parts, "on "+info.OS)
	}
	if len(parts) == 0 {
		return "Unknown device"
	}
	return strings.Join(parts, " ")
}

func ipHistory(ip string) []string {
	if ip == "" {
		return nil
	}
	return []string{ip}
}

func clampTrust(score int) int {
	if score > maxTrustScore {
		return maxTrustScore
	}
	if score < trustedScoreFloor {
		return trustedScoreFloor
	}
	return score
}

func trustLevel(score int) string {
	if score >= verifiedTrustLevel {
		return "trusted"
	}
	if score >= initialTrustScore {
		return "known"
	}
	return "suspect"
}
