package usecase

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheSpideX/supporthub-api/services/auth-service/internal/repository"
)

func chromeOnMac() DeviceInfo {
	return DeviceInfo{
		UserAgent:        "Mozilla/5.0 (Macintosh)",
		Browser:          "Chrome",
		OS:               "macOS",
		DeviceType:       "desktop",
		Platform:         "MacIntel",
		ScreenResolution: "2560x1440",
		Timezone:         "Europe/Berlin",
		Language:         "en-US",
		IPAddress:        "198.51.100.7",
	}
}

func TestFingerprint_Deterministic(t *testing.T) {
	info := chromeOnMac()

	first := Fingerprint(info)
	second := Fingerprint(info)
	assert.Equal(t, first, second)
	assert.Len(t, first, 64)
}

func TestFingerprint_IgnoresVolatileSignals(t *testing.T) {
	info := chromeOnMac()
	fingerprint := Fingerprint(info)

	info.IPAddress = "203.0.113.50"
	assert.Equal(t, fingerprint, Fingerprint(info))
}

func TestFingerprint_ChangesWithAnySignal(t *testing.T) {
	base := Fingerprint(chromeOnMac())

	changed := chromeOnMac()
	changed.Browser = "Firefox"
	assert.NotEqual(t, base, Fingerprint(changed))

	changed = chromeOnMac()
	changed.ScreenResolution = "1920x1080"
	assert.NotEqual(t, base, Fingerprint(changed))
}

func TestRecordDeviceInfo_FindOrCreate(t *testing.T) {
	devices := NewDeviceUsecase(repository.NewDeviceMemoryRepository(), DefaultRiskWeights)
	ctx := context.Background()

	device, created, err := devices.RecordDeviceInfo(ctx, "user-1", chromeOnMac())
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, 40, device.TrustScore)
	assert.Equal(t, []string{"198.51.100.7"}, device.IPAddresses)

	// Same signals again resolve to the same device and raise trust.
	again, created, err := devices.RecordDeviceInfo(ctx, "user-1", chromeOnMac())
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, device.ID, again.ID)
	assert.Equal(t, 45, again.TrustScore)

	all, err := devices.GetUserDevices(ctx, "user-1")
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestRecordDeviceInfo_SkipsEmptyIP(t *testing.T) {
	devices := NewDeviceUsecase(repository.NewDeviceMemoryRepository(), DefaultRiskWeights)
	ctx := context.Background()

	device, _, err := devices.RecordDeviceInfo(ctx, "user-1", chromeOnMac())
	require.NoError(t, err)
	require.Equal(t, []string{"198.51.100.7"}, device.IPAddresses)

	// A revisit with no reported address must not record an empty entry.
	info := chromeOnMac()
	info.IPAddress = ""
	again, created, err := devices.RecordDeviceInfo(ctx, "user-1", info)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, []string{"198.51.100.7"}, again.IPAddresses)
}

func TestRecordDeviceInfo_ConcurrentSameFingerprint(t *testing.T) {
	devices := NewDeviceUsecase(repository.NewDeviceMemoryRepository(), DefaultRiskWeights)
	ctx := context.Background()

	const logins = 12
	var wg sync.WaitGroup
	errs := make([]error, logins)

	for i := 0; i < logins; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _, errs[i] = devices.RecordDeviceInfo(ctx, "user-1", chromeOnMac())
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}

	all, err := devices.GetUserDevices(ctx, "user-1")
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestRecordDeviceInfo_DistinctFingerprints(t *testing.T) {
	devices := NewDeviceUsecase(repository.NewDeviceMemoryRepository(), DefaultRiskWeights)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		info := chromeOnMac()
		info.ScreenResolution = fmt.Sprintf("1920x%d", 1000+i)
		_, created, err := devices.RecordDeviceInfo(ctx, "user-1", info)
		require.NoError(t, err)
		assert.True(t, created)
	}

	all, err := devices.GetUserDevices(ctx, "user-1")
	require.NoError(t, err)
	assert.Len(t, all, 4)
}

func TestScore_MonotonicInMismatches(t *testing.T) {
	weights := DefaultRiskWeights

	// Unknown fingerprint scores higher than any known-device observation.
	unknownScore, signals := weights.Score(nil, chromeOnMac())
	assert.GreaterOrEqual(t, unknownScore, 60)
	assert.Contains(t, signals, "unknown_fingerprint")

	devices := NewDeviceUsecase(repository.NewDeviceMemoryRepository(), weights)
	ctx := context.Background()
	device, _, err := devices.RecordDeviceInfo(ctx, "user-1", chromeOnMac())
	require.NoError(t, err)

	sameScore, _ := weights.Score(device, chromeOnMac())
	assert.Equal(t, 0, sameScore)

	newIP := chromeOnMac()
	newIP.IPAddress = "203.0.113.50"
	ipScore, _ := weights.Score(device, newIP)

	newIPAndTZ := newIP
	newIPAndTZ.Timezone = "America/New_York"
	bothScore, bothSignals := weights.Score(device, newIPAndTZ)

	assert.Greater(t, ipScore, sameScore)
	assert.Greater(t, bothScore, ipScore)
	assert.ElementsMatch(t, []string{"new_ip", "timezone_mismatch"}, bothSignals)
}

func TestRiskLevel_Thresholds(t *testing.T) {
	assert.Equal(t, RiskLow, RiskLevel(0))
	assert.Equal(t, RiskLow, RiskLevel(29))
	assert.Equal(t, RiskMedium, RiskLevel(30))
	assert.Equal(t, RiskMedium, RiskLevel(59))
	assert.Equal(t, RiskHigh, RiskLevel(60))
	assert.Equal(t, RiskHigh, RiskLevel(90))
}

func TestAssessDeviceSecurity_UnknownDevice(t *testing.T) {
	devices := NewDeviceUsecase(repository.NewDeviceMemoryRepository(), DefaultRiskWeights)
	ctx := context.Background()

	assessment, err := devices.AssessDeviceSecurity(ctx, "user-1", chromeOnMac())
	require.NoError(t, err)
	assert.Equal(t, RiskHigh, assessment.RiskLevel)
	assert.Equal(t, "untrusted", assessment.TrustLevel)
	assert.Empty(t, assessment.DeviceID)
}
