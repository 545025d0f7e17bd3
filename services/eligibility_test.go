package services

import (
	"testing"
	"time"

	"bargain-arcade/models"
	"bargain-arcade/services/testutil"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func seedSession(t *testing.T, svc *EligibilityService, shop, ip string, completed bool, startedAt time.Time) {
	t.Helper()
	session := models.GameSession{
		SessionID:  uuid.NewString(),
		ShopDomain: shop,
		IPAddress:  ip,
		StartedAt:  startedAt,
		Completed:  completed,
	}
	require.NoError(t, svc.DB.Create(&session).Error)
}

func gateConfig(shop string) *models.GameConfig {
	return &models.GameConfig{
		ShopDomain:          shop,
		IsEnabled:           true,
		MaxPlaysPerCustomer: 3,
		MaxPlaysPerDay:      10,
	}
}

func TestCanStartSessionShopInactive(t *testing.T) {
	db := testutil.NewTestDB(t, &models.GameSession{})
	svc := NewEligibilityService(db)

	config := gateConfig("gate.myshopify.com")
	config.IsEnabled = false

	res, err := svc.CanStartSession(config, "1.2.3.4")
	require.NoError(t, err)
	require.False(t, res.CanPlay)
	require.Equal(t, ReasonShopInactive, res.Reason)
	require.Zero(t, res.PlaysRemaining)
}

func TestCanStartSessionIPLimit(t *testing.T) {
	db := testutil.NewTestDB(t, &models.GameSession{})
	svc := NewEligibilityService(db)
	shop := "gate.myshopify.com"

	// 3 completed plays from the same IP against maxPlaysPerCustomer=3.
	for i := 0; i < 3; i++ {
		seedSession(t, svc, shop, "10.0.0.1", true, time.Now().Add(-time.Hour))
	}

	res, err := svc.CanStartSession(gateConfig(shop), "10.0.0.1")
	require.NoError(t, err)
	require.False(t, res.CanPlay)
	require.Equal(t, ReasonIPLimit, res.Reason)
	require.Zero(t, res.PlaysRemaining)

	// A different IP is unaffected by that cap.
	res, err = svc.CanStartSession(gateConfig(shop), "10.0.0.2")
	require.NoError(t, err)
	require.True(t, res.CanPlay)
}

func TestCanStartSessionIncompletePlaysDoNotCountAgainstIP(t *testing.T) {
	db := testutil.NewTestDB(t, &models.GameSession{})
	svc := NewEligibilityService(db)
	shop := "gate.myshopify.com"

	for i := 0; i < 5; i++ {
		seedSession(t, svc, shop, "10.0.0.1", false, time.Now().Add(-26*time.Hour))
	}

	res, err := svc.CanStartSession(gateConfig(shop), "10.0.0.1")
	require.NoError(t, err)
	require.True(t, res.CanPlay)
}

func TestCanStartSessionDailyLimit(t *testing.T) {
	db := testutil.NewTestDB(t, &models.GameSession{})
	svc := NewEligibilityService(db)
	shop := "gate.myshopify.com"

	// 10 sessions since midnight from assorted IPs, completion irrelevant.
	for i := 0; i < 10; i++ {
		seedSession(t, svc, shop, "172.16.0.9", i%2 == 0, time.Now().Add(-time.Minute))
	}

	res, err := svc.CanStartSession(gateConfig(shop), "10.0.0.1")
	require.NoError(t, err)
	require.False(t, res.CanPlay)
	require.Equal(t, ReasonDailyLimit, res.Reason)
}

func TestCanStartSessionYesterdayDoesNotCountToday(t *testing.T) {
	db := testutil.NewTestDB(t, &models.GameSession{})
	svc := NewEligibilityService(db)
	shop := "gate.myshopify.com"

	for i := 0; i < 10; i++ {
		seedSession(t, svc, shop, "172.16.0.9", false, time.Now().Add(-30*time.Hour))
	}

	res, err := svc.CanStartSession(gateConfig(shop), "10.0.0.1")
	require.NoError(t, err)
	require.True(t, res.CanPlay)
}

func TestCanStartSessionPlaysRemaining(t *testing.T) {
	db := testutil.NewTestDB(t, &models.GameSession{})
	svc := NewEligibilityService(db)
	shop := "gate.myshopify.com"

	// One completed play used out of 3 per IP; 8 of 10 daily slots used.
	seedSession(t, svc, shop, "10.0.0.1", true, time.Now().Add(-time.Minute))
	for i := 0; i < 7; i++ {
		seedSession(t, svc, shop, "172.16.0.9", false, time.Now().Add(-time.Minute))
	}

	res, err := svc.CanStartSession(gateConfig(shop), "10.0.0.1")
	require.NoError(t, err)
	require.True(t, res.CanPlay)
	// min(3-1 per IP, 10-8 today) = 2
	require.Equal(t, 2, res.PlaysRemaining)
}
