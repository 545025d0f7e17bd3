package services

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"bargain-arcade/models"
	"bargain-arcade/services/testutil"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fakeDiscountCreator struct {
	calls   int
	fail    bool
	lastReq DiscountCodeRequest
}

func (f *fakeDiscountCreator) CreateDiscountCode(shop *models.Shop, req DiscountCodeRequest) (*DiscountCodeResult, error) {
	f.calls++
	f.lastReq = req
	if f.fail {
		return nil, errors.New("shopify unreachable")
	}
	return &DiscountCodeResult{PriceRuleID: 111, DiscountCodeID: 222}, nil
}

type rewardFixture struct {
	db      *gorm.DB
	app     *fiber.App
	reward  *RewardService
	session *SessionService
	creator *fakeDiscountCreator
}

func newRewardFixture(t *testing.T) *rewardFixture {
	t.Helper()
	db := testutil.NewTestDB(t,
		&models.Shop{}, &models.GameConfig{}, &models.DiscountTier{},
		&models.GameSession{}, &models.ScoreEntry{}, &models.PlayerStats{},
		&models.DiscountCode{}, &models.UsageRecord{})

	config := NewConfigService(db)
	usage := NewUsageService(db)
	eligibility := NewEligibilityService(db)
	sessions := NewSessionService(db, config, eligibility, usage)
	creator := &fakeDiscountCreator{}
	reward := NewRewardService(db, sessions, config, usage, creator)

	app := fiber.New()
	app.Post("/sessions/finish", reward.FinishSession)

	return &rewardFixture{db: db, app: app, reward: reward, session: sessions, creator: creator}
}

func (f *rewardFixture) seedShop(t *testing.T, domain string, tiers []models.DiscountTier) {
	t.Helper()
	require.NoError(t, f.db.Create(&models.Shop{Domain: domain, AccessToken: "tok", Plan: models.PlanFree}).Error)
	require.NoError(t, f.db.Create(&models.GameConfig{
		ShopDomain:          domain,
		IsEnabled:           true,
		MaxPlaysPerCustomer: 3,
		MaxPlaysPerDay:      100,
		DiscountExpiryHours: 24,
	}).Error)
	for i := range tiers {
		tiers[i].ID = domain + "-tier-" + string(rune('a'+i))
		tiers[i].ShopDomain = domain
		require.NoError(t, f.db.Create(&tiers[i]).Error)
	}
}

func standardTiers() []models.DiscountTier {
	return []models.DiscountTier{
		{MinScore: 0, Discount: 0},
		{MinScore: 150, Discount: 5},
		{MinScore: 500, Discount: 15},
	}
}

type finishResponse struct {
	Success        bool       `json:"success"`
	DiscountEarned int        `json:"discountEarned"`
	DiscountCode   string     `json:"discountCode"`
	ExpiresAt      *time.Time `json:"expiresAt"`
	Message        string     `json:"message"`
	NextTierScore  *int       `json:"nextTierScore"`
	Error          string     `json:"error"`
}

func (f *rewardFixture) finish(t *testing.T, body map[string]interface{}) (int, finishResponse) {
	t.Helper()
	payload, _ := json.Marshal(body)
	req := httptest.NewRequest("POST", "/sessions/finish", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.app.Test(req)
	require.NoError(t, err)

	var out finishResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func TestFinishSessionEarnsMidTier(t *testing.T) {
	f := newRewardFixture(t)
	f.seedShop(t, "reward.myshopify.com", standardTiers())
	id := f.session.Create("reward.myshopify.com", RequesterInfo{IPAddress: "10.0.0.1"})

	status, out := f.finish(t, map[string]interface{}{"sessionId": id, "finalScore": 320})
	require.Equal(t, fiber.StatusOK, status)
	require.True(t, out.Success)
	require.Equal(t, 5, out.DiscountEarned)
	require.NotNil(t, out.NextTierScore)
	require.Equal(t, 500, *out.NextTierScore)
	require.True(t, strings.HasPrefix(out.DiscountCode, models.CodePrefix))
	require.NotNil(t, out.ExpiresAt)

	// Ledger entry synced with the external identifiers.
	var entry models.DiscountCode
	require.NoError(t, f.db.First(&entry, "session_id = ?", id).Error)
	require.Equal(t, out.DiscountCode, entry.Code)
	require.Equal(t, 5, entry.Value)
	require.Equal(t, models.SyncStatusSynced, entry.SyncStatus)
	require.Equal(t, int64(111), entry.PriceRuleID)
	require.False(t, entry.IsUsed)

	// Session completed, quota consumed, score recorded.
	session, _ := f.session.Get(id)
	require.True(t, session.Completed)
	require.Equal(t, 320, *session.FinalScore)

	var record models.UsageRecord
	require.NoError(t, f.db.First(&record, "shop_domain = ?", "reward.myshopify.com").Error)
	require.Equal(t, int64(1), record.DiscountCodesGenerated)

	var scores int64
	f.db.Model(&models.ScoreEntry{}).Where("session_id = ?", id).Count(&scores)
	require.Equal(t, int64(1), scores)

	require.Equal(t, 1, f.creator.calls)
	require.Equal(t, 5, f.creator.lastReq.Value)
}

func TestFinishSessionQuotaExceeded(t *testing.T) {
	f := newRewardFixture(t)
	f.seedShop(t, "maxed.myshopify.com", standardTiers())
	id := f.session.Create("maxed.myshopify.com", RequesterInfo{IPAddress: "10.0.0.1"})

	// Period already at the plan ceiling.
	limit := models.PlanLimits[models.PlanFree].DiscountCodes
	require.NoError(t, f.db.Create(&models.UsageRecord{
		ID:                     "rec-1",
		ShopDomain:             "maxed.myshopify.com",
		Month:                  models.UsageMonth(time.Now()),
		DiscountCodesGenerated: limit,
		LimitDiscountCodes:     limit,
		LimitGameSessions:      models.UnlimitedQuota,
	}).Error)

	status, out := f.finish(t, map[string]interface{}{"sessionId": id, "finalScore": 600})
	require.Equal(t, fiber.StatusOK, status)
	require.True(t, out.Success)
	require.Zero(t, out.DiscountEarned)
	require.Empty(t, out.DiscountCode)
	require.Contains(t, out.Message, "used up")

	// Counter untouched, no external call, no ledger entry.
	var record models.UsageRecord
	require.NoError(t, f.db.First(&record, "shop_domain = ?", "maxed.myshopify.com").Error)
	require.Equal(t, limit, record.DiscountCodesGenerated)
	require.Zero(t, f.creator.calls)

	var entries int64
	f.db.Model(&models.DiscountCode{}).Count(&entries)
	require.Zero(t, entries)

	// Session is still marked completed with zero reward.
	session, _ := f.session.Get(id)
	require.True(t, session.Completed)
	require.Zero(t, session.DiscountEarned)
}

func TestFinishSessionRejectsOutOfRangeScore(t *testing.T) {
	f := newRewardFixture(t)
	f.seedShop(t, "fraud.myshopify.com", standardTiers())
	id := f.session.Create("fraud.myshopify.com", RequesterInfo{IPAddress: "10.0.0.1"})

	for _, score := range []int{-1, models.MaxScore + 1, 999999} {
		status, out := f.finish(t, map[string]interface{}{"sessionId": id, "finalScore": score})
		require.Equal(t, fiber.StatusBadRequest, status)
		require.False(t, out.Success)
	}

	// Nothing mutated: session pending, no usage, no ledger.
	session, _ := f.session.Get(id)
	require.False(t, session.Completed)

	var count int64
	f.db.Model(&models.UsageRecord{}).Count(&count)
	require.Zero(t, count)
	f.db.Model(&models.DiscountCode{}).Count(&count)
	require.Zero(t, count)
}

func TestFinishSessionUnknownSession(t *testing.T) {
	f := newRewardFixture(t)
	f.seedShop(t, "shop.myshopify.com", standardTiers())

	status, out := f.finish(t, map[string]interface{}{"sessionId": "missing", "finalScore": 100})
	require.Equal(t, fiber.StatusNotFound, status)
	require.False(t, out.Success)
}

func TestFinishSessionDuplicateRejected(t *testing.T) {
	f := newRewardFixture(t)
	f.seedShop(t, "dup.myshopify.com", standardTiers())
	id := f.session.Create("dup.myshopify.com", RequesterInfo{IPAddress: "10.0.0.1"})

	status, _ := f.finish(t, map[string]interface{}{"sessionId": id, "finalScore": 320})
	require.Equal(t, fiber.StatusOK, status)

	status, out := f.finish(t, map[string]interface{}{"sessionId": id, "finalScore": 9000})
	require.Equal(t, fiber.StatusConflict, status)
	require.False(t, out.Success)

	// Only one reward for the session.
	var entries int64
	f.db.Model(&models.DiscountCode{}).Where("session_id = ?", id).Count(&entries)
	require.Equal(t, int64(1), entries)
}

func TestFinishSessionExternalIssuanceFailure(t *testing.T) {
	f := newRewardFixture(t)
	f.seedShop(t, "down.myshopify.com", standardTiers())
	f.creator.fail = true
	id := f.session.Create("down.myshopify.com", RequesterInfo{IPAddress: "10.0.0.1"})

	status, out := f.finish(t, map[string]interface{}{"sessionId": id, "finalScore": 800})
	require.Equal(t, fiber.StatusOK, status)
	require.True(t, out.Success)
	require.Equal(t, 15, out.DiscountEarned)
	// The player still gets the code; the retry worker owns the gap.
	require.NotEmpty(t, out.DiscountCode)

	var entry models.DiscountCode
	require.NoError(t, f.db.First(&entry, "session_id = ?", id).Error)
	require.Equal(t, models.SyncStatusPending, entry.SyncStatus)
	require.Equal(t, 1, entry.SyncAttempts)
	require.Zero(t, entry.PriceRuleID)

	// Quota stays consumed despite the failure.
	var record models.UsageRecord
	require.NoError(t, f.db.First(&record, "shop_domain = ?", "down.myshopify.com").Error)
	require.Equal(t, int64(1), record.DiscountCodesGenerated)
}

func TestFinishSessionNoTiersConfigured(t *testing.T) {
	f := newRewardFixture(t)
	f.seedShop(t, "bare.myshopify.com", nil)
	id := f.session.Create("bare.myshopify.com", RequesterInfo{IPAddress: "10.0.0.1"})

	status, out := f.finish(t, map[string]interface{}{"sessionId": id, "finalScore": 5000})
	require.Equal(t, fiber.StatusOK, status)
	require.True(t, out.Success)
	require.Zero(t, out.DiscountEarned)
	require.Contains(t, out.Message, "not configured")

	session, _ := f.session.Get(id)
	require.True(t, session.Completed)
}

func TestFinishSessionBelowLowestRewardTier(t *testing.T) {
	f := newRewardFixture(t)
	f.seedShop(t, "low.myshopify.com", standardTiers())
	id := f.session.Create("low.myshopify.com", RequesterInfo{IPAddress: "10.0.0.1"})

	status, out := f.finish(t, map[string]interface{}{"sessionId": id, "finalScore": 80})
	require.Equal(t, fiber.StatusOK, status)
	require.Zero(t, out.DiscountEarned)
	require.NotNil(t, out.NextTierScore)
	require.Equal(t, 150, *out.NextTierScore)
	require.Zero(t, f.creator.calls)
}

func TestFinishSessionEphemeralRecordedRetroactively(t *testing.T) {
	f := newRewardFixture(t)
	f.seedShop(t, "eph.myshopify.com", standardTiers())
	id := models.EphemeralSessionPrefix + "11112222"

	status, out := f.finish(t, map[string]interface{}{
		"sessionId":  id,
		"shopDomain": "eph.myshopify.com",
		"finalScore": 600,
	})
	require.Equal(t, fiber.StatusOK, status)
	require.Equal(t, 15, out.DiscountEarned)

	// The session now exists and counts against eligibility limits.
	session, err := f.session.Get(id)
	require.NoError(t, err)
	require.NotNil(t, session)
	require.True(t, session.Completed)
	require.Equal(t, 600, *session.FinalScore)
}

func TestFinishSessionEphemeralNeedsShopDomain(t *testing.T) {
	f := newRewardFixture(t)

	status, out := f.finish(t, map[string]interface{}{
		"sessionId":  models.EphemeralSessionPrefix + "33334444",
		"finalScore": 600,
	})
	require.Equal(t, fiber.StatusBadRequest, status)
	require.False(t, out.Success)
}

func TestFinishSessionUpdatesPlayerStats(t *testing.T) {
	f := newRewardFixture(t)
	f.seedShop(t, "stats.myshopify.com", standardTiers())

	first := f.session.Create("stats.myshopify.com", RequesterInfo{IPAddress: "10.0.0.1", CustomerID: "cust-1"})
	second := f.session.Create("stats.myshopify.com", RequesterInfo{IPAddress: "10.0.0.1", CustomerID: "cust-1"})

	status, _ := f.finish(t, map[string]interface{}{"sessionId": first, "finalScore": 300})
	require.Equal(t, fiber.StatusOK, status)
	status, _ = f.finish(t, map[string]interface{}{"sessionId": second, "finalScore": 250})
	require.Equal(t, fiber.StatusOK, status)

	var stats models.PlayerStats
	require.NoError(t, f.db.First(&stats, "shop_domain = ? AND customer_id = ?", "stats.myshopify.com", "cust-1").Error)
	require.Equal(t, 300, stats.BestScore)
	require.Equal(t, int64(550), stats.TotalScore)
	require.Equal(t, int64(2), stats.TotalPlays)
}
