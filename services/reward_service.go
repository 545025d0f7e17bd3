// services/reward_service.go
package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"bargain-arcade/models"
	"bargain-arcade/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DiscountCreator is the external discount-code creation interface.
// *ShopifyClient satisfies it in production; tests inject a fake.
type DiscountCreator interface {
	CreateDiscountCode(shop *models.Shop, req DiscountCodeRequest) (*DiscountCodeResult, error)
}

// RewardService orchestrates the finish flow: score validation, tier
// resolution, quota metering, external issuance and the local ledger write.
// Side effects after validation are best-effort and never fail the player.
type RewardService struct {
	DB       *gorm.DB
	Sessions *SessionService
	Config   *ConfigService
	Usage    *UsageService
	Shopify  DiscountCreator
}

func NewRewardService(db *gorm.DB, sessions *SessionService, config *ConfigService, usage *UsageService, shopify DiscountCreator) *RewardService {
	return &RewardService{DB: db, Sessions: sessions, Config: config, Usage: usage, Shopify: shopify}
}

// FinishSession handles POST /sessions/finish.
func (s *RewardService) FinishSession(c *fiber.Ctx) error {
	var req struct {
		SessionID   string          `json:"sessionId"`
		ShopDomain  string          `json:"shopDomain"` // only needed to recover ephemeral sessions
		FinalScore  *int            `json:"finalScore"`
		GameData    json.RawMessage `json:"gameData"`
		PlayerEmail string          `json:"playerEmail"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "error": "Invalid request body"})
	}
	if req.SessionID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "error": "sessionId is required"})
	}
	if req.FinalScore == nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "error": "finalScore is required"})
	}
	score := *req.FinalScore
	if score < 0 || score > models.MaxScore {
		// Fraud validation: out-of-range scores are rejected before any
		// counter or session state is touched.
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "error": "finalScore failed validation"})
	}

	ephemeral := models.IsEphemeral(req.SessionID)
	var session *models.GameSession
	shopDomain := req.ShopDomain

	if ephemeral {
		if shopDomain == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "error": "shopDomain is required for this session"})
		}
	} else {
		var err error
		session, err = s.Sessions.Get(req.SessionID)
		if err != nil {
			zap.L().Error("failed to load session at finish", zap.String("session", req.SessionID), zap.Error(err))
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"success": false, "error": "DB error"})
		}
		if session == nil {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"success": false, "error": "Session not found"})
		}
		if session.Completed {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{"success": false, "error": "Session already completed"})
		}
		shopDomain = session.ShopDomain
	}

	config, err := s.Config.GetConfig(shopDomain)
	if err != nil {
		zap.L().Error("failed to load config at finish", zap.String("shop", shopDomain), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"success": false, "error": "failed to load configuration"})
	}

	if len(config.Tiers) == 0 {
		s.recordCompletion(req.SessionID, shopDomain, session, req.PlayerEmail, score, 0, "")
		return c.JSON(fiber.Map{
			"success":        true,
			"discountEarned": 0,
			"message":        "Discount tiers are not configured for this shop yet.",
		})
	}

	discount := ResolveTier(score, config.Tiers)
	nextTier := NextTierThreshold(score, config.Tiers)

	if discount == 0 {
		s.recordCompletion(req.SessionID, shopDomain, session, req.PlayerEmail, score, 0, "")
		resp := fiber.Map{
			"success":        true,
			"discountEarned": 0,
			"message":        "Good game! Keep playing to reach a discount tier.",
		}
		if nextTier != nil {
			resp["nextTierScore"] = *nextTier
			resp["message"] = fmt.Sprintf("Good game! Score %d or more to earn a discount.", *nextTier)
		}
		return c.JSON(resp)
	}

	usage, err := s.Usage.Increment(shopDomain, models.MetricDiscountCodes, 1)
	if err != nil {
		// Quota store unreachable: fail closed for issuance so external-API
		// spend stays bounded.
		zap.L().Error("quota check unavailable, denying issuance", zap.String("shop", shopDomain), zap.Error(err))
		usage.LimitReached = true
	}
	if usage.LimitReached {
		s.recordCompletion(req.SessionID, shopDomain, session, req.PlayerEmail, score, 0, "")
		resp := fiber.Map{
			"success":        true,
			"discountEarned": 0,
			"message":        "This shop's discount budget for the month has been used up. Come back next month!",
		}
		if nextTier != nil {
			resp["nextTierScore"] = *nextTier
		}
		return c.JSON(resp)
	}

	code, err := utils.GenerateDiscountCode()
	if err != nil {
		zap.L().Error("code generation failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"success": false, "error": "failed to generate discount code"})
	}
	expiresAt := time.Now().Add(time.Duration(config.DiscountExpiryHours) * time.Hour)

	s.issueCode(shopDomain, req.SessionID, session, req.PlayerEmail, code, discount, expiresAt)
	s.recordCompletion(req.SessionID, shopDomain, session, req.PlayerEmail, score, discount, code)

	if len(req.GameData) > 0 && utils.R2Enabled() {
		payload := make([]byte, len(req.GameData))
		copy(payload, req.GameData)
		sessionID := req.SessionID
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
			defer cancel()
			if err := utils.ArchiveTelemetry(ctx, shopDomain, sessionID, payload); err != nil {
				zap.L().Warn("telemetry archive failed", zap.String("session", sessionID), zap.Error(err))
			}
		}()
	}

	resp := fiber.Map{
		"success":        true,
		"discountEarned": discount,
		"discountCode":   code,
		"expiresAt":      expiresAt,
		"message":        fmt.Sprintf("Congratulations! You scored %d and earned %d%% off.", score, discount),
	}
	if nextTier != nil {
		resp["nextTierScore"] = *nextTier
	}
	return c.JSON(resp)
}

// issueCode creates the code on the commerce platform and writes the ledger
// entry. External failure does not release the consumed quota unit; the
// entry is persisted as pending and the issuance retry worker re-drives it.
func (s *RewardService) issueCode(shopDomain, sessionID string, session *models.GameSession, playerEmail, code string, discount int, expiresAt time.Time) {
	entry := models.DiscountCode{
		Code:       code,
		ShopDomain: shopDomain,
		SessionID:  sessionID,
		Value:      discount,
		Type:       "percentage",
		ExpiresAt:  expiresAt,
		SyncStatus: models.SyncStatusPending,
	}
	if session != nil {
		entry.CustomerID = session.CustomerID
		entry.CustomerEmail = session.CustomerEmail
	}
	if playerEmail != "" {
		entry.CustomerEmail = playerEmail
	}

	var shop models.Shop
	if err := s.DB.First(&shop, "domain = ?", shopDomain).Error; err != nil {
		zap.L().Error("shop record missing, ledger entry left pending",
			zap.String("shop", shopDomain), zap.Error(err))
	} else {
		result, err := s.Shopify.CreateDiscountCode(&shop, DiscountCodeRequest{
			Code:      code,
			Value:     discount,
			ExpiresAt: expiresAt,
		})
		if err != nil {
			zap.L().Error("external issuance failed, retry worker will pick it up",
				zap.String("shop", shopDomain), zap.String("code", code), zap.Error(err))
			entry.SyncAttempts = 1
		} else {
			entry.PriceRuleID = result.PriceRuleID
			entry.DiscountCodeID = result.DiscountCodeID
			entry.SyncStatus = models.SyncStatusSynced
		}
	}

	if err := s.DB.Create(&entry).Error; err != nil {
		zap.L().Error("failed to persist discount ledger entry",
			zap.String("shop", shopDomain), zap.String("code", code), zap.Error(err))
	}
}

// recordCompletion marks the session completed and records the score, all
// best-effort: failures are logged, never propagated to the player.
func (s *RewardService) recordCompletion(sessionID, shopDomain string, session *models.GameSession, playerEmail string, score, discount int, code string) {
	if models.IsEphemeral(sessionID) {
		info := RequesterInfo{CustomerEmail: playerEmail}
		if _, err := s.Sessions.RecordEphemeral(sessionID, shopDomain, info, score, discount, code); err != nil {
			zap.L().Error("failed to record ephemeral session", zap.String("session", sessionID), zap.Error(err))
		}
	} else {
		if err := s.Sessions.Complete(sessionID, score, discount, code); err != nil {
			if errors.Is(err, ErrSessionCompleted) {
				zap.L().Warn("session completed concurrently", zap.String("session", sessionID))
			} else {
				zap.L().Error("failed to complete session", zap.String("session", sessionID), zap.Error(err))
			}
		}
		if playerEmail != "" {
			s.DB.Model(&models.GameSession{}).
				Where("session_id = ?", sessionID).
				Update("customer_email", playerEmail)
		}
	}

	scoreEntry := models.ScoreEntry{
		ID:         uuid.NewString(),
		SessionID:  sessionID,
		ShopDomain: shopDomain,
		Score:      score,
		Discount:   discount,
	}
	if session != nil {
		scoreEntry.CustomerID = session.CustomerID
	}
	if err := s.DB.Create(&scoreEntry).Error; err != nil {
		zap.L().Error("failed to record score entry", zap.String("session", sessionID), zap.Error(err))
	}

	if session != nil && session.CustomerID != "" {
		s.updatePlayerStats(shopDomain, session.CustomerID, score)
	}
}

// updatePlayerStats upserts the per-customer aggregate (best and total
// score, play count) in one conflict-handled insert.
func (s *RewardService) updatePlayerStats(shopDomain, customerID string, score int) {
	now := time.Now()
	stats := models.PlayerStats{
		ID:           uuid.NewString(),
		ShopDomain:   shopDomain,
		CustomerID:   customerID,
		BestScore:    score,
		TotalScore:   int64(score),
		TotalPlays:   1,
		LastPlayedAt: &now,
	}

	err := s.DB.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "shop_domain"}, {Name: "customer_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"best_score":     gorm.Expr("CASE WHEN excluded.best_score > player_stats.best_score THEN excluded.best_score ELSE player_stats.best_score END"),
			"total_score":    gorm.Expr("player_stats.total_score + excluded.total_score"),
			"total_plays":    gorm.Expr("player_stats.total_plays + 1"),
			"last_played_at": now,
		}),
	}).Create(&stats).Error
	if err != nil {
		zap.L().Error("failed to update player stats",
			zap.String("shop", shopDomain), zap.String("customer", customerID), zap.Error(err))
	}
}
