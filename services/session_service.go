// services/session_service.go
package services

import (
	"errors"
	"time"

	"bargain-arcade/models"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ErrSessionCompleted is returned when a finish call targets a session that
// already completed. Sessions transition pending → completed exactly once.
var ErrSessionCompleted = errors.New("session already completed")

type SessionService struct {
	DB          *gorm.DB
	Config      *ConfigService
	Eligibility *EligibilityService
	Usage       *UsageService
}

func NewSessionService(db *gorm.DB, config *ConfigService, eligibility *EligibilityService, usage *UsageService) *SessionService {
	return &SessionService{DB: db, Config: config, Eligibility: eligibility, Usage: usage}
}

// RequesterInfo is what the start call knows about the player.
type RequesterInfo struct {
	CustomerID    string
	CustomerEmail string
	IPAddress     string
	UserAgent     string
	Source        string
	Referrer      string
}

// Create persists a new pending session and returns its ID. On storage
// failure it still hands back an ephemeral ID so gameplay is never blocked
// by a storage outage; the finish call records it retroactively.
func (s *SessionService) Create(shopDomain string, info RequesterInfo) string {
	session := models.GameSession{
		SessionID:     uuid.NewString(),
		ShopDomain:    shopDomain,
		CustomerID:    info.CustomerID,
		CustomerEmail: info.CustomerEmail,
		IPAddress:     info.IPAddress,
		UserAgent:     info.UserAgent,
		Source:        info.Source,
		Referrer:      info.Referrer,
		StartedAt:     time.Now(),
	}

	if err := s.DB.Create(&session).Error; err != nil {
		zap.L().Error("failed to persist session, issuing ephemeral id",
			zap.String("shop", shopDomain), zap.Error(err))
		return models.EphemeralSessionPrefix + uuid.NewString()
	}
	return session.SessionID
}

// Get returns the session or nil when no durable record exists.
func (s *SessionService) Get(sessionID string) (*models.GameSession, error) {
	var session models.GameSession
	err := s.DB.First(&session, "session_id = ?", sessionID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// Complete marks a pending session completed with its final score and any
// earned reward. The guard is a conditional update: a session that already
// completed is left untouched and ErrSessionCompleted is returned.
func (s *SessionService) Complete(sessionID string, score, discountEarned int, code string) error {
	now := time.Now()
	res := s.DB.Model(&models.GameSession{}).
		Where("session_id = ? AND completed = ?", sessionID, false).
		Updates(map[string]interface{}{
			"completed":       true,
			"ended_at":        now,
			"final_score":     score,
			"discount_earned": discountEarned,
			"discount_code":   code,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrSessionCompleted
	}
	return nil
}

// RecordEphemeral retroactively persists a session that was started while
// storage was down, already completed, purely so it counts against the
// eligibility limits.
func (s *SessionService) RecordEphemeral(sessionID, shopDomain string, info RequesterInfo, score, discountEarned int, code string) (*models.GameSession, error) {
	now := time.Now()
	session := models.GameSession{
		SessionID:      sessionID,
		ShopDomain:     shopDomain,
		CustomerID:     info.CustomerID,
		CustomerEmail:  info.CustomerEmail,
		IPAddress:      info.IPAddress,
		UserAgent:      info.UserAgent,
		Source:         info.Source,
		StartedAt:      now,
		EndedAt:        &now,
		FinalScore:     &score,
		DiscountEarned: discountEarned,
		DiscountCode:   code,
		Completed:      true,
	}
	if err := s.DB.Create(&session).Error; err != nil {
		return nil, err
	}
	return &session, nil
}

// --- HTTP handlers ---

// StartSession admits or denies a new play session and returns the config
// snapshot the game UI needs (tiers, limits).
func (s *SessionService) StartSession(c *fiber.Ctx) error {
	var req struct {
		ShopDomain   string `json:"shopDomain"`
		Source       string `json:"source"`
		Referrer     string `json:"referrer"`
		CustomerData struct {
			ID    string `json:"id"`
			Email string `json:"email"`
		} `json:"customerData"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "error": "Invalid request body"})
	}
	if req.ShopDomain == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "error": "shopDomain is required"})
	}

	config, err := s.Config.GetConfig(req.ShopDomain)
	if err != nil {
		zap.L().Error("failed to load config at session start",
			zap.String("shop", req.ShopDomain), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"success": false, "error": "failed to load configuration"})
	}

	eligibility, err := s.Eligibility.CanStartSession(config, c.IP())
	if err != nil {
		// Gate unavailable: admit. Gameplay is never blocked on storage.
		eligibility = Eligibility{CanPlay: true, PlaysRemaining: config.MaxPlaysPerCustomer}
	}

	if !eligibility.CanPlay {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"success":        false,
			"canPlay":        false,
			"error":          eligibility.Reason,
			"playsRemaining": 0,
		})
	}

	info := RequesterInfo{
		CustomerID:    req.CustomerData.ID,
		CustomerEmail: req.CustomerData.Email,
		IPAddress:     c.IP(),
		UserAgent:     c.Get("User-Agent"),
		Source:        req.Source,
		Referrer:      req.Referrer,
	}
	sessionID := s.Create(req.ShopDomain, info)

	// Informational metric, fail open.
	if _, err := s.Usage.Increment(req.ShopDomain, models.MetricGameSessions, 1); err != nil {
		zap.L().Warn("session counter increment failed", zap.String("shop", req.ShopDomain), zap.Error(err))
	}

	return c.JSON(fiber.Map{
		"success":        true,
		"sessionId":      sessionID,
		"canPlay":        true,
		"playsRemaining": eligibility.PlaysRemaining,
		"gameConfig": fiber.Map{
			"gameVariant":         config.GameVariant,
			"maxPlaysPerCustomer": config.MaxPlaysPerCustomer,
			"maxPlaysPerDay":      config.MaxPlaysPerDay,
			"discountExpiryHours": config.DiscountExpiryHours,
			"tiers":               config.Tiers,
		},
	})
}

// GetSessionEndpoint exposes a single session for dashboard drill-down.
func (s *SessionService) GetSessionEndpoint(c *fiber.Ctx) error {
	sessionID := c.Params("id")
	if sessionID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "session id is required"})
	}

	session, err := s.Get(sessionID)
	if err != nil {
		zap.L().Error("failed to load session", zap.String("session", sessionID), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error"})
	}
	if session == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Session not found"})
	}
	return c.JSON(session)
}
