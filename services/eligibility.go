// services/eligibility.go
package services

import (
	"time"

	"bargain-arcade/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Denial reasons surfaced to the storefront.
const (
	ReasonShopInactive = "shop_inactive"
	ReasonIPLimit      = "ip_limit"
	ReasonDailyLimit   = "daily_limit"
)

// recentSessionWindow bounds how many sessions the gate loads per check.
// Plenty for any realistic daily limit; keeps the start path one cheap query.
const recentSessionWindow = 200

type EligibilityService struct {
	DB *gorm.DB
}

func NewEligibilityService(db *gorm.DB) *EligibilityService {
	return &EligibilityService{DB: db}
}

// Eligibility is the gate's verdict for one start request.
type Eligibility struct {
	CanPlay        bool   `json:"can_play"`
	Reason         string `json:"reason,omitempty"`
	PlaysRemaining int    `json:"plays_remaining"`
}

// CanStartSession decides whether a requester may start a new session.
//
// This is a read-then-decide check, not a reservation: two concurrent starts
// from the same IP can both observe N-1 plays used and both be admitted.
// Accepted trade-off; the checks re-run on every call and the window is
// low-value to abuse.
func (s *EligibilityService) CanStartSession(config *models.GameConfig, ipAddress string) (Eligibility, error) {
	if config == nil || !config.IsEnabled {
		return Eligibility{CanPlay: false, Reason: ReasonShopInactive}, nil
	}

	var recent []models.GameSession
	if err := s.DB.Where("shop_domain = ?", config.ShopDomain).
		Order("started_at DESC").
		Limit(recentSessionWindow).
		Find(&recent).Error; err != nil {
		zap.L().Error("eligibility: failed to load recent sessions",
			zap.String("shop", config.ShopDomain), zap.Error(err))
		return Eligibility{}, err
	}

	now := time.Now()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	ipCompleted := 0
	today := 0
	for _, sess := range recent {
		if sess.Completed && sess.IPAddress == ipAddress {
			ipCompleted++
		}
		if !sess.StartedAt.Before(midnight) {
			today++
		}
	}

	ipRemaining := config.MaxPlaysPerCustomer - ipCompleted
	dayRemaining := config.MaxPlaysPerDay - today

	if ipRemaining <= 0 {
		return Eligibility{CanPlay: false, Reason: ReasonIPLimit}, nil
	}
	if dayRemaining <= 0 {
		return Eligibility{CanPlay: false, Reason: ReasonDailyLimit}, nil
	}

	remaining := ipRemaining
	if dayRemaining < remaining {
		remaining = dayRemaining
	}
	return Eligibility{CanPlay: true, PlaysRemaining: remaining}, nil
}
