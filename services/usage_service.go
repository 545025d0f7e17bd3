// services/usage_service.go
package services

import (
	"errors"
	"fmt"
	"time"

	"bargain-arcade/models"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrQuotaStoreUnavailable is returned when the usage store cannot be
// reached. For issuance-affecting metrics the caller must treat it like a
// reached limit (fail closed) so external-API cost stays bounded.
var ErrQuotaStoreUnavailable = errors.New("usage store unavailable")

const warningThreshold = 0.8

type UsageService struct {
	DB *gorm.DB
}

func NewUsageService(db *gorm.DB) *UsageService {
	return &UsageService{DB: db}
}

// UsageResult describes one increment attempt.
type UsageResult struct {
	Success          bool  `json:"success"`
	CurrentValue     int64 `json:"current_value"`
	Limit            int64 `json:"limit"`
	LimitReached     bool  `json:"limit_reached"`
	WarningTriggered bool  `json:"warning_triggered"`
}

// metric → counter column and limit column. Counters live in fixed columns
// rather than a generic k/v row so the guarded increment stays one UPDATE.
var usageColumns = map[string][2]string{
	models.MetricDiscountCodes: {"discount_codes_generated", "limit_discount_codes"},
	models.MetricGameSessions:  {"game_sessions", "limit_game_sessions"},
}

// Increment applies a guarded counter increment for shop's current period.
// When the limit would be exceeded the counter is left untouched and
// LimitReached is set. The check-and-add runs inside a single conditional
// UPDATE, so concurrent callers cannot push a counter past its limit.
func (s *UsageService) Increment(shopDomain, metric string, delta int64) (UsageResult, error) {
	cols, ok := usageColumns[metric]
	if !ok {
		return UsageResult{}, fmt.Errorf("unknown usage metric %q", metric)
	}
	counterCol, limitCol := cols[0], cols[1]

	record, err := s.ensurePeriodRecord(shopDomain, time.Now())
	if err != nil {
		return UsageResult{}, ErrQuotaStoreUnavailable
	}

	res := s.DB.Model(&models.UsageRecord{}).
		Where("shop_domain = ? AND month = ?", shopDomain, record.Month).
		Where(fmt.Sprintf("%s = -1 OR %s + ? <= %s", limitCol, counterCol, limitCol), delta).
		Update(counterCol, gorm.Expr(counterCol+" + ?", delta))
	if res.Error != nil {
		return UsageResult{}, ErrQuotaStoreUnavailable
	}

	var current models.UsageRecord
	if err := s.DB.Where("shop_domain = ? AND month = ?", shopDomain, record.Month).
		First(&current).Error; err != nil {
		return UsageResult{}, ErrQuotaStoreUnavailable
	}

	value, limit := counterFor(&current, metric)
	if res.RowsAffected == 0 {
		return UsageResult{CurrentValue: value, Limit: limit, LimitReached: true}, nil
	}

	warning := false
	if limit != models.UnlimitedQuota && limit > 0 {
		before := float64(value-delta) / float64(limit)
		after := float64(value) / float64(limit)
		warning = before < warningThreshold && after >= warningThreshold
		if warning {
			zap.L().Warn("usage approaching limit",
				zap.String("shop", shopDomain),
				zap.String("metric", metric),
				zap.Int64("current", value),
				zap.Int64("limit", limit))
		}
	}

	return UsageResult{Success: true, CurrentValue: value, Limit: limit, WarningTriggered: warning}, nil
}

// CurrentUsage returns the usage record for the running period, creating it
// from the shop's plan if this is the first touch this month.
func (s *UsageService) CurrentUsage(shopDomain string) (*models.UsageRecord, error) {
	return s.ensurePeriodRecord(shopDomain, time.Now())
}

// ensurePeriodRecord opens the shop+month record on first use, snapshotting
// the plan limits at period start. The insert is conflict-tolerant so two
// concurrent first touches converge on one row.
func (s *UsageService) ensurePeriodRecord(shopDomain string, now time.Time) (*models.UsageRecord, error) {
	month := models.UsageMonth(now)

	var record models.UsageRecord
	err := s.DB.Where("shop_domain = ? AND month = ?", shopDomain, month).First(&record).Error
	if err == nil {
		return &record, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	var shop models.Shop
	plan := models.PlanFree
	if err := s.DB.First(&shop, "domain = ?", shopDomain).Error; err == nil {
		plan = shop.Plan
	}
	limits := models.LimitsForPlan(plan)

	record = models.UsageRecord{
		ID:                 uuid.NewString(),
		ShopDomain:         shopDomain,
		Month:              month,
		LimitDiscountCodes: limits.DiscountCodes,
		LimitGameSessions:  limits.GameSessions,
	}
	if err := s.DB.Clauses(clause.OnConflict{DoNothing: true}).Create(&record).Error; err != nil {
		return nil, err
	}
	// Re-read in case a concurrent request won the insert.
	if err := s.DB.Where("shop_domain = ? AND month = ?", shopDomain, month).First(&record).Error; err != nil {
		return nil, err
	}
	return &record, nil
}

func counterFor(r *models.UsageRecord, metric string) (value, limit int64) {
	switch metric {
	case models.MetricDiscountCodes:
		return r.DiscountCodesGenerated, r.LimitDiscountCodes
	case models.MetricGameSessions:
		return r.GameSessions, r.LimitGameSessions
	}
	return 0, models.UnlimitedQuota
}

// --- HTTP handlers ---

// GetDiscountLimit reports current discount-code usage against the monthly
// quota, with the warning flags the dashboard surfaces.
func (s *UsageService) GetDiscountLimit(c *fiber.Ctx) error {
	shopDomain := c.Query("shop")
	if shopDomain == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "shop query parameter is required"})
	}

	record, err := s.CurrentUsage(shopDomain)
	if err != nil {
		zap.L().Error("failed to load usage record", zap.String("shop", shopDomain), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to load usage"})
	}

	current := record.DiscountCodesGenerated
	limit := record.LimitDiscountCodes

	percentage := 0.0
	limitReached := false
	if limit != models.UnlimitedQuota && limit > 0 {
		percentage = float64(current) / float64(limit) * 100
		limitReached = current >= limit
	}

	return c.JSON(fiber.Map{
		"allowed": !limitReached,
		"usage": fiber.Map{
			"current":    current,
			"limit":      limit,
			"percentage": percentage,
		},
		"warnings": fiber.Map{
			"approaching80": percentage >= 80 && !limitReached,
			"approaching95": percentage >= 95 && !limitReached,
			"limitReached":  limitReached,
		},
	})
}

// GetUsageSummary returns all metered counters for the current period.
func (s *UsageService) GetUsageSummary(c *fiber.Ctx) error {
	shopDomain := c.Query("shop")
	if shopDomain == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "shop query parameter is required"})
	}

	record, err := s.CurrentUsage(shopDomain)
	if err != nil {
		zap.L().Error("failed to load usage record", zap.String("shop", shopDomain), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to load usage"})
	}

	return c.JSON(record)
}
