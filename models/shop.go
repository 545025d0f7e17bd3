// models/shop.go
package models

import (
	"time"

	"gorm.io/gorm"
)

// Subscription plans. Limits are resolved through PlanLimits.
const (
	PlanFree       = "free"
	PlanStarter    = "starter"
	PlanPro        = "pro"
	PlanEnterprise = "enterprise"
)

// UnlimitedQuota marks a metric without a monthly cap.
const UnlimitedQuota int64 = -1

// Shop is the tenant boundary: one merchant storefront identified by domain.
type Shop struct {
	Domain      string `json:"domain" gorm:"primaryKey"`
	AccessToken string `json:"-" gorm:"not null"` // commerce-platform API token, never serialized
	Plan        string `json:"plan" gorm:"default:'free'"`
	Email       string `json:"email"`
	IsActive    bool   `json:"is_active" gorm:"default:true"`

	InstalledAt time.Time `json:"installed_at"`

	CreatedAt time.Time      `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time      `json:"updated_at" gorm:"autoUpdateTime"`
	DeletedAt gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`
}

// QuotaLimits is the per-month cap snapshot derived from a plan.
type QuotaLimits struct {
	DiscountCodes int64 `json:"discount_codes"`
	GameSessions  int64 `json:"game_sessions"`
}

// PlanLimits maps subscription plans to their monthly quotas.
// Unknown plans fall back to the free tier.
var PlanLimits = map[string]QuotaLimits{
	PlanFree:       {DiscountCodes: 50, GameSessions: 500},
	PlanStarter:    {DiscountCodes: 300, GameSessions: 5000},
	PlanPro:        {DiscountCodes: 1500, GameSessions: UnlimitedQuota},
	PlanEnterprise: {DiscountCodes: UnlimitedQuota, GameSessions: UnlimitedQuota},
}

// LimitsForPlan returns the quota snapshot for a plan, defaulting to free.
func LimitsForPlan(plan string) QuotaLimits {
	if limits, ok := PlanLimits[plan]; ok {
		return limits
	}
	return PlanLimits[PlanFree]
}
