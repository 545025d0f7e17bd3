// models/game_config.go
package models

import (
	"time"
)

// GameConfig is the per-shop game and reward configuration. It is read-only
// input to the eligibility gate and the reward issuer.
type GameConfig struct {
	ShopDomain          string `json:"shop_domain" gorm:"primaryKey"`
	IsEnabled           bool   `json:"is_enabled" gorm:"default:true"`
	GameVariant         string `json:"game_variant" gorm:"default:'runner'"` // which arcade game the storefront embeds
	MaxPlaysPerCustomer int    `json:"max_plays_per_customer" gorm:"default:3"`
	MaxPlaysPerDay      int    `json:"max_plays_per_day" gorm:"default:100"`
	DiscountExpiryHours int    `json:"discount_expiry_hours" gorm:"default:24"`

	Tiers []DiscountTier `json:"tiers" gorm:"foreignKey:ShopDomain;references:ShopDomain"`

	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// DiscountTier binds a score threshold to a discount percentage.
// MaxScore is optional: older configs stored open-ended tiers
// ({minScore, discount}) while newer ones store a bounded range.
// The tier resolver normalizes both shapes internally.
type DiscountTier struct {
	ID         string `json:"id" gorm:"primaryKey"`
	ShopDomain string `json:"shop_domain" gorm:"index;not null"`
	MinScore   int    `json:"min_score" gorm:"not null"`
	MaxScore   *int   `json:"max_score,omitempty"`
	Discount   int    `json:"discount" gorm:"not null"` // percent, 1-100
}
