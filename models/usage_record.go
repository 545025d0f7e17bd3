// models/usage_record.go
package models

import (
	"time"
)

// Metered actions tracked per shop per calendar month.
const (
	MetricDiscountCodes = "discount_codes_generated"
	MetricGameSessions  = "game_sessions"
)

// UsageRecord tracks per-shop counters for one calendar month against the
// limits snapshot taken from the shop's plan when the period opened.
// Counters only ever grow within a period; a new record opens the next month.
type UsageRecord struct {
	ID         string `json:"id" gorm:"primaryKey"`
	ShopDomain string `json:"shop_domain" gorm:"uniqueIndex:idx_shop_month;not null"`
	Month      string `json:"month" gorm:"uniqueIndex:idx_shop_month;not null"` // "2006-01"

	DiscountCodesGenerated int64 `json:"discount_codes_generated" gorm:"default:0"`
	GameSessions           int64 `json:"game_sessions" gorm:"default:0"`

	// Plan snapshot at period start. -1 means unlimited.
	LimitDiscountCodes int64 `json:"limit_discount_codes" gorm:"default:-1"`
	LimitGameSessions  int64 `json:"limit_game_sessions" gorm:"default:-1"`

	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// UsageMonth formats t as the usage-record period key.
func UsageMonth(t time.Time) string {
	return t.Format("2006-01")
}
