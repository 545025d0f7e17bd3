// models/discount_code.go
package models

import (
	"strings"
	"time"
)

// CodePrefix structurally marks codes issued by this engine, so the order
// webhook can cheaply skip codes belonging to other campaigns.
const CodePrefix = "BARGAIN"

// Sync state of the ledger entry against the commerce platform.
const (
	SyncStatusSynced  = "synced"  // price rule + discount code exist remotely
	SyncStatusPending = "pending" // external creation failed, retry worker owns it
	SyncStatusExpired = "expired" // expired before a retry ever succeeded
)

// DiscountCode is the durable ledger entry for an issued code and its
// redemption status. Created right after issuance, mutated exactly once by
// the redemption reconciler, never deleted.
type DiscountCode struct {
	Code       string `json:"code" gorm:"primaryKey"`
	ShopDomain string `json:"shop_domain" gorm:"index;not null"`
	SessionID  string `json:"session_id" gorm:"uniqueIndex;not null"`

	// External platform identifiers, zero until the sync succeeds.
	PriceRuleID    int64 `json:"price_rule_id"`
	DiscountCodeID int64 `json:"discount_code_id"`

	Value int    `json:"value" gorm:"not null"` // discount percent
	Type  string `json:"type" gorm:"default:'percentage'"`

	CustomerID    string `json:"customer_id,omitempty"`
	CustomerEmail string `json:"customer_email,omitempty"`

	ExpiresAt time.Time `json:"expires_at"`

	IsUsed         bool       `json:"is_used" gorm:"index;default:false"`
	UsedAt         *time.Time `json:"used_at,omitempty"`
	OrderID        string     `json:"order_id,omitempty"`
	OrderValue     float64    `json:"order_value,omitempty"`
	DiscountAmount float64    `json:"discount_amount,omitempty"`

	SyncStatus   string `json:"sync_status" gorm:"index;default:'synced'"`
	SyncAttempts int    `json:"sync_attempts" gorm:"default:0"`

	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// IsEngineCode reports whether a code string was issued by this engine.
func IsEngineCode(code string) bool {
	return strings.HasPrefix(strings.ToUpper(code), CodePrefix)
}
