// models/session.go
package models

import (
	"time"
)

// MaxScore is the highest score the games can legitimately produce.
// Anything above it is treated as a tampered submission.
const MaxScore = 10000

// EphemeralSessionPrefix marks session IDs issued without a durable record,
// when the insert at start time failed. Gameplay is never blocked on storage.
const EphemeralSessionPrefix = "eph_"

// GameSession is one attempt at the embedded game, from start to completion
// or abandonment. Owned exclusively by the shop that created it; mutated at
// most once, by the finish call.
type GameSession struct {
	SessionID  string `json:"session_id" gorm:"primaryKey"`
	ShopDomain string `json:"shop_domain" gorm:"index;not null"`

	CustomerID    string `json:"customer_id,omitempty"`
	CustomerEmail string `json:"customer_email,omitempty"`
	IPAddress     string `json:"ip_address" gorm:"index"`
	UserAgent     string `json:"user_agent"`
	Source        string `json:"source"`   // display surface: popup, inline, landing
	Referrer      string `json:"referrer,omitempty"`

	StartedAt      time.Time  `json:"started_at" gorm:"index"`
	EndedAt        *time.Time `json:"ended_at,omitempty"`
	FinalScore     *int       `json:"final_score,omitempty"`
	DiscountEarned int        `json:"discount_earned" gorm:"default:0"`
	DiscountCode   string     `json:"discount_code,omitempty"`
	Completed      bool       `json:"completed" gorm:"index;default:false"`

	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// IsEphemeral reports whether a session ID was issued without a durable
// record. Detection is purely by ID shape.
func IsEphemeral(sessionID string) bool {
	return len(sessionID) > len(EphemeralSessionPrefix) &&
		sessionID[:len(EphemeralSessionPrefix)] == EphemeralSessionPrefix
}

// ScoreEntry is the append-only scoring ledger, one row per completed play.
type ScoreEntry struct {
	ID         string    `json:"id" gorm:"primaryKey"`
	SessionID  string    `json:"session_id" gorm:"index;not null"`
	ShopDomain string    `json:"shop_domain" gorm:"index;not null"`
	CustomerID string    `json:"customer_id,omitempty"`
	Score      int       `json:"score" gorm:"not null"`
	Discount   int       `json:"discount"`
	RecordedAt time.Time `json:"recorded_at" gorm:"autoCreateTime"`
}

// PlayerStats is the denormalized per-customer aggregate, updated best-effort
// after each completed session.
type PlayerStats struct {
	ID         string `json:"id" gorm:"primaryKey"`
	ShopDomain string `json:"shop_domain" gorm:"uniqueIndex:idx_player_shop;not null"`
	CustomerID string `json:"customer_id" gorm:"uniqueIndex:idx_player_shop;not null"`

	BestScore  int   `json:"best_score" gorm:"default:0"`
	TotalScore int64 `json:"total_score" gorm:"default:0"`
	TotalPlays int64 `json:"total_plays" gorm:"default:0"`

	LastPlayedAt *time.Time `json:"last_played_at,omitempty"`

	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}
