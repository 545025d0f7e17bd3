package workers

import (
	"context"
	"time"

	"bargain-arcade/models"
	"bargain-arcade/services"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

const maxSyncAttempts = 5

// IssuanceRetryWorker re-drives discount-code creation for ledger entries
// whose external issuance failed during the finish flow. The player already
// holds the code string, so the entry must be made honorable at checkout
// before it expires.
type IssuanceRetryWorker struct {
	DB      *gorm.DB
	Shopify services.DiscountCreator
}

func NewIssuanceRetryWorker(db *gorm.DB, shopify services.DiscountCreator) *IssuanceRetryWorker {
	return &IssuanceRetryWorker{DB: db, Shopify: shopify}
}

// Run polls for pending entries until the context is cancelled.
func (w *IssuanceRetryWorker) Run(ctx context.Context, pollInterval time.Duration) {
	zap.L().Info("issuance retry worker started", zap.Duration("interval", pollInterval))

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			zap.L().Info("issuance retry worker stopped")
			return
		case <-ticker.C:
			w.sweep()
		}
	}
}

func (w *IssuanceRetryWorker) sweep() {
	var pending []models.DiscountCode
	err := w.DB.Where("sync_status = ? AND sync_attempts < ? AND expires_at > ?",
		models.SyncStatusPending, maxSyncAttempts, time.Now()).
		Order("created_at ASC").
		Limit(50).
		Find(&pending).Error
	if err != nil {
		zap.L().Error("retry worker: failed to load pending entries", zap.Error(err))
		return
	}
	if len(pending) == 0 {
		return
	}

	zap.L().Info("retrying external issuance", zap.Int("pending", len(pending)))

	for _, entry := range pending {
		var shop models.Shop
		if err := w.DB.First(&shop, "domain = ?", entry.ShopDomain).Error; err != nil {
			zap.L().Error("retry worker: shop record missing",
				zap.String("shop", entry.ShopDomain), zap.String("code", entry.Code))
			continue
		}

		result, err := w.Shopify.CreateDiscountCode(&shop, services.DiscountCodeRequest{
			Code:      entry.Code,
			Value:     entry.Value,
			ExpiresAt: entry.ExpiresAt,
		})
		if err != nil {
			zap.L().Warn("retry worker: issuance still failing",
				zap.String("shop", entry.ShopDomain),
				zap.String("code", entry.Code),
				zap.Int("attempt", entry.SyncAttempts+1),
				zap.Error(err))
			w.DB.Model(&models.DiscountCode{}).
				Where("code = ?", entry.Code).
				Update("sync_attempts", gorm.Expr("sync_attempts + 1"))
			continue
		}

		if err := w.DB.Model(&models.DiscountCode{}).
			Where("code = ?", entry.Code).
			Updates(map[string]interface{}{
				"price_rule_id":    result.PriceRuleID,
				"discount_code_id": result.DiscountCodeID,
				"sync_status":      models.SyncStatusSynced,
			}).Error; err != nil {
			zap.L().Error("retry worker: failed to mark entry synced",
				zap.String("code", entry.Code), zap.Error(err))
			continue
		}

		zap.L().Info("pending discount code synced",
			zap.String("shop", entry.ShopDomain), zap.String("code", entry.Code))
	}
}
