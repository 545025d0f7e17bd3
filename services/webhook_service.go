// services/webhook_service.go
package services

import (
	"strconv"
	"time"

	"bargain-arcade/models"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// WebhookService reconciles order-completion notifications from the
// commerce platform against the discount ledger.
type WebhookService struct {
	DB *gorm.DB
}

func NewWebhookService(db *gorm.DB) *WebhookService {
	return &WebhookService{DB: db}
}

// AppliedDiscount is one discount line on a completed order.
type AppliedDiscount struct {
	Code   string `json:"code"`
	Amount string `json:"amount"`
	Type   string `json:"type"`
}

// OrderNotification is the slice of the orders/create payload this engine
// cares about.
type OrderNotification struct {
	ID            int64             `json:"id"`
	TotalPrice    string            `json:"total_price"`
	DiscountCodes []AppliedDiscount `json:"discount_codes"`
}

// OnOrderCompleted marks previously issued codes as redeemed. Idempotent by
// construction: the guarded update only fires on unused entries, so a
// re-delivered webhook is a no-op. Codes not recognized as this engine's
// (or never issued by it) are silently ignored.
func (s *WebhookService) OnOrderCompleted(shopDomain string, order OrderNotification) error {
	for _, applied := range order.DiscountCodes {
		if !models.IsEngineCode(applied.Code) {
			continue
		}

		orderValue, _ := strconv.ParseFloat(order.TotalPrice, 64)
		discountAmount, _ := strconv.ParseFloat(applied.Amount, 64)

		now := time.Now()
		res := s.DB.Model(&models.DiscountCode{}).
			Where("code = ? AND shop_domain = ? AND is_used = ?", applied.Code, shopDomain, false).
			Updates(map[string]interface{}{
				"is_used":         true,
				"used_at":         now,
				"order_id":        strconv.FormatInt(order.ID, 10),
				"order_value":     orderValue,
				"discount_amount": discountAmount,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			// Unknown, already-redeemed, or another campaign's code.
			zap.L().Debug("order webhook: no ledger entry updated",
				zap.String("shop", shopDomain), zap.String("code", applied.Code))
			continue
		}
		zap.L().Info("discount code redeemed",
			zap.String("shop", shopDomain),
			zap.String("code", applied.Code),
			zap.Int64("order", order.ID))
	}
	return nil
}

// HandleOrderCreated is the webhook endpoint. The HMAC middleware has
// already authenticated the payload by the time this runs.
func (s *WebhookService) HandleOrderCreated(c *fiber.Ctx) error {
	shopDomain := c.Get("X-Shopify-Shop-Domain")
	if shopDomain == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "missing shop domain header"})
	}

	var order OrderNotification
	if err := c.BodyParser(&order); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid payload"})
	}

	if err := s.OnOrderCompleted(shopDomain, order); err != nil {
		zap.L().Error("order reconciliation failed",
			zap.String("shop", shopDomain), zap.Int64("order", order.ID), zap.Error(err))
		// Non-2xx makes the platform redeliver; reconciliation is idempotent.
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "reconciliation failed"})
	}

	return c.SendStatus(fiber.StatusOK)
}
