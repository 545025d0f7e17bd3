// services/config_service.go
package services

import (
	"errors"

	"bargain-arcade/models"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type ConfigService struct {
	DB *gorm.DB
}

func NewConfigService(db *gorm.DB) *ConfigService {
	return &ConfigService{DB: db}
}

// GetConfig loads the per-shop game configuration with its tiers. A shop
// that never saved a config gets the defaults with an empty tier list.
func (s *ConfigService) GetConfig(shopDomain string) (*models.GameConfig, error) {
	var config models.GameConfig
	err := s.DB.Preload("Tiers", func(db *gorm.DB) *gorm.DB {
		return db.Order("min_score ASC")
	}).First(&config, "shop_domain = ?", shopDomain).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &models.GameConfig{
			ShopDomain:          shopDomain,
			IsEnabled:           true,
			GameVariant:         "runner",
			MaxPlaysPerCustomer: 3,
			MaxPlaysPerDay:      100,
			DiscountExpiryHours: 24,
		}, nil
	}
	if err != nil {
		return nil, err
	}
	return &config, nil
}

// --- HTTP handlers (merchant dashboard, behind gateway auth) ---

func (s *ConfigService) GetConfigEndpoint(c *fiber.Ctx) error {
	shopDomain := c.Query("shop")
	if shopDomain == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "shop query parameter is required"})
	}

	config, err := s.GetConfig(shopDomain)
	if err != nil {
		zap.L().Error("failed to load game config", zap.String("shop", shopDomain), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to load config"})
	}
	return c.JSON(config)
}

// UpdateConfigEndpoint replaces the shop's configuration, tiers included.
func (s *ConfigService) UpdateConfigEndpoint(c *fiber.Ctx) error {
	shopDomain := c.Query("shop")
	if shopDomain == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "shop query parameter is required"})
	}

	var req struct {
		IsEnabled           *bool  `json:"is_enabled"`
		GameVariant         string `json:"game_variant"`
		MaxPlaysPerCustomer int    `json:"max_plays_per_customer"`
		MaxPlaysPerDay      int    `json:"max_plays_per_day"`
		DiscountExpiryHours int    `json:"discount_expiry_hours"`
		Tiers               []struct {
			MinScore int  `json:"min_score"`
			MaxScore *int `json:"max_score"`
			Discount int  `json:"discount"`
		} `json:"tiers"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	for _, t := range req.Tiers {
		if t.Discount < 0 || t.Discount > 100 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "tier discount must be between 0 and 100"})
		}
		if t.MinScore < 0 || t.MinScore > models.MaxScore {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "tier min_score out of range"})
		}
	}

	config := models.GameConfig{
		ShopDomain:          shopDomain,
		IsEnabled:           true,
		GameVariant:         req.GameVariant,
		MaxPlaysPerCustomer: req.MaxPlaysPerCustomer,
		MaxPlaysPerDay:      req.MaxPlaysPerDay,
		DiscountExpiryHours: req.DiscountExpiryHours,
	}
	if req.IsEnabled != nil {
		config.IsEnabled = *req.IsEnabled
	}

	err := s.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Save(&config).Error; err != nil {
			return err
		}
		if err := tx.Where("shop_domain = ?", shopDomain).Delete(&models.DiscountTier{}).Error; err != nil {
			return err
		}
		for _, t := range req.Tiers {
			tier := models.DiscountTier{
				ID:         uuid.NewString(),
				ShopDomain: shopDomain,
				MinScore:   t.MinScore,
				MaxScore:   t.MaxScore,
				Discount:   t.Discount,
			}
			if err := tx.Create(&tier).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		zap.L().Error("failed to save game config", zap.String("shop", shopDomain), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to save config"})
	}

	saved, err := s.GetConfig(shopDomain)
	if err != nil {
		return c.JSON(config)
	}
	return c.JSON(saved)
}
