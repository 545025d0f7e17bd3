package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"bargain-arcade/handlers"
	"bargain-arcade/models"
	"bargain-arcade/services"
	"bargain-arcade/utils"
	"bargain-arcade/workers"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  No .env file found, reading environment variables directly")
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatal("failed to initialize logger:", err)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	app := fiber.New(fiber.Config{
		BodyLimit: 1 * 1024 * 1024, // 1MB — score submissions and webhooks only
	})

	// Storefront widgets call the play endpoints cross-origin.
	allowedOriginsEnv := os.Getenv("ALLOWED_ORIGINS")
	if allowedOriginsEnv == "" {
		allowedOriginsEnv = "*"
	}
	allowedOriginsList := strings.Split(allowedOriginsEnv, ",")
	for i, origin := range allowedOriginsList {
		allowedOriginsList[i] = strings.TrimSpace(origin)
	}
	allowedOriginsString := strings.Join(allowedOriginsList, ",")

	app.Use(cors.New(cors.Config{
		AllowOrigins: allowedOriginsString,
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Requested-With",
		MaxAge:       86400,
	}))

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Fatal("DATABASE_URL environment variable not set")
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatal("failed to connect to database:", err)
	}

	if err := db.AutoMigrate(
		&models.Shop{},
		&models.GameConfig{},
		&models.DiscountTier{},
		&models.GameSession{},
		&models.ScoreEntry{},
		&models.PlayerStats{},
		&models.DiscountCode{},
		&models.UsageRecord{},
	); err != nil {
		log.Fatal("failed to migrate database:", err)
	}

	if err := utils.InitR2(); err != nil {
		if err == utils.ErrR2NotConfigured {
			log.Println("⚠️  R2 not configured — telemetry archiving disabled")
		} else {
			log.Fatal("failed to initialize R2 client:", err)
		}
	}

	shopifyClient := services.NewShopifyClient()

	configService := services.NewConfigService(db)
	usageService := services.NewUsageService(db)
	eligibilityService := services.NewEligibilityService(db)
	sessionService := services.NewSessionService(db, configService, eligibilityService, usageService)
	rewardService := services.NewRewardService(db, sessionService, configService, usageService, shopifyClient)
	webhookService := services.NewWebhookService(db)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	retryWorker := workers.NewIssuanceRetryWorker(db, shopifyClient)
	go retryWorker.Run(ctx, 1*time.Minute)

	rewardService.StartExpirySweeper()

	handlers.SetupPlayRoutes(app, sessionService, rewardService)
	handlers.SetupWebhookRoutes(app, webhookService)
	handlers.SetupAdminRoutes(app, usageService, configService)

	port := os.Getenv("PORT")
	if port == "" {
		port = "5300"
	}

	go func() {
		if err := app.Listen(":" + port); err != nil {
			zap.L().Error("server error", zap.Error(err))
		}
	}()

	log.Printf("✅ Server running on http://localhost:%s", port)
	log.Println("✅ Issuance retry worker running (every 1m)")
	log.Println("✅ Expiry sweeper running (every 10m)")
	log.Printf("✅ CORS configured for origins: %s", allowedOriginsString)

	<-ctx.Done()
	log.Println("Shutting down server...")
	_ = app.Shutdown()
}
