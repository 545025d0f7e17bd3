// services/scheduler.go
package services

import (
	"time"

	"bargain-arcade/models"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"
)

// StartExpirySweeper periodically marks ledger entries that were never
// synced to the platform and are now past their expiry, so the retry
// worker stops picking them up.
func (s *RewardService) StartExpirySweeper() {
	sched, _ := gocron.NewScheduler()
	sched.Start()

	_, _ = sched.NewJob(
		gocron.DurationJob(10*time.Minute),
		gocron.NewTask(s.sweepExpired),
	)
}

func (s *RewardService) sweepExpired() {
	res := s.DB.Model(&models.DiscountCode{}).
		Where("sync_status = ? AND expires_at <= ?", models.SyncStatusPending, time.Now()).
		Update("sync_status", models.SyncStatusExpired)
	if res.Error != nil {
		zap.L().Error("expiry sweep failed", zap.Error(res.Error))
		return
	}
	if res.RowsAffected > 0 {
		zap.L().Info("expired unsynced discount codes", zap.Int64("count", res.RowsAffected))
	}
}
