package db

import (
	"context"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ArchiveRaw stores a fetched response body. With retentionDays > 0 the row
// expires after that many days, otherwise it is kept.
func ArchiveRaw(ctx context.Context, db *gorm.DB, siteID, runID string, body []byte, retentionDays int) error {
	row := RawPayload{SiteID: siteID, RunID: runID, Body: datatypes.JSON(body)}
	row.ExpiresAt = expiry(time.Now(), retentionDays)
	return db.WithContext(ctx).Create(&row).Error
}

func expiry(now time.Time, retentionDays int) *time.Time {
	if retentionDays <= 0 {
		return nil
	}
	t := now.Add(time.Duration(retentionDays) * 24 * time.Hour)
	return &t
}

// runRetentionOnce performs a single pass of retention cleanup,
// deleting any archived payloads whose ExpiresAt is in the past.
func runRetentionOnce(ctx context.Context, db *gorm.DB, now time.Time) (int64, error) {
	tx := db.WithContext(ctx).Where("expires_at IS NOT NULL AND expires_at <= ?", now).Delete(&RawPayload{})
	return tx.RowsAffected, tx.Error
}

// StartRetentionWorker launches a background goroutine that runs the
// retention cleanup once at startup and then once per day.
func StartRetentionWorker(ctx context.Context, db *gorm.DB, log *zap.Logger) {
	go func() {
		if n, err := runRetentionOnce(ctx, db, time.Now()); err != nil {
			log.Error("retention cleanup failed", zap.Bool("startup", true), zap.Error(err))
		} else if n > 0 {
			log.Info("raw payloads expired", zap.Int64("rows", n))
		}

		ticker := time.NewTicker(24 * time.Hour)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case t := <-ticker.C:
				n, err := runRetentionOnce(ctx, db, t)
				if err != nil {
					log.Error("retention cleanup failed", zap.Error(err))
					continue
				}
				log.Info("raw payloads expired", zap.Int64("rows", n))
			}
		}
	}()
}
