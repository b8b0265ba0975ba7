package ingest

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// StartScheduler syncs every site at startup and then each interval until
// ctx is done. Sites of one tick are synced in order.
func (s *Service) StartScheduler(ctx context.Context, sites []string, interval time.Duration) {
	if interval <= 0 || len(sites) == 0 {
		return
	}
	go func() {
		s.syncAll(ctx, sites)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.syncAll(ctx, sites)
			}
		}
	}()
}

func (s *Service) syncAll(ctx context.Context, sites []string) {
	for _, site := range sites {
		if ctx.Err() != nil {
			return
		}
		if _, err := s.SyncSite(ctx, site); err != nil {
			s.log.Error("scheduled sync failed", zap.String("site_id", site), zap.Error(err))
		}
	}
}
