package app

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"taravani/internal/util"
	"taravani/pkg/events"
)

// CleanupResult reports one retention sweep.
type CleanupResult struct {
	DeletedCount int       `json:"deletedCount"`
	DeletedAt    time.Time `json:"deletedAt"`
}

// Cleanup deletes every reading whose retention deadline is at or before now.
// Concurrent calls share a single sweep.
func (a *App) Cleanup(ctx context.Context, now time.Time) (CleanupResult, error) {
	v, err, shared := a.sweep.Do("cleanup", func() (any, error) {
		return a.cleanup(ctx, now.UTC())
	})
	if err != nil {
		return CleanupResult{}, err
	}
	if shared {
		util.LoggerFromContext(ctx).Debug("cleanup coalesced with running sweep")
	}
	return v.(CleanupResult), nil
}

func (a *App) cleanup(ctx context.Context, now time.Time) (CleanupResult, error) {
	purged, err := a.store.PurgeExpiredReadings(ctx, now)
	if err != nil {
		return CleanupResult{}, fmt.Errorf("purge expired readings: %w", err)
	}
	for _, p := range purged {
		if p.PDFPath != "" {
			a.removeObject(ctx, p.ID, p.PDFPath)
		}
	}
	util.LoggerFromContext(ctx).Info("retention sweep finished", "deleted", len(purged), "cutoff", now)
	if len(purged) > 0 {
		a.publish(ctx, events.ReadingsPurged, "", map[string]string{"count": strconv.Itoa(len(purged))})
	}
	return CleanupResult{DeletedCount: len(purged), DeletedAt: now}, nil
}
