package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/farm2market/farm2market-backend/pkg/logger"
	"github.com/farm2market/farm2market-backend/pkg/metrics"
)

type staleCartStore interface {
	ListStaleCartIDs(ctx context.Context, cutoff time.Time, limit int) ([]uuid.UUID, error)
	ClearItems(ctx context.Context, cartID uuid.UUID) error
}

// CartAbandonmentJobParams configure the abandoned cart sweep.
type CartAbandonmentJobParams struct {
	Logger          *logger.Logger
	Carts           staleCartStore
	Metrics         *metrics.CronJobMetrics
	AbandonmentDays int
	BatchSize       int
}

const (
	defaultAbandonmentDays  = 30
	defaultAbandonmentBatch = 200
)

// NewCartAbandonmentJob builds the sweep that empties carts untouched for the
// configured number of days.
func NewCartAbandonmentJob(params CartAbandonmentJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Carts == nil {
		return nil, fmt.Errorf("cart store required")
	}
	days := params.AbandonmentDays
	if days <= 0 {
		days = defaultAbandonmentDays
	}
	batchSize := params.BatchSize
	if batchSize <= 0 {
		batchSize = defaultAbandonmentBatch
	}
	return &cartAbandonmentJob{
		logg:      params.Logger,
		carts:     params.Carts,
		metrics:   params.Metrics,
		days:      days,
		batchSize: batchSize,
		now:       time.Now,
	}, nil
}

type cartAbandonmentJob struct {
	logg      *logger.Logger
	carts     staleCartStore
	metrics   *metrics.CronJobMetrics
	days      int
	batchSize int
	now       func() time.Time
}

func (j *cartAbandonmentJob) Name() string { return "cart-abandonment" }

func (j *cartAbandonmentJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-time.Duration(j.days) * 24 * time.Hour)
	cleared := 0
	for {
		ids, err := j.carts.ListStaleCartIDs(ctx, cutoff, j.batchSize)
		if err != nil {
			j.metrics.AddProcessed(j.Name(), cleared)
			return fmt.Errorf("list stale carts: %w", err)
		}
		if len(ids) == 0 {
			break
		}
		// Each clear is a single delete; a cleared cart drops out of the
		// next ListStaleCartIDs page, so the loop always makes progress.
		for _, cartID := range ids {
			if err := j.carts.ClearItems(ctx, cartID); err != nil {
				j.metrics.AddProcessed(j.Name(), cleared)
				return fmt.Errorf("clear cart %s: %w", cartID, err)
			}
			cleared++
		}
		if len(ids) < j.batchSize {
			break
		}
	}
	j.metrics.AddProcessed(j.Name(), cleared)
	logCtx := j.logg.WithField(ctx, "count", cleared)
	j.logg.Info(logCtx, "cart abandonment loop complete")
	return nil
}
