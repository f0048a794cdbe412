package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/farm2market/farm2market-backend/pkg/logger"
	"github.com/farm2market/farm2market-backend/pkg/metrics"
)

type reservationExpirer interface {
	ExpireDue(ctx context.Context, now time.Time, limit int) (int, error)
}

// ReservationExpiryJobParams configure the reservation expiry sweep.
type ReservationExpiryJobParams struct {
	Logger       *logger.Logger
	Reservations reservationExpirer
	Metrics      *metrics.CronJobMetrics
	BatchSize    int
}

const defaultExpiryBatchSize = 200

// NewReservationExpiryJob builds the sweep that promotes overdue pending and
// counter-offered reservations to expired.
func NewReservationExpiryJob(params ReservationExpiryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Reservations == nil {
		return nil, fmt.Errorf("reservation service required")
	}
	batchSize := params.BatchSize
	if batchSize <= 0 {
		batchSize = defaultExpiryBatchSize
	}
	return &reservationExpiryJob{
		logg:         params.Logger,
		reservations: params.Reservations,
		metrics:      params.Metrics,
		batchSize:    batchSize,
		now:          time.Now,
	}, nil
}

type reservationExpiryJob struct {
	logg         *logger.Logger
	reservations reservationExpirer
	metrics      *metrics.CronJobMetrics
	batchSize    int
	now          func() time.Time
}

func (j *reservationExpiryJob) Name() string { return "reservation-expiry" }

func (j *reservationExpiryJob) Run(ctx context.Context) error {
	now := j.now().UTC()
	total := 0
	for {
		expired, err := j.reservations.ExpireDue(ctx, now, j.batchSize)
		total += expired
		if err != nil {
			j.metrics.AddProcessed(j.Name(), total)
			return fmt.Errorf("expire due reservations: %w", err)
		}
		if expired < j.batchSize {
			break
		}
	}
	j.metrics.AddProcessed(j.Name(), total)
	logCtx := j.logg.WithField(ctx, "count", total)
	j.logg.Info(logCtx, "reservation expiry loop complete")
	return nil
}
