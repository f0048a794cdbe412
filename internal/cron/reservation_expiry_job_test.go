package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/farm2market/farm2market-backend/pkg/logger"
)

type fakeReservationExpirer struct {
	batches []int
	err     error
	calls   int
	gotNow  time.Time
	gotLim  int
}

func (f *fakeReservationExpirer) ExpireDue(ctx context.Context, now time.Time, limit int) (int, error) {
	f.gotNow = now
	f.gotLim = limit
	if f.err != nil {
		return 0, f.err
	}
	if f.calls >= len(f.batches) {
		return 0, nil
	}
	count := f.batches[f.calls]
	f.calls++
	return count, nil
}

func TestReservationExpiryJobDrainsAllBatches(t *testing.T) {
	expirer := &fakeReservationExpirer{batches: []int{3, 3, 1}}
	job, err := NewReservationExpiryJob(ReservationExpiryJobParams{
		Logger:       logger.New(logger.Options{ServiceName: "cron-test"}),
		Reservations: expirer,
		BatchSize:    3,
	})
	if err != nil {
		t.Fatalf("NewReservationExpiryJob: %v", err)
	}
	if job.Name() != "reservation-expiry" {
		t.Fatalf("unexpected job name %q", job.Name())
	}
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if expirer.calls != 3 {
		t.Fatalf("expected 3 sweep batches, got %d", expirer.calls)
	}
	if expirer.gotLim != 3 {
		t.Fatalf("expected batch size 3, got %d", expirer.gotLim)
	}
}

func TestReservationExpiryJobPropagatesError(t *testing.T) {
	expirer := &fakeReservationExpirer{err: errors.New("db down")}
	job, err := NewReservationExpiryJob(ReservationExpiryJobParams{
		Logger:       logger.New(logger.Options{ServiceName: "cron-test"}),
		Reservations: expirer,
	})
	if err != nil {
		t.Fatalf("NewReservationExpiryJob: %v", err)
	}
	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected error from failed sweep")
	}
}
