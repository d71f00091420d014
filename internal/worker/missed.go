// Package worker runs background maintenance jobs against the appointment
// projection.
package worker

import (
	"context"
	"time"

	"github.com/jwalitptl/clinic-api/internal/readmodel"
	"github.com/jwalitptl/clinic-api/pkg/logger"
)

// OverdueReader lists scheduled appointments whose start time passed.
type OverdueReader interface {
	FindOverdueScheduled(ctx context.Context, cutoff time.Time) ([]readmodel.AppointmentRow, error)
}

// Marker flips an appointment to missed. The API server implements it
// directly on the aggregate; the standalone worker goes through HTTP.
type Marker interface {
	MarkAsMissed(ctx context.Context, appointmentID string) error
}

// MissedSweeper periodically marks scheduled appointments as missed once
// their start time is older than the grace period.
type MissedSweeper struct {
	reader   OverdueReader
	marker   Marker
	grace    time.Duration
	interval time.Duration
	logger   *logger.Logger
}

func NewMissedSweeper(reader OverdueReader, marker Marker, grace, interval time.Duration, lg *logger.Logger) *MissedSweeper {
	return &MissedSweeper{
		reader:   reader,
		marker:   marker,
		grace:    grace,
		interval: interval,
		logger:   lg,
	}
}

// Start runs the sweep loop until ctx is cancelled.
func (w *MissedSweeper) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.Sweep(ctx); err != nil {
				w.logger.Error(err, "missed appointment sweep failed")
			}
		}
	}
}

// Sweep runs one pass. A failure to mark one appointment does not stop the
// rest of the batch.
func (w *MissedSweeper) Sweep(ctx context.Context) error {
	cutoff := time.Now().Add(-w.grace)
	rows, err := w.reader.FindOverdueScheduled(ctx, cutoff)
	if err != nil {
		return err
	}

	for _, row := range rows {
		if err := w.marker.MarkAsMissed(ctx, row.ID); err != nil {
			w.logger.Error(err, "failed to mark appointment as missed", "appointment_id", row.ID)
			continue
		}
		w.logger.Info("appointment marked as missed", "appointment_id", row.ID, "date", row.Date, "time", row.Time)
	}
	return nil
}
