// Package notification delivers patient-facing messages triggered by saga
// outcomes.
package notification

import (
	"context"

	"github.com/jwalitptl/clinic-api/internal/readmodel"
)

// Notifier informs a patient about a change to their appointment.
type Notifier interface {
	AppointmentCancelled(ctx context.Context, row readmodel.AppointmentRow) error
}

// NoopNotifier is used in tests and in deployments without SMTP configured.
type NoopNotifier struct{}

func (NoopNotifier) AppointmentCancelled(ctx context.Context, row readmodel.AppointmentRow) error {
	return nil
}
