package readmodel

import (
	"context"

	"github.com/jwalitptl/clinic-api/internal/appointment"
	"github.com/jwalitptl/clinic-api/internal/model"
	"github.com/jwalitptl/clinic-api/pkg/logger"
)

// Projector folds appointment events into the repository. Register its Apply
// method as an event listener on the appointment store.
type Projector struct {
	repo   Repository
	logger *logger.Logger
}

func NewProjector(repo Repository, lg *logger.Logger) *Projector {
	return &Projector{repo: repo, logger: lg}
}

// Apply updates the projected row for a single event. Events for the same
// appointment arrive in order; a failed write only degrades the projection,
// never the aggregate, so errors are logged and dropped.
func (p *Projector) Apply(ev appointment.Event) {
	ctx := context.Background()

	row, found, err := p.repo.Get(ctx, ev.AppointmentID)
	if err != nil {
		p.logger.Error(err, "read model lookup failed", "appointment_id", ev.AppointmentID)
		return
	}

	switch ev.Type {
	case appointment.EventCreated:
		row = AppointmentRow{
			ID:        ev.AppointmentID,
			PatientID: ev.PatientID,
			DoctorID:  ev.DoctorID,
			Issue:     ev.Issue,
			Date:      ev.DateTime.Format(model.DateLayout),
			Time:      model.TimeOfDayFrom(ev.DateTime).String(),
			Status:    model.AppointmentStatusPending,
		}
	case appointment.EventScheduled:
		row.Status = model.AppointmentStatusScheduled
	case appointment.EventCancelled:
		row.Status = model.AppointmentStatusCancelled
	case appointment.EventCompleted:
		row.Status = model.AppointmentStatusCompleted
	case appointment.EventMissed:
		row.Status = model.AppointmentStatusMissed
	case appointment.EventRescheduled:
		row.DoctorID = ev.DoctorID
		row.Date = ev.DateTime.Format(model.DateLayout)
		row.Time = model.TimeOfDayFrom(ev.DateTime).String()
	case appointment.EventPriorityAdded:
		row.Priority = ev.Priority
	default:
		// notes and prescriptions are not projected
		return
	}

	if !found && ev.Type != appointment.EventCreated {
		p.logger.Warn("dropping event for unknown row", "appointment_id", ev.AppointmentID, "type", string(ev.Type))
		return
	}

	if err := p.repo.Save(ctx, row); err != nil {
		p.logger.Error(err, "read model update failed", "appointment_id", ev.AppointmentID)
	}
}
