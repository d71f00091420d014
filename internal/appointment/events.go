package appointment

import (
	"time"

	"github.com/jwalitptl/clinic-api/internal/model"
)

type EventType string

const (
	EventCreated           EventType = "appointment_created"
	EventScheduled         EventType = "appointment_scheduled"
	EventCancelled         EventType = "appointment_cancelled"
	EventCompleted         EventType = "appointment_completed"
	EventMissed            EventType = "appointment_missed"
	EventRescheduled       EventType = "appointment_rescheduled"
	EventNotesAdded        EventType = "appointment_notes_added"
	EventPrescriptionAdded EventType = "appointment_prescription_added"
	EventPriorityAdded     EventType = "appointment_priority_added"
)

// Event is one entry in an appointment's event stream. Fields beyond Type,
// AppointmentID and At are populated per event type.
type Event struct {
	Type          EventType `json:"type"`
	AppointmentID string    `json:"appointment_id"`
	At            time.Time `json:"at"`

	DateTime     time.Time `json:"date_time,omitempty"`
	DoctorID     string    `json:"doctor_id,omitempty"`
	PatientID    string    `json:"patient_id,omitempty"`
	Issue        string    `json:"issue,omitempty"`
	Notes        string    `json:"notes,omitempty"`
	Prescription string    `json:"prescription,omitempty"`
	Priority     string    `json:"priority,omitempty"`
}

// apply folds a single event into the current state. The Created event
// initializes the state; every other event patches it.
func apply(state model.Appointment, ev Event) model.Appointment {
	switch ev.Type {
	case EventCreated:
		return model.Appointment{
			ID:        ev.AppointmentID,
			DateTime:  ev.DateTime,
			DoctorID:  ev.DoctorID,
			PatientID: ev.PatientID,
			Issue:     ev.Issue,
			Status:    model.AppointmentStatusPending,
		}
	case EventScheduled:
		state.Status = model.AppointmentStatusScheduled
	case EventCancelled:
		state.Status = model.AppointmentStatusCancelled
	case EventCompleted:
		state.Status = model.AppointmentStatusCompleted
	case EventMissed:
		state.Status = model.AppointmentStatusMissed
	case EventRescheduled:
		state.DateTime = ev.DateTime
		state.DoctorID = ev.DoctorID
	case EventNotesAdded:
		notes := ev.Notes
		state.Notes = &notes
	case EventPrescriptionAdded:
		state.Prescriptions = append(append([]string(nil), state.Prescriptions...), ev.Prescription)
	case EventPriorityAdded:
		priority := ev.Priority
		state.Priority = &priority
	}
	return state
}

// fold replays a stream from scratch.
func fold(events []Event) model.Appointment {
	var state model.Appointment
	for _, ev := range events {
		state = apply(state, ev)
	}
	return state
}
