package model

import (
	"errors"
	"time"
)

type AppointmentStatus string

const (
	AppointmentStatusPending   AppointmentStatus = "pending"
	AppointmentStatusScheduled AppointmentStatus = "scheduled"
	AppointmentStatusCancelled AppointmentStatus = "cancelled"
	AppointmentStatusCompleted AppointmentStatus = "completed"
	AppointmentStatusMissed    AppointmentStatus = "missed"
)

var (
	ErrAppointmentExists   = errors.New("appointment already exists")
	ErrAppointmentNotFound = errors.New("appointment doesn't exist")

	ErrNotSchedulable   = errors.New("cannot schedule an appointment that is not pending")
	ErrNotCompletable   = errors.New("cannot complete an appointment that is not scheduled")
	ErrNotCancellable   = errors.New("cannot cancel an appointment that is not pending or scheduled")
	ErrNotMissable      = errors.New("cannot mark an appointment as missed that is not pending or scheduled")
	ErrNotReschedulable = errors.New("cannot reschedule an appointment that is not pending or scheduled")
)

// Appointment is the folded state of one appointment's event stream.
type Appointment struct {
	ID            string            `json:"id"`
	DateTime      time.Time         `json:"date_time"`
	DoctorID      string            `json:"doctor_id"`
	PatientID     string            `json:"patient_id"`
	Issue         string            `json:"issue"`
	Notes         *string           `json:"notes,omitempty"`
	Prescriptions []string          `json:"prescriptions,omitempty"`
	Priority      *string           `json:"priority,omitempty"`
	Status        AppointmentStatus `json:"status"`
}

// CanCancel reports whether the cancel transition is legal from the current status.
func (a Appointment) CanCancel() bool {
	return a.Status == AppointmentStatusPending || a.Status == AppointmentStatusScheduled
}

// CanReschedule reports whether the reschedule transition is legal.
func (a Appointment) CanReschedule() bool {
	return a.Status == AppointmentStatusPending || a.Status == AppointmentStatusScheduled
}
