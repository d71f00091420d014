package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// DateLayout is the wire format for schedule dates.
const DateLayout = "2006-01-02"

// MinSlotDuration is the shortest bookable time slot.
const MinSlotDuration = 5 * time.Minute

type ScheduleStatus string

const (
	ScheduleStatusActive    ScheduleStatus = "active"
	ScheduleStatusBlocked   ScheduleStatus = "blocked"
	ScheduleStatusCancelled ScheduleStatus = "cancelled"
)

var (
	ErrScheduleExists      = errors.New("schedule already exists")
	ErrScheduleNotFound    = errors.New("working hours aren't defined for the selected date")
	ErrScheduleNotActive   = errors.New("schedule does not accept new bookings")
	ErrOutsideWorkingHours = errors.New("appointment is not in working hours")
	ErrSlotOverlap         = errors.New("appointment overlaps with another appointment")
	ErrSlotTooShort        = errors.New("time slot duration is below the minimum")
	ErrInvalidTimeRange    = errors.New("start time must be before end time")
	ErrSlotNotFound        = errors.New("no time slot found at the given start time")
)

// TimeOfDay is a clock time within a schedule's day, in minutes since midnight.
type TimeOfDay int

// ParseTimeOfDay parses "15:04" formatted clock times.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("invalid time of day %q: %w", s, err)
	}
	return TimeOfDay(t.Hour()*60 + t.Minute()), nil
}

// TimeOfDayFrom extracts the clock time from a timestamp.
func TimeOfDayFrom(t time.Time) TimeOfDay {
	return TimeOfDay(t.Hour()*60 + t.Minute())
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", int(t)/60, int(t)%60)
}

func (t TimeOfDay) Add(d time.Duration) TimeOfDay {
	return t + TimeOfDay(d/time.Minute)
}

func (t TimeOfDay) Before(o TimeOfDay) bool { return t < o }

// ScheduleID identifies one doctor's calendar for one day.
// It serializes to the composite key "doctorId:date".
type ScheduleID struct {
	DoctorID string
	Date     string
}

func NewScheduleID(doctorID string, day time.Time) ScheduleID {
	return ScheduleID{DoctorID: doctorID, Date: day.Format(DateLayout)}
}

func (id ScheduleID) String() string {
	return id.DoctorID + ":" + id.Date
}

func ParseScheduleID(s string) (ScheduleID, error) {
	doctorID, date, ok := strings.Cut(s, ":")
	if !ok || doctorID == "" {
		return ScheduleID{}, fmt.Errorf("invalid schedule id %q", s)
	}
	if _, err := time.Parse(DateLayout, date); err != nil {
		return ScheduleID{}, fmt.Errorf("invalid schedule id %q: %w", s, err)
	}
	return ScheduleID{DoctorID: doctorID, Date: date}, nil
}

// WorkingHours is the bookable window of a day, start inclusive, end exclusive.
type WorkingHours struct {
	Start TimeOfDay `json:"start"`
	End   TimeOfDay `json:"end"`
}

func NewWorkingHours(start, end TimeOfDay) (WorkingHours, error) {
	if !start.Before(end) {
		return WorkingHours{}, ErrInvalidTimeRange
	}
	return WorkingHours{Start: start, End: end}, nil
}

func (wh WorkingHours) contains(slot TimeSlot) bool {
	return !slot.Start.Before(wh.Start) && !wh.End.Before(slot.End)
}

// TimeSlot is a reserved interval tied to exactly one appointment,
// start inclusive, end exclusive.
type TimeSlot struct {
	Start         TimeOfDay `json:"start"`
	End           TimeOfDay `json:"end"`
	AppointmentID string    `json:"appointment_id"`
}

func NewTimeSlot(start TimeOfDay, duration time.Duration, appointmentID string) (TimeSlot, error) {
	end := start.Add(duration)
	if !start.Before(end) {
		return TimeSlot{}, ErrInvalidTimeRange
	}
	if duration < MinSlotDuration {
		return TimeSlot{}, fmt.Errorf("%w: %s", ErrSlotTooShort, MinSlotDuration)
	}
	return TimeSlot{Start: start, End: end, AppointmentID: appointmentID}, nil
}

func (s TimeSlot) Overlaps(o TimeSlot) bool {
	return o.Start.Before(s.End) && s.Start.Before(o.End)
}

// Schedule is one doctor's booking calendar for one day.
type Schedule struct {
	ID           ScheduleID     `json:"id"`
	WorkingHours WorkingHours   `json:"working_hours"`
	Slots        []TimeSlot     `json:"slots"`
	Status       ScheduleStatus `json:"status"`
}

func NewSchedule(id ScheduleID, wh WorkingHours) Schedule {
	return Schedule{ID: id, WorkingHours: wh, Status: ScheduleStatusActive}
}

// validate re-checks the slot-set invariants over the whole schedule.
// Slots of the same appointment may overlap (idempotent re-application).
func (s Schedule) validate() error {
	for _, slot := range s.Slots {
		if !s.WorkingHours.contains(slot) {
			return fmt.Errorf("%w: %s-%s outside %s-%s",
				ErrOutsideWorkingHours, slot.Start, slot.End, s.WorkingHours.Start, s.WorkingHours.End)
		}
	}
	for i, slot := range s.Slots {
		for j, other := range s.Slots {
			if i == j || slot.AppointmentID == other.AppointmentID {
				continue
			}
			if slot.Overlaps(other) {
				return fmt.Errorf("%w: %s-%s and %s-%s",
					ErrSlotOverlap, slot.Start, slot.End, other.Start, other.End)
			}
		}
	}
	return nil
}

// ScheduleAppointment returns a copy with a new slot added, or an error if the
// schedule is not active or the resulting slot set violates an invariant.
func (s Schedule) ScheduleAppointment(start TimeOfDay, duration time.Duration, appointmentID string) (Schedule, error) {
	if s.Status != ScheduleStatusActive {
		return Schedule{}, fmt.Errorf("%w: status is %s", ErrScheduleNotActive, s.Status)
	}
	slot, err := NewTimeSlot(start, duration, appointmentID)
	if err != nil {
		return Schedule{}, err
	}

	next := s
	next.Slots = append(append([]TimeSlot(nil), s.Slots...), slot)
	if err := next.validate(); err != nil {
		return Schedule{}, err
	}
	return next, nil
}

// RemoveSlotByStartTime returns a copy without the slot(s) starting at the
// given time; errors if no slot matches.
func (s Schedule) RemoveSlotByStartTime(start TimeOfDay) (Schedule, error) {
	kept := make([]TimeSlot, 0, len(s.Slots))
	for _, slot := range s.Slots {
		if slot.Start != start {
			kept = append(kept, slot)
		}
	}
	if len(kept) == len(s.Slots) {
		return Schedule{}, fmt.Errorf("%w: %s", ErrSlotNotFound, start)
	}
	next := s
	next.Slots = kept
	return next, nil
}

// Block stops new bookings; existing slots are untouched.
func (s Schedule) Block() Schedule {
	next := s
	next.Status = ScheduleStatusBlocked
	return next
}

// Cancel soft-deletes the day.
func (s Schedule) Cancel() Schedule {
	next := s
	next.Status = ScheduleStatusCancelled
	return next
}

// Reactivate reopens a blocked or cancelled day.
func (s Schedule) Reactivate() Schedule {
	next := s
	next.Status = ScheduleStatusActive
	return next
}
