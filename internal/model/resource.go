package model

import (
	"time"

	"github.com/google/uuid"
)

// WorkingHours is one day-of-week window of a resource's business hours.
// Minutes are measured from local midnight.
type WorkingHours struct {
	DayOfWeek   time.Weekday `db:"day_of_week" json:"day_of_week"`
	StartMinute int          `db:"start_minute" json:"start_minute"`
	EndMinute   int          `db:"end_minute" json:"end_minute"`
}

// Contains reports whether [startMin, endMin) fits inside the window.
func (w WorkingHours) Contains(startMin, endMin int) bool {
	return startMin >= w.StartMinute && endMin <= w.EndMinute
}

// Resource is a pharmacist or other bookable entity appointments are assigned to.
type Resource struct {
	ID           uuid.UUID         `db:"id" json:"id"`
	WorkplaceID  uuid.UUID         `db:"workplace_id" json:"workplace_id"`
	Name         string            `db:"name" json:"name"`
	Timezone     string            `db:"timezone" json:"timezone"`
	Specialties  []AppointmentType `db:"-" json:"specialties,omitempty"`
	WorkingHours []WorkingHours    `db:"-" json:"working_hours,omitempty"`
	Active       bool              `db:"active" json:"active"`
	CreatedAt    time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time         `db:"updated_at" json:"updated_at"`
}

// HoursFor returns the working-hours window for a weekday, if any.
func (r *Resource) HoursFor(day time.Weekday) (WorkingHours, bool) {
	for _, w := range r.WorkingHours {
		if w.DayOfWeek == day {
			return w, true
		}
	}
	return WorkingHours{}, false
}

// Specializes reports whether the resource covers the appointment type.
// A resource with no declared specialties covers everything.
func (r *Resource) Specializes(t AppointmentType) bool {
	if len(r.Specialties) == 0 {
		return true
	}
	for _, s := range r.Specialties {
		if s == t {
			return true
		}
	}
	return false
}

// DailyCapacityMinutes returns the total bookable minutes for a weekday.
func (r *Resource) DailyCapacityMinutes(day time.Weekday) int {
	if w, ok := r.HoursFor(day); ok {
		return w.EndMinute - w.StartMinute
	}
	return 0
}
