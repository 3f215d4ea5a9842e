package model

import (
	"time"

	"github.com/google/uuid"
)

type Urgency string

const (
	UrgencyUrgent  Urgency = "urgent"
	UrgencyHigh    Urgency = "high"
	UrgencyRoutine Urgency = "routine"
	UrgencyLow     Urgency = "low"
)

type TimeOfDay string

const (
	TimeOfDayMorning   TimeOfDay = "morning"
	TimeOfDayAfternoon TimeOfDay = "afternoon"
	TimeOfDayAny       TimeOfDay = "any"
)

// PatientPreferences feeds the suggestion engine's scoring.
type PatientPreferences struct {
	PreferredTimeOfDay TimeOfDay      `json:"preferred_time_of_day"`
	PreferredDays      []time.Weekday `json:"preferred_days,omitempty"`
}

// Suggestion is one ranked candidate slot. Score is 0-100; Reasons explains
// which scoring terms fired.
type Suggestion struct {
	ResourceID uuid.UUID `json:"resource_id"`
	Start      time.Time `json:"start"`
	End        time.Time `json:"end"`
	Score      int       `json:"score"`
	Reasons    []string  `json:"reasons"`
}

type SuggestSlotsRequest struct {
	Preferences        PatientPreferences `json:"preferences"`
	Type               AppointmentType    `json:"type" binding:"required,appointment_type"`
	DurationMinutes    int                `json:"duration_minutes" binding:"required,gt=0"`
	Urgency            Urgency            `json:"urgency"`
	CandidateResources []uuid.UUID        `json:"candidate_resources"`
	HorizonDays        int                `json:"horizon_days" binding:"omitempty,gt=0"`
}
