package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type AppointmentStatus string

const (
	AppointmentStatusScheduled   AppointmentStatus = "scheduled"
	AppointmentStatusConfirmed   AppointmentStatus = "confirmed"
	AppointmentStatusInProgress  AppointmentStatus = "in_progress"
	AppointmentStatusCompleted   AppointmentStatus = "completed"
	AppointmentStatusCancelled   AppointmentStatus = "cancelled"
	AppointmentStatusNoShow      AppointmentStatus = "no_show"
	AppointmentStatusRescheduled AppointmentStatus = "rescheduled"
)

// IsActive reports whether the status occupies a slot.
func (s AppointmentStatus) IsActive() bool {
	switch s {
	case AppointmentStatusScheduled, AppointmentStatusConfirmed, AppointmentStatusInProgress:
		return true
	}
	return false
}

// IsTerminal reports whether no further transitions are allowed.
func (s AppointmentStatus) IsTerminal() bool {
	switch s {
	case AppointmentStatusCompleted, AppointmentStatusCancelled, AppointmentStatusNoShow, AppointmentStatusRescheduled:
		return true
	}
	return false
}

type AppointmentType string

const (
	AppointmentTypeMTMSession         AppointmentType = "mtm_session"
	AppointmentTypeChronicReview      AppointmentType = "chronic_disease_review"
	AppointmentTypeNewMedication      AppointmentType = "new_medication_consultation"
	AppointmentTypeVaccination        AppointmentType = "vaccination"
	AppointmentTypeHealthCheck        AppointmentType = "health_check"
	AppointmentTypeSmokingCessation   AppointmentType = "smoking_cessation"
	AppointmentTypeGeneralFollowup    AppointmentType = "general_followup"
)

// Valid reports whether t belongs to the closed type set.
func (t AppointmentType) Valid() bool {
	switch t {
	case AppointmentTypeMTMSession, AppointmentTypeChronicReview, AppointmentTypeNewMedication,
		AppointmentTypeVaccination, AppointmentTypeHealthCheck, AppointmentTypeSmokingCessation,
		AppointmentTypeGeneralFollowup:
		return true
	}
	return false
}

type ConfirmationStatus string

const (
	ConfirmationPending   ConfirmationStatus = "pending"
	ConfirmationConfirmed ConfirmationStatus = "confirmed"
)

type OutcomeStatus string

const (
	OutcomeSuccessful          OutcomeStatus = "successful"
	OutcomePartiallySuccessful OutcomeStatus = "partially_successful"
	OutcomeUnsuccessful        OutcomeStatus = "unsuccessful"
)

// Outcome records the result of a completed appointment. Present iff the
// appointment reached the completed status.
type Outcome struct {
	Status       OutcomeStatus `json:"status"`
	Notes        string        `json:"notes,omitempty"`
	NextActions  []string      `json:"next_actions,omitempty"`
	VisitCreated bool          `json:"visit_created"`
}

type ReminderChannel string

const (
	ReminderChannelEmail    ReminderChannel = "email"
	ReminderChannelSMS      ReminderChannel = "sms"
	ReminderChannelWhatsApp ReminderChannel = "whatsapp"
)

type DeliveryStatus string

const (
	DeliveryPending DeliveryStatus = "pending"
	DeliverySent    DeliveryStatus = "sent"
	DeliveryFailed  DeliveryStatus = "failed"
)

// Reminder is one entry of an appointment's append-only reminder schedule.
// A reminder marked sent is immutable.
type Reminder struct {
	ID             uuid.UUID       `db:"id" json:"id"`
	Channel        ReminderChannel `db:"channel" json:"channel"`
	ScheduledFor   time.Time       `db:"scheduled_for" json:"scheduled_for"`
	Sent           bool            `db:"sent" json:"sent"`
	SentAt         *time.Time      `db:"sent_at" json:"sent_at,omitempty"`
	DeliveryStatus DeliveryStatus  `db:"delivery_status" json:"delivery_status"`
	FailureReason  *string         `db:"failure_reason" json:"failure_reason,omitempty"`
}

// RelatedRecords links an appointment to records created by collaborating
// systems. Set by collaborators, never mutated by the scheduling core.
type RelatedRecords struct {
	VisitID                *uuid.UUID `json:"visit_id,omitempty"`
	MTRSessionID           *uuid.UUID `json:"mtr_session_id,omitempty"`
	ClinicalInterventionID *uuid.UUID `json:"clinical_intervention_id,omitempty"`
	FollowUpTaskID         *uuid.UUID `json:"follow_up_task_id,omitempty"`
}

type Appointment struct {
	ID          uuid.UUID       `db:"id" json:"id"`
	PatientID   uuid.UUID       `db:"patient_id" json:"patient_id"`
	AssignedTo  uuid.UUID       `db:"assigned_to" json:"assigned_to"`
	WorkplaceID uuid.UUID       `db:"workplace_id" json:"workplace_id"`
	Type        AppointmentType `db:"type" json:"type"`

	StartTime       time.Time `db:"start_time" json:"start_time"`
	DurationMinutes int       `db:"duration_minutes" json:"duration_minutes"`
	Timezone        string    `db:"timezone" json:"timezone"`

	Status             AppointmentStatus  `db:"status" json:"status"`
	ConfirmationStatus ConfirmationStatus `db:"confirmation_status" json:"confirmation_status"`

	// Override marks a booking that was allowed outside business hours by an
	// explicit operator decision. Slot conflicts are never overridable.
	Override bool `db:"override" json:"override,omitempty"`

	Outcome        *Outcome        `db:"-" json:"outcome,omitempty"`
	Reminders      []Reminder      `db:"-" json:"reminders,omitempty"`
	RelatedRecords *RelatedRecords `db:"-" json:"related_records,omitempty"`

	// Version guards optimistic-concurrency updates; incremented on every write.
	Version int64 `db:"version" json:"version"`

	IsDeleted bool `db:"is_deleted" json:"is_deleted,omitempty"`

	CreatedAt          time.Time  `db:"created_at" json:"created_at"`
	CreatedBy          uuid.UUID  `db:"created_by" json:"created_by"`
	UpdatedAt          time.Time  `db:"updated_at" json:"updated_at"`
	ConfirmedAt        *time.Time `db:"confirmed_at" json:"confirmed_at,omitempty"`
	RescheduledAt      *time.Time `db:"rescheduled_at" json:"rescheduled_at,omitempty"`
	RescheduledReason  *string    `db:"rescheduled_reason" json:"rescheduled_reason,omitempty"`
	RescheduledFromID  *uuid.UUID `db:"rescheduled_from_id" json:"rescheduled_from_id,omitempty"`
	CompletedAt        *time.Time `db:"completed_at" json:"completed_at,omitempty"`
	CancelledAt        *time.Time `db:"cancelled_at" json:"cancelled_at,omitempty"`
	CancellationReason *string    `db:"cancellation_reason" json:"cancellation_reason,omitempty"`
}

// EndTime returns the exclusive end instant of the appointment's slot.
func (a *Appointment) EndTime() time.Time {
	return a.StartTime.Add(time.Duration(a.DurationMinutes) * time.Minute)
}

// Overlaps reports whether two time ranges overlap. Ranges are half-open, so
// back-to-back appointments (end == start) do not overlap.
func (a *Appointment) Overlaps(start, end time.Time) bool {
	return a.StartTime.Before(end) && start.Before(a.EndTime())
}

// CrossesMidnight reports whether the slot spills into the next calendar day
// in the appointment's own timezone. The end is exclusive, so a slot ending
// exactly at midnight stays within its day.
func (a *Appointment) CrossesMidnight() bool {
	loc, err := time.LoadLocation(a.Timezone)
	if err != nil {
		loc = time.UTC
	}
	start := a.StartTime.In(loc)
	end := a.EndTime().Add(-time.Nanosecond).In(loc)
	return start.YearDay() != end.YearDay() || start.Year() != end.Year()
}

// MarshalOutcome serializes the outcome for persistence.
func (a *Appointment) MarshalOutcome() ([]byte, error) {
	if a.Outcome == nil {
		return nil, nil
	}
	return json.Marshal(a.Outcome)
}

// Slot is a derived (resource, time-range) tuple used during conflict checks
// and suggestion scoring. Never persisted.
type Slot struct {
	ResourceID uuid.UUID `json:"resource_id"`
	Start      time.Time `json:"start"`
	End        time.Time `json:"end"`
}

type CreateAppointmentRequest struct {
	PatientID       uuid.UUID       `json:"patient_id" binding:"required"`
	AssignedTo      uuid.UUID       `json:"assigned_to" binding:"required"`
	WorkplaceID     uuid.UUID       `json:"workplace_id" binding:"required"`
	Type            AppointmentType `json:"type" binding:"required,appointment_type"`
	StartTime       time.Time       `json:"start_time" binding:"required"`
	DurationMinutes int             `json:"duration_minutes" binding:"required,gt=0"`
	Timezone        string          `json:"timezone"`
	CreatedBy       uuid.UUID       `json:"created_by"`
	Override        bool            `json:"override"`
	Reminders       []Reminder      `json:"reminders"`
}

type RescheduleAppointmentRequest struct {
	NewStart           time.Time `json:"new_start" binding:"required"`
	NewDurationMinutes *int      `json:"new_duration_minutes" binding:"omitempty,gt=0"`
	Reason             string    `json:"reason" binding:"required"`
	NotifyPatient      bool      `json:"notify_patient"`
	ExpectedVersion    int64     `json:"expected_version"`
}

type TransitionRequest struct {
	TargetStatus    AppointmentStatus `json:"target_status" binding:"required"`
	ExpectedVersion int64             `json:"expected_version"`
	Outcome         *Outcome          `json:"outcome"`
	Reason          string            `json:"reason"`
	NotifyPatient   bool              `json:"notify_patient"`
}

type CancelAppointmentRequest struct {
	Reason          string `json:"reason"`
	NotifyPatient   bool   `json:"notify_patient"`
	ExpectedVersion int64  `json:"expected_version"`
}

type CalendarFilters struct {
	ResourceID  *uuid.UUID
	WorkplaceID *uuid.UUID
	From        time.Time
	To          time.Time
}
