package model

import (
	"time"

	"github.com/google/uuid"
)

type NotificationStatus string

const (
	NotificationStatusPending NotificationStatus = "pending"
	NotificationStatusSent    NotificationStatus = "sent"
	NotificationStatusFailed  NotificationStatus = "failed"
)

// Notification is a single outbound patient message (confirmation, reminder,
// cancellation notice). Delivery is fire-and-forget from the scheduling core's
// point of view.
type Notification struct {
	ID            uuid.UUID          `db:"id" json:"id"`
	AppointmentID uuid.UUID          `db:"appointment_id" json:"appointment_id"`
	PatientID     uuid.UUID          `db:"patient_id" json:"patient_id"`
	Channel       ReminderChannel    `db:"channel" json:"channel"`
	Subject       string             `db:"subject" json:"subject"`
	Content       string             `db:"content" json:"content"`
	Recipient     string             `db:"recipient" json:"recipient"`
	Status        NotificationStatus `db:"status" json:"status"`
	LastError     *string            `db:"last_error" json:"last_error,omitempty"`
	SentAt        *time.Time         `db:"sent_at" json:"sent_at,omitempty"`
	CreatedAt     time.Time          `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time          `db:"updated_at" json:"updated_at"`
}
