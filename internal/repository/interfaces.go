package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/pharmacare-api/internal/model"
)

var (
	// ErrNotFound is returned when the requested row does not exist or is
	// soft-deleted.
	ErrNotFound = errors.New("not found")
	// ErrVersionConflict is returned when an optimistic-concurrency update
	// finds a different version than the caller expected.
	ErrVersionConflict = errors.New("version conflict")
)

// DueReminder pairs an unsent reminder with its appointment for dispatch.
type DueReminder struct {
	Appointment *model.Appointment
	Reminder    model.Reminder
}

type (
	AppointmentRepository interface {
		Create(ctx context.Context, appointment *model.Appointment) error
		Get(ctx context.Context, id uuid.UUID) (*model.Appointment, error)
		// Update persists the appointment iff the stored version equals
		// expectedVersion, then increments the version.
		Update(ctx context.Context, appointment *model.Appointment, expectedVersion int64) error
		List(ctx context.Context, filters *model.CalendarFilters) ([]*model.Appointment, error)
		// FindOverlapping returns active appointments for the resource whose
		// time ranges overlap [start, end). excludeID, when set, skips the
		// appointment's own booking during a reschedule check.
		FindOverlapping(ctx context.Context, resourceID uuid.UUID, start, end time.Time, excludeID *uuid.UUID) ([]*model.Appointment, error)
		// CreateRescheduled atomically marks old as rescheduled (guarded by
		// expectedVersion) and inserts its replacement, so no reader ever
		// observes neither record active.
		CreateRescheduled(ctx context.Context, old *model.Appointment, replacement *model.Appointment, expectedVersion int64) error
		ListForAnalytics(ctx context.Context, rng model.DateRange, resourceID *uuid.UUID) ([]*model.Appointment, error)
		ListDueReminders(ctx context.Context, due time.Time, limit int) ([]*DueReminder, error)
		MarkReminderDispatched(ctx context.Context, appointmentID, reminderID uuid.UUID, status model.DeliveryStatus, failureReason *string) error
	}

	ResourceRepository interface {
		Get(ctx context.Context, id uuid.UUID) (*model.Resource, error)
		List(ctx context.Context, workplaceID *uuid.UUID) ([]*model.Resource, error)
	}

	AuditRepository interface {
		Create(ctx context.Context, log *model.AuditLog) error
		DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
	}

	NotificationRepository interface {
		Create(ctx context.Context, notification *model.Notification) error
		Update(ctx context.Context, notification *model.Notification) error
	}
)
