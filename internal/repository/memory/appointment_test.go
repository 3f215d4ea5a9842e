package memory

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/pharmacare-api/internal/model"
	"github.com/jwalitptl/pharmacare-api/internal/repository"
)

func newAppointment(start time.Time) *model.Appointment {
	return &model.Appointment{
		ID:              uuid.New(),
		PatientID:       uuid.New(),
		AssignedTo:      uuid.New(),
		WorkplaceID:     uuid.New(),
		Type:            model.AppointmentTypeMTMSession,
		StartTime:       start,
		DurationMinutes: 30,
		Timezone:        "UTC",
		Status:          model.AppointmentStatusScheduled,
		Version:         1,
	}
}

func TestUpdate_VersionConflict(t *testing.T) {
	repo := NewAppointmentRepository()
	ctx := context.Background()

	apt := newAppointment(time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC))
	require.NoError(t, repo.Create(ctx, apt))

	apt.Status = model.AppointmentStatusConfirmed
	require.NoError(t, repo.Update(ctx, apt, 1))
	assert.Equal(t, int64(2), apt.Version)

	// A writer holding the old version loses.
	stale := *apt
	err := repo.Update(ctx, &stale, 1)
	assert.ErrorIs(t, err, repository.ErrVersionConflict)

	err = repo.Update(ctx, &model.Appointment{ID: uuid.New()}, 1)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestCreateRescheduled(t *testing.T) {
	repo := NewAppointmentRepository()
	ctx := context.Background()

	apt := newAppointment(time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC))
	require.NoError(t, repo.Create(ctx, apt))

	now := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	reason := "patient request"
	old := *apt
	old.RescheduledAt = &now
	old.RescheduledReason = &reason

	replacement := newAppointment(apt.StartTime.Add(3 * time.Hour))
	replacement.AssignedTo = apt.AssignedTo
	replacement.RescheduledFromID = &apt.ID

	require.NoError(t, repo.CreateRescheduled(ctx, &old, replacement, 1))

	stored, err := repo.Get(ctx, apt.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AppointmentStatusRescheduled, stored.Status)
	assert.Equal(t, int64(2), stored.Version)

	newStored, err := repo.Get(ctx, replacement.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AppointmentStatusScheduled, newStored.Status)
	require.NotNil(t, newStored.RescheduledFromID)
	assert.Equal(t, apt.ID, *newStored.RescheduledFromID)

	// A second attempt against the retired record fails and inserts nothing.
	replay := newAppointment(apt.StartTime.Add(5 * time.Hour))
	err = repo.CreateRescheduled(ctx, &old, replay, 1)
	assert.ErrorIs(t, err, repository.ErrVersionConflict)
	_, err = repo.Get(ctx, replay.ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestGet_ReturnsCopies(t *testing.T) {
	repo := NewAppointmentRepository()
	ctx := context.Background()

	apt := newAppointment(time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC))
	require.NoError(t, repo.Create(ctx, apt))

	got, err := repo.Get(ctx, apt.ID)
	require.NoError(t, err)
	got.Status = model.AppointmentStatusCancelled

	again, err := repo.Get(ctx, apt.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AppointmentStatusScheduled, again.Status)
}

func TestReminders_DueListingAndDispatch(t *testing.T) {
	repo := NewAppointmentRepository()
	ctx := context.Background()
	now := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

	apt := newAppointment(now.Add(2 * time.Hour))
	due := model.Reminder{
		ID:             uuid.New(),
		Channel:        model.ReminderChannelSMS,
		ScheduledFor:   now.Add(-10 * time.Minute),
		DeliveryStatus: model.DeliveryPending,
	}
	future := model.Reminder{
		ID:             uuid.New(),
		Channel:        model.ReminderChannelEmail,
		ScheduledFor:   now.Add(time.Hour),
		DeliveryStatus: model.DeliveryPending,
	}
	apt.Reminders = []model.Reminder{due, future}
	require.NoError(t, repo.Create(ctx, apt))

	// A cancelled appointment's reminders never come due.
	cancelled := newAppointment(now.Add(2 * time.Hour))
	cancelled.Status = model.AppointmentStatusCancelled
	cancelled.Reminders = []model.Reminder{{
		ID:             uuid.New(),
		Channel:        model.ReminderChannelSMS,
		ScheduledFor:   now.Add(-time.Hour),
		DeliveryStatus: model.DeliveryPending,
	}}
	require.NoError(t, repo.Create(ctx, cancelled))

	pending, err := repo.ListDueReminders(ctx, now, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, due.ID, pending[0].Reminder.ID)
	assert.Equal(t, apt.ID, pending[0].Appointment.ID)

	require.NoError(t, repo.MarkReminderDispatched(ctx, apt.ID, due.ID, model.DeliverySent, nil))

	// Sent reminders are immutable and never re-listed.
	err = repo.MarkReminderDispatched(ctx, apt.ID, due.ID, model.DeliveryFailed, nil)
	assert.ErrorIs(t, err, repository.ErrNotFound)

	pending, err = repo.ListDueReminders(ctx, now, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestListForAnalytics_KeepsSoftDeletedRows(t *testing.T) {
	repo := NewAppointmentRepository()
	ctx := context.Background()

	start := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	apt := newAppointment(start)
	apt.Status = model.AppointmentStatusCancelled
	apt.IsDeleted = true
	require.NoError(t, repo.Create(ctx, apt))

	_, err := repo.Get(ctx, apt.ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)

	rng := model.DateRange{From: start.Add(-time.Hour), To: start.Add(time.Hour)}
	rows, err := repo.ListForAnalytics(ctx, rng, nil)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}
