package availability

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/pharmacare-api/internal/model"
	"github.com/jwalitptl/pharmacare-api/internal/repository/memory"
	"github.com/jwalitptl/pharmacare-api/internal/service/directory"
	"github.com/jwalitptl/pharmacare-api/pkg/errors"
)

func newFixture(t *testing.T, timezone string) (*Service, *memory.AppointmentRepository, *model.Resource) {
	t.Helper()

	repo := memory.NewAppointmentRepository()
	resources := memory.NewResourceRepository()

	hours := make([]model.WorkingHours, 0, 6)
	for day := time.Monday; day <= time.Saturday; day++ {
		hours = append(hours, model.WorkingHours{
			DayOfWeek:   day,
			StartMinute: 8 * 60,
			EndMinute:   17 * 60,
		})
	}
	resource := &model.Resource{
		ID:           uuid.New(),
		WorkplaceID:  uuid.New(),
		Name:         "Main Counter",
		Timezone:     timezone,
		WorkingHours: hours,
		Active:       true,
	}
	resources.Put(resource)

	return NewService(repo, directory.NewService(resources)), repo, resource
}

func seedAppointment(t *testing.T, repo *memory.AppointmentRepository, resourceID uuid.UUID, start time.Time, minutes int, status model.AppointmentStatus) *model.Appointment {
	t.Helper()
	apt := &model.Appointment{
		ID:              uuid.New(),
		PatientID:       uuid.New(),
		AssignedTo:      resourceID,
		WorkplaceID:     uuid.New(),
		Type:            model.AppointmentTypeVaccination,
		StartTime:       start,
		DurationMinutes: minutes,
		Timezone:        "UTC",
		Status:          status,
		Version:         1,
	}
	require.NoError(t, repo.Create(context.Background(), apt))
	return apt
}

func TestCheckAvailability(t *testing.T) {
	svc, repo, resource := newFixture(t, "UTC")
	ctx := context.Background()

	// Monday 10:00-11:00.
	booked := seedAppointment(t, repo, resource.ID,
		time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC), 60, model.AppointmentStatusConfirmed)

	slot := func(start, end time.Time) model.Slot {
		return model.Slot{ResourceID: resource.ID, Start: start, End: end}
	}

	result, err := svc.CheckAvailability(ctx, slot(booked.StartTime.Add(30*time.Minute), booked.StartTime.Add(90*time.Minute)), nil)
	require.NoError(t, err)
	assert.False(t, result.Available)
	assert.Equal(t, []uuid.UUID{booked.ID}, result.ConflictingIDs)

	// Back-to-back is available.
	result, err = svc.CheckAvailability(ctx, slot(booked.EndTime(), booked.EndTime().Add(time.Hour)), nil)
	require.NoError(t, err)
	assert.True(t, result.Available)

	// Excluding the booking itself frees its slot for a reschedule probe.
	result, err = svc.CheckAvailability(ctx, slot(booked.StartTime, booked.EndTime()), &booked.ID)
	require.NoError(t, err)
	assert.True(t, result.Available)
}

func TestCheckAvailability_TerminalStatusesReleaseSlot(t *testing.T) {
	svc, repo, resource := newFixture(t, "UTC")
	ctx := context.Background()

	start := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	for _, status := range []model.AppointmentStatus{
		model.AppointmentStatusCancelled,
		model.AppointmentStatusNoShow,
		model.AppointmentStatusRescheduled,
		model.AppointmentStatusCompleted,
	} {
		seedAppointment(t, repo, resource.ID, start, 60, status)
	}

	result, err := svc.CheckAvailability(ctx, model.Slot{ResourceID: resource.ID, Start: start, End: start.Add(time.Hour)}, nil)
	require.NoError(t, err)
	assert.True(t, result.Available)
}

func TestWithinBusinessHours(t *testing.T) {
	svc, _, resource := newFixture(t, "UTC")

	day := func(h, m int) time.Time {
		return time.Date(2026, 3, 2, h, m, 0, 0, time.UTC) // Monday
	}

	tests := []struct {
		name   string
		start  time.Time
		end    time.Time
		within bool
	}{
		{"mid-morning", day(9, 0), day(10, 0), true},
		{"exactly the opening window", day(8, 0), day(17, 0), true},
		{"ends at closing", day(16, 0), day(17, 0), true},
		{"starts before opening", day(7, 30), day(8, 30), false},
		{"runs past closing", day(16, 30), day(17, 30), false},
		{"sunday", day(9, 0).AddDate(0, 0, 6), day(10, 0).AddDate(0, 0, 6), false},
		{"crosses midnight", day(23, 0), day(23, 0).Add(2 * time.Hour), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.within, svc.WithinBusinessHours(resource, tt.start, tt.end))
		})
	}
}

func TestWithinBusinessHours_ResourceTimezone(t *testing.T) {
	svc, _, resource := newFixture(t, "America/New_York")

	// Monday 14:00 UTC is 09:00 in New York during EST: inside the window
	// even though a naive UTC reading would also pass. Monday 03:00 UTC is
	// Sunday 22:00 local: outside.
	inside := time.Date(2026, 3, 2, 14, 0, 0, 0, time.UTC)
	assert.True(t, svc.WithinBusinessHours(resource, inside, inside.Add(time.Hour)))

	outside := time.Date(2026, 3, 2, 3, 0, 0, 0, time.UTC)
	assert.False(t, svc.WithinBusinessHours(resource, outside, outside.Add(time.Hour)))
}

func TestEnsureBookable(t *testing.T) {
	svc, repo, resource := newFixture(t, "UTC")
	ctx := context.Background()

	start := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	booked := seedAppointment(t, repo, resource.ID, start, 60, model.AppointmentStatusScheduled)

	err := svc.EnsureBookable(ctx, resource.ID, start.Add(30*time.Minute), start.Add(90*time.Minute), nil, false)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrSlotConflict))

	before := time.Date(2026, 3, 2, 7, 0, 0, 0, time.UTC)
	err = svc.EnsureBookable(ctx, resource.ID, before, before.Add(30*time.Minute), nil, false)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrOutsideBusinessHours))

	// Override bypasses business hours but never the conflict check.
	require.NoError(t, svc.EnsureBookable(ctx, resource.ID, before, before.Add(30*time.Minute), nil, true))
	err = svc.EnsureBookable(ctx, resource.ID, booked.StartTime, booked.EndTime(), nil, true)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrSlotConflict))

	// Unknown resources cannot be booked.
	err = svc.EnsureBookable(ctx, uuid.New(), start, start.Add(time.Hour), nil, false)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrNotFound))
}
