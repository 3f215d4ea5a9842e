package appointment

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/pharmacare-api/internal/config"
	"github.com/jwalitptl/pharmacare-api/internal/model"
	"github.com/jwalitptl/pharmacare-api/internal/repository/memory"
	"github.com/jwalitptl/pharmacare-api/internal/service/availability"
	"github.com/jwalitptl/pharmacare-api/internal/service/directory"
	"github.com/jwalitptl/pharmacare-api/pkg/errors"
	"github.com/jwalitptl/pharmacare-api/pkg/locker"
)

// Monday 08:00 UTC.
var testNow = time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

type testEnv struct {
	svc         *Service
	repo        *memory.AppointmentRepository
	resourceID  uuid.UUID
	workplaceID uuid.UUID
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	repo := memory.NewAppointmentRepository()
	resources := memory.NewResourceRepository()

	resourceID := uuid.New()
	workplaceID := uuid.New()
	hours := make([]model.WorkingHours, 0, 6)
	for day := time.Monday; day <= time.Saturday; day++ {
		hours = append(hours, model.WorkingHours{
			DayOfWeek:   day,
			StartMinute: 8 * 60,
			EndMinute:   17 * 60,
		})
	}
	resources.Put(&model.Resource{
		ID:           resourceID,
		WorkplaceID:  workplaceID,
		Name:         "Dr. Okafor",
		Timezone:     "UTC",
		WorkingHours: hours,
		Active:       true,
	})

	dir := directory.NewService(resources)
	avail := availability.NewService(repo, dir)
	cfg := config.SchedulingConfig{
		MinDurationMinutes: 15,
		MaxDurationMinutes: 240,
		MaxAdvanceDays:     90,
		SlotStepMinutes:    30,
		LockTTLSeconds:     10,
		DefaultTimezone:    "UTC",
	}

	svc := NewService(repo, avail, locker.NewLocalResourceLocker(), nil, nil, nil, cfg).
		WithClock(func() time.Time { return testNow })

	return &testEnv{
		svc:         svc,
		repo:        repo,
		resourceID:  resourceID,
		workplaceID: workplaceID,
	}
}

func (e *testEnv) createRequest(start time.Time, durationMinutes int) *model.CreateAppointmentRequest {
	return &model.CreateAppointmentRequest{
		PatientID:       uuid.New(),
		AssignedTo:      e.resourceID,
		WorkplaceID:     e.workplaceID,
		Type:            model.AppointmentTypeMTMSession,
		StartTime:       start,
		DurationMinutes: durationMinutes,
		Timezone:        "UTC",
		CreatedBy:       uuid.New(),
	}
}

func TestCreateAppointment(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	apt, err := env.svc.CreateAppointment(ctx, env.createRequest(testNow.Add(2*time.Hour), 60))
	require.NoError(t, err)
	assert.Equal(t, model.AppointmentStatusScheduled, apt.Status)
	assert.Equal(t, model.ConfirmationPending, apt.ConfirmationStatus)
	assert.Equal(t, int64(1), apt.Version)

	stored, err := env.svc.GetAppointment(ctx, apt.ID)
	require.NoError(t, err)
	assert.Equal(t, apt.ID, stored.ID)
	assert.Equal(t, apt.StartTime, stored.StartTime)
}

func TestCreateAppointment_SlotConflicts(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// 10:00-11:00 booked.
	_, err := env.svc.CreateAppointment(ctx, env.createRequest(testNow.Add(2*time.Hour), 60))
	require.NoError(t, err)

	// Overlapping 10:30-11:30 rejected.
	_, err = env.svc.CreateAppointment(ctx, env.createRequest(testNow.Add(2*time.Hour+30*time.Minute), 60))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrSlotConflict))

	// Back-to-back 11:00-12:00 is fine: ranges are half-open.
	_, err = env.svc.CreateAppointment(ctx, env.createRequest(testNow.Add(3*time.Hour), 60))
	require.NoError(t, err)
}

func TestCreateAppointment_BusinessHours(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// 07:00 is before the 08:00 opening.
	req := env.createRequest(testNow.AddDate(0, 0, 1).Add(-time.Hour), 30)
	_, err := env.svc.CreateAppointment(ctx, req)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrOutsideBusinessHours))

	// An explicit override books it anyway.
	req.Override = true
	apt, err := env.svc.CreateAppointment(ctx, req)
	require.NoError(t, err)
	assert.True(t, apt.Override)

	// Sunday is closed entirely.
	sunday := env.createRequest(testNow.AddDate(0, 0, 6).Add(2*time.Hour), 30)
	_, err = env.svc.CreateAppointment(ctx, sunday)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrOutsideBusinessHours))
}

func TestCreateAppointment_Validation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		mutate func(*model.CreateAppointmentRequest)
	}{
		{"unknown type", func(r *model.CreateAppointmentRequest) { r.Type = "grooming" }},
		{"below minimum duration", func(r *model.CreateAppointmentRequest) { r.DurationMinutes = 5 }},
		{"above maximum duration", func(r *model.CreateAppointmentRequest) { r.DurationMinutes = 300 }},
		{"in the past", func(r *model.CreateAppointmentRequest) { r.StartTime = testNow.Add(-time.Hour) }},
		{"beyond the advance window", func(r *model.CreateAppointmentRequest) { r.StartTime = testNow.AddDate(0, 0, 120) }},
		{"crosses midnight", func(r *model.CreateAppointmentRequest) {
			r.StartTime = testNow.Add(15 * time.Hour) // 23:00
			r.DurationMinutes = 120
			r.Override = true
		}},
		{"unknown timezone", func(r *model.CreateAppointmentRequest) { r.Timezone = "Mars/Olympus" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := env.createRequest(testNow.Add(2*time.Hour), 30)
			tt.mutate(req)
			_, err := env.svc.CreateAppointment(ctx, req)
			require.Error(t, err)
			assert.True(t, errors.Is(err, errors.ErrValidation))
		})
	}
}

func TestRescheduleAppointment(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	apt, err := env.svc.CreateAppointment(ctx, env.createRequest(testNow.Add(2*time.Hour), 60))
	require.NoError(t, err)

	newStart := testNow.Add(5 * time.Hour)
	replacement, err := env.svc.RescheduleAppointment(ctx, apt.ID, &model.RescheduleAppointmentRequest{
		NewStart: newStart,
		Reason:   "patient request",
	})
	require.NoError(t, err)

	assert.Equal(t, model.AppointmentStatusScheduled, replacement.Status)
	assert.Equal(t, newStart, replacement.StartTime)
	assert.Equal(t, apt.DurationMinutes, replacement.DurationMinutes)
	require.NotNil(t, replacement.RescheduledFromID)
	assert.Equal(t, apt.ID, *replacement.RescheduledFromID)
	assert.NotEqual(t, apt.ID, replacement.ID)

	old, err := env.svc.GetAppointment(ctx, apt.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AppointmentStatusRescheduled, old.Status)
	assert.Equal(t, int64(2), old.Version)
	require.NotNil(t, old.RescheduledAt)
	require.NotNil(t, old.RescheduledReason)
	assert.Equal(t, "patient request", *old.RescheduledReason)
}

func TestRescheduleAppointment_ConflictLeavesOriginalUntouched(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	apt, err := env.svc.CreateAppointment(ctx, env.createRequest(testNow.Add(2*time.Hour), 60))
	require.NoError(t, err)
	blocker, err := env.svc.CreateAppointment(ctx, env.createRequest(testNow.Add(5*time.Hour), 60))
	require.NoError(t, err)

	_, err = env.svc.RescheduleAppointment(ctx, apt.ID, &model.RescheduleAppointmentRequest{
		NewStart: blocker.StartTime.Add(30 * time.Minute),
		Reason:   "patient request",
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrSlotConflict))

	// The original record is exactly as it was before the failed attempt.
	unchanged, err := env.svc.GetAppointment(ctx, apt.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AppointmentStatusScheduled, unchanged.Status)
	assert.Equal(t, apt.StartTime, unchanged.StartTime)
	assert.Equal(t, apt.Version, unchanged.Version)
	assert.Nil(t, unchanged.RescheduledAt)
}

func TestRescheduleAppointment_ReplacementCanReuseOwnSlot(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	apt, err := env.svc.CreateAppointment(ctx, env.createRequest(testNow.Add(2*time.Hour), 60))
	require.NoError(t, err)

	// Shifting by 30 minutes overlaps the appointment's own current slot,
	// which must not count as a conflict.
	replacement, err := env.svc.RescheduleAppointment(ctx, apt.ID, &model.RescheduleAppointmentRequest{
		NewStart: apt.StartTime.Add(30 * time.Minute),
		Reason:   "running late",
	})
	require.NoError(t, err)
	assert.Equal(t, apt.StartTime.Add(30*time.Minute), replacement.StartTime)
}

func TestRescheduleAppointment_TerminalStatusRejected(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	apt, err := env.svc.CreateAppointment(ctx, env.createRequest(testNow.Add(2*time.Hour), 60))
	require.NoError(t, err)
	_, err = env.svc.CancelAppointment(ctx, apt.ID, &model.CancelAppointmentRequest{Reason: "closed"})
	require.NoError(t, err)

	_, err = env.svc.RescheduleAppointment(ctx, apt.ID, &model.RescheduleAppointmentRequest{
		NewStart: testNow.Add(5 * time.Hour),
		Reason:   "retry",
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrInvalidTransition))
}

func TestRescheduleAppointment_ConcurrentAttempts(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	apt, err := env.svc.CreateAppointment(ctx, env.createRequest(testNow.Add(2*time.Hour), 60))
	require.NoError(t, err)

	targets := []time.Time{testNow.Add(4 * time.Hour), testNow.Add(6 * time.Hour)}
	results := make([]error, len(targets))

	var wg sync.WaitGroup
	for i, target := range targets {
		wg.Add(1)
		go func(i int, target time.Time) {
			defer wg.Done()
			_, results[i] = env.svc.RescheduleAppointment(ctx, apt.ID, &model.RescheduleAppointmentRequest{
				NewStart: target,
				Reason:   "concurrent",
			})
		}(i, target)
	}
	wg.Wait()

	var successes, failures int
	for _, err := range results {
		if err == nil {
			successes++
			continue
		}
		failures++
		assert.True(t,
			errors.Is(err, errors.ErrStaleState) || errors.Is(err, errors.ErrInvalidTransition),
			"unexpected error: %v", err)
	}
	assert.Equal(t, 1, successes, "exactly one reschedule must win")
	assert.Equal(t, 1, failures)

	old, err := env.svc.GetAppointment(ctx, apt.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AppointmentStatusRescheduled, old.Status)
}

func TestRescheduleAppointment_ConcurrentOverlappingTargets(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	first, err := env.svc.CreateAppointment(ctx, env.createRequest(testNow.Add(2*time.Hour), 60))
	require.NoError(t, err)
	second, err := env.svc.CreateAppointment(ctx, env.createRequest(testNow.Add(3*time.Hour), 60))
	require.NoError(t, err)

	// Both reschedules race for the same afternoon: 13:00-14:00 and
	// 13:30-14:30 overlap, so only one can land.
	attempts := []struct {
		id     uuid.UUID
		target time.Time
	}{
		{first.ID, testNow.Add(5 * time.Hour)},
		{second.ID, testNow.Add(5*time.Hour + 30*time.Minute)},
	}
	results := make([]error, len(attempts))

	var wg sync.WaitGroup
	for i, attempt := range attempts {
		wg.Add(1)
		go func(i int, id uuid.UUID, target time.Time) {
			defer wg.Done()
			_, results[i] = env.svc.RescheduleAppointment(ctx, id, &model.RescheduleAppointmentRequest{
				NewStart: target,
				Reason:   "afternoon slot opened up",
			})
		}(i, attempt.id, attempt.target)
	}
	wg.Wait()

	var successes, conflicts int
	for _, err := range results {
		if err == nil {
			successes++
			continue
		}
		assert.True(t, errors.Is(err, errors.ErrSlotConflict), "unexpected error: %v", err)
		conflicts++
	}
	assert.Equal(t, 1, successes, "exactly one reschedule must win the slot")
	assert.Equal(t, 1, conflicts, "the loser must see a slot conflict")
}

func TestTransitionStatus_FullLifecycle(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	apt, err := env.svc.CreateAppointment(ctx, env.createRequest(testNow.Add(2*time.Hour), 60))
	require.NoError(t, err)

	confirmed, err := env.svc.TransitionStatus(ctx, apt.ID, &model.TransitionRequest{
		TargetStatus: model.AppointmentStatusConfirmed,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), confirmed.Version)
	assert.Equal(t, model.ConfirmationConfirmed, confirmed.ConfirmationStatus)

	inProgress, err := env.svc.TransitionStatus(ctx, apt.ID, &model.TransitionRequest{
		TargetStatus: model.AppointmentStatusInProgress,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(3), inProgress.Version)

	completed, err := env.svc.TransitionStatus(ctx, apt.ID, &model.TransitionRequest{
		TargetStatus: model.AppointmentStatusCompleted,
		Outcome: &model.Outcome{
			Status: model.OutcomeSuccessful,
			Notes:  "vaccination administered",
		},
	})
	require.NoError(t, err)
	assert.Equal(t, model.AppointmentStatusCompleted, completed.Status)
	assert.Equal(t, int64(4), completed.Version)
	require.NotNil(t, completed.Outcome)
	require.NotNil(t, completed.CompletedAt)
}

func TestTransitionStatus_StaleVersion(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	apt, err := env.svc.CreateAppointment(ctx, env.createRequest(testNow.Add(2*time.Hour), 60))
	require.NoError(t, err)

	_, err = env.svc.TransitionStatus(ctx, apt.ID, &model.TransitionRequest{
		TargetStatus:    model.AppointmentStatusConfirmed,
		ExpectedVersion: 7,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrStaleState))

	// The appointment is untouched.
	stored, err := env.svc.GetAppointment(ctx, apt.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AppointmentStatusScheduled, stored.Status)
	assert.Equal(t, int64(1), stored.Version)
}

func TestTransitionStatus_RescheduledTargetRejected(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	apt, err := env.svc.CreateAppointment(ctx, env.createRequest(testNow.Add(2*time.Hour), 60))
	require.NoError(t, err)

	_, err = env.svc.TransitionStatus(ctx, apt.ID, &model.TransitionRequest{
		TargetStatus: model.AppointmentStatusRescheduled,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrValidation))
}

func TestDeleteAppointment(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	apt, err := env.svc.CreateAppointment(ctx, env.createRequest(testNow.Add(2*time.Hour), 60))
	require.NoError(t, err)

	// Active appointments cannot be deleted.
	err = env.svc.DeleteAppointment(ctx, apt.ID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrValidation))

	_, err = env.svc.CancelAppointment(ctx, apt.ID, &model.CancelAppointmentRequest{Reason: "duplicate"})
	require.NoError(t, err)

	require.NoError(t, env.svc.DeleteAppointment(ctx, apt.ID))

	_, err = env.svc.GetAppointment(ctx, apt.ID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrNotFound))
}

func TestGetCalendar(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	first, err := env.svc.CreateAppointment(ctx, env.createRequest(testNow.Add(2*time.Hour), 60))
	require.NoError(t, err)
	second, err := env.svc.CreateAppointment(ctx, env.createRequest(testNow.Add(5*time.Hour), 60))
	require.NoError(t, err)

	// Range covering only the first appointment.
	out, err := env.svc.GetCalendar(ctx, &model.CalendarFilters{
		ResourceID: &env.resourceID,
		From:       testNow,
		To:         testNow.Add(4 * time.Hour),
	})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, first.ID, out[0].ID)

	// Full-day range returns both, ordered by start time.
	out, err = env.svc.GetCalendar(ctx, &model.CalendarFilters{
		From: testNow,
		To:   testNow.Add(12 * time.Hour),
	})
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, first.ID, out[0].ID)
	assert.Equal(t, second.ID, out[1].ID)

	_, err = env.svc.GetCalendar(ctx, &model.CalendarFilters{From: testNow, To: testNow})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrValidation))
}
