package suggestion

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/pharmacare-api/internal/config"
	"github.com/jwalitptl/pharmacare-api/internal/model"
	"github.com/jwalitptl/pharmacare-api/internal/repository/memory"
	"github.com/jwalitptl/pharmacare-api/internal/service/directory"
	"github.com/jwalitptl/pharmacare-api/pkg/errors"
)

// Monday 08:00 UTC.
var testNow = time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

func defaultScoring() config.ScoringConfig {
	return config.ScoringConfig{
		BaseScore:           50,
		TimeOfDayMatch:      15,
		SpecializationMatch: 20,
		LowUtilizationMax:   10,
		UrgencyProximityMax: 15,
		UrgentDecayHours:    48,
	}
}

func newFixture(t *testing.T, resources ...*model.Resource) (*Service, *memory.AppointmentRepository) {
	t.Helper()

	repo := memory.NewAppointmentRepository()
	resourceRepo := memory.NewResourceRepository()
	for _, r := range resources {
		resourceRepo.Put(r)
	}

	svc := NewService(repo, directory.NewService(resourceRepo), defaultScoring(),
		config.SchedulingConfig{SlotStepMinutes: 30, DefaultTimezone: "UTC"}, nil).
		WithClock(func() time.Time { return testNow })
	return svc, repo
}

func weekdayHours() []model.WorkingHours {
	hours := make([]model.WorkingHours, 0, 6)
	for day := time.Monday; day <= time.Saturday; day++ {
		hours = append(hours, model.WorkingHours{
			DayOfWeek:   day,
			StartMinute: 8 * 60,
			EndMinute:   17 * 60,
		})
	}
	return hours
}

func pharmacist(name string, specialties ...model.AppointmentType) *model.Resource {
	return &model.Resource{
		ID:           uuid.New(),
		WorkplaceID:  uuid.New(),
		Name:         name,
		Timezone:     "UTC",
		WorkingHours: weekdayHours(),
		Specialties:  specialties,
		Active:       true,
	}
}

func TestSuggest_Validation(t *testing.T) {
	svc, _ := newFixture(t, pharmacist("A"))
	ctx := context.Background()

	_, err := svc.Suggest(ctx, &model.SuggestSlotsRequest{Type: "grooming", DurationMinutes: 30})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrValidation))

	_, err = svc.Suggest(ctx, &model.SuggestSlotsRequest{Type: model.AppointmentTypeVaccination})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrValidation))
}

func TestSuggest_ExcludesConflictsAndPastSlots(t *testing.T) {
	resource := pharmacist("A")
	svc, repo := newFixture(t, resource)
	ctx := context.Background()

	// Monday 08:30-09:30 is already booked.
	booked := &model.Appointment{
		ID:              uuid.New(),
		PatientID:       uuid.New(),
		AssignedTo:      resource.ID,
		WorkplaceID:     resource.WorkplaceID,
		Type:            model.AppointmentTypeVaccination,
		StartTime:       testNow.Add(30 * time.Minute),
		DurationMinutes: 60,
		Timezone:        "UTC",
		Status:          model.AppointmentStatusScheduled,
		Version:         1,
	}
	require.NoError(t, repo.Create(ctx, booked))

	out, err := svc.Suggest(ctx, &model.SuggestSlotsRequest{
		Type:            model.AppointmentTypeVaccination,
		DurationMinutes: 30,
		HorizonDays:     1,
	})
	require.NoError(t, err)
	require.NotEmpty(t, out)

	for _, s := range out {
		assert.True(t, s.Start.After(testNow), "suggested slot %s is not in the future", s.Start)
		overlap := booked.Overlaps(s.Start, s.End)
		assert.False(t, overlap, "suggested slot %s overlaps a booking", s.Start)
	}
}

func TestSuggest_UrgentPrefersSoonestSlot(t *testing.T) {
	resource := pharmacist("A")
	svc, _ := newFixture(t, resource)
	ctx := context.Background()

	out, err := svc.Suggest(ctx, &model.SuggestSlotsRequest{
		Type:            model.AppointmentTypeMTMSession,
		DurationMinutes: 30,
		Urgency:         model.UrgencyUrgent,
		HorizonDays:     7,
	})
	require.NoError(t, err)
	require.NotEmpty(t, out)

	// The soonest open slot (Monday 08:30, half an hour away) outranks slots
	// days out because the proximity bonus decays over the urgency window.
	assert.Equal(t, testNow.Add(30*time.Minute), out[0].Start)
	for _, s := range out[1:] {
		assert.LessOrEqual(t, s.Score, out[0].Score)
	}
}

func TestSuggest_TimeOfDayPreference(t *testing.T) {
	resource := pharmacist("A")
	svc, _ := newFixture(t, resource)
	ctx := context.Background()

	out, err := svc.Suggest(ctx, &model.SuggestSlotsRequest{
		Type:            model.AppointmentTypeHealthCheck,
		DurationMinutes: 30,
		Preferences: model.PatientPreferences{
			PreferredTimeOfDay: model.TimeOfDayAfternoon,
		},
		HorizonDays: 1,
	})
	require.NoError(t, err)
	require.NotEmpty(t, out)

	// With no urgency in play, afternoon slots carry the only bonus, so the
	// top suggestion is the first afternoon slot.
	assert.Equal(t, 12, out[0].Start.UTC().Hour())
	assert.Contains(t, out[0].Reasons[1], "afternoon")
}

func TestSuggest_SpecializationBonus(t *testing.T) {
	specialist := pharmacist("Specialist", model.AppointmentTypeSmokingCessation)
	generalist := pharmacist("Generalist")
	svc, _ := newFixture(t, specialist, generalist)
	ctx := context.Background()

	out, err := svc.Suggest(ctx, &model.SuggestSlotsRequest{
		Type:            model.AppointmentTypeSmokingCessation,
		DurationMinutes: 30,
		HorizonDays:     1,
	})
	require.NoError(t, err)
	require.NotEmpty(t, out)

	assert.Equal(t, specialist.ID, out[0].ResourceID)

	// A specialist in a different type is filtered out, not down-ranked.
	for _, s := range out {
		assert.Contains(t, []uuid.UUID{specialist.ID, generalist.ID}, s.ResourceID)
	}
}

func TestSuggest_SkipsMismatchedSpecialists(t *testing.T) {
	vaccinator := pharmacist("Vaccinator", model.AppointmentTypeVaccination)
	svc, _ := newFixture(t, vaccinator)
	ctx := context.Background()

	out, err := svc.Suggest(ctx, &model.SuggestSlotsRequest{
		Type:            model.AppointmentTypeChronicReview,
		DurationMinutes: 30,
		HorizonDays:     1,
	})
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestSuggest_CandidateFilterAndScoreBounds(t *testing.T) {
	a := pharmacist("A")
	b := pharmacist("B")
	svc, _ := newFixture(t, a, b)
	ctx := context.Background()

	out, err := svc.Suggest(ctx, &model.SuggestSlotsRequest{
		Type:               model.AppointmentTypeGeneralFollowup,
		DurationMinutes:    30,
		Urgency:            model.UrgencyUrgent,
		CandidateResources: []uuid.UUID{a.ID},
		HorizonDays:        2,
	})
	require.NoError(t, err)
	require.NotEmpty(t, out)
	assert.LessOrEqual(t, len(out), maxSuggestions)

	for _, s := range out {
		assert.Equal(t, a.ID, s.ResourceID)
		assert.GreaterOrEqual(t, s.Score, 0)
		assert.LessOrEqual(t, s.Score, 100)
		assert.NotEmpty(t, s.Reasons)
	}
}
