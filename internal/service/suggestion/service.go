package suggestion

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/pharmacare-api/internal/config"
	"github.com/jwalitptl/pharmacare-api/internal/model"
	"github.com/jwalitptl/pharmacare-api/internal/repository"
	"github.com/jwalitptl/pharmacare-api/internal/service/directory"
	"github.com/jwalitptl/pharmacare-api/pkg/errors"
	"github.com/jwalitptl/pharmacare-api/pkg/metrics"
)

const (
	defaultHorizonDays = 7
	maxSuggestions     = 20
)

// Service ranks open slots for a requested appointment. Candidates are
// generated from each resource's working hours at the configured slot step;
// conflicting, past, and out-of-hours slots are excluded outright rather than
// penalized, then the survivors are scored.
type Service struct {
	repo      repository.AppointmentRepository
	directory *directory.Service
	scoring   config.ScoringConfig
	sched     config.SchedulingConfig
	metrics   *metrics.Metrics

	now func() time.Time
}

func NewService(
	repo repository.AppointmentRepository,
	dir *directory.Service,
	scoring config.ScoringConfig,
	sched config.SchedulingConfig,
	m *metrics.Metrics,
) *Service {
	return &Service{
		repo:      repo,
		directory: dir,
		scoring:   scoring,
		sched:     sched,
		metrics:   m,
		now:       time.Now,
	}
}

// WithClock overrides the service clock. Test hook.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

func (s *Service) Suggest(ctx context.Context, req *model.SuggestSlotsRequest) ([]model.Suggestion, error) {
	if !req.Type.Valid() {
		return nil, errors.NewValidation(fmt.Sprintf("unknown appointment type: %s", req.Type))
	}
	if req.DurationMinutes <= 0 {
		return nil, errors.NewValidation("duration must be positive")
	}

	horizon := req.HorizonDays
	if horizon <= 0 {
		horizon = defaultHorizonDays
	}

	resources, err := s.candidateResources(ctx, req)
	if err != nil {
		return nil, err
	}

	started := time.Now()
	now := s.now()

	var suggestions []model.Suggestion
	for _, resource := range resources {
		if !resource.Active || !resource.Specializes(req.Type) {
			continue
		}
		slots, err := s.scoreResource(ctx, resource, req, now, horizon)
		if err != nil {
			log.Warn().Err(err).
				Str("resource_id", resource.ID.String()).
				Msg("skipping resource during slot suggestion")
			continue
		}
		suggestions = append(suggestions, slots...)
	}

	sort.SliceStable(suggestions, func(i, j int) bool {
		if suggestions[i].Score != suggestions[j].Score {
			return suggestions[i].Score > suggestions[j].Score
		}
		return suggestions[i].Start.Before(suggestions[j].Start)
	})
	if len(suggestions) > maxSuggestions {
		suggestions = suggestions[:maxSuggestions]
	}

	if s.metrics != nil {
		s.metrics.SuggestionScoringTime.Observe(time.Since(started).Seconds())
		s.metrics.SuggestionsGenerated.Add(float64(len(suggestions)))
	}
	return suggestions, nil
}

func (s *Service) candidateResources(ctx context.Context, req *model.SuggestSlotsRequest) ([]*model.Resource, error) {
	if len(req.CandidateResources) == 0 {
		return s.directory.List(ctx, nil)
	}
	resources := make([]*model.Resource, 0, len(req.CandidateResources))
	for _, id := range req.CandidateResources {
		resource, err := s.directory.Get(ctx, id)
		if err != nil {
			return nil, errors.NewNotFound("resource", err)
		}
		resources = append(resources, resource)
	}
	return resources, nil
}

// scoreResource walks the resource's working-hours grid over the horizon and
// scores every open slot.
func (s *Service) scoreResource(ctx context.Context, resource *model.Resource, req *model.SuggestSlotsRequest, now time.Time, horizonDays int) ([]model.Suggestion, error) {
	loc, err := time.LoadLocation(resource.Timezone)
	if err != nil {
		loc = time.UTC
	}

	step := s.sched.SlotStepMinutes
	if step <= 0 {
		step = 30
	}

	var out []model.Suggestion
	localNow := now.In(loc)
	for day := 0; day <= horizonDays; day++ {
		date := localNow.AddDate(0, 0, day)
		window, ok := resource.HoursFor(date.Weekday())
		if !ok {
			continue
		}

		midnight := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, loc)
		dayStart := midnight.Add(time.Duration(window.StartMinute) * time.Minute)
		dayEnd := midnight.Add(time.Duration(window.EndMinute) * time.Minute)

		booked, err := s.repo.FindOverlapping(ctx, resource.ID, dayStart, dayEnd, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to load bookings: %w", err)
		}
		utilization := dayUtilization(booked, dayStart, dayEnd, resource.DailyCapacityMinutes(date.Weekday()))

		for startMin := window.StartMinute; startMin+req.DurationMinutes <= window.EndMinute; startMin += step {
			slotStart := midnight.Add(time.Duration(startMin) * time.Minute)
			slotEnd := slotStart.Add(time.Duration(req.DurationMinutes) * time.Minute)
			if !slotStart.After(now) {
				continue
			}
			if slotConflicts(booked, slotStart, slotEnd) {
				continue
			}

			score, reasons := s.score(resource, req, slotStart, now, utilization)
			out = append(out, model.Suggestion{
				ResourceID: resource.ID,
				Start:      slotStart.UTC(),
				End:        slotEnd.UTC(),
				Score:      score,
				Reasons:    reasons,
			})
		}
	}
	return out, nil
}

func (s *Service) score(resource *model.Resource, req *model.SuggestSlotsRequest, slotStart, now time.Time, utilization float64) (int, []string) {
	score := s.scoring.BaseScore
	reasons := []string{"open slot"}

	if matchesTimeOfDay(req.Preferences.PreferredTimeOfDay, slotStart) {
		score += s.scoring.TimeOfDayMatch
		reasons = append(reasons, fmt.Sprintf("matches preferred %s time", req.Preferences.PreferredTimeOfDay))
	}
	if matchesPreferredDay(req.Preferences.PreferredDays, slotStart) {
		score += s.scoring.TimeOfDayMatch
		reasons = append(reasons, fmt.Sprintf("falls on preferred %s", slotStart.Weekday()))
	}
	if len(resource.Specialties) > 0 && resource.Specializes(req.Type) {
		score += s.scoring.SpecializationMatch
		reasons = append(reasons, fmt.Sprintf("%s specializes in %s", resource.Name, req.Type))
	}

	if bonus := int(math.Round(float64(s.scoring.LowUtilizationMax) * (1 - utilization))); bonus > 0 {
		score += bonus
		reasons = append(reasons, fmt.Sprintf("light schedule that day (%d%% booked)", int(utilization*100)))
	}

	if weight := s.proximityWeight(req.Urgency); weight > 0 {
		decay := time.Duration(s.scoring.UrgentDecayHours) * time.Hour
		until := slotStart.Sub(now)
		if until < decay {
			bonus := int(math.Round(float64(weight) * (1 - until.Hours()/decay.Hours())))
			if bonus > 0 {
				score += bonus
				reasons = append(reasons, fmt.Sprintf("soonest availability for %s request", req.Urgency))
			}
		}
	}

	if score > 100 {
		score = 100
	}
	if score < 0 {
		score = 0
	}
	return score, reasons
}

func (s *Service) proximityWeight(u model.Urgency) int {
	switch u {
	case model.UrgencyUrgent:
		return s.scoring.UrgencyProximityMax
	case model.UrgencyHigh:
		return s.scoring.UrgencyProximityMax / 2
	default:
		return 0
	}
}

func matchesTimeOfDay(pref model.TimeOfDay, slotStart time.Time) bool {
	switch pref {
	case model.TimeOfDayMorning:
		return slotStart.Hour() < 12
	case model.TimeOfDayAfternoon:
		return slotStart.Hour() >= 12
	default:
		return false
	}
}

func matchesPreferredDay(days []time.Weekday, slotStart time.Time) bool {
	for _, d := range days {
		if slotStart.Weekday() == d {
			return true
		}
	}
	return false
}

// dayUtilization is the booked fraction of the working window, clamped to 1.
func dayUtilization(booked []*model.Appointment, dayStart, dayEnd time.Time, capacityMinutes int) float64 {
	capacity := float64(capacityMinutes)
	if capacity <= 0 {
		return 1
	}
	var bookedMinutes float64
	for _, apt := range booked {
		start := apt.StartTime
		if start.Before(dayStart) {
			start = dayStart
		}
		end := apt.EndTime()
		if end.After(dayEnd) {
			end = dayEnd
		}
		if end.After(start) {
			bookedMinutes += end.Sub(start).Minutes()
		}
	}
	if bookedMinutes >= capacity {
		return 1
	}
	return bookedMinutes / capacity
}

func slotConflicts(booked []*model.Appointment, start, end time.Time) bool {
	for _, apt := range booked {
		if apt.Overlaps(start, end) {
			return true
		}
	}
	return false
}
