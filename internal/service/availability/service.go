package availability

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/pharmacare-api/internal/model"
	"github.com/jwalitptl/pharmacare-api/internal/repository"
	"github.com/jwalitptl/pharmacare-api/internal/service/directory"
	"github.com/jwalitptl/pharmacare-api/pkg/errors"
)

// Result is the outcome of an availability check.
type Result struct {
	Available      bool        `json:"available"`
	ConflictingIDs []uuid.UUID `json:"conflicting_ids,omitempty"`
}

// Service decides whether a (resource, time-range) slot can be booked. It is
// the single authority for the overlap rule: ranges are half-open, so
// back-to-back appointments do not conflict.
type Service struct {
	repo      repository.AppointmentRepository
	directory *directory.Service
}

func NewService(repo repository.AppointmentRepository, directory *directory.Service) *Service {
	return &Service{
		repo:      repo,
		directory: directory,
	}
}

// CheckAvailability returns the active appointments blocking the slot's
// half-open range. excludeID lets a reschedule probe the new slot without
// tripping over the appointment's own current booking.
func (s *Service) CheckAvailability(ctx context.Context, slot model.Slot, excludeID *uuid.UUID) (*Result, error) {
	conflicts, err := s.repo.FindOverlapping(ctx, slot.ResourceID, slot.Start, slot.End, excludeID)
	if err != nil {
		return nil, fmt.Errorf("failed to check availability: %w", err)
	}

	if len(conflicts) == 0 {
		return &Result{Available: true}, nil
	}

	ids := make([]uuid.UUID, 0, len(conflicts))
	for _, apt := range conflicts {
		ids = append(ids, apt.ID)
	}
	return &Result{Available: false, ConflictingIDs: ids}, nil
}

// EnsureBookable validates business hours and slot conflicts for a booking or
// reschedule. It must run inside the resource lock held by the caller so the
// check-then-write pair is atomic.
func (s *Service) EnsureBookable(ctx context.Context, resourceID uuid.UUID, start, end time.Time, excludeID *uuid.UUID, override bool) error {
	if !override {
		resource, err := s.directory.Get(ctx, resourceID)
		if err != nil {
			return errors.NewNotFound("resource", err)
		}
		if !s.WithinBusinessHours(resource, start, end) {
			return errors.NewOutsideBusinessHours(fmt.Sprintf(
				"slot %s-%s is outside %s's business hours",
				start.Format("15:04"), end.Format("15:04"), resource.Name,
			))
		}
	}

	result, err := s.CheckAvailability(ctx, model.Slot{ResourceID: resourceID, Start: start, End: end}, excludeID)
	if err != nil {
		return err
	}
	if !result.Available {
		ids := make([]string, 0, len(result.ConflictingIDs))
		for _, id := range result.ConflictingIDs {
			ids = append(ids, id.String())
		}
		return errors.NewSlotConflict(ids)
	}
	return nil
}

// WithinBusinessHours reports whether [start, end) fits the resource's
// configured day-of-week window, evaluated in the resource's timezone.
func (s *Service) WithinBusinessHours(resource *model.Resource, start, end time.Time) bool {
	loc, err := time.LoadLocation(resource.Timezone)
	if err != nil {
		loc = time.UTC
	}

	localStart := start.In(loc)
	localEnd := end.In(loc)

	// Slots crossing midnight never fit a single day window.
	if localStart.YearDay() != localEnd.Add(-time.Nanosecond).YearDay() ||
		localStart.Year() != localEnd.Add(-time.Nanosecond).Year() {
		return false
	}

	window, ok := resource.HoursFor(localStart.Weekday())
	if !ok {
		return false
	}

	startMin := localStart.Hour()*60 + localStart.Minute()
	endMin := localEnd.Hour()*60 + localEnd.Minute()
	if endMin == 0 && localEnd.After(localStart) {
		endMin = 24 * 60
	}
	return window.Contains(startMin, endMin)
}
