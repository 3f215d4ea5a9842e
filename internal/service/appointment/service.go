package appointment

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/pharmacare-api/internal/config"
	"github.com/jwalitptl/pharmacare-api/internal/model"
	"github.com/jwalitptl/pharmacare-api/internal/repository"
	"github.com/jwalitptl/pharmacare-api/internal/service/audit"
	"github.com/jwalitptl/pharmacare-api/internal/service/availability"
	"github.com/jwalitptl/pharmacare-api/internal/service/notification"
	"github.com/jwalitptl/pharmacare-api/pkg/errors"
	"github.com/jwalitptl/pharmacare-api/pkg/locker"
	"github.com/jwalitptl/pharmacare-api/pkg/metrics"
)

type Service struct {
	repo     repository.AppointmentRepository
	avail    *availability.Service
	locker   locker.Locker
	notifSvc notification.Service
	auditor  *audit.Service
	metrics  *metrics.Metrics
	cfg      config.SchedulingConfig

	// now is injectable for tests.
	now func() time.Time
}

func NewService(
	repo repository.AppointmentRepository,
	avail *availability.Service,
	lk locker.Locker,
	notifSvc notification.Service,
	auditor *audit.Service,
	m *metrics.Metrics,
	cfg config.SchedulingConfig,
) *Service {
	return &Service{
		repo:     repo,
		avail:    avail,
		locker:   lk,
		notifSvc: notifSvc,
		auditor:  auditor,
		metrics:  m,
		cfg:      cfg,
		now:      time.Now,
	}
}

// WithClock overrides the service clock. Test hook.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

func (s *Service) CreateAppointment(ctx context.Context, req *model.CreateAppointmentRequest) (*model.Appointment, error) {
	defer s.observeLatency("create", time.Now())

	if err := s.validateBooking(req.Type, req.StartTime, req.DurationMinutes, req.Timezone); err != nil {
		return nil, err
	}

	now := s.now()
	tz := req.Timezone
	if tz == "" {
		tz = s.cfg.DefaultTimezone
	}

	apt := &model.Appointment{
		ID:                 uuid.New(),
		PatientID:          req.PatientID,
		AssignedTo:         req.AssignedTo,
		WorkplaceID:        req.WorkplaceID,
		Type:               req.Type,
		StartTime:          req.StartTime,
		DurationMinutes:    req.DurationMinutes,
		Timezone:           tz,
		Status:             model.AppointmentStatusScheduled,
		ConfirmationStatus: model.ConfirmationPending,
		Override:           req.Override,
		Version:            1,
		CreatedAt:          now,
		CreatedBy:          req.CreatedBy,
		UpdatedAt:          now,
	}

	for _, rem := range req.Reminders {
		rem.ID = uuid.New()
		rem.Sent = false
		rem.SentAt = nil
		rem.DeliveryStatus = model.DeliveryPending
		apt.Reminders = append(apt.Reminders, rem)
	}

	err := s.locker.WithResourceLock(ctx, req.AssignedTo, func(lockCtx context.Context) error {
		if err := s.avail.EnsureBookable(lockCtx, req.AssignedTo, apt.StartTime, apt.EndTime(), nil, req.Override); err != nil {
			return err
		}
		if err := s.repo.Create(lockCtx, apt); err != nil {
			return fmt.Errorf("failed to create appointment: %w", err)
		}
		return nil
	})
	if err != nil {
		if stderrors.Is(err, locker.ErrLockNotAcquired) {
			s.observeLockContention()
			return nil, errors.NewSlotConflict(nil)
		}
		if errors.Is(err, errors.ErrSlotConflict) {
			s.observeSlotConflict()
		}
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.AppointmentsCreated.WithLabelValues(string(apt.Type)).Inc()
	}
	s.audit(ctx, apt.CreatedBy, apt.WorkplaceID, "create", apt.ID, apt)

	return apt, nil
}

func (s *Service) GetAppointment(ctx context.Context, id uuid.UUID) (*model.Appointment, error) {
	apt, err := s.repo.Get(ctx, id)
	if err != nil {
		if stderrors.Is(err, repository.ErrNotFound) {
			return nil, errors.NewNotFound("appointment", err)
		}
		return nil, fmt.Errorf("failed to get appointment: %w", err)
	}
	return apt, nil
}

// GetCalendar returns the appointments overlapping the range, for the UI's
// calendar projector. Read-only; never locked against writes.
func (s *Service) GetCalendar(ctx context.Context, filters *model.CalendarFilters) ([]*model.Appointment, error) {
	if !filters.From.Before(filters.To) {
		return nil, errors.NewValidation("calendar range start must precede end")
	}
	appointments, err := s.repo.List(ctx, filters)
	if err != nil {
		return nil, fmt.Errorf("failed to list appointments: %w", err)
	}
	return appointments, nil
}

// RescheduleAppointment retires the appointment as `rescheduled` and books a
// replacement in one atomic step. A failed attempt leaves the original record
// untouched; the caller just re-renders.
func (s *Service) RescheduleAppointment(ctx context.Context, id uuid.UUID, req *model.RescheduleAppointmentRequest) (*model.Appointment, error) {
	defer s.observeLatency("reschedule", time.Now())

	apt, err := s.GetAppointment(ctx, id)
	if err != nil {
		return nil, err
	}

	if apt.Status != model.AppointmentStatusScheduled && apt.Status != model.AppointmentStatusConfirmed {
		s.observeReschedule("invalid_transition")
		return nil, errors.NewInvalidTransition(string(apt.Status), string(model.AppointmentStatusRescheduled))
	}

	duration := apt.DurationMinutes
	if req.NewDurationMinutes != nil {
		duration = *req.NewDurationMinutes
	}
	if err := s.validateBooking(apt.Type, req.NewStart, duration, apt.Timezone); err != nil {
		return nil, err
	}

	expectedVersion := req.ExpectedVersion
	if expectedVersion == 0 {
		expectedVersion = apt.Version
	}

	now := s.now()
	reason := req.Reason

	old := *apt
	old.UpdatedAt = now
	old.RescheduledAt = &now
	old.RescheduledReason = &reason

	replacement := &model.Appointment{
		ID:                 uuid.New(),
		PatientID:          apt.PatientID,
		AssignedTo:         apt.AssignedTo,
		WorkplaceID:        apt.WorkplaceID,
		Type:               apt.Type,
		StartTime:          req.NewStart,
		DurationMinutes:    duration,
		Timezone:           apt.Timezone,
		Status:             model.AppointmentStatusScheduled,
		ConfirmationStatus: model.ConfirmationPending,
		Version:            1,
		CreatedAt:          now,
		CreatedBy:          apt.CreatedBy,
		UpdatedAt:          now,
		RescheduledFromID:  &apt.ID,
	}

	err = s.locker.WithResourceLock(ctx, apt.AssignedTo, func(lockCtx context.Context) error {
		if err := s.avail.EnsureBookable(lockCtx, apt.AssignedTo, replacement.StartTime, replacement.EndTime(), &apt.ID, false); err != nil {
			return err
		}
		if err := s.repo.CreateRescheduled(lockCtx, &old, replacement, expectedVersion); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		switch {
		case stderrors.Is(err, locker.ErrLockNotAcquired):
			s.observeLockContention()
			s.observeReschedule("conflict")
			return nil, errors.NewSlotConflict(nil)
		case errors.Is(err, errors.ErrSlotConflict):
			s.observeSlotConflict()
			s.observeReschedule("conflict")
			return nil, err
		case stderrors.Is(err, repository.ErrVersionConflict):
			s.observeReschedule("stale")
			return nil, errors.NewStaleState(expectedVersion, apt.Version)
		case stderrors.Is(err, repository.ErrNotFound):
			return nil, errors.NewNotFound("appointment", err)
		default:
			s.observeReschedule("error")
			return nil, err
		}
	}

	s.observeReschedule("success")
	s.audit(ctx, apt.CreatedBy, apt.WorkplaceID, "reschedule", apt.ID, map[string]interface{}{
		"old_start":      apt.StartTime,
		"new_start":      replacement.StartTime,
		"replacement_id": replacement.ID,
		"reason":         reason,
	})

	if req.NotifyPatient {
		s.notify(ctx, replacement, "appointment_rescheduled", reason)
	}

	return replacement, nil
}

// TransitionStatus applies a state-machine edge under optimistic concurrency.
func (s *Service) TransitionStatus(ctx context.Context, id uuid.UUID, req *model.TransitionRequest) (*model.Appointment, error) {
	defer s.observeLatency("transition", time.Now())

	if req.TargetStatus == model.AppointmentStatusRescheduled {
		return nil, errors.NewValidation("rescheduling is performed through the reschedule operation")
	}

	apt, err := s.GetAppointment(ctx, id)
	if err != nil {
		return nil, err
	}

	expectedVersion := req.ExpectedVersion
	if expectedVersion == 0 {
		expectedVersion = apt.Version
	}
	if expectedVersion != apt.Version {
		return nil, errors.NewStaleState(expectedVersion, apt.Version)
	}

	updated, err := ApplyTransition(apt, req.TargetStatus, TransitionPayload{
		Outcome:       req.Outcome,
		Reason:        req.Reason,
		NotifyPatient: req.NotifyPatient,
	}, s.now())
	if err != nil {
		return nil, err
	}

	if err := s.repo.Update(ctx, updated, expectedVersion); err != nil {
		switch {
		case stderrors.Is(err, repository.ErrVersionConflict):
			return nil, errors.NewStaleState(expectedVersion, apt.Version)
		case stderrors.Is(err, repository.ErrNotFound):
			return nil, errors.NewNotFound("appointment", err)
		default:
			return nil, fmt.Errorf("failed to update appointment: %w", err)
		}
	}

	if s.metrics != nil {
		s.metrics.AppointmentTransitions.WithLabelValues(string(apt.Status), string(req.TargetStatus)).Inc()
	}
	s.audit(ctx, apt.CreatedBy, apt.WorkplaceID, "transition_"+string(req.TargetStatus), apt.ID, map[string]interface{}{
		"from": apt.Status,
		"to":   req.TargetStatus,
	})

	if req.NotifyPatient {
		s.notify(ctx, updated, "appointment_"+string(req.TargetStatus), req.Reason)
	}

	return updated, nil
}

func (s *Service) CancelAppointment(ctx context.Context, id uuid.UUID, req *model.CancelAppointmentRequest) (*model.Appointment, error) {
	return s.TransitionStatus(ctx, id, &model.TransitionRequest{
		TargetStatus:    model.AppointmentStatusCancelled,
		ExpectedVersion: req.ExpectedVersion,
		Reason:          req.Reason,
		NotifyPatient:   req.NotifyPatient,
	})
}

// DeleteAppointment soft-deletes a terminal appointment. The row is retained
// for analytics history.
func (s *Service) DeleteAppointment(ctx context.Context, id uuid.UUID) error {
	apt, err := s.GetAppointment(ctx, id)
	if err != nil {
		return err
	}
	if !apt.Status.IsTerminal() {
		return errors.NewValidation("only terminal appointments can be deleted")
	}

	apt.IsDeleted = true
	apt.UpdatedAt = s.now()
	if err := s.repo.Update(ctx, apt, apt.Version); err != nil {
		if stderrors.Is(err, repository.ErrVersionConflict) {
			return errors.NewStaleState(apt.Version, apt.Version)
		}
		return fmt.Errorf("failed to delete appointment: %w", err)
	}

	s.audit(ctx, apt.CreatedBy, apt.WorkplaceID, "delete", apt.ID, nil)
	return nil
}

func (s *Service) validateBooking(t model.AppointmentType, start time.Time, durationMinutes int, tz string) error {
	if !t.Valid() {
		return errors.NewValidation(fmt.Sprintf("unknown appointment type: %s", t))
	}
	if durationMinutes <= 0 {
		return errors.NewValidation("appointment duration must be positive")
	}
	if durationMinutes < s.cfg.MinDurationMinutes {
		return errors.NewValidation(fmt.Sprintf("appointment duration must be at least %d minutes", s.cfg.MinDurationMinutes))
	}
	if durationMinutes > s.cfg.MaxDurationMinutes {
		return errors.NewValidation(fmt.Sprintf("appointment duration cannot exceed %d minutes", s.cfg.MaxDurationMinutes))
	}

	if tz == "" {
		tz = s.cfg.DefaultTimezone
	}
	if _, err := time.LoadLocation(tz); err != nil {
		return errors.NewValidation(fmt.Sprintf("unknown timezone: %s", tz))
	}

	probe := model.Appointment{StartTime: start, DurationMinutes: durationMinutes, Timezone: tz}
	if probe.CrossesMidnight() {
		return errors.NewValidation("appointment must not cross into the next calendar day")
	}

	now := s.now()
	advance := start.Sub(now)
	if advance < time.Duration(s.cfg.MinAdvanceMinutes)*time.Minute {
		return errors.NewValidation("appointment cannot be scheduled in the past")
	}
	if advance > time.Duration(s.cfg.MaxAdvanceDays)*24*time.Hour {
		return errors.NewValidation(fmt.Sprintf("appointment cannot be booked more than %d days in advance", s.cfg.MaxAdvanceDays))
	}
	return nil
}

func (s *Service) notify(ctx context.Context, apt *model.Appointment, event, reason string) {
	if s.notifSvc == nil {
		return
	}
	content := fmt.Sprintf("Your %s on %s has been updated (%s).",
		apt.Type, apt.StartTime.Format(time.RFC1123), event)
	if reason != "" {
		content += " Reason: " + reason
	}
	// Recipient resolution (patient contact lookup) is the dispatcher's
	// concern; the core hands over the patient id.
	n := &model.Notification{
		AppointmentID: apt.ID,
		PatientID:     apt.PatientID,
		Channel:       model.ReminderChannelSMS,
		Subject:       "Appointment update",
		Content:       content,
		Recipient:     apt.PatientID.String(),
	}
	if err := s.notifSvc.Send(ctx, n); err != nil {
		s.audit(ctx, apt.CreatedBy, apt.WorkplaceID, "notification_failed", apt.ID, map[string]interface{}{
			"event": event,
			"error": err.Error(),
		})
	}
}

func (s *Service) audit(ctx context.Context, actorID, workplaceID uuid.UUID, action string, entityID uuid.UUID, changes interface{}) {
	if s.auditor == nil {
		return
	}
	var opts *audit.LogOptions
	if changes != nil {
		opts = &audit.LogOptions{Changes: changes}
	}
	s.auditor.Log(ctx, actorID, workplaceID, action, "appointment", entityID, opts)
}

func (s *Service) observeLatency(operation string, started time.Time) {
	if s.metrics != nil {
		s.metrics.SchedulingLatency.WithLabelValues(operation).Observe(time.Since(started).Seconds())
	}
}

func (s *Service) observeSlotConflict() {
	if s.metrics != nil {
		s.metrics.SlotConflicts.Inc()
	}
}

func (s *Service) observeLockContention() {
	if s.metrics != nil {
		s.metrics.LockContention.Inc()
	}
}

func (s *Service) observeReschedule(outcome string) {
	if s.metrics != nil {
		s.metrics.RescheduleAttempts.WithLabelValues(outcome).Inc()
	}
}
