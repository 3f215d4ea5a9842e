package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/pharmacare-api/internal/model"
	"github.com/jwalitptl/pharmacare-api/internal/repository"
)

// AppointmentRepository is an in-memory implementation used by tests and
// single-node development setups. It mirrors the postgres repository's
// semantics, including version checks and soft-delete filtering.
type AppointmentRepository struct {
	mu           sync.RWMutex
	appointments map[uuid.UUID]*model.Appointment
}

func NewAppointmentRepository() *AppointmentRepository {
	return &AppointmentRepository{
		appointments: make(map[uuid.UUID]*model.Appointment),
	}
}

func cloneAppointment(apt *model.Appointment) *model.Appointment {
	cp := *apt
	if apt.Outcome != nil {
		o := *apt.Outcome
		o.NextActions = append([]string(nil), apt.Outcome.NextActions...)
		cp.Outcome = &o
	}
	if apt.RelatedRecords != nil {
		rr := *apt.RelatedRecords
		cp.RelatedRecords = &rr
	}
	cp.Reminders = append([]model.Reminder(nil), apt.Reminders...)
	return &cp
}

func (r *AppointmentRepository) Create(_ context.Context, apt *model.Appointment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.appointments[apt.ID] = cloneAppointment(apt)
	return nil
}

func (r *AppointmentRepository) Get(_ context.Context, id uuid.UUID) (*model.Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	apt, ok := r.appointments[id]
	if !ok || apt.IsDeleted {
		return nil, repository.ErrNotFound
	}
	return cloneAppointment(apt), nil
}

func (r *AppointmentRepository) Update(_ context.Context, apt *model.Appointment, expectedVersion int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.appointments[apt.ID]
	if !ok || stored.IsDeleted {
		return repository.ErrNotFound
	}
	if stored.Version != expectedVersion {
		return repository.ErrVersionConflict
	}
	updated := cloneAppointment(apt)
	updated.Version = expectedVersion + 1
	r.appointments[apt.ID] = updated
	apt.Version = updated.Version
	return nil
}

func (r *AppointmentRepository) List(_ context.Context, filters *model.CalendarFilters) ([]*model.Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*model.Appointment
	for _, apt := range r.appointments {
		if apt.IsDeleted {
			continue
		}
		if !apt.Overlaps(filters.From, filters.To) {
			continue
		}
		if filters.ResourceID != nil && apt.AssignedTo != *filters.ResourceID {
			continue
		}
		if filters.WorkplaceID != nil && apt.WorkplaceID != *filters.WorkplaceID {
			continue
		}
		out = append(out, cloneAppointment(apt))
	}
	sortByStart(out)
	return out, nil
}

func (r *AppointmentRepository) FindOverlapping(_ context.Context, resourceID uuid.UUID, start, end time.Time, excludeID *uuid.UUID) ([]*model.Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*model.Appointment
	for _, apt := range r.appointments {
		if apt.IsDeleted || apt.AssignedTo != resourceID {
			continue
		}
		if !apt.Status.IsActive() {
			continue
		}
		if excludeID != nil && apt.ID == *excludeID {
			continue
		}
		if apt.Overlaps(start, end) {
			out = append(out, cloneAppointment(apt))
		}
	}
	sortByStart(out)
	return out, nil
}

func (r *AppointmentRepository) CreateRescheduled(_ context.Context, old *model.Appointment, replacement *model.Appointment, expectedVersion int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.appointments[old.ID]
	if !ok || stored.IsDeleted {
		return repository.ErrNotFound
	}
	if stored.Version != expectedVersion {
		return repository.ErrVersionConflict
	}

	terminal := cloneAppointment(stored)
	terminal.Status = model.AppointmentStatusRescheduled
	terminal.UpdatedAt = old.UpdatedAt
	terminal.RescheduledAt = old.RescheduledAt
	terminal.RescheduledReason = old.RescheduledReason
	terminal.Version = expectedVersion + 1

	r.appointments[old.ID] = terminal
	r.appointments[replacement.ID] = cloneAppointment(replacement)
	old.Version = terminal.Version
	return nil
}

func (r *AppointmentRepository) ListForAnalytics(_ context.Context, rng model.DateRange, resourceID *uuid.UUID) ([]*model.Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*model.Appointment
	for _, apt := range r.appointments {
		if apt.StartTime.Before(rng.From) || !apt.StartTime.Before(rng.To) {
			continue
		}
		if resourceID != nil && apt.AssignedTo != *resourceID {
			continue
		}
		out = append(out, cloneAppointment(apt))
	}
	sortByStart(out)
	return out, nil
}

func (r *AppointmentRepository) ListDueReminders(_ context.Context, due time.Time, limit int) ([]*repository.DueReminder, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*repository.DueReminder
	for _, apt := range r.appointments {
		if apt.IsDeleted {
			continue
		}
		if apt.Status != model.AppointmentStatusScheduled && apt.Status != model.AppointmentStatusConfirmed {
			continue
		}
		for _, rem := range apt.Reminders {
			if rem.Sent || rem.ScheduledFor.After(due) {
				continue
			}
			out = append(out, &repository.DueReminder{
				Appointment: cloneAppointment(apt),
				Reminder:    rem,
			})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Reminder.ScheduledFor.Before(out[j].Reminder.ScheduledFor)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *AppointmentRepository) MarkReminderDispatched(_ context.Context, appointmentID, reminderID uuid.UUID, status model.DeliveryStatus, failureReason *string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	apt, ok := r.appointments[appointmentID]
	if !ok {
		return repository.ErrNotFound
	}
	for i := range apt.Reminders {
		if apt.Reminders[i].ID != reminderID {
			continue
		}
		if apt.Reminders[i].Sent {
			return repository.ErrNotFound
		}
		apt.Reminders[i].DeliveryStatus = status
		apt.Reminders[i].FailureReason = failureReason
		if status == model.DeliverySent {
			now := time.Now()
			apt.Reminders[i].Sent = true
			apt.Reminders[i].SentAt = &now
		}
		return nil
	}
	return repository.ErrNotFound
}

func sortByStart(appointments []*model.Appointment) {
	sort.Slice(appointments, func(i, j int) bool {
		return appointments[i].StartTime.Before(appointments[j].StartTime)
	})
}
