package appointment

import (
	"time"

	"github.com/jwalitptl/pharmacare-api/internal/model"
	"github.com/jwalitptl/pharmacare-api/pkg/errors"
)

// allowedTransitions is the appointment lifecycle graph. Completion is
// reachable from any pre-terminal active status: a walk-in can be closed out
// without ever being confirmed or started. Rescheduling is not listed as a
// caller-requested target; it is applied internally by the reschedule
// operation, which retires the old record and creates a new one.
var allowedTransitions = map[model.AppointmentStatus][]model.AppointmentStatus{
	model.AppointmentStatusScheduled: {
		model.AppointmentStatusConfirmed,
		model.AppointmentStatusCompleted,
		model.AppointmentStatusCancelled,
		model.AppointmentStatusNoShow,
		model.AppointmentStatusRescheduled,
	},
	model.AppointmentStatusConfirmed: {
		model.AppointmentStatusInProgress,
		model.AppointmentStatusCompleted,
		model.AppointmentStatusCancelled,
		model.AppointmentStatusNoShow,
		model.AppointmentStatusRescheduled,
	},
	model.AppointmentStatusInProgress: {
		model.AppointmentStatusCompleted,
		model.AppointmentStatusCancelled,
	},
}

func transitionAllowed(from, to model.AppointmentStatus) bool {
	for _, allowed := range allowedTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// TransitionPayload carries the per-target inputs of a status transition.
type TransitionPayload struct {
	Outcome       *model.Outcome
	Reason        string
	NotifyPatient bool
}

// ApplyTransition validates the edge and returns a copy of the appointment
// with the target status and the matching audit timestamp applied. The
// caller persists the copy under optimistic concurrency.
func ApplyTransition(apt *model.Appointment, target model.AppointmentStatus, payload TransitionPayload, now time.Time) (*model.Appointment, error) {
	if !transitionAllowed(apt.Status, target) {
		return nil, errors.NewInvalidTransition(string(apt.Status), string(target))
	}

	updated := *apt
	updated.UpdatedAt = now

	switch target {
	case model.AppointmentStatusConfirmed:
		updated.Status = target
		updated.ConfirmationStatus = model.ConfirmationConfirmed
		updated.ConfirmedAt = &now

	case model.AppointmentStatusInProgress:
		updated.Status = target

	case model.AppointmentStatusCompleted:
		if payload.Outcome == nil {
			return nil, errors.NewValidation("completing an appointment requires an outcome")
		}
		outcome := *payload.Outcome
		updated.Status = target
		updated.Outcome = &outcome
		updated.CompletedAt = &now

	case model.AppointmentStatusCancelled:
		if payload.NotifyPatient && payload.Reason == "" {
			return nil, errors.NewValidation("cancelling with patient notification requires a reason")
		}
		updated.Status = target
		updated.CancelledAt = &now
		if payload.Reason != "" {
			reason := payload.Reason
			updated.CancellationReason = &reason
		}

	case model.AppointmentStatusNoShow:
		if now.Before(apt.StartTime) {
			return nil, errors.NewValidation("cannot mark no-show before the scheduled time has elapsed")
		}
		updated.Status = target

	case model.AppointmentStatusRescheduled:
		updated.Status = target
		updated.RescheduledAt = &now

	default:
		return nil, errors.NewInvalidTransition(string(apt.Status), string(target))
	}

	return &updated, nil
}
