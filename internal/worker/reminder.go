package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/pharmacare-api/internal/model"
	"github.com/jwalitptl/pharmacare-api/internal/repository"
	"github.com/jwalitptl/pharmacare-api/internal/service/notification"
	"github.com/jwalitptl/pharmacare-api/pkg/metrics"
)

// ReminderWorker scans for due appointment reminders and hands them to the
// notification dispatcher. A reminder is marked dispatched the moment the
// dispatcher accepts it; reminders that fail to hand over stay pending and
// are retried on the next tick.
type ReminderWorker struct {
	repo      repository.AppointmentRepository
	notifier  notification.Service
	metrics   *metrics.Metrics
	interval  time.Duration
	batchSize int
}

func NewReminderWorker(
	repo repository.AppointmentRepository,
	notifier notification.Service,
	m *metrics.Metrics,
	interval time.Duration,
	batchSize int,
) *ReminderWorker {
	if interval <= 0 {
		interval = time.Minute
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	return &ReminderWorker{
		repo:      repo,
		notifier:  notifier,
		metrics:   m,
		interval:  interval,
		batchSize: batchSize,
	}
}

func (w *ReminderWorker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	log.Info().Dur("interval", w.interval).Msg("reminder worker started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("reminder worker shutting down")
			return
		case <-ticker.C:
			if err := w.dispatchDue(ctx); err != nil {
				log.Error().Err(err).Msg("reminder dispatch pass failed")
			}
		}
	}
}

func (w *ReminderWorker) dispatchDue(ctx context.Context) error {
	due, err := w.repo.ListDueReminders(ctx, time.Now(), w.batchSize)
	if err != nil {
		return fmt.Errorf("failed to list due reminders: %w", err)
	}

	for _, d := range due {
		w.dispatch(ctx, d)
	}
	return nil
}

func (w *ReminderWorker) dispatch(ctx context.Context, d *repository.DueReminder) {
	apt := d.Appointment
	n := &model.Notification{
		AppointmentID: apt.ID,
		PatientID:     apt.PatientID,
		Channel:       d.Reminder.Channel,
		Subject:       "Appointment reminder",
		Content: fmt.Sprintf("Reminder: your %s is scheduled for %s.",
			apt.Type, apt.StartTime.Format(time.RFC1123)),
		Recipient: apt.PatientID.String(),
	}

	status := model.DeliverySent
	var failureReason *string
	if err := w.notifier.Send(ctx, n); err != nil {
		log.Error().Err(err).
			Str("appointment_id", apt.ID.String()).
			Str("reminder_id", d.Reminder.ID.String()).
			Msg("failed to hand reminder to dispatcher")
		status = model.DeliveryFailed
		msg := err.Error()
		failureReason = &msg
	}

	if err := w.repo.MarkReminderDispatched(ctx, apt.ID, d.Reminder.ID, status, failureReason); err != nil {
		log.Error().Err(err).
			Str("appointment_id", apt.ID.String()).
			Str("reminder_id", d.Reminder.ID.String()).
			Msg("failed to record reminder dispatch")
		return
	}

	if w.metrics != nil {
		if status == model.DeliverySent {
			w.metrics.RemindersDispatched.WithLabelValues(string(d.Reminder.Channel)).Inc()
		} else {
			w.metrics.RemindersFailed.WithLabelValues(string(d.Reminder.Channel)).Inc()
		}
	}
}
