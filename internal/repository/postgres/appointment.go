package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/pharmacare-api/internal/model"
	"github.com/jwalitptl/pharmacare-api/internal/repository"
)

type appointmentRepository struct {
	db *sqlx.DB
}

func NewAppointmentRepository(db *sqlx.DB) repository.AppointmentRepository {
	return &appointmentRepository{db: db}
}

const appointmentColumns = `
	id, patient_id, assigned_to, workplace_id, type,
	start_time, duration_minutes, timezone,
	status, confirmation_status, override,
	outcome, related_records, version, is_deleted,
	created_at, created_by, updated_at,
	confirmed_at, rescheduled_at, rescheduled_reason, rescheduled_from_id,
	completed_at, cancelled_at, cancellation_reason
`

type appointmentRow struct {
	model.Appointment
	OutcomeJSON        []byte `db:"outcome"`
	RelatedRecordsJSON []byte `db:"related_records"`
}

func (r appointmentRow) toModel() (*model.Appointment, error) {
	apt := r.Appointment
	if len(r.OutcomeJSON) > 0 {
		apt.Outcome = &model.Outcome{}
		if err := json.Unmarshal(r.OutcomeJSON, apt.Outcome); err != nil {
			return nil, fmt.Errorf("failed to decode outcome: %w", err)
		}
	}
	if len(r.RelatedRecordsJSON) > 0 {
		apt.RelatedRecords = &model.RelatedRecords{}
		if err := json.Unmarshal(r.RelatedRecordsJSON, apt.RelatedRecords); err != nil {
			return nil, fmt.Errorf("failed to decode related records: %w", err)
		}
	}
	return &apt, nil
}

func marshalJSONField(v *model.RelatedRecords) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

func (r *appointmentRepository) Create(ctx context.Context, apt *model.Appointment) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := r.insertTx(ctx, tx, apt); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit appointment: %w", err)
	}
	return nil
}

func (r *appointmentRepository) insertTx(ctx context.Context, tx *sqlx.Tx, apt *model.Appointment) error {
	outcome, err := apt.MarshalOutcome()
	if err != nil {
		return fmt.Errorf("failed to encode outcome: %w", err)
	}
	related, err := marshalJSONField(apt.RelatedRecords)
	if err != nil {
		return fmt.Errorf("failed to encode related records: %w", err)
	}

	query := `
		INSERT INTO appointments (` + appointmentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15,
		        $16, $17, $18, $19, $20, $21, $22, $23, $24, $25)
	`
	_, err = tx.ExecContext(ctx, query,
		apt.ID, apt.PatientID, apt.AssignedTo, apt.WorkplaceID, apt.Type,
		apt.StartTime, apt.DurationMinutes, apt.Timezone,
		apt.Status, apt.ConfirmationStatus, apt.Override,
		outcome, related, apt.Version, apt.IsDeleted,
		apt.CreatedAt, apt.CreatedBy, apt.UpdatedAt,
		apt.ConfirmedAt, apt.RescheduledAt, apt.RescheduledReason, apt.RescheduledFromID,
		apt.CompletedAt, apt.CancelledAt, apt.CancellationReason,
	)
	if err != nil {
		return fmt.Errorf("failed to insert appointment: %w", err)
	}

	for _, rem := range apt.Reminders {
		if err := insertReminderTx(ctx, tx, apt.ID, rem); err != nil {
			return err
		}
	}
	return nil
}

func insertReminderTx(ctx context.Context, tx *sqlx.Tx, appointmentID uuid.UUID, rem model.Reminder) error {
	query := `
		INSERT INTO appointment_reminders (
			id, appointment_id, channel, scheduled_for,
			sent, sent_at, delivery_status, failure_reason
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := tx.ExecContext(ctx, query,
		rem.ID, appointmentID, rem.Channel, rem.ScheduledFor,
		rem.Sent, rem.SentAt, rem.DeliveryStatus, rem.FailureReason,
	)
	if err != nil {
		return fmt.Errorf("failed to insert reminder: %w", err)
	}
	return nil
}

func (r *appointmentRepository) Get(ctx context.Context, id uuid.UUID) (*model.Appointment, error) {
	query := `
		SELECT ` + appointmentColumns + `
		FROM appointments
		WHERE id = $1 AND is_deleted = false
	`
	var row appointmentRow
	if err := r.db.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get appointment: %w", err)
	}

	apt, err := row.toModel()
	if err != nil {
		return nil, err
	}

	if err := r.loadReminders(ctx, apt); err != nil {
		return nil, err
	}
	return apt, nil
}

func (r *appointmentRepository) loadReminders(ctx context.Context, apt *model.Appointment) error {
	query := `
		SELECT id, channel, scheduled_for, sent, sent_at, delivery_status, failure_reason
		FROM appointment_reminders
		WHERE appointment_id = $1
		ORDER BY scheduled_for ASC
	`
	var reminders []model.Reminder
	if err := r.db.SelectContext(ctx, &reminders, query, apt.ID); err != nil {
		return fmt.Errorf("failed to load reminders: %w", err)
	}
	apt.Reminders = reminders
	return nil
}

func (r *appointmentRepository) Update(ctx context.Context, apt *model.Appointment, expectedVersion int64) error {
	outcome, err := apt.MarshalOutcome()
	if err != nil {
		return fmt.Errorf("failed to encode outcome: %w", err)
	}
	related, err := marshalJSONField(apt.RelatedRecords)
	if err != nil {
		return fmt.Errorf("failed to encode related records: %w", err)
	}

	query := `
		UPDATE appointments
		SET start_time = $1, duration_minutes = $2, status = $3,
		    confirmation_status = $4, outcome = $5, related_records = $6,
		    version = version + 1, updated_at = $7,
		    confirmed_at = $8, rescheduled_at = $9, rescheduled_reason = $10,
		    completed_at = $11, cancelled_at = $12, cancellation_reason = $13,
		    is_deleted = $14
		WHERE id = $15 AND version = $16 AND is_deleted = false
	`
	result, err := r.db.ExecContext(ctx, query,
		apt.StartTime, apt.DurationMinutes, apt.Status,
		apt.ConfirmationStatus, outcome, related,
		apt.UpdatedAt,
		apt.ConfirmedAt, apt.RescheduledAt, apt.RescheduledReason,
		apt.CompletedAt, apt.CancelledAt, apt.CancellationReason,
		apt.IsDeleted,
		apt.ID, expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("failed to update appointment: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		// Distinguish a missing row from a version miss.
		var exists bool
		checkQuery := `SELECT EXISTS (SELECT 1 FROM appointments WHERE id = $1 AND is_deleted = false)`
		if err := r.db.GetContext(ctx, &exists, checkQuery, apt.ID); err != nil {
			return fmt.Errorf("failed to check appointment existence: %w", err)
		}
		if !exists {
			return repository.ErrNotFound
		}
		return repository.ErrVersionConflict
	}

	apt.Version = expectedVersion + 1
	return nil
}

func (r *appointmentRepository) List(ctx context.Context, filters *model.CalendarFilters) ([]*model.Appointment, error) {
	query := `
		SELECT ` + appointmentColumns + `
		FROM appointments
		WHERE is_deleted = false
		AND start_time < $1
		AND start_time + duration_minutes * interval '1 minute' > $2
	`
	args := []interface{}{filters.To, filters.From}
	argCount := 3

	if filters.ResourceID != nil {
		query += fmt.Sprintf(" AND assigned_to = $%d", argCount)
		args = append(args, *filters.ResourceID)
		argCount++
	}

	if filters.WorkplaceID != nil {
		query += fmt.Sprintf(" AND workplace_id = $%d", argCount)
		args = append(args, *filters.WorkplaceID)
		argCount++
	}

	query += " ORDER BY start_time ASC"

	return r.selectAppointments(ctx, query, args...)
}

func (r *appointmentRepository) selectAppointments(ctx context.Context, query string, args ...interface{}) ([]*model.Appointment, error) {
	var rows []appointmentRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list appointments: %w", err)
	}

	appointments := make([]*model.Appointment, 0, len(rows))
	for _, row := range rows {
		apt, err := row.toModel()
		if err != nil {
			return nil, err
		}
		appointments = append(appointments, apt)
	}
	return appointments, nil
}

func (r *appointmentRepository) FindOverlapping(ctx context.Context, resourceID uuid.UUID, start, end time.Time, excludeID *uuid.UUID) ([]*model.Appointment, error) {
	query := `
		SELECT ` + appointmentColumns + `
		FROM appointments
		WHERE assigned_to = $1
		AND is_deleted = false
		AND status IN ('scheduled', 'confirmed', 'in_progress')
		AND start_time < $2
		AND start_time + duration_minutes * interval '1 minute' > $3
	`
	args := []interface{}{resourceID, end, start}

	if excludeID != nil {
		query += " AND id != $4"
		args = append(args, *excludeID)
	}

	query += " ORDER BY start_time ASC"

	return r.selectAppointments(ctx, query, args...)
}

func (r *appointmentRepository) CreateRescheduled(ctx context.Context, old *model.Appointment, replacement *model.Appointment, expectedVersion int64) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query := `
		UPDATE appointments
		SET status = $1, version = version + 1, updated_at = $2,
		    rescheduled_at = $3, rescheduled_reason = $4
		WHERE id = $5 AND version = $6 AND is_deleted = false
	`
	result, err := tx.ExecContext(ctx, query,
		model.AppointmentStatusRescheduled, old.UpdatedAt,
		old.RescheduledAt, old.RescheduledReason,
		old.ID, expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("failed to mark appointment rescheduled: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return repository.ErrVersionConflict
	}

	if err := r.insertTx(ctx, tx, replacement); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit reschedule: %w", err)
	}

	old.Version = expectedVersion + 1
	return nil
}

func (r *appointmentRepository) ListForAnalytics(ctx context.Context, rng model.DateRange, resourceID *uuid.UUID) ([]*model.Appointment, error) {
	query := `
		SELECT ` + appointmentColumns + `
		FROM appointments
		WHERE start_time >= $1 AND start_time < $2
	`
	args := []interface{}{rng.From, rng.To}

	if resourceID != nil {
		query += " AND assigned_to = $3"
		args = append(args, *resourceID)
	}

	query += " ORDER BY start_time ASC"

	// Soft-deleted rows are intentionally included; deletion is logical so
	// the analytics history stays intact.
	return r.selectAppointments(ctx, query, args...)
}

func (r *appointmentRepository) ListDueReminders(ctx context.Context, due time.Time, limit int) ([]*repository.DueReminder, error) {
	query := `
		SELECT r.id, r.appointment_id, r.channel, r.scheduled_for,
		       r.sent, r.sent_at, r.delivery_status, r.failure_reason
		FROM appointment_reminders r
		JOIN appointments a ON a.id = r.appointment_id
		WHERE r.sent = false
		AND r.scheduled_for <= $1
		AND a.is_deleted = false
		AND a.status IN ('scheduled', 'confirmed')
		ORDER BY r.scheduled_for ASC
		LIMIT $2
	`
	type reminderRow struct {
		model.Reminder
		AppointmentID uuid.UUID `db:"appointment_id"`
	}
	var rows []reminderRow
	if err := r.db.SelectContext(ctx, &rows, query, due, limit); err != nil {
		return nil, fmt.Errorf("failed to list due reminders: %w", err)
	}

	out := make([]*repository.DueReminder, 0, len(rows))
	for _, row := range rows {
		apt, err := r.Get(ctx, row.AppointmentID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				continue
			}
			return nil, err
		}
		out = append(out, &repository.DueReminder{
			Appointment: apt,
			Reminder:    row.Reminder,
		})
	}
	return out, nil
}

func (r *appointmentRepository) MarkReminderDispatched(ctx context.Context, appointmentID, reminderID uuid.UUID, status model.DeliveryStatus, failureReason *string) error {
	sent := status == model.DeliverySent
	query := `
		UPDATE appointment_reminders
		SET sent = $1, sent_at = $2, delivery_status = $3, failure_reason = $4
		WHERE id = $5 AND appointment_id = $6 AND sent = false
	`
	var sentAt *time.Time
	if sent {
		now := time.Now()
		sentAt = &now
	}
	result, err := r.db.ExecContext(ctx, query, sent, sentAt, status, failureReason, reminderID, appointmentID)
	if err != nil {
		return fmt.Errorf("failed to mark reminder dispatched: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return repository.ErrNotFound
	}
	return nil
}
