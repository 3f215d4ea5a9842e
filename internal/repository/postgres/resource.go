package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/pharmacare-api/internal/model"
	"github.com/jwalitptl/pharmacare-api/internal/repository"
)

type resourceRepository struct {
	db *sqlx.DB
}

func NewResourceRepository(db *sqlx.DB) repository.ResourceRepository {
	return &resourceRepository{db: db}
}

func (r *resourceRepository) Get(ctx context.Context, id uuid.UUID) (*model.Resource, error) {
	query := `
		SELECT id, workplace_id, name, timezone, active, created_at, updated_at
		FROM resources
		WHERE id = $1
	`
	var resource model.Resource
	if err := r.db.GetContext(ctx, &resource, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get resource: %w", err)
	}

	if err := r.loadDetails(ctx, &resource); err != nil {
		return nil, err
	}
	return &resource, nil
}

func (r *resourceRepository) List(ctx context.Context, workplaceID *uuid.UUID) ([]*model.Resource, error) {
	query := `
		SELECT id, workplace_id, name, timezone, active, created_at, updated_at
		FROM resources
		WHERE active = true
	`
	args := []interface{}{}
	if workplaceID != nil {
		query += " AND workplace_id = $1"
		args = append(args, *workplaceID)
	}
	query += " ORDER BY name ASC"

	var resources []*model.Resource
	if err := r.db.SelectContext(ctx, &resources, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list resources: %w", err)
	}

	for _, resource := range resources {
		if err := r.loadDetails(ctx, resource); err != nil {
			return nil, err
		}
	}
	return resources, nil
}

func (r *resourceRepository) loadDetails(ctx context.Context, resource *model.Resource) error {
	hoursQuery := `
		SELECT day_of_week, start_minute, end_minute
		FROM resource_working_hours
		WHERE resource_id = $1
		ORDER BY day_of_week ASC
	`
	if err := r.db.SelectContext(ctx, &resource.WorkingHours, hoursQuery, resource.ID); err != nil {
		return fmt.Errorf("failed to load working hours: %w", err)
	}

	specQuery := `
		SELECT specialty
		FROM resource_specialties
		WHERE resource_id = $1
		ORDER BY specialty ASC
	`
	var specialties []model.AppointmentType
	if err := r.db.SelectContext(ctx, &specialties, specQuery, resource.ID); err != nil {
		return fmt.Errorf("failed to load specialties: %w", err)
	}
	resource.Specialties = specialties
	return nil
}
