package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/pharmacare-api/internal/model"
	"github.com/jwalitptl/pharmacare-api/internal/repository"
)

// Service appends scheduling operations to the audit trail. Audit failures
// are logged but never fail the operation that triggered them.
type Service struct {
	repo repository.AuditRepository
}

func NewService(repo repository.AuditRepository) *Service {
	return &Service{repo: repo}
}

type LogOptions struct {
	Changes  interface{}
	Metadata interface{}
}

func (s *Service) Log(ctx context.Context, actorID, workplaceID uuid.UUID, action, entityType string, entityID uuid.UUID, opts *LogOptions) {
	var changes, metadata json.RawMessage
	var err error

	if opts != nil {
		if opts.Changes != nil {
			if changes, err = json.Marshal(opts.Changes); err != nil {
				log.Error().Err(err).Str("action", action).Msg("failed to marshal audit changes")
				return
			}
		}
		if opts.Metadata != nil {
			if metadata, err = json.Marshal(opts.Metadata); err != nil {
				log.Error().Err(err).Str("action", action).Msg("failed to marshal audit metadata")
				return
			}
		}
	}

	entry := &model.AuditLog{
		ID:          uuid.New(),
		ActorID:     actorID,
		WorkplaceID: workplaceID,
		Action:      action,
		EntityType:  entityType,
		EntityID:    entityID,
		Changes:     changes,
		Metadata:    metadata,
		CreatedAt:   time.Now(),
	}

	if err := s.repo.Create(ctx, entry); err != nil {
		log.Error().Err(err).Str("action", action).Str("entity_id", entityID.String()).Msg("failed to write audit log")
	}
}
