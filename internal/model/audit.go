package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// AuditLog records one scheduling operation for the trail kept alongside the
// appointment history.
type AuditLog struct {
	ID          uuid.UUID       `db:"id" json:"id"`
	ActorID     uuid.UUID       `db:"actor_id" json:"actor_id"`
	WorkplaceID uuid.UUID       `db:"workplace_id" json:"workplace_id"`
	Action      string          `db:"action" json:"action"`
	EntityType  string          `db:"entity_type" json:"entity_type"`
	EntityID    uuid.UUID       `db:"entity_id" json:"entity_id"`
	Changes     json.RawMessage `db:"changes" json:"changes,omitempty"`
	Metadata    json.RawMessage `db:"metadata" json:"metadata,omitempty"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
}
