package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/jwalitptl/pharmacare-api/internal/model"
	"github.com/jwalitptl/pharmacare-api/internal/repository"
)

// ResourceRepository is the in-memory counterpart of the postgres resource
// directory, seeded directly by tests.
type ResourceRepository struct {
	mu        sync.RWMutex
	resources map[uuid.UUID]*model.Resource
}

func NewResourceRepository() *ResourceRepository {
	return &ResourceRepository{
		resources: make(map[uuid.UUID]*model.Resource),
	}
}

// Put seeds or replaces a resource.
func (r *ResourceRepository) Put(resource *model.Resource) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *resource
	cp.WorkingHours = append([]model.WorkingHours(nil), resource.WorkingHours...)
	cp.Specialties = append([]model.AppointmentType(nil), resource.Specialties...)
	r.resources[resource.ID] = &cp
}

func (r *ResourceRepository) Get(_ context.Context, id uuid.UUID) (*model.Resource, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	resource, ok := r.resources[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *resource
	return &cp, nil
}

func (r *ResourceRepository) List(_ context.Context, workplaceID *uuid.UUID) ([]*model.Resource, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*model.Resource
	for _, resource := range r.resources {
		if !resource.Active {
			continue
		}
		if workplaceID != nil && resource.WorkplaceID != *workplaceID {
			continue
		}
		cp := *resource
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
