package directory

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"

	"github.com/jwalitptl/pharmacare-api/internal/model"
	"github.com/jwalitptl/pharmacare-api/internal/repository"
	"github.com/jwalitptl/pharmacare-api/pkg/errors"
)

const cacheTTL = 5 * time.Minute

// Service is the read side of the pharmacist/resource directory. Working
// hours and specialties change rarely, so lookups are cached.
type Service struct {
	repo  repository.ResourceRepository
	cache *gocache.Cache
}

func NewService(repo repository.ResourceRepository) *Service {
	return &Service{
		repo:  repo,
		cache: gocache.New(cacheTTL, 2*cacheTTL),
	}
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*model.Resource, error) {
	key := id.String()
	if cached, ok := s.cache.Get(key); ok {
		return cached.(*model.Resource), nil
	}

	resource, err := s.repo.Get(ctx, id)
	if err != nil {
		if stderrors.Is(err, repository.ErrNotFound) {
			return nil, errors.NewNotFound("resource", err)
		}
		return nil, fmt.Errorf("failed to get resource: %w", err)
	}

	s.cache.Set(key, resource, gocache.DefaultExpiration)
	return resource, nil
}

func (s *Service) List(ctx context.Context, workplaceID *uuid.UUID) ([]*model.Resource, error) {
	resources, err := s.repo.List(ctx, workplaceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list resources: %w", err)
	}
	return resources, nil
}

// Invalidate drops a cached resource after an out-of-band directory change.
func (s *Service) Invalidate(id uuid.UUID) {
	s.cache.Delete(id.String())
}
