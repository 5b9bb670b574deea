package service

import (
	"context"

	"github.com/skuledger/skuledger/internal/model"
)

// FailureRepositoryInterface defines the interface for dead-letter data access.
type FailureRepositoryInterface interface {
	List(ctx context.Context) ([]model.PropagationFailure, error)
	Delete(ctx context.Context, id int64) error
}

// FailureService exposes the propagation dead letters to operators. Rows are
// only ever cleared here; the worker writes them.
type FailureService struct {
	repo FailureRepositoryInterface
}

// NewFailureService creates a new FailureService with the given repository.
func NewFailureService(repo FailureRepositoryInterface) *FailureService {
	return &FailureService{repo: repo}
}

// List returns all dead-letter rows, most recently tried first.
func (s *FailureService) List(ctx context.Context) ([]model.PropagationFailure, error) {
	return s.repo.List(ctx)
}

// Clear removes one dead-letter row after an operator resolved the
// underlying site problem. Returns ErrFailureNotFound for unknown IDs.
func (s *FailureService) Clear(ctx context.Context, id int64) error {
	return s.repo.Delete(ctx, id)
}
