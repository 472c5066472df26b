package services

import (
	"context"
	"strings"

	"github.com/ustoz-edu/apiserver/types"
)

// SubjectRepository defines persistence operations for subjects.
type SubjectRepository interface {
	List(ctx context.Context, offset, limit int) ([]types.Subject, int, error)
	Get(ctx context.Context, id int) (types.Subject, error)
	Create(ctx context.Context, subject types.Subject) (types.Subject, error)
	Update(ctx context.Context, subject types.Subject) (types.Subject, error)
	Delete(ctx context.Context, id int) error
}

// SubjectPatch lists optional changes; nil fields are left untouched.
type SubjectPatch struct {
	Name        *string
	Description *string
}

// SubjectService encapsulates subject use-cases.
type SubjectService struct {
	repo SubjectRepository
}

func NewSubjectService(repo SubjectRepository) *SubjectService {
	return &SubjectService{repo: repo}
}

func (s *SubjectService) List(ctx context.Context, offset, limit int) ([]types.Subject, int, error) {
	if limit <= 0 {
		limit = 10
	}
	if limit > 100 {
		limit = 100
	}
	return s.repo.List(ctx, offset, limit)
}

func (s *SubjectService) Get(ctx context.Context, id int) (types.Subject, error) {
	return s.repo.Get(ctx, id)
}

func (s *SubjectService) Create(ctx context.Context, subject types.Subject) (types.Subject, error) {
	subject.Name = strings.TrimSpace(subject.Name)
	if subject.Name == "" {
		return types.Subject{}, newValidationError("name", "This field is required.")
	}
	subject.ID = 0
	return s.repo.Create(ctx, subject)
}

func (s *SubjectService) Update(ctx context.Context, id int, patch SubjectPatch) (types.Subject, error) {
	subject, err := s.repo.Get(ctx, id)
	if err != nil {
		return types.Subject{}, err
	}
	if patch.Name != nil {
		subject.Name = strings.TrimSpace(*patch.Name)
		if subject.Name == "" {
			return types.Subject{}, newValidationError("name", "This field may not be blank.")
		}
	}
	if patch.Description != nil {
		subject.Description = *patch.Description
	}
	return s.repo.Update(ctx, subject)
}

func (s *SubjectService) Delete(ctx context.Context, id int) error {
	return s.repo.Delete(ctx, id)
}
