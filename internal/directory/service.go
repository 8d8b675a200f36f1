// Package directory is the settlement core's view of the student/class
// registry owned by the surrounding product. Settlement only ever reads it.
package directory

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/sekolahku/settlement-backend/pkg/db/models"
	pkgerrors "github.com/sekolahku/settlement-backend/pkg/errors"
)

// Service exposes the lookups settlement depends on.
type Service interface {
	GetStudent(ctx context.Context, id uuid.UUID) (*models.Student, error)
	GetClass(ctx context.Context, id uuid.UUID) (*models.Class, error)
	GetBranch(ctx context.Context, id uuid.UUID) (*models.Branch, error)
}

type service struct {
	db *gorm.DB
}

// NewService builds a directory service backed by the shared database.
func NewService(db *gorm.DB) (Service, error) {
	if db == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "db connection required")
	}
	return &service{db: db}, nil
}

func (s *service) GetStudent(ctx context.Context, id uuid.UUID) (*models.Student, error) {
	var student models.Student
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&student).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "student not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load student")
	}
	return &student, nil
}

func (s *service) GetClass(ctx context.Context, id uuid.UUID) (*models.Class, error) {
	var class models.Class
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&class).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "class not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load class")
	}
	return &class, nil
}

func (s *service) GetBranch(ctx context.Context, id uuid.UUID) (*models.Branch, error) {
	var branch models.Branch
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&branch).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "branch not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load branch")
	}
	return &branch, nil
}
