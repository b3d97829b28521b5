package service

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/noah-isme/psychometric-api/internal/dto"
	"github.com/noah-isme/psychometric-api/internal/models"
	"github.com/noah-isme/psychometric-api/internal/repository"
	appErrors "github.com/noah-isme/psychometric-api/pkg/errors"
)

// RegisterSchool creates a SCHOOL_ADMIN account and its school. The school
// stays PENDING_PAYMENT until the activation fee settles.
func (s *AuthService) RegisterSchool(ctx context.Context, req dto.RegisterSchoolRequest, meta models.LoginRequest) (*dto.RegisterResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Validation(err, "invalid school registration payload")
	}
	user, err := newAccount(req.Email, req.Password, req.FullName, models.RoleSchoolAdmin)
	if err != nil {
		return nil, err
	}
	school := &models.School{
		Name:    req.SchoolName,
		Address: req.Address,
		City:    req.City,
		State:   req.State,
		Phone:   req.Phone,
		Status:  models.SchoolStatusPendingPayment,
	}
	if err := s.repo.CreateSchoolAccount(ctx, user, school); err != nil {
		return nil, registrationError(err)
	}
	return s.registered(ctx, user, "school", school.ID, meta), nil
}

func (s *AuthService) RegisterParent(ctx context.Context, req dto.RegisterParentRequest, meta models.LoginRequest) (*dto.RegisterResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Validation(err, "invalid parent registration payload")
	}
	user, err := newAccount(req.Email, req.Password, req.FullName, models.RoleParent)
	if err != nil {
		return nil, err
	}
	parent := &models.Parent{FullName: req.FullName, Phone: req.Phone}
	if err := s.repo.CreateParentAccount(ctx, user, parent); err != nil {
		return nil, registrationError(err)
	}
	return s.registered(ctx, user, "parent", parent.ID, meta), nil
}

// RegisterStudent self-registers a student, optionally attached to a school.
func (s *AuthService) RegisterStudent(ctx context.Context, req dto.RegisterStudentRequest, meta models.LoginRequest) (*dto.RegisterResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Validation(err, "invalid student registration payload")
	}
	user, err := newAccount(req.Email, req.Password, req.FullName, models.RoleStudent)
	if err != nil {
		return nil, err
	}
	student := &models.Student{
		SchoolID: req.SchoolID,
		FullName: req.FullName,
		Grade:    req.Grade,
		Age:      req.Age,
		Gender:   req.Gender,
	}
	if err := s.repo.CreateStudentAccount(ctx, user, student); err != nil {
		return nil, registrationError(err)
	}
	return s.registered(ctx, user, "student", student.ID, meta), nil
}

func (s *AuthService) registered(ctx context.Context, user *models.User, resource, entityID string, meta models.LoginRequest) *dto.RegisterResponse {
	s.audit(ctx, user.ID, models.AuditActionRegister, resource, entityID, map[string]string{"role": string(user.Role)}, meta.IP, meta.UserAgent)
	return &dto.RegisterResponse{UserID: user.ID, EntityID: entityID, Email: user.Email, Role: string(user.Role)}
}

func newAccount(email, password, fullName string, role models.UserRole) (*models.User, error) {
	hash, err := hashPassword(password)
	if err != nil {
		return nil, err
	}
	return &models.User{
		ID:           uuid.NewString(),
		Email:        normalizeEmail(email),
		PasswordHash: hash,
		FullName:     fullName,
		Role:         role,
		Active:       true,
	}, nil
}

func registrationError(err error) error {
	switch {
	case errors.Is(err, repository.ErrDuplicate):
		return appErrors.Clone(appErrors.ErrConflict, "email already registered")
	case errors.Is(err, repository.ErrInvalidReference):
		return appErrors.Clone(appErrors.ErrValidation, "referenced school does not exist")
	default:
		return appErrors.Internal(err, "failed to create account")
	}
}
