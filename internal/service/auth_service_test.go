package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/psychometric-api/internal/dto"
	"github.com/noah-isme/psychometric-api/internal/models"
	"github.com/noah-isme/psychometric-api/internal/repository"
	appErrors "github.com/noah-isme/psychometric-api/pkg/errors"
)

type mockAuthRepo struct {
	userByEmail         *models.User
	userByID            *models.User
	findByEmailErr      error
	findByIDErr         error
	refreshTokens       map[string]*models.RefreshToken
	refreshTokenErr     error
	createRefreshErr    error
	revokeRefreshErr    error
	revokeUserTokensErr error
	revokedAllFor       []string
	lookedUpEmail       string
	updatePasswordErr   error
	auditLogs           []*models.AuditLog
	lastLoginUpdated    bool
	createAccountErr    error
	createdUsers        []*models.User
	createdSchool       *models.School
	createdParent       *models.Parent
	createdStudent      *models.Student
}

func (m *mockAuthRepo) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	m.lookedUpEmail = email
	if m.findByEmailErr != nil {
		return nil, m.findByEmailErr
	}
	return m.userByEmail, nil
}

func (m *mockAuthRepo) FindByID(ctx context.Context, id string) (*models.User, error) {
	if m.findByIDErr != nil {
		return nil, m.findByIDErr
	}
	if m.userByID != nil {
		return m.userByID, nil
	}
	return m.userByEmail, nil
}

func (m *mockAuthRepo) UpdateLastLogin(ctx context.Context, id string, ts time.Time) error {
	m.lastLoginUpdated = true
	return nil
}

func (m *mockAuthRepo) UpdatePassword(ctx context.Context, id, passwordHash string, updatedAt time.Time) error {
	if m.updatePasswordErr != nil {
		return m.updatePasswordErr
	}
	if m.userByEmail != nil && m.userByEmail.ID == id {
		m.userByEmail.PasswordHash = passwordHash
	}
	return nil
}

func (m *mockAuthRepo) RevokeUserRefreshTokens(ctx context.Context, userID string) error {
	m.revokedAllFor = append(m.revokedAllFor, userID)
	return m.revokeUserTokensErr
}

func (m *mockAuthRepo) CreateRefreshToken(ctx context.Context, token *models.RefreshToken) error {
	if m.createRefreshErr != nil {
		return m.createRefreshErr
	}
	if m.refreshTokens == nil {
		m.refreshTokens = make(map[string]*models.RefreshToken)
	}
	m.refreshTokens[token.TokenHash] = token
	return nil
}

func (m *mockAuthRepo) FindRefreshToken(ctx context.Context, tokenHash string) (*models.RefreshToken, error) {
	if m.refreshTokenErr != nil {
		return nil, m.refreshTokenErr
	}
	rt, ok := m.refreshTokens[tokenHash]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return rt, nil
}

func (m *mockAuthRepo) RevokeRefreshToken(ctx context.Context, id string, revokedAt time.Time) error {
	if m.revokeRefreshErr != nil {
		return m.revokeRefreshErr
	}
	for _, token := range m.refreshTokens {
		if token.ID == id {
			token.Revoked = true
			token.RevokedAt = &revokedAt
		}
	}
	return nil
}

func (m *mockAuthRepo) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	m.auditLogs = append(m.auditLogs, log)
	return nil
}

func (m *mockAuthRepo) CreateSchoolAccount(ctx context.Context, user *models.User, school *models.School) error {
	if m.createAccountErr != nil {
		return m.createAccountErr
	}
	school.ID = "school-1"
	school.UserID = user.ID
	m.createdUsers = append(m.createdUsers, user)
	m.createdSchool = school
	return nil
}

func (m *mockAuthRepo) CreateParentAccount(ctx context.Context, user *models.User, parent *models.Parent) error {
	if m.createAccountErr != nil {
		return m.createAccountErr
	}
	parent.ID = "parent-1"
	parent.UserID = user.ID
	m.createdUsers = append(m.createdUsers, user)
	m.createdParent = parent
	return nil
}

func (m *mockAuthRepo) CreateStudentAccount(ctx context.Context, user *models.User, student *models.Student, parentIDs ...string) error {
	if m.createAccountErr != nil {
		return m.createAccountErr
	}
	student.ID = "student-1"
	student.UserID = user.ID
	m.createdUsers = append(m.createdUsers, user)
	m.createdStudent = student
	return nil
}

func newTestAuthService(repo *mockAuthRepo) *AuthService {
	return NewAuthService(repo, validator.New(), zap.NewNop(), AuthConfig{AccessTokenSecret: "secret", AccessTokenExpiry: time.Hour, RefreshTokenExpiry: time.Hour})
}

func TestAuthServiceLoginSuccess(t *testing.T) {
	password, _ := bcrypt.GenerateFromPassword([]byte("password"), bcrypt.DefaultCost)
	repo := &mockAuthRepo{userByEmail: &models.User{ID: "123", Email: "user@example.com", PasswordHash: string(password), Active: true, Role: models.RoleAdmin}}
	svc := NewAuthService(repo, validator.New(), zap.NewNop(), AuthConfig{
		AccessTokenSecret:  "secret",
		AccessTokenExpiry:  time.Hour,
		RefreshTokenExpiry: time.Hour * 24,
	})

	res, err := svc.Login(context.Background(), models.LoginRequest{Email: " User@Example.com", Password: "password"})
	require.NoError(t, err)
	assert.Equal(t, "user@example.com", repo.lookedUpEmail)
	assert.NotEmpty(t, res.AccessToken)
	assert.Equal(t, "Bearer", res.TokenType)
	require.NotNil(t, res.User)
	assert.Equal(t, models.RoleAdmin, res.User.Role)
	assert.True(t, repo.lastLoginUpdated)
	require.Len(t, repo.refreshTokens, 1)
	_, stored := repo.refreshTokens[hashToken(res.RefreshToken)]
	assert.True(t, stored, "only the hash of the refresh token is persisted")
}

func TestAuthServiceLoginInactive(t *testing.T) {
	password, _ := bcrypt.GenerateFromPassword([]byte("password"), bcrypt.DefaultCost)
	repo := &mockAuthRepo{userByEmail: &models.User{ID: "123", Email: "user@example.com", PasswordHash: string(password), Active: false}}
	svc := NewAuthService(repo, validator.New(), zap.NewNop(), AuthConfig{AccessTokenSecret: "secret", AccessTokenExpiry: time.Hour, RefreshTokenExpiry: time.Hour})

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "user@example.com", Password: "password"})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrInactiveAccount.Code, appErr.Code)
}

func TestAuthServiceRefreshToken(t *testing.T) {
	repo := &mockAuthRepo{refreshTokens: make(map[string]*models.RefreshToken)}
	user := &models.User{ID: "u1", Email: "user@example.com", PasswordHash: "hash", Active: true, Role: models.RoleAdmin}
	repo.userByEmail = user
	repo.userByID = user
	token := &models.RefreshToken{ID: "rt1", UserID: user.ID, TokenHash: hashToken("token"), ExpiresAt: time.Now().Add(time.Hour)}
	repo.refreshTokens[token.TokenHash] = token

	svc := NewAuthService(repo, validator.New(), zap.NewNop(), AuthConfig{AccessTokenSecret: "secret", AccessTokenExpiry: time.Hour, RefreshTokenExpiry: time.Hour})

	res, err := svc.RefreshToken(context.Background(), models.RefreshRequest{RefreshToken: "token"})
	require.NoError(t, err)
	assert.NotEmpty(t, res.AccessToken)
	assert.NotEqual(t, "token", res.RefreshToken)
	assert.True(t, token.Revoked)
	assert.Empty(t, repo.revokedAllFor)
}

func TestAuthServiceRefreshTokenReuseEndsAllSessions(t *testing.T) {
	repo := &mockAuthRepo{refreshTokens: make(map[string]*models.RefreshToken)}
	revokedAt := time.Now().Add(-time.Minute)
	repo.refreshTokens[hashToken("stolen")] = &models.RefreshToken{ID: "rt1", UserID: "u1", TokenHash: hashToken("stolen"), ExpiresAt: time.Now().Add(time.Hour), Revoked: true, RevokedAt: &revokedAt}
	svc := newTestAuthService(repo)

	_, err := svc.RefreshToken(context.Background(), models.RefreshRequest{RefreshToken: "stolen"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrUnauthorized))
	assert.Equal(t, []string{"u1"}, repo.revokedAllFor)
}

func TestAuthServiceRefreshTokenExpired(t *testing.T) {
	repo := &mockAuthRepo{refreshTokens: make(map[string]*models.RefreshToken)}
	repo.refreshTokens[hashToken("old")] = &models.RefreshToken{ID: "rt1", UserID: "u1", TokenHash: hashToken("old"), ExpiresAt: time.Now().Add(-time.Minute)}
	svc := newTestAuthService(repo)

	_, err := svc.RefreshToken(context.Background(), models.RefreshRequest{RefreshToken: "old"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrUnauthorized))
	assert.Empty(t, repo.revokedAllFor)
}

func TestAuthServiceLogoutForeignToken(t *testing.T) {
	repo := &mockAuthRepo{refreshTokens: make(map[string]*models.RefreshToken)}
	repo.refreshTokens[hashToken("t")] = &models.RefreshToken{ID: "rt1", UserID: "someone-else", TokenHash: hashToken("t"), ExpiresAt: time.Now().Add(time.Hour)}
	svc := newTestAuthService(repo)

	err := svc.Logout(context.Background(), "t", "u1", models.LoginRequest{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrForbidden))
	assert.False(t, repo.refreshTokens[hashToken("t")].Revoked)
}

func TestAuthServiceChangePassword(t *testing.T) {
	oldHash, _ := bcrypt.GenerateFromPassword([]byte("old"), bcrypt.DefaultCost)
	repo := &mockAuthRepo{userByEmail: &models.User{ID: "u1", PasswordHash: string(oldHash), Active: true}}
	svc := NewAuthService(repo, validator.New(), zap.NewNop(), AuthConfig{AccessTokenSecret: "secret", AccessTokenExpiry: time.Hour, RefreshTokenExpiry: time.Hour})

	err := svc.ChangePassword(context.Background(), "u1", models.ChangePasswordRequest{CurrentPassword: "old", NewPassword: "newpassword"})
	require.NoError(t, err)
	assert.NotEqual(t, string(oldHash), repo.userByEmail.PasswordHash)
	assert.Equal(t, []string{"u1"}, repo.revokedAllFor)

	err = svc.ChangePassword(context.Background(), "u1", models.ChangePasswordRequest{CurrentPassword: "wrong", NewPassword: "another-password"})
	assert.True(t, errors.Is(err, appErrors.ErrForbidden))
}

func TestValidateToken(t *testing.T) {
	repo := &mockAuthRepo{}
	svc := NewAuthService(repo, validator.New(), zap.NewNop(), AuthConfig{AccessTokenSecret: "secret", AccessTokenExpiry: time.Hour, RefreshTokenExpiry: time.Hour})
	user := &models.User{ID: "u1", Email: "user@example.com", Role: models.RoleAdmin}
	token, _, err := svc.signAccessToken(user)
	require.NoError(t, err)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims.UserID)

	other := NewAuthService(repo, nil, nil, AuthConfig{AccessTokenSecret: "different"})
	_, err = other.ValidateToken(token)
	assert.True(t, errors.Is(err, appErrors.ErrUnauthorized))
}

func TestAuthServiceRegisterSchoolStartsPendingPayment(t *testing.T) {
	repo := &mockAuthRepo{}
	svc := newTestAuthService(repo)

	res, err := svc.RegisterSchool(context.Background(), dto.RegisterSchoolRequest{
		Email:      "Admin@School.id ",
		Password:   "supersecret",
		FullName:   "Budi",
		SchoolName: "SMA 1",
		State:      "Jawa Barat",
	}, models.LoginRequest{IP: "127.0.0.1"})
	require.NoError(t, err)
	assert.Equal(t, "school-1", res.EntityID)
	assert.Equal(t, "admin@school.id", res.Email)
	assert.Equal(t, string(models.RoleSchoolAdmin), res.Role)
	require.NotNil(t, repo.createdSchool)
	assert.Equal(t, models.SchoolStatusPendingPayment, repo.createdSchool.Status)
	require.Len(t, repo.createdUsers, 1)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(repo.createdUsers[0].PasswordHash), []byte("supersecret")))
	require.Len(t, repo.auditLogs, 1)
	assert.Equal(t, models.AuditActionRegister, repo.auditLogs[0].Action)
}

func TestAuthServiceRegisterStudentValidation(t *testing.T) {
	repo := &mockAuthRepo{}
	svc := newTestAuthService(repo)

	_, err := svc.RegisterStudent(context.Background(), dto.RegisterStudentRequest{
		Email:    "not-an-email",
		Password: "supersecret",
		FullName: "Siti",
		Grade:    13,
		Age:      15,
	}, models.LoginRequest{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
	assert.Nil(t, repo.createdStudent)
}

func TestAuthServiceRegisterParentDuplicateEmail(t *testing.T) {
	repo := &mockAuthRepo{createAccountErr: repository.ErrDuplicate}
	svc := newTestAuthService(repo)

	_, err := svc.RegisterParent(context.Background(), dto.RegisterParentRequest{
		Email:    "parent@example.com",
		Password: "supersecret",
		FullName: "Ani",
	}, models.LoginRequest{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrConflict))
}

func TestAuthServiceRegisterStudentUnknownSchool(t *testing.T) {
	repo := &mockAuthRepo{createAccountErr: repository.ErrInvalidReference}
	svc := newTestAuthService(repo)
	schoolID := "5b1f3c2e-8a61-4f5d-9d0e-2f3a4b5c6d7e"

	_, err := svc.RegisterStudent(context.Background(), dto.RegisterStudentRequest{
		Email:    "student@example.com",
		Password: "supersecret",
		FullName: "Siti",
		Grade:    10,
		Age:      15,
		SchoolID: &schoolID,
	}, models.LoginRequest{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
}
