package service

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/psychometric-api/internal/dto"
	"github.com/noah-isme/psychometric-api/internal/models"
	"github.com/noah-isme/psychometric-api/internal/repository"
	appErrors "github.com/noah-isme/psychometric-api/pkg/errors"
	"github.com/noah-isme/psychometric-api/pkg/export"
	"github.com/noah-isme/psychometric-api/pkg/mail"
)

// Roster CSV columns.
const (
	rosterColFullName    = "full_name"
	rosterColEmail       = "email"
	rosterColGrade       = "grade"
	rosterColAge         = "age"
	rosterColGender      = "gender"
	rosterColParentEmail = "parent_email"
)

var requiredRosterColumns = []string{rosterColFullName, rosterColEmail, rosterColGrade, rosterColAge}

type studentAccountCreator interface {
	CreateStudentAccount(ctx context.Context, user *models.User, student *models.Student, parentIDs ...string) error
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

type parentFinder interface {
	FindByEmail(ctx context.Context, email string) (*models.Parent, error)
}

type rosterLister interface {
	ListRoster(ctx context.Context, schoolID string) ([]models.RosterEntry, error)
}

type schoolAdminResolver interface {
	ResolveSchoolAdmin(ctx context.Context, claims *models.JWTClaims) (*models.School, error)
}

type platformInvalidator interface {
	InvalidatePlatform(ctx context.Context, schoolID string)
}

// RosterServiceConfig bounds imports.
type RosterServiceConfig struct {
	MaxRows int
}

// RosterService imports and exports school rosters.
type RosterService struct {
	accounts  studentAccountCreator
	parents   parentFinder
	roster    rosterLister
	identity  schoolAdminResolver
	stats     platformInvalidator
	mailer    mail.Sender
	csv       *export.CSVExporter
	validator *validator.Validate
	logger    *zap.Logger
	cfg       RosterServiceConfig
}

// NewRosterService constructs a RosterService.
func NewRosterService(accounts studentAccountCreator, parents parentFinder, roster rosterLister, identity schoolAdminResolver, stats platformInvalidator, mailer mail.Sender, validate *validator.Validate, logger *zap.Logger, cfg RosterServiceConfig) *RosterService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if cfg.MaxRows <= 0 {
		cfg.MaxRows = 2000
	}
	return &RosterService{
		accounts:  accounts,
		parents:   parents,
		roster:    roster,
		identity:  identity,
		stats:     stats,
		mailer:    mailer,
		csv:       export.NewCSVExporter(export.WithBOM()),
		validator: validate,
		logger:    logger,
		cfg:       cfg,
	}
}

// Import creates one student account per CSV row. Rows fail independently and failures are returned in aggregate.
func (s *RosterService) Import(ctx context.Context, claims *models.JWTClaims, r io.Reader) (*dto.RosterImportResult, error) {
	school, err := s.identity.ResolveSchoolAdmin(ctx, claims)
	if err != nil {
		return nil, err
	}
	if !school.Active() {
		return nil, appErrors.Clone(appErrors.ErrPaymentRequired, "school must be activated before importing students")
	}

	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, appErrors.Clone(appErrors.ErrValidation, "roster file is empty")
		}
		return nil, appErrors.Validation(err, "roster file is not valid CSV")
	}
	columns, err := rosterColumns(header)
	if err != nil {
		return nil, err
	}

	rows, err := s.readRoster(reader)
	if err != nil {
		return nil, err
	}

	result := &dto.RosterImportResult{Errors: []dto.RosterRowError{}}
	for _, rec := range rows {
		if rec.err != nil {
			rejectRow(result, rec.line, "", fmt.Sprintf("malformed CSV row: %v", rec.err))
			continue
		}
		row, err := parseRosterRow(rec.fields, columns)
		if err != nil {
			rejectRow(result, rec.line, field(rec.fields, columns, rosterColEmail), err.Error())
			continue
		}
		if err := s.validator.Struct(row); err != nil {
			rejectRow(result, rec.line, row.Email, describeValidation(err))
			continue
		}
		if err := s.importRow(ctx, school, row); err != nil {
			rejectRow(result, rec.line, row.Email, err.Error())
			continue
		}
		result.Imported++
	}

	if result.Imported > 0 && s.stats != nil {
		s.stats.InvalidatePlatform(ctx, school.ID)
	}
	if err := s.accounts.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &claims.UserID,
		Action:     models.AuditActionRosterImport,
		Resource:   "school",
		ResourceID: &school.ID,
		NewValues:  []byte(fmt.Sprintf(`{"imported":%d,"failed":%d}`, result.Imported, result.Failed)),
	}); err != nil {
		s.logger.Warn("failed to record roster import audit log", zap.Error(err))
	}

	if result.Imported == 0 && result.Failed > 0 {
		return result, appErrors.WithDetails(appErrors.Clone(appErrors.ErrValidation, "no roster rows could be imported"), result.Errors)
	}
	return result, nil
}

type rosterRecord struct {
	line   int
	fields []string
	err    error
}

// readRoster buffers every non-blank data row so the row cap is enforced before anything is written.
func (s *RosterService) readRoster(reader *csv.Reader) ([]rosterRecord, error) {
	var rows []rosterRecord
	line := 1
	for {
		fields, err := reader.Read()
		if errors.Is(err, io.EOF) {
			return rows, nil
		}
		line++
		if err == nil && isBlankRecord(fields) {
			continue
		}
		if len(rows) == s.cfg.MaxRows {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("roster exceeds %d rows", s.cfg.MaxRows))
		}
		rows = append(rows, rosterRecord{line: line, fields: fields, err: err})
	}
}

// Export writes the school roster with completion counts as CSV.
func (s *RosterService) Export(ctx context.Context, claims *models.JWTClaims, w io.Writer) error {
	school, err := s.identity.ResolveSchoolAdmin(ctx, claims)
	if err != nil {
		return err
	}
	entries, err := s.roster.ListRoster(ctx, school.ID)
	if err != nil {
		return appErrors.Internal(err, "failed to load roster")
	}
	data := export.Dataset{
		Headers: []string{rosterColFullName, rosterColEmail, rosterColGrade, rosterColAge, rosterColGender, "completed_assessments", "reports"},
		Rows:    make([]map[string]string, 0, len(entries)),
	}
	for _, e := range entries {
		data.Rows = append(data.Rows, map[string]string{
			rosterColFullName:       e.FullName,
			rosterColEmail:          e.Email,
			rosterColGrade:          strconv.Itoa(e.Grade),
			rosterColAge:            strconv.Itoa(e.Age),
			rosterColGender:         e.Gender,
			"completed_assessments": strconv.Itoa(e.Completed),
			"reports":               strconv.Itoa(e.Reports),
		})
	}
	if err := s.csv.Write(w, data); err != nil {
		return appErrors.Internal(err, "failed to write roster export")
	}
	return nil
}

func (s *RosterService) importRow(ctx context.Context, school *models.School, row dto.RosterRow) error {
	var parentIDs []string
	if row.ParentEmail != "" {
		parent, err := s.parents.FindByEmail(ctx, row.ParentEmail)
		switch {
		case err == nil:
			parentIDs = append(parentIDs, parent.ID)
		case errors.Is(err, sql.ErrNoRows):
			s.logger.Debug("roster parent not registered", zap.String("parent_email", row.ParentEmail))
		default:
			s.logger.Error("roster parent lookup failed", zap.Error(err))
			return errors.New("failed to look up parent account")
		}
	}

	password, err := temporaryPassword()
	if err != nil {
		return errors.New("failed to create credentials")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return errors.New("failed to create credentials")
	}
	schoolID := school.ID
	user := &models.User{
		Email:        strings.ToLower(row.Email),
		PasswordHash: string(hash),
		FullName:     row.FullName,
		Role:         models.RoleStudent,
		Active:       true,
	}
	student := &models.Student{
		SchoolID: &schoolID,
		FullName: row.FullName,
		Grade:    row.Grade,
		Age:      row.Age,
		Gender:   row.Gender,
	}
	if err := s.accounts.CreateStudentAccount(ctx, user, student, parentIDs...); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return errors.New("email already registered")
		}
		s.logger.Error("roster row insert failed", zap.String("email", row.Email), zap.Error(err))
		return errors.New("failed to create student")
	}
	s.sendCredentials(ctx, school, user, password)
	return nil
}

func (s *RosterService) sendCredentials(ctx context.Context, school *models.School, user *models.User, password string) {
	if s.mailer == nil {
		return
	}
	msg := mail.Message{
		To:      []mail.Address{{Name: user.FullName, Email: user.Email}},
		Subject: fmt.Sprintf("Your %s assessment account", school.Name),
		Text: fmt.Sprintf("Hello %s,\n\n%s has created an assessment account for you.\nEmail: %s\nTemporary password: %s\n\nPlease change your password after signing in.",
			user.FullName, school.Name, user.Email, password),
	}
	if err := s.mailer.Send(ctx, msg); err != nil {
		s.logger.Warn("failed to send roster credentials", zap.String("email", user.Email), zap.Error(err))
	}
}

func rejectRow(result *dto.RosterImportResult, row int, email, message string) {
	result.Failed++
	result.Errors = append(result.Errors, dto.RosterRowError{Row: row, Email: email, Message: message})
}

func rosterColumns(header []string) (map[string]int, error) {
	columns := make(map[string]int, len(header))
	for i, name := range header {
		key := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))
		columns[key] = i
	}
	var missing []string
	for _, col := range requiredRosterColumns {
		if _, ok := columns[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "roster header is missing columns: "+strings.Join(missing, ", "))
	}
	return columns, nil
}

func parseRosterRow(record []string, columns map[string]int) (dto.RosterRow, error) {
	grade, err := strconv.Atoi(field(record, columns, rosterColGrade))
	if err != nil {
		return dto.RosterRow{}, errors.New("grade must be a whole number")
	}
	age, err := strconv.Atoi(field(record, columns, rosterColAge))
	if err != nil {
		return dto.RosterRow{}, errors.New("age must be a whole number")
	}
	return dto.RosterRow{
		FullName:    field(record, columns, rosterColFullName),
		Email:       field(record, columns, rosterColEmail),
		Grade:       grade,
		Age:         age,
		Gender:      strings.ToUpper(field(record, columns, rosterColGender)),
		ParentEmail: field(record, columns, rosterColParentEmail),
	}, nil
}

func field(record []string, columns map[string]int, name string) string {
	idx, ok := columns[name]
	if !ok || idx >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[idx])
}

func isBlankRecord(record []string) bool {
	for _, v := range record {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

func describeValidation(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
	}
	return strings.Join(parts, "; ")
}

func temporaryPassword() (string, error) {
	buf := make([]byte, 9)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
