package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/psychometric-api/internal/models"
	"github.com/noah-isme/psychometric-api/pkg/events"
	"github.com/noah-isme/psychometric-api/pkg/export"
	"github.com/noah-isme/psychometric-api/pkg/jobs"
	"github.com/noah-isme/psychometric-api/pkg/mail"
	"github.com/noah-isme/psychometric-api/pkg/storage"
)

// Delivery job and event identifiers.
const (
	DeliveryJobType          = "report.delivery"
	EventReportGenerated     = "report.generated"
	reportPDFContentType     = "application/pdf"
	deliveryOutcomeDelivered = "delivered"
	deliveryOutcomeRetry     = "retry"
	deliveryOutcomeFailed    = "failed"
)

type deliveryReportStore interface {
	FindByID(ctx context.Context, id string) (*models.Report, error)
	SetPDFObjectKey(ctx context.Context, id, key string) error
}

type deliveryStudentStore interface {
	FindByID(ctx context.Context, id string) (*models.Student, error)
}

type deliveryAssessmentStore interface {
	FindByID(ctx context.Context, id string) (*models.Assessment, error)
}

type parentContactStore interface {
	ListContactsForStudent(ctx context.Context, studentID string) ([]models.ParentContact, error)
}

type pdfRenderer interface {
	Render(doc export.Document) ([]byte, error)
}

// ReportDeliveryService renders, archives, mails and announces generated reports.
type ReportDeliveryService struct {
	reports     deliveryReportStore
	students    deliveryStudentStore
	assessments deliveryAssessmentStore
	contacts    parentContactStore
	pdf         pdfRenderer
	store       storage.ObjectStore
	mailer      mail.Sender
	publisher   events.Publisher
	metrics     *MetricsService
	logger      *zap.Logger
}

// NewReportDeliveryService constructs the delivery service. Nil mailer or publisher disables that side effect.
func NewReportDeliveryService(reports deliveryReportStore, students deliveryStudentStore, assessments deliveryAssessmentStore, contacts parentContactStore, pdf pdfRenderer, store storage.ObjectStore, mailer mail.Sender, publisher events.Publisher, metrics *MetricsService, logger *zap.Logger) *ReportDeliveryService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	return &ReportDeliveryService{
		reports:     reports,
		students:    students,
		assessments: assessments,
		contacts:    contacts,
		pdf:         pdf,
		store:       store,
		mailer:      mailer,
		publisher:   publisher,
		metrics:     metrics,
		logger:      logger,
	}
}

// Handle processes one delivery job. The job id is the report id.
func (s *ReportDeliveryService) Handle(ctx context.Context, job jobs.Job) error {
	report, err := s.reports.FindByID(ctx, job.ID)
	if errors.Is(err, sql.ErrNoRows) {
		return jobs.Permanent(fmt.Errorf("report %s no longer exists", job.ID))
	}
	if err != nil {
		return fmt.Errorf("load report %s: %w", job.ID, err)
	}
	student, err := s.students.FindByID(ctx, report.StudentID)
	if err != nil {
		return fmt.Errorf("load student %s: %w", report.StudentID, err)
	}
	assessment, err := s.assessments.FindByID(ctx, report.AssessmentID)
	if err != nil {
		return fmt.Errorf("load assessment %s: %w", report.AssessmentID, err)
	}

	key, pdf, err := s.ensurePDF(ctx, report, student, assessment)
	if err != nil {
		return err
	}

	// A retry after a publish failure mails parents again.
	if err := s.notifyParents(ctx, report, student, assessment, pdf); err != nil {
		return err
	}
	if s.publisher != nil {
		event := events.Event{
			Type:       EventReportGenerated,
			OccurredAt: time.Now().UTC(),
			Data: map[string]string{
				"reportId":     report.ID,
				"studentId":    report.StudentID,
				"assessmentId": report.AssessmentID,
				"pdfObjectKey": key,
			},
		}
		if err := s.publisher.Publish(ctx, event); err != nil {
			return fmt.Errorf("publish %s: %w", EventReportGenerated, err)
		}
	}
	return nil
}

// Observe records delivery outcomes. It is installed as the queue observer.
func (s *ReportDeliveryService) Observe(job jobs.Job, err error, final bool) {
	switch {
	case err == nil:
		s.metrics.RecordDelivery(deliveryOutcomeDelivered)
	case final:
		s.metrics.RecordDelivery(deliveryOutcomeFailed)
		s.logger.Error("report delivery failed", zap.String("report_id", job.ID), zap.Int("attempt", job.Attempt), zap.Error(err))
	default:
		s.metrics.RecordDelivery(deliveryOutcomeRetry)
	}
}

// EnsurePDF returns the archive key of the report PDF, rendering and storing it first when needed.
func (s *ReportDeliveryService) EnsurePDF(ctx context.Context, report *models.Report) (string, error) {
	if report.PDFObjectKey != nil && *report.PDFObjectKey != "" {
		return *report.PDFObjectKey, nil
	}
	student, err := s.students.FindByID(ctx, report.StudentID)
	if err != nil {
		return "", fmt.Errorf("load student %s: %w", report.StudentID, err)
	}
	assessment, err := s.assessments.FindByID(ctx, report.AssessmentID)
	if err != nil {
		return "", fmt.Errorf("load assessment %s: %w", report.AssessmentID, err)
	}
	key, _, err := s.ensurePDF(ctx, report, student, assessment)
	return key, err
}

// DownloadURL returns a time-limited link to the archived PDF.
func (s *ReportDeliveryService) DownloadURL(ctx context.Context, key string) (string, time.Time, error) {
	if s.store == nil {
		return "", time.Time{}, fmt.Errorf("report storage not configured")
	}
	return s.store.DownloadURL(ctx, key)
}

func (s *ReportDeliveryService) ensurePDF(ctx context.Context, report *models.Report, student *models.Student, assessment *models.Assessment) (string, []byte, error) {
	data, err := s.pdf.Render(BuildReportDocument(report, student, assessment))
	if err != nil {
		return "", nil, fmt.Errorf("render report pdf: %w", err)
	}
	if report.PDFObjectKey != nil && *report.PDFObjectKey != "" {
		return *report.PDFObjectKey, data, nil
	}
	if s.store == nil {
		return "", data, nil
	}
	key := ReportObjectKey(report)
	if err := s.store.Put(ctx, key, data, reportPDFContentType); err != nil {
		return "", nil, fmt.Errorf("store report pdf: %w", err)
	}
	if err := s.reports.SetPDFObjectKey(ctx, report.ID, key); err != nil {
		return "", nil, err
	}
	report.PDFObjectKey = &key
	return key, data, nil
}

func (s *ReportDeliveryService) notifyParents(ctx context.Context, report *models.Report, student *models.Student, assessment *models.Assessment, pdf []byte) error {
	if s.mailer == nil || s.contacts == nil {
		return nil
	}
	contacts, err := s.contacts.ListContactsForStudent(ctx, student.ID)
	if err != nil {
		return fmt.Errorf("list parent contacts: %w", err)
	}
	if len(contacts) == 0 {
		return nil
	}
	to := make([]mail.Address, 0, len(contacts))
	for _, c := range contacts {
		to = append(to, mail.Address{Name: c.FullName, Email: c.Email})
	}
	msg := mail.Message{
		To:      to,
		Subject: fmt.Sprintf("%s: %s report is ready", student.FullName, assessment.Title),
		Text: fmt.Sprintf("The %s report for %s is attached. Personality type: %s. Overall percentile: %d.",
			assessment.Title, student.FullName, report.Payload.StudentInfo.PersonalityType, report.Payload.StudentInfo.OverallPercentile),
	}
	if len(pdf) > 0 {
		msg.Attachments = []mail.Attachment{{
			Filename:    reportFilename(student, assessment),
			ContentType: reportPDFContentType,
			Content:     pdf,
		}}
	}
	if err := s.mailer.Send(ctx, msg); err != nil {
		return fmt.Errorf("mail report to parents: %w", err)
	}
	return nil
}

// ReportObjectKey is the archive key of a report PDF.
func ReportObjectKey(report *models.Report) string {
	return fmt.Sprintf("reports/%s/%s/%s.pdf", report.StudentID, report.AssessmentID, report.ID)
}

func reportFilename(student *models.Student, assessment *models.Assessment) string {
	name := strings.ToLower(strings.Join(strings.Fields(student.FullName+" "+assessment.Title), "-"))
	return name + ".pdf"
}

// BuildReportDocument lays a report payload out as printable sections.
func BuildReportDocument(report *models.Report, student *models.Student, assessment *models.Assessment) export.Document {
	p := report.Payload
	info := p.StudentInfo

	cognitive := export.Dataset{
		Headers: []string{"Dimension", "Score"},
		Rows: []map[string]string{
			{"Dimension": "Analytical thinking", "Score": strconv.Itoa(p.CognitiveProfile.AnalyticalThinking)},
			{"Dimension": "Creative reasoning", "Score": strconv.Itoa(p.CognitiveProfile.CreativeReasoning)},
			{"Dimension": "Problem solving", "Score": strconv.Itoa(p.CognitiveProfile.ProblemSolving)},
			{"Dimension": "Memory recall", "Score": strconv.Itoa(p.CognitiveProfile.MemoryRecall)},
			{"Dimension": "Spatial visualization", "Score": strconv.Itoa(p.CognitiveProfile.SpatialVisualization)},
			{"Dimension": "Verbal comprehension", "Score": strconv.Itoa(p.CognitiveProfile.VerbalComprehension)},
		},
	}

	strengths := make([]models.Strength, len(p.Strengths))
	copy(strengths, p.Strengths)
	sort.SliceStable(strengths, func(i, j int) bool { return strengths[i].Score > strengths[j].Score })
	strengthBullets := make([]string, 0, len(strengths))
	for _, st := range strengths {
		strengthBullets = append(strengthBullets, fmt.Sprintf("%s (%d): %s", st.Title, st.Score, st.Description))
	}

	recommendations := make([]string, 0, len(p.Recommendations))
	for _, r := range p.Recommendations {
		recommendations = append(recommendations, fmt.Sprintf("[%s] %s: %s", r.Icon, r.Title, r.Description))
	}

	careers := make([]string, 0, len(p.SuggestedCareers))
	for _, c := range p.SuggestedCareers {
		careers = append(careers, fmt.Sprintf("%s (%s): %s", c.Title, c.Field, c.Reason))
	}

	name := info.Name
	if student != nil && name == "" {
		name = student.FullName
	}
	title := "Psychometric Report"
	if assessment != nil {
		title = assessment.Title + " Report"
	}

	return export.Document{
		Title:    title,
		Subtitle: fmt.Sprintf("%s | Grade %d | Age %d | %s", name, info.Grade, info.Age, info.AssessmentDate.Format("02 Jan 2006")),
		Sections: []export.Section{
			{
				Heading: "Summary",
				Paragraphs: []string{
					fmt.Sprintf("Personality type: %s", info.PersonalityType),
					fmt.Sprintf("Overall percentile: %d", info.OverallPercentile),
				},
			},
			{Heading: "Cognitive profile", Table: &cognitive},
			{
				Heading:    "Learning style",
				Paragraphs: []string{fmt.Sprintf("Primary: %s. Secondary: %s.", p.LearningStyle.Primary, p.LearningStyle.Secondary)},
				Bullets:    p.LearningStyle.Characteristics,
			},
			{Heading: "Strengths", Bullets: strengthBullets},
			{Heading: "Development areas", Bullets: p.DevelopmentAreas},
			{Heading: "Recommendations", Bullets: recommendations},
			{
				Heading:    "Best career match",
				Paragraphs: []string{fmt.Sprintf("%s (%s): %s", p.BestCareer.Title, p.BestCareer.Field, p.BestCareer.Reason)},
			},
			{Heading: "Suggested careers", Bullets: careers},
		},
	}
}
