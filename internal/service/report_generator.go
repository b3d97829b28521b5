package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/psychometric-api/internal/models"
	appErrors "github.com/noah-isme/psychometric-api/pkg/errors"
)

// Completer sends one prompt to a text-generation provider and returns the raw reply.
type Completer interface {
	Complete(ctx context.Context, system, prompt string) (string, error)
}

// ResolvedAnswer is one answer rendered for the prompt.
type ResolvedAnswer struct {
	QuestionText string
	QuestionType models.QuestionType
	Answer       string
}

const reportSystemPrompt = `You are an experienced educational psychologist who writes psychometric reports for school students. Reply with a single JSON object and nothing else.`

const reportPromptTemplate = `Analyse the following assessment answers from a school student and produce a psychometric report.

Student: %s
Grade: %d
Age: %d
Assessment: %s (%s)

Answers:
%s
Return ONLY a JSON object with exactly this structure:
{
  "studentInfo": {
    "name": string,
    "grade": number,
    "age": number,
    "personalityType": string
  },
  "cognitiveProfile": {
    "analyticalThinking": integer 0-100,
    "creativeReasoning": integer 0-100,
    "problemSolving": integer 0-100,
    "memoryRecall": integer 0-100,
    "spatialVisualization": integer 0-100,
    "verbalComprehension": integer 0-100
  },
  "learningStyle": {
    "primary": string,
    "secondary": string,
    "characteristics": [4 to 5 strings]
  },
  "strengths": [{"title": string, "description": string, "score": integer 0-100}],
  "developmentAreas": [2 to 3 strings],
  "recommendations": [3 to 4 items of {"title": string, "description": string, "icon": one of "Book", "Brain", "Users", "Target"}],
  "bestCareer": {"title": string, "reason": string, "field": one of "STEM", "Arts", "Business", "Technology", "Education", "Engineering"},
  "suggestedCareers": [at least 2 items shaped like bestCareer]
}

Every score must be a whole number between 0 and 100. Base every statement on the answers above.`

// ReportGenerator turns stored answers into a validated report payload.
type ReportGenerator struct {
	llm       Completer
	validator *validator.Validate
	metrics   *MetricsService
	logger    *zap.Logger
	timeout   time.Duration
	now       func() time.Time
}

// NewReportGenerator constructs a ReportGenerator. A non-positive timeout defaults to 60s.
func NewReportGenerator(llm Completer, validate *validator.Validate, metrics *MetricsService, logger *zap.Logger, timeout time.Duration) *ReportGenerator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &ReportGenerator{
		llm:       llm,
		validator: validate,
		metrics:   metrics,
		logger:    logger,
		timeout:   timeout,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Generate builds the prompt, calls the provider once and returns the post-processed payload.
// Every failure after prompt construction is reported as GENERATION_FAILED.
func (g *ReportGenerator) Generate(ctx context.Context, student *models.Student, assessment *models.Assessment, responses []models.Response) (*models.ReportPayload, error) {
	answers := ResolveAnswers(assessment, responses)
	if len(answers) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "no stored answers for this assessment")
	}
	prompt := BuildReportPrompt(student, assessment, answers)

	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()
	started := time.Now()
	raw, err := g.llm.Complete(callCtx, reportSystemPrompt, prompt)
	g.metrics.ObserveLLMLatency(time.Since(started))
	if err != nil {
		g.logger.Error("report completion failed", zap.String("assessment_id", assessment.ID), zap.Error(err))
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, appErrors.Generation(err, "report generation timed out")
		}
		return nil, appErrors.Generation(err, "report generation failed")
	}

	payload, err := parseReportPayload(StripCodeFences(raw))
	if err != nil {
		g.logger.Error("report payload could not be parsed",
			zap.String("assessment_id", assessment.ID),
			zap.String("raw", raw),
			zap.Error(err))
		return nil, appErrors.Generation(err, "report generation returned malformed output")
	}

	g.postProcess(payload, student)

	if err := g.validator.Struct(payload); err != nil {
		g.logger.Error("report payload failed validation",
			zap.String("assessment_id", assessment.ID),
			zap.String("raw", raw),
			zap.Error(err))
		return nil, appErrors.Generation(err, "report generation returned an invalid report")
	}
	return payload, nil
}

func (g *ReportGenerator) postProcess(payload *models.ReportPayload, student *models.Student) {
	if student != nil {
		payload.StudentInfo.Name = student.FullName
		payload.StudentInfo.Grade = student.Grade
		payload.StudentInfo.Age = student.Age
	}
	payload.StudentInfo.OverallPercentile = OverallPercentile(payload.CognitiveProfile)
	payload.StudentInfo.AssessmentDate = g.now()
}

// OverallPercentile is the rounded mean of the six cognitive scores.
func OverallPercentile(profile models.CognitiveProfile) int {
	scores := profile.Scores()
	sum := 0
	for _, s := range scores {
		sum += s
	}
	return int(math.Round(float64(sum) / float64(len(scores))))
}

// StripCodeFences removes a surrounding markdown code fence, with or without a language tag.
func StripCodeFences(raw string) string {
	text := strings.TrimSpace(raw)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```")
	if idx := strings.IndexByte(text, '\n'); idx >= 0 {
		text = text[idx+1:]
	} else {
		text = strings.TrimPrefix(text, "json")
	}
	text = strings.TrimSpace(text)
	text = strings.TrimSuffix(text, "```")
	return strings.TrimSpace(text)
}

// reportEnvelope decodes everything except studentInfo strictly.
type reportEnvelope struct {
	StudentInfo      json.RawMessage         `json:"studentInfo"`
	CognitiveProfile models.CognitiveProfile `json:"cognitiveProfile"`
	LearningStyle    models.LearningStyle    `json:"learningStyle"`
	Strengths        []models.Strength       `json:"strengths"`
	DevelopmentAreas []string                `json:"developmentAreas"`
	Recommendations  []models.Recommendation `json:"recommendations"`
	BestCareer       models.Career           `json:"bestCareer"`
	SuggestedCareers []models.Career         `json:"suggestedCareers"`
}

func parseReportPayload(text string) (*models.ReportPayload, error) {
	var keys map[string]json.RawMessage
	if err := json.Unmarshal([]byte(text), &keys); err != nil {
		return nil, fmt.Errorf("decode report object: %w", err)
	}
	if err := requireKeys(keys, models.ReportPayloadKeys, ""); err != nil {
		return nil, err
	}
	var profile map[string]json.RawMessage
	if err := json.Unmarshal(keys["cognitiveProfile"], &profile); err != nil {
		return nil, fmt.Errorf("decode cognitiveProfile: %w", err)
	}
	if err := requireKeys(profile, models.CognitiveDimensionKeys, "cognitiveProfile."); err != nil {
		return nil, err
	}
	var strengths []map[string]json.RawMessage
	if err := json.Unmarshal(keys["strengths"], &strengths); err != nil {
		return nil, fmt.Errorf("decode strengths: %w", err)
	}
	for i, strength := range strengths {
		if err := requireKeys(strength, models.StrengthKeys, fmt.Sprintf("strengths[%d].", i)); err != nil {
			return nil, err
		}
	}

	var envelope reportEnvelope
	if err := json.Unmarshal([]byte(text), &envelope); err != nil {
		return nil, fmt.Errorf("decode report fields: %w", err)
	}

	var info struct {
		Name            string `json:"name"`
		PersonalityType string `json:"personalityType"`
	}
	if err := json.Unmarshal(envelope.StudentInfo, &info); err != nil {
		return nil, fmt.Errorf("decode studentInfo: %w", err)
	}

	return &models.ReportPayload{
		StudentInfo: models.StudentInfo{
			Name:            info.Name,
			PersonalityType: info.PersonalityType,
		},
		CognitiveProfile: envelope.CognitiveProfile,
		LearningStyle:    envelope.LearningStyle,
		Strengths:        envelope.Strengths,
		DevelopmentAreas: envelope.DevelopmentAreas,
		Recommendations:  envelope.Recommendations,
		BestCareer:       envelope.BestCareer,
		SuggestedCareers: envelope.SuggestedCareers,
	}, nil
}

// requireKeys rejects absent or null members so a zero value never stands in for a missing score.
func requireKeys(obj map[string]json.RawMessage, keys []string, path string) error {
	for _, key := range keys {
		value, ok := obj[key]
		if !ok || len(value) == 0 || bytes.Equal(bytes.TrimSpace(value), []byte("null")) {
			return fmt.Errorf("report is missing %q", path+key)
		}
	}
	return nil
}

// ResolveAnswers pairs each stored response with its question in question order.
// Responses referencing unknown questions are skipped.
func ResolveAnswers(assessment *models.Assessment, responses []models.Response) []ResolvedAnswer {
	type indexed struct {
		order  int
		answer ResolvedAnswer
	}
	items := make([]indexed, 0, len(responses))
	for _, resp := range responses {
		question, ok := assessment.QuestionByID(resp.QuestionID)
		if !ok {
			continue
		}
		items = append(items, indexed{
			order: question.OrderIndex,
			answer: ResolvedAnswer{
				QuestionText: question.Text,
				QuestionType: question.Type,
				Answer:       ResolveAnswer(question, resp.Value),
			},
		})
	}
	sort.SliceStable(items, func(i, j int) bool { return items[i].order < items[j].order })

	out := make([]ResolvedAnswer, len(items))
	for i, item := range items {
		out[i] = item.answer
	}
	return out
}

// ResolveAnswer renders a stored value as prompt text. Multiple-choice values map to option text
// by comparing against each option value and then each option id as strings.
func ResolveAnswer(question *models.Question, value models.JSONValue) string {
	decoded, ok := decodeJSONValue(value)
	if !ok {
		return string(value)
	}
	if question.Type != models.QuestionTypeMultipleChoice {
		return scalarText(decoded, value)
	}
	if items, isList := decoded.([]interface{}); isList {
		parts := make([]string, 0, len(items))
		for _, item := range items {
			parts = append(parts, resolveOption(question.Options, item))
		}
		return strings.Join(parts, ", ")
	}
	return resolveOption(question.Options, decoded)
}

func resolveOption(options models.QuestionOptions, selected interface{}) string {
	key, ok := referenceKey(selected)
	if !ok {
		raw, _ := json.Marshal(selected)
		return string(raw)
	}
	for _, opt := range options {
		if optionValueKey(opt.Value) == key {
			return opt.Text
		}
	}
	for _, opt := range options {
		if opt.ID == key {
			return opt.Text
		}
	}
	return key
}

func referenceKey(v interface{}) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case json.Number:
		return t.String(), true
	case bool:
		return fmt.Sprintf("%t", t), true
	default:
		return "", false
	}
}

func optionValueKey(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	decoded, ok := decodeJSONValue(models.JSONValue(raw))
	if !ok {
		return string(raw)
	}
	if key, ok := referenceKey(decoded); ok {
		return key
	}
	return string(raw)
}

func scalarText(decoded interface{}, raw models.JSONValue) string {
	if key, ok := referenceKey(decoded); ok {
		return key
	}
	return string(raw)
}

func decodeJSONValue(raw models.JSONValue) (interface{}, bool) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return nil, false
	}
	return v, true
}

// BuildReportPrompt renders the deterministic generation prompt.
func BuildReportPrompt(student *models.Student, assessment *models.Assessment, answers []ResolvedAnswer) string {
	var block strings.Builder
	for i, a := range answers {
		fmt.Fprintf(&block, "%d. Question: %s\n   Type: %s\n   Answer: %s\n", i+1, a.QuestionText, a.QuestionType, a.Answer)
	}
	name, grade, age := "", 0, 0
	if student != nil {
		name, grade, age = student.FullName, student.Grade, student.Age
	}
	return fmt.Sprintf(reportPromptTemplate, name, grade, age, assessment.Title, assessment.Type, block.String())
}
