package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/psychometric-api/internal/models"
	appErrors "github.com/noah-isme/psychometric-api/pkg/errors"
)

type stubCompleter struct {
	reply   string
	err     error
	prompts []string
	block   bool
}

func (s *stubCompleter) Complete(ctx context.Context, system, prompt string) (string, error) {
	s.prompts = append(s.prompts, prompt)
	if s.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return s.reply, s.err
}

const validReportJSON = `{
  "studentInfo": {"name": "Model Name", "grade": 1, "age": 1, "personalityType": "Analytical Explorer"},
  "cognitiveProfile": {
    "analyticalThinking": 80,
    "creativeReasoning": 70,
    "problemSolving": 90,
    "memoryRecall": 60,
    "spatialVisualization": 85,
    "verbalComprehension": 75
  },
  "learningStyle": {"primary": "Visual", "secondary": "Kinesthetic", "characteristics": ["diagrams", "practice", "colour coding", "mind maps"]},
  "strengths": [{"title": "Logic", "description": "Strong reasoning", "score": 88}],
  "developmentAreas": ["Time management", "Public speaking"],
  "recommendations": [
    {"title": "Read widely", "description": "Weekly reading", "icon": "Book"},
    {"title": "Puzzles", "description": "Logic puzzles", "icon": "Brain"},
    {"title": "Study group", "description": "Peer learning", "icon": "Users"}
  ],
  "bestCareer": {"title": "Data Scientist", "reason": "Analytical", "field": "STEM"},
  "suggestedCareers": [
    {"title": "Architect", "reason": "Spatial", "field": "Engineering"},
    {"title": "Teacher", "reason": "Verbal", "field": "Education"}
  ]
}`

func likertAssessment() *models.Assessment {
	return &models.Assessment{
		ID:          "a1",
		Title:       "Learning Profile",
		Type:        models.AssessmentTypePersonality,
		Status:      models.AssessmentStatusPublished,
		GradeLevels: []int64{9},
		Questions: []models.Question{
			{ID: "q1", AssessmentID: "a1", Text: "I enjoy solving puzzles", Type: models.QuestionTypeLikertScale, OrderIndex: 1},
			{ID: "q2", AssessmentID: "a1", Text: "I like working in groups", Type: models.QuestionTypeLikertScale, OrderIndex: 2},
		},
	}
}

func likertResponses() []models.Response {
	return []models.Response{
		{QuestionID: "q2", Value: models.JSONValue(`3`)},
		{QuestionID: "q1", Value: models.JSONValue(`5`)},
	}
}

func newTestGenerator(llm Completer) *ReportGenerator {
	g := NewReportGenerator(llm, nil, nil, nil, time.Second)
	g.now = func() time.Time { return time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC) }
	return g
}

func TestOverallPercentileRoundsMean(t *testing.T) {
	profile := models.CognitiveProfile{
		AnalyticalThinking:   80,
		CreativeReasoning:    70,
		ProblemSolving:       90,
		MemoryRecall:         60,
		SpatialVisualization: 85,
		VerbalComprehension:  75,
	}
	assert.Equal(t, 77, OverallPercentile(profile))
}

func TestResolveAnswerMultipleChoiceComparesAsStrings(t *testing.T) {
	question := &models.Question{
		Type: models.QuestionTypeMultipleChoice,
		Options: models.QuestionOptions{
			{ID: "1", Value: json.RawMessage(`1`), Text: "A"},
			{ID: "2", Value: json.RawMessage(`2`), Text: "B"},
		},
	}
	assert.Equal(t, "B", ResolveAnswer(question, models.JSONValue(`"2"`)))
	assert.Equal(t, "B", ResolveAnswer(question, models.JSONValue(`2`)))
	assert.Equal(t, "A, B", ResolveAnswer(question, models.JSONValue(`["1", 2]`)))
	assert.Equal(t, "7", ResolveAnswer(question, models.JSONValue(`7`)))
}

func TestResolveAnswerFallsBackToOptionID(t *testing.T) {
	question := &models.Question{
		Type: models.QuestionTypeMultipleChoice,
		Options: models.QuestionOptions{
			{ID: "opt-a", Value: json.RawMessage(`"x"`), Text: "Agree"},
			{ID: "opt-b", Value: json.RawMessage(`"y"`), Text: "Disagree"},
		},
	}
	assert.Equal(t, "Disagree", ResolveAnswer(question, models.JSONValue(`"opt-b"`)))
	assert.Equal(t, "Agree", ResolveAnswer(question, models.JSONValue(`"x"`)))
}

func TestResolveAnswerKeepsNonChoiceValues(t *testing.T) {
	open := &models.Question{Type: models.QuestionTypeOpenEnded}
	likert := &models.Question{Type: models.QuestionTypeLikertScale}
	assert.Equal(t, "I like maths", ResolveAnswer(open, models.JSONValue(`"I like maths"`)))
	assert.Equal(t, "4", ResolveAnswer(likert, models.JSONValue(`4`)))
}

func TestStripCodeFences(t *testing.T) {
	cases := map[string]string{
		"```json\n{\"a\":1}\n```": `{"a":1}`,
		"```\n{\"a\":1}\n```":     `{"a":1}`,
		"```json{\"a\":1}```":     `{"a":1}`,
		"  {\"a\":1}  ":           `{"a":1}`,
	}
	for in, want := range cases {
		assert.Equal(t, want, StripCodeFences(in), in)
	}
}

func TestBuildReportPromptIsDeterministic(t *testing.T) {
	student := &models.Student{FullName: "Siti", Grade: 9, Age: 14}
	answers := ResolveAnswers(likertAssessment(), likertResponses())

	first := BuildReportPrompt(student, likertAssessment(), answers)
	second := BuildReportPrompt(student, likertAssessment(), answers)
	assert.Equal(t, first, second)
	assert.Contains(t, first, "1. Question: I enjoy solving puzzles\n   Type: LIKERT_SCALE\n   Answer: 5\n")
	assert.Contains(t, first, "2. Question: I like working in groups\n   Type: LIKERT_SCALE\n   Answer: 3\n")
}

func TestReportGeneratorEndToEnd(t *testing.T) {
	llm := &stubCompleter{reply: "```json\n" + validReportJSON + "\n```"}
	gen := newTestGenerator(llm)
	student := &models.Student{ID: "s1", FullName: "Siti Aminah", Grade: 9, Age: 14}

	payload, err := gen.Generate(context.Background(), student, likertAssessment(), likertResponses())
	require.NoError(t, err)
	require.Len(t, llm.prompts, 1)

	assert.Equal(t, "Siti Aminah", payload.StudentInfo.Name)
	assert.Equal(t, 9, payload.StudentInfo.Grade)
	assert.Equal(t, 14, payload.StudentInfo.Age)
	assert.Equal(t, 77, payload.StudentInfo.OverallPercentile)
	assert.Equal(t, time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC), payload.StudentInfo.AssessmentDate)

	encoded, err := json.Marshal(payload)
	require.NoError(t, err)
	var top map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(encoded, &top))
	for _, key := range models.ReportPayloadKeys {
		assert.Contains(t, top, key)
	}
	for _, rec := range payload.Recommendations {
		assert.Contains(t, models.RecommendationIcons, rec.Icon)
	}
}

func TestReportGeneratorRejectsMalformedOutput(t *testing.T) {
	gen := newTestGenerator(&stubCompleter{reply: "Sure! Here is your report: {"})

	_, err := gen.Generate(context.Background(), &models.Student{FullName: "A"}, likertAssessment(), likertResponses())
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrGenerationFailed))
}

func TestReportGeneratorRejectsMissingKey(t *testing.T) {
	var doc map[string]json.RawMessage
	require.NoError(t, json.Unmarshal([]byte(validReportJSON), &doc))
	delete(doc, "bestCareer")
	raw, _ := json.Marshal(doc)
	gen := newTestGenerator(&stubCompleter{reply: string(raw)})

	_, err := gen.Generate(context.Background(), &models.Student{FullName: "A"}, likertAssessment(), likertResponses())
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrGenerationFailed))
}

func TestReportGeneratorRejectsMissingDimension(t *testing.T) {
	reply := strings.Replace(validReportJSON, `,
    "verbalComprehension": 75`, "", 1)
	require.NotEqual(t, validReportJSON, reply)
	gen := newTestGenerator(&stubCompleter{reply: reply})

	payload, err := gen.Generate(context.Background(), &models.Student{FullName: "A"}, likertAssessment(), likertResponses())
	require.Error(t, err)
	assert.Nil(t, payload)
	assert.True(t, errors.Is(err, appErrors.ErrGenerationFailed))
}

func TestReportGeneratorRejectsNullDimension(t *testing.T) {
	reply := strings.Replace(validReportJSON, `"memoryRecall": 60`, `"memoryRecall": null`, 1)
	gen := newTestGenerator(&stubCompleter{reply: reply})

	_, err := gen.Generate(context.Background(), &models.Student{FullName: "A"}, likertAssessment(), likertResponses())
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrGenerationFailed))
}

func TestReportGeneratorRejectsStrengthWithoutScore(t *testing.T) {
	reply := strings.Replace(validReportJSON, `, "score": 88}`, `}`, 1)
	require.NotEqual(t, validReportJSON, reply)
	gen := newTestGenerator(&stubCompleter{reply: reply})

	_, err := gen.Generate(context.Background(), &models.Student{FullName: "A"}, likertAssessment(), likertResponses())
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrGenerationFailed))
}

func TestReportGeneratorRejectsOutOfVocabularyIcon(t *testing.T) {
	reply := strings.Replace(validReportJSON, `"icon": "Users"`, `"icon": "Rocket"`, 1)
	gen := newTestGenerator(&stubCompleter{reply: reply})

	_, err := gen.Generate(context.Background(), &models.Student{FullName: "A"}, likertAssessment(), likertResponses())
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrGenerationFailed))
}

func TestReportGeneratorRejectsOutOfRangeScore(t *testing.T) {
	reply := strings.Replace(validReportJSON, `"problemSolving": 90`, `"problemSolving": 140`, 1)
	gen := newTestGenerator(&stubCompleter{reply: reply})

	_, err := gen.Generate(context.Background(), &models.Student{FullName: "A"}, likertAssessment(), likertResponses())
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrGenerationFailed))
}

func TestReportGeneratorRejectsFractionalScore(t *testing.T) {
	reply := strings.Replace(validReportJSON, `"memoryRecall": 60`, `"memoryRecall": 60.5`, 1)
	gen := newTestGenerator(&stubCompleter{reply: reply})

	_, err := gen.Generate(context.Background(), &models.Student{FullName: "A"}, likertAssessment(), likertResponses())
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrGenerationFailed))
}

func TestReportGeneratorMapsProviderErrors(t *testing.T) {
	gen := newTestGenerator(&stubCompleter{err: errors.New("connection reset")})

	_, err := gen.Generate(context.Background(), &models.Student{FullName: "A"}, likertAssessment(), likertResponses())
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrGenerationFailed))
}

func TestReportGeneratorTimesOut(t *testing.T) {
	gen := NewReportGenerator(&stubCompleter{block: true}, nil, nil, nil, 20*time.Millisecond)

	_, err := gen.Generate(context.Background(), &models.Student{FullName: "A"}, likertAssessment(), likertResponses())
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrGenerationFailed))
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestReportGeneratorRequiresAnswers(t *testing.T) {
	llm := &stubCompleter{reply: validReportJSON}
	gen := newTestGenerator(llm)

	_, err := gen.Generate(context.Background(), &models.Student{FullName: "A"}, likertAssessment(), nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
	assert.Empty(t, llm.prompts)
}
