package model

import (
	"time"

	"github.com/google/uuid"
)

// QuestionType enumerates the supported question formats.
type QuestionType string

const (
	QuestionTypeCoding         QuestionType = "CODING"
	QuestionTypeMultipleChoice QuestionType = "MULTIPLE_CHOICE"
	QuestionTypeMultipleSelect QuestionType = "MULTIPLE_SELECT"
	QuestionTypeTrueFalse      QuestionType = "TRUE_FALSE"
	QuestionTypeShortAnswer    QuestionType = "SHORT_ANSWER"
	QuestionTypeLongAnswer     QuestionType = "LONG_ANSWER"
	QuestionTypeBehavioral     QuestionType = "BEHAVIORAL"
	QuestionTypeSystemDesign   QuestionType = "SYSTEM_DESIGN"
)

// Coding reports whether answers are scored by test-case execution rather
// than rubric evaluation.
func (t QuestionType) Coding() bool { return t == QuestionTypeCoding }

// TestCase is one input/expected-output pair for a coding question.
// Test cases are frozen at provisioning time.
type TestCase struct {
	Label    string `json:"label"`
	Input    string `json:"input"`
	Expected string `json:"expected"`
}

// Question is a single provisioned question, exclusively owned by its
// session. Prompt, type, weight and test cases are immutable after
// provisioning; only the candidate-response and result fields mutate, and
// only while the session is IN_PROGRESS.
type Question struct {
	ID         uuid.UUID    `json:"id"`
	SessionID  uuid.UUID    `json:"session_id"`
	Ordinal    int          `json:"ordinal"` // 1..N, fixed at provisioning
	Prompt     string       `json:"prompt"`
	Type       QuestionType `json:"type"`
	Difficulty Difficulty   `json:"difficulty"`
	Weight     float64      `json:"weight"`
	TestCases  []TestCase   `json:"test_cases,omitempty"`
	Hints      []string     `json:"hints,omitempty"`

	AnswerText       *string    `json:"answer_text,omitempty"`
	SubmittedCode    *string    `json:"submitted_code,omitempty"`
	TimeSpentSeconds int        `json:"time_spent_seconds"`
	AnsweredAt       *time.Time `json:"answered_at,omitempty"`

	SubScore *float64 `json:"sub_score,omitempty"`
	Feedback *string  `json:"feedback,omitempty"`
	// Degraded marks sub-scores produced by the fallback path because the
	// text-generation dependency failed or timed out.
	Degraded bool `json:"degraded"`
	// ManualReview flags questions that could not be scored mechanically
	// (e.g. a coding question provisioned without test cases).
	ManualReview bool `json:"manual_review"`
}

// SubmitAnswerRequest is the payload for answering one question.
type SubmitAnswerRequest struct {
	AnswerText       string `json:"answer_text" binding:"omitempty,max=20000"`
	Code             string `json:"code" binding:"omitempty,max=100000"`
	TimeSpentSeconds int    `json:"time_spent_seconds" binding:"min=0"`
}

// QuestionForCandidate is a question as exposed to the candidate while the
// session runs: expected test-case outputs are redacted so the client cannot
// hardcode them.
type QuestionForCandidate struct {
	ID         uuid.UUID    `json:"id"`
	Ordinal    int          `json:"ordinal"`
	Prompt     string       `json:"prompt"`
	Type       QuestionType `json:"type"`
	Difficulty Difficulty   `json:"difficulty"`
	Weight     float64      `json:"weight"`
	// Test-case labels and inputs only; expected outputs stay server-side.
	TestCases []RedactedTestCase `json:"test_cases,omitempty"`
	Hints     []string           `json:"hints,omitempty"`
	Answered  bool               `json:"answered"`
}

// RedactedTestCase is a TestCase without the expected output.
type RedactedTestCase struct {
	Label string `json:"label"`
	Input string `json:"input"`
}

// ForCandidate strips server-only fields from a question.
func (q *Question) ForCandidate() QuestionForCandidate {
	out := QuestionForCandidate{
		ID:         q.ID,
		Ordinal:    q.Ordinal,
		Prompt:     q.Prompt,
		Type:       q.Type,
		Difficulty: q.Difficulty,
		Weight:     q.Weight,
		Hints:      q.Hints,
		Answered:   q.AnsweredAt != nil,
	}
	for _, tc := range q.TestCases {
		out.TestCases = append(out.TestCases, RedactedTestCase{Label: tc.Label, Input: tc.Input})
	}
	return out
}
