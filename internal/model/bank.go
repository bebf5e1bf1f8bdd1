package model

import (
	"time"

	"github.com/google/uuid"
)

// BankQuestion is a curated question in the shared bank, keyed by
// (kind, category, difficulty). Provisioning copies it into a session-owned
// Question; the bank row itself is never mutated by sessions.
type BankQuestion struct {
	ID           uuid.UUID          `json:"id"`
	Kind         AssessmentKind     `json:"kind"`
	Category     AssessmentCategory `json:"category"`
	Difficulty   Difficulty         `json:"difficulty"`
	Type         QuestionType       `json:"type"`
	Prompt       string             `json:"prompt"`
	Weight       float64            `json:"weight"`
	TestCases    []TestCase         `json:"test_cases,omitempty"`
	Hints        []string           `json:"hints,omitempty"`
	SampleAnswer string             `json:"sample_answer,omitempty"`
	Language     string             `json:"language,omitempty"`
	CreatedAt    time.Time          `json:"created_at"`
}
