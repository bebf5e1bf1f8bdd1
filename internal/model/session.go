package model

import (
	"time"

	"github.com/google/uuid"
)

// SessionStatus enumerates assessment session lifecycle states.
// COMPLETED, EXPIRED, TERMINATED_INTEGRITY and CANCELLED are terminal:
// a session never leaves them once entered.
type SessionStatus string

const (
	SessionStatusCreated             SessionStatus = "CREATED"
	SessionStatusInProgress          SessionStatus = "IN_PROGRESS"
	SessionStatusCompleted           SessionStatus = "COMPLETED"
	SessionStatusExpired             SessionStatus = "EXPIRED"
	SessionStatusTerminatedIntegrity SessionStatus = "TERMINATED_INTEGRITY"
	SessionStatusCancelled           SessionStatus = "CANCELLED"
)

// Terminal reports whether the status permits no further transitions.
func (s SessionStatus) Terminal() bool {
	switch s {
	case SessionStatusCompleted, SessionStatusExpired, SessionStatusTerminatedIntegrity, SessionStatusCancelled:
		return true
	}
	return false
}

// AssessmentKind distinguishes timed skills tests from mock interviews.
type AssessmentKind string

const (
	KindSkillsTest    AssessmentKind = "SKILLS_TEST"
	KindMockInterview AssessmentKind = "MOCK_INTERVIEW"
)

// AssessmentCategory groups questions by discipline.
type AssessmentCategory string

const (
	CategoryTechnical    AssessmentCategory = "TECHNICAL"
	CategoryBehavioral   AssessmentCategory = "BEHAVIORAL"
	CategorySystemDesign AssessmentCategory = "SYSTEM_DESIGN"
	CategoryMixed        AssessmentCategory = "MIXED"
)

// Difficulty tiers for question selection.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "EASY"
	DifficultyMedium Difficulty = "MEDIUM"
	DifficultyHard   Difficulty = "HARD"
)

// AssessmentSession represents one timed attempt at a skills test or mock
// interview. The server-recorded StartedAt plus AllottedSeconds are the only
// authority on remaining time; no mutable countdown is ever stored.
type AssessmentSession struct {
	ID            uuid.UUID          `json:"id"`
	UserID        string             `json:"user_id"`
	Kind          AssessmentKind     `json:"kind"`
	Category      AssessmentCategory `json:"category"`
	Difficulty    Difficulty         `json:"difficulty"`
	TargetRole    string             `json:"target_role,omitempty"`
	TargetCompany string             `json:"target_company,omitempty"`
	Language      string             `json:"language,omitempty"`

	Status          SessionStatus `json:"status"`
	StartedAt       time.Time     `json:"started_at"`
	FinishedAt      *time.Time    `json:"finished_at,omitempty"`
	AllottedSeconds int           `json:"allotted_seconds"`

	ViolationCount       int `json:"violation_count"`
	TabSwitchCount       int `json:"tab_switch_count"`
	CopyAttemptCount     int `json:"copy_attempt_count"`
	PasteAttemptCount    int `json:"paste_attempt_count"`
	BlockedShortcutCount int `json:"blocked_shortcut_count"`
	ContextMenuCount     int `json:"context_menu_count"`

	OverallScore    *float64 `json:"overall_score,omitempty"`
	OverallFeedback *string  `json:"overall_feedback,omitempty"`
	// FeedbackDegraded marks results whose feedback came from the fixed
	// fallback because text generation was unavailable.
	FeedbackDegraded bool `json:"feedback_degraded"`
	// ProvisioningShortfall records how many requested question slots could
	// not be filled. Informational; a short session still runs.
	ProvisioningShortfall int `json:"provisioning_shortfall"`

	CreatedAt time.Time `json:"created_at"`
}

// CreateSessionRequest is the payload for starting a new assessment session.
type CreateSessionRequest struct {
	Kind            string `json:"kind" binding:"required,oneof=SKILLS_TEST MOCK_INTERVIEW"`
	Category        string `json:"category" binding:"required,oneof=TECHNICAL BEHAVIORAL SYSTEM_DESIGN MIXED"`
	Difficulty      string `json:"difficulty" binding:"required,oneof=EASY MEDIUM HARD"`
	TargetRole      string `json:"target_role" binding:"omitempty,max=120"`
	TargetCompany   string `json:"target_company" binding:"omitempty,max=120"`
	Language        string `json:"language" binding:"omitempty,max=40"`
	TotalQuestions  int    `json:"total_questions" binding:"omitempty,min=1"`
	DurationSeconds int    `json:"duration_seconds" binding:"required,min=60,max=14400"`
}

// SessionResult is the caller-facing final result of a session. OverallScore
// is null for cancelled sessions, which keep their per-question breakdown but
// never aggregate.
type SessionResult struct {
	SessionID        uuid.UUID        `json:"session_id"`
	Status           SessionStatus    `json:"status"`
	OverallScore     *float64         `json:"overall_score"`
	OverallFeedback  string           `json:"overall_feedback"`
	FeedbackDegraded bool             `json:"feedback_degraded"`
	Questions        []QuestionResult `json:"questions"`
}

// QuestionResult is the per-question breakdown inside a SessionResult.
type QuestionResult struct {
	QuestionID   uuid.UUID `json:"question_id"`
	Ordinal      int       `json:"ordinal"`
	SubScore     *float64  `json:"sub_score,omitempty"`
	Feedback     *string   `json:"feedback,omitempty"`
	Degraded     bool      `json:"degraded"`
	ManualReview bool      `json:"manual_review"`
}
