package model

import "time"

// Entitlement tracks a user's right to start sessions: lifetime free-quota
// consumption, purchased credits, and running score statistics. Keyed by
// user id; it survives across sessions.
type Entitlement struct {
	UserID             string     `json:"user_id"`
	FreeTestsUsed      int        `json:"free_tests_used"`
	FreeInterviewsUsed int        `json:"free_interviews_used"`
	CreditBalance      int        `json:"credit_balance"`
	SessionsCompleted  int        `json:"sessions_completed"`
	AverageScore       float64    `json:"average_score"`
	BestScore          float64    `json:"best_score"`
	LastSessionAt      *time.Time `json:"last_session_at,omitempty"`
}

// Eligibility is the read-only answer to "may this user start a session?".
type Eligibility struct {
	Allowed       bool   `json:"allowed"`
	Reason        string `json:"reason,omitempty"`
	FreeRemaining int    `json:"free_remaining"`
	CreditBalance int    `json:"credit_balance"`
}

// GrantCreditsRequest is the payload for an idempotent credit grant. The
// request id is supplied by the payment pipeline after verification; replays
// with the same id are no-ops.
type GrantCreditsRequest struct {
	RequestID string `json:"request_id" binding:"required,min=8,max=64"`
	Count     int    `json:"count" binding:"required,min=1,max=100"`
}
