package model

import (
	"time"

	"github.com/google/uuid"
)

// ViolationType enumerates integrity violations reportable from the client
// surface. The server only counts and reacts to reports; it cannot observe
// browser focus itself.
type ViolationType string

const (
	ViolationTabSwitch       ViolationType = "TAB_SWITCH"
	ViolationCopyAttempt     ViolationType = "COPY_ATTEMPT"
	ViolationPasteAttempt    ViolationType = "PASTE_ATTEMPT"
	ViolationBlockedShortcut ViolationType = "BLOCKED_SHORTCUT"
	ViolationContextMenu     ViolationType = "CONTEXT_MENU"
)

// Valid reports whether t is a known violation type.
func (t ViolationType) Valid() bool {
	switch t {
	case ViolationTabSwitch, ViolationCopyAttempt, ViolationPasteAttempt,
		ViolationBlockedShortcut, ViolationContextMenu:
		return true
	}
	return false
}

// ViolationEvent is one itemized entry in a session's violation log.
type ViolationEvent struct {
	ID         int64         `json:"id"`
	SessionID  uuid.UUID     `json:"session_id"`
	Type       ViolationType `json:"type"`
	RecordedAt time.Time     `json:"recorded_at"`
}

// ReportViolationRequest is the payload for reporting one violation event.
type ReportViolationRequest struct {
	Type string `json:"type" binding:"required,oneof=TAB_SWITCH COPY_ATTEMPT PASTE_ATTEMPT BLOCKED_SHORTCUT CONTEXT_MENU"`
}

// ViolationAck is returned after recording a violation: the updated count and
// whether the report pushed the session over the termination threshold.
type ViolationAck struct {
	ViolationCount int  `json:"violation_count"`
	Terminated     bool `json:"terminated"`
}
