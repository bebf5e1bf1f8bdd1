package response

// ErrCode is a typed error code enum for consistent API error identification.
type ErrCode string

const (
	// ─── Authentication ────────────────────────────────────────────────
	ErrTokenRequired ErrCode = "TOKEN_REQUIRED"
	ErrTokenInvalid  ErrCode = "TOKEN_INVALID"
	ErrTokenExpired  ErrCode = "TOKEN_EXPIRED"

	// ─── Authorization ─────────────────────────────────────────────────
	ErrForbidden       ErrCode = "FORBIDDEN"
	ErrNotSessionOwner ErrCode = "NOT_SESSION_OWNER"

	// ─── Validation ────────────────────────────────────────────────────
	ErrValidation     ErrCode = "VALIDATION_ERROR"
	ErrInvalidID      ErrCode = "INVALID_ID"
	ErrInvalidPayload ErrCode = "INVALID_PAYLOAD"

	// ─── Resources ─────────────────────────────────────────────────────
	ErrNotFound ErrCode = "NOT_FOUND"
	ErrConflict ErrCode = "CONFLICT"

	// ─── Entitlements ──────────────────────────────────────────────────
	ErrEntitlementExhausted ErrCode = "ENTITLEMENT_EXHAUSTED"

	// ─── Session lifecycle ─────────────────────────────────────────────
	ErrSessionNotActive  ErrCode = "SESSION_NOT_ACTIVE"
	ErrSessionExpired    ErrCode = "SESSION_EXPIRED"
	ErrSessionTerminated ErrCode = "SESSION_TERMINATED"
	ErrNoQuestions       ErrCode = "NO_QUESTIONS_AVAILABLE"

	// ─── Server ────────────────────────────────────────────────────────
	ErrInternal ErrCode = "INTERNAL_ERROR"
)

// GetMessage returns a human-readable message for a given error code.
func GetMessage(code ErrCode) string {
	switch code {
	// ─── Authentication ────────────────────────────────────────────────
	case ErrTokenRequired:
		return "An authentication token is required."
	case ErrTokenInvalid:
		return "The authentication token is invalid."
	case ErrTokenExpired:
		return "The authentication token has expired."

	// ─── Authorization ─────────────────────────────────────────────────
	case ErrForbidden:
		return "You do not have permission to access this resource."
	case ErrNotSessionOwner:
		return "This assessment session belongs to another user."

	// ─── Validation ────────────────────────────────────────────────────
	case ErrValidation:
		return "Validation failed. Please check your input."
	case ErrInvalidID:
		return "The identifier format is invalid."
	case ErrInvalidPayload:
		return "The request payload is invalid."

	// ─── Resources ─────────────────────────────────────────────────────
	case ErrNotFound:
		return "The requested resource was not found."
	case ErrConflict:
		return "The resource already exists."

	// ─── Entitlements ──────────────────────────────────────────────────
	case ErrEntitlementExhausted:
		return "You have used all free sessions and have no credits remaining."

	// ─── Session lifecycle ─────────────────────────────────────────────
	case ErrSessionNotActive:
		return "This assessment session is no longer active."
	case ErrSessionExpired:
		return "The time allotted for this assessment session has expired."
	case ErrSessionTerminated:
		return "This assessment session was terminated for integrity violations."
	case ErrNoQuestions:
		return "No questions could be provisioned for the requested assessment."

	// ─── Server ────────────────────────────────────────────────────────
	case ErrInternal:
		return "An internal server error occurred."
	default:
		return "An unexpected error occurred."
	}
}
