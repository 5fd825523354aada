package arenadto

// Error codes surfaced to clients. Codes are stable; messages are not.
const (
	CodeUnauthorized = "UNAUTHORIZED"
	CodeBadRequest   = "BAD_REQUEST"
	CodeRoomNotFound = "ROOM_NOT_FOUND"
	CodeRoomClosed   = "ROOM_CLOSED"
	CodeRoomFull     = "ROOM_FULL"
	CodeInvalidState = "INVALID_STATE"
	CodeForbidden    = "FORBIDDEN"
	CodeOutOfTurn    = "OUT_OF_TURN"
	CodeIllegalMove  = "ILLEGAL_MOVE"
	CodeRateLimited  = "RATE_LIMITED"
)

type DomainError struct {
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
}

func (e *DomainError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Code != "" {
		return e.Code
	}
	return "arena error"
}

func Errorf(code, message string) *DomainError {
	return &DomainError{Code: code, Message: message}
}

// CodeOf extracts the domain code from err, or "" for non-domain errors.
func CodeOf(err error) string {
	if de, ok := err.(*DomainError); ok {
		return de.Code
	}
	return ""
}
