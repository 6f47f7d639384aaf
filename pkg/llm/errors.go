package llm

import "errors"

// Error code constants for standardized error handling across the pipeline.
// Adapters and assemblers map their native failures to one of these codes.
const (
	ErrCodeProviderUnconfigured = "provider_unconfigured"
	ErrCodeProviderUnavailable  = "provider_unavailable"
	ErrCodeTimeout              = "timeout"
	ErrCodeResponseParse        = "response_parse_error"
	ErrCodeTenantAccessDenied   = "tenant_access_denied"
	ErrCodeNotFound             = "not_found"
	ErrCodeQuotaExceeded        = "quota_exceeded"
	ErrCodeValidation           = "validation_failure"
)

// Error represents a typed failure inside the LLM pipeline.
// Use the IsXxx helpers below to classify errors without inspecting fields.
type Error struct {
	Code    string // One of the ErrCode* constants.
	Message string // Human-readable description.
	Err     error  // Underlying error (may be nil).
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a typed pipeline error.
func NewError(code, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// IsTenantAccessDenied reports whether err is a cross-tenant access attempt.
func IsTenantAccessDenied(err error) bool {
	return hasCode(err, ErrCodeTenantAccessDenied)
}

// IsNotFound reports whether err indicates a missing referenced entity.
func IsNotFound(err error) bool {
	return hasCode(err, ErrCodeNotFound)
}

// IsValidationFailure reports whether err is a structural input rejection.
func IsValidationFailure(err error) bool {
	return hasCode(err, ErrCodeValidation)
}

// IsQuotaExceeded reports whether err is a monthly token quota rejection.
func IsQuotaExceeded(err error) bool {
	return hasCode(err, ErrCodeQuotaExceeded)
}

// IsTimeout reports whether err is an adapter call timeout.
func IsTimeout(err error) bool {
	return hasCode(err, ErrCodeTimeout)
}

// IsProviderUnavailable reports whether err is a transient provider failure.
func IsProviderUnavailable(err error) bool {
	return hasCode(err, ErrCodeProviderUnavailable)
}

func hasCode(err error, code string) bool {
	var pe *Error
	return errors.As(err, &pe) && pe.Code == code
}
