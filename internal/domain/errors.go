package domain

import "fmt"

// AppError is the base domain error type.
type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"-"`
	Cause   error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error { return e.Cause }

// Is matches any AppError with the same code, so callers can use errors.Is
// against the sentinel values below.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// Error codes.
const (
	CodeValidation       = "VALIDATION_ERROR"
	CodeNotFound         = "NOT_FOUND"
	CodeIdentityNotFound = "IDENTITY_NOT_FOUND"
	CodeCannotPunishSelf = "CANNOT_PUNISH_SELF"
	CodeTargetExempt     = "TARGET_EXEMPT"
	CodeDurationTooLong  = "DURATION_EXCEEDS_MAXIMUM"
	CodeAlreadyPunished  = "ALREADY_PUNISHED"
	CodePersistence      = "PERSISTENCE_FAILED"
	CodeUnauthorized     = "UNAUTHORIZED"
	CodeRateLimited      = "RATE_LIMITED"
	CodeInternal         = "INTERNAL_ERROR"
)

// Sentinels for errors.Is comparisons.
var (
	ErrValidationFailed  = &AppError{Code: CodeValidation}
	ErrMissing           = &AppError{Code: CodeNotFound}
	ErrIdentityNotFound  = &AppError{Code: CodeIdentityNotFound}
	ErrCannotPunishSelf  = &AppError{Code: CodeCannotPunishSelf}
	ErrTargetExempt      = &AppError{Code: CodeTargetExempt}
	ErrDurationTooLong   = &AppError{Code: CodeDurationTooLong}
	ErrAlreadyPunished   = &AppError{Code: CodeAlreadyPunished}
	ErrPersistenceFailed = &AppError{Code: CodePersistence}
)

// Standard domain error constructors.

func ErrNotFound(entity, id string) *AppError {
	return &AppError{Code: CodeNotFound, Message: fmt.Sprintf("%s %s not found", entity, id), Status: 404}
}

func ErrValidation(msg string) *AppError {
	return &AppError{Code: CodeValidation, Message: msg, Status: 400}
}

func ErrUnauthorized(msg string) *AppError {
	return &AppError{Code: CodeUnauthorized, Message: msg, Status: 401}
}

func ErrRateLimited(msg string) *AppError {
	return &AppError{Code: CodeRateLimited, Message: msg, Status: 429}
}

func ErrUnknownIdentity(name string) *AppError {
	return &AppError{Code: CodeIdentityNotFound, Message: fmt.Sprintf("no player known as %s", name), Status: 404}
}

func ErrSelfPunishment() *AppError {
	return &AppError{Code: CodeCannotPunishSelf, Message: "staff cannot punish themselves", Status: 403}
}

func ErrExempt(name string) *AppError {
	return &AppError{Code: CodeTargetExempt, Message: fmt.Sprintf("%s is exempt from punishment", name), Status: 403}
}

func ErrDurationExceeded(requested, max int64) *AppError {
	return &AppError{
		Code:    CodeDurationTooLong,
		Message: fmt.Sprintf("duration %ds exceeds maximum %ds", requested, max),
		Status:  403,
	}
}

func ErrConflictingPunishment(name string, t PunishmentType) *AppError {
	return &AppError{Code: CodeAlreadyPunished, Message: fmt.Sprintf("%s already has an active %s", name, t), Status: 409}
}

func ErrPersistence(msg string, cause error) *AppError {
	return &AppError{Code: CodePersistence, Message: msg, Status: 503, Cause: cause}
}

func ErrInternal(msg string, cause error) *AppError {
	return &AppError{Code: CodeInternal, Message: msg, Status: 500, Cause: cause}
}

// CodeOf returns the AppError code carried by err, or CodeInternal.
func CodeOf(err error) string {
	for err != nil {
		if appErr, ok := err.(*AppError); ok {
			return appErr.Code
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	return CodeInternal
}
