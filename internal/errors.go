package internal

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

type ErrorType string

const (
	ErrorTypeValidation   ErrorType = "VALIDATION_ERROR"
	ErrorTypeNotFound     ErrorType = "NOT_FOUND"
	ErrorTypeUnauthorized ErrorType = "UNAUTHORIZED"
	ErrorTypeForbidden    ErrorType = "FORBIDDEN"
	ErrorTypeConflict     ErrorType = "CONFLICT"
	ErrorTypeInternal     ErrorType = "INTERNAL_ERROR"
	ErrorTypeExecution    ErrorType = "EXECUTION_ERROR"
	ErrorTypeTimeout      ErrorType = "TIMEOUT"
)

type ErrorCode string

const (
	ErrCodeValidationFailed        ErrorCode = "VALIDATION_FAILED"
	ErrCodeInvalidParameter        ErrorCode = "INVALID_PARAMETER"
	ErrCodeRequiredParameter       ErrorCode = "REQUIRED_PARAMETER"
	ErrCodePatternMismatch         ErrorCode = "PATTERN_MISMATCH"
	ErrCodeInvalidModuleDefinition ErrorCode = "INVALID_MODULE_DEFINITION"
	ErrCodeInvalidRole             ErrorCode = "INVALID_ROLE"

	ErrCodeModuleNotFound ErrorCode = "MODULE_NOT_FOUND"
	ErrCodeRoleNotFound   ErrorCode = "ROLE_NOT_FOUND"
	ErrCodeUserNotFound   ErrorCode = "USER_NOT_FOUND"
	ErrCodeAccessDenied   ErrorCode = "ACCESS_DENIED"

	ErrCodeBuiltInRole        ErrorCode = "BUILT_IN_ROLE"
	ErrCodeRoleInUse          ErrorCode = "ROLE_IN_USE"
	ErrCodeModuleExists       ErrorCode = "MODULE_EXISTS"
	ErrCodeRoleExists         ErrorCode = "ROLE_EXISTS"
	ErrCodeUserExists         ErrorCode = "USER_EXISTS"
	ErrCodeScriptAlreadyBound ErrorCode = "SCRIPT_ALREADY_BOUND"

	ErrCodeInvalidCredentials ErrorCode = "INVALID_CREDENTIALS"
	ErrCodeUserInactive       ErrorCode = "USER_INACTIVE"
	ErrCodeInvalidToken       ErrorCode = "INVALID_TOKEN"
	ErrCodeTokenExpired       ErrorCode = "TOKEN_EXPIRED"

	ErrCodeExecutionFailed  ErrorCode = "EXECUTION_FAILED"
	ErrCodeExecutionTimeout ErrorCode = "EXECUTION_TIMEOUT"
)

type AppError struct {
	Type       ErrorType   `json:"type"`
	Code       ErrorCode   `json:"code"`
	Message    string      `json:"message"`
	Details    interface{} `json:"details,omitempty"`
	StatusCode int         `json:"-"`
	Cause      error       `json:"-"`
}

func (e *AppError) Error() string {
	if e.Details != nil {
		if validationErrors, ok := e.Details.(ValidationErrors); ok && len(validationErrors.Errors) > 0 {
			return e.GetDetailedMessage()
		}
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) GetDetailedMessage() string {
	if e.Details != nil {
		if validationErrors, ok := e.Details.(ValidationErrors); ok && len(validationErrors.Errors) > 0 {
			messages := make([]string, len(validationErrors.Errors))
			for i, err := range validationErrors.Errors {
				messages[i] = err.Message
			}
			return strings.Join(messages, "; ")
		}
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is matches on Type and Code so package-level sentinels work with errors.Is
// even after WithCause/WithDetails copies.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Type == t.Type && e.Code == t.Code
}

// WithCause returns a copy carrying cause; sentinels are never mutated.
func (e *AppError) WithCause(cause error) *AppError {
	cp := *e
	cp.Cause = cause
	return &cp
}

// WithDetails returns a copy carrying details.
func (e *AppError) WithDetails(details interface{}) *AppError {
	cp := *e
	cp.Details = details
	return &cp
}

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

// FieldErrors returns the validation entries carried by err, if any.
func FieldErrors(err error) []ValidationError {
	appErr, ok := IsAppError(err)
	if !ok || appErr.Details == nil {
		return nil
	}
	if details, ok := appErr.Details.(ValidationErrors); ok {
		return details.Errors
	}
	return nil
}

func NewValidationError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeValidation,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusBadRequest,
	}
}

func NewValidationFieldError(field, message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeValidation,
		Code:       ErrCodeValidationFailed,
		Message:    "Validation failed",
		StatusCode: http.StatusBadRequest,
		Details: ValidationErrors{
			Errors: []ValidationError{
				{Field: field, Message: message, Code: string(code)},
			},
		},
	}
}

func NewNotFoundError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeNotFound,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusNotFound,
	}
}

func NewUnauthorizedError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeUnauthorized,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusUnauthorized,
	}
}

func NewForbiddenError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeForbidden,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusForbidden,
	}
}

func NewInternalError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeInternal,
		Code:       "INTERNAL_ERROR",
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Cause:      cause,
	}
}

func NewConflictError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeConflict,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusConflict,
	}
}

func NewExecutionError(message string, code ErrorCode) *AppError {
	status := http.StatusBadGateway
	errType := ErrorTypeExecution
	if code == ErrCodeExecutionTimeout {
		status = http.StatusGatewayTimeout
		errType = ErrorTypeTimeout
	}
	return &AppError{
		Type:       errType,
		Code:       code,
		Message:    message,
		StatusCode: status,
	}
}

var (
	ErrModuleNotFound = NewNotFoundError("Module not found", ErrCodeModuleNotFound)
	ErrRoleNotFound   = NewNotFoundError("Role not found", ErrCodeRoleNotFound)
	ErrUserNotFound   = NewNotFoundError("User not found", ErrCodeUserNotFound)
	ErrAccessDenied   = NewForbiddenError("Access denied", ErrCodeAccessDenied)

	ErrBuiltInRole        = NewConflictError("Built-in roles cannot be deleted or re-levelled", ErrCodeBuiltInRole)
	ErrRoleInUse          = NewConflictError("Role is still assigned to users", ErrCodeRoleInUse)
	ErrRoleExists         = NewConflictError("Role already exists", ErrCodeRoleExists)
	ErrModuleExists       = NewConflictError("Module already exists", ErrCodeModuleExists)
	ErrUserExists         = NewConflictError("User already exists", ErrCodeUserExists)
	ErrScriptAlreadyBound = NewConflictError("Executable is already bound to another module", ErrCodeScriptAlreadyBound)

	ErrInvalidCredentials = NewUnauthorizedError("Invalid username or password", ErrCodeInvalidCredentials)
	ErrUserInactive       = NewForbiddenError("User account is inactive", ErrCodeUserInactive)
	ErrInvalidToken       = NewUnauthorizedError("Invalid token", ErrCodeInvalidToken)
	ErrTokenExpired       = NewUnauthorizedError("Token has expired", ErrCodeTokenExpired)

	ErrExecutionFailed  = NewExecutionError("Module execution failed", ErrCodeExecutionFailed)
	ErrExecutionTimeout = NewExecutionError("Module execution timed out", ErrCodeExecutionTimeout)
)

func IsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

type Response struct {
	Error *AppError `json:"error"`
}

func (e *AppError) ToHTTPResponse() (int, interface{}) {
	return e.StatusCode, Response{Error: e}
}

func (e *AppError) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type    ErrorType   `json:"type"`
		Code    ErrorCode   `json:"code"`
		Message string      `json:"message"`
		Details interface{} `json:"details,omitempty"`
	}{
		Type:    e.Type,
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
	})
}
