package dto

import (
	"errors"
	"net/http"

	"github.com/ams/backend/internal/domain/shared"
)

// Error codes returned to API clients.
// Format: ERR_<CATEGORY>_<DESCRIPTION>
const (
	ErrCodeUnknown  = "ERR_UNKNOWN"
	ErrCodeInternal = "ERR_INTERNAL"

	ErrCodeValidation   = "ERR_VALIDATION"
	ErrCodeBadRequest   = "ERR_BAD_REQUEST"
	ErrCodeInvalidInput = "ERR_INVALID_INPUT"
	ErrCodeInvalidJSON  = "ERR_INVALID_JSON"

	ErrCodeUnauthorized = "ERR_UNAUTHORIZED"
	ErrCodeForbidden    = "ERR_FORBIDDEN"
	ErrCodeTokenExpired = "ERR_TOKEN_EXPIRED"
	ErrCodeTokenInvalid = "ERR_TOKEN_INVALID"

	ErrCodeNotFound            = "ERR_NOT_FOUND"
	ErrCodeAlreadyExists       = "ERR_ALREADY_EXISTS"
	ErrCodeConcurrencyConflict = "ERR_CONCURRENCY_CONFLICT"

	ErrCodeInvalidState    = "ERR_INVALID_STATE"
	ErrCodeConfiguration   = "ERR_CONFIGURATION"
	ErrCodeProcessing      = "ERR_PROCESSING"
	ErrCodeRequestTooLarge = "ERR_REQUEST_TOO_LARGE"
)

// Error categories as exposed in ErrorInfo.Category
const (
	CategoryValidation    = "validation"
	CategoryConfiguration = "configuration"
	CategoryProcessing    = "processing"
	CategoryConcurrency   = "concurrency"
	CategoryNotFound      = "not_found"
)

// ErrorCodeHTTPStatus maps error codes to HTTP status codes
var ErrorCodeHTTPStatus = map[string]int{
	ErrCodeUnknown:  http.StatusInternalServerError,
	ErrCodeInternal: http.StatusInternalServerError,

	ErrCodeValidation:   http.StatusBadRequest,
	ErrCodeBadRequest:   http.StatusBadRequest,
	ErrCodeInvalidInput: http.StatusBadRequest,
	ErrCodeInvalidJSON:  http.StatusBadRequest,

	ErrCodeUnauthorized: http.StatusUnauthorized,
	ErrCodeForbidden:    http.StatusForbidden,
	ErrCodeTokenExpired: http.StatusUnauthorized,
	ErrCodeTokenInvalid: http.StatusUnauthorized,

	ErrCodeNotFound:            http.StatusNotFound,
	ErrCodeAlreadyExists:       http.StatusConflict,
	ErrCodeConcurrencyConflict: http.StatusConflict,

	ErrCodeInvalidState:    http.StatusUnprocessableEntity,
	ErrCodeConfiguration:   http.StatusUnprocessableEntity,
	ErrCodeProcessing:      http.StatusBadGateway,
	ErrCodeRequestTooLarge: http.StatusRequestEntityTooLarge,
}

// GetHTTPStatus returns the HTTP status code for an error code.
// Unknown codes map to 500.
func GetHTTPStatus(code string) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// domainCodeMapping maps domain error codes that have a dedicated API code
var domainCodeMapping = map[string]string{
	"NOT_FOUND":            ErrCodeNotFound,
	"ALREADY_EXISTS":       ErrCodeAlreadyExists,
	"INVALID_INPUT":        ErrCodeInvalidInput,
	"INVALID_STATE":        ErrCodeInvalidState,
	"UNAUTHORIZED":         ErrCodeUnauthorized,
	"CONCURRENCY_CONFLICT": ErrCodeConcurrencyConflict,
}

// APIError is the HTTP view of an error
type APIError struct {
	Status   int
	Code     string
	Category string
	Message  string
}

// FromError classifies err by its domain category. Specific codes win over
// the category default so that INVALID_STATE stays a 422 while other
// validation errors are 400.
func FromError(err error) APIError {
	var domainErr *shared.DomainError
	if !errors.As(err, &domainErr) {
		return APIError{
			Status:  http.StatusInternalServerError,
			Code:    ErrCodeInternal,
			Message: "An unexpected error occurred",
		}
	}

	category := categoryName(domainErr.Category)
	if code, ok := domainCodeMapping[domainErr.Code]; ok {
		return APIError{Status: GetHTTPStatus(code), Code: code, Category: category, Message: domainErr.Message}
	}

	var code string
	switch domainErr.Category {
	case shared.CategoryConfiguration:
		code = ErrCodeConfiguration
	case shared.CategoryProcessing:
		code = ErrCodeProcessing
	case shared.CategoryConcurrency:
		code = ErrCodeConcurrencyConflict
	case shared.CategoryNotFound:
		code = ErrCodeNotFound
	default:
		code = ErrCodeValidation
	}
	return APIError{
		Status:   GetHTTPStatus(code),
		Code:     "ERR_" + domainErr.Code,
		Category: category,
		Message:  domainErr.Message,
	}
}

func categoryName(c shared.ErrorCategory) string {
	switch c {
	case shared.CategoryConfiguration:
		return CategoryConfiguration
	case shared.CategoryProcessing:
		return CategoryProcessing
	case shared.CategoryConcurrency:
		return CategoryConcurrency
	case shared.CategoryNotFound:
		return CategoryNotFound
	default:
		return CategoryValidation
	}
}
