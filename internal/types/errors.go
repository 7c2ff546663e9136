package types

import (
	"errors"
	"maps"
	"net/http"
	"strings"
)

// ErrorCode is the machine-readable error identifier sent to clients. Its
// prefix decides the HTTP status.
type ErrorCode string

const (
	// Validation (400)
	ErrCodeValidationMissingField      ErrorCode = "validation_missing_required_field"
	ErrCodeValidationInvalidFormat     ErrorCode = "validation_invalid_format"
	ErrCodeValidationTooLong           ErrorCode = "validation_too_long"
	ErrCodeValidationInvalidEmail      ErrorCode = "validation_invalid_email"
	ErrCodeValidationInvalidURL        ErrorCode = "validation_invalid_url"
	ErrCodeValidationInvalidAmount     ErrorCode = "validation_invalid_amount"
	ErrCodeValidationInvalidJSON       ErrorCode = "validation_invalid_json"
	ErrCodeValidationGatewayRejected   ErrorCode = "validation_gateway_rejected"
	ErrCodeValidationPaymentUnverified ErrorCode = "validation_payment_not_verified"
	ErrCodeValidationAccountType       ErrorCode = "validation_invalid_account_type"

	// Auth (401)
	ErrCodeAuthTokenMissing     ErrorCode = "auth_token_missing"
	ErrCodeAuthTokenInvalid     ErrorCode = "auth_token_invalid"
	ErrCodeAuthTokenExpired     ErrorCode = "auth_token_expired"
	ErrCodeAuthSignatureInvalid ErrorCode = "auth_signature_invalid"

	// Permission (403)
	ErrCodePermissionNotOwner ErrorCode = "permission_not_owner"

	// Limits (429)
	ErrCodeRateLimit ErrorCode = "rate_limit_exceeded"

	// Not Found (404)
	ErrCodeNotFoundProfile ErrorCode = "not_found_profile"
	ErrCodeNotFoundCreator ErrorCode = "not_found_creator"
	ErrCodeNotFoundIntent  ErrorCode = "not_found_intent"
	ErrCodeNotFoundSignup  ErrorCode = "not_found_signup"

	// Conflict (409)
	ErrCodeConflictUsernameTaken       ErrorCode = "conflict_username_taken"
	ErrCodeConflictPendingSubscription ErrorCode = "conflict_pending_subscription"
	ErrCodeConflictOnboarding          ErrorCode = "conflict_onboarding_transition"
	ErrCodeConflictInsufficientBalance ErrorCode = "conflict_insufficient_balance"
	ErrCodeConflictIntentResolved      ErrorCode = "conflict_intent_resolved"
	ErrCodeConflictReferenceMismatch   ErrorCode = "conflict_reference_mismatch"

	// Internal/Upstream (500/502)
	ErrCodeInternalDB                   ErrorCode = "internal_database_error"
	ErrCodeInternalUnexpected           ErrorCode = "internal_unexpected_error"
	ErrCodeInternalGatewayNotConfigured ErrorCode = "internal_gateway_not_configured"
	ErrCodeInternalWebhookSecretMissing ErrorCode = "internal_webhook_secret_missing"
	ErrCodeUpstreamGateway              ErrorCode = "upstream_gateway_unavailable"
	ErrCodeUpstreamAdminSink            ErrorCode = "upstream_admin_sink_unavailable"
	ErrCodeUpstreamUnavailable          ErrorCode = "upstream_unavailable"
	ErrCodeUpstreamRateLimited          ErrorCode = "upstream_rate_limited"
)

var statusByPrefix = []struct {
	prefix string
	status int
}{
	{"validation_", http.StatusBadRequest},
	{"auth_", http.StatusUnauthorized},
	{"permission_", http.StatusForbidden},
	{"rate_limit_", http.StatusTooManyRequests},
	{"not_found_", http.StatusNotFound},
	{"conflict_", http.StatusConflict},
	{"upstream_", http.StatusBadGateway},
}

// HTTPStatus maps c by prefix; internal_ and unknown codes are 500.
func (c ErrorCode) HTTPStatus() int {
	for _, m := range statusByPrefix {
		if strings.HasPrefix(string(c), m.prefix) {
			return m.status
		}
	}
	return http.StatusInternalServerError
}

// CodeOf returns the code of the first AppError in err's chain, or "".
func CodeOf(err error) ErrorCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

// AppError carries a client-safe code and message. Err is logged but never
// serialized.
type AppError struct {
	Code    ErrorCode      `json:"code"`
	Message string         `json:"message"`
	Err     error          `json:"-"`
	Details map[string]any `json:"details,omitempty"`
}

func (e *AppError) Error() string { return string(e.Code) + ": " + e.Message }

func (e *AppError) Unwrap() error { return e.Err }

func (e *AppError) HTTPStatus() int { return e.Code.HTTPStatus() }

// WithDetails returns a copy with details merged over the existing ones.
func (e *AppError) WithDetails(details map[string]any) *AppError {
	out := *e
	out.Details = make(map[string]any, len(e.Details)+len(details))
	maps.Copy(out.Details, e.Details)
	maps.Copy(out.Details, details)
	return &out
}

func NewAppError(code ErrorCode, message string, err error) *AppError {
	return &AppError{Code: code, Message: message, Err: err}
}

func NewAppErrorWithDetails(code ErrorCode, message string, err error, details map[string]any) *AppError {
	return &AppError{Code: code, Message: message, Err: err, Details: details}
}
