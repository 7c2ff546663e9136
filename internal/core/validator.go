package core

import (
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"tipkoro/internal/types"
)

// ValidationError is one itemized field failure.
type ValidationError = types.ValidationError

// ValidationResult separates blocking errors from advisory warnings.
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []string
}

// IsValid reports whether the result has no errors. Warnings do not count.
func (r ValidationResult) IsValid() bool {
	return len(r.Errors) == 0
}

// Validator wraps go-playground/validator with the domain tags:
//
//	username       3-30 characters of [a-zA-Z0-9_]
//	phone          digits, spaces, parentheses, dashes, leading plus
//	http_url       http:// or https:// followed by something
//	payout_method  bkash, nagad, rocket or bank
//
// Field names in errors are the JSON names.
type Validator struct {
	validate *validator.Validate
	logger   *slog.Logger
}

// NewValidator creates a new Validator and registers custom validation tags.
func NewValidator(logger *slog.Logger) *Validator {
	if logger == nil {
		logger = slog.Default()
	}
	v := validator.New(validator.WithRequiredStructEnabled())

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		if name == "" {
			return fld.Name
		}
		return name
	})

	// Registration only fails on an empty tag or nil func.
	_ = v.RegisterValidation("username", func(fl validator.FieldLevel) bool {
		return types.IsValidUsername(strings.TrimSpace(fl.Field().String()))
	})
	_ = v.RegisterValidation("phone", func(fl validator.FieldLevel) bool {
		return types.IsValidPhone(fl.Field().String())
	})
	_ = v.RegisterValidation("http_url", func(fl validator.FieldLevel) bool {
		return types.IsValidLink(fl.Field().String())
	})
	_ = v.RegisterValidation("payout_method", func(fl validator.FieldLevel) bool {
		return types.PayoutMethod(fl.Field().String()).IsValid()
	})

	return &Validator{validate: v, logger: logger}
}

// ValidateStruct validates s and returns an AppError itemizing every failed
// field under details.validation_errors. The error code is that of the first
// failure.
func (v *Validator) ValidateStruct(s any) error {
	result := v.ValidateStructWithWarnings(s)
	if result.IsValid() {
		return nil
	}
	first := result.Errors[0]
	return types.NewAppErrorWithDetails(types.ErrorCode(first.Code), "request validation failed", nil, map[string]any{
		"validation_errors": result.Errors,
	})
}

// ValidateStructWithWarnings returns every failure instead of an error.
func (v *Validator) ValidateStructWithWarnings(s any) ValidationResult {
	err := v.validate.Struct(s)
	if err == nil {
		return ValidationResult{}
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		// InvalidValidationError: a programming error, not bad input.
		v.logger.Error("validator called with unsupported value", "error", err)
		return ValidationResult{Errors: []ValidationError{{
			Code:    string(types.ErrCodeInternalUnexpected),
			Message: "validation could not be performed",
		}}}
	}

	out := make([]ValidationError, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		out = append(out, ValidationError{
			Field:   fieldPath(fe),
			Code:    string(tagToErrorCode(fe)),
			Message: messageFor(fe),
		})
	}
	return ValidationResult{Errors: out}
}

// fieldPath drops the top-level struct name from the namespace.
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return fe.Field()
}

func isNumeric(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}

// tagToErrorCode maps a failed tag onto the API error code.
func tagToErrorCode(fe validator.FieldError) types.ErrorCode {
	switch fe.Tag() {
	case "required", "required_if", "required_unless", "required_with":
		return types.ErrCodeValidationMissingField
	case "email":
		return types.ErrCodeValidationInvalidEmail
	case "http_url", "url":
		return types.ErrCodeValidationInvalidURL
	case "max", "lte", "lt":
		if isNumeric(fe.Kind()) {
			return types.ErrCodeValidationInvalidAmount
		}
		return types.ErrCodeValidationTooLong
	case "gt", "gte", "min":
		if isNumeric(fe.Kind()) {
			return types.ErrCodeValidationInvalidAmount
		}
		return types.ErrCodeValidationInvalidFormat
	case "oneof":
		if fe.Field() == "account_type" {
			return types.ErrCodeValidationAccountType
		}
		return types.ErrCodeValidationInvalidFormat
	default:
		return types.ErrCodeValidationInvalidFormat
	}
}

func messageFor(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "http_url", "url":
		return "must be a valid http or https URL"
	case "username":
		return "must be 3-30 characters of letters, numbers and underscores"
	case "phone":
		return "may only contain digits, spaces, parentheses, dashes and a leading plus"
	case "payout_method":
		return "must be one of bkash, nagad, rocket, bank"
	case "max", "lte":
		if isNumeric(fe.Kind()) {
			return fmt.Sprintf("must be at most %s", fe.Param())
		}
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	case "min", "gte":
		if isNumeric(fe.Kind()) {
			return fmt.Sprintf("must be at least %s", fe.Param())
		}
		return fmt.Sprintf("must be at least %s characters", fe.Param())
	case "gt":
		return fmt.Sprintf("must be greater than %s", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of %s", strings.ReplaceAll(fe.Param(), " ", ", "))
	default:
		return "is invalid"
	}
}
