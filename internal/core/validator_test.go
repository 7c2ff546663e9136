package core

import (
	"strings"
	"testing"

	"tipkoro/internal/types"
)

type profileForm struct {
	Username string `json:"username" validate:"required,username"`
	Bio      string `json:"bio" validate:"max=200"`
	Twitter  string `json:"twitter" validate:"omitempty,http_url"`
	Email    string `json:"email" validate:"omitempty,email"`
}

type paymentForm struct {
	Amount      float64 `json:"amount" validate:"gt=0"`
	Phone       string  `json:"phone" validate:"omitempty,phone"`
	Method      string  `json:"method" validate:"required,payout_method"`
	AccountType string  `json:"account_type" validate:"omitempty,oneof=supporter creator"`
}

func TestValidator_ValidStruct(t *testing.T) {
	v := NewValidator(discardLogger())
	err := v.ValidateStruct(profileForm{
		Username: "rafi_99",
		Bio:      "Illustrator from Dhaka",
		Twitter:  "https://x.com/rafi",
	})
	if err != nil {
		t.Errorf("expected no error, got %v", err)
	}
}

func TestValidator_ItemizesEveryField(t *testing.T) {
	v := NewValidator(discardLogger())
	err := v.ValidateStruct(profileForm{
		Username: "ab",
		Bio:      strings.Repeat("x", 201),
		Twitter:  "x.com/rafi",
		Email:    "not-an-email",
	})

	appErr, ok := err.(*types.AppError)
	if !ok {
		t.Fatalf("expected *types.AppError, got %T", err)
	}
	errs, ok := appErr.Details["validation_errors"].([]ValidationError)
	if !ok {
		t.Fatalf("expected itemized validation_errors, got %v", appErr.Details)
	}

	want := map[string]types.ErrorCode{
		"username": types.ErrCodeValidationInvalidFormat,
		"bio":      types.ErrCodeValidationTooLong,
		"twitter":  types.ErrCodeValidationInvalidURL,
		"email":    types.ErrCodeValidationInvalidEmail,
	}
	if len(errs) != len(want) {
		t.Fatalf("expected %d errors, got %+v", len(want), errs)
	}
	for _, e := range errs {
		code, ok := want[e.Field]
		if !ok {
			t.Errorf("unexpected field %q", e.Field)
			continue
		}
		if e.Code != string(code) {
			t.Errorf("field %s: expected %s, got %s", e.Field, code, e.Code)
		}
		if e.Message == "" {
			t.Errorf("field %s: missing message", e.Field)
		}
	}
	if appErr.Code != types.ErrorCode(errs[0].Code) {
		t.Errorf("error code should match the first failure")
	}
}

func TestValidator_CustomTags(t *testing.T) {
	v := NewValidator(discardLogger())

	tests := []struct {
		name     string
		form     paymentForm
		wantCode types.ErrorCode
	}{
		{
			name:     "zero amount",
			form:     paymentForm{Amount: 0, Method: "bkash"},
			wantCode: types.ErrCodeValidationInvalidAmount,
		},
		{
			name:     "bad phone",
			form:     paymentForm{Amount: 10, Phone: "01700-abc", Method: "bkash"},
			wantCode: types.ErrCodeValidationInvalidFormat,
		},
		{
			name:     "unknown payout method",
			form:     paymentForm{Amount: 10, Method: "paypal"},
			wantCode: types.ErrCodeValidationInvalidFormat,
		},
		{
			name:     "missing payout method",
			form:     paymentForm{Amount: 10},
			wantCode: types.ErrCodeValidationMissingField,
		},
		{
			name:     "bad account type",
			form:     paymentForm{Amount: 10, Method: "nagad", AccountType: "admin"},
			wantCode: types.ErrCodeValidationAccountType,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.ValidateStruct(tt.form)
			if got := types.CodeOf(err); got != tt.wantCode {
				t.Errorf("expected %s, got %s (%v)", tt.wantCode, got, err)
			}
		})
	}

	if err := v.ValidateStruct(paymentForm{Amount: 10, Phone: "+880 1700-000000", Method: "bank"}); err != nil {
		t.Errorf("expected valid payment form, got %v", err)
	}
}

func TestValidator_NestedFieldPath(t *testing.T) {
	type outer struct {
		Profile profileForm `json:"profile"`
	}
	v := NewValidator(discardLogger())
	result := v.ValidateStructWithWarnings(outer{Profile: profileForm{}})

	if result.IsValid() {
		t.Fatal("expected errors")
	}
	if result.Errors[0].Field != "profile.username" {
		t.Errorf("expected nested json path, got %q", result.Errors[0].Field)
	}
}

func TestValidator_NonStruct(t *testing.T) {
	v := NewValidator(discardLogger())
	result := v.ValidateStructWithWarnings("not a struct")
	if result.IsValid() {
		t.Fatal("expected an error for a non-struct value")
	}
	if result.Errors[0].Code != string(types.ErrCodeInternalUnexpected) {
		t.Errorf("expected internal error code, got %s", result.Errors[0].Code)
	}
}
