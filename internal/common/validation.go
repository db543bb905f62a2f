package common

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/joseph-ayodele/invoice-pipeline/constants"
)

// ValidationError represents validation failures
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation failed for field '%s' with value '%v': %s", e.Field, e.Value, e.Message)
}

// Validator provides validation utilities
type Validator struct {
	errors []ValidationError
}

// NewValidator creates a new validator instance
func NewValidator() *Validator {
	return &Validator{
		errors: make([]ValidationError, 0),
	}
}

// Field validates a field and collects errors
func (v *Validator) Field(fieldName string, value interface{}, rules ...ValidationRule) *Validator {
	for _, rule := range rules {
		if err := rule(fieldName, value); err != nil {
			v.errors = append(v.errors, *err)
		}
	}
	return v
}

// HasErrors returns true if there are validation errors
func (v *Validator) HasErrors() bool {
	return len(v.errors) > 0
}

// Errors returns all validation errors
func (v *Validator) Errors() []ValidationError {
	return v.errors
}

// Error returns nil or an AppError wrapping ErrValidation.
func (v *Validator) Error() error {
	if !v.HasErrors() {
		return nil
	}
	return NewAppError(CodeInvalidInput, v.ErrorMessage(), ErrValidation)
}

// ErrorMessage returns a combined error message as string
func (v *Validator) ErrorMessage() string {
	if !v.HasErrors() {
		return ""
	}

	var messages []string
	for _, err := range v.errors {
		messages = append(messages, err.Error())
	}
	return strings.Join(messages, "; ")
}

// ValidationRule represents a single validation rule
type ValidationRule func(fieldName string, value interface{}) *ValidationError

// stringValue unwraps string and *string; ok is false for nil pointers and other types.
func stringValue(value interface{}) (string, bool) {
	switch v := value.(type) {
	case string:
		return v, true
	case *string:
		if v == nil {
			return "", false
		}
		return *v, true
	}
	return "", false
}

// Required - Common validation rules
func Required(fieldName string, value interface{}) *ValidationError {
	str, ok := stringValue(value)
	if value == nil || (ok && strings.TrimSpace(str) == "") {
		return &ValidationError{Field: fieldName, Value: value, Message: "is required"}
	}
	if p, isPtr := value.(*string); isPtr && p == nil {
		return &ValidationError{Field: fieldName, Value: value, Message: "is required"}
	}
	return nil
}

func MaxLength(max int) ValidationRule {
	return func(fieldName string, value interface{}) *ValidationError {
		str, ok := stringValue(value)
		if !ok {
			return nil
		}
		if utf8.RuneCountInString(str) > max {
			return &ValidationError{
				Field:   fieldName,
				Value:   value,
				Message: fmt.Sprintf("must be at most %d characters", max),
			}
		}
		return nil
	}
}

// MinCount requires an int value of at least n, e.g. the number of documents in a batch.
func MinCount(n int) ValidationRule {
	return func(fieldName string, value interface{}) *ValidationError {
		count, ok := value.(int)
		if ok && count >= n {
			return nil
		}
		return &ValidationError{Field: fieldName, Value: value, Message: fmt.Sprintf("must be at least %d", n)}
	}
}

var (
	innRegex = regexp.MustCompile(`^(\d{10}|\d{12})$`)
	kppRegex = regexp.MustCompile(`^\d{9}$`)
)

// TaxID accepts a 10-digit (organization) or 12-digit (individual) INN. Absent values pass.
func TaxID(fieldName string, value interface{}) *ValidationError {
	str, ok := stringValue(value)
	if !ok || str == "" {
		return nil
	}
	if !innRegex.MatchString(str) {
		return &ValidationError{Field: fieldName, Value: str, Message: "must be 10 or 12 digits"}
	}
	return nil
}

// KPP accepts a 9-digit registration reason code. Absent values pass.
func KPP(fieldName string, value interface{}) *ValidationError {
	str, ok := stringValue(value)
	if !ok || str == "" {
		return nil
	}
	if !kppRegex.MatchString(str) {
		return &ValidationError{Field: fieldName, Value: str, Message: "must be 9 digits"}
	}
	return nil
}

// CategoryKey accepts a key or display name of a known category. Absent values pass.
func CategoryKey(fieldName string, value interface{}) *ValidationError {
	str, ok := stringValue(value)
	if !ok || str == "" {
		return nil
	}
	if _, known := constants.Canonicalize(str); !known {
		return &ValidationError{Field: fieldName, Value: str, Message: "is not a known category"}
	}
	return nil
}
