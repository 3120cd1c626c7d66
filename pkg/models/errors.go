package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
)

// ErrInvalidRecord is matched by every ValidationError.
var ErrInvalidRecord = errors.New("invalid record")

// ValidationError reports the first violation found in a record. It is
// scoped to that record: callers report it and move on to the next one.
type ValidationError struct {
	Field  string // JSON path of the offending field, e.g. members[2].email.
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%v: %s", ErrInvalidRecord, e.Reason)
	}
	return fmt.Sprintf("%v: %s %s", ErrInvalidRecord, e.Field, e.Reason)
}

// Is makes errors.Is(err, ErrInvalidRecord) true for any ValidationError.
func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidRecord
}

func invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

var (
	validate *validator.Validate
	once     sync.Once
)

// getValidator returns the shared validator, reporting fields by json name.
func getValidator() *validator.Validate {
	once.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
	})
	return validate
}

// checkRequired runs the struct tags of s and returns the first failure.
func checkRequired(s interface{}, prefix string) error {
	err := getValidator().Struct(s)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return invalid(strings.TrimSuffix(prefix, "."), err.Error())
	}
	first := fieldErrs[0]
	reason := "is invalid"
	if first.Tag() == "required" {
		reason = "is required"
	}
	return invalid(prefix+first.Field(), reason)
}

// checkVar validates a single value against a validator tag.
func checkVar(value interface{}, tag, field, reason string) error {
	if err := getValidator().Var(value, tag); err != nil {
		return invalid(field, reason)
	}
	return nil
}

// decodeError turns a JSON decoding failure into a ValidationError.
func decodeError(err error) error {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		return invalid(typeErr.Field, fmt.Sprintf("must be %s, got %s", typeErr.Type, typeErr.Value))
	}
	var parseErr *time.ParseError
	if errors.As(err, &parseErr) {
		return invalid("", fmt.Sprintf("bad timestamp: %v", err))
	}
	return invalid("", fmt.Sprintf("malformed JSON: %v", err))
}
