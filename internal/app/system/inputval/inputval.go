// Package inputval validates decoded request bodies using
// go-playground/validator.
//
// Define an input struct with validate tags and optional label tags,
// decode the request into it, and call Validate to get user-friendly
// error messages keyed by JSON field name.
//
// Example:
//
//	type CreatePageInput struct {
//	    Title string `json:"title" validate:"required,max=200" label:"Title"`
//	    Slug  string `json:"slug" validate:"omitempty,slug" label:"Slug"`
//	}
//
//	if res := inputval.Validate(in); res.HasErrors() {
//	    jsonutil.ValidationError(w, res.Fields())
//	    return
//	}
package inputval

import (
	"errors"
	"reflect"
	"strings"
	"sync"

	"github.com/dalemusser/stratawiki/internal/app/system/apperr"
	"github.com/dalemusser/stratawiki/internal/app/system/slugs"
	"github.com/dalemusser/stratawiki/internal/domain/models"
	"github.com/go-playground/validator/v10"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Result holds validation results with user-friendly messages.
type Result struct {
	Errors []FieldError
}

// FieldError represents a validation error for a single field.
type FieldError struct {
	Field   string
	Label   string
	Message string
}

// HasErrors returns true if there are any validation errors.
func (r *Result) HasErrors() bool {
	return len(r.Errors) > 0
}

// First returns the first error message, or empty string if no errors.
func (r *Result) First() string {
	if len(r.Errors) > 0 {
		return r.Errors[0].Message
	}
	return ""
}

// All returns all error messages joined with "; ".
func (r *Result) All() string {
	if len(r.Errors) == 0 {
		return ""
	}
	msgs := make([]string, len(r.Errors))
	for i, e := range r.Errors {
		msgs[i] = e.Message
	}
	return strings.Join(msgs, "; ")
}

// Fields returns messages keyed by field name, first error per field.
func (r *Result) Fields() map[string]string {
	out := make(map[string]string, len(r.Errors))
	for _, e := range r.Errors {
		if _, ok := out[e.Field]; !ok {
			out[e.Field] = e.Message
		}
	}
	return out
}

// Err returns the first error as a validation error, or nil.
func (r *Result) Err() error {
	if !r.HasErrors() {
		return nil
	}
	return apperr.Validation(r.First())
}

// customValidator is a singleton validator with custom rules registered.
var (
	customValidator *validator.Validate
	validatorOnce   sync.Once
)

// getValidator returns the singleton validator with custom rules.
func getValidator() *validator.Validate {
	validatorOnce.Do(func() {
		v := validator.New()

		// Report fields by their JSON names.
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			if name == "" {
				return f.Name
			}
			return name
		})

		// objectid: string is a valid MongoDB ObjectID hex
		_ = v.RegisterValidation("objectid", func(fl validator.FieldLevel) bool {
			return IsValidObjectID(fl.Field().String())
		})

		// slug: string is a well-formed page slug once normalized
		_ = v.RegisterValidation("slug", func(fl validator.FieldLevel) bool {
			return slugs.WellFormed(slugs.Normalize(fl.Field().String()))
		})

		// role: string names a known role
		_ = v.RegisterValidation("role", func(fl validator.FieldLevel) bool {
			_, ok := models.ParseRole(fl.Field().String())
			return ok
		})

		customValidator = v
	})
	return customValidator
}

// Validate validates a struct and returns a Result with user-friendly errors.
// The struct should have `validate` tags for rules and optional `label` tags
// for user-friendly field names.
//
// Besides the built-in validator rules, this package registers:
//   - objectid: field must be a valid MongoDB ObjectID hex string
//   - slug: field must be a well-formed page slug after normalizing
//   - role: field must be viewer, editor or admin
func Validate(s any) *Result {
	result := &Result{}

	err := getValidator().Struct(s)
	if err == nil {
		return result
	}

	labels := getFieldLabels(s)

	var errs validator.ValidationErrors
	if !errors.As(err, &errs) {
		result.Errors = append(result.Errors, FieldError{Message: "Input is invalid."})
		return result
	}
	for _, e := range errs {
		label := labels[e.Field()]
		if label == "" {
			label = e.Field()
		}
		result.Errors = append(result.Errors, FieldError{
			Field:   e.Field(),
			Label:   label,
			Message: formatMessage(label, e.Tag(), e.Param()),
		})
	}

	return result
}

// getFieldLabels extracts the "label" tag from struct fields, keyed by
// JSON field name.
func getFieldLabels(s any) map[string]string {
	labels := make(map[string]string)

	val := reflect.ValueOf(s)
	if val.Kind() == reflect.Ptr {
		val = val.Elem()
	}
	if val.Kind() != reflect.Struct {
		return labels
	}

	typ := val.Type()
	for i := 0; i < typ.NumField(); i++ {
		field := typ.Field(i)

		fieldName := field.Name
		if jsonTag := field.Tag.Get("json"); jsonTag != "" {
			parts := strings.Split(jsonTag, ",")
			if parts[0] != "" && parts[0] != "-" {
				fieldName = parts[0]
			}
		}

		if label := field.Tag.Get("label"); label != "" {
			labels[fieldName] = label
		}
	}

	return labels
}

// formatMessage creates a user-friendly message for a validation rule.
func formatMessage(label, rule, param string) string {
	switch rule {
	case "required":
		return label + " is required."
	case "oneof":
		return label + " must be one of: " + strings.ReplaceAll(param, " ", ", ") + "."
	case "min":
		return label + " must be at least " + param + " characters."
	case "max":
		return label + " must be at most " + param + " characters."
	case "gte":
		return label + " must be at least " + param + "."
	case "lte":
		return label + " must be at most " + param + "."
	case "url", "http_url":
		return label + " must be a valid URL."
	case "ip":
		return label + " must be a valid IP address."
	case "objectid":
		return label + " is not a valid ID."
	case "slug":
		return label + " may only contain lowercase letters, digits, '-' and '_'."
	case "role":
		return label + " must be one of: viewer, editor, admin."
	default:
		return label + " is invalid."
	}
}

// IsValidObjectID checks if the given string is a valid MongoDB ObjectID hex.
func IsValidObjectID(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return false
	}
	_, err := primitive.ObjectIDFromHex(s)
	return err == nil
}

// ParseObjectID parses a hex ObjectID from a path or body value. A malformed
// value is a validation error naming label.
func ParseObjectID(s, label string) (primitive.ObjectID, error) {
	id, err := primitive.ObjectIDFromHex(strings.TrimSpace(s))
	if err != nil {
		return primitive.NilObjectID, apperr.Validation(label + " is not a valid ID")
	}
	return id, nil
}

// ParseOptionalObjectID is ParseObjectID for nullable references: an empty
// or nil value yields nil.
func ParseOptionalObjectID(s *string, label string) (*primitive.ObjectID, error) {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil, nil
	}
	id, err := ParseObjectID(*s, label)
	if err != nil {
		return nil, err
	}
	return &id, nil
}
