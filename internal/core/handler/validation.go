package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"sort"
	"strings"

	"github.com/Nzyazin/paychain/internal/core/models"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

const maxBodyBytes = 1 << 20

// ValidationError lists the offending request fields.
type ValidationError struct {
	Details map[string]string
}

func (e *ValidationError) Error() string {
	if len(e.Details) == 0 {
		return "invalid request"
	}
	fields := make([]string, 0, len(e.Details))
	for f := range e.Details {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	return "invalid fields: " + strings.Join(fields, ", ")
}

func newValidationError(field, message string) *ValidationError {
	return &ValidationError{Details: map[string]string{field: message}}
}

// Validator checks decoded requests against their validate tags.
type Validator struct {
	validate *validator.Validate
}

func NewValidator() *Validator {
	v := validator.New()

	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	v.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			f, _ := d.Float64()
			return f
		}
		return nil
	}, decimal.Decimal{})

	return &Validator{validate: v}
}

func (v *Validator) Struct(s interface{}) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("validate request: %w", err)
	}

	details := make(map[string]string, len(fieldErrs))
	for _, fe := range fieldErrs {
		details[fieldPath(fe)] = describe(fe)
	}
	return &ValidationError{Details: details}
}

// ChatRequest also bounds the combined size of the conversation.
func (v *Validator) ChatRequest(req models.ChatRequest) error {
	if err := v.Struct(req); err != nil {
		return err
	}
	if n := req.TotalChars(); n > models.MaxConversationChars {
		return newValidationError("messages",
			fmt.Sprintf("combined content is %d characters, at most %d allowed", n, models.MaxConversationChars))
	}
	return nil
}

// fieldPath drops the top-level struct name from the namespace.
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return ns
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "oneof":
		return "must be one of: " + fe.Param()
	case "uuid":
		return "must be a UUID"
	case "gt":
		return "must be greater than " + fe.Param()
	case "lte":
		return "must be at most " + fe.Param()
	case "min":
		return "must have at least " + fe.Param() + " items"
	case "max":
		if fe.Kind() == reflect.String {
			return "must be at most " + fe.Param() + " characters"
		}
		return "must have at most " + fe.Param() + " items"
	default:
		return fmt.Sprintf("failed on '%s' validation", fe.Tag())
	}
}

func decodeRequest(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	defer r.Body.Close()

	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return newValidationError("body", "request body is too large")
		}
		return newValidationError("body", "invalid JSON payload")
	}
	return nil
}
