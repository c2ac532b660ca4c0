package httpx

import (
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-finance/internal/shared"
)

// DateLayout is the wire format of calendar dates.
const DateLayout = "2006-01-02"

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate runs struct tag validation and reports every failure as one
// shared.ValidationError.
func Validate(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}
	verr := &shared.ValidationError{}
	for _, fe := range fieldErrs {
		verr.Addf("%s", fieldMessage(fe))
	}
	return verr
}

func fieldMessage(fe validator.FieldError) string {
	field := fe.Namespace()
	if i := strings.Index(field, "."); i >= 0 {
		field = field[i+1:]
	}
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "datetime":
		return field + " must be a date formatted as YYYY-MM-DD"
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", field, fe.Param())
	case "gt", "gte", "lt", "lte", "min", "max":
		return fmt.Sprintf("%s fails %s=%s", field, fe.Tag(), fe.Param())
	default:
		return fmt.Sprintf("%s is invalid (%s)", field, fe.Tag())
	}
}

// ParseDate parses an optional YYYY-MM-DD value, recording problems on verr.
func ParseDate(verr *shared.ValidationError, field, raw string) *time.Time {
	if raw == "" {
		return nil
	}
	t, err := time.Parse(DateLayout, raw)
	if err != nil {
		verr.Addf("%s must be a date formatted as YYYY-MM-DD", field)
		return nil
	}
	return &t
}

// ParseAmount parses a decimal amount, recording problems on verr.
func ParseAmount(verr *shared.ValidationError, field, raw string) decimal.Decimal {
	d, err := shared.ParseMoney(raw)
	if err != nil {
		verr.Addf("%s: %v", field, err)
		return decimal.Zero
	}
	return d
}

// IDParam reads a positive int64 route parameter.
func IDParam(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid %s", ErrBadRequest, name)
	}
	return id, nil
}

// KindParam reads the transaction kind route segment.
func KindParam(r *http.Request) (shared.TransactionKind, error) {
	kind, err := shared.ParseKindSegment(chi.URLParam(r, "kind"))
	if err != nil {
		return "", fmt.Errorf("%w: %v", shared.ErrNotFound, err)
	}
	return kind, nil
}

// Owner returns the tenant scope of the request.
func Owner(r *http.Request) (int64, error) {
	id, ok := shared.OwnerFromContext(r.Context())
	if !ok {
		return 0, shared.ErrOwnerMissing
	}
	return id, nil
}
