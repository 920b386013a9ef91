package projector

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"ndisview/internal/model"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	// Amounts are checked by sign so uint256 values never pass through an int.
	v.RegisterCustomTypeFunc(func(f reflect.Value) interface{} {
		if w, ok := f.Interface().(model.Wei); ok {
			return w.Sign()
		}
		return nil
	}, model.Wei{})
	return v
}

// validateRecord checks required fields without coercing anything.
func validateRecord(idx int, r model.Record) error {
	if err := validate.Struct(r); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return &MalformedRecordError{Index: idx, Field: fe.Field(), Reason: reasonFor(fe)}
		}
		return &MalformedRecordError{Index: idx, Reason: err.Error()}
	}
	if strings.TrimSpace(r.RequesterAddress) == "" {
		return &MalformedRecordError{Index: idx, Field: "requesterAddress", Reason: "blank"}
	}
	return nil
}

func reasonFor(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "missing"
	case "gte":
		return fmt.Sprintf("must be >= %s", fe.Param())
	case "oneof":
		return fmt.Sprintf("%v is not one of [%s]", fe.Value(), fe.Param())
	}
	return fmt.Sprintf("failed %q", fe.Tag())
}
