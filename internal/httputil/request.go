package httputil

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/tendant/bewirtungsbeleg/internal/auth"
)

// MsgInvalidRequest is used when the body is not valid JSON.
const MsgInvalidRequest = "Ungültige Anfrage"

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("mailaddr", func(fl validator.FieldLevel) bool {
		return auth.ValidateEmail(fl.Field().String()) == nil
	})
	return v
}

// ValidationError carries the user-facing message of the first failed rule.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// IsTooLarge reports whether err comes from an exceeded body size limit.
func IsTooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr)
}

// Normalizer is implemented by request types that clean their input before
// validation.
type Normalizer interface {
	Normalize()
}

// DecodeJSON decodes the request body into dst and validates it. The message
// of a failed rule is taken from the field's msg tag.
func DecodeJSON(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		if IsTooLarge(err) {
			return err
		}
		return &ValidationError{Message: MsgInvalidRequest}
	}
	if n, ok := dst.(Normalizer); ok {
		n.Normalize()
	}
	return Validate(dst)
}

// Validate runs the validate tags of the struct pointed to by dst.
func Validate(dst any) error {
	err := validate.Struct(dst)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return fmt.Errorf("invalid validation target: %w", err)
	}

	first := fieldErrs[0]
	return &ValidationError{Field: first.Field(), Message: messageFor(dst, first)}
}

func messageFor(dst any, fe validator.FieldError) string {
	t := reflect.TypeOf(dst)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if f, ok := t.FieldByName(fe.StructField()); ok {
		if msg := f.Tag.Get("msg"); msg != "" {
			return msg
		}
	}

	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s ist erforderlich", fe.Field())
	case "mailaddr", "email":
		return "Ungültige E-Mail-Adresse"
	case "min":
		return fmt.Sprintf("%s muss mindestens %s Zeichen lang sein", fe.Field(), fe.Param())
	case "max":
		return fmt.Sprintf("%s darf höchstens %s Zeichen lang sein", fe.Field(), fe.Param())
	default:
		return MsgInvalidRequest
	}
}
