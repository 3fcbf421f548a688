// Package validation holds the input rule tables for request bodies.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/raakeshmj/keygate/internal/apperr"
)

var (
	usernamePattern = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_-]*$`)
	prefixPattern   = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)
	hasLetter       = regexp.MustCompile(`[a-zA-Z]`)
	hasDigit        = regexp.MustCompile(`[0-9]`)

	weakPasswords = map[string]struct{}{
		"123456": {}, "password": {}, "qwerty": {}, "123456789": {}, "12345678": {},
	}
)

var (
	once     sync.Once
	instance *validator.Validate
)

// Validator returns the shared validator with the custom tags registered.
func Validator() *validator.Validate {
	once.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
			if name == "-" {
				return ""
			}
			return name
		})
		_ = v.RegisterValidation("username", func(fl validator.FieldLevel) bool {
			return len(UsernameProblems(fl.Field().String())) == 0
		})
		_ = v.RegisterValidation("password", func(fl validator.FieldLevel) bool {
			return len(PasswordProblems(fl.Field().String())) == 0
		})
		_ = v.RegisterValidation("prefix", func(fl validator.FieldLevel) bool {
			return len(PrefixProblems(fl.Field().String())) == 0
		})
		instance = v
	})
	return instance
}

func UsernameProblems(s string) []string {
	var out []string
	if strings.TrimSpace(s) == "" {
		out = append(out, "Username cannot be empty")
	}
	if len(s) < 3 {
		out = append(out, "Username must be at least 3 characters")
	}
	if len(s) > 50 {
		out = append(out, "Username must not exceed 50 characters")
	}
	if !usernamePattern.MatchString(s) {
		if s != "" && !hasLetter.MatchString(s[:1]) {
			out = append(out, "Username must start with a letter")
		} else {
			out = append(out, "Username can only contain letters, numbers, underscore and dash")
		}
	}
	return out
}

func PasswordProblems(s string) []string {
	var out []string
	if len(s) < 6 {
		out = append(out, "Password must be at least 6 characters")
	}
	if len(s) > 128 {
		out = append(out, "Password must not exceed 128 characters")
	}
	if !hasLetter.MatchString(s) {
		out = append(out, "Password must contain at least one letter")
	}
	if !hasDigit.MatchString(s) {
		out = append(out, "Password must contain at least one number")
	}
	if _, weak := weakPasswords[strings.ToLower(s)]; weak {
		out = append(out, "Password is too weak, please choose a stronger password")
	}
	return out
}

func PrefixProblems(s string) []string {
	var out []string
	if strings.TrimSpace(s) == "" {
		out = append(out, "Prefix cannot be empty")
	}
	if len(s) < 2 {
		out = append(out, "Prefix must be at least 2 characters")
	}
	if len(s) > 20 {
		out = append(out, "Prefix must not exceed 20 characters")
	}
	if !prefixPattern.MatchString(s) {
		out = append(out, "Prefix can only contain letters, numbers and underscore")
	}
	return out
}

// fieldCodes maps a JSON field to the code reported when its rule fails.
var fieldCodes = map[string]apperr.Code{
	"username":  apperr.UsernameValidationFailed,
	"password":  apperr.PasswordValidationFailed,
	"prefix":    apperr.PrefixValidationFailed,
	"amount":    apperr.InvalidAmountValue,
	"length":    apperr.InvalidLengthValue,
	"key":       apperr.InvalidKeyType,
	"id_device": apperr.InvalidFieldType,
}

// Struct validates v and converts the first failure into an *apperr.Error.
// Missing required fields are reported together under MissingFields.
func Struct(v any) error {
	err := Validator().Struct(v)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apperr.Wrap(apperr.InvalidRequestFormat, err, "invalid request")
	}

	var missing []string
	for _, fe := range verrs {
		if fe.Tag() == "required" {
			missing = append(missing, fe.Field())
		}
	}
	if len(missing) > 0 {
		return apperr.Newf(apperr.MissingFields, "Missing required fields: %s", strings.Join(missing, ", ")).
			WithDetail("fields", missing)
	}

	fe := verrs[0]
	code, ok := fieldCodes[fe.Field()]
	if !ok {
		code = apperr.InvalidRequestFormat
	}
	return apperr.New(code, message(fe)).WithDetail("field", fe.Field()).WithDetail("errors", problems(fe))
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "username":
		return "Username validation failed"
	case "password":
		return "Password validation failed"
	case "prefix":
		return "Prefix validation failed"
	case "gte", "lte", "min", "max":
		return fmt.Sprintf("%s must be an integer between 1 and 30", fe.Field())
	}
	return fmt.Sprintf("%s is invalid", fe.Field())
}

func problems(fe validator.FieldError) []string {
	s, _ := fe.Value().(string)
	switch fe.Tag() {
	case "username":
		return UsernameProblems(s)
	case "password":
		return PasswordProblems(s)
	case "prefix":
		return PrefixProblems(s)
	}
	return []string{message(fe)}
}
