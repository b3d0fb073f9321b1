// Package validate checks user input against struct tags and turns
// validator failures into readable messages.
package validate

import (
	"errors"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

var walletAddress = regexp.MustCompile(`^[a-z]+:[a-z0-9]+$`)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	// Report json names so messages match what users see.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})

	v.RegisterValidation("wallet", func(fl validator.FieldLevel) bool {
		return walletAddress.MatchString(fl.Field().String())
	})

	return v
}

// Error lists every failed field.
type Error struct {
	Problems []string
}

func (e *Error) Error() string {
	return strings.Join(e.Problems, ", ")
}

// IsValidation reports whether err came from Struct.
func IsValidation(err error) bool {
	var vErr *Error
	return errors.As(err, &vErr)
}

// Struct validates s and returns an *Error describing each failure.
func Struct(s any) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}

	problems := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		field := fe.Field()
		param := fe.Param()

		switch fe.Tag() {
		case "required":
			problems = append(problems, field+" is required")
		case "min":
			problems = append(problems, field+" must be at least "+param+" characters")
		case "max":
			problems = append(problems, field+" must be at most "+param+" characters")
		case "email":
			problems = append(problems, field+" must be a valid email")
		case "wallet":
			problems = append(problems, field+" must be a wallet address")
		case "wallet|email":
			problems = append(problems, field+" must be a wallet address or email")
		case "hexcolor":
			problems = append(problems, field+" must be a hex color")
		default:
			problems = append(problems, field+" is invalid")
		}
	}

	return &Error{Problems: problems}
}
