package service

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	apperrors "studyplan/backend/internal/errors"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// validateInput runs struct tag validation and folds failures into ErrInvalidInput.
func validateInput(input interface{}) error {
	err := validate.Struct(input)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("%w: %v", apperrors.ErrInvalidInput, err)
	}

	problems := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		switch fe.Tag() {
		case "required":
			problems = append(problems, fe.Field()+" is required")
		case "oneof":
			problems = append(problems, fe.Field()+" must be one of "+fe.Param())
		case "min", "max":
			problems = append(problems, fmt.Sprintf("%s must be %s %s", fe.Field(), boundWord(fe.Tag()), fe.Param()))
		default:
			problems = append(problems, fe.Field()+" is invalid")
		}
	}
	return fmt.Errorf("%w: %s", apperrors.ErrInvalidInput, strings.Join(problems, "; "))
}

func boundWord(tag string) string {
	if tag == "min" {
		return "at least"
	}
	return "at most"
}
