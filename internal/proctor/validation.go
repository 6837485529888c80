package proctor

import (
	"sync"

	govalidator "github.com/go-playground/validator/v10"

	"github.com/stemsi/quizguard/internal/model"
	"github.com/stemsi/quizguard/internal/validator"
)

var (
	validateOnce sync.Once
	validate     *govalidator.Validate
)

// ValidateStudentInfo checks the identity fields required to start, using
// the same binding rules the server applies.
func ValidateStudentInfo(info model.StudentInfo) error {
	validateOnce.Do(func() {
		validate = validator.NewStandalone()
	})

	if err := validate.Struct(info); err != nil {
		return &ValidationError{Fields: validator.TranslateErrors(err)}
	}
	return nil
}
