package validator

import (
	"errors"
	"reflect"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	govalidator "github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
)

var (
	transOnce sync.Once
	// trans is the English translator shared by every validator in the
	// process. Translation funcs are keyed by translator, so it must not change.
	trans ut.Translator
)

func translator() ut.Translator {
	transOnce.Do(func() {
		enLocale := en.New()
		trans, _ = ut.New(enLocale, enLocale).GetTranslator("en")
	})
	return trans
}

// Setup configures Gin's validator: JSON field names, the notblank rule and
// English messages. Call once during startup.
func Setup() {
	if v, ok := binding.Validator.Engine().(*govalidator.Validate); ok {
		Register(v)
	}
}

// NewStandalone returns a validator that reads the same binding tags as Gin,
// for validating structs outside a request.
func NewStandalone() *govalidator.Validate {
	v := govalidator.New()
	v.SetTagName("binding")
	Register(v)
	return v
}

// Register applies the project's tag name func, custom rules and
// translations to v.
func Register(v *govalidator.Validate) {
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	_ = v.RegisterValidation("notblank", notBlank)

	t := translator()
	_ = en_translations.RegisterDefaultTranslations(v, t)
	_ = v.RegisterTranslation("notblank", t,
		func(ut ut.Translator) error {
			return ut.Add("notblank", "{0} must not be blank", true)
		},
		func(ut ut.Translator, fe govalidator.FieldError) string {
			t, _ := ut.T("notblank", fe.Field())
			return t
		},
	)
}

// notBlank rejects strings made only of whitespace.
func notBlank(fl govalidator.FieldLevel) bool {
	if fl.Field().Kind() != reflect.String {
		return true
	}
	return strings.TrimSpace(fl.Field().String()) != ""
}

// TranslateErrors maps a binding error to field name → message. Errors that
// are not validation errors (bad JSON) land under "detail".
func TranslateErrors(err error) map[string]string {
	fields := make(map[string]string)

	var ve govalidator.ValidationErrors
	if errors.As(err, &ve) {
		for _, fe := range ve {
			fields[fe.Field()] = fe.Translate(translator())
		}
		return fields
	}

	fields["detail"] = err.Error()
	return fields
}

// Bind binds and validates the JSON body into dst.
func Bind(c *gin.Context, dst interface{}) map[string]string {
	if err := c.ShouldBindJSON(dst); err != nil {
		return TranslateErrors(err)
	}
	return nil
}
