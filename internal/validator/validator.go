package validator

import (
	"errors"
	"reflect"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	govalidator "github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
	"github.com/toanlab/lms-backend/internal/model"
)

// trans is the singleton English translator for validation errors.
var trans ut.Translator

// quizTags are the domain tags understood by request structs.
var quizTags = []struct {
	tag     string
	fn      govalidator.Func
	message string
}{
	{"qlevel", validLevel, "{0} must be one of Nhận biết, Thông hiểu, Vận dụng, Vận dụng cao"},
	{"qtype", validQuestionType, "{0} must be one of Trắc nghiệm, Đúng/Sai, Trả lời ngắn"},
	{"tfmark", validMark, "{0} must be Đ, S or N"},
}

// Setup registers the validator with English translations and the quiz tags
// on Gin's binding engine. Call once during application startup.
func Setup() {
	v, ok := binding.Validator.Engine().(*govalidator.Validate)
	if !ok {
		return
	}
	// Use JSON tag name for field names in error messages.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	enLocale := en.New()
	uni := ut.New(enLocale, enLocale)
	trans, _ = uni.GetTranslator("en")
	_ = en_translations.RegisterDefaultTranslations(v, trans)
	registerQuizTags(v)
}

func registerQuizTags(v *govalidator.Validate) {
	for _, qt := range quizTags {
		_ = v.RegisterValidation(qt.tag, qt.fn)
		msg := qt.message
		tag := qt.tag
		_ = v.RegisterTranslation(tag, trans,
			func(ut ut.Translator) error { return ut.Add(tag, msg, true) },
			func(ut ut.Translator, fe govalidator.FieldError) string {
				t, _ := ut.T(tag, fe.Field())
				return t
			},
		)
	}
}

func validLevel(fl govalidator.FieldLevel) bool {
	return model.Level(fl.Field().String()).Valid()
}

func validQuestionType(fl govalidator.FieldLevel) bool {
	return model.QuestionType(fl.Field().String()).Valid()
}

func validMark(fl govalidator.FieldLevel) bool {
	_, err := model.ParseMark(fl.Field().String())
	return err == nil
}

// TranslateErrors takes a binding/validation error and returns a map of
// field name to human-readable message. Anything that is not a validation
// error (JSON syntax, wrong types) lands under "detail".
func TranslateErrors(err error) map[string]string {
	fields := make(map[string]string)

	var ve govalidator.ValidationErrors
	if errors.As(err, &ve) {
		for _, fe := range ve {
			if trans != nil {
				fields[fe.Field()] = fe.Translate(trans)
			} else {
				fields[fe.Field()] = fe.Error()
			}
		}
		return fields
	}

	fields["detail"] = err.Error()
	return fields
}

// Bind binds and validates the request body into dst.
// Returns nil on success or a translated field error map on failure.
func Bind(c *gin.Context, dst any) map[string]string {
	if err := c.ShouldBindJSON(dst); err != nil {
		return TranslateErrors(err)
	}
	return nil
}
