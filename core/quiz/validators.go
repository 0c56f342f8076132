package quiz

import (
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/elearn/core"
)

var (
	positiveIDsTag  = "positive_ids"
	positiveIDsText = "{0} must only contain positive ids"

	oneAnswerTag  = "one_answer"
	oneAnswerText = "provide either a choice or an answer"
)

// InitValidators registers the attempt payloads' custom validations.
// core.InitValidators must have been called on validate first.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(positiveIDsTag, positiveIDsValidation)
	core.RegisterCustomTranslation(validate, translator, positiveIDsTag, positiveIDsText)

	validate.RegisterStructValidation(submissionStructValidation, Submission{})
	core.RegisterCustomTranslation(validate, translator, oneAnswerTag, oneAnswerText)
}

func positiveIDsValidation(fl validator.FieldLevel) bool {
	ids, ok := fl.Field().Interface().([]int64)
	if !ok {
		return false
	}
	for _, id := range ids {
		if id <= 0 {
			return false
		}
	}
	return true
}

// submissionStructValidation rejects a Submission carrying both a choice and a free text answer
func submissionStructValidation(sl validator.StructLevel) {
	if sub, ok := sl.Current().Interface().(Submission); ok {
		if sub.ChoiceID != nil && sub.Answer != "" {
			sl.ReportError(sub.ChoiceID, "choice_id", "ChoiceID", oneAnswerTag, "")
			sl.ReportError(sub.Answer, "answer", "Answer", oneAnswerTag, "")
		}
	}
}
