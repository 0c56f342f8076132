package quiz

import (
	"github.com/pkg/errors"

	"github.com/trezcool/elearn/core"
	"github.com/trezcool/elearn/core/answer"
	"github.com/trezcool/elearn/core/catalog"
)

var (
	errChoiceRequired = "a choice is required"
	errForeignChoice  = "choice does not belong to the question"
	errAnswerRequired = "an answer is required"
)

// Grade checks sub against question. Timed out submissions are never correct
// but a given choice must still belong to the question.
func Grade(question catalog.Question, sub Submission) (bool, error) {
	switch body := question.Body.(type) {
	case catalog.MultipleChoiceBody:
		if sub.ChoiceID == nil {
			if sub.TimedOut {
				return false, nil
			}
			return false, core.NewValidationError(nil, core.FieldError{Field: "choice_id", Error: errChoiceRequired})
		}
		choice, ok := body.Choice(*sub.ChoiceID)
		if !ok {
			return false, core.NewValidationError(nil, core.FieldError{Field: "choice_id", Error: errForeignChoice})
		}
		return !sub.TimedOut && choice.IsCorrect, nil

	case catalog.ShortAnswerBody:
		if core.CleanString(sub.Answer) == "" {
			if sub.TimedOut {
				return false, nil
			}
			return false, core.NewValidationError(nil, core.FieldError{Field: "answer", Error: errAnswerRequired})
		}
		return !sub.TimedOut && answer.Validate(sub.Answer, body.Answers), nil

	default:
		return false, errors.Wrapf(catalog.ErrUnknownQuestionType, "grading question %d", question.ID)
	}
}
