package catalog

import "github.com/pkg/errors"

type QuizType string

const (
	QuizTypeGeneral  QuizType = "general"
	QuizTypeTopic    QuizType = "topic"
	QuizTypePractice QuizType = "practice"
)

type QuestionType string

const (
	QuestionTypeMultipleChoice QuestionType = "multiple_choice"
	QuestionTypeShortAnswer    QuestionType = "short_answer"
)

var (
	// errors
	ErrNotFound            = errors.New("content not found")
	ErrUnknownQuestionType = errors.New("unknown question type")
)

type Curriculum struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Slug     string `json:"slug"`
	IsActive bool   `json:"is_active"`
}

type ClassLevel struct {
	ID           int64  `json:"id"`
	CurriculumID int64  `json:"curriculum_id"`
	Name         string `json:"name"`
	Slug         string `json:"slug"`
}

type Subject struct {
	ID           int64  `json:"id"`
	CurriculumID int64  `json:"curriculum_id"`
	ClassLevelID int64  `json:"class_level_id"`
	Name         string `json:"name"`
	Slug         string `json:"slug"`
}

type Topic struct {
	ID        int64  `json:"id"`
	SubjectID int64  `json:"subject_id"`
	Name      string `json:"name"`
	Slug      string `json:"slug"`
}

type Quiz struct {
	ID                     int64    `json:"id"`
	Title                  string   `json:"title"`
	QuizType               QuizType `json:"quiz_type"`
	CurriculumID           int64    `json:"curriculum_id"`
	ClassLevelID           int64    `json:"class_level_id"`
	SubjectID              int64    `json:"subject_id"`
	TopicID                *int64   `json:"topic_id,omitempty"`
	QuestionCount          int      `json:"question_count"`
	PerQuestionTimeSeconds int      `json:"per_question_time_seconds"`
	RandomizeQuestions     bool     `json:"randomize_questions"`
	RandomizeChoices       bool     `json:"randomize_choices"`
	PassingScore           int      `json:"passing_score"` // 0-100
	IsActive               bool     `json:"is_active"`
}

func (q Quiz) IsPractice() bool { return q.QuizType == QuizTypePractice }

type Choice struct {
	ID        int64  `json:"id"`
	Text      string `json:"text"`
	IsCorrect bool   `json:"-"`
	Order     int    `json:"order"`
}

// ShortAnswer is one accepted answer of a short answer Question.
type ShortAnswer struct {
	ID           int64  `json:"id"`
	Text         string `json:"text"`
	IsExactMatch bool   `json:"is_exact_match"`
}

// Body is the type specific part of a Question.
// It is only implemented by MultipleChoiceBody and ShortAnswerBody.
type Body interface {
	Type() QuestionType
	sealed()
}

type MultipleChoiceBody struct {
	Choices []Choice // ordered
}

func (MultipleChoiceBody) Type() QuestionType { return QuestionTypeMultipleChoice }
func (MultipleChoiceBody) sealed()            {}

// Choice finds one of the body's choices by ID.
func (b MultipleChoiceBody) Choice(id int64) (Choice, bool) {
	for _, c := range b.Choices {
		if c.ID == id {
			return c, true
		}
	}
	return Choice{}, false
}

func (b MultipleChoiceBody) CorrectChoiceIDs() []int64 {
	var ids []int64
	for _, c := range b.Choices {
		if c.IsCorrect {
			ids = append(ids, c.ID)
		}
	}
	return ids
}

type ShortAnswerBody struct {
	Answers []ShortAnswer
}

func (ShortAnswerBody) Type() QuestionType { return QuestionTypeShortAnswer }
func (ShortAnswerBody) sealed()            {}

type Question struct {
	ID           int64  `json:"id"`
	Text         string `json:"text"`
	Explanation  string `json:"explanation,omitempty"`
	IsPremium    bool   `json:"is_premium"`
	IsActive     bool   `json:"is_active"`
	CurriculumID int64  `json:"curriculum_id"`
	ClassLevelID int64  `json:"class_level_id"`
	SubjectID    int64  `json:"subject_id"`
	TopicID      int64  `json:"topic_id"`
	Body         Body   `json:"-"`
}

func (q Question) Type() QuestionType {
	if q.Body == nil {
		return ""
	}
	return q.Body.Type()
}

// Choices returns the ordered choices of a multiple choice question, nil otherwise.
func (q Question) Choices() []Choice {
	if mc, ok := q.Body.(MultipleChoiceBody); ok {
		return mc.Choices
	}
	return nil
}

// NewBody builds the Body matching typ out of the question's child records.
func NewBody(typ QuestionType, choices []Choice, answers []ShortAnswer) (Body, error) {
	switch typ {
	case QuestionTypeMultipleChoice:
		return MultipleChoiceBody{Choices: choices}, nil
	case QuestionTypeShortAnswer:
		return ShortAnswerBody{Answers: answers}, nil
	default:
		return nil, errors.Wrapf(ErrUnknownQuestionType, "%q", typ)
	}
}

// QuestionFilter applies AND operation on the set fields.
type QuestionFilter struct {
	CurriculumID *int64
	ClassLevelID *int64
	SubjectID    *int64
	TopicIDs     []int64 // any of
	IsActive     *bool
	IsPremium    *bool
}
