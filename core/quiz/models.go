package quiz

import (
	"math"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/elearn/core/catalog"
)

type Status string

const (
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusTimedOut   Status = "timed_out"
)

type (
	Attempt struct {
		ID               string     `json:"id"`
		UserID           string     `json:"user_id"`
		QuizID           int64      `json:"quiz_id"`
		Status           Status     `json:"status"`
		Selection        []int64    `json:"selection"` // ordered question IDs, set once at creation
		StartedAt        time.Time  `json:"started_at"`
		CompletedAt      *time.Time `json:"completed_at"`
		TimeLimitSeconds int        `json:"time_limit_seconds"` // 0: untimed
		TotalQuestions   int        `json:"total_questions"`
		CorrectAnswers   int        `json:"correct_answers"`
		Score            int        `json:"score"` // 0-100
		Seed             int64      `json:"-"`
	}

	// QuestionAttempt is unique per (AttemptID, QuestionID).
	QuestionAttempt struct {
		ID               int64      `json:"id"`
		AttemptID        string     `json:"attempt_id"`
		QuestionID       int64      `json:"question_id"`
		SelectedChoiceID *int64     `json:"selected_choice_id"`
		ProvidedAnswer   *string    `json:"provided_answer"`
		IsCorrect        *bool      `json:"is_correct"`
		TimeSpentSeconds int        `json:"time_spent_seconds"`
		TimedOut         bool       `json:"timed_out"`
		ShownAt          time.Time  `json:"shown_at"`
		AnsweredAt       *time.Time `json:"answered_at"`
	}

	// Tally is the aggregate of the answered QuestionAttempts of an attempt.
	Tally struct {
		Answered int
		Correct  int
	}

	// StartOptions only apply to practice quizzes.
	StartOptions struct {
		TopicIDs      []int64 `json:"topic_ids" validate:"omitempty,unique,positive_ids"`
		QuestionCount int     `json:"question_count" validate:"gte=0,lte=200"`
	}

	Submission struct {
		QuestionID       int64  `json:"question_id" validate:"required"`
		ChoiceID         *int64 `json:"choice_id"`
		Answer           string `json:"answer" validate:"max=1000"`
		TimeSpentSeconds int    `json:"time_spent_seconds" validate:"gte=0"`
		TimedOut         bool   `json:"timed_out"`
	}

	ChoiceView struct {
		ID   int64  `json:"id"`
		Text string `json:"text"`
	}

	// QuestionView is a question as shown during an attempt: correct answers are left out.
	QuestionView struct {
		QuestionID       int64                `json:"question_id"`
		Type             catalog.QuestionType `json:"type"`
		Text             string               `json:"text"`
		Choices          []ChoiceView         `json:"choices,omitempty"` // display order
		Position         int                  `json:"position"`          // 1-based
		Total            int                  `json:"total"`
		RemainingSeconds *int                 `json:"remaining_seconds"`
		ShownAt          time.Time            `json:"shown_at"`
	}

	QuestionResult struct {
		QuestionID       int64                `json:"question_id"`
		Type             catalog.QuestionType `json:"type"`
		Text             string               `json:"text"`
		Explanation      string               `json:"explanation"`
		Choices          []ChoiceView         `json:"choices,omitempty"`
		Answered         bool                 `json:"answered"`
		SelectedChoiceID *int64               `json:"selected_choice_id"`
		ProvidedAnswer   *string              `json:"provided_answer"`
		IsCorrect        bool                 `json:"is_correct"`
		TimedOut         bool                 `json:"timed_out"`
		TimeSpentSeconds int                  `json:"time_spent_seconds"`
		CorrectChoiceIDs []int64              `json:"correct_choice_ids,omitempty"`
		AcceptedAnswers  []string             `json:"accepted_answers,omitempty"`
		MatchMethod      string               `json:"match_method,omitempty"`
	}

	Results struct {
		Attempt      Attempt          `json:"attempt"`
		QuizTitle    string           `json:"quiz_title"`
		PassingScore int              `json:"passing_score"`
		Passed       bool             `json:"passed"`
		Answered     int              `json:"answered"`
		Questions    []QuestionResult `json:"questions"`
	}
)

func (a Attempt) IsInProgress() bool { return a.Status == StatusInProgress }

// HasTimedOut reports whether the time limit elapsed at now. Untimed attempts never time out.
func (a Attempt) HasTimedOut(now time.Time) bool {
	if a.TimeLimitSeconds <= 0 {
		return false
	}
	return now.After(a.Deadline())
}

// Deadline is the time the attempt times out at, zero for untimed attempts.
func (a Attempt) Deadline() time.Time {
	if a.TimeLimitSeconds <= 0 {
		return time.Time{}
	}
	return a.StartedAt.Add(time.Duration(a.TimeLimitSeconds) * time.Second)
}

// RemainingSeconds is nil for untimed attempts.
func (a Attempt) RemainingSeconds(now time.Time) *int {
	if a.TimeLimitSeconds <= 0 {
		return nil
	}
	left := int(a.Deadline().Sub(now).Seconds())
	if left < 0 {
		left = 0
	}
	return &left
}

func (a Attempt) position(questionID int64) int {
	for i, id := range a.Selection {
		if id == questionID {
			return i + 1
		}
	}
	return 0
}

func (qa QuestionAttempt) IsAnswered() bool { return qa.AnsweredAt != nil }

// Score is round(100 * correct / total); 0 when there is no question.
func Score(correct, total int) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(100 * float64(correct) / float64(total)))
}

func (sub Submission) Validate(validate *validator.Validate) error {
	return validate.Struct(sub)
}

func (opts StartOptions) Validate(validate *validator.Validate) error {
	return validate.Struct(opts)
}
