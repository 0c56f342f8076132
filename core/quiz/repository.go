package quiz

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

var (
	// errors
	ErrAttemptNotFound      = errors.New("attempt not found")
	ErrAttemptNotInProgress = errors.New("attempt is not in progress")
	ErrAttemptTimedOut      = errors.New("attempt timed out")
	ErrQuizNotFound         = errors.New("quiz not found")
)

type Repository interface {
	// GetInProgressAttempt returns ErrAttemptNotFound when userID has no attempt in progress on quizID.
	GetInProgressAttempt(ctx context.Context, userID string, quizID int64) (Attempt, error)
	// CreateAttemptIfAbsent stores attempt unless its user already has one in progress on the same quiz.
	// That one is returned instead, with created = false.
	CreateAttemptIfAbsent(ctx context.Context, attempt Attempt) (stored Attempt, created bool, err error)
	GetAttempt(ctx context.Context, id string) (Attempt, error)
	// ListAttempts returns the attempts of userID, newest first. quizID is optional.
	ListAttempts(ctx context.Context, userID string, quizID *int64) ([]Attempt, error)
	// GetOrCreateQuestionAttempt returns the stored QuestionAttempt of (qa.AttemptID, qa.QuestionID), storing qa if none.
	GetOrCreateQuestionAttempt(ctx context.Context, qa QuestionAttempt) (QuestionAttempt, error)
	ListQuestionAttempts(ctx context.Context, attemptID string) ([]QuestionAttempt, error)
	// SaveAnswer upserts the answer of qa then, in the same transaction, calls finalize with the locked attempt
	// and a fresh Tally of its QuestionAttempts. The attempt returned by finalize is stored.
	// Nothing is stored when finalize fails.
	SaveAnswer(ctx context.Context, qa QuestionAttempt, finalize func(Attempt, Tally) (Attempt, error)) (Attempt, error)
	// MarkFinished moves attempt id to status, stamping completedAt, only if it is still in progress.
	// The stored attempt is returned either way.
	MarkFinished(ctx context.Context, id string, status Status, completedAt time.Time) (Attempt, error)
}

// CountTally computes the Tally of qas.
func CountTally(qas []QuestionAttempt) Tally {
	var t Tally
	for _, qa := range qas {
		if !qa.IsAnswered() {
			continue
		}
		t.Answered++
		if qa.IsCorrect != nil && *qa.IsCorrect {
			t.Correct++
		}
	}
	return t
}
