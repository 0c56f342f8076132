package dummydb

import (
	"context"
	"sort"
	"time"

	"github.com/trezcool/elearn/core/quiz"
)

type quizRepository struct {
	db *attemptTable
}

var _ quiz.Repository = (*quizRepository)(nil) // interface compliance check

func NewQuizRepository(db *DB) quiz.Repository {
	return &quizRepository{db: db.attempt}
}

func copyAttempt(att *quiz.Attempt) quiz.Attempt {
	cp := *att
	cp.Selection = append([]int64(nil), att.Selection...)
	if att.CompletedAt != nil {
		t := *att.CompletedAt
		cp.CompletedAt = &t
	}
	return cp
}

// inProgress must be called with the lock held.
func (repo *quizRepository) inProgress(userID string, quizID int64) (*quiz.Attempt, bool) {
	for _, att := range repo.db.attempts {
		if att.UserID == userID && att.QuizID == quizID && att.IsInProgress() {
			return att, true
		}
	}
	return nil, false
}

func (repo *quizRepository) GetInProgressAttempt(_ context.Context, userID string, quizID int64) (quiz.Attempt, error) {
	repo.db.Lock()
	defer repo.db.Unlock()
	if att, ok := repo.inProgress(userID, quizID); ok {
		return copyAttempt(att), nil
	}
	return quiz.Attempt{}, quiz.ErrAttemptNotFound
}

func (repo *quizRepository) CreateAttemptIfAbsent(_ context.Context, attempt quiz.Attempt) (quiz.Attempt, bool, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if att, ok := repo.inProgress(attempt.UserID, attempt.QuizID); ok {
		return copyAttempt(att), false, nil
	}
	stored := copyAttempt(&attempt)
	repo.db.attempts[attempt.ID] = &stored
	repo.db.questions[attempt.ID] = make(map[int64]*quiz.QuestionAttempt)
	return copyAttempt(&stored), true, nil
}

func (repo *quizRepository) GetAttempt(_ context.Context, id string) (quiz.Attempt, error) {
	repo.db.Lock()
	defer repo.db.Unlock()
	if att, ok := repo.db.attempts[id]; ok {
		return copyAttempt(att), nil
	}
	return quiz.Attempt{}, quiz.ErrAttemptNotFound
}

func (repo *quizRepository) ListAttempts(_ context.Context, userID string, quizID *int64) ([]quiz.Attempt, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	atts := make([]quiz.Attempt, 0)
	for _, att := range repo.db.attempts {
		if att.UserID == userID && (quizID == nil || att.QuizID == *quizID) {
			atts = append(atts, copyAttempt(att))
		}
	}
	sort.Slice(atts, func(i, j int) bool {
		if !atts[i].StartedAt.Equal(atts[j].StartedAt) {
			return atts[i].StartedAt.After(atts[j].StartedAt)
		}
		return atts[i].ID > atts[j].ID
	})
	return atts, nil
}

func (repo *quizRepository) GetOrCreateQuestionAttempt(_ context.Context, qa quiz.QuestionAttempt) (quiz.QuestionAttempt, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	qas, ok := repo.db.questions[qa.AttemptID]
	if !ok {
		return quiz.QuestionAttempt{}, quiz.ErrAttemptNotFound
	}
	if stored, ok := qas[qa.QuestionID]; ok {
		return *stored, nil
	}
	repo.db.qaPK++
	qa.ID = repo.db.qaPK
	qas[qa.QuestionID] = &qa
	return qa, nil
}

func (repo *quizRepository) ListQuestionAttempts(_ context.Context, attemptID string) ([]quiz.QuestionAttempt, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	list := make([]quiz.QuestionAttempt, 0, len(repo.db.questions[attemptID]))
	for _, qa := range repo.db.questions[attemptID] {
		list = append(list, *qa)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	return list, nil
}

func (repo *quizRepository) SaveAnswer(
	_ context.Context,
	qa quiz.QuestionAttempt,
	finalize func(quiz.Attempt, quiz.Tally) (quiz.Attempt, error),
) (quiz.Attempt, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	att, ok := repo.db.attempts[qa.AttemptID]
	if !ok {
		return quiz.Attempt{}, quiz.ErrAttemptNotFound
	}
	qas := repo.db.questions[qa.AttemptID]

	// work on copies: nothing changes if finalize fails
	answers := make([]quiz.QuestionAttempt, 0, len(qas)+1)
	for qid, stored := range qas {
		if qid != qa.QuestionID {
			answers = append(answers, *stored)
		}
	}
	saved := qa
	if stored, ok := qas[qa.QuestionID]; ok {
		saved.ID = stored.ID
		saved.ShownAt = stored.ShownAt
	}
	answers = append(answers, saved)

	updated, err := finalize(copyAttempt(att), quiz.CountTally(answers))
	if err != nil {
		return copyAttempt(att), err
	}

	if saved.ID == 0 {
		repo.db.qaPK++
		saved.ID = repo.db.qaPK
	}
	qas[saved.QuestionID] = &saved
	stored := copyAttempt(&updated)
	repo.db.attempts[att.ID] = &stored
	return copyAttempt(&stored), nil
}

func (repo *quizRepository) MarkFinished(_ context.Context, id string, status quiz.Status, completedAt time.Time) (quiz.Attempt, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	att, ok := repo.db.attempts[id]
	if !ok {
		return quiz.Attempt{}, quiz.ErrAttemptNotFound
	}
	if att.IsInProgress() {
		att.Status = status
		att.CompletedAt = &completedAt
	}
	return copyAttempt(att), nil
}
