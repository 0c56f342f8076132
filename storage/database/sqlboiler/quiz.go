package boiledrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/friendsofgo/errors"
	"github.com/google/uuid"
	"github.com/volatiletech/null/v8"
	"github.com/volatiletech/sqlboiler/v4/boil"
	"github.com/volatiletech/sqlboiler/v4/queries"
	"github.com/volatiletech/sqlboiler/v4/types"
	"github.com/volatiletech/strmangle"

	"github.com/trezcool/elearn/core"
	"github.com/trezcool/elearn/core/quiz"
)

const (
	attemptCols = "id, user_id, quiz_id, status, selection, started_at, completed_at, " +
		"time_limit_seconds, total_questions, correct_answers, score, seed"
	questionAttemptCols = "id, attempt_id, question_id, selected_choice_id, provided_answer, is_correct, " +
		"time_spent_seconds, timed_out, shown_at, answered_at"
)

type (
	attemptRow struct {
		ID               string           `boil:"id"`
		UserID           string           `boil:"user_id"`
		QuizID           int64            `boil:"quiz_id"`
		Status           string           `boil:"status"`
		Selection        types.Int64Array `boil:"selection"`
		StartedAt        time.Time        `boil:"started_at"`
		CompletedAt      null.Time        `boil:"completed_at"`
		TimeLimitSeconds int              `boil:"time_limit_seconds"`
		TotalQuestions   int              `boil:"total_questions"`
		CorrectAnswers   int              `boil:"correct_answers"`
		Score            int              `boil:"score"`
		Seed             int64            `boil:"seed"`
	}

	questionAttemptRow struct {
		ID               int64       `boil:"id"`
		AttemptID        string      `boil:"attempt_id"`
		QuestionID       int64       `boil:"question_id"`
		SelectedChoiceID null.Int64  `boil:"selected_choice_id"`
		ProvidedAnswer   null.String `boil:"provided_answer"`
		IsCorrect        null.Bool   `boil:"is_correct"`
		TimeSpentSeconds int         `boil:"time_spent_seconds"`
		TimedOut         bool        `boil:"timed_out"`
		ShownAt          time.Time   `boil:"shown_at"`
		AnsweredAt       null.Time   `boil:"answered_at"`
	}

	tallyRow struct {
		Answered int `boil:"answered"`
		Correct  int `boil:"correct"`
	}
)

func (row attemptRow) unboil() quiz.Attempt {
	att := quiz.Attempt{
		ID:               row.ID,
		UserID:           row.UserID,
		QuizID:           row.QuizID,
		Status:           quiz.Status(row.Status),
		Selection:        []int64(row.Selection),
		StartedAt:        row.StartedAt.UTC(),
		TimeLimitSeconds: row.TimeLimitSeconds,
		TotalQuestions:   row.TotalQuestions,
		CorrectAnswers:   row.CorrectAnswers,
		Score:            row.Score,
		Seed:             row.Seed,
	}
	if row.CompletedAt.Valid {
		t := row.CompletedAt.Time.UTC()
		att.CompletedAt = &t
	}
	if att.Selection == nil {
		att.Selection = []int64{}
	}
	return att
}

func (row questionAttemptRow) unboil() quiz.QuestionAttempt {
	qa := quiz.QuestionAttempt{
		ID:               row.ID,
		AttemptID:        row.AttemptID,
		QuestionID:       row.QuestionID,
		SelectedChoiceID: row.SelectedChoiceID.Ptr(),
		ProvidedAnswer:   row.ProvidedAnswer.Ptr(),
		IsCorrect:        row.IsCorrect.Ptr(),
		TimeSpentSeconds: row.TimeSpentSeconds,
		TimedOut:         row.TimedOut,
		ShownAt:          row.ShownAt.UTC(),
	}
	if row.AnsweredAt.Valid {
		t := row.AnsweredAt.Time.UTC()
		qa.AnsweredAt = &t
	}
	return qa
}

type quizRepository struct {
	db core.DB
}

var _ quiz.Repository = (*quizRepository)(nil) // interface compliance check

func NewQuizRepository(db core.DB) *quizRepository {
	return &quizRepository{db: db}
}

// trapNoRowsErr maps psql "no rows" err to quiz.ErrAttemptNotFound
func (repo quizRepository) trapNoRowsErr(err error, msg string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return quiz.ErrAttemptNotFound
	}
	return errors.Wrap(err, msg)
}

func (repo quizRepository) getAttempt(ctx context.Context, exec boil.ContextExecutor, id string, forUpdate bool) (quiz.Attempt, error) {
	if _, err := uuid.Parse(id); err != nil {
		return quiz.Attempt{}, quiz.ErrAttemptNotFound
	}
	q := "SELECT " + attemptCols + " FROM quiz_attempt WHERE id = $1"
	if forUpdate {
		q += " FOR UPDATE"
	}
	var row attemptRow
	if err := queries.Raw(q, id).Bind(ctx, exec, &row); err != nil {
		return quiz.Attempt{}, repo.trapNoRowsErr(err, "finding attempt")
	}
	return row.unboil(), nil
}

func (repo quizRepository) GetInProgressAttempt(ctx context.Context, userID string, quizID int64) (quiz.Attempt, error) {
	var row attemptRow
	q := "SELECT " + attemptCols + " FROM quiz_attempt WHERE user_id = $1 AND quiz_id = $2 AND status = $3"
	if err := queries.Raw(q, userID, quizID, quiz.StatusInProgress).Bind(ctx, repo.db, &row); err != nil {
		return quiz.Attempt{}, repo.trapNoRowsErr(err, "finding attempt in progress")
	}
	return row.unboil(), nil
}

func (repo quizRepository) CreateAttemptIfAbsent(ctx context.Context, attempt quiz.Attempt) (quiz.Attempt, bool, error) {
	q := "INSERT INTO quiz_attempt (" + attemptCols + ") VALUES (" + strmangle.Placeholders(true, 12, 1, 1) + ")" +
		" ON CONFLICT (user_id, quiz_id) WHERE status = 'in_progress' DO NOTHING" +
		" RETURNING " + attemptCols
	var row attemptRow
	err := queries.Raw(q,
		attempt.ID, attempt.UserID, attempt.QuizID, attempt.Status, types.Int64Array(attempt.Selection),
		attempt.StartedAt.UTC(), null.TimeFromPtr(attempt.CompletedAt), attempt.TimeLimitSeconds,
		attempt.TotalQuestions, attempt.CorrectAnswers, attempt.Score, attempt.Seed,
	).Bind(ctx, repo.db, &row)
	if err == nil {
		return row.unboil(), true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return quiz.Attempt{}, false, errors.Wrap(err, "inserting attempt")
	}

	// lost the race: the winner is returned
	existing, err := repo.GetInProgressAttempt(ctx, attempt.UserID, attempt.QuizID)
	if err != nil {
		return quiz.Attempt{}, false, err
	}
	return existing, false, nil
}

func (repo quizRepository) GetAttempt(ctx context.Context, id string) (quiz.Attempt, error) {
	return repo.getAttempt(ctx, repo.db, id, false)
}

func (repo quizRepository) ListAttempts(ctx context.Context, userID string, quizID *int64) ([]quiz.Attempt, error) {
	var rows []*attemptRow
	q := "SELECT " + attemptCols + " FROM quiz_attempt WHERE user_id = $1"
	args := []interface{}{userID}
	if quizID != nil {
		q += " AND quiz_id = $2"
		args = append(args, *quizID)
	}
	q += " ORDER BY started_at DESC, id DESC"

	if err := queries.Raw(q, args...).Bind(ctx, repo.db, &rows); err != nil {
		return nil, errors.Wrap(err, "listing attempts")
	}
	atts := make([]quiz.Attempt, 0, len(rows))
	for _, row := range rows {
		atts = append(atts, row.unboil())
	}
	return atts, nil
}

func (repo quizRepository) GetOrCreateQuestionAttempt(ctx context.Context, qa quiz.QuestionAttempt) (quiz.QuestionAttempt, error) {
	ins := "INSERT INTO question_attempt (attempt_id, question_id, time_spent_seconds, timed_out, shown_at)" +
		" VALUES (" + strmangle.Placeholders(true, 5, 1, 1) + ")" +
		" ON CONFLICT (attempt_id, question_id) DO NOTHING"
	_, err := queries.Raw(ins, qa.AttemptID, qa.QuestionID, qa.TimeSpentSeconds, qa.TimedOut, qa.ShownAt.UTC()).
		ExecContext(ctx, repo.db)
	if err != nil {
		if isForeignKeyViolation(err) {
			return quiz.QuestionAttempt{}, quiz.ErrAttemptNotFound
		}
		return quiz.QuestionAttempt{}, errors.Wrap(err, "inserting question attempt")
	}

	var row questionAttemptRow
	q := "SELECT " + questionAttemptCols + " FROM question_attempt WHERE attempt_id = $1 AND question_id = $2"
	if err = queries.Raw(q, qa.AttemptID, qa.QuestionID).Bind(ctx, repo.db, &row); err != nil {
		return quiz.QuestionAttempt{}, repo.trapNoRowsErr(err, "finding question attempt")
	}
	return row.unboil(), nil
}

func (repo quizRepository) ListQuestionAttempts(ctx context.Context, attemptID string) ([]quiz.QuestionAttempt, error) {
	if _, err := uuid.Parse(attemptID); err != nil {
		return []quiz.QuestionAttempt{}, nil
	}
	var rows []*questionAttemptRow
	q := "SELECT " + questionAttemptCols + " FROM question_attempt WHERE attempt_id = $1 ORDER BY id"
	if err := queries.Raw(q, attemptID).Bind(ctx, repo.db, &rows); err != nil {
		return nil, errors.Wrap(err, "listing question attempts")
	}
	qas := make([]quiz.QuestionAttempt, 0, len(rows))
	for _, row := range rows {
		qas = append(qas, row.unboil())
	}
	return qas, nil
}

func (repo quizRepository) SaveAnswer(
	ctx context.Context,
	qa quiz.QuestionAttempt,
	finalize func(quiz.Attempt, quiz.Tally) (quiz.Attempt, error),
) (quiz.Attempt, error) {
	var saved quiz.Attempt
	err := inTx(ctx, repo.db, func(tx *sql.Tx) error {
		// serializes the answers of an attempt
		att, err := repo.getAttempt(ctx, tx, qa.AttemptID, true)
		if err != nil {
			return err
		}
		saved = att

		upsert := "INSERT INTO question_attempt (attempt_id, question_id, selected_choice_id, provided_answer, " +
			"is_correct, time_spent_seconds, timed_out, shown_at, answered_at)" +
			" VALUES (" + strmangle.Placeholders(true, 9, 1, 1) + ")" +
			" ON CONFLICT (attempt_id, question_id) DO UPDATE SET" +
			" selected_choice_id = EXCLUDED.selected_choice_id, provided_answer = EXCLUDED.provided_answer," +
			" is_correct = EXCLUDED.is_correct, time_spent_seconds = EXCLUDED.time_spent_seconds," +
			" timed_out = EXCLUDED.timed_out, answered_at = EXCLUDED.answered_at"
		_, err = queries.Raw(upsert,
			qa.AttemptID, qa.QuestionID, null.Int64FromPtr(qa.SelectedChoiceID), null.StringFromPtr(qa.ProvidedAnswer),
			null.BoolFromPtr(qa.IsCorrect), qa.TimeSpentSeconds, qa.TimedOut, qa.ShownAt.UTC(), null.TimeFromPtr(qa.AnsweredAt),
		).ExecContext(ctx, tx)
		if err != nil {
			return errors.Wrap(err, "saving answer")
		}

		var tally tallyRow
		count := "SELECT COUNT(*) FILTER (WHERE answered_at IS NOT NULL) AS answered," +
			" COUNT(*) FILTER (WHERE answered_at IS NOT NULL AND is_correct) AS correct" +
			" FROM question_attempt WHERE attempt_id = $1"
		if err = queries.Raw(count, qa.AttemptID).Bind(ctx, tx, &tally); err != nil {
			return errors.Wrap(err, "counting answers")
		}

		updated, err := finalize(att, quiz.Tally{Answered: tally.Answered, Correct: tally.Correct})
		if err != nil {
			return err
		}

		var row attemptRow
		upd := "UPDATE quiz_attempt SET status = $2, completed_at = $3, correct_answers = $4, score = $5" +
			" WHERE id = $1 RETURNING " + attemptCols
		err = queries.Raw(upd,
			att.ID, updated.Status, null.TimeFromPtr(updated.CompletedAt), updated.CorrectAnswers, updated.Score,
		).Bind(ctx, tx, &row)
		if err != nil {
			return errors.Wrap(err, "updating attempt")
		}
		saved = row.unboil()
		return nil
	})
	return saved, err
}

func (repo quizRepository) MarkFinished(ctx context.Context, id string, status quiz.Status, completedAt time.Time) (quiz.Attempt, error) {
	if _, err := uuid.Parse(id); err != nil {
		return quiz.Attempt{}, quiz.ErrAttemptNotFound
	}
	upd := "UPDATE quiz_attempt SET status = $2, completed_at = $3 WHERE id = $1 AND status = $4"
	if _, err := queries.Raw(upd, id, status, completedAt.UTC(), quiz.StatusInProgress).ExecContext(ctx, repo.db); err != nil {
		return quiz.Attempt{}, errors.Wrap(err, "finishing attempt")
	}
	return repo.GetAttempt(ctx, id)
}
