package boiledrepos_test

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/elearn/core/catalog"
	"github.com/trezcool/elearn/core/entitlement"
	"github.com/trezcool/elearn/core/quiz"
	"github.com/trezcool/elearn/storage/database/sqlboiler"
	"github.com/trezcool/elearn/tests"
)

const fixtures = `
TRUNCATE question_attempt, quiz_attempt, curriculum_access, subscription, free_sample_content,
	subscription_plan, short_answer, choice, question, quiz, topic, subject, class_level, curriculum RESTART IDENTITY CASCADE;
INSERT INTO curriculum (id, name, slug) VALUES (1, 'CBC', 'cbc'), (2, 'IGCSE', 'igcse');
INSERT INTO class_level (id, curriculum_id, name, slug) VALUES (10, 1, 'Grade 4', 'grade-4'), (20, 2, 'Year 7', 'year-7');
INSERT INTO subject (id, curriculum_id, class_level_id, name, slug) VALUES (100, 1, 10, 'Maths', 'maths');
INSERT INTO topic (id, subject_id, name, slug) VALUES (1000, 100, 'Fractions', 'fractions');
INSERT INTO quiz (id, title, quiz_type, curriculum_id, class_level_id, subject_id, question_count)
	VALUES (1, 'Maths', 'general', 1, 10, 100, 2);
INSERT INTO question (id, question_type, text, curriculum_id, class_level_id, subject_id, topic_id)
	VALUES (11, 'multiple_choice', 'q11', 1, 10, 100, 1000), (12, 'multiple_choice', 'q12', 1, 10, 100, 1000);
INSERT INTO choice (id, question_id, text, is_correct) VALUES (111, 11, 'a', TRUE), (121, 12, 'b', TRUE);
INSERT INTO subscription_plan (id, name, plan_type, all_curriculums, all_grade_levels, max_users) VALUES
	(1, 'Free', 'free', FALSE, FALSE, 1), (2, 'Basic', 'tier_one', FALSE, FALSE, 1), (4, 'Premium', 'tier_three', TRUE, FALSE, 5);
INSERT INTO free_sample_content (plan_id, curriculum_id, class_level_id) VALUES (1, 1, 10);
`

func prepare(t *testing.T) *sql.DB {
	db := testutil.PrepareDB(t)
	_, err := db.Exec(fixtures)
	require.NoError(t, err)
	return db
}

func newAttempt(userID string, now time.Time) quiz.Attempt {
	return quiz.Attempt{
		ID:             uuid.New().String(),
		UserID:         userID,
		QuizID:         1,
		Status:         quiz.StatusInProgress,
		Selection:      []int64{11, 12},
		StartedAt:      now,
		TotalQuestions: 2,
		Seed:           42,
	}
}

func TestEntitlementRepository(t *testing.T) {
	db := prepare(t)
	repo := boiledrepos.NewEntitlementRepository(db)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	_, err := db.Exec(`
		INSERT INTO subscription (id, user_id, plan_id, status, start_date, end_date) VALUES
			(1, 'u1', 2, 'active', $1, $2), (2, 'u1', 4, 'active', $1, $2),
			(3, 'u1', 4, 'canceled', $1, $2), (4, 'u1', 4, 'active', $3, $1)`,
		now.Add(-time.Hour), now.Add(time.Hour), now.Add(-2*time.Hour),
	)
	require.NoError(t, err)
	_, err = db.Exec("INSERT INTO curriculum_access (subscription_id, curriculum_id, class_level_id) VALUES (1, 1, 10), (1, 2, NULL)")
	require.NoError(t, err)

	subs, err := repo.ActiveSubscriptions(ctx, "u1", now)
	require.NoError(t, err)
	require.Len(t, subs, 2)
	assert.Equal(t, entitlement.PlanTypeTierOne, subs[0].Plan.PlanType)
	if assert.Len(t, subs[0].Accesses, 2) {
		assert.Equal(t, int64(10), *subs[0].Accesses[0].ClassLevelID)
		assert.Nil(t, subs[0].Accesses[1].ClassLevelID)
	}
	assert.True(t, subs[1].Plan.AllCurriculums)
	assert.Empty(t, subs[1].Accesses)

	none, err := repo.ActiveSubscriptions(ctx, "nobody", now)
	require.NoError(t, err)
	assert.Empty(t, none)

	plan, err := repo.FreePlan(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), plan.ID)
	assert.Len(t, plan.FreeSample, 1)

	grade := int64(20)
	require.NoError(t, repo.SetFreeSample(ctx, []entitlement.ContentRef{{CurriculumID: 1}, {CurriculumID: 2, ClassLevelID: &grade}}))
	plan, err = repo.FreePlan(ctx)
	require.NoError(t, err)
	if assert.Len(t, plan.FreeSample, 2) {
		assert.Nil(t, plan.FreeSample[0].ClassLevelID)
		assert.Equal(t, int64(20), *plan.FreeSample[1].ClassLevelID)
	}

	require.NoError(t, repo.SetFreeSample(ctx, nil))
	plan, err = repo.FreePlan(ctx)
	require.NoError(t, err)
	assert.Empty(t, plan.FreeSample)

	_, err = db.Exec("DELETE FROM subscription_plan WHERE plan_type = 'free'")
	require.NoError(t, err)
	_, err = repo.FreePlan(ctx)
	assert.ErrorIs(t, err, entitlement.ErrNoFreePlan)
}

func TestQuizRepository_Attempts(t *testing.T) {
	db := prepare(t)
	repo := boiledrepos.NewQuizRepository(db)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	_, err := repo.GetInProgressAttempt(ctx, "u1", 1)
	assert.ErrorIs(t, err, quiz.ErrAttemptNotFound)

	first, created, err := repo.CreateAttemptIfAbsent(ctx, newAttempt("u1", now))
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, []int64{11, 12}, first.Selection)

	again, created, err := repo.CreateAttemptIfAbsent(ctx, newAttempt("u1", now.Add(time.Second)))
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, again.ID)

	got, err := repo.GetAttempt(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, first, got)

	_, err = repo.GetAttempt(ctx, "not-a-uuid")
	assert.ErrorIs(t, err, quiz.ErrAttemptNotFound)
	_, err = repo.GetAttempt(ctx, uuid.New().String())
	assert.ErrorIs(t, err, quiz.ErrAttemptNotFound)

	finished, err := repo.MarkFinished(ctx, first.ID, quiz.StatusTimedOut, now.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, quiz.StatusTimedOut, finished.Status)

	// only the first transition sticks
	finished, err = repo.MarkFinished(ctx, first.ID, quiz.StatusCompleted, now.Add(2*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, quiz.StatusTimedOut, finished.Status)
	assert.Equal(t, now.Add(time.Minute), *finished.CompletedAt)

	second, created, err := repo.CreateAttemptIfAbsent(ctx, newAttempt("u1", now.Add(time.Hour)))
	require.NoError(t, err)
	assert.True(t, created)

	quizID := int64(1)
	atts, err := repo.ListAttempts(ctx, "u1", &quizID)
	require.NoError(t, err)
	if assert.Len(t, atts, 2) {
		assert.Equal(t, second.ID, atts[0].ID)
		assert.Equal(t, first.ID, atts[1].ID)
	}
}

func TestQuizRepository_ConcurrentCreate(t *testing.T) {
	db := prepare(t)
	repo := boiledrepos.NewQuizRepository(db)
	now := time.Now().UTC()

	const n = 8
	ids := make([]string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			att, _, err := repo.CreateAttemptIfAbsent(context.Background(), newAttempt("u2", now))
			assert.NoError(t, err)
			ids[i] = att.ID
		}(i)
	}
	wg.Wait()
	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
}

func TestQuizRepository_Answers(t *testing.T) {
	db := prepare(t)
	repo := boiledrepos.NewQuizRepository(db)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	att, _, err := repo.CreateAttemptIfAbsent(ctx, newAttempt("u1", now))
	require.NoError(t, err)

	_, err = repo.GetOrCreateQuestionAttempt(ctx, quiz.QuestionAttempt{AttemptID: uuid.New().String(), QuestionID: 11, ShownAt: now})
	assert.ErrorIs(t, err, quiz.ErrAttemptNotFound)

	shown, err := repo.GetOrCreateQuestionAttempt(ctx, quiz.QuestionAttempt{AttemptID: att.ID, QuestionID: 11, ShownAt: now})
	require.NoError(t, err)
	assert.False(t, shown.IsAnswered())

	reshown, err := repo.GetOrCreateQuestionAttempt(ctx, quiz.QuestionAttempt{AttemptID: att.ID, QuestionID: 11, ShownAt: now.Add(time.Minute)})
	require.NoError(t, err)
	assert.Equal(t, shown.ID, reshown.ID)
	assert.Equal(t, now, reshown.ShownAt)

	answered := now.Add(10 * time.Second)
	answer := func(qid, choice int64, correct bool) quiz.QuestionAttempt {
		return quiz.QuestionAttempt{
			AttemptID: att.ID, QuestionID: qid, SelectedChoiceID: catalog.Int64Ptr(choice),
			IsCorrect: catalog.BoolPtr(correct), TimeSpentSeconds: 10, ShownAt: now, AnsweredAt: &answered,
		}
	}
	score := func(a quiz.Attempt, tally quiz.Tally) (quiz.Attempt, error) {
		a.CorrectAnswers = tally.Correct
		a.Score = quiz.Score(tally.Correct, a.TotalQuestions)
		return a, nil
	}

	saved, err := repo.SaveAnswer(ctx, answer(11, 111, true), score)
	require.NoError(t, err)
	assert.Equal(t, 1, saved.CorrectAnswers)
	assert.Equal(t, 50, saved.Score)

	errBoom := errors.New("boom")
	_, err = repo.SaveAnswer(ctx, answer(12, 121, true), func(quiz.Attempt, quiz.Tally) (quiz.Attempt, error) {
		return quiz.Attempt{}, errBoom
	})
	assert.ErrorIs(t, err, errBoom)

	qas, err := repo.ListQuestionAttempts(ctx, att.ID)
	require.NoError(t, err)
	require.Len(t, qas, 1, "failed finalize must not store the answer")
	assert.Equal(t, shown.ID, qas[0].ID)
	assert.Equal(t, now, qas[0].ShownAt)

	// last write wins
	saved, err = repo.SaveAnswer(ctx, answer(11, 111, false), score)
	require.NoError(t, err)
	assert.Equal(t, 0, saved.CorrectAnswers)

	saved, err = repo.SaveAnswer(ctx, answer(12, 121, true), func(a quiz.Attempt, tally quiz.Tally) (quiz.Attempt, error) {
		assert.Equal(t, quiz.Tally{Answered: 2, Correct: 1}, tally)
		a, _ = score(a, tally)
		a.Status = quiz.StatusCompleted
		a.CompletedAt = &answered
		return a, nil
	})
	require.NoError(t, err)
	assert.Equal(t, quiz.StatusCompleted, saved.Status)
	assert.Equal(t, 50, saved.Score)

	_, err = repo.SaveAnswer(ctx, quiz.QuestionAttempt{AttemptID: uuid.New().String(), QuestionID: 11}, score)
	assert.ErrorIs(t, err, quiz.ErrAttemptNotFound)
}
