package sqlxrepos_test

import (
	"context"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/trezcool/elearn/core/catalog"
	"github.com/trezcool/elearn/storage/database/sqlx"
)

const schema = `
CREATE TABLE curriculum (id INTEGER PRIMARY KEY, name TEXT NOT NULL, slug TEXT NOT NULL, is_active BOOLEAN NOT NULL);
CREATE TABLE class_level (id INTEGER PRIMARY KEY, curriculum_id INTEGER NOT NULL, name TEXT NOT NULL, slug TEXT NOT NULL);
CREATE TABLE topic (id INTEGER PRIMARY KEY, subject_id INTEGER NOT NULL, name TEXT NOT NULL, slug TEXT NOT NULL);
CREATE TABLE quiz (
	id INTEGER PRIMARY KEY, title TEXT NOT NULL, quiz_type TEXT NOT NULL,
	curriculum_id INTEGER NOT NULL, class_level_id INTEGER NOT NULL, subject_id INTEGER NOT NULL, topic_id INTEGER,
	question_count INTEGER NOT NULL, per_question_time_seconds INTEGER NOT NULL,
	randomize_questions BOOLEAN NOT NULL, randomize_choices BOOLEAN NOT NULL,
	passing_score INTEGER NOT NULL, is_active BOOLEAN NOT NULL
);
CREATE TABLE question (
	id INTEGER PRIMARY KEY, question_type TEXT NOT NULL, text TEXT NOT NULL, explanation TEXT NOT NULL DEFAULT '',
	is_premium BOOLEAN NOT NULL, is_active BOOLEAN NOT NULL,
	curriculum_id INTEGER NOT NULL, class_level_id INTEGER NOT NULL, subject_id INTEGER NOT NULL, topic_id INTEGER NOT NULL
);
CREATE TABLE choice (id INTEGER PRIMARY KEY, question_id INTEGER NOT NULL, text TEXT NOT NULL, is_correct BOOLEAN NOT NULL, sort_order INTEGER NOT NULL);
CREATE TABLE short_answer (id INTEGER PRIMARY KEY, question_id INTEGER NOT NULL, text TEXT NOT NULL, is_exact_match BOOLEAN NOT NULL);

INSERT INTO curriculum VALUES (1, 'CBC', 'cbc', 1), (2, 'IGCSE', 'igcse', 1), (3, '8-4-4', '8-4-4', 0);
INSERT INTO class_level VALUES (10, 1, 'Grade 4', 'grade-4'), (11, 1, 'Grade 5', 'grade-5'), (20, 2, 'Year 7', 'year-7');
INSERT INTO topic VALUES (1000, 100, 'Fractions', 'fractions'), (1001, 100, 'Geometry', 'geometry');
INSERT INTO quiz VALUES
	(1, 'Maths', 'general', 1, 10, 100, NULL, 4, 15, 0, 1, 50, 1),
	(2, 'Fractions', 'topic', 1, 10, 100, 1000, 2, 0, 1, 0, 60, 1);
INSERT INTO question VALUES
	(11, 'multiple_choice', 'question 11', 'because 112', 0, 1, 1, 10, 100, 1000),
	(12, 'short_answer', 'capital of France?', '', 0, 1, 1, 10, 100, 1000),
	(13, 'multiple_choice', 'question 13', '', 0, 1, 1, 10, 100, 1001),
	(14, 'multiple_choice', 'question 14', '', 1, 1, 1, 10, 100, 1001),
	(15, 'multiple_choice', 'question 15', '', 0, 0, 1, 10, 100, 1000);
INSERT INTO choice VALUES
	(111, 11, 'one', 0, 2), (112, 11, 'two', 1, 1), (113, 11, 'three', 0, 2),
	(131, 13, 'yes', 1, 0), (132, 13, 'no', 0, 0),
	(141, 14, 'yes', 1, 0), (151, 15, 'yes', 1, 0);
INSERT INTO short_answer VALUES (121, 12, 'Paris, France', 0), (122, 12, 'Paris', 1);
`

func prepareRepo(t *testing.T) catalog.Repository {
	db, err := sqlx.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1) // every connection gets its own in-memory db
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(schema)
	require.NoError(t, err)
	return sqlxrepos.NewCatalogRepository(db)
}

func TestCatalogRepository_Curricula(t *testing.T) {
	repo := prepareRepo(t)
	ctx := context.Background()

	all, err := repo.ListCurricula(ctx, false)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	active, err := repo.ListCurricula(ctx, true)
	require.NoError(t, err)
	if assert.Len(t, active, 2) {
		assert.Equal(t, "cbc", active[0].Slug)
		assert.Equal(t, "igcse", active[1].Slug)
	}

	cur, err := repo.GetCurriculum(ctx, 3)
	require.NoError(t, err)
	assert.False(t, cur.IsActive)

	_, err = repo.GetCurriculum(ctx, 99)
	assert.ErrorIs(t, err, catalog.ErrNotFound)

	levels, err := repo.ListClassLevels(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, levels, 2)

	lvl, err := repo.GetClassLevel(ctx, 20)
	require.NoError(t, err)
	assert.Equal(t, int64(2), lvl.CurriculumID)

	_, err = repo.GetClassLevel(ctx, 99)
	assert.ErrorIs(t, err, catalog.ErrNotFound)

	topics, err := repo.ListTopics(ctx, 100)
	require.NoError(t, err)
	assert.Len(t, topics, 2)
}

func TestCatalogRepository_GetQuiz(t *testing.T) {
	repo := prepareRepo(t)
	ctx := context.Background()

	general, err := repo.GetQuiz(ctx, 1)
	require.NoError(t, err)
	assert.Nil(t, general.TopicID)
	assert.Equal(t, catalog.QuizTypeGeneral, general.QuizType)
	assert.True(t, general.RandomizeChoices)
	assert.Equal(t, 15, general.PerQuestionTimeSeconds)

	topic, err := repo.GetQuiz(ctx, 2)
	require.NoError(t, err)
	if assert.NotNil(t, topic.TopicID) {
		assert.Equal(t, int64(1000), *topic.TopicID)
	}

	_, err = repo.GetQuiz(ctx, 99)
	assert.ErrorIs(t, err, catalog.ErrNotFound)
}

func TestCatalogRepository_FilterQuestionIDs(t *testing.T) {
	repo := prepareRepo(t)

	tests := []struct {
		name   string
		filter catalog.QuestionFilter
		want   []int64
	}{
		{name: "all", want: []int64{11, 12, 13, 14, 15}},
		{
			name:   "active pool",
			filter: catalog.QuestionFilter{CurriculumID: catalog.Int64Ptr(1), ClassLevelID: catalog.Int64Ptr(10), SubjectID: catalog.Int64Ptr(100), IsActive: catalog.BoolPtr(true)},
			want:   []int64{11, 12, 13, 14},
		},
		{
			name:   "free only",
			filter: catalog.QuestionFilter{IsActive: catalog.BoolPtr(true), IsPremium: catalog.BoolPtr(false)},
			want:   []int64{11, 12, 13},
		},
		{
			name:   "topics",
			filter: catalog.QuestionFilter{TopicIDs: []int64{1001}, IsActive: catalog.BoolPtr(true)},
			want:   []int64{13, 14},
		},
		{
			name:   "no match",
			filter: catalog.QuestionFilter{CurriculumID: catalog.Int64Ptr(2)},
			want:   []int64{},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ids, err := repo.FilterQuestionIDs(context.Background(), tc.filter)
			require.NoError(t, err)
			assert.Equal(t, tc.want, ids)
		})
	}
}

func TestCatalogRepository_GetQuestions(t *testing.T) {
	repo := prepareRepo(t)
	ctx := context.Background()

	questions, err := repo.GetQuestions(ctx, []int64{12, 99, 11})
	require.NoError(t, err)
	require.Len(t, questions, 2)

	sa := questions[0]
	assert.Equal(t, int64(12), sa.ID)
	assert.Equal(t, catalog.QuestionTypeShortAnswer, sa.Type())
	body := sa.Body.(catalog.ShortAnswerBody)
	if assert.Len(t, body.Answers, 2) {
		assert.Equal(t, "Paris, France", body.Answers[0].Text)
		assert.True(t, body.Answers[1].IsExactMatch)
	}

	mc := questions[1]
	assert.Equal(t, catalog.QuestionTypeMultipleChoice, mc.Type())
	assert.Equal(t, "because 112", mc.Explanation)
	var order []int64
	for _, c := range mc.Choices() {
		order = append(order, c.ID)
	}
	assert.Equal(t, []int64{112, 111, 113}, order)
	assert.Equal(t, []int64{112}, mc.Body.(catalog.MultipleChoiceBody).CorrectChoiceIDs())

	empty, err := repo.GetQuestions(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}
