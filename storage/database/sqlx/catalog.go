// Package sqlxrepos implements the read-only catalog store on jmoiron/sqlx.
package sqlxrepos

import (
	"context"
	"database/sql"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/elearn/core/catalog"
)

type (
	curriculumRow struct {
		ID       int64  `db:"id"`
		Name     string `db:"name"`
		Slug     string `db:"slug"`
		IsActive bool   `db:"is_active"`
	}

	classLevelRow struct {
		ID           int64  `db:"id"`
		CurriculumID int64  `db:"curriculum_id"`
		Name         string `db:"name"`
		Slug         string `db:"slug"`
	}

	topicRow struct {
		ID        int64  `db:"id"`
		SubjectID int64  `db:"subject_id"`
		Name      string `db:"name"`
		Slug      string `db:"slug"`
	}

	quizRow struct {
		ID                     int64      `db:"id"`
		Title                  string     `db:"title"`
		QuizType               string     `db:"quiz_type"`
		CurriculumID           int64      `db:"curriculum_id"`
		ClassLevelID           int64      `db:"class_level_id"`
		SubjectID              int64      `db:"subject_id"`
		TopicID                null.Int64 `db:"topic_id"`
		QuestionCount          int        `db:"question_count"`
		PerQuestionTimeSeconds int        `db:"per_question_time_seconds"`
		RandomizeQuestions     bool       `db:"randomize_questions"`
		RandomizeChoices       bool       `db:"randomize_choices"`
		PassingScore           int        `db:"passing_score"`
		IsActive               bool       `db:"is_active"`
	}

	questionRow struct {
		ID           int64  `db:"id"`
		QuestionType string `db:"question_type"`
		Text         string `db:"text"`
		Explanation  string `db:"explanation"`
		IsPremium    bool   `db:"is_premium"`
		IsActive     bool   `db:"is_active"`
		CurriculumID int64  `db:"curriculum_id"`
		ClassLevelID int64  `db:"class_level_id"`
		SubjectID    int64  `db:"subject_id"`
		TopicID      int64  `db:"topic_id"`
	}

	choiceRow struct {
		ID         int64  `db:"id"`
		QuestionID int64  `db:"question_id"`
		Text       string `db:"text"`
		IsCorrect  bool   `db:"is_correct"`
		SortOrder  int    `db:"sort_order"`
	}

	shortAnswerRow struct {
		ID           int64  `db:"id"`
		QuestionID   int64  `db:"question_id"`
		Text         string `db:"text"`
		IsExactMatch bool   `db:"is_exact_match"`
	}
)

func (r curriculumRow) unpack() catalog.Curriculum {
	return catalog.Curriculum{ID: r.ID, Name: r.Name, Slug: r.Slug, IsActive: r.IsActive}
}

func (r classLevelRow) unpack() catalog.ClassLevel {
	return catalog.ClassLevel{ID: r.ID, CurriculumID: r.CurriculumID, Name: r.Name, Slug: r.Slug}
}

func (r quizRow) unpack() catalog.Quiz {
	return catalog.Quiz{
		ID:                     r.ID,
		Title:                  r.Title,
		QuizType:               catalog.QuizType(r.QuizType),
		CurriculumID:           r.CurriculumID,
		ClassLevelID:           r.ClassLevelID,
		SubjectID:              r.SubjectID,
		TopicID:                r.TopicID.Ptr(),
		QuestionCount:          r.QuestionCount,
		PerQuestionTimeSeconds: r.PerQuestionTimeSeconds,
		RandomizeQuestions:     r.RandomizeQuestions,
		RandomizeChoices:       r.RandomizeChoices,
		PassingScore:           r.PassingScore,
		IsActive:               r.IsActive,
	}
}

const (
	curriculumCols  = "id, name, slug, is_active"
	classLevelCols  = "id, curriculum_id, name, slug"
	topicCols       = "id, subject_id, name, slug"
	quizCols        = "id, title, quiz_type, curriculum_id, class_level_id, subject_id, topic_id, question_count, per_question_time_seconds, randomize_questions, randomize_choices, passing_score, is_active"
	questionCols    = "id, question_type, text, explanation, is_premium, is_active, curriculum_id, class_level_id, subject_id, topic_id"
	choiceCols      = "id, question_id, text, is_correct, sort_order"
	shortAnswerCols = "id, question_id, text, is_exact_match"
)

type catalogRepository struct {
	db *sqlx.DB
}

var _ catalog.Repository = (*catalogRepository)(nil) // interface compliance check

func NewCatalogRepository(db *sqlx.DB) *catalogRepository {
	return &catalogRepository{db: db}
}

// trapNoRowsErr maps "no rows" err to catalog.ErrNotFound
func (repo catalogRepository) trapNoRowsErr(err error, msg string) error {
	if err == sql.ErrNoRows {
		return catalog.ErrNotFound
	}
	return errors.Wrap(err, msg)
}

// selectIn runs a query holding "IN (?)" placeholders expanded over args' slices.
func (repo catalogRepository) selectIn(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	q, params, err := sqlx.In(query, args...)
	if err != nil {
		return err
	}
	return repo.db.SelectContext(ctx, dest, repo.db.Rebind(q), params...)
}

func (repo catalogRepository) ListCurricula(ctx context.Context, activeOnly bool) ([]catalog.Curriculum, error) {
	q := "SELECT " + curriculumCols + " FROM curriculum"
	if activeOnly {
		q += " WHERE is_active = ?"
	}
	q += " ORDER BY id"

	var rows []curriculumRow
	var err error
	if activeOnly {
		err = repo.db.SelectContext(ctx, &rows, repo.db.Rebind(q), true)
	} else {
		err = repo.db.SelectContext(ctx, &rows, q)
	}
	if err != nil {
		return nil, errors.Wrap(err, "selecting curricula")
	}
	curricula := make([]catalog.Curriculum, 0, len(rows))
	for _, r := range rows {
		curricula = append(curricula, r.unpack())
	}
	return curricula, nil
}

func (repo catalogRepository) GetCurriculum(ctx context.Context, id int64) (catalog.Curriculum, error) {
	var row curriculumRow
	q := repo.db.Rebind("SELECT " + curriculumCols + " FROM curriculum WHERE id = ?")
	if err := repo.db.GetContext(ctx, &row, q, id); err != nil {
		return catalog.Curriculum{}, repo.trapNoRowsErr(err, "getting curriculum")
	}
	return row.unpack(), nil
}

func (repo catalogRepository) ListClassLevels(ctx context.Context, curriculumID int64) ([]catalog.ClassLevel, error) {
	var rows []classLevelRow
	q := repo.db.Rebind("SELECT " + classLevelCols + " FROM class_level WHERE curriculum_id = ? ORDER BY id")
	if err := repo.db.SelectContext(ctx, &rows, q, curriculumID); err != nil {
		return nil, errors.Wrap(err, "selecting class levels")
	}
	levels := make([]catalog.ClassLevel, 0, len(rows))
	for _, r := range rows {
		levels = append(levels, r.unpack())
	}
	return levels, nil
}

func (repo catalogRepository) GetClassLevel(ctx context.Context, id int64) (catalog.ClassLevel, error) {
	var row classLevelRow
	q := repo.db.Rebind("SELECT " + classLevelCols + " FROM class_level WHERE id = ?")
	if err := repo.db.GetContext(ctx, &row, q, id); err != nil {
		return catalog.ClassLevel{}, repo.trapNoRowsErr(err, "getting class level")
	}
	return row.unpack(), nil
}

func (repo catalogRepository) ListTopics(ctx context.Context, subjectID int64) ([]catalog.Topic, error) {
	var rows []topicRow
	q := repo.db.Rebind("SELECT " + topicCols + " FROM topic WHERE subject_id = ? ORDER BY id")
	if err := repo.db.SelectContext(ctx, &rows, q, subjectID); err != nil {
		return nil, errors.Wrap(err, "selecting topics")
	}
	topics := make([]catalog.Topic, 0, len(rows))
	for _, r := range rows {
		topics = append(topics, catalog.Topic{ID: r.ID, SubjectID: r.SubjectID, Name: r.Name, Slug: r.Slug})
	}
	return topics, nil
}

func (repo catalogRepository) GetQuiz(ctx context.Context, id int64) (catalog.Quiz, error) {
	var row quizRow
	q := repo.db.Rebind("SELECT " + quizCols + " FROM quiz WHERE id = ?")
	if err := repo.db.GetContext(ctx, &row, q, id); err != nil {
		return catalog.Quiz{}, repo.trapNoRowsErr(err, "getting quiz")
	}
	return row.unpack(), nil
}

func (repo catalogRepository) FilterQuestionIDs(ctx context.Context, filter catalog.QuestionFilter) ([]int64, error) {
	var (
		conds []string
		args  []interface{}
	)
	if filter.CurriculumID != nil {
		conds = append(conds, "curriculum_id = ?")
		args = append(args, *filter.CurriculumID)
	}
	if filter.ClassLevelID != nil {
		conds = append(conds, "class_level_id = ?")
		args = append(args, *filter.ClassLevelID)
	}
	if filter.SubjectID != nil {
		conds = append(conds, "subject_id = ?")
		args = append(args, *filter.SubjectID)
	}
	if len(filter.TopicIDs) > 0 {
		conds = append(conds, "topic_id IN (?)")
		args = append(args, filter.TopicIDs)
	}
	if filter.IsActive != nil {
		conds = append(conds, "is_active = ?")
		args = append(args, *filter.IsActive)
	}
	if filter.IsPremium != nil {
		conds = append(conds, "is_premium = ?")
		args = append(args, *filter.IsPremium)
	}

	q := "SELECT id FROM question"
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	q += " ORDER BY id"

	ids := make([]int64, 0)
	var err error
	if len(filter.TopicIDs) > 0 {
		err = repo.selectIn(ctx, &ids, q, args...)
	} else {
		err = repo.db.SelectContext(ctx, &ids, repo.db.Rebind(q), args...)
	}
	if err != nil {
		return nil, errors.Wrap(err, "filtering questions")
	}
	return ids, nil
}

func (repo catalogRepository) GetQuestions(ctx context.Context, ids []int64) ([]catalog.Question, error) {
	if len(ids) == 0 {
		return []catalog.Question{}, nil
	}

	var qRows []questionRow
	if err := repo.selectIn(ctx, &qRows, "SELECT "+questionCols+" FROM question WHERE id IN (?)", ids); err != nil {
		return nil, errors.Wrap(err, "selecting questions")
	}
	var cRows []choiceRow
	if err := repo.selectIn(ctx, &cRows, "SELECT "+choiceCols+" FROM choice WHERE question_id IN (?) ORDER BY sort_order, id", ids); err != nil {
		return nil, errors.Wrap(err, "selecting choices")
	}
	var aRows []shortAnswerRow
	if err := repo.selectIn(ctx, &aRows, "SELECT "+shortAnswerCols+" FROM short_answer WHERE question_id IN (?) ORDER BY id", ids); err != nil {
		return nil, errors.Wrap(err, "selecting short answers")
	}

	choices := make(map[int64][]catalog.Choice)
	for _, c := range cRows {
		choices[c.QuestionID] = append(choices[c.QuestionID], catalog.Choice{
			ID: c.ID, Text: c.Text, IsCorrect: c.IsCorrect, Order: c.SortOrder,
		})
	}
	answers := make(map[int64][]catalog.ShortAnswer)
	for _, a := range aRows {
		answers[a.QuestionID] = append(answers[a.QuestionID], catalog.ShortAnswer{
			ID: a.ID, Text: a.Text, IsExactMatch: a.IsExactMatch,
		})
	}

	byID := make(map[int64]catalog.Question, len(qRows))
	for _, r := range qRows {
		body, err := catalog.NewBody(catalog.QuestionType(r.QuestionType), choices[r.ID], answers[r.ID])
		if err != nil {
			return nil, err
		}
		byID[r.ID] = catalog.Question{
			ID:           r.ID,
			Text:         r.Text,
			Explanation:  r.Explanation,
			IsPremium:    r.IsPremium,
			IsActive:     r.IsActive,
			CurriculumID: r.CurriculumID,
			ClassLevelID: r.ClassLevelID,
			SubjectID:    r.SubjectID,
			TopicID:      r.TopicID,
			Body:         body,
		}
	}

	questions := make([]catalog.Question, 0, len(ids))
	for _, id := range ids {
		if q, ok := byID[id]; ok {
			questions = append(questions, q)
		}
	}
	return questions, nil
}
