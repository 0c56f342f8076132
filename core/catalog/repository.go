package catalog

import "context"

// Repository is the read-only view of the content catalog.
// Content is managed elsewhere; lookups of unknown records return ErrNotFound.
type Repository interface {
	ListCurricula(ctx context.Context, activeOnly bool) ([]Curriculum, error)
	GetCurriculum(ctx context.Context, id int64) (Curriculum, error)
	ListClassLevels(ctx context.Context, curriculumID int64) ([]ClassLevel, error)
	GetClassLevel(ctx context.Context, id int64) (ClassLevel, error)
	ListTopics(ctx context.Context, subjectID int64) ([]Topic, error)
	GetQuiz(ctx context.Context, id int64) (Quiz, error)
	// FilterQuestionIDs returns the IDs of the questions matching filter, ordered by ID.
	FilterQuestionIDs(ctx context.Context, filter QuestionFilter) ([]int64, error)
	// GetQuestions returns the questions with their choices & accepted answers, in the order of ids.
	// Unknown IDs are skipped.
	GetQuestions(ctx context.Context, ids []int64) ([]Question, error)
}

func Int64Ptr(i int64) *int64 { return &i }

func BoolPtr(b bool) *bool { return &b }
