package dummydb

import (
	"context"
	"sort"

	"github.com/trezcool/elearn/core/catalog"
)

type catalogRepository struct {
	db *catalogTables
}

var _ catalog.Repository = (*catalogRepository)(nil) // interface compliance check

func NewCatalogRepository(db *DB) catalog.Repository {
	return &catalogRepository{db: db.catalog}
}

func (repo *catalogRepository) ListCurricula(_ context.Context, activeOnly bool) ([]catalog.Curriculum, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	curricula := make([]catalog.Curriculum, 0, len(repo.db.curricula))
	for _, c := range repo.db.curricula {
		if !activeOnly || c.IsActive {
			curricula = append(curricula, c)
		}
	}
	sort.Slice(curricula, func(i, j int) bool { return curricula[i].ID < curricula[j].ID })
	return curricula, nil
}

func (repo *catalogRepository) GetCurriculum(_ context.Context, id int64) (catalog.Curriculum, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()
	if c, ok := repo.db.curricula[id]; ok {
		return c, nil
	}
	return catalog.Curriculum{}, catalog.ErrNotFound
}

func (repo *catalogRepository) ListClassLevels(_ context.Context, curriculumID int64) ([]catalog.ClassLevel, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	levels := make([]catalog.ClassLevel, 0)
	for _, cl := range repo.db.classLevels {
		if cl.CurriculumID == curriculumID {
			levels = append(levels, cl)
		}
	}
	sort.Slice(levels, func(i, j int) bool { return levels[i].ID < levels[j].ID })
	return levels, nil
}

func (repo *catalogRepository) GetClassLevel(_ context.Context, id int64) (catalog.ClassLevel, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()
	if cl, ok := repo.db.classLevels[id]; ok {
		return cl, nil
	}
	return catalog.ClassLevel{}, catalog.ErrNotFound
}

func (repo *catalogRepository) ListTopics(_ context.Context, subjectID int64) ([]catalog.Topic, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	topics := make([]catalog.Topic, 0)
	for _, t := range repo.db.topics {
		if t.SubjectID == subjectID {
			topics = append(topics, t)
		}
	}
	sort.Slice(topics, func(i, j int) bool { return topics[i].ID < topics[j].ID })
	return topics, nil
}

func (repo *catalogRepository) GetQuiz(_ context.Context, id int64) (catalog.Quiz, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()
	if qz, ok := repo.db.quizzes[id]; ok {
		return qz, nil
	}
	return catalog.Quiz{}, catalog.ErrNotFound
}

func matches(q catalog.Question, filter catalog.QuestionFilter) bool {
	if filter.CurriculumID != nil && q.CurriculumID != *filter.CurriculumID {
		return false
	}
	if filter.ClassLevelID != nil && q.ClassLevelID != *filter.ClassLevelID {
		return false
	}
	if filter.SubjectID != nil && q.SubjectID != *filter.SubjectID {
		return false
	}
	if filter.IsActive != nil && q.IsActive != *filter.IsActive {
		return false
	}
	if filter.IsPremium != nil && q.IsPremium != *filter.IsPremium {
		return false
	}
	if len(filter.TopicIDs) > 0 {
		for _, id := range filter.TopicIDs {
			if q.TopicID == id {
				return true
			}
		}
		return false
	}
	return true
}

func (repo *catalogRepository) FilterQuestionIDs(_ context.Context, filter catalog.QuestionFilter) ([]int64, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	ids := make([]int64, 0)
	for _, q := range repo.db.questions {
		if matches(q, filter) {
			ids = append(ids, q.ID)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (repo *catalogRepository) GetQuestions(_ context.Context, ids []int64) ([]catalog.Question, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	questions := make([]catalog.Question, 0, len(ids))
	for _, id := range ids {
		if q, ok := repo.db.questions[id]; ok {
			questions = append(questions, q)
		}
	}
	return questions, nil
}
