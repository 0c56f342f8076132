package testutil

import (
	"database/sql"
	"os"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/trezcool/elearn/core"
	"github.com/trezcool/elearn/core/catalog"
	"github.com/trezcool/elearn/core/entitlement"
	"github.com/trezcool/elearn/storage/database"
	"github.com/trezcool/elearn/storage/database/dummy"
)

// Catalog fixture IDs
const (
	CurriculumCBC      int64 = 1
	CurriculumIGCSE    int64 = 2
	CurriculumArchived int64 = 3

	ClassLevelGrade4 int64 = 10
	ClassLevelGrade5 int64 = 11
	ClassLevelYear7  int64 = 20

	SubjectMaths   int64 = 100
	SubjectScience int64 = 200

	TopicFractions int64 = 1000
	TopicGeometry  int64 = 1001
	TopicCells     int64 = 2000

	QuizMaths    int64 = 1 // general, 15s per question, randomized choices
	QuizPractice int64 = 2 // practice, untimed
	QuizScience  int64 = 3 // general, 10 questions of 15s
	QuizInactive int64 = 4
	QuizGrade5   int64 = 5 // no question

	QuestionFractionsMC  int64 = 11 // correct choice: 112
	QuestionCapitalSA    int64 = 12 // accepted: "Paris, France"
	QuestionGeometryMC   int64 = 13 // correct choice: 131
	QuestionPremiumMC    int64 = 14 // premium, correct choice: 141
	QuestionInactiveMC   int64 = 15
	FirstScienceQuestion int64 = 301 // 301..310, correct choice: id*10+1

	ScienceQuestionsCount = 10

	PlanFree      int64 = 1
	PlanTierOne   int64 = 2
	PlanTierTwo   int64 = 3
	PlanTierThree int64 = 4
)

func mc(id int64, topicID int64, premium, active bool, correct int64, wrong ...int64) catalog.Question {
	choices := []catalog.Choice{{ID: correct, Text: "choice " + itoa(correct), IsCorrect: true, Order: 1}}
	for i, w := range wrong {
		choices = append(choices, catalog.Choice{ID: w, Text: "choice " + itoa(w), Order: i + 2})
	}
	return catalog.Question{
		ID:           id,
		Text:         "question " + itoa(id),
		Explanation:  "because " + itoa(correct),
		IsPremium:    premium,
		IsActive:     active,
		CurriculumID: CurriculumCBC,
		ClassLevelID: ClassLevelGrade4,
		SubjectID:    SubjectMaths,
		TopicID:      topicID,
		Body:         catalog.MultipleChoiceBody{Choices: choices},
	}
}

// SeedCatalog fills db with the catalog fixtures.
func SeedCatalog(db *dummydb.DB) {
	db.InsertCurricula(
		catalog.Curriculum{ID: CurriculumCBC, Name: "CBC", Slug: "cbc", IsActive: true},
		catalog.Curriculum{ID: CurriculumIGCSE, Name: "IGCSE", Slug: "igcse", IsActive: true},
		catalog.Curriculum{ID: CurriculumArchived, Name: "8-4-4", Slug: "8-4-4", IsActive: false},
	)
	db.InsertClassLevels(
		catalog.ClassLevel{ID: ClassLevelGrade4, CurriculumID: CurriculumCBC, Name: "Grade 4", Slug: "grade-4"},
		catalog.ClassLevel{ID: ClassLevelGrade5, CurriculumID: CurriculumCBC, Name: "Grade 5", Slug: "grade-5"},
		catalog.ClassLevel{ID: ClassLevelYear7, CurriculumID: CurriculumIGCSE, Name: "Year 7", Slug: "year-7"},
	)
	db.InsertSubjects(
		catalog.Subject{ID: SubjectMaths, CurriculumID: CurriculumCBC, ClassLevelID: ClassLevelGrade4, Name: "Maths", Slug: "maths"},
		catalog.Subject{ID: SubjectScience, CurriculumID: CurriculumIGCSE, ClassLevelID: ClassLevelYear7, Name: "Science", Slug: "science"},
	)
	db.InsertTopics(
		catalog.Topic{ID: TopicFractions, SubjectID: SubjectMaths, Name: "Fractions", Slug: "fractions"},
		catalog.Topic{ID: TopicGeometry, SubjectID: SubjectMaths, Name: "Geometry", Slug: "geometry"},
		catalog.Topic{ID: TopicCells, SubjectID: SubjectScience, Name: "Cells", Slug: "cells"},
	)

	topicID := TopicFractions
	db.InsertQuizzes(
		catalog.Quiz{
			ID: QuizMaths, Title: "Maths", QuizType: catalog.QuizTypeGeneral,
			CurriculumID: CurriculumCBC, ClassLevelID: ClassLevelGrade4, SubjectID: SubjectMaths,
			QuestionCount: 4, PerQuestionTimeSeconds: 15, RandomizeChoices: true, PassingScore: 50, IsActive: true,
		},
		catalog.Quiz{
			ID: QuizPractice, Title: "Maths practice", QuizType: catalog.QuizTypePractice,
			CurriculumID: CurriculumCBC, ClassLevelID: ClassLevelGrade4, SubjectID: SubjectMaths,
			QuestionCount: 2, PassingScore: 50, IsActive: true,
		},
		catalog.Quiz{
			ID: QuizScience, Title: "Science", QuizType: catalog.QuizTypeGeneral,
			CurriculumID: CurriculumIGCSE, ClassLevelID: ClassLevelYear7, SubjectID: SubjectScience,
			QuestionCount: 10, PerQuestionTimeSeconds: 15, RandomizeQuestions: true, PassingScore: 80, IsActive: true,
		},
		catalog.Quiz{
			ID: QuizInactive, Title: "Fractions", QuizType: catalog.QuizTypeTopic, TopicID: &topicID,
			CurriculumID: CurriculumCBC, ClassLevelID: ClassLevelGrade4, SubjectID: SubjectMaths,
			QuestionCount: 2, IsActive: false,
		},
		catalog.Quiz{
			ID: QuizGrade5, Title: "Grade 5", QuizType: catalog.QuizTypeGeneral,
			CurriculumID: CurriculumCBC, ClassLevelID: ClassLevelGrade5, SubjectID: SubjectMaths,
			QuestionCount: 5, IsActive: true,
		},
	)

	db.InsertQuestions(
		mc(QuestionFractionsMC, TopicFractions, false, true, 112, 111, 113, 114),
		catalog.Question{
			ID:           QuestionCapitalSA,
			Text:         "What is the capital of France?",
			IsActive:     true,
			CurriculumID: CurriculumCBC,
			ClassLevelID: ClassLevelGrade4,
			SubjectID:    SubjectMaths,
			TopicID:      TopicFractions,
			Body: catalog.ShortAnswerBody{Answers: []catalog.ShortAnswer{
				{ID: 121, Text: "Paris, France"},
			}},
		},
		mc(QuestionGeometryMC, TopicGeometry, false, true, 131, 132),
		mc(QuestionPremiumMC, TopicGeometry, true, true, 141, 142),
		mc(QuestionInactiveMC, TopicFractions, false, false, 151, 152),
	)
	for i := int64(0); i < ScienceQuestionsCount; i++ {
		q := mc(FirstScienceQuestion+i, TopicCells, false, true, (FirstScienceQuestion+i)*10+1, (FirstScienceQuestion+i)*10+2)
		q.CurriculumID, q.ClassLevelID, q.SubjectID = CurriculumIGCSE, ClassLevelYear7, SubjectScience
		db.InsertQuestions(q)
	}
}

// SeedPlans stores the four plans. The free plan samples CBC grade 4.
func SeedPlans(db *dummydb.DB) {
	grade4 := ClassLevelGrade4
	db.InsertPlans(
		entitlement.Plan{
			ID: PlanFree, Name: "Free", PlanType: entitlement.PlanTypeFree, MaxUsers: 1,
			FreeSample: []entitlement.ContentRef{{CurriculumID: CurriculumCBC, ClassLevelID: &grade4}},
		},
		entitlement.Plan{ID: PlanTierOne, Name: "Basic", PlanType: entitlement.PlanTypeTierOne, MaxUsers: 1},
		entitlement.Plan{ID: PlanTierTwo, Name: "Standard", PlanType: entitlement.PlanTypeTierTwo, AllGradeLevels: true, MaxUsers: 3},
		entitlement.Plan{ID: PlanTierThree, Name: "Premium", PlanType: entitlement.PlanTypeTierThree, AllCurriculums: true, MaxUsers: 5},
	)
}

// ActiveSubscription returns an active subscription of userID to planID started at start.
func ActiveSubscription(id int64, userID string, planID int64, start time.Time, accesses ...entitlement.ContentRef) entitlement.Subscription {
	return entitlement.Subscription{
		ID:        id,
		UserID:    userID,
		PlanID:    planID,
		Status:    entitlement.StatusActive,
		StartDate: start,
		EndDate:   start.AddDate(0, 1, 0),
		AutoRenew: true,
		Accesses:  accesses,
	}
}

// Clock replaces core.NowFunc for the duration of a test.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

func FreezeClock(t *testing.T, at time.Time) *Clock {
	c := &Clock{now: at.UTC()}
	orig := core.NowFunc
	core.NowFunc = c.Now
	t.Cleanup(func() { core.NowFunc = orig })
	return c
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// PrepareDB opens & migrates the postgres database at TEST_DATABASE_URL. The test is skipped when unset.
func PrepareDB(t *testing.T) *sql.DB {
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		t.Fatalf("PrepareDB() failed: %v", err)
	}
	if err = database.Migrate(db); err != nil {
		t.Fatalf("PrepareDB() failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func itoa(i int64) string { return strconv.FormatInt(i, 10) }
