// Package dummydb holds in-memory stores for tests and local runs.
package dummydb

import (
	"sync"

	"github.com/trezcool/elearn/core/catalog"
	"github.com/trezcool/elearn/core/entitlement"
	"github.com/trezcool/elearn/core/quiz"
)

type (
	DB struct {
		catalog     *catalogTables
		entitlement *entitlementTables
		attempt     *attemptTable
	}

	catalogTables struct {
		sync.RWMutex
		curricula   map[int64]catalog.Curriculum
		classLevels map[int64]catalog.ClassLevel
		subjects    map[int64]catalog.Subject
		topics      map[int64]catalog.Topic
		quizzes     map[int64]catalog.Quiz
		questions   map[int64]catalog.Question
	}

	entitlementTables struct {
		sync.RWMutex
		plans         map[int64]entitlement.Plan
		subscriptions map[int64]entitlement.Subscription
	}

	attemptTable struct {
		sync.Mutex
		attempts  map[string]*quiz.Attempt
		questions map[string]map[int64]*quiz.QuestionAttempt // by attempt ID, then question ID
		qaPK      int64
	}
)

func Open() (*DB, error) {
	db := &DB{
		catalog: &catalogTables{
			curricula:   make(map[int64]catalog.Curriculum),
			classLevels: make(map[int64]catalog.ClassLevel),
			subjects:    make(map[int64]catalog.Subject),
			topics:      make(map[int64]catalog.Topic),
			quizzes:     make(map[int64]catalog.Quiz),
			questions:   make(map[int64]catalog.Question),
		},
		entitlement: &entitlementTables{
			plans:         make(map[int64]entitlement.Plan),
			subscriptions: make(map[int64]entitlement.Subscription),
		},
		attempt: &attemptTable{
			attempts:  make(map[string]*quiz.Attempt),
			questions: make(map[string]map[int64]*quiz.QuestionAttempt),
		},
	}
	return db, nil
}

// Catalog content is managed elsewhere: these are for seeding.

func (db *DB) InsertCurricula(rows ...catalog.Curriculum) {
	db.catalog.Lock()
	defer db.catalog.Unlock()
	for _, r := range rows {
		db.catalog.curricula[r.ID] = r
	}
}

func (db *DB) InsertClassLevels(rows ...catalog.ClassLevel) {
	db.catalog.Lock()
	defer db.catalog.Unlock()
	for _, r := range rows {
		db.catalog.classLevels[r.ID] = r
	}
}

func (db *DB) InsertSubjects(rows ...catalog.Subject) {
	db.catalog.Lock()
	defer db.catalog.Unlock()
	for _, r := range rows {
		db.catalog.subjects[r.ID] = r
	}
}

func (db *DB) InsertTopics(rows ...catalog.Topic) {
	db.catalog.Lock()
	defer db.catalog.Unlock()
	for _, r := range rows {
		db.catalog.topics[r.ID] = r
	}
}

func (db *DB) InsertQuizzes(rows ...catalog.Quiz) {
	db.catalog.Lock()
	defer db.catalog.Unlock()
	for _, r := range rows {
		db.catalog.quizzes[r.ID] = r
	}
}

func (db *DB) InsertQuestions(rows ...catalog.Question) {
	db.catalog.Lock()
	defer db.catalog.Unlock()
	for _, r := range rows {
		db.catalog.questions[r.ID] = r
	}
}

func (db *DB) InsertPlans(rows ...entitlement.Plan) {
	db.entitlement.Lock()
	defer db.entitlement.Unlock()
	for _, r := range rows {
		db.entitlement.plans[r.ID] = r
	}
}

// InsertSubscriptions stores rows; their Plan is loaded from the stored plans on read.
func (db *DB) InsertSubscriptions(rows ...entitlement.Subscription) {
	db.entitlement.Lock()
	defer db.entitlement.Unlock()
	for _, r := range rows {
		db.entitlement.subscriptions[r.ID] = r
	}
}
