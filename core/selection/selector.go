// Package selection picks the questions of an attempt and orders their choices.
package selection

import (
	"context"
	"encoding/binary"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/kat-co/vala"
	"github.com/pkg/errors"
	"golang.org/x/crypto/blake2b"

	"github.com/trezcool/elearn/core"
	"github.com/trezcool/elearn/core/catalog"
)

var ErrNoQuestionsAvailable = errors.New("no questions available")

type Selector struct {
	repo catalog.Repository

	mu  sync.Mutex
	rnd *rand.Rand
}

// NewSelector returns a Selector drawing question orders from src, or from a time seeded source if nil.
func NewSelector(repo catalog.Repository, src rand.Source) *Selector {
	vala.BeginValidation().Validate(
		vala.IsNotNil(repo, "repo"),
	).CheckAndPanic()

	if src == nil {
		src = rand.NewSource(time.Now().UnixNano())
	}
	return &Selector{repo: repo, rnd: rand.New(src)}
}

// SelectQuestions returns the ordered question IDs of a general or topic quiz.
func (s *Selector) SelectQuestions(ctx context.Context, quiz catalog.Quiz, excludePremium bool) ([]int64, error) {
	filter := catalog.QuestionFilter{
		CurriculumID: catalog.Int64Ptr(quiz.CurriculumID),
		ClassLevelID: catalog.Int64Ptr(quiz.ClassLevelID),
		SubjectID:    catalog.Int64Ptr(quiz.SubjectID),
		IsActive:     catalog.BoolPtr(true),
	}
	if quiz.TopicID != nil {
		filter.TopicIDs = []int64{*quiz.TopicID}
	}
	if excludePremium {
		filter.IsPremium = catalog.BoolPtr(false)
	}

	ids, err := s.repo.FilterQuestionIDs(ctx, filter)
	if err != nil {
		return nil, errors.Wrap(err, "filtering questions")
	}
	if len(ids) == 0 {
		return nil, ErrNoQuestionsAvailable
	}
	if quiz.RandomizeQuestions {
		s.shuffle(ids)
	}
	return truncate(ids, quiz.QuestionCount), nil
}

// SelectPracticeQuestions samples count questions out of the given topics of the quiz subject.
// No topics means every topic of the subject. count <= 0 falls back to quiz.QuestionCount.
func (s *Selector) SelectPracticeQuestions(
	ctx context.Context,
	quiz catalog.Quiz,
	topicIDs []int64,
	count int,
	excludePremium bool,
) ([]int64, error) {
	if len(topicIDs) > 0 {
		if err := s.checkTopics(ctx, quiz.SubjectID, topicIDs); err != nil {
			return nil, err
		}
	}

	filter := catalog.QuestionFilter{
		CurriculumID: catalog.Int64Ptr(quiz.CurriculumID),
		ClassLevelID: catalog.Int64Ptr(quiz.ClassLevelID),
		SubjectID:    catalog.Int64Ptr(quiz.SubjectID),
		TopicIDs:     topicIDs,
		IsActive:     catalog.BoolPtr(true),
	}
	if excludePremium {
		filter.IsPremium = catalog.BoolPtr(false)
	}

	ids, err := s.repo.FilterQuestionIDs(ctx, filter)
	if err != nil {
		return nil, errors.Wrap(err, "filtering practice questions")
	}
	if len(ids) == 0 {
		return nil, ErrNoQuestionsAvailable
	}
	if count <= 0 {
		count = quiz.QuestionCount
	}
	s.shuffle(ids)
	return truncate(ids, count), nil
}

func (s *Selector) checkTopics(ctx context.Context, subjectID int64, topicIDs []int64) error {
	topics, err := s.repo.ListTopics(ctx, subjectID)
	if err != nil {
		return errors.Wrap(err, "listing subject topics")
	}
	known := make(map[int64]struct{}, len(topics))
	for _, t := range topics {
		known[t.ID] = struct{}{}
	}
	for _, id := range topicIDs {
		if _, ok := known[id]; !ok {
			return core.NewValidationError(nil, core.FieldError{Field: "topic_ids", Error: "unknown topic for this subject"})
		}
	}
	return nil
}

func (s *Selector) shuffle(ids []int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rnd.Shuffle(len(ids), func(i, j int) { ids[i], ids[j] = ids[j], ids[i] })
}

func truncate(ids []int64, n int) []int64 {
	if n > 0 && n < len(ids) {
		return ids[:n]
	}
	return ids
}

// ChoiceOrder returns the catalog order of the question's choices.
func ChoiceOrder(question catalog.Question) []int64 {
	choices := append([]catalog.Choice(nil), question.Choices()...)
	sort.SliceStable(choices, func(i, j int) bool {
		if choices[i].Order != choices[j].Order {
			return choices[i].Order < choices[j].Order
		}
		return choices[i].ID < choices[j].ID
	})
	ids := make([]int64, 0, len(choices))
	for _, c := range choices {
		ids = append(ids, c.ID)
	}
	return ids
}

// ShuffleChoices permutes the question's choices.
// The permutation only depends on (seed, question.ID): the same order is returned on every call.
func ShuffleChoices(question catalog.Question, seed int64) []int64 {
	ids := ChoiceOrder(question)
	rnd := rand.New(rand.NewSource(questionSeed(seed, question.ID)))
	rnd.Shuffle(len(ids), func(i, j int) { ids[i], ids[j] = ids[j], ids[i] })
	return ids
}

// SeedFromAttemptID derives the shuffle seed of an attempt from its ID.
func SeedFromAttemptID(id string) int64 {
	sum := blake2b.Sum256([]byte(id))
	return int64(binary.BigEndian.Uint64(sum[:8]))
}

func questionSeed(seed, questionID int64) int64 {
	var buf [16]byte
	binary.BigEndian.PutUint64(buf[:8], uint64(seed))
	binary.BigEndian.PutUint64(buf[8:], uint64(questionID))
	sum := blake2b.Sum256(buf[:])
	return int64(binary.BigEndian.Uint64(sum[:8]))
}
