// Package quiz runs quiz attempts: start or resume, question navigation, answer grading, timing and results.
package quiz

import (
	"context"

	"github.com/google/uuid"
	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/trezcool/elearn/core"
	"github.com/trezcool/elearn/core/answer"
	"github.com/trezcool/elearn/core/catalog"
	"github.com/trezcool/elearn/core/selection"
	"github.com/trezcool/elearn/core/user"
)

var errTimedOutOnSave = errors.New("attempt timed out while saving an answer")

// Entitlements is the part of the entitlement resolver the quiz engine needs.
type Entitlements interface {
	CheckAccess(ctx context.Context, usr user.User, curriculumID int64, classLevelID *int64) error
	HasPremium(ctx context.Context, usr user.User) (bool, error)
}

type Service struct {
	repo         Repository
	catalog      catalog.Repository
	selector     *selection.Selector
	entitlements Entitlements
	log          core.Logger
}

func NewService(
	repo Repository,
	catalogRepo catalog.Repository,
	selector *selection.Selector,
	entitlements Entitlements,
	logger core.Logger,
) *Service {
	vala.BeginValidation().Validate(
		vala.IsNotNil(repo, "repo"),
		vala.IsNotNil(catalogRepo, "catalogRepo"),
		vala.IsNotNil(selector, "selector"),
		vala.IsNotNil(entitlements, "entitlements"),
		vala.IsNotNil(logger, "logger"),
	).CheckAndPanic()

	return &Service{
		repo:         repo,
		catalog:      catalogRepo,
		selector:     selector,
		entitlements: entitlements,
		log:          logger,
	}
}

func (svc *Service) getQuiz(ctx context.Context, id int64) (catalog.Quiz, error) {
	qz, err := svc.catalog.GetQuiz(ctx, id)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			return catalog.Quiz{}, ErrQuizNotFound
		}
		return catalog.Quiz{}, errors.Wrap(err, "getting quiz")
	}
	return qz, nil
}

// StartOrResume returns the attempt usr has in progress on quizID, or starts a new one (created = true).
func (svc *Service) StartOrResume(ctx context.Context, usr user.User, quizID int64, opts StartOptions) (Attempt, bool, error) {
	if usr.IsAnonymous() {
		return Attempt{}, false, ErrAttemptNotFound
	}

	existing, err := svc.repo.GetInProgressAttempt(ctx, usr.ID, quizID)
	switch {
	case err == nil:
		existing, _, err = svc.expire(ctx, existing)
		if err != nil {
			return Attempt{}, false, err
		}
		if existing.IsInProgress() {
			return existing, false, nil
		}
	case !errors.Is(err, ErrAttemptNotFound):
		return Attempt{}, false, errors.Wrap(err, "getting attempt in progress")
	}

	qz, err := svc.getQuiz(ctx, quizID)
	if err != nil {
		return Attempt{}, false, err
	}
	if !qz.IsActive {
		return Attempt{}, false, ErrQuizNotFound
	}
	if err = svc.entitlements.CheckAccess(ctx, usr, qz.CurriculumID, &qz.ClassLevelID); err != nil {
		return Attempt{}, false, err
	}
	premium, err := svc.entitlements.HasPremium(ctx, usr)
	if err != nil {
		return Attempt{}, false, errors.Wrap(err, "checking premium access")
	}

	count := qz.QuestionCount
	var ids []int64
	if qz.IsPractice() {
		if opts.QuestionCount > 0 {
			count = opts.QuestionCount
		}
		ids, err = svc.selector.SelectPracticeQuestions(ctx, qz, opts.TopicIDs, count, !premium)
	} else {
		ids, err = svc.selector.SelectQuestions(ctx, qz, !premium)
	}
	if err != nil {
		return Attempt{}, false, err
	}
	if count <= 0 || count > len(ids) {
		count = len(ids)
	}

	id := uuid.New().String()
	att := Attempt{
		ID:               id,
		UserID:           usr.ID,
		QuizID:           qz.ID,
		Status:           StatusInProgress,
		Selection:        ids,
		StartedAt:        core.NowFunc(),
		TimeLimitSeconds: qz.PerQuestionTimeSeconds * count,
		TotalQuestions:   len(ids),
		Seed:             selection.SeedFromAttemptID(id),
	}
	att, created, err := svc.repo.CreateAttemptIfAbsent(ctx, att)
	if err != nil {
		return Attempt{}, false, errors.Wrap(err, "creating attempt")
	}
	return att, created, nil
}

// ownedAttempt hides the attempts of other identities.
func (svc *Service) ownedAttempt(ctx context.Context, usr user.User, id string) (Attempt, error) {
	att, err := svc.repo.GetAttempt(ctx, id)
	if err != nil {
		if errors.Is(err, ErrAttemptNotFound) {
			return Attempt{}, ErrAttemptNotFound
		}
		return Attempt{}, errors.Wrap(err, "getting attempt")
	}
	if usr.IsAnonymous() || att.UserID != usr.ID {
		return Attempt{}, ErrAttemptNotFound
	}
	return att, nil
}

// expire times att out when its time limit elapsed. timedOut reports whether this call did it.
func (svc *Service) expire(ctx context.Context, att Attempt) (_ Attempt, timedOut bool, _ error) {
	now := core.NowFunc()
	if !att.IsInProgress() || !att.HasTimedOut(now) {
		return att, false, nil
	}
	stored, err := svc.repo.MarkFinished(ctx, att.ID, StatusTimedOut, now)
	if err != nil {
		return Attempt{}, false, errors.Wrap(err, "timing attempt out")
	}
	return stored, stored.Status == StatusTimedOut, nil
}

// activeAttempt returns the attempt id of usr if it can still be mutated.
func (svc *Service) activeAttempt(ctx context.Context, usr user.User, id string) (Attempt, error) {
	att, err := svc.ownedAttempt(ctx, usr, id)
	if err != nil {
		return Attempt{}, err
	}
	if !att.IsInProgress() {
		return att, ErrAttemptNotInProgress
	}
	att, timedOut, err := svc.expire(ctx, att)
	if err != nil {
		return Attempt{}, err
	}
	if timedOut {
		return att, ErrAttemptTimedOut
	}
	if !att.IsInProgress() {
		return att, ErrAttemptNotInProgress
	}
	return att, nil
}

func (svc *Service) getQuestion(ctx context.Context, id int64) (catalog.Question, bool, error) {
	questions, err := svc.catalog.GetQuestions(ctx, []int64{id})
	if err != nil {
		return catalog.Question{}, false, errors.Wrap(err, "getting question")
	}
	if len(questions) == 0 {
		return catalog.Question{}, false, nil
	}
	return questions[0], true, nil
}

// NextQuestion shows the first question of the selection that has no answer yet.
// When every question is answered the attempt is completed and the view is nil.
func (svc *Service) NextQuestion(ctx context.Context, usr user.User, attemptID string) (Attempt, *QuestionView, error) {
	att, err := svc.activeAttempt(ctx, usr, attemptID)
	if err != nil {
		return att, nil, err
	}

	qas, err := svc.repo.ListQuestionAttempts(ctx, att.ID)
	if err != nil {
		return Attempt{}, nil, errors.Wrap(err, "listing question attempts")
	}
	answered := make(map[int64]bool, len(qas))
	for _, qa := range qas {
		answered[qa.QuestionID] = qa.IsAnswered()
	}

	for i, qid := range att.Selection {
		if answered[qid] {
			continue
		}
		question, ok, err := svc.getQuestion(ctx, qid)
		if err != nil {
			return Attempt{}, nil, err
		}
		if !ok {
			svc.log.Warn("selected question vanished from the catalog", map[string]interface{}{
				"attempt_id": att.ID, "question_id": qid,
			}, usr)
			continue
		}
		qz, err := svc.getQuiz(ctx, att.QuizID)
		if err != nil {
			return Attempt{}, nil, err
		}

		now := core.NowFunc()
		qa, err := svc.repo.GetOrCreateQuestionAttempt(ctx, QuestionAttempt{
			AttemptID:  att.ID,
			QuestionID: qid,
			ShownAt:    now,
		})
		if err != nil {
			return Attempt{}, nil, errors.Wrap(err, "materializing question attempt")
		}

		return att, &QuestionView{
			QuestionID:       question.ID,
			Type:             question.Type(),
			Text:             question.Text,
			Choices:          choiceViews(question, orderChoices(question, qz, att)),
			Position:         i + 1,
			Total:            att.TotalQuestions,
			RemainingSeconds: att.RemainingSeconds(now),
			ShownAt:          qa.ShownAt,
		}, nil
	}

	att, err = svc.repo.MarkFinished(ctx, att.ID, StatusCompleted, core.NowFunc())
	if err != nil {
		return Attempt{}, nil, errors.Wrap(err, "completing attempt")
	}
	return att, nil, nil
}

func orderChoices(question catalog.Question, qz catalog.Quiz, att Attempt) []int64 {
	if qz.RandomizeChoices {
		return selection.ShuffleChoices(question, att.Seed)
	}
	return selection.ChoiceOrder(question)
}

func choiceViews(question catalog.Question, order []int64) []ChoiceView {
	body, ok := question.Body.(catalog.MultipleChoiceBody)
	if !ok {
		return nil
	}
	views := make([]ChoiceView, 0, len(order))
	for _, id := range order {
		if c, ok := body.Choice(id); ok {
			views = append(views, ChoiceView{ID: c.ID, Text: c.Text})
		}
	}
	return views
}

// SubmitAnswer grades and stores the answer of one question of the attempt. Answering again overwrites.
func (svc *Service) SubmitAnswer(ctx context.Context, usr user.User, attemptID string, sub Submission) (Attempt, error) {
	att, err := svc.activeAttempt(ctx, usr, attemptID)
	if err != nil {
		return att, err
	}

	invalidQuestion := core.NewValidationError(nil, core.FieldError{
		Field: "question_id", Error: "question is not part of this attempt",
	})
	if att.position(sub.QuestionID) == 0 {
		return att, invalidQuestion
	}
	question, ok, err := svc.getQuestion(ctx, sub.QuestionID)
	if err != nil {
		return Attempt{}, err
	}
	if !ok {
		return att, invalidQuestion
	}

	correct, err := Grade(question, sub)
	if err != nil {
		return att, err
	}

	now := core.NowFunc()
	qa := QuestionAttempt{
		AttemptID:        att.ID,
		QuestionID:       question.ID,
		IsCorrect:        &correct,
		TimeSpentSeconds: sub.TimeSpentSeconds,
		TimedOut:         sub.TimedOut,
		ShownAt:          now,
		AnsweredAt:       &now,
	}
	if question.Type() == catalog.QuestionTypeMultipleChoice {
		qa.SelectedChoiceID = sub.ChoiceID
	} else if text := core.CleanString(sub.Answer); text != "" {
		qa.ProvidedAnswer = &text
	}

	att, err = svc.repo.SaveAnswer(ctx, qa, func(locked Attempt, t Tally) (Attempt, error) {
		if !locked.IsInProgress() {
			return locked, ErrAttemptNotInProgress
		}
		if locked.HasTimedOut(now) {
			return locked, errTimedOutOnSave
		}
		locked.CorrectAnswers = t.Correct
		locked.Score = Score(t.Correct, locked.TotalQuestions)
		if t.Answered >= locked.TotalQuestions {
			locked.Status = StatusCompleted
			locked.CompletedAt = &now
		}
		return locked, nil
	})
	switch {
	case errors.Is(err, errTimedOutOnSave):
		att, err = svc.repo.MarkFinished(ctx, attemptID, StatusTimedOut, now)
		if err != nil {
			return Attempt{}, errors.Wrap(err, "timing attempt out")
		}
		return att, ErrAttemptTimedOut
	case errors.Is(err, ErrAttemptNotInProgress):
		return att, ErrAttemptNotInProgress
	case err != nil:
		return Attempt{}, errors.Wrap(err, "saving answer")
	}
	return att, nil
}

// Finish completes the attempt before every question is answered.
func (svc *Service) Finish(ctx context.Context, usr user.User, attemptID string) (Attempt, error) {
	att, err := svc.activeAttempt(ctx, usr, attemptID)
	if err != nil {
		return att, err
	}
	att, err = svc.repo.MarkFinished(ctx, att.ID, StatusCompleted, core.NowFunc())
	if err != nil {
		return Attempt{}, errors.Wrap(err, "completing attempt")
	}
	return att, nil
}

// GetResults reviews every selected question of the attempt. In progress attempts get partial results.
func (svc *Service) GetResults(ctx context.Context, usr user.User, attemptID string) (Results, error) {
	att, err := svc.ownedAttempt(ctx, usr, attemptID)
	if err != nil {
		return Results{}, err
	}
	if att, _, err = svc.expire(ctx, att); err != nil {
		return Results{}, err
	}

	qz, err := svc.getQuiz(ctx, att.QuizID)
	if err != nil {
		return Results{}, err
	}
	questions, err := svc.catalog.GetQuestions(ctx, att.Selection)
	if err != nil {
		return Results{}, errors.Wrap(err, "getting questions")
	}
	qas, err := svc.repo.ListQuestionAttempts(ctx, att.ID)
	if err != nil {
		return Results{}, errors.Wrap(err, "listing question attempts")
	}
	byQuestion := make(map[int64]QuestionAttempt, len(qas))
	for _, qa := range qas {
		byQuestion[qa.QuestionID] = qa
	}

	res := Results{
		Attempt:      att,
		QuizTitle:    qz.Title,
		PassingScore: qz.PassingScore,
		Passed:       att.Score >= qz.PassingScore,
		Answered:     CountTally(qas).Answered,
		Questions:    make([]QuestionResult, 0, len(questions)),
	}
	for _, q := range questions {
		res.Questions = append(res.Questions, review(q, byQuestion[q.ID], qz, att))
	}
	return res, nil
}

func review(q catalog.Question, qa QuestionAttempt, qz catalog.Quiz, att Attempt) QuestionResult {
	res := QuestionResult{
		QuestionID:       q.ID,
		Type:             q.Type(),
		Text:             q.Text,
		Explanation:      q.Explanation,
		Answered:         qa.IsAnswered(),
		SelectedChoiceID: qa.SelectedChoiceID,
		ProvidedAnswer:   qa.ProvidedAnswer,
		IsCorrect:        qa.IsCorrect != nil && *qa.IsCorrect,
		TimedOut:         qa.TimedOut,
		TimeSpentSeconds: qa.TimeSpentSeconds,
	}
	switch body := q.Body.(type) {
	case catalog.MultipleChoiceBody:
		res.Choices = choiceViews(q, orderChoices(q, qz, att))
		res.CorrectChoiceIDs = body.CorrectChoiceIDs()
	case catalog.ShortAnswerBody:
		for _, a := range body.Answers {
			res.AcceptedAnswers = append(res.AcceptedAnswers, a.Text)
		}
		if qa.ProvidedAnswer != nil && res.IsCorrect {
			res.MatchMethod = string(answer.MatchDetail(*qa.ProvidedAnswer, body.Answers).Method)
		}
	}
	return res
}

// ListAttempts returns the attempts of usr, newest first. Elapsed attempts are timed out on the way.
func (svc *Service) ListAttempts(ctx context.Context, usr user.User, quizID *int64) ([]Attempt, error) {
	if usr.IsAnonymous() {
		return []Attempt{}, nil
	}
	atts, err := svc.repo.ListAttempts(ctx, usr.ID, quizID)
	if err != nil {
		return nil, errors.Wrap(err, "listing attempts")
	}
	for i := range atts {
		if atts[i], _, err = svc.expire(ctx, atts[i]); err != nil {
			return nil, err
		}
	}
	if atts == nil {
		atts = []Attempt{}
	}
	return atts, nil
}
