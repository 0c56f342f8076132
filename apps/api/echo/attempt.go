package echoapi

import (
	"net/http"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/elearn/core"
	"github.com/trezcool/elearn/core/quiz"
)

type attemptApi struct {
	svc        QuizService
	validate   *validator.Validate
	translator ut.Translator
}

func registerAttemptAPI(g *echo.Group, deps ServerDeps) {
	api := attemptApi{
		svc:        deps.QuizSvc,
		validate:   deps.Validate,
		translator: deps.Translator,
	}

	g.POST("/quizzes/:"+quizParam+"/attempts", api.start)

	ag := g.Group("/attempts")
	ag.GET("", api.list)

	dg := ag.Group("/:" + attemptParam)
	dg.GET("/next", api.next)
	dg.POST("/answers", api.answer)
	dg.POST("/finish", api.finish)
	dg.GET("/results", api.results)
}

type NextQuestionResponse struct {
	Attempt  quiz.Attempt       `json:"attempt"`
	Question *quiz.QuestionView `json:"question"` // null once the attempt is over
}

// validationErr translates validator errors into a core.ValidationError.
func (api *attemptApi) validationErr(err error) error {
	if err == nil {
		return nil
	}
	return core.TranslateValidationErrors(err, api.translator)
}

// Handlers

// start resumes the attempt in progress on the quiz, or starts a new one (201).
func (api *attemptApi) start(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	quizID, err := pathID(ctx, quizParam)
	if err != nil {
		return err
	}

	var opts quiz.StartOptions
	if err = ctx.Bind(&opts); err != nil {
		return errors.Wrap(err, "binding to StartOptions")
	}
	if err = api.validationErr(opts.Validate(api.validate)); err != nil {
		return err
	}

	att, created, err := api.svc.StartOrResume(ctx.Request().Context(), usr, quizID, opts)
	if err != nil {
		return errors.Wrap(err, "starting attempt")
	}
	code := http.StatusOK
	if created {
		code = http.StatusCreated
	}
	return ctx.JSON(code, att)
}

func (api *attemptApi) list(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	quizID, err := queryID(ctx, quizParam)
	if err != nil {
		return err
	}
	atts, err := api.svc.ListAttempts(ctx.Request().Context(), usr, quizID)
	if err != nil {
		return errors.Wrap(err, "listing attempts")
	}
	return ctx.JSON(http.StatusOK, atts)
}

func (api *attemptApi) next(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	att, view, err := api.svc.NextQuestion(ctx.Request().Context(), usr, ctx.Param(attemptParam))
	if err != nil {
		return errors.Wrap(err, "getting next question")
	}
	return ctx.JSON(http.StatusOK, NextQuestionResponse{Attempt: att, Question: view})
}

func (api *attemptApi) answer(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}

	var sub quiz.Submission
	if err = ctx.Bind(&sub); err != nil {
		return errors.Wrap(err, "binding to Submission")
	}
	if err = api.validationErr(sub.Validate(api.validate)); err != nil {
		return err
	}

	att, err := api.svc.SubmitAnswer(ctx.Request().Context(), usr, ctx.Param(attemptParam), sub)
	if err != nil {
		return errors.Wrap(err, "submitting answer")
	}
	return ctx.JSON(http.StatusOK, att)
}

func (api *attemptApi) finish(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	att, err := api.svc.Finish(ctx.Request().Context(), usr, ctx.Param(attemptParam))
	if err != nil {
		return errors.Wrap(err, "finishing attempt")
	}
	return ctx.JSON(http.StatusOK, att)
}

func (api *attemptApi) results(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	res, err := api.svc.GetResults(ctx.Request().Context(), usr, ctx.Param(attemptParam))
	if err != nil {
		return errors.Wrap(err, "getting results")
	}
	return ctx.JSON(http.StatusOK, res)
}
