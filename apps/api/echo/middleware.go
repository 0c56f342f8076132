package echoapi

import (
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
)

var contextQuizKey = "quiz"

// contentAccessMiddleware only lets through the identities entitled to the curriculum of the route.
func contentAccessMiddleware(gate AccessGate) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			usr, err := getContextUser(ctx)
			if err != nil {
				return err
			}
			curriculumID, err := pathID(ctx, curriculumParam)
			if err != nil {
				return err
			}
			if err = gate.AuthorizeContent(ctx.Request().Context(), usr, curriculumID, nil); err != nil {
				return errors.Wrap(err, "authorizing content")
			}
			return next(ctx)
		}
	}
}

// quizAccessMiddleware only lets through the identities entitled to the quiz of the route.
// The quiz is then available in the context.
func quizAccessMiddleware(gate AccessGate) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			usr, err := getContextUser(ctx)
			if err != nil {
				return err
			}
			quizID, err := pathID(ctx, quizParam)
			if err != nil {
				return err
			}
			qz, err := gate.AuthorizeQuiz(ctx.Request().Context(), usr, quizID)
			if err != nil {
				return errors.Wrap(err, "authorizing quiz")
			}
			ctx.Set(contextQuizKey, qz)
			return next(ctx)
		}
	}
}
