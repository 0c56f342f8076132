package echoapi

import (
	"net/http"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/trezcool/elearn/core"
	"github.com/trezcool/elearn/core/catalog"
	"github.com/trezcool/elearn/core/entitlement"
	"github.com/trezcool/elearn/core/quiz"
	"github.com/trezcool/elearn/core/selection"
	"github.com/trezcool/elearn/core/user"
)

var (
	errUnauthorized = echo.NewHTTPError(http.StatusUnauthorized, "user not authenticated")
	errHttpNotFound = echo.NewHTTPError(http.StatusNotFound, "not found")
)

type accessDeniedResponse struct {
	Error        string `json:"error"`
	CurriculumID int64  `json:"curriculum_id"`
	ClassLevelID *int64 `json:"class_level_id"`
}

type conflictResponse struct {
	Error      string `json:"error"`
	ResultsURL string `json:"results_url,omitempty"`
}

// attemptResultsURL is where a client is sent once the attempt of the request is over.
func attemptResultsURL(ctx echo.Context) string {
	if id := ctx.Param(attemptParam); id != "" {
		return "/v1/attempts/" + id + "/results"
	}
	return ""
}

// newAppHTTPErrorHandler returns a custom echo.HTTPErrorHandler that knows how to handle our errors.
func newAppHTTPErrorHandler(logger core.Logger, translator ut.Translator) echo.HTTPErrorHandler {
	return func(err error, ctx echo.Context) {
		var code int
		var message interface{}

		var (
			denied *entitlement.AccessDeniedError
			vErr   *core.ValidationError
		)
		cause := errors.Cause(err)

		switch {
		case errors.As(err, &denied):
			code = http.StatusForbidden
			message = accessDeniedResponse{
				Error:        denied.Error(),
				CurriculumID: denied.CurriculumID,
				ClassLevelID: denied.ClassLevelID,
			}
		case errors.Is(err, selection.ErrNoQuestionsAvailable):
			code = http.StatusUnprocessableEntity
			message = selection.ErrNoQuestionsAvailable.Error()
		case errors.Is(err, quiz.ErrAttemptNotInProgress), errors.Is(err, quiz.ErrAttemptTimedOut):
			code = http.StatusConflict
			message = conflictResponse{Error: cause.Error(), ResultsURL: attemptResultsURL(ctx)}
		case errors.Is(err, quiz.ErrAttemptNotFound), errors.Is(err, quiz.ErrQuizNotFound), errors.Is(err, catalog.ErrNotFound):
			code = http.StatusNotFound
			message = cause.Error()
		case errors.As(err, &vErr):
			if vErr.Fields != nil {
				fldErrs := make(map[string]string, len(vErr.Fields))
				for _, fErr := range vErr.Fields {
					fldErrs[fErr.Field] = fErr.Error
				}
				message = fldErrs
			} else {
				message = vErr.Error()
			}
			code = http.StatusBadRequest
		default:
			switch origErr := cause.(type) {
			case *echo.HTTPError:
				if origErr == middleware.ErrJWTMissing {
					code = http.StatusUnauthorized
					message = origErr.Message
					break
				}
				if origErr.Internal != nil {
					if herr, ok := origErr.Internal.(*echo.HTTPError); ok {
						origErr = herr
					}
				}
				code = origErr.Code
				message = origErr.Message
			case validator.ValidationErrors:
				fldErrs := make(map[string]string, len(origErr))
				for _, fe := range origErr {
					fldErrs[fe.Field()] = fe.Translate(translator)
				}
				code = http.StatusBadRequest
				message = fldErrs
			default: // any other error is a server error
				code = http.StatusInternalServerError
				msg := http.StatusText(http.StatusInternalServerError)
				message = msg

				var usr user.User
				if claims, cErr := getContextClaims(ctx); cErr == nil {
					usr = claims.User()
				}
				logger.Error(msg, errors.Wrap(err, msg), usr)
			}
		}

		if ctx.Echo().Debug && code == http.StatusInternalServerError {
			message = err.Error()
		}
		if m, ok := message.(string); ok {
			message = echo.Map{"error": m}
		}

		// Send response
		if !ctx.Response().Committed {
			if ctx.Request().Method == http.MethodHead { // Issue #608
				err = ctx.NoContent(code)
			} else {
				err = ctx.JSON(code, message)
			}
			if err != nil {
				ctx.Echo().Logger.Error(err)
			}
		}
	}
}
