package echoapi

import (
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/trezcool/elearn/core"
)

const (
	attemptParam    = "attempt"
	curriculumParam = "curriculum"
	quizParam       = "quiz"
)

func invalidID(field string) error {
	return core.NewValidationError(nil, core.FieldError{Field: field, Error: "invalid id"})
}

// pathID parses the int64 ID of the path param. Unparsable IDs are reported as not found.
func pathID(ctx echo.Context, param string) (int64, error) {
	id, err := strconv.ParseInt(ctx.Param(param), 10, 64)
	if err != nil || id <= 0 {
		return 0, errHttpNotFound
	}
	return id, nil
}

// queryID parses the optional int64 ID of the query param.
func queryID(ctx echo.Context, param string) (*int64, error) {
	val := ctx.QueryParam(param)
	if val == "" {
		return nil, nil
	}
	id, err := strconv.ParseInt(val, 10, 64)
	if err != nil || id <= 0 {
		return nil, invalidID(param)
	}
	return &id, nil
}
