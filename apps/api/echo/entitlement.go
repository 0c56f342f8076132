package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/elearn/core"
	"github.com/trezcool/elearn/core/catalog"
)

type entitlementApi struct {
	resolver EntitlementResolver
	gate     AccessGate
	catalog  catalog.Repository
}

func registerEntitlementAPI(g *echo.Group, deps ServerDeps) {
	api := entitlementApi{
		resolver: deps.Entitlements,
		gate:     deps.Gate,
		catalog:  deps.Catalog,
	}

	g.GET("/entitlements", api.entitlements)
	g.GET("/access", api.access)

	cg := g.Group("/catalog")
	cg.GET("/curricula", api.curricula)
	cg.GET("/curricula/:"+curriculumParam+"/class-levels", api.classLevels, contentAccessMiddleware(api.gate))
	cg.GET("/quizzes/:"+quizParam, api.quiz, quizAccessMiddleware(api.gate))
}

type AccessResponse struct {
	Allowed bool `json:"allowed"`
}

// Handlers

func (api *entitlementApi) entitlements(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	set, err := api.resolver.ResolveEntitlements(ctx.Request().Context(), usr)
	if err != nil {
		return errors.Wrap(err, "resolving entitlements")
	}
	return ctx.JSON(http.StatusOK, set)
}

func (api *entitlementApi) access(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	curriculumID, err := queryID(ctx, "curriculum")
	if err != nil {
		return err
	}
	if curriculumID == nil {
		return core.NewValidationError(nil, core.FieldError{Field: "curriculum", Error: "this field is required"})
	}
	classLevelID, err := queryID(ctx, "class_level")
	if err != nil {
		return err
	}

	allowed, err := api.resolver.HasAccessToContent(ctx.Request().Context(), usr, *curriculumID, classLevelID)
	if err != nil {
		return errors.Wrap(err, "checking access")
	}
	return ctx.JSON(http.StatusOK, AccessResponse{Allowed: allowed})
}

func (api *entitlementApi) curricula(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	curricula, err := api.gate.VisibleCurricula(ctx.Request().Context(), usr)
	if err != nil {
		return errors.Wrap(err, "listing visible curricula")
	}
	return ctx.JSON(http.StatusOK, curricula)
}

// classLevels lists the class levels of the curriculum the identity is entitled to.
func (api *entitlementApi) classLevels(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	curriculumID, err := pathID(ctx, curriculumParam)
	if err != nil {
		return err
	}
	reqCtx := ctx.Request().Context()

	set, err := api.resolver.ResolveEntitlements(reqCtx, usr)
	if err != nil {
		return errors.Wrap(err, "resolving entitlements")
	}
	levels, err := api.catalog.ListClassLevels(reqCtx, curriculumID)
	if err != nil {
		return errors.Wrap(err, "listing class levels")
	}
	visible := make([]catalog.ClassLevel, 0, len(levels))
	for _, lvl := range levels {
		lvlID := lvl.ID
		if set.Allows(curriculumID, &lvlID) {
			visible = append(visible, lvl)
		}
	}
	return ctx.JSON(http.StatusOK, visible)
}

func (api *entitlementApi) quiz(ctx echo.Context) error {
	qz, ok := ctx.Get(contextQuizKey).(catalog.Quiz)
	if !ok {
		return errHttpNotFound
	}
	return ctx.JSON(http.StatusOK, qz)
}
