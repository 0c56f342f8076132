// Package access guards catalog and quiz navigation with the entitlement rules.
package access

import (
	"context"

	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/trezcool/elearn/core/catalog"
	"github.com/trezcool/elearn/core/entitlement"
	"github.com/trezcool/elearn/core/quiz"
	"github.com/trezcool/elearn/core/user"
)

// Resolver is implemented by *entitlement.Resolver.
type Resolver interface {
	ResolveEntitlements(ctx context.Context, usr user.User) (entitlement.AccessibleSet, error)
	CheckAccess(ctx context.Context, usr user.User, curriculumID int64, classLevelID *int64) error
}

type Gate struct {
	resolver Resolver
	catalog  catalog.Repository
}

func NewGate(resolver Resolver, catalogRepo catalog.Repository) *Gate {
	vala.BeginValidation().Validate(
		vala.IsNotNil(resolver, "resolver"),
		vala.IsNotNil(catalogRepo, "catalogRepo"),
	).CheckAndPanic()
	return &Gate{resolver: resolver, catalog: catalogRepo}
}

// AuthorizeQuiz returns the quiz if usr may take it.
// Unknown and inactive quizzes are reported as quiz.ErrQuizNotFound.
func (g *Gate) AuthorizeQuiz(ctx context.Context, usr user.User, quizID int64) (catalog.Quiz, error) {
	qz, err := g.catalog.GetQuiz(ctx, quizID)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			return catalog.Quiz{}, quiz.ErrQuizNotFound
		}
		return catalog.Quiz{}, errors.Wrap(err, "getting quiz")
	}
	if !qz.IsActive {
		return catalog.Quiz{}, quiz.ErrQuizNotFound
	}
	if err = g.resolver.CheckAccess(ctx, usr, qz.CurriculumID, &qz.ClassLevelID); err != nil {
		return catalog.Quiz{}, err
	}
	return qz, nil
}

func (g *Gate) AuthorizeContent(ctx context.Context, usr user.User, curriculumID int64, classLevelID *int64) error {
	return g.resolver.CheckAccess(ctx, usr, curriculumID, classLevelID)
}

// VisibleCurricula lists the active curricula usr may browse.
func (g *Gate) VisibleCurricula(ctx context.Context, usr user.User) ([]catalog.Curriculum, error) {
	set, err := g.resolver.ResolveEntitlements(ctx, usr)
	if err != nil {
		return nil, err
	}
	all, err := g.catalog.ListCurricula(ctx, true)
	if err != nil {
		return nil, errors.Wrap(err, "listing curricula")
	}
	visible := make([]catalog.Curriculum, 0, len(all))
	for _, c := range all {
		if set.Allows(c.ID, nil) {
			visible = append(visible, c)
		}
	}
	return visible, nil
}
