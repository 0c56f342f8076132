package access_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/elearn/core"
	"github.com/trezcool/elearn/core/access"
	"github.com/trezcool/elearn/core/entitlement"
	"github.com/trezcool/elearn/core/quiz"
	"github.com/trezcool/elearn/core/user"
	"github.com/trezcool/elearn/storage/database/dummy"
	"github.com/trezcool/elearn/tests"
)

func setup(t *testing.T) *access.Gate {
	testutil.FreezeClock(t, time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC))
	db, err := dummydb.Open()
	require.NoError(t, err)
	testutil.SeedCatalog(db)
	testutil.SeedPlans(db)

	catalogRepo := dummydb.NewCatalogRepository(db)
	conf := &core.Config{Entitlement: core.EntitlementConfig{FreeSampleTTL: time.Minute}}
	resolver := entitlement.NewResolver(dummydb.NewEntitlementRepository(db), catalogRepo, &core.NopLogger{}, conf)
	return access.NewGate(resolver, catalogRepo)
}

func TestGate_AuthorizeQuiz(t *testing.T) {
	gate := setup(t)
	ctx := context.Background()
	student := user.User{ID: "u-student"}
	staff := user.User{ID: "u-staff", IsSuperuser: true}

	tests := []struct {
		name    string
		usr     user.User
		quizID  int64
		denied  bool
		wantErr error
	}{
		{name: "free sample", usr: student, quizID: testutil.QuizMaths},
		{name: "outside free sample", usr: student, quizID: testutil.QuizScience, denied: true},
		{name: "staff", usr: staff, quizID: testutil.QuizScience},
		{name: "inactive", usr: staff, quizID: testutil.QuizInactive, wantErr: quiz.ErrQuizNotFound},
		{name: "unknown", usr: staff, quizID: 999, wantErr: quiz.ErrQuizNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			qz, err := gate.AuthorizeQuiz(ctx, tt.usr, tt.quizID)
			switch {
			case tt.wantErr != nil:
				assert.ErrorIs(t, err, tt.wantErr)
			case tt.denied:
				assert.True(t, entitlement.IsAccessDenied(err))
			default:
				require.NoError(t, err)
				assert.Equal(t, tt.quizID, qz.ID)
			}
		})
	}
}

func TestGate_VisibleCurricula(t *testing.T) {
	gate := setup(t)
	ctx := context.Background()

	curricula, err := gate.VisibleCurricula(ctx, user.User{ID: "u-student"})
	require.NoError(t, err)
	require.Len(t, curricula, 1)
	assert.Equal(t, testutil.CurriculumCBC, curricula[0].ID)

	curricula, err = gate.VisibleCurricula(ctx, user.User{ID: "u-staff", Roles: []string{user.RoleStaff}})
	require.NoError(t, err)
	assert.Len(t, curricula, 2, "inactive curricula are hidden")
}

func TestGate_AuthorizeContent(t *testing.T) {
	gate := setup(t)
	ctx := context.Background()
	grade5 := testutil.ClassLevelGrade5

	assert.NoError(t, gate.AuthorizeContent(ctx, user.User{ID: "u-student"}, testutil.CurriculumCBC, nil))
	err := gate.AuthorizeContent(ctx, user.User{ID: "u-student"}, testutil.CurriculumCBC, &grade5)
	assert.True(t, entitlement.IsAccessDenied(err))
}
