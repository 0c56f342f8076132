package boiledrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/friendsofgo/errors"
	"github.com/volatiletech/null/v8"
	"github.com/volatiletech/sqlboiler/v4/boil"
	"github.com/volatiletech/sqlboiler/v4/queries"
	"github.com/volatiletech/strmangle"

	"github.com/trezcool/elearn/core"
	"github.com/trezcool/elearn/core/entitlement"
)

const planCols = "p.id, p.name, p.plan_type, p.all_curriculums, p.all_grade_levels, p.max_users"

type (
	planRow struct {
		ID             int64  `boil:"id"`
		Name           string `boil:"name"`
		PlanType       string `boil:"plan_type"`
		AllCurriculums bool   `boil:"all_curriculums"`
		AllGradeLevels bool   `boil:"all_grade_levels"`
		MaxUsers       int    `boil:"max_users"`
	}

	subscriptionRow struct {
		ID                  int64       `boil:"id"`
		UserID              string      `boil:"user_id"`
		PlanID              int64       `boil:"plan_id"`
		Status              string      `boil:"status"`
		StartDate           time.Time   `boil:"start_date"`
		EndDate             time.Time   `boil:"end_date"`
		AutoRenew           bool        `boil:"auto_renew"`
		ScheduledPlanID     null.Int64  `boil:"scheduled_plan_id"`
		ScheduledChangeType null.String `boil:"scheduled_change_type"`
		PlanName            string      `boil:"plan_name"`
		PlanType            string      `boil:"plan_type"`
		AllCurriculums      bool        `boil:"all_curriculums"`
		AllGradeLevels      bool        `boil:"all_grade_levels"`
		MaxUsers            int         `boil:"max_users"`
	}

	contentRefRow struct {
		OwnerID      int64      `boil:"owner_id"`
		CurriculumID int64      `boil:"curriculum_id"`
		ClassLevelID null.Int64 `boil:"class_level_id"`
	}
)

func (row planRow) unboil() entitlement.Plan {
	return entitlement.Plan{
		ID:             row.ID,
		Name:           row.Name,
		PlanType:       entitlement.PlanType(row.PlanType),
		AllCurriculums: row.AllCurriculums,
		AllGradeLevels: row.AllGradeLevels,
		MaxUsers:       row.MaxUsers,
	}
}

func (row subscriptionRow) unboil() entitlement.Subscription {
	sub := entitlement.Subscription{
		ID:     row.ID,
		UserID: row.UserID,
		PlanID: row.PlanID,
		Plan: entitlement.Plan{
			ID:             row.PlanID,
			Name:           row.PlanName,
			PlanType:       entitlement.PlanType(row.PlanType),
			AllCurriculums: row.AllCurriculums,
			AllGradeLevels: row.AllGradeLevels,
			MaxUsers:       row.MaxUsers,
		},
		Status:          entitlement.Status(row.Status),
		StartDate:       row.StartDate.UTC(),
		EndDate:         row.EndDate.UTC(),
		AutoRenew:       row.AutoRenew,
		ScheduledPlanID: row.ScheduledPlanID.Ptr(),
		Accesses:        []entitlement.ContentRef{},
	}
	if row.ScheduledChangeType.Valid {
		ct := entitlement.ChangeType(row.ScheduledChangeType.String)
		sub.ScheduledChangeType = &ct
	}
	return sub
}

func (row contentRefRow) unboil() entitlement.ContentRef {
	return entitlement.ContentRef{CurriculumID: row.CurriculumID, ClassLevelID: row.ClassLevelID.Ptr()}
}

type entitlementRepository struct {
	db core.DB
}

var _ entitlement.Repository = (*entitlementRepository)(nil) // interface compliance check

func NewEntitlementRepository(db core.DB) *entitlementRepository {
	return &entitlementRepository{db: db}
}

func (repo entitlementRepository) ActiveSubscriptions(ctx context.Context, userID string, now time.Time) ([]entitlement.Subscription, error) {
	var rows []*subscriptionRow
	q := "SELECT s.id, s.user_id, s.plan_id, s.status, s.start_date, s.end_date, s.auto_renew," +
		" s.scheduled_plan_id, s.scheduled_change_type, p.name AS plan_name, p.plan_type," +
		" p.all_curriculums, p.all_grade_levels, p.max_users" +
		" FROM subscription s JOIN subscription_plan p ON p.id = s.plan_id" +
		" WHERE s.user_id = $1 AND s.status = $2 AND s.end_date > $3" +
		" ORDER BY s.id"
	if err := queries.Raw(q, userID, entitlement.StatusActive, now.UTC()).Bind(ctx, repo.db, &rows); err != nil {
		return nil, errors.Wrap(err, "selecting active subscriptions")
	}

	subs := make([]entitlement.Subscription, 0, len(rows))
	ids := make([]interface{}, 0, len(rows))
	for _, row := range rows {
		subs = append(subs, row.unboil())
		ids = append(ids, row.ID)
	}
	if len(ids) == 0 {
		return subs, nil
	}

	var refs []*contentRefRow
	q = "SELECT subscription_id AS owner_id, curriculum_id, class_level_id FROM curriculum_access" +
		" WHERE subscription_id IN (" + strmangle.Placeholders(true, len(ids), 1, 1) + ") ORDER BY id"
	if err := queries.Raw(q, ids...).Bind(ctx, repo.db, &refs); err != nil {
		return nil, errors.Wrap(err, "selecting curriculum accesses")
	}
	for i := range subs {
		for _, ref := range refs {
			if ref.OwnerID == subs[i].ID {
				subs[i].Accesses = append(subs[i].Accesses, ref.unboil())
			}
		}
	}
	return subs, nil
}

func (repo entitlementRepository) freePlan(ctx context.Context, exec boil.ContextExecutor) (entitlement.Plan, error) {
	var row planRow
	q := "SELECT " + planCols + " FROM subscription_plan p WHERE p.plan_type = $1 ORDER BY p.id LIMIT 1"
	if err := queries.Raw(q, entitlement.PlanTypeFree).Bind(ctx, exec, &row); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return entitlement.Plan{}, entitlement.ErrNoFreePlan
		}
		return entitlement.Plan{}, errors.Wrap(err, "finding free plan")
	}
	return row.unboil(), nil
}

func (repo entitlementRepository) FreePlan(ctx context.Context) (entitlement.Plan, error) {
	plan, err := repo.freePlan(ctx, repo.db)
	if err != nil {
		return entitlement.Plan{}, err
	}

	var refs []*contentRefRow
	q := "SELECT plan_id AS owner_id, curriculum_id, class_level_id FROM free_sample_content WHERE plan_id = $1 ORDER BY id"
	if err = queries.Raw(q, plan.ID).Bind(ctx, repo.db, &refs); err != nil {
		return entitlement.Plan{}, errors.Wrap(err, "selecting free sample content")
	}
	plan.FreeSample = make([]entitlement.ContentRef, 0, len(refs))
	for _, ref := range refs {
		plan.FreeSample = append(plan.FreeSample, ref.unboil())
	}
	return plan, nil
}

func (repo entitlementRepository) SetFreeSample(ctx context.Context, refs []entitlement.ContentRef) error {
	return inTx(ctx, repo.db, func(tx *sql.Tx) error {
		plan, err := repo.freePlan(ctx, tx)
		if err != nil {
			return err
		}
		if _, err = queries.Raw("DELETE FROM free_sample_content WHERE plan_id = $1", plan.ID).ExecContext(ctx, tx); err != nil {
			return errors.Wrap(err, "clearing free sample content")
		}
		if len(refs) == 0 {
			return nil
		}

		args := make([]interface{}, 0, 3*len(refs))
		for _, ref := range refs {
			args = append(args, plan.ID, ref.CurriculumID, null.Int64FromPtr(ref.ClassLevelID))
		}
		ins := "INSERT INTO free_sample_content (plan_id, curriculum_id, class_level_id) VALUES " +
			strmangle.Placeholders(true, len(args), 1, 3)
		if _, err = queries.Raw(ins, args...).ExecContext(ctx, tx); err != nil {
			return errors.Wrap(err, "inserting free sample content")
		}
		return nil
	})
}
