package dummydb

import (
	"context"
	"sort"
	"time"

	"github.com/trezcool/elearn/core/entitlement"
)

type entitlementRepository struct {
	db *entitlementTables
}

var _ entitlement.Repository = (*entitlementRepository)(nil) // interface compliance check

func NewEntitlementRepository(db *DB) entitlement.Repository {
	return &entitlementRepository{db: db.entitlement}
}

func (repo *entitlementRepository) ActiveSubscriptions(_ context.Context, userID string, now time.Time) ([]entitlement.Subscription, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	subs := make([]entitlement.Subscription, 0)
	for _, sub := range repo.db.subscriptions {
		if sub.UserID != userID || !sub.IsActive(now) {
			continue
		}
		if plan, ok := repo.db.plans[sub.PlanID]; ok {
			sub.Plan = plan
		}
		sub.Accesses = append([]entitlement.ContentRef(nil), sub.Accesses...)
		subs = append(subs, sub)
	}
	sort.Slice(subs, func(i, j int) bool { return subs[i].ID < subs[j].ID })
	return subs, nil
}

// freePlan must be called with the lock held.
func (repo *entitlementRepository) freePlan() (entitlement.Plan, bool) {
	var (
		found entitlement.Plan
		ok    bool
	)
	for _, plan := range repo.db.plans {
		if plan.PlanType == entitlement.PlanTypeFree && (!ok || plan.ID < found.ID) {
			found, ok = plan, true
		}
	}
	return found, ok
}

func (repo *entitlementRepository) FreePlan(_ context.Context) (entitlement.Plan, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	plan, ok := repo.freePlan()
	if !ok {
		return entitlement.Plan{}, entitlement.ErrNoFreePlan
	}
	plan.FreeSample = append([]entitlement.ContentRef(nil), plan.FreeSample...)
	return plan, nil
}

func (repo *entitlementRepository) SetFreeSample(_ context.Context, refs []entitlement.ContentRef) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	plan, ok := repo.freePlan()
	if !ok {
		return entitlement.ErrNoFreePlan
	}
	plan.FreeSample = append([]entitlement.ContentRef(nil), refs...)
	repo.db.plans[plan.ID] = plan
	return nil
}
