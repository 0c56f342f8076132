// Package entitlement resolves which curricula and class levels an identity may access.
package entitlement

import (
	"context"
	"sync"
	"time"

	"github.com/kat-co/vala"
	"github.com/pkg/errors"
	"golang.org/x/sync/singleflight"

	"github.com/trezcool/elearn/core"
	"github.com/trezcool/elearn/core/catalog"
	"github.com/trezcool/elearn/core/user"
)

const freeSampleKey = "free-sample"

type Resolver struct {
	repo    Repository
	catalog catalog.Repository
	log     core.Logger
	ttl     time.Duration

	mu        sync.RWMutex
	sample    []ContentRef
	expiresAt time.Time
	group     singleflight.Group
}

func NewResolver(repo Repository, catalogRepo catalog.Repository, logger core.Logger, conf *core.Config) *Resolver {
	vala.BeginValidation().Validate(
		vala.IsNotNil(repo, "repo"),
		vala.IsNotNil(catalogRepo, "catalogRepo"),
		vala.IsNotNil(logger, "logger"),
		vala.IsNotNil(conf, "conf"),
	).CheckAndPanic()

	return &Resolver{
		repo:    repo,
		catalog: catalogRepo,
		log:     logger,
		ttl:     conf.Entitlement.FreeSampleTTL,
	}
}

// ResolveEntitlements applies, in order: staff access, the identity's best active subscription, the free sample.
// A subscription to the free plan resolves to the free sample plus its own access rows.
func (r *Resolver) ResolveEntitlements(ctx context.Context, usr user.User) (AccessibleSet, error) {
	if usr.IsStaffOrSuperuser() {
		curricula, err := r.activeCurricula(ctx)
		if err != nil {
			return AccessibleSet{}, err
		}
		return AccessibleSet{Source: SourceStaff, Unrestricted: true, Curricula: curricula, Grants: []ContentRef{}}, nil
	}

	sub, ok, err := r.activeSubscription(ctx, usr)
	if err != nil {
		return AccessibleSet{}, err
	}
	if ok {
		return r.fromSubscription(ctx, sub)
	}

	sample, err := r.FreeSample(ctx)
	if err != nil {
		return AccessibleSet{}, err
	}
	set := newRestrictedSet(SourceFreeSample, sample)
	set.PlanType = PlanTypeFree
	return set, nil
}

func (r *Resolver) fromSubscription(ctx context.Context, sub Subscription) (AccessibleSet, error) {
	var set AccessibleSet
	switch {
	case sub.Plan.PlanType == PlanTypeFree:
		sample, err := r.FreeSample(ctx)
		if err != nil {
			return AccessibleSet{}, err
		}
		set = newRestrictedSet(SourceFreeSample, union(sample, sub.Accesses))
	case sub.Plan.AllCurriculums:
		curricula, err := r.activeCurricula(ctx)
		if err != nil {
			return AccessibleSet{}, err
		}
		set = AccessibleSet{Source: SourceSubscription, Unrestricted: true, Curricula: curricula, Grants: []ContentRef{}}
	case sub.Plan.AllGradeLevels:
		grants := make([]ContentRef, 0, len(sub.Accesses))
		seen := make(map[int64]struct{})
		for _, acc := range sub.Accesses {
			if _, ok := seen[acc.CurriculumID]; !ok {
				seen[acc.CurriculumID] = struct{}{}
				grants = append(grants, ContentRef{CurriculumID: acc.CurriculumID})
			}
		}
		set = newRestrictedSet(SourceSubscription, grants)
	default:
		set = newRestrictedSet(SourceSubscription, sub.Accesses)
	}
	id := sub.ID
	set.SubscriptionID = &id
	set.PlanType = sub.Plan.PlanType
	return set, nil
}

// union appends to a the refs of b it does not already hold.
func union(a, b []ContentRef) []ContentRef {
	refs := append(make([]ContentRef, 0, len(a)+len(b)), a...)
	for _, ref := range b {
		found := false
		for _, r := range refs {
			if r.equal(ref) {
				found = true
				break
			}
		}
		if !found {
			refs = append(refs, ref)
		}
	}
	return refs
}

func (r *Resolver) activeCurricula(ctx context.Context) ([]int64, error) {
	curricula, err := r.catalog.ListCurricula(ctx, true)
	if err != nil {
		return nil, errors.Wrap(err, "listing active curricula")
	}
	ids := make([]int64, 0, len(curricula))
	for _, c := range curricula {
		ids = append(ids, c.ID)
	}
	return ids, nil
}

// activeSubscription picks the highest ranked active subscription of usr.
func (r *Resolver) activeSubscription(ctx context.Context, usr user.User) (Subscription, bool, error) {
	if usr.IsAnonymous() {
		return Subscription{}, false, nil
	}
	now := core.NowFunc()
	subs, err := r.repo.ActiveSubscriptions(ctx, usr.ID, now)
	if err != nil {
		return Subscription{}, false, errors.Wrap(err, "fetching active subscriptions")
	}
	active := subs[:0:0]
	for _, sub := range subs {
		if sub.IsActive(now) {
			active = append(active, sub)
		}
	}
	if len(active) == 0 {
		return Subscription{}, false, nil
	}
	if len(active) > 1 {
		r.log.Warn("several active subscriptions", map[string]interface{}{"count": len(active)}, usr)
		rank(active)
	}
	return active[0], true, nil
}

// ResolveAccessibleCurricula returns the sorted ids of the curricula usr may browse.
func (r *Resolver) ResolveAccessibleCurricula(ctx context.Context, usr user.User) ([]int64, error) {
	set, err := r.ResolveEntitlements(ctx, usr)
	if err != nil {
		return nil, err
	}
	return set.Curricula, nil
}

func (r *Resolver) HasAccessToClassLevel(ctx context.Context, usr user.User, curriculumID, classLevelID int64) (bool, error) {
	return r.HasAccessToContent(ctx, usr, curriculumID, &classLevelID)
}

// HasAccessToContent reports whether usr may open the given content.
// A nil classLevelID asks about curriculum-wide content and is true as soon as any grant covers the curriculum,
// even a single class level of it: it does not mean every class level of the curriculum is accessible.
func (r *Resolver) HasAccessToContent(ctx context.Context, usr user.User, curriculumID int64, classLevelID *int64) (bool, error) {
	set, err := r.ResolveEntitlements(ctx, usr)
	if err != nil {
		return false, err
	}
	return set.Allows(curriculumID, classLevelID), nil
}

// CheckAccess is HasAccessToContent reporting a refusal as an *AccessDeniedError.
func (r *Resolver) CheckAccess(ctx context.Context, usr user.User, curriculumID int64, classLevelID *int64) error {
	ok, err := r.HasAccessToContent(ctx, usr, curriculumID, classLevelID)
	if err != nil {
		return err
	}
	if !ok {
		return &AccessDeniedError{CurriculumID: curriculumID, ClassLevelID: classLevelID}
	}
	return nil
}

// HasPremium reports whether usr may see premium questions.
func (r *Resolver) HasPremium(ctx context.Context, usr user.User) (bool, error) {
	if usr.IsPremium || usr.IsStaffOrSuperuser() {
		return true, nil
	}
	sub, ok, err := r.activeSubscription(ctx, usr)
	if err != nil {
		return false, err
	}
	return ok && sub.Plan.PlanType != PlanTypeFree, nil
}

// FreeSample returns the free plan's sample content, cached for the configured TTL.
func (r *Resolver) FreeSample(ctx context.Context) ([]ContentRef, error) {
	r.mu.RLock()
	if r.sample != nil && core.NowFunc().Before(r.expiresAt) {
		sample := r.sample
		r.mu.RUnlock()
		return sample, nil
	}
	r.mu.RUnlock()

	// the reload is shared by every waiting caller: it must not fail because the first one gave up
	loadCtx := context.WithoutCancel(ctx)
	v, err, _ := r.group.Do(freeSampleKey, func() (interface{}, error) {
		plan, err := r.repo.FreePlan(loadCtx)
		switch {
		case errors.Is(err, ErrNoFreePlan):
			r.log.Warn("no free plan configured, free sample is empty")
		case err != nil:
			return nil, errors.Wrap(err, "fetching free plan")
		}
		sample := plan.FreeSample
		if sample == nil {
			sample = []ContentRef{}
		}

		r.mu.Lock()
		r.sample = sample
		r.expiresAt = core.NowFunc().Add(r.ttl)
		r.mu.Unlock()
		return sample, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]ContentRef), nil
}

// Invalidate drops the cached free sample.
func (r *Resolver) Invalidate() {
	r.mu.Lock()
	r.sample = nil
	r.expiresAt = time.Time{}
	r.mu.Unlock()
	r.group.Forget(freeSampleKey)
}

// AddFreeSample adds ref to the free plan's sample content. Already sampled content is left as is.
func (r *Resolver) AddFreeSample(ctx context.Context, ref ContentRef) ([]ContentRef, error) {
	plan, err := r.repo.FreePlan(ctx)
	if err != nil {
		return nil, err
	}
	for _, s := range plan.FreeSample {
		if s.equal(ref) {
			return plan.FreeSample, nil
		}
	}
	sample := append(plan.FreeSample, ref)
	if err := r.repo.SetFreeSample(ctx, sample); err != nil {
		return nil, errors.Wrap(err, "saving free sample")
	}
	r.Invalidate()
	return sample, nil
}

func (r *Resolver) RemoveFreeSample(ctx context.Context, ref ContentRef) ([]ContentRef, error) {
	plan, err := r.repo.FreePlan(ctx)
	if err != nil {
		return nil, err
	}
	sample := make([]ContentRef, 0, len(plan.FreeSample))
	for _, s := range plan.FreeSample {
		if !s.equal(ref) {
			sample = append(sample, s)
		}
	}
	if len(sample) == len(plan.FreeSample) {
		return sample, nil
	}
	if err := r.repo.SetFreeSample(ctx, sample); err != nil {
		return nil, errors.Wrap(err, "saving free sample")
	}
	r.Invalidate()
	return sample, nil
}
