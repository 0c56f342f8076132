package entitlement

import (
	"sort"
	"strconv"
	"time"

	"github.com/pkg/errors"
)

type PlanType string

const (
	PlanTypeFree      PlanType = "free"
	PlanTypeTierOne   PlanType = "tier_one"
	PlanTypeTierTwo   PlanType = "tier_two"
	PlanTypeTierThree PlanType = "tier_three"
)

type Status string

const (
	StatusPending  Status = "pending"
	StatusActive   Status = "active"
	StatusPastDue  Status = "past_due"
	StatusCanceled Status = "canceled"
	StatusExpired  Status = "expired"
)

type ChangeType string

const (
	ChangeTypeUpgrade       ChangeType = "upgrade"
	ChangeTypeDowngrade     ChangeType = "downgrade"
	ChangeTypeChangeBilling ChangeType = "change_billing"
)

// Source tells which rule produced an AccessibleSet.
type Source string

const (
	SourceStaff        Source = "staff"
	SourceSubscription Source = "subscription"
	SourceFreeSample   Source = "free_sample"
)

var (
	// errors
	ErrNoFreePlan = errors.New("no free plan configured")
)

// ContentRef names a curriculum, or one class level of it when ClassLevelID is set.
// It is used for both the CurriculumAccess rows of a subscription and the free plan's sample content.
type ContentRef struct {
	CurriculumID int64  `json:"curriculum_id"`
	ClassLevelID *int64 `json:"class_level_id"`
}

func (ref ContentRef) covers(curriculumID int64, classLevelID *int64) bool {
	if ref.CurriculumID != curriculumID {
		return false
	}
	if ref.ClassLevelID == nil || classLevelID == nil {
		return true
	}
	return *ref.ClassLevelID == *classLevelID
}

func (ref ContentRef) equal(other ContentRef) bool {
	if ref.CurriculumID != other.CurriculumID {
		return false
	}
	if ref.ClassLevelID == nil || other.ClassLevelID == nil {
		return ref.ClassLevelID == nil && other.ClassLevelID == nil
	}
	return *ref.ClassLevelID == *other.ClassLevelID
}

type Plan struct {
	ID             int64    `json:"id"`
	Name           string   `json:"name"`
	PlanType       PlanType `json:"plan_type"`
	AllCurriculums bool     `json:"all_curriculums"`
	AllGradeLevels bool     `json:"all_grade_levels"`
	MaxUsers       int      `json:"max_users"`
	// FreeSample is only set on the free plan.
	FreeSample []ContentRef `json:"free_sample,omitempty"`
}

type Subscription struct {
	ID                  int64        `json:"id"`
	UserID              string       `json:"user_id"`
	PlanID              int64        `json:"plan_id"`
	Plan                Plan         `json:"plan"`
	Status              Status       `json:"status"`
	StartDate           time.Time    `json:"start_date"`
	EndDate             time.Time    `json:"end_date"`
	AutoRenew           bool         `json:"auto_renew"`
	ScheduledPlanID     *int64       `json:"scheduled_plan_id,omitempty"`
	ScheduledChangeType *ChangeType  `json:"scheduled_change_type,omitempty"`
	Accesses            []ContentRef `json:"accesses"`
}

func (sub Subscription) IsActive(now time.Time) bool {
	return sub.Status == StatusActive && sub.EndDate.After(now)
}

// rank orders active subscriptions: paid before free, broadest plan first, then most recent, then highest id.
func rank(subs []Subscription) {
	sort.SliceStable(subs, func(i, j int) bool {
		a, b := subs[i], subs[j]
		if aFree, bFree := a.Plan.PlanType == PlanTypeFree, b.Plan.PlanType == PlanTypeFree; aFree != bFree {
			return bFree
		}
		if a.Plan.AllCurriculums != b.Plan.AllCurriculums {
			return a.Plan.AllCurriculums
		}
		if a.Plan.AllGradeLevels != b.Plan.AllGradeLevels {
			return a.Plan.AllGradeLevels
		}
		if !a.StartDate.Equal(b.StartDate) {
			return a.StartDate.After(b.StartDate)
		}
		return a.ID > b.ID
	})
}

// AccessibleSet is the resolved entitlement of an identity.
type AccessibleSet struct {
	Source         Source       `json:"source"`
	PlanType       PlanType     `json:"plan_type,omitempty"`
	SubscriptionID *int64       `json:"subscription_id,omitempty"`
	Unrestricted   bool         `json:"unrestricted"`
	Curricula      []int64      `json:"curricula"` // sorted
	Grants         []ContentRef `json:"grants"`    // ignored when Unrestricted
}

// Allows reports whether the set covers the given curriculum and class level.
// A nil classLevelID asks about curriculum-wide content: any grant on the curriculum covers it.
func (s AccessibleSet) Allows(curriculumID int64, classLevelID *int64) bool {
	if s.Unrestricted {
		return true
	}
	for _, g := range s.Grants {
		if g.covers(curriculumID, classLevelID) {
			return true
		}
	}
	return false
}

func (s AccessibleSet) IsEmpty() bool {
	return !s.Unrestricted && len(s.Grants) == 0
}

func newRestrictedSet(src Source, grants []ContentRef) AccessibleSet {
	seen := make(map[int64]struct{})
	curricula := make([]int64, 0)
	for _, g := range grants {
		if _, ok := seen[g.CurriculumID]; !ok {
			seen[g.CurriculumID] = struct{}{}
			curricula = append(curricula, g.CurriculumID)
		}
	}
	sort.Slice(curricula, func(i, j int) bool { return curricula[i] < curricula[j] })
	if grants == nil {
		grants = []ContentRef{}
	}
	return AccessibleSet{Source: src, Curricula: curricula, Grants: grants}
}

// AccessDeniedError names the content an identity was refused.
type AccessDeniedError struct {
	CurriculumID int64
	ClassLevelID *int64
}

func (e *AccessDeniedError) Error() string {
	msg := "access denied to curriculum " + strconv.FormatInt(e.CurriculumID, 10)
	if e.ClassLevelID != nil {
		msg += " class level " + strconv.FormatInt(*e.ClassLevelID, 10)
	}
	return msg
}

// IsAccessDenied reports whether err (or its cause) is an *AccessDeniedError.
func IsAccessDenied(err error) bool {
	var aErr *AccessDeniedError
	return errors.As(err, &aErr)
}
