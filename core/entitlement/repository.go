package entitlement

import (
	"context"
	"time"
)

// Repository is fed by the billing system. Only the free sample content is managed here.
type Repository interface {
	// ActiveSubscriptions returns the subscriptions of userID that are active at now,
	// with their Plan and Accesses loaded.
	ActiveSubscriptions(ctx context.Context, userID string, now time.Time) ([]Subscription, error)
	// FreePlan returns the designated free plan with its sample content, or ErrNoFreePlan.
	FreePlan(ctx context.Context) (Plan, error)
	// SetFreeSample replaces the free plan's sample content.
	SetFreeSample(ctx context.Context, refs []ContentRef) error
}
