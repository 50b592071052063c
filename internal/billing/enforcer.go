package billing

import (
	"context"
	"errors"
	"fmt"

	"github.com/soyeahso/taskweaver/internal/domain"
	"github.com/soyeahso/taskweaver/internal/logging"
)

// ErrLimitReached is matched by every *LimitError.
var ErrLimitReached = errors.New("plan limit reached")

// LimitError reports which limit blocked an action.
type LimitError struct {
	Plan     string   `json:"plan"`
	Resource Resource `json:"resource"`
	Limit    int      `json:"limit"`
	Current  int      `json:"current"`
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("plan %q allows %d %s (currently %d)", e.Plan, e.Limit, e.Resource, e.Current)
}

func (e *LimitError) Is(target error) bool { return target == ErrLimitReached }

// Counter returns a user's current usage of one resource.
type Counter func(ctx context.Context, userID string) (int, error)

// Users resolves the user record that carries the plan.
type Users interface {
	Ensure(ctx context.Context, id, plan string) (*domain.User, error)
}

// Enforcer checks a user's usage against their plan before an action.
type Enforcer struct {
	users       Users
	defaultPlan string
	counters    map[Resource]Counter
	log         *logging.Logger
}

// NewEnforcer creates an Enforcer. Users without a record are created on
// defaultPlan. Resources without a counter are not enforced.
func NewEnforcer(users Users, defaultPlan string, counters map[Resource]Counter, log *logging.Logger) *Enforcer {
	return &Enforcer{
		users:       users,
		defaultPlan: defaultPlan,
		counters:    counters,
		log:         log.Sub("billing"),
	}
}

// PlanFor returns the plan of userID, creating the user if needed.
func (e *Enforcer) PlanFor(ctx context.Context, userID string) (Plan, error) {
	u, err := e.users.Ensure(ctx, userID, e.defaultPlan)
	if err != nil {
		return Plan{}, fmt.Errorf("loading user %s: %w", userID, err)
	}
	p, ok := GetPlan(u.Plan)
	if !ok {
		return Plan{}, fmt.Errorf("user %s has unknown plan %q", userID, u.Plan)
	}
	return p, nil
}

// Check returns a *LimitError when userID may not add another unit of r.
func (e *Enforcer) Check(ctx context.Context, userID string, r Resource) error {
	count, ok := e.counters[r]
	if !ok {
		return nil
	}
	plan, err := e.PlanFor(ctx, userID)
	if err != nil {
		return err
	}
	current, err := count(ctx, userID)
	if err != nil {
		return fmt.Errorf("counting %s for %s: %w", r, userID, err)
	}
	if IsWithinLimits(plan.ID, r, current) {
		return nil
	}

	limit, _ := plan.Limits.For(r)
	e.log.Info().
		Str("user_id", userID).
		Str("plan", plan.ID).
		Str("resource", string(r)).
		Int("current", current).
		Int("limit", limit).
		Msg("plan limit reached")
	return &LimitError{Plan: plan.ID, Resource: r, Limit: limit, Current: current}
}

// Reserve runs create with userID's limit for r, or Unlimited when r is
// not enforced. create must apply the limit atomically with its insert
// and fail with an error matching ErrLimitReached when it is met; Reserve
// reports that as a *LimitError.
func (e *Enforcer) Reserve(ctx context.Context, userID string, r Resource, create func(ctx context.Context, limit int) error) error {
	count, ok := e.counters[r]
	if !ok {
		return create(ctx, Unlimited)
	}
	plan, err := e.PlanFor(ctx, userID)
	if err != nil {
		return err
	}
	limit, ok := plan.Limits.For(r)
	if !ok {
		limit = Unlimited
	}

	err = create(ctx, limit)
	var le *LimitError
	if !errors.Is(err, ErrLimitReached) || errors.As(err, &le) {
		return err
	}
	current, cerr := count(ctx, userID)
	if cerr != nil {
		current = limit
	}
	e.log.Info().
		Str("user_id", userID).
		Str("plan", plan.ID).
		Str("resource", string(r)).
		Int("limit", limit).
		Msg("plan limit reached at insert")
	return &LimitError{Plan: plan.ID, Resource: r, Limit: limit, Current: current}
}
