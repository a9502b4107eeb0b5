package auth

import "fmt"

// DecisionObserver is notified of every authorization verdict.
type DecisionObserver func(operation string, err error)

// Resolver turns an identity and a requested operation into a verdict or an
// effective filter, using the role hierarchy. It holds no per-request state.
type Resolver struct {
	observe DecisionObserver
}

// ResolverOption configures Resolver.
type ResolverOption func(*Resolver)

// WithDecisionObserver installs a callback for authorization outcomes.
func WithDecisionObserver(fn DecisionObserver) ResolverOption {
	return func(r *Resolver) {
		r.observe = fn
	}
}

func NewResolver(opts ...ResolverOption) *Resolver {
	r := &Resolver{}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Resolver) record(op string, err error) {
	if r != nil && r.observe != nil {
		r.observe(op, err)
	}
}

// AuthorizeManageRole decides whether actor may create or assign targetRole.
func (r *Resolver) AuthorizeManageRole(actor Identity, targetRole Role) error {
	err := authorizeRole(actor, targetRole)
	r.record("manage_role", err)
	return err
}

// AuthorizeManage decides whether actor may update or delete the existing
// identity target. The target's current role is checked, then its placement
// inside the actor's scope.
func (r *Resolver) AuthorizeManage(actor Identity, target Identity) error {
	err := authorizeTarget(actor, target)
	r.record("manage_target", err)
	return err
}

// AuthorizeView decides whether actor may list identities of role.
func (r *Resolver) AuthorizeView(actor Identity, role Role) error {
	var err error
	if !hierarchy[actor.Role].CanView(role) {
		err = deniedf("%s cannot view %s", actor.Role, role)
	}
	r.record("view_role", err)
	return err
}

// AuthorizeReview decides whether actor may approve or reject citizen
// requests. Placement is checked separately with NarrowFilter.
func (r *Resolver) AuthorizeReview(actor Identity) error {
	var err error
	if !hierarchy[actor.Role].Reviews {
		err = deniedf("%s cannot review requests", actor.Role)
	}
	r.record("review_request", err)
	return err
}

// NarrowFilter intersects requested with the actor's scope pin.
func (r *Resolver) NarrowFilter(actor Identity, requested ScopeFilter) (ScopeFilter, error) {
	f, err := narrow(actor, requested)
	r.record("narrow_filter", err)
	return f, err
}

// NarrowUserFilter is NarrowFilter for user listings: the role constraint is
// also intersected with the roles the actor may view.
func (r *Resolver) NarrowUserFilter(actor Identity, requested ScopeFilter) (ScopeFilter, error) {
	f, err := narrowUsers(actor, requested)
	r.record("narrow_user_filter", err)
	return f, err
}

// PinUnits places a new or edited identity inside the actor's scope. Missing
// unit ids are taken from the actor; conflicting ones are rejected.
func (r *Resolver) PinUnits(actor Identity, target Identity) (Identity, error) {
	out, err := pinUnits(actor, target)
	r.record("pin_units", err)
	return out, err
}

func authorizeRole(actor Identity, targetRole Role) error {
	if !targetRole.Valid() {
		return invalidInputf("unknown target role")
	}
	if !hierarchy[actor.Role].CanManage(targetRole) {
		return deniedf("%s cannot manage %s", actor.Role, targetRole)
	}
	return nil
}

func authorizeTarget(actor Identity, target Identity) error {
	if err := authorizeRole(actor, target.Role); err != nil {
		return err
	}
	p := hierarchy[actor.Role]
	if p.Unscoped {
		return nil
	}
	pin, err := actorPin(actor, p)
	if err != nil {
		return err
	}
	if got := target.UnitID(p.Scope); got == nil || *got != pin {
		return deniedf("target is outside %s %d", p.Scope, pin)
	}
	return nil
}

func narrow(actor Identity, requested ScopeFilter) (ScopeFilter, error) {
	p, ok := hierarchy[actor.Role]
	if !ok {
		return NoResults(), deniedf("unknown role")
	}
	if p.Unscoped {
		return requested, nil
	}
	if p.Scope == LevelNone {
		return NoResults(), deniedf("%s has no administrative scope", actor.Role)
	}
	pin, err := actorPin(actor, p)
	if err != nil {
		return NoResults(), err
	}
	return requested.Restrict(p.Scope, pin), nil
}

func narrowUsers(actor Identity, requested ScopeFilter) (ScopeFilter, error) {
	p := hierarchy[actor.Role]
	for _, role := range requested.Roles {
		if !p.CanView(role) {
			return NoResults(), deniedf("%s cannot view %s", actor.Role, role)
		}
	}
	if len(p.Viewable) == 0 {
		return NoResults(), deniedf("%s cannot list users", actor.Role)
	}
	f, err := narrow(actor, requested)
	if err != nil {
		return f, err
	}
	return f.RestrictRoles(p.Viewable), nil
}

func pinUnits(actor Identity, target Identity) (Identity, error) {
	p, ok := hierarchy[actor.Role]
	if !ok || (!p.Unscoped && p.Scope == LevelNone) {
		return target, deniedf("%s has no administrative scope", actor.Role)
	}
	if p.Unscoped {
		return target, nil
	}
	if _, err := actorPin(actor, p); err != nil {
		return target, err
	}
	levels := append(p.Scope.above(), p.Scope)
	for _, level := range levels {
		own := actor.UnitID(level)
		if own == nil {
			continue
		}
		cur := target.UnitID(level)
		switch {
		case cur == nil:
			target = target.withUnit(level, copyInt(own))
		case !sameInt(cur, own):
			return target, deniedf("%s %d is outside the actor's scope", level, *cur)
		}
	}
	return target, nil
}

func actorPin(actor Identity, p Policy) (int, error) {
	pin := actor.UnitID(p.Scope)
	if pin == nil {
		return 0, fmt.Errorf("%w: %s %s has no %s id", ErrScopeMisconfigured, actor.Role, actor.ID, p.Scope)
	}
	return *pin, nil
}
