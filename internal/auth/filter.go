package auth

import "slices"

// ScopeFilter is the set of constraints a query must satisfy on behalf of an
// identity. Nil fields are unconstrained. A filter can also be empty, meaning
// the constraints contradict each other and no row can match.
type ScopeFilter struct {
	ProvinceID *int
	DistrictID *int
	WardID     *int
	HamletID   *int
	// Roles restricts user listings; nil means any role.
	Roles []Role

	empty bool
}

// NoResults returns a filter that matches nothing.
func NoResults() ScopeFilter { return ScopeFilter{empty: true} }

// Empty reports whether the filter can match no row at all.
func (f ScopeFilter) Empty() bool { return f.empty }

// Unrestricted reports whether the filter matches everything.
func (f ScopeFilter) Unrestricted() bool {
	return !f.empty && f.ProvinceID == nil && f.DistrictID == nil &&
		f.WardID == nil && f.HamletID == nil && f.Roles == nil
}

// UnitID returns the constraint at level, or nil.
func (f ScopeFilter) UnitID(level ScopeLevel) *int {
	switch level {
	case LevelProvince:
		return f.ProvinceID
	case LevelDistrict:
		return f.DistrictID
	case LevelWard:
		return f.WardID
	case LevelHamlet:
		return f.HamletID
	default:
		return nil
	}
}

// Restrict intersects the filter with "unit at level equals id".
func (f ScopeFilter) Restrict(level ScopeLevel, id int) ScopeFilter {
	if f.empty {
		return f
	}
	if cur := f.UnitID(level); cur != nil {
		if *cur != id {
			return NoResults()
		}
		return f
	}
	v := id
	switch level {
	case LevelProvince:
		f.ProvinceID = &v
	case LevelDistrict:
		f.DistrictID = &v
	case LevelWard:
		f.WardID = &v
	case LevelHamlet:
		f.HamletID = &v
	}
	return f
}

// RestrictRoles intersects the role constraint with allowed.
func (f ScopeFilter) RestrictRoles(allowed []Role) ScopeFilter {
	if f.empty {
		return f
	}
	var out []Role
	if f.Roles == nil {
		out = slices.Clone(allowed)
	} else {
		for _, r := range f.Roles {
			if slices.Contains(allowed, r) && !slices.Contains(out, r) {
				out = append(out, r)
			}
		}
	}
	if len(out) == 0 {
		return NoResults()
	}
	f.Roles = out
	return f
}

// MatchUnits reports whether the given unit ids satisfy the filter's unit
// constraints. Roles are ignored.
func (f ScopeFilter) MatchUnits(province, district, ward, hamlet *int) bool {
	if f.empty {
		return false
	}
	return matchUnit(f.ProvinceID, province) &&
		matchUnit(f.DistrictID, district) &&
		matchUnit(f.WardID, ward) &&
		matchUnit(f.HamletID, hamlet)
}

// MatchUser reports whether u satisfies the filter, including its role set.
// Users carry no hamlet, so a hamlet constraint never matches a user.
func (f ScopeFilter) MatchUser(u *User) bool {
	if f.Roles != nil && !slices.Contains(f.Roles, u.Role) {
		return false
	}
	return f.MatchUnits(u.ProvinceID, u.DistrictID, u.WardID, nil)
}

func matchUnit(want, got *int) bool {
	if want == nil {
		return true
	}
	return got != nil && *got == *want
}
