package auth

import "slices"

// ScopeLevel names an administrative-unit id field.
type ScopeLevel int

const (
	LevelNone ScopeLevel = iota
	LevelProvince
	LevelDistrict
	LevelWard
	LevelHamlet
)

func (l ScopeLevel) String() string {
	switch l {
	case LevelProvince:
		return "province"
	case LevelDistrict:
		return "district"
	case LevelWard:
		return "ward"
	case LevelHamlet:
		return "hamlet"
	default:
		return "none"
	}
}

// above returns the broader levels an identity pinned at l also carries.
func (l ScopeLevel) above() []ScopeLevel {
	switch l {
	case LevelDistrict:
		return []ScopeLevel{LevelProvince}
	case LevelWard:
		return []ScopeLevel{LevelProvince, LevelDistrict}
	default:
		return nil
	}
}

// Policy is one row of the role hierarchy. It is data only.
type Policy struct {
	// Manages lists the roles this role may create, update and delete.
	Manages []Role
	// Viewable lists the roles this role may list.
	Viewable []Role
	// Scope is the unit id field this role is pinned to.
	Scope ScopeLevel
	// Unscoped roles see everything; only SuperAdmin is unscoped.
	Unscoped bool
	// Reviews marks roles that decide citizen requests inside their scope.
	Reviews  bool
}

func (p Policy) CanManage(r Role) bool { return slices.Contains(p.Manages, r) }

func (p Policy) CanView(r Role) bool { return slices.Contains(p.Viewable, r) }

var hierarchy = map[Role]Policy{
	RoleSuperAdmin: {
		Manages:  []Role{RoleProvinceAdmin, RoleDistrictAdmin, RoleWardAdmin},
		Viewable: []Role{RoleProvinceAdmin, RoleDistrictAdmin, RoleWardAdmin},
		Unscoped: true,
	},
	RoleProvinceAdmin: {
		Manages:  []Role{RoleDistrictAdmin},
		Viewable: []Role{RoleDistrictAdmin},
		Scope:    LevelProvince,
		Reviews:  true,
	},
	RoleDistrictAdmin: {
		Manages:  []Role{RoleWardAdmin},
		Viewable: []Role{RoleWardAdmin},
		Scope:    LevelDistrict,
		Reviews:  true,
	},
	RoleWardAdmin: {
		Manages:  []Role{RoleCitizen},
		Viewable: []Role{RoleCitizen},
		Scope:    LevelWard,
		Reviews:  true,
	},
	RoleCitizen: {},
}

// PolicyFor returns the hierarchy row for r. Unknown roles get the empty policy,
// which permits nothing.
func PolicyFor(r Role) Policy {
	p := hierarchy[r]
	return Policy{
		Manages:  slices.Clone(p.Manages),
		Viewable: slices.Clone(p.Viewable),
		Scope:    p.Scope,
		Unscoped: p.Unscoped,
		Reviews:  p.Reviews,
	}
}

// ManagedRoles returns the roles r may author.
func ManagedRoles(r Role) []Role { return PolicyFor(r).Manages }

// RequireUnits checks that id carries the unit id its own role is pinned to,
// so that no admin account can be created without a scope.
func RequireUnits(id Identity) error {
	p := hierarchy[id.Role]
	if p.Unscoped || p.Scope == LevelNone {
		return nil
	}
	if id.UnitID(p.Scope) == nil {
		return invalidInputf("%s requires a %s id", id.Role, p.Scope)
	}
	return nil
}

// TrimUnits drops unit ids narrower than id's own scope, so an account
// promoted to district level no longer carries its old ward. Citizens keep
// every level; SuperAdmin keeps none.
func TrimUnits(id Identity) Identity {
	p := hierarchy[id.Role]
	if p.Unscoped {
		id.ProvinceID, id.DistrictID, id.WardID = nil, nil, nil
		return id
	}
	switch p.Scope {
	case LevelProvince:
		id.DistrictID, id.WardID = nil, nil
	case LevelDistrict:
		id.WardID = nil
	}
	return id
}
