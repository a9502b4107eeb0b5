package auth

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Role is one of the five administrative roles. Larger values have broader scope.
type Role int

const (
	RoleUnknown Role = iota
	RoleCitizen
	RoleWardAdmin
	RoleDistrictAdmin
	RoleProvinceAdmin
	RoleSuperAdmin
)

var roleNames = map[Role]string{
	RoleCitizen:       "Citizen",
	RoleWardAdmin:     "WardAdmin",
	RoleDistrictAdmin: "DistrictAdmin",
	RoleProvinceAdmin: "ProvinceAdmin",
	RoleSuperAdmin:    "SuperAdmin",
}

// Roles lists every valid role from broadest to narrowest.
var Roles = []Role{RoleSuperAdmin, RoleProvinceAdmin, RoleDistrictAdmin, RoleWardAdmin, RoleCitizen}

// ParseRole maps a wire name (case-insensitive) to a Role.
func ParseRole(s string) (Role, error) {
	s = strings.TrimSpace(s)
	for r, name := range roleNames {
		if strings.EqualFold(name, s) {
			return r, nil
		}
	}
	return RoleUnknown, fmt.Errorf("%w: unknown role %q", ErrInvalidInput, s)
}

func (r Role) String() string {
	if name, ok := roleNames[r]; ok {
		return name
	}
	return "Unknown"
}

// Valid reports whether r is one of the five known roles.
func (r Role) Valid() bool {
	_, ok := roleNames[r]
	return ok
}

// Outranks reports whether r sits strictly above other in the chain.
func (r Role) Outranks(other Role) bool {
	return r.Valid() && other.Valid() && r > other
}

func (r Role) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.String())
}

func (r *Role) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseRole(s)
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}
