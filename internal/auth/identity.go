package auth

import "time"

// Identity is the authenticated actor of a single request.
type Identity struct {
	ID         string
	Username   string
	Role       Role
	ProvinceID *int
	DistrictID *int
	WardID     *int
}

// UnitID returns the identity's id at the given administrative level.
func (i Identity) UnitID(level ScopeLevel) *int {
	switch level {
	case LevelProvince:
		return i.ProvinceID
	case LevelDistrict:
		return i.DistrictID
	case LevelWard:
		return i.WardID
	default:
		return nil
	}
}

func (i Identity) withUnit(level ScopeLevel, id *int) Identity {
	switch level {
	case LevelProvince:
		i.ProvinceID = id
	case LevelDistrict:
		i.DistrictID = id
	case LevelWard:
		i.WardID = id
	}
	return i
}

// User is the persisted account record behind an Identity.
type User struct {
	ID           string
	Username     string
	PasswordHash string
	FullName     string
	Role         Role
	ProvinceID   *int
	DistrictID   *int
	WardID       *int
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Identity projects the account onto the fields authorization needs.
func (u *User) Identity() Identity {
	return Identity{
		ID:         u.ID,
		Username:   u.Username,
		Role:       u.Role,
		ProvinceID: copyInt(u.ProvinceID),
		DistrictID: copyInt(u.DistrictID),
		WardID:     copyInt(u.WardID),
	}
}

// IntPtr is a small helper for optional unit ids.
func IntPtr(v int) *int { return &v }

func copyInt(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func sameInt(a, b *int) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
