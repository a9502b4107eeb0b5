package registry

import (
	"context"
	"time"

	"civreg.org/internal/auth"
)

// Household is a registered dwelling unit. Unit ids are denormalized from the
// hamlet so scope filters apply without joins.
type Household struct {
	ID         string    `json:"id"`
	Code       string    `json:"householdCode"`
	HeadName   string    `json:"headName"`
	Address    string    `json:"address"`
	ProvinceID *int      `json:"provinceId,omitempty"`
	DistrictID *int      `json:"districtId,omitempty"`
	WardID     *int      `json:"wardId,omitempty"`
	HamletID   *int      `json:"hamletId,omitempty"`
	CreatedBy  string    `json:"createdBy"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// Store persists households. Implementations return auth.ErrNotFound and
// auth.ErrConflict like auth.UserStore does.
type Store interface {
	FindHousehold(ctx context.Context, id string) (*Household, error)
	FindHouseholdByCode(ctx context.Context, code string) (*Household, error)
	CountHouseholds(ctx context.Context, filter auth.ScopeFilter) (int, error)
	ListHouseholds(ctx context.Context, filter auth.ScopeFilter, page auth.Page) ([]*Household, error)
	InsertHousehold(ctx context.Context, h *Household) error
	ReplaceHousehold(ctx context.Context, h *Household) error
}

// Matches reports whether h satisfies every constraint in f.
func (h *Household) Matches(f auth.ScopeFilter) bool {
	return f.MatchUnits(h.ProvinceID, h.DistrictID, h.WardID, h.HamletID)
}
