package registry

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"civreg.org/internal/auth"
	"civreg.org/internal/ids"
)

var tracer = otel.Tracer("civreg.org/internal/registry")

// Service serves household listings and statistics narrowed to the actor's
// scope.
type Service struct {
	households Store
	users      auth.UserStore
	resolver   *auth.Resolver
	now        func() time.Time
}

func NewService(households Store, users auth.UserStore, resolver *auth.Resolver) *Service {
	if resolver == nil {
		resolver = auth.NewResolver()
	}
	return &Service{households: households, users: users, resolver: resolver, now: time.Now}
}

// Filter is the caller-requested unit constraint.
type Filter struct {
	ProvinceID *int
	DistrictID *int
	WardID     *int
	HamletID   *int
}

func (f Filter) scope() auth.ScopeFilter {
	return auth.ScopeFilter{ProvinceID: f.ProvinceID, DistrictID: f.DistrictID, WardID: f.WardID, HamletID: f.HamletID}
}

// CreateInput describes a new household.
type CreateInput struct {
	Code       string
	HeadName   string
	Address    string
	ProvinceID *int
	DistrictID *int
	WardID     *int
	HamletID   *int
}

// UpdateInput carries the household fields to change. Empty strings and a
// nil hamlet keep the current values.
type UpdateInput struct {
	Code     string
	HeadName string
	Address  string
	HamletID *int
}

// HouseholdPage is one page of households.
type HouseholdPage struct {
	Items      []*Household
	Pagination auth.Pagination
}

// Statistics summarises a scope.
type Statistics struct {
	TotalHouseholds int `json:"totalHouseholds"`
	ActiveUsers     int `json:"activeUsers"`
}

// ListHouseholds returns households inside the actor's scope.
func (s *Service) ListHouseholds(ctx context.Context, actor auth.Identity, filter Filter, page auth.Page) (_ HouseholdPage, err error) {
	ctx, span := start(ctx, "registry.ListHouseholds", actor)
	defer func() { finish(span, err) }()

	page = auth.NewPage(page.Number, page.Size)
	f, err := s.resolver.NarrowFilter(actor, filter.scope())
	if err != nil {
		return HouseholdPage{}, err
	}
	if f.Empty() {
		return HouseholdPage{Items: []*Household{}, Pagination: auth.Paginate(page, 0)}, nil
	}
	total, err := s.households.CountHouseholds(ctx, f)
	if err != nil {
		return HouseholdPage{}, err
	}
	items, err := s.households.ListHouseholds(ctx, f, page)
	if err != nil {
		return HouseholdPage{}, err
	}
	if items == nil {
		items = []*Household{}
	}
	return HouseholdPage{Items: items, Pagination: auth.Paginate(page, total)}, nil
}

// GetHousehold returns a household if it sits inside the actor's scope.
// Households outside the scope are reported as not found.
func (s *Service) GetHousehold(ctx context.Context, actor auth.Identity, id string) (_ *Household, err error) {
	ctx, span := start(ctx, "registry.GetHousehold", actor)
	defer func() { finish(span, err) }()

	f, err := s.resolver.NarrowFilter(actor, auth.ScopeFilter{})
	if err != nil {
		return nil, err
	}
	h, err := s.households.FindHousehold(ctx, id)
	if err != nil {
		return nil, err
	}
	if !h.Matches(f) {
		return nil, auth.ErrNotFound
	}
	return h, nil
}

// CreateHousehold registers a household inside the actor's scope. Only
// administrators down to ward level may register households, and the ward
// must be known.
func (s *Service) CreateHousehold(ctx context.Context, actor auth.Identity, in CreateInput) (_ *Household, err error) {
	ctx, span := start(ctx, "registry.CreateHousehold", actor)
	defer func() { finish(span, err) }()

	if !actor.Role.Outranks(auth.RoleCitizen) {
		return nil, fmt.Errorf("%w: %s cannot register households", auth.ErrPermissionDenied, actor.Role)
	}
	placed, err := s.resolver.PinUnits(actor, auth.Identity{
		Role:       auth.RoleCitizen,
		ProvinceID: in.ProvinceID,
		DistrictID: in.DistrictID,
		WardID:     in.WardID,
	})
	if err != nil {
		return nil, err
	}
	code := strings.TrimSpace(in.Code)
	switch {
	case code == "":
		return nil, fmt.Errorf("%w: household code is required", auth.ErrInvalidInput)
	case strings.TrimSpace(in.HeadName) == "":
		return nil, fmt.Errorf("%w: head of household is required", auth.ErrInvalidInput)
	case placed.ProvinceID == nil || placed.DistrictID == nil || placed.WardID == nil:
		return nil, fmt.Errorf("%w: province, district and ward ids are required", auth.ErrInvalidInput)
	}

	existing, err := s.households.FindHouseholdByCode(ctx, code)
	switch {
	case err == nil && existing != nil:
		return nil, fmt.Errorf("%w: household code %q", auth.ErrConflict, code)
	case err != nil && !errors.Is(err, auth.ErrNotFound):
		return nil, err
	}

	now := s.now().UTC()
	h := &Household{
		ID:         ids.NewAt(now),
		Code:       code,
		HeadName:   strings.TrimSpace(in.HeadName),
		Address:    strings.TrimSpace(in.Address),
		ProvinceID: placed.ProvinceID,
		DistrictID: placed.DistrictID,
		WardID:     placed.WardID,
		HamletID:   in.HamletID,
		CreatedBy:  actor.ID,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.households.InsertHousehold(ctx, h); err != nil {
		return nil, err
	}
	return h, nil
}

// UpdateHousehold edits a household inside the actor's scope. Households
// outside the scope are reported as not found; a code taken by another
// household is a conflict.
func (s *Service) UpdateHousehold(ctx context.Context, actor auth.Identity, id string, in UpdateInput) (_ *Household, err error) {
	ctx, span := start(ctx, "registry.UpdateHousehold", actor)
	defer func() { finish(span, err) }()

	if !actor.Role.Outranks(auth.RoleCitizen) {
		return nil, fmt.Errorf("%w: %s cannot edit households", auth.ErrPermissionDenied, actor.Role)
	}
	h, err := s.GetHousehold(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if _, err := s.resolver.PinUnits(actor, auth.Identity{
		Role:       auth.RoleCitizen,
		ProvinceID: h.ProvinceID,
		DistrictID: h.DistrictID,
		WardID:     h.WardID,
	}); err != nil {
		return nil, err
	}

	if code := strings.TrimSpace(in.Code); code != "" && code != h.Code {
		existing, err := s.households.FindHouseholdByCode(ctx, code)
		switch {
		case err == nil && existing != nil && existing.ID != h.ID:
			return nil, fmt.Errorf("%w: household code %q", auth.ErrConflict, code)
		case err != nil && !errors.Is(err, auth.ErrNotFound):
			return nil, err
		}
		h.Code = code
	}
	if name := strings.TrimSpace(in.HeadName); name != "" {
		h.HeadName = name
	}
	if addr := strings.TrimSpace(in.Address); addr != "" {
		h.Address = addr
	}
	if in.HamletID != nil {
		h.HamletID = in.HamletID
	}
	h.UpdatedAt = s.now().UTC()
	if err := s.households.ReplaceHousehold(ctx, h); err != nil {
		return nil, err
	}
	return h, nil
}

// Statistics counts households and active accounts inside the actor's scope.
func (s *Service) Statistics(ctx context.Context, actor auth.Identity, filter Filter) (_ Statistics, err error) {
	ctx, span := start(ctx, "registry.Statistics", actor)
	defer func() { finish(span, err) }()

	f, err := s.resolver.NarrowFilter(actor, filter.scope())
	if err != nil {
		return Statistics{}, err
	}
	if f.Empty() {
		return Statistics{}, nil
	}
	households, err := s.households.CountHouseholds(ctx, f)
	if err != nil {
		return Statistics{}, err
	}
	userFilter := f
	userFilter.HamletID = nil
	users, err := s.users.CountUsers(ctx, userFilter)
	if err != nil {
		return Statistics{}, err
	}
	return Statistics{TotalHouseholds: households, ActiveUsers: users}, nil
}

func start(ctx context.Context, name string, actor auth.Identity) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(
		attribute.String("actor.id", actor.ID),
		attribute.String("actor.role", actor.Role.String()),
	))
}

func finish(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
