package users

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

var tracer = otel.Tracer("civreg.org/internal/users")

// Service manages accounts on behalf of an authenticated actor. Every
// operation asks the scope resolver first and touches the store second.
type Service struct {
	store    auth.UserStore
	hasher   auth.PasswordHasher
	resolver *auth.Resolver
	now      func() time.Time
}

// Option configures Service.
type Option func(*Service)

// WithClock overrides time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// WithHasher overrides the bcrypt default.
func WithHasher(h auth.PasswordHasher) Option {
	return func(s *Service) {
		if h != nil {
			s.hasher = h
		}
	}
}

func NewService(store auth.UserStore, resolver *auth.Resolver, opts ...Option) *Service {
	if resolver == nil {
		resolver = auth.NewResolver()
	}
	s := &Service{
		store:    store,
		hasher:   auth.BcryptHasher{},
		resolver: resolver,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateInput describes a new account.
type CreateInput struct {
	Username   string
	Password   string
	FullName   string
	Role       auth.Role
	ProvinceID *int
	DistrictID *int
	WardID     *int
}

// UpdateInput replaces the mutable fields of an account. A zero Role keeps
// the current role; nil unit ids keep the current units.
type UpdateInput struct {
	FullName   string
	Role       auth.Role
	ProvinceID *int
	DistrictID *int
	WardID     *int
}

// Query selects a page of accounts.
type Query struct {
	Role       auth.Role
	ProvinceID *int
	DistrictID *int
	WardID     *int
	Page       auth.Page
}

// Page is one page of accounts.
type Page struct {
	Items      []*auth.User
	Pagination auth.Pagination
}

// Create adds an account whose role the actor manages, placed inside the
// actor's scope.
func (s *Service) Create(ctx context.Context, actor auth.Identity, in CreateInput) (_ *auth.User, err error) {
	ctx, span := start(ctx, "users.Create", actor)
	defer func() { finish(span, err) }()

	if err := s.resolver.AuthorizeManageRole(actor, in.Role); err != nil {
		return nil, err
	}
	placed, err := s.resolver.PinUnits(actor, auth.Identity{
		Role:       in.Role,
		ProvinceID: in.ProvinceID,
		DistrictID: in.DistrictID,
		WardID:     in.WardID,
	})
	if err != nil {
		return nil, err
	}
	placed = auth.TrimUnits(placed)
	if err := auth.RequireUnits(placed); err != nil {
		return nil, err
	}
	return s.insert(ctx, in.Username, in.Password, in.FullName, placed)
}

// Register creates a Citizen account without an acting administrator.
func (s *Service) Register(ctx context.Context, in CreateInput) (_ *auth.User, err error) {
	ctx, span := start(ctx, "users.Register", auth.Identity{})
	defer func() { finish(span, err) }()

	if in.Role != auth.RoleUnknown && in.Role != auth.RoleCitizen {
		return nil, fmt.Errorf("%w: self-registration creates citizens only", auth.ErrPermissionDenied)
	}
	return s.insert(ctx, in.Username, in.Password, in.FullName, auth.Identity{
		Role:       auth.RoleCitizen,
		ProvinceID: in.ProvinceID,
		DistrictID: in.DistrictID,
		WardID:     in.WardID,
	})
}

// Bootstrap creates the first SuperAdmin when none exists. It reports whether
// an account was created.
func (s *Service) Bootstrap(ctx context.Context, username, password string) (bool, error) {
	if strings.TrimSpace(username) == "" || password == "" {
		return false, nil
	}
	n, err := s.store.CountUsers(ctx, auth.ScopeFilter{Roles: []auth.Role{auth.RoleSuperAdmin}})
	if err != nil {
		return false, fmt.Errorf("count super admins: %w", err)
	}
	if n > 0 {
		return false, nil
	}
	_, err = s.insert(ctx, username, password, "System Administrator", auth.Identity{Role: auth.RoleSuperAdmin})
	if errors.Is(err, auth.ErrConflict) {
		return false, fmt.Errorf("bootstrap username %q is taken by a non-admin account", username)
	}
	return err == nil, err
}

func (s *Service) insert(ctx context.Context, username, password, fullName string, placed auth.Identity) (*auth.User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, fmt.Errorf("%w: username is required", auth.ErrInvalidInput)
	}
	if password == "" {
		return nil, fmt.Errorf("%w: password is required", auth.ErrInvalidInput)
	}
	existing, err := s.store.FindUserByUsername(ctx, username)
	switch {
	case err == nil && existing != nil:
		return nil, fmt.Errorf("%w: username %q", auth.ErrConflict, username)
	case err != nil && !errors.Is(err, auth.ErrNotFound):
		return nil, err
	}
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	now := s.now().UTC()
	u := &auth.User{
		ID:           ids.NewAt(now),
		Username:     username,
		PasswordHash: hash,
		FullName:     strings.TrimSpace(fullName),
		Role:         placed.Role,
		ProvinceID:   placed.ProvinceID,
		DistrictID:   placed.DistrictID,
		WardID:       placed.WardID,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.InsertUser(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// Update replaces role, units and name of an account the actor manages.
// The requested role is checked before the store is consulted.
func (s *Service) Update(ctx context.Context, actor auth.Identity, id string, in UpdateInput) (_ *auth.User, err error) {
	ctx, span := start(ctx, "users.Update", actor)
	defer func() { finish(span, err) }()

	if in.Role != auth.RoleUnknown {
		if err := s.resolver.AuthorizeManageRole(actor, in.Role); err != nil {
			return nil, err
		}
	}
	target, err := s.manageable(ctx, actor, id)
	if err != nil {
		return nil, err
	}

	next := target.Identity()
	if in.Role != auth.RoleUnknown {
		next.Role = in.Role
	}
	if in.ProvinceID != nil {
		next.ProvinceID = in.ProvinceID
	}
	if in.DistrictID != nil {
		next.DistrictID = in.DistrictID
	}
	if in.WardID != nil {
		next.WardID = in.WardID
	}
	next, err = s.resolver.PinUnits(actor, next)
	if err != nil {
		return nil, err
	}
	next = auth.TrimUnits(next)
	if err := auth.RequireUnits(next); err != nil {
		return nil, err
	}

	target.Role = next.Role
	target.ProvinceID, target.DistrictID, target.WardID = next.ProvinceID, next.DistrictID, next.WardID
	if name := strings.TrimSpace(in.FullName); name != "" {
		target.FullName = name
	}
	target.UpdatedAt = s.now().UTC()
	if err := s.store.ReplaceUser(ctx, target); err != nil {
		return nil, err
	}
	return target, nil
}

// Delete deactivates an account the actor manages. Rows are never removed.
func (s *Service) Delete(ctx context.Context, actor auth.Identity, id string) (err error) {
	ctx, span := start(ctx, "users.Delete", actor)
	defer func() { finish(span, err) }()

	target, err := s.manageable(ctx, actor, id)
	if err != nil {
		return err
	}
	target.IsActive = false
	target.UpdatedAt = s.now().UTC()
	return s.store.ReplaceUser(ctx, target)
}

// ResetPassword sets a new password on an account the actor manages.
func (s *Service) ResetPassword(ctx context.Context, actor auth.Identity, id, password string) (err error) {
	ctx, span := start(ctx, "users.ResetPassword", actor)
	defer func() { finish(span, err) }()

	if password == "" {
		return fmt.Errorf("%w: password is required", auth.ErrInvalidInput)
	}
	target, err := s.manageable(ctx, actor, id)
	if err != nil {
		return err
	}
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	target.PasswordHash = hash
	target.UpdatedAt = s.now().UTC()
	return s.store.ReplaceUser(ctx, target)
}

// Get returns one account visible to the actor. Accounts outside the actor's
// view are reported as not found. Everyone may read their own account.
func (s *Service) Get(ctx context.Context, actor auth.Identity, id string) (_ *auth.User, err error) {
	ctx, span := start(ctx, "users.Get", actor)
	defer func() { finish(span, err) }()

	if id == actor.ID {
		return s.store.FindUserByID(ctx, id)
	}
	f, err := s.resolver.NarrowUserFilter(actor, auth.ScopeFilter{})
	if err != nil {
		return nil, err
	}
	u, err := s.store.FindUserByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !u.IsActive || !f.MatchUser(u) {
		return nil, auth.ErrNotFound
	}
	return u, nil
}

// List returns active accounts visible to the actor.
func (s *Service) List(ctx context.Context, actor auth.Identity, q Query) (_ Page, err error) {
	ctx, span := start(ctx, "users.List", actor)
	defer func() { finish(span, err) }()

	requested := auth.ScopeFilter{ProvinceID: q.ProvinceID, DistrictID: q.DistrictID, WardID: q.WardID}
	if q.Role != auth.RoleUnknown {
		requested.Roles = []auth.Role{q.Role}
	}
	page := auth.NewPage(q.Page.Number, q.Page.Size)
	f, err := s.resolver.NarrowUserFilter(actor, requested)
	if err != nil {
		return Page{}, err
	}
	if f.Empty() {
		return Page{Items: []*auth.User{}, Pagination: auth.Paginate(page, 0)}, nil
	}
	total, err := s.store.CountUsers(ctx, f)
	if err != nil {
		return Page{}, err
	}
	items, err := s.store.ListUsers(ctx, f, page)
	if err != nil {
		return Page{}, err
	}
	if items == nil {
		items = []*auth.User{}
	}
	return Page{Items: items, Pagination: auth.Paginate(page, total)}, nil
}

// manageable loads an active account the actor may edit. Accounts the actor
// cannot view are reported as not found, like Get does.
func (s *Service) manageable(ctx context.Context, actor auth.Identity, id string) (*auth.User, error) {
	f, err := s.resolver.NarrowUserFilter(actor, auth.ScopeFilter{})
	if err != nil {
		return nil, err
	}
	target, err := s.store.FindUserByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !target.IsActive || !f.MatchUser(target) {
		return nil, auth.ErrNotFound
	}
	if err := s.resolver.AuthorizeManage(actor, target.Identity()); err != nil {
		return nil, err
	}
	return target, nil
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
