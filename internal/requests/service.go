package requests

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

var tracer = otel.Tracer("civreg.org/internal/requests")

// Service files citizen requests and lets administrators decide them inside
// their scope.
type Service struct {
	store    Store
	resolver *auth.Resolver
	now      func() time.Time
}

// Option configures Service.
type Option func(*Service)

// WithClock overrides the time source.
func WithClock(fn func() time.Time) Option {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

func NewService(store Store, resolver *auth.Resolver, opts ...Option) *Service {
	if resolver == nil {
		resolver = auth.NewResolver()
	}
	s := &Service{store: store, resolver: resolver, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SubmitInput describes a new request.
type SubmitInput struct {
	Type    int
	Content string
}

// Query selects a page of requests.
type Query struct {
	ProvinceID *int
	DistrictID *int
	WardID     *int
	Status     *Status
	Page       auth.Page
}

// Page is one page of requests.
type Page struct {
	Items      []*Request
	Pagination auth.Pagination
}

// Submit files a request on behalf of a citizen. The request is routed to
// the citizen's own ward.
func (s *Service) Submit(ctx context.Context, actor auth.Identity, in SubmitInput) (_ *Request, err error) {
	ctx, span := start(ctx, "requests.Submit", actor)
	defer func() { finish(span, err) }()

	if actor.Role != auth.RoleCitizen {
		return nil, fmt.Errorf("%w: only citizens submit requests", auth.ErrPermissionDenied)
	}
	if in.Type < 0 || in.Type > MaxType {
		return nil, fmt.Errorf("%w: request type must be between 0 and %d", auth.ErrInvalidInput, MaxType)
	}
	if actor.WardID == nil {
		return nil, fmt.Errorf("%w: account has no ward to route the request to", auth.ErrInvalidInput)
	}
	now := s.now().UTC()
	r := &Request{
		ID:         ids.NewAt(now),
		CitizenID:  actor.ID,
		Type:       in.Type,
		Content:    strings.TrimSpace(in.Content),
		Status:     StatusPending,
		ProvinceID: actor.ProvinceID,
		DistrictID: actor.DistrictID,
		WardID:     actor.WardID,
		CreatedAt:  now,
	}
	if err := s.store.InsertRequest(ctx, r); err != nil {
		return nil, err
	}
	return r, nil
}

// Get returns a request visible to actor. Citizens see their own requests,
// administrators those inside their scope. Anything else is not found.
func (s *Service) Get(ctx context.Context, actor auth.Identity, id string) (_ *Request, err error) {
	ctx, span := start(ctx, "requests.Get", actor)
	defer func() { finish(span, err) }()

	r, err := s.store.FindRequest(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.visible(actor, r); err != nil {
		return nil, err
	}
	return r, nil
}

// List returns a page of requests visible to actor.
func (s *Service) List(ctx context.Context, actor auth.Identity, q Query) (_ Page, err error) {
	ctx, span := start(ctx, "requests.List", actor)
	defer func() { finish(span, err) }()

	page := auth.NewPage(q.Page.Number, q.Page.Size)
	c := Criteria{
		Scope:  auth.ScopeFilter{ProvinceID: q.ProvinceID, DistrictID: q.DistrictID, WardID: q.WardID},
		Status: q.Status,
	}
	if actor.Role == auth.RoleCitizen {
		c.CitizenID = actor.ID
	} else if c.Scope, err = s.resolver.NarrowFilter(actor, c.Scope); err != nil {
		return Page{}, err
	}
	if c.Scope.Empty() {
		return Page{Items: []*Request{}, Pagination: auth.Paginate(page, 0)}, nil
	}
	total, err := s.store.CountRequests(ctx, c)
	if err != nil {
		return Page{}, err
	}
	items, err := s.store.ListRequests(ctx, c, page)
	if err != nil {
		return Page{}, err
	}
	if items == nil {
		items = []*Request{}
	}
	return Page{Items: items, Pagination: auth.Paginate(page, total)}, nil
}

// Approve marks a pending request inside the actor's scope as approved.
func (s *Service) Approve(ctx context.Context, actor auth.Identity, id string) (_ *Request, err error) {
	ctx, span := start(ctx, "requests.Approve", actor)
	defer func() { finish(span, err) }()
	return s.decide(ctx, actor, id, StatusApproved)
}

// Reject marks a pending request inside the actor's scope as rejected.
func (s *Service) Reject(ctx context.Context, actor auth.Identity, id string) (_ *Request, err error) {
	ctx, span := start(ctx, "requests.Reject", actor)
	defer func() { finish(span, err) }()
	return s.decide(ctx, actor, id, StatusRejected)
}

// decide checks existence and placement first, then the pending state, then
// the reviewer role.
func (s *Service) decide(ctx context.Context, actor auth.Identity, id string, to Status) (*Request, error) {
	r, err := s.store.FindRequest(ctx, id)
	if err != nil {
		return nil, err
	}
	f, err := s.resolver.NarrowFilter(actor, auth.ScopeFilter{})
	if err != nil {
		return nil, err
	}
	if !r.Matches(f) {
		return nil, auth.ErrNotFound
	}
	if r.Status != StatusPending {
		return nil, fmt.Errorf("%w: request is already %s", auth.ErrInvalidInput, strings.ToLower(r.Status.String()))
	}
	if err := s.resolver.AuthorizeReview(actor); err != nil {
		return nil, err
	}
	now := s.now().UTC()
	r.Status = to
	r.ProcessedBy = actor.ID
	r.ProcessedAt = &now
	if err := s.store.DecideRequest(ctx, r); err != nil {
		if errors.Is(err, auth.ErrConflict) {
			return nil, fmt.Errorf("%w: request is already processed", auth.ErrInvalidInput)
		}
		return nil, err
	}
	return r, nil
}

func (s *Service) visible(actor auth.Identity, r *Request) error {
	if actor.Role == auth.RoleCitizen {
		if r.CitizenID != actor.ID {
			return auth.ErrNotFound
		}
		return nil
	}
	f, err := s.resolver.NarrowFilter(actor, auth.ScopeFilter{})
	if err != nil {
		return err
	}
	if !r.Matches(f) {
		return auth.ErrNotFound
	}
	return nil
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
