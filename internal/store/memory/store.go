package memory

import (
	"context"
	"slices"
	"strings"
	"sync"

	"civreg.org/internal/auth"
	"civreg.org/internal/registry"
	"civreg.org/internal/requests"
)

// Store keeps users, households and citizen requests in process memory. It is used when no
// database is configured and in tests.
type Store struct {
	mu         sync.RWMutex
	users      map[string]*auth.User
	usernames  map[string]string
	households map[string]*registry.Household
	codes      map[string]string
	requests   map[string]*requests.Request
}

var (
	_ auth.UserStore = (*Store)(nil)
	_ registry.Store = (*Store)(nil)
	_ requests.Store = (*Store)(nil)
)

func New() *Store {
	return &Store{
		users:      make(map[string]*auth.User),
		usernames:  make(map[string]string),
		households: make(map[string]*registry.Household),
		codes:      make(map[string]string),
		requests:   make(map[string]*requests.Request),
	}
}

// Ping always succeeds.
func (s *Store) Ping(context.Context) error { return nil }

func usernameKey(name string) string { return strings.ToLower(strings.TrimSpace(name)) }

func (s *Store) FindUserByID(ctx context.Context, id string) (*auth.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	return cloneUser(u), nil
}

func (s *Store) FindUserByUsername(ctx context.Context, username string) (*auth.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.usernames[usernameKey(username)]
	if !ok {
		return nil, auth.ErrNotFound
	}
	return cloneUser(s.users[id]), nil
}

// CountUsers counts active users matching filter.
func (s *Store) CountUsers(ctx context.Context, filter auth.ScopeFilter) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, u := range s.users {
		if u.IsActive && filter.MatchUser(u) {
			n++
		}
	}
	return n, nil
}

// ListUsers returns a page of active users matching filter, oldest first.
func (s *Store) ListUsers(ctx context.Context, filter auth.ScopeFilter, page auth.Page) ([]*auth.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	var matched []*auth.User
	for _, u := range s.users {
		if u.IsActive && filter.MatchUser(u) {
			matched = append(matched, cloneUser(u))
		}
	}
	s.mu.RUnlock()
	slices.SortFunc(matched, func(a, b *auth.User) int { return strings.Compare(a.ID, b.ID) })
	return paginate(matched, page), nil
}

func (s *Store) InsertUser(ctx context.Context, u *auth.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	key := usernameKey(u.Username)
	if _, ok := s.usernames[key]; ok {
		return auth.ErrConflict
	}
	if _, ok := s.users[u.ID]; ok {
		return auth.ErrConflict
	}
	s.users[u.ID] = cloneUser(u)
	s.usernames[key] = u.ID
	return nil
}

func (s *Store) ReplaceUser(ctx context.Context, u *auth.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.users[u.ID]
	if !ok {
		return auth.ErrNotFound
	}
	key := usernameKey(u.Username)
	if owner, taken := s.usernames[key]; taken && owner != u.ID {
		return auth.ErrConflict
	}
	delete(s.usernames, usernameKey(cur.Username))
	s.users[u.ID] = cloneUser(u)
	s.usernames[key] = u.ID
	return nil
}

func (s *Store) FindHousehold(ctx context.Context, id string) (*registry.Household, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.households[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	return cloneHousehold(h), nil
}

func (s *Store) FindHouseholdByCode(ctx context.Context, code string) (*registry.Household, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.codes[code]
	if !ok {
		return nil, auth.ErrNotFound
	}
	return cloneHousehold(s.households[id]), nil
}

func (s *Store) CountHouseholds(ctx context.Context, filter auth.ScopeFilter) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, h := range s.households {
		if h.Matches(filter) {
			n++
		}
	}
	return n, nil
}

func (s *Store) ListHouseholds(ctx context.Context, filter auth.ScopeFilter, page auth.Page) ([]*registry.Household, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	var matched []*registry.Household
	for _, h := range s.households {
		if h.Matches(filter) {
			matched = append(matched, cloneHousehold(h))
		}
	}
	s.mu.RUnlock()
	slices.SortFunc(matched, func(a, b *registry.Household) int { return strings.Compare(a.ID, b.ID) })
	return paginate(matched, page), nil
}

func (s *Store) InsertHousehold(ctx context.Context, h *registry.Household) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.codes[h.Code]; ok {
		return auth.ErrConflict
	}
	if _, ok := s.households[h.ID]; ok {
		return auth.ErrConflict
	}
	s.households[h.ID] = cloneHousehold(h)
	s.codes[h.Code] = h.ID
	return nil
}

// ReplaceHousehold overwrites a household, keeping the code index unique.
func (s *Store) ReplaceHousehold(ctx context.Context, h *registry.Household) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.households[h.ID]
	if !ok {
		return auth.ErrNotFound
	}
	if owner, taken := s.codes[h.Code]; taken && owner != h.ID {
		return auth.ErrConflict
	}
	delete(s.codes, cur.Code)
	s.households[h.ID] = cloneHousehold(h)
	s.codes[h.Code] = h.ID
	return nil
}

func (s *Store) FindRequest(ctx context.Context, id string) (*requests.Request, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.requests[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	return cloneRequest(r), nil
}

func (s *Store) CountRequests(ctx context.Context, c requests.Criteria) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, r := range s.requests {
		if c.Match(r) {
			n++
		}
	}
	return n, nil
}

// ListRequests returns matching requests, oldest first.
func (s *Store) ListRequests(ctx context.Context, c requests.Criteria, page auth.Page) ([]*requests.Request, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	var matched []*requests.Request
	for _, r := range s.requests {
		if c.Match(r) {
			matched = append(matched, cloneRequest(r))
		}
	}
	s.mu.RUnlock()
	slices.SortFunc(matched, func(a, b *requests.Request) int { return strings.Compare(a.ID, b.ID) })
	return paginate(matched, page), nil
}

func (s *Store) InsertRequest(ctx context.Context, r *requests.Request) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.requests[r.ID]; ok {
		return auth.ErrConflict
	}
	s.requests[r.ID] = cloneRequest(r)
	return nil
}

// DecideRequest stores r if the stored copy is still pending.
func (s *Store) DecideRequest(ctx context.Context, r *requests.Request) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.requests[r.ID]
	if !ok {
		return auth.ErrNotFound
	}
	if cur.Status != requests.StatusPending {
		return auth.ErrConflict
	}
	cur.Status = r.Status
	cur.ProcessedBy = r.ProcessedBy
	if r.ProcessedAt != nil {
		at := *r.ProcessedAt
		cur.ProcessedAt = &at
	}
	return nil
}

func paginate[T any](items []T, page auth.Page) []T {
	off := page.Offset()
	if off < 0 || off >= len(items) {
		return []T{}
	}
	end := len(items)
	if page.Size > 0 && page.Size < end-off {
		end = off + page.Size
	}
	return items[off:end]
}

func cloneUser(u *auth.User) *auth.User {
	cp := *u
	cp.ProvinceID = clonePtr(u.ProvinceID)
	cp.DistrictID = clonePtr(u.DistrictID)
	cp.WardID = clonePtr(u.WardID)
	return &cp
}

func cloneHousehold(h *registry.Household) *registry.Household {
	cp := *h
	cp.ProvinceID = clonePtr(h.ProvinceID)
	cp.DistrictID = clonePtr(h.DistrictID)
	cp.WardID = clonePtr(h.WardID)
	cp.HamletID = clonePtr(h.HamletID)
	return &cp
}

func cloneRequest(r *requests.Request) *requests.Request {
	cp := *r
	cp.ProvinceID = clonePtr(r.ProvinceID)
	cp.DistrictID = clonePtr(r.DistrictID)
	cp.WardID = clonePtr(r.WardID)
	if r.ProcessedAt != nil {
		at := *r.ProcessedAt
		cp.ProcessedAt = &at
	}
	return &cp
}

func clonePtr(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
