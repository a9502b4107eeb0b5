package auth

import (
	"context"
	"sync"
	"time"
)

type fakeUsers struct {
	mu     sync.Mutex
	byID   map[string]*User
	err    error
	writes int
}

func newFakeUsers(users ...*User) *fakeUsers {
	f := &fakeUsers{byID: make(map[string]*User)}
	for _, u := range users {
		f.byID[u.ID] = u
	}
	return f
}

func (f *fakeUsers) FindUserByID(ctx context.Context, id string) (*User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	u, ok := f.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (f *fakeUsers) FindUserByUsername(_ context.Context, username string) (*User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.byID {
		if u.Username == username {
			cp := *u
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (f *fakeUsers) CountUsers(context.Context, ScopeFilter) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.byID), nil
}

func (f *fakeUsers) ListUsers(context.Context, ScopeFilter, Page) ([]*User, error) {
	return nil, nil
}

func (f *fakeUsers) InsertUser(_ context.Context, u *User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes++
	f.byID[u.ID] = u
	return nil
}

func (f *fakeUsers) ReplaceUser(_ context.Context, u *User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes++
	f.byID[u.ID] = u
	return nil
}

type fakeRevoker struct {
	mu      sync.Mutex
	revoked map[string]time.Duration
	err     error
}

func (r *fakeRevoker) Revoke(_ context.Context, id string, ttl time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.revoked == nil {
		r.revoked = make(map[string]time.Duration)
	}
	r.revoked[id] = ttl
	return nil
}

func (r *fakeRevoker) IsRevoked(_ context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return false, r.err
	}
	_, ok := r.revoked[id]
	return ok, nil
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}
