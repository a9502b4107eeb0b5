package auth

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func newLoginService(t *testing.T, users ...*User) *Service {
	t.Helper()
	store := newFakeUsers(users...)
	tokens, _ := newTestTokens(t, store)
	svc, err := NewService(store, BcryptHasher{Cost: bcrypt.MinCost}, tokens)
	require.NoError(t, err)
	return svc
}

func hashed(t *testing.T, password string) string {
	t.Helper()
	h, err := BcryptHasher{Cost: bcrypt.MinCost}.Hash(password)
	require.NoError(t, err)
	return h
}

func TestLogin(t *testing.T) {
	u := wardAdminUser()
	u.PasswordHash = hashed(t, "s3cret!")
	svc := newLoginService(t, u)

	sess, err := svc.Login(context.Background(), "ward.admin", "s3cret!")
	require.NoError(t, err)
	assert.Equal(t, u.ID, sess.Identity.ID)

	id, err := svc.Tokens().Verify(context.Background(), sess.Token)
	require.NoError(t, err)
	assert.Equal(t, RoleWardAdmin, id.Role)
}

func TestLoginFailuresLookAlike(t *testing.T) {
	active := wardAdminUser()
	active.PasswordHash = hashed(t, "s3cret!")
	inactive := &User{ID: "02", Username: "gone", Role: RoleCitizen, PasswordHash: hashed(t, "s3cret!")}
	svc := newLoginService(t, active, inactive)

	cases := []struct{ user, pass string }{
		{"ward.admin", "wrong"},
		{"nobody", "s3cret!"},
		{"gone", "s3cret!"},
		{"", ""},
	}
	for _, tc := range cases {
		_, err := svc.Login(context.Background(), tc.user, tc.pass)
		assert.ErrorIs(t, err, ErrInvalidCredentials, tc.user)
	}
}

func TestBcryptHasher(t *testing.T) {
	h := BcryptHasher{Cost: bcrypt.MinCost}
	hash, err := h.Hash("pw")
	require.NoError(t, err)
	assert.NoError(t, h.Verify(hash, "pw"))
	assert.Error(t, h.Verify(hash, "other"))
	assert.Error(t, h.Verify("", "pw"))
	_, err = h.Hash("")
	assert.Error(t, err)
}

func TestPage(t *testing.T) {
	assert.Equal(t, Page{Number: 1, Size: DefaultPageSize}, NewPage(0, 0))
	assert.Equal(t, Page{Number: 3, Size: MaxPageSize}, NewPage(3, 1000))
	assert.Equal(t, 40, NewPage(3, 20).Offset())
	assert.Equal(t, Page{Number: MaxPageNumber, Size: 20}, NewPage(math.MaxInt, 20))
	assert.Equal(t, math.MaxInt, Page{Number: math.MaxInt, Size: 20}.Offset())
	assert.Equal(t, 0, Page{Number: 5, Size: 0}.Offset())
	assert.Equal(t, Pagination{Page: 2, PageSize: 10, TotalItems: 21, TotalPages: 3}, Paginate(NewPage(2, 10), 21))
}

func TestPrincipalContext(t *testing.T) {
	_, ok := IdentityFromContext(context.Background())
	assert.False(t, ok)
	_, ok = TokenFromContext(context.Background())
	assert.False(t, ok)

	ctx := WithPrincipal(context.Background(), Identity{ID: "x", Role: RoleCitizen}, "tok")
	id, ok := IdentityFromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, "x", id.ID)
	tok, ok := TokenFromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, "tok", tok)

	ctx = ContextWithIdentity(ctx, Identity{ID: "y", Role: RoleWardAdmin})
	id, _ = IdentityFromContext(ctx)
	assert.Equal(t, "y", id.ID)
	tok, ok = TokenFromContext(ctx)
	require.True(t, ok, "replacing the identity keeps the token")
	assert.Equal(t, "tok", tok)

	ctx = ContextWithIdentity(context.Background(), Identity{ID: "z"})
	_, ok = TokenFromContext(ctx)
	assert.False(t, ok)
}
