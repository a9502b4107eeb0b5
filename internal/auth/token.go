package auth

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	DefaultIssuer   = "CivicRegistryAPI"
	DefaultAudience = "CivicRegistryClient"
	DefaultTokenTTL = 1440 * time.Minute
	// DefaultRefreshWindow is how long after expiry a token may still be refreshed.
	DefaultRefreshWindow = 7 * 24 * time.Hour
)

// Claims is the JWT payload of a session token.
type Claims struct {
	Role       string `json:"role"`
	Username   string `json:"username,omitempty"`
	ProvinceID *int   `json:"province_id,omitempty"`
	DistrictID *int   `json:"district_id,omitempty"`
	WardID     *int   `json:"ward_id,omitempty"`
	jwt.RegisteredClaims
}

// Session is a freshly signed token together with what it asserts.
type Session struct {
	Token     string
	ExpiresAt time.Time
	Identity  Identity
}

// IdentityResolver looks up the account behind a token subject.
type IdentityResolver interface {
	FindUserByID(ctx context.Context, id string) (*User, error)
}

// Revoker records logged-out token ids until they would have expired anyway.
type Revoker interface {
	Revoke(ctx context.Context, tokenID string, ttl time.Duration) error
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}

// TokenService issues, verifies and refreshes HS256 session tokens.
type TokenService struct {
	secret   []byte
	issuer   string
	audience string
	ttl      time.Duration
	window   time.Duration
	now      func() time.Time
	users    IdentityResolver
	revoker  Revoker
}

// TokenOption configures TokenService.
type TokenOption func(*TokenService) error

// WithIssuer overrides the iss claim written and required.
func WithIssuer(issuer string) TokenOption {
	return func(s *TokenService) error {
		if issuer = strings.TrimSpace(issuer); issuer != "" {
			s.issuer = issuer
		}
		return nil
	}
}

// WithAudience overrides the aud claim written and required.
func WithAudience(audience string) TokenOption {
	return func(s *TokenService) error {
		if audience = strings.TrimSpace(audience); audience != "" {
			s.audience = audience
		}
		return nil
	}
}

// WithTTL sets the token lifetime.
func WithTTL(ttl time.Duration) TokenOption {
	return func(s *TokenService) error {
		if ttl < 0 {
			return errors.New("auth: token ttl must not be negative")
		}
		if ttl > 0 {
			s.ttl = ttl
		}
		return nil
	}
}

// WithRefreshWindow bounds how long after expiry Refresh still accepts a
// token. Revocations are kept for the same span.
func WithRefreshWindow(window time.Duration) TokenOption {
	return func(s *TokenService) error {
		if window < 0 {
			return errors.New("auth: refresh window must not be negative")
		}
		s.window = window
		return nil
	}
}

// WithClock overrides time source (useful for tests).
func WithClock(fn func() time.Time) TokenOption {
	return func(s *TokenService) error {
		if fn != nil {
			s.now = fn
		}
		return nil
	}
}

// WithRevoker enables logout. Without it tokens stay valid until expiry.
func WithRevoker(r Revoker) TokenOption {
	return func(s *TokenService) error {
		s.revoker = r
		return nil
	}
}

// NewTokenService constructs a TokenService signing with secret.
func NewTokenService(secret string, users IdentityResolver, opts ...TokenOption) (*TokenService, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("auth: signing secret is required")
	}
	if users == nil {
		return nil, errors.New("auth: identity resolver is required")
	}
	s := &TokenService{
		secret:   []byte(secret),
		issuer:   DefaultIssuer,
		audience: DefaultAudience,
		ttl:      DefaultTokenTTL,
		window:   DefaultRefreshWindow,
		now:      time.Now,
		users:    users,
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// TTL reports the configured token lifetime.
func (s *TokenService) TTL() time.Duration { return s.ttl }

// RefreshWindow reports how long after expiry a token stays refreshable.
func (s *TokenService) RefreshWindow() time.Duration { return s.window }

// refreshDeadline is the last instant claims can be exchanged or need to
// stay on the revocation list.
func (s *TokenService) refreshDeadline(claims *Claims) time.Time {
	return claims.ExpiresAt.Time.Add(s.window)
}

// Issue signs a token for identity.
func (s *TokenService) Issue(identity Identity) (Session, error) {
	if strings.TrimSpace(identity.ID) == "" {
		return Session{}, invalidInputf("identity id is required")
	}
	if !identity.Role.Valid() {
		return Session{}, invalidInputf("identity role is required")
	}
	now := s.now().UTC()
	exp := now.Add(s.ttl)
	claims := Claims{
		Role:       identity.Role.String(),
		Username:   identity.Username,
		ProvinceID: copyInt(identity.ProvinceID),
		DistrictID: copyInt(identity.DistrictID),
		WardID:     copyInt(identity.WardID),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   identity.ID,
			Audience:  jwt.ClaimStrings{s.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        uuid.NewString(),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return Session{}, fmt.Errorf("sign token: %w", err)
	}
	return Session{Token: signed, ExpiresAt: exp, Identity: identity}, nil
}

// Verify checks signature, issuer, audience and expiry and returns the
// identity asserted by the token. It never consults the user store.
func (s *TokenService) Verify(ctx context.Context, token string) (Identity, error) {
	claims, err := s.parse(token, true)
	if err != nil {
		return Identity{}, err
	}
	if err := s.checkRevoked(ctx, claims); err != nil {
		return Identity{}, err
	}
	return claims.identity()
}

// Authenticate verifies token and re-resolves the identity against the user
// store, so role or unit changes and deactivation take effect immediately.
func (s *TokenService) Authenticate(ctx context.Context, token string) (Identity, error) {
	asserted, err := s.Verify(ctx, token)
	if err != nil {
		return Identity{}, err
	}
	return s.resolve(ctx, asserted.ID)
}

// Refresh accepts an expired but otherwise valid token, up to the refresh
// window past its expiry, and issues a new one for the user's current
// identity, provided the user is still active.
func (s *TokenService) Refresh(ctx context.Context, token string) (Session, error) {
	claims, err := s.parse(token, false)
	if err != nil {
		return Session{}, err
	}
	if s.now().After(s.refreshDeadline(claims)) {
		return Session{}, ErrInvalidToken
	}
	if err := s.checkRevoked(ctx, claims); err != nil {
		return Session{}, err
	}
	current, err := s.resolve(ctx, claims.Subject)
	if err != nil {
		return Session{}, err
	}
	return s.Issue(current)
}

// Revoke invalidates token for as long as it could be verified or refreshed.
// Without a configured Revoker this is a no-op and the token stays usable.
func (s *TokenService) Revoke(ctx context.Context, token string) error {
	claims, err := s.parse(token, false)
	if err != nil {
		return err
	}
	if s.revoker == nil {
		return nil
	}
	ttl := s.refreshDeadline(claims).Sub(s.now())
	if ttl <= 0 {
		return nil
	}
	return s.revoker.Revoke(ctx, claims.ID, ttl)
}

// Stateless reports whether logout is a no-op.
func (s *TokenService) Stateless() bool { return s.revoker == nil }

func (s *TokenService) resolve(ctx context.Context, id string) (Identity, error) {
	user, err := s.users.FindUserByID(ctx, id)
	if err != nil || user == nil || !user.IsActive {
		return Identity{}, ErrIdentityNotFound
	}
	return user.Identity(), nil
}

func (s *TokenService) checkRevoked(ctx context.Context, claims *Claims) error {
	if s.revoker == nil {
		return nil
	}
	revoked, err := s.revoker.IsRevoked(ctx, claims.ID)
	if err != nil || revoked {
		return ErrInvalidToken
	}
	return nil
}

func (s *TokenService) parse(token string, enforceLifetime bool) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrInvalidToken
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
	}
	if enforceLifetime {
		opts = append(opts,
			jwt.WithIssuer(s.issuer),
			jwt.WithAudience(s.audience),
			jwt.WithExpirationRequired(),
			jwt.WithIssuedAt(),
		)
	} else {
		opts = append(opts, jwt.WithoutClaimsValidation())
	}

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	}, opts...)
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if !enforceLifetime {
		if claims.Issuer != s.issuer || !slices.Contains(claims.Audience, s.audience) {
			return nil, ErrInvalidToken
		}
		if claims.ExpiresAt == nil {
			return nil, ErrInvalidToken
		}
	}
	if strings.TrimSpace(claims.Subject) == "" || claims.ID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func (c *Claims) identity() (Identity, error) {
	role, err := ParseRole(c.Role)
	if err != nil {
		return Identity{}, ErrInvalidToken
	}
	return Identity{
		ID:         c.Subject,
		Username:   c.Username,
		Role:       role,
		ProvinceID: c.ProvinceID,
		DistrictID: c.DistrictID,
		WardID:     c.WardID,
	}, nil
}
