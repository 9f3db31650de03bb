package token

import (
	"context"
	"errors"
	"time"

	"tempora.dev/internal/obs"
)

const (
	defaultAccessTTL  = 1 * time.Hour
	defaultRefreshTTL = 14 * 24 * time.Hour
)

// CutoffFunc returns the subject's most recent password change time. Any
// token minted before that instant is void, even if unexpired and not
// explicitly revoked.
type CutoffFunc func(ctx context.Context, subject string) (time.Time, error)

// Pair is a freshly minted access/refresh token pair. AccessTTL is the
// remaining access lifetime as of issuance.
type Pair struct {
	AccessToken      string
	RefreshToken     string
	AccessTTL        time.Duration
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

// Service issues and verifies token pairs and owns the revocation set.
// It is safe for arbitrary concurrent use; no per-request state is held.
type Service struct {
	codec      *Codec
	revoked    RevocationRegistry
	now        func() time.Time
	accessTTL  time.Duration
	refreshTTL time.Duration
}

// Option configures Service behavior.
type Option func(*Service)

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// WithAccessTTL configures access token lifetime.
func WithAccessTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.accessTTL = ttl
		}
	}
}

// WithRefreshTTL configures refresh token lifetime.
func WithRefreshTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.refreshTTL = ttl
		}
	}
}

// NewService constructs a token service.
func NewService(codec *Codec, revoked RevocationRegistry, opts ...Option) (*Service, error) {
	if codec == nil {
		return nil, errors.New("token: codec is required")
	}
	if revoked == nil {
		return nil, errors.New("token: revocation registry is required")
	}
	svc := &Service{
		codec:      codec,
		revoked:    revoked,
		now:        time.Now,
		accessTTL:  defaultAccessTTL,
		refreshTTL: defaultRefreshTTL,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Issue mints an access/refresh pair for the subject. Nothing is stored;
// only later revocation is.
func (s *Service) Issue(_ context.Context, subject string) (Pair, error) {
	now := s.now()
	access, accessClaims, err := s.codec.Sign(subject, KindAccess, now, s.accessTTL)
	if err != nil {
		return Pair{}, err
	}
	refresh, refreshClaims, err := s.codec.Sign(subject, KindRefresh, now, s.refreshTTL)
	if err != nil {
		return Pair{}, err
	}
	obs.TokensIssued.WithLabelValues(string(KindAccess)).Inc()
	obs.TokensIssued.WithLabelValues(string(KindRefresh)).Inc()
	return Pair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessTTL:        s.accessTTL,
		AccessExpiresAt:  accessClaims.ExpiresAt.Time,
		RefreshExpiresAt: refreshClaims.ExpiresAt.Time,
	}, nil
}

// VerifyAccess validates an access token: signature, kind, expiry,
// revocation. Password state is deliberately not checked here.
func (s *Service) VerifyAccess(ctx context.Context, raw string) (Claims, error) {
	claims, err := s.codec.Verify(raw, KindAccess, s.now())
	if err != nil {
		if errors.Is(err, ErrWrongKind) {
			s.revokeMismatched(ctx, raw, KindRefresh)
		}
		return Claims{}, err
	}
	revoked, err := s.revoked.IsRevoked(ctx, claims.ID)
	if err != nil {
		return Claims{}, err
	}
	if revoked {
		return Claims{}, ErrRevoked
	}
	return claims, nil
}

// Refresh validates a refresh token, applies the password-change cutoff
// rule, revokes the presented token and issues a new pair (rotation).
func (s *Service) Refresh(ctx context.Context, raw string, cutoff CutoffFunc) (Pair, Claims, error) {
	claims, err := s.codec.Verify(raw, KindRefresh, s.now())
	if err != nil {
		if errors.Is(err, ErrWrongKind) {
			s.revokeMismatched(ctx, raw, KindAccess)
		}
		return Pair{}, Claims{}, err
	}
	revoked, err := s.revoked.IsRevoked(ctx, claims.ID)
	if err != nil {
		return Pair{}, Claims{}, err
	}
	if revoked {
		return Pair{}, Claims{}, ErrRevoked
	}
	if cutoff != nil {
		changedAt, err := cutoff(ctx, claims.Subject)
		if err != nil {
			return Pair{}, Claims{}, err
		}
		if claims.IssuedAt.Time.Before(changedAt) {
			return Pair{}, Claims{}, ErrPrecedesPasswordChange
		}
	}
	if err := s.Revoke(ctx, claims.ID, claims.ExpiresAt.Time); err != nil {
		return Pair{}, Claims{}, err
	}
	pair, err := s.Issue(ctx, claims.Subject)
	if err != nil {
		return Pair{}, Claims{}, err
	}
	return pair, claims, nil
}

// Revoke records the jti with the token's own expiry as TTL.
func (s *Service) Revoke(ctx context.Context, jti string, expiresAt time.Time) error {
	return s.revoked.Revoke(ctx, jti, expiresAt)
}

// Logout always succeeds client-side. When a refresh token is supplied its
// jti is revoked server-side, best effort.
func (s *Service) Logout(ctx context.Context, _ string, refreshToken string) error {
	if refreshToken == "" {
		return nil
	}
	claims, err := s.codec.Verify(refreshToken, KindRefresh, s.now())
	if err != nil {
		return nil
	}
	_ = s.Revoke(ctx, claims.ID, claims.ExpiresAt.Time)
	return nil
}

// revokeMismatched handles detected reuse of a token of the opposite kind:
// the presented token, if otherwise valid, is burned.
func (s *Service) revokeMismatched(ctx context.Context, raw string, actual Kind) {
	claims, err := s.codec.Verify(raw, actual, s.now())
	if err != nil {
		return
	}
	_ = s.Revoke(ctx, claims.ID, claims.ExpiresAt.Time)
}
