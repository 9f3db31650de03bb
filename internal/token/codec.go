package token

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Kind distinguishes the two token roles. It is part of the verified
// contract: an access token is never accepted where a refresh is required
// and vice versa.
type Kind string

const (
	KindAccess  Kind = "access"
	KindRefresh Kind = "refresh"
)

// Verification failure taxonomy. Each cause is distinct so callers and tests
// can assert on it; the HTTP boundary collapses most of them to 401.
var (
	ErrMalformed              = errors.New("token: malformed")
	ErrExpired                = errors.New("token: expired")
	ErrWrongKind              = errors.New("token: wrong kind")
	ErrRevoked                = errors.New("token: revoked")
	ErrPrecedesPasswordChange = errors.New("token: issued before password change")
)

// Claims are the signed contents of a token.
type Claims struct {
	Kind Kind `json:"kind"`
	jwt.RegisteredClaims
}

// Codec signs and verifies compact self-contained tokens with HS256. It
// carries no external state.
type Codec struct {
	secret []byte
	issuer string
}

// NewCodec constructs a codec. The secret must already have passed config
// validation; an empty one is still rejected here.
func NewCodec(secret, issuer string) (*Codec, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, errors.New("token: signing secret is required")
	}
	return &Codec{secret: []byte(secret), issuer: strings.TrimSpace(issuer)}, nil
}

// Sign mints a token of the given kind with a fresh jti.
func (c *Codec) Sign(subject string, kind Kind, now time.Time, ttl time.Duration) (string, Claims, error) {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return "", Claims{}, errors.New("token: subject is required")
	}
	if ttl <= 0 {
		return "", Claims{}, errors.New("token: ttl must be greater than zero")
	}
	now = now.UTC()
	claims := Claims{
		Kind: kind,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    c.issuer,
			Subject:   subject,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", Claims{}, err
	}
	return signed, claims, nil
}

// Verify checks signature integrity, expiry against now, and the kind claim.
// A token is already invalid at the instant now equals its expiry.
func (c *Codec) Verify(raw string, kind Kind, now time.Time) (Claims, error) {
	claims, err := c.parse(raw, now)
	if err != nil {
		return Claims{}, err
	}
	if claims.Kind != kind {
		return Claims{}, ErrWrongKind
	}
	return claims, nil
}

// parse validates everything except the kind claim.
func (c *Codec) parse(raw string, now time.Time) (Claims, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Claims{}, ErrMalformed
	}
	parsed, err := jwt.ParseWithClaims(raw, &Claims{}, func(t *jwt.Token) (any, error) {
		return c.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(func() time.Time { return now }),
		jwt.WithIssuedAt(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Claims{}, ErrExpired
		}
		return Claims{}, ErrMalformed
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return Claims{}, ErrMalformed
	}
	if strings.TrimSpace(claims.Subject) == "" || claims.ID == "" {
		return Claims{}, ErrMalformed
	}
	if claims.ExpiresAt == nil || claims.IssuedAt == nil {
		return Claims{}, ErrMalformed
	}
	if c.issuer != "" && claims.Issuer != c.issuer {
		return Claims{}, ErrMalformed
	}
	return *claims, nil
}
