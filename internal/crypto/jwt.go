package crypto

import (
	"crypto/hmac"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	DefaultIssuer   = "taskguard"
	DefaultAudience = "taskguard-api"
)

var (
	// ErrInvalidToken matches every token verification failure.
	ErrInvalidToken = errors.New("invalid or expired token")
	ErrEmptySubject = errors.New("token subject is required")
)

// TokenReason says why a token was rejected.
type TokenReason string

const (
	ReasonExpired      TokenReason = "expired"
	ReasonBadSignature TokenReason = "bad-signature"
	ReasonMalformed    TokenReason = "malformed"
)

// InvalidTokenError is returned by Verify. Callers should treat every
// reason the same way; the reason exists for logging and tests.
type InvalidTokenError struct {
	Reason TokenReason
	Err    error
}

func (e *InvalidTokenError) Error() string {
	if e.Err != nil {
		return "invalid token: " + string(e.Reason) + ": " + e.Err.Error()
	}
	return "invalid token: " + string(e.Reason)
}

func (e *InvalidTokenError) Is(target error) bool {
	return target == ErrInvalidToken
}

func (e *InvalidTokenError) Unwrap() error {
	return e.Err
}

// TokenReasonOf extracts the rejection reason from a Verify error.
func TokenReasonOf(err error) (TokenReason, bool) {
	var invalid *InvalidTokenError
	if errors.As(err, &invalid) {
		return invalid.Reason, true
	}
	return "", false
}

// Claims represents the JWT claims for taskguard authentication.
// The subject is the user's email; UserID pins the token to one account
// so a later account registered under the same email cannot reuse it.
type Claims struct {
	jwt.RegisteredClaims
	UserID       string `json:"uid,omitempty"`
	Role         string `json:"role,omitempty"`
	TokenVersion int64  `json:"ver"`
}

// TokenService issues and verifies HS256 access tokens.
type TokenService struct {
	secret   []byte
	issuer   string
	audience string
	now      func() time.Time
}

// TokenOption customizes a TokenService.
type TokenOption func(*TokenService)

// WithIssuer sets the iss claim written and required by the service.
func WithIssuer(issuer string) TokenOption {
	return func(s *TokenService) { s.issuer = issuer }
}

// WithAudience sets the aud claim written and required by the service.
func WithAudience(audience string) TokenOption {
	return func(s *TokenService) { s.audience = audience }
}

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) TokenOption {
	return func(s *TokenService) { s.now = now }
}

// NewTokenService creates a TokenService signing with secret.
func NewTokenService(secret string, opts ...TokenOption) *TokenService {
	s := &TokenService{
		secret:   []byte(secret),
		issuer:   DefaultIssuer,
		audience: DefaultAudience,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Issue signs a token for claims.Subject that expires ttl after issuance.
// Issuer, audience, issued-at, expiry and token ID are always set by the
// service; a ttl of zero or less yields a token that is already expired.
func (s *TokenService) Issue(claims Claims, ttl time.Duration) (string, Claims, error) {
	if claims.Subject == "" {
		return "", Claims{}, ErrEmptySubject
	}
	if ttl < 0 {
		ttl = 0
	}

	now := s.now()
	claims.RegisteredClaims = jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Subject:   claims.Subject,
		Issuer:    s.issuer,
		Audience:  jwt.ClaimStrings{s.audience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", Claims{}, err
	}
	return signed, claims, nil
}

// Verify checks the token's algorithm, signature, issuer, audience and
// expiry, in that order, and returns its claims.
func (s *TokenService) Verify(tokenString string) (*Claims, error) {
	parts := strings.Split(tokenString, ".")
	if len(parts) != 3 {
		return nil, &InvalidTokenError{Reason: ReasonMalformed, Err: jwt.ErrTokenMalformed}
	}

	if err := checkHeader(parts[0]); err != nil {
		return nil, &InvalidTokenError{Reason: ReasonMalformed, Err: err}
	}

	// The encoded signature is compared as text so that any altered byte,
	// including base64 padding bits, is rejected before the payload is read.
	expected, err := jwt.SigningMethodHS256.Sign(parts[0]+"."+parts[1], s.secret)
	if err != nil {
		return nil, &InvalidTokenError{Reason: ReasonMalformed, Err: err}
	}
	if !hmac.Equal([]byte(base64.RawURLEncoding.EncodeToString(expected)), []byte(parts[2])) {
		return nil, &InvalidTokenError{Reason: ReasonBadSignature, Err: jwt.ErrTokenSignatureInvalid}
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithAudience(s.audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)

	claims := &Claims{}
	token, err := parser.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, &InvalidTokenError{Reason: ReasonExpired, Err: err}
		}
		if errors.Is(err, jwt.ErrTokenSignatureInvalid) {
			return nil, &InvalidTokenError{Reason: ReasonBadSignature, Err: err}
		}
		return nil, &InvalidTokenError{Reason: ReasonMalformed, Err: err}
	}
	if !token.Valid || claims.Subject == "" {
		return nil, &InvalidTokenError{Reason: ReasonMalformed, Err: jwt.ErrTokenInvalidClaims}
	}

	return claims, nil
}

var errUnexpectedAlg = errors.New("unexpected signing algorithm")

func checkHeader(segment string) error {
	raw, err := base64.RawURLEncoding.DecodeString(segment)
	if err != nil {
		return jwt.ErrTokenMalformed
	}
	var header struct {
		Alg string `json:"alg"`
		Typ string `json:"typ"`
	}
	if err := json.Unmarshal(raw, &header); err != nil {
		return jwt.ErrTokenMalformed
	}
	if header.Alg != jwt.SigningMethodHS256.Alg() {
		return errUnexpectedAlg
	}
	return nil
}
