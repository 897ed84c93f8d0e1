package credentials

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// DefaultTokenTTL is the credential token lifetime when none is configured.
const DefaultTokenTTL = 7 * 24 * time.Hour

var (
	// ErrTokenExpired signals that the credential token has expired.
	ErrTokenExpired = errors.New("credentials: token expired")
	// ErrTokenInvalid signals that the credential token is malformed or badly signed.
	ErrTokenInvalid = errors.New("credentials: token invalid")
)

// Claims carries the user id the token was issued for.
type Claims struct {
	ID string `json:"id"`
	jwt.RegisteredClaims
}

// JWTIssuer signs and verifies HS256 credential tokens.
type JWTIssuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// IssuerOption customises the issuer.
type IssuerOption func(*JWTIssuer)

// WithTTL overrides the token lifetime.
func WithTTL(ttl time.Duration) IssuerOption {
	return func(i *JWTIssuer) {
		if ttl > 0 {
			i.ttl = ttl
		}
	}
}

// WithClock injects a custom clock.
func WithClock(now func() time.Time) IssuerOption {
	return func(i *JWTIssuer) {
		if now != nil {
			i.now = now
		}
	}
}

// NewJWTIssuer constructs an issuer from the shared signing secret.
func NewJWTIssuer(secret string, opts ...IssuerOption) (*JWTIssuer, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("credentials: jwt secret is required")
	}
	issuer := &JWTIssuer{secret: []byte(secret), ttl: DefaultTokenTTL, now: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(issuer)
		}
	}
	return issuer, nil
}

// Issue signs a token for userID.
func (i *JWTIssuer) Issue(userID string) (string, error) {
	now := i.now()
	claims := Claims{
		ID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("credentials: sign token: %w", err)
	}
	return signed, nil
}

// Verify parses the token and returns its claims.
func (i *JWTIssuer) Verify(token string) (Claims, error) {
	var claims Claims
	parser := jwt.Parser{ValidMethods: []string{jwt.SigningMethodHS256.Alg()}}
	_, err := parser.ParseWithClaims(token, &claims, func(*jwt.Token) (interface{}, error) {
		return i.secret, nil
	})
	if err != nil {
		var validation *jwt.ValidationError
		if errors.As(err, &validation) && validation.Errors&jwt.ValidationErrorExpired != 0 {
			return Claims{}, ErrTokenExpired
		}
		return Claims{}, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	if strings.TrimSpace(claims.ID) == "" {
		return Claims{}, fmt.Errorf("%w: missing id claim", ErrTokenInvalid)
	}
	return claims, nil
}

// VerifyToken returns the user id carried by a valid token.
func (i *JWTIssuer) VerifyToken(token string) (string, error) {
	claims, err := i.Verify(token)
	if err != nil {
		return "", err
	}
	return claims.ID, nil
}
