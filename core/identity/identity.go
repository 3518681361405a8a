// Package identity verifies the assertions handed back by the external identity provider.
// Authentication itself happens at the provider; only the shape of the identity matters here.
package identity

import (
	"context"
	"strings"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/pkg/errors"

	"github.com/trezcool/homeroom/core"
)

var ErrInvalidAssertion = errors.New("invalid identity assertion")

type (
	// Profile is the authenticated identity: a stable subject plus profile attributes.
	Profile struct {
		Subject string
		Email   string
		Name    string
	}

	Provider interface {
		Verify(ctx context.Context, assertion string) (Profile, error)
	}

	// Claims is the assertion payload signed by the provider.
	Claims struct {
		jwt.StandardClaims
		Email string `json:"email,omitempty"`
		Name  string `json:"name,omitempty"`
	}

	JWTProvider struct {
		issuer   string
		audience string
		key      []byte
	}
)

func NewJWTProvider(conf core.IdentityConfig) *JWTProvider {
	return &JWTProvider{
		issuer:   conf.Issuer,
		audience: conf.Audience,
		key:      []byte(conf.SigningKey),
	}
}

// Verify checks signature (HS256 only), expiry, issuer and audience of assertion.
func (p *JWTProvider) Verify(_ context.Context, assertion string) (Profile, error) {
	claims := new(Claims)
	_, err := jwt.ParseWithClaims(assertion, claims, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, ErrInvalidAssertion
		}
		return p.key, nil
	})
	if err != nil {
		return Profile{}, ErrInvalidAssertion
	}
	if !claims.VerifyIssuer(p.issuer, true) || !claims.VerifyAudience(p.audience, true) {
		return Profile{}, ErrInvalidAssertion
	}

	prof := Profile{
		Subject: strings.TrimSpace(claims.Subject),
		Email:   core.CleanString(claims.Email, true /* lower */),
		Name:    core.CleanString(claims.Name),
	}
	if prof.Subject == "" || prof.Email == "" {
		return Profile{}, ErrInvalidAssertion
	}
	if prof.Name == "" {
		prof.Name = prof.Email
	}
	return prof, nil
}

// NewAssertion signs an assertion the way the provider does. Used by tests & the dev setup.
func NewAssertion(conf core.IdentityConfig, prof Profile, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		StandardClaims: jwt.StandardClaims{
			Issuer:    conf.Issuer,
			Audience:  conf.Audience,
			Subject:   prof.Subject,
			IssuedAt:  now.Unix(),
			ExpiresAt: now.Add(ttl).Unix(),
		},
		Email: prof.Email,
		Name:  prof.Name,
	}
	ss, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(conf.SigningKey))
	if err != nil {
		return "", errors.Wrap(err, "signing assertion")
	}
	return ss, nil
}
