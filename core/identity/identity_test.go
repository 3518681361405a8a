package identity

import (
	"context"
	"testing"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/homeroom/core"
)

func TestJWTProvider_Verify(t *testing.T) {
	conf := core.IdentityConfig{Issuer: "https://id.test", Audience: "homeroom", SigningKey: "s3cret"}
	prov := NewJWTProvider(conf)
	prof := Profile{Subject: "idp|42", Email: "Jane@Test.test ", Name: "Jane"}

	valid, err := NewAssertion(conf, prof, time.Minute)
	require.NoError(t, err)
	expired, err := NewAssertion(conf, prof, -time.Minute)
	require.NoError(t, err)
	otherKey, err := NewAssertion(core.IdentityConfig{Issuer: conf.Issuer, Audience: conf.Audience, SigningKey: "nope"}, prof, time.Minute)
	require.NoError(t, err)
	otherIssuer, err := NewAssertion(core.IdentityConfig{Issuer: "https://evil.test", Audience: conf.Audience, SigningKey: conf.SigningKey}, prof, time.Minute)
	require.NoError(t, err)
	otherAudience, err := NewAssertion(core.IdentityConfig{Issuer: conf.Issuer, Audience: "billing", SigningKey: conf.SigningKey}, prof, time.Minute)
	require.NoError(t, err)
	noSubject, err := NewAssertion(conf, Profile{Email: "x@test.test"}, time.Minute)
	require.NoError(t, err)
	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{
		StandardClaims: jwt.StandardClaims{Issuer: conf.Issuer, Audience: conf.Audience, Subject: "idp|42"},
		Email:          "jane@test.test",
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	tests := []struct {
		name      string
		assertion string
		wantErr   error
	}{
		{name: "empty", assertion: "", wantErr: ErrInvalidAssertion},
		{name: "garbage", assertion: "a.b.c", wantErr: ErrInvalidAssertion},
		{name: "expired", assertion: expired, wantErr: ErrInvalidAssertion},
		{name: "wrong key", assertion: otherKey, wantErr: ErrInvalidAssertion},
		{name: "wrong issuer", assertion: otherIssuer, wantErr: ErrInvalidAssertion},
		{name: "wrong audience", assertion: otherAudience, wantErr: ErrInvalidAssertion},
		{name: "no subject", assertion: noSubject, wantErr: ErrInvalidAssertion},
		{name: "alg none", assertion: unsigned, wantErr: ErrInvalidAssertion},
		{name: "valid", assertion: valid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := prov.Verify(context.Background(), tt.assertion)
			assert.Equal(t, tt.wantErr, err)
			if tt.wantErr == nil {
				assert.Equal(t, Profile{Subject: "idp|42", Email: "jane@test.test", Name: "Jane"}, got)
			}
		})
	}
}
