package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

func signToken(t *testing.T, secret []byte, build func(*jwt.Builder)) string {
	t.Helper()
	b := jwt.NewBuilder().
		Subject("42").
		IssuedAt(time.Now()).
		Expiration(time.Now().Add(time.Hour))
	if build != nil {
		build(b)
	}
	tok, err := b.Build()
	require.NoError(t, err)
	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.HS256, secret))
	require.NoError(t, err)
	return string(signed)
}

func requestWithAuth(header string) *http.Request {
	r := httptest.NewRequest(http.MethodGet, "/api/x", nil)
	if header != "" {
		r.Header.Set("Authorization", header)
	}
	return r
}

func TestVerifier_ValidToken(t *testing.T) {
	v := NewVerifier(testSecret)
	raw := signToken(t, testSecret, func(b *jwt.Builder) {
		b.Claim("tier", "pro")
	})

	p := v.FromRequest(requestWithAuth("Bearer " + raw))
	assert.True(t, p.Authenticated())
	assert.Equal(t, "42", p.Subject())
	tier, ok := p.Claim("tier")
	assert.True(t, ok)
	assert.Equal(t, "pro", tier)
}

func TestVerifier_NoHeaderIsAnonymous(t *testing.T) {
	v := NewVerifier(testSecret)
	p := v.FromRequest(requestWithAuth(""))
	assert.False(t, p.Authenticated())
}

func TestVerifier_WrongSecretIsAnonymous(t *testing.T) {
	v := NewVerifier(testSecret)
	raw := signToken(t, []byte("another-secret-another-secret-00"), nil)
	p := v.FromRequest(requestWithAuth("Bearer " + raw))
	assert.False(t, p.Authenticated())
}

func TestVerifier_ExpiredTokenIsAnonymous(t *testing.T) {
	v := NewVerifier(testSecret)
	raw := signToken(t, testSecret, func(b *jwt.Builder) {
		b.IssuedAt(time.Now().Add(-2 * time.Hour))
		b.Expiration(time.Now().Add(-time.Hour))
	})
	p := v.FromRequest(requestWithAuth("Bearer " + raw))
	assert.False(t, p.Authenticated())
}

func TestVerifier_GarbageTokenIsAnonymous(t *testing.T) {
	v := NewVerifier(testSecret)
	p := v.FromRequest(requestWithAuth("Bearer not.a.jwt"))
	assert.False(t, p.Authenticated())
}

func TestVerifier_IssuerEnforcedWhenConfigured(t *testing.T) {
	v := NewVerifier(testSecret, WithIssuer("gateway"))

	good := signToken(t, testSecret, func(b *jwt.Builder) { b.Issuer("gateway") })
	assert.True(t, v.FromRequest(requestWithAuth("Bearer "+good)).Authenticated())

	bad := signToken(t, testSecret, func(b *jwt.Builder) { b.Issuer("someone-else") })
	assert.False(t, v.FromRequest(requestWithAuth("Bearer "+bad)).Authenticated())
}

func TestVerifier_RolesFromListClaim(t *testing.T) {
	v := NewVerifier(testSecret)
	raw := signToken(t, testSecret, func(b *jwt.Builder) {
		b.Claim("roles", []string{"ROLE_USER", "tier:basic"})
	})
	p := v.FromRequest(requestWithAuth("Bearer " + raw))
	assert.Equal(t, []string{"ROLE_USER", "tier:basic"}, p.Roles())
}

func TestVerifier_RolesFromScopeString(t *testing.T) {
	v := NewVerifier(testSecret)
	raw := signToken(t, testSecret, func(b *jwt.Builder) {
		b.Claim("scope", "read write tier:pro")
	})
	p := v.FromRequest(requestWithAuth("Bearer " + raw))
	assert.Equal(t, []string{"read", "write", "tier:pro"}, p.Roles())
}

func TestBearerToken(t *testing.T) {
	assert.Equal(t, "abc", bearerToken("Bearer abc"))
	assert.Equal(t, "abc", bearerToken("bearer abc"))
	assert.Equal(t, "abc", bearerToken("  Bearer   abc  "))
	assert.Equal(t, "abc", bearerToken("abc"))
	assert.Equal(t, "", bearerToken("   "))
}
