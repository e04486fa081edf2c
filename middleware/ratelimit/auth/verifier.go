package auth

import (
	"net/http"
	"strings"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"

	"ratelimit-gateway/middleware/ratelimit/domain"
)

// tierClaims are the string claims the resolver may look at.
var tierClaims = []string{"tier", "subscription", "plan"}

// roleClaims are checked in order for the caller's roles/authorities.
var roleClaims = []string{"roles", "authorities", "scope"}

// Verifier maps "Authorization: Bearer <jwt>" to a domain.Principal.
//
// Tokens are verified against a shared HS256 secret. Any parse or
// validation failure yields the anonymous principal, so a bad token can
// only ever be limited more strictly, never less.
type Verifier struct {
	secret []byte
	issuer string
}

type VerifierOption func(*Verifier)

// WithIssuer additionally requires the iss claim to match.
func WithIssuer(iss string) VerifierOption {
	return func(v *Verifier) { v.issuer = iss }
}

func NewVerifier(secret []byte, opts ...VerifierOption) *Verifier {
	v := &Verifier{secret: secret}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// FromRequest extracts and validates the request's bearer token. It is
// shaped to plug straight into the middleware's Principal option.
func (v *Verifier) FromRequest(r *http.Request) domain.Principal {
	raw := bearerToken(r.Header.Get("Authorization"))
	if raw == "" {
		return domain.Anonymous
	}

	parseOpts := []jwt.ParseOption{
		jwt.WithKey(jwa.HS256, v.secret),
		jwt.WithValidate(true),
	}
	if v.issuer != "" {
		parseOpts = append(parseOpts, jwt.WithIssuer(v.issuer))
	}

	tok, err := jwt.Parse([]byte(raw), parseOpts...)
	if err != nil {
		return domain.Anonymous
	}
	return fromToken(tok)
}

// bearerToken accepts "Bearer <token>" and falls back to treating the whole
// header as a raw token.
func bearerToken(header string) string {
	header = strings.TrimSpace(header)
	if header == "" {
		return ""
	}
	if rest, ok := cutPrefixFold(header, "Bearer "); ok {
		return strings.TrimSpace(rest)
	}
	return header
}

func fromToken(tok jwt.Token) domain.Principal {
	p := StaticPrincipal{
		Authed: true,
		Sub:    tok.Subject(),
		Claims: make(map[string]string),
	}
	for _, name := range tierClaims {
		if v, ok := tok.Get(name); ok {
			if s, ok := v.(string); ok {
				p.Claims[name] = s
			}
		}
	}
	p.RoleList = rolesFrom(tok)
	return p
}

// rolesFrom reads the first role-bearing claim present, accepting either a
// list of strings or one space-separated string (scope style).
func rolesFrom(tok jwt.Token) []string {
	for _, name := range roleClaims {
		v, ok := tok.Get(name)
		if !ok {
			continue
		}
		switch x := v.(type) {
		case string:
			return strings.Fields(x)
		case []interface{}:
			out := make([]string, 0, len(x))
			for _, item := range x {
				if s, ok := item.(string); ok {
					out = append(out, s)
				}
			}
			return out
		}
	}
	return nil
}

func cutPrefixFold(s, prefix string) (string, bool) {
	if len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix) {
		return s[len(prefix):], true
	}
	return "", false
}
