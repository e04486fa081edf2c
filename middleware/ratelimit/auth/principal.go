// Package auth turns bearer tokens into the principal the gate consumes.
// The gate itself never validates credentials; any collaborator producing a
// domain.Principal can stand in for this package.
package auth

// StaticPrincipal is a fixed principal, handy for tests and for hosts that
// authenticate by other means.
type StaticPrincipal struct {
	Authed   bool
	Sub      string
	Claims   map[string]string
	RoleList []string
}

func (p StaticPrincipal) Authenticated() bool { return p.Authed }

func (p StaticPrincipal) Subject() string { return p.Sub }

func (p StaticPrincipal) Claim(name string) (string, bool) {
	v, ok := p.Claims[name]
	return v, ok
}

func (p StaticPrincipal) Roles() []string { return p.RoleList }
