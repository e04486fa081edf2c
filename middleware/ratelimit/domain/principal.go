package domain

// Principal is the already-authenticated caller as seen by the gate.
// Credential validation happens upstream; the gate only consumes the result
// and passes it explicitly to the tier resolver.
type Principal interface {
	Authenticated() bool
	// Subject is a stable identifier for the caller (user id or name).
	// Stable identifiers keep a user from evading limits by rotating
	// network addresses.
	Subject() string
	// Claim returns the named string claim when present.
	Claim(name string) (string, bool)
	Roles() []string
}

// Anonymous is the principal used for unauthenticated traffic.
var Anonymous Principal = anonymous{}

type anonymous struct{}

func (anonymous) Authenticated() bool         { return false }
func (anonymous) Subject() string             { return "" }
func (anonymous) Claim(string) (string, bool) { return "", false }
func (anonymous) Roles() []string             { return nil }
