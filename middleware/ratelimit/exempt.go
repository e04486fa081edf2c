package ratelimit

import "strings"

// DefaultExemptPaths are path prefixes that bypass the gate entirely: no
// bucket is touched and no headers are added.
var DefaultExemptPaths = []string{
	"/health",
	"/healthz",
	"/livez",
	"/readyz",
	"/info",
	"/swagger",
	"/v3/api-docs",
	"/openapi",
	"/docs",
	"/favicon.ico",
	"/static/",
	"/assets/",
}

// DefaultExemptExtensions exclude common static assets wherever they are
// served from.
var DefaultExemptExtensions = []string{
	".css", ".js", ".map",
	".png", ".jpg", ".jpeg", ".gif", ".svg", ".ico",
	".woff", ".woff2", ".ttf",
}

func exemptPath(path string, prefixes, exts []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	for _, ext := range exts {
		if strings.HasSuffix(path, ext) {
			return true
		}
	}
	return false
}
