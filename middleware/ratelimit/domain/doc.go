// Package domain defines the contracts and types for rate limiting and
// concurrency capping.
//
// It depends neither on net/http nor on concrete backends, so the
// application rules can be unit-tested without infrastructure details.
package domain
