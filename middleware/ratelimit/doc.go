// Package ratelimit provides the net/http admission gate for the API:
// tiered and class-based token-bucket limiting with client-friendly
// feedback.
//
// Layers:
//
//   - domain: contracts and types (no net/http dependency)
//   - application: policy engine, tier resolution, concurrency rules
//   - infra: memory/Redis/fallback bucket stores, stats, metrics
//   - ratelimit (this package): HTTP middleware, key extraction, and the
//     translation of decisions into status codes, X-RateLimit-* headers and
//     application/problem+json denial bodies
//
// Per request the gate skips exempt paths (health, docs, static assets),
// resolves the caller's identifier and limit class (flat "api"/"auth" mode,
// or the subscription tier carried by the principal when tiers are enabled),
// consumes one token from the engine, and either forwards the request with
// rate-limit headers or short-circuits it with a 429 and retry hints.
//
// The only failure the client ever sees from the gate is 429 with
// Retry-After: internal resolution problems degrade to the most restrictive
// applicable default instead of surfacing a 5xx or admitting traffic
// unlimited.
package ratelimit
