// Package application contains the use cases behind the gate: the policy
// engine that turns (identifier, limit class) into a bucket decision, the
// tier resolver, and the concurrency-slot rules.
//
// It depends only on the domain package and knows nothing about net/http.
package application
