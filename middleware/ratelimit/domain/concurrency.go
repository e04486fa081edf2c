package domain

import "context"

// SlotPool represents a resource with finite capacity, such as the number
// of requests allowed in flight at once.
//
// Acquire blocks until a slot is free or ctx ends. On success it returns a
// release function that must be called exactly once.
type SlotPool interface {
	Acquire(ctx context.Context) (release func(), ok bool)
}
