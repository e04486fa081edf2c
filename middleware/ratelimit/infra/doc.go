// Package infra contains the concrete implementations for the contracts
// defined in the domain package.
//
// Bucket backends:
//   - MemoryStore: per-key continuous-refill token buckets in process memory
//   - RedisStore: the same algorithm as one atomic Lua script, shared
//     across replicas
//   - FallbackStore: RedisStore with degrade-to-local behavior when the
//     backend is unreachable
//
// Plus decision counters (MemoryStatsStore, RedisStatsStore), a Prometheus
// metrics recorder, and the channel semaphore used by the concurrency cap.
package infra
