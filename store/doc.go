// Package store houses concrete implementations of core.RunStore. The
// interface lives in the core package so the façade and examples depend only
// on the contract; the wiring layer decides which backend to instantiate.
//
//   - InMemoryStore: process-local map, suited for tests and the CLI.
//   - RedisStore: JSON records with a TTL plus a sorted-set index by
//     completion time, via github.com/redis/go-redis/v9.
package store
