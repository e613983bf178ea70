// Package cache provides caching decorators for the authorization resolver.
// The engine itself never caches; these wrappers let callers trade staleness
// for load on their own terms.
//
// Two decorators exist: Memory (per-process LRU with TTL) and Redis (shared
// across instances). Both cache only the effective permission set per
// user/tenant; checks against a concrete resource always pass through so
// per-object overrides take effect immediately. Decorators satisfy the same
// Source interface they wrap, so a Memory layer can front a Redis layer.
package cache
