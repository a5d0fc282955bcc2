// Package artifactcache provides the shared memoizing cache for rendered and
// uploaded weather artifacts. Concurrent lookups for one key share a single
// computation, failures are never stored, and the whole cache is dropped on a
// fixed interval so artifacts follow the upstream data refresh cadence.
package artifactcache
