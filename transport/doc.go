// Package transport constructs pooled, TLS-capable, retry-aware HTTP
// transports from declarative configuration.
//
// The Builder accepts a Config plus optional overrides (retry handler, DNS
// resolver, hostname verifier, socket factory registry, route planner,
// credentials provider, service-unavailable retry strategy, metric name
// strategy) and produces a ready *http.Client wrapped in decorators for
// credentials, retries, throttling, metrics, and user-agent stamping.
//
// It is the low-level collaborator behind restclient.Builder; most callers
// never use it directly.
package transport
