// Package metrics exposes Prometheus metrics for the replica.
//
// Metrics live on a private registry so several replicas in one process
// (and tests) do not collide:
//
//	reg := metrics.NewRegistry()
//	http.Handle("/metrics", reg.Handler())
//
// A nil *Registry is valid and records nothing.
package metrics
