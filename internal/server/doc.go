// Package server serves sessions over HTTP: a page-view counter driven by a
// request-scoped session lifecycle, session lookup and removal, health and
// Prometheus metrics.
//
// Routes:
//
//	GET    /healthz
//	GET    /metrics
//	GET    /sessions/{id}
//	POST   /sessions/{id}/views
//	DELETE /sessions/{id}
package server
