// Package observability provides logging, metrics, and request context
// support for the citation network service.
//
// # Overview
//
// The observability package provides:
//
//   - Structured logging with zerolog
//   - Prometheus metrics for upstream sources, the resolver, discovery,
//     the lookup caches, network assembly and ranking
//   - Context helpers for propagating request identifiers
//
// # Logging
//
// Create a logger from configuration:
//
//	cfg := observability.LoggingConfig{
//	    Level:  "info",
//	    Format: "json",
//	    Output: "stdout",
//	}
//
//	logger := observability.NewLogger(cfg)
//	logger = observability.Component(logger, "discovery")
//	logger = observability.WithSourceContext(logger, pmid, domain.RelationCitations)
//
// # Metrics
//
// Metrics register against an explicit registerer so tests can use a fresh
// prometheus.NewRegistry():
//
//	metrics := observability.NewMetrics("citenet", prometheus.DefaultRegisterer)
//	client := pubmed.New(cfg, pubmed.WithObserver(metrics))
//
// # Standard Fields
//
// Common fields used across the service:
//
//   - request_id: API request identifier
//   - component: emitting component (resolver, discovery, cache, ...)
//   - source_id: source paper identifier
//   - relation: citations or references
//   - cache: cache instance name
//   - strategy: discovery strategy name
//
// # Thread Safety
//
// All components are safe for concurrent use from multiple goroutines.
package observability
