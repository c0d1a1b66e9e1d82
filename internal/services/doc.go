// Package services defines shared utilities consumed by the enrichment stage
// handlers and external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp session IDs, stage names, event rooms, and
//     correlation identifiers for logging and tracing.
//   - Structured error markers plus the Wrap helper that classify stage
//     failures (execution vs timeout vs transient) for retry decisions and
//     failure events.
//
// Use these helpers when wiring new stage logic so operational behaviour
// (error handling, observability, retries) stays uniform across the pipeline.
package services
