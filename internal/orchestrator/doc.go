// Package orchestrator runs post-session processing: four enrichment
// stages fan out concurrently over a claimed session, each bounded by a
// timeout and retry budget, and the run ends in a reveal or failure
// signal depending on how many stages produced results.
package orchestrator
