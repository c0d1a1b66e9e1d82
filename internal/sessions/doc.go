// Package sessions persists transcription sessions, their per-stage
// enrichment results, and the append-only event ledger in SQLite.
package sessions
