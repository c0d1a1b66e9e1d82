// Package analytics computes deterministic conversation metrics (word
// counts, speaker talk share, filler words) from a raw transcript.
// Unlike the other enrichment stages it needs no language model.
package analytics
