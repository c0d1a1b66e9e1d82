// Package refinement cleans up raw transcripts with an LLM pass:
// punctuation, casing, and speech-to-text artifact removal.
package refinement
