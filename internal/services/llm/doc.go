// Package llm talks to the OpenRouter chat completion API on behalf of
// the enrichment stages that need a language model.
package llm
