// Package events provides the in-memory fan-out hub that delivers
// post-processing notifications to API clients, plus the event name
// vocabulary shared between the orchestrator and its listeners.
package events
