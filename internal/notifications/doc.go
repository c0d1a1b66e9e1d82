// Package notifications pushes run outcomes to an ntfy topic when one
// is configured, and quietly does nothing otherwise.
package notifications
