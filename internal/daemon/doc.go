// Package daemon hosts the long-running mina process: the session
// processing loop, the HTTP API, and single-instance locking.
package daemon
