// Package config loads, validates, and normalizes Mina's TOML configuration.
//
// Load resolves the config path (explicit flag, ~/.config/mina/config.toml, or
// a project-local mina.toml), applies defaults for anything unset, expands
// home-relative paths, and rejects unusable values before any subsystem starts.
// CreateSample writes the embedded annotated sample for `mina config init`.
package config
