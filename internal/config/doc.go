// Package config loads, normalizes, and validates vidscribe configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// OPENAI_API_KEY, GEMINI_API_KEY and VIDSCRIBE_API_TOKEN. The Config type
// centralizes every knob the daemon and CLI need, from data directories and the
// generation backend to the chunking policy shared by the optimize, translate
// and summarize stages.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths and clear validation errors.
package config
