// Package services defines shared utilities consumed by the pipeline stages and
// external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp task IDs, stage names, and correlation
//     identifiers for logging.
//   - Structured error markers plus the Wrap helper so failures can be
//     classified (not found, validation, external tool) at the API boundary
//     and rendered as task error messages.
//
// Collaborator adapters (media fetch, speech recognition, text generation)
// live in subpackages and report failures through these markers.
package services
