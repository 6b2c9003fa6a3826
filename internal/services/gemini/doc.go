// Package gemini implements llm.Generator on top of the Google Gen AI SDK.
//
// Several API keys may be configured as a comma separated list. When a call
// is rejected for quota reasons the client rotates to the next key before
// giving up.
package gemini
