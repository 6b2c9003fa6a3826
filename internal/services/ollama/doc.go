// Package ollama implements llm.Generator against a local Ollama server using
// the official api client.
package ollama
