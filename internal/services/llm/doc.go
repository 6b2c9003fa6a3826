// Package llm defines the text generation contract used by the pipeline and
// an OpenAI-compatible chat completion client that implements it.
//
// Generator is the single operation the pipeline needs: send a system prompt
// and a user prompt with an output budget, get text back. Other backends
// (Gemini, Ollama) implement the same interface in sibling packages.
//
// The client retries HTTP 408/429/5xx responses, network timeouts and empty
// completions with exponential backoff (base 1s, max 10s, 3 attempts by
// default) and honours Retry-After. Context cancellation aborts retries
// immediately. RateLimited wraps any Generator with a requests-per-minute
// limiter.
package llm
