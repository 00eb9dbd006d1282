// Package llm groups the text generation backends used by the page generator.
// Each backend exposes a Provider whose Acquire hands out a request-scoped
// site.TextStreamer that must be closed when the request ends.
//
//   - openai: OpenAI-compatible chat completions over SSE (DeepSeek).
//   - anthropic: Anthropic Messages streaming via the official SDK.
//   - static: canned pages for local development.
package llm
