// Package llm connects completion and embedding providers to the engine.
//
// It contains the retry policy applied to every model call, the admission
// gate that bounds how many calls are in flight, and adapters for
// sashabaranov/go-openai and tmc/langchaingo. MockEmbedder produces
// deterministic bag-of-words vectors for tests and offline demos.
package llm
