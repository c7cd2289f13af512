// Package extract turns chunks into knowledge-graph facts.
//
// An Extractor prompts the LLM for a JSON list of entities and relationships,
// re-prompting when the answer cannot be parsed, and returns the chunk's
// Contribution. An Indexer applies contributions to the graph and the entity
// and relationship vector stores. Every merged field is derived from the
// per-chunk mentions, so applying chunks in any order gives the same graph
// and applying a chunk again replaces what it said before.
package extract
