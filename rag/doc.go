// Package rag defines the data model and storage contracts of the graphrag engine.
//
// Documents are split into chunks, an LLM extracts entities and relationships
// from every chunk, and the result is persisted across four kinds of stores:
//
//   - KVStore: full documents, chunks, per-chunk extraction records and the LLM response cache
//   - VectorStore: chunk, entity and relationship embeddings ranked by cosine similarity
//   - GraphStore: the entity/relationship graph
//   - DocStatusStore: the processing state of every document
//
// Each contract has several backends under rag/store (memory, file, postgres,
// redis, falkordb, sqlite). Backends that talk to the same server accept an
// already established connection so that all stores can share one pool.
//
// # Quick Start
//
//	storage, _ := engine.OpenStorage(ctx, engine.StorageOptions{
//		KV:        "postgres",
//		Vector:    "postgres",
//		Graph:     "postgres",
//		DocStatus: "postgres",
//		Dimension: 1536,
//	}, engine.Connections{Postgres: pool})
//
//	eng, _ := engine.New(engine.DefaultConfig(), storage, llm, embedder)
//	results, _ := eng.Insert(ctx, rag.Document{Content: text})
//	answer, _ := eng.Query(ctx, "Who is Alice?", query.Param{Mode: query.ModeHybrid})
//
// # Errors
//
// Backend failures match ErrStorageUnavailable, model failures ErrModelCall,
// unparsable extraction output ErrExtractionParse and wrong embedding sizes
// ErrDimensionMismatch. Missing records match ErrNotFound and are treated as
// empty results by the query engine.
package rag
