// graphrag - knowledge graph retrieval augmented generation in Go
//
// graphrag turns documents into a knowledge graph: every document is split
// into token bounded chunks, an LLM extracts entities and relationships from
// each chunk, and the merged graph is stored next to chunk, entity and
// relationship embeddings. Questions are answered from that graph in one of
// four modes:
//
//   - naive: vector search over chunks
//   - local: entities similar to the question, their relationships and the chunks that mention them
//   - global: relationships similar to the question, their endpoints and the communities they form
//   - hybrid: local and global merged; either side may fail without failing the query
//
// # Quick Start
//
//	cfg := engine.DefaultConfig()
//	eng, err := engine.New(cfg, engine.NewMemoryStorage(1536), model, embedder)
//	if err != nil {
//		return err
//	}
//	results, _ := eng.Insert(ctx, rag.Document{Content: text})
//	answer, _ := eng.Query(ctx, "How are Alice and Acme related?", query.Param{Mode: query.ModeHybrid})
//
// # Packages
//
//   - rag: data model, store contracts and error taxonomy
//   - rag/engine: ingestion pipeline, document lifecycle and storage wiring
//   - rag/query: retrieval modes, token budgets and answer prompts
//   - rag/extract: extraction prompts, parsing, merging and retraction
//   - rag/splitter: deterministic token chunking
//   - rag/store/...: memory, file, postgres, redis, falkordb and sqlite backends
//   - rag/llm: OpenAI and langchaingo model adapters, retry and concurrency gates
//   - rag/loader: text, markdown and HTML loaders
//   - config: YAML, .env and environment configuration
//   - adapter/mcp: Model Context Protocol server
//   - cmd/graphrag: command line interface
//   - log: leveled logging on the standard logger, golog or zap
package graphrag // import "github.com/smallnest/graphrag"
