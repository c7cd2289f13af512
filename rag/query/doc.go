// Package query answers questions over an ingested knowledge graph.
//
// Four modes build the context handed to the final completion call:
//
//   - naive: the chunks closest to the query
//   - local: the entities closest to the query, their 1-hop neighborhood and source chunks
//   - global: the relationships closest to the query, their endpoints, the communities
//     they form and their source chunks
//   - hybrid: local and global run concurrently and their contexts are merged
//
// Every context section is cut to its token budget, lowest ranked items
// first, and the whole context to MaxTotalTokens.
package query
