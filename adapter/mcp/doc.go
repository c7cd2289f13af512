// Package mcp exposes a graphrag engine as a Model Context Protocol server.
//
// The server registers the tools query, insert, document_status and
// delete_document, and the resource graphrag://documents/{status} listing
// the documents in one processing state. It runs over stdio or streamable
// HTTP:
//
//	srv, err := mcp.NewServer(rt.Engine, mcp.WithDefaults(param))
//	if err != nil {
//		return err
//	}
//	return srv.Run(ctx)
package mcp
