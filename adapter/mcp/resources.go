package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/smallnest/graphrag/rag"
)

const uriScheme = "graphrag://"

func (s *Server) registerResources() {
	s.server.AddResourceTemplate(&mcp.ResourceTemplate{
		URITemplate: uriScheme + "documents/{status}",
		Name:        "documents-by-status",
		Description: "Documents in one processing state: pending, chunking, extracting, indexing, processed or failed",
		MIMEType:    "application/json",
	}, s.handleDocumentsResource)
}

func (s *Server) handleDocumentsResource(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	status, ok := statusFromURI(req.Params.URI)
	if !ok {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}
	docs, err := s.svc.List(ctx, status)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s documents: %w", status, err)
	}
	out := make([]StatusOutput, len(docs))
	for i := range docs {
		out[i] = statusOutput(&docs[i])
	}
	data, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal documents: %w", err)
	}
	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      req.Params.URI,
			MIMEType: "application/json",
			Text:     string(data),
		}},
	}, nil
}

var knownStatuses = []rag.DocStatus{
	rag.StatusPending, rag.StatusChunking, rag.StatusExtracting,
	rag.StatusIndexing, rag.StatusProcessed, rag.StatusFailed,
}

func statusFromURI(uri string) (rag.DocStatus, bool) {
	name, ok := strings.CutPrefix(uri, uriScheme+"documents/")
	if !ok {
		return "", false
	}
	for _, s := range knownStatuses {
		if string(s) == name {
			return s, true
		}
	}
	return "", false
}
