package mcp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/smallnest/graphrag/rag"
	"github.com/smallnest/graphrag/rag/engine"
	"github.com/smallnest/graphrag/rag/query"
)

// QueryInput is the input schema of the query tool
type QueryInput struct {
	Question        string `json:"question" jsonschema:"the question to answer from the knowledge base"`
	Mode            string `json:"mode,omitempty" jsonschema:"retrieval mode: naive, local, global or hybrid"`
	TopK            int    `json:"top_k,omitempty" jsonschema:"number of entities or relationships to retrieve; number of chunks in naive mode unless chunk_top_k is set"`
	ChunkTopK       int    `json:"chunk_top_k,omitempty" jsonschema:"number of text chunks to retrieve in naive mode"`
	OnlyNeedContext bool   `json:"only_need_context,omitempty" jsonschema:"return the retrieved context instead of an answer"`
	ResponseType    string `json:"response_type,omitempty" jsonschema:"desired answer format, e.g. Bullet Points"`

	MaxTokenForTextUnit      int `json:"max_token_for_text_unit,omitempty" jsonschema:"token budget for source chunks"`
	MaxTokenForLocalContext  int `json:"max_token_for_local_context,omitempty" jsonschema:"token budget for entities"`
	MaxTokenForGlobalContext int `json:"max_token_for_global_context,omitempty" jsonschema:"token budget for relationships and communities"`
	MaxTotalTokens           int `json:"max_total_tokens,omitempty" jsonschema:"token budget for the whole context"`
}

// apply overrides p with every field the caller set
func (in QueryInput) apply(p query.Param) query.Param {
	if in.TopK > 0 {
		p.TopK = in.TopK
	}
	switch {
	case in.ChunkTopK > 0:
		p.ChunkTopK = in.ChunkTopK
	case in.TopK > 0 && p.Mode == query.ModeNaive:
		p.ChunkTopK = in.TopK
	}
	for _, o := range []struct {
		dst *int
		v   int
	}{
		{&p.MaxTokenForTextUnit, in.MaxTokenForTextUnit},
		{&p.MaxTokenForLocalContext, in.MaxTokenForLocalContext},
		{&p.MaxTokenForGlobalContext, in.MaxTokenForGlobalContext},
		{&p.MaxTotalTokens, in.MaxTotalTokens},
	} {
		if o.v > 0 {
			*o.dst = o.v
		}
	}
	if in.ResponseType != "" {
		p.ResponseType = in.ResponseType
	}
	p.OnlyNeedContext = in.OnlyNeedContext
	return p
}

// QueryOutput is the output schema of the query tool
type QueryOutput struct {
	Answer string `json:"answer"`
	Mode   string `json:"mode"`
}

// DocumentInput is one document of the insert tool
type DocumentInput struct {
	ID      string `json:"id,omitempty" jsonschema:"document id, derived from the content when empty"`
	Content string `json:"content" jsonschema:"the document text"`
	Source  string `json:"source,omitempty" jsonschema:"where the text came from"`
}

// InsertInput is the input schema of the insert tool
type InsertInput struct {
	Documents []DocumentInput `json:"documents" jsonschema:"documents to ingest"`
}

// InsertResultOutput is the outcome of one inserted document
type InsertResultOutput struct {
	ID      string `json:"id"`
	Outcome string `json:"outcome"`
	Error   string `json:"error,omitempty"`
}

// InsertOutput is the output schema of the insert tool
type InsertOutput struct {
	Results  []InsertResultOutput `json:"results"`
	Accepted int                  `json:"accepted"`
}

// DocumentIDInput names one document
type DocumentIDInput struct {
	ID string `json:"id" jsonschema:"the document id"`
}

// StatusOutput is the output schema of the document_status tool
type StatusOutput struct {
	ID           string `json:"id"`
	Status       string `json:"status"`
	Summary      string `json:"content_summary"`
	Length       int    `json:"content_length"`
	Chunks       int    `json:"chunks_count"`
	FailedChunks int    `json:"failed_chunks"`
	Error        string `json:"error,omitempty"`
	UpdatedAt    string `json:"updated_at"`
}

// DeleteOutput is the output schema of the delete_document tool
type DeleteOutput struct {
	ID      string `json:"id"`
	Deleted bool   `json:"deleted"`
}

func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "query",
		Description: "Answer a question from the knowledge graph and the indexed documents",
	}, s.handleQuery)
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "document_status",
		Description: "Show the processing state of a document",
	}, s.handleStatus)
	if s.readOnly {
		return
	}
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "insert",
		Description: "Ingest documents into the knowledge graph",
	}, s.handleInsert)
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "delete_document",
		Description: "Remove a document and everything extracted from it",
	}, s.handleDelete)
}

func (s *Server) handleQuery(ctx context.Context, _ *mcp.CallToolRequest, input QueryInput) (*mcp.CallToolResult, QueryOutput, error) {
	if strings.TrimSpace(input.Question) == "" {
		return nil, QueryOutput{}, errors.New("question is required")
	}
	p := s.defaults
	if input.Mode != "" {
		m, err := query.ParseMode(input.Mode)
		if err != nil {
			return nil, QueryOutput{}, err
		}
		p.Mode = m
	}
	p = input.apply(p)

	answer, err := s.svc.Query(ctx, input.Question, p)
	if err != nil {
		s.logger.Warn("mcp query failed: %v", err)
		return nil, QueryOutput{}, fmt.Errorf("query failed: %w", err)
	}
	mode := p.Mode
	if mode == "" {
		mode = query.ModeHybrid
	}
	return nil, QueryOutput{Answer: answer, Mode: string(mode)}, nil
}

func (s *Server) handleInsert(ctx context.Context, _ *mcp.CallToolRequest, input InsertInput) (*mcp.CallToolResult, InsertOutput, error) {
	if len(input.Documents) == 0 {
		return nil, InsertOutput{}, errors.New("at least one document is required")
	}
	docs := make([]rag.Document, len(input.Documents))
	for i, d := range input.Documents {
		docs[i] = rag.Document{ID: d.ID, Content: d.Content}
		if d.Source != "" {
			docs[i].Metadata = map[string]any{"source": d.Source}
		}
	}

	results, err := s.svc.Insert(ctx, docs...)
	if err != nil {
		return nil, InsertOutput{}, fmt.Errorf("insert failed: %w", err)
	}
	out := InsertOutput{Results: make([]InsertResultOutput, len(results))}
	for i, r := range results {
		out.Results[i] = InsertResultOutput{ID: r.ID, Outcome: string(r.Outcome)}
		if r.Err != nil {
			out.Results[i].Error = r.Err.Error()
		} else if r.Outcome == engine.OutcomeAccepted {
			out.Accepted++
		}
	}
	s.logger.Info("mcp insert: %d of %d documents accepted", out.Accepted, len(docs))
	return nil, out, nil
}

func (s *Server) handleStatus(ctx context.Context, _ *mcp.CallToolRequest, input DocumentIDInput) (*mcp.CallToolResult, StatusOutput, error) {
	st, err := s.svc.Status(ctx, input.ID)
	if err != nil {
		return nil, StatusOutput{}, err
	}
	return nil, statusOutput(st), nil
}

func (s *Server) handleDelete(ctx context.Context, _ *mcp.CallToolRequest, input DocumentIDInput) (*mcp.CallToolResult, DeleteOutput, error) {
	if input.ID == "" {
		return nil, DeleteOutput{}, errors.New("id is required")
	}
	if err := s.svc.DeleteDocument(ctx, input.ID); err != nil {
		return nil, DeleteOutput{}, err
	}
	return nil, DeleteOutput{ID: input.ID, Deleted: true}, nil
}

func statusOutput(st *rag.DocumentStatus) StatusOutput {
	return StatusOutput{
		ID:           st.ID,
		Status:       string(st.Status),
		Summary:      st.ContentSummary,
		Length:       st.ContentLength,
		Chunks:       st.ChunksCount,
		FailedChunks: st.FailedChunks,
		Error:        st.Error,
		UpdatedAt:    st.UpdatedAt.Format(time.RFC3339),
	}
}
