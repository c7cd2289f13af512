package mcp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/smallnest/graphrag/log"
	"github.com/smallnest/graphrag/rag"
	"github.com/smallnest/graphrag/rag/engine"
	"github.com/smallnest/graphrag/rag/query"
)

// Version is the MCP server version
const Version = "0.1.0"

// ErrMissingService is returned when no service is given to NewServer
var ErrMissingService = errors.New("mcp: graphrag service is required")

// Service is the part of *engine.Engine the server drives
type Service interface {
	Insert(ctx context.Context, docs ...rag.Document) ([]engine.InsertResult, error)
	Query(ctx context.Context, q string, p query.Param) (string, error)
	Status(ctx context.Context, id string) (*rag.DocumentStatus, error)
	List(ctx context.Context, status rag.DocStatus) ([]rag.DocumentStatus, error)
	DeleteDocument(ctx context.Context, id string) error
}

// Option configures a Server
type Option func(*Server)

// WithDefaults sets the query parameters used when a call leaves them out
func WithDefaults(p query.Param) Option {
	return func(s *Server) { s.defaults = p }
}

// WithLogger sets the logger of tool calls
func WithLogger(l log.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithReadOnly omits the insert and delete_document tools
func WithReadOnly() Option {
	return func(s *Server) { s.readOnly = true }
}

// Server is the MCP server of one engine
type Server struct {
	svc      Service
	server   *mcp.Server
	defaults query.Param
	logger   log.Logger
	readOnly bool
}

// NewServer creates a server over svc
func NewServer(svc Service, opts ...Option) (*Server, error) {
	if svc == nil {
		return nil, ErrMissingService
	}
	s := &Server{svc: svc}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = log.OrDefault(s.logger)
	s.server = mcp.NewServer(&mcp.Implementation{Name: "graphrag", Version: Version}, nil)

	s.registerTools()
	s.registerResources()
	return s, nil
}

// MCP returns the underlying protocol server
func (s *Server) MCP() *mcp.Server {
	return s.server
}

// Run serves over stdio until ctx is done or the client disconnects
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

// RunHTTP serves streamable HTTP on addr until ctx is done
func (s *Server) RunHTTP(ctx context.Context, addr string) error {
	handler := mcp.NewStreamableHTTPHandler(func(_ *http.Request) *mcp.Server {
		return s.server
	}, nil)

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	s.logger.Info("mcp server listening on %s", addr)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("mcp http server failed: %w", err)
	}
	return nil
}
