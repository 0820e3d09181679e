// Package httpserver exposes the ingestion and analytics HTTP API.
package httpserver

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/loginsight/loginsight/internal/forward"
	"github.com/loginsight/loginsight/internal/history"
	"github.com/loginsight/loginsight/internal/model"
	"github.com/loginsight/loginsight/internal/otlprecv"
)

// QueryStore is the narrow store contract required by the HTTP API.
type QueryStore interface {
	LogsFiltered(ctx context.Context, f model.LogFilter, max int) ([]*model.LogRecord, error)
	TopErrorServices(ctx context.Context, since time.Time, limit int) ([]model.ServiceErrorCount, error)
	ErrorTimeline(ctx context.Context, since time.Time, intervalMinutes int) ([]model.TimelinePoint, error)
	RecentInsights(ctx context.Context, max int) ([]*model.InsightSnapshot, error)
	InsightsSince(ctx context.Context, since time.Time, max int) ([]*model.InsightSnapshot, error)
}

// Searcher is the query-engine contract.
type Searcher interface {
	Search(ctx context.Context, query string, topK int) (any, error)
	History() map[string][]history.Entry
}

// Publisher enqueues raw payloads for ingestion.
type Publisher interface {
	Publish(body []byte)
}

// Server provides the HTTP API over the ingest broker, the document store,
// and the query engine.
type Server struct {
	addr      string
	store     QueryStore
	searcher  Searcher
	publisher Publisher
	otlp      *otlprecv.Receiver
	forwarder *forward.Client

	server   *http.Server
	listener net.Listener
	ctx      context.Context
	cancel   context.CancelFunc
}

// Deps bundles the collaborators behind the API. OTLP and Forwarder are
// optional.
type Deps struct {
	Store     QueryStore
	Searcher  Searcher
	Publisher Publisher
	OTLP      *otlprecv.Receiver
	Forwarder *forward.Client
}

// NewServer creates the API server.
func NewServer(addr string, deps Deps) *Server {
	if addr == "" {
		addr = "0.0.0.0:8000"
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		addr:      addr,
		store:     deps.Store,
		searcher:  deps.Searcher,
		publisher: deps.Publisher,
		otlp:      deps.OTLP,
		forwarder: deps.Forwarder,
		ctx:       ctx,
		cancel:    cancel,
	}
}

func (s *Server) router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/", s.handleRoot)
	r.GET("/health", s.handleHealth)
	r.POST("/log", s.handleIngest)
	r.POST("/v1/logs", s.handleOTLPJSON)
	r.GET("/logs", s.handleLogs)
	r.GET("/analytics/errors", s.handleErrorServices)
	r.GET("/analytics/errors/timeline", s.handleErrorTimeline)
	r.POST("/analytics/intelligent_search", s.handleSearch)
	r.GET("/analytics/search/history", s.handleSearchHistory)
	return r
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	gin.SetMode(gin.ReleaseMode)

	s.server = &http.Server{
		Handler:           s.router(),
		BaseContext:       func(_ net.Listener) context.Context { return s.ctx },
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.listener = listener

	go s.server.Serve(listener)
	return nil
}

// Addr returns the bound listener address, useful with ":0".
func (s *Server) Addr() string {
	if s.listener == nil {
		return s.addr
	}
	return s.listener.Addr().String()
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop() error {
	s.cancel()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}
