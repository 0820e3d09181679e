package otlprecv

import (
	"fmt"
	"log"
	"net"

	collogspb "go.opentelemetry.io/proto/otlp/collector/logs/v1"
	"google.golang.org/grpc"
)

// Server hosts the receiver on a gRPC listener.
type Server struct {
	addr string
	grpc *grpc.Server
	lis  net.Listener
}

// NewServer wires the receiver into a gRPC server bound to addr
// (e.g. ":4317").
func NewServer(addr string, recv *Receiver) *Server {
	gs := grpc.NewServer()
	collogspb.RegisterLogsServiceServer(gs, recv)
	return &Server{addr: addr, grpc: gs}
}

// Start begins serving. The listener error is returned synchronously;
// Serve errors after startup are logged.
func (s *Server) Start() error {
	lis, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("otlprecv: listen %s: %w", s.addr, err)
	}
	s.lis = lis
	log.Printf("otlprecv: OTLP/gRPC listening on %s", lis.Addr())

	go func() {
		if err := s.grpc.Serve(lis); err != nil {
			log.Printf("otlprecv: serve: %v", err)
		}
	}()
	return nil
}

// Addr returns the bound listener address, useful with ":0".
func (s *Server) Addr() string {
	if s.lis == nil {
		return s.addr
	}
	return s.lis.Addr().String()
}

// Stop drains in-flight RPCs and shuts the server down.
func (s *Server) Stop() {
	s.grpc.GracefulStop()
}
