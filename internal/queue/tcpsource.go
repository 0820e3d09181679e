package queue

import (
	"bufio"
	"context"
	"errors"
	"log"
	"net"
	"sync"
)

const (
	// DefaultMaxLineSize is the maximum size (in bytes) of a single payload line.
	DefaultMaxLineSize = 1024 * 1024 // 1MB
)

// TCPSourceConfig holds tunable parameters for the TCP source.
type TCPSourceConfig struct {
	MaxLineSize int
}

// TCPSource listens for newline-delimited log payloads over TCP and
// publishes each line to the broker as one message.
type TCPSource struct {
	listener    net.Listener
	addr        string
	broker      *Broker
	maxLineSize int
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
}

// NewTCPSource creates a TCP source. Default addr is "127.0.0.1:4000".
func NewTCPSource(addr string, broker *Broker, conf ...TCPSourceConfig) *TCPSource {
	if addr == "" {
		addr = "127.0.0.1:4000"
	}
	maxLineSize := DefaultMaxLineSize
	if len(conf) > 0 && conf[0].MaxLineSize > 0 {
		maxLineSize = conf[0].MaxLineSize
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &TCPSource{
		addr:        addr,
		broker:      broker,
		maxLineSize: maxLineSize,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Start begins accepting TCP connections.
func (s *TCPSource) Start() error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.listener = listener

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			conn, err := listener.Accept()
			if err != nil {
				select {
				case <-s.ctx.Done():
					return
				default:
					continue
				}
			}
			s.wg.Add(1)
			go s.handleConnection(conn)
		}
	}()

	return nil
}

func (s *TCPSource) handleConnection(conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()

	scanner := bufio.NewScanner(conn)
	buf := make([]byte, s.maxLineSize)
	scanner.Buffer(buf, s.maxLineSize)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		select {
		case <-s.ctx.Done():
			return
		default:
		}
		body := make([]byte, len(line))
		copy(body, line)
		s.broker.Publish(body)
	}
	if err := scanner.Err(); err != nil {
		if errors.Is(err, bufio.ErrTooLong) {
			log.Printf("queue: dropped connection %s due to line exceeding max size (%d bytes)", conn.RemoteAddr(), s.maxLineSize)
			return
		}
		log.Printf("queue: scanner error from %s: %v", conn.RemoteAddr(), err)
	}
}

// Stop gracefully shuts down the TCP source.
func (s *TCPSource) Stop() error {
	s.cancel()
	if s.listener != nil {
		s.listener.Close()
	}
	s.wg.Wait()
	return nil
}

// Addr returns the active listen address.
// Before Start, it returns the configured address.
func (s *TCPSource) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}
