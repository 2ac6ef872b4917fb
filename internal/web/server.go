package web

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"
)

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	// ReadTimeout is the maximum duration for reading the entire request
	ReadTimeout time.Duration

	// WriteTimeout is the maximum duration before timing out writes of the response
	WriteTimeout time.Duration

	// IdleTimeout is the maximum time to wait for the next request when keep-alives are enabled
	IdleTimeout time.Duration

	// MaxHeaderBytes controls the maximum number of bytes the server will read parsing the request header
	MaxHeaderBytes int
}

// DefaultServerConfig returns sensible defaults for production use
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		ReadTimeout:    15 * time.Second,
		WriteTimeout:   15 * time.Second,
		IdleTimeout:    60 * time.Second,
		MaxHeaderBytes: 1 << 20, // 1 MB
	}
}

// Server wraps an HTTP server around a handler
type Server struct {
	addr       string
	config     ServerConfig
	handler    http.Handler
	httpServer *http.Server
}

// NewServer creates a Server with the default configuration
func NewServer(addr string, handler http.Handler) *Server {
	return NewServerWithConfig(addr, handler, DefaultServerConfig())
}

// NewServerWithConfig creates a Server with a custom configuration
func NewServerWithConfig(addr string, handler http.Handler, config ServerConfig) *Server {
	if addr == "" {
		addr = ":8080"
	}

	s := &Server{
		addr:    addr,
		config:  config,
		handler: handler,
	}
	s.httpServer = &http.Server{
		Addr:           s.addr,
		Handler:        s.handler,
		ReadTimeout:    s.config.ReadTimeout,
		WriteTimeout:   s.config.WriteTimeout,
		IdleTimeout:    s.config.IdleTimeout,
		MaxHeaderBytes: s.config.MaxHeaderBytes,
	}
	return s
}

// Handler returns the HTTP handler
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start listens on the configured address and blocks until shutdown.
// A graceful shutdown is not reported as an error.
func (s *Server) Start() error {
	return ignoreClosed(s.httpServer.ListenAndServe())
}

// Serve accepts connections on l, for example an ngrok tunnel, and blocks
// until shutdown
func (s *Server) Serve(l net.Listener) error {
	return ignoreClosed(s.httpServer.Serve(l))
}

// Shutdown gracefully shuts down the server without interrupting active connections
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Addr returns the server address
func (s *Server) Addr() string {
	return s.addr
}

func ignoreClosed(err error) error {
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}
