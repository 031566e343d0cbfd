// Package fileserver exposes a session working directory over plain HTTP
// so a renderer can fetch the HLS playlist and its segments.
package fileserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"path"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

const (
	DefaultAddr = "0.0.0.0:0"

	playlistContentType = "application/vnd.apple.mpegurl"
	segmentContentType  = "video/mp2t"
)

var errServerClosed = errors.New("file server closed")

type Server struct {
	dir    string
	addr   string
	logger *zap.Logger

	mu       sync.Mutex
	srv      *http.Server
	listener net.Listener
	closed   bool
}

func New(dir, addr string, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if addr == "" {
		addr = DefaultAddr
	}
	return &Server{dir: dir, addr: addr, logger: logger}
}

// Handler returns the router serving the directory.
func (s *Server) Handler() http.Handler {
	files := http.FileServer(http.Dir(s.dir))

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)
	r.Use(hlsHeaders)
	r.Get("/*", files.ServeHTTP)
	r.Head("/*", files.ServeHTTP)
	return r
}

// Serve binds the listener, reports the outcome on started exactly once and
// then serves until Shutdown.
func (s *Server) Serve(started chan<- error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		started <- errServerClosed
		return
	}
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		s.mu.Unlock()
		started <- fmt.Errorf("listen on %s: %w", s.addr, err)
		return
	}
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.srv = srv
	s.listener = ln
	s.mu.Unlock()

	s.logger.Info("file_server_listening",
		zap.String("addr", ln.Addr().String()),
		zap.String("dir", s.dir),
	)
	started <- nil

	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.logger.Error("file_server_failed", zap.Error(err))
	}
}

// Port is the bound TCP port, or 0 before Serve has bound.
func (s *Server) Port() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return 0
	}
	if addr, ok := s.listener.Addr().(*net.TCPAddr); ok {
		return addr.Port
	}
	return 0
}

// Shutdown stops the server. It is safe to call more than once and before
// Serve.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	srv := s.srv
	s.mu.Unlock()

	if srv == nil {
		return nil
	}
	if err := srv.Shutdown(ctx); err != nil {
		_ = srv.Close()
		return fmt.Errorf("shutdown file server: %w", err)
	}
	return nil
}

func hlsHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch path.Ext(r.URL.Path) {
		case ".m3u8":
			w.Header().Set("Content-Type", playlistContentType)
			w.Header().Set("Cache-Control", "no-cache")
		case ".ts":
			w.Header().Set("Content-Type", segmentContentType)
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		started := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("file_server_request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("remote", r.RemoteAddr),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("elapsed", time.Since(started)),
		)
	})
}
