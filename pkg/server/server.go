// Package server exposes voice enhancement sessions over websockets.
//
// Every connection to /process_audio is one session: each binary message
// is a chunk of float32 little-endian mono samples, and each of them is
// answered with exactly one binary message of the same size before the
// next one is read.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/hashicorp/go-multierror"
	"github.com/xaionaro-go/observability"
	"github.com/xaionaro-go/voiceenhance/pkg/bandpass"
	"github.com/xaionaro-go/voiceenhance/pkg/config"
	"github.com/xaionaro-go/voiceenhance/pkg/noisesuppression/implementations/voicefilter"
)

const (
	PathProcessAudio = "/process_audio"
	PathHealth       = "/health"

	shutdownTimeout   = 5 * time.Second
	readHeaderTimeout = 15 * time.Second
	closeWriteTimeout = time.Second
)

type Server struct {
	config   config.Config
	cache    *bandpass.Cache
	logger   logger.Logger
	engine   *gin.Engine
	upgrader websocket.Upgrader

	connsLocker sync.Mutex
	conns       map[*websocket.Conn]struct{}

	activeSessions  atomic.Int64
	totalSessions   atomic.Uint64
	processedChunks atomic.Uint64
	bytesReceived   atomic.Uint64
	bytesSent       atomic.Uint64
}

// Stats is a snapshot of the server counters.
type Stats struct {
	ActiveSessions  int64  `json:"sessions"`
	TotalSessions   uint64 `json:"total_sessions"`
	ProcessedChunks uint64 `json:"processed_chunks"`
	BytesReceived   uint64 `json:"bytes_received"`
	BytesSent       uint64 `json:"bytes_sent"`
}

// New validates the configuration and prepares the handlers; an invalid
// filter configuration is reported here, not on the first connection.
func New(ctx context.Context, cfg *config.Config) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	s := &Server{
		config: *cfg,
		cache:  bandpass.NewCache(),
		logger: logger.FromCtx(ctx),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  int(cfg.Denoise.ChunkSamples) * 4,
			WriteBufferSize: int(cfg.Denoise.ChunkSamples) * 4,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		conns: map[*websocket.Conn]struct{}{},
	}
	if _, err := s.cache.Get(cfg.FilterSpec()); err != nil {
		return nil, fmt.Errorf("unable to design the band-pass filter: %w", err)
	}

	s.engine = gin.New()
	s.engine.Use(gin.Recovery(), s.accessLog())
	s.engine.GET(PathHealth, s.handleHealth)
	s.engine.GET(PathProcessAudio, s.handleProcessAudio)
	return s, nil
}

func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) Stats() Stats {
	return Stats{
		ActiveSessions:  s.activeSessions.Load(),
		TotalSessions:   s.totalSessions.Load(),
		ProcessedChunks: s.processedChunks.Load(),
		BytesReceived:   s.bytesReceived.Load(),
		BytesSent:       s.bytesSent.Load(),
	}
}

// ListenAndServe listens on the configured address and serves until
// ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.config.Server.ListenAddr)
	if err != nil {
		return fmt.Errorf("unable to listen '%s': %w", s.config.Server.ListenAddr, err)
	}
	return s.Serve(ctx, listener)
}

// Serve serves on the listener until ctx is cancelled; then it stops
// accepting connections and closes the open sessions.
func (s *Server) Serve(ctx context.Context, listener net.Listener) (_err error) {
	logger.Infof(ctx, "serving on %s", listener.Addr())
	defer func() { logger.Infof(ctx, "stopped serving on %s: %v", listener.Addr(), _err) }()

	httpServer := &http.Server{
		Handler:           s.engine,
		ReadHeaderTimeout: readHeaderTimeout,
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}

	var (
		wg            sync.WaitGroup
		shutdownError error
	)
	serveCtx, cancelFn := context.WithCancel(ctx)
	defer cancelFn()
	wg.Add(1)
	observability.Go(ctx, func() {
		defer wg.Done()
		<-serveCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		var result *multierror.Error
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			result = multierror.Append(result, fmt.Errorf("unable to shutdown the HTTP server: %w", err))
		}
		if err := s.closeConnections(); err != nil {
			result = multierror.Append(result, err)
		}
		shutdownError = result.ErrorOrNil()
	})

	err := httpServer.Serve(listener)
	cancelFn()
	wg.Wait()

	var result *multierror.Error
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		result = multierror.Append(result, fmt.Errorf("unable to serve: %w", err))
	}
	if shutdownError != nil {
		result = multierror.Append(result, shutdownError)
	}
	return result.ErrorOrNil()
}

func (s *Server) registerConn(conn *websocket.Conn) {
	s.connsLocker.Lock()
	defer s.connsLocker.Unlock()
	s.conns[conn] = struct{}{}
}

func (s *Server) unregisterConn(conn *websocket.Conn) {
	s.connsLocker.Lock()
	defer s.connsLocker.Unlock()
	delete(s.conns, conn)
}

// closeConnections closes the hijacked connections, which
// http.Server.Shutdown does not track.
func (s *Server) closeConnections() error {
	s.connsLocker.Lock()
	defer s.connsLocker.Unlock()

	var result *multierror.Error
	for conn := range s.conns {
		_ = writeClose(conn, websocket.CloseGoingAway, "server is shutting down")
		if err := conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			result = multierror.Append(result, fmt.Errorf("unable to close the connection with %s: %w", conn.RemoteAddr(), err))
		}
	}
	return result.ErrorOrNil()
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, struct {
		Status string `json:"status"`
		Stats
		Timestamp int64 `json:"timestamp"`
	}{
		Status:    "ok",
		Stats:     s.Stats(),
		Timestamp: time.Now().Unix(),
	})
}

func (s *Server) newSession() (*voicefilter.Session, error) {
	cfg := s.config.VoiceFilter()
	cfg.Cache = s.cache
	return voicefilter.New(cfg)
}
