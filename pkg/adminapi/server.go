package adminapi

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/fastpath/netcore/pkg/arpcache"
)

// Server is the operator sidecar REST API server: it runs on the host's
// ordinary kernel network stack, never on the DPDK-style datapath.
type Server struct {
	engine     *gin.Engine
	handler    *Handler
	httpServer *http.Server
}

// New builds a Server bound to addr (host:port), with cache wired into
// the /api/v1/arp endpoint (nil is fine for single-core runs).
func New(addr string, cache *arpcache.Cache) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(requestLogger())

	h := NewHandler(cache)
	RegisterRoutes(engine, h)

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           engine,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return &Server{engine: engine, handler: h, httpServer: httpServer}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Printf("adminapi: %s %s %d %s", c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start))
	}
}

// Handler returns the handler backing this server, for registering
// reactors and the echo-stats source.
func (s *Server) Handler() *Handler { return s.handler }

// Addr reports the bound listen address.
func (s *Server) Addr() string { return s.httpServer.Addr }

// Engine returns the underlying gin.Engine.
func (s *Server) Engine() *gin.Engine { return s.engine }

// ListenAndServe blocks serving the admin API until Shutdown is called.
func (s *Server) ListenAndServe() error {
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully stops the admin API server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
