// Package adminapi is the operator-facing sidecar HTTP API: it runs on
// the host's regular kernel network stack (never the datapath) and
// exposes reactor tick counters, echo-server stats, and the current ARP
// cache snapshot, with a Swagger UI, grounded in HydraDNS's
// internal/api/handlers package.
//
// @title netcore Admin API
// @version 1.0
// @description Operator sidecar exposing reactor, echo, and ARP cache diagnostics.
// @BasePath /api/v1
package adminapi

import (
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/fastpath/netcore/pkg/adminapi/models"
	"github.com/fastpath/netcore/pkg/arpcache"
	"github.com/fastpath/netcore/pkg/reactor"
)

// trackedReactor pairs a reactor.Handle with the core/queue identity it
// was registered under, since a Handle itself doesn't track that.
type trackedReactor struct {
	queueIndex int
	coreID     int
	h          *reactor.Handle
}

// EchoStatsFunc returns a live snapshot of echo-server counters. It is
// injected rather than imported so adminapi never depends on a specific
// command's package, mirroring HydraDNS's GetDNSStatsFunc pattern.
type EchoStatsFunc func() models.EchoStats

// Handler holds adminapi's runtime dependencies.
type Handler struct {
	startTime time.Time
	cache     *arpcache.Cache

	mu            sync.RWMutex
	reactors      []trackedReactor
	echoStatsFunc EchoStatsFunc
}

// NewHandler creates a Handler. cache may be nil (single-core AppRunner
// runs have no SharedArpCache).
func NewHandler(cache *arpcache.Cache) *Handler {
	return &Handler{startTime: time.Now(), cache: cache}
}

// RegisterReactor adds a core's reactor.Handle to the stats endpoint.
// Safe to call concurrently with request handling.
func (h *Handler) RegisterReactor(queueIndex, coreID int, handle *reactor.Handle) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.reactors = append(h.reactors, trackedReactor{queueIndex: queueIndex, coreID: coreID, h: handle})
}

// SetEchoStatsFunc wires in the echo-server counter source.
func (h *Handler) SetEchoStatsFunc(fn EchoStatsFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.echoStatsFunc = fn
}

// Health godoc
// @Summary Health check
// @Tags system
// @Produce json
// @Success 200 {object} models.StatusResponse
// @Router /health [get]
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, models.StatusResponse{Status: "ok"})
}

// Stats godoc
// @Summary Reactor and echo-server statistics
// @Tags system
// @Produce json
// @Success 200 {object} models.StatsResponse
// @Router /stats [get]
func (h *Handler) Stats(c *gin.Context) {
	h.mu.RLock()
	reactors := make([]models.ReactorStats, len(h.reactors))
	for i, tr := range h.reactors {
		reactors[i] = models.ReactorStats{
			QueueIndex: tr.queueIndex,
			CoreID:     tr.coreID,
			Ticks:      tr.h.Ticks(),
			Orphans:    tr.h.OrphanCount(),
		}
	}
	echoFn := h.echoStatsFunc
	h.mu.RUnlock()

	var echo models.EchoStats
	if echoFn != nil {
		echo = echoFn()
	}

	c.JSON(http.StatusOK, models.StatsResponse{
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
		Reactors:      reactors,
		Echo:          echo,
	})
}

// Arp godoc
// @Summary Current ARP cache snapshot
// @Tags system
// @Produce json
// @Success 200 {object} models.ArpResponse
// @Router /arp [get]
func (h *Handler) Arp(c *gin.Context) {
	if h.cache == nil {
		c.JSON(http.StatusOK, models.ArpResponse{})
		return
	}

	snap := h.cache.Snapshot()
	entries := make([]models.ArpEntry, 0, len(snap))
	for ip, mac := range snap {
		entries = append(entries, models.ArpEntry{
			IP:  net.IP(ip[:]).String(),
			MAC: mac.String(),
		})
	}

	c.JSON(http.StatusOK, models.ArpResponse{
		Version: h.cache.Version(),
		Entries: entries,
	})
}
