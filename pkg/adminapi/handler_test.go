package adminapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/fastpath/netcore/pkg/adminapi/models"
	"github.com/fastpath/netcore/pkg/arpcache"
)

func setupTestRouter(h *Handler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	RegisterRoutes(r, h)
	return r
}

func TestHealth(t *testing.T) {
	h := NewHandler(nil)
	r := setupTestRouter(h)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp models.StatusResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, "ok", resp.Status)
}

func TestStatsReportsEchoStats(t *testing.T) {
	h := NewHandler(nil)
	h.SetEchoStatsFunc(func() models.EchoStats {
		return models.EchoStats{Connections: 3, BytesReceived: 100, BytesSent: 200}
	})
	r := setupTestRouter(h)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp models.StatsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, uint64(3), resp.Echo.Connections)
	require.Empty(t, resp.Reactors)
}

func TestArpReturnsEmptyWhenCacheNil(t *testing.T) {
	h := NewHandler(nil)
	r := setupTestRouter(h)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/arp", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp models.ArpResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Empty(t, resp.Entries)
}

func TestArpReportsCacheSnapshot(t *testing.T) {
	cache := arpcache.New()
	cache.Insert([4]byte{10, 0, 0, 1}, arpcache.MAC{0x02, 0, 0, 0, 0, 1})

	h := NewHandler(cache)
	r := setupTestRouter(h)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/arp", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp models.ArpResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Entries, 1)
	require.Equal(t, "10.0.0.1", resp.Entries[0].IP)
	require.EqualValues(t, 1, resp.Version)
}
