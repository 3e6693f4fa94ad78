package handler

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jeswintom22/ClassSight/internal/service"
)

type AdminHandler struct {
	cache     *service.CacheService
	pipeline  *service.PipelineService
	wsManager *WebSocketManager
}

func NewAdminHandler(cache *service.CacheService, pipeline *service.PipelineService, wsManager *WebSocketManager) *AdminHandler {
	return &AdminHandler{cache: cache, pipeline: pipeline, wsManager: wsManager}
}

// POST /api/v1/admin/cache/clear
// Operator xoá toàn bộ cache kết quả (test hoặc khi memory căng).
func (h *AdminHandler) ClearCache(c *gin.Context) {
	entries := h.cache.Len()
	h.cache.Clear()
	log.Printf("AdminHandler: operator đã xoá cache (%d entries)", entries)
	c.JSON(http.StatusOK, gin.H{"message": "Đã xoá toàn bộ cache kết quả", "evicted": entries})
}

// GET /api/v1/admin/cache/stats
func (h *AdminHandler) CacheStats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"cache_entries":     h.cache.Len(),
		"cache_max_size":    h.cache.MaxSize(),
		"cache_ttl_seconds": int(h.cache.TTL().Seconds()),
		"in_flight":         h.pipeline.InFlightCount(),
		"active_sessions":   h.wsManager.SessionCount(),
	})
}
