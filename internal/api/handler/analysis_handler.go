package handler

import (
	"encoding/base64"
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jeswintom22/ClassSight/internal/domain"
	"github.com/jeswintom22/ClassSight/internal/service"
)

type AnalysisHandler struct {
	pipeline *service.PipelineService
	cache    *service.CacheService
}

func NewAnalysisHandler(pipeline *service.PipelineService, cache *service.CacheService) *AnalysisHandler {
	return &AnalysisHandler{pipeline: pipeline, cache: cache}
}

// POST /api/v1/analysis/analyze
// Fallback đồng bộ cho client không có WebSocket: gửi một frame, chờ một
// kết quả dạng "complete".
func (h *AnalysisHandler) AnalyzeFrame(c *gin.Context) {
	var req domain.AnalyzeRequestDTO
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Payload không hợp lệ: " + err.Error()})
		return
	}

	frame, err := base64.StdEncoding.DecodeString(req.ImageBase64)
	if err != nil {
		log.Printf("AnalysisHandler: Lỗi giải mã ảnh base64: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Dữ liệu ảnh không hợp lệ"})
		return
	}
	if len(frame) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Dữ liệu ảnh rỗng"})
		return
	}

	result, cached, err := h.pipeline.AnalyzeFrame(c.Request.Context(), frame)
	if err != nil {
		var pipelineErr *domain.PipelineError
		if errors.As(err, &pipelineErr) {
			switch pipelineErr.Kind {
			case domain.ErrKindOCRFailure:
				c.JSON(http.StatusUnprocessableEntity, gin.H{
					"error": "Xử lý OCR thất bại", "kind": pipelineErr.Kind, "details": pipelineErr.Err.Error(),
				})
			case domain.ErrKindExplainFailure:
				c.JSON(http.StatusBadGateway, gin.H{
					"error": "Gọi AI thất bại", "kind": pipelineErr.Kind, "details": pipelineErr.Err.Error(),
				})
			default:
				c.JSON(http.StatusInternalServerError, gin.H{
					"error": "Lỗi pipeline nội bộ", "kind": pipelineErr.Kind, "details": pipelineErr.Err.Error(),
				})
			}
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Lỗi xử lý frame", "details": err.Error()})
		return
	}

	c.JSON(http.StatusOK, domain.AnalyzeResponseDTO{
		Success:        true,
		AnalysisResult: *result,
		Cached:         cached,
	})
}

// GET /api/v1/analysis/health
func (h *AnalysisHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":            "ready",
		"cache_entries":     h.cache.Len(),
		"cache_max_size":    h.cache.MaxSize(),
		"cache_ttl_seconds": int(h.cache.TTL().Seconds()),
		"in_flight":         h.pipeline.InFlightCount(),
	})
}
