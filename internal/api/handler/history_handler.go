package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/jeswintom22/ClassSight/internal/repository"
)

type HistoryHandler struct {
	analysisLogRepo repository.AnalysisLogRepository // nil khi không có database
}

func NewHistoryHandler(analysisLogRepo repository.AnalysisLogRepository) *HistoryHandler {
	return &HistoryHandler{analysisLogRepo: analysisLogRepo}
}

// GET /api/v1/analyses?limit=N
func (h *HistoryHandler) GetRecentAnalyses(c *gin.Context) {
	if h.analysisLogRepo == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Lịch sử phân tích chưa được cấu hình (thiếu database)"})
		return
	}

	limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil || limit < 1 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}

	records, err := h.analysisLogRepo.FindRecent(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Không đọc được lịch sử phân tích", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"analyses": records, "count": len(records)})
}
