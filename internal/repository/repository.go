package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jeswintom22/ClassSight/internal/domain"
)

var ErrNotFound = errors.New("không tìm thấy bản ghi")
var ErrDuplicateEntry = errors.New("bản ghi đã tồn tại")

// AnalysisLogRepository lưu lịch sử các kết quả phân tích hoàn chỉnh.
// Ghi lịch sử là best-effort: lỗi ở đây không được làm hỏng pipeline.
type AnalysisLogRepository interface {
	Create(ctx context.Context, record *domain.AnalysisRecord) error
	FindRecent(ctx context.Context, limit int) ([]domain.AnalysisRecord, error)
	// DeleteOlderThan xoá các bản ghi cũ hơn cutoff, trả về số bản ghi đã xoá
	// (background job gọi định kỳ theo HISTORY_RETENTION_HOURS).
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}
