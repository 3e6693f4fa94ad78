package domain

import (
	"time"

	"gopkg.in/guregu/null.v4"
)

// TextBlock là một dòng/vùng văn bản OCR nhận dạng được trên frame.
type TextBlock struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"` // đã chuẩn hoá về [0,1]
}

// OCRObservation là kết quả thô từ OCR adapter, chưa có giải thích AI.
type OCRObservation struct {
	CombinedText string
	Confidence   float64
	Blocks       []TextBlock
}

// Explanation là kết quả từ explainer adapter.
type Explanation struct {
	Explanation string
	ModelName   string
}

// AnalysisResult là kết quả hoàn chỉnh cho một frame. Immutable sau khi
// pipeline dựng xong; chỉ kết quả hoàn chỉnh mới được ghi vào cache.
// CombinedText có thể rỗng (frame không có chữ) — khi đó Explanation phải rỗng.
type AnalysisResult struct {
	Fingerprint  string      `json:"fingerprint"`
	CombinedText string      `json:"combined_text"`
	Confidence   float64     `json:"confidence"`
	Blocks       []TextBlock `json:"blocks,omitempty"`
	Explanation  string      `json:"explanation,omitempty"`
	AIModel      string      `json:"ai_model,omitempty"`
	CreatedAt    time.Time   `json:"timestamp"`
}

// AnalyzeRequestDTO dùng khi frontend gửi một frame qua API đồng bộ
// (fallback cho client không hỗ trợ WebSocket).
type AnalyzeRequestDTO struct {
	// Frontend gửi frame dưới dạng base64 encoded string
	ImageBase64 string `json:"image_base64" binding:"required"`
}

// AnalyzeResponseDTO là payload dạng "complete" cho API đồng bộ.
type AnalyzeResponseDTO struct {
	Success bool `json:"success"`
	AnalysisResult
	Cached bool `json:"cached"`
}

// AnalysisRecord là bản ghi lịch sử phân tích lưu trong PostgreSQL.
// Không lưu frame bytes — chỉ lưu văn bản và giải thích.
type AnalysisRecord struct {
	ID           int64       `json:"id"`
	Fingerprint  string      `json:"fingerprint"`
	CombinedText string      `json:"combined_text"`
	Confidence   float64     `json:"confidence"`
	Explanation  null.String `json:"explanation"`
	AIModel      null.String `json:"ai_model"`
	CreatedAt    time.Time   `json:"created_at"`
}
