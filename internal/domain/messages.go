package domain

import (
	"encoding/json"
	"time"
)

// MessageType phân loại message đẩy xuống client qua WebSocket.
type MessageType string

const (
	MessageTypeStatus    MessageType = "status"
	MessageTypeOCRResult MessageType = "ocr_result"
	MessageTypeAIResult  MessageType = "ai_result"
	MessageTypeComplete  MessageType = "complete"
	MessageTypeError     MessageType = "error"
)

// StreamMessage là union đóng cho mọi message gửi xuống client. Chỉ có đúng
// 5 biến thể bên dưới; consumer switch trên kiểu cụ thể thay vì đoán field.
// Mỗi biến thể tự marshal thành envelope JSON có field "type".
type StreamMessage interface {
	Type() MessageType
}

// StatusMessage - thông báo trạng thái (đang xử lý, đã bỏ frame cũ, ...).
type StatusMessage struct {
	Message string
}

func (StatusMessage) Type() MessageType { return MessageTypeStatus }

func (m StatusMessage) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type    MessageType `json:"type"`
		Message string      `json:"message"`
	}{MessageTypeStatus, m.Message})
}

// OCRResultMessage - kết quả OCR gửi sớm, trước khi AI chạy xong
// (progressive delivery: chữ hiện ra trong lúc chờ giải thích).
type OCRResultMessage struct {
	CombinedText string
	Confidence   float64
	Blocks       []TextBlock
}

func (OCRResultMessage) Type() MessageType { return MessageTypeOCRResult }

func (m OCRResultMessage) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type         MessageType `json:"type"`
		CombinedText string      `json:"combined_text"`
		Confidence   float64     `json:"confidence"`
		Blocks       []TextBlock `json:"blocks,omitempty"`
	}{MessageTypeOCRResult, m.CombinedText, m.Confidence, m.Blocks})
}

// AIResultMessage - giải thích AI, gửi ngay khi explainer trả về.
type AIResultMessage struct {
	Explanation string
	AIModel     string
}

func (AIResultMessage) Type() MessageType { return MessageTypeAIResult }

func (m AIResultMessage) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type        MessageType `json:"type"`
		Explanation string      `json:"explanation"`
		AIModel     string      `json:"ai_model"`
	}{MessageTypeAIResult, m.Explanation, m.AIModel})
}

// CompleteMessage - message kết thúc thành công, đúng một lần cho mỗi frame.
type CompleteMessage struct {
	Result AnalysisResult
	Cached bool
}

func (CompleteMessage) Type() MessageType { return MessageTypeComplete }

func (m CompleteMessage) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type         MessageType `json:"type"`
		Fingerprint  string      `json:"fingerprint"`
		CombinedText string      `json:"combined_text"`
		Confidence   float64     `json:"confidence"`
		Blocks       []TextBlock `json:"blocks,omitempty"`
		Explanation  string      `json:"explanation,omitempty"`
		AIModel      string      `json:"ai_model,omitempty"`
		Cached       bool        `json:"cached"`
		Timestamp    time.Time   `json:"timestamp"`
	}{
		MessageTypeComplete,
		m.Result.Fingerprint,
		m.Result.CombinedText,
		m.Result.Confidence,
		m.Result.Blocks,
		m.Result.Explanation,
		m.Result.AIModel,
		m.Cached,
		m.Result.CreatedAt,
	})
}

// ErrorMessage - message kết thúc thất bại, đúng một lần cho mỗi frame.
// Kind cho client biết stage nào hỏng; kết quả OCR đã gửi trước đó vẫn hợp lệ.
type ErrorMessage struct {
	Kind    ErrorKind
	Message string
}

func (ErrorMessage) Type() MessageType { return MessageTypeError }

func (m ErrorMessage) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type    MessageType `json:"type"`
		Kind    ErrorKind   `json:"kind"`
		Message string      `json:"message"`
	}{MessageTypeError, m.Kind, m.Message})
}
