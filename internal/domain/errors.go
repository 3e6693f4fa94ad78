package domain

import (
	"errors"
	"fmt"
)

// ErrorKind là taxonomy lỗi đóng của pipeline.
type ErrorKind string

const (
	// ErrKindOCRFailure - OCR adapter không xử lý được ảnh (ảnh hỏng, lỗi model...)
	ErrKindOCRFailure ErrorKind = "ocr_failure"
	// ErrKindExplainFailure - explainer lỗi mạng/timeout/quota; kết quả OCR đã gửi vẫn giữ nguyên
	ErrKindExplainFailure ErrorKind = "explain_failure"
	// ErrKindInternal - vi phạm invariant (ví dụ cache trả về sai fingerprint); phải log như một bug
	ErrKindInternal ErrorKind = "internal_pipeline_error"
)

// PipelineError gắn một ErrorKind vào lỗi gốc để caller phân biệt stage hỏng.
type PipelineError struct {
	Kind ErrorKind
	Err  error
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *PipelineError) Unwrap() error { return e.Err }

// KindOf trả về ErrorKind của err nếu là PipelineError, ngược lại fallback.
func KindOf(err error, fallback ErrorKind) ErrorKind {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return fallback
}
