package handler

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jeswintom22/ClassSight/internal/config"
	"github.com/jeswintom22/ClassSight/internal/domain"
	"github.com/jeswintom22/ClassSight/internal/service"
)

type stubOCR struct {
	mu    sync.Mutex
	calls int
	obs   domain.OCRObservation
	err   error
}

func (s *stubOCR) AnalyzeImage(ctx context.Context, frame []byte) (*domain.OCRObservation, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	obs := s.obs
	return &obs, nil
}

type stubExplainer struct {
	explanation domain.Explanation
	err         error
}

func (s *stubExplainer) ExplainText(ctx context.Context, text string) (*domain.Explanation, error) {
	if s.err != nil {
		return nil, s.err
	}
	explanation := s.explanation
	return &explanation, nil
}

func newTestPipeline(ocr service.OCRClient, explainer service.ExplainerClient) (*service.PipelineService, *service.CacheService) {
	cfg := &config.Config{
		OCRTimeout: 2 * time.Second,
		AITimeout:  2 * time.Second,
		OCRWorkers: 2,
	}
	cache := service.NewCacheService(16, time.Minute)
	return service.NewPipelineService(ocr, explainer, cache, nil, cfg), cache
}

func newAnalysisRouter(pipeline *service.PipelineService, cache *service.CacheService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h := NewAnalysisHandler(pipeline, cache)
	r.POST("/api/v1/analysis/analyze", h.AnalyzeFrame)
	r.GET("/api/v1/analysis/health", h.Health)
	return r
}

func postAnalyze(t *testing.T, r *gin.Engine, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/analysis/analyze", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAnalyzeFrameSuccess(t *testing.T) {
	ocr := &stubOCR{obs: domain.OCRObservation{CombinedText: "x^2+5x+6=0", Confidence: 0.92}}
	explainer := &stubExplainer{explanation: domain.Explanation{Explanation: "This is a quadratic equation...", ModelName: "stub"}}
	pipeline, cache := newTestPipeline(ocr, explainer)
	r := newAnalysisRouter(pipeline, cache)

	frame := base64.StdEncoding.EncodeToString([]byte("frame-f1"))
	w := postAnalyze(t, r, `{"image_base64":"`+frame+`"}`)

	if w.Code != http.StatusOK {
		t.Fatalf("muốn 200, nhận được %d: %s", w.Code, w.Body.String())
	}

	var resp domain.AnalyzeResponseDTO
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("response không phải JSON hợp lệ: %v", err)
	}
	if !resp.Success {
		t.Errorf("success phải là true")
	}
	if resp.CombinedText != "x^2+5x+6=0" || resp.Explanation != "This is a quadratic equation..." {
		t.Errorf("response sai nội dung: %+v", resp)
	}
	if resp.Cached {
		t.Errorf("lần đầu không được cached")
	}

	// gửi lại cùng frame: cache hit
	w = postAnalyze(t, r, `{"image_base64":"`+frame+`"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("lần hai muốn 200, nhận được %d", w.Code)
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("response không phải JSON hợp lệ: %v", err)
	}
	if !resp.Cached {
		t.Errorf("lần hai trong TTL phải là cache hit")
	}
}

func TestAnalyzeFrameRejectsBadBase64(t *testing.T) {
	pipeline, cache := newTestPipeline(&stubOCR{}, &stubExplainer{})
	r := newAnalysisRouter(pipeline, cache)

	w := postAnalyze(t, r, `{"image_base64":"!!!khong-phai-base64!!!"}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("base64 hỏng phải trả 400, nhận được %d", w.Code)
	}
}

func TestAnalyzeFrameRejectsMissingImage(t *testing.T) {
	pipeline, cache := newTestPipeline(&stubOCR{}, &stubExplainer{})
	r := newAnalysisRouter(pipeline, cache)

	w := postAnalyze(t, r, `{}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("thiếu image_base64 phải trả 400, nhận được %d", w.Code)
	}
}

func TestAnalyzeFrameExplainerFailure(t *testing.T) {
	ocr := &stubOCR{obs: domain.OCRObservation{CombinedText: "ABC", Confidence: 0.9}}
	explainer := &stubExplainer{err: errors.New("model down")}
	pipeline, cache := newTestPipeline(ocr, explainer)
	r := newAnalysisRouter(pipeline, cache)

	frame := base64.StdEncoding.EncodeToString([]byte("frame-f1"))
	w := postAnalyze(t, r, `{"image_base64":"`+frame+`"}`)

	if w.Code != http.StatusBadGateway {
		t.Fatalf("explainer hỏng phải trả 502, nhận được %d: %s", w.Code, w.Body.String())
	}

	var resp map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("response không phải JSON hợp lệ: %v", err)
	}
	if resp["kind"] != "explain_failure" {
		t.Errorf("kind phải là explain_failure, nhận được %v", resp["kind"])
	}
}

func TestAnalyzeFrameOCRFailure(t *testing.T) {
	ocr := &stubOCR{err: errors.New("unsupported image")}
	pipeline, cache := newTestPipeline(ocr, &stubExplainer{})
	r := newAnalysisRouter(pipeline, cache)

	frame := base64.StdEncoding.EncodeToString([]byte("frame-bad"))
	w := postAnalyze(t, r, `{"image_base64":"`+frame+`"}`)

	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("OCR hỏng phải trả 422, nhận được %d: %s", w.Code, w.Body.String())
	}
}

func TestHealthReportsCacheStats(t *testing.T) {
	pipeline, cache := newTestPipeline(&stubOCR{}, &stubExplainer{})
	r := newAnalysisRouter(pipeline, cache)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/analysis/health", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("muốn 200, nhận được %d", w.Code)
	}
	var resp map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("response không phải JSON hợp lệ: %v", err)
	}
	if resp["status"] != "ready" {
		t.Errorf("status phải là ready, nhận được %v", resp["status"])
	}
	if _, ok := resp["cache_entries"]; !ok {
		t.Errorf("health phải báo cache_entries")
	}
}
