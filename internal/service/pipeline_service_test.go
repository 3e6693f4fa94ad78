package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jeswintom22/ClassSight/internal/config"
	"github.com/jeswintom22/ClassSight/internal/domain"
)

type stubOCR struct {
	mu    sync.Mutex
	calls int
	obs   domain.OCRObservation
	err   error
	delay time.Duration
}

func (s *stubOCR) AnalyzeImage(ctx context.Context, frame []byte) (*domain.OCRObservation, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	if s.err != nil {
		return nil, s.err
	}
	obs := s.obs
	return &obs, nil
}

func (s *stubOCR) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type stubExplainer struct {
	mu          sync.Mutex
	calls       int
	explanation domain.Explanation
	err         error
}

func (s *stubExplainer) ExplainText(ctx context.Context, text string) (*domain.Explanation, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	explanation := s.explanation
	return &explanation, nil
}

func (s *stubExplainer) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func newTestPipeline(ocr OCRClient, explainer ExplainerClient, ttl time.Duration) *PipelineService {
	cfg := &config.Config{
		OCRTimeout: 2 * time.Second,
		AITimeout:  2 * time.Second,
		OCRWorkers: 2,
	}
	cache := NewCacheService(16, ttl)
	return NewPipelineService(ocr, explainer, cache, nil, cfg)
}

// collect đọc toàn bộ message đến khi channel đóng.
func collect(t *testing.T, ch <-chan domain.StreamMessage) []domain.StreamMessage {
	t.Helper()
	var messages []domain.StreamMessage
	timeout := time.After(3 * time.Second)
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return messages
			}
			messages = append(messages, msg)
		case <-timeout:
			t.Fatalf("hết thời gian chờ message từ pipeline")
		}
	}
}

func TestPipelineEmitsProgressiveSequence(t *testing.T) {
	ocr := &stubOCR{obs: domain.OCRObservation{CombinedText: "x^2+5x+6=0", Confidence: 0.92}}
	explainer := &stubExplainer{explanation: domain.Explanation{Explanation: "This is a quadratic equation...", ModelName: "stub"}}
	pipeline := newTestPipeline(ocr, explainer, time.Minute)

	messages := collect(t, pipeline.SubmitFrame([]byte("frame-f1")))

	if len(messages) != 3 {
		t.Fatalf("muốn 3 messages (ocr_result, ai_result, complete), nhận được %d", len(messages))
	}

	ocrMsg, ok := messages[0].(domain.OCRResultMessage)
	if !ok {
		t.Fatalf("message đầu phải là ocr_result, nhận được %T", messages[0])
	}
	if ocrMsg.CombinedText != "x^2+5x+6=0" || ocrMsg.Confidence != 0.92 {
		t.Errorf("ocr_result sai nội dung: %+v", ocrMsg)
	}

	aiMsg, ok := messages[1].(domain.AIResultMessage)
	if !ok {
		t.Fatalf("message thứ hai phải là ai_result, nhận được %T", messages[1])
	}
	if aiMsg.Explanation != "This is a quadratic equation..." || aiMsg.AIModel != "stub" {
		t.Errorf("ai_result sai nội dung: %+v", aiMsg)
	}

	complete, ok := messages[2].(domain.CompleteMessage)
	if !ok {
		t.Fatalf("message cuối phải là complete, nhận được %T", messages[2])
	}
	if complete.Cached {
		t.Errorf("lần xử lý đầu không được đánh dấu cached")
	}
	if complete.Result.CombinedText != "x^2+5x+6=0" || complete.Result.Explanation != "This is a quadratic equation..." ||
		complete.Result.AIModel != "stub" || complete.Result.Confidence != 0.92 {
		t.Errorf("complete sai nội dung: %+v", complete.Result)
	}
	if complete.Result.Fingerprint != Fingerprint([]byte("frame-f1")) {
		t.Errorf("complete phải mang fingerprint của frame")
	}
}

func TestPipelineIdempotentWithinTTL(t *testing.T) {
	ocr := &stubOCR{obs: domain.OCRObservation{CombinedText: "ABC", Confidence: 0.9}}
	explainer := &stubExplainer{explanation: domain.Explanation{Explanation: "abc explained", ModelName: "stub"}}
	pipeline := newTestPipeline(ocr, explainer, time.Minute)

	first := collect(t, pipeline.SubmitFrame([]byte("frame-f1")))
	second := collect(t, pipeline.SubmitFrame([]byte("frame-f1")))

	if ocr.callCount() != 1 || explainer.callCount() != 1 {
		t.Fatalf("lần gửi thứ hai trong TTL không được gọi adapter: ocr=%d ai=%d", ocr.callCount(), explainer.callCount())
	}
	if len(second) != 1 {
		t.Fatalf("cache hit chỉ phát đúng một complete, nhận được %d messages", len(second))
	}
	complete, ok := second[0].(domain.CompleteMessage)
	if !ok {
		t.Fatalf("cache hit phải phát complete, nhận được %T", second[0])
	}
	if !complete.Cached {
		t.Errorf("cache hit phải đánh dấu cached")
	}

	firstComplete := first[len(first)-1].(domain.CompleteMessage)
	if complete.Result.Fingerprint != firstComplete.Result.Fingerprint ||
		complete.Result.CombinedText != firstComplete.Result.CombinedText ||
		complete.Result.Explanation != firstComplete.Result.Explanation {
		t.Errorf("hai lần gửi cùng frame phải cho cùng kết quả")
	}
}

func TestPipelineSingleFlight(t *testing.T) {
	ocr := &stubOCR{obs: domain.OCRObservation{CombinedText: "shared", Confidence: 0.8}, delay: 100 * time.Millisecond}
	explainer := &stubExplainer{explanation: domain.Explanation{Explanation: "shared explained", ModelName: "stub"}}
	pipeline := newTestPipeline(ocr, explainer, time.Minute)

	const waiters = 8
	results := make([]domain.CompleteMessage, waiters)
	var wg sync.WaitGroup
	for i := 0; i < waiters; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			messages := collect(t, pipeline.SubmitFrame([]byte("frame-shared")))
			last := messages[len(messages)-1]
			complete, ok := last.(domain.CompleteMessage)
			if !ok {
				t.Errorf("waiter %d: message cuối phải là complete, nhận được %T", i, last)
				return
			}
			results[i] = complete
		}(i)
	}
	wg.Wait()

	if ocr.callCount() != 1 {
		t.Errorf("N frame trùng nhau đồng thời chỉ được gọi OCR một lần, đã gọi %d", ocr.callCount())
	}
	if explainer.callCount() != 1 {
		t.Errorf("N frame trùng nhau đồng thời chỉ được gọi explainer một lần, đã gọi %d", explainer.callCount())
	}
	for i, complete := range results {
		if complete.Result.CombinedText != "shared" || complete.Result.Explanation != "shared explained" {
			t.Errorf("waiter %d nhận kết quả khác leader: %+v", i, complete.Result)
		}
	}
}

func TestPipelineEmptyTextSkipsExplainer(t *testing.T) {
	ocr := &stubOCR{obs: domain.OCRObservation{CombinedText: "", Confidence: 0}}
	explainer := &stubExplainer{explanation: domain.Explanation{Explanation: "should not run", ModelName: "stub"}}
	pipeline := newTestPipeline(ocr, explainer, time.Minute)

	messages := collect(t, pipeline.SubmitFrame([]byte("frame-blank")))

	if explainer.callCount() != 0 {
		t.Fatalf("không có văn bản thì không được gọi explainer")
	}
	complete, ok := messages[len(messages)-1].(domain.CompleteMessage)
	if !ok {
		t.Fatalf("frame không có chữ vẫn phải kết thúc bằng complete, nhận được %T", messages[len(messages)-1])
	}
	if complete.Result.Explanation != "" || complete.Result.AIModel != "" {
		t.Errorf("kết quả frame trống phải có explanation rỗng: %+v", complete.Result)
	}

	// kết quả trống vẫn cache được: gửi lại không gọi OCR lần nữa
	collect(t, pipeline.SubmitFrame([]byte("frame-blank")))
	if ocr.callCount() != 1 {
		t.Errorf("kết quả hoàn chỉnh (dù trống) phải được cache, OCR bị gọi %d lần", ocr.callCount())
	}
}

func TestPipelineExplainerFailureKeepsOCRResult(t *testing.T) {
	ocr := &stubOCR{obs: domain.OCRObservation{CombinedText: "ABC", Confidence: 0.9}}
	explainer := &stubExplainer{err: errors.New("quota exceeded")}
	pipeline := newTestPipeline(ocr, explainer, time.Minute)

	messages := collect(t, pipeline.SubmitFrame([]byte("frame-f1")))

	if len(messages) != 2 {
		t.Fatalf("muốn ocr_result rồi error, nhận được %d messages", len(messages))
	}
	ocrMsg, ok := messages[0].(domain.OCRResultMessage)
	if !ok {
		t.Fatalf("client phải nhận ocr_result trước error, message đầu là %T", messages[0])
	}
	if ocrMsg.CombinedText != "ABC" || ocrMsg.Confidence != 0.9 {
		t.Errorf("ocr_result sai nội dung: %+v", ocrMsg)
	}
	errMsg, ok := messages[1].(domain.ErrorMessage)
	if !ok {
		t.Fatalf("message cuối phải là error, nhận được %T", messages[1])
	}
	if errMsg.Kind != domain.ErrKindExplainFailure {
		t.Errorf("kind phải là explain_failure, nhận được %s", errMsg.Kind)
	}

	// kết quả dở dang không được cache: gửi lại phải chạy OCR lần nữa
	collect(t, pipeline.SubmitFrame([]byte("frame-f1")))
	if ocr.callCount() != 2 {
		t.Errorf("sau explain_failure không được có entry cache, OCR bị gọi %d lần", ocr.callCount())
	}
}

func TestPipelineOCRFailure(t *testing.T) {
	ocr := &stubOCR{err: errors.New("unsupported image")}
	explainer := &stubExplainer{}
	pipeline := newTestPipeline(ocr, explainer, time.Minute)

	messages := collect(t, pipeline.SubmitFrame([]byte("frame-bad")))

	if len(messages) != 1 {
		t.Fatalf("OCR hỏng thì chỉ có một error message, nhận được %d", len(messages))
	}
	errMsg, ok := messages[0].(domain.ErrorMessage)
	if !ok {
		t.Fatalf("muốn error message, nhận được %T", messages[0])
	}
	if errMsg.Kind != domain.ErrKindOCRFailure {
		t.Errorf("kind phải là ocr_failure, nhận được %s", errMsg.Kind)
	}
	if explainer.callCount() != 0 {
		t.Errorf("OCR hỏng thì không được gọi explainer")
	}
}

func TestPipelineExpiredEntryRecomputes(t *testing.T) {
	ocr := &stubOCR{obs: domain.OCRObservation{CombinedText: "abc", Confidence: 0.7}}
	explainer := &stubExplainer{explanation: domain.Explanation{Explanation: "x", ModelName: "stub"}}
	pipeline := newTestPipeline(ocr, explainer, 40*time.Millisecond)

	collect(t, pipeline.SubmitFrame([]byte("frame-f1")))
	time.Sleep(90 * time.Millisecond)
	collect(t, pipeline.SubmitFrame([]byte("frame-f1")))

	if ocr.callCount() != 2 {
		t.Errorf("entry hết hạn phải tính lại từ đầu, OCR bị gọi %d lần", ocr.callCount())
	}
}

func TestAnalyzeFrameSynchronous(t *testing.T) {
	ocr := &stubOCR{obs: domain.OCRObservation{CombinedText: "hello", Confidence: 0.85}}
	explainer := &stubExplainer{explanation: domain.Explanation{Explanation: "greeting", ModelName: "stub"}}
	pipeline := newTestPipeline(ocr, explainer, time.Minute)

	result, cached, err := pipeline.AnalyzeFrame(context.Background(), []byte("frame-f1"))
	if err != nil {
		t.Fatalf("AnalyzeFrame lỗi: %v", err)
	}
	if cached {
		t.Errorf("lần đầu không được cached")
	}
	if result.CombinedText != "hello" || result.Explanation != "greeting" {
		t.Errorf("kết quả sai: %+v", result)
	}

	_, cached, err = pipeline.AnalyzeFrame(context.Background(), []byte("frame-f1"))
	if err != nil {
		t.Fatalf("AnalyzeFrame lần hai lỗi: %v", err)
	}
	if !cached {
		t.Errorf("lần hai trong TTL phải là cache hit")
	}
}

func TestAnalyzeFrameReportsPipelineError(t *testing.T) {
	ocr := &stubOCR{obs: domain.OCRObservation{CombinedText: "ABC", Confidence: 0.9}}
	explainer := &stubExplainer{err: errors.New("model down")}
	pipeline := newTestPipeline(ocr, explainer, time.Minute)

	_, _, err := pipeline.AnalyzeFrame(context.Background(), []byte("frame-f1"))
	if err == nil {
		t.Fatalf("explainer hỏng thì AnalyzeFrame phải trả lỗi")
	}
	var pipelineErr *domain.PipelineError
	if !errors.As(err, &pipelineErr) {
		t.Fatalf("lỗi phải là PipelineError, nhận được %T", err)
	}
	if pipelineErr.Kind != domain.ErrKindExplainFailure {
		t.Errorf("kind phải là explain_failure, nhận được %s", pipelineErr.Kind)
	}
}
