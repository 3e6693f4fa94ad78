package service

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"golang.org/x/sync/semaphore"
	"gopkg.in/guregu/null.v4"

	"github.com/jeswintom22/ClassSight/internal/config"
	"github.com/jeswintom22/ClassSight/internal/domain"
	"github.com/jeswintom22/ClassSight/internal/repository"
)

// OCRClient là contract của OCR adapter: lời gọi blocking ảnh -> văn bản.
type OCRClient interface {
	AnalyzeImage(ctx context.Context, frame []byte) (*domain.OCRObservation, error)
}

// ExplainerClient là contract của explainer adapter: văn bản -> giải thích.
type ExplainerClient interface {
	ExplainText(ctx context.Context, text string) (*domain.Explanation, error)
}

// PipelineService điều phối toàn bộ vòng đời một frame:
// fingerprint -> cache -> [hit: complete ngay] | [miss: OCR -> phát ocr_result
// -> explainer -> phát ai_result -> ghi cache -> complete]. Mỗi fingerprint
// chỉ có một computation chạy tại một thời điểm (single-flight); frame trùng
// nhau đến đồng thời chia sẻ kết quả thay vì gọi OCR/AI lần nữa.
type PipelineService struct {
	ocr         OCRClient
	explainer   ExplainerClient
	cache       *CacheService
	inflight    *InFlightRegistry
	historyRepo repository.AnalysisLogRepository // có thể nil (không có database)

	ocrWorkers *semaphore.Weighted // giới hạn số lệnh OCR blocking chạy đồng thời
	ocrTimeout time.Duration
	aiTimeout  time.Duration
}

func NewPipelineService(ocr OCRClient, explainer ExplainerClient, cache *CacheService,
	historyRepo repository.AnalysisLogRepository, cfg *config.Config) *PipelineService {
	workers := cfg.OCRWorkers
	if workers < 1 {
		workers = 1
	}
	return &PipelineService{
		ocr:         ocr,
		explainer:   explainer,
		cache:       cache,
		inflight:    NewInFlightRegistry(),
		historyRepo: historyRepo,
		ocrWorkers:  semaphore.NewWeighted(int64(workers)),
		ocrTimeout:  cfg.OCRTimeout,
		aiTimeout:   cfg.AITimeout,
	}
}

// SubmitFrame chạy pipeline cho một frame và trả về chuỗi message theo thứ
// tự phát sinh. Channel luôn kết thúc bằng đúng một complete hoặc error rồi
// đóng; ocr_result/ai_result (nếu có) luôn đứng trước message kết thúc.
func (s *PipelineService) SubmitFrame(frame []byte) <-chan domain.StreamMessage {
	fingerprint := Fingerprint(frame)

	if result, ok := s.cacheLookup(fingerprint); ok {
		ch := make(chan domain.StreamMessage, 1)
		ch <- domain.CompleteMessage{Result: result, Cached: true}
		close(ch)
		return ch
	}

	ch, leader := s.inflight.Join(fingerprint)
	if leader {
		// Computation đã bắt đầu thì luôn chạy đến cùng, kể cả khi mọi
		// client ngắt kết nối — kết quả còn vào cache cho request sau.
		go s.compute(fingerprint, frame)
	} else {
		log.Printf("PipelineService: frame %s đang được xử lý, attach làm waiter", shortFP(fingerprint))
	}
	return ch
}

// AnalyzeFrame là giao diện đồng bộ (một frame vào, một kết quả ra) cho
// client không có WebSocket. Trả về kết quả dạng complete hoặc PipelineError.
func (s *PipelineService) AnalyzeFrame(ctx context.Context, frame []byte) (*domain.AnalysisResult, bool, error) {
	ch := s.SubmitFrame(frame)
	for {
		select {
		case <-ctx.Done():
			// computation vẫn chạy tiếp; chỉ request này bỏ chờ
			go drain(ch)
			return nil, false, &domain.PipelineError{Kind: domain.ErrKindInternal, Err: ctx.Err()}
		case msg, ok := <-ch:
			if !ok {
				return nil, false, &domain.PipelineError{
					Kind: domain.ErrKindInternal,
					Err:  errors.New("stream đóng mà không có message kết thúc"),
				}
			}
			switch m := msg.(type) {
			case domain.CompleteMessage:
				result := m.Result
				go drain(ch)
				return &result, m.Cached, nil
			case domain.ErrorMessage:
				go drain(ch)
				return nil, false, &domain.PipelineError{Kind: m.Kind, Err: errors.New(m.Message)}
			}
			// bỏ qua message trung gian (ocr_result, ai_result)
		}
	}
}

// InFlightCount trả về số computation đang chạy (cho API stats).
func (s *PipelineService) InFlightCount() int { return s.inflight.Len() }

func drain(ch <-chan domain.StreamMessage) {
	for range ch {
	}
}

// cacheLookup kiểm tra cache kèm sanity check fingerprint: entry không khớp
// key là vi phạm invariant — log như bug rồi coi là miss, không crash session.
func (s *PipelineService) cacheLookup(fingerprint string) (domain.AnalysisResult, bool) {
	result, ok := s.cache.GetResult(fingerprint)
	if !ok {
		return domain.AnalysisResult{}, false
	}
	if result.Fingerprint != fingerprint {
		log.Printf("PipelineService: %s: cache trả về fingerprint %s cho key %s",
			domain.ErrKindInternal, shortFP(result.Fingerprint), shortFP(fingerprint))
		return domain.AnalysisResult{}, false
	}
	return result, true
}

// compute là thân computation của leader. Chạy trên goroutine riêng với
// context nền (không theo session): ngắt kết nối không huỷ computation.
func (s *PipelineService) compute(fingerprint string, frame []byte) {
	// leader trước đó có thể vừa ghi cache xong trong lúc mình Join
	if result, ok := s.cacheLookup(fingerprint); ok {
		s.inflight.Finish(fingerprint, domain.CompleteMessage{Result: result, Cached: true})
		return
	}

	started := time.Now()

	obs, err := s.runOCR(frame)
	if err != nil {
		log.Printf("PipelineService: OCR thất bại cho frame %s: %v", shortFP(fingerprint), err)
		s.inflight.Finish(fingerprint, domain.ErrorMessage{
			Kind:    domain.KindOf(err, domain.ErrKindOCRFailure),
			Message: err.Error(),
		})
		return
	}

	// phát kết quả OCR ngay, trước khi AI chạy — chữ hiện ra trong lúc
	// người dùng chờ giải thích
	s.inflight.Publish(fingerprint, domain.OCRResultMessage{
		CombinedText: obs.CombinedText,
		Confidence:   obs.Confidence,
		Blocks:       obs.Blocks,
	})

	result := domain.AnalysisResult{
		Fingerprint:  fingerprint,
		CombinedText: obs.CombinedText,
		Confidence:   obs.Confidence,
		Blocks:       obs.Blocks,
		CreatedAt:    time.Now().UTC(),
	}

	if strings.TrimSpace(obs.CombinedText) == "" {
		// không có chữ thì không gọi AI: không tốn một lượt gọi trả phí
		// để giải thích chuỗi rỗng
		log.Printf("PipelineService: frame %s không có văn bản, bỏ qua stage AI", shortFP(fingerprint))
		s.finishComplete(fingerprint, result, started)
		return
	}

	explanation, err := s.runExplainer(obs.CombinedText)
	if err != nil {
		// ocr_result đã phát vẫn giữ nguyên giá trị với client;
		// kết quả dở dang không bao giờ được ghi vào cache
		log.Printf("PipelineService: explainer thất bại cho frame %s: %v", shortFP(fingerprint), err)
		s.inflight.Finish(fingerprint, domain.ErrorMessage{
			Kind:    domain.KindOf(err, domain.ErrKindExplainFailure),
			Message: err.Error(),
		})
		return
	}

	s.inflight.Publish(fingerprint, domain.AIResultMessage{
		Explanation: explanation.Explanation,
		AIModel:     explanation.ModelName,
	})

	result.Explanation = explanation.Explanation
	result.AIModel = explanation.ModelName
	s.finishComplete(fingerprint, result, started)
}

func (s *PipelineService) finishComplete(fingerprint string, result domain.AnalysisResult, started time.Time) {
	s.cache.SetResult(fingerprint, result)
	s.logHistory(result)
	s.inflight.Finish(fingerprint, domain.CompleteMessage{Result: result})
	log.Printf("PipelineService: frame %s xử lý xong sau %v", shortFP(fingerprint), time.Since(started).Round(time.Millisecond))
}

func (s *PipelineService) runOCR(frame []byte) (*domain.OCRObservation, error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.ocrTimeout)
	defer cancel()

	// worker pool: OCR blocking không được chiếm hết scheduler của các
	// session khác
	if err := s.ocrWorkers.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer s.ocrWorkers.Release(1)

	return s.ocr.AnalyzeImage(ctx, frame)
}

func (s *PipelineService) runExplainer(text string) (*domain.Explanation, error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.aiTimeout)
	defer cancel()
	return s.explainer.ExplainText(ctx, text)
}

// logHistory ghi kết quả hoàn chỉnh vào lịch sử (best-effort, async).
func (s *PipelineService) logHistory(result domain.AnalysisResult) {
	if s.historyRepo == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		record := &domain.AnalysisRecord{
			Fingerprint:  result.Fingerprint,
			CombinedText: result.CombinedText,
			Confidence:   result.Confidence,
			Explanation:  null.NewString(result.Explanation, result.Explanation != ""),
			AIModel:      null.NewString(result.AIModel, result.AIModel != ""),
			CreatedAt:    result.CreatedAt,
		}
		err := s.historyRepo.Create(ctx, record)
		if err != nil && !errors.Is(err, repository.ErrDuplicateEntry) {
			log.Printf("PipelineService: không ghi được lịch sử phân tích: %v", err)
		}
	}()
}
