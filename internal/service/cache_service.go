package service

import (
	"log"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/jeswintom22/ClassSight/internal/domain"
)

// CacheService lưu AnalysisResult theo fingerprint, có TTL và giới hạn
// dung lượng (LRU). Cache chỉ là tầng hiệu năng: mất entry không bao giờ
// được coi là lỗi ở nơi khác. Tạo một instance lúc khởi động và inject vào
// pipeline, không dùng state toàn cục.
type CacheService struct {
	results *expirable.LRU[string, domain.AnalysisResult]
	ttl     time.Duration
	maxSize int
}

// NewCacheService tạo cache với TTL cấu hình (tầm giây đến vài phút).
// TTL âm không được phép.
func NewCacheService(maxSize int, ttl time.Duration) *CacheService {
	if ttl < 0 {
		log.Printf("CacheService: TTL âm (%v) không hợp lệ, dùng 0 (không hết hạn)", ttl)
		ttl = 0
	}
	return &CacheService{
		results: expirable.NewLRU[string, domain.AnalysisResult](maxSize, nil, ttl),
		ttl:     ttl,
		maxSize: maxSize,
	}
}

// GetResult trả về hit chỉ khi entry tồn tại và chưa quá hạn; entry hết hạn
// được coi như không có (thư viện tự evict khi lookup).
func (s *CacheService) GetResult(fingerprint string) (domain.AnalysisResult, bool) {
	return s.results.Get(fingerprint)
}

// SetResult ghi đè entry với hạn mới = now + TTL. Khi vượt dung lượng,
// entry ít dùng nhất bị evict trước.
func (s *CacheService) SetResult(fingerprint string, result domain.AnalysisResult) {
	s.results.Add(fingerprint, result)
}

// Clear xoá toàn bộ cache (operator gọi qua API admin, hoặc test).
func (s *CacheService) Clear() {
	s.results.Purge()
}

func (s *CacheService) Len() int { return s.results.Len() }

func (s *CacheService) TTL() time.Duration { return s.ttl }

func (s *CacheService) MaxSize() int { return s.maxSize }
