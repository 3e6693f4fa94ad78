package service

import (
	"log"
	"sync"

	"github.com/jeswintom22/ClassSight/internal/domain"
)

// subscriberBuffer đủ chứa toàn bộ message của một invocation
// (ocr_result, ai_result, complete/error + replay), nên Publish không bao giờ
// phải chặn pipeline vì consumer đọc chậm.
const subscriberBuffer = 8

type inflightComputation struct {
	subs      []chan domain.StreamMessage
	published []domain.StreamMessage // giữ lại để replay cho consumer vào muộn
}

// InFlightRegistry đảm bảo mỗi fingerprint chỉ có một computation chạy tại
// một thời điểm. Request trùng fingerprint đang tính sẽ attach làm waiter và
// nhận cùng chuỗi message với leader; leader hỏng thì waiter vẫn nhận message
// kết thúc rồi channel đóng, không bao giờ treo.
// Shared giữa mọi session; tạo một instance lúc khởi động và inject.
type InFlightRegistry struct {
	mu           sync.Mutex
	computations map[string]*inflightComputation
}

func NewInFlightRegistry() *InFlightRegistry {
	return &InFlightRegistry{computations: make(map[string]*inflightComputation)}
}

// Join attach một consumer vào computation của fingerprint. leader = true
// nghĩa là caller là người phải chạy computation (check-and-set atomic dưới
// cùng một lock nên không thể có hai leader). Consumer vào muộn được replay
// các message đã phát để vẫn thấy đủ thứ tự ocr_result trước complete.
func (r *InFlightRegistry) Join(fingerprint string) (<-chan domain.StreamMessage, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ch := make(chan domain.StreamMessage, subscriberBuffer)

	c, ok := r.computations[fingerprint]
	if !ok {
		c = &inflightComputation{}
		c.subs = append(c.subs, ch)
		r.computations[fingerprint] = c
		return ch, true
	}

	for _, msg := range c.published {
		ch <- msg // buffer luôn đủ chỗ cho replay
	}
	c.subs = append(c.subs, ch)
	return ch, false
}

// Publish phát một message trung gian tới mọi consumer đang attach.
func (r *InFlightRegistry) Publish(fingerprint string, msg domain.StreamMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.computations[fingerprint]
	if !ok {
		return
	}
	c.published = append(c.published, msg)
	for _, ch := range c.subs {
		select {
		case ch <- msg:
		default:
			// không chặn pipeline vì một consumer đầy buffer
			log.Printf("InFlightRegistry: buffer consumer đầy, bỏ message %s cho frame %s", msg.Type(), shortFP(fingerprint))
		}
	}
}

// Finish phát message kết thúc (complete hoặc error), đóng mọi subscriber
// và gỡ entry khỏi registry. Sau Finish, request mới cho cùng fingerprint
// sẽ thành leader mới (hoặc hit cache nếu kết quả đã được ghi).
func (r *InFlightRegistry) Finish(fingerprint string, final domain.StreamMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.computations[fingerprint]
	if !ok {
		return
	}
	delete(r.computations, fingerprint)
	for _, ch := range c.subs {
		select {
		case ch <- final:
		default:
			log.Printf("InFlightRegistry: buffer consumer đầy, bỏ message kết thúc cho frame %s", shortFP(fingerprint))
		}
		close(ch)
	}
}

// Len trả về số computation đang chạy (cho API stats).
func (r *InFlightRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.computations)
}
