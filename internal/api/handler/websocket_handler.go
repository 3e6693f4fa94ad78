package handler

import (
	"log"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/jeswintom22/ClassSight/internal/domain"
	"github.com/jeswintom22/ClassSight/internal/service"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Cho phép kết nối từ mọi nguồn
	},
}

const sessionSendBuffer = 16

// StreamSession là một client đang kết nối qua WebSocket. Session sống đúng
// bằng connection: tạo lúc connect, huỷ lúc disconnect, server không giữ
// state resume — client tự reconnect và gửi lại frame.
type StreamSession struct {
	ID       string
	conn     *websocket.Conn
	pipeline *service.PipelineService

	send    chan domain.StreamMessage
	pending chan []byte // hàng đợi sâu 1: chỉ giữ frame mới nhất đang chờ

	closed    chan struct{}
	closeOnce sync.Once
}

// WebSocketManager quản lý các StreamSession đang hoạt động.
type WebSocketManager struct {
	sessions   map[string]*StreamSession
	register   chan *StreamSession
	unregister chan *StreamSession
	mutex      sync.RWMutex
}

func NewWebSocketManager() *WebSocketManager {
	return &WebSocketManager{
		sessions:   make(map[string]*StreamSession),
		register:   make(chan *StreamSession),
		unregister: make(chan *StreamSession),
	}
}

func (wsm *WebSocketManager) Start() {
	for {
		select {
		case session := <-wsm.register:
			wsm.mutex.Lock()
			wsm.sessions[session.ID] = session
			total := len(wsm.sessions)
			wsm.mutex.Unlock()
			log.Printf("StreamSession %s connected. Total: %d", session.ID, total)

		case session := <-wsm.unregister:
			wsm.mutex.Lock()
			if _, ok := wsm.sessions[session.ID]; ok {
				delete(wsm.sessions, session.ID)
				session.close()
			}
			total := len(wsm.sessions)
			wsm.mutex.Unlock()
			log.Printf("StreamSession %s disconnected. Total: %d", session.ID, total)
		}
	}
}

func (wsm *WebSocketManager) SessionCount() int {
	wsm.mutex.RLock()
	defer wsm.mutex.RUnlock()
	return len(wsm.sessions)
}

type WebSocketHandler struct {
	wsManager     *WebSocketManager
	pipeline      *service.PipelineService
	maxFrameBytes int64
}

func NewWebSocketHandler(wsManager *WebSocketManager, pipeline *service.PipelineService, maxFrameBytes int64) *WebSocketHandler {
	return &WebSocketHandler{wsManager: wsManager, pipeline: pipeline, maxFrameBytes: maxFrameBytes}
}

// GET /ws/stream
// Protocol: client gửi frame nhị phân; server đẩy về status -> ocr_result ->
// ai_result -> complete (hoặc error). Mỗi frame kết thúc bằng đúng một
// complete hoặc error.
func (h *WebSocketHandler) HandleStream(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("Failed to upgrade to WebSocket: %v", err)
		return
	}
	conn.SetReadLimit(h.maxFrameBytes)

	session := &StreamSession{
		ID:       uuid.NewString(),
		conn:     conn,
		pipeline: h.pipeline,
		send:     make(chan domain.StreamMessage, sessionSendBuffer),
		pending:  make(chan []byte, 1),
		closed:   make(chan struct{}),
	}

	h.wsManager.register <- session

	go session.writePump()
	go session.workLoop()
	session.readLoop() // block đến khi connection đóng

	h.wsManager.unregister <- session
}

func (s *StreamSession) readLoop() {
	defer s.close()
	for {
		messageType, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Printf("StreamSession %s: lỗi đọc WebSocket: %v", s.ID, err)
			}
			return
		}
		if messageType != websocket.BinaryMessage {
			s.enqueueOutbound(domain.StatusMessage{Message: "frame phải là binary message"})
			continue
		}
		s.enqueueFrame(data)
	}
}

// enqueueFrame giữ tối đa một frame chờ. Frame mới đến khi frame trước còn
// đang xử lý sẽ thay thế frame đang chờ (nếu có) — người dùng chụp vài giây
// một lần chỉ quan tâm khung hình mới nhất, xếp hàng vô hạn là vô nghĩa.
func (s *StreamSession) enqueueFrame(frame []byte) {
	for {
		select {
		case s.pending <- frame:
			return
		default:
			select {
			case <-s.pending:
				s.enqueueOutbound(domain.StatusMessage{Message: "đã bỏ frame cũ đang chờ, chỉ xử lý frame mới nhất"})
			default:
			}
		}
	}
}

// workLoop xử lý frame tuần tự theo thứ tự nhận trong session này.
func (s *StreamSession) workLoop() {
	for {
		select {
		case <-s.closed:
			return
		case frame := <-s.pending:
			s.enqueueOutbound(domain.StatusMessage{Message: "processing"})
			// Session đóng giữa chừng vẫn drain hết stream: computation
			// chạy đến cùng để ghi cache, kết quả không giao được thì bỏ
			// tại biên transport.
			for msg := range s.pipeline.SubmitFrame(frame) {
				s.enqueueOutbound(msg)
			}
		}
	}
}

func (s *StreamSession) enqueueOutbound(msg domain.StreamMessage) {
	select {
	case <-s.closed:
		return
	default:
	}
	select {
	case s.send <- msg:
	default:
		log.Printf("StreamSession %s: hàng đợi gửi đầy, bỏ message %s", s.ID, msg.Type())
	}
}

func (s *StreamSession) writePump() {
	for {
		select {
		case <-s.closed:
			return
		case msg := <-s.send:
			if err := s.conn.WriteJSON(msg); err != nil {
				log.Printf("StreamSession %s: lỗi ghi WebSocket: %v", s.ID, err)
				s.close()
				return
			}
		}
	}
}

func (s *StreamSession) close() {
	s.closeOnce.Do(func() {
		close(s.closed)
		s.conn.Close()
	})
}
