package feed

import (
	"sync"
	"time"

	"github.com/TheSlimvReal/posture-client/pkg/models"
)

const (
	MessageReading  = "reading"
	MessageState    = "state"
	MessageBaseline = "baseline"
	MessageError    = "error"
)

// Message is one websocket frame pushed to every subscriber
type Message struct {
	Type     string                  `json:"type"`
	Reading  *models.Reading         `json:"reading,omitempty"`
	From     *models.ConnectionState `json:"from,omitempty"`
	To       *models.ConnectionState `json:"to,omitempty"`
	Baseline *models.Baseline        `json:"baseline,omitempty"`
	Error    string                  `json:"error,omitempty"`
	At       time.Time               `json:"at"`
}

// Hub fans listener callbacks out to websocket subscribers.
// A subscriber that falls behind loses messages rather than stalling the pipeline.
type Hub struct {
	mu      sync.Mutex
	subs    map[chan Message]struct{}
	buffer  int
	dropped uint64
	now     func() time.Time
}

func NewHub(buffer int) *Hub {
	return &Hub{subs: map[chan Message]struct{}{}, buffer: buffer, now: time.Now}
}

func (h *Hub) Subscribe() chan Message {
	ch := make(chan Message, h.buffer)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

func (h *Hub) Unsubscribe(ch chan Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[ch]; ok {
		delete(h.subs, ch)
		close(ch)
	}
}

func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Dropped counts messages lost to slow subscribers
func (h *Hub) Dropped() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.dropped
}

func (h *Hub) broadcast(m Message) {
	m.At = h.now()
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- m:
		default:
			h.dropped++
		}
	}
}

func (h *Hub) OnReading(r models.Reading) {
	h.broadcast(Message{Type: MessageReading, Reading: &r})
}

func (h *Hub) OnDecodeError(error) {}

func (h *Hub) OnCalibrated(b models.Baseline) {
	h.broadcast(Message{Type: MessageBaseline, Baseline: &b})
}

func (h *Hub) OnStateChanged(from models.ConnectionState, to models.ConnectionState) {
	h.broadcast(Message{Type: MessageState, From: &from, To: &to})
}

func (h *Hub) OnPeripheralFound(models.PeripheralHandle) {}

func (h *Hub) OnConnectionError(err error) {
	h.broadcast(Message{Type: MessageError, Error: err.Error()})
}
