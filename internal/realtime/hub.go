// Package realtime keeps the live connections of signed-in users and pushes
// notification frames to them.
package realtime

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// Channel is one live connection. Send must not block; it reports false when
// the frame was not accepted.
type Channel interface {
	Send(frame []byte) bool
}

// Frame is the JSON envelope written to clients.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Hub maps user ids to their live channels. Users without a channel simply
// miss the push.
type Hub struct {
	mu     sync.RWMutex
	conns  map[string]map[string]Channel
	logger *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{conns: make(map[string]map[string]Channel), logger: logger}
}

// Register adds ch for uid and returns its connection id.
func (h *Hub) Register(uid string, ch Channel) string {
	id := uuid.NewString()
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.conns[uid] == nil {
		h.conns[uid] = make(map[string]Channel)
	}
	h.conns[uid][id] = ch
	return id
}

func (h *Hub) Unregister(uid, connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set := h.conns[uid]
	if set == nil {
		return
	}
	delete(set, connID)
	if len(set) == 0 {
		delete(h.conns, uid)
	}
}

// Connections returns the number of live channels for uid.
func (h *Hub) Connections(uid string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns[uid])
}

// PushTo encodes v as a notification frame and delivers it to uid's channels.
func (h *Hub) PushTo(uid string, v any) {
	frame, err := EncodeFrame("notification", v)
	if err != nil {
		h.logger.Error("encode push frame failed", "user_uid", uid, "err", err)
		return
	}
	h.Deliver(uid, frame)
}

// Deliver writes an encoded frame to every channel of uid and returns how many accepted it.
func (h *Hub) Deliver(uid string, frame []byte) int {
	h.mu.RLock()
	targets := make([]Channel, 0, len(h.conns[uid]))
	for _, ch := range h.conns[uid] {
		targets = append(targets, ch)
	}
	h.mu.RUnlock()

	delivered := 0
	for _, ch := range targets {
		if ch.Send(frame) {
			delivered++
		} else {
			h.logger.Warn("push dropped, connection backlog full", "user_uid", uid)
		}
	}
	return delivered
}

func EncodeFrame(event string, v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Frame{Event: event, Data: data})
}
