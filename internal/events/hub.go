// Package events fans whiteboard changes out to websocket subscribers
package events

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nainya/boardstore/internal/logger"
	"github.com/nainya/boardstore/internal/metrics"
	"github.com/nainya/boardstore/pkg/board"
)

// Event types
const (
	TypeCommitted = "committed"
	TypeRestored  = "restored"
)

const writeWait = 5 * time.Second

// Event announces a new current snapshot on a whiteboard
type Event struct {
	Type         string    `json:"type"`
	Whiteboard   string    `json:"whiteboard"`
	Index        int       `json:"index"`
	RestoredFrom *int      `json:"restoredFrom,omitempty"`
	Author       string    `json:"author,omitempty"`
	At           time.Time `json:"at"`
}

// FromVersion builds the event for a freshly appended version
func FromVersion(id string, v *board.SnapshotVersion) Event {
	ev := Event{
		Type:       TypeCommitted,
		Whiteboard: id,
		Index:      v.Index,
		Author:     v.Author,
		At:         v.CreatedAt,
	}
	if v.IsRestore() {
		ev.Type = TypeRestored
		from := *v.RestoredFrom
		ev.RestoredFrom = &from
	}
	return ev
}

// subscriber is one websocket connection with serialized writes
type subscriber struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (s *subscriber) write(msg []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteMessage(websocket.TextMessage, msg)
}

// Hub tracks subscribers per whiteboard
type Hub struct {
	mu       sync.RWMutex
	boards   map[string]map[*subscriber]struct{}
	upgrader websocket.Upgrader
	log      *logger.Logger
	metrics  *metrics.Metrics
}

// NewHub creates a hub. An empty origins list accepts any origin.
func NewHub(origins []string, log *logger.Logger, m *metrics.Metrics) *Hub {
	h := &Hub{
		boards:  make(map[string]map[*subscriber]struct{}),
		log:     log.Component("events"),
		metrics: m,
	}
	h.upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			if len(origins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range origins {
				if origin == strings.TrimSpace(allowed) {
					return true
				}
			}
			return false
		},
	}
	return h
}

// Serve upgrades the request and streams events for whiteboard id until the
// client goes away. Incoming messages are discarded.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, id string) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("Websocket upgrade failed").Err(err).Str("whiteboard", id).Send()
		return
	}
	sub := &subscriber{conn: conn}
	h.add(id, sub)
	defer h.remove(id, sub)

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// Publish sends ev to every subscriber of its whiteboard. Subscribers that
// fail to receive it are dropped.
func (h *Hub) Publish(ev Event) {
	h.metrics.EventsPublished.WithLabelValues(ev.Type).Inc()

	h.mu.RLock()
	subs := make([]*subscriber, 0, len(h.boards[ev.Whiteboard]))
	for s := range h.boards[ev.Whiteboard] {
		subs = append(subs, s)
	}
	h.mu.RUnlock()
	if len(subs) == 0 {
		return
	}

	msg, err := json.Marshal(ev)
	if err != nil {
		h.log.Error("Failed to encode event").Err(err).Send()
		return
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	var failed []*subscriber
	for _, s := range subs {
		wg.Add(1)
		go func(s *subscriber) {
			defer wg.Done()
			if err := s.write(msg); err != nil {
				h.log.Debug("Event delivery failed").Err(err).Str("whiteboard", ev.Whiteboard).Send()
				mu.Lock()
				failed = append(failed, s)
				mu.Unlock()
			}
		}(s)
	}
	wg.Wait()

	for _, s := range failed {
		h.remove(ev.Whiteboard, s)
	}
}

// Subscribers returns the number of connections watching whiteboard id
func (h *Hub) Subscribers(id string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.boards[id])
}

// Close disconnects every subscriber
func (h *Hub) Close() {
	h.mu.Lock()
	boards := h.boards
	h.boards = make(map[string]map[*subscriber]struct{})
	h.mu.Unlock()

	for _, subs := range boards {
		for s := range subs {
			s.mu.Lock()
			s.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
				time.Now().Add(writeWait))
			s.mu.Unlock()
			s.conn.Close()
			h.metrics.WebsocketClients.Dec()
		}
	}
}

func (h *Hub) add(id string, s *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	subs, ok := h.boards[id]
	if !ok {
		subs = make(map[*subscriber]struct{})
		h.boards[id] = subs
	}
	subs[s] = struct{}{}
	h.metrics.WebsocketClients.Inc()
}

func (h *Hub) remove(id string, s *subscriber) {
	h.mu.Lock()
	subs := h.boards[id]
	_, ok := subs[s]
	if ok {
		delete(subs, s)
		if len(subs) == 0 {
			delete(h.boards, id)
		}
		h.metrics.WebsocketClients.Dec()
	}
	h.mu.Unlock()
	if ok {
		s.conn.Close()
	}
}
