package progress

import (
	"net/http"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/net/websocket"
)

const sendBuffer = 256

type listener struct {
	send chan Event
	done chan struct{}
	once sync.Once
}

func (l *listener) close() {
	l.once.Do(func() { close(l.done) })
}

// Hub fans events out to the websocket connections of each session.
// A session may have any number of connections, including none.
type Hub struct {
	mu        sync.RWMutex
	listeners map[string]map[*listener]struct{}
}

func NewHub() *Hub {
	return &Hub{listeners: make(map[string]map[*listener]struct{})}
}

// Emit queues the event on every connection of the session. Events for a
// session nobody listens to are dropped. A connection whose queue is full is
// closed and removed; it never stays open with events missing.
func (h *Hub) Emit(sessionID, event string, payload any) {
	frame := Event{Event: event, Data: payload}

	var slow []*listener
	h.mu.RLock()
	for l := range h.listeners[sessionID] {
		select {
		case l.send <- frame:
		case <-l.done:
		default:
			slow = append(slow, l)
		}
	}
	h.mu.RUnlock()

	for _, l := range slow {
		Logger.Warn("Listener too slow, closing connection", "session", sessionID, "event", event)
		l.close()
		h.remove(sessionID, l)
	}
}

// Connections returns how many connections a session currently has
func (h *Hub) Connections(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.listeners[sessionID])
}

func (h *Hub) add(sessionID string, l *listener) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.listeners[sessionID]
	if !ok {
		set = make(map[*listener]struct{})
		h.listeners[sessionID] = set
	}
	set[l] = struct{}{}
}

func (h *Hub) remove(sessionID string, l *listener) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set := h.listeners[sessionID]
	delete(set, l)
	if len(set) == 0 {
		delete(h.listeners, sessionID)
	}
}

// ServeHTTP upgrades the request to a websocket bound to the sessionId query
// parameter. Without one the hub assigns a fresh id and announces it in a
// session event before anything else.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// Server without a Handshake accepts any Origin, matching the open CORS policy
	server := websocket.Server{Handler: h.serve}
	server.ServeHTTP(w, r)
}

func (h *Hub) serve(ws *websocket.Conn) {
	defer ws.Close()

	sessionID := ws.Request().URL.Query().Get("sessionId")
	l := &listener{send: make(chan Event, sendBuffer), done: make(chan struct{})}
	if sessionID == "" {
		sessionID = uuid.NewString()
		l.send <- Event{Event: EventSession, Data: SessionAssigned{SessionID: sessionID}}
	}

	h.add(sessionID, l)
	defer h.remove(sessionID, l)
	Logger.Info("Realtime client connected", "session", sessionID, "remote", ws.Request().RemoteAddr)

	// Incoming frames are ignored; the read loop only notices the disconnect
	go func() {
		defer l.close()
		var discard string
		for {
			if err := websocket.Message.Receive(ws, &discard); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-l.done:
			Logger.Info("Realtime client disconnected", "session", sessionID)
			return
		case frame := <-l.send:
			if err := websocket.JSON.Send(ws, frame); err != nil {
				Logger.Debug("Unable to write to realtime client", "session", sessionID, "error", err)
				l.close()
				return
			}
		}
	}
}
