package realtime

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	walog "go.mau.fi/whatsmeow/util/log"

	"github.com/fardannozami/parking-reporter/internal/domain"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	maxMessageSize = 512
)

// wireEvent is the JSON frame sent to remote subscribers:
//
//	{"event":"INSERT","row":{"id":"..."},"at":"..."}
type wireEvent struct {
	Event domain.ChangeType `json:"event"`
	Row   wireRow           `json:"row"`
	At    time.Time         `json:"at"`
}

type wireRow struct {
	ID string `json:"id"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Handler streams hub events to websocket clients, one subscription per
// connection.
type Handler struct {
	feed domain.ChangeFeed
	log  walog.Logger
}

func NewHandler(feed domain.ChangeFeed, logger walog.Logger) *Handler {
	if logger == nil {
		logger = walog.Noop
	}
	return &Handler{feed: feed, log: logger}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sub, err := h.feed.Subscribe(r.Context())
	if err != nil {
		http.Error(w, "realtime unavailable", http.StatusServiceUnavailable)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warnf("WebSocket upgrade failed: %v", err)
		_ = sub.Close()
		return
	}
	h.log.Infof("Realtime client %s connected", r.RemoteAddr)

	go h.writePump(conn, sub)
	h.readPump(conn)

	_ = sub.Close()
	h.log.Infof("Realtime client %s disconnected", r.RemoteAddr)
}

// readPump only services control frames; clients have nothing to say.
func (h *Handler) readPump(conn *websocket.Conn) {
	defer conn.Close()

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Handler) writePump(conn *websocket.Conn, sub domain.Subscription) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case evt, ok := <-sub.Events():
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				reason := "closed"
				if err := sub.Err(); err != nil {
					reason = err.Error()
				}
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, reason))
				return
			}
			frame := wireEvent{Event: evt.Type, Row: wireRow{ID: evt.ReportID}, At: evt.At}
			if err := conn.WriteJSON(frame); err != nil {
				return
			}

		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
