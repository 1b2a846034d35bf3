package server

import (
	"context"
	"time"

	"github.com/caffeineduck/quickhub/app"
	"github.com/caffeineduck/quickhub/console"
	"github.com/caffeineduck/quickhub/internal/monitoring"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const writeWait = 10 * time.Second

// Inbound and outbound WebSocket message types.
const (
	msgEntry = "entry"
	msgReset = "reset"
	msgRun   = "run"
	msgClear = "clear"
	msgPing  = "ping"
	msgPong  = "pong"
	msgError = "error"
)

type wsMessage struct {
	Type  string         `json:"type"`
	Code  string         `json:"code,omitempty"`
	ID    string         `json:"id,omitempty"`
	Entry *console.Entry `json:"entry,omitempty"`
	Error string         `json:"error,omitempty"`
}

type wsHandler struct {
	app      *app.App
	metrics  *monitoring.Metrics
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

func newWSHandler(a *app.App, m *monitoring.Metrics, logger *zap.Logger) *wsHandler {
	return &wsHandler{
		app:     a,
		metrics: m,
		logger:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// HandleConnection streams the console: first the current backlog, then
// every new entry. Clients may also submit code and clear the log.
func (h *wsHandler) HandleConnection(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	h.metrics.WSConnections.Inc()
	defer h.metrics.WSConnections.Dec()

	out := make(chan wsMessage, 16)
	quit := make(chan struct{})
	writerDone := make(chan struct{})
	go h.writer(conn, out, quit, writerDone)

	ctx, stop := context.WithCancel(c.Request.Context())
	defer stop()

	for {
		var msg wsMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("websocket read error", zap.Error(err))
			}
			break
		}

		var reply *wsMessage
		switch msg.Type {
		case msgRun:
			id, err := h.app.RunConsole(ctx, msg.Code)
			if err != nil {
				reply = &wsMessage{Type: msgError, Error: err.Error()}
			} else {
				reply = &wsMessage{Type: msgRun, ID: id}
			}
		case msgClear:
			h.app.ClearConsole()
		case msgPing:
			reply = &wsMessage{Type: msgPong}
		default:
			reply = &wsMessage{Type: msgError, Error: "unknown message type: " + msg.Type}
		}

		if reply != nil {
			select {
			case out <- *reply:
			case <-writerDone:
				return
			}
		}
	}

	close(quit)
	<-writerDone
}

// writer owns all writes to conn. When the connection falls too far behind
// the console it sends a reset followed by the full log, so the client
// redraws instead of showing a gap.
func (h *wsHandler) writer(conn *websocket.Conn, out <-chan wsMessage, quit <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	sub := h.app.Console().SubscribeWithBacklog()
	defer func() { sub.Cancel() }()
	if !h.writeEntries(conn, sub.Backlog) {
		return
	}

	for {
		select {
		case e, ok := <-sub.C():
			if !ok {
				if !sub.Lagged() {
					return
				}
				h.logger.Debug("websocket client lagged, resyncing")
				sub = h.app.Console().SubscribeWithBacklog()
				if !h.write(conn, wsMessage{Type: msgReset}) || !h.writeEntries(conn, sub.Backlog) {
					return
				}
				continue
			}
			if !h.write(conn, wsMessage{Type: msgEntry, Entry: &e}) {
				return
			}
		case msg := <-out:
			if !h.write(conn, msg) {
				return
			}
		case <-quit:
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return
		}
	}
}

func (h *wsHandler) writeEntries(conn *websocket.Conn, entries []console.Entry) bool {
	for i := range entries {
		if !h.write(conn, wsMessage{Type: msgEntry, Entry: &entries[i]}) {
			return false
		}
	}
	return true
}

func (h *wsHandler) write(conn *websocket.Conn, msg wsMessage) bool {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(msg); err != nil {
		h.logger.Debug("websocket write failed", zap.Error(err))
		return false
	}
	return true
}
