package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"alerthub/internal/fanout"
	"alerthub/internal/insight"
	"alerthub/internal/models"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 50 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// The feed is public and anonymous; cross-origin viewers are expected.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// liveFrame is a server-to-client message on the live socket.
type liveFrame struct {
	Type    string         `json:"type"` // snapshot | error | insight
	Alerts  []models.Alert `json:"alerts,omitempty"`
	Error   string         `json:"error,omitempty"`
	AlertID string         `json:"alertId,omitempty"`
	State   string         `json:"state,omitempty"`
	Insight string         `json:"insight,omitempty"`
}

// liveAction is a client-to-server message on the live socket.
type liveAction struct {
	Action      string `json:"action"` // insight
	AlertID     string `json:"alertId"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

// liveAlerts upgrades the connection into a viewing session: one fan-out
// subscription plus one session-scoped insight cache, both torn down when
// the socket closes. All socket writes happen on the writer goroutine; the
// reader forwards its replies through the acks channel.
func (h *Handler) liveAlerts(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	sessionCtx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	subID, snapshots := h.subscriber.Subscribe()

	var cache *insight.Cache
	if h.requestor != nil {
		cache = insight.NewCache(h.requestor)
	}

	slog.Debug("viewing session started", "subscription", subID)

	acks := make(chan liveFrame, 8)
	writerDone := make(chan struct{})
	go liveWriter(conn, snapshots, cache, acks, writerDone)

	liveReader(sessionCtx, conn, cache, acks)

	// Teardown order matters: cancel in-flight insight requests, close the
	// cache (waits for them, discards results), then unsubscribe so the
	// writer drains out.
	cancel()
	if cache != nil {
		cache.Close()
	}
	h.subscriber.Unsubscribe(subID)
	<-writerDone

	slog.Debug("viewing session ended", "subscription", subID)
}

func liveReader(ctx context.Context, conn *websocket.Conn, cache *insight.Cache, acks chan<- liveFrame) {
	conn.SetReadLimit(4096)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var action liveAction
		if err := conn.ReadJSON(&action); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Debug("live session read error", "error", err)
			}
			return
		}

		if action.Action != "insight" {
			continue
		}

		if cache == nil {
			// No API key configured; tell this requester only.
			sendAck(acks, liveFrame{
				Type:    "insight",
				AlertID: action.AlertID,
				State:   insight.StateFailed.String(),
				Error:   "insight service not configured",
			})
			continue
		}

		cache.Request(ctx, action.AlertID, action.Title, action.Description)
		sendAck(acks, liveFrame{
			Type:    "insight",
			AlertID: action.AlertID,
			State:   cache.Get(action.AlertID).State.String(),
		})
	}
}

// sendAck never blocks the reader; a full ack buffer drops the frame (the
// settled insight update still arrives through the cache).
func sendAck(acks chan<- liveFrame, frame liveFrame) {
	select {
	case acks <- frame:
	default:
	}
}

func liveWriter(conn *websocket.Conn, snapshots <-chan fanout.Snapshot, cache *insight.Cache, acks <-chan liveFrame, done chan<- struct{}) {
	defer close(done)
	// Unblocks a reader stuck in ReadJSON when a write fails.
	defer conn.Close()

	var updates <-chan insight.Update
	if cache != nil {
		updates = cache.Updates()
	}

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	write := func(frame liveFrame) bool {
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		return conn.WriteJSON(frame) == nil
	}

	for {
		select {
		case snap, ok := <-snapshots:
			if !ok {
				return
			}
			frame := liveFrame{Type: "snapshot", Alerts: snap.Alerts}
			if snap.Err != nil {
				frame = liveFrame{Type: "error", Error: "failed to fetch alerts"}
			}
			if !write(frame) {
				return
			}
		case update, ok := <-updates:
			if !ok {
				updates = nil
				continue
			}
			frame := liveFrame{
				Type:    "insight",
				AlertID: update.AlertID,
				State:   update.Entry.State.String(),
				Insight: update.Entry.Text,
			}
			if update.Entry.Err != nil {
				frame.Error = "failed to generate insight"
			}
			if !write(frame) {
				return
			}
		case frame := <-acks:
			if !write(frame) {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
