package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/ocrdesk/ocrdesk/internal/logging"
	"github.com/ocrdesk/ocrdesk/internal/upload"
)

// WebSocket message types for the job feed
const (
	// Client -> Server messages
	MsgTypePing = "ping"

	// Server -> Client messages
	MsgTypeConnected = "connected"
	MsgTypeJob       = "job"
	MsgTypePong      = "pong"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// WSMessage is one frame of the job feed.
type WSMessage struct {
	Type      string      `json:"type"`
	Job       *upload.Job `json:"job,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

// JobFeedHandlerImpl pushes job status changes to websocket clients
type JobFeedHandlerImpl struct {
	jobs     JobRunner
	upgrader websocket.Upgrader
	maxMsg   int64
	log      zerolog.Logger
}

// NewJobFeedHandler creates the /ws/jobs handler. maxMessageKB bounds
// client frames.
func NewJobFeedHandler(jobs JobRunner, maxMessageKB int, log zerolog.Logger) JobFeedHandler {
	if maxMessageKB <= 0 {
		maxMessageKB = 64
	}
	return &JobFeedHandlerImpl{
		jobs: jobs,
		upgrader: websocket.Upgrader{
			CheckOrigin:     func(r *http.Request) bool { return true },
			ReadBufferSize:  4 * 1024,
			WriteBufferSize: 16 * 1024,
		},
		maxMsg: int64(maxMessageKB) * 1024,
		log:    logging.Component(log, "jobfeed"),
	}
}

// HandleJobFeed upgrades the connection and forwards job events until the
// client disconnects.
func (h *JobFeedHandlerImpl) HandleJobFeed(c echo.Context) error {
	ws, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	defer ws.Close()

	events, unsubscribe := h.jobs.Subscribe()
	defer unsubscribe()

	h.log.Debug().Str("remote", c.RealIP()).Msg("client connected")

	// The reader owns all reads; pongs to client pings go through the
	// writer below.
	pings := make(chan struct{}, 1)
	done := make(chan struct{})
	go func() {
		defer close(done)
		ws.SetReadLimit(h.maxMsg)
		ws.SetReadDeadline(time.Now().Add(pongWait))
		ws.SetPongHandler(func(string) error {
			return ws.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			var msg WSMessage
			if err := ws.ReadJSON(&msg); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					h.log.Debug().Err(err).Msg("connection error")
				}
				return
			}
			ws.SetReadDeadline(time.Now().Add(pongWait))
			if msg.Type == MsgTypePing {
				select {
				case pings <- struct{}{}:
				default:
				}
			}
		}
	}()

	if err := h.send(ws, WSMessage{Type: MsgTypeConnected}); err != nil {
		return nil
	}

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			h.log.Debug().Msg("client disconnected")
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			job := ev.Job
			if err := h.send(ws, WSMessage{Type: MsgTypeJob, Job: &job}); err != nil {
				return nil
			}
		case <-pings:
			if err := h.send(ws, WSMessage{Type: MsgTypePong}); err != nil {
				return nil
			}
		case <-ticker.C:
			ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return nil
			}
		}
	}
}

func (h *JobFeedHandlerImpl) send(ws *websocket.Conn, msg WSMessage) error {
	msg.Timestamp = time.Now().UnixMilli()
	ws.SetWriteDeadline(time.Now().Add(writeWait))
	if err := ws.WriteJSON(msg); err != nil {
		h.log.Debug().Err(err).Msg("failed to send message")
		return err
	}
	return nil
}
