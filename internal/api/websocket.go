package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"trafficpilot/internal/status"
)

const (
	// Time allowed to write a frame to the observer.
	writeWait = 10 * time.Second
	// Time allowed to read the next pong from the observer.
	pongWait = 60 * time.Second
	// Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
	// Observer commands are small JSON documents.
	maxFrameSize = 64 << 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// inboundFrame is a client-sent envelope; data is kept raw for relaying
type inboundFrame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// observer connects one WebSocket client to the status hub
type observer struct {
	conn        *websocket.Conn
	hub         *status.Hub
	events      <-chan status.Envelope
	unsubscribe func()
	logger      zerolog.Logger
}

// handleWebSocket handles GET /ws
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Failed to upgrade observer connection")
		return
	}

	events, unsubscribe := s.hub.Subscribe()
	o := &observer{
		conn:        conn,
		hub:         s.hub,
		events:      events,
		unsubscribe: unsubscribe,
		logger:      s.logger.With().Str("remote", clientAddress(r)).Logger(),
	}

	o.logger.Info().Msg("Observer connected")

	go o.writePump()
	o.readPump()
}

// readPump relays bot-command frames until the connection fails
func (o *observer) readPump() {
	defer func() {
		o.unsubscribe()
		o.conn.Close()
		o.logger.Info().Msg("Observer disconnected")
	}()

	o.conn.SetReadLimit(maxFrameSize)
	o.conn.SetReadDeadline(time.Now().Add(pongWait))
	o.conn.SetPongHandler(func(string) error { return o.conn.SetReadDeadline(time.Now().Add(pongWait)) })

	for {
		_, message, err := o.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				o.logger.Debug().Err(err).Msg("Observer read error")
			}
			return
		}

		var frame inboundFrame
		if err := json.Unmarshal(message, &frame); err != nil {
			o.logger.Debug().Err(err).Msg("Ignoring malformed observer frame")
			continue
		}

		if frame.Event != status.EventBotCommand {
			o.logger.Debug().Str("event", frame.Event).Msg("Ignoring unknown observer event")
			continue
		}

		data := frame.Data
		if len(data) == 0 {
			data = json.RawMessage("null")
		}
		o.hub.Relay(data)
	}
}

// writePump forwards hub envelopes and keeps the connection alive
func (o *observer) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		o.conn.Close()
	}()

	for {
		select {
		case env, ok := <-o.events:
			o.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				o.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := o.conn.WriteJSON(env); err != nil {
				return
			}
		case <-ticker.C:
			o.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := o.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
