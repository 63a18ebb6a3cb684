package http

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Austin-rgb/messages/internal/registry"
	"github.com/Austin-rgb/messages/pkg/metrics"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxFrameSize   = 512
	sendBufferSize = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// auth already happened in middleware; origin is not part of the model
	CheckOrigin: func(*http.Request) bool { return true },
}

// handleWS upgrades the connection and registers it for live delivery. The
// socket is push-only: events flow server to client, and inbound frames are
// read solely to service pongs and detect closure.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Debug("ws upgrade failed", zap.String("user", user), zap.Error(err))
		return
	}

	conn := registry.NewConn(user, sendBufferSize)
	s.rt.Registry.Register(conn)
	metrics.LiveConnections.Inc()
	s.log.Info("ws connected", zap.String("user", user))

	go s.writePump(ws, conn)
	s.readPump(ws, conn)
}

func (s *Server) readPump(ws *websocket.Conn, conn *registry.Conn) {
	defer func() {
		s.rt.Registry.Unregister(conn)
		metrics.LiveConnections.Dec()
		ws.Close()
		s.log.Info("ws disconnected", zap.String("user", conn.User))
	}()

	ws.SetReadLimit(maxFrameSize)
	ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *Server) writePump(ws *websocket.Conn, conn *registry.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		ws.Close()
	}()
	for {
		select {
		case frame := <-conn.Outbound():
			ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-conn.Done():
			ws.SetWriteDeadline(time.Now().Add(writeWait))
			ws.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case <-ticker.C:
			ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
