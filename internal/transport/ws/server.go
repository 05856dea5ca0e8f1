package ws

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"ideawall.live/internal/hub"
	"ideawall.live/internal/protocol"
	"ideawall.live/internal/wall"
)

const (
	writeTimeout = 5 * time.Second
	readTimeout  = 60 * time.Second
)

// Server upgrades display clients onto the push channel. Each connection
// gets a hub subscription, an immediate hello frame with the full current
// state, and a writer goroutine that drains the subscription with a write
// deadline on every frame.
type Server struct {
	wall *wall.Wall
	hub  *hub.Hub
	log  *log.Logger

	upgrader websocket.Upgrader
}

func NewServer(w *wall.Wall, h *hub.Hub, logger *log.Logger) *Server {
	return &Server{
		wall: w,
		hub:  h,
		log:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4 * 1024,
			WriteBufferSize: 16 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // LAN event setup
		},
	}
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		// Subscribe before composing hello so no mutation broadcast between
		// the two is lost; the reconciliation poll covers the rare overlap.
		sub := s.hub.Subscribe()
		defer s.hub.Unsubscribe(sub)

		helloFrame, err := protocol.EncodeHello(s.wall.Header(), s.wall.Ideas())
		if err != nil {
			return
		}
		_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := conn.WriteMessage(websocket.TextMessage, helloFrame); err != nil {
			return
		}

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		// Writer goroutine: drains the subscription until eviction or
		// disconnect.
		writeDone := make(chan struct{})
		go func() {
			defer close(writeDone)
			for {
				select {
				case <-ctx.Done():
					return
				case b, ok := <-sub.Out():
					if !ok {
						// Evicted by the hub. Drop the socket so the client
						// notices, reconnects and resyncs with a fresh hello;
						// otherwise its pings would keep a dead subscription
						// looking healthy forever.
						cancel()
						_ = conn.Close()
						return
					}
					_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						cancel()
						_ = conn.Close()
						return
					}
				}
			}
		}()

		// Reader loop: clients send nothing we act on, but reading is how we
		// notice the disconnect. Pings from the client keep the deadline
		// moving on otherwise silent display connections.
		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
		conn.SetPingHandler(func(appData string) error {
			_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
			return conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(writeTimeout))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
			_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
		}

		cancel()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"),
			time.Now().Add(time.Second))

		// Best-effort wait so the writer doesn't outlive conn.
		select {
		case <-writeDone:
		case <-time.After(500 * time.Millisecond):
		}
	}
}
