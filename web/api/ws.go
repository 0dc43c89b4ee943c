package api

import (
	"log"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/haldardhruv/foamchalak/internal/domain"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsHandler serves the WebSocket output feed. Same contract as the SSE
// stream: per-connection subscription, slow clients get dropped with a
// close frame naming the reason.
func (s *Server) wsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("upgrade failed: %v", err)
			return
		}

		go s.handleWSConnection(conn)
	}
}

func (s *Server) handleWSConnection(conn *websocket.Conn) {
	defer conn.Close()

	sub := s.bc.Subscribe(0)
	defer s.bc.Unsubscribe(sub)

	// Drain reads so close frames and pings are processed; the feed is
	// one-directional.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-done:
			return
		case line, ok := <-sub.Lines():
			if !ok {
				if sub.Err() == domain.ErrSubscriberOverflow {
					conn.WriteMessage(websocket.CloseMessage,
						websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "client too slow, lines dropped"))
				}
				return
			}
			if err := conn.WriteJSON(line); err != nil {
				return
			}
		}
	}
}
