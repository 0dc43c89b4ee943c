package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/haldardhruv/foamchalak/internal/domain"
)

// streamHandler serves the SSE output feed. Each connection gets its own
// broadcaster subscription; a client that cannot keep up is dropped and
// told so with a final "overflow" event, while the run log stays complete.
func (s *Server) streamHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "Streaming not supported", http.StatusInternalServerError)
			return
		}

		// Set SSE headers
		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("Access-Control-Allow-Origin", "*")
		flusher.Flush()

		sub := s.bc.Subscribe(0)
		defer s.bc.Unsubscribe(sub)

		done := r.Context().Done()
		for {
			select {
			case <-done:
				return
			case line, ok := <-sub.Lines():
				if !ok {
					// Subscription closed: either overflow or a
					// broadcaster shutdown.
					if sub.Err() == domain.ErrSubscriberOverflow {
						fmt.Fprintf(w, "event: overflow\ndata: {\"error\":\"client too slow, lines dropped\"}\n\n")
						flusher.Flush()
					}
					return
				}
				data, _ := json.Marshal(line)
				fmt.Fprintf(w, "event: line\ndata: %s\n\n", data)
				flusher.Flush()
			}
		}
	}
}
