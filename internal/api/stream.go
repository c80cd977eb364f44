package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/MrWong99/modelmixer/internal/observe"
)

// writeTimeout bounds a single stats frame.
const writeTimeout = 5 * time.Second

// handleStatsStream upgrades to a WebSocket and pushes a [mixer.Stats]
// snapshot immediately and then every push interval until the client goes
// away or the server shuts down. Messages from the client are discarded.
func (s *Server) handleStatsStream(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		// Accept has already written the error response.
		return
	}
	defer conn.CloseNow()

	log := observe.Logger(r.Context(), s.logger)
	ctx := conn.CloseRead(r.Context())

	ticker := time.NewTicker(s.pushInterval)
	defer ticker.Stop()

	for {
		if err := s.pushStats(ctx, conn); err != nil {
			if ctx.Err() != nil {
				conn.Close(websocket.StatusNormalClosure, "")
				return
			}
			if !errors.Is(err, context.Canceled) && websocket.CloseStatus(err) == -1 {
				log.Debug("stats stream closed", "err", err)
			}
			return
		}
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "")
			return
		case <-ticker.C:
		}
	}
}

func (s *Server) pushStats(ctx context.Context, conn *websocket.Conn) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, s.mixer.Stats())
}
