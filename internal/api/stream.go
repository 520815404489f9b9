package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/talgya/realm-market/internal/engine"
)

const (
	streamWriteTimeout = 5 * time.Second
	streamPingInterval = 30 * time.Second
	streamReadTimeout  = 2 * streamPingInterval
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4 * 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// streamHello is the first frame on a new stream: enough state for a client
// to render before updates arrive.
type streamHello struct {
	Kind   string               `json:"kind"`
	Day    uint64               `json:"day"`
	Date   string               `json:"date"`
	Recent []engine.EventRecord `json:"recent_events"`
}

// handleStream upgrades to a websocket and forwards market updates until the
// client goes away. Concurrent connections are capped.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	limit := int32(s.MaxStreamConns)
	if limit <= 0 {
		limit = defaultMaxStreamConns
	}
	current := atomic.AddInt32(&s.streamConns, 1)
	if current > limit {
		atomic.AddInt32(&s.streamConns, -1)
		http.Error(w, "too many stream connections", http.StatusServiceUnavailable)
		return
	}
	defer atomic.AddInt32(&s.streamConns, -1)

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	subID, updates := s.Market.Subscribe()
	defer s.Market.Unsubscribe(subID)
	slog.Info("stream client connected", "sub_id", subID, "remote", clientIP(r))

	day := s.Market.Day()
	hello := streamHello{Kind: "hello", Day: day, Date: engine.SimDate(day), Recent: s.Market.RecentEvents()}
	if err := writeFrame(conn, hello); err != nil {
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Reader goroutine: clients send nothing useful, but reading is how
	// close frames and pongs are processed.
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(streamReadTimeout))
	})
	go func() {
		defer cancel()
		_ = conn.SetReadDeadline(time.Now().Add(streamReadTimeout))
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(streamPingInterval)
	defer ping.Stop()

	for {
		select {
		case u, ok := <-updates:
			if !ok {
				return
			}
			if err := writeFrame(conn, u); err != nil {
				return
			}
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-ctx.Done():
			slog.Info("stream client disconnected", "sub_id", subID)
			return
		}
	}
}

func writeFrame(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
	return conn.WriteMessage(websocket.TextMessage, b)
}
