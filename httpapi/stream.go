package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"github.com/iov-one/escrowfactory/events"
	"github.com/iov-one/escrowfactory/orm"
)

const (
	writeWait  = 10 * time.Second
	pingPeriod = 30 * time.Second
	pongWait   = pingPeriod + 10*time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
}

// streamEvents upgrades the connection and writes every committed event as
// a JSON message. The escrow query parameter limits the stream to a single
// escrow, the path parameter to events of given path prefix.
func (s *server) streamEvents(w http.ResponseWriter, r *http.Request) {
	if s.Bus == nil {
		unavailable(w, r)
		return
	}
	filter, ok := streamFilter(w, r)
	if !ok {
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the error response.
		s.Logger.Debug("websocket upgrade", "err", err)
		return
	}
	defer conn.Close()

	sub := s.Bus.Subscribe(filter)
	defer sub.Cancel()

	// The read loop only handles control frames and detects a closed
	// connection.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()
	for {
		select {
		case <-closed:
			return
		case <-r.Context().Done():
			return
		case m, ok := <-sub.C:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(m); err != nil {
				s.Logger.Debug("websocket write", "err", err)
				return
			}
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func streamFilter(w http.ResponseWriter, r *http.Request) (events.Filter, bool) {
	q := r.URL.Query()
	if v := q.Get("escrow"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n < 1 {
			JSONErr(w, http.StatusBadRequest, "Escrow id must be a positive integer.")
			return nil, false
		}
		return events.ByEscrow(orm.EncodeSequence(n)), true
	}
	if p := q.Get("path"); p != "" {
		return events.ByPath(p), true
	}
	return events.All, true
}
