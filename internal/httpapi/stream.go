package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/p-n-ai/pai-pathways/internal/session"
)

const writeTimeout = 5 * time.Second

// handleStream pushes session updates over a WebSocket. The current panel
// and progress state are sent first so a client can render immediately.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		return
	}
	defer conn.CloseNow()

	updates, cancel := sess.Subscribe()
	defer cancel()

	// Client frames are ignored; CloseRead cancels ctx when the peer goes away.
	ctx := conn.CloseRead(r.Context())

	vm := sess.Panel.Current()
	st := sess.Tracker.State()
	for _, u := range []session.Update{
		{Type: session.UpdatePanel, Panel: &vm},
		{Type: session.UpdateProgress, Progress: &st},
	} {
		if err := write(ctx, conn, u); err != nil {
			return
		}
	}

	for {
		select {
		case <-ctx.Done():
			return
		case u, ok := <-updates:
			if !ok {
				conn.Close(websocket.StatusNormalClosure, "session closed")
				return
			}
			if err := write(ctx, conn, u); err != nil {
				return
			}
		}
	}
}

func write(ctx context.Context, conn *websocket.Conn, u session.Update) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, u)
}
