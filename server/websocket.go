package server

import (
	"log"
	"net/http"
	"sync"

	models "github.com/Desarso/toolgate/models"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// wsWriter serializes writes to one websocket connection.
type wsWriter struct {
	conn   *websocket.Conn
	logger *log.Logger
	mu     sync.Mutex
}

func (w *wsWriter) WriteEvent(eventType string, payload interface{}) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.conn.WriteJSON(map[string]interface{}{
		"type": eventType,
		"data": payload,
	})
}

func (w *wsWriter) WriteError(message string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.conn.WriteJSON(map[string]string{"type": "error", "error": message})
}

// handleStream runs completions over a websocket session. Each incoming
// JSON frame is one ChatRequest; the reply frames are a "result" event with
// the full response followed by a "done" marker. Tool activity between the
// two is the gateway's business, not the transport's.
func (s *Server) handleStream(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.Logger.Printf("websocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	writer := &wsWriter{conn: conn, logger: s.Logger}
	userID := c.GetHeader("X-User-ID")

	for {
		var req models.ChatRequest
		if err := conn.ReadJSON(&req); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.Logger.Printf("websocket read failed: %v", err)
			}
			return
		}

		user := userID
		if user == "" {
			user = req.User
		}

		result, err := s.Gateway.Complete(c.Request.Context(), user, &req)
		if err != nil {
			if writeErr := writer.WriteError(err.Error()); writeErr != nil {
				return
			}
			continue
		}

		resp := result.Response
		resp.ID = result.RequestID
		resp.Usage = &result.Usage
		if err := writer.WriteEvent("result", resp); err != nil {
			return
		}
		if err := writer.WriteEvent("done", gin.H{"request_id": result.RequestID}); err != nil {
			return
		}
	}
}
