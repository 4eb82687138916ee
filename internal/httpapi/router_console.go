package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
)

// The console is an operator tool served on the internal listener, so
// cross-origin upgrades are accepted.
var consoleUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

type consoleMessage struct {
	UserID string `json:"user_id"`
	Text   string `json:"text"`
}

type consoleReply struct {
	Reply string `json:"reply"`
	Error string `json:"error,omitempty"`
}

// handleConsole runs an interactive chat session over a websocket. Each
// inbound frame is one utterance; each outbound frame is the bot's reply.
func (r *router) handleConsole(w http.ResponseWriter, req *http.Request) {
	if r.deps.Engine == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "chat engine is unavailable"})
		return
	}
	conn, err := consoleUpgrader.Upgrade(w, req, nil)
	if err != nil {
		r.deps.Logger.Warn("console upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var msg consoleMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			if writeErr := conn.WriteJSON(consoleReply{Error: "invalid payload"}); writeErr != nil {
				return
			}
			continue
		}
		userID := strings.TrimSpace(msg.UserID)
		if userID == "" {
			userID = "console"
		}
		reply, err := r.deps.Engine.HandleTurn(req.Context(), userID, msg.Text)
		out := consoleReply{Reply: reply}
		if err != nil {
			out.Error = err.Error()
		}
		if err := conn.WriteJSON(out); err != nil {
			return
		}
	}
}
