package relay

import (
	"net/http"

	ws "github.com/coder/websocket"
)

// HandleWebSocket returns an HTTP handler that upgrades connections and runs
// them as hub sessions.
func HandleWebSocket(hub *Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := ws.Accept(w, r, &ws.AcceptOptions{
			InsecureSkipVerify: true, // Allow connections from any origin (home LAN)
		})
		if err != nil {
			hub.logger.Warn("websocket accept", "error", err)
			return
		}

		session := NewSession(hub, conn)
		session.Run(r.Context())
	}
}
