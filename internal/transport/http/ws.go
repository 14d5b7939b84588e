package http

import (
	"log"
	"net/http"

	"pixeltrivia/internal/app"
	"pixeltrivia/internal/domain"
	"github.com/gorilla/websocket"
)

// WSHandler streams room snapshots to connected clients so UIs track the
// room without polling. It is read-mostly: clients act through the JSON API
// and only watch here.
type WSHandler struct {
	service  *app.RoomService
	upgrader websocket.Upgrader
}

func NewWSHandler(service *app.RoomService) *WSHandler {
	return &WSHandler{
		service: service,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type wsMessage struct {
	Type    string              `json:"type"`
	Payload domain.RoomSnapshot `json:"payload"`
}

type wsError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// ServeWS upgrades the request and pumps snapshots until the client
// disconnects or the room is torn down.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	if code == "" {
		http.Error(w, "missing code", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	updates, cancel, err := h.service.Subscribe(r.Context(), code)
	if err != nil {
		_ = conn.WriteJSON(wsError{Type: "error", Message: err.Error()})
		return
	}
	defer cancel()

	done := make(chan struct{})

	// Drain reads so we notice disconnects; inbound frames are ignored.
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
		case snap, ok := <-updates:
			if !ok {
				_ = conn.WriteJSON(wsError{Type: "closed", Message: "room closed"})
				return
			}
			if err := conn.WriteJSON(wsMessage{Type: "room", Payload: snap}); err != nil {
				log.Printf("ws write error: %v", err)
				return
			}
		case <-done:
			return
		}
	}
}
