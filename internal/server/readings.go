package server

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow local connections
	},
}

// ReadingsHandler broadcasts real-time abacus readings via WebSocket.
type ReadingsHandler struct {
	source  ReadingSource
	clients map[*websocket.Conn]bool
	mu      sync.RWMutex
}

// NewReadingsHandler creates a new ReadingsHandler with the given reading source.
func NewReadingsHandler(source ReadingSource) *ReadingsHandler {
	h := &ReadingsHandler{
		source:  source,
		clients: make(map[*websocket.Conn]bool),
	}
	go h.broadcast()
	return h
}

// ServeHTTP handles WebSocket upgrade requests.
func (h *ReadingsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("websocket upgrade error: %v", err)
		return
	}
	defer conn.Close()

	h.mu.Lock()
	h.clients[conn] = true
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		delete(h.clients, conn)
		h.mu.Unlock()
	}()

	// Keep connection alive by reading messages
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}

// broadcast sends the current reading to all connected clients.
func (h *ReadingsHandler) broadcast() {
	ticker := time.NewTicker(66 * time.Millisecond) // ~15 FPS
	defer ticker.Stop()

	for range ticker.C {
		h.mu.RLock()
		if len(h.clients) == 0 {
			h.mu.RUnlock()
			continue
		}
		h.mu.RUnlock()

		reading := h.source.Reading()

		msg, _ := json.Marshal(map[string]any{
			"stable_value":       reading.StableValue,
			"confidence":         reading.Confidence,
			"consecutive_frames": reading.ConsecutiveFrames,
			"hand_detected":      reading.HandDetected,
			"state":              reading.State,
			"status":             reading.StatusText(),
			"timestamp":          time.Now().UnixMilli(),
		})

		h.mu.RLock()
		for conn := range h.clients {
			conn.WriteMessage(websocket.TextMessage, msg)
		}
		h.mu.RUnlock()
	}
}
