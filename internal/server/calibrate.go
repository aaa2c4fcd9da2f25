package server

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/antialias/soroban-vision/internal/calibration"
	"github.com/antialias/soroban-vision/internal/store"
)

// calibrateMessage is an inbound pointer or lifecycle event from the
// calibration UI.
type calibrateMessage struct {
	Type            string  `json:"type"`
	Target          string  `json:"target,omitempty"`
	X               float64 `json:"x,omitempty"`
	Y               float64 `json:"y,omitempty"`
	Direction       string  `json:"direction,omitempty"`
	ContainerWidth  float64 `json:"containerWidth,omitempty"`
	ContainerHeight float64 `json:"containerHeight,omitempty"`
	Name            string  `json:"name,omitempty"`
}

// snapshotMessage is the outbound editor state sent after every edit.
type snapshotMessage struct {
	Type string `json:"type"`
	calibration.Snapshot
}

// completedMessage acknowledges a finished calibration session.
type completedMessage struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// CalibrateHandler drives the shared calibration editor from WebSocket
// pointer events and broadcasts the resulting snapshots. The editor itself is
// not synchronized, so every editor call goes through the handler mutex.
type CalibrateHandler struct {
	editor       *calibration.Editor
	store        *store.Store
	onCalibrated func(grid calibration.Grid)

	mu      sync.Mutex
	ticking bool
	clients map[*websocket.Conn]bool
	cmu     sync.RWMutex

	// wmu serializes writes; gorilla connections allow one writer at a time
	// and snapshots fan out from both the reader and the rotation goroutine.
	wmu sync.Mutex
}

// NewCalibrateHandler creates a CalibrateHandler around the given editor.
// Store and onCalibrated may be nil.
func NewCalibrateHandler(editor *calibration.Editor, s *store.Store, onCalibrated func(grid calibration.Grid)) *CalibrateHandler {
	h := &CalibrateHandler{
		editor:       editor,
		store:        s,
		onCalibrated: onCalibrated,
		clients:      make(map[*websocket.Conn]bool),
	}
	editor.Subscribe(h.broadcastSnapshot)
	return h
}

// ServeHTTP handles WebSocket upgrade requests for the calibration editor.
func (h *CalibrateHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("websocket upgrade error: %v", err)
		return
	}
	defer conn.Close()

	h.cmu.Lock()
	h.clients[conn] = true
	h.cmu.Unlock()

	defer func() {
		h.cmu.Lock()
		delete(h.clients, conn)
		h.cmu.Unlock()
	}()

	// Send the current state so the UI can draw the overlay immediately
	h.mu.Lock()
	snap := h.editor.Snapshot()
	h.mu.Unlock()
	h.send(conn, snapshotMessage{Type: "snapshot", Snapshot: snap})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var msg calibrateMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Printf("calibrate: invalid message: %v", err)
			continue
		}

		h.handle(conn, msg)
	}
}

func (h *CalibrateHandler) handle(conn *websocket.Conn, msg calibrateMessage) {
	switch msg.Type {
	case "viewport":
		h.mu.Lock()
		vw, vh := h.editor.Dimensions()
		h.editor.SetViewport(calibration.Viewport{
			VideoWidth:      vw,
			VideoHeight:     vh,
			ContainerWidth:  msg.ContainerWidth,
			ContainerHeight: msg.ContainerHeight,
		})
		h.mu.Unlock()

	case "begin":
		target, err := calibration.ParseDragTarget(msg.Target)
		if err != nil {
			log.Printf("calibrate: %v", err)
			return
		}
		h.mu.Lock()
		h.editor.BeginDrag(target, calibration.Point{X: msg.X, Y: msg.Y})
		h.mu.Unlock()

	case "move":
		h.mu.Lock()
		h.editor.UpdateDrag(calibration.Point{X: msg.X, Y: msg.Y})
		h.mu.Unlock()

	case "end":
		h.mu.Lock()
		h.editor.EndDrag()
		h.mu.Unlock()

	case "rotate":
		dir := calibration.Direction(msg.Direction)
		if dir != calibration.RotateLeft && dir != calibration.RotateRight {
			log.Printf("calibrate: invalid rotation direction %q", msg.Direction)
			return
		}
		h.mu.Lock()
		h.editor.Rotate(dir, nowMs())
		start := !h.ticking && h.editor.Rotating()
		if start {
			h.ticking = true
		}
		h.mu.Unlock()
		if start {
			go h.runRotation()
		}

	case "complete":
		h.complete(conn, msg.Name)

	default:
		log.Printf("calibrate: unknown message type %q", msg.Type)
	}
}

// runRotation advances the rotation animation until it settles.
func (h *CalibrateHandler) runRotation() {
	ticker := time.NewTicker(16 * time.Millisecond)
	defer ticker.Stop()

	for range ticker.C {
		h.mu.Lock()
		active := h.editor.Tick(nowMs())
		if !active {
			h.ticking = false
		}
		h.mu.Unlock()
		if !active {
			return
		}
	}
}

// complete persists the finished grid and notifies the pipeline.
func (h *CalibrateHandler) complete(conn *websocket.Conn, name string) {
	h.mu.Lock()
	grid := h.editor.Complete()
	vw, vh := h.editor.Dimensions()
	h.mu.Unlock()

	id := ""
	if h.store != nil {
		if name == "" {
			name = "Calibration"
		}
		c := &store.Calibration{
			ID:          uuid.New().String(),
			Name:        name,
			VideoWidth:  int(vw),
			VideoHeight: int(vh),
			Grid:        grid,
		}
		if err := h.store.Calibrations().Create(c); err != nil {
			log.Printf("calibrate: failed to save calibration: %v", err)
			return
		}
		if err := h.store.SetSetting(store.ActiveCalibrationKey, c.ID); err != nil {
			log.Printf("calibrate: failed to set active calibration: %v", err)
		}
		id = c.ID
	}

	if h.onCalibrated != nil {
		h.onCalibrated(grid)
	}

	h.send(conn, completedMessage{Type: "completed", ID: id})
}

// broadcastSnapshot pushes an editor snapshot to every connected client.
func (h *CalibrateHandler) broadcastSnapshot(snap calibration.Snapshot) {
	h.cmu.RLock()
	defer h.cmu.RUnlock()
	for conn := range h.clients {
		h.send(conn, snapshotMessage{Type: "snapshot", Snapshot: snap})
	}
}

func (h *CalibrateHandler) send(conn *websocket.Conn, v any) {
	msg, err := json.Marshal(v)
	if err != nil {
		return
	}
	h.wmu.Lock()
	conn.WriteMessage(websocket.TextMessage, msg)
	h.wmu.Unlock()
}

func nowMs() float64 {
	return float64(time.Now().UnixMilli())
}
