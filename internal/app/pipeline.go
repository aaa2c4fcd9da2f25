package app

import (
	"errors"
	"log"
	"time"

	"github.com/antialias/soroban-vision/internal/plugin"
	"github.com/antialias/soroban-vision/internal/reader"
	"github.com/antialias/soroban-vision/internal/rectify"
	"github.com/antialias/soroban-vision/internal/stability"
)

// runPipeline is the main reading loop that processes frames from the camera.
// It manages the state transitions between idle and active modes based on
// board activity.
//
// Pipeline logic:
// 1. Start in idle mode (idleFPS=5)
// 2. On board activity, switch to active mode (activeFPS=15)
// 3. If the calibration region is occluded, push a hand sample and skip the frame
// 4. Otherwise rectify the calibration quad and split it into columns
// 5. Classify the columns and push the value into the stability tracker
// 6. After 2s of no activity, switch back to idle mode
// 7. Fire callbacks and plugin events when a new value stabilizes
func (a *App) runPipeline() {
	// Track whether we're in active mode
	activeMode := false

	// Track the last activity time
	lastActivityTime := time.Now()

	// Track the last value announced to callbacks and plugins
	var lastNotified *int

	// Frame interval based on current FPS
	frameInterval := time.Second / time.Duration(IdleFPS)

	ticker := time.NewTicker(frameInterval)
	defer ticker.Stop()

	for {
		select {
		case <-a.stopCh:
			return
		case <-ticker.C:
			// Skip processing if reading is disabled
			if !a.IsEnabled() {
				continue
			}

			grid := a.Grid()
			if grid == nil {
				continue
			}

			// Read a frame from the camera
			frame, err := a.camera.ReadFrame()
			if err != nil {
				log.Printf("Error reading frame: %v", err)
				continue
			}

			// Step 1: Occlusion and activity detection over the grid region
			occluded, changePct := a.occlusion.Detect(frame)

			if changePct >= ActivityThreshold {
				lastActivityTime = time.Now()

				// Switch to active mode if not already
				if !activeMode {
					activeMode = true
					a.camera.SetFPS(ActiveFPS)
					frameInterval = time.Second / time.Duration(ActiveFPS)
					ticker.Reset(frameInterval)
					log.Println("Switched to active mode")
				}
			} else if activeMode {
				// Check if we should switch back to idle mode
				if time.Since(lastActivityTime) > time.Duration(IdleTimeoutMs)*time.Millisecond {
					activeMode = false
					a.camera.SetFPS(IdleFPS)
					frameInterval = time.Second / time.Duration(IdleFPS)
					ticker.Reset(frameInterval)
					log.Println("Switched to idle mode")
				}
			}

			if occluded {
				// A hand over the board breaks any consensus in progress
				frame.Close()
				a.tracker.Push(stability.Sample{
					HandDetected: true,
					TimestampMs:  float64(time.Now().UnixMilli()),
				})
				continue
			}

			// Step 2: Rectify the calibration quad into column images
			img, err := frame.ToImage()
			frame.Close()
			if err != nil {
				log.Printf("Error converting frame: %v", err)
				continue
			}

			columns, err := a.rectifier.Columns(img, *grid, rectify.DefaultOutputWidth, rectify.DefaultOutputHeight)
			if err != nil {
				if !errors.Is(err, rectify.ErrDegenerateQuad) {
					log.Printf("Error rectifying frame: %v", err)
				}
				continue
			}

			// Step 3: Classify the columns
			r := a.Reader()
			if r == nil {
				continue
			}
			result, err := r.ReadColumns(columns)
			if err != nil {
				log.Printf("Error reading columns: %v", err)
				continue
			}

			// Low-confidence readings never reach the tracker; the board
			// keeps its last state rather than flickering on a bad frame
			if result.Confidence < a.minConfidence {
				continue
			}

			// Step 4: Push into the stability tracker
			tr := a.tracker.Push(stability.Sample{
				Value:       reader.Value(result.Digits),
				Confidence:  result.Confidence,
				TimestampMs: float64(time.Now().UnixMilli()),
			})

			// Step 5: Announce newly stabilized values
			if tr.StableValue != nil {
				if lastNotified == nil || *lastNotified != *tr.StableValue {
					v := *tr.StableValue
					lastNotified = &v
					a.announceReading(tr, result.Digits)
				}
			} else {
				lastNotified = nil
			}
		}
	}
}

// announceReading fires registered callbacks and reading-event plugins for a
// newly stabilized value.
func (a *App) announceReading(tr stability.Reading, digits []int) {
	log.Printf("Stable reading: %d (confidence %.2f)", *tr.StableValue, tr.Confidence)

	a.mu.RLock()
	callbacks := append([]func(stability.Reading)(nil), a.callbacks...)
	a.mu.RUnlock()
	for _, fn := range callbacks {
		fn(tr)
	}

	plugins := a.pluginMgr.ForEvent("reading")
	if len(plugins) == 0 {
		return
	}

	req := &plugin.Request{
		Event:      "reading",
		Value:      tr.StableValue,
		Digits:     digits,
		Confidence: tr.Confidence,
	}

	for _, p := range plugins {
		go func(p *plugin.Plugin) {
			resp, err := a.pluginExec.Execute(p, req)
			if err != nil {
				log.Printf("Plugin %s failed: %v", p.Manifest.Name, err)
				return
			}
			if !resp.Success {
				log.Printf("Plugin %s returned error: %s", p.Manifest.Name, resp.Error)
			}
		}(p)
	}
}
