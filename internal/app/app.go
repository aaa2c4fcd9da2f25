// Package app provides the main application logic for the soroban vision service.
package app

import (
	"log"
	"sync"

	"github.com/antialias/soroban-vision/internal/calibration"
	"github.com/antialias/soroban-vision/internal/capture"
	"github.com/antialias/soroban-vision/internal/plugin"
	"github.com/antialias/soroban-vision/internal/reader"
	"github.com/antialias/soroban-vision/internal/rectify"
	"github.com/antialias/soroban-vision/internal/stability"
	"github.com/antialias/soroban-vision/internal/store"
)

// Pipeline timing constants.
const (
	// IdleFPS is the frame rate when the board is unchanged.
	IdleFPS = 5
	// ActiveFPS is the frame rate while the board is being manipulated.
	ActiveFPS = 15
	// IdleTimeoutMs is the time in milliseconds to wait before switching back to idle mode.
	IdleTimeoutMs = 2000
	// ActivityThreshold is the changed-pixel percentage that counts as board activity.
	ActivityThreshold = 1.0
)

// Config holds configuration options for the application.
type Config struct {
	Store           *store.Store
	PluginDir       string
	CameraID        int
	OcclusionThresh float64
	MinStableFrames int
	ReaderCommand   string

	// MinConfidence drops readings below this confidence before they
	// reach the stability tracker. Zero means the reader default.
	MinConfidence float64
}

// App is the main application that reads abacus values from camera frames.
type App struct {
	config        Config
	minConfidence float64

	camera     capture.Camera
	occlusion  *capture.OcclusionDetector
	rectifier  *rectify.Rectifier
	reader     reader.ColumnReader
	tracker    *stability.Tracker
	pluginMgr  *plugin.Manager
	pluginExec *plugin.Executor

	grid      *calibration.Grid
	enabled   bool
	mu        sync.RWMutex
	stopCh    chan struct{}
	callbacks []func(stability.Reading)
}

// New creates a new App instance with the given configuration.
func New(config Config) *App {
	minFrames := config.MinStableFrames
	if minFrames <= 0 {
		minFrames = stability.DefaultMinConsecutiveFrames
	}

	a := &App{
		config:     config,
		camera:     capture.NewCamera(config.CameraID),
		occlusion:  capture.NewOcclusionDetector(config.OcclusionThresh),
		rectifier:  rectify.NewRectifier(),
		tracker:    stability.NewTracker(minFrames),
		pluginMgr:  plugin.NewManager(config.PluginDir),
		pluginExec: plugin.NewExecutor(5000), // 5 second timeout for plugin execution
		enabled:    false,
		stopCh:     nil,
	}

	// Try the column classifier first, fall back to the mock reader
	readerCfg := reader.DefaultConfig()
	if config.ReaderCommand != "" {
		readerCfg.Command = config.ReaderCommand
	}
	if config.MinConfidence > 0 {
		readerCfg.MinConfidence = config.MinConfidence
	}
	a.minConfidence = readerCfg.MinConfidence
	if cr, err := reader.NewClassifierReader(readerCfg); err == nil {
		a.reader = cr
		log.Println("Using column classifier")
	} else {
		log.Printf("Column classifier not available (%v), using mock reader", err)
		a.reader = reader.NewMockReader()
	}

	return a
}

// SetEnabled enables or disables reading.
func (a *App) SetEnabled(enabled bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.enabled = enabled
}

// IsEnabled returns whether reading is currently enabled.
func (a *App) IsEnabled() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.enabled
}

// SetReader sets the column reader implementation to use.
func (a *App) SetReader(r reader.ColumnReader) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.reader = r
}

// SetGrid installs a calibration grid, scopes occlusion detection to its
// region and resets the stability tracker.
func (a *App) SetGrid(grid calibration.Grid) {
	a.mu.Lock()
	defer a.mu.Unlock()

	g := grid
	a.grid = &g
	a.occlusion.SetRegion(grid.ROI.Rect())
	a.tracker.Reset()
	log.Printf("Calibration grid set: %d columns", grid.ColumnCount)
}

// Grid returns the current calibration grid, or nil if none is set.
func (a *App) Grid() *calibration.Grid {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.grid == nil {
		return nil
	}
	g := *a.grid
	return &g
}

// LoadCalibration loads the active calibration from the database, falling
// back to the most recent one. Returns store.ErrNotFound if none exists.
func (a *App) LoadCalibration() error {
	if a.config.Store == nil {
		return store.ErrNotFound
	}

	repo := a.config.Store.Calibrations()

	if id, err := a.config.Store.GetSetting(store.ActiveCalibrationKey); err == nil {
		if c, err := repo.GetByID(id); err == nil {
			a.SetGrid(c.Grid)
			return nil
		}
	}

	c, err := repo.Latest()
	if err != nil {
		return err
	}
	a.SetGrid(c.Grid)
	return nil
}

// OnReading registers a callback invoked whenever a new value stabilizes.
func (a *App) OnReading(fn func(stability.Reading)) {
	if fn == nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.callbacks = append(a.callbacks, fn)
}

// DiscoverPlugins scans the plugin directory and loads available plugins.
func (a *App) DiscoverPlugins() error {
	return a.pluginMgr.Discover()
}

// Start begins the reading pipeline.
func (a *App) Start() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	// Don't start if already running
	if a.stopCh != nil {
		return nil
	}

	// Open the camera
	if err := a.camera.Open(); err != nil {
		return err
	}

	// Set initial FPS to idle mode
	a.camera.SetFPS(IdleFPS)

	// Create stop channel and start the pipeline
	a.stopCh = make(chan struct{})
	go a.runPipeline()

	log.Println("Reading pipeline started")
	return nil
}

// Stop halts the reading pipeline and releases resources.
func (a *App) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()

	// Signal the pipeline to stop
	if a.stopCh != nil {
		close(a.stopCh)
		a.stopCh = nil
	}

	// Close the camera
	if err := a.camera.Close(); err != nil {
		log.Printf("Error closing camera: %v", err)
	}

	// Close occlusion detector
	a.occlusion.Close()

	// Close the column reader if set
	if a.reader != nil {
		if err := a.reader.Close(); err != nil {
			log.Printf("Error closing reader: %v", err)
		}
	}

	log.Println("Reading pipeline stopped")
}

// Camera returns the camera instance.
func (a *App) Camera() capture.Camera {
	return a.camera
}

// OcclusionDetector returns the occlusion detector instance.
func (a *App) OcclusionDetector() *capture.OcclusionDetector {
	return a.occlusion
}

// Tracker returns the stability tracker.
func (a *App) Tracker() *stability.Tracker {
	return a.tracker
}

// PluginManager returns the plugin manager.
func (a *App) PluginManager() *plugin.Manager {
	return a.pluginMgr
}

// Reader returns the column reader.
func (a *App) Reader() reader.ColumnReader {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.reader
}
