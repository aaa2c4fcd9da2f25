package main

import (
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/antialias/soroban-vision/internal/app"
	"github.com/antialias/soroban-vision/internal/calibration"
	"github.com/antialias/soroban-vision/internal/server"
	"github.com/antialias/soroban-vision/internal/stability"
	"github.com/antialias/soroban-vision/internal/store"
	"github.com/antialias/soroban-vision/internal/tray"
)

const addr = ":8080"

func main() {
	fmt.Println("Soroban Vision - Abacus Reader")

	// Initialize the store
	homeDir, err := os.UserHomeDir()
	if err != nil {
		log.Fatalf("Failed to get home directory: %v", err)
	}

	dataDir := filepath.Join(homeDir, ".sorobanvision")
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		log.Fatalf("Failed to create data directory: %v", err)
	}

	dbPath := filepath.Join(dataDir, "sorobanvision.db")
	st, err := store.New(dbPath)
	if err != nil {
		log.Fatalf("Failed to initialize store: %v", err)
	}
	defer st.Close()

	// Build the reading pipeline
	a := app.New(app.Config{
		Store:     st,
		PluginDir: filepath.Join(dataDir, "plugins"),
		CameraID:  0,
	})

	if err := a.DiscoverPlugins(); err != nil {
		log.Printf("Plugin discovery failed: %v", err)
	}

	if err := a.LoadCalibration(); err != nil {
		log.Printf("No stored calibration, calibrate via the web UI to start reading")
	}

	if err := a.Start(); err != nil {
		log.Printf("Camera unavailable (%v), running without the reading pipeline", err)
	}
	defer a.Stop()

	// The calibration editor works in camera pixel space
	width, height := a.Camera().Dimensions()
	editor, err := calibration.NewEditor(float64(width), float64(height), 4, a.Grid())
	if err != nil {
		log.Fatalf("Failed to create calibration editor: %v", err)
	}

	// Find web directory
	webDir := findWebDir()
	if webDir != "" {
		fmt.Printf("Serving static files from: %s\n", webDir)
	}

	// Configure and start server
	srv := server.New(server.Config{
		StaticDir:    webDir,
		Store:        st,
		Camera:       a.Camera(),
		Editor:       editor,
		Readings:     a.Tracker(),
		Grid:         a.Grid,
		OnCalibrated: a.SetGrid,
		OnActivated: func(c *store.Calibration) {
			a.SetGrid(c.Grid)
		},
	})

	go func() {
		fmt.Printf("Starting server on %s\n", addr)
		if err := srv.ListenAndServe(addr); err != nil {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wire up the tray
	t := tray.New()
	t.OnToggle(a.SetEnabled)
	t.OnCalibrate(func() {
		openBrowser("http://localhost" + addr)
	})
	t.OnQuit(a.Stop)
	a.OnReading(func(r stability.Reading) {
		t.SetLastReading(r.StableValue)
	})

	a.SetEnabled(true)

	// Blocks until quit
	t.Run()
}

// openBrowser opens the URL in the default browser.
func openBrowser(url string) {
	if err := exec.Command("open", url).Start(); err != nil {
		log.Printf("Failed to open browser: %v", err)
	}
}

// findWebDir searches for the web directory in common locations.
// It checks: "web", "../web", "../../web", and ~/.sorobanvision/web.
// Returns the first existing directory or empty string if none found.
func findWebDir() string {
	// Check relative paths from current working directory
	relativePaths := []string{"web", "../web", "../../web"}
	for _, p := range relativePaths {
		if info, err := os.Stat(p); err == nil && info.IsDir() {
			absPath, err := filepath.Abs(p)
			if err == nil {
				return absPath
			}
			return p
		}
	}

	// Check home directory
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	homeWebDir := filepath.Join(homeDir, ".sorobanvision", "web")
	if info, err := os.Stat(homeWebDir); err == nil && info.IsDir() {
		return homeWebDir
	}

	return ""
}
