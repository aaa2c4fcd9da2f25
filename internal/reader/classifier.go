package reader

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"
)

// classifierIdleTimeout shuts the subprocess down after a period without
// frames, e.g. while the user is only calibrating.
const classifierIdleTimeout = 30 * time.Second

// ClassifierReader implements ColumnReader using an external classifier
// subprocess. Each request writes the column count followed by one
// length-prefixed JPEG per column to stdin; the service answers with a
// single JSON line carrying the digits and confidence.
type ClassifierReader struct {
	config    Config
	cmd       *exec.Cmd
	stdin     io.WriteCloser
	stdout    *bufio.Reader
	mu        sync.Mutex
	started   bool
	idleTimer *time.Timer
}

// NewClassifierReader creates a classifier-backed reader. The subprocess is
// started lazily on the first frame.
func NewClassifierReader(config Config) (*ClassifierReader, error) {
	if config.Command == "" {
		config.Command = findClassifierScript()
	}
	if config.Command == "" {
		return nil, fmt.Errorf("column_classifier.py not found")
	}

	return &ClassifierReader{
		config: config,
	}, nil
}

// ReadColumns sends the column rasters to the classifier and parses its
// response.
func (r *ClassifierReader) ReadColumns(columns []image.Image) (Reading, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.ensureStarted(); err != nil {
		return Reading{}, err
	}

	count := make([]byte, 4)
	binary.BigEndian.PutUint32(count, uint32(len(columns)))
	if _, err := r.stdin.Write(count); err != nil {
		return Reading{}, fmt.Errorf("write column count: %w", err)
	}

	var buf bytes.Buffer
	for i, col := range columns {
		buf.Reset()
		if err := jpeg.Encode(&buf, col, nil); err != nil {
			return Reading{}, fmt.Errorf("encode column %d: %w", i, err)
		}

		length := make([]byte, 4)
		binary.BigEndian.PutUint32(length, uint32(buf.Len()))
		if _, err := r.stdin.Write(length); err != nil {
			return Reading{}, fmt.Errorf("write column %d length: %w", i, err)
		}
		if _, err := r.stdin.Write(buf.Bytes()); err != nil {
			return Reading{}, fmt.Errorf("write column %d data: %w", i, err)
		}
	}

	line, err := r.stdout.ReadString('\n')
	if err != nil {
		return Reading{}, fmt.Errorf("read response: %w", err)
	}

	var response struct {
		Digits     []int   `json:"digits"`
		Confidence float64 `json:"confidence"`
	}
	if err := json.Unmarshal([]byte(line), &response); err != nil {
		return Reading{}, fmt.Errorf("parse response: %w", err)
	}

	r.resetIdleTimer()

	return Reading{Digits: response.Digits, Confidence: response.Confidence}, nil
}

// Close shuts down the classifier subprocess.
func (r *ClassifierReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.shutdown()
}

func (r *ClassifierReader) ensureStarted() error {
	if r.started {
		return nil
	}

	pythonPath := findVenvPython()
	if pythonPath == "" {
		pythonPath = "python3"
	}

	r.cmd = exec.Command(pythonPath, r.config.Command)

	stdin, err := r.cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("create stdin pipe: %w", err)
	}

	stdout, err := r.cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("create stdout pipe: %w", err)
	}

	// Capture stderr for debugging
	r.cmd.Stderr = os.Stderr

	if err := r.cmd.Start(); err != nil {
		return fmt.Errorf("start classifier service: %w", err)
	}

	r.stdin = stdin
	r.stdout = bufio.NewReader(stdout)
	r.started = true

	return nil
}

func (r *ClassifierReader) shutdown() error {
	if !r.started {
		return nil
	}

	if r.idleTimer != nil {
		r.idleTimer.Stop()
		r.idleTimer = nil
	}

	if r.stdin != nil {
		r.stdin.Close()
	}

	err := r.cmd.Wait()
	r.started = false
	r.cmd = nil
	r.stdin = nil
	r.stdout = nil

	return err
}

func (r *ClassifierReader) resetIdleTimer() {
	if r.idleTimer != nil {
		r.idleTimer.Stop()
	}
	r.idleTimer = time.AfterFunc(classifierIdleTimeout, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.shutdown()
	})
}

func findClassifierScript() string {
	execPath, err := os.Executable()
	var execDir string
	if err == nil {
		execDir = filepath.Dir(execPath)
	}

	candidates := []string{
		"scripts/column_classifier.py",
		"../scripts/column_classifier.py",
		filepath.Join(execDir, "scripts/column_classifier.py"),
		filepath.Join(os.Getenv("HOME"), ".sorobanvision/scripts/column_classifier.py"),
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			absPath, err := filepath.Abs(path)
			if err == nil {
				return absPath
			}
			return path
		}
	}
	return ""
}

// findVenvPython looks for a Python interpreter in a virtual environment.
func findVenvPython() string {
	execPath, err := os.Executable()
	if err != nil {
		return ""
	}
	execDir := filepath.Dir(execPath)

	candidates := []string{
		"venv/bin/python",
		"../venv/bin/python",
		filepath.Join(execDir, "venv/bin/python"),
		filepath.Join(os.Getenv("HOME"), ".sorobanvision/venv/bin/python"),
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			absPath, err := filepath.Abs(path)
			if err == nil {
				return absPath
			}
			return path
		}
	}
	return ""
}
