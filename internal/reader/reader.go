// Package reader defines the boundary to the column digit detector: given
// per-column rectified rasters, report one digit per abacus column with a
// confidence. Bead-detection internals live behind this interface.
package reader

import "image"

// Reading is one per-frame result from the detector.
type Reading struct {
	// Digits holds one value per column, leftmost column first.
	Digits []int `json:"digits"`
	// Confidence is the detector's overall confidence in [0,1].
	Confidence float64 `json:"confidence"`
}

// ColumnReader analyzes rectified column images and reports their digits.
type ColumnReader interface {
	// ReadColumns analyzes one rectified raster per column. The rasters are
	// only valid for the duration of the call.
	ReadColumns(columns []image.Image) (Reading, error)

	// Close releases any resources held by the reader.
	Close() error
}

// Config holds configuration options for digit reading.
type Config struct {
	// Command is the external classifier executable; empty means auto-detect.
	Command string

	// MinConfidence is the minimum per-frame confidence to forward a
	// reading downstream (0.0-1.0).
	MinConfidence float64
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() Config {
	return Config{
		MinConfidence: 0.5,
	}
}

// Value folds per-column digits into the integer shown on the board, with
// the leftmost column as the most significant digit. Out-of-range digits
// are clamped so one bad column cannot produce a wild value.
func Value(digits []int) int {
	value := 0
	for _, d := range digits {
		if d < 0 {
			d = 0
		}
		if d > 9 {
			d = 9
		}
		value = value*10 + d
	}
	return value
}
