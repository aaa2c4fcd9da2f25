package reader

import "image"

// MockReader is a test implementation of the ColumnReader interface.
// It plays back a scripted sequence of readings.
type MockReader struct {
	readings []Reading
	index    int
	err      error
}

// NewMockReader creates a new MockReader instance.
func NewMockReader() *MockReader {
	return &MockReader{}
}

// SetReadings sets the sequence returned by ReadColumns. The last reading
// repeats once the sequence is exhausted.
func (m *MockReader) SetReadings(readings []Reading) {
	m.readings = readings
	m.index = 0
}

// SetError sets the error that will be returned by ReadColumns.
func (m *MockReader) SetError(err error) {
	m.err = err
}

// ReadColumns returns the next scripted reading or error.
func (m *MockReader) ReadColumns(columns []image.Image) (Reading, error) {
	if m.err != nil {
		return Reading{}, m.err
	}
	if len(m.readings) == 0 {
		return Reading{Digits: make([]int, len(columns)), Confidence: 1}, nil
	}
	r := m.readings[m.index]
	if m.index < len(m.readings)-1 {
		m.index++
	}
	return r, nil
}

// Close is a no-op for the mock reader.
func (m *MockReader) Close() error {
	return nil
}
