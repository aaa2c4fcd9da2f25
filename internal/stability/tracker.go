// Package stability debounces a high-rate stream of noisy per-frame abacus
// readings into a single confident value. A value is accepted only after a
// run of consecutive matching, hand-free frames; any mismatch or hand
// occlusion immediately un-stabilizes it.
package stability

import "sync"

// DefaultMinConsecutiveFrames is how many agreeing frames are required
// before a value is reported as stable.
const DefaultMinConsecutiveFrames = 10

// State describes where the tracker is in its consensus cycle.
type State int

const (
	// StateEmpty means no readable frame has arrived yet.
	StateEmpty State = iota
	// StateAccumulating means samples are arriving but consensus has not
	// been reached. Staying here indefinitely is valid steady state.
	StateAccumulating
	// StateStable means the last MinConsecutiveFrames samples agreed.
	StateStable
)

func (s State) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StateAccumulating:
		return "accumulating"
	case StateStable:
		return "stable"
	}
	return "unknown"
}

// Sample is one per-frame reading from the detector.
type Sample struct {
	Value        int
	Confidence   float64
	HandDetected bool
	TimestampMs  float64
}

// Reading is the tracker state exposed to consumers. StableValue is nil
// until consensus is reached and nil again the moment it breaks.
type Reading struct {
	StableValue       *int    `json:"stableValue"`
	Confidence        float64 `json:"confidence"`
	ConsecutiveFrames int     `json:"consecutiveFrames"`
	HandDetected      bool    `json:"handDetected"`
	State             string  `json:"state"`
}

// StatusText is the short label shown next to the UI status dot.
func (r Reading) StatusText() string {
	switch {
	case r.HandDetected:
		return "Hand detected"
	case r.StableValue != nil:
		return "Stable"
	default:
		return "Detecting..."
	}
}

// Tracker holds the rolling consensus state. Pushes are O(1) and intended
// for a single producer; the mutex only guards snapshot reads from other
// goroutines (status broadcast, UI).
type Tracker struct {
	minFrames int

	mu         sync.Mutex
	lastValue  int
	hasLast    bool
	matches    int
	confidence float64
	hand       bool
	stable     int
	hasStable  bool
	state      State
}

// NewTracker creates a tracker requiring minFrames consecutive agreeing
// samples. Values below 1 fall back to DefaultMinConsecutiveFrames.
func NewTracker(minFrames int) *Tracker {
	if minFrames < 1 {
		minFrames = DefaultMinConsecutiveFrames
	}
	return &Tracker{minFrames: minFrames, state: StateEmpty}
}

// Push feeds one sample through the state machine and returns the resulting
// reading. Samples must arrive in production order; consensus depends on
// strict consecutive-match counting.
func (t *Tracker) Push(s Sample) Reading {
	t.mu.Lock()
	defer t.mu.Unlock()

	// Confidence always reflects the most recent sample, never an average.
	t.confidence = s.Confidence
	t.hand = s.HandDetected

	if s.HandDetected {
		t.matches = 0
		t.hasStable = false
		if t.hasLast {
			t.state = StateAccumulating
		}
		return t.readingLocked()
	}

	if t.hasLast && s.Value == t.lastValue {
		t.matches++
	} else {
		t.lastValue = s.Value
		t.hasLast = true
		t.matches = 1
	}

	if t.matches >= t.minFrames {
		t.stable = s.Value
		t.hasStable = true
		t.state = StateStable
	} else {
		t.hasStable = false
		t.state = StateAccumulating
	}

	return t.readingLocked()
}

// Reading returns the current state without consuming a sample.
func (t *Tracker) Reading() Reading {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.readingLocked()
}

// Reset returns the tracker to its empty state.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lastValue = 0
	t.hasLast = false
	t.matches = 0
	t.confidence = 0
	t.hand = false
	t.hasStable = false
	t.state = StateEmpty
}

// MinConsecutiveFrames returns the configured consensus length.
func (t *Tracker) MinConsecutiveFrames() int { return t.minFrames }

func (t *Tracker) readingLocked() Reading {
	r := Reading{
		Confidence:        t.confidence,
		ConsecutiveFrames: t.matches,
		HandDetected:      t.hand,
		State:             t.state.String(),
	}
	if t.hasStable {
		v := t.stable
		r.StableValue = &v
	}
	return r
}
