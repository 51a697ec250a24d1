package series

import (
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrFrozen is returned when appending to a frozen series set.
	ErrFrozen = errors.New("series set is frozen")
	// ErrNotMonotonic is returned when elapsed time does not strictly increase.
	ErrNotMonotonic = errors.New("elapsed time must strictly increase")
	// ErrUnknownKey is returned when a sample carries a key outside the fixed key set.
	ErrUnknownKey = errors.New("unknown metric key")
)

// SeriesSet stores one device's index-aligned sequences.
// Params: fixed key list; exactly one poller appends until Freeze.
// Returns: per-device time series container.
type SeriesSet struct {
	// mu orders a late writer from an abandoned poller against Freeze.
	mu      sync.Mutex
	keys    []MetricKey
	index   map[MetricKey]int
	elapsed []float64
	values  [][]float64
	frozen  bool
}

// NewSeriesSet creates an empty set with a fixed key list.
// Params: keys ordered metric keys; duplicates are dropped.
// Returns: empty series set.
func NewSeriesSet(keys []MetricKey) *SeriesSet {
	set := &SeriesSet{
		keys:  make([]MetricKey, 0, len(keys)),
		index: make(map[MetricKey]int, len(keys)),
	}
	for _, key := range keys {
		if _, exists := set.index[key]; exists {
			continue
		}
		set.index[key] = len(set.keys)
		set.keys = append(set.keys, key)
	}
	set.values = make([][]float64, len(set.keys))
	return set
}

// Append commits one sample to every sequence or to none.
// Params: sample with elapsed seconds and values; missing keys are recorded as 0.
// Returns: ErrFrozen, ErrNotMonotonic or ErrUnknownKey when nothing was committed.
func (s *SeriesSet) Append(sample Sample) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.frozen {
		return ErrFrozen
	}
	if sample.Elapsed < 0 {
		return fmt.Errorf("%w: negative elapsed %v", ErrNotMonotonic, sample.Elapsed)
	}
	if n := len(s.elapsed); n > 0 && sample.Elapsed <= s.elapsed[n-1] {
		return fmt.Errorf("%w: %v after %v", ErrNotMonotonic, sample.Elapsed, s.elapsed[n-1])
	}
	for key := range sample.Values {
		if _, ok := s.index[key]; !ok {
			return fmt.Errorf("%w: %s", ErrUnknownKey, key)
		}
	}

	s.elapsed = append(s.elapsed, sample.Elapsed)
	for idx, key := range s.keys {
		s.values[idx] = append(s.values[idx], sample.Values[key])
	}
	return nil
}

// Freeze makes the set read-only.
// Params: none.
// Returns: none.
func (s *SeriesSet) Freeze() {
	s.mu.Lock()
	s.frozen = true
	s.mu.Unlock()
}

// Frozen reports whether Freeze was called.
// Params: none.
// Returns: frozen flag.
func (s *SeriesSet) Frozen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frozen
}

// Len returns number of committed samples.
// Params: none.
// Returns: sequence length shared by all keys.
func (s *SeriesSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.elapsed)
}

// Keys returns the fixed key list in column order.
// Params: none.
// Returns: copy of keys.
func (s *SeriesSet) Keys() []MetricKey {
	return append([]MetricKey(nil), s.keys...)
}

// Elapsed returns elapsed seconds of every committed sample.
// Params: none.
// Returns: copy of elapsed sequence.
func (s *SeriesSet) Elapsed() []float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]float64(nil), s.elapsed...)
}

// Values returns the value sequence for key.
// Params: key metric key.
// Returns: copy of values and false when key is not part of the set.
func (s *SeriesSet) Values(key MetricKey) ([]float64, bool) {
	idx, ok := s.index[key]
	if !ok {
		return nil, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]float64(nil), s.values[idx]...), true
}

// Points returns (elapsed, value) pairs for key.
// Params: key metric key.
// Returns: ordered points and false when key is not part of the set.
func (s *SeriesSet) Points(key MetricKey) ([]Point, bool) {
	idx, ok := s.index[key]
	if !ok {
		return nil, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	points := make([]Point, len(s.elapsed))
	for i, elapsed := range s.elapsed {
		points[i] = Point{Elapsed: elapsed, Value: s.values[idx][i]}
	}
	return points, true
}
