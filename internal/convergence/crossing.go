package convergence

import (
	"errors"
	"math"
	"strings"

	"routeconv/internal/series"
)

// ErrNotFound matches every *NotFoundError.
var ErrNotFound = errors.New("threshold crossing not found")

// Direction tells whether a crossing goes up or down.
type Direction string

const (
	// Increasing means Start < End.
	Increasing Direction = "increasing"
	// Decreasing means Start >= End.
	Decreasing Direction = "decreasing"
)

// Threshold is one (start, end) pair for one family.
type Threshold struct {
	Start float64
	End   float64
}

// Direction derives crossing direction from the pair.
// Params: none.
// Returns: Increasing when Start < End, otherwise Decreasing.
func (t Threshold) Direction() Direction {
	if t.Start < t.End {
		return Increasing
	}
	return Decreasing
}

// Result is a detected crossing interval.
type Result struct {
	StartIndex int
	EndIndex   int
	StartTime  float64
	EndTime    float64
	Elapsed    float64
	Rate       float64
}

// NotFoundError reports which boundary was never reached.
type NotFoundError struct {
	StartMissing bool
	EndMissing   bool
}

// Error names the missing boundaries.
// Params: none.
// Returns: error text.
func (e *NotFoundError) Error() string {
	var missing []string
	if e.StartMissing {
		missing = append(missing, "start threshold never reached")
	}
	if e.EndMissing {
		missing = append(missing, "end threshold never reached")
	}
	return "threshold crossing not found: " + strings.Join(missing, ", ")
}

// Is lets errors.Is match ErrNotFound.
// Params: target compared error.
// Returns: true for ErrNotFound.
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// FindCrossing scans points once for the threshold crossing.
// The start index is the last baseline sample before the first sample past Start;
// a series that never leaves the baseline from a baseline sample misses the start.
// Params: points ordered (elapsed, value) pairs; th start/end pair.
// Returns: crossing result or *NotFoundError; an empty series misses both boundaries.
func FindCrossing(points []series.Point, th Threshold) (Result, error) {
	increasing := th.Direction() == Increasing

	startIdx, endIdx := -1, -1
	for i, point := range points {
		if startIdx < 0 && i > 0 &&
			passedStart(point.Value, th.Start, increasing) &&
			!passedStart(points[i-1].Value, th.Start, increasing) {
			startIdx = i - 1
		}
		if endIdx < 0 && reachedEnd(point.Value, th.End, increasing) {
			endIdx = i
		}
		if startIdx >= 0 && endIdx >= 0 {
			break
		}
	}

	if startIdx < 0 || endIdx < 0 {
		return Result{}, &NotFoundError{StartMissing: startIdx < 0, EndMissing: endIdx < 0}
	}

	result := Result{
		StartIndex: startIdx,
		EndIndex:   endIdx,
		StartTime:  points[startIdx].Elapsed,
		EndTime:    points[endIdx].Elapsed,
	}
	result.Elapsed = result.EndTime - result.StartTime
	if result.Elapsed > 0 {
		result.Rate = math.Abs(th.End-th.Start) / result.Elapsed
	}
	return result, nil
}

// passedStart reports whether value left the start baseline.
// Params: value sample; start threshold; increasing direction flag.
// Returns: true when value is strictly past start.
func passedStart(value, start float64, increasing bool) bool {
	if increasing {
		return value > start
	}
	return value < start
}

// reachedEnd reports whether value reached the end target.
// Params: value sample; end threshold; increasing direction flag.
// Returns: true when value is at or past end.
func reachedEnd(value, end float64, increasing bool) bool {
	if increasing {
		return value >= end
	}
	return value <= end
}
