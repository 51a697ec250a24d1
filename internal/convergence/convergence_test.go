package convergence

import (
	"errors"
	"testing"
	"time"

	"routeconv/internal/series"
)

// pointsOf zips elapsed and values into points.
// Params: elapsed times; values sample values.
// Returns: ordered points.
func pointsOf(elapsed, values []float64) []series.Point {
	points := make([]series.Point, len(values))
	for i := range values {
		points[i] = series.Point{Elapsed: elapsed[i], Value: values[i]}
	}
	return points
}

// TestFindCrossing_IncreasingStartsAtBaselineSample verifies the baseline start and first-reach end.
// Params: testing.T for assertions.
// Returns: none.
func TestFindCrossing_IncreasingStartsAtBaselineSample(t *testing.T) {
	points := pointsOf([]float64{0, 1, 2, 3}, []float64{5, 5, 12, 20})

	result, err := FindCrossing(points, Threshold{Start: 10, End: 20})
	if err != nil {
		t.Fatalf("find crossing: %v", err)
	}
	if result.StartIndex != 1 || result.EndIndex != 3 {
		t.Fatalf("unexpected indices: start=%d end=%d", result.StartIndex, result.EndIndex)
	}
	if result.Elapsed != 2 || result.Rate != 5 {
		t.Fatalf("unexpected elapsed/rate: %v/%v", result.Elapsed, result.Rate)
	}
	if result.StartTime != 1 || result.EndTime != 3 {
		t.Fatalf("unexpected times: %v..%v", result.StartTime, result.EndTime)
	}

	again, err := FindCrossing(points, Threshold{Start: 10, End: 20})
	if err != nil || again != result {
		t.Fatalf("expected idempotent result, got %+v (%v)", again, err)
	}
}

// TestFindCrossing_DecreasingNeverStarts verifies the missing start boundary is reported.
// Params: testing.T for assertions.
// Returns: none.
func TestFindCrossing_DecreasingNeverStarts(t *testing.T) {
	points := pointsOf([]float64{0, 1, 2, 3}, []float64{5, 5, 12, 20})

	_, err := FindCrossing(points, Threshold{Start: 20, End: 5})
	var notFound *NotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
	if !notFound.StartMissing || notFound.EndMissing {
		t.Fatalf("expected only start missing, got %+v", notFound)
	}
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected errors.Is ErrNotFound")
	}
}

// TestFindCrossing_Decreasing verifies withdraw convergence.
// Params: testing.T for assertions.
// Returns: none.
func TestFindCrossing_Decreasing(t *testing.T) {
	points := pointsOf([]float64{0, 1.5, 3, 4.5, 6}, []float64{1000, 1000, 600, 100, 0})

	result, err := FindCrossing(points, Threshold{Start: 1000, End: 0})
	if err != nil {
		t.Fatalf("find crossing: %v", err)
	}
	if result.StartIndex != 1 || result.EndIndex != 4 {
		t.Fatalf("unexpected indices: %+v", result)
	}
	if result.Elapsed != 4.5 {
		t.Fatalf("unexpected elapsed: %v", result.Elapsed)
	}
	if want := 1000 / 4.5; result.Rate != want {
		t.Fatalf("unexpected rate: %v, want %v", result.Rate, want)
	}
}

// TestFindCrossing_EmptySeries verifies both boundaries are missing without panics.
// Params: testing.T for assertions.
// Returns: none.
func TestFindCrossing_EmptySeries(t *testing.T) {
	_, err := FindCrossing(nil, Threshold{Start: 0, End: 10})
	var notFound *NotFoundError
	if !errors.As(err, &notFound) || !notFound.StartMissing || !notFound.EndMissing {
		t.Fatalf("expected both boundaries missing, got %v", err)
	}
	if err.Error() != "threshold crossing not found: start threshold never reached, end threshold never reached" {
		t.Fatalf("unexpected message: %q", err.Error())
	}
}

// TestFindCrossing_ZeroIntervalHasZeroRate verifies the divide-by-zero guard.
// Params: testing.T for assertions.
// Returns: none.
func TestFindCrossing_ZeroIntervalHasZeroRate(t *testing.T) {
	points := pointsOf([]float64{0, 1}, []float64{10, 5})

	result, err := FindCrossing(points, Threshold{Start: 10, End: 10})
	if err != nil {
		t.Fatalf("find crossing: %v", err)
	}
	if result.StartIndex != 0 || result.EndIndex != 0 || result.Elapsed != 0 || result.Rate != 0 {
		t.Fatalf("unexpected result: %+v", result)
	}
}

// TestFindCrossing_FirstSampleAlreadyPastStart verifies a series starting past the baseline misses the start.
// Params: testing.T for assertions.
// Returns: none.
func TestFindCrossing_FirstSampleAlreadyPastStart(t *testing.T) {
	points := pointsOf([]float64{0, 1, 2}, []float64{50, 60, 70})

	_, err := FindCrossing(points, Threshold{Start: 10, End: 20})
	var notFound *NotFoundError
	if !errors.As(err, &notFound) || !notFound.StartMissing || notFound.EndMissing {
		t.Fatalf("expected only start missing, got %v", err)
	}
}

// TestFindCrossing_EndBeforeStartHasZeroRate verifies independent scans and the negative-interval guard.
// Params: testing.T for assertions.
// Returns: none.
func TestFindCrossing_EndBeforeStartHasZeroRate(t *testing.T) {
	points := pointsOf([]float64{0, 1, 2}, []float64{30, 5, 15})

	result, err := FindCrossing(points, Threshold{Start: 10, End: 20})
	if err != nil {
		t.Fatalf("find crossing: %v", err)
	}
	if result.StartIndex != 1 || result.EndIndex != 0 || result.Elapsed != -1 || result.Rate != 0 {
		t.Fatalf("unexpected result: %+v", result)
	}
}

// TestThreshold_Direction verifies derived direction.
// Params: testing.T for assertions.
// Returns: none.
func TestThreshold_Direction(t *testing.T) {
	if (Threshold{Start: 1, End: 2}).Direction() != Increasing {
		t.Fatalf("expected increasing")
	}
	if (Threshold{Start: 2, End: 2}).Direction() != Decreasing {
		t.Fatalf("expected equal thresholds to count as decreasing")
	}
}

// TestAnalyze_SkipsNoDataDevices verifies per-device/per-family findings.
// Params: testing.T for assertions.
// Returns: none.
func TestAnalyze_SkipsNoDataDevices(t *testing.T) {
	families := []string{"ipv4-unicast", "evpn"}
	keys := series.KeysFor("bgp", families)

	withData := series.NewSeriesSet(keys)
	for i, total := range []float64{0, 0, 400, 1000} {
		sample := series.SampleFromReading("bgp", float64(i), series.Reading{"ipv4-unicast": {Total: total, Active: total}})
		if err := withData.Append(sample); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	run := series.NewRun(
		time.Now(), time.Minute, time.Now(), series.StopDeadline,
		[]string{"srl1", "srl2"},
		map[string]*series.SeriesSet{"srl1": withData, "srl2": series.NewSeriesSet(keys)},
		map[string]series.Status{"srl1": {State: series.StateCompleted}, "srl2": {State: series.StateNoData}},
	)

	spec, err := NewSpec("bgp", series.KindTotal, families, []int64{0, 0}, []int64{1000, 50})
	if err != nil {
		t.Fatalf("new spec: %v", err)
	}

	findings := Analyze(run, spec)
	if len(findings) != 2 {
		t.Fatalf("expected findings for srl1 only, got %d", len(findings))
	}

	v4 := findings[0]
	if !v4.Found() || v4.Device != "srl1" || v4.Result.StartIndex != 1 || v4.Result.EndIndex != 3 {
		t.Fatalf("unexpected ipv4 finding: %+v", v4)
	}
	if v4.Result.Rate != 500 {
		t.Fatalf("unexpected ipv4 rate: %v", v4.Result.Rate)
	}

	evpn := findings[1]
	var notFound *NotFoundError
	if evpn.Found() || !errors.As(evpn.Err, &notFound) || !notFound.StartMissing || !notFound.EndMissing {
		t.Fatalf("unexpected evpn finding: %+v", evpn)
	}

	if _, err := NewSpec("bgp", series.KindTotal, families, []int64{0}, []int64{1, 2}); err == nil {
		t.Fatalf("expected mismatch error")
	}
}
