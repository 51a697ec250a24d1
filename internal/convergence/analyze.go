package convergence

import (
	"errors"
	"fmt"

	"routeconv/internal/series"
)

// ErrMissingSeries is reported when a device has no sequence for the analyzed key.
var ErrMissingSeries = errors.New("no series for family")

// FamilyThreshold binds one family to its threshold pair.
type FamilyThreshold struct {
	Family    string
	Threshold Threshold
}

// Spec selects which sequences are analyzed and against which thresholds.
type Spec struct {
	Protocol string
	Kind     series.Kind
	Families []FamilyThreshold
}

// NewSpec pairs families with start/end lists index by index.
// Params: protocol name; kind analyzed counter; families ordered names; start/end threshold lists.
// Returns: spec or error when list lengths differ.
func NewSpec(protocol string, kind series.Kind, families []string, start, end []int64) (Spec, error) {
	if len(start) != len(families) || len(end) != len(families) {
		return Spec{}, fmt.Errorf(
			"threshold lists must match families (families=%d start=%d end=%d)",
			len(families),
			len(start),
			len(end),
		)
	}

	spec := Spec{
		Protocol: protocol,
		Kind:     kind,
		Families: make([]FamilyThreshold, 0, len(families)),
	}
	for idx, family := range families {
		spec.Families = append(spec.Families, FamilyThreshold{
			Family:    family,
			Threshold: Threshold{Start: float64(start[idx]), End: float64(end[idx])},
		})
	}
	return spec, nil
}

// Finding is the crossing outcome for one device and family.
type Finding struct {
	Device    string
	Family    string
	Key       series.MetricKey
	Threshold Threshold
	Result    Result
	// Err is nil on success, *NotFoundError or ErrMissingSeries otherwise.
	Err error
}

// Found reports whether a crossing was detected.
// Params: none.
// Returns: true when Err is nil.
func (f Finding) Found() bool {
	return f.Err == nil
}

// Analyze runs FindCrossing for every usable device and configured family.
// Params: run frozen collection run; spec analyzed key kind and thresholds.
// Returns: findings ordered by device then family; devices without samples are skipped.
func Analyze(run *series.Run, spec Spec) []Finding {
	devices := run.Usable()
	findings := make([]Finding, 0, len(devices)*len(spec.Families))

	for _, device := range devices {
		set, _ := run.Series(device)
		for _, family := range spec.Families {
			key := series.MetricKey{Protocol: spec.Protocol, Family: family.Family, Kind: spec.Kind}
			finding := Finding{
				Device:    device,
				Family:    family.Family,
				Key:       key,
				Threshold: family.Threshold,
			}

			points, ok := set.Points(key)
			if !ok {
				finding.Err = fmt.Errorf("%w %s", ErrMissingSeries, family.Family)
				findings = append(findings, finding)
				continue
			}

			finding.Result, finding.Err = FindCrossing(points, family.Threshold)
			findings = append(findings, finding)
		}
	}
	return findings
}
