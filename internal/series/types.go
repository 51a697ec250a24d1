package series

import (
	"fmt"
	"strings"
)

// ElapsedColumn is the label of the elapsed-time sequence in exported tables.
const ElapsedColumn = "Elapsed Time"

// Kind identifies which route counter a MetricKey refers to.
// Params: none.
// Returns: enum value for total/active counts.
type Kind string

const (
	// KindTotal is the received route count.
	KindTotal Kind = "total"
	// KindActive is the active (best, installed) route count.
	KindActive Kind = "active"
)

// ParseKind converts a config metric name into Kind.
// Params: value "total" or "active".
// Returns: kind or error for unknown names.
func ParseKind(value string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(value))) {
	case KindTotal:
		return KindTotal, nil
	case KindActive:
		return KindActive, nil
	default:
		return "", fmt.Errorf("unknown metric kind %q", value)
	}
}

// MetricKey identifies one measured sequence for one family and kind.
// Params: protocol name, family name and counter kind.
// Returns: comparable key usable in maps.
type MetricKey struct {
	Protocol string
	Family   string
	Kind     Kind
}

// String renders the column label, e.g. "ipv4-unicast BGP Total Routes".
// Params: none.
// Returns: stable human-readable key label.
func (k MetricKey) String() string {
	kind := "Total"
	if k.Kind == KindActive {
		kind = "Active"
	}
	return fmt.Sprintf("%s %s %s Routes", k.Family, strings.ToUpper(k.Protocol), kind)
}

// KeysFor builds the fixed key list for families, total before active per family.
// Params: protocol name; families ordered family list.
// Returns: ordered metric keys.
func KeysFor(protocol string, families []string) []MetricKey {
	keys := make([]MetricKey, 0, len(families)*2)
	for _, family := range families {
		keys = append(keys,
			MetricKey{Protocol: protocol, Family: family, Kind: KindTotal},
			MetricKey{Protocol: protocol, Family: family, Kind: KindActive},
		)
	}
	return keys
}

// Counts holds route counters for one family.
type Counts struct {
	Total  float64
	Active float64
}

// Reading is one decoded MetricSource response: family -> counters.
type Reading map[string]Counts

// Sample is one committed observation for one device.
type Sample struct {
	Elapsed float64
	Values  map[MetricKey]float64
}

// SampleFromReading converts a reading into a sample for protocol.
// Params: protocol name; elapsed seconds since run start; reading decoded counters.
// Returns: sample with total/active values per family.
func SampleFromReading(protocol string, elapsed float64, reading Reading) Sample {
	values := make(map[MetricKey]float64, len(reading)*2)
	for family, counts := range reading {
		values[MetricKey{Protocol: protocol, Family: family, Kind: KindTotal}] = counts.Total
		values[MetricKey{Protocol: protocol, Family: family, Kind: KindActive}] = counts.Active
	}
	return Sample{Elapsed: elapsed, Values: values}
}

// Point is one (elapsed, value) pair of a single sequence.
type Point struct {
	Elapsed float64
	Value   float64
}
