package source

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/goccy/go-json"

	"routeconv/internal/match"
	"routeconv/internal/series"
)

const (
	afiSafiList  = "afi-safi"
	afiSafiName  = "afi-safi-name"
	activeRoutes = "active-routes"
	totalRoutes  = "received-routes"
)

var errNoAFISAFI = errors.New("response carries no afi-safi data")

// afiSafiDecoder folds afi-safi JSON fragments into one typed reading.
// Params: matchers one per configured family.
// Returns: reading with every configured family present.
type afiSafiDecoder struct {
	matchers []match.FamilyMatcher
	reading  series.Reading
	entries  int
}

// newAFISAFIDecoder creates a decoder for families.
// Params: families configured family names.
// Returns: decoder with all families zeroed.
func newAFISAFIDecoder(families []string) *afiSafiDecoder {
	decoder := &afiSafiDecoder{
		matchers: make([]match.FamilyMatcher, 0, len(families)),
		reading:  make(series.Reading, len(families)),
	}
	for _, family := range families {
		decoder.matchers = append(decoder.matchers, match.NewFamilyMatcher(family))
		decoder.reading[family] = series.Counts{}
	}
	return decoder
}

// DecodeAFISAFI decodes one afi-safi JSON value into a reading.
// Params: families configured family names; payload list, wrapper object or single entry.
// Returns: reading or decode error.
func DecodeAFISAFI(families []string, payload []byte) (series.Reading, error) {
	decoder := newAFISAFIDecoder(families)
	if err := decoder.add(payload, ""); err != nil {
		return nil, err
	}
	return decoder.result()
}

// add decodes one JSON fragment.
// Params: payload JSON value; path update path used to recover a keyed afi-safi-name.
// Returns: decode error for malformed JSON or unknown shapes.
func (d *afiSafiDecoder) add(payload []byte, path string) error {
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()

	var value any
	if err := dec.Decode(&value); err != nil {
		return fmt.Errorf("decode afi-safi json: %w", err)
	}

	entries, err := afiSafiEntries(value)
	if err != nil {
		return err
	}

	hint := keyFromPath(path, afiSafiName)
	for _, entry := range entries {
		name := stringField(entry, afiSafiName)
		if name == "" {
			name = hint
		}
		d.entries++
		for _, matcher := range d.matchers {
			if !matcher.Match(name) {
				continue
			}
			d.reading[matcher.Family()] = series.Counts{
				Total:  numberField(entry, totalRoutes),
				Active: numberField(entry, activeRoutes),
			}
		}
	}
	return nil
}

// result returns the folded reading.
// Params: none.
// Returns: reading or errNoAFISAFI when no entry was seen.
func (d *afiSafiDecoder) result() (series.Reading, error) {
	if d.entries == 0 {
		return nil, errNoAFISAFI
	}
	return d.reading, nil
}

// afiSafiEntries normalizes the three accepted response shapes into entry objects.
// Params: value decoded JSON.
// Returns: entries or error for unknown shapes.
func afiSafiEntries(value any) ([]map[string]any, error) {
	switch typed := value.(type) {
	case []any:
		entries := make([]map[string]any, 0, len(typed))
		for idx, item := range typed {
			entry, ok := item.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("afi-safi[%d] is %T, want object", idx, item)
			}
			entries = append(entries, stripPrefixes(entry))
		}
		return entries, nil
	case map[string]any:
		object := stripPrefixes(typed)
		if nested, ok := object[afiSafiList]; ok {
			return afiSafiEntries(nested)
		}
		if _, ok := object[afiSafiName]; ok {
			return []map[string]any{object}, nil
		}
		if _, ok := object[totalRoutes]; ok {
			return []map[string]any{object}, nil
		}
		return nil, fmt.Errorf("object without %s container", afiSafiList)
	default:
		return nil, fmt.Errorf("afi-safi value is %T, want list or object", value)
	}
}

// stripPrefixes removes YANG module prefixes from object keys.
// Params: object decoded JSON object.
// Returns: object with bare keys.
func stripPrefixes(object map[string]any) map[string]any {
	out := make(map[string]any, len(object))
	for key, value := range object {
		if _, bare, ok := strings.Cut(key, ":"); ok {
			key = bare
		}
		out[key] = value
	}
	return out
}

// stringField reads a string leaf.
// Params: entry object; key leaf name.
// Returns: string or empty value.
func stringField(entry map[string]any, key string) string {
	value, _ := entry[key].(string)
	return strings.TrimSpace(value)
}

// numberField reads a counter leaf that may be a JSON number or numeric string.
// Only unsigned decimal integers are counters; NaN, Inf, exponents, fractions and signs read as 0.
// Params: entry object; key leaf name.
// Returns: value or 0 for missing and non-numeric leaves.
func numberField(entry map[string]any, key string) float64 {
	var text string
	switch typed := entry[key].(type) {
	case json.Number:
		text = typed.String()
	case string:
		text = strings.TrimSpace(typed)
	default:
		return 0
	}

	parsed, err := strconv.ParseUint(text, 10, 64)
	if err != nil {
		return 0
	}
	return float64(parsed)
}

// keyFromPath extracts a list key value from a textual path.
// Params: path like ".../afi-safi[afi-safi-name=ipv4-unicast]"; key list key name.
// Returns: key value or empty string.
func keyFromPath(path, key string) string {
	marker := "[" + key + "="
	start := strings.LastIndex(path, marker)
	if start < 0 {
		return ""
	}
	rest := path[start+len(marker):]
	end := strings.IndexByte(rest, ']')
	if end < 0 {
		return ""
	}
	return rest[:end]
}
