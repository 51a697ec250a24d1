package match

import "strings"

// Pattern is a compiled '*' glob used to match YANG identity names.
// Params: literal segments between wildcards plus anchor flags.
// Returns: reusable matcher.
type Pattern struct {
	segments []string
	prefix   bool
	suffix   bool
	any      bool
}

// Compile compiles a '*' glob.
// Params: pattern text; surrounding spaces are ignored.
// Returns: pattern and false when pattern is empty.
func Compile(pattern string) (Pattern, bool) {
	text := strings.TrimSpace(pattern)
	switch text {
	case "":
		return Pattern{}, false
	case "*":
		return Pattern{any: true}, true
	}

	return Pattern{
		segments: strings.Split(text, "*"),
		prefix:   !strings.HasPrefix(text, "*"),
		suffix:   !strings.HasSuffix(text, "*"),
	}, true
}

// Match reports whether value satisfies the pattern.
// Params: value candidate name.
// Returns: true on match.
func (p Pattern) Match(value string) bool {
	if p.any {
		return true
	}
	if len(p.segments) == 0 {
		return false
	}

	middle := p.segments
	if p.prefix {
		if !strings.HasPrefix(value, middle[0]) {
			return false
		}
		value = value[len(middle[0]):]
		middle = middle[1:]
	}

	var tail string
	if p.suffix && len(middle) > 0 {
		tail = middle[len(middle)-1]
		middle = middle[:len(middle)-1]
	}

	for _, segment := range middle {
		if segment == "" {
			continue
		}
		at := strings.Index(value, segment)
		if at < 0 {
			return false
		}
		value = value[at+len(segment):]
	}

	if !p.suffix {
		return true
	}
	if tail == "" {
		return value == ""
	}
	return strings.HasSuffix(value, tail)
}

// Glob evaluates pattern against value without keeping the compiled form.
// Params: pattern '*' glob; value candidate name.
// Returns: true on match.
func Glob(pattern, value string) bool {
	compiled, ok := Compile(pattern)
	return ok && compiled.Match(value)
}
