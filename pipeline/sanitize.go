package pipeline

import (
	"encoding/json"
	"fmt"
	"strings"

	"mealsense"
)

// StripFences removes transport framing from raw inference output: a leading
// fenced-code marker (with or without a language tag) and a trailing closing
// marker, plus surrounding whitespace.
func StripFences(raw string) string {
	s := strings.TrimSpace(raw)
	if after, ok := strings.CutPrefix(s, "```"); ok {
		s = after
		// Optional language tag on the opening fence, e.g. ```json
		i := 0
		for i < len(s) && isTagChar(s[i]) {
			i++
		}
		s = s[i:]
	}
	s = strings.TrimSpace(s)
	if before, ok := strings.CutSuffix(s, "```"); ok {
		s = strings.TrimSpace(before)
	}
	return s
}

func isTagChar(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

// decodePayload strips framing and parses the remaining text into dst. A parse
// failure is a hard stage error; substituting an empty result here would mask
// upstream prompt/format drift.
func decodePayload(raw string, dst any) error {
	cleaned := StripFences(raw)
	if err := json.Unmarshal([]byte(cleaned), dst); err != nil {
		return fmt.Errorf("%w: unparseable payload: %v", mealsense.ErrInference, err)
	}
	return nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// sanitizeRange enforces the range invariants no matter what the model
// returned: min is floored at 0, max is floored at the adjusted min,
// confidence is clamped to [0,1] when present, and the unit defaults to grams.
func sanitizeRange(r mealsense.RangedValue) mealsense.RangedValue {
	if r.Min < 0 {
		r.Min = 0
	}
	if r.Max < r.Min {
		r.Max = r.Min
	}
	if r.Unit == "" {
		r.Unit = "g"
	}
	if r.Confidence != nil {
		c := clamp01(*r.Confidence)
		r.Confidence = &c
	}
	return r
}
