package agent

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/hupe1980/invoicemesh/core"
)

// ErrNotJSONObject is returned when a response decodes to something other than an object.
var ErrNotJSONObject = errors.New("response is not a JSON object")

// StripCodeFences removes a surrounding markdown code fence (``` or ```json).
func StripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}

	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		// drop the info string ("json", "JSON", ...)
		if info := strings.TrimSpace(s[:nl]); !strings.ContainsAny(info, "{[") {
			s = s[nl+1:]
		}
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")

	return strings.TrimSpace(s)
}

// ParseResponse decodes a model response into an open field mapping.
// Text surrounding the outermost JSON object is tolerated.
func ParseResponse(raw string) (core.ExtractedData, error) {
	s := StripCodeFences(raw)
	if s == "" {
		return nil, errors.New("empty response")
	}

	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		start, end := strings.IndexByte(s, '{'), strings.LastIndexByte(s, '}')
		if start < 0 || end <= start {
			return nil, fmt.Errorf("decode response: %w", err)
		}
		if err2 := json.Unmarshal([]byte(s[start:end+1]), &v); err2 != nil {
			return nil, fmt.Errorf("decode response: %w", err)
		}
	}

	obj, ok := v.(map[string]any)
	if !ok {
		return nil, ErrNotJSONObject
	}
	return core.ExtractedData(obj), nil
}

// takeConfidence removes the model-reported confidence from data and returns
// it clamped to [0,100]. ok is false when the field is absent or not numeric.
func takeConfidence(data core.ExtractedData) (int, bool) {
	v, present := data[core.FieldConfidence]
	if !present {
		return 0, false
	}
	delete(data, core.FieldConfidence)

	var f float64
	switch t := v.(type) {
	case float64:
		f = t
	case int:
		f = float64(t)
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSuffix(strings.TrimSpace(t), "%"), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) {
		return 0, false
	}
	// fractions such as 0.92 are read as percentages
	if f > 0 && f < 1 {
		f *= 100
	}
	// clamp before the int conversion; out-of-range floats do not convert
	f = math.Max(0, math.Min(100, f))
	return ClampConfidence(int(math.Round(f))), true
}

// takeConflicts removes the model-reported conflict list from data.
func takeConflicts(data core.ExtractedData) []string {
	v, present := data[core.FieldConflicts]
	if !present {
		return nil
	}
	delete(data, core.FieldConflicts)

	var out []string
	switch t := v.(type) {
	case string:
		if s := strings.TrimSpace(t); s != "" {
			out = append(out, s)
		}
	case []any:
		for _, item := range t {
			if s := conflictText(item); s != "" {
				out = append(out, s)
			}
		}
	case map[string]any:
		if s := conflictText(t); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func conflictText(item any) string {
	switch t := item.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case map[string]any:
		field, _ := t["field"].(string)
		desc, _ := t["description"].(string)
		if desc == "" {
			desc, _ = t["message"].(string)
		}
		switch {
		case field != "" && desc != "":
			return field + ": " + desc
		case desc != "":
			return desc
		}
		b, _ := json.Marshal(t)
		return string(b)
	default:
		return fmt.Sprint(t)
	}
}
