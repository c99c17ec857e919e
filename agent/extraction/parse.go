package extraction

import (
	"strconv"
	"strings"

	"github.com/bytedance/sonic"

	contractx "github.com/tanpawarit/pharmacy-concierge/agent/contract"
)

const defaultConfidence = 1.0

// emptyMarkers are values a model uses to say "not mentioned".
var emptyMarkers = map[string]bool{
	"":        true,
	"null":    true,
	"nil":     true,
	"none":    true,
	"unknown": true,
	"n/a":     true,
	"na":      true,
	"-":       true,
}

// Parse turns raw backend output into a result for schema. It never fails:
// output it cannot understand yields a degraded result with no fields.
func Parse(schema contractx.ExtractionSchema, raw string) contractx.ExtractionResult {
	result := contractx.ExtractionResult{
		Schema: schema.Name,
		Fields: map[string]contractx.FieldValue{},
		Raw:    raw,
	}

	body := stripFences(raw)
	pairs, ok := parseJSONObject(body)
	if !ok && !strings.ContainsRune(body, '{') {
		// a broken JSON object is never re-read as key/value lines
		pairs, ok = parseLines(schema, body)
	}
	if !ok {
		result.Degraded = true
		result.Missing = schema.RequiredFields()
		return result
	}

	for name, v := range pairs {
		desc, known := schema.Field(name)
		if !known {
			continue
		}
		fv, keep := normalize(desc, v)
		if keep {
			result.Fields[name] = fv
		}
	}

	for _, name := range schema.RequiredFields() {
		if _, ok := result.Fields[name]; !ok {
			result.Missing = append(result.Missing, name)
		}
	}
	return result
}

func stripFences(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		// drop the info string, e.g. ```json
		s = s[nl+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func parseJSONObject(s string) (map[string]any, bool) {
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end <= start {
		return nil, false
	}
	var m map[string]any
	if err := sonic.UnmarshalString(s[start:end+1], &m); err != nil {
		return nil, false
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[normalizeKey(k)] = v
	}
	return out, true
}

// parseLines accepts "key: value" or "key = value" lines. At least one key
// must name a schema field for the output to count as parseable.
func parseLines(schema contractx.ExtractionSchema, s string) (map[string]any, bool) {
	out := map[string]any{}
	matched := false
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimLeft(line, "-*• ")
		if line == "" {
			continue
		}
		idx := strings.IndexAny(line, ":=")
		if idx <= 0 {
			continue
		}
		k := normalizeKey(line[:idx])
		if !validKey(k) {
			continue
		}
		if _, known := schema.Field(k); !known {
			continue
		}
		matched = true
		out[k] = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(line[idx+1:]), ","))
	}
	return out, matched
}

func validKey(k string) bool {
	if k == "" || len(k) > 40 {
		return false
	}
	for _, r := range k {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') && r != '_' {
			return false
		}
	}
	return true
}

func normalizeKey(k string) string {
	k = strings.Trim(strings.TrimSpace(k), `"'`)
	k = strings.ToLower(k)
	return strings.ReplaceAll(k, " ", "_")
}

func normalize(desc contractx.FieldDescriptor, v any) (contractx.FieldValue, bool) {
	confidence := defaultConfidence
	if obj, ok := v.(map[string]any); ok {
		inner, has := obj["value"]
		if !has {
			return contractx.FieldValue{}, false
		}
		if c, ok := toFloat(obj["confidence"]); ok {
			confidence = clamp01(c)
		}
		v = inner
	}

	s, ok := scalarString(v)
	if !ok {
		return contractx.FieldValue{}, false
	}
	s = strings.Trim(strings.TrimSpace(s), `"'`)
	s = strings.TrimSpace(s)
	if emptyMarkers[strings.ToLower(s)] {
		return contractx.FieldValue{}, false
	}

	switch desc.Type {
	case contractx.FieldEnum:
		lower := strings.ToLower(s)
		for _, allowed := range desc.Values {
			if strings.ToLower(allowed) == lower {
				return contractx.FieldValue{Value: lower, Confidence: confidence}, true
			}
		}
		return contractx.FieldValue{}, false
	case contractx.FieldBoolean:
		b, ok := parseBool(s)
		if !ok {
			return contractx.FieldValue{}, false
		}
		return contractx.FieldValue{Value: strconv.FormatBool(b), Confidence: confidence}, true
	default:
		return contractx.FieldValue{Value: s, Confidence: confidence}, true
	}
}

func scalarString(v any) (string, bool) {
	switch t := v.(type) {
	case nil:
		return "", false
	case string:
		return t, true
	case bool:
		return strconv.FormatBool(t), true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case int64:
		return strconv.FormatInt(t, 10), true
	case int:
		return strconv.Itoa(t), true
	default:
		return "", false
	}
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func parseBool(s string) (bool, bool) {
	switch strings.ToLower(s) {
	case "true", "yes", "y", "1":
		return true, true
	case "false", "no", "n", "0":
		return false, true
	default:
		return false, false
	}
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
