package labeler

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	jsonrepair "github.com/RealAlexandreAI/json-repair"
)

// RepairJSON fixes the usual model-output damage (markdown fences, single
// quotes, trailing commas, unclosed brackets) before schema validation
// gets a say.
func RepairJSON(raw string) (string, error) {
	repaired, err := jsonrepair.RepairJSON(raw)
	if err != nil {
		return "", fmt.Errorf("json repair: %w", err)
	}
	return repaired, nil
}

// SanitizeLabelJSON normalizes a repaired model payload so it can pass
// strict schema validation:
//   - numeric raw_value / raw_label coerced to strings
//   - null or empty optionals dropped
//   - unknown keys removed (schema is additionalProperties: false)
//   - fields with no raw_label or raw_value dropped entirely
//
// Only shape is touched, never content; a dropped field is reported, not
// silently patched.
func SanitizeLabelJSON(raw []byte, logger *slog.Logger) ([]byte, []string, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, nil, fmt.Errorf("sanitize: decode: %w", err)
	}

	var dropped []string

	allowedTop := map[string]struct{}{"document_type": {}, "confidence": {}, "fields": {}}
	for k := range m {
		if _, ok := allowedTop[k]; !ok {
			delete(m, k)
			dropped = append(dropped, k+"(unknown)")
		}
	}

	if dt, ok := m["document_type"].(string); ok {
		m["document_type"] = strings.ToLower(strings.TrimSpace(dt))
	}

	rawFields, _ := m["fields"].([]any)
	allowedField := map[string]struct{}{
		"raw_label": {}, "raw_value": {}, "proposed_label": {}, "raw_period": {},
		"raw_currency": {}, "statement": {}, "page": {}, "confidence": {},
	}
	cleaned := make([]any, 0, len(rawFields))
	for i, rf := range rawFields {
		f, ok := rf.(map[string]any)
		if !ok {
			dropped = append(dropped, fmt.Sprintf("fields[%d](not object)", i))
			continue
		}
		for k, v := range f {
			if _, ok := allowedField[k]; !ok {
				delete(f, k)
				dropped = append(dropped, fmt.Sprintf("fields[%d].%s(unknown)", i, k))
				continue
			}
			switch k {
			case "raw_label", "raw_value", "proposed_label", "raw_period", "raw_currency":
				f[k] = coerceString(v)
				if f[k] == "" {
					delete(f, k)
				}
			case "statement":
				f[k] = strings.ToLower(strings.TrimSpace(coerceString(v)))
			case "page":
				if n, ok := v.(float64); ok && n >= 1 {
					f[k] = int(n)
				} else {
					f[k] = 1
					dropped = append(dropped, fmt.Sprintf("fields[%d].page(invalid)", i))
				}
			}
		}
		if f["raw_label"] == nil || f["raw_value"] == nil {
			dropped = append(dropped, fmt.Sprintf("fields[%d](no label/value)", i))
			continue
		}
		if _, ok := f["statement"]; !ok {
			f["statement"] = "unknown"
		}
		if _, ok := f["page"]; !ok {
			f["page"] = 1
		}
		if _, ok := f["confidence"]; !ok {
			f["confidence"] = 0.5
			dropped = append(dropped, fmt.Sprintf("fields[%d].confidence(defaulted)", i))
		}
		cleaned = append(cleaned, f)
	}
	m["fields"] = cleaned

	out, err := json.Marshal(m)
	if err != nil {
		return nil, dropped, fmt.Errorf("sanitize: encode: %w", err)
	}
	if len(dropped) > 0 {
		logger.Warn("labeler.sanitize_applied", "dropped", dropped)
	}
	return out, dropped, nil
}

func coerceString(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		if t == float64(int64(t)) {
			return fmt.Sprintf("%d", int64(t))
		}
		return fmt.Sprintf("%v", t)
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", t)
	}
}
