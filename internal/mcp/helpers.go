package mcpserver

import (
	"encoding/json"

	"sheetlocator/internal/domain"
)

// parseJSON parses a JSON string into the target type.
func parseJSON(data string, target any) error {
	return json.Unmarshal([]byte(data), target)
}

// scalarArg turns a tool argument into a cell value. Strings holding a JSON
// scalar ("42", "true", "null") are decoded; any other string is kept as is.
func scalarArg(v any) domain.Value {
	s, ok := v.(string)
	if !ok {
		return domain.FromAny(v)
	}
	var out domain.Value
	if err := parseJSON(s, &out); err != nil {
		return domain.String(s)
	}
	if out.Kind() == domain.KindJSON {
		// Objects and arrays are not cells; keep the raw input.
		return domain.String(s)
	}
	return out
}
