package models

import (
	"encoding/json"
	"fmt"
)

// scanJSONB decodes a jsonb column into dst, tolerating NULL.
func scanJSONB(src any, dst any) error {
	if src == nil {
		return nil
	}
	switch v := src.(type) {
	case []byte:
		if len(v) == 0 {
			return nil
		}
		return json.Unmarshal(v, dst)
	case string:
		if v == "" {
			return nil
		}
		return json.Unmarshal([]byte(v), dst)
	default:
		return fmt.Errorf("jsonb scan: unsupported type %T", src)
	}
}
