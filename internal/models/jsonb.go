package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// marshalJSONB сериализует значение для JSONB колонки.
func marshalJSONB(v any, empty string) (driver.Value, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	if string(raw) == "null" {
		return empty, nil
	}
	return string(raw), nil
}

// scanJSONB читает JSONB колонку в dst.
func scanJSONB(src any, dst any) error {
	switch v := src.(type) {
	case nil:
		return nil
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
		return fmt.Errorf("models: неподдерживаемый тип JSONB %T", src)
	}
}
