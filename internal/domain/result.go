package domain

import (
	"database/sql/driver"
	"fmt"

	"github.com/goccy/go-json"
)

// Value stores the summary as JSON.
func (r SyncResult) Value() (driver.Value, error) {
	b, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("marshal sync result: %w", err)
	}
	return b, nil
}

func (r *SyncResult) Scan(src any) error {
	var data []byte
	switch v := src.(type) {
	case nil:
		*r = SyncResult{}
		return nil
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("scan sync result: unsupported type %T", src)
	}

	if err := json.Unmarshal(data, r); err != nil {
		return fmt.Errorf("unmarshal sync result: %w", err)
	}
	return nil
}
