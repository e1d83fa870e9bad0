// internal/models/common.go
package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

// StringMap stores name -> value pairs as a JSON column
type StringMap map[string]string

func (m StringMap) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func (m *StringMap) Scan(value interface{}) error {
	if value == nil {
		*m = StringMap{}
		return nil
	}

	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported StringMap source %T", value)
	}

	result := StringMap{}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &result); err != nil {
			return err
		}
	}
	*m = result
	return nil
}

func (StringMap) GormDataType() string {
	return "json"
}

func (StringMap) GormDBDataType(db *gorm.DB, field *schema.Field) string {
	if db.Dialector.Name() == "postgres" {
		return "JSONB"
	}
	return "JSON"
}

// Clone returns an independent copy; records handed out by services must not
// share maps with stored rows.
func (m StringMap) Clone() StringMap {
	out := make(StringMap, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Enums
type UsageSource string

const (
	UsageSourceDirectUse UsageSource = "direct_use"
	UsageSourceAPI       UsageSource = "api"
	UsageSourceLease     UsageSource = "lease"
)

func (s UsageSource) Valid() bool {
	switch s {
	case UsageSourceDirectUse, UsageSourceAPI, UsageSourceLease:
		return true
	}
	return false
}

type DeadLetterKind string

const (
	DeadLetterKindNotFound       DeadLetterKind = "not_found"
	DeadLetterKindCorruptLineage DeadLetterKind = "corrupt_lineage"
)

// FullShareBasisPoints is a 1.0 share.
const FullShareBasisPoints = 10000
