// Package pushjson holds opaque JSON documents that travel through the push
// pipeline untouched: browser subscription objects and notification data.
package pushjson

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
)

var ErrInvalid = errors.New("pushjson: invalid JSON")

// JSON is a raw JSON document usable both as a struct field for encoding/json
// and as a gorm column (sql.Scanner / driver.Valuer).
type JSON []byte

// From marshals v into a JSON document.
func From(v any) (JSON, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return JSON(data), nil
}

// IsNull reports whether the document is empty or a literal null.
func (j JSON) IsNull() bool {
	return len(j) == 0 || string(j) == "null"
}

// Decode unmarshals the document into dest.
func (j JSON) Decode(dest any) error {
	if j.IsNull() {
		return fmt.Errorf("%w: empty document", ErrInvalid)
	}
	return json.Unmarshal(j, dest)
}

func (j JSON) MarshalJSON() ([]byte, error) {
	if len(j) == 0 {
		return []byte("null"), nil
	}
	if !json.Valid(j) {
		return nil, ErrInvalid
	}
	return append([]byte(nil), j...), nil
}

func (j *JSON) UnmarshalJSON(data []byte) error {
	if !json.Valid(data) {
		return ErrInvalid
	}
	*j = append((*j)[:0], data...)
	return nil
}

// Value implements driver.Valuer.
func (j JSON) Value() (driver.Value, error) {
	if len(j) == 0 {
		return "null", nil
	}
	if !json.Valid(j) {
		return nil, ErrInvalid
	}
	return string(j), nil
}

// Scan implements sql.Scanner.
func (j *JSON) Scan(value any) error {
	var raw []byte
	switch v := value.(type) {
	case nil:
		*j = nil
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("pushjson: unsupported scan type %T", value)
	}
	if !json.Valid(raw) {
		return ErrInvalid
	}
	*j = append((*j)[:0], raw...)
	return nil
}
