package types

import (
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

var (
	_ sql.Scanner   = (*PayoutDetails)(nil)
	_ driver.Valuer = PayoutDetails{}
	_ sql.Scanner   = (*TipDetails)(nil)
	_ driver.Valuer = TipDetails{}
)

// scanJSON resets *dst, then decodes a jsonb column into it. NULL leaves the
// zero value.
func scanJSON[T any](dst *T, src any) error {
	var zero T
	*dst = zero
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		return json.Unmarshal(v, dst)
	case string:
		return json.Unmarshal([]byte(v), dst)
	}
	return fmt.Errorf("jsonb: cannot scan %T into %T", src, dst)
}

func jsonValue(v any) (driver.Value, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (d *PayoutDetails) Scan(src any) error { return scanJSON(d, src) }

func (d PayoutDetails) Value() (driver.Value, error) { return jsonValue(d) }

func (d *TipDetails) Scan(src any) error { return scanJSON(d, src) }

func (d TipDetails) Value() (driver.Value, error) { return jsonValue(d) }
