package sqlstore

import (
	"fmt"
	"strconv"
)

// Row holds the raw column values of one result row as returned by the
// sqlite driver: int64, float64, string, []byte or nil.
type Row []any

// Int64 returns column i as an integer, 0 for NULL or unparsable values.
func (r Row) Int64(i int) int64 {
	if i >= len(r) {
		return 0
	}
	switch v := r[i].(type) {
	case int64:
		return v
	case float64:
		return int64(v)
	case bool:
		if v {
			return 1
		}
		return 0
	case []byte:
		n, _ := strconv.ParseInt(string(v), 10, 64)
		return n
	case string:
		n, _ := strconv.ParseInt(v, 10, 64)
		return n
	}
	return 0
}

// Int returns column i as an int.
func (r Row) Int(i int) int {
	return int(r.Int64(i))
}

// Bool reports whether column i holds a non-zero integer.
func (r Row) Bool(i int) bool {
	return r.Int64(i) != 0
}

// String returns column i as text, "" for NULL.
func (r Row) String(i int) string {
	if i >= len(r) {
		return ""
	}
	switch v := r[i].(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	default:
		return fmt.Sprint(v)
	}
}

// Scan copies the row into dest in column order. Supported destinations
// are *int64, *int, *bool, *string and *float64.
func (r Row) Scan(dest ...any) error {
	if len(dest) > len(r) {
		return fmt.Errorf("scan: %d destinations for %d columns", len(dest), len(r))
	}
	for i, d := range dest {
		switch p := d.(type) {
		case *int64:
			*p = r.Int64(i)
		case *int:
			*p = r.Int(i)
		case *bool:
			*p = r.Bool(i)
		case *string:
			*p = r.String(i)
		case *float64:
			switch v := r[i].(type) {
			case float64:
				*p = v
			default:
				*p = float64(r.Int64(i))
			}
		default:
			return fmt.Errorf("scan: unsupported destination %T for column %d", d, i)
		}
	}
	return nil
}
