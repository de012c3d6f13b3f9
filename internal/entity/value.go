package entity

import (
	"bytes"
	"database/sql"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"time"
)

// deref reads the value behind a field pointer.
func deref(p any) any {
	switch v := p.(type) {
	case *any:
		return *v
	case *string:
		return *v
	case *int64:
		return *v
	case *int:
		return *v
	case *int32:
		return *v
	case *bool:
		return *v
	case *float64:
		return *v
	case *[]byte:
		return *v
	case *time.Time:
		return *v
	}
	rv := reflect.ValueOf(p)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return p
	}
	return rv.Elem().Interface()
}

func cloneValue(v any) any {
	if b, ok := v.([]byte); ok && b != nil {
		return bytes.Clone(b)
	}
	return v
}

// assign stores a store-generated identifier into a field pointer.
func assign(dst any, v any) error {
	switch d := dst.(type) {
	case *any:
		*d = NormalizeID(v)
		return nil
	case *int64:
		n, err := toInt64(v)
		if err != nil {
			return err
		}
		*d = n
		return nil
	case *int:
		n, err := toInt64(v)
		if err != nil {
			return err
		}
		*d = int(n)
		return nil
	case *int32:
		n, err := toInt64(v)
		if err != nil {
			return err
		}
		if n > math.MaxInt32 || n < math.MinInt32 {
			return fmt.Errorf("identifier %d overflows int32", n)
		}
		*d = int32(n)
		return nil
	case *uint64:
		n, err := toInt64(v)
		if err != nil {
			return err
		}
		if n < 0 {
			return fmt.Errorf("identifier %d is negative", n)
		}
		*d = uint64(n)
		return nil
	case *string:
		switch s := v.(type) {
		case string:
			*d = s
		case []byte:
			*d = string(s)
		default:
			*d = fmt.Sprint(v)
		}
		return nil
	case sql.Scanner:
		return d.Scan(v)
	}
	return fmt.Errorf("unsupported identifier field type %T", dst)
}

func toInt64(v any) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case uint64:
		if n > math.MaxInt64 {
			return 0, fmt.Errorf("identifier %d overflows int64", n)
		}
		return int64(n), nil
	case []byte:
		return strconv.ParseInt(string(n), 10, 64)
	case string:
		return strconv.ParseInt(n, 10, 64)
	}
	return 0, fmt.Errorf("cannot convert identifier %v (%T) to integer", v, v)
}

// NormalizeID maps identifier values onto comparable canonical forms:
// integer kinds become int64 when representable and byte slices become strings.
func NormalizeID(id any) any {
	switch v := id.(type) {
	case nil:
		return nil
	case int64, string:
		return v
	case []byte:
		return string(v)
	case sql.NullInt64:
		if !v.Valid {
			return nil
		}
		return v.Int64
	case sql.NullString:
		if !v.Valid {
			return nil
		}
		return v.String
	}
	rv := reflect.ValueOf(id)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int()
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		if u := rv.Uint(); u <= math.MaxInt64 {
			return int64(u)
		}
	}
	return id
}

// IsZeroID reports whether id carries no identifier (nil or a zero value).
func IsZeroID(id any) bool {
	if id == nil {
		return true
	}
	rv := reflect.ValueOf(id)
	return rv.IsZero()
}

// Equal compares two column values: nil-safe, byte slices by content, times
// by instant, everything else by deep equality.
func Equal(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	switch av := a.(type) {
	case []byte:
		bv, ok := b.([]byte)
		return ok && bytes.Equal(av, bv)
	case time.Time:
		bv, ok := b.(time.Time)
		return ok && av.Equal(bv)
	}
	return reflect.DeepEqual(a, b)
}
