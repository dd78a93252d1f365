package codec

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// maxExactInt is the largest integer magnitude a float64 numeric holds exactly.
const maxExactInt = 1 << 53

// dateLayouts are accepted when a date arrives as text.
var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02",
}

// coerce converts v to the canonical Go type of kind. A nil v stays nil.
func coerce(kind Kind, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch kind {
	case KindBool:
		return toBool(v)
	case KindByte:
		n, err := toInt64(v)
		if err != nil {
			return nil, err
		}
		if n < 0 || n > math.MaxUint8 {
			return nil, fmt.Errorf("%d out of range for byte", n)
		}
		return uint8(n), nil
	case KindInt16:
		n, err := toInt64(v)
		if err != nil {
			return nil, err
		}
		if n < math.MinInt16 || n > math.MaxInt16 {
			return nil, fmt.Errorf("%d out of range for int16", n)
		}
		return int16(n), nil
	case KindInt32:
		n, err := toInt64(v)
		if err != nil {
			return nil, err
		}
		if n < math.MinInt32 || n > math.MaxInt32 {
			return nil, fmt.Errorf("%d out of range for int32", n)
		}
		return int32(n), nil
	case KindInt64:
		return toInt64(v)
	case KindSingle:
		f, err := toFloat64(v)
		if err != nil {
			return nil, err
		}
		if math.Abs(f) > math.MaxFloat32 && !math.IsInf(f, 0) {
			return nil, fmt.Errorf("%g out of range for single", f)
		}
		return float32(f), nil
	case KindDouble:
		return toFloat64(v)
	case KindDecimal:
		return toDecimal(v)
	case KindDateTime:
		return toTime(v)
	case KindBinary:
		return toBytes(v)
	case KindGuid:
		return toGuid(v)
	default:
		return toString(v), nil
	}
}

func toInt64(v any) (int64, error) {
	switch n := v.(type) {
	case int:
		return int64(n), nil
	case int8:
		return int64(n), nil
	case int16:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case int64:
		return n, nil
	case uint:
		return uintToInt64(uint64(n))
	case uint8:
		return int64(n), nil
	case uint16:
		return int64(n), nil
	case uint32:
		return int64(n), nil
	case uint64:
		return uintToInt64(n)
	case float32:
		return floatToInt64(float64(n))
	case float64:
		return floatToInt64(n)
	case decimal.Decimal:
		if !n.IsInteger() {
			return 0, fmt.Errorf("%s is not an integer", n)
		}
		return n.IntPart(), nil
	case json.Number:
		return n.Int64()
	case string:
		return strconv.ParseInt(strings.TrimSpace(n), 10, 64)
	case []byte:
		return strconv.ParseInt(strings.TrimSpace(string(n)), 10, 64)
	default:
		return 0, fmt.Errorf("not an integer")
	}
}

func uintToInt64(n uint64) (int64, error) {
	if n > math.MaxInt64 {
		return 0, fmt.Errorf("%d out of range for int64", n)
	}
	return int64(n), nil
}

func floatToInt64(f float64) (int64, error) {
	if f != math.Trunc(f) || math.IsInf(f, 0) || math.IsNaN(f) {
		return 0, fmt.Errorf("%g is not an integer", f)
	}
	if f < math.MinInt64 || f >= math.MaxInt64 {
		return 0, fmt.Errorf("%g out of range for int64", f)
	}
	return int64(f), nil
}

func toFloat64(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case decimal.Decimal:
		f, _ := n.Float64()
		return f, nil
	case json.Number:
		return n.Float64()
	case string:
		return strconv.ParseFloat(strings.TrimSpace(n), 64)
	case []byte:
		return strconv.ParseFloat(strings.TrimSpace(string(n)), 64)
	}
	i, err := toInt64(v)
	if err != nil {
		return 0, fmt.Errorf("not a number")
	}
	return float64(i), nil
}

func toDecimal(v any) (decimal.Decimal, error) {
	switch n := v.(type) {
	case decimal.Decimal:
		return n, nil
	case *decimal.Decimal:
		if n == nil {
			return decimal.Zero, fmt.Errorf("nil decimal")
		}
		return *n, nil
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return decimal.Zero, fmt.Errorf("not a finite number")
		}
		return decimal.NewFromFloat(n), nil
	case float32:
		if f := float64(n); math.IsNaN(f) || math.IsInf(f, 0) {
			return decimal.Zero, fmt.Errorf("not a finite number")
		}
		return decimal.NewFromFloat32(n), nil
	case json.Number:
		return decimal.NewFromString(n.String())
	case string:
		return decimal.NewFromString(strings.TrimSpace(n))
	case []byte:
		return decimal.NewFromString(strings.TrimSpace(string(n)))
	case uint64:
		return decimal.NewFromString(strconv.FormatUint(n, 10))
	}
	i, err := toInt64(v)
	if err != nil {
		return decimal.Zero, fmt.Errorf("not a decimal")
	}
	return decimal.NewFromInt(i), nil
}

func toBool(v any) (bool, error) {
	switch b := v.(type) {
	case bool:
		return b, nil
	case string:
		switch strings.ToLower(strings.TrimSpace(b)) {
		case "1", "true", "t", "yes", "y":
			return true, nil
		case "0", "false", "f", "no", "n":
			return false, nil
		}
		return false, fmt.Errorf("not a boolean")
	}
	n, err := toInt64(v)
	if err != nil || (n != 0 && n != 1) {
		return false, fmt.Errorf("not a boolean")
	}
	return n == 1, nil
}

func toTime(v any) (time.Time, error) {
	switch t := v.(type) {
	case time.Time:
		return t, nil
	case *time.Time:
		if t == nil {
			return time.Time{}, fmt.Errorf("nil time")
		}
		return *t, nil
	case []byte:
		return parseTime(string(t))
	case string:
		return parseTime(t)
	default:
		return time.Time{}, fmt.Errorf("not a date")
	}
}

func parseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if len(s) == len(dateLayout)+3 {
		if t, err := decodeDate(s); err == nil {
			return t, nil
		}
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date format")
}

func toBytes(v any) ([]byte, error) {
	switch b := v.(type) {
	case []byte:
		return b, nil
	case string:
		s := strings.TrimPrefix(strings.TrimPrefix(strings.TrimSpace(b), "0x"), "0X")
		return hex.DecodeString(s)
	default:
		return nil, fmt.Errorf("not binary")
	}
}

func toGuid(v any) (uuid.UUID, error) {
	switch g := v.(type) {
	case uuid.UUID:
		return g, nil
	case [16]byte:
		return uuid.UUID(g), nil
	case []byte:
		if len(g) == 16 {
			return uuid.FromBytes(g)
		}
		return uuid.ParseBytes(g)
	case string:
		return uuid.Parse(strings.TrimSpace(g))
	default:
		return uuid.Nil, fmt.Errorf("not a guid")
	}
}

func toString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case []byte:
		return string(s)
	case fmt.Stringer:
		return s.String()
	default:
		return fmt.Sprint(v)
	}
}
