// Package codec converts typed field values to and from their indexed form.
//
// Each field resolves once, at configuration time, to a Codec: a Kind tag
// plus the parameters (decimal widths, storage flags, analyzer) the Kind
// needs. Numeric kinds are stored as bleve numerics; every other kind is a
// fixed-format keyword whose lexical order matches the value order.
package codec

import "strings"

// Kind is the canonical value type of a field.
type Kind int

const (
	KindString Kind = iota
	KindBool
	KindByte
	KindInt16
	KindInt32
	KindInt64
	KindSingle
	KindDouble
	KindDecimal
	KindDateTime
	KindBinary
	KindGuid
)

var kindNames = map[Kind]string{
	KindString:   "string",
	KindBool:     "boolean",
	KindByte:     "byte",
	KindInt16:    "int16",
	KindInt32:    "int32",
	KindInt64:    "int64",
	KindSingle:   "single",
	KindDouble:   "double",
	KindDecimal:  "decimal",
	KindDateTime: "datetime",
	KindBinary:   "binary",
	KindGuid:     "guid",
}

// String returns the canonical type tag.
func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown"
}

// Numeric reports whether the kind is stored as a bleve numeric.
func (k Kind) Numeric() bool {
	switch k {
	case KindByte, KindInt16, KindInt32, KindInt64, KindSingle, KindDouble:
		return true
	}
	return false
}

// KindOf normalizes a raw type tag. Unrecognized tags map to KindString.
func KindOf(tag string) Kind {
	switch strings.ToLower(strings.TrimSpace(tag)) {
	case "bool", "boolean":
		return KindBool
	case "byte":
		return KindByte
	case "short", "int16":
		return KindInt16
	case "int", "int32", "uint16":
		return KindInt32
	case "long", "int64", "uint32", "uint64":
		return KindInt64
	case "real", "float", "single":
		return KindSingle
	case "double":
		return KindDouble
	case "decimal":
		return KindDecimal
	case "date", "datetime":
		return KindDateTime
	case "byte[]", "rowversion", "binary":
		return KindBinary
	case "guid":
		return KindGuid
	default:
		return KindString
	}
}

// SortKind is the sort category of a field.
type SortKind int

const (
	SortString SortKind = iota
	SortInt16
	SortInt32
	SortInt64
	SortSingle
	SortDouble
)

// sortKinds maps each kind to its sort category. Byte sorts as Int16.
var sortKinds = map[Kind]SortKind{
	KindByte:   SortInt16,
	KindInt16:  SortInt16,
	KindInt32:  SortInt32,
	KindInt64:  SortInt64,
	KindSingle: SortSingle,
	KindDouble: SortDouble,
}

// Numeric reports whether values of this sort kind compare as numbers.
func (s SortKind) Numeric() bool {
	return s != SortString
}
