package codec

import (
	"math"
	"testing"
	"time"

	"github.com/blevesearch/bleve/v2/search"
	"github.com/blevesearch/bleve/v2/search/query"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mirrorerrors "github.com/dalenewman/tflmirror/internal/errors"
	"github.com/dalenewman/tflmirror/internal/schema"
)

var stored = schema.SearchType{Name: "default", Store: true, Index: true}

func fieldCodec(typ string) Codec {
	return New(schema.Field{Name: "F", Type: typ}, stored, "")
}

func decimalCodec(precision, scale int) Codec {
	return New(schema.Field{Name: "Amount", Type: "decimal", Precision: precision, Scale: scale}, stored, "")
}

func TestKindOf_NormalizesAliases(t *testing.T) {
	tests := []struct {
		tag  string
		want Kind
	}{
		{"short", KindInt16},
		{"int16", KindInt16},
		{"int", KindInt32},
		{"uint16", KindInt32},
		{"long", KindInt64},
		{"uint32", KindInt64},
		{"uint64", KindInt64},
		{"real", KindSingle},
		{"float", KindSingle},
		{"double", KindDouble},
		{"bool", KindBool},
		{"Boolean", KindBool},
		{"date", KindDateTime},
		{"datetime", KindDateTime},
		{"byte[]", KindBinary},
		{"rowversion", KindBinary},
		{"guid", KindGuid},
		{"decimal", KindDecimal},
		{"char", KindString},
		{"object", KindString},
		{"", KindString},
	}
	for _, tt := range tests {
		t.Run(tt.tag, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.tag))
		})
	}
}

func TestEncode_DecimalIsFixedWidth(t *testing.T) {
	// Given: decimal(10,3), seven integer digits
	c := decimalCodec(10, 3)

	// When: encoding positive and negative values
	pos, err := c.Encode(decimal.RequireFromString("1.5"))
	require.NoError(t, err)
	neg, err := c.Encode(decimal.RequireFromString("-1.5"))
	require.NoError(t, err)

	// Then: both share one width and the negative uses the complement
	assert.Equal(t, "00000001.500", pos)
	assert.Equal(t, "-9999998.500", neg)
}

func TestEncode_DecimalOrdersLexically(t *testing.T) {
	c := decimalCodec(10, 3)
	values := []string{"-1000", "-2.25", "-1.5", "0", "1.5", "2.25", "1000"}

	var prev string
	for i, v := range values {
		enc, err := c.Encode(v)
		require.NoError(t, err)
		if i > 0 {
			assert.Less(t, prev, enc.(string), "%s should sort after %s", v, values[i-1])
		}
		prev = enc.(string)
	}
}

func TestEncode_DecimalWithoutIntegerDigitsUsesWideDefault(t *testing.T) {
	// Given: precision that leaves no integer digits
	c := decimalCodec(2, 2)

	// When: encoding
	enc, err := c.Encode(1)

	// Then: ten integer digits and nine fractional digits
	require.NoError(t, err)
	assert.Equal(t, "00000000001.000000000", enc)
}

func TestEncode_DecimalRoundsToScale(t *testing.T) {
	c := decimalCodec(6, 2)

	enc, err := c.Encode(decimal.RequireFromString("12.345"))
	require.NoError(t, err)
	assert.Equal(t, "00012.35", enc)
}

func TestEncode_DecimalOverflowFails(t *testing.T) {
	// Given: decimal(5,2) holds at most three integer digits
	c := decimalCodec(5, 2)

	// When: encoding 1000
	_, err := c.Encode(1000)

	// Then: an encoding error names the field
	require.Error(t, err)
	assert.True(t, mirrorerrors.IsEncoding(err))
	var me *mirrorerrors.MirrorError
	require.ErrorAs(t, err, &me)
	assert.Equal(t, "Amount", me.Details["field"])
}

func TestEncode_DecimalWithoutScale(t *testing.T) {
	c := decimalCodec(4, 0)

	enc, err := c.Encode(42)
	require.NoError(t, err)
	assert.Equal(t, "00042", enc)

	dec, err := c.Decode(enc)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(42).Equal(dec.(decimal.Decimal)))
}

func TestEncode_Boolean(t *testing.T) {
	c := fieldCodec("bool")

	yes, err := c.Encode(true)
	require.NoError(t, err)
	no, err := c.Encode("false")
	require.NoError(t, err)

	assert.Equal(t, "1", yes)
	assert.Equal(t, "0", no)
}

func TestEncode_DateIsUTCMilliseconds(t *testing.T) {
	// Given: a time in a non-UTC zone
	zone := time.FixedZone("EST", -5*60*60)
	v := time.Date(2024, 3, 5, 9, 7, 9, 123456789, zone)

	// When: encoding
	enc, err := fieldCodec("datetime").Encode(v)

	// Then: rendered in UTC at millisecond resolution
	require.NoError(t, err)
	assert.Equal(t, "20240305140709123", enc)
}

func TestEncode_DateAcceptsText(t *testing.T) {
	enc, err := fieldCodec("date").Encode("2024-03-05")
	require.NoError(t, err)
	assert.Equal(t, "20240305000000000", enc)
}

func TestEncode_BinaryIsLowercaseHex(t *testing.T) {
	enc, err := fieldCodec("byte[]").Encode([]byte{0xDE, 0xAD, 0x01})
	require.NoError(t, err)
	assert.Equal(t, "dead01", enc)
}

func TestEncode_Guid(t *testing.T) {
	id := uuid.MustParse("6F9619FF-8B86-D011-B42D-00C04FC964FF")

	enc, err := fieldCodec("guid").Encode(id)
	require.NoError(t, err)
	assert.Equal(t, "6f9619ff-8b86-d011-b42d-00c04fc964ff", enc)

	_, err = fieldCodec("guid").Encode("not-a-guid")
	assert.True(t, mirrorerrors.IsEncoding(err))
}

func TestEncode_NumericKindsBecomeFloat(t *testing.T) {
	tests := []struct {
		typ   string
		value any
		want  float64
	}{
		{"byte", 7, 7},
		{"short", "12", 12},
		{"int", int64(42), 42},
		{"long", uint32(9), 9},
		{"single", 1.5, 1.5},
		{"double", float32(2.25), 2.25},
	}
	for _, tt := range tests {
		t.Run(tt.typ, func(t *testing.T) {
			enc, err := fieldCodec(tt.typ).Encode(tt.value)
			require.NoError(t, err)
			assert.Equal(t, tt.want, enc)
		})
	}
}

func TestEncode_RejectsUnrepresentableValues(t *testing.T) {
	tests := []struct {
		name  string
		typ   string
		value any
	}{
		{"text for int", "int", "abc"},
		{"fraction for int", "int", 1.5},
		{"int16 overflow", "short", 40000},
		{"byte negative", "byte", -1},
		{"int64 beyond 2^53", "long", int64(1)<<53 + 1},
		{"bad date", "datetime", "yesterday"},
		{"bad hex", "binary", "zz"},
		{"bool from 2", "bool", 2},
		{"NaN for decimal", "decimal", math.NaN()},
		{"infinity for decimal", "decimal", math.Inf(1)},
		{"float32 infinity for decimal", "decimal", float32(math.Inf(-1))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := fieldCodec(tt.typ).Encode(tt.value)
			require.Error(t, err)
			assert.True(t, mirrorerrors.IsEncoding(err))
		})
	}
}

func TestEncode_NilIsAbsent(t *testing.T) {
	enc, err := fieldCodec("int").Encode(nil)
	require.NoError(t, err)
	assert.Nil(t, enc)

	dec, err := fieldCodec("int").Decode(nil)
	require.NoError(t, err)
	assert.Nil(t, dec)
}

func TestDecode_ReturnsCanonicalTypes(t *testing.T) {
	tests := []struct {
		typ    string
		stored any
		want   any
	}{
		{"byte", float64(7), uint8(7)},
		{"short", float64(-3), int16(-3)},
		{"int", float64(42), int32(42)},
		{"long", float64(1 << 40), int64(1 << 40)},
		{"single", float64(1.5), float32(1.5)},
		{"double", float64(2.25), float64(2.25)},
		{"bool", "1", true},
		{"string", "hello", "hello"},
		{"binary", "dead01", []byte{0xde, 0xad, 0x01}},
		{"int", []any{float64(5), float64(6)}, int32(5)},
	}
	for _, tt := range tests {
		t.Run(tt.typ, func(t *testing.T) {
			got, err := fieldCodec(tt.typ).Decode(tt.stored)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecode_Date(t *testing.T) {
	got, err := fieldCodec("datetime").Decode("20240305140709123")
	require.NoError(t, err)
	want := time.Date(2024, 3, 5, 14, 7, 9, 123000000, time.UTC)
	assert.True(t, want.Equal(got.(time.Time)))
}

func TestCanonical_RendersKeyParts(t *testing.T) {
	tests := []struct {
		name  string
		codec Codec
		value any
		want  string
	}{
		{"string as-is", fieldCodec("string"), "A-1", "A-1"},
		{"int base 10", fieldCodec("int"), "0042", "42"},
		{"bool word", fieldCodec("bool"), 1, "true"},
		{"double shortest", fieldCodec("double"), 0.1, "0.1"},
		{"decimal at scale", decimalCodec(10, 3), "1.5", "1.500"},
		{"date", fieldCodec("date"), time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), "20240102000000000"},
		{"bytes hex", fieldCodec("binary"), []byte{0x0a}, "0a"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.codec.Canonical(tt.value)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCanonical_NullKeyFails(t *testing.T) {
	_, err := fieldCodec("int").Canonical(nil)
	assert.True(t, mirrorerrors.IsEncoding(err))
}

func TestSortKey(t *testing.T) {
	assert.Equal(t, SortInt16, fieldCodec("byte").SortKey())
	assert.Equal(t, SortInt32, fieldCodec("int").SortKey())
	assert.Equal(t, SortInt64, fieldCodec("long").SortKey())
	assert.Equal(t, SortSingle, fieldCodec("real").SortKey())
	assert.Equal(t, SortDouble, fieldCodec("double").SortKey())
	assert.Equal(t, SortString, decimalCodec(10, 2).SortKey())
	assert.Equal(t, SortString, fieldCodec("datetime").SortKey())

	sf := fieldCodec("int").SortField("Qty", true)
	assert.Equal(t, search.SortFieldAsNumber, sf.Type)
	assert.True(t, sf.Desc)
	assert.Equal(t, search.SortFieldAsString, fieldCodec("date").SortField("When", false).Type)
}

func TestExactQuery_ShapeFollowsKind(t *testing.T) {
	// Numeric: zero-width inclusive range
	q, err := fieldCodec("int").ExactQuery("Qty", "5")
	require.NoError(t, err)
	rq, ok := q.(*query.NumericRangeQuery)
	require.True(t, ok)
	assert.Equal(t, "Qty", rq.Field())
	assert.Equal(t, 5.0, *rq.Min)
	assert.Equal(t, 5.0, *rq.Max)

	// Keyword: single encoded term
	q, err = fieldCodec("bool").ExactQuery("Active", "true")
	require.NoError(t, err)
	tq, ok := q.(*query.TermQuery)
	require.True(t, ok)
	assert.Equal(t, "1", tq.Term)

	// Analyzed string: phrase through the field analyzer
	text := New(schema.Field{Name: "Notes"}, stored, "standard")
	q, err = text.ExactQuery("Notes", "Hello World")
	require.NoError(t, err)
	_, ok = q.(*query.MatchPhraseQuery)
	assert.True(t, ok)
}

func TestExactQuery_RejectsUnindexedField(t *testing.T) {
	c := New(schema.Field{Name: "Blob"}, schema.SearchType{Store: true}, "")

	_, err := c.ExactQuery("Blob", "x")

	assert.Error(t, err)
}

func TestMapping_FollowsKindAndSearchType(t *testing.T) {
	num := fieldCodec("int").Mapping()
	assert.Equal(t, "number", num.Type)
	assert.True(t, num.Store)
	assert.True(t, num.Index)

	kw := fieldCodec("guid").Mapping()
	assert.Equal(t, "text", kw.Type)
	assert.Equal(t, "keyword", kw.Analyzer)

	text := New(schema.Field{Name: "Notes"}, stored, "standard").Mapping()
	assert.Equal(t, "standard", text.Analyzer)

	storeOnly := New(schema.Field{Name: "Notes"}, schema.SearchType{Store: true}, "").Mapping()
	assert.True(t, storeOnly.Store)
	assert.False(t, storeOnly.Index)
}
