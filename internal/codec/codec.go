package codec

import (
	"encoding/hex"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search"
	"github.com/blevesearch/bleve/v2/search/query"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	mirrorerrors "github.com/dalenewman/tflmirror/internal/errors"
	"github.com/dalenewman/tflmirror/internal/schema"
)

// dateLayout is the second-resolution prefix of the encoded date; three
// millisecond digits follow it.
const dateLayout = "20060102150405"

// Codec encodes, decodes and queries one field.
type Codec struct {
	field    string
	kind     Kind
	decimal  decimalFormat
	analyzer string
	store    bool
	index    bool
}

// New resolves the codec for f. analyzer is the bleve analyzer name for
// string fields; empty means keyword.
func New(f schema.Field, st schema.SearchType, analyzer string) Codec {
	if analyzer == "" {
		analyzer = keyword.Name
	}
	kind := KindOf(f.Type)
	c := Codec{
		field:    f.Name,
		kind:     kind,
		analyzer: analyzer,
		store:    st.Store,
		index:    st.Index,
	}
	if kind == KindDecimal {
		c.decimal = newDecimalFormat(f.Precision, f.Scale)
	}
	return c
}

// ForKind returns a stored and indexed keyword-analyzed codec of kind,
// used for reserved fields and ad-hoc conversions.
func ForKind(name string, kind Kind) Codec {
	return Codec{
		field:    name,
		kind:     kind,
		decimal:  newDecimalFormat(0, 0),
		analyzer: keyword.Name,
		store:    true,
		index:    true,
	}
}

// Kind returns the field's canonical kind.
func (c Codec) Kind() Kind { return c.kind }

// Analyzer returns the resolved analyzer name.
func (c Codec) Analyzer() string { return c.analyzer }

// Stored reports whether the field is stored.
func (c Codec) Stored() bool { return c.store }

// Indexed reports whether the field is indexed.
func (c Codec) Indexed() bool { return c.index }

// Coerce converts v to the field's canonical Go type.
func (c Codec) Coerce(v any) (any, error) {
	typed, err := coerce(c.kind, v)
	if err != nil {
		return nil, mirrorerrors.EncodingError(c.field, v, err)
	}
	return typed, nil
}

// Encode converts a value to its indexed form: float64 for numeric kinds,
// string otherwise. A nil value encodes to nil and is left out of the document.
func (c Codec) Encode(v any) (any, error) {
	typed, err := c.Coerce(v)
	if err != nil || typed == nil {
		return nil, err
	}
	enc, err := c.encodeTyped(typed)
	if err != nil {
		return nil, mirrorerrors.EncodingError(c.field, v, err)
	}
	return enc, nil
}

func (c Codec) encodeTyped(v any) (any, error) {
	switch t := v.(type) {
	case uint8:
		return float64(t), nil
	case int16:
		return float64(t), nil
	case int32:
		return float64(t), nil
	case int64:
		if t > maxExactInt || t < -maxExactInt {
			return nil, fmt.Errorf("%d exceeds the exact numeric range", t)
		}
		return float64(t), nil
	case float32:
		if math.IsNaN(float64(t)) {
			return nil, fmt.Errorf("NaN is not indexable")
		}
		return float64(t), nil
	case float64:
		if math.IsNaN(t) {
			return nil, fmt.Errorf("NaN is not indexable")
		}
		return t, nil
	case bool:
		if t {
			return "1", nil
		}
		return "0", nil
	case decimal.Decimal:
		return c.decimal.encode(t)
	case time.Time:
		return encodeDate(t)
	case []byte:
		return hex.EncodeToString(t), nil
	case uuid.UUID:
		return t.String(), nil
	case string:
		return t, nil
	default:
		return nil, fmt.Errorf("unsupported type %T", v)
	}
}

// Decode converts a stored value back to the field's canonical Go type.
// Missing values decode to nil.
func (c Codec) Decode(stored any) (any, error) {
	if list, ok := stored.([]any); ok {
		if len(list) == 0 {
			return nil, nil
		}
		stored = list[0]
	}
	if stored == nil {
		return nil, nil
	}
	var (
		v   any
		err error
	)
	switch c.kind {
	case KindDecimal:
		if s, ok := stored.(string); ok {
			v, err = c.decimal.decode(s)
		} else {
			v, err = toDecimal(stored)
		}
	case KindDateTime:
		if s, ok := stored.(string); ok {
			v, err = decodeDate(s)
		} else {
			v, err = toTime(stored)
		}
	default:
		v, err = coerce(c.kind, stored)
	}
	if err != nil {
		return nil, mirrorerrors.EncodingError(c.field, stored, err)
	}
	return v, nil
}

// Canonical renders a value for inclusion in an identity key.
func (c Codec) Canonical(v any) (string, error) {
	typed, err := c.Coerce(v)
	if err != nil {
		return "", err
	}
	switch t := typed.(type) {
	case nil:
		return "", mirrorerrors.EncodingError(c.field, v, fmt.Errorf("key value is null"))
	case string:
		return t, nil
	case bool:
		return strconv.FormatBool(t), nil
	case uint8:
		return strconv.FormatUint(uint64(t), 10), nil
	case int16:
		return strconv.FormatInt(int64(t), 10), nil
	case int32:
		return strconv.FormatInt(int64(t), 10), nil
	case int64:
		return strconv.FormatInt(t, 10), nil
	case float32:
		return strconv.FormatFloat(float64(t), 'g', -1, 32), nil
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64), nil
	case decimal.Decimal:
		return c.decimal.canonical(t), nil
	case time.Time:
		s, err := encodeDate(t)
		if err != nil {
			return "", mirrorerrors.EncodingError(c.field, v, err)
		}
		return s, nil
	case []byte:
		return hex.EncodeToString(t), nil
	case uuid.UUID:
		return t.String(), nil
	default:
		return "", mirrorerrors.EncodingError(c.field, v, fmt.Errorf("unsupported type %T", typed))
	}
}

// SortKey returns the sort category.
func (c Codec) SortKey() SortKind {
	if sk, ok := sortKinds[c.kind]; ok {
		return sk
	}
	return SortString
}

// SortField builds a bleve sort on the field named name.
func (c Codec) SortField(name string, desc bool) *search.SortField {
	typ := search.SortFieldAsString
	if c.SortKey().Numeric() {
		typ = search.SortFieldAsNumber
	}
	return &search.SortField{
		Field:   name,
		Desc:    desc,
		Type:    typ,
		Missing: search.SortFieldMissingLast,
	}
}

// ExactQuery matches documents whose field name equals v. Numeric fields
// use a zero-width inclusive range; analyzed strings use a phrase match
// through the field's analyzer; everything else is a single term.
func (c Codec) ExactQuery(name string, v any) (query.Query, error) {
	if !c.index {
		return nil, fmt.Errorf("field %s is not indexed", name)
	}
	enc, err := c.Encode(v)
	if err != nil {
		return nil, err
	}
	switch e := enc.(type) {
	case float64:
		inclusive := true
		q := bleve.NewNumericRangeInclusiveQuery(&e, &e, &inclusive, &inclusive)
		q.SetField(name)
		return q, nil
	case string:
		if c.kind == KindString && c.analyzer != keyword.Name {
			q := bleve.NewMatchPhraseQuery(e)
			q.SetField(name)
			return q, nil
		}
		q := bleve.NewTermQuery(e)
		q.SetField(name)
		return q, nil
	default:
		return nil, mirrorerrors.EncodingError(c.field, v, fmt.Errorf("key value is null"))
	}
}

// Mapping returns the bleve field mapping for the field.
func (c Codec) Mapping() *mapping.FieldMapping {
	var fm *mapping.FieldMapping
	switch {
	case c.kind.Numeric():
		fm = bleve.NewNumericFieldMapping()
	case c.kind == KindString && c.analyzer != keyword.Name:
		fm = bleve.NewTextFieldMapping()
		fm.Analyzer = c.analyzer
		fm.IncludeTermVectors = false
	default:
		fm = bleve.NewKeywordFieldMapping()
		fm.IncludeTermVectors = false
	}
	fm.Store = c.store
	fm.Index = c.index
	fm.DocValues = c.index
	fm.IncludeInAll = c.index && c.kind == KindString
	return fm
}

func encodeDate(t time.Time) (string, error) {
	t = t.UTC()
	if y := t.Year(); y < 1 || y > 9999 {
		return "", fmt.Errorf("year %d outside 0001-9999", y)
	}
	return t.Format(dateLayout) + fmt.Sprintf("%03d", t.Nanosecond()/int(time.Millisecond)), nil
}

func decodeDate(s string) (time.Time, error) {
	if len(s) != len(dateLayout)+3 {
		return time.Time{}, fmt.Errorf("date %q is not %d digits", s, len(dateLayout)+3)
	}
	t, err := time.Parse(dateLayout, s[:len(dateLayout)])
	if err != nil {
		return time.Time{}, err
	}
	ms, err := strconv.Atoi(s[len(dateLayout):])
	if err != nil {
		return time.Time{}, fmt.Errorf("date %q: %w", s, err)
	}
	return t.Add(time.Duration(ms) * time.Millisecond), nil
}
