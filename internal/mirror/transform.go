package mirror

import (
	"github.com/dalenewman/tflmirror/internal/schema"
)

// KeyTransform adjusts a field value before it is written or before a
// source key is compared with the mirror. Writer and Reconciler apply the
// same defaults so both sides render keys the same way.
type KeyTransform interface {
	Transform(f schema.Field, v any) any
}

// KeyTransformFunc adapts a function to KeyTransform.
type KeyTransformFunc func(f schema.Field, v any) any

// Transform calls fn.
func (fn KeyTransformFunc) Transform(f schema.Field, v any) any { return fn(f, v) }

// DefaultValue replaces nil with the field's configured default.
var DefaultValue KeyTransform = KeyTransformFunc(func(f schema.Field, v any) any {
	if v == nil && f.Default != "" {
		return f.Default
	}
	return v
})

// Truncate cuts strings to the field's Length in runes.
var Truncate KeyTransform = KeyTransformFunc(func(f schema.Field, v any) any {
	s, ok := v.(string)
	if !ok || f.Length <= 0 {
		return v
	}
	runes := []rune(s)
	if len(runes) <= f.Length {
		return v
	}
	return string(runes[:f.Length])
})

// DefaultKeyTransforms is the order applied by writers, and by a
// reconciler when none are given.
func DefaultKeyTransforms() []KeyTransform {
	return []KeyTransform{DefaultValue, Truncate}
}

func applyTransforms(fields []schema.Field, row schema.Row, transforms []KeyTransform) schema.Row {
	out := make(schema.Row, len(fields))
	for _, f := range fields {
		v := row[f.Name]
		for _, t := range transforms {
			v = t.Transform(f, v)
		}
		out[f.Name] = v
	}
	return out
}
