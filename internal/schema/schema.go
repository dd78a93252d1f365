// Package schema defines the configuration-time model of a mirrored entity:
// fields, search types, filter clauses, and the transient rows that flow
// from a source into the index.
package schema

import (
	"fmt"
	"strings"
)

// Reserved document fields. They must not collide with any configured alias.
const (
	// IdentityField holds the Identity Key as an exact-match term.
	IdentityField = "TflId"
	// SurrogateField holds the Surrogate Key assigned at first insert.
	SurrogateField = "TflKey"
	// DeletedField holds the logical-delete flag ("1" or "0").
	DeletedField = "TflDeleted"
)

// IsReserved reports whether name is one of the reserved document fields.
func IsReserved(name string) bool {
	switch name {
	case IdentityField, SurrogateField, DeletedField:
		return true
	}
	return false
}

// Field is one column of an entity.
type Field struct {
	// Name is the source-side identifier.
	Name string
	// Alias is the output-side identifier. Empty means Name.
	Alias string
	// Type is the raw type tag (int, decimal, datetime, ...).
	Type string
	// Precision and Scale apply to decimal fields.
	Precision int
	Scale     int
	// Length is the maximum string width stored on the output side (0 = unbounded).
	Length int
	// Default replaces nil values when primary keys are transformed for comparison.
	Default string
	// SearchType names the SearchType controlling storage and analysis.
	SearchType string
	// PrimaryKey marks the field as part of the entity's identity.
	PrimaryKey bool
}

// OutputName returns the alias, falling back to the name.
func (f Field) OutputName() string {
	if f.Alias != "" {
		return f.Alias
	}
	return f.Name
}

// Key returns the document field name used on the given side.
func (f Field) Key(side Side) string {
	if side == SideSource {
		return f.Name
	}
	return f.OutputName()
}

// Side selects the field-naming convention of an index.
type Side int

const (
	// SideMirror reads and writes documents keyed by field alias.
	SideMirror Side = iota
	// SideSource reads and writes documents keyed by source field name.
	SideSource
)

// String returns a human-readable name for the side.
func (s Side) String() string {
	if s == SideSource {
		return "source"
	}
	return "mirror"
}

// Mode distinguishes a full rebuild from an incremental run.
type Mode string

const (
	// ModeInit rebuilds the index; every row is an insert.
	ModeInit Mode = "init"
	// ModeIncremental probes for an existing identity before writing.
	ModeIncremental Mode = "default"
)

// ParseMode converts a configured mode string into a Mode.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "init":
		return ModeInit, nil
	case "", "default", "incremental":
		return ModeIncremental, nil
	default:
		return "", fmt.Errorf("unknown mode %q (valid: init, default)", s)
	}
}

// Continuation joins a filter clause to the next one.
type Continuation string

const (
	And Continuation = "AND"
	Or  Continuation = "OR"
)

// FilterClause is one element of an entity's declared filter.
// Either Expression is set, or Field and Value are.
type FilterClause struct {
	Field        string
	Value        string
	Expression   string
	Continuation Continuation
}

// Connector returns the normalized continuation, defaulting to AND.
func (c FilterClause) Connector() Continuation {
	if strings.EqualFold(string(c.Continuation), string(Or)) {
		return Or
	}
	return And
}

// Entity is an ordered set of fields mirrored into one index.
type Entity struct {
	Name   string
	Alias  string
	Fields []Field
	// Delete enables delete detection for the entity.
	Delete bool
	// Version names a field whose maximum marks how far the mirror has caught up.
	Version string
	Filter  []FilterClause

	// Counters mutated by writes and reconciliation.
	Inserts uint64
	Updates uint64
	Deletes uint64
}

// OutputName returns the alias, falling back to the name.
func (e *Entity) OutputName() string {
	if e.Alias != "" {
		return e.Alias
	}
	return e.Name
}

// PrimaryKey returns the primary-key fields in declared order.
func (e *Entity) PrimaryKey() []Field {
	var pk []Field
	for _, f := range e.Fields {
		if f.PrimaryKey {
			pk = append(pk, f)
		}
	}
	return pk
}

// Field looks up a field by name.
func (e *Entity) Field(name string) (Field, bool) {
	for _, f := range e.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Validate checks the invariants the index relies on.
func (e *Entity) Validate() error {
	if e.Name == "" {
		return fmt.Errorf("entity name is required")
	}
	if len(e.PrimaryKey()) == 0 {
		return fmt.Errorf("entity %s: primary key is required", e.Name)
	}
	seen := make(map[string]bool, len(e.Fields))
	for _, f := range e.Fields {
		if f.Name == "" {
			return fmt.Errorf("entity %s: field name is required", e.Name)
		}
		out := f.OutputName()
		if IsReserved(out) || IsReserved(f.Name) {
			return fmt.Errorf("entity %s: field %s collides with a reserved field", e.Name, out)
		}
		// bleve treats dots as object paths
		if strings.Contains(out, ".") || strings.Contains(f.Name, ".") {
			return fmt.Errorf("entity %s: field %s must not contain '.'", e.Name, out)
		}
		if seen[out] {
			return fmt.Errorf("entity %s: duplicate field alias %s", e.Name, out)
		}
		seen[out] = true
	}
	if e.Version != "" {
		if _, ok := e.Field(e.Version); !ok {
			return fmt.Errorf("entity %s: version field %s is not defined", e.Name, e.Version)
		}
	}
	return nil
}

// SearchType configures how a field is stored, indexed and analyzed.
type SearchType struct {
	Name     string
	Analyzer string
	Store    bool
	Index    bool
	Norms    bool
}

// Built-in search type names.
const (
	SearchTypeDefault = "default"
	SearchTypeNone    = "none"
)

// SearchTypes is a lookup of search types by name.
type SearchTypes map[string]SearchType

// DefaultSearchTypes returns the built-in search types.
func DefaultSearchTypes() SearchTypes {
	return SearchTypes{
		SearchTypeDefault: {Name: SearchTypeDefault, Store: true, Index: true},
		SearchTypeNone:    {Name: SearchTypeNone},
	}
}

// Lookup returns the named search type; empty or unknown names resolve to default.
func (s SearchTypes) Lookup(name string) SearchType {
	if name == "" {
		name = SearchTypeDefault
	}
	if st, ok := s[name]; ok {
		return st
	}
	if st, ok := s[SearchTypeDefault]; ok {
		return st
	}
	return DefaultSearchTypes()[SearchTypeDefault]
}

// Row maps field names to typed values.
type Row map[string]any
