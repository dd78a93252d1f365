// Package analysis resolves the analyzer each field is indexed with and
// installs the analyzers bleve does not ship under the expected names.
package analysis

import (
	"fmt"
	"strings"

	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/simple"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/analysis/tokenizer/whitespace"
	"github.com/blevesearch/bleve/v2/mapping"

	"github.com/dalenewman/tflmirror/internal/schema"
)

// Configured analyzer names.
const (
	Keyword    = "keyword"
	Simple     = "simple"
	Whitespace = "whitespace"
	Standard   = "standard"
	Default    = Keyword
)

// WhitespaceAnalyzerName is the bleve name of the whitespace analyzer,
// which splits on whitespace and keeps case.
const WhitespaceAnalyzerName = "tfl_whitespace"

// bleveNames maps configured names to registered bleve analyzers.
var bleveNames = map[string]string{
	Keyword:    keyword.Name,
	Simple:     simple.Name,
	Whitespace: WhitespaceAnalyzerName,
	Standard:   standard.Name,
}

// Known reports whether name is a recognized analyzer.
func Known(name string) bool {
	_, ok := bleveNames[strings.ToLower(strings.TrimSpace(name))]
	return ok
}

// Resolve returns the bleve analyzer for a configured name. Empty or
// unrecognized names fall back to keyword.
func Resolve(name string) string {
	if n, ok := bleveNames[strings.ToLower(strings.TrimSpace(name))]; ok {
		return n
	}
	return keyword.Name
}

// Table maps a document field name to its bleve analyzer.
type Table map[string]string

// Analyzer returns the analyzer for field, or keyword when absent.
func (t Table) Analyzer(field string) string {
	if a, ok := t[field]; ok {
		return a
	}
	return keyword.Name
}

// Resolver builds analyzer tables from search types.
type Resolver struct {
	searchTypes schema.SearchTypes
}

// NewResolver creates a resolver over the given search types.
func NewResolver(searchTypes schema.SearchTypes) *Resolver {
	if searchTypes == nil {
		searchTypes = schema.DefaultSearchTypes()
	}
	return &Resolver{searchTypes: searchTypes}
}

// ForField returns the analyzer for f. ok is false when the field's search
// type neither stores nor indexes it.
func (r *Resolver) ForField(f schema.Field) (analyzer string, ok bool) {
	st := r.searchTypes.Lookup(f.SearchType)
	if !st.Store && !st.Index {
		return "", false
	}
	return Resolve(st.Analyzer), true
}

// Build returns the table for fields keyed by name on the source side and
// by alias on the mirror side.
func (r *Resolver) Build(fields []schema.Field, side schema.Side) Table {
	t := make(Table, len(fields))
	for _, f := range fields {
		if a, ok := r.ForField(f); ok {
			t[f.Key(side)] = a
		}
	}
	return t
}

// Register installs the custom analyzers into m and sets keyword as the
// default analyzer.
func Register(m *mapping.IndexMappingImpl) error {
	err := m.AddCustomAnalyzer(WhitespaceAnalyzerName, map[string]interface{}{
		"type":      custom.Name,
		"tokenizer": whitespace.Name,
	})
	if err != nil {
		return fmt.Errorf("failed to add whitespace analyzer: %w", err)
	}
	m.DefaultAnalyzer = keyword.Name
	return nil
}
