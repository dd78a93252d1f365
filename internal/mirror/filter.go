package mirror

import (
	"fmt"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/search/query"

	mirrorerrors "github.com/dalenewman/tflmirror/internal/errors"
	"github.com/dalenewman/tflmirror/internal/schema"
)

// Filter is an entity's declared filter as one query.
type Filter struct {
	Query query.Query
	// Expression is the human-readable form, e.g. "(F1:X) AND (F2:Y)".
	Expression string
}

// BuildFilter folds the entity's filter clauses left to right into one
// boolean query. Each clause is joined to the next by its own connector;
// the last clause's connector is ignored. With no clauses the filter
// matches every document.
func (c *Context) BuildFilter() (Filter, error) {
	clauses := c.entity.Filter
	if len(clauses) == 0 {
		return Filter{Query: bleve.NewMatchAllQuery()}, nil
	}

	var (
		acc  query.Query
		text strings.Builder
	)
	for i, clause := range clauses {
		q, rendered, err := c.clauseQuery(clause)
		if err != nil {
			return Filter{}, err
		}
		if i == 0 {
			acc = q
			fmt.Fprintf(&text, "(%s)", rendered)
			continue
		}
		connector := clauses[i-1].Connector()
		if connector == schema.Or {
			acc = bleve.NewDisjunctionQuery(acc, q)
		} else {
			acc = bleve.NewConjunctionQuery(acc, q)
		}
		fmt.Fprintf(&text, " %s (%s)", connector, rendered)
	}
	return Filter{Query: acc, Expression: text.String()}, nil
}

func (c *Context) clauseQuery(clause schema.FilterClause) (query.Query, string, error) {
	if expr := strings.TrimSpace(clause.Expression); expr != "" {
		q, err := bleve.NewQueryStringQuery(expr).Parse()
		if err != nil {
			return nil, "", c.annotate(mirrorerrors.QueryParseError(expr, err))
		}
		return q, expr, nil
	}

	rendered := clause.Field + ":" + clause.Value
	f, ok := c.entity.Field(clause.Field)
	if !ok {
		return nil, "", c.annotate(mirrorerrors.QueryParseError(rendered,
			fmt.Errorf("unknown field %s", clause.Field)))
	}
	cd, ok := c.codecs[f.Name]
	if !ok {
		return nil, "", c.annotate(mirrorerrors.QueryParseError(rendered,
			fmt.Errorf("field %s is not searchable", clause.Field)))
	}
	q, err := cd.ExactQuery(c.Key(f), clause.Value)
	if err != nil {
		return nil, "", c.annotate(mirrorerrors.QueryParseError(rendered, err))
	}
	return q, rendered, nil
}
