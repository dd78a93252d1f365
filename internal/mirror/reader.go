package mirror

import (
	"context"
	"iter"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/search"
	"github.com/blevesearch/bleve/v2/search/query"

	"github.com/dalenewman/tflmirror/internal/schema"
	"github.com/dalenewman/tflmirror/internal/store"
)

// RowSource yields rows. Every call to Read starts a fresh pass.
type RowSource interface {
	Read(ctx context.Context) iter.Seq2[schema.Row, error]
}

// Reader streams rows out of an entity's index. On the source side it
// applies the entity filter and decodes by field name; on the mirror side
// it skips flagged documents and decodes by alias.
type Reader struct {
	ctx    *Context
	fields []schema.Field
}

// NewReader reads fields from the context's index; no fields means every
// stored field.
func NewReader(c *Context, fields ...schema.Field) *Reader {
	if len(fields) == 0 {
		fields = c.fields
	}
	return &Reader{ctx: c, fields: fields}
}

// Query returns the query Read executes and, on the source side, the
// rendered filter expression.
func (r *Reader) Query() (query.Query, string, error) {
	if r.ctx.side == schema.SideSource {
		f, err := r.ctx.BuildFilter()
		if err != nil {
			return nil, "", err
		}
		return f.Query, f.Expression, nil
	}
	return r.ctx.activeQuery(), "", nil
}

// Read returns a lazy sequence of rows. Each range re-queries the
// committed index; the hit list is materialized before the first row is
// decoded. A failure ends the sequence with a nil row and the error.
func (r *Reader) Read(ctx context.Context) iter.Seq2[schema.Row, error] {
	return func(yield func(schema.Row, error) bool) {
		hits, err := r.search(ctx)
		if err != nil {
			yield(nil, err)
			return
		}
		for _, hit := range hits {
			if err := ctx.Err(); err != nil {
				yield(nil, err)
				return
			}
			row, err := r.ctx.decode(hit.Fields, r.fields)
			if !yield(row, err) || err != nil {
				return
			}
		}
	}
}

func (r *Reader) search(ctx context.Context) (search.DocumentMatchCollection, error) {
	q, _, err := r.Query()
	if err != nil {
		return nil, err
	}
	s, err := r.ctx.dir.OpenSearcher()
	if err != nil {
		return nil, err
	}
	defer s.Close()

	fields := make([]string, 0, len(r.fields)+2)
	for _, f := range r.fields {
		fields = append(fields, r.ctx.Key(f))
	}
	if r.ctx.side == schema.SideMirror {
		fields = append(fields, schema.SurrogateField, schema.IdentityField)
	}

	res, err := s.Search(ctx, store.Request{
		Query:  q,
		Fields: fields,
		Size:   store.AllHits,
		Sort:   r.ctx.insertionOrder(),
	})
	if err != nil {
		return nil, err
	}
	return res.Hits, nil
}

// insertionOrder sorts by surrogate key, then document id for documents
// without one.
func (c *Context) insertionOrder() search.SortOrder {
	return search.SortOrder{
		c.surrogateCodec.SortField(schema.SurrogateField, false),
		&search.SortDocID{},
	}
}

// activeQuery matches documents not flagged as deleted.
func (c *Context) activeQuery() query.Query {
	q := bleve.NewTermQuery("0")
	q.SetField(schema.DeletedField)
	return q
}
