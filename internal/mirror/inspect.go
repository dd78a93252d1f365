package mirror

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/search"
	"github.com/blevesearch/bleve/v2/search/query"

	"github.com/dalenewman/tflmirror/internal/schema"
	"github.com/dalenewman/tflmirror/internal/store"
)

// Initialize empties the entity's index for a full rebuild and forgets
// every cached identity and surrogate key.
func (c *Context) Initialize() error {
	if err := c.dir.Reset(); err != nil {
		return c.annotate(err)
	}
	c.identities.Purge()
	c.resetSurrogates()
	c.logger.Info("mirror_initialized")
	return nil
}

// Count returns the number of documents, including flagged ones.
func (c *Context) Count() (uint64, error) {
	s, err := c.dir.OpenSearcher()
	if err != nil {
		return 0, err
	}
	defer s.Close()
	return s.Count()
}

// ActiveCount returns the number of documents not flagged as deleted.
func (c *Context) ActiveCount(ctx context.Context) (uint64, error) {
	res, err := c.top(ctx, c.activeQuery(), nil, 0)
	if err != nil {
		return 0, err
	}
	return res.Total, nil
}

// MaxSurrogateKey returns the largest surrogate key in the index, or 0 when
// the index is empty.
func (c *Context) MaxSurrogateKey(ctx context.Context) (int64, error) {
	sort := search.SortOrder{c.surrogateCodec.SortField(schema.SurrogateField, true)}
	res, err := c.top(ctx, nil, sort, 1, schema.SurrogateField)
	if err != nil {
		return 0, err
	}
	if len(res.Hits) == 0 {
		return 0, nil
	}
	v, err := c.surrogateCodec.Decode(res.Hits[0].Fields[schema.SurrogateField])
	if err != nil || v == nil {
		return 0, err
	}
	return v.(int64), nil
}

// MaxVersion returns the highest value of the entity's version field, or
// nil when the entity has no version field or the index is empty.
func (c *Context) MaxVersion(ctx context.Context) (any, error) {
	if c.entity.Version == "" {
		return nil, nil
	}
	f, ok := c.entity.Field(c.entity.Version)
	if !ok {
		return nil, fmt.Errorf("entity %s: version field %s is not defined", c.entity.OutputName(), c.entity.Version)
	}
	cd, ok := c.codecs[f.Name]
	if !ok || !cd.Stored() {
		return nil, fmt.Errorf("entity %s: version field %s is not stored", c.entity.OutputName(), f.Name)
	}

	key := c.Key(f)
	sort := search.SortOrder{cd.SortField(key, true)}
	res, err := c.top(ctx, nil, sort, 1, key)
	if err != nil {
		return nil, err
	}
	if len(res.Hits) == 0 {
		return nil, nil
	}
	v, err := cd.Decode(res.Hits[0].Fields[key])
	if err != nil {
		return nil, c.annotate(err)
	}
	c.logger.Debug("max_version", slog.String("field", f.Name), slog.Any("value", v))
	return v, nil
}

func (c *Context) top(ctx context.Context, q query.Query, sort search.SortOrder, size int, fields ...string) (*bleve.SearchResult, error) {
	s, err := c.dir.OpenSearcher()
	if err != nil {
		return nil, err
	}
	defer s.Close()
	return s.Search(ctx, store.Request{Query: q, Fields: fields, Size: size, Sort: sort})
}
