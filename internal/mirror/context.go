// Package mirror keeps a search index in step with a tabular source.
//
// A Context binds one entity to its index directory with codecs and
// analyzers resolved once. Reader streams rows back out of an index,
// Writer upserts rows by identity key, and Reconciler flags documents
// whose identities have disappeared from the source.
package mirror

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/dalenewman/tflmirror/internal/analysis"
	"github.com/dalenewman/tflmirror/internal/codec"
	mirrorerrors "github.com/dalenewman/tflmirror/internal/errors"
	"github.com/dalenewman/tflmirror/internal/schema"
	"github.com/dalenewman/tflmirror/internal/store"
)

// DefaultIdentityCacheSize is the default number of identities remembered
// between batches.
const DefaultIdentityCacheSize = 10000

// Options configures a Context.
type Options struct {
	// Folder holds one index per entity alias. Empty keeps the index in memory.
	Folder string
	// Side selects name-keyed (source) or alias-keyed (mirror) documents.
	Side schema.Side
	// SearchTypes resolves each field's storage and analyzer.
	SearchTypes schema.SearchTypes
	// IdentityCacheSize bounds the identity cache; <= 0 uses the default.
	IdentityCacheSize int
	// MustExist fails with ERR_201 instead of creating a missing index.
	MustExist bool
	Logger    *slog.Logger
}

// located is where an identity was last written.
type located struct {
	id  string
	key int64
}

// Context is the per-entity state shared by readers and writers.
type Context struct {
	entity *schema.Entity
	side   schema.Side
	dir    *store.Directory

	// fields that are stored or indexed, in declared order
	fields []schema.Field
	codecs map[string]codec.Codec
	pk     []schema.Field

	identityCodec  codec.Codec
	surrogateCodec codec.Codec
	deletedCodec   codec.Codec

	identities *lru.Cache[string, located]

	keyMu   sync.Mutex
	nextKey int64
	seeded  bool

	logger *slog.Logger
}

// NewContext resolves codecs and analyzers for entity and binds it to its
// index. The index itself is opened on first use.
func NewContext(entity *schema.Entity, opts Options) (*Context, error) {
	if err := entity.Validate(); err != nil {
		return nil, mirrorerrors.ConfigError(err.Error(), err)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cacheSize := opts.IdentityCacheSize
	if cacheSize <= 0 {
		cacheSize = DefaultIdentityCacheSize
	}
	identities, err := lru.New[string, located](cacheSize)
	if err != nil {
		return nil, mirrorerrors.InternalError("failed to create identity cache", err)
	}

	c := &Context{
		entity:         entity,
		side:           opts.Side,
		codecs:         make(map[string]codec.Codec, len(entity.Fields)),
		identityCodec:  codec.ForKind(schema.IdentityField, codec.KindString),
		surrogateCodec: codec.ForKind(schema.SurrogateField, codec.KindInt64),
		deletedCodec:   codec.ForKind(schema.DeletedField, codec.KindString),
		identities:     identities,
		logger:         logger.With(slog.String("entity", entity.OutputName())),
	}

	resolver := analysis.NewResolver(opts.SearchTypes)
	searchTypes := opts.SearchTypes
	if searchTypes == nil {
		searchTypes = schema.DefaultSearchTypes()
	}
	for _, f := range entity.Fields {
		if _, ok := resolver.ForField(f); ok {
			c.fields = append(c.fields, f)
		}
	}
	analyzers := resolver.Build(c.fields, c.side)
	for _, f := range c.fields {
		c.codecs[f.Name] = codec.New(f, searchTypes.Lookup(f.SearchType), analyzers.Analyzer(c.Key(f)))
	}

	// primary keys are needed for identity even when not stored
	for _, f := range entity.PrimaryKey() {
		if _, ok := c.codecs[f.Name]; !ok {
			c.codecs[f.Name] = codec.New(f, schema.SearchType{}, "")
		}
		c.pk = append(c.pk, f)
	}

	m, err := c.buildMapping()
	if err != nil {
		return nil, err
	}

	path := ""
	if opts.Folder != "" {
		path = filepath.Join(opts.Folder, entity.OutputName())
		if opts.MustExist {
			if _, err := os.Stat(path); err != nil {
				return nil, mirrorerrors.New(mirrorerrors.ErrCodeFileNotFound,
					fmt.Sprintf("index %s not found", path), err).
					WithDetail("entity", entity.OutputName()).
					WithSuggestion("Run tflmirror sync first, or check the connection folder")
			}
		}
	}
	c.dir = store.NewDirectory(path, m, c.logger)
	return c, nil
}

func (c *Context) buildMapping() (*mapping.IndexMappingImpl, error) {
	im := bleve.NewIndexMapping()
	if err := analysis.Register(im); err != nil {
		return nil, mirrorerrors.InternalError("failed to register analyzers", err)
	}

	dm := bleve.NewDocumentMapping()
	dm.Dynamic = false
	for _, f := range c.fields {
		dm.AddFieldMappingsAt(c.Key(f), c.codecs[f.Name].Mapping())
	}
	dm.AddFieldMappingsAt(schema.IdentityField, c.identityCodec.Mapping())
	dm.AddFieldMappingsAt(schema.SurrogateField, c.surrogateCodec.Mapping())
	dm.AddFieldMappingsAt(schema.DeletedField, c.deletedCodec.Mapping())

	im.DefaultMapping = dm
	im.StoreDynamic = false
	im.IndexDynamic = false
	im.DocValuesDynamic = false
	return im, nil
}

// Entity returns the bound entity.
func (c *Context) Entity() *schema.Entity { return c.entity }

// Side returns the naming side of the index.
func (c *Context) Side() schema.Side { return c.side }

// Directory returns the entity's index directory.
func (c *Context) Directory() *store.Directory { return c.dir }

// Fields returns the stored or indexed fields in declared order.
func (c *Context) Fields() []schema.Field { return c.fields }

// Key returns the document field name of f on this context's side.
func (c *Context) Key(f schema.Field) string { return f.Key(c.side) }

// Codec returns the codec for the named field.
func (c *Context) Codec(name string) (codec.Codec, bool) {
	cd, ok := c.codecs[name]
	return cd, ok
}

// Identity builds the identity key of row by concatenating the canonical
// rendering of each primary-key value in declared order.
func (c *Context) Identity(row schema.Row) (string, error) {
	var b strings.Builder
	for _, f := range c.pk {
		part, err := c.codecs[f.Name].Canonical(row[f.Name])
		if err != nil {
			return "", c.annotate(err)
		}
		b.WriteString(part)
	}
	return b.String(), nil
}

// document encodes row into an index document with the reserved fields
// set, except the surrogate key. Defaults and length limits are applied
// first so the identity matches what a Reconciler computes for the same
// source row.
func (c *Context) document(row schema.Row) (map[string]any, string, error) {
	row = c.shape(row)
	doc := make(map[string]any, len(c.fields)+3)
	for _, f := range c.fields {
		v, err := c.codecs[f.Name].Encode(row[f.Name])
		if err != nil {
			return nil, "", c.annotate(err)
		}
		if v != nil {
			doc[c.Key(f)] = v
		}
	}
	identity, err := c.Identity(row)
	if err != nil {
		return nil, "", err
	}
	doc[schema.IdentityField] = identity
	doc[schema.DeletedField] = "0"
	return doc, identity, nil
}

// shape applies the default-value and truncation transforms to every
// configured field of row.
func (c *Context) shape(row schema.Row) schema.Row {
	return applyTransforms(c.entity.Fields, row, DefaultKeyTransforms())
}

// decode turns stored hit fields back into a row keyed by field name.
func (c *Context) decode(fields map[string]interface{}, subset []schema.Field) (schema.Row, error) {
	row := make(schema.Row, len(subset)+2)
	for _, f := range subset {
		cd, ok := c.codecs[f.Name]
		if !ok {
			row[f.Name] = nil
			continue
		}
		v, err := cd.Decode(fields[c.Key(f)])
		if err != nil {
			return nil, c.annotate(err)
		}
		row[f.Name] = v
	}
	if c.side == schema.SideMirror {
		if key, err := c.surrogateCodec.Decode(fields[schema.SurrogateField]); err == nil && key != nil {
			row[schema.SurrogateField] = key
		}
		if id, ok := fields[schema.IdentityField].(string); ok {
			row[schema.IdentityField] = id
		}
	}
	return row, nil
}

// nextSurrogate returns a fresh surrogate key, seeding the counter from the
// largest key in the index on first use.
func (c *Context) nextSurrogate(ctx context.Context) (int64, error) {
	c.keyMu.Lock()
	defer c.keyMu.Unlock()

	if !c.seeded {
		highest, err := c.MaxSurrogateKey(ctx)
		if err != nil {
			return 0, err
		}
		c.nextKey = highest
		c.seeded = true
	}
	c.nextKey++
	return c.nextKey, nil
}

func (c *Context) resetSurrogates() {
	c.keyMu.Lock()
	defer c.keyMu.Unlock()
	c.nextKey = 0
	c.seeded = false
}

// Rebind starts a new run on an unchanged entity definition: counters
// restart from e and the surrogate counter reseeds from the index. The
// identity cache is kept.
func (c *Context) Rebind(e *schema.Entity) {
	c.entity = e
	c.resetSurrogates()
}

// annotate adds the entity to structured errors.
func (c *Context) annotate(err error) error {
	if me, ok := err.(*mirrorerrors.MirrorError); ok {
		return me.WithDetail("entity", c.entity.OutputName())
	}
	return fmt.Errorf("entity %s: %w", c.entity.OutputName(), err)
}

// Close releases the entity's index.
func (c *Context) Close() error {
	return c.dir.Close()
}
