package store

import (
	"context"
	"fmt"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/search"
	"github.com/blevesearch/bleve/v2/search/query"

	mirrorerrors "github.com/dalenewman/tflmirror/internal/errors"
)

// AllHits requests every matching document.
const AllHits = -1

// Request describes one query against a directory.
type Request struct {
	Query query.Query
	// Fields lists stored fields to load; "*" loads all of them.
	Fields []string
	// Size caps the hits returned. AllHits sizes the request to the
	// document count so the whole result is materialized.
	Size int
	Sort search.SortOrder
}

// Searcher runs queries against the committed state of a directory.
type Searcher struct {
	dir    *Directory
	index  bleve.Index
	closed bool
}

// OpenSearcher returns a searcher over the directory's committed documents.
func (d *Directory) OpenSearcher() (*Searcher, error) {
	idx, err := d.Index()
	if err != nil {
		return nil, err
	}
	return &Searcher{dir: d, index: idx}, nil
}

// Count returns the number of documents, including flagged ones.
func (s *Searcher) Count() (uint64, error) {
	if s.closed {
		return 0, fmt.Errorf("searcher is closed")
	}
	n, err := s.index.DocCount()
	if err != nil {
		return 0, mirrorerrors.New(mirrorerrors.ErrCodeSearchFailed, "failed to count documents", err).
			WithDetail("path", s.dir.name())
	}
	return n, nil
}

// Search executes req.
func (s *Searcher) Search(ctx context.Context, req Request) (*bleve.SearchResult, error) {
	if s.closed {
		return nil, fmt.Errorf("searcher is closed")
	}
	q := req.Query
	if q == nil {
		q = bleve.NewMatchAllQuery()
	}

	size := req.Size
	if size == AllHits {
		n, err := s.Count()
		if err != nil {
			return nil, err
		}
		size = int(n)
	}

	sr := bleve.NewSearchRequest(q)
	sr.Size = size
	sr.Fields = req.Fields
	if len(req.Sort) > 0 {
		sr.SortByCustom(req.Sort)
	}

	result, err := s.index.SearchInContext(ctx, sr)
	if err != nil {
		return nil, mirrorerrors.New(mirrorerrors.ErrCodeSearchFailed, "search failed", err).
			WithDetail("path", s.dir.name())
	}
	return result, nil
}

// Close releases the searcher. The shared index stays open.
func (s *Searcher) Close() error {
	s.closed = true
	return nil
}
