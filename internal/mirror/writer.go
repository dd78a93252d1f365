package mirror

import (
	"context"
	"log/slog"

	"github.com/blevesearch/bleve/v2"

	mirrorerrors "github.com/dalenewman/tflmirror/internal/errors"
	"github.com/dalenewman/tflmirror/internal/schema"
	"github.com/dalenewman/tflmirror/internal/store"
)

// WriteResult counts what one Write committed.
type WriteResult struct {
	Inserts int
	Updates int
	// Duplicates counts probes that matched more than one document.
	Duplicates int
}

// Writer upserts rows into the mirror index by identity key.
type Writer struct {
	ctx  *Context
	mode schema.Mode
}

// NewWriter creates a writer. In init mode every row is an insert and the
// index is not probed.
func NewWriter(c *Context, mode schema.Mode) *Writer {
	return &Writer{ctx: c, mode: mode}
}

// Write stages every row and commits once. Any failure discards the whole
// batch: nothing becomes visible and the entity counters are unchanged.
func (w *Writer) Write(ctx context.Context, rows []schema.Row) (WriteResult, error) {
	var result WriteResult
	if len(rows) == 0 {
		return result, nil
	}

	wr, err := w.ctx.dir.OpenWriter()
	if err != nil {
		return result, w.ctx.annotate(err)
	}
	defer wr.Close()

	var probe *store.Searcher
	if w.mode != schema.ModeInit {
		probe, err = w.ctx.dir.OpenSearcher()
		if err != nil {
			return result, err
		}
		defer probe.Close()
	}

	staged := make(map[string]located, len(rows))
	for _, row := range rows {
		if err := ctx.Err(); err != nil {
			return WriteResult{}, err
		}

		doc, identity, err := w.ctx.document(row)
		if err != nil {
			return WriteResult{}, err
		}

		loc, found, err := w.locate(ctx, probe, staged, identity, &result)
		if err != nil {
			return WriteResult{}, err
		}
		if !found {
			key, err := w.ctx.nextSurrogate(ctx)
			if err != nil {
				return WriteResult{}, err
			}
			loc = located{id: identity, key: key}
			doc[schema.SurrogateField] = float64(key)
			if err := wr.Add(loc.id, doc); err != nil {
				return WriteResult{}, err
			}
			result.Inserts++
		} else {
			doc[schema.SurrogateField] = float64(loc.key)
			if err := wr.Update(loc.id, doc); err != nil {
				return WriteResult{}, err
			}
			result.Updates++
		}
		staged[identity] = loc
	}

	if err := wr.Commit(); err != nil {
		w.ctx.logger.Error("mirror_commit_failed",
			slog.Int("staged", len(rows)),
			slog.String("error", err.Error()))
		return WriteResult{}, w.ctx.annotate(err)
	}

	for identity, loc := range staged {
		w.ctx.identities.Add(identity, loc)
	}
	w.ctx.entity.Inserts += uint64(result.Inserts)
	w.ctx.entity.Updates += uint64(result.Updates)

	w.ctx.logger.Info("mirror_write_committed",
		slog.String("mode", string(w.mode)),
		slog.Int("inserts", result.Inserts),
		slog.Int("updates", result.Updates))
	return result, nil
}

// locate finds where identity already lives: earlier in this batch, in the
// identity cache, or in the committed index. Init mode only consults the
// batch, so a repeated identity within one batch still updates in place.
func (w *Writer) locate(ctx context.Context, probe *store.Searcher, staged map[string]located, identity string, result *WriteResult) (located, bool, error) {
	if loc, ok := staged[identity]; ok {
		return loc, true, nil
	}
	if probe == nil {
		return located{}, false, nil
	}
	if loc, ok := w.ctx.identities.Get(identity); ok {
		return loc, true, nil
	}

	q := bleve.NewTermQuery(identity)
	q.SetField(schema.IdentityField)
	res, err := probe.Search(ctx, store.Request{
		Query:  q,
		Fields: []string{schema.SurrogateField},
		Size:   1,
		Sort:   w.ctx.insertionOrder(),
	})
	if err != nil {
		return located{}, false, err
	}
	if res.Total == 0 || len(res.Hits) == 0 {
		return located{}, false, nil
	}
	if res.Total > 1 {
		result.Duplicates++
		dup := mirrorerrors.DuplicateIdentityError(identity, res.Total)
		w.ctx.logger.Warn("duplicate_identity", slog.Any("error", mirrorerrors.FormatForLog(dup)))
	}

	hit := res.Hits[0]
	key, err := w.ctx.surrogateCodec.Decode(hit.Fields[schema.SurrogateField])
	if err != nil {
		return located{}, false, w.ctx.annotate(err)
	}
	if key == nil {
		// a document without a surrogate key gets one on first update
		fresh, err := w.ctx.nextSurrogate(ctx)
		if err != nil {
			return located{}, false, err
		}
		return located{id: hit.ID, key: fresh}, true, nil
	}
	return located{id: hit.ID, key: key.(int64)}, true, nil
}
