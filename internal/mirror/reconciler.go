package mirror

import (
	"context"
	"log/slog"

	"github.com/blevesearch/bleve/v2"

	"github.com/dalenewman/tflmirror/internal/schema"
	"github.com/dalenewman/tflmirror/internal/store"
)

// Reconciler flags mirror documents whose identity no longer appears in
// the source. Flagged documents stay in the index with TflDeleted "1".
type Reconciler struct {
	source     RowSource
	mirror     *Context
	transforms []KeyTransform
}

// NewReconciler compares the primary keys read from source against the
// mirror. With no transforms the default-value and truncation transforms
// apply.
func NewReconciler(source RowSource, mirror *Context, transforms ...KeyTransform) *Reconciler {
	if len(transforms) == 0 {
		transforms = DefaultKeyTransforms()
	}
	return &Reconciler{source: source, mirror: mirror, transforms: transforms}
}

// Reconcile flags missing documents in one commit and returns how many
// were newly flagged. Entities without delete detection are skipped.
func (r *Reconciler) Reconcile(ctx context.Context) (int, error) {
	entity := r.mirror.entity
	if !entity.Delete {
		return 0, nil
	}

	present, err := r.sourceIdentities(ctx)
	if err != nil {
		return 0, err
	}
	missing, err := r.missingDocuments(ctx, present)
	if err != nil {
		return 0, err
	}
	if len(missing) == 0 {
		r.mirror.logger.Info("mirror_reconciled", slog.Int("flagged", 0))
		return 0, nil
	}

	docs, err := r.storedDocuments(ctx, missing)
	if err != nil {
		return 0, err
	}

	wr, err := r.mirror.dir.OpenWriter()
	if err != nil {
		return 0, r.mirror.annotate(err)
	}
	defer wr.Close()

	for id, doc := range docs {
		doc[schema.DeletedField] = "1"
		if err := wr.Update(id, doc); err != nil {
			return 0, err
		}
	}
	if err := wr.Commit(); err != nil {
		return 0, r.mirror.annotate(err)
	}

	// evicted so a reappearing identity is probed, not served stale
	for _, identity := range missing {
		r.mirror.identities.Remove(identity)
	}
	entity.Deletes += uint64(len(docs))
	r.mirror.logger.Info("mirror_reconciled", slog.Int("flagged", len(docs)))
	return len(docs), nil
}

func (r *Reconciler) sourceIdentities(ctx context.Context) (map[string]struct{}, error) {
	pk := r.mirror.pk
	present := make(map[string]struct{})
	for row, err := range r.source.Read(ctx) {
		if err != nil {
			return nil, err
		}
		identity, err := r.mirror.Identity(applyTransforms(pk, row, r.transforms))
		if err != nil {
			return nil, err
		}
		present[identity] = struct{}{}
	}
	return present, nil
}

// missingDocuments maps document ids of active mirror documents whose
// identity is absent from present.
func (r *Reconciler) missingDocuments(ctx context.Context, present map[string]struct{}) (map[string]string, error) {
	s, err := r.mirror.dir.OpenSearcher()
	if err != nil {
		return nil, err
	}
	defer s.Close()

	res, err := s.Search(ctx, store.Request{
		Query:  r.mirror.activeQuery(),
		Fields: []string{schema.IdentityField},
		Size:   store.AllHits,
	})
	if err != nil {
		return nil, err
	}

	missing := make(map[string]string)
	for _, hit := range res.Hits {
		identity, _ := hit.Fields[schema.IdentityField].(string)
		if _, ok := present[identity]; !ok {
			missing[hit.ID] = identity
		}
	}
	return missing, nil
}

// storedDocuments loads every stored field of the given documents so they
// can be re-indexed unchanged apart from the flag.
func (r *Reconciler) storedDocuments(ctx context.Context, missing map[string]string) (map[string]map[string]any, error) {
	ids := make([]string, 0, len(missing))
	for id := range missing {
		ids = append(ids, id)
	}

	s, err := r.mirror.dir.OpenSearcher()
	if err != nil {
		return nil, err
	}
	defer s.Close()

	res, err := s.Search(ctx, store.Request{
		Query:  bleve.NewDocIDQuery(ids),
		Fields: []string{"*"},
		Size:   len(ids),
	})
	if err != nil {
		return nil, err
	}

	docs := make(map[string]map[string]any, len(res.Hits))
	for _, hit := range res.Hits {
		doc := make(map[string]any, len(hit.Fields))
		for k, v := range hit.Fields {
			doc[k] = v
		}
		docs[hit.ID] = doc
	}
	return docs, nil
}
