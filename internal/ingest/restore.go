package ingest

import (
	"context"
	"log"

	"avr/api/internal/search"
	"avr/api/internal/store"
)

// RecordLister streams every persisted record, oldest first.
type RecordLister interface {
	ListAntibodies(ctx context.Context) ([]store.Antibody, error)
}

// RebuildIndex is the slice of the search index a full rebuild needs.
type RebuildIndex interface {
	Wipe() error
	IndexAntibody(doc search.AntibodyDoc) error
}

// AliasResolver re-derives searchable target aliases during a rebuild.
// Implementations return the symbol itself when the catalogue cannot help.
type AliasResolver interface {
	TargetAliases(ctx context.Context, symbol string) []string
}

// Rebuilder drops and recreates the search index from the record store. The
// record store is the source of truth, so this is always safe to run.
type Rebuilder struct {
	records RecordLister
	index   RebuildIndex
	aliases AliasResolver
}

func NewRebuilder(records RecordLister, index RebuildIndex, aliases AliasResolver) *Rebuilder {
	return &Rebuilder{records: records, index: index, aliases: aliases}
}

// Rebuild wipes the index and reloads it row by row, returning the number of
// records indexed. Alias resolution is best effort; a catalogue outage must
// not block restoring searchability.
func (r *Rebuilder) Rebuild(ctx context.Context) (int, error) {
	if err := r.index.Wipe(); err != nil {
		return 0, internalErrf("resetting search index: %v", err)
	}
	antibodies, err := r.records.ListAntibodies(ctx)
	if err != nil {
		return 0, internalErrf("loading records: %v", err)
	}
	count := 0
	for _, a := range antibodies {
		aliases := r.aliases.TargetAliases(ctx, a.TargetSymbol)
		if err := r.index.IndexAntibody(search.DocFromAntibody(a, aliases)); err != nil {
			return count, internalErrf("indexing %s: %v", a.RegistryID, err)
		}
		count++
	}
	log.Printf("ingest: search index rebuilt with %d records", count)
	return count, nil
}
