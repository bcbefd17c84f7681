package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"

	"avr/api/internal/identity"
	"avr/api/internal/ingest"
	"avr/api/internal/metrics"
	"avr/api/internal/search"
	"avr/api/internal/session"
	"avr/api/internal/store"
)

// Importer runs the batch pipeline.
type Importer interface {
	Import(ctx context.Context, batch ingest.Batch) (ingest.Result, error)
}

// Reindexer rebuilds the search index from the record store.
type Reindexer interface {
	Rebuild(ctx context.Context) (int, error)
}

// PrincipalCache keeps resolved principals keyed by token so repeat requests
// do not hit the identity service.
type PrincipalCache interface {
	Get(ctx context.Context, token string) (identity.Principal, error)
	Put(ctx context.Context, token string, principal identity.Principal) error
}

type recordStore interface {
	Ping(ctx context.Context) error
	WithTx(ctx context.Context, fn func(tx store.Querier) error) error
	FindOrCreateVendor(ctx context.Context, q store.Querier, name string) (int64, error)
	InsertAntibody(ctx context.Context, q store.Querier, a store.Antibody) (int64, error)
	ListAntibodies(ctx context.Context) ([]store.Antibody, error)
}

type recordIndex interface {
	IndexAntibody(doc search.AntibodyDoc) error
	Healthy() bool
}

type Service struct {
	records   recordStore
	index     recordIndex
	importer  Importer
	reindexer Reindexer
	provider  identity.Provider
	cache     PrincipalCache
	minter    identity.Minter
	aliases   ingest.AliasResolver
	metrics   *metrics.Metrics
}

func NewService(
	records recordStore,
	index recordIndex,
	importer Importer,
	reindexer Reindexer,
	provider identity.Provider,
	cache PrincipalCache,
	minter identity.Minter,
	aliases ingest.AliasResolver,
	m *metrics.Metrics,
) *Service {
	return &Service{
		records:   records,
		index:     index,
		importer:  importer,
		reindexer: reindexer,
		provider:  provider,
		cache:     cache,
		minter:    minter,
		aliases:   aliases,
		metrics:   m,
	}
}

func (s *Service) Ping(ctx context.Context) error {
	return s.records.Ping(ctx)
}

func (s *Service) SearchHealthy() bool {
	return s.index.Healthy()
}

func (s *Service) MetricsHandler() http.Handler {
	return s.metrics.Handler()
}

// PrincipalFromToken resolves a bearer token, consulting the cache first.
// Cache failures fall through to the identity service.
func (s *Service) PrincipalFromToken(ctx context.Context, token string) (identity.Principal, error) {
	if s.cache != nil {
		if p, err := s.cache.Get(ctx, token); err == nil {
			return p, nil
		} else if !errors.Is(err, session.ErrMiss) {
			log.Printf("principal cache read: %v", err)
		}
	}
	p, err := s.provider.Resolve(ctx, token)
	if err != nil {
		return identity.Principal{}, domainError(http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
	}
	if s.cache != nil {
		if err := s.cache.Put(ctx, token, p); err != nil {
			log.Printf("principal cache write: %v", err)
		}
	}
	return p, nil
}

// ImportBatch runs the full pipeline for one multipart submission.
func (s *Service) ImportBatch(ctx context.Context, principal identity.Principal, token, requestedGroup string, sheets, pdfs []ingest.File) (map[string]any, error) {
	if !principal.Authorized {
		return nil, domainError(http.StatusForbidden, "FORBIDDEN",
			"Not a member of the AVR uploaders group", nil)
	}
	groupID, err := identity.SelectGroup(principal, requestedGroup)
	if err != nil {
		return nil, domainError(http.StatusNotAcceptable, "NOT_ACCEPTABLE",
			"Not a member of a data provider group or no group_id provided", nil)
	}

	result, err := s.importer.Import(ctx, ingest.Batch{
		Sheets:    sheets,
		PDFs:      pdfs,
		Principal: principal,
		GroupID:   groupID,
		Token:     token,
	})
	if err != nil {
		s.metrics.BatchesRejected.Inc()
		return nil, mapIngestError(err)
	}
	s.metrics.BatchesAccepted.Inc()
	s.metrics.RowsPersisted.Add(float64(len(result.Created)))

	created := result.Created
	if created == nil {
		created = []ingest.CreatedRecord{}
	}
	unprocessed := result.UnprocessedPDFs
	if unprocessed == nil {
		unprocessed = []string{}
	}
	return map[string]any{
		"antibodies":              created,
		"pdf_files_not_processed": unprocessed,
	}, nil
}

// requiredRecordFields are the keys a single-record submission must carry.
// Evidence fields are optional, they only appear when a document was
// uploaded separately.
var requiredRecordFields = []string{
	"uniprot_accession_number", "hgnc_id", "target_symbol", "isotype", "host",
	"clonality", "clone_id", "vendor", "catalog_number", "lot_number", "recombinant",
	"rrid", "method", "tissue_preservation", "protocol_doi", "manuscript_doi",
	"author_orcids", "organ", "organ_uberon_id", "avr_pdf_filename", "cycle_number",
}

// SaveAntibody persists one record submitted as JSON. The record is committed
// before indexing; a failed index write is repairable by a rebuild and must
// not lose the committed record.
func (s *Service) SaveAntibody(ctx context.Context, principal identity.Principal, token, requestedGroup string, antibody map[string]any) (map[string]any, error) {
	for _, field := range requiredRecordFields {
		if _, ok := antibody[field]; !ok {
			return nil, domainError(http.StatusBadRequest, "INVALID_BODY",
				fmt.Sprintf("Antibody data incomplete: missing %s parameter", field), nil)
		}
	}
	groupID, err := identity.SelectGroup(principal, requestedGroup)
	if err != nil {
		return nil, domainError(http.StatusNotAcceptable, "NOT_ACCEPTABLE",
			"Not a member of a data provider group or no group_id provided", nil)
	}

	str := func(key string) string {
		v, _ := antibody[key].(string)
		return strings.TrimSpace(v)
	}

	minted, err := s.minter.Mint(ctx, token)
	if err != nil {
		log.Printf("save antibody: minting identity: %v", err)
		return nil, domainError(http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil)
	}

	a := store.Antibody{
		UUID:       minted.UUID,
		RegistryID: minted.RegistryID,

		AVRFilename: str("avr_pdf_filename"),
		AVRUUID:     str("avr_pdf_uuid"),

		ProtocolDOI:         str("protocol_doi"),
		ManuscriptDOI:       str("manuscript_doi"),
		UniprotAccession:    str("uniprot_accession_number"),
		TargetSymbol:        str("target_symbol"),
		RRID:                str("rrid"),
		Host:                str("host"),
		Clonality:           strings.ToLower(str("clonality")),
		CloneID:             str("clone_id"),
		CatalogNumber:       str("catalog_number"),
		LotNumber:           str("lot_number"),
		Recombinant:         str("recombinant"),
		Organ:               strings.ToLower(str("organ")),
		OrganUberonID:       str("organ_uberon_id"),
		Method:              str("method"),
		AuthorORCIDs:        str("author_orcids"),
		HGNCID:              str("hgnc_id"),
		Isotype:             str("isotype"),
		Concentration:       str("concentration_value"),
		DilutionFactor:      str("dilution_factor"),
		Conjugate:           str("conjugate"),
		TissuePreservation:  str("tissue_preservation"),
		CycleNumber:         str("cycle_number"),
		FluorescentReporter: str("fluorescent_reporter"),
		VendorAffiliation:   str("vendor_affiliation"),
		AntigenRetrieval:    str("antigen_retrieval"),
		OMAPID:              str("omap_id"),

		VendorName: str("vendor"),

		CreatedByName:  principal.Name,
		CreatedByEmail: principal.Email,
		CreatedBySub:   principal.Sub,
		GroupUUID:      groupID,
	}

	err = s.records.WithTx(ctx, func(tx store.Querier) error {
		if a.VendorID, err = s.records.FindOrCreateVendor(ctx, tx, a.VendorName); err != nil {
			return err
		}
		a.ID, err = s.records.InsertAntibody(ctx, tx, a)
		return err
	})
	if err != nil {
		if store.IsUniqueViolation(err) {
			return nil, domainError(http.StatusNotAcceptable, "NOT_ACCEPTABLE", "Antibody not unique", nil)
		}
		log.Printf("save antibody: %v", err)
		return nil, domainError(http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil)
	}

	aliases := s.aliases.TargetAliases(ctx, a.TargetSymbol)
	if err := s.index.IndexAntibody(search.DocFromAntibody(a, aliases)); err != nil {
		log.Printf("save antibody: indexing %s: %v", a.RegistryID, err)
	}
	s.metrics.RowsPersisted.Inc()

	return map[string]any{"id": a.ID, "uuid": a.UUID}, nil
}

// ListAntibodies returns every record, oldest first, in the indexed field
// layout minus the derived aliases.
func (s *Service) ListAntibodies(ctx context.Context) (map[string]any, error) {
	antibodies, err := s.records.ListAntibodies(ctx)
	if err != nil {
		log.Printf("list antibodies: %v", err)
		return nil, domainError(http.StatusInternalServerError, "SERVER_ERROR", "Could not list antibodies", nil)
	}
	docs := make([]search.AntibodyDoc, 0, len(antibodies))
	for _, a := range antibodies {
		docs = append(docs, search.DocFromAntibody(a, nil))
	}
	return map[string]any{"antibodies": docs}, nil
}

// RestoreSearchIndex rebuilds the search index from the record store.
func (s *Service) RestoreSearchIndex(ctx context.Context) (map[string]any, error) {
	count, err := s.reindexer.Rebuild(ctx)
	if err != nil {
		return nil, mapIngestError(err)
	}
	s.metrics.ReindexRuns.Inc()
	return map[string]any{"antibodies_restored": count}, nil
}
