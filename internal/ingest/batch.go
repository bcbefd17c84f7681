package ingest

import (
	"context"
	"log"
	"strings"

	"avr/api/internal/canonical"
	"avr/api/internal/identity"
	"avr/api/internal/search"
	"avr/api/internal/store"
)

// RecordStore is the slice of the Postgres store the orchestrator writes
// through. Reads used during validation go through ChainReader instead.
type RecordStore interface {
	WithTx(ctx context.Context, fn func(tx store.Querier) error) error
	FindOrCreateVendor(ctx context.Context, q store.Querier, name string) (int64, error)
	InsertAntibody(ctx context.Context, q store.Querier, a store.Antibody) (int64, error)
	SetNextVersion(ctx context.Context, q store.Querier, previousID, nextID string) error
}

// Indexer mirrors every record into the search index.
type Indexer interface {
	IndexAntibody(doc search.AntibodyDoc) error
	SetNextVersion(previousRegistryID, nextRegistryID string) error
}

// EvidenceStore keeps uploaded evidence documents.
type EvidenceStore interface {
	Stage(ctx context.Context, antibodyUUID, filename string, data []byte) (string, error)
}

type Orchestrator struct {
	validator *Validator
	records   RecordStore
	index     Indexer
	files     EvidenceStore
	minter    identity.Minter
}

func NewOrchestrator(v *Validator, records RecordStore, index Indexer, files EvidenceStore, minter identity.Minter) *Orchestrator {
	return &Orchestrator{
		validator: v,
		records:   records,
		index:     index,
		files:     files,
		minter:    minter,
	}
}

// Batch is one multipart submission: sheets, evidence documents and the
// identity of the submitter.
type Batch struct {
	Sheets    []File
	PDFs      []File
	Principal identity.Principal
	GroupID   string
	Token     string
}

type CreatedRecord struct {
	RegistryID string `json:"antibody_hubmap_id"`
	Name       string `json:"antibody_name"`
}

type Result struct {
	Created         []CreatedRecord
	UnprocessedPDFs []string
}

// Import validates every row of every sheet first, then persists the whole
// batch in one transaction with a search index write per row. Any failure in
// either phase leaves the record store untouched.
func (o *Orchestrator) Import(ctx context.Context, batch Batch) (Result, error) {
	if len(batch.Sheets) == 0 {
		return Result{}, clientErrf("TSV file missing")
	}

	var results []RowResult
	claimed := make(map[string]int)
	for _, sheet := range batch.Sheets {
		if sheet.Name == "" {
			return Result{}, clientErrf("Filename missing in uploaded files")
		}
		if !IsSheet(sheet.Name) {
			return Result{}, clientErrf("Incorrect File Type. TSV and PDF files required.")
		}
		rows, err := ParseSheet(sheet)
		if err != nil {
			return Result{}, err
		}
		for i, row := range rows {
			res, err := o.validator.ValidateRow(ctx, i+2, row, batch.PDFs, claimed)
			if err != nil {
				return Result{}, err
			}
			results = append(results, res)
		}
	}

	var created []CreatedRecord
	processed := make(map[string]bool)
	err := o.records.WithTx(ctx, func(tx store.Querier) error {
		for _, res := range results {
			rec, err := o.persistRow(ctx, tx, res, batch)
			if err != nil {
				return err
			}
			created = append(created, rec)
			if res.EvidenceFilename != "" {
				processed[res.EvidenceFilename] = true
			}
		}
		return nil
	})
	if err != nil {
		return Result{}, err
	}

	var unprocessed []string
	for _, pdf := range batch.PDFs {
		if !processed[pdf.Name] {
			unprocessed = append(unprocessed, pdf.Name)
		}
	}
	return Result{Created: created, UnprocessedPDFs: unprocessed}, nil
}

func (o *Orchestrator) persistRow(ctx context.Context, tx store.Querier, res RowResult, batch Batch) (CreatedRecord, error) {
	row := res.Row

	vendorID, err := o.records.FindOrCreateVendor(ctx, tx, row.Vendor)
	if err != nil {
		log.Printf("ingest: vendor %q for row %d: %v", row.Vendor, res.Num, err)
		return CreatedRecord{}, systemError()
	}

	minted, err := o.minter.Mint(ctx, batch.Token)
	if err != nil {
		log.Printf("ingest: minting identity for row %d: %v", res.Num, err)
		return CreatedRecord{}, systemError()
	}

	avrUUID := ""
	if res.EvidenceFilename != "" {
		avrUUID, err = o.files.Stage(ctx, minted.UUID, res.EvidenceFilename, res.EvidenceData)
		if err != nil {
			log.Printf("ingest: staging evidence %q for row %d: %v", res.EvidenceFilename, res.Num, err)
			return CreatedRecord{}, systemError()
		}
	}

	a, err := buildRecord(row, res, minted, avrUUID, vendorID, batch)
	if err != nil {
		return CreatedRecord{}, err
	}
	if a.ID, err = o.records.InsertAntibody(ctx, tx, a); err != nil {
		log.Printf("ingest: inserting row %d: %v", res.Num, err)
		return CreatedRecord{}, systemError()
	}

	if err := o.index.IndexAntibody(search.DocFromAntibody(a, res.Target.Aliases)); err != nil {
		log.Printf("ingest: indexing row %d: %v", res.Num, err)
		return CreatedRecord{}, systemError()
	}

	if row.PreviousVersionID != "" {
		if err := o.records.SetNextVersion(ctx, tx, row.PreviousVersionID, a.RegistryID); err != nil {
			log.Printf("ingest: back-linking %q for row %d: %v", row.PreviousVersionID, res.Num, err)
			return CreatedRecord{}, systemError()
		}
		// The index back-link is repairable by a reindex, so its failure does
		// not sink the batch.
		if err := o.index.SetNextVersion(row.PreviousVersionID, a.RegistryID); err != nil {
			log.Printf("ingest: index back-link %q -> %q: %v", row.PreviousVersionID, a.RegistryID, err)
		}
	}

	return CreatedRecord{RegistryID: a.RegistryID, Name: res.EvidenceFilename}, nil
}

// buildRecord assembles the persisted form of a validated row, applying the
// persist-time normalizations so equivalent submissions store identically.
func buildRecord(row Row, res RowResult, minted identity.MintedID, avrUUID string, vendorID int64, batch Batch) (store.Antibody, error) {
	recombinant, err := canonical.YesNo(row.Recombinant)
	if err != nil {
		return store.Antibody{}, clientErrf("TSV file row# %d: %v", res.Num, err)
	}
	protocolDOI, err := canonical.DOIList(row.ProtocolDOI)
	if err != nil {
		return store.Antibody{}, clientErrf("TSV file row# %d: %v", res.Num, err)
	}
	manuscriptDOI := row.ManuscriptDOI
	if manuscriptDOI != "" {
		if manuscriptDOI, err = canonical.DOI(manuscriptDOI); err != nil {
			return store.Antibody{}, clientErrf("TSV file row# %d: %v", res.Num, err)
		}
	}

	return store.Antibody{
		UUID:       minted.UUID,
		RegistryID: minted.RegistryID,

		AVRFilename: res.EvidenceFilename,
		AVRUUID:     avrUUID,

		ProtocolDOI:         protocolDOI,
		ManuscriptDOI:       manuscriptDOI,
		UniprotAccession:    row.ProteinAccession,
		TargetSymbol:        res.Target.Symbol,
		RRID:                row.ReagentID,
		Host:                capitalize(row.Host),
		Clonality:           strings.ToLower(row.Clonality),
		CloneID:             row.CloneID,
		CatalogNumber:       row.CatalogNumber,
		LotNumber:           row.LotNumber,
		Recombinant:         recombinant,
		Organ:               strings.ToLower(row.Organ),
		OrganUberonID:       row.OrganUberonID,
		Method:              row.Method,
		AuthorORCIDs:        row.AuthorORCIDs,
		HGNCID:              row.NomenclatureID,
		Isotype:             row.Isotype,
		Concentration:       row.ConcentrationValue,
		DilutionFactor:      row.DilutionFactor,
		Conjugate:           row.Conjugate,
		TissuePreservation:  row.TissuePreservation,
		CycleNumber:         row.CycleNumber,
		FluorescentReporter: row.FluorescentReporter,
		VendorAffiliation:   row.VendorAffiliation,
		AntigenRetrieval:    row.AntigenRetrieval,
		OMAPID:              row.OMAPID,

		VendorID:   vendorID,
		VendorName: row.Vendor,

		CreatedByName:  batch.Principal.Name,
		CreatedByEmail: batch.Principal.Email,
		CreatedBySub:   batch.Principal.Sub,
		GroupUUID:      batch.GroupID,

		PreviousVersionID:          row.PreviousVersionID,
		PreviousVersionPDFUUID:     res.PrevPDFUUID,
		PreviousVersionPDFFilename: res.PrevPDFFilename,
	}, nil
}

// capitalize upper-cases the first letter and lower-cases the rest, so hosts
// like "RABBIT" and "rabbit" store identically.
func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + strings.ToLower(s[1:])
}

func systemError() *Error {
	return internalErrf("We couldn't complete your request due to a system error." +
		" Your data has not been saved. Please try again in a few minutes." +
		" If the problem continues, contact support.")
}
