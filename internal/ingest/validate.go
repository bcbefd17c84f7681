package ingest

import (
	"context"
	"errors"
	"strings"

	"avr/api/internal/authority"
	"avr/api/internal/canonical"
	"avr/api/internal/evidence"
)

// Authority is the slice of the catalogue client the validator needs.
type Authority interface {
	ResolveTargets(ctx context.Context, targets string) (authority.TargetData, error)
	CheckProteinAccessions(ctx context.Context, accessions string) error
	CheckNomenclatureIDs(ctx context.Context, ids string) error
	CheckResearcherIDs(ctx context.Context, orcids string) error
	CheckReagentID(ctx context.Context, rrid string) error
	CheckDOI(ctx context.Context, doi string) error
	CheckOntologyTerm(ctx context.Context, id string) error
}

// ChainReader answers the version chain questions the validator asks of the
// record store.
type ChainReader interface {
	NextVersionOf(ctx context.Context, registryID string) (string, bool, error)
	PreviousVersionEvidence(ctx context.Context, registryID string) (string, string, error)
}

type Validator struct {
	catalogues Authority
	chain      ChainReader
}

func NewValidator(catalogues Authority, chain ChainReader) *Validator {
	return &Validator{catalogues: catalogues, chain: chain}
}

// RowResult carries what validation learned so the persist phase does not
// have to look it up again.
type RowResult struct {
	Num int
	Row Row

	// Evidence document matched by name, empty when the row claims none.
	EvidenceFilename string
	EvidenceData     []byte

	// Approved target symbol and searchable aliases from the gene catalogue.
	Target authority.TargetData

	// Snapshot of the predecessor's evidence document, when the row extends
	// a version chain.
	PrevPDFUUID     string
	PrevPDFFilename string
}

// ValidateRow runs every check for one sheet row, short-circuiting on the
// first failure. claimedPredecessors tracks previous_version_id values seen
// earlier in the batch so two rows cannot extend the same record.
func (v *Validator) ValidateRow(ctx context.Context, num int, row Row, pdfs []File, claimedPredecessors map[string]int) (RowResult, error) {
	res := RowResult{Num: num, Row: row}

	if err := v.checkStructure(num, row); err != nil {
		return res, err
	}
	if err := v.checkEvidence(num, row, pdfs, &res); err != nil {
		return res, err
	}
	if err := v.checkVersionChain(ctx, num, row, claimedPredecessors, &res); err != nil {
		return res, err
	}
	if err := v.checkCatalogues(ctx, num, row, &res); err != nil {
		return res, err
	}
	return res, nil
}

func (v *Validator) checkStructure(num int, row Row) error {
	for _, item := range row.values() {
		for _, r := range item {
			if r == '\n' || r == '\r' {
				return clientErrf("TSV file row# %d: line break characters are not permitted in a data item", num)
			}
			if r < 0x20 || r >= 0x7f {
				return clientErrf("TSV file row# %d: non-printable characters are not permitted in a data item", num)
			}
		}
	}

	concentration := row.ConcentrationValue != ""
	dilution := row.DilutionFactor != ""
	if concentration == dilution {
		return clientErrf("TSV file row# %d: 'concentration_value' or 'dilution_factor'"+
			" but not both, and one must be present", num)
	}

	monoclonal := strings.ToLower(row.Clonality) == "monoclonal"
	if (monoclonal && row.CloneID == "") || (!monoclonal && row.CloneID != "") {
		return clientErrf("TSV file row# %d: When clonality is 'monoclonal' then 'clone_id'"+
			" must be specified otherwise 'clone_id' should not be specified", num)
	}

	if (row.Organ != "") != (row.OrganUberonID != "") {
		return clientErrf("TSV file row# %d: Both 'organ' and 'organ_uberon_id'"+
			" must be present if any one of them are present", num)
	}

	if _, err := canonical.YesNo(row.Recombinant); err != nil {
		return clientErrf("TSV file row# %d: recombinant value '%s' is not one of: %s",
			num, row.Recombinant, strings.Join(canonical.YesNoAccepted(), ", "))
	}
	return nil
}

func (v *Validator) checkEvidence(num int, row Row, pdfs []File, res *RowResult) error {
	if row.AVRFilename == "" {
		return nil
	}
	for _, f := range pdfs {
		if f.Name != row.AVRFilename {
			continue
		}
		if len(f.Data) >= evidence.MaxPDFBytes {
			return clientErrf("TSV file row# %d: avr_pdf_filename '%s' is over maximum file size of 10MB",
				num, row.AVRFilename)
		}
		if !evidence.ValidPDF(f.Data) {
			return clientErrf("TSV file row# %d: avr_pdf_filename '%s' found, but not a valid PDF file",
				num, row.AVRFilename)
		}
		res.EvidenceFilename = f.Name
		res.EvidenceData = f.Data
		return nil
	}
	return clientErrf("TSV file row# %d: avr_pdf_filename '%s' is not found", num, row.AVRFilename)
}

func (v *Validator) checkVersionChain(ctx context.Context, num int, row Row, claimedPredecessors map[string]int, res *RowResult) error {
	prev := row.PreviousVersionID
	if prev == "" {
		return nil
	}
	if _, taken := claimedPredecessors[prev]; taken {
		return clientErrf(`Multiple rows contain the same value "previous_version_id".` +
			" Each antibody may only have a single next version")
	}
	claimedPredecessors[prev] = num

	next, found, err := v.chain.NextVersionOf(ctx, prev)
	if err != nil {
		return internalErrf("TSV file row# %d: Problem encountered while validating previous_version_id", num)
	}
	if !found {
		return clientErrf("TSV file row# %d: previous_version_id '%s' does not exist", num, prev)
	}
	if next != "" {
		return clientErrf("TSV file row# %d: previous_version_id '%s' already has a newer version specified (next_version_id='%s')",
			num, prev, next)
	}

	pdfUUID, pdfFilename, err := v.chain.PreviousVersionEvidence(ctx, prev)
	if err != nil {
		return internalErrf("TSV file row# %d: Problem encountered while validating previous_version_id", num)
	}
	res.PrevPDFUUID = pdfUUID
	res.PrevPDFFilename = pdfFilename
	return nil
}

func (v *Validator) checkCatalogues(ctx context.Context, num int, row Row, res *RowResult) error {
	if err := v.catalogues.CheckProteinAccessions(ctx, row.ProteinAccession); err != nil {
		return lookupErr(num, err)
	}
	if err := v.catalogues.CheckNomenclatureIDs(ctx, row.NomenclatureID); err != nil {
		return lookupErr(num, err)
	}
	target, err := v.catalogues.ResolveTargets(ctx, row.TargetSymbol)
	if err != nil {
		return lookupErr(num, err)
	}
	res.Target = target
	if err := v.catalogues.CheckReagentID(ctx, row.ReagentID); err != nil {
		return lookupErr(num, err)
	}

	protocolDOIs, err := canonical.DOIList(row.ProtocolDOI)
	if err != nil {
		return clientErrf("TSV file row# %d: %v", num, err)
	}
	for _, doi := range strings.Split(protocolDOIs, ",") {
		if err := v.catalogues.CheckDOI(ctx, strings.TrimSpace(doi)); err != nil {
			return lookupErr(num, err)
		}
	}

	if err := v.catalogues.CheckResearcherIDs(ctx, row.AuthorORCIDs); err != nil {
		return lookupErr(num, err)
	}
	if row.OrganUberonID != "" {
		if err := v.catalogues.CheckOntologyTerm(ctx, row.OrganUberonID); err != nil {
			return lookupErr(num, err)
		}
	}
	if row.ManuscriptDOI != "" {
		doi, err := canonical.DOI(row.ManuscriptDOI)
		if err != nil {
			return clientErrf("TSV file row# %d: %v", num, err)
		}
		if err := v.catalogues.CheckDOI(ctx, doi); err != nil {
			return lookupErr(num, err)
		}
	}
	return nil
}

// lookupErr folds a catalogue lookup failure into the row error taxonomy.
// Registry outages are the caller's fault, not the submitter's.
func lookupErr(num int, err error) *Error {
	var le *authority.LookupError
	if errors.As(err, &le) && le.Kind == authority.Unreachable {
		return upstreamErrf("TSV file row# %d: %v", num, le)
	}
	return clientErrf("TSV file row# %d: %v", num, err)
}
