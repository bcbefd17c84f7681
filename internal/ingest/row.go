package ingest

import (
	"bytes"
	"encoding/csv"
	"io"
	"path/filepath"
	"sort"
	"strings"
)

// File is one part of a multipart upload, fully read into memory. Evidence
// documents are small enough for this (the transport enforces the 10MB cap
// before parsing begins).
type File struct {
	Name string
	Data []byte
}

// Row is one data line of a submission sheet. Every field is kept as the
// trimmed string the submitter supplied; normalization happens only at
// persist time so validation errors can quote the original text.
type Row struct {
	ProteinAccession    string
	NomenclatureID      string
	TargetSymbol        string
	Isotype             string
	Host                string
	Clonality           string
	CloneID             string
	Vendor              string
	CatalogNumber       string
	LotNumber           string
	Recombinant         string
	ConcentrationValue  string
	DilutionFactor      string
	Conjugate           string
	ReagentID           string
	Method              string
	TissuePreservation  string
	ProtocolDOI         string
	ManuscriptDOI       string
	AuthorORCIDs        string
	VendorAffiliation   string
	Organ               string
	OrganUberonID       string
	AntigenRetrieval    string
	AVRFilename         string
	OMAPID              string
	CycleNumber         string
	FluorescentReporter string
	PreviousVersionID   string
}

// columns maps sheet header names to row fields. Header comparison is done
// on the lower-cased, trimmed form.
var columns = map[string]func(*Row) *string{
	"uniprot_accession_number": func(r *Row) *string { return &r.ProteinAccession },
	"hgnc_id":                  func(r *Row) *string { return &r.NomenclatureID },
	"target_symbol":            func(r *Row) *string { return &r.TargetSymbol },
	"isotype":                  func(r *Row) *string { return &r.Isotype },
	"host":                     func(r *Row) *string { return &r.Host },
	"clonality":                func(r *Row) *string { return &r.Clonality },
	"clone_id":                 func(r *Row) *string { return &r.CloneID },
	"vendor":                   func(r *Row) *string { return &r.Vendor },
	"catalog_number":           func(r *Row) *string { return &r.CatalogNumber },
	"lot_number":               func(r *Row) *string { return &r.LotNumber },
	"recombinant":              func(r *Row) *string { return &r.Recombinant },
	"concentration_value":      func(r *Row) *string { return &r.ConcentrationValue },
	"dilution_factor":          func(r *Row) *string { return &r.DilutionFactor },
	"conjugate":                func(r *Row) *string { return &r.Conjugate },
	"rrid":                     func(r *Row) *string { return &r.ReagentID },
	"method":                   func(r *Row) *string { return &r.Method },
	"tissue_preservation":      func(r *Row) *string { return &r.TissuePreservation },
	"protocol_doi":             func(r *Row) *string { return &r.ProtocolDOI },
	"manuscript_doi":           func(r *Row) *string { return &r.ManuscriptDOI },
	"author_orcids":            func(r *Row) *string { return &r.AuthorORCIDs },
	"vendor_affiliation":       func(r *Row) *string { return &r.VendorAffiliation },
	"organ":                    func(r *Row) *string { return &r.Organ },
	"organ_uberon_id":          func(r *Row) *string { return &r.OrganUberonID },
	"antigen_retrieval":        func(r *Row) *string { return &r.AntigenRetrieval },
	"avr_pdf_filename":         func(r *Row) *string { return &r.AVRFilename },
	"omap_id":                  func(r *Row) *string { return &r.OMAPID },
	"cycle_number":             func(r *Row) *string { return &r.CycleNumber },
	"fluorescent_reporter":     func(r *Row) *string { return &r.FluorescentReporter },
	"previous_version_id":      func(r *Row) *string { return &r.PreviousVersionID },
}

func headerNames() []string {
	names := make([]string, 0, len(columns))
	for name := range columns {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// values returns every field of the row, for the per-item structural checks.
func (r *Row) values() []string {
	out := make([]string, 0, len(columns))
	for _, field := range columns {
		out = append(out, *field(r))
	}
	return out
}

// IsSheet reports whether a filename looks like a submission sheet.
func IsSheet(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ".tsv")
}

// stripNonPrintable drops characters outside printable ASCII, so trademark
// glyphs and stray control characters pasted from spreadsheet tools do not
// poison a cell. Newlines survive so the line-break check can still reject
// embedded breaks explicitly.
func stripNonPrintable(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if (r >= 0x20 && r < 0x7f) || r == '\n' {
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String())
}

// ParseSheet reads a tab-separated submission sheet into typed rows. The
// header must carry exactly the known column set; anything else is a
// structural error naming the offending headers.
func ParseSheet(f File) ([]Row, error) {
	rd := csv.NewReader(bytes.NewReader(f.Data))
	rd.Comma = '\t'
	rd.LazyQuotes = true

	header, err := rd.Read()
	if err == io.EOF {
		return nil, clientErrf("TSV file %q has no header row", f.Name)
	}
	if err != nil {
		return nil, clientErrf("TSV file %q is malformed: %v", f.Name, err)
	}

	fields := make([]func(*Row) *string, len(header))
	seen := make(map[string]bool, len(header))
	var unknown []string
	for i, h := range header {
		key := strings.ToLower(strings.TrimSpace(h))
		field, ok := columns[key]
		if !ok {
			unknown = append(unknown, key)
			continue
		}
		fields[i] = field
		seen[key] = true
	}
	if len(unknown) > 0 || len(seen) != len(columns) {
		return nil, clientErrf(
			"TSV Header Error: One or more key in TSV was invalid. Headers should be one of %s",
			strings.Join(headerNames(), ", "))
	}

	var rows []Row
	for {
		record, err := rd.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, clientErrf("TSV file %q row# %d: %v", f.Name, len(rows)+2, err)
		}
		var row Row
		for i, value := range record {
			if fields[i] == nil {
				continue
			}
			*fields[i](&row) = stripNonPrintable(value)
		}
		rows = append(rows, row)
	}
	if len(rows) == 0 {
		return nil, clientErrf("TSV file %q has no data rows", f.Name)
	}
	return rows, nil
}
