package search

import "avr/api/internal/store"

// AntibodyDoc is the indexed projection of a persisted record. It carries
// two fields the store never holds: the vendor display name and the derived
// target aliases.
type AntibodyDoc struct {
	UUID                string   `json:"antibody_uuid"`
	RegistryID          string   `json:"antibody_hubmap_id"`
	AVRUUID             string   `json:"avr_pdf_uuid,omitempty"`
	AVRFilename         string   `json:"avr_pdf_filename,omitempty"`
	ProtocolDOI         string   `json:"protocol_doi"`
	ManuscriptDOI       string   `json:"manuscript_doi"`
	UniprotAccession    string   `json:"uniprot_accession_number"`
	TargetSymbol        string   `json:"target_symbol"`
	TargetAliases       []string `json:"target_aliases"`
	RRID                string   `json:"rrid"`
	Host                string   `json:"host"`
	Clonality           string   `json:"clonality"`
	CloneID             string   `json:"clone_id"`
	VendorName          string   `json:"vendor_name"`
	CatalogNumber       string   `json:"catalog_number"`
	LotNumber           string   `json:"lot_number"`
	Recombinant         string   `json:"recombinant"`
	Organ               string   `json:"organ"`
	OrganUberonID       string   `json:"organ_uberon_id"`
	OMAPID              string   `json:"omap_id"`
	AntigenRetrieval    string   `json:"antigen_retrieval"`
	HGNCID              string   `json:"hgnc_id"`
	Isotype             string   `json:"isotype"`
	Concentration       string   `json:"concentration_value"`
	DilutionFactor      string   `json:"dilution_factor"`
	Conjugate           string   `json:"conjugate"`
	Method              string   `json:"method"`
	TissuePreservation  string   `json:"tissue_preservation"`
	CycleNumber         string   `json:"cycle_number"`
	FluorescentReporter string   `json:"fluorescent_reporter"`
	AuthorORCIDs        string   `json:"author_orcids"`
	VendorAffiliation   string   `json:"vendor_affiliation"`
	CreatedByName       string   `json:"created_by_user_displayname"`
	CreatedByEmail      string   `json:"created_by_user_email"`
	PreviousVersionID   string   `json:"previous_version_id"`
	NextVersionID       string   `json:"next_version_id"`

	PreviousVersionPDFUUID     string `json:"previous_version_pdf_uuid"`
	PreviousVersionPDFFilename string `json:"previous_version_pdf_filename"`
}

// DocFromAntibody builds the index projection of a persisted record.
func DocFromAntibody(a store.Antibody, aliases []string) AntibodyDoc {
	return AntibodyDoc{
		UUID:                a.UUID,
		RegistryID:          a.RegistryID,
		AVRUUID:             a.AVRUUID,
		AVRFilename:         a.AVRFilename,
		ProtocolDOI:         a.ProtocolDOI,
		ManuscriptDOI:       a.ManuscriptDOI,
		UniprotAccession:    a.UniprotAccession,
		TargetSymbol:        a.TargetSymbol,
		TargetAliases:       aliases,
		RRID:                a.RRID,
		Host:                a.Host,
		Clonality:           a.Clonality,
		CloneID:             a.CloneID,
		VendorName:          a.VendorName,
		CatalogNumber:       a.CatalogNumber,
		LotNumber:           a.LotNumber,
		Recombinant:         a.Recombinant,
		Organ:               a.Organ,
		OrganUberonID:       a.OrganUberonID,
		OMAPID:              a.OMAPID,
		AntigenRetrieval:    a.AntigenRetrieval,
		HGNCID:              a.HGNCID,
		Isotype:             a.Isotype,
		Concentration:       a.Concentration,
		DilutionFactor:      a.DilutionFactor,
		Conjugate:           a.Conjugate,
		Method:              a.Method,
		TissuePreservation:  a.TissuePreservation,
		CycleNumber:         a.CycleNumber,
		FluorescentReporter: a.FluorescentReporter,
		AuthorORCIDs:        a.AuthorORCIDs,
		VendorAffiliation:   a.VendorAffiliation,
		CreatedByName:       a.CreatedByName,
		CreatedByEmail:      a.CreatedByEmail,
		PreviousVersionID:   a.PreviousVersionID,
		NextVersionID:       a.NextVersionID,

		PreviousVersionPDFUUID:     a.PreviousVersionPDFUUID,
		PreviousVersionPDFFilename: a.PreviousVersionPDFFilename,
	}
}
