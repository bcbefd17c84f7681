package store

// Antibody is the canonical persisted record. A record is immutable once
// inserted except for the single next_version_id back-link written when a
// later record names it as predecessor.
type Antibody struct {
	ID         int64
	UUID       string
	RegistryID string // antibody_hubmap_id

	AVRFilename string // evidence document filename, empty when none attached
	AVRUUID     string // evidence document file id, empty when none attached

	ProtocolDOI         string
	ManuscriptDOI       string
	UniprotAccession    string
	TargetSymbol        string
	RRID                string
	Host                string
	Clonality           string
	CloneID             string
	CatalogNumber       string
	LotNumber           string
	Recombinant         string
	Organ               string
	OrganUberonID       string
	Method              string
	AuthorORCIDs        string
	HGNCID              string
	Isotype             string
	Concentration       string
	DilutionFactor      string
	Conjugate           string
	TissuePreservation  string
	CycleNumber         string
	FluorescentReporter string
	VendorAffiliation   string
	AntigenRetrieval    string
	OMAPID              string

	VendorID   int64
	VendorName string // joined from vendors, never stored on antibodies

	CreatedTimestamp int64
	CreatedByName    string
	CreatedByEmail   string
	CreatedBySub     string
	GroupUUID        string

	PreviousVersionID          string
	NextVersionID              string // empty until a successor names this record
	PreviousVersionPDFUUID     string
	PreviousVersionPDFFilename string
}

// Vendor names are unique case-insensitively.
type Vendor struct {
	ID   int64
	Name string
}
