package ingest

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"avr/api/internal/identity"
	"avr/api/internal/search"
	"avr/api/internal/store"
)

type fakeRecords struct {
	inserted  []store.Antibody
	backlinks [][2]string
	vendorErr error
	insertErr error
}

func (f *fakeRecords) WithTx(ctx context.Context, fn func(tx store.Querier) error) error {
	return fn(nil)
}

func (f *fakeRecords) FindOrCreateVendor(_ context.Context, _ store.Querier, name string) (int64, error) {
	if f.vendorErr != nil {
		return 0, f.vendorErr
	}
	return 7, nil
}

func (f *fakeRecords) InsertAntibody(_ context.Context, _ store.Querier, a store.Antibody) (int64, error) {
	if f.insertErr != nil {
		return 0, f.insertErr
	}
	f.inserted = append(f.inserted, a)
	return int64(len(f.inserted)), nil
}

func (f *fakeRecords) SetNextVersion(_ context.Context, _ store.Querier, previousID, nextID string) error {
	f.backlinks = append(f.backlinks, [2]string{previousID, nextID})
	return nil
}

type fakeIndex struct {
	docs      []search.AntibodyDoc
	backlinks [][2]string
	wiped     bool
	indexErr  error
	linkErr   error
	wipeErr   error
}

func (f *fakeIndex) IndexAntibody(doc search.AntibodyDoc) error {
	if f.indexErr != nil {
		return f.indexErr
	}
	f.docs = append(f.docs, doc)
	return nil
}

func (f *fakeIndex) SetNextVersion(previousRegistryID, nextRegistryID string) error {
	if f.linkErr != nil {
		return f.linkErr
	}
	f.backlinks = append(f.backlinks, [2]string{previousRegistryID, nextRegistryID})
	return nil
}

func (f *fakeIndex) Wipe() error {
	if f.wipeErr != nil {
		return f.wipeErr
	}
	f.wiped = true
	return nil
}

type fakeFiles struct {
	staged map[string][]byte
}

func (f *fakeFiles) Stage(_ context.Context, antibodyUUID, filename string, data []byte) (string, error) {
	if f.staged == nil {
		f.staged = make(map[string][]byte)
	}
	f.staged[filename] = data
	return "file-" + antibodyUUID, nil
}

func newTestOrchestrator(records *fakeRecords, index *fakeIndex, files *fakeFiles, chain *fakeChain) *Orchestrator {
	return NewOrchestrator(
		newTestValidator(nil, chain),
		records, index, files,
		&identity.LocalMinter{},
	)
}

func testBatch(sheets []File, pdfs []File) Batch {
	return Batch{
		Sheets:    sheets,
		PDFs:      pdfs,
		Principal: identity.Principal{Name: "Pat Doe", Email: "pat@example.edu", Sub: "sub-1"},
		GroupID:   "group-1",
	}
}

func TestImportPersistsBatch(t *testing.T) {
	withEvidence := validRow()
	withEvidence.AVRFilename = "avr.pdf"
	plain := validRow()
	plain.Host = "GOAT"
	plain.Clonality = "Polyclonal"
	plain.CloneID = ""
	plain.Recombinant = "n"

	pdfs := []File{
		{Name: "avr.pdf", Data: []byte("%PDF-1.4\nhello\n%%EOF\n")},
		{Name: "extra.pdf", Data: []byte("%PDF-1.4\nunused\n%%EOF\n")},
	}
	records := &fakeRecords{}
	index := &fakeIndex{}
	files := &fakeFiles{}
	o := newTestOrchestrator(records, index, files, nil)

	result, err := o.Import(context.Background(),
		testBatch([]File{{Name: "batch.tsv", Data: sheetText(withEvidence, plain)}}, pdfs))
	if err != nil {
		t.Fatalf("Import: %v", err)
	}

	if len(result.Created) != 2 {
		t.Fatalf("expected 2 created records, got %d", len(result.Created))
	}
	if result.Created[0].RegistryID == "" || result.Created[0].Name != "avr.pdf" {
		t.Fatalf("unexpected first record: %+v", result.Created[0])
	}
	if result.Created[1].Name != "" {
		t.Fatalf("second record should have no evidence name: %+v", result.Created[1])
	}
	if len(result.UnprocessedPDFs) != 1 || result.UnprocessedPDFs[0] != "extra.pdf" {
		t.Fatalf("unexpected unprocessed list: %v", result.UnprocessedPDFs)
	}

	if len(records.inserted) != 2 {
		t.Fatalf("expected 2 inserts, got %d", len(records.inserted))
	}
	first := records.inserted[0]
	if first.AVRFilename != "avr.pdf" || first.AVRUUID == "" {
		t.Fatalf("evidence not attached: %+v", first)
	}
	if first.CreatedByName != "Pat Doe" || first.GroupUUID != "group-1" {
		t.Fatalf("submitter identity not recorded: %+v", first)
	}
	if first.ProtocolDOI != "10.17504/protocols.io.abc123" {
		t.Fatalf("protocol DOI not canonicalized: %q", first.ProtocolDOI)
	}

	second := records.inserted[1]
	if second.Host != "Goat" || second.Clonality != "polyclonal" || second.Recombinant != "No" {
		t.Fatalf("fields not normalized: host=%q clonality=%q recombinant=%q",
			second.Host, second.Clonality, second.Recombinant)
	}

	if len(index.docs) != 2 {
		t.Fatalf("expected 2 indexed docs, got %d", len(index.docs))
	}
	if index.docs[0].VendorName != "Abcam" {
		t.Fatalf("vendor display name not indexed: %+v", index.docs[0])
	}
	if _, ok := files.staged["avr.pdf"]; !ok {
		t.Fatal("evidence document not staged")
	}
}

func TestImportRequiresSheet(t *testing.T) {
	o := newTestOrchestrator(&fakeRecords{}, &fakeIndex{}, &fakeFiles{}, nil)
	_, err := o.Import(context.Background(), testBatch(nil, nil))
	mustFailWith(t, err, ClassClient, "TSV file missing")
}

func TestImportRejectsWrongFileType(t *testing.T) {
	o := newTestOrchestrator(&fakeRecords{}, &fakeIndex{}, &fakeFiles{}, nil)
	_, err := o.Import(context.Background(),
		testBatch([]File{{Name: "batch.csv", Data: sheetText(validRow())}}, nil))
	mustFailWith(t, err, ClassClient, "Incorrect File Type")
}

func TestImportValidationFailurePersistsNothing(t *testing.T) {
	good := validRow()
	bad := validRow()
	bad.AVRFilename = "missing.pdf"

	records := &fakeRecords{}
	files := &fakeFiles{}
	o := newTestOrchestrator(records, &fakeIndex{}, files, nil)

	_, err := o.Import(context.Background(),
		testBatch([]File{{Name: "batch.tsv", Data: sheetText(good, bad)}}, nil))
	mustFailWith(t, err, ClassClient, "'missing.pdf' is not found")

	if len(records.inserted) != 0 {
		t.Fatalf("expected no inserts, got %d", len(records.inserted))
	}
	if len(files.staged) != 0 {
		t.Fatalf("expected no staged evidence, got %d", len(files.staged))
	}
}

func TestImportIndexFailureAbortsBatch(t *testing.T) {
	index := &fakeIndex{indexErr: errors.New("index down")}
	o := newTestOrchestrator(&fakeRecords{}, index, &fakeFiles{}, nil)

	_, err := o.Import(context.Background(),
		testBatch([]File{{Name: "batch.tsv", Data: sheetText(validRow())}}, nil))
	mustFailWith(t, err, ClassInternal, "system error")
}

func TestImportVendorStoreFailureIsInternal(t *testing.T) {
	records := &fakeRecords{vendorErr: errors.New("connection reset")}
	o := newTestOrchestrator(records, &fakeIndex{}, &fakeFiles{}, nil)

	_, err := o.Import(context.Background(),
		testBatch([]File{{Name: "batch.tsv", Data: sheetText(validRow())}}, nil))
	mustFailWith(t, err, ClassInternal, "system error")

	if len(records.inserted) != 0 {
		t.Fatalf("expected no inserts, got %d", len(records.inserted))
	}
}

func TestImportBackLinksPredecessor(t *testing.T) {
	chain := &fakeChain{
		next:     func(string) (string, bool, error) { return "", true, nil },
		evidence: func(string) (string, string, error) { return "prev-uuid", "prev.pdf", nil },
	}
	records := &fakeRecords{}
	index := &fakeIndex{}
	o := newTestOrchestrator(records, index, &fakeFiles{}, chain)

	row := validRow()
	row.PreviousVersionID = "AVR100.ABCD.001"
	result, err := o.Import(context.Background(),
		testBatch([]File{{Name: "batch.tsv", Data: sheetText(row)}}, nil))
	if err != nil {
		t.Fatalf("Import: %v", err)
	}

	newID := result.Created[0].RegistryID
	if len(records.backlinks) != 1 || records.backlinks[0] != [2]string{"AVR100.ABCD.001", newID} {
		t.Fatalf("store back-link not written: %v", records.backlinks)
	}
	if len(index.backlinks) != 1 || index.backlinks[0] != [2]string{"AVR100.ABCD.001", newID} {
		t.Fatalf("index back-link not written: %v", index.backlinks)
	}
	if records.inserted[0].PreviousVersionPDFUUID != "prev-uuid" ||
		records.inserted[0].PreviousVersionPDFFilename != "prev.pdf" {
		t.Fatalf("predecessor evidence snapshot missing: %+v", records.inserted[0])
	}
}

func TestImportIndexBackLinkFailureIsTolerated(t *testing.T) {
	chain := &fakeChain{next: func(string) (string, bool, error) { return "", true, nil }}
	records := &fakeRecords{}
	index := &fakeIndex{linkErr: errors.New("index down")}
	o := newTestOrchestrator(records, index, &fakeFiles{}, chain)

	row := validRow()
	row.PreviousVersionID = "AVR100.ABCD.001"
	result, err := o.Import(context.Background(),
		testBatch([]File{{Name: "batch.tsv", Data: sheetText(row)}}, nil))
	if err != nil {
		t.Fatalf("a failed index back-link must not sink the batch: %v", err)
	}
	if len(result.Created) != 1 {
		t.Fatalf("expected 1 created record, got %d", len(result.Created))
	}
	if len(records.backlinks) != 1 {
		t.Fatalf("store back-link not written: %v", records.backlinks)
	}
}

type fakeLister struct {
	antibodies []store.Antibody
	err        error
}

func (f *fakeLister) ListAntibodies(context.Context) ([]store.Antibody, error) {
	return f.antibodies, f.err
}

type fakeAliases struct {
	calls int
}

func (f *fakeAliases) TargetAliases(_ context.Context, symbol string) []string {
	f.calls++
	return []string{symbol, symbol + "-alias"}
}

func TestRebuild(t *testing.T) {
	lister := &fakeLister{antibodies: []store.Antibody{
		{RegistryID: "AVR100.ABCD.001", UUID: "u1", TargetSymbol: "CD4"},
		{RegistryID: "AVR100.ABCD.002", UUID: "u2", TargetSymbol: "MARCO"},
	}}
	index := &fakeIndex{}
	aliases := &fakeAliases{}

	count, err := NewRebuilder(lister, index, aliases).Rebuild(context.Background())
	if err != nil {
		t.Fatalf("Rebuild: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 records indexed, got %d", count)
	}
	if !index.wiped {
		t.Fatal("index was not wiped before reloading")
	}
	if len(index.docs) != 2 || index.docs[1].TargetAliases[1] != "MARCO-alias" {
		t.Fatalf("unexpected docs: %+v", index.docs)
	}
	if aliases.calls != 2 {
		t.Fatalf("expected 2 alias lookups, got %d", aliases.calls)
	}
}

func TestRebuildWipeFailure(t *testing.T) {
	index := &fakeIndex{wipeErr: fmt.Errorf("index down")}
	_, err := NewRebuilder(&fakeLister{}, index, &fakeAliases{}).Rebuild(context.Background())
	mustFailWith(t, err, ClassInternal, "resetting search index")
}
