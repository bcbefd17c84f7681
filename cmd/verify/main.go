package main

import (
	"context"
	"flag"
	"log"
	"os"

	"avr/api/internal/config"
	"avr/api/internal/evidence"
	"avr/api/internal/search"
	"avr/api/internal/store"
)

// verify audits the three data stores against each other: every database
// record must have a matching search document, and every referenced evidence
// document must exist and parse as a PDF.
func main() {
	checkEvidence := flag.Bool("evidence", false, "also fetch and check every evidence document")
	flag.Parse()

	cfg := config.Load()
	ctx := context.Background()

	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}
	defer db.Close()
	records := store.NewPostgresStore(db)

	index := search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey, cfg.MeiliIndex)
	defer index.Close()

	antibodies, err := records.ListAntibodies(ctx)
	if err != nil {
		log.Fatalf("listing records: %v", err)
	}
	log.Printf("verify: %d records in the database", len(antibodies))

	docs := make(map[string]search.AntibodyDoc)
	var offset int64
	for {
		page, total, err := index.Documents(offset, 1000)
		if err != nil {
			log.Fatalf("fetching index documents: %v", err)
		}
		for _, doc := range page {
			docs[doc.UUID] = doc
		}
		offset += int64(len(page))
		if offset >= total || len(page) == 0 {
			break
		}
	}
	log.Printf("verify: %d documents in the search index", len(docs))

	mismatches := 0
	for _, a := range antibodies {
		doc, ok := docs[a.UUID]
		if !ok {
			log.Printf("verify: %s (%s) missing from the search index", a.RegistryID, a.UUID)
			mismatches++
			continue
		}
		mismatches += compare(a, doc)
		delete(docs, a.UUID)
	}
	for uuid, doc := range docs {
		log.Printf("verify: index document %s (%s) has no database record", doc.RegistryID, uuid)
		mismatches++
	}

	if *checkEvidence {
		files, err := evidence.NewFileStore(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL)
		if err != nil {
			log.Fatalf("evidence store connection failed: %v", err)
		}
		for _, a := range antibodies {
			if a.AVRUUID == "" {
				continue
			}
			data, err := files.Fetch(ctx, a.UUID, a.AVRUUID, a.AVRFilename)
			if err != nil {
				log.Printf("verify: %s evidence %q: %v", a.RegistryID, a.AVRFilename, err)
				mismatches++
				continue
			}
			if !evidence.ValidPDF(data) {
				log.Printf("verify: %s evidence %q is not a valid PDF", a.RegistryID, a.AVRFilename)
				mismatches++
			}
		}
	}

	if mismatches > 0 {
		log.Printf("verify: FAILED with %d mismatches", mismatches)
		os.Exit(1)
	}
	log.Printf("verify: OK")
}

// compare checks the fields the index is supposed to mirror verbatim.
func compare(a store.Antibody, doc search.AntibodyDoc) int {
	fields := []struct {
		name    string
		db, idx string
	}{
		{"antibody_hubmap_id", a.RegistryID, doc.RegistryID},
		{"target_symbol", a.TargetSymbol, doc.TargetSymbol},
		{"vendor_name", a.VendorName, doc.VendorName},
		{"clonality", a.Clonality, doc.Clonality},
		{"host", a.Host, doc.Host},
		{"rrid", a.RRID, doc.RRID},
		{"catalog_number", a.CatalogNumber, doc.CatalogNumber},
		{"lot_number", a.LotNumber, doc.LotNumber},
		{"protocol_doi", a.ProtocolDOI, doc.ProtocolDOI},
		{"organ", a.Organ, doc.Organ},
		{"avr_pdf_filename", a.AVRFilename, doc.AVRFilename},
		{"next_version_id", a.NextVersionID, doc.NextVersionID},
		{"previous_version_id", a.PreviousVersionID, doc.PreviousVersionID},
	}
	mismatches := 0
	for _, f := range fields {
		if f.db != f.idx {
			log.Printf("verify: %s field %s: db=%q index=%q", a.RegistryID, f.name, f.db, f.idx)
			mismatches++
		}
	}
	return mismatches
}
