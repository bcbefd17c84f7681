package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PostgresStore) BeginTx(ctx context.Context) (*sql.Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	return tx, nil
}

// WithTx runs fn inside a transaction, committing when fn returns nil and
// rolling back otherwise.
func (s *PostgresStore) WithTx(ctx context.Context, fn func(tx Querier) error) error {
	tx, err := s.BeginTx(ctx)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// Querier is satisfied by both *sql.DB and *sql.Tx so reads can run on the
// pool while batch writes stay inside one transaction.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const uniqueViolation = "23505"

// FindOrCreateVendor resolves a vendor name case-insensitively, creating it
// on first use. A concurrent insert of the same name loses the race on the
// unique index and falls back to the lookup.
func (s *PostgresStore) FindOrCreateVendor(ctx context.Context, q Querier, name string) (int64, error) {
	var id int64
	err := q.QueryRowContext(ctx, `SELECT id FROM vendors WHERE UPPER(vendor_name) = UPPER($1)`, name).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("lookup vendor: %w", err)
	}

	err = q.QueryRowContext(ctx, `INSERT INTO vendors (vendor_name) VALUES ($1) RETURNING id`, name).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			if retryErr := q.QueryRowContext(ctx, `SELECT id FROM vendors WHERE UPPER(vendor_name) = UPPER($1)`, name).Scan(&id); retryErr == nil {
				return id, nil
			}
		}
		return 0, fmt.Errorf("insert vendor: %w", err)
	}
	return id, nil
}

// IsUniqueViolation reports whether err is a uniqueness-constraint failure.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// InsertAntibody persists a new record. The creation timestamp is
// server-generated; next_version_id always starts unset.
func (s *PostgresStore) InsertAntibody(ctx context.Context, q Querier, a Antibody) (int64, error) {
	const insert = `
		INSERT INTO antibodies (
			antibody_uuid, antibody_hubmap_id,
			avr_pdf_uuid, avr_pdf_filename,
			protocol_doi, manuscript_doi, uniprot_accession_number,
			target_symbol, rrid, host, clonality, clone_id, vendor_id,
			catalog_number, lot_number, recombinant, organ, organ_uberon_id,
			method, author_orcids, hgnc_id, isotype,
			concentration_value, dilution_factor, conjugate,
			tissue_preservation, cycle_number, fluorescent_reporter,
			vendor_affiliation, antigen_retrieval, omap_id,
			created_timestamp,
			created_by_user_displayname, created_by_user_email, created_by_user_sub,
			group_uuid,
			previous_version_id, previous_version_pdf_uuid, previous_version_pdf_filename
		) VALUES (
			$1, $2,
			NULLIF($3, ''), NULLIF($4, ''),
			$5, $6, $7,
			$8, $9, $10, $11, $12, $13,
			$14, $15, $16, $17, $18,
			$19, $20, $21, $22,
			$23, $24, $25,
			$26, $27, $28,
			$29, $30, $31,
			EXTRACT(epoch FROM NOW()),
			$32, $33, $34,
			$35,
			NULLIF($36, ''), NULLIF($37, ''), NULLIF($38, '')
		) RETURNING id
	`
	var id int64
	err := q.QueryRowContext(ctx, insert,
		a.UUID, a.RegistryID,
		a.AVRUUID, a.AVRFilename,
		a.ProtocolDOI, a.ManuscriptDOI, a.UniprotAccession,
		a.TargetSymbol, a.RRID, a.Host, a.Clonality, a.CloneID, a.VendorID,
		a.CatalogNumber, a.LotNumber, a.Recombinant, a.Organ, a.OrganUberonID,
		a.Method, a.AuthorORCIDs, a.HGNCID, a.Isotype,
		a.Concentration, a.DilutionFactor, a.Conjugate,
		a.TissuePreservation, a.CycleNumber, a.FluorescentReporter,
		a.VendorAffiliation, a.AntigenRetrieval, a.OMAPID,
		a.CreatedByName, a.CreatedByEmail, a.CreatedBySub,
		a.GroupUUID,
		a.PreviousVersionID, a.PreviousVersionPDFUUID, a.PreviousVersionPDFFilename,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert antibody: %w", err)
	}
	return id, nil
}

// NextVersionOf looks up a record by registry id. found reports whether the
// record exists; next is its successor's registry id, empty when unset.
func (s *PostgresStore) NextVersionOf(ctx context.Context, registryID string) (next string, found bool, err error) {
	err = s.db.QueryRowContext(ctx, `
		SELECT COALESCE(next_version_id, '')
		FROM antibodies
		WHERE antibody_hubmap_id = $1
	`, registryID).Scan(&next)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("lookup next version of %s: %w", registryID, err)
	}
	return next, true, nil
}

// SetNextVersion writes the single permitted mutation of a persisted
// record: the back-link to its successor.
func (s *PostgresStore) SetNextVersion(ctx context.Context, q Querier, previousID, nextID string) error {
	_, err := q.ExecContext(ctx, `
		UPDATE antibodies
		SET next_version_id = $1
		WHERE antibody_hubmap_id = $2
	`, nextID, previousID)
	if err != nil {
		return fmt.Errorf("set next version of %s: %w", previousID, err)
	}
	return nil
}

// PreviousVersionEvidence fetches the denormalized evidence snapshot of a
// predecessor record.
func (s *PostgresStore) PreviousVersionEvidence(ctx context.Context, registryID string) (pdfUUID, pdfFilename string, err error) {
	err = s.db.QueryRowContext(ctx, `
		SELECT COALESCE(avr_pdf_uuid, ''), COALESCE(avr_pdf_filename, '')
		FROM antibodies
		WHERE antibody_hubmap_id = $1
	`, registryID).Scan(&pdfUUID, &pdfFilename)
	if errors.Is(err, sql.ErrNoRows) {
		return "", "", nil
	}
	if err != nil {
		return "", "", fmt.Errorf("lookup previous version evidence: %w", err)
	}
	return pdfUUID, pdfFilename, nil
}

const selectAntibody = `
	SELECT
		a.id, a.antibody_uuid, a.antibody_hubmap_id,
		COALESCE(a.avr_pdf_uuid, ''), COALESCE(a.avr_pdf_filename, ''),
		a.protocol_doi, COALESCE(a.manuscript_doi, ''), a.uniprot_accession_number,
		a.target_symbol, a.rrid, a.host, a.clonality, COALESCE(a.clone_id, ''), a.vendor_id, v.vendor_name,
		a.catalog_number, a.lot_number, a.recombinant, COALESCE(a.organ, ''), COALESCE(a.organ_uberon_id, ''),
		a.method, a.author_orcids, a.hgnc_id, COALESCE(a.isotype, ''),
		COALESCE(a.concentration_value, ''), COALESCE(a.dilution_factor, ''), COALESCE(a.conjugate, ''),
		COALESCE(a.tissue_preservation, ''), COALESCE(a.cycle_number, ''), COALESCE(a.fluorescent_reporter, ''),
		COALESCE(a.vendor_affiliation, ''), COALESCE(a.antigen_retrieval, ''), COALESCE(a.omap_id, ''),
		a.created_timestamp,
		a.created_by_user_displayname, a.created_by_user_email, a.created_by_user_sub,
		a.group_uuid,
		COALESCE(a.previous_version_id, ''), COALESCE(a.next_version_id, ''),
		COALESCE(a.previous_version_pdf_uuid, ''), COALESCE(a.previous_version_pdf_filename, '')
	FROM antibodies a
	JOIN vendors v ON a.vendor_id = v.id
`

func scanAntibody(rows *sql.Rows) (Antibody, error) {
	var a Antibody
	err := rows.Scan(
		&a.ID, &a.UUID, &a.RegistryID,
		&a.AVRUUID, &a.AVRFilename,
		&a.ProtocolDOI, &a.ManuscriptDOI, &a.UniprotAccession,
		&a.TargetSymbol, &a.RRID, &a.Host, &a.Clonality, &a.CloneID, &a.VendorID, &a.VendorName,
		&a.CatalogNumber, &a.LotNumber, &a.Recombinant, &a.Organ, &a.OrganUberonID,
		&a.Method, &a.AuthorORCIDs, &a.HGNCID, &a.Isotype,
		&a.Concentration, &a.DilutionFactor, &a.Conjugate,
		&a.TissuePreservation, &a.CycleNumber, &a.FluorescentReporter,
		&a.VendorAffiliation, &a.AntigenRetrieval, &a.OMAPID,
		&a.CreatedTimestamp,
		&a.CreatedByName, &a.CreatedByEmail, &a.CreatedBySub,
		&a.GroupUUID,
		&a.PreviousVersionID, &a.NextVersionID,
		&a.PreviousVersionPDFUUID, &a.PreviousVersionPDFFilename,
	)
	if err != nil {
		return Antibody{}, fmt.Errorf("scan antibody: %w", err)
	}
	return a, nil
}

// ListAntibodies returns every record in insertion order.
func (s *PostgresStore) ListAntibodies(ctx context.Context) ([]Antibody, error) {
	rows, err := s.db.QueryContext(ctx, selectAntibody+` ORDER BY a.id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list antibodies: %w", err)
	}
	defer rows.Close()

	items := make([]Antibody, 0)
	for rows.Next() {
		a, err := scanAntibody(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate antibodies: %w", err)
	}
	return items, nil
}
