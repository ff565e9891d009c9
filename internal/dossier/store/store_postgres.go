package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"formalitys/internal/dossier/models"
	"formalitys/pkg/platform/sentinel"
	txcontext "formalitys/pkg/platform/tx"
)

// Postgres persists dossiers in a single table with jsonb columns for the
// form data, documents, and payment record. This store is pure I/O; step and
// status rules belong in the service.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

// Schema is applied by the deployment migrations; kept here as the reference
// for the column layout the queries below expect.
const Schema = `
CREATE TABLE IF NOT EXISTS dossiers (
	id UUID PRIMARY KEY,
	owner_id UUID NOT NULL,
	procedure_type TEXT NOT NULL,
	current_step INT NOT NULL,
	status TEXT NOT NULL,
	form_data JSONB NOT NULL DEFAULT '{}',
	documents JSONB NOT NULL DEFAULT '[]',
	payment JSONB,
	version BIGINT NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS dossiers_owner_idx ON dossiers (owner_id);
CREATE INDEX IF NOT EXISTS dossiers_gateway_ref_idx ON dossiers ((payment->>'gateway_reference'));
`

const dossierColumns = `id, owner_id, procedure_type, current_step, status, form_data, documents, payment, version, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

type dbQuerier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *Postgres) querier(ctx context.Context) dbQuerier {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

func (s *Postgres) Create(ctx context.Context, d *models.Dossier) error {
	formData, documents, payment, err := marshalJSONColumns(d)
	if err != nil {
		return err
	}
	_, err = s.querier(ctx).ExecContext(ctx, `
		INSERT INTO dossiers (`+dossierColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, d.ID, d.OwnerID, d.ProcedureType, d.CurrentStep, d.Status,
		formData, documents, payment, d.Version, d.CreatedAt, d.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create dossier: %w", err)
	}
	return nil
}

func (s *Postgres) FindByID(ctx context.Context, id uuid.UUID) (*models.Dossier, error) {
	row := s.querier(ctx).QueryRowContext(ctx, `
		SELECT `+dossierColumns+` FROM dossiers WHERE id = $1
	`, id)
	return scanDossier(row)
}

func (s *Postgres) FindByGatewayReference(ctx context.Context, reference string) (*models.Dossier, error) {
	row := s.querier(ctx).QueryRowContext(ctx, `
		SELECT `+dossierColumns+` FROM dossiers WHERE payment->>'gateway_reference' = $1
	`, reference)
	return scanDossier(row)
}

func (s *Postgres) ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]*models.Dossier, error) {
	rows, err := s.querier(ctx).QueryContext(ctx, `
		SELECT `+dossierColumns+` FROM dossiers WHERE owner_id = $1 ORDER BY created_at
	`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list dossiers: %w", err)
	}
	defer rows.Close()

	var out []*models.Dossier
	for rows.Next() {
		d, err := scanDossier(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// Update persists a previously-read dossier, failing with ErrVersionConflict
// when another writer committed in between.
func (s *Postgres) Update(ctx context.Context, d *models.Dossier) error {
	formData, documents, payment, err := marshalJSONColumns(d)
	if err != nil {
		return err
	}
	result, err := s.querier(ctx).ExecContext(ctx, `
		UPDATE dossiers
		SET current_step = $2, status = $3, form_data = $4, documents = $5,
		    payment = $6, version = version + 1, updated_at = $7
		WHERE id = $1 AND version = $8
	`, d.ID, d.CurrentStep, d.Status, formData, documents, payment, d.UpdatedAt, d.Version)
	if err != nil {
		return fmt.Errorf("update dossier: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update dossier: %w", err)
	}
	if affected == 0 {
		if _, findErr := s.FindByID(ctx, d.ID); errors.Is(findErr, sentinel.ErrNotFound) {
			return sentinel.ErrNotFound
		}
		return sentinel.ErrVersionConflict
	}
	return nil
}

// Execute loads the row FOR UPDATE inside a transaction so validate-and-mutate
// is atomic against concurrent writers.
func (s *Postgres) Execute(ctx context.Context, id uuid.UUID, fn func(d *models.Dossier) error) (*models.Dossier, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin dossier tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx, `
		SELECT `+dossierColumns+` FROM dossiers WHERE id = $1 FOR UPDATE
	`, id)
	d, err := scanDossier(row)
	if err != nil {
		return nil, err
	}

	if err := fn(d); err != nil {
		return nil, err
	}

	formData, documents, payment, err := marshalJSONColumns(d)
	if err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE dossiers
		SET current_step = $2, status = $3, form_data = $4, documents = $5,
		    payment = $6, version = version + 1, updated_at = $7
		WHERE id = $1
	`, d.ID, d.CurrentStep, d.Status, formData, documents, payment, d.UpdatedAt); err != nil {
		return nil, fmt.Errorf("commit dossier mutation: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit dossier tx: %w", err)
	}
	d.Version++
	return d, nil
}

func (s *Postgres) CountCompleted(ctx context.Context, ownerID uuid.UUID, procedureType models.ProcedureType) (int, error) {
	var count int
	err := s.querier(ctx).QueryRowContext(ctx, `
		SELECT COUNT(*) FROM dossiers
		WHERE owner_id = $1 AND procedure_type = $2 AND status = $3
	`, ownerID, procedureType, models.StatusCompleted).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count completed dossiers: %w", err)
	}
	return count, nil
}

func marshalJSONColumns(d *models.Dossier) (formData, documents []byte, payment any, err error) {
	formData, err = json.Marshal(d.FormData)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("marshal form data: %w", err)
	}
	docs := d.Documents
	if docs == nil {
		docs = []models.Document{}
	}
	documents, err = json.Marshal(docs)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("marshal documents: %w", err)
	}
	if d.Payment == nil {
		return formData, documents, nil, nil
	}
	raw, err := json.Marshal(d.Payment)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("marshal payment: %w", err)
	}
	return formData, documents, raw, nil
}

func scanDossier(row rowScanner) (*models.Dossier, error) {
	var (
		d         models.Dossier
		formData  []byte
		documents []byte
		payment   []byte
	)
	err := row.Scan(&d.ID, &d.OwnerID, &d.ProcedureType, &d.CurrentStep, &d.Status,
		&formData, &documents, &payment, &d.Version, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("scan dossier: %w", err)
	}
	if err := json.Unmarshal(formData, &d.FormData); err != nil {
		return nil, fmt.Errorf("unmarshal form data: %w", err)
	}
	if err := json.Unmarshal(documents, &d.Documents); err != nil {
		return nil, fmt.Errorf("unmarshal documents: %w", err)
	}
	if len(payment) > 0 {
		d.Payment = &models.PaymentRecord{}
		if err := json.Unmarshal(payment, d.Payment); err != nil {
			return nil, fmt.Errorf("unmarshal payment: %w", err)
		}
	}
	return &d, nil
}
