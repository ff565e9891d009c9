//go:build integration

package store_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"formalitys/internal/dossier/models"
	"formalitys/internal/dossier/store"
	dErrors "formalitys/pkg/domain-errors"
	"formalitys/pkg/platform/sentinel"
	"formalitys/pkg/platform/tx"
	"formalitys/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	ctx   context.Context
	db    *sql.DB
	store *store.Postgres
}

func TestPostgresStoreSuite(t *testing.T) {
	db := containers.StartPostgres(t)
	if _, err := db.Exec(store.Schema); err != nil {
		t.Fatalf("apply schema: %v", err)
	}
	suite.Run(t, &PostgresStoreSuite{db: db})
}

func (s *PostgresStoreSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = store.NewPostgres(s.db)
	_, err := s.db.Exec(`TRUNCATE dossiers`)
	s.Require().NoError(err)
}

func (s *PostgresStoreSuite) seed(mutate func(d *models.Dossier)) *models.Dossier {
	d, err := models.NewDossier(uuid.New(), uuid.New(), models.ProcedureCompany, time.Now().UTC().Truncate(time.Microsecond))
	s.Require().NoError(err)
	if mutate != nil {
		mutate(d)
	}
	s.Require().NoError(s.store.Create(s.ctx, d))
	return d
}

func (s *PostgresStoreSuite) TestCreateAndFindRoundTrip() {
	d := s.seed(func(d *models.Dossier) {
		d.FormData = map[string]any{"companyName": "Atlas Ventures SARL"}
		d.Documents = []models.Document{{DocumentType: "identity_document", OriginalName: "cin.pdf"}}
	})

	found, err := s.store.FindByID(s.ctx, d.ID)
	s.Require().NoError(err)
	s.Equal(d.ID, found.ID)
	s.Equal("Atlas Ventures SARL", found.FormData["companyName"])
	s.Require().Len(found.Documents, 1)
	s.Equal("cin.pdf", found.Documents[0].OriginalName)
	s.Nil(found.Payment)
}

func (s *PostgresStoreSuite) TestFindByGatewayReference() {
	d := s.seed(func(d *models.Dossier) {
		d.Payment = &models.PaymentRecord{GatewayReference: "pi_pg_test", Amount: 330000, Currency: "MAD"}
	})

	found, err := s.store.FindByGatewayReference(s.ctx, "pi_pg_test")
	s.Require().NoError(err)
	s.Equal(d.ID, found.ID)

	_, err = s.store.FindByGatewayReference(s.ctx, "pi_missing")
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestUpdateDetectsStaleVersion() {
	d := s.seed(nil)

	first, err := s.store.FindByID(s.ctx, d.ID)
	s.Require().NoError(err)
	second, err := s.store.FindByID(s.ctx, d.ID)
	s.Require().NoError(err)

	first.CurrentStep = 2
	s.Require().NoError(s.store.Update(s.ctx, first))

	second.CurrentStep = 3
	s.ErrorIs(s.store.Update(s.ctx, second), sentinel.ErrVersionConflict)
}

func (s *PostgresStoreSuite) TestExecuteCommitsMutationAtomically() {
	d := s.seed(nil)

	updated, err := s.store.Execute(s.ctx, d.ID, func(d *models.Dossier) error {
		d.CurrentStep = 2
		d.FormData["companyName"] = "Atlas"
		return nil
	})
	s.Require().NoError(err)
	s.Equal(2, updated.CurrentStep)
	s.Equal(int64(1), updated.Version)

	reloaded, err := s.store.FindByID(s.ctx, d.ID)
	s.Require().NoError(err)
	s.Equal(2, reloaded.CurrentStep)
}

func (s *PostgresStoreSuite) TestExecuteAbortsOnCallbackError() {
	d := s.seed(nil)

	_, err := s.store.Execute(s.ctx, d.ID, func(d *models.Dossier) error {
		d.CurrentStep = 5
		return dErrors.New(dErrors.CodeInvalidState, "nope")
	})
	s.Require().True(dErrors.HasCode(err, dErrors.CodeInvalidState))

	reloaded, err := s.store.FindByID(s.ctx, d.ID)
	s.Require().NoError(err)
	s.Equal(1, reloaded.CurrentStep)
	s.Equal(int64(0), reloaded.Version)
}

func (s *PostgresStoreSuite) TestWritesHonorTransactionFromContext() {
	d, err := models.NewDossier(uuid.New(), uuid.New(), models.ProcedureCompany, time.Now().UTC())
	s.Require().NoError(err)

	dbTx, err := s.db.BeginTx(s.ctx, nil)
	s.Require().NoError(err)
	txCtx := tx.WithTx(s.ctx, dbTx)

	s.Require().NoError(s.store.Create(txCtx, d))

	// Visible inside the transaction, gone after rollback.
	found, err := s.store.FindByID(txCtx, d.ID)
	s.Require().NoError(err)
	s.Equal(d.ID, found.ID)

	s.Require().NoError(dbTx.Rollback())
	_, err = s.store.FindByID(s.ctx, d.ID)
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestCountCompletedScopesOwnerAndType() {
	owner := uuid.New()
	for range 2 {
		d, err := models.NewDossier(uuid.New(), owner, models.ProcedureCompany, time.Now().UTC())
		s.Require().NoError(err)
		d.Status = models.StatusCompleted
		s.Require().NoError(s.store.Create(s.ctx, d))
	}
	other, err := models.NewDossier(uuid.New(), owner, models.ProcedureTourism, time.Now().UTC())
	s.Require().NoError(err)
	other.Status = models.StatusCompleted
	s.Require().NoError(s.store.Create(s.ctx, other))

	count, err := s.store.CountCompleted(s.ctx, owner, models.ProcedureCompany)
	s.Require().NoError(err)
	s.Equal(2, count)
}
