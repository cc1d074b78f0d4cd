//go:build integration

package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"ndaflow/internal/agreement/models"
	id "ndaflow/pkg/domain"
	"ndaflow/pkg/platform/sentinel"
	"ndaflow/pkg/platform/tx"
	"ndaflow/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	pg     *containers.PostgresContainer
	store  *Postgres
	runner *tx.Postgres
	now    time.Time
}

func TestPostgresStoreSuite(t *testing.T) {
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.pg = containers.GetManager().GetPostgres(s.T())
	s.store = NewPostgres(s.pg.Pool)
	s.runner = tx.NewPostgres(s.pg.Pool)
}

func (s *PostgresStoreSuite) SetupTest() {
	s.Require().NoError(s.pg.TruncateTables(context.Background(), "agreement_status_history", "agreements"))
	s.now = time.Now().UTC().Truncate(time.Millisecond)
}

func (s *PostgresStoreSuite) create(company string) *models.Agreement {
	a, err := models.NewAgreement(id.NewAgreementID(), company, id.ContactID{}, s.now)
	s.Require().NoError(err)
	s.Require().NoError(s.store.Create(context.Background(), a))
	return a
}

func (s *PostgresStoreSuite) TestCreateAssignsDisplayIDs() {
	first := s.create("Acme")
	second := s.create("Globex")

	s.Positive(first.DisplayID)
	s.Greater(second.DisplayID, first.DisplayID)

	stored, err := s.store.FindByID(context.Background(), first.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusCreated, stored.Status)
	s.Equal(1, stored.Version)
	s.Require().Len(stored.History, 1)
	s.Equal(models.TriggerCreated, stored.History[0].Trigger)
}

func (s *PostgresStoreSuite) TestDuplicateCreateIsRejected() {
	a := s.create("Acme")
	s.ErrorIs(s.store.Create(context.Background(), a), sentinel.ErrAlreadyUsed)
}

func (s *PostgresStoreSuite) TestFindUnknownAgreement() {
	_, err := s.store.FindByID(context.Background(), id.NewAgreementID())
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestSaveTransitionAppendsHistory() {
	ctx := context.Background()
	a := s.create("Acme")

	err := s.runner.RunInTx(ctx, a.ID.String(), func(ctx context.Context) error {
		current, err := s.store.FindForUpdate(ctx, a.ID)
		if err != nil {
			return err
		}
		entry, err := current.ApplyTransition(models.StatusPendingApproval, "user-1", "ready", s.now)
		if err != nil {
			return err
		}
		return s.store.SaveTransition(ctx, current, entry)
	})
	s.Require().NoError(err)

	stored, err := s.store.FindByID(ctx, a.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusPendingApproval, stored.Status)
	s.Equal(2, stored.Version)
	s.Require().Len(stored.History, 2)
	s.Equal(models.StatusCreated, stored.History[1].PreviousStatus)
	s.Equal("ready", stored.History[1].Reason)
}

func (s *PostgresStoreSuite) TestSaveTransitionRejectsStaleVersion() {
	ctx := context.Background()
	a := s.create("Acme")

	first, err := s.store.FindByID(ctx, a.ID)
	s.Require().NoError(err)
	second := first.Clone()

	entry, err := first.ApplyTransition(models.StatusPendingApproval, "user-1", "", s.now)
	s.Require().NoError(err)
	s.Require().NoError(s.store.SaveTransition(ctx, first, entry))

	entry, err = second.ApplyTransition(models.StatusInactiveCanceled, "user-2", "", s.now)
	s.Require().NoError(err)
	s.ErrorIs(s.store.SaveTransition(ctx, second, entry), sentinel.ErrConflict)

	stored, err := s.store.FindByID(ctx, a.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusPendingApproval, stored.Status)
	s.Len(stored.History, 2)
}

func (s *PostgresStoreSuite) TestFindForUpdateNeedsATransaction() {
	a := s.create("Acme")
	_, err := s.store.FindForUpdate(context.Background(), a.ID)
	s.Error(err)
}

func (s *PostgresStoreSuite) TestListExpiringSkipsTerminalAgreements() {
	ctx := context.Background()
	past := s.now.Add(-time.Hour)
	future := s.now.Add(time.Hour)

	due := s.create("Due")
	notYet := s.create("NotYet")
	done := s.create("Done")
	for a, expires := range map[*models.Agreement]time.Time{due: past, notYet: future, done: past} {
		s.Require().NoError(s.pg.Exec(ctx, `UPDATE agreements SET expires_at = $2 WHERE id = $1`, a.ID.String(), expires))
	}
	s.Require().NoError(s.pg.Exec(ctx, `UPDATE agreements SET status = 'FULLY_EXECUTED' WHERE id = $1`, done.ID.String()))

	ids, err := s.store.ListExpiring(ctx, s.now, 10)
	s.Require().NoError(err)
	s.Equal([]id.AgreementID{due.ID}, ids)
}
