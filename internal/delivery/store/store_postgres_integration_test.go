//go:build integration

package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"ndaflow/internal/delivery/models"
	id "ndaflow/pkg/domain"
	"ndaflow/pkg/platform/sentinel"
	"ndaflow/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	pg    *containers.PostgresContainer
	store *Postgres
	now   time.Time
}

func TestPostgresStoreSuite(t *testing.T) {
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.pg = containers.GetManager().GetPostgres(s.T())
	s.store = NewPostgres(s.pg.Pool)
}

func (s *PostgresStoreSuite) SetupTest() {
	s.Require().NoError(s.pg.TruncateTables(context.Background(), "delivery_jobs", "agreements"))
	s.now = time.Now().UTC().Truncate(time.Millisecond)
}

func (s *PostgresStoreSuite) agreement() id.AgreementID {
	agreementID := id.NewAgreementID()
	s.Require().NoError(s.pg.Exec(context.Background(), `
		INSERT INTO agreements (id, company_name, status, version, created_at, updated_at)
		VALUES ($1, 'Acme', 'CREATED', 1, now(), now())`, uuid.UUID(agreementID)))
	return agreementID
}

func (s *PostgresStoreSuite) queue(agreementID id.AgreementID) *models.Job {
	job := newJob(s.T(), agreementID, s.now)
	s.Require().NoError(s.store.Create(context.Background(), job))
	return job
}

func (s *PostgresStoreSuite) TestConcurrentClaimsNeverShareAJob() {
	ctx := context.Background()
	agreementID := s.agreement()
	for range 5 {
		s.queue(agreementID)
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		claimed = map[id.JobID]int{}
	)
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			job, err := s.store.ClaimNext(ctx, s.now)
			if err != nil {
				return
			}
			mu.Lock()
			claimed[job.ID]++
			mu.Unlock()
		}()
	}
	wg.Wait()

	s.Len(claimed, 5)
	for jobID, n := range claimed {
		s.Equal(1, n, "job %s claimed more than once", jobID)
	}
	_, err := s.store.ClaimNext(ctx, s.now)
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestFutureJobsAreNotClaimed() {
	job := newJob(s.T(), s.agreement(), s.now)
	job.NextAttemptAt = s.now.Add(time.Minute)
	s.Require().NoError(s.store.Create(context.Background(), job))

	_, err := s.store.ClaimNext(context.Background(), s.now)
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestCompleteRequiresTheCurrentClaim() {
	ctx := context.Background()
	s.queue(s.agreement())

	claimed, err := s.store.ClaimNext(ctx, s.now)
	s.Require().NoError(err)
	s.Equal(models.StatusSending, claimed.Status)

	stale := claimed.Clone()
	stale.ClaimToken = uuid.New()
	stale.MarkSent("<stale@test>", s.now)
	s.ErrorIs(s.store.Complete(ctx, stale), sentinel.ErrConflict)

	claimed.MarkSent("<ok@test>", s.now)
	s.Require().NoError(s.store.Complete(ctx, claimed))

	stored, err := s.store.FindByID(ctx, claimed.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusSent, stored.Status)
	s.Equal("<ok@test>", stored.TransportMessageID)

	s.ErrorIs(s.store.Complete(ctx, claimed), sentinel.ErrConflict, "a finished job cannot be completed twice")
}

func (s *PostgresStoreSuite) TestListStaleFindsAbandonedClaims() {
	ctx := context.Background()
	job := s.queue(s.agreement())
	_, err := s.store.ClaimNext(ctx, s.now)
	s.Require().NoError(err)

	stale, err := s.store.ListStale(ctx, s.now.Add(time.Minute))
	s.Require().NoError(err)
	s.Require().Len(stale, 1)
	s.Equal(job.ID, stale[0].ID)

	fresh, err := s.store.ListStale(ctx, s.now.Add(-time.Minute))
	s.Require().NoError(err)
	s.Empty(fresh)
}

func (s *PostgresStoreSuite) TestCancelOnlyQueuedJobs() {
	ctx := context.Background()
	job := s.queue(s.agreement())

	s.Require().NoError(job.Cancel(s.now))
	s.Require().NoError(s.store.Cancel(ctx, job))
	s.ErrorIs(s.store.Cancel(ctx, job), sentinel.ErrConflict)

	stored, err := s.store.FindByID(ctx, job.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusCancelled, stored.Status)
}

func (s *PostgresStoreSuite) TestListenerWakesOnCreate() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	listener, err := NewListener(s.pg.DSN, nil)
	s.Require().NoError(err)
	done := make(chan error, 1)
	go func() { done <- listener.Run(ctx) }()

	s.queue(s.agreement())

	select {
	case <-listener.Wake():
	case <-time.After(5 * time.Second):
		s.Fail("expected a wake-up after a job was queued")
	}

	cancel()
	s.NoError(<-done)
}
