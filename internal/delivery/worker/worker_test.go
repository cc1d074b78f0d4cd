package worker

import (
	"bytes"
	"context"
	"errors"
	"net/mail"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	agreementmodels "ndaflow/internal/agreement/models"
	"ndaflow/internal/attachment"
	"ndaflow/internal/audit"
	auditmemory "ndaflow/internal/audit/store/memory"
	"ndaflow/internal/delivery/message"
	"ndaflow/internal/delivery/models"
	"ndaflow/internal/delivery/store"
	"ndaflow/internal/delivery/worker/mocks"
	id "ndaflow/pkg/domain"
	dErrors "ndaflow/pkg/domain-errors"
	"ndaflow/pkg/platform/tx"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type WorkerSuite struct {
	suite.Suite
	ctrl        *gomock.Controller
	transport   *mocks.MockTransport
	escalator   *mocks.MockEscalator
	auto        *mocks.MockAutoTransitioner
	store       *store.InMemory
	audit       *auditmemory.InMemoryStore
	attachments *attachment.InMemory
	clock       *clock
	cfg         Config
	worker      *Worker
}

func TestWorkerSuite(t *testing.T) {
	suite.Run(t, new(WorkerSuite))
}

func (s *WorkerSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.transport = mocks.NewMockTransport(s.ctrl)
	s.escalator = mocks.NewMockEscalator(s.ctrl)
	s.auto = mocks.NewMockAutoTransitioner(s.ctrl)
	s.store = store.NewInMemory()
	s.audit = auditmemory.NewInMemoryStore()
	s.attachments = attachment.NewInMemory()
	s.clock = &clock{now: time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)}

	s.cfg = DefaultConfig()
	s.cfg.From = "nda@usmax.com"
	s.cfg.SendTimeout = 50 * time.Millisecond

	w, err := New(s.store, tx.NewSharded(), s.attachments, s.transport, audit.NewPublisher(s.audit), s.cfg,
		WithClock(s.clock.Now),
		WithEscalator(s.escalator),
		WithAutoTransitioner(s.auto),
	)
	s.Require().NoError(err)
	s.worker = w
}

func (s *WorkerSuite) queue(mutate ...func(*models.Job)) *models.Job {
	agreementID := id.NewAgreementID()
	ref := attachment.Ref{Key: agreementID.String() + "/nda.docx", Filename: "nda.docx", ContentType: attachment.DefaultContentType}
	s.attachments.Put(agreementID, ref, []byte("PK\x03\x04 document"))

	job, err := models.NewJob(models.SendRequest{
		AgreementID: agreementID,
		Subject:     "NDA from USmax - for Acme Federal",
		To:          []string{"jane@acme.com"},
		Cc:          []string{"pm@usmax.com"},
		Bcc:         []string{"archive@usmax.com"},
		Body:        "Please review the attached NDA.",
	}, ref, "user-1", s.clock.Now())
	s.Require().NoError(err)
	for _, m := range mutate {
		m(job)
	}
	s.Require().NoError(s.store.Create(context.Background(), job))
	return job
}

func (s *WorkerSuite) reload(jobID id.JobID) *models.Job {
	job, err := s.store.FindByID(context.Background(), jobID)
	s.Require().NoError(err)
	return job
}

func (s *WorkerSuite) process() {
	processed, err := s.worker.ProcessNext(context.Background())
	s.Require().NoError(err)
	s.Require().True(processed)
}

func (s *WorkerSuite) TestSuccessfulSendMarksSentAndAdvancesStatus() {
	job := s.queue()

	var sent []byte
	s.transport.EXPECT().Send(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, env message.Envelope, raw []byte) (string, error) {
			s.ElementsMatch([]string{"jane@acme.com", "pm@usmax.com", "archive@usmax.com"}, env.Recipients)
			sent = raw
			return env.MessageID, nil
		})
	s.auto.EXPECT().
		AttemptAutoTransition(gomock.Any(), job.AgreementID, agreementmodels.TriggerEmailSent, actor).
		Return(nil, true, nil)

	s.process()

	stored := s.reload(job.ID)
	s.Equal(models.StatusSent, stored.Status)
	s.Equal("<"+job.ID.String()+".0@usmax.com>", stored.TransportMessageID)
	s.Require().NotNil(stored.SentAt)
	s.Equal(1, s.audit.CountAction(audit.ActionEmailSent))

	parsed, err := mail.ReadMessage(bytes.NewReader(sent))
	s.Require().NoError(err)
	s.Empty(parsed.Header.Get("Bcc"))
	s.Contains(parsed.Header.Get("Content-Type"), "multipart/mixed")
}

func (s *WorkerSuite) TestAutoTransitionFailureDoesNotUndoSend() {
	job := s.queue()
	s.transport.EXPECT().Send(gomock.Any(), gomock.Any(), gomock.Any()).Return("<accepted@relay>", nil)
	s.auto.EXPECT().AttemptAutoTransition(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		Return(nil, false, dErrors.New(dErrors.CodeConflict, "agreement changed concurrently; reload and retry"))

	s.process()

	stored := s.reload(job.ID)
	s.Equal(models.StatusSent, stored.Status)
	s.Equal("<accepted@relay>", stored.TransportMessageID)
}

func (s *WorkerSuite) TestTransientFailureSchedulesRetryWithBackoff() {
	job := s.queue()
	s.transport.EXPECT().Send(gomock.Any(), gomock.Any(), gomock.Any()).
		Return("", dErrors.New(dErrors.CodeTransportFailure, "connection reset"))

	s.process()

	stored := s.reload(job.ID)
	s.Equal(models.StatusQueued, stored.Status)
	s.Equal(1, stored.RetryCount)
	s.Contains(stored.LastError, "connection reset")
	s.Equal(s.clock.Now().Add(s.cfg.BackoffBase), stored.NextAttemptAt)
	s.Equal(1, s.audit.CountAction(audit.ActionEmailRetryScheduled))

	processed, err := s.worker.ProcessNext(context.Background())
	s.Require().NoError(err)
	s.False(processed, "job is not due before its backoff elapses")
}

func (s *WorkerSuite) TestSecondAttemptSucceedsAfterOneRetry() {
	job := s.queue()
	gomock.InOrder(
		s.transport.EXPECT().Send(gomock.Any(), gomock.Any(), gomock.Any()).
			Return("", dErrors.New(dErrors.CodeTransportFailure, "451 try again later")),
		s.transport.EXPECT().Send(gomock.Any(), gomock.Any(), gomock.Any()).
			Return("<accepted@relay>", nil),
	)
	s.auto.EXPECT().
		AttemptAutoTransition(gomock.Any(), job.AgreementID, agreementmodels.TriggerEmailSent, actor).
		Return(nil, true, nil).
		Times(1)

	s.process()
	s.clock.Advance(s.cfg.BackoffBase)
	s.process()

	stored := s.reload(job.ID)
	s.Equal(models.StatusSent, stored.Status)
	s.Equal(1, stored.RetryCount)
	s.Equal("<accepted@relay>", stored.TransportMessageID)
	s.Equal(1, s.audit.CountAction(audit.ActionEmailRetryScheduled))
	s.Equal(1, s.audit.CountAction(audit.ActionEmailSent))

	processed, err := s.worker.ProcessNext(context.Background())
	s.Require().NoError(err)
	s.False(processed)
}

func (s *WorkerSuite) TestExhaustedRetriesFailAndEscalateOnce() {
	job := s.queue()
	s.transport.EXPECT().Send(gomock.Any(), gomock.Any(), gomock.Any()).
		Return("", dErrors.New(dErrors.CodeTransportFailure, "connection refused")).
		Times(s.cfg.MaxRetries)
	s.escalator.EXPECT().Escalate(gomock.Any(), gomock.Any(), gomock.Any()).
		Do(func(_ context.Context, failed *models.Job, _ error) {
			s.Equal(job.ID, failed.ID)
			s.Equal(models.StatusFailed, failed.Status)
		}).
		Times(1)

	for range s.cfg.MaxRetries {
		s.process()
		s.clock.Advance(s.cfg.BackoffMax)
	}

	stored := s.reload(job.ID)
	s.Equal(models.StatusFailed, stored.Status)
	s.Equal(s.cfg.MaxRetries, stored.RetryCount)
	s.Equal(2, s.audit.CountAction(audit.ActionEmailRetryScheduled))
	s.Equal(1, s.audit.CountAction(audit.ActionEmailFailed))

	processed, err := s.worker.ProcessNext(context.Background())
	s.Require().NoError(err)
	s.False(processed)
}

func (s *WorkerSuite) TestPermanentRejectionFailsImmediately() {
	job := s.queue()
	s.transport.EXPECT().Send(gomock.Any(), gomock.Any(), gomock.Any()).
		Return("", dErrors.New(dErrors.CodePermanentFailure, "smtp RCPT rejected: mailbox unavailable"))
	s.escalator.EXPECT().Escalate(gomock.Any(), gomock.Any(), gomock.Any()).Times(1)

	s.process()

	stored := s.reload(job.ID)
	s.Equal(models.StatusFailed, stored.Status)
	s.Equal(1, stored.RetryCount)
}

func (s *WorkerSuite) TestHeaderInjectionNeverReachesTransport() {
	job := s.queue(func(j *models.Job) { j.Subject = "NDA\r\nBcc: attacker@evil.com" })
	s.escalator.EXPECT().Escalate(gomock.Any(), gomock.Any(), gomock.Any()).
		Do(func(_ context.Context, _ *models.Job, cause error) {
			s.True(dErrors.HasCode(cause, dErrors.CodePermanentFailure))
		})

	s.process()

	s.Equal(models.StatusFailed, s.reload(job.ID).Status)
}

func (s *WorkerSuite) TestMissingAttachmentIsRetried() {
	job := s.queue(func(j *models.Job) { j.Attachment.Key = "gone/nda.docx" })

	s.process()

	stored := s.reload(job.ID)
	s.Equal(models.StatusQueued, stored.Status)
	s.Contains(stored.LastError, "attachment fetch failed")
}

func (s *WorkerSuite) TestSendTimeoutCountsAsAttempt() {
	job := s.queue()
	s.transport.EXPECT().Send(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, _ message.Envelope, _ []byte) (string, error) {
			<-ctx.Done()
			return "", ctx.Err()
		})

	s.process()

	stored := s.reload(job.ID)
	s.Equal(models.StatusQueued, stored.Status)
	s.Equal(1, stored.RetryCount)
	s.Equal(1, s.audit.CountAction(audit.ActionEmailRetryScheduled))
	entries := s.audit.ListAll()
	s.Equal(string(dErrors.CodeTimeout), entries[len(entries)-1].Details["code"])
}

func (s *WorkerSuite) TestRecoverRequeuesStaleClaims() {
	job := s.queue()
	_, err := s.store.ClaimNext(context.Background(), s.clock.Now())
	s.Require().NoError(err)

	recovered, err := s.worker.Recover(context.Background())
	s.Require().NoError(err)
	s.Zero(recovered, "fresh claims are left alone")

	s.clock.Advance(s.cfg.ClaimTimeout + time.Minute)
	recovered, err = s.worker.Recover(context.Background())
	s.Require().NoError(err)
	s.Equal(1, recovered)

	stored := s.reload(job.ID)
	s.Equal(models.StatusQueued, stored.Status)
	s.Equal(1, stored.RetryCount)
	s.Contains(stored.LastError, "claim expired")
}

func (s *WorkerSuite) TestLostClaimIsNotRecordedTwice() {
	job := s.queue()
	s.transport.EXPECT().Send(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(context.Context, message.Envelope, []byte) (string, error) {
			// another worker recovers the claim while this attempt is in flight
			s.clock.Advance(s.cfg.ClaimTimeout + time.Minute)
			_, err := s.worker.Recover(context.Background())
			s.Require().NoError(err)
			return "", errors.New("connection reset")
		})

	s.process()

	stored := s.reload(job.ID)
	s.Equal(1, stored.RetryCount, "only the recovery counted the attempt")
	s.Equal(1, s.audit.CountAction(audit.ActionEmailRetryScheduled))
}

func (s *WorkerSuite) TestRunDrainsOnWake() {
	w, err := New(s.store, tx.NewSharded(), s.attachments, s.transport, audit.NewPublisher(s.audit), s.cfg,
		WithClock(s.clock.Now),
		WithWake(s.store.Wake()),
	)
	s.Require().NoError(err)

	delivered := make(chan struct{}, 2)
	s.transport.EXPECT().Send(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, env message.Envelope, _ []byte) (string, error) {
			delivered <- struct{}{}
			return env.MessageID, nil
		}).Times(2)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	first := s.queue()
	second := s.queue()
	for range 2 {
		select {
		case <-delivered:
		case <-time.After(2 * time.Second):
			s.FailNow("worker did not drain the queue")
		}
	}
	s.Eventually(func() bool {
		return s.reload(first.ID).Status == models.StatusSent && s.reload(second.ID).Status == models.StatusSent
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	s.NoError(<-done)
}

func TestBackoff(t *testing.T) {
	base, ceiling := time.Second, 5*time.Minute
	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{0, time.Second},
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{9, 256 * time.Second},
		{10, 5 * time.Minute},
		{64, 5 * time.Minute},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Backoff(base, ceiling, tc.attempt), "attempt %d", tc.attempt)
	}
}

func TestNewRejectsIncompleteConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxRetries = 0
	_, err := New(store.NewInMemory(), tx.NewSharded(), attachment.NewInMemory(), nil, nil, cfg)
	require.Error(t, err)
}
