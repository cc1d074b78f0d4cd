package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	agreementmodels "ndaflow/internal/agreement/models"
	"ndaflow/internal/attachment"
	"ndaflow/internal/audit"
	auditmemory "ndaflow/internal/audit/store/memory"
	"ndaflow/internal/delivery/models"
	"ndaflow/internal/delivery/store"
	"ndaflow/internal/permission"
	id "ndaflow/pkg/domain"
	dErrors "ndaflow/pkg/domain-errors"
	"ndaflow/pkg/platform/tx"
	"ndaflow/pkg/requestcontext"
	"ndaflow/pkg/testutil"
)

type agreementFixtures map[id.AgreementID]*agreementmodels.Agreement

func (f agreementFixtures) Get(_ context.Context, agreementID id.AgreementID) (*agreementmodels.Agreement, error) {
	a, ok := f[agreementID]
	if !ok {
		return nil, dErrors.New(dErrors.CodeNotFound, "agreement not found")
	}
	return a, nil
}

type DeliveryServiceSuite struct {
	suite.Suite
	store       *store.InMemory
	audit       *auditmemory.InMemoryStore
	attachments *attachment.InMemory
	agreements  agreementFixtures
	service     *Service
	sender      requestcontext.ActingIdentity
	agreement   *agreementmodels.Agreement
	now         time.Time
}

func TestDeliveryServiceSuite(t *testing.T) {
	suite.Run(t, new(DeliveryServiceSuite))
}

func (s *DeliveryServiceSuite) SetupTest() {
	s.now = time.Date(2026, 4, 2, 15, 0, 0, 0, time.UTC)
	s.store = store.NewInMemory()
	s.audit = auditmemory.NewInMemoryStore()
	s.attachments = attachment.NewInMemory()
	s.agreements = agreementFixtures{}
	s.sender = testutil.Actor(uuid.NewString(), string(permission.SendEmail))

	a, err := agreementmodels.NewAgreement(id.NewAgreementID(), "Acme Federal", id.NewContactID(), s.now.Add(-time.Hour))
	s.Require().NoError(err)
	s.agreement = a
	s.agreements[a.ID] = a
	s.attachments.Put(a.ID, attachment.Ref{Key: a.ID.String() + "/nda.docx", Filename: "nda.docx"}, []byte("docx"))

	svc, err := New(s.store, tx.NewSharded(), s.agreements, s.attachments, audit.NewPublisher(s.audit), permission.ClaimsChecker{})
	s.Require().NoError(err)
	s.service = svc
}

func (s *DeliveryServiceSuite) ctx() context.Context {
	return requestcontext.WithTime(context.Background(), s.now)
}

func (s *DeliveryServiceSuite) request() models.SendRequest {
	return models.SendRequest{
		AgreementID: s.agreement.ID,
		Subject:     "NDA from USmax - for Acme Federal",
		To:          []string{"jane@acme.com"},
		Cc:          []string{"pm@usmax.com"},
		Bcc:         []string{"archive@usmax.com"},
		Body:        "Please review the attached NDA.",
	}
}

func (s *DeliveryServiceSuite) TestEnqueue() {
	s.Run("valid request stores a queued job and its audit entry", func() {
		job, err := s.service.Enqueue(s.ctx(), s.request(), s.sender)
		s.Require().NoError(err)

		s.Equal(models.StatusQueued, job.Status)
		s.Equal(s.now, job.NextAttemptAt)
		s.Equal("nda.docx", job.Attachment.Filename)
		s.Equal(s.sender.ID, job.RequestedBy)

		stored, err := s.store.FindByID(context.Background(), job.ID)
		s.Require().NoError(err)
		s.Equal(job.ID, stored.ID)

		entries, err := s.audit.ListByEntity(context.Background(), audit.EntityDeliveryJob, job.ID.String())
		s.Require().NoError(err)
		s.Require().Len(entries, 1)
		s.Equal(audit.ActionEmailQueued, entries[0].Action)
		s.Equal(3, entries[0].Details["recipients"])

		select {
		case <-s.store.Wake():
		default:
			s.Fail("expected workers to be signalled")
		}
	})

	s.Run("invalid requests write nothing", func() {
		cases := map[string]func(r *models.SendRequest){
			"empty subject":      func(r *models.SendRequest) { r.Subject = "  " },
			"subject line break": func(r *models.SendRequest) { r.Subject = "Hi\r\nBcc: x@evil.com" },
			"no recipients":      func(r *models.SendRequest) { r.To = nil },
			"display name":       func(r *models.SendRequest) { r.To = []string{"Jane <jane@acme.com>"} },
			"empty body":         func(r *models.SendRequest) { r.Body = "" },
		}
		for name, mutate := range cases {
			req := s.request()
			mutate(&req)
			_, err := s.service.Enqueue(s.ctx(), req, s.sender)
			s.True(dErrors.HasCode(err, dErrors.CodeValidation), name)
		}
		jobs, err := s.store.ListByAgreement(context.Background(), s.agreement.ID)
		s.Require().NoError(err)
		s.Len(jobs, 1, "only the job from the previous case")
	})

	s.Run("too many recipients", func() {
		req := s.request()
		req.Bcc = make([]string, 0, models.MaxRecipients)
		for range models.MaxRecipients {
			req.Bcc = append(req.Bcc, uuid.NewString()[:8]+"@usmax.com")
		}
		_, err := s.service.Enqueue(s.ctx(), req, s.sender)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("missing permission", func() {
		_, err := s.service.Enqueue(s.ctx(), s.request(), testutil.Actor("viewer", string(permission.View)))
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("unknown agreement", func() {
		req := s.request()
		req.AgreementID = id.NewAgreementID()
		_, err := s.service.Enqueue(s.ctx(), req, s.sender)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("agreement without a generated document", func() {
		other, err := agreementmodels.NewAgreement(id.NewAgreementID(), "Beta Corp", id.NewContactID(), s.now)
		s.Require().NoError(err)
		s.agreements[other.ID] = other

		req := s.request()
		req.AgreementID = other.ID
		_, err = s.service.Enqueue(s.ctx(), req, s.sender)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
		s.Equal(1, s.audit.CountAction(audit.ActionEmailQueued), "only the first case queued a job")
	})
}

func (s *DeliveryServiceSuite) TestCancel() {
	s.Run("queued job is cancelled and audited", func() {
		job, err := s.service.Enqueue(s.ctx(), s.request(), s.sender)
		s.Require().NoError(err)

		cancelled, err := s.service.Cancel(s.ctx(), job.ID, s.sender)
		s.Require().NoError(err)
		s.Equal(models.StatusCancelled, cancelled.Status)
		s.Equal(1, s.audit.CountAction(audit.ActionEmailCancelled))

		_, err = s.store.ClaimNext(context.Background(), s.now.Add(time.Hour))
		s.Error(err, "cancelled job must not be claimable")
	})

	s.Run("job already claimed by a worker", func() {
		job, err := s.service.Enqueue(s.ctx(), s.request(), s.sender)
		s.Require().NoError(err)
		_, err = s.store.ClaimNext(context.Background(), s.now)
		s.Require().NoError(err)

		_, err = s.service.Cancel(s.ctx(), job.ID, s.sender)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("unknown job", func() {
		_, err := s.service.Cancel(s.ctx(), id.NewJobID(), s.sender)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func (s *DeliveryServiceSuite) TestList() {
	first, err := s.service.Enqueue(s.ctx(), s.request(), s.sender)
	s.Require().NoError(err)
	s.now = s.now.Add(time.Minute)
	second, err := s.service.Enqueue(s.ctx(), s.request(), s.sender)
	s.Require().NoError(err)

	jobs, err := s.service.List(context.Background(), s.agreement.ID)
	s.Require().NoError(err)
	s.Require().Len(jobs, 2)
	s.Equal(second.ID, jobs[0].ID)
	s.Equal(first.ID, jobs[1].ID)
}
