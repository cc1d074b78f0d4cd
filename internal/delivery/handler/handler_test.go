package handler

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"ndaflow/internal/attachment"
	"ndaflow/internal/compose"
	"ndaflow/internal/delivery/handler/mocks"
	"ndaflow/internal/delivery/models"
	"ndaflow/internal/permission"
	id "ndaflow/pkg/domain"
	dErrors "ndaflow/pkg/domain-errors"
	"ndaflow/pkg/testutil"
)

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks Service,Previewer
type DeliveryHandlerSuite struct {
	suite.Suite
	service   *mocks.MockService
	previewer *mocks.MockPreviewer
	router    chi.Router
}

func TestDeliveryHandlerSuite(t *testing.T) {
	suite.Run(t, new(DeliveryHandlerSuite))
}

func (s *DeliveryHandlerSuite) SetupTest() {
	ctrl := gomock.NewController(s.T())
	s.service = mocks.NewMockService(ctrl)
	s.previewer = mocks.NewMockPreviewer(ctrl)
	s.router = chi.NewRouter()
	New(s.service, s.previewer, slog.New(slog.NewTextHandler(io.Discard, nil))).Register(s.router)
}

func (s *DeliveryHandlerSuite) do(method, path, body string, perms ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req = testutil.WithIdentity(req, testutil.Actor("sender-1", perms...))
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func queuedJob(agreementID id.AgreementID) *models.Job {
	job, _ := models.NewJob(models.SendRequest{
		AgreementID: agreementID,
		Subject:     "NDA",
		To:          []string{"jane@acme.com"},
		Body:        "b",
	}, attachment.Ref{Key: "k", Filename: "nda.docx"}, "sender-1", time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC))
	return job
}

func (s *DeliveryHandlerSuite) TestSend() {
	s.Run("accepted request returns 202 with the job id", func() {
		agreementID := id.NewAgreementID()
		job := queuedJob(agreementID)
		s.service.EXPECT().
			Enqueue(gomock.Any(), gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ any, req models.SendRequest, _ any) (*models.Job, error) {
				s.Equal(agreementID, req.AgreementID)
				s.Equal([]string{"jane@acme.com"}, req.To)
				s.Equal([]string{"archive@usmax.com"}, req.Bcc)
				return job, nil
			})

		rec := s.do(http.MethodPost, "/agreements/"+agreementID.String()+"/emails",
			`{"subject":"NDA","to":["jane@acme.com"],"bcc":["archive@usmax.com"],"body":"b"}`,
			string(permission.SendEmail))

		s.Equal(http.StatusAccepted, rec.Code)
		var resp JobStatusResponse
		s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &resp))
		s.Equal(job.ID.String(), resp.JobID)
		s.Equal("QUEUED", resp.Status)
	})

	s.Run("validation error from the queue is a 400", func() {
		s.service.EXPECT().Enqueue(gomock.Any(), gomock.Any(), gomock.Any()).
			Return(nil, dErrors.New(dErrors.CodeValidation, "subject must not contain line breaks"))

		rec := s.do(http.MethodPost, "/agreements/"+id.NewAgreementID().String()+"/emails",
			`{"subject":"a\r\nb","to":["jane@acme.com"],"body":"b"}`, string(permission.SendEmail))

		s.Equal(http.StatusBadRequest, rec.Code)
		s.Contains(rec.Body.String(), "line breaks")
	})

	s.Run("malformed template id never reaches the service", func() {
		rec := s.do(http.MethodPost, "/agreements/"+id.NewAgreementID().String()+"/emails",
			`{"subject":"NDA","to":["jane@acme.com"],"body":"b","templateId":"nope"}`, string(permission.SendEmail))
		s.Equal(http.StatusBadRequest, rec.Code)
	})

	s.Run("unknown fields are rejected", func() {
		rec := s.do(http.MethodPost, "/agreements/"+id.NewAgreementID().String()+"/emails",
			`{"subject":"NDA","to":["jane@acme.com"],"body":"b","replyTo":"x@y.com"}`, string(permission.SendEmail))
		s.Equal(http.StatusBadRequest, rec.Code)
	})
}

func (s *DeliveryHandlerSuite) TestPreview() {
	agreementID := id.NewAgreementID()
	templateID := id.NewTemplateID()
	s.previewer.EXPECT().
		Preview(gomock.Any(), agreementID, templateID, gomock.Any()).
		Return(compose.ComposedEmail{Subject: "NDA from Kelly - for Acme", To: []string{"jane@acme.com"}}, nil)

	rec := s.do(http.MethodGet, "/agreements/"+agreementID.String()+"/email-preview?templateId="+templateID.String(), "",
		string(permission.SendEmail))

	s.Equal(http.StatusOK, rec.Code)
	var resp compose.ComposedEmail
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &resp))
	s.Equal("NDA from Kelly - for Acme", resp.Subject)
}

func (s *DeliveryHandlerSuite) TestList() {
	s.Run("requires view or send permission", func() {
		rec := s.do(http.MethodGet, "/agreements/"+id.NewAgreementID().String()+"/emails", "")
		s.Equal(http.StatusForbidden, rec.Code)
	})

	s.Run("returns history rows", func() {
		agreementID := id.NewAgreementID()
		job := queuedJob(agreementID)
		s.service.EXPECT().List(gomock.Any(), agreementID).Return([]*models.Job{job}, nil)

		rec := s.do(http.MethodGet, "/agreements/"+agreementID.String()+"/emails", "", string(permission.View))

		s.Equal(http.StatusOK, rec.Code)
		var resp []JobResponse
		s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &resp))
		s.Require().Len(resp, 1)
		s.Equal("nda.docx", resp[0].Attachment)
		s.NotNil(resp[0].NextAttemptAt)
	})
}

func (s *DeliveryHandlerSuite) TestCancel() {
	s.Run("cancelled job", func() {
		job := queuedJob(id.NewAgreementID())
		s.Require().NoError(job.Cancel(job.CreatedAt))
		s.service.EXPECT().Cancel(gomock.Any(), job.ID, gomock.Any()).Return(job, nil)

		rec := s.do(http.MethodPost, "/emails/"+job.ID.String()+"/cancel", "", string(permission.SendEmail))

		s.Equal(http.StatusOK, rec.Code)
		s.Contains(rec.Body.String(), `"status":"CANCELLED"`)
	})

	s.Run("job already sending is a conflict", func() {
		jobID := id.NewJobID()
		s.service.EXPECT().Cancel(gomock.Any(), jobID, gomock.Any()).
			Return(nil, dErrors.New(dErrors.CodeConflict, "job in status SENDING cannot be cancelled"))

		rec := s.do(http.MethodPost, "/emails/"+jobID.String()+"/cancel", "", string(permission.SendEmail))
		s.Equal(http.StatusConflict, rec.Code)
	})

	s.Run("bad job id", func() {
		rec := s.do(http.MethodPost, "/emails/not-a-uuid/cancel", "", string(permission.SendEmail))
		s.Equal(http.StatusBadRequest, rec.Code)
	})
}
