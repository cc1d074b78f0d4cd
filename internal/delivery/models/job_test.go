package models

import (
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ndaflow/internal/attachment"
	id "ndaflow/pkg/domain"
	dErrors "ndaflow/pkg/domain-errors"
	"ndaflow/pkg/testutil"
)

func validRequest() SendRequest {
	return SendRequest{
		AgreementID: id.NewAgreementID(),
		Subject:     "NDA from USMax",
		To:          []string{"jane@acme.com"},
		Cc:          []string{"pm@usmax.com"},
		Body:        "Please sign.",
	}
}

var docRef = attachment.Ref{Key: "k", Filename: "nda.docx", ContentType: attachment.DefaultContentType}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*SendRequest)
	}{
		{"empty subject", func(r *SendRequest) { r.Subject = "  " }},
		{"subject with newline", func(r *SendRequest) { r.Subject = "Hi\nBcc: evil@x.com" }},
		{"subject with carriage return", func(r *SendRequest) { r.Subject = "Hi\r" }},
		{"no recipients", func(r *SendRequest) { r.To = nil }},
		{"only blank recipients", func(r *SendRequest) { r.To = []string{" "} }},
		{"malformed address", func(r *SendRequest) { r.To = []string{"not-an-address"} }},
		{"display name address", func(r *SendRequest) { r.Cc = []string{"Jane <jane@acme.com>"} }},
		{"address list in one entry", func(r *SendRequest) { r.Bcc = []string{"a@x.com, b@x.com"} }},
		{"address with line break", func(r *SendRequest) { r.Cc = []string{"a@x.com\r\nSubject: x"} }},
		{"empty body", func(r *SendRequest) { r.Body = "" }},
		{"too many recipients", func(r *SendRequest) {
			r.Bcc = make([]string, MaxRecipients)
			for i := range r.Bcc {
				r.Bcc[i] = "user" + strconv.Itoa(i) + "@x.com"
			}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validRequest()
			tt.mutate(&req)
			err := Validate(req)
			require.Error(t, err)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
		})
	}

	t.Run("valid request", func(t *testing.T) {
		assert.NoError(t, Validate(validRequest()))
	})

	t.Run("exactly the recipient limit", func(t *testing.T) {
		req := validRequest()
		req.Cc = nil
		req.Bcc = make([]string, MaxRecipients-1)
		for i := range req.Bcc {
			req.Bcc[i] = "user" + strconv.Itoa(i) + "@x.com"
		}
		assert.NoError(t, Validate(req))
	})
}

func TestNewJob(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	t.Run("queued and due now", func(t *testing.T) {
		req := validRequest()
		req.To = []string{" jane@acme.com "}
		job, err := NewJob(req, docRef, "user-1", now)
		require.NoError(t, err)
		assert.Equal(t, StatusQueued, job.Status)
		assert.Equal(t, now, job.NextAttemptAt)
		assert.Equal(t, []string{"jane@acme.com"}, job.To)
		assert.Zero(t, job.RetryCount)
	})

	t.Run("requires an attachment", func(t *testing.T) {
		_, err := NewJob(validRequest(), attachment.Ref{}, "user-1", now)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})
}

func TestJobLifecycle(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	testutil.Given(t, "a claimed job with three attempts allowed", func(t *testing.T) {
		job, err := NewJob(validRequest(), docRef, "user-1", now)
		require.NoError(t, err)
		require.NoError(t, job.Claim(uuid.New(), now))

		testutil.Then(t, "it cannot be claimed twice", func(t *testing.T) {
			assert.Error(t, job.Claim(uuid.New(), now))
		})
		testutil.Then(t, "it cannot be cancelled in flight", func(t *testing.T) {
			assert.True(t, dErrors.HasCode(job.Cancel(now), dErrors.CodeConflict))
		})

		testutil.When(t, "attempts fail until the budget is spent", func(t *testing.T) {
			retryAt := now.Add(time.Second)
			assert.False(t, job.RecordFailure("timeout", 3, retryAt, now))
			assert.Equal(t, StatusQueued, job.Status)
			assert.Equal(t, retryAt, job.NextAttemptAt)

			require.NoError(t, job.Claim(uuid.New(), now))
			assert.False(t, job.RecordFailure("timeout", 3, retryAt, now))
			require.NoError(t, job.Claim(uuid.New(), now))
			assert.True(t, job.RecordFailure(strings.Repeat("x", 5000), 3, retryAt, now))

			testutil.Then(t, "the job is failed with a bounded error", func(t *testing.T) {
				assert.Equal(t, StatusFailed, job.Status)
				assert.Equal(t, 3, job.RetryCount)
				assert.Len(t, job.LastError, maxLastErrorLength)
			})
		})
	})

	testutil.Given(t, "a queued job", func(t *testing.T) {
		job, err := NewJob(validRequest(), docRef, "user-1", now)
		require.NoError(t, err)

		testutil.Then(t, "it can be cancelled", func(t *testing.T) {
			require.NoError(t, job.Cancel(now))
			assert.Equal(t, StatusCancelled, job.Status)
		})
	})
}
