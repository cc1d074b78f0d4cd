package subscription

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"

	agreementmodels "ndaflow/internal/agreement/models"
	"ndaflow/internal/audit"
	auditmemory "ndaflow/internal/audit/store/memory"
	"ndaflow/internal/contacts"
	"ndaflow/internal/notify"
	"ndaflow/internal/permission"
	id "ndaflow/pkg/domain"
	dErrors "ndaflow/pkg/domain-errors"
	"ndaflow/pkg/platform/tx"
	"ndaflow/pkg/requestcontext"
	"ndaflow/pkg/testutil"
)

type agreementFixtures map[id.AgreementID]*agreementmodels.Agreement

func (f agreementFixtures) Get(_ context.Context, agreementID id.AgreementID) (*agreementmodels.Agreement, error) {
	if a, ok := f[agreementID]; ok {
		return a, nil
	}
	return nil, dErrors.New(dErrors.CodeNotFound, "agreement not found")
}

type SubscriptionSuite struct {
	suite.Suite
	store     *InMemory
	audit     *auditmemory.InMemoryStore
	service   *Service
	router    chi.Router
	agreement *agreementmodels.Agreement
	contact   contacts.Contact
	manager   requestcontext.ActingIdentity
}

func TestSubscriptionSuite(t *testing.T) {
	suite.Run(t, new(SubscriptionSuite))
}

func (s *SubscriptionSuite) SetupTest() {
	s.store = NewInMemory()
	s.audit = auditmemory.NewInMemoryStore()
	s.contact = contacts.Contact{ID: id.NewContactID(), Email: "legal@usmax.com"}
	a, err := agreementmodels.NewAgreement(id.NewAgreementID(), "Acme Federal", id.NewContactID(), time.Now())
	s.Require().NoError(err)
	s.agreement = a
	s.manager = testutil.Actor("manager-1", string(permission.ManageSubscriptions))

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s.service = NewService(s.store, tx.NewSharded(), agreementFixtures{a.ID: a}, contacts.NewInMemory(s.contact),
		audit.NewPublisher(s.audit), permission.ClaimsChecker{}, logger)
	s.router = chi.NewRouter()
	NewHandler(s.service, logger).Register(s.router)
}

func (s *SubscriptionSuite) TestSubscribe() {
	s.Run("manager subscribes a contact", func() {
		_, err := s.service.Subscribe(context.Background(), s.agreement.ID, s.contact.ID, s.manager)
		s.Require().NoError(err)

		ids, err := s.store.ListByAgreement(context.Background(), s.agreement.ID)
		s.Require().NoError(err)
		s.Equal([]id.ContactID{s.contact.ID}, ids)
		s.Equal(1, s.audit.CountAction(audit.ActionSubscriptionAdded))
	})

	s.Run("duplicate is a conflict", func() {
		_, err := s.service.Subscribe(context.Background(), s.agreement.ID, s.contact.ID, s.manager)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("contacts may follow on their own behalf", func() {
		self := contacts.Contact{ID: id.NewContactID(), Email: "pm@usmax.com"}
		s.Require().NoError(s.service.directory.(*contacts.InMemory).Save(context.Background(), self))
		_, err := s.service.Subscribe(context.Background(), s.agreement.ID, self.ID, testutil.Actor(self.ID.String()))
		s.NoError(err)
	})

	s.Run("others need the manage permission", func() {
		_, err := s.service.Subscribe(context.Background(), s.agreement.ID, id.NewContactID(), testutil.Actor("viewer", string(permission.View)))
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("unknown contact", func() {
		_, err := s.service.Subscribe(context.Background(), s.agreement.ID, id.NewContactID(), s.manager)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})
}

func (s *SubscriptionSuite) TestUnsubscribe() {
	_, err := s.service.Subscribe(context.Background(), s.agreement.ID, s.contact.ID, s.manager)
	s.Require().NoError(err)

	s.Require().NoError(s.service.Unsubscribe(context.Background(), s.agreement.ID, s.contact.ID, s.manager))
	s.Equal(1, s.audit.CountAction(audit.ActionSubscriptionRemoved))

	err = s.service.Unsubscribe(context.Background(), s.agreement.ID, s.contact.ID, s.manager)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *SubscriptionSuite) TestHTTP() {
	base := "/agreements/" + s.agreement.ID.String() + "/subscriptions"
	do := func(method, path, body string) *httptest.ResponseRecorder {
		req := testutil.WithIdentity(httptest.NewRequest(method, path, strings.NewReader(body)), s.manager)
		rec := httptest.NewRecorder()
		s.router.ServeHTTP(rec, req)
		return rec
	}

	rec := do(http.MethodPost, base, `{"contactId":"`+s.contact.ID.String()+`"}`)
	s.Equal(http.StatusCreated, rec.Code)

	rec = do(http.MethodGet, base, "")
	s.Equal(http.StatusOK, rec.Code)
	s.Contains(rec.Body.String(), s.contact.ID.String())

	rec = do(http.MethodDelete, base+"/"+s.contact.ID.String(), "")
	s.Equal(http.StatusNoContent, rec.Code)

	rec = do(http.MethodPost, base, `{"contactId":"nope"}`)
	s.Equal(http.StatusBadRequest, rec.Code)
}

func (s *SubscriptionSuite) TestPreferences() {
	off := false

	s.Run("contacts without stored preferences get every event", func() {
		prefs, err := s.service.Preferences(context.Background(), s.contact.ID)
		s.Require().NoError(err)
		s.Equal(notify.DefaultPreferences(s.contact.ID), prefs)
	})

	s.Run("update changes only the given flags", func() {
		now := time.Date(2026, 7, 1, 8, 0, 0, 0, time.UTC)
		ctx := requestcontext.WithTime(context.Background(), now)
		prefs, err := s.service.UpdatePreferences(ctx, s.contact.ID, PreferenceUpdate{OnStatusChanged: &off}, s.manager)
		s.Require().NoError(err)
		s.False(prefs.OnStatusChanged)
		s.True(prefs.OnFullyExecuted)
		s.True(prefs.OnEmailSent)
		s.Equal(now, prefs.UpdatedAt)

		stored, err := s.service.Preferences(context.Background(), s.contact.ID)
		s.Require().NoError(err)
		s.Equal(prefs, stored)
		s.Equal(1, s.audit.CountAction(audit.ActionPreferencesUpdated))
	})

	s.Run("contacts manage their own preferences", func() {
		_, err := s.service.UpdatePreferences(context.Background(), s.contact.ID, PreferenceUpdate{OnEmailSent: &off},
			testutil.Actor(s.contact.ID.String()))
		s.NoError(err)
	})

	s.Run("others need the manage permission", func() {
		_, err := s.service.UpdatePreferences(context.Background(), s.contact.ID, PreferenceUpdate{OnEmailSent: &off},
			testutil.Actor("viewer", string(permission.View)))
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
		_, err = s.service.PreferencesFor(context.Background(), s.contact.ID, testutil.Actor("viewer", string(permission.View)))
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("unknown contact", func() {
		_, err := s.service.UpdatePreferences(context.Background(), id.NewContactID(), PreferenceUpdate{OnEmailSent: &off}, s.manager)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func (s *SubscriptionSuite) TestPreferencesHTTP() {
	path := "/contacts/" + s.contact.ID.String() + "/notification-preferences"
	do := func(method, body string) *httptest.ResponseRecorder {
		req := testutil.WithIdentity(httptest.NewRequest(method, path, strings.NewReader(body)), s.manager)
		rec := httptest.NewRecorder()
		s.router.ServeHTTP(rec, req)
		return rec
	}

	rec := do(http.MethodGet, "")
	s.Equal(http.StatusOK, rec.Code)
	got := testutil.UnmarshalResponse[PreferencesResponse](s.T(), rec)
	s.Equal(s.contact.ID.String(), got.ContactID)
	s.True(got.OnStatusChanged)
	s.Nil(got.UpdatedAt)

	rec = do(http.MethodPut, `{"onFullyExecuted":false}`)
	s.Equal(http.StatusOK, rec.Code)
	got = testutil.UnmarshalResponse[PreferencesResponse](s.T(), rec)
	s.False(got.OnFullyExecuted)
	s.True(got.OnStatusChanged)
	s.NotNil(got.UpdatedAt)

	rec = do(http.MethodPut, `{}`)
	testutil.AssertStatusAndError(s.T(), rec, http.StatusBadRequest, "validation_error")
}
