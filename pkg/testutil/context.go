package testutil

import (
	"net/http"

	"ndaflow/pkg/requestcontext"
)

// WithIdentity adds an acting identity to the request context, as the auth
// middleware would for an authenticated request.
func WithIdentity(req *http.Request, identity requestcontext.ActingIdentity) *http.Request {
	return req.WithContext(requestcontext.WithIdentity(req.Context(), identity))
}

// Actor builds an identity holding the given permissions.
func Actor(id string, permissions ...string) requestcontext.ActingIdentity {
	return requestcontext.ActingIdentity{ID: id, Email: id + "@example.com", Permissions: permissions}
}
