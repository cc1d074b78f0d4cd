// Package permission names the capabilities this service checks and evaluates them
// against the claims carried by the acting identity.
package permission

import "ndaflow/pkg/requestcontext"

// Capability is a permission string granted through token claims.
type Capability string

const (
	MarkStatus          Capability = "nda:mark_status"
	SendEmail           Capability = "nda:send_email"
	ManageSubscriptions Capability = "nda:manage_subscriptions"
	View                Capability = "nda:view"

	// Admin grants every capability.
	Admin Capability = "admin:all"
)

// ClaimsChecker grants a capability when the identity's claims list it or list Admin.
type ClaimsChecker struct{}

// Has reports whether the identity may exercise the capability.
func (ClaimsChecker) Has(identity requestcontext.ActingIdentity, capability Capability) bool {
	if identity.IsZero() {
		return false
	}
	return identity.HasPermission(string(capability)) || identity.HasPermission(string(Admin))
}
