// Package contacts resolves contact ids to addressable people.
package contacts

import (
	"context"

	id "ndaflow/pkg/domain"
	"ndaflow/pkg/email"
)

type Contact struct {
	ID        id.ContactID
	Email     string
	FirstName string
	LastName  string
}

// Name is the contact's full name, falling back to one derived from the address.
func (c Contact) Name() string {
	return email.DisplayName(c.FirstName, c.LastName, c.Email)
}

// Directory returns sentinel.ErrNotFound for unknown contacts.
type Directory interface {
	Resolve(ctx context.Context, contactID id.ContactID) (Contact, error)
}
