// Package subscription records which contacts follow an agreement.
package subscription

import (
	"time"

	id "ndaflow/pkg/domain"
)

type Subscription struct {
	AgreementID id.AgreementID
	ContactID   id.ContactID
	CreatedAt   time.Time
}
