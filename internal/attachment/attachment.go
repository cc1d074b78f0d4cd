// Package attachment retrieves generated agreement documents by key.
package attachment

import (
	"context"

	id "ndaflow/pkg/domain"
)

// Ref identifies one stored document.
type Ref struct {
	Key         string `json:"key"`
	Filename    string `json:"filename"`
	ContentType string `json:"contentType"`
}

func (r Ref) IsZero() bool { return r.Key == "" }

// Store is read-only from this service's point of view. Get returns
// sentinel.ErrNotFound for unknown keys; Latest returns it when the agreement
// has no generated document.
type Store interface {
	Get(ctx context.Context, ref Ref) ([]byte, error)
	Exists(ctx context.Context, ref Ref) (bool, error)
	Latest(ctx context.Context, agreementID id.AgreementID) (Ref, error)
}

// DefaultContentType is used when a document's type is not recorded.
const DefaultContentType = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
