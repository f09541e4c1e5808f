// Package gateway talks to the external banking gateway that actually moves
// money between accounts. The gateway offers no idempotency guarantee of its
// own; the settlement pipeline's keys are authoritative.
package gateway

import (
	"context"

	"github.com/shopspring/decimal"
)

// TransferRequest describes one fund movement at the gateway.
type TransferRequest struct {
	SourceRef string          `json:"source_ref"`
	DestRef   string          `json:"dest_ref"`
	Amount    decimal.Decimal `json:"amount"`
	Currency  string          `json:"currency"`
	Summary   string          `json:"summary"`
}

// Gateway is the collaborator contract consumed by the settlement pipeline.
// Transfer returns the gateway's external transaction id on success.
type Gateway interface {
	Transfer(ctx context.Context, req TransferRequest) (string, error)
}
