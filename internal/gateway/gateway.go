package gateway

import (
	"context"

	"scalp_go/internal/domain"
	"scalp_go/pkg/quant"
)

// OrderRequest is an outbound submission. LocalID is the correlation id the
// venue echoes back so the acknowledgment can be re-keyed.
type OrderRequest struct {
	LocalID   string
	Symbol    string
	Direction domain.Direction
	Offset    domain.Offset
	Price     quant.Price4
	Volume    quant.Lots
}

// Gateway is the execution venue boundary. Submit acknowledgments return the
// venue-assigned order id; fills, cancels and quote updates arrive
// asynchronously through the loop inbox as events.
type Gateway interface {
	SubmitOrder(ctx context.Context, req OrderRequest) (venueID string, err error)
	CancelOrder(ctx context.Context, venueID string) error
	Close() error
}
