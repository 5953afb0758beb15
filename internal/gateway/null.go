package gateway

import (
	"context"
	"fmt"
	"sync/atomic"
)

// Null is a gateway that acknowledges everything and talks to no venue.
// Used by the replay tool, where outbound requests must not leave the
// process.
type Null struct {
	n uint64
}

func (g *Null) SubmitOrder(ctx context.Context, req OrderRequest) (string, error) {
	return fmt.Sprintf("NULL-%d", atomic.AddUint64(&g.n, 1)), nil
}

func (g *Null) CancelOrder(ctx context.Context, venueID string) error { return nil }

func (g *Null) Close() error { return nil }
