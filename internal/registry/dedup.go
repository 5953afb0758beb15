package registry

// tradeDedup tracks trade ids that have already been applied. The venue
// delivers at-least-once, so a repeated id is expected and must be a silent
// no-op. The set only grows.
type tradeDedup struct {
	seen map[string]struct{}
}

func newTradeDedup() *tradeDedup {
	return &tradeDedup{seen: make(map[string]struct{})}
}

func (d *tradeDedup) applied(tradeID string) bool {
	_, ok := d.seen[tradeID]
	return ok
}

func (d *tradeDedup) mark(tradeID string) {
	d.seen[tradeID] = struct{}{}
}
