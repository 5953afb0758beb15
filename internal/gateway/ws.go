package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"scalp_go/internal/event"
	"scalp_go/internal/infra"
	"scalp_go/pkg/quant"
)

// WSGateway is the live venue connection. One goroutine owns the read pump
// and forwards decoded events into the loop inbox; writes are serialized.
// Reconnects use exponential backoff; outbound requests pass a rate limiter
// and a circuit breaker.
type WSGateway struct {
	url     string
	inbox   chan<- event.Event
	nextSeq *uint64

	limiter *infra.RateLimiter
	breaker *infra.CircuitBreaker

	mu      sync.RWMutex
	conn    *websocket.Conn
	writeMu sync.Mutex

	pendingMu sync.Mutex
	pending   map[string]chan string // client id -> venue id ack

	cancel context.CancelFunc
	wg     sync.WaitGroup

	ReadTimeout time.Duration
	AckTimeout  time.Duration
}

type wireAck struct {
	ClientID string `json:"client_id"`
	OrderID  string `json:"order_id"`
}

func NewWS(url string, inbox chan<- event.Event, nextSeq *uint64) *WSGateway {
	return &WSGateway{
		url:         url,
		inbox:       inbox,
		nextSeq:     nextSeq,
		limiter:     infra.NewRateLimiter(5, 10),
		breaker:     infra.NewCircuitBreaker("venue-submit", 5, 2, 30*time.Second),
		pending:     make(map[string]chan string),
		ReadTimeout: 60 * time.Second,
		AckTimeout:  10 * time.Second,
	}
}

// Start launches the connection loop.
func (g *WSGateway) Start(ctx context.Context) {
	ctx, g.cancel = context.WithCancel(ctx)
	g.wg.Add(1)
	go g.runLoop(ctx)
}

func (g *WSGateway) runLoop(ctx context.Context) {
	defer g.wg.Done()
	retry := 0

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := g.connect(ctx); err != nil {
			slog.Warn("venue connection failed", "err", err, "retry", retry)
			delay := infra.CalculateBackoff(retry)
			retry++
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
				continue
			}
		}

		retry = 0
		g.readPump(ctx)
	}
}

func (g *WSGateway) connect(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, g.url, nil)
	if err != nil {
		return err
	}

	g.mu.Lock()
	g.conn = conn
	g.mu.Unlock()

	slog.Info("venue connected", "url", g.url)
	return nil
}

func (g *WSGateway) readPump(ctx context.Context) {
	for {
		g.mu.RLock()
		c := g.conn
		g.mu.RUnlock()
		if c == nil {
			return
		}

		c.SetReadDeadline(time.Now().Add(g.ReadTimeout))
		_, msg, err := c.ReadMessage()
		if err != nil {
			slog.Warn("venue read error", "err", err)
			g.closeConn()
			return
		}
		g.onMessage(msg)
	}
}

func (g *WSGateway) onMessage(raw []byte) {
	// Acks correlate to a waiting submit; everything else is a loop event.
	var env wireEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		slog.Warn("undecodable venue frame", "err", err)
		return
	}
	if env.Kind == "ack" {
		var ack wireAck
		if err := json.Unmarshal(env.Data, &ack); err != nil {
			slog.Warn("undecodable venue ack", "err", err)
			return
		}
		g.resolveAck(ack)
		return
	}

	ev, err := DecodeEvent(raw)
	if err != nil {
		slog.Warn("undecodable venue event", "err", err)
		return
	}
	switch e := ev.(type) {
	case *event.QuoteChangedEvent:
		e.Seq = quant.NextSeq(g.nextSeq)
	case *event.OrderChangedEvent:
		e.Seq = quant.NextSeq(g.nextSeq)
	case *event.TradeArrivedEvent:
		e.Seq = quant.NextSeq(g.nextSeq)
	}
	g.inbox <- ev
}

func (g *WSGateway) resolveAck(ack wireAck) {
	g.pendingMu.Lock()
	ch, ok := g.pending[ack.ClientID]
	delete(g.pending, ack.ClientID)
	g.pendingMu.Unlock()
	if !ok {
		slog.Warn("ack for unknown client id", "client_id", ack.ClientID)
		return
	}
	ch <- ack.OrderID
}

// SubmitOrder sends the request and waits for the venue's acknowledgment
// carrying the assigned order id.
func (g *WSGateway) SubmitOrder(ctx context.Context, req OrderRequest) (string, error) {
	if !g.breaker.Allow() {
		return "", fmt.Errorf("submit rejected: venue circuit open")
	}
	g.limiter.Wait()

	frame, err := EncodeSubmit(req)
	if err != nil {
		return "", err
	}

	ackCh := make(chan string, 1)
	g.pendingMu.Lock()
	g.pending[req.LocalID] = ackCh
	g.pendingMu.Unlock()

	if err := g.write(frame); err != nil {
		g.dropPending(req.LocalID)
		g.breaker.RecordFailure()
		return "", err
	}

	select {
	case <-ctx.Done():
		g.dropPending(req.LocalID)
		return "", ctx.Err()
	case <-time.After(g.AckTimeout):
		g.dropPending(req.LocalID)
		g.breaker.RecordFailure()
		return "", fmt.Errorf("submit %s: ack timeout", req.LocalID)
	case venueID := <-ackCh:
		g.breaker.RecordSuccess()
		return venueID, nil
	}
}

// CancelOrder sends a cancel request. Its effect is observed through a later
// OrderChanged event, not through the call result.
func (g *WSGateway) CancelOrder(ctx context.Context, venueID string) error {
	g.limiter.Wait()
	frame, err := EncodeCancel(venueID)
	if err != nil {
		return err
	}
	return g.write(frame)
}

// Close stops the connection loop.
func (g *WSGateway) Close() error {
	if g.cancel != nil {
		g.cancel()
	}
	g.closeConn()
	g.wg.Wait()
	return nil
}

func (g *WSGateway) dropPending(clientID string) {
	g.pendingMu.Lock()
	delete(g.pending, clientID)
	g.pendingMu.Unlock()
}

func (g *WSGateway) write(data []byte) error {
	g.writeMu.Lock()
	defer g.writeMu.Unlock()

	g.mu.RLock()
	c := g.conn
	g.mu.RUnlock()
	if c == nil {
		return fmt.Errorf("venue not connected")
	}
	return c.WriteMessage(websocket.TextMessage, data)
}

func (g *WSGateway) closeConn() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.conn != nil {
		g.conn.Close()
		g.conn = nil
	}
}
