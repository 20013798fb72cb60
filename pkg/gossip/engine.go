package gossip

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/Fantom-foundation/libtransport/pkg/transport"
)

// Roster is the peer directory shape the engine needs: resolution plus
// enumeration for broadcast, and a last-seen refresh when a peer talks to us.
type Roster interface {
	transport.Roster[PeerID]
	Touch(peer PeerID)
}

// Config wires an Engine.
type Config struct {
	NodeID   PeerID
	Sender   transport.Sender[Message]
	Receiver transport.Receiver[Message]
	Roster   Roster
	// Interval between sync-request broadcasts. Default 1s.
	Interval time.Duration
	// OnMessage, when set, observes every inbound message after the engine's
	// own bookkeeping.
	OnMessage func(Message)
}

// Engine periodically broadcasts sync requests to the roster and answers
// inbound requests with directed replies. It is the module's own consumer of
// the transport contracts; a real consensus core would replace it.
type Engine struct {
	cfg Config
	seq atomic.Uint64

	requestsIn atomic.Uint64
	repliesIn  atomic.Uint64
}

func NewEngine(cfg Config) *Engine {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	return &Engine{cfg: cfg}
}

// Run drives the receive loop and the broadcast ticker until ctx is done or
// the receiver's stream ends. It returns nil on clean shutdown.
func (e *Engine) Run(ctx context.Context) error {
	tctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go e.broadcastLoop(tctx)

	for {
		m, err := e.cfg.Receiver.Recv(ctx)
		if err != nil {
			// either our context ended or the receive stream did; both are
			// orderly shutdown
			if ctx.Err() != nil || transport.IsClosed(err) {
				return nil
			}
			return err
		}
		e.handle(ctx, m)
	}
}

func (e *Engine) broadcastLoop(ctx context.Context) {
	t := time.NewTicker(e.cfg.Interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			msg := Message{Kind: MsgSyncRequest, From: e.cfg.NodeID, Seq: e.seq.Add(1)}
			if err := transport.Broadcast(ctx, e.cfg.Sender, e.cfg.Roster, msg); err != nil {
				// per-peer failures are expected while peers churn
				zap.L().Debug("sync broadcast incomplete", zap.Error(err))
			}
		}
	}
}

func (e *Engine) handle(ctx context.Context, m Message) {
	if m.From == e.cfg.NodeID {
		return
	}
	e.cfg.Roster.Touch(m.From)
	switch m.Kind {
	case MsgSyncRequest:
		e.requestsIn.Add(1)
		reply := Message{Kind: MsgSyncReply, From: e.cfg.NodeID, To: m.From, Seq: m.Seq}
		if err := transport.SendTo(ctx, e.cfg.Sender, e.cfg.Roster, m.From, reply); err != nil {
			zap.L().Warn("sync reply failed",
				zap.String("peer", string(m.From)), zap.Error(err))
		}
	case MsgSyncReply:
		e.repliesIn.Add(1)
		zap.L().Debug("sync reply received",
			zap.String("peer", string(m.From)), zap.Uint64("seq", m.Seq))
	default:
		zap.L().Warn("unknown message kind dropped",
			zap.Uint8("kind", uint8(m.Kind)), zap.String("peer", string(m.From)))
		return
	}
	if e.cfg.OnMessage != nil {
		e.cfg.OnMessage(m)
	}
}

// Stats returns how many requests and replies the engine has consumed.
func (e *Engine) Stats() (requests, replies uint64) {
	return e.requestsIn.Load(), e.repliesIn.Load()
}
