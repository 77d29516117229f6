// Package reliable turns the best-effort link into at-least-once delivery
// for commands that expect acknowledgment, and gives the receiving side a
// dedup window so retransmissions never re-execute a side effect.
package reliable

import (
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/marcotidei/LAURACam/link"
	"github.com/marcotidei/LAURACam/protocol"
)

// Outcome is the final result of a reliable send.
type Outcome int

const (
	OutcomeAcked Outcome = iota
	OutcomeTimedOut
)

func (o Outcome) String() string {
	if o == OutcomeAcked {
		return "acked"
	}
	return "timed_out"
}

var ErrInFlight = errors.New("reliable send already in flight for destination")

// Config carries the retry tunables. Zero values fall back to the defaults
// below, which match a shared-spectrum LoRa channel at SF10.
type Config struct {
	MaxRetries    int
	RetryInterval time.Duration
	Timeout       time.Duration
}

const (
	defaultMaxRetries    = 3
	defaultRetryInterval = 2 * time.Second
	defaultTimeout       = 20 * time.Second
)

func (c Config) withDefaults() Config {
	if c.MaxRetries <= 0 {
		c.MaxRetries = defaultMaxRetries
	}
	if c.RetryInterval <= 0 {
		c.RetryInterval = defaultRetryInterval
	}
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}
	return c
}

type pending struct {
	data     []byte
	seq      uint16
	kind     protocol.CommandKind
	attempts int
	interval time.Duration
	nextSend time.Time
	deadline time.Time
	done     func(Outcome)
}

// Engine drives retransmission for at most one in-flight command per
// destination. It is owned by a single event loop: Send, Tick and HandleAck
// must all be called from that loop, so no locking happens here.
type Engine struct {
	tr  link.Transport
	cfg Config
	log *zap.Logger

	inflight map[protocol.DeviceID]*pending
	seq      map[protocol.DeviceID]uint16
}

func NewEngine(tr link.Transport, cfg Config, log *zap.Logger) *Engine {
	return &Engine{
		tr:       tr,
		cfg:      cfg.withDefaults(),
		log:      log.With(zap.String("component", "reliable")),
		inflight: make(map[protocol.DeviceID]*pending),
		seq:      make(map[protocol.DeviceID]uint16),
	}
}

// NextSeq returns the next sequence number for a destination. Sequence
// numbers wrap; they exist for deduplication, not ordering.
func (e *Engine) NextSeq(dest protocol.DeviceID) uint16 {
	s := e.seq[dest]
	e.seq[dest] = s + 1
	return s
}

// Send transmits a frame immediately. Frames whose kind expects an Ack are
// registered for retransmission; done is invoked exactly once with the final
// outcome. Fire-and-forget kinds are transmitted once and done is ignored.
func (e *Engine) Send(f *protocol.Frame, done func(Outcome)) error {
	data, err := protocol.EncodeFrame(f)
	if err != nil {
		return err
	}

	if !f.Kind.NeedsAck() {
		return e.tr.Send(data)
	}

	if _, busy := e.inflight[f.Dest]; busy {
		return ErrInFlight
	}

	now := time.Now()
	p := &pending{
		data:     data,
		seq:      f.Seq,
		kind:     f.Kind,
		attempts: 1,
		interval: e.cfg.RetryInterval,
		nextSend: now.Add(e.cfg.RetryInterval),
		deadline: now.Add(e.cfg.Timeout),
		done:     done,
	}

	if err := e.tr.Send(data); err != nil {
		// The radio will be retried on the next tick; a failed first
		// transmit is no different from a lost frame.
		e.log.Warn("initial transmit failed",
			zap.Uint8("dest", uint8(f.Dest)),
			zap.Stringer("kind", f.Kind),
			zap.Error(err))
	}
	e.inflight[f.Dest] = p
	return nil
}

// Tick advances retry timers. Call it from the event loop at least as often
// as the retry interval. Each retransmission doubles the wait (exponential
// backoff, so contending remotes drift apart on shared spectrum).
func (e *Engine) Tick(now time.Time) {
	for dest, p := range e.inflight {
		// The final retransmission keeps its full backoff interval to be
		// acked; attempts are only exhausted once that interval has also
		// run out.
		exhausted := p.attempts > e.cfg.MaxRetries && !now.Before(p.nextSend)
		if now.After(p.deadline) || exhausted {
			delete(e.inflight, dest)
			e.log.Warn("reliable send exhausted retries",
				zap.Uint8("dest", uint8(dest)),
				zap.Stringer("kind", p.kind),
				zap.Uint16("seq", p.seq),
				zap.Int("attempts", p.attempts))
			if p.done != nil {
				p.done(OutcomeTimedOut)
			}
			continue
		}
		if now.Before(p.nextSend) {
			continue
		}

		p.attempts++
		p.interval *= 2
		p.nextSend = now.Add(p.interval)
		if err := e.tr.Send(p.data); err != nil {
			e.log.Warn("retransmit failed",
				zap.Uint8("dest", uint8(dest)),
				zap.Uint16("seq", p.seq),
				zap.Error(err))
		} else {
			e.log.Debug("retransmitted",
				zap.Uint8("dest", uint8(dest)),
				zap.Uint16("seq", p.seq),
				zap.Int("attempt", p.attempts))
		}
	}
}

// HandleAck resolves the in-flight command for source when the sequence
// numbers match. Duplicate or stray Acks return false and change nothing.
func (e *Engine) HandleAck(source protocol.DeviceID, seq uint16) bool {
	p, ok := e.inflight[source]
	if !ok || p.seq != seq {
		return false
	}
	delete(e.inflight, source)
	if p.done != nil {
		p.done(OutcomeAcked)
	}
	return true
}

// InFlight reports whether a reliable send is outstanding for dest.
func (e *Engine) InFlight(dest protocol.DeviceID) bool {
	_, ok := e.inflight[dest]
	return ok
}
