// Package ipcring implements the FFADO inter-process streaming ring
// buffer (spec §4.4): one shared memory region, two notification
// message queues ("ping", "pong") and the reservation/commit protocol
// that streams fixed-size blocks between a master and a slave process.
package ipcring

import (
	"fmt"
	"sync"
	"time"

	"github.com/adiknoth/ffado-sub007/internal/config"
	"github.com/adiknoth/ffado-sub007/internal/constants"
	"github.com/adiknoth/ffado-sub007/internal/interfaces"
	"github.com/adiknoth/ffado-sub007/internal/logging"
	"github.com/adiknoth/ffado-sub007/internal/mqueue"
	"github.com/adiknoth/ffado-sub007/internal/rmutex"
	"github.com/adiknoth/ffado-sub007/internal/shmregion"
)

// Role and Direction are re-exported from internal/config so callers
// configuring a Ring and callers loading a YAML file share one set of
// enum values.
type (
	Role      = config.Role
	Direction = config.Direction
)

const (
	RoleMaster        = config.RoleMaster
	RoleSlave         = config.RoleSlave
	DirectionOutward  = config.DirectionOutward
	DirectionInward   = config.DirectionInward
)

// State is the ring's coarse lifecycle state.
type State int

const (
	StateRunning State = iota
	StateClosed
)

func (s State) String() string {
	if s == StateClosed {
		return "closed"
	}
	return "running"
}

// Config configures a Ring at construction. Only Name is required;
// everything else falls back to constants.Default*.
type Config struct {
	Name         string
	Direction    Direction
	Blocking     bool
	Slots        int
	BlockSize    int
	QueueTimeout time.Duration
	// QueueCapacity bounds the ping/pong queues (spec §6: "max_messages
	// = 10, recommended"). Zero falls back to constants.MaxMessages.
	// Tests exercising the overrun/Again boundary (spec §8 S2) set this
	// below the default so the scenario fits in a handful of writes.
	QueueCapacity int
	Logger        *logging.Logger
	Observer      interfaces.Observer
}

func (c Config) withDefaults() Config {
	if c.Slots <= 0 {
		c.Slots = constants.DefaultNumSlots
	}
	if c.BlockSize <= 0 {
		c.BlockSize = constants.DefaultBlockSize
	}
	if c.QueueTimeout <= 0 {
		c.QueueTimeout = constants.DefaultQueueTimeout
	}
	if c.QueueCapacity <= 0 {
		c.QueueCapacity = constants.MaxMessages
	}
	if c.Direction == "" {
		c.Direction = DirectionOutward
	}
	return c
}

// Info is a point-in-time description of a Ring, analogous to the
// teacher pack's Device.Info().
type Info struct {
	Name      string
	Role      Role
	Direction Direction
	Blocking  bool
	Slots     int
	BlockSize int
	State     State
}

// Ring composes a shared memory region with two message queues and the
// local reservation locks guarding access to each (spec §4.4).
type Ring struct {
	name      string
	role      Role
	direction Direction
	blocking  bool
	n         uint32
	b         int

	queueTimeout time.Duration

	region interfaces.Region
	pingQ  interfaces.Queue
	pongQ  interfaces.Queue

	log     *logging.Logger
	obs     interfaces.Observer
	metrics *Metrics

	// Producer-side state (direction == DirectionOutward). nextSlot and
	// idx are private to the single writer goroutine that holds
	// writeReservation. unacked/lastAckSlot/lastAckIdx are shared with
	// the pong notification handler and are only ever touched under
	// activityMu.
	//
	// unacked counts outstanding (written, not yet acked) slots and is
	// the sole flow-control signal: a ring has exactly N addressable
	// slots and no spare slot is reserved to disambiguate empty from
	// full (unlike the source's next_block/last_block_ack pair, which
	// starts one apart and so only ever keeps N-1 slots usable). lastAckSlot
	// is the diagnostic "most recently acked slot", advanced by a real
	// ack or, on overrun, advanced by the producer itself standing in
	// for the ack that never came.
	writeReservation rmutex.Mutex
	nextSlot         uint32
	idx              uint32
	unacked          uint32
	lastAckSlot      uint32
	lastAckIdx       uint32

	// activityMu/activityCond replace the source's counting semaphore
	// (spec §9): the producer waits on activityCond while unacked == N,
	// and the notification handler signals it after updating unacked/
	// lastAckSlot/lastAckIdx, both under activityMu so a signal can
	// never arrive between the producer's predicate check and its
	// Wait call.
	activityMu   sync.Mutex
	activityCond *sync.Cond

	// Consumer-side state (direction == DirectionInward), private to
	// the single reader goroutine that holds readReservation.
	readReservation rmutex.Mutex
	nextSlotR       uint32
	idxR            uint32
	pendingAck      interfaces.Message

	// accessMu serializes the pong notification handler against Close,
	// per spec §4.4's destructor discipline: disarm first, then lock
	// accessMu, then tear down.
	accessMu       sync.Mutex
	closed         bool
	ackSlotCursor  uint32
	ackSeqCursor   uint32
}

var _ fmt.Stringer = State(0)

// NewMaster creates the shared region and both message queues, owning
// their teardown (spec §3 Lifecycle, §4.4 Construction).
func NewMaster(cfg Config) (*Ring, error) {
	return newRing(cfg, RoleMaster)
}

// NewSlave opens a ring previously created by a master with the same
// name, N and B. Its lifetime must be a subset of the master's (spec
// §3 Lifecycle).
func NewSlave(cfg Config) (*Ring, error) {
	return newRing(cfg, RoleSlave)
}

func newRing(cfg Config, role Role) (*Ring, error) {
	cfg = cfg.withDefaults()
	if cfg.Name == "" {
		return nil, NewError("NewRing", ErrCodeInvalidParameters, "ring name is required")
	}

	log := cfg.Logger
	if log == nil {
		log = logging.Default().WithRing(cfg.Name)
	}
	metrics := NewMetrics()
	obs := cfg.Observer
	if obs == nil {
		// Default to feeding the ring's own Metrics so Metrics()/Info()
		// reflect activity out of the box; callers wanting a different
		// sink (or none) pass an explicit Observer.
		obs = NewMetricsObserver(metrics)
	}

	r := &Ring{
		name:         cfg.Name,
		role:         role,
		direction:    cfg.Direction,
		blocking:     cfg.Blocking,
		n:            uint32(cfg.Slots),
		b:            cfg.BlockSize,
		queueTimeout: cfg.QueueTimeout,
		log:          log,
		obs:          obs,
		metrics:      metrics,
	}
	r.activityCond = sync.NewCond(&r.activityMu)

	regionName := cfg.Name + constants.RegionSuffix
	pingName := cfg.Name + constants.PingSuffix
	pongName := cfg.Name + constants.PongSuffix
	size := cfg.Slots * cfg.BlockSize

	// Build dependencies bottom-up (region, then ping, then pong),
	// unwinding whatever was already constructed on any failure — the
	// same "cleanup already created runners" shape as the teacher
	// pack's CreateAndServe.
	var cleanup []func()
	fail := func(op string, err error) (*Ring, error) {
		for i := len(cleanup) - 1; i >= 0; i-- {
			cleanup[i]()
		}
		return nil, WrapError(op, err)
	}

	var err error
	if role == RoleMaster {
		r.region, err = shmregion.Create(regionName, size)
	} else {
		r.region, err = shmregion.Open(regionName, size, interfaces.ReadWrite)
	}
	if err != nil {
		return fail("NewRing", err)
	}
	cleanup = append(cleanup, func() { _ = r.region.Close() })

	if err := r.region.LockInMemory(true); err != nil {
		log.Warn("failed to lock region in memory", "err", err)
	}

	var pingQ, pongQ interfaces.Queue
	if role == RoleMaster {
		pingQ, err = mqueue.Create(pingName, cfg.QueueCapacity)
		if err != nil {
			return fail("NewRing", err)
		}
		cleanup = append(cleanup, func() { _ = pingQ.Close() })

		pongQ, err = mqueue.Create(pongName, cfg.QueueCapacity)
		if err != nil {
			return fail("NewRing", err)
		}
		cleanup = append(cleanup, func() { _ = pongQ.Close() })
	} else {
		pingQ, err = mqueue.Open(pingName)
		if err != nil {
			return fail("NewRing", err)
		}
		pongQ, err = mqueue.Open(pongName)
		if err != nil {
			return fail("NewRing", err)
		}
	}
	r.pingQ = pingQ
	r.pongQ = pongQ

	// Direction, not role, decides which queue this endpoint drains at
	// construction and which one carries the async notifier: outward
	// writes ping and is woken by pong; inward writes pong and reads
	// ping directly (spec §4.4: "direction = Inward swaps the
	// ping/pong roles").
	if cfg.Direction == DirectionOutward {
		if err := r.pongQ.SetNotificationHandler(r.handlePong); err != nil {
			return fail("NewRing", err)
		}
		if err := r.pongQ.ArmNotification(); err != nil {
			return fail("NewRing", err)
		}
		r.pongQ.Drain()
	} else {
		r.pingQ.Drain()
	}

	return r, nil
}

// Write is the convenience reserve+copy+commit API for the outward
// side (spec §4.4).
func (r *Ring) Write(buf []byte) error {
	if len(buf) != r.b {
		return NewRingError("Write", r.name, ErrCodeInvalidParameters,
			fmt.Sprintf("buffer is %d bytes, want %d", len(buf), r.b))
	}
	block, err := r.ReserveWrite()
	if err != nil {
		return err
	}
	copy(block, buf)
	return r.CommitWrite()
}

// ReserveWrite acquires the write reservation and returns a mutable
// view of the next slot to write, applying the overrun policy if the
// ring has wrapped onto a never-acked slot (spec §4.4 reserve_write,
// steps 1-7).
//
// Blocking mode waits on activityCond while all N slots are unacked,
// so it never overruns (spec §8 boundary 9: N=1 is strict lockstep).
// Non-blocking mode never waits: if the ping queue cannot accept
// another message right now, it fails with Again before anything is
// mutated; otherwise the write proceeds and, if all N slots are
// unacked, silently recycles the oldest one via the overrun branch
// below rather than failing (spec §8 S2: writes 1..N succeed, write
// N+1 succeeds with a warning, and only the ping queue filling up
// eventually yields Again).
func (r *Ring) ReserveWrite() ([]byte, error) {
	if r.direction != DirectionOutward {
		return nil, NewRingError("ReserveWrite", r.name, ErrCodeInvalidParameters, "ring is not outward")
	}
	if !r.writeReservation.TryLock() {
		return nil, NewRingError("ReserveWrite", r.name, ErrCodeIOError, "write reservation already held")
	}
	release := func() { _ = r.writeReservation.Unlock() }

	if r.blocking {
		r.activityMu.Lock()
		for r.unacked >= r.n {
			r.activityCond.Wait()
		}
		r.activityMu.Unlock()
	} else if !r.pingQ.CanSend() {
		release()
		return nil, ErrAgain
	}

	r.activityMu.Lock()
	if r.unacked >= r.n {
		r.log.Warn("overrun: overwriting a never-acked slot", "slot", r.lastAckSlot)
		r.obs.ObserveOverrun()
		r.lastAckSlot = (r.lastAckSlot + 1) % r.n
		r.unacked--
	}
	r.activityMu.Unlock()

	block, err := r.region.Block(int(r.nextSlot)*r.b, r.b)
	if err != nil {
		release()
		return nil, WrapError("ReserveWrite", err)
	}
	return block, nil
}

// CommitWrite sends DataWritten on ping and advances the producer's
// slot/sequence counters, always releasing write_reservation before
// returning regardless of outcome (spec §4.4 commit_write).
func (r *Ring) CommitWrite() error {
	if !r.writeReservation.IsLocked() {
		return NewRingError("CommitWrite", r.name, ErrCodeInvalidParameters, "write reservation not held")
	}
	defer func() { _ = r.writeReservation.Unlock() }()

	start := time.Now()
	msg := interfaces.Message{Kind: constants.KindDataWritten, Slot: r.nextSlot, Seq: r.idx}
	res := r.pingQ.Send(msg, r.sendTimeout())
	latency := time.Since(start)

	switch res {
	case interfaces.Ok:
		r.activityMu.Lock()
		r.unacked++
		r.activityMu.Unlock()
		r.nextSlot = (r.nextSlot + 1) % r.n
		r.idx++
		r.obs.ObserveWrite(uint64(r.b), uint64(latency), true)
		return nil
	case interfaces.Timeout:
		r.obs.ObserveWrite(uint64(r.b), uint64(latency), false)
		return ErrTimeout
	case interfaces.Again:
		// Reserve already verified ping.CanSend(); an Again here means
		// the room accounting and the queue disagree, which spec §4.4
		// calls a bug rather than a transient condition.
		r.obs.ObserveWrite(uint64(r.b), uint64(latency), false)
		return NewRingError("CommitWrite", r.name, ErrCodeIOError, "ping send returned Again after reserve verified room")
	default:
		r.obs.ObserveWrite(uint64(r.b), uint64(latency), false)
		return NewRingError("CommitWrite", r.name, ErrCodeIOError, "ping send failed")
	}
}

// Read is the convenience reserve+copy+commit API for the inward side.
func (r *Ring) Read(buf []byte) error {
	if len(buf) != r.b {
		return NewRingError("Read", r.name, ErrCodeInvalidParameters,
			fmt.Sprintf("buffer is %d bytes, want %d", len(buf), r.b))
	}
	block, err := r.ReserveRead()
	if err != nil {
		return err
	}
	copy(buf, block)
	return r.CommitRead()
}

// ReserveRead acquires the read reservation, dequeues one DataWritten
// from ping and returns a view of the slot it names, warning (but not
// failing) on slot/seq drift (spec §4.4 reserve_read).
func (r *Ring) ReserveRead() ([]byte, error) {
	if r.direction != DirectionInward {
		return nil, NewRingError("ReserveRead", r.name, ErrCodeInvalidParameters, "ring is not inward")
	}
	if !r.readReservation.TryLock() {
		return nil, NewRingError("ReserveRead", r.name, ErrCodeIOError, "read reservation already held")
	}
	release := func() { _ = r.readReservation.Unlock() }

	msg, res := r.pingQ.Receive(r.sendTimeout())
	switch res {
	case interfaces.Ok:
	case interfaces.Again:
		release()
		return nil, ErrAgain
	case interfaces.Timeout:
		release()
		return nil, ErrTimeout
	default:
		release()
		return nil, NewRingError("ReserveRead", r.name, ErrCodeIOError, "ping receive failed")
	}

	if msg.Kind != constants.KindDataWritten {
		release()
		return nil, NewRingError("ReserveRead", r.name, ErrCodeIOError, "unexpected message kind on ping")
	}

	if msg.Slot != r.nextSlotR || msg.Seq != r.idxR {
		r.log.Warn("unexpected slot/seq on ping",
			"want_slot", r.nextSlotR, "got_slot", msg.Slot,
			"want_seq", r.idxR, "got_seq", msg.Seq)
		r.obs.ObserveWarning()
	}

	block, err := r.region.Block(int(msg.Slot)*r.b, r.b)
	if err != nil {
		release()
		return nil, WrapError("ReserveRead", err)
	}
	r.pendingAck = msg
	return block, nil
}

// CommitRead retags the just-received message as DataAck, sends it on
// pong and advances the consumer's slot/sequence counters. Per spec
// §9's resolved open question, read_reservation is released on any
// return path, not only on Ok.
func (r *Ring) CommitRead() error {
	if !r.readReservation.IsLocked() {
		return NewRingError("CommitRead", r.name, ErrCodeInvalidParameters, "read reservation not held")
	}
	defer func() { _ = r.readReservation.Unlock() }()

	msg := r.pendingAck
	start := time.Now()
	ack := interfaces.Message{Kind: constants.KindDataAck, Slot: msg.Slot, Seq: msg.Seq}
	res := r.pongQ.Send(ack, r.sendTimeout())
	latency := time.Since(start)

	switch res {
	case interfaces.Ok:
		r.nextSlotR = (msg.Slot + 1) % r.n
		r.idxR = msg.Seq + 1
		r.obs.ObserveRead(uint64(r.b), uint64(latency), true)
		return nil
	case interfaces.Timeout:
		r.obs.ObserveRead(uint64(r.b), uint64(latency), false)
		return ErrTimeout
	case interfaces.Again:
		r.obs.ObserveRead(uint64(r.b), uint64(latency), false)
		return NewRingError("CommitRead", r.name, ErrCodeIOError, "pong send returned Again")
	default:
		r.obs.ObserveRead(uint64(r.b), uint64(latency), false)
		return NewRingError("CommitRead", r.name, ErrCodeIOError, "pong send failed")
	}
}

// sendTimeout is the per-call timeout handed to the underlying queue:
// the ring's configured default in blocking mode, or zero (try-once) in
// non-blocking mode, so a contended queue reports Again rather than
// actually blocking (spec §4.2, §4.4).
func (r *Ring) sendTimeout() time.Duration {
	if r.blocking {
		return r.queueTimeout
	}
	return 0
}

// handlePong is the pong notification handler (spec §4.4, producer
// side). It re-arms before draining — the key correctness point: any
// DataAck arriving between the last successful Receive and this call
// either gets drained here or triggers another notification — then
// unconditionally applies every drained ack to last_ack_slot/idx,
// warning on drift without treating it as an error. The message passed
// in is only the wake-up: it is still queued on pong and is applied
// when the drain loop receives it.
func (r *Ring) handlePong(_ interfaces.Message) {
	r.accessMu.Lock()
	defer r.accessMu.Unlock()
	if r.closed {
		return
	}

	if err := r.pongQ.ArmNotification(); err != nil {
		r.log.Warn("failed to re-arm pong notification", "err", err)
	}

	for {
		next, res := r.pongQ.Receive(0)
		if res != interfaces.Ok {
			break
		}
		r.applyAck(next)
	}
}

func (r *Ring) applyAck(msg interfaces.Message) {
	if msg.Kind != constants.KindDataAck {
		r.log.Warn("unexpected message kind on pong", "kind", msg.Kind)
		r.obs.ObserveWarning()
		return
	}
	if msg.Slot != r.ackSlotCursor || msg.Seq != r.ackSeqCursor {
		r.log.Warn("unexpected slot/seq on pong",
			"want_slot", r.ackSlotCursor, "got_slot", msg.Slot,
			"want_seq", r.ackSeqCursor, "got_seq", msg.Seq)
		r.obs.ObserveWarning()
	}
	r.ackSlotCursor = (msg.Slot + 1) % r.n
	r.ackSeqCursor = msg.Seq + 1

	r.activityMu.Lock()
	r.lastAckSlot = msg.Slot
	r.lastAckIdx = msg.Seq
	// A real ack always frees one outstanding slot. unacked may already
	// have been decremented by an overrun standing in for this exact
	// ack (spec §5: last_ack_* is diagnostic, not authoritative for
	// flow control), so this saturates at zero rather than underflowing.
	if r.unacked > 0 {
		r.unacked--
	}
	if r.blocking {
		r.activityCond.Signal()
	}
	r.activityMu.Unlock()
}

// Reset drains both queues and resets all counters, for use after the
// caller detects a stuck peer (spec §4.4 Failure semantics: "upper
// layers must detect and call reset").
func (r *Ring) Reset() error {
	r.accessMu.Lock()
	defer r.accessMu.Unlock()

	r.pingQ.Drain()
	r.pongQ.Drain()

	r.nextSlot, r.idx = 0, 0
	r.nextSlotR, r.idxR = 0, 0
	r.ackSlotCursor, r.ackSeqCursor = 0, 0

	r.activityMu.Lock()
	r.unacked = 0
	r.lastAckSlot = 0
	r.lastAckIdx = 0
	r.activityMu.Unlock()

	r.metrics.Reset()
	return nil
}

// Close tears the ring down. Per spec §9's resolved open question, it
// disarms the pong notifier before acquiring accessMu — never the
// other order — so a handler invocation racing the destructor either
// completes first or finds the ring already marked closed under
// accessMu, never half-torn-down.
func (r *Ring) Close() error {
	if r.direction == DirectionOutward {
		_ = r.pongQ.DisarmNotification()
	}

	r.accessMu.Lock()
	if r.closed {
		r.accessMu.Unlock()
		return ErrClosed
	}
	r.closed = true
	r.accessMu.Unlock()

	r.activityMu.Lock()
	r.activityCond.Broadcast()
	r.activityMu.Unlock()

	r.metrics.Stop()

	var firstErr error
	if err := r.pingQ.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := r.pongQ.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := r.region.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if firstErr != nil {
		return WrapError("Close", firstErr)
	}
	return nil
}

// State reports whether the ring is still running or has been closed.
func (r *Ring) State() State {
	r.accessMu.Lock()
	defer r.accessMu.Unlock()
	if r.closed {
		return StateClosed
	}
	return StateRunning
}

// Info describes the ring's static configuration and current state,
// analogous to the teacher pack's Device.Info().
func (r *Ring) Info() Info {
	return Info{
		Name:      r.name,
		Role:      r.role,
		Direction: r.direction,
		Blocking:  r.blocking,
		Slots:     int(r.n),
		BlockSize: r.b,
		State:     r.State(),
	}
}

// Metrics returns the ring's live operational counters.
func (r *Ring) Metrics() *Metrics { return r.metrics }

// Name returns the ring's configured name.
func (r *Ring) Name() string { return r.name }
