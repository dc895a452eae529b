package ipcring

import (
	"sync"
	"time"

	"github.com/adiknoth/ffado-sub007/internal/interfaces"
	"github.com/adiknoth/ffado-sub007/internal/logging"
)

// MockQueue is an in-memory interfaces.Queue test double, in the
// shape of the teacher pack's MockBackend: a slice-backed buffer plus
// call counters, so ring-level tests can exercise arm/disarm and
// overrun logic without lfq or the mqueue registry. A fired
// notification still runs the handler on its own goroutine.
type MockQueue struct {
	mu       sync.Mutex
	buf      []interfaces.Message
	capacity int
	closed   bool
	handler  interfaces.NotificationHandler
	armed    bool

	sendCalls    int
	receiveCalls int
}

// NewMockQueue creates a mock queue bounded at capacity entries.
func NewMockQueue(capacity int) *MockQueue {
	return &MockQueue{capacity: capacity}
}

var _ interfaces.Queue = (*MockQueue)(nil)

func (q *MockQueue) Send(msg interfaces.Message, timeout time.Duration) interfaces.Result {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.sendCalls++

	if q.closed {
		return interfaces.Error
	}
	if len(q.buf) >= q.capacity {
		return interfaces.Again
	}
	q.buf = append(q.buf, msg)

	if q.armed && q.handler != nil {
		q.armed = false
		h := q.handler
		go h(msg)
	}
	return interfaces.Ok
}

func (q *MockQueue) Receive(timeout time.Duration) (interfaces.Message, interfaces.Result) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.receiveCalls++

	if q.closed {
		return interfaces.Message{}, interfaces.Error
	}
	if len(q.buf) == 0 {
		return interfaces.Message{}, interfaces.Again
	}
	msg := q.buf[0]
	q.buf = q.buf[1:]
	return msg, interfaces.Ok
}

func (q *MockQueue) CanSend() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return !q.closed && len(q.buf) < q.capacity
}

func (q *MockQueue) CanReceive() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return !q.closed && len(q.buf) > 0
}

func (q *MockQueue) Drain() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.buf = nil
}

func (q *MockQueue) SetNotificationHandler(h interfaces.NotificationHandler) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handler = h
	return nil
}

func (q *MockQueue) ClearNotificationHandler() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handler = nil
	q.armed = false
}

func (q *MockQueue) ArmNotification() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.handler == nil {
		return ErrNotArmedHandlerMissing
	}
	if q.armed {
		return ErrAlreadyArmedMock
	}
	q.armed = true
	return nil
}

func (q *MockQueue) DisarmNotification() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.armed {
		return ErrNotArmedMock
	}
	q.armed = false
	return nil
}

func (q *MockQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.buf = nil
	return nil
}

// CallCounts reports how many times Send/Receive were invoked, for
// assertions in ring-level tests.
func (q *MockQueue) CallCounts() (sends, receives int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.sendCalls, q.receiveCalls
}

// Mock-only sentinel errors, distinct from the package's structured
// Error so a test double failure never shadows a production error code.
var (
	ErrNotArmedHandlerMissing = NewError("ArmNotification", ErrCodeInvalidParameters, "handler required")
	ErrAlreadyArmedMock       = NewError("ArmNotification", ErrCodeAlreadyArmed, "already armed")
	ErrNotArmedMock           = NewError("DisarmNotification", ErrCodeNotArmed, "not armed")
)

// MockRegion is an in-memory interfaces.Region test double backed by a
// plain byte slice instead of a real /dev/shm mapping.
type MockRegion struct {
	mu     sync.Mutex
	data   []byte
	locked bool
	closed bool
}

// NewMockRegion creates a zero-filled mock region of the given size.
func NewMockRegion(size int) *MockRegion {
	return &MockRegion{data: make([]byte, size)}
}

var _ interfaces.Region = (*MockRegion)(nil)

func (r *MockRegion) Block(offset, length int) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, ErrClosed
	}
	if offset < 0 || length < 0 || offset+length > len(r.data) {
		return nil, NewError("Block", ErrCodeInvalidParameters, "out of bounds")
	}
	return r.data[offset : offset+length], nil
}

func (r *MockRegion) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.data)
}

func (r *MockRegion) LockInMemory(lock bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.locked = lock
	return nil
}

func (r *MockRegion) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

// IsLocked reports whether LockInMemory(true) was last called.
func (r *MockRegion) IsLocked() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.locked
}

// newTestRing builds a *Ring around injected test doubles instead of a
// real shmregion.Region and mqueue.Queue pair, mirroring newRing's
// wiring (arm-then-drain on construction for the notifying side) without
// requiring /dev/shm or the package-level mqueue registry. It is the
// ring-level analogue of the teacher pack's MockBackend-driven device
// constructors.
func newTestRing(cfg Config, role Role, region interfaces.Region, pingQ, pongQ interfaces.Queue) (*Ring, error) {
	cfg = cfg.withDefaults()

	log := cfg.Logger
	if log == nil {
		log = logging.Default().WithRing(cfg.Name)
	}
	metrics := NewMetrics()
	obs := cfg.Observer
	if obs == nil {
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
		region:       region,
		pingQ:        pingQ,
		pongQ:        pongQ,
		log:          log,
		obs:          obs,
		metrics:      metrics,
	}
	r.activityCond = sync.NewCond(&r.activityMu)

	if cfg.Direction == DirectionOutward {
		if err := r.pongQ.SetNotificationHandler(r.handlePong); err != nil {
			return nil, err
		}
		if err := r.pongQ.ArmNotification(); err != nil {
			return nil, err
		}
		r.pongQ.Drain()
	} else {
		r.pingQ.Drain()
	}

	return r, nil
}
