package stream

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	uuid "github.com/satori/go.uuid"
)

// FrameSize is the fixed bulk transfer size the firmware produces.
const FrameSize = 64

// RawFrame is one undecoded 64-byte transfer.
type RawFrame [FrameSize]byte

// BulkSource is the endpoint a session reads from. Reads block until a
// transfer completes, the context ends, or the device disappears.
type BulkSource interface {
	BulkIn(ctx context.Context, buf []byte) (int, error)
}

// Pool and queue bounds.
const (
	MinPoolSize = 1
	MaxPoolSize = 64

	DefaultPoolSize    = 4
	DefaultQueueDepth  = 1024
	DefaultReadTimeout = time.Second
)

// Config tunes a stream session.
type Config struct {
	// PoolSize is how many reads are kept concurrently outstanding on
	// the bulk endpoint. The firmware only yields data while its buffer
	// is drained by pipelined reads, so this must never fall to zero
	// while the session is live.
	PoolSize int `json:"pool_size"`

	// QueueDepth bounds the frame hand-off to the consumer. A lagging
	// consumer costs the oldest frames, never a stalled endpoint.
	QueueDepth int `json:"queue_depth"`

	// ReadTimeout bounds each individual bulk read; an expired read is
	// resubmitted immediately. Stop's drain grace is twice this value.
	ReadTimeout time.Duration `json:"read_timeout"`

	// OnDeviceLost fires exactly once if the device drops mid-stream.
	OnDeviceLost func(error) `json:"-"`
}

// DefaultConfig returns the tuning that suits the stock firmware.
func DefaultConfig() Config {
	return Config{
		PoolSize:    DefaultPoolSize,
		QueueDepth:  DefaultQueueDepth,
		ReadTimeout: DefaultReadTimeout,
	}
}

// withDefaults fills unset fields; explicit values pass through to
// Validate untouched.
func (c Config) withDefaults() Config {
	if c.PoolSize == 0 {
		c.PoolSize = DefaultPoolSize
	}
	if c.QueueDepth == 0 {
		c.QueueDepth = DefaultQueueDepth
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = DefaultReadTimeout
	}
	return c
}

// Validate checks pool and queue bounds.
func (c Config) Validate() error {
	if c.PoolSize < MinPoolSize || c.PoolSize > MaxPoolSize {
		return fmt.Errorf("pool size %d out of range %d..%d", c.PoolSize, MinPoolSize, MaxPoolSize)
	}
	if c.QueueDepth < 1 {
		return fmt.Errorf("queue depth %d, want at least 1", c.QueueDepth)
	}
	if c.ReadTimeout <= 0 {
		return fmt.Errorf("read timeout %v, want positive", c.ReadTimeout)
	}
	return nil
}

// Engine drives the pool-of-outstanding-reads discipline against one
// bulk source. One session at a time.
type Engine struct {
	source BulkSource
	cfg    Config

	mu     sync.Mutex
	active *Session
}

// NewEngine wraps a bulk source with the given tuning.
func NewEngine(source BulkSource, cfg Config) *Engine {
	return &Engine{source: source, cfg: cfg}
}

// Start spawns the reader pool and returns once every reader has
// submitted its first read, so the endpoint is already saturated when
// the caller sees the session.
func (e *Engine) Start() (*Session, error) {
	cfg := e.cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	e.mu.Lock()
	if e.active != nil && !e.active.finished() {
		e.mu.Unlock()
		return nil, ErrSessionActive
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		id:     uuid.NewV4().String(),
		cfg:    cfg,
		queue:  newFrameQueue(cfg.QueueDepth),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	e.active = s
	e.mu.Unlock()

	var submitted sync.WaitGroup
	submitted.Add(cfg.PoolSize)
	s.readers.Add(cfg.PoolSize)
	for i := 0; i < cfg.PoolSize; i++ {
		go s.readLoop(e.source, &submitted)
	}
	submitted.Wait()

	go s.finalize()

	log.Debugf("session %s started, %d reads outstanding", s.id, cfg.PoolSize)
	return s, nil
}

// Session is one live capture stream. Frames arrive on Frames() until
// the session ends; the channel closes when the last reader exits.
type Session struct {
	id    string
	cfg   Config
	queue *frameQueue

	ctx    context.Context
	cancel context.CancelFunc

	readers sync.WaitGroup
	running atomic.Int32
	done    chan struct{}

	counters counters

	lostOnce sync.Once
	errMu    sync.Mutex
	err      error

	stopOnce sync.Once
	stopErr  error
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// Frames returns the consumer side of the stream. The channel closes
// when the session ends, however it ends.
func (s *Session) Frames() <-chan RawFrame {
	return s.queue.frames()
}

// Done closes once every reader has exited and the frame channel is
// closed.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Err returns the terminal error after device loss, nil otherwise.
func (s *Session) Err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

// Stats returns a snapshot of the session counters.
func (s *Session) Stats() Stats {
	return s.counters.snapshot()
}

func (s *Session) finished() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// Stop cancels the session and waits for the reader pool to drain,
// bounded by twice the read timeout. A clean drain returns the final
// counters; if readers are still wedged in transfers when the grace
// expires, Stop returns ErrPartialCancel and the stragglers release
// themselves as their transfers complete.
func (s *Session) Stop() (Stats, error) {
	s.stopOnce.Do(func() {
		s.cancel()
		grace := 2 * s.cfg.ReadTimeout
		select {
		case <-s.done:
			log.Debugf("session %s stopped", s.id)
		case <-time.After(grace):
			s.stopErr = fmt.Errorf("%w: %d of %d readers still busy after %v",
				ErrPartialCancel, s.running.Load(), s.cfg.PoolSize, grace)
			log.Warnf("session %s: %v", s.id, s.stopErr)
		}
	})
	return s.counters.snapshot(), s.stopErr
}

// fail records the terminal error, tears the session down and fires the
// loss callback. Only the first failure counts.
func (s *Session) fail(cause error) {
	s.lostOnce.Do(func() {
		s.errMu.Lock()
		s.err = cause
		s.errMu.Unlock()
		log.Errorf("session %s: device lost: %v", s.id, cause)
		s.cancel()
		if s.cfg.OnDeviceLost != nil {
			go s.cfg.OnDeviceLost(cause)
		}
	})
}

// finalize closes the frame stream after the last reader exits. Runs
// for every session regardless of how it ends.
func (s *Session) finalize() {
	s.readers.Wait()
	s.queue.close()
	close(s.done)
}

// readLoop keeps one slot of the pool permanently occupied: read, hand
// off without blocking, resubmit. The loop owns its buffer; the frame
// is copied out before resubmission so the endpoint can overwrite the
// buffer on the next transfer.
func (s *Session) readLoop(source BulkSource, submitted *sync.WaitGroup) {
	defer s.readers.Done()
	s.running.Add(1)
	defer s.running.Add(-1)

	buf := make([]byte, FrameSize)
	signalled := false

	for s.ctx.Err() == nil {
		readCtx, cancel := context.WithTimeout(s.ctx, s.cfg.ReadTimeout)
		if !signalled {
			submitted.Done()
			signalled = true
		}
		n, err := source.BulkIn(readCtx, buf)
		cancel()

		if err != nil {
			if s.ctx.Err() != nil {
				return
			}
			if errors.Is(err, context.DeadlineExceeded) {
				// Idle interval; the slot goes straight back out.
				continue
			}
			s.fail(err)
			return
		}

		if n > 0 {
			s.counters.bytes.Add(uint64(n))
		}
		if n < FrameSize {
			s.counters.truncated.Add(1)
			continue
		}

		var frame RawFrame
		copy(frame[:], buf)
		s.counters.frames.Add(1)
		if s.queue.push(frame) {
			s.counters.overflow.Add(1)
		}
	}
}
