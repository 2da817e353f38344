package nfc

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// State is the controller's position in the session lifecycle. The terminal
// outcomes (completed, failed, removed) are reported as events and fall back
// to StateIdle or StateAwaitingTag immediately.
type State int

const (
	StateIdle State = iota
	StateAwaitingTag
	StateReading
	StateWriting
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingTag:
		return "awaiting_tag"
	case StateReading:
		return "reading"
	case StateWriting:
		return "writing"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Options configures a Controller. Zero values pick the defaults.
type Options struct {
	// ContinuousRead re-arms reading after every consumed read request.
	ContinuousRead bool

	// NotifyUser enables Notifier.Notify messages.
	NotifyUser bool

	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// MaxAttempts is the number of attempts per session, including the first.
	MaxAttempts  int
	RetryBackoff time.Duration

	// RetryDataAbsent makes empty-tag reads count as retryable failures.
	RetryDataAbsent bool

	// MimeType is the record type used for written payloads.
	MimeType string

	// DefaultPayload is written when ArmForWrite receives no data.
	DefaultPayload []byte

	// Filters restricts discovery to these card types. Empty means any.
	Filters []string

	Clock    Clock
	Logger   *zerolog.Logger
	Notifier Notifier
}

func (o Options) withDefaults() Options {
	if o.ReadTimeout <= 0 {
		o.ReadTimeout = DefaultOpTimeout
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = DefaultOpTimeout
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = DefaultMaxAttempts
	}
	if o.RetryBackoff <= 0 {
		o.RetryBackoff = DefaultRetryBackoff
	}
	if o.MimeType == "" {
		o.MimeType = DefaultMimeType
	}
	if o.DefaultPayload == nil {
		o.DefaultPayload = []byte(DefaultPayload)
	}
	if o.Clock == nil {
		o.Clock = NewRealClock()
	}
	if o.Logger == nil {
		nop := zerolog.Nop()
		o.Logger = &nop
	}
	if o.Notifier == nil {
		o.Notifier = nopNotifier{}
	}
	return o
}

// Result is the outcome of a successful session.
type Result struct {
	Op        Operation
	SessionID string
	TagID     string
	Data      []byte
	Text      string
	Attempts  int
}

// Pending is the caller-visible result of an arm request. It resolves exactly
// once, with the same outcome that is published on the Bus.
type Pending struct {
	op     Operation
	done   chan struct{}
	once   sync.Once
	result Result
	err    error
}

func newPending(op Operation) *Pending {
	return &Pending{op: op, done: make(chan struct{})}
}

// Op returns the operation this request was armed for.
func (p *Pending) Op() Operation {
	return p.op
}

// Done is closed once the request has resolved.
func (p *Pending) Done() <-chan struct{} {
	return p.done
}

// Wait blocks until the request resolves or ctx ends.
func (p *Pending) Wait(ctx context.Context) (Result, error) {
	select {
	case <-p.done:
		return p.result, p.err
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

func (p *Pending) resolve(result Result, err error) {
	p.once.Do(func() {
		p.result = result
		p.err = err
		close(p.done)
	})
}

// SessionInfo is a snapshot of the outstanding session.
type SessionInfo struct {
	ID       string    `json:"id"`
	Op       string    `json:"op"`
	TagID    string    `json:"tagID"`
	Attempt  int       `json:"attempt"`
	Deadline time.Time `json:"deadline"`
}

// session is one read or write interaction, from discovery to outcome.
type session struct {
	id      string
	op      Operation
	tag     Tag
	tagID   string
	payload []byte
	pending *Pending

	ctx    context.Context
	cancel context.CancelCauseFunc

	mu       sync.Mutex
	attempt  int
	deadline time.Time

	// connected is set once any attempt has connected to the tag.
	connected atomic.Bool
}

func (s *session) beginAttempt(attempt int, deadline time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempt = attempt
	s.deadline = deadline
}

func (s *session) info() SessionInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return SessionInfo{
		ID:       s.id,
		Op:       s.op.String(),
		TagID:    s.tagID,
		Attempt:  s.attempt,
		Deadline: s.deadline,
	}
}

// Controller owns arming, dispatch and the lifecycle of at most one
// outstanding session. It is safe for concurrent use.
type Controller struct {
	adapter  Adapter
	opts     Options
	bus      *Bus
	arming   *ArmingState
	logger   zerolog.Logger
	notifier Notifier

	ctx    context.Context
	cancel context.CancelFunc

	mu           sync.Mutex
	current      *session
	pendingRead  *Pending
	pendingWrite *Pending
	writePayload []byte
	suspended    bool
	closed       bool
	wg           sync.WaitGroup
}

// NewController creates a controller bound to adapter. Call Initialize before
// expecting discovery notifications.
func NewController(adapter Adapter, opts Options) *Controller {
	opts = opts.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	return &Controller{
		adapter:  adapter,
		opts:     opts,
		bus:      NewBus(),
		arming:   NewArmingState(),
		logger:   opts.Logger.With().Str("component", "session").Logger(),
		notifier: opts.Notifier,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Bus returns the bus sessions publish on.
func (c *Controller) Bus() *Bus {
	return c.bus
}

// Subscribe adds l for kind. See Bus.Subscribe.
func (c *Controller) Subscribe(kind EventKind, l *Listener) {
	c.bus.Subscribe(kind, l)
}

// Unsubscribe removes l from kind. See Bus.Unsubscribe.
func (c *Controller) Unsubscribe(kind EventKind, l *Listener) {
	c.bus.Unsubscribe(kind, l)
}

// Options returns the effective options.
func (c *Controller) Options() Options {
	return c.opts
}

// Initialize checks the adapter's capability and registers for discovery
// notifications. When the capability is missing every arm call is rejected
// until Initialize succeeds.
func (c *Controller) Initialize() error {
	if err := c.adapter.Capability(); err != nil {
		c.arming.SetCapabilityAbsent(true)
		if !IsCapabilityUnavailableError(err) {
			err = NewCapabilityUnavailableError("initialize", err)
		}
		c.rejectPending(err)
		c.logger.Error().Err(err).Msg("NFC capability check failed")
		c.notify("NFC is not available, check that the reader is connected and enabled")
		return err
	}
	c.arming.SetCapabilityAbsent(false)

	if err := c.adapter.ArmDiscovery(c.opts.Filters, c.HandleDiscovery); err != nil {
		return fmt.Errorf("arm discovery: %w", err)
	}
	c.logger.Info().Strs("filters", c.opts.Filters).Msg("Discovery armed")
	return nil
}

// ArmForRead treats the next matched discovery as a read request. Calling it
// again before a tag arrives returns the same Pending.
func (c *Controller) ArmForRead() (*Pending, error) {
	c.mu.Lock()
	if err := c.arming.ArmForRead(); err != nil {
		c.mu.Unlock()
		c.notifyArmFailure(err)
		return nil, err
	}
	if c.pendingRead == nil {
		c.pendingRead = newPending(OpRead)
	}
	p := c.pendingRead
	c.mu.Unlock()

	c.logger.Debug().Msg("Armed for read")
	c.notify("Bring the tag close to the reader")
	return p, nil
}

// ArmForWrite treats the next matched discovery as a write of payload. A nil
// payload writes Options.DefaultPayload. Arming again replaces the payload
// and returns the same Pending.
func (c *Controller) ArmForWrite(payload []byte) (*Pending, error) {
	c.mu.Lock()
	if err := c.arming.ArmForWrite(); err != nil {
		c.mu.Unlock()
		c.notifyArmFailure(err)
		return nil, err
	}
	if payload != nil {
		c.writePayload = append([]byte(nil), payload...)
	} else {
		c.writePayload = nil
	}
	if c.pendingWrite == nil {
		c.pendingWrite = newPending(OpWrite)
	}
	p := c.pendingWrite
	c.mu.Unlock()

	c.logger.Debug().Int("bytes", len(payload)).Msg("Armed for write")
	c.notify("Bring the tag close to the reader")
	return p, nil
}

// Disarm clears any armed request and rejects its Pending with a Canceled
// error. An outstanding session is not affected.
func (c *Controller) Disarm() {
	c.arming.Disarm()
	c.rejectPending(NewCanceledError("disarm"))
	c.logger.Debug().Msg("Disarmed")
}

// State reports where the controller is in the session lifecycle.
func (c *Controller) State() State {
	c.mu.Lock()
	s := c.current
	c.mu.Unlock()

	if s != nil {
		if s.op == OpWrite {
			return StateWriting
		}
		return StateReading
	}
	if c.arming.Armed() != OpNone {
		return StateAwaitingTag
	}
	return StateIdle
}

// Arming returns a snapshot of the arming flags.
func (c *Controller) Arming() ArmingSnapshot {
	return c.arming.Snapshot()
}

// Current returns the outstanding session, if any.
func (c *Controller) Current() (SessionInfo, bool) {
	c.mu.Lock()
	s := c.current
	c.mu.Unlock()
	if s == nil {
		return SessionInfo{}, false
	}
	return s.info(), true
}

// HandleDiscovery is the adapter's notification entry point. While a session
// is outstanding any notification means the tag left the field. Otherwise a
// matched notification consumes the armed request and starts one session.
func (c *Controller) HandleDiscovery(tag Tag, matched bool) {
	c.mu.Lock()
	if c.closed || c.suspended {
		c.mu.Unlock()
		return
	}

	if s := c.current; s != nil {
		c.mu.Unlock()
		c.logger.Info().
			Str("session", s.id).
			Bool("matched", matched).
			Msg("Notification during outstanding session, treating as tag removal")
		s.cancel(NewTagRemovedError(s.op.String(), nil))
		return
	}

	if !matched || tag == nil {
		c.mu.Unlock()
		c.logger.Debug().Bool("matched", matched).Msg("Ignoring unmatched notification")
		return
	}

	op := c.arming.Consume(c.opts.ContinuousRead)
	if op == OpNone {
		c.mu.Unlock()
		c.logger.Debug().Str("tag", Hex(tag.ID())).Msg("Tag discovered but nothing armed")
		return
	}

	ctx, cancel := context.WithCancelCause(c.ctx)
	s := &session{
		id:     uuid.New().String(),
		op:     op,
		tag:    tag,
		tagID:  Hex(tag.ID()),
		ctx:    ctx,
		cancel: cancel,
	}
	switch op {
	case OpRead:
		s.pending = c.pendingRead
		c.pendingRead = nil
	case OpWrite:
		s.pending = c.pendingWrite
		s.payload = c.writePayload
		if s.payload == nil {
			s.payload = c.opts.DefaultPayload
		}
		c.pendingWrite = nil
		c.writePayload = nil
	}
	c.current = s
	c.wg.Add(1)
	c.mu.Unlock()

	go c.run(s)
}

// Suspend stops discovery notifications while the host is in the background.
// Armed requests and an outstanding session are kept. Suspending twice is a
// no-op.
func (c *Controller) Suspend() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return NewCanceledError("suspend")
	}
	if c.suspended {
		c.mu.Unlock()
		return nil
	}
	c.suspended = true
	c.mu.Unlock()

	if err := c.adapter.DisarmDiscovery(); err != nil {
		return WrapAdapterError("suspend", err)
	}
	c.logger.Info().Msg("Discovery suspended")
	return nil
}

// Resume re-checks the capability and re-arms discovery after Suspend. The
// controller stays suspended when that fails.
func (c *Controller) Resume() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return NewCanceledError("resume")
	}
	if !c.suspended {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	if err := c.Initialize(); err != nil {
		return err
	}

	c.mu.Lock()
	c.suspended = false
	c.mu.Unlock()
	c.logger.Info().Msg("Discovery resumed")
	return nil
}

// Suspended reports whether discovery is paused by Suspend.
func (c *Controller) Suspended() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.suspended
}

// Close stops discovery, cancels the outstanding session and waits for it.
func (c *Controller) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	s := c.current
	c.mu.Unlock()

	err := c.adapter.DisarmDiscovery()
	if s != nil {
		s.cancel(NewCanceledError("close"))
	}
	c.wg.Wait()
	c.cancel()
	c.arming.Disarm()
	c.rejectPending(NewCanceledError("close"))
	return err
}

func (c *Controller) run(s *session) {
	defer c.wg.Done()
	defer s.cancel(nil)

	logger := c.logger.With().Str("session", s.id).Str("op", s.op.String()).Str("tag", s.tagID).Logger()
	logger.Info().Msg("Session started")

	startKind := EventReadStart
	timeout := c.opts.ReadTimeout
	attemptFn := c.readAttempt
	if s.op == OpWrite {
		startKind = EventWriteStart
		timeout = c.opts.WriteTimeout
		attemptFn = c.writeAttempt
	}

	c.bus.Publish(Event{
		Kind:      startKind,
		Op:        s.op,
		SessionID: s.id,
		TagID:     s.tagID,
		Attempt:   1,
		Time:      c.opts.Clock.Now(),
	})
	if s.op == OpWrite {
		c.notifier.ShowLoading("Writing tag...")
	} else {
		c.notifier.ShowLoading("Reading tag...")
	}

	policy := RetryPolicy{
		MaxAttempts: c.opts.MaxAttempts,
		Backoff:     c.opts.RetryBackoff,
		Retryable:   c.retryable,
		OnRetry: func(attempt int, err error) {
			logger.Warn().Err(err).Int("attempt", attempt).Msg("Attempt failed, retrying")
		},
	}

	result, attempts, err := Retry(s.ctx, c.opts.Clock, policy, timeout, logger, func(ctx context.Context, attempt int) (Result, error) {
		s.beginAttempt(attempt, c.opts.Clock.Now().Add(timeout))
		return attemptFn(ctx, s, attempt)
	})
	if IsTimeoutError(err) && s.connected.Load() {
		err = NewTagRemovedError(s.op.String(), err)
	}

	c.notifier.HideLoading()
	c.finish(s, logger, result, attempts, err)
}

// finish clears the session slot, publishes the single terminal event and
// resolves the caller's Pending.
func (c *Controller) finish(s *session, logger zerolog.Logger, result Result, attempts int, err error) {
	c.mu.Lock()
	if c.current == s {
		c.current = nil
	}
	c.mu.Unlock()

	ev := Event{
		Op:        s.op,
		SessionID: s.id,
		TagID:     s.tagID,
		Attempt:   attempts,
		Time:      c.opts.Clock.Now(),
	}

	switch {
	case err == nil:
		result.Op = s.op
		result.SessionID = s.id
		result.TagID = s.tagID
		result.Attempts = attempts
		ev.Data = result.Data
		ev.Text = result.Text
		if s.op == OpWrite {
			ev.Kind = EventWriteComplete
			c.notify("Tag written")
		} else {
			ev.Kind = EventReadComplete
			c.notify("Tag data: " + result.Text)
		}
		logger.Info().Int("attempts", attempts).Int("bytes", len(result.Data)).Msg("Session completed")

	case IsTagRemovedError(err):
		ev.Kind = EventCardRemoved
		ev.Err = err
		c.notify(fmt.Sprintf("Tag removed during %s, please try again", s.op))
		logger.Warn().Err(err).Int("attempts", attempts).Msg("Session ended by tag removal")

	default:
		if IsCapabilityUnavailableError(err) {
			c.arming.SetCapabilityAbsent(true)
		}
		ev.Kind = EventReadError
		if s.op == OpWrite {
			ev.Kind = EventWriteError
		}
		ev.Err = err
		c.notify(fmt.Sprintf("Tag %s failed", s.op))
		logger.Error().Err(err).Int("attempts", attempts).Msg("Session failed")
	}

	c.bus.Publish(ev)
	if s.pending != nil {
		if err != nil {
			result = Result{}
		}
		s.pending.resolve(result, err)
	}
}

func (c *Controller) readAttempt(ctx context.Context, s *session, attempt int) (Result, error) {
	const op = "read"
	logger := c.logger.With().Str("session", s.id).Int("attempt", attempt).Logger()
	logger.Debug().Str("nfc_id", s.tagID).Msg("Reading tag")

	if err := s.tag.Connect(ctx); err != nil {
		return Result{}, WrapAdapterError(op, err)
	}
	s.connected.Store(true)
	defer s.tag.Disconnect()

	messages, err := s.tag.Messages(ctx)
	if err != nil {
		return Result{}, WrapAdapterError(op, err)
	}
	if len(messages) == 0 || messages[0] == nil {
		return Result{}, NewDataAbsentError(op, s.tagID, ErrNoMessage)
	}
	records := messages[0].Records()
	if len(records) == 0 {
		return Result{}, NewDataAbsentError(op, s.tagID, ErrNoRecord)
	}
	payload := records[0].Payload
	if payload == nil {
		return Result{}, NewDataAbsentError(op, s.tagID, ErrNoPayload)
	}

	return Result{Data: payload, Text: string(payload)}, nil
}

func (c *Controller) writeAttempt(ctx context.Context, s *session, attempt int) (Result, error) {
	const op = "write"

	message, err := NewNDEFMessage(NewMimeRecord(c.opts.MimeType, s.payload)).Encode()
	if err != nil {
		return Result{}, NewFormatUnsupportedError(op, s.tagID, err)
	}

	if structured, ok := s.tag.Structured(); ok {
		if err := s.tag.Connect(ctx); err != nil {
			return Result{}, WrapAdapterError(op, err)
		}
		s.connected.Store(true)
		defer s.tag.Disconnect()

		writable, err := structured.IsWritable()
		if err != nil {
			return Result{}, WrapAdapterError(op, err)
		}
		if !writable {
			return Result{}, NewNotWritableError(op, s.tagID)
		}
		maxSize, err := structured.MaxSize()
		if err != nil {
			return Result{}, WrapAdapterError(op, err)
		}
		if len(message) > maxSize {
			return Result{}, NewCapacityExceededError(op, s.tagID, len(message), maxSize)
		}
		if err := structured.WriteMessage(ctx, message); err != nil {
			return Result{}, WrapAdapterError(op, err)
		}
		return Result{Data: s.payload, Text: string(s.payload)}, nil
	}

	formatable, ok := s.tag.Formatable()
	if !ok {
		return Result{}, NewFormatUnsupportedError(op, s.tagID, nil)
	}
	if err := s.tag.Connect(ctx); err != nil {
		return Result{}, WrapAdapterError(op, err)
	}
	s.connected.Store(true)
	defer s.tag.Disconnect()

	if err := formatable.Format(ctx, message); err != nil {
		return Result{}, WrapAdapterError("format", err)
	}
	c.logger.Debug().Str("session", s.id).Msg("Formatted blank tag and wrote message")
	return Result{Data: s.payload, Text: string(s.payload)}, nil
}

func (c *Controller) retryable(err error) bool {
	switch {
	case IsCapabilityUnavailableError(err):
		return false
	case HasCode(err, ErrCodeCanceled), HasCode(err, ErrCodeNotSupported):
		return false
	case IsDataAbsentError(err):
		return c.opts.RetryDataAbsent
	default:
		return true
	}
}

func (c *Controller) rejectPending(err error) {
	c.mu.Lock()
	read, write := c.pendingRead, c.pendingWrite
	c.pendingRead, c.pendingWrite, c.writePayload = nil, nil, nil
	c.mu.Unlock()

	if read != nil {
		read.resolve(Result{}, err)
	}
	if write != nil {
		write.resolve(Result{}, err)
	}
}

func (c *Controller) notify(message string) {
	if c.opts.NotifyUser {
		c.notifier.Notify(message)
	}
}

func (c *Controller) notifyArmFailure(err error) {
	if IsCapabilityUnavailableError(err) {
		c.notify("Check that the device supports NFC and that it is enabled")
		return
	}
	c.notify(err.Error())
}
