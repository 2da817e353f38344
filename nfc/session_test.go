package nfc

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testUID = []byte{0x04, 0xA1, 0xB2, 0xC3}

type eventRecorder struct {
	mu     sync.Mutex
	events []Event
	ch     chan Event
}

func newEventRecorder(bus *Bus) *eventRecorder {
	r := &eventRecorder{ch: make(chan Event, 64)}
	bus.SubscribeAll(NewListener(r.record))
	return r
}

func (r *eventRecorder) record(ev Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
	r.ch <- ev
}

func (r *eventRecorder) kinds() []EventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	kinds := make([]EventKind, len(r.events))
	for i, ev := range r.events {
		kinds[i] = ev.Kind
	}
	return kinds
}

func (r *eventRecorder) waitFor(t *testing.T, kind EventKind) Event {
	t.Helper()
	timeout := time.After(3 * time.Second)
	for {
		select {
		case ev := <-r.ch:
			if ev.Kind == kind {
				return ev
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %s, saw %v", kind, r.kinds())
			return Event{}
		}
	}
}

type recordingNotifier struct {
	mu       sync.Mutex
	messages []string
	loading  int
}

func (n *recordingNotifier) Notify(message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, message)
}

func (n *recordingNotifier) ShowLoading(string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.loading++
}

func (n *recordingNotifier) HideLoading() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.loading--
}

func newTestController(t *testing.T, opts Options) (*Controller, *MockAdapter, *eventRecorder) {
	t.Helper()
	if opts.RetryBackoff == 0 {
		opts.RetryBackoff = time.Millisecond
	}
	if opts.ReadTimeout == 0 {
		opts.ReadTimeout = time.Second
	}
	if opts.WriteTimeout == 0 {
		opts.WriteTimeout = time.Second
	}

	adapter := NewMockAdapter()
	c := NewController(adapter, opts)
	require.NoError(t, c.Initialize())
	rec := newEventRecorder(c.Bus())
	t.Cleanup(func() { c.Close() })
	return c, adapter, rec
}

func waitPending(t *testing.T, p *Pending) (Result, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	res, err := p.Wait(ctx)
	require.NoError(t, ctx.Err(), "pending never resolved")
	return res, err
}

func TestController_ReadHello(t *testing.T) {
	c, adapter, rec := newTestController(t, Options{})

	p, err := c.ArmForRead()
	require.NoError(t, err)
	assert.Equal(t, StateAwaitingTag, c.State())

	adapter.Present(NewMockTag(testUID, "hello"))

	res, err := waitPending(t, p)
	require.NoError(t, err)
	assert.Equal(t, "hello", res.Text)
	assert.Equal(t, []byte("hello"), res.Data)
	assert.Equal(t, "04A1B2C3", res.TagID)
	assert.Equal(t, OpRead, res.Op)
	assert.Equal(t, 1, res.Attempts)

	ev := rec.waitFor(t, EventReadComplete)
	assert.Equal(t, "hello", ev.Text)
	assert.Equal(t, res.SessionID, ev.SessionID)
	assert.Equal(t, []EventKind{EventReadStart, EventReadComplete}, rec.kinds())
	assert.Equal(t, StateIdle, c.State())
	assert.False(t, c.Arming().ReadyForRead)
}

func TestController_ContinuousReadStaysArmed(t *testing.T) {
	c, adapter, rec := newTestController(t, Options{ContinuousRead: true})

	p, err := c.ArmForRead()
	require.NoError(t, err)

	adapter.Present(NewMockTag(testUID, "one"))
	_, err = waitPending(t, p)
	require.NoError(t, err)
	rec.waitFor(t, EventReadComplete)
	assert.True(t, c.Arming().ReadyForRead)

	adapter.Present(NewMockTag([]byte{0x01}, "two"))
	ev := rec.waitFor(t, EventReadComplete)
	assert.Equal(t, "two", ev.Text)
	assert.Equal(t, "01", ev.TagID)
}

func TestController_ContinuousReadAllowsWrite(t *testing.T) {
	c, adapter, rec := newTestController(t, Options{ContinuousRead: true})

	p, err := c.ArmForRead()
	require.NoError(t, err)
	adapter.Present(NewMockTag(testUID, "one"))
	_, err = waitPending(t, p)
	require.NoError(t, err)
	rec.waitFor(t, EventReadComplete)

	wp, err := c.ArmForWrite([]byte("abc"))
	require.NoError(t, err)
	assert.Equal(t, StateAwaitingTag, c.State())

	tag := NewMockTag([]byte{0x05}, "old")
	adapter.Present(tag)
	res, err := waitPending(t, wp)
	require.NoError(t, err)
	assert.Equal(t, "abc", res.Text)
	rec.waitFor(t, EventWriteComplete)

	// Reading carries on after the write.
	assert.True(t, c.Arming().ReadyForRead)
	adapter.Present(NewMockTag([]byte{0x06}, "two"))
	ev := rec.waitFor(t, EventReadComplete)
	assert.Equal(t, "two", ev.Text)
}

func TestController_WriteFormatsBlankTag(t *testing.T) {
	c, adapter, rec := newTestController(t, Options{})
	tag := NewMockTag(testUID)
	tag.Blank = true

	p, err := c.ArmForWrite([]byte("abc"))
	require.NoError(t, err)
	assert.Equal(t, StateAwaitingTag, c.State())

	adapter.Present(tag)

	res, err := waitPending(t, p)
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), res.Data)
	rec.waitFor(t, EventWriteComplete)
	assert.Equal(t, []EventKind{EventWriteStart, EventWriteComplete}, rec.kinds())

	assert.True(t, tag.Formatted)
	assert.Equal(t, 1, tag.CountCalls("Format"))
	assert.Zero(t, tag.CountCalls("WriteMessage"))

	written := tag.GetWritten()
	require.Len(t, written, 1)
	msg, err := DecodeNDEF(written[0])
	require.NoError(t, err)
	require.Len(t, msg.Records(), 1)
	mime, _ := msg.Records()[0].MimeType()
	assert.Equal(t, "text/plain", mime)
	assert.Equal(t, []byte("abc"), msg.Records()[0].Payload)
}

func TestController_WriteStructuredTag(t *testing.T) {
	c, adapter, rec := newTestController(t, Options{MimeType: "application/json"})
	tag := NewMockTag(testUID, "old")

	p, err := c.ArmForWrite([]byte(`{"id":1}`))
	require.NoError(t, err)
	adapter.Present(tag)

	_, err = waitPending(t, p)
	require.NoError(t, err)
	rec.waitFor(t, EventWriteComplete)

	assert.Equal(t, []string{"Connect", "IsWritable", "MaxSize", "WriteMessage", "Disconnect"}, tag.GetCallLog())
	mime, _ := tag.NDEF[0].Records()[0].MimeType()
	assert.Equal(t, "application/json", mime)
	assert.Equal(t, `{"id":1}`, string(tag.NDEF[0].Records()[0].Payload))
}

func TestController_WriteDefaultPayload(t *testing.T) {
	c, adapter, _ := newTestController(t, Options{})
	tag := NewMockTag(testUID)

	p, err := c.ArmForWrite(nil)
	require.NoError(t, err)
	adapter.Present(tag)

	res, err := waitPending(t, p)
	require.NoError(t, err)
	assert.Equal(t, DefaultPayload, res.Text)
	assert.Equal(t, DefaultPayload, string(tag.NDEF[0].Records()[0].Payload))
}

func TestController_ReadZeroMessagesIsDataAbsent(t *testing.T) {
	c, adapter, rec := newTestController(t, Options{})
	tag := NewMockTag(testUID)

	p, err := c.ArmForRead()
	require.NoError(t, err)
	adapter.Present(tag)

	_, err = waitPending(t, p)
	assert.True(t, IsDataAbsentError(err), "got %v", err)
	assert.ErrorIs(t, err, ErrNoMessage)

	ev := rec.waitFor(t, EventReadError)
	assert.True(t, IsDataAbsentError(ev.Err))
	assert.Equal(t, 1, ev.Attempt)
	assert.Equal(t, 1, tag.CountCalls("Messages"), "empty tags are not retried by default")
	assert.NotContains(t, rec.kinds(), EventReadComplete)
}

func TestController_ReadDataAbsentRetriedWhenEnabled(t *testing.T) {
	c, adapter, rec := newTestController(t, Options{RetryDataAbsent: true})
	tag := NewMockTag(testUID)
	tag.MessagesFunc = func(ctx context.Context, call int) ([]*NDEFMessage, error) {
		return []*NDEFMessage{NewNDEFMessage()}, nil
	}

	_, err := c.ArmForRead()
	require.NoError(t, err)
	adapter.Present(tag)

	ev := rec.waitFor(t, EventReadError)
	assert.ErrorIs(t, ev.Err, ErrNoRecord)
	assert.Equal(t, 3, ev.Attempt)
	assert.Equal(t, 3, tag.CountCalls("Messages"))
}

func TestController_ReadRecordWithoutPayload(t *testing.T) {
	c, adapter, rec := newTestController(t, Options{})
	tag := NewMockTag(testUID)
	tag.NDEF = []*NDEFMessage{NewNDEFMessage(NDEFRecord{TNF: TNFEmpty})}

	_, err := c.ArmForRead()
	require.NoError(t, err)
	adapter.Present(tag)

	ev := rec.waitFor(t, EventReadError)
	assert.ErrorIs(t, ev.Err, ErrNoPayload)
}

func TestController_CapacityExceeded(t *testing.T) {
	c, adapter, rec := newTestController(t, Options{})
	tag := NewMockTag(testUID)
	tag.Capacity = 16

	p, err := c.ArmForWrite([]byte(strings.Repeat("x", 64)))
	require.NoError(t, err)
	adapter.Present(tag)

	_, err = waitPending(t, p)
	assert.Equal(t, ErrCodeCapacityExceeded, GetErrorCode(err))

	ev := rec.waitFor(t, EventWriteError)
	assert.Equal(t, ErrCodeCapacityExceeded, GetErrorCode(ev.Err))
	assert.Zero(t, tag.CountCalls("WriteMessage"))
	assert.Empty(t, tag.GetWritten())
}

func TestController_ReadOnlyTag(t *testing.T) {
	c, adapter, rec := newTestController(t, Options{MaxAttempts: 1})
	tag := NewMockTag(testUID)
	tag.ReadOnly = true

	_, err := c.ArmForWrite([]byte("abc"))
	require.NoError(t, err)
	adapter.Present(tag)

	ev := rec.waitFor(t, EventWriteError)
	assert.Equal(t, ErrCodeNotWritable, GetErrorCode(ev.Err))
	assert.Zero(t, tag.CountCalls("WriteMessage"))
}

func TestController_BlankTagNotFormatable(t *testing.T) {
	c, adapter, rec := newTestController(t, Options{MaxAttempts: 1})
	tag := NewMockTag(testUID)
	tag.Blank = true
	tag.NotFormatable = true

	_, err := c.ArmForWrite([]byte("abc"))
	require.NoError(t, err)
	adapter.Present(tag)

	ev := rec.waitFor(t, EventWriteError)
	assert.Equal(t, ErrCodeFormatUnsupported, GetErrorCode(ev.Err))
}

func TestController_RetryCap(t *testing.T) {
	c, adapter, rec := newTestController(t, Options{MaxAttempts: 4})
	tag := NewMockTag(testUID, "hello")
	tag.MessagesError = errors.New("transceive failed")

	_, err := c.ArmForRead()
	require.NoError(t, err)
	adapter.Present(tag)

	ev := rec.waitFor(t, EventReadError)
	assert.Equal(t, ErrCodeAdapterIO, GetErrorCode(ev.Err))
	assert.Equal(t, 4, ev.Attempt)
	assert.Equal(t, 4, tag.CountCalls("Messages"))
	assert.Equal(t, 4, tag.CountCalls("Disconnect"), "every attempt releases the tag")
	assert.Equal(t, []EventKind{EventReadStart, EventReadError}, rec.kinds())
}

func TestController_RetrySucceedsOnLastAttempt(t *testing.T) {
	c, adapter, _ := newTestController(t, Options{})
	tag := NewMockTag(testUID)
	tag.MessagesFunc = func(ctx context.Context, call int) ([]*NDEFMessage, error) {
		if call < 3 {
			return nil, errors.New("crc error")
		}
		return []*NDEFMessage{NewNDEFMessage(NewMimeRecord("text/plain", []byte("late")))}, nil
	}

	p, err := c.ArmForRead()
	require.NoError(t, err)
	adapter.Present(tag)

	res, err := waitPending(t, p)
	require.NoError(t, err)
	assert.Equal(t, "late", res.Text)
	assert.Equal(t, 3, res.Attempts)
}

func TestController_TimeoutAfterConnectIsRemoval(t *testing.T) {
	c, adapter, rec := newTestController(t, Options{ReadTimeout: 20 * time.Millisecond, MaxAttempts: 2})
	tag := NewMockTag(testUID, "hello")
	tag.Block = make(chan struct{})
	defer close(tag.Block)

	p, err := c.ArmForRead()
	require.NoError(t, err)
	adapter.Present(tag)

	_, err = waitPending(t, p)
	assert.True(t, IsTagRemovedError(err), "got %v", err)
	assert.True(t, IsTimeoutError(err), "removal should keep the timeout as cause")

	ev := rec.waitFor(t, EventCardRemoved)
	assert.Equal(t, 2, ev.Attempt)
	assert.Equal(t, []EventKind{EventReadStart, EventCardRemoved}, rec.kinds())
}

func TestController_TimeoutAfterEarlierConnectIsRemoval(t *testing.T) {
	c, adapter, rec := newTestController(t, Options{ReadTimeout: 20 * time.Millisecond, MaxAttempts: 2})
	tag := NewMockTag(testUID, "hello")
	tag.Block = make(chan struct{})
	defer close(tag.Block)
	// The first attempt connects and stalls, the second never gets a connection.
	tag.ConnectFunc = func(ctx context.Context, call int) error {
		if call == 1 {
			return nil
		}
		<-ctx.Done()
		return ctx.Err()
	}

	p, err := c.ArmForRead()
	require.NoError(t, err)
	adapter.Present(tag)

	_, err = waitPending(t, p)
	assert.True(t, IsTagRemovedError(err), "got %v", err)

	rec.waitFor(t, EventCardRemoved)
	assert.Equal(t, []EventKind{EventReadStart, EventCardRemoved}, rec.kinds())
	assert.Equal(t, 2, tag.CountCalls("Connect"))
}

func TestController_TimeoutBeforeConnectIsDiscoveryTimeout(t *testing.T) {
	c, adapter, rec := newTestController(t, Options{WriteTimeout: 20 * time.Millisecond, MaxAttempts: 2})
	tag := NewMockTag(testUID)
	tag.Block = make(chan struct{})
	tag.BlockConnect = true
	defer close(tag.Block)

	_, err := c.ArmForWrite([]byte("abc"))
	require.NoError(t, err)
	adapter.Present(tag)

	ev := rec.waitFor(t, EventWriteError)
	assert.True(t, IsTimeoutError(ev.Err))
	assert.False(t, IsTagRemovedError(ev.Err))
	assert.Equal(t, "DiscoveryTimeout", GetErrorCode(ev.Err).String())
}

func TestController_SecondNotificationIsRemoval(t *testing.T) {
	c, adapter, rec := newTestController(t, Options{})
	tag := NewMockTag(testUID, "hello")
	tag.Block = make(chan struct{})

	p, err := c.ArmForRead()
	require.NoError(t, err)
	adapter.Present(tag)
	rec.waitFor(t, EventReadStart)
	assert.Equal(t, StateReading, c.State())

	info, ok := c.Current()
	require.True(t, ok)
	assert.Equal(t, "read", info.Op)
	assert.Equal(t, "04A1B2C3", info.TagID)

	// Tag leaves the field: notified as unmatched.
	adapter.Trigger(tag, false)

	_, err = waitPending(t, p)
	assert.True(t, IsTagRemovedError(err), "got %v", err)
	rec.waitFor(t, EventCardRemoved)

	// The late I/O result must not produce a second terminal event.
	close(tag.Block)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, []EventKind{EventReadStart, EventCardRemoved}, rec.kinds())
	assert.Equal(t, StateIdle, c.State())
	_, ok = c.Current()
	assert.False(t, ok)
}

func TestController_MatchedNotificationDuringSessionIsRemoval(t *testing.T) {
	c, adapter, rec := newTestController(t, Options{})
	tag := NewMockTag(testUID)
	tag.Blank = true
	tag.Block = make(chan struct{})
	defer close(tag.Block)

	_, err := c.ArmForWrite([]byte("abc"))
	require.NoError(t, err)
	adapter.Present(tag)
	rec.waitFor(t, EventWriteStart)

	adapter.Present(NewMockTag([]byte{0x09}, "other"))

	ev := rec.waitFor(t, EventCardRemoved)
	assert.Equal(t, OpWrite, ev.Op)
	assert.False(t, tag.Formatted)
}

func TestController_ArmingIdempotence(t *testing.T) {
	c, adapter, rec := newTestController(t, Options{})

	p1, err := c.ArmForRead()
	require.NoError(t, err)
	p2, err := c.ArmForRead()
	require.NoError(t, err)
	assert.Same(t, p1, p2)

	adapter.Present(NewMockTag(testUID, "hello"))
	_, err = waitPending(t, p1)
	require.NoError(t, err)
	rec.waitFor(t, EventReadComplete)

	// Nothing armed anymore: the next tag is ignored.
	adapter.Present(NewMockTag([]byte{0x02}, "again"))
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, []EventKind{EventReadStart, EventReadComplete}, rec.kinds())
}

func TestController_ArmWriteTwiceUpdatesPayload(t *testing.T) {
	c, adapter, _ := newTestController(t, Options{})
	tag := NewMockTag(testUID)

	p1, err := c.ArmForWrite([]byte("first"))
	require.NoError(t, err)
	p2, err := c.ArmForWrite([]byte("second"))
	require.NoError(t, err)
	assert.Same(t, p1, p2)

	adapter.Present(tag)
	res, err := waitPending(t, p1)
	require.NoError(t, err)
	assert.Equal(t, "second", res.Text)
	assert.Len(t, tag.GetWritten(), 1)
}

func TestController_ConflictingArmRejected(t *testing.T) {
	c, _, _ := newTestController(t, Options{})

	_, err := c.ArmForRead()
	require.NoError(t, err)
	_, err = c.ArmForWrite([]byte("x"))
	assert.Equal(t, ErrCodeArmConflict, GetErrorCode(err))
}

func TestController_DisarmRejectsPending(t *testing.T) {
	c, adapter, rec := newTestController(t, Options{})

	p, err := c.ArmForWrite([]byte("x"))
	require.NoError(t, err)
	c.Disarm()

	_, err = waitPending(t, p)
	assert.Equal(t, ErrCodeCanceled, GetErrorCode(err))
	assert.Equal(t, StateIdle, c.State())

	adapter.Present(NewMockTag(testUID))
	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, rec.kinds())
}

func TestController_UnmatchedNotificationIgnoredWhileIdle(t *testing.T) {
	c, adapter, rec := newTestController(t, Options{Filters: []string{CardTypeNtag213}})

	_, err := c.ArmForRead()
	require.NoError(t, err)

	adapter.Present(NewMockTag(testUID, "hello"))
	time.Sleep(20 * time.Millisecond)

	assert.Empty(t, rec.kinds())
	assert.True(t, c.Arming().ReadyForRead, "unmatched tag must not consume the request")
}

func TestController_CapabilityUnavailable(t *testing.T) {
	adapter := NewMockAdapter()
	adapter.CapabilityError = errors.New("no reader")
	notifier := &recordingNotifier{}
	c := NewController(adapter, Options{NotifyUser: true, Notifier: notifier})
	defer c.Close()

	err := c.Initialize()
	assert.True(t, IsCapabilityUnavailableError(err))
	assert.False(t, adapter.Armed())
	assert.True(t, c.Arming().CapabilityAbsent)
	assert.NotEmpty(t, notifier.messages)

	_, err = c.ArmForRead()
	assert.True(t, IsCapabilityUnavailableError(err))
	_, err = c.ArmForWrite(nil)
	assert.True(t, IsCapabilityUnavailableError(err))

	adapter.CapabilityError = nil
	require.NoError(t, c.Initialize())
	_, err = c.ArmForRead()
	assert.NoError(t, err)
}

func TestController_CloseCancelsSession(t *testing.T) {
	adapter := NewMockAdapter()
	c := NewController(adapter, Options{})
	require.NoError(t, c.Initialize())
	rec := newEventRecorder(c.Bus())

	tag := NewMockTag(testUID, "hello")
	tag.Block = make(chan struct{})
	defer close(tag.Block)

	p, err := c.ArmForRead()
	require.NoError(t, err)
	adapter.Present(tag)
	rec.waitFor(t, EventReadStart)

	require.NoError(t, c.Close())

	_, err = waitPending(t, p)
	assert.Equal(t, ErrCodeCanceled, GetErrorCode(err))
	assert.Equal(t, []EventKind{EventReadStart, EventReadError}, rec.kinds())
	assert.False(t, adapter.Armed())
	assert.NoError(t, c.Close())
}

func TestController_NotifierFeedback(t *testing.T) {
	notifier := &recordingNotifier{}
	c, adapter, rec := newTestController(t, Options{NotifyUser: true, Notifier: notifier})

	_, err := c.ArmForRead()
	require.NoError(t, err)
	adapter.Present(NewMockTag(testUID, "hello"))
	rec.waitFor(t, EventReadComplete)

	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	assert.Contains(t, notifier.messages, "Tag data: hello")
	assert.Zero(t, notifier.loading, "loading indicator must be hidden again")
}

func TestController_NotifyUserDisabled(t *testing.T) {
	notifier := &recordingNotifier{}
	c, adapter, rec := newTestController(t, Options{Notifier: notifier})

	_, err := c.ArmForRead()
	require.NoError(t, err)
	adapter.Present(NewMockTag(testUID, "hello"))
	rec.waitFor(t, EventReadComplete)

	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	assert.Empty(t, notifier.messages)
}

func TestController_UnsubscribedListenerNotCalled(t *testing.T) {
	c, adapter, rec := newTestController(t, Options{})
	calls := 0
	l := NewListener(func(Event) { calls++ })
	c.Subscribe(EventReadComplete, l)
	c.Unsubscribe(EventReadComplete, l)

	_, err := c.ArmForRead()
	require.NoError(t, err)
	adapter.Present(NewMockTag(testUID, "hello"))
	rec.waitFor(t, EventReadComplete)

	assert.Zero(t, calls)
}

func TestController_SuspendResume(t *testing.T) {
	c, adapter, rec := newTestController(t, Options{})

	p, err := c.ArmForRead()
	require.NoError(t, err)

	require.NoError(t, c.Suspend())
	require.NoError(t, c.Suspend())
	assert.True(t, c.Suspended())
	assert.False(t, adapter.Armed())

	// No notifications reach the controller while suspended.
	adapter.Present(NewMockTag(testUID, "ignored"))
	c.HandleDiscovery(NewMockTag(testUID, "ignored"), true)
	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, rec.kinds())
	assert.True(t, c.Arming().ReadyForRead, "suspending keeps the armed request")

	require.NoError(t, c.Resume())
	assert.False(t, c.Suspended())
	assert.True(t, adapter.Armed())

	adapter.Present(NewMockTag(testUID, "hello"))
	res, err := waitPending(t, p)
	require.NoError(t, err)
	assert.Equal(t, "hello", res.Text)
}

func TestController_ResumeKeepsSuspendedWithoutCapability(t *testing.T) {
	c, adapter, _ := newTestController(t, Options{})

	require.NoError(t, c.Suspend())
	adapter.CapabilityError = errors.New("reader unplugged")
	assert.True(t, IsCapabilityUnavailableError(c.Resume()))
	assert.True(t, c.Suspended())

	adapter.CapabilityError = nil
	require.NoError(t, c.Resume())
	assert.False(t, c.Suspended())
}

func TestController_SuspendAfterClose(t *testing.T) {
	c, _, _ := newTestController(t, Options{})
	require.NoError(t, c.Close())

	assert.Equal(t, ErrCodeCanceled, GetErrorCode(c.Suspend()))
	assert.Equal(t, ErrCodeCanceled, GetErrorCode(c.Resume()))
}
