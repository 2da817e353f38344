package nfc

import (
	"context"
	"fmt"
	"sync"
)

// MockAdapter is a test implementation of Adapter whose notifications are
// driven by the test.
//
// Example:
//
//	adapter := NewMockAdapter()
//	controller := NewController(adapter, Options{})
//	controller.Initialize()
//	adapter.Present(NewMockTag([]byte{0x04, 0xA1}, "hello"))
type MockAdapter struct {
	// CapabilityError, if set, will be returned by Capability()
	CapabilityError error

	// ArmError, if set, will be returned by ArmDiscovery()
	ArmError error

	// CallLog tracks all method calls for verification in tests
	CallLog []string

	handler DiscoveryHandler
	filters []string
	mu      sync.Mutex
}

var _ Adapter = (*MockAdapter)(nil)

// NewMockAdapter creates a MockAdapter with a working capability.
func NewMockAdapter() *MockAdapter {
	return &MockAdapter{CallLog: make([]string, 0)}
}

func (m *MockAdapter) Capability() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.CallLog = append(m.CallLog, "Capability")
	if m.CapabilityError != nil {
		return NewCapabilityUnavailableError("capability", m.CapabilityError)
	}
	return nil
}

func (m *MockAdapter) ArmDiscovery(filters []string, handler DiscoveryHandler) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.CallLog = append(m.CallLog, "ArmDiscovery")
	if m.ArmError != nil {
		return m.ArmError
	}
	m.filters = filters
	m.handler = handler
	return nil
}

func (m *MockAdapter) DisarmDiscovery() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.CallLog = append(m.CallLog, "DisarmDiscovery")
	m.handler = nil
	return nil
}

// Armed reports whether a discovery handler is registered.
func (m *MockAdapter) Armed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.handler != nil
}

// Present simulates a tag entering the field, matched against the
// registered filters.
func (m *MockAdapter) Present(tag Tag) {
	m.mu.Lock()
	matched := matchesFilters(m.filters, tag.Type())
	m.mu.Unlock()
	m.Trigger(tag, matched)
}

// Trigger delivers a raw notification. It is a no-op when discovery is not armed.
func (m *MockAdapter) Trigger(tag Tag, matched bool) {
	m.mu.Lock()
	handler := m.handler
	m.mu.Unlock()
	if handler != nil {
		handler(tag, matched)
	}
}

// GetCallLog returns a copy of the call log.
func (m *MockAdapter) GetCallLog() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.CallLog...)
}

// MockTag is a test implementation of Tag. It acts as a formatted tag by
// default; set Blank for a tag that needs formatting.
type MockTag struct {
	// UID is returned by ID()
	UID []byte

	// TagType is returned by Type()
	TagType string

	// NDEF holds the messages returned by Messages(). Successful writes replace it.
	NDEF []*NDEFMessage

	// MessagesFunc, if set, overrides Messages(). call counts from 1.
	MessagesFunc func(ctx context.Context, call int) ([]*NDEFMessage, error)

	// ConnectFunc, if set, overrides Connect(). call counts from 1.
	ConnectFunc func(ctx context.Context, call int) error

	// WriteFunc, if set, overrides WriteMessage(). call counts from 1.
	WriteFunc func(ctx context.Context, call int, message []byte) error

	// Block, if set, makes Messages, WriteMessage and Format wait until it is
	// closed or the context ends.
	Block chan struct{}

	// BlockConnect applies Block to Connect as well.
	BlockConnect bool

	ConnectError    error
	DisconnectError error
	MessagesError   error
	IsWritableError error
	MaxSizeError    error
	WriteError      error
	FormatError     error

	// Blank makes the tag unformatted: Structured() reports false and
	// Formatable() reports true unless NotFormatable is set.
	Blank         bool
	NotFormatable bool

	ReadOnly bool

	// Capacity is returned by MaxSize(). Zero means 137 bytes (NTAG213).
	Capacity int

	// Written records every message passed to WriteMessage or Format.
	Written [][]byte

	// Formatted is set once Format() succeeds.
	Formatted bool

	// CallLog tracks all method calls for verification in tests
	CallLog []string

	connectCalls  int
	messagesCalls int
	writeCalls    int
	mu            sync.Mutex
}

var (
	_ Tag           = (*MockTag)(nil)
	_ StructuredTag = (*MockTag)(nil)
	_ FormatableTag = (*MockTag)(nil)
)

// NewMockTag creates a formatted MIFARE Ultralight MockTag. A non-nil text is
// stored as a single text/plain record.
func NewMockTag(uid []byte, text ...string) *MockTag {
	m := &MockTag{
		UID:     uid,
		TagType: CardTypeMifareUltralight,
		CallLog: make([]string, 0),
	}
	for _, t := range text {
		m.NDEF = append(m.NDEF, NewNDEFMessage(NewMimeRecord(DefaultMimeType, []byte(t))))
	}
	return m
}

func (m *MockTag) ID() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.UID
}

func (m *MockTag) Type() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.TagType
}

func (m *MockTag) Connect(ctx context.Context) error {
	m.mu.Lock()
	blockConnect := m.BlockConnect
	m.mu.Unlock()
	if blockConnect {
		if err := m.wait(ctx); err != nil {
			return err
		}
	}

	m.mu.Lock()
	m.CallLog = append(m.CallLog, "Connect")
	m.connectCalls++
	call, fn, cerr := m.connectCalls, m.ConnectFunc, m.ConnectError
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, call)
	}
	return cerr
}

func (m *MockTag) Disconnect() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.CallLog = append(m.CallLog, "Disconnect")
	return m.DisconnectError
}

func (m *MockTag) Messages(ctx context.Context) ([]*NDEFMessage, error) {
	if err := m.wait(ctx); err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.CallLog = append(m.CallLog, "Messages")
	m.messagesCalls++
	call, fn := m.messagesCalls, m.MessagesFunc
	msgs, err := m.NDEF, m.MessagesError
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, call)
	}
	return msgs, err
}

func (m *MockTag) Structured() (StructuredTag, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m, !m.Blank
}

func (m *MockTag) Formatable() (FormatableTag, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m, m.Blank && !m.NotFormatable
}

func (m *MockTag) IsWritable() (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.CallLog = append(m.CallLog, "IsWritable")
	if m.IsWritableError != nil {
		return false, m.IsWritableError
	}
	return !m.ReadOnly, nil
}

func (m *MockTag) MaxSize() (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.CallLog = append(m.CallLog, "MaxSize")
	if m.MaxSizeError != nil {
		return 0, m.MaxSizeError
	}
	if m.Capacity == 0 {
		return 137, nil
	}
	return m.Capacity, nil
}

func (m *MockTag) WriteMessage(ctx context.Context, message []byte) error {
	if err := m.wait(ctx); err != nil {
		return err
	}

	m.mu.Lock()
	m.CallLog = append(m.CallLog, "WriteMessage")
	m.writeCalls++
	call, fn, werr := m.writeCalls, m.WriteFunc, m.WriteError
	m.mu.Unlock()

	if fn != nil {
		werr = fn(ctx, call, message)
	}
	if werr != nil {
		return werr
	}
	return m.store(message)
}

func (m *MockTag) Format(ctx context.Context, message []byte) error {
	if err := m.wait(ctx); err != nil {
		return err
	}

	m.mu.Lock()
	m.CallLog = append(m.CallLog, "Format")
	ferr := m.FormatError
	m.mu.Unlock()

	if ferr != nil {
		return ferr
	}
	if err := m.store(message); err != nil {
		return err
	}

	m.mu.Lock()
	m.Blank = false
	m.Formatted = true
	m.mu.Unlock()
	return nil
}

// GetCallLog returns a copy of the call log.
func (m *MockTag) GetCallLog() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.CallLog...)
}

// GetWritten returns a copy of the recorded writes.
func (m *MockTag) GetWritten() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]byte(nil), m.Written...)
}

// CountCalls returns how often method appears in the call log.
func (m *MockTag) CountCalls(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.CallLog {
		if c == method {
			n++
		}
	}
	return n
}

func (m *MockTag) store(message []byte) error {
	msg, err := DecodeNDEF(message)
	if err != nil {
		return fmt.Errorf("mock tag: %w", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Written = append(m.Written, append([]byte(nil), message...))
	m.NDEF = []*NDEFMessage{msg}
	return nil
}

func (m *MockTag) wait(ctx context.Context) error {
	m.mu.Lock()
	block := m.Block
	m.mu.Unlock()
	if block == nil {
		return nil
	}
	select {
	case <-block:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
