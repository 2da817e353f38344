package nfc

import (
	"context"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/clausecker/freefare"
	"github.com/clausecker/nfc/v2"
	"github.com/rs/zerolog"
)

const deviceEnumRetries = 3

// LibnfcAdapter implements Adapter on top of a libnfc reader. Discovery is a
// poll loop diffing the set of tags in the field: a new tag is reported once,
// and a tag leaving the field is reported with matched=false.
type LibnfcAdapter struct {
	devicePath string
	interval   time.Duration
	clock      Clock
	logger     zerolog.Logger

	// devMu serialises every libnfc call on the device.
	devMu  sync.Mutex
	device *nfc.Device

	// busy counts connected tags; polling is skipped while it is non-zero.
	busy atomic.Int32

	mu      sync.Mutex
	stop    chan struct{}
	done    chan struct{}
	present map[string]Tag
}

var _ Adapter = (*LibnfcAdapter)(nil)

// NewLibnfcAdapter creates an adapter for devicePath. An empty path picks the
// first reader libnfc finds.
func NewLibnfcAdapter(devicePath string, interval time.Duration, clock Clock, logger zerolog.Logger) *LibnfcAdapter {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if clock == nil {
		clock = NewRealClock()
	}
	return &LibnfcAdapter{
		devicePath: devicePath,
		interval:   interval,
		clock:      clock,
		logger:     logger.With().Str("component", "libnfc").Logger(),
	}
}

// ListDevices returns the connection strings of all readers libnfc can see.
func ListDevices() ([]string, error) {
	var devices []string
	var err error
	for i := 0; i < deviceEnumRetries; i++ {
		devices, err = nfc.ListDevices()
		if err == nil {
			return devices, nil
		}
		time.Sleep(100 * time.Millisecond)
	}
	return nil, fmt.Errorf("failed to list NFC devices after %d retries: %w", deviceEnumRetries, err)
}

// Capability opens the reader if it is not open yet and puts it in
// initiator mode.
func (a *LibnfcAdapter) Capability() error {
	a.devMu.Lock()
	defer a.devMu.Unlock()

	if a.device != nil {
		return nil
	}

	dev, err := nfc.Open(a.devicePath)
	if err != nil {
		return NewCapabilityUnavailableError("open", err)
	}
	if err := dev.InitiatorInit(); err != nil {
		dev.Close()
		return NewCapabilityUnavailableError("initiator init", err)
	}
	a.device = &dev
	a.logger.Info().Str("device", dev.String()).Msg("Reader opened")
	return nil
}

// ArmDiscovery starts the poll loop. Arming again replaces the handler.
func (a *LibnfcAdapter) ArmDiscovery(filters []string, handler DiscoveryHandler) error {
	if handler == nil {
		return fmt.Errorf("arm discovery: nil handler")
	}
	a.devMu.Lock()
	opened := a.device != nil
	a.devMu.Unlock()
	if !opened {
		return NewCapabilityUnavailableError("arm discovery", nil)
	}

	a.DisarmDiscovery()

	a.mu.Lock()
	defer a.mu.Unlock()
	a.stop = make(chan struct{})
	a.done = make(chan struct{})
	a.present = make(map[string]Tag)
	go a.poll(a.stop, a.done, append([]string(nil), filters...), handler)
	return nil
}

// DisarmDiscovery stops the poll loop and waits for it to exit.
func (a *LibnfcAdapter) DisarmDiscovery() error {
	a.mu.Lock()
	stop, done := a.stop, a.done
	a.stop, a.done = nil, nil
	a.mu.Unlock()

	if stop != nil {
		close(stop)
		<-done
	}
	return nil
}

// Close stops discovery and releases the reader.
func (a *LibnfcAdapter) Close() error {
	a.DisarmDiscovery()

	a.devMu.Lock()
	defer a.devMu.Unlock()
	if a.device == nil {
		return nil
	}
	err := a.device.Close()
	a.device = nil
	return err
}

func (a *LibnfcAdapter) poll(stop, done chan struct{}, filters []string, handler DiscoveryHandler) {
	defer close(done)
	ticker := a.clock.NewTicker(a.interval)
	defer ticker.Stop()

	a.logger.Debug().Dur("interval", a.interval).Msg("Poll loop started")
	for {
		select {
		case <-stop:
			a.logger.Debug().Msg("Poll loop stopped")
			return
		case <-ticker.C():
			if a.busy.Load() > 0 {
				continue
			}
			tags, err := a.scan()
			if err != nil {
				a.logger.Warn().Err(err).Msg("Tag scan failed")
				continue
			}
			a.dispatch(tags, filters, handler)
		}
	}
}

// dispatch reports tags that appeared since the last scan, then tags that
// left the field.
func (a *LibnfcAdapter) dispatch(tags map[string]Tag, filters []string, handler DiscoveryHandler) {
	a.mu.Lock()
	prev := a.present
	a.present = tags
	a.mu.Unlock()

	for uid, tag := range tags {
		if _, ok := prev[uid]; ok {
			continue
		}
		matched := matchesFilters(filters, tag.Type())
		a.logger.Debug().Str("uid", uid).Str("type", tag.Type()).Bool("matched", matched).Msg("Tag entered field")
		handler(tag, matched)
	}
	for uid, tag := range prev {
		if _, ok := tags[uid]; ok {
			continue
		}
		a.logger.Debug().Str("uid", uid).Msg("Tag left field")
		handler(tag, false)
	}
}

func (a *LibnfcAdapter) scan() (map[string]Tag, error) {
	a.devMu.Lock()
	defer a.devMu.Unlock()

	if a.device == nil {
		return nil, fmt.Errorf("reader closed")
	}
	found, err := freefare.GetTags(*a.device)
	if err != nil {
		return nil, fmt.Errorf("get tags: %w", err)
	}

	tags := make(map[string]Tag, len(found))
	for _, ft := range found {
		uid := strings.ToUpper(ft.UID())
		switch t := ft.(type) {
		case freefare.UltralightTag:
			cc, err := readCC(t)
			if err != nil {
				a.logger.Debug().Err(err).Str("uid", uid).Msg("Reading capability container failed")
				continue
			}
			tags[uid] = newUltralightTag(t, cc, &a.devMu, a.setBusy)
		case freefare.ClassicTag:
			tags[uid] = newUnsupportedTag(ft, classicType(t))
		case freefare.DESFireTag:
			tags[uid] = newUnsupportedTag(ft, CardTypeDesfire)
		default:
			tags[uid] = newUnsupportedTag(ft, CardTypeUnknown)
		}
	}
	return tags, nil
}

func (a *LibnfcAdapter) setBusy(busy bool) {
	if busy {
		a.busy.Add(1)
	} else {
		a.busy.Add(-1)
	}
}

func classicType(t freefare.ClassicTag) string {
	if t.Type() == freefare.Classic4k {
		return CardTypeMifareClassic4K
	}
	return CardTypeMifareClassic1K
}

// unsupportedTag is a discovered tag this adapter cannot exchange NDEF with.
// It is still reported so filters and removal detection see it.
type unsupportedTag struct {
	id      []byte
	tagType string
}

func newUnsupportedTag(t freefare.Tag, tagType string) *unsupportedTag {
	id, err := hex.DecodeString(t.UID())
	if err != nil {
		id = []byte(t.UID())
	}
	return &unsupportedTag{id: id, tagType: tagType}
}

func (t *unsupportedTag) ID() []byte                        { return t.id }
func (t *unsupportedTag) Type() string                      { return t.tagType }
func (t *unsupportedTag) Connect(ctx context.Context) error { return NewNotSupportedError("connect " + t.tagType) }
func (t *unsupportedTag) Disconnect() error                 { return nil }
func (t *unsupportedTag) Structured() (StructuredTag, bool) { return nil, false }
func (t *unsupportedTag) Formatable() (FormatableTag, bool) { return nil, false }

func (t *unsupportedTag) Messages(ctx context.Context) ([]*NDEFMessage, error) {
	return nil, NewNotSupportedError("read " + t.tagType)
}
