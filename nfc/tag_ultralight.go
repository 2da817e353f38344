package nfc

import (
	"context"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"

	"github.com/clausecker/freefare"
)

// Type 2 tag memory layout.
const (
	ultralightPageSize   = 4
	ultralightCCPage     = 3
	ultralightDataPage   = 4
	ultralightCCMagic    = 0xE1
	ultralightCCVersion  = 0x10
	ultralightAccessOpen = 0x00

	ultralightDataBytes  = 48  // pages 4-15
	ultralightCDataBytes = 144 // pages 4-39
)

// ultralightTag implements Tag, StructuredTag and FormatableTag for MIFARE
// Ultralight family tags using NFC Forum Type 2 layout.
type ultralightTag struct {
	tag     freefare.UltralightTag
	id      []byte
	devMu   *sync.Mutex
	onBusy  func(busy bool)
	cc      [4]byte
	ccValid bool
}

var (
	_ Tag           = (*ultralightTag)(nil)
	_ StructuredTag = (*ultralightTag)(nil)
	_ FormatableTag = (*ultralightTag)(nil)
)

// newUltralightTag wraps t. cc is the capability container read at discovery.
func newUltralightTag(t freefare.UltralightTag, cc [4]byte, devMu *sync.Mutex, onBusy func(bool)) *ultralightTag {
	id, err := hex.DecodeString(t.UID())
	if err != nil {
		id = []byte(strings.ToUpper(t.UID()))
	}
	return &ultralightTag{
		tag:     t,
		id:      id,
		devMu:   devMu,
		onBusy:  onBusy,
		cc:      cc,
		ccValid: cc[0] == ultralightCCMagic,
	}
}

func (u *ultralightTag) ID() []byte {
	return u.id
}

func (u *ultralightTag) Type() string {
	if u.tag.Type() == freefare.UltralightC {
		return CardTypeMifareUltralightC
	}
	return CardTypeMifareUltralight
}

func (u *ultralightTag) Connect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	u.devMu.Lock()
	defer u.devMu.Unlock()
	if err := u.tag.Connect(); err != nil {
		return fmt.Errorf("ultralight connect: %w", err)
	}
	u.onBusy(true)
	return nil
}

func (u *ultralightTag) Disconnect() error {
	u.devMu.Lock()
	defer u.devMu.Unlock()
	defer u.onBusy(false)
	if err := u.tag.Disconnect(); err != nil {
		return fmt.Errorf("ultralight disconnect: %w", err)
	}
	return nil
}

// capacity is the physical size of the user data area.
func (u *ultralightTag) capacity() int {
	if u.tag.Type() == freefare.UltralightC {
		return ultralightCDataBytes
	}
	return ultralightDataBytes
}

// dataArea is the data area size declared by the capability container,
// bounded by the physical capacity.
func (u *ultralightTag) dataArea() int {
	declared := int(u.cc[2]) * 8
	if declared == 0 || declared > u.capacity() {
		return u.capacity()
	}
	return declared
}

func (u *ultralightTag) Messages(ctx context.Context) ([]*NDEFMessage, error) {
	if !u.ccValid {
		return nil, nil
	}

	data, err := u.readData(ctx, u.dataArea())
	if err != nil {
		return nil, err
	}
	raw, found := TLVFindNDEF(data)
	if !found || len(raw) == 0 {
		return nil, nil
	}
	msg, err := DecodeNDEF(raw)
	if err != nil {
		return nil, fmt.Errorf("decode NDEF: %w", err)
	}
	return []*NDEFMessage{msg}, nil
}

func (u *ultralightTag) Structured() (StructuredTag, bool) {
	return u, u.ccValid
}

func (u *ultralightTag) Formatable() (FormatableTag, bool) {
	return u, !u.ccValid
}

func (u *ultralightTag) IsWritable() (bool, error) {
	return u.cc[3] == ultralightAccessOpen, nil
}

func (u *ultralightTag) MaxSize() (int, error) {
	area := u.dataArea()
	if area-tlvOverhead(0) >= 0xFF {
		return area - tlvOverhead(0xFF), nil
	}
	return area - tlvOverhead(0), nil
}

func (u *ultralightTag) WriteMessage(ctx context.Context, message []byte) error {
	block := TLVEncode(message, TLVNDEF)
	if len(block) > u.dataArea() {
		return fmt.Errorf("NDEF message of %d bytes does not fit in %d byte data area", len(message), u.dataArea())
	}
	return u.writeData(ctx, ultralightDataPage, block)
}

// Format writes a capability container for the whole data area and then the
// first message.
func (u *ultralightTag) Format(ctx context.Context, message []byte) error {
	cc := [4]byte{ultralightCCMagic, ultralightCCVersion, byte(u.capacity() / 8), ultralightAccessOpen}
	if err := u.writeData(ctx, ultralightCCPage, cc[:]); err != nil {
		return fmt.Errorf("write capability container: %w", err)
	}
	u.cc = cc
	u.ccValid = true
	return u.WriteMessage(ctx, message)
}

func (u *ultralightTag) readData(ctx context.Context, n int) ([]byte, error) {
	u.devMu.Lock()
	defer u.devMu.Unlock()

	out := make([]byte, 0, n)
	for page := byte(ultralightDataPage); len(out) < n; page++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		buf, err := u.tag.ReadPage(page)
		if err != nil {
			return nil, fmt.Errorf("read page %d: %w", page, err)
		}
		out = append(out, buf[:]...)

		// Stop once the whole NDEF TLV is in.
		if _, found := TLVFindNDEF(out); found {
			break
		}
	}
	return out, nil
}

func (u *ultralightTag) writeData(ctx context.Context, firstPage byte, data []byte) error {
	u.devMu.Lock()
	defer u.devMu.Unlock()

	for offset, page := 0, firstPage; offset < len(data); page++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		var buf [ultralightPageSize]byte
		offset += copy(buf[:], data[offset:])
		if err := u.tag.WritePage(page, buf); err != nil {
			return fmt.Errorf("write page %d: %w", page, err)
		}
	}
	return nil
}

// readCC reads the capability container page. Callers hold the device lock.
func readCC(t freefare.UltralightTag) ([4]byte, error) {
	if err := t.Connect(); err != nil {
		return [4]byte{}, err
	}
	defer t.Disconnect()
	return t.ReadPage(ultralightCCPage)
}
