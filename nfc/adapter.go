package nfc

import (
	"context"
	"encoding/hex"
	"strings"
)

// DiscoveryHandler is called by an Adapter whenever the platform reports a
// tag. matched is false when the notification did not match the registered
// filters; while a session is outstanding any notification counts as removal.
type DiscoveryHandler func(tag Tag, matched bool)

// Adapter is the host platform's contactless capability surface.
//
// Example:
//
//	adapter := nfc.NewLibnfcAdapter("", nfc.DefaultPollInterval, nil, logger)
//	if err := adapter.Capability(); err != nil {
//	    // no reader, or reader disabled
//	}
//	adapter.ArmDiscovery(nil, controller.HandleDiscovery)
type Adapter interface {
	// Capability reports whether a usable reader exists. It returns a
	// CapabilityUnavailable error otherwise.
	Capability() error

	// ArmDiscovery starts delivering discovery notifications to handler.
	// Tags whose type is not in filters are reported with matched=false;
	// an empty filter list matches every tag.
	ArmDiscovery(filters []string, handler DiscoveryHandler) error

	// DisarmDiscovery stops delivering notifications.
	DisarmDiscovery() error
}

// Tag is a handle on a discovered tag.
type Tag interface {
	ID() []byte
	Type() string
	Connect(ctx context.Context) error
	Disconnect() error

	// Messages returns the NDEF messages carried by the tag, which may be none.
	Messages(ctx context.Context) ([]*NDEFMessage, error)

	// Structured returns a writable handle when the tag is already formatted
	// for NDEF storage.
	Structured() (StructuredTag, bool)

	// Formatable returns a handle able to format a blank tag and write a
	// first message in one step.
	Formatable() (FormatableTag, bool)
}

// StructuredTag is a tag already initialised for NDEF storage.
type StructuredTag interface {
	IsWritable() (bool, error)
	MaxSize() (int, error)
	WriteMessage(ctx context.Context, message []byte) error
}

// FormatableTag is a blank tag that can be formatted for NDEF storage.
type FormatableTag interface {
	Format(ctx context.Context, message []byte) error
}

// Hex renders b as uppercase hex digits, two per byte, without separators.
func Hex(b []byte) string {
	return strings.ToUpper(hex.EncodeToString(b))
}

// matchesFilters reports whether tagType passes the card type filter list.
func matchesFilters(filters []string, tagType string) bool {
	if len(filters) == 0 {
		return true
	}
	for _, f := range filters {
		if strings.EqualFold(f, tagType) {
			return true
		}
	}
	return false
}
