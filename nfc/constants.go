package nfc

import "time"

// Card type constants for card type identification and filtering
const (
	CardTypeMifareUltralight  = "MIFARE Ultralight"
	CardTypeMifareUltralightC = "MIFARE Ultralight C"
	CardTypeNtag213           = "NTAG213"
	CardTypeNtag215           = "NTAG215"
	CardTypeNtag216           = "NTAG216"
	CardTypeMifareClassic1K   = "MIFARE Classic 1K"
	CardTypeMifareClassic4K   = "MIFARE Classic 4K"
	CardTypeDesfire           = "DESFire"
	CardTypeUnknown           = "Unknown"
)

// Session defaults.
const (
	DefaultMimeType     = "text/plain"
	DefaultPayload      = "{id:123,name:nfc,stie:cssmini.com}"
	DefaultPollInterval = 250 * time.Millisecond
)

// GetAllCardTypes returns all card type names usable as discovery filters.
func GetAllCardTypes() []string {
	return []string{
		CardTypeMifareUltralight,
		CardTypeMifareUltralightC,
		CardTypeNtag213,
		CardTypeNtag215,
		CardTypeNtag216,
		CardTypeMifareClassic1K,
		CardTypeMifareClassic4K,
		CardTypeDesfire,
	}
}
