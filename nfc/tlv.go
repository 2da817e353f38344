package nfc

// TLV block types found in the data area of Type 2 tags.
const (
	TLVNull        = 0x00
	TLVLockCtrl    = 0x01
	TLVMemCtrl     = 0x02
	TLVNDEF        = 0x03
	TLVProprietary = 0xFD
	TLVTerminator  = 0xFE
)

// TLVEncode wraps value in a TLV of the given type followed by a terminator.
// Lengths of 0xFF and above use the three byte form.
func TLVEncode(value []byte, tlvType byte) []byte {
	out := make([]byte, 0, len(value)+5)
	out = append(out, tlvType)
	if n := len(value); n < 0xFF {
		out = append(out, byte(n))
	} else {
		out = append(out, 0xFF, byte(n>>8), byte(n))
	}
	out = append(out, value...)
	return append(out, TLVTerminator)
}

// tlvHeader returns the value length and the offset of the value for the TLV
// starting at data[0]. ok is false when the header is truncated.
func tlvHeader(data []byte) (length, valueOffset int, ok bool) {
	if len(data) < 2 {
		return 0, 0, false
	}
	if data[1] != 0xFF {
		return int(data[1]), 2, true
	}
	if len(data) < 4 {
		return 0, 0, false
	}
	return int(data[2])<<8 | int(data[3]), 4, true
}

// TLVFindNDEF scans a TLV block for the first NDEF Message TLV, skipping
// null and unrelated TLVs. found is false when a terminator, the end of data
// or a malformed TLV is reached first.
func TLVFindNDEF(data []byte) (value []byte, found bool) {
	offset := 0
	for offset < len(data) {
		switch data[offset] {
		case TLVNull:
			offset++
			continue
		case TLVTerminator:
			return nil, false
		}

		length, valueOffset, ok := tlvHeader(data[offset:])
		if !ok {
			return nil, false
		}
		start := offset + valueOffset
		if start+length > len(data) {
			return nil, false
		}
		if data[offset] == TLVNDEF {
			return data[start : start+length], true
		}
		offset = start + length
	}
	return nil, false
}

// tlvOverhead is the number of bytes TLVEncode adds around a value of size n.
func tlvOverhead(n int) int {
	if n < 0xFF {
		return 3
	}
	return 5
}
