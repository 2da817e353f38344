package nfc

import (
	"encoding/binary"
	"fmt"
)

// Type Name Format values for NDEF record headers.
const (
	TNFEmpty       byte = 0x00
	TNFWellKnown   byte = 0x01
	TNFMimeMedia   byte = 0x02
	TNFAbsoluteURI byte = 0x03
	TNFExternal    byte = 0x04
	TNFUnknown     byte = 0x05
	TNFUnchanged   byte = 0x06
)

// NDEF record header flags.
const (
	ndefFlagMB = 0x80 // Message Begin
	ndefFlagME = 0x40 // Message End
	ndefFlagCF = 0x20 // Chunk Flag
	ndefFlagSR = 0x10 // Short Record
	ndefFlagIL = 0x08 // ID Length present
)

// NDEFRecord represents a single NDEF record within a message.
type NDEFRecord struct {
	TNF     byte   // Type Name Format (0x00-0x07)
	Type    []byte // Record type (e.g., "text/plain" for MIME records)
	ID      []byte // Optional record ID
	Payload []byte // Record payload data
}

// NewMimeRecord creates a MIME media record carrying payload as-is.
func NewMimeRecord(mimeType string, payload []byte) NDEFRecord {
	return NDEFRecord{
		TNF:     TNFMimeMedia,
		Type:    []byte(mimeType),
		ID:      []byte{},
		Payload: payload,
	}
}

// MimeType returns the record type as a string for MIME records.
func (r *NDEFRecord) MimeType() (string, bool) {
	if r.TNF != TNFMimeMedia {
		return "", false
	}
	return string(r.Type), true
}

// NDEFMessage represents a structured NDEF message with one or more records.
type NDEFMessage struct {
	records []NDEFRecord
}

// NewNDEFMessage creates a message from the given records.
func NewNDEFMessage(records ...NDEFRecord) *NDEFMessage {
	return &NDEFMessage{records: records}
}

// AddRecord appends a raw NDEF record to the message.
func (m *NDEFMessage) AddRecord(record NDEFRecord) *NDEFMessage {
	m.records = append(m.records, record)
	return m
}

// Records returns the list of NDEF records in this message.
func (m *NDEFMessage) Records() []NDEFRecord {
	return m.records
}

// Encode converts the NDEF message to bytes.
func (m *NDEFMessage) Encode() ([]byte, error) {
	if len(m.records) == 0 {
		return nil, fmt.Errorf("cannot encode empty NDEF message")
	}
	return encodeNDEFRecords(m.records)
}

// DecodeNDEF parses raw bytes into an NDEFMessage.
// Returns error if the data is not valid NDEF format.
func DecodeNDEF(data []byte) (*NDEFMessage, error) {
	records, err := parseNDEFRecords(data)
	if err != nil {
		return nil, err
	}
	return &NDEFMessage{records: records}, nil
}

// parseNDEFRecords parses raw NDEF message bytes into a slice of NDEFRecord structs.
func parseNDEFRecords(ndefMessage []byte) ([]NDEFRecord, error) {
	if len(ndefMessage) == 0 {
		return nil, fmt.Errorf("empty NDEF message")
	}

	var records []NDEFRecord
	offset := 0

	for offset < len(ndefMessage) {
		header := ndefMessage[offset]
		me := header&ndefFlagME != 0
		sr := header&ndefFlagSR != 0
		il := header&ndefFlagIL != 0
		if header&ndefFlagCF != 0 {
			return nil, fmt.Errorf("invalid NDEF message: chunked records are not supported (offset %d)", offset)
		}

		pos := offset + 1

		if pos+1 > len(ndefMessage) {
			return nil, fmt.Errorf("invalid NDEF message: truncated type length at offset %d", pos)
		}
		typeLength := int(ndefMessage[pos])
		pos++

		var payloadLength int
		if sr {
			if pos+1 > len(ndefMessage) {
				return nil, fmt.Errorf("invalid NDEF message: truncated short record payload length at offset %d", pos)
			}
			payloadLength = int(ndefMessage[pos])
			pos++
		} else {
			if pos+4 > len(ndefMessage) {
				return nil, fmt.Errorf("invalid NDEF message: truncated payload length at offset %d", pos)
			}
			payloadLength = int(binary.BigEndian.Uint32(ndefMessage[pos : pos+4]))
			pos += 4
		}

		var idLength int
		if il {
			if pos+1 > len(ndefMessage) {
				return nil, fmt.Errorf("invalid NDEF message: truncated ID length at offset %d", pos)
			}
			idLength = int(ndefMessage[pos])
			pos++
		}

		if pos+typeLength > len(ndefMessage) {
			return nil, fmt.Errorf("invalid NDEF message: truncated type field at offset %d", pos)
		}
		recordType := make([]byte, typeLength)
		copy(recordType, ndefMessage[pos:pos+typeLength])
		pos += typeLength

		var recordID []byte
		if idLength > 0 {
			if pos+idLength > len(ndefMessage) {
				return nil, fmt.Errorf("invalid NDEF message: truncated ID field at offset %d", pos)
			}
			recordID = make([]byte, idLength)
			copy(recordID, ndefMessage[pos:pos+idLength])
			pos += idLength
		}

		if payloadLength < 0 || pos+payloadLength > len(ndefMessage) {
			return nil, fmt.Errorf("invalid NDEF message: truncated payload at offset %d", pos)
		}
		recordPayload := make([]byte, payloadLength)
		copy(recordPayload, ndefMessage[pos:pos+payloadLength])
		pos += payloadLength

		records = append(records, NDEFRecord{
			TNF:     header & 0x07,
			Type:    recordType,
			ID:      recordID,
			Payload: recordPayload,
		})

		offset = pos
		if me {
			break
		}
	}

	return records, nil
}

// encodeNDEFRecords encodes a slice of NDEFRecord structs into raw NDEF message bytes.
func encodeNDEFRecords(records []NDEFRecord) ([]byte, error) {
	if len(records) == 0 {
		return nil, fmt.Errorf("cannot encode empty record list")
	}

	var result []byte
	for i, record := range records {
		if len(record.Type) > 0xFF {
			return nil, fmt.Errorf("record %d: type longer than 255 bytes", i)
		}
		if len(record.ID) > 0xFF {
			return nil, fmt.Errorf("record %d: ID longer than 255 bytes", i)
		}

		payloadLen := len(record.Payload)
		isShortRecord := payloadLen <= 0xFF
		hasID := len(record.ID) > 0

		header := record.TNF & 0x07
		if i == 0 {
			header |= ndefFlagMB
		}
		if i == len(records)-1 {
			header |= ndefFlagME
		}
		if isShortRecord {
			header |= ndefFlagSR
		}
		if hasID {
			header |= ndefFlagIL
		}

		result = append(result, header, byte(len(record.Type)))
		if isShortRecord {
			result = append(result, byte(payloadLen))
		} else {
			result = binary.BigEndian.AppendUint32(result, uint32(payloadLen))
		}
		if hasID {
			result = append(result, byte(len(record.ID)))
		}
		result = append(result, record.Type...)
		if hasID {
			result = append(result, record.ID...)
		}
		result = append(result, record.Payload...)
	}

	return result, nil
}
