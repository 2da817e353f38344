package nfc

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrorCode represents a specific type of NFC error for programmatic handling.
type ErrorCode int

const (
	// Capability errors (100-109)
	ErrCodeCapabilityUnavailable ErrorCode = iota + 100
	ErrCodeNotSupported
)

const (
	// Session errors (110-129)
	ErrCodeTimeout ErrorCode = iota + 110
	ErrCodeTagRemoved
	ErrCodeDataAbsent
	ErrCodeNotWritable
	ErrCodeCapacityExceeded
	ErrCodeFormatUnsupported
	ErrCodeAdapterIO
	ErrCodeArmConflict
	ErrCodeCanceled
)

// Data-absence causes reported by the read protocol.
var (
	ErrNoMessage = errors.New("no message on tag")
	ErrNoRecord  = errors.New("message has no records")
	ErrNoPayload = errors.New("record has no payload")
)

// NFCError provides structured error information for programmatic handling.
type NFCError struct {
	Code    ErrorCode
	Op      string // Operation that failed (e.g., "read", "write")
	TagUID  string // Optional: UID of tag involved
	Message string // Human-readable message
	Cause   error  // Underlying error
}

func (e *NFCError) Error() string {
	var sb strings.Builder
	if e.Op != "" {
		sb.WriteString(e.Op)
		sb.WriteString(": ")
	}
	sb.WriteString(e.Message)
	if e.Cause != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Cause.Error())
	}
	return sb.String()
}

func (e *NFCError) Unwrap() error {
	return e.Cause
}

func (e *NFCError) Is(target error) bool {
	if t, ok := target.(*NFCError); ok {
		return e.Code == t.Code
	}
	return false
}

// String returns the taxonomy name of the code.
func (c ErrorCode) String() string {
	switch c {
	case ErrCodeCapabilityUnavailable:
		return "CapabilityUnavailable"
	case ErrCodeNotSupported:
		return "NotSupported"
	case ErrCodeTimeout:
		return "DiscoveryTimeout"
	case ErrCodeTagRemoved:
		return "TagRemoved"
	case ErrCodeDataAbsent:
		return "DataAbsent"
	case ErrCodeNotWritable:
		return "NotWritable"
	case ErrCodeCapacityExceeded:
		return "CapacityExceeded"
	case ErrCodeFormatUnsupported:
		return "FormatUnsupported"
	case ErrCodeAdapterIO:
		return "AdapterIOError"
	case ErrCodeArmConflict:
		return "ArmConflict"
	case ErrCodeCanceled:
		return "Canceled"
	default:
		return fmt.Sprintf("ErrorCode(%d)", int(c))
	}
}

// NewCapabilityUnavailableError creates an error for a missing or disabled reader.
func NewCapabilityUnavailableError(op string, cause error) *NFCError {
	return &NFCError{
		Code:    ErrCodeCapabilityUnavailable,
		Op:      op,
		Message: "NFC capability unavailable",
		Cause:   cause,
	}
}

// NewNotSupportedError creates an error for unsupported operations.
func NewNotSupportedError(op string) *NFCError {
	return &NFCError{
		Code:    ErrCodeNotSupported,
		Op:      op,
		Message: "operation not supported",
	}
}

// NewTimeoutError creates an error for an attempt whose deadline elapsed.
func NewTimeoutError(op string, cause error) *NFCError {
	return &NFCError{
		Code:    ErrCodeTimeout,
		Op:      op,
		Message: "operation timed out",
		Cause:   cause,
	}
}

// NewTagRemovedError creates an error for when a tag is removed mid-operation.
func NewTagRemovedError(op string, cause error) *NFCError {
	return &NFCError{
		Code:    ErrCodeTagRemoved,
		Op:      op,
		Message: "tag removed during operation",
		Cause:   cause,
	}
}

// NewDataAbsentError creates an error for a read that found nothing to return.
// The cause is one of ErrNoMessage, ErrNoRecord or ErrNoPayload.
func NewDataAbsentError(op, tagUID string, cause error) *NFCError {
	return &NFCError{
		Code:    ErrCodeDataAbsent,
		Op:      op,
		TagUID:  tagUID,
		Message: "no data on tag",
		Cause:   cause,
	}
}

// NewNotWritableError creates an error for a read-only tag.
func NewNotWritableError(op, tagUID string) *NFCError {
	return &NFCError{
		Code:    ErrCodeNotWritable,
		Op:      op,
		TagUID:  tagUID,
		Message: "tag is not writable",
	}
}

// NewCapacityExceededError creates an error for a message larger than the tag.
func NewCapacityExceededError(op, tagUID string, size, maxSize int) *NFCError {
	return &NFCError{
		Code:    ErrCodeCapacityExceeded,
		Op:      op,
		TagUID:  tagUID,
		Message: fmt.Sprintf("message size %d exceeds tag capacity %d", size, maxSize),
	}
}

// NewFormatUnsupportedError creates an error for a tag that can neither hold
// NDEF data nor be formatted for it.
func NewFormatUnsupportedError(op, tagUID string, cause error) *NFCError {
	return &NFCError{
		Code:    ErrCodeFormatUnsupported,
		Op:      op,
		TagUID:  tagUID,
		Message: "tag does not support NDEF",
		Cause:   cause,
	}
}

// NewAdapterIOError wraps an opaque failure coming from the tag adapter.
func NewAdapterIOError(op string, cause error) *NFCError {
	return &NFCError{
		Code:    ErrCodeAdapterIO,
		Op:      op,
		Message: "adapter I/O failed",
		Cause:   cause,
	}
}

// NewArmConflictError creates an error for arming one operation while the
// other one is still armed.
func NewArmConflictError(op string, armed Operation) *NFCError {
	return &NFCError{
		Code:    ErrCodeArmConflict,
		Op:      op,
		Message: fmt.Sprintf("%s already armed", armed),
	}
}

// NewCanceledError creates an error for a request abandoned before a tag arrived.
func NewCanceledError(op string) *NFCError {
	return &NFCError{
		Code:    ErrCodeCanceled,
		Op:      op,
		Message: "request canceled",
	}
}

// GetErrorCode extracts the ErrorCode from an error if it's an NFCError.
// Returns 0 if the error is not an NFCError.
func GetErrorCode(err error) ErrorCode {
	var nfcErr *NFCError
	if errors.As(err, &nfcErr) {
		return nfcErr.Code
	}
	return 0
}

// HasCode reports whether err carries the given code anywhere in its chain.
func HasCode(err error, code ErrorCode) bool {
	return err != nil && errors.Is(err, &NFCError{Code: code})
}

// IsTagRemovedError checks if an error indicates the tag was removed.
func IsTagRemovedError(err error) bool {
	return HasCode(err, ErrCodeTagRemoved)
}

// IsTimeoutError checks if an error indicates an elapsed attempt deadline.
func IsTimeoutError(err error) bool {
	return HasCode(err, ErrCodeTimeout)
}

// IsCapabilityUnavailableError checks if the reader is missing or disabled.
func IsCapabilityUnavailableError(err error) bool {
	return HasCode(err, ErrCodeCapabilityUnavailable)
}

// IsDataAbsentError checks if a read found no message, record or payload.
func IsDataAbsentError(err error) bool {
	return HasCode(err, ErrCodeDataAbsent)
}

// WrapAdapterError normalises an error returned by an adapter call. NFCErrors
// and context errors pass through untouched; anything else becomes AdapterIO.
func WrapAdapterError(op string, err error) error {
	if err == nil {
		return nil
	}
	var nfcErr *NFCError
	if errors.As(err, &nfcErr) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return NewAdapterIOError(op, err)
}
