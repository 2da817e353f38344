package nfc

import "sync"

// ArmingState records whether the next discovered tag should be read,
// written, or ignored. Consume is the only way a session takes a request,
// so checking and clearing a flag happen under one lock.
type ArmingState struct {
	mu               sync.Mutex
	readyForRead     bool
	readyForWrite    bool
	capabilityAbsent bool

	// readRearmed is set while the read flag is only held by continuous mode.
	// A write may take over such a flag without a conflict.
	readRearmed bool
}

// ArmingSnapshot is a point-in-time copy of ArmingState.
type ArmingSnapshot struct {
	ReadyForRead     bool `json:"readyForRead"`
	ReadyForWrite    bool `json:"readyForWrite"`
	CapabilityAbsent bool `json:"capabilityAbsent"`
}

// NewArmingState returns a disarmed state with the capability assumed present.
func NewArmingState() *ArmingState {
	return &ArmingState{}
}

// ArmForRead sets the read flag. Arming twice is the same as arming once.
func (a *ArmingState) ArmForRead() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.capabilityAbsent {
		return NewCapabilityUnavailableError("armForRead", nil)
	}
	if a.readyForWrite {
		return NewArmConflictError("armForRead", OpWrite)
	}
	a.readyForRead = true
	a.readRearmed = false
	return nil
}

// ArmForWrite sets the write flag. Arming twice is the same as arming once.
// A read flag left by continuous mode does not conflict: the write is taken
// first and continuous reading resumes after it.
func (a *ArmingState) ArmForWrite() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.capabilityAbsent {
		return NewCapabilityUnavailableError("armForWrite", nil)
	}
	if a.readyForRead && !a.readRearmed {
		return NewArmConflictError("armForWrite", OpRead)
	}
	a.readyForWrite = true
	return nil
}

// Disarm clears both flags.
func (a *ArmingState) Disarm() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.readyForRead = false
	a.readyForWrite = false
	a.readRearmed = false
}

// SetCapabilityAbsent records the outcome of a capability check. Marking the
// capability absent also disarms.
func (a *ArmingState) SetCapabilityAbsent(absent bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.capabilityAbsent = absent
	if absent {
		a.readyForRead = false
		a.readyForWrite = false
		a.readRearmed = false
	}
}

// Consume takes the armed request, if any. Write wins over read. Both flags
// are cleared, except that continuous mode leaves the read flag set after a
// read is consumed, and keeps it through a write that took over from it.
func (a *ArmingState) Consume(continuous bool) Operation {
	a.mu.Lock()
	defer a.mu.Unlock()
	switch {
	case a.readyForWrite:
		a.readyForWrite = false
		a.readyForRead = continuous && a.readRearmed
		a.readRearmed = a.readyForRead
		return OpWrite
	case a.readyForRead:
		a.readyForRead = continuous
		a.readRearmed = continuous
		return OpRead
	default:
		return OpNone
	}
}

// Armed returns the operation currently armed, or OpNone.
func (a *ArmingState) Armed() Operation {
	a.mu.Lock()
	defer a.mu.Unlock()
	switch {
	case a.readyForWrite:
		return OpWrite
	case a.readyForRead:
		return OpRead
	default:
		return OpNone
	}
}

// Snapshot returns a copy of the flags.
func (a *ArmingState) Snapshot() ArmingSnapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	return ArmingSnapshot{
		ReadyForRead:     a.readyForRead,
		ReadyForWrite:    a.readyForWrite,
		CapabilityAbsent: a.capabilityAbsent,
	}
}
