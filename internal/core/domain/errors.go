package domain

import (
	"errors"
	"fmt"
)

// DomainError represents a business domain error with a structured
// error code. Codes follow the form MS-<AREA>-<NNNN>.
type DomainError struct {
	Code    string // Error code (e.g., "MS-PEER-4040")
	Message string // Human-readable message
	Details string // Optional additional details
	Cause   error  // Underlying error (if any)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Unwrap() support.
func (e *DomainError) Unwrap() error {
	return e.Cause
}

// Is implements errors.Is() support; two DomainErrors compare equal
// by code.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// NewDomainError creates a new DomainError with the given code and message.
func NewDomainError(code, message string) *DomainError {
	return &DomainError{Code: code, Message: message}
}

// WithDetails returns a copy of the error with additional details.
func (e *DomainError) WithDetails(details string) *DomainError {
	return &DomainError{
		Code:    e.Code,
		Message: e.Message,
		Details: details,
		Cause:   e.Cause,
	}
}

// WithCause returns a copy of the error wrapping cause.
func (e *DomainError) WithCause(cause error) *DomainError {
	return &DomainError{
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
		Cause:   cause,
	}
}

// Sentinel errors shared across the module.
var (
	// ErrPeerNotFound is returned when a peer id is not registered.
	ErrPeerNotFound = NewDomainError("MS-PEER-4040", "peer not found")

	// ErrRegistryFull is returned when the peer registry is at capacity.
	ErrRegistryFull = NewDomainError("MS-PEER-4090", "peer registry full")

	// ErrPeerDisconnected is returned when an operation targets a peer
	// whose session has already ended. Sessions never leave the
	// Disconnected state.
	ErrPeerDisconnected = NewDomainError("MS-PEER-4100", "peer disconnected")

	// ErrPeerUnreachable is surfaced when a reliable message exhausts
	// its retry budget.
	ErrPeerUnreachable = NewDomainError("MS-PEER-5030", "peer unreachable")

	// ErrNameInvalid is returned for empty or over-long display names.
	ErrNameInvalid = NewDomainError("MS-PEER-4220", "invalid display name")

	// ErrEntityNotFound is returned when an entity id is not in the table.
	ErrEntityNotFound = NewDomainError("MS-ENT-4040", "entity not found")

	// ErrNotOwner is returned when a peer submits input for an entity
	// it does not own.
	ErrNotOwner = NewDomainError("MS-ENT-4030", "peer does not own entity")

	// ErrMalformedPacket is returned by decoders for truncated or
	// otherwise unparseable packets.
	ErrMalformedPacket = NewDomainError("MS-WIRE-4000", "malformed packet")

	// ErrVersionMismatch is returned for packets carrying an unknown
	// protocol version.
	ErrVersionMismatch = NewDomainError("MS-WIRE-4260", "protocol version mismatch")

	// ErrPayloadTooLarge is returned when an encode would exceed the
	// maximum datagram size.
	ErrPayloadTooLarge = NewDomainError("MS-WIRE-4130", "payload too large")

	// ErrRateLimited is returned when a channel drops a message under
	// flood control.
	ErrRateLimited = NewDomainError("MS-CHAN-4290", "rate limited")

	// ErrClosed is returned by components after shutdown.
	ErrClosed = errors.New("meshsync: closed")
)
