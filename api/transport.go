// Package api defines the public contracts between the chardev session core
// and the asynchronous bulk transports that carry its transfers.
package api

import "errors"

// Direction selects one of the two independent transfer channels.
type Direction uint8

const (
	// DirIn carries device-to-host transfers.
	DirIn Direction = iota
	// DirOut carries host-to-device transfers.
	DirOut
)

func (d Direction) String() string {
	switch d {
	case DirIn:
		return "in"
	case DirOut:
		return "out"
	}
	return "unknown"
}

// Status is the completion status of a Transfer.
type Status int32

const (
	// StatusOK means the transfer completed and Actual holds the byte count.
	StatusOK Status = iota
	// StatusCanceled means the transfer was deliberately aborted via Cancel.
	StatusCanceled
	// StatusReset means the transfer was flushed by a local reset action.
	StatusReset
	// StatusShutdown means the transport went away while the transfer was
	// pending (detach, interface removal).
	StatusShutdown
	// StatusStall means the endpoint signaled a halt condition.
	StatusStall
	// StatusNoMem means the transport ran out of resources mid-transfer.
	StatusNoMem
	// StatusIOError covers every other transport failure.
	StatusIOError
)

// Benign reports whether s is an expected byproduct of teardown rather than
// a failure. Benign completions are never surfaced to callers.
func (s Status) Benign() bool {
	return s == StatusCanceled || s == StatusReset || s == StatusShutdown
}

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusCanceled:
		return "canceled"
	case StatusReset:
		return "reset"
	case StatusShutdown:
		return "shutdown"
	case StatusStall:
		return "stall"
	case StatusNoMem:
		return "no memory"
	case StatusIOError:
		return "i/o error"
	}
	return "unknown"
}

// Transfer is one asynchronous request unit carrying a bounded chunk of
// bytes in one direction.
//
// The submitter owns Buf until Complete has run. For DirIn transfers the
// transport fills Buf and sets Actual; for DirOut it consumes Buf. Private
// is opaque to the transport and carried through to the completion.
type Transfer struct {
	Dir      Direction
	Endpoint uint8
	Buf      []byte

	// Completion results, valid once Complete is invoked.
	Status Status
	Actual int

	// Complete is invoked exactly once per accepted Submit, from the
	// transport's own execution context. It must not block and must not
	// call back into Submit.
	Complete func(*Transfer)

	Private interface{}
}

// ErrTransportNoMem is returned by Submit when the transport cannot allocate
// resources for the transfer. Callers may back off and retry.
var ErrTransportNoMem = errors.New("transport: out of memory")

// ErrTransportDown is returned by Submit and Activate once the transport has
// been torn down.
var ErrTransportDown = errors.New("transport: device detached")

// Transport is an asynchronous bulk-transfer channel pair.
//
// Submit either returns an error (in which case Complete is never invoked)
// or accepts the transfer and later invokes Complete exactly once. Cancel is
// a synchronous kill: when it returns, a pending transfer has completed with
// StatusCanceled and its callback has finished; canceling a transfer that is
// not pending is a no-op.
type Transport interface {
	// Activate acquires one usage/power token, keeping the device live.
	Activate() error
	// Deactivate releases one usage/power token.
	Deactivate()

	Submit(t *Transfer) error
	Cancel(t *Transfer)

	// MaxTransfer reports the largest payload a single transfer may carry
	// in the given direction. Zero means the direction does not exist.
	MaxTransfer(dir Direction) int
}
