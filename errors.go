package sdspi

import "fmt"

// Kind identifies the class of failure an Error represents.
type Kind int

const (
	// ErrTransport indicates an error reported by the SPI peripheral.
	ErrTransport Kind = iota
	// ErrCantEnableCRC indicates CMD59 (CRC on/off) did not respond idle.
	ErrCantEnableCRC
	// ErrTimeoutReadBuffer indicates no data-start token arrived in time.
	ErrTimeoutReadBuffer
	// ErrTimeoutWaitNotBusy indicates the card never released the bus.
	ErrTimeoutWaitNotBusy
	// ErrTimeoutCommand indicates a command's R1 response never arrived, or
	// that CMD8 never returned a consistent interface-condition response
	// during acquisition. Cmd holds the command number that timed out.
	ErrTimeoutCommand
	// ErrTimeoutACommand indicates an application-specific command (ACMD41
	// during acquisition) never returned the ready R1 within its budget.
	// Cmd holds the ACMD number that timed out.
	ErrTimeoutACommand
	// ErrCmd58 indicates CMD58 (read OCR) returned a non-zero R1.
	ErrCmd58
	// ErrRegisterRead indicates the CSD register could not be read.
	ErrRegisterRead
	// ErrCRC indicates a CRC-16 mismatch on a received data payload.
	// Received and Computed hold the two values that disagreed.
	ErrCRC
	// ErrRead indicates a malformed data-read response (bad start token).
	ErrRead
	// ErrWrite indicates the card rejected a data write, or a post-write
	// status check failed.
	ErrWrite
	// ErrBadState indicates a multi-block session operation was attempted
	// in a state that does not support it.
	ErrBadState
	// ErrCardNotFound indicates acquisition exhausted its retry budget
	// without the card ever answering CMD0 with the idle state.
	ErrCardNotFound
	// ErrGpio indicates an error reported by the chip-select pin.
	ErrGpio
)

func (k Kind) String() string {
	switch k {
	case ErrTransport:
		return "transport error"
	case ErrCantEnableCRC:
		return "could not enable CRC"
	case ErrTimeoutReadBuffer:
		return "timeout waiting for data token"
	case ErrTimeoutWaitNotBusy:
		return "timeout waiting for card to be idle"
	case ErrTimeoutCommand:
		return "timeout waiting for command response"
	case ErrTimeoutACommand:
		return "timeout waiting for application command response"
	case ErrCmd58:
		return "CMD58 failed"
	case ErrRegisterRead:
		return "register read failed"
	case ErrCRC:
		return "CRC mismatch"
	case ErrRead:
		return "read error"
	case ErrWrite:
		return "write error"
	case ErrBadState:
		return "bad session state"
	case ErrCardNotFound:
		return "card not found"
	case ErrGpio:
		return "GPIO error"
	default:
		return "unknown error"
	}
}

// Error is the single error type returned by every exported operation in
// this package. It carries enough context (command number, CRC values) for
// a caller to log or map it, but offers no further textual detail.
type Error struct {
	Kind Kind

	// Cmd is set for ErrTimeoutCommand / ErrTimeoutACommand.
	Cmd byte

	// Received and Computed are set for ErrCRC.
	Received uint16
	Computed uint16
}

func (e *Error) Error() string {
	switch e.Kind {
	case ErrTimeoutCommand:
		return fmt.Sprintf("sdspi: timeout waiting for CMD%d response", e.Cmd)
	case ErrTimeoutACommand:
		return fmt.Sprintf("sdspi: timeout waiting for ACMD%d response", e.Cmd)
	case ErrCRC:
		return fmt.Sprintf("sdspi: CRC mismatch: card sent %#04x, computed %#04x", e.Received, e.Computed)
	default:
		return "sdspi: " + e.Kind.String()
	}
}

// Is reports whether target is an *Error with the same Kind, so callers can
// compare against the package-level sentinels below, for example
// errors.Is(err, sdspi.ErrCardNotFoundErr).
func (e *Error) Is(target error) bool {
	other, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == other.Kind
}

func newErr(kind Kind) *Error {
	return &Error{Kind: kind}
}

func newCmdTimeout(cmd byte) *Error {
	return &Error{Kind: ErrTimeoutCommand, Cmd: cmd}
}

func newACmdTimeout(cmd byte) *Error {
	return &Error{Kind: ErrTimeoutACommand, Cmd: cmd}
}

func newCRCErr(received, computed uint16) *Error {
	return &Error{Kind: ErrCRC, Received: received, Computed: computed}
}

// Sentinel errors for errors.Is comparisons against a fixed kind that carries
// no extra payload.
var (
	ErrTransportErr     = newErr(ErrTransport)
	ErrCantEnableCRCErr = newErr(ErrCantEnableCRC)
	ErrReadBufTimeout   = newErr(ErrTimeoutReadBuffer)
	ErrNotBusyTimeout   = newErr(ErrTimeoutWaitNotBusy)
	ErrCmd58Err         = newErr(ErrCmd58)
	ErrRegisterReadErr  = newErr(ErrRegisterRead)
	ErrReadErr          = newErr(ErrRead)
	ErrWriteErr         = newErr(ErrWrite)
	ErrBadStateErr      = newErr(ErrBadState)
	ErrCardNotFoundErr  = newErr(ErrCardNotFound)
	ErrGpioErr          = newErr(ErrGpio)
)
