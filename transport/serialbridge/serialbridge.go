// Package serialbridge talks to a card over a USB-serial bridge running a
// small framed protocol on the far end: a microcontroller (e.g. an Arduino)
// wired to the card's SPI and CS lines, relaying commands from the host.
// This is the transport of choice when the host running this package has no
// SPI bus of its own reachable from Go, only a serial port.
//
// Wire framing, one command per line turnaround:
//
//	't' len byte... -> full-duplex transfer; bridge replies with len bytes
//	'w' len byte... -> write-only; bridge replies with a single 0x00 ack
//	'l'             -> assert CS low; bridge replies with a single 0x00 ack
//	'h'             -> release CS high; bridge replies with a single 0x00 ack
package serialbridge

import (
	"fmt"
	"syscall"
	"time"

	"go.bug.st/serial"

	"github.com/sdspi/sdspi"
)

// resetDelay accounts for boards (Arduino Nano and similar) that reset on
// DTR assertion when the serial port opens, and spend a few seconds after
// reset ignoring the line.
const resetDelay = 2 * time.Second

const (
	cmdTransfer = 't'
	cmdWrite    = 'w'
	cmdCSLow    = 'l'
	cmdCSHigh   = 'h'
)

const readTimeout = 2 * time.Second

// Bridge is a transport, chip-select and delay source all multiplexed over
// a single serial connection to a bridge microcontroller.
type Bridge struct {
	port serial.Port
}

// Open opens deviceName at baudRate and waits out the bridge's reset delay.
func Open(deviceName string, baudRate int) (*Bridge, error) {
	mode := &serial.Mode{BaudRate: baudRate, DataBits: 8,
		Parity: serial.NoParity, StopBits: serial.OneStopBit}
	port, err := serial.Open(deviceName, mode)
	if err != nil {
		return nil, err
	}
	time.Sleep(resetDelay)
	return &Bridge{port: port}, nil
}

// Close closes the serial connection.
func (b *Bridge) Close() error {
	return b.port.Close()
}

func isRetryableSyscallError(err error) bool {
	const eIntr = 4
	if errno, ok := err.(syscall.Errno); ok {
		return errno == eIntr
	}
	return false
}

func (b *Bridge) writeBytes(out []byte) error {
	var n int
	var err error
	for {
		n, err = b.port.Write(out)
		if !isRetryableSyscallError(err) {
			break
		}
		if n != 0 {
			panic("bytes written despite EINTR")
		}
	}
	if err != nil {
		return err
	}
	if n != len(out) {
		return fmt.Errorf("serialbridge: write didn't consume all the bytes")
	}
	return nil
}

func (b *Bridge) readBytes(in []byte) error {
	b.port.SetReadTimeout(readTimeout)
	got := 0
	for got < len(in) {
		var n int
		var err error
		for {
			n, err = b.port.Read(in[got:])
			if !isRetryableSyscallError(err) {
				break
			}
			if n != 0 {
				panic("bytes returned despite EINTR")
			}
		}
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("serialbridge: no response from bridge after %v", readTimeout)
		}
		got += n
	}
	return nil
}

func (b *Bridge) ack() error {
	var reply [1]byte
	if err := b.readBytes(reply[:]); err != nil {
		return err
	}
	if reply[0] != 0x00 {
		return fmt.Errorf("serialbridge: bridge nacked command: %#02x", reply[0])
	}
	return nil
}

// lenHeader builds a command byte followed by a big-endian uint16 length, so
// a full 512-byte block transfer fits in one frame.
func lenHeader(cmd byte, n int) []byte {
	return []byte{cmd, byte(n >> 8), byte(n)}
}

// Transfer implements sdspi.Transport.
func (b *Bridge) Transfer(read, write []byte) error {
	if err := b.writeBytes(lenHeader(cmdTransfer, len(write))); err != nil {
		return err
	}
	if err := b.writeBytes(write); err != nil {
		return err
	}
	reply := make([]byte, len(write))
	if err := b.readBytes(reply); err != nil {
		return err
	}
	copy(read, reply)
	return nil
}

// Write implements sdspi.Transport.
func (b *Bridge) Write(data []byte) error {
	if err := b.writeBytes(lenHeader(cmdWrite, len(data))); err != nil {
		return err
	}
	if err := b.writeBytes(data); err != nil {
		return err
	}
	return b.ack()
}

// TransferInPlace implements sdspi.Transport.
func (b *Bridge) TransferInPlace(buf []byte) error {
	if err := b.writeBytes(lenHeader(cmdTransfer, len(buf))); err != nil {
		return err
	}
	if err := b.writeBytes(buf); err != nil {
		return err
	}
	return b.readBytes(buf)
}

var _ sdspi.Transport = (*Bridge)(nil)

// SetLow implements sdspi.ChipSelect.
func (b *Bridge) SetLow() error {
	if err := b.writeBytes([]byte{cmdCSLow}); err != nil {
		return err
	}
	return b.ack()
}

// SetHigh implements sdspi.ChipSelect.
func (b *Bridge) SetHigh() error {
	if err := b.writeBytes([]byte{cmdCSHigh}); err != nil {
		return err
	}
	return b.ack()
}

var _ sdspi.ChipSelect = (*Bridge)(nil)

// DelayUS implements sdspi.Delayer with a local sleep; the bridge protocol
// has no remote delay command, so pacing happens host-side.
func (b *Bridge) DelayUS(us uint32) {
	time.Sleep(time.Duration(us) * time.Microsecond)
}

var _ sdspi.Delayer = (*Bridge)(nil)
