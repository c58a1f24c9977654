// Package gobotspi adapts a Gobot SPI driver and a Gobot adaptor's digital
// output to the sdspi Transport/ChipSelect/Delayer capabilities, for hosts reached
// through a gobot.io/x/gobot/v2 platform adaptor (Raspberry Pi, BeagleBone,
// firmata boards, and similar).
package gobotspi

import (
	"fmt"
	"time"

	"gobot.io/x/gobot/v2"
	gspi "gobot.io/x/gobot/v2/drivers/spi"

	"github.com/sdspi/sdspi"
)

// spiOps is the subset of a Gobot SPI connection this package needs: a
// combined write-then-read transaction, and a write-only transaction.
type spiOps interface {
	ReadCommandData(command []byte, data []byte) error
	WriteBytes(data []byte) error
}

// Transport wraps a Gobot SPI driver bound to a bus and chip-select line.
type Transport struct {
	driver *gspi.Driver
}

// NewTransport returns a Transport bound to adaptor's SPI bus, in mode 0 at
// speedHz (0 uses the driver's default).
func NewTransport(adaptor gspi.Connector, bus string, speedHz int64) (*Transport, error) {
	d := gspi.NewDriver(adaptor, bus)
	d.SetMode(0)
	if speedHz > 0 {
		d.SetSpeed(speedHz)
	}
	if err := d.Start(); err != nil {
		return nil, err
	}
	return &Transport{driver: d}, nil
}

func (t *Transport) ops() (spiOps, error) {
	conn := t.driver.Connection()
	ops, ok := conn.(spiOps)
	if !ok {
		return nil, fmt.Errorf("gobotspi: SPI connection does not support required operations")
	}
	return ops, nil
}

// Transfer implements sdspi.Transport.
func (t *Transport) Transfer(read, write []byte) error {
	ops, err := t.ops()
	if err != nil {
		return err
	}
	return ops.ReadCommandData(write, read)
}

// Write implements sdspi.Transport.
func (t *Transport) Write(data []byte) error {
	ops, err := t.ops()
	if err != nil {
		return err
	}
	return ops.WriteBytes(data)
}

// TransferInPlace implements sdspi.Transport.
func (t *Transport) TransferInPlace(buf []byte) error {
	ops, err := t.ops()
	if err != nil {
		return err
	}
	out := make([]byte, len(buf))
	copy(out, buf)
	return ops.ReadCommandData(out, buf)
}

// Close releases the underlying SPI connection.
func (t *Transport) Close() error {
	return t.driver.Halt()
}

var _ sdspi.Transport = (*Transport)(nil)

// ChipSelect adapts a Gobot adaptor's digital output as an sdspi.ChipSelect,
// addressed by pin label the way Gobot's own board adaptors expect.
type ChipSelect struct {
	adaptor gobot.DigitalWriter
	pin     string
}

// NewChipSelect wraps pin on adaptor, driven low to select the card.
func NewChipSelect(adaptor gobot.DigitalWriter, pin string) *ChipSelect {
	return &ChipSelect{adaptor: adaptor, pin: pin}
}

// SetLow implements sdspi.ChipSelect.
func (c *ChipSelect) SetLow() error {
	return c.adaptor.DigitalWrite(c.pin, 0)
}

// SetHigh implements sdspi.ChipSelect.
func (c *ChipSelect) SetHigh() error {
	return c.adaptor.DigitalWrite(c.pin, 1)
}

var _ sdspi.ChipSelect = (*ChipSelect)(nil)

// Delayer is a time.Sleep-backed sdspi.Delayer.
type Delayer struct{}

// DelayUS implements sdspi.Delayer.
func (Delayer) DelayUS(us uint32) {
	time.Sleep(time.Duration(us) * time.Microsecond)
}

var _ sdspi.Delayer = Delayer{}
