// Package periphspi adapts a periph.io SPI port and GPIO pin to the sdspi
// Transport/ChipSelect/Delayer capabilities, for hosts accessed through
// periph.io/x/host (Linux spidev, FTDI MPSSE adapters, and similar).
package periphspi

import (
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"

	"github.com/sdspi/sdspi"
)

// OpenPort initializes the periph.io driver registry and opens the named SPI
// bus (pass "" to let periph.io pick the first available bus, for example
// Linux spidev or an attached FTDI MPSSE adapter). Callers that already run
// host.Init() themselves (e.g. because they also drive other periph.io
// peripherals) can call spireg.Open directly instead.
func OpenPort(busName string) (spi.PortCloser, error) {
	if _, err := host.Init(); err != nil {
		return nil, err
	}
	return spireg.Open(busName)
}

// Transport wraps a periph.io spi.Conn, obtained from an spi.Port's Connect
// method, as an sdspi.Transport.
type Transport struct {
	conn spi.Conn
}

// NewTransport connects port at freq (for example 400*physic.KiloHertz for
// the slow acquisition clock, then raised post-acquisition) in SPI mode 0,
// 8 bits per word, and wraps the resulting connection.
func NewTransport(port spi.Port, freq physic.Frequency) (*Transport, error) {
	conn, err := port.Connect(freq, spi.Mode0, 8)
	if err != nil {
		return nil, err
	}
	return &Transport{conn: conn}, nil
}

// Transfer implements sdspi.Transport.
func (t *Transport) Transfer(read, write []byte) error {
	return t.conn.Tx(write, read)
}

// Write implements sdspi.Transport.
func (t *Transport) Write(data []byte) error {
	return t.conn.Tx(data, nil)
}

// TransferInPlace implements sdspi.Transport.
func (t *Transport) TransferInPlace(buf []byte) error {
	return t.conn.Tx(buf, buf)
}

var _ sdspi.Transport = (*Transport)(nil)

// ChipSelect adapts a periph.io gpio.PinOut as an sdspi.ChipSelect, driving
// it active-low.
type ChipSelect struct {
	pin gpio.PinOut
}

// NewChipSelect wraps pin, an output driven low to select the card.
func NewChipSelect(pin gpio.PinOut) *ChipSelect {
	return &ChipSelect{pin: pin}
}

// SetLow implements sdspi.ChipSelect.
func (c *ChipSelect) SetLow() error {
	return c.pin.Out(gpio.Low)
}

// SetHigh implements sdspi.ChipSelect.
func (c *ChipSelect) SetHigh() error {
	return c.pin.Out(gpio.High)
}

var _ sdspi.ChipSelect = (*ChipSelect)(nil)

// Delayer is a time.Sleep-backed sdspi.Delayer, suitable for any host
// running a real operating system scheduler.
type Delayer struct{}

// DelayUS implements sdspi.Delayer.
func (Delayer) DelayUS(us uint32) {
	time.Sleep(time.Duration(us) * time.Microsecond)
}

var _ sdspi.Delayer = Delayer{}
