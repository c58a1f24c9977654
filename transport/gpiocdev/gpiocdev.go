// Package gpiocdev adapts Linux GPIO character-device lines, opened via
// github.com/warthog618/go-gpiocdev, to the sdspi Transport/ChipSelect/
// Delayer capabilities. It bit-bangs SPI mode 0 over three lines (clock,
// MOSI, MISO), for boards with no spidev kernel driver wired to the card
// socket but free GPIO lines instead.
package gpiocdev

import (
	"time"

	"github.com/warthog618/go-gpiocdev"

	"github.com/sdspi/sdspi"
)

// Transport bit-bangs SPI mode 0 (CPOL=0, CPHA=0) over three requested
// lines.
type Transport struct {
	clk  *gpiocdev.Line
	mosi *gpiocdev.Line
	miso *gpiocdev.Line
}

// NewTransport requests clk/mosi as outputs and miso as an input on chip,
// at the given line offsets.
func NewTransport(chip *gpiocdev.Chip, clkOffset, mosiOffset, misoOffset int) (*Transport, error) {
	clk, err := chip.RequestLine(clkOffset, gpiocdev.AsOutput(0))
	if err != nil {
		return nil, err
	}
	mosi, err := chip.RequestLine(mosiOffset, gpiocdev.AsOutput(0))
	if err != nil {
		clk.Close()
		return nil, err
	}
	miso, err := chip.RequestLine(misoOffset, gpiocdev.AsInput)
	if err != nil {
		clk.Close()
		mosi.Close()
		return nil, err
	}
	return &Transport{clk: clk, mosi: mosi, miso: miso}, nil
}

// Close releases the three requested lines.
func (t *Transport) Close() error {
	t.clk.Close()
	t.mosi.Close()
	t.miso.Close()
	return nil
}

func (t *Transport) clockByte(out byte) (byte, error) {
	var in byte
	for i := 0; i < 8; i++ {
		bit := 0
		if out&0x80 != 0 {
			bit = 1
		}
		out <<= 1
		if err := t.mosi.SetValue(bit); err != nil {
			return 0, err
		}
		if err := t.clk.SetValue(1); err != nil {
			return 0, err
		}
		v, err := t.miso.Value()
		if err != nil {
			return 0, err
		}
		in <<= 1
		in |= byte(v)
		if err := t.clk.SetValue(0); err != nil {
			return 0, err
		}
	}
	return in, nil
}

// Transfer implements sdspi.Transport.
func (t *Transport) Transfer(read, write []byte) error {
	for i, b := range write {
		in, err := t.clockByte(b)
		if err != nil {
			return err
		}
		if i < len(read) {
			read[i] = in
		}
	}
	return nil
}

// Write implements sdspi.Transport.
func (t *Transport) Write(data []byte) error {
	for _, b := range data {
		if _, err := t.clockByte(b); err != nil {
			return err
		}
	}
	return nil
}

// TransferInPlace implements sdspi.Transport.
func (t *Transport) TransferInPlace(buf []byte) error {
	for i, b := range buf {
		in, err := t.clockByte(b)
		if err != nil {
			return err
		}
		buf[i] = in
	}
	return nil
}

var _ sdspi.Transport = (*Transport)(nil)

// ChipSelect adapts a requested gpiocdev output line as an sdspi.ChipSelect.
type ChipSelect struct {
	line *gpiocdev.Line
}

// NewChipSelect requests offset on chip as an output, idling high.
func NewChipSelect(chip *gpiocdev.Chip, offset int) (*ChipSelect, error) {
	line, err := chip.RequestLine(offset, gpiocdev.AsOutput(1))
	if err != nil {
		return nil, err
	}
	return &ChipSelect{line: line}, nil
}

// SetLow implements sdspi.ChipSelect.
func (c *ChipSelect) SetLow() error {
	return c.line.SetValue(0)
}

// SetHigh implements sdspi.ChipSelect.
func (c *ChipSelect) SetHigh() error {
	return c.line.SetValue(1)
}

// Close releases the requested line.
func (c *ChipSelect) Close() error {
	return c.line.Close()
}

var _ sdspi.ChipSelect = (*ChipSelect)(nil)

// Delayer is a time.Sleep-backed sdspi.Delayer.
type Delayer struct{}

// DelayUS implements sdspi.Delayer.
func (Delayer) DelayUS(us uint32) {
	time.Sleep(time.Duration(us) * time.Microsecond)
}

var _ sdspi.Delayer = Delayer{}
