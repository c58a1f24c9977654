package sdspi

import "testing"

func TestCRC7(t *testing.T) {
	// CMD0 (GO_IDLE_STATE, arg 0) is the one frame every SD card
	// implementation agrees on the CRC for, since it has to work before CRC
	// checking is even negotiated.
	frame := []byte{0x40, 0x00, 0x00, 0x00, 0x00}
	if got := crc7(frame); got != 0x95 {
		t.Errorf("crc7(CMD0 frame) = %#02x, want 0x95", got)
	}
}

func TestCRC16(t *testing.T) {
	if got := crc16(make([]byte, BlockSize)); got != 0 {
		t.Errorf("crc16(zero block) = %#04x, want 0x0000", got)
	}

	// CRC-16/XMODEM check value (poly 0x1021, init 0x0000): the standard
	// reference string "123456789".
	check := []byte("123456789")
	if got := crc16(check); got != 0x31C3 {
		t.Errorf("crc16(%q) = %#04x, want 0x31c3", check, got)
	}
}
