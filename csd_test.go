package sdspi

import "testing"

func TestCsdV1CardCapacity(t *testing.T) {
	var csd CsdV1
	csd.data[5] = 0x09       // READ_BL_LEN = 9 -> 512-byte blocks
	csd.data[6] = 0x00       // C_SIZE bits 11:10 = 0
	csd.data[7] = 0xFF       // C_SIZE bits 9:2
	csd.data[8] = 0xC0       // C_SIZE bits 1:0 = 3 (in bits 7:6)
	csd.data[9] = 0x02       // C_SIZE_MULT bits 2:1 = 2
	csd.data[10] = 0x40      // C_SIZE_MULT bit 0 = 0; ERASE_BLK_EN = 1 (bit 6)

	if got, want := csd.CardCapacityBlocks(), uint32(65536); got != want {
		t.Errorf("CardCapacityBlocks() = %d, want %d", got, want)
	}
	if got, want := csd.CardCapacityBytes(), uint64(65536)*BlockSize; got != want {
		t.Errorf("CardCapacityBytes() = %d, want %d", got, want)
	}
	if !csd.EraseSingleBlockEnabled() {
		t.Error("EraseSingleBlockEnabled() = false, want true")
	}
}

func TestCsdV2CardCapacity(t *testing.T) {
	var csd CsdV2
	csd.data[7] = 0x00 // C_SIZE bits 21:16 = 0
	csd.data[8] = 0x03 // C_SIZE bits 15:8
	csd.data[9] = 0xE8 // C_SIZE bits 7:0; full C_SIZE = 1000
	csd.data[10] = 0x40

	if got, want := csd.CardCapacityBlocks(), uint32(1001)*1024; got != want {
		t.Errorf("CardCapacityBlocks() = %d, want %d", got, want)
	}
	if got, want := csd.CardCapacityBytes(), uint64(1001)*1024*BlockSize; got != want {
		t.Errorf("CardCapacityBytes() = %d, want %d", got, want)
	}
	if !csd.EraseSingleBlockEnabled() {
		t.Error("EraseSingleBlockEnabled() = false, want true")
	}
}
