package sdspi

import "github.com/sdspi/sdspi/internal/bitfield"

// csdLen is the fixed size of the Card Specific Data register, read as a
// single 16-byte data block via CMD9.
const csdLen = 16

// Csd is the parsed Card Specific Data register. It comes in two wire
// layouts, distinguished by the top two bits of the first byte (the
// CSD_STRUCTURE field); V1 is used by standard-capacity cards (SD1/SD2), V2
// by high-capacity cards (SDHC).
type Csd interface {
	// CardCapacityBlocks returns the card's usable capacity in 512-byte
	// blocks.
	CardCapacityBlocks() uint32
	// CardCapacityBytes returns the card's usable capacity in bytes.
	CardCapacityBytes() uint64
	// EraseSingleBlockEnabled reports whether the card supports erasing a
	// single block (as opposed to only erase-group-sized units).
	EraseSingleBlockEnabled() bool
}

// CsdV1 is the CSD layout used by standard-capacity SD1/SD2 cards.
type CsdV1 struct {
	data [csdLen]byte
}

func (c *CsdV1) readBlLen() byte {
	return bitfield.Get(c.data[5], 0, 0x0F)
}

func (c *CsdV1) cSize() uint32 {
	b1 := uint32(bitfield.Get(c.data[6], 0, 0x03))
	b2 := uint32(c.data[7])
	b3 := uint32(bitfield.Get(c.data[8], 6, 0x03))
	return b3 | (b2 << 2) | (b1 << 10)
}

func (c *CsdV1) cSizeMult() uint32 {
	b1 := uint32(bitfield.Get(c.data[9], 0, 0x03))
	b2 := uint32(bitfield.Get(c.data[10], 7, 0x01))
	return b2 | (b1 << 1)
}

// CardCapacityBlocks implements Csd.
func (c *CsdV1) CardCapacityBlocks() uint32 {
	blockLen := uint32(1) << c.readBlLen()
	mult := uint32(1) << (c.cSizeMult() + 2)
	blocksLen := (c.cSize() + 1) * mult
	return (blocksLen * blockLen) / BlockSize
}

// CardCapacityBytes implements Csd.
func (c *CsdV1) CardCapacityBytes() uint64 {
	return uint64(c.CardCapacityBlocks()) * BlockSize
}

// EraseSingleBlockEnabled implements Csd.
func (c *CsdV1) EraseSingleBlockEnabled() bool {
	return bitfield.Get(c.data[10], 6, 0x01) != 0
}

// CsdV2 is the CSD layout used by high-capacity SDHC cards.
type CsdV2 struct {
	data [csdLen]byte
}

func (c *CsdV2) cSize() uint32 {
	b1 := uint32(bitfield.Get(c.data[7], 0, 0x3F))
	b2 := uint32(c.data[8])
	b3 := uint32(c.data[9])
	return b3 | (b2 << 8) | (b1 << 16)
}

// CardCapacityBlocks implements Csd.
func (c *CsdV2) CardCapacityBlocks() uint32 {
	return (c.cSize() + 1) * 1024
}

// CardCapacityBytes implements Csd.
func (c *CsdV2) CardCapacityBytes() uint64 {
	return uint64(c.CardCapacityBlocks()) * BlockSize
}

// EraseSingleBlockEnabled implements Csd.
func (c *CsdV2) EraseSingleBlockEnabled() bool {
	return bitfield.Get(c.data[10], 6, 0x01) != 0
}
