package sdspi

// Command opcodes understood by an SD card in SPI mode.
//
// See Part 1 Physical Layer Simplified Specification v9.00, section 7.3.1.
const (
	CMD0  = 0  // GO_IDLE_STATE - reset the card
	CMD8  = 8  // SEND_IF_COND - send interface condition
	CMD9  = 9  // SEND_CSD - read the Card Specific Data register
	CMD12 = 12 // STOP_TRANSMISSION - end a multi-block read
	CMD13 = 13 // SEND_STATUS - read the card status
	CMD17 = 17 // READ_SINGLE_BLOCK
	CMD18 = 18 // READ_MULTIPLE_BLOCK
	CMD24 = 24 // WRITE_BLOCK
	CMD25 = 25 // WRITE_MULTIPLE_BLOCK
	CMD55 = 55 // APP_CMD - next command is application-specific
	CMD58 = 58 // READ_OCR
	CMD59 = 59 // CRC_ON_OFF

	ACMD23 = 23 // SET_WR_BLOCK_ERASE_COUNT - pre-erase hint
	ACMD41 = 41 // SD_SEND_OP_COND
)

// Data tokens mark the start/end of a data phase on the wire.
const (
	// DataStartBlock precedes a single block read/write, or each block of a
	// multi-block read.
	DataStartBlock = 0xFE
	// WriteMultipleToken precedes each block of a multi-block write.
	WriteMultipleToken = 0xFC
	// StopTranToken ends a multi-block write.
	StopTranToken = 0xFD
)

// R1 response bits.
const (
	R1IdleState      = 0x01
	R1ReadyState     = 0x00
	R1IllegalCommand = 0x04
)

// DataResMask / DataResAccepted decode the one-byte data-response token that
// follows a written data block.
const (
	DataResMask     = 0x1F
	DataResAccepted = 0x05
)
