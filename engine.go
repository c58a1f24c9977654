package sdspi

// engine owns the SPI transport, chip-select pin, delay source and
// negotiated card type, and implements the SD/SPI protocol state machine
// described in the SD Physical Layer Simplified Specification section 7.
//
// All methods require exclusive access; the owning SdCard serializes calls
// with a mutex (see card.go).
type engine struct {
	spi     Transport
	cs      ChipSelect
	delayer Delayer

	cardType CardType // CardTypeUnknown until acquire succeeds
	options  AcquireOpts

	trace Tracer
}

func newEngine(spi Transport, cs ChipSelect, delayer Delayer, options AcquireOpts) *engine {
	return &engine{
		spi:     spi,
		cs:      cs,
		delayer: delayer,
		options: options,
		trace:   noopTracer,
	}
}

// --- raw transport wrappers -------------------------------------------------

func (e *engine) csLow() error {
	if err := e.cs.SetLow(); err != nil {
		return newErr(ErrGpio)
	}
	return nil
}

func (e *engine) csHigh() error {
	if err := e.cs.SetHigh(); err != nil {
		return newErr(ErrGpio)
	}
	return nil
}

// transferByte sends out and returns whatever comes back on MISO.
func (e *engine) transferByte(out byte) (byte, error) {
	read := [1]byte{}
	if err := e.spi.Transfer(read[:], []byte{out}); err != nil {
		return 0, newErr(ErrTransport)
	}
	return read[0], nil
}

// readByte clocks out 0xFF and returns whatever the card sends back.
func (e *engine) readByte() (byte, error) {
	return e.transferByte(0xFF)
}

// writeByte sends out and ignores whatever comes back.
func (e *engine) writeByte(out byte) error {
	_, err := e.transferByte(out)
	return err
}

func (e *engine) writeBytes(out []byte) error {
	if err := e.spi.Write(out); err != nil {
		return newErr(ErrTransport)
	}
	return nil
}

func (e *engine) transferBytes(buf []byte) error {
	if err := e.spi.TransferInPlace(buf); err != nil {
		return newErr(ErrTransport)
	}
	return nil
}

// waitNotBusy spins reading bytes until the card returns 0xFF, or the
// budget is exhausted.
func (e *engine) waitNotBusy(budget delayBudget) error {
	for {
		s, err := e.readByte()
		if err != nil {
			return err
		}
		if s == 0xFF {
			return nil
		}
		if err := budget.tick(e.delayer, newErr(ErrTimeoutWaitNotBusy)); err != nil {
			return err
		}
	}
}

// --- commands ----------------------------------------------------------

// cardCommand sends a 6-byte command frame and returns the R1 response.
func (e *engine) cardCommand(cmd byte, arg uint32) (byte, error) {
	if cmd != CMD0 && cmd != CMD12 {
		if err := e.waitNotBusy(newCommandBudget()); err != nil {
			return 0, err
		}
	}

	buf := [6]byte{
		0x40 | cmd,
		byte(arg >> 24),
		byte(arg >> 16),
		byte(arg >> 8),
		byte(arg),
		0,
	}
	buf[5] = crc7(buf[0:5])

	if err := e.writeBytes(buf[:]); err != nil {
		return 0, err
	}

	if cmd == CMD12 {
		// Discard the stuff byte that follows a stop-transmission command.
		if _, err := e.readByte(); err != nil {
			return 0, err
		}
	}

	budget := newCommandBudget()
	for {
		result, err := e.readByte()
		if err != nil {
			return 0, err
		}
		if result&0x80 == 0 {
			return result, nil
		}
		if err := budget.tick(e.delayer, newCmdTimeout(cmd)); err != nil {
			return 0, err
		}
	}
}

// cardAcmd sends CMD55 followed by the requested application-specific
// command, and returns the second command's R1.
func (e *engine) cardAcmd(cmd byte, arg uint32) (byte, error) {
	if _, err := e.cardCommand(CMD55, 0); err != nil {
		return 0, err
	}
	return e.cardCommand(cmd, arg)
}

// --- data phase ----------------------------------------------------------

// readData reads a framed data block: start token, payload, two CRC bytes.
func (e *engine) readData(buffer []byte) error {
	budget := newReadBudget()
	var status byte
	for {
		s, err := e.readByte()
		if err != nil {
			return err
		}
		if s != 0xFF {
			status = s
			break
		}
		if err := budget.tick(e.delayer, newErr(ErrTimeoutReadBuffer)); err != nil {
			return err
		}
	}

	if status != DataStartBlock {
		return newErr(ErrRead)
	}

	for i := range buffer {
		buffer[i] = 0xFF
	}
	if err := e.transferBytes(buffer); err != nil {
		return err
	}

	crcBytes := [2]byte{0xFF, 0xFF}
	if err := e.transferBytes(crcBytes[:]); err != nil {
		return err
	}

	if e.options.UseCRC {
		received := uint16(crcBytes[0])<<8 | uint16(crcBytes[1])
		computed := crc16(buffer)
		if received != computed {
			return newCRCErr(received, computed)
		}
	}

	return nil
}

// writeData writes a framed data block: token, payload, two CRC bytes, and
// checks the data-response token that follows.
func (e *engine) writeData(token byte, buffer []byte) error {
	if err := e.writeByte(token); err != nil {
		return err
	}
	if err := e.writeBytes(buffer); err != nil {
		return err
	}

	var crcBytes [2]byte
	if e.options.UseCRC {
		crc := crc16(buffer)
		crcBytes[0] = byte(crc >> 8)
		crcBytes[1] = byte(crc)
	} else {
		crcBytes[0], crcBytes[1] = 0xFF, 0xFF
	}
	if err := e.writeBytes(crcBytes[:]); err != nil {
		return err
	}

	status, err := e.readByte()
	if err != nil {
		return err
	}
	if status&DataResMask != DataResAccepted {
		return newErr(ErrWrite)
	}
	return nil
}

// --- acquisition ----------------------------------------------------------

// checkInit acquires the card if its type is not yet known.
func (e *engine) checkInit() error {
	if e.cardType != CardTypeUnknown {
		return nil
	}
	return e.acquire()
}

// acquire runs the card initialisation and identification sequence: at
// least 74 clock cycles with CS de-asserted, CMD0 until idle, optional
// CRC enable, CMD8 version probe, ACMD41 until ready, and (for SD2
// candidates) CMD58 to detect SDHC.
func (e *engine) acquire() error {
	result := e.acquireInner()
	// CS must be de-asserted regardless of outcome, and one trailing byte
	// clocked to release the bus.
	_ = e.csHigh()
	_, _ = e.readByte()
	return result
}

func (e *engine) acquireInner() error {
	e.trace("acquire")

	if err := e.csHigh(); err != nil {
		return err
	}

	// At least 74 clock cycles with CS de-asserted and MOSI high, so the
	// card can complete its power-up sequence.
	ffs := [10]byte{}
	for i := range ffs {
		ffs[i] = 0xFF
	}
	if err := e.writeBytes(ffs[:]); err != nil {
		return err
	}

	if err := e.csLow(); err != nil {
		return err
	}

	budget := newDelayBudget(e.options.AcquireRetries)
	for {
		// Each CMD0 attempt spends one tick, so at most AcquireRetries
		// attempts are made.
		if err := budget.tick(e.delayer, newErr(ErrCardNotFound)); err != nil {
			return err
		}
		r1, err := e.cardCommand(CMD0, 0)
		if err != nil {
			if tErr, ok := err.(*Error); ok && tErr.Kind == ErrTimeoutCommand && tErr.Cmd == CMD0 {
				for i := 0; i < 0xFF; i++ {
					if werr := e.writeByte(0xFF); werr != nil {
						return werr
					}
				}
			} else {
				return err
			}
		} else if r1 == R1IdleState {
			break
		}
		// else: unexpected R1, retry.
	}

	if e.options.UseCRC {
		r1, err := e.cardCommand(CMD59, 1)
		if err != nil {
			return err
		}
		if r1 != R1IdleState {
			return newErr(ErrCantEnableCRC)
		}
	}

	var opCondArg uint32
	var tentativeType CardType

	cmdBudget := newCommandBudget()
	for {
		r1, err := e.cardCommand(CMD8, 0x1AA)
		if err != nil {
			return err
		}
		if r1 == (R1IllegalCommand | R1IdleState) {
			tentativeType = SD1
			opCondArg = 0
			break
		}

		var trailer [4]byte
		for i := range trailer {
			trailer[i] = 0xFF
		}
		if err := e.transferBytes(trailer[:]); err != nil {
			return err
		}
		if trailer[3] == 0xAA {
			tentativeType = SD2
			opCondArg = 0x4000_0000
			break
		}

		if err := cmdBudget.tick(e.delayer, newCmdTimeout(CMD8)); err != nil {
			return err
		}
	}

	readyBudget := newCommandBudget()
	for {
		r1, err := e.cardAcmd(ACMD41, opCondArg)
		if err != nil {
			return err
		}
		if r1 == R1ReadyState {
			break
		}
		if err := readyBudget.tick(e.delayer, newACmdTimeout(ACMD41)); err != nil {
			return err
		}
	}

	cardType := tentativeType
	if tentativeType == SD2 {
		r1, err := e.cardCommand(CMD58, 0)
		if err != nil {
			return err
		}
		if r1 != 0 {
			return newErr(ErrCmd58)
		}
		var ocr [4]byte
		for i := range ocr {
			ocr[i] = 0xFF
		}
		if err := e.transferBytes(ocr[:]); err != nil {
			return err
		}
		if ocr[0]&0xC0 == 0xC0 {
			cardType = SDHC
		}
	}

	e.trace("acquired")
	e.cardType = cardType
	return nil
}

// --- addressing ----------------------------------------------------------

// wireArg translates a block index into the wire argument for the card's
// addressing scheme: byte-addressed for SD1/SD2, block-addressed for SDHC.
func (e *engine) wireArg(idx BlockIdx) (uint32, error) {
	switch e.cardType {
	case SD1, SD2:
		return uint32(idx) * BlockSize, nil
	case SDHC:
		return uint32(idx), nil
	default:
		return 0, newErr(ErrCardNotFound)
	}
}

// --- read ----------------------------------------------------------

func (e *engine) read(blocks []Block, start BlockIdx) error {
	startArg, err := e.wireArg(start)
	if err != nil {
		return err
	}

	if err := e.csLow(); err != nil {
		return err
	}
	result := e.readInner(blocks, startArg)
	if err := e.csHigh(); err != nil && result == nil {
		result = err
	}
	return result
}

func (e *engine) readInner(blocks []Block, startArg uint32) error {
	if len(blocks) == 1 {
		if _, err := e.cardCommand(CMD17, startArg); err != nil {
			return err
		}
		return e.readData(blocks[0][:])
	}

	if _, err := e.cardCommand(CMD18, startArg); err != nil {
		return err
	}
	for i := range blocks {
		if err := e.readData(blocks[i][:]); err != nil {
			return err
		}
	}
	_, err := e.cardCommand(CMD12, 0)
	return err
}

// --- write ----------------------------------------------------------

func (e *engine) write(blocks []Block, start BlockIdx) error {
	startArg, err := e.wireArg(start)
	if err != nil {
		return err
	}

	if err := e.csLow(); err != nil {
		return err
	}
	result := e.writeInner(startArg, blocks)
	if err := e.csHigh(); err != nil && result == nil {
		result = err
	}
	return result
}

func (e *engine) writeInner(startArg uint32, blocks []Block) error {
	if len(blocks) == 1 {
		if _, err := e.cardCommand(CMD24, startArg); err != nil {
			return err
		}
		if err := e.writeData(DataStartBlock, blocks[0][:]); err != nil {
			return err
		}
		if err := e.waitNotBusy(newWriteBudget()); err != nil {
			return err
		}
		r1, err := e.cardCommand(CMD13, 0)
		if err != nil {
			return err
		}
		if r1 != 0x00 {
			return newErr(ErrWrite)
		}
		status, err := e.readByte()
		if err != nil {
			return err
		}
		if status != 0x00 {
			return newErr(ErrWrite)
		}
		return nil
	}

	if err := e.prepareInnerMultiBlockWrite(startArg, uint32(len(blocks))); err != nil {
		return err
	}
	for i := range blocks {
		if err := e.writeInnerBlock(blocks[i][:]); err != nil {
			return err
		}
	}
	return e.endInnerMultiBlockWrite()
}

func (e *engine) prepareInnerMultiBlockWrite(startArg uint32, blocksLength uint32) error {
	// Sending ACMD23 before CMD25 lets some cards pre-erase, speeding up
	// the subsequent write.
	if _, err := e.cardAcmd(ACMD23, blocksLength); err != nil {
		return err
	}
	if err := e.waitNotBusy(newWriteBudget()); err != nil {
		return err
	}
	_, err := e.cardCommand(CMD25, startArg)
	return err
}

func (e *engine) writeInnerBlock(block []byte) error {
	if err := e.waitNotBusy(newWriteBudget()); err != nil {
		return err
	}
	return e.writeData(WriteMultipleToken, block)
}

func (e *engine) endInnerMultiBlockWrite() error {
	if err := e.waitNotBusy(newWriteBudget()); err != nil {
		return err
	}
	return e.writeByte(StopTranToken)
}

// --- multi-block session plumbing (used by MultiBlockSession) ------------

func (e *engine) prepareRead(start BlockIdx) error {
	startArg, err := e.wireArg(start)
	if err != nil {
		return err
	}
	if err := e.csLow(); err != nil {
		return err
	}
	if _, err := e.cardCommand(CMD18, startArg); err != nil {
		_ = e.csHigh()
		return err
	}
	return nil
}

func (e *engine) endRead() error {
	_, err := e.cardCommand(CMD12, 0)
	if csErr := e.csHigh(); csErr != nil && err == nil {
		err = csErr
	}
	return err
}

func (e *engine) prepareWrite(start BlockIdx, blocksLength uint32) error {
	startArg, err := e.wireArg(start)
	if err != nil {
		return err
	}
	if err := e.csLow(); err != nil {
		return err
	}
	if err := e.prepareInnerMultiBlockWrite(startArg, blocksLength); err != nil {
		_ = e.csHigh()
		return err
	}
	return nil
}

func (e *engine) endWrite() error {
	err := e.endInnerMultiBlockWrite()
	if csErr := e.csHigh(); csErr != nil && err == nil {
		err = csErr
	}
	return err
}

// --- CSD / capacity ----------------------------------------------------------

func (e *engine) readCsd() (Csd, error) {
	switch e.cardType {
	case SD1, SD2:
		var csd CsdV1
		r1, err := e.cardCommand(CMD9, 0)
		if err != nil {
			return nil, err
		}
		if r1 != 0 {
			return nil, newErr(ErrRegisterRead)
		}
		if err := e.readData(csd.data[:]); err != nil {
			return nil, err
		}
		return &csd, nil
	case SDHC:
		var csd CsdV2
		r1, err := e.cardCommand(CMD9, 0)
		if err != nil {
			return nil, err
		}
		if r1 != 0 {
			return nil, newErr(ErrRegisterRead)
		}
		if err := e.readData(csd.data[:]); err != nil {
			return nil, err
		}
		return &csd, nil
	default:
		return nil, newErr(ErrCardNotFound)
	}
}

func (e *engine) withCsd(fn func(Csd) error) error {
	if err := e.csLow(); err != nil {
		return err
	}
	csd, err := e.readCsd()
	if err == nil {
		err = fn(csd)
	}
	if csErr := e.csHigh(); csErr != nil && err == nil {
		err = csErr
	}
	return err
}

func (e *engine) numBlocks() (BlockCount, error) {
	var n BlockCount
	err := e.withCsd(func(csd Csd) error {
		n = BlockCount(csd.CardCapacityBlocks())
		return nil
	})
	return n, err
}

func (e *engine) numBytes() (uint64, error) {
	var n uint64
	err := e.withCsd(func(csd Csd) error {
		n = csd.CardCapacityBytes()
		return nil
	})
	return n, err
}

func (e *engine) eraseSingleBlockEnabled() (bool, error) {
	var enabled bool
	err := e.withCsd(func(csd Csd) error {
		enabled = csd.EraseSingleBlockEnabled()
		return nil
	})
	return enabled, err
}
