package sdspi

import "sync"

// SdCard is a block-device handle to an SD/MMC card accessed over SPI. The
// card is not acquired (CMD0/CMD8/ACMD41 sequence) until the first operation
// that needs it; construction alone performs no I/O.
//
// SdCard is safe for concurrent use: all operations take an internal mutex,
// so callers needn't coordinate access to the underlying engine themselves
// (they do still need to avoid handing the same Transport/ChipSelect pair to
// two independent SdCard values, since the bus itself is not arbitrated).
type SdCard struct {
	mu  sync.Mutex
	eng *engine
}

// New constructs an SdCard over the given transport, chip-select and delay
// capabilities, using DefaultAcquireOpts.
func New(spi Transport, cs ChipSelect, delayer Delayer) *SdCard {
	return NewWithOptions(spi, cs, delayer, DefaultAcquireOpts())
}

// NewWithOptions constructs an SdCard with caller-supplied acquisition
// options (for example, to disable CRC checking on a transport that
// verifies integrity some other way).
func NewWithOptions(spi Transport, cs ChipSelect, delayer Delayer, options AcquireOpts) *SdCard {
	return &SdCard{eng: newEngine(spi, cs, delayer, options)}
}

// SetTracer installs a hook invoked with purely observational event names as
// the card moves through protocol operations. Passing nil restores the
// no-op default.
func (c *SdCard) SetTracer(t Tracer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if t == nil {
		t = noopTracer
	}
	c.eng.trace = t
}

// GetCardType returns the negotiated card type, acquiring the card first if
// necessary.
func (c *SdCard) GetCardType() (CardType, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.eng.checkInit(); err != nil {
		return CardTypeUnknown, err
	}
	return c.eng.cardType, nil
}

// MarkCardUninit forces the next operation to re-run the full acquisition
// sequence, for example after detecting the card was physically removed and
// reinserted.
func (c *SdCard) MarkCardUninit() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.eng.cardType = CardTypeUnknown
}

// MarkCardAsInit unsafely asserts that the card is already acquired as the
// given type, skipping the normal acquisition sequence entirely. This is
// only correct if the caller independently knows the card's negotiated type
// from a prior session against the same physical card and has not power
// cycled it since.
func (c *SdCard) MarkCardAsInit(cardType CardType) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.eng.cardType = cardType
}

// NumBlocks returns the card's usable capacity in 512-byte blocks.
func (c *SdCard) NumBlocks() (BlockCount, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.eng.checkInit(); err != nil {
		return 0, err
	}
	return c.eng.numBlocks()
}

// NumBytes returns the card's usable capacity in bytes.
func (c *SdCard) NumBytes() (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.eng.checkInit(); err != nil {
		return 0, err
	}
	return c.eng.numBytes()
}

// EraseSingleBlockEnabled reports whether the card supports erasing a
// single block rather than only erase-group-sized units.
func (c *SdCard) EraseSingleBlockEnabled() (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.eng.checkInit(); err != nil {
		return false, err
	}
	return c.eng.eraseSingleBlockEnabled()
}

// ReadBlocks implements BlockDevice. reason is accepted for interface
// compatibility and is forwarded to the tracer hook only; it does not affect
// the bytes read.
func (c *SdCard) ReadBlocks(blocks []Block, startBlock BlockIdx, reason string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(blocks) == 0 {
		return nil
	}
	if err := c.eng.checkInit(); err != nil {
		return err
	}
	c.eng.trace("read:" + reason)
	return c.eng.read(blocks, startBlock)
}

// WriteBlocks implements BlockDevice.
func (c *SdCard) WriteBlocks(blocks []Block, startBlock BlockIdx) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(blocks) == 0 {
		return nil
	}
	if err := c.eng.checkInit(); err != nil {
		return err
	}
	return c.eng.write(blocks, startBlock)
}

// SPI grants fn temporary exclusive access to the underlying transport,
// bypassing the protocol engine entirely. This exists for host-side
// re-clocking: acquisition must run at the slow initialization frequency, but
// many transports (see transport/periphspi, transport/gobotspi) only expose a
// frequency/mode change on the concrete connection, not through the Transport
// interface itself. Callers doing this must not issue commands that disagree
// with the engine's view of the bus (e.g. changing SPI mode) while holding fn.
func (c *SdCard) SPI(fn func(Transport) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return fn(c.eng.spi)
}

// NewMultiBlockSession begins an explicit multi-block read/write session.
// See MultiBlockSession for the state machine it implements.
func (c *SdCard) NewMultiBlockSession() (*MultiBlockSession, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.eng.checkInit(); err != nil {
		return nil, err
	}
	return newMultiBlockSession(c), nil
}
