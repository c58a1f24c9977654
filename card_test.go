package sdspi_test

import (
	"encoding/binary"
	"testing"

	"github.com/sdspi/sdspi"
)

// fakeCard is an in-memory stand-in for an SDHC card in SPI mode: enough of
// the command/response and data-phase protocol to drive acquisition and
// single/multi block transfers, without touching real hardware.
//
// CRC checking is left off in every test (see newTestCard) so the fake never
// needs to compute a real CRC-16; crc.go's own correctness is covered by
// crc_test.go against known vectors.
type fakeCard struct {
	ready bool
	sdhc  bool

	store map[uint32]sdspi.Block

	out []byte

	readMulti bool
	readPtr   uint32

	writeMulti bool
	writePtr   uint32

	// injectReadError/injectWriteError arm a one-shot protocol-level failure
	// on the next data phase, to exercise MultiBlockSession's error recovery.
	injectReadError  bool
	injectWriteError bool
}

func newFakeCard() *fakeCard {
	return &fakeCard{sdhc: true, store: make(map[uint32]sdspi.Block)}
}

func (f *fakeCard) pop(read []byte) {
	for i := range read {
		if len(f.out) == 0 {
			f.refill()
		}
		read[i] = f.out[0]
		f.out = f.out[1:]
	}
}

func (f *fakeCard) refill() {
	if f.readMulti {
		if f.injectReadError {
			f.injectReadError = false
			// Neither 0xFF (keep waiting) nor DataStartBlock: readData sees
			// this as the start token and rejects it immediately.
			f.out = append(f.out, 0x00)
			return
		}
		f.out = append(f.out, f.blockFrame(f.readPtr)...)
		f.readPtr++
		return
	}
	f.out = append(f.out, 0xFF)
}

func (f *fakeCard) blockFrame(idx uint32) []byte {
	block := f.store[idx]
	frame := make([]byte, 0, 1+sdspi.BlockSize+2)
	frame = append(frame, sdspi.DataStartBlock)
	frame = append(frame, block[:]...)
	frame = append(frame, 0xFF, 0xFF) // CRC, ignored: CRC checking is off
	return frame
}

// Transfer implements sdspi.Transport.
func (f *fakeCard) Transfer(read, write []byte) error {
	if len(write) == 1 {
		switch write[0] {
		case sdspi.StopTranToken:
			f.writeMulti = false
		}
	}
	f.pop(read)
	return nil
}

// TransferInPlace implements sdspi.Transport.
func (f *fakeCard) TransferInPlace(buf []byte) error {
	f.pop(buf)
	return nil
}

// Write implements sdspi.Transport.
func (f *fakeCard) Write(data []byte) error {
	switch len(data) {
	case 6:
		f.command(data)
	case sdspi.BlockSize:
		var b sdspi.Block
		copy(b[:], data)
		if f.writeMulti {
			f.store[f.writePtr] = b
			f.writePtr++
		} else {
			f.store[f.writePtr] = b
		}
		if f.injectWriteError {
			f.injectWriteError = false
			f.out = append(f.out, 0x0D) // write-error data-response token
		} else {
			f.out = append(f.out, sdspi.DataResAccepted)
		}
	case 2:
		// CRC trailer following a data payload; ignored, CRC checking is off.
	}
	return nil
}

func (f *fakeCard) command(frame []byte) {
	cmd := frame[0] &^ 0x40
	arg := binary.BigEndian.Uint32(frame[1:5])

	r1 := byte(sdspi.R1ReadyState)
	if !f.ready {
		r1 = sdspi.R1IdleState
	}

	switch cmd {
	case sdspi.CMD0:
		f.out = append(f.out, sdspi.R1IdleState)
	case sdspi.CMD8:
		f.out = append(f.out, sdspi.R1IdleState, 0x00, 0x00, 0x01, 0xAA)
	case sdspi.CMD55:
		f.out = append(f.out, r1)
	case sdspi.ACMD41:
		f.ready = true
		f.out = append(f.out, sdspi.R1ReadyState)
	case sdspi.CMD58:
		ocr0 := byte(0x00)
		if f.sdhc {
			ocr0 = 0xC0
		}
		f.out = append(f.out, sdspi.R1ReadyState, ocr0, 0xFF, 0xFF, 0xFF)
	case sdspi.CMD9:
		f.out = append(f.out, r1)
		f.out = append(f.out, f.csdFrame()...)
	case sdspi.CMD13:
		f.out = append(f.out, r1, 0x00)
	case sdspi.CMD12:
		f.readMulti = false
		f.out = append(f.out, 0xFF, r1)
	case sdspi.CMD17:
		f.readPtr = arg
		f.out = append(f.out, r1)
		f.out = append(f.out, f.blockFrame(arg)...)
	case sdspi.CMD18:
		f.readPtr = arg
		f.readMulti = true
		f.out = append(f.out, r1)
	case sdspi.CMD24:
		f.writePtr = arg
		f.writeMulti = false
		f.out = append(f.out, r1)
	case sdspi.CMD25:
		f.writePtr = arg
		f.writeMulti = true
		f.out = append(f.out, r1)
	case sdspi.ACMD23:
		f.out = append(f.out, r1)
	default:
		f.out = append(f.out, r1)
	}
}

// csdFrame returns a CsdV2-layout register reporting a fixed, arbitrary
// capacity, framed as CMD9's data response.
func (f *fakeCard) csdFrame() []byte {
	csd := make([]byte, 16)
	csd[7] = 0x00
	csd[8] = 0x03
	csd[9] = 0xE8 // C_SIZE = 1000 -> (1000+1)*1024 blocks
	csd[10] = 0x40

	frame := make([]byte, 0, 1+len(csd)+2)
	frame = append(frame, sdspi.DataStartBlock)
	frame = append(frame, csd...)
	frame = append(frame, 0xFF, 0xFF)
	return frame
}

// SetLow implements sdspi.ChipSelect.
func (f *fakeCard) SetLow() error { return nil }

// SetHigh implements sdspi.ChipSelect.
func (f *fakeCard) SetHigh() error { return nil }

// DelayUS implements sdspi.Delayer.
func (f *fakeCard) DelayUS(uint32) {}

func newTestCard() *sdspi.SdCard {
	fake := newFakeCard()
	opts := sdspi.DefaultAcquireOpts()
	opts.UseCRC = false
	return sdspi.NewWithOptions(fake, fake, fake, opts)
}

func TestGetCardType(t *testing.T) {
	card := newTestCard()
	got, err := card.GetCardType()
	if err != nil {
		t.Fatalf("GetCardType() error = %v", err)
	}
	if got != sdspi.SDHC {
		t.Errorf("GetCardType() = %v, want SDHC", got)
	}
}

func TestNumBlocks(t *testing.T) {
	card := newTestCard()
	got, err := card.NumBlocks()
	if err != nil {
		t.Fatalf("NumBlocks() error = %v", err)
	}
	if want := sdspi.BlockCount(1001 * 1024); got != want {
		t.Errorf("NumBlocks() = %d, want %d", got, want)
	}
}

func TestSingleBlockReadWrite(t *testing.T) {
	card := newTestCard()

	var want sdspi.Block
	for i := range want {
		want[i] = byte(i)
	}

	if err := card.WriteBlocks([]sdspi.Block{want}, 42); err != nil {
		t.Fatalf("WriteBlocks() error = %v", err)
	}

	got := make([]sdspi.Block, 1)
	if err := card.ReadBlocks(got, 42, "test"); err != nil {
		t.Fatalf("ReadBlocks() error = %v", err)
	}
	if got[0] != want {
		t.Error("ReadBlocks() did not round-trip the written block")
	}
}

func TestMultiBlockReadWrite(t *testing.T) {
	card := newTestCard()

	want := make([]sdspi.Block, 4)
	for i := range want {
		for j := range want[i] {
			want[i][j] = byte(i*7 + j)
		}
	}

	if err := card.WriteBlocks(want, 100); err != nil {
		t.Fatalf("WriteBlocks() error = %v", err)
	}

	got := make([]sdspi.Block, 4)
	if err := card.ReadBlocks(got, 100, "test"); err != nil {
		t.Fatalf("ReadBlocks() error = %v", err)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("block %d did not round-trip", i)
		}
	}
}

func TestMultiBlockSession(t *testing.T) {
	card := newTestCard()

	want := make([]sdspi.Block, 3)
	for i := range want {
		for j := range want[i] {
			want[i][j] = byte(i*13 + j)
		}
	}

	session, err := card.NewMultiBlockSession()
	if err != nil {
		t.Fatalf("NewMultiBlockSession() error = %v", err)
	}
	if err := session.PrepareWrite(10, uint32(len(want))); err != nil {
		t.Fatalf("PrepareWrite() error = %v", err)
	}
	for i := range want {
		if err := session.Write(&want[i]); err != nil {
			t.Fatalf("Write(%d) error = %v", i, err)
		}
	}
	if err := session.StopWrite(); err != nil {
		t.Fatalf("StopWrite() error = %v", err)
	}

	session, err = card.NewMultiBlockSession()
	if err != nil {
		t.Fatalf("NewMultiBlockSession() error = %v", err)
	}
	if err := session.PrepareRead(10, uint32(len(want))); err != nil {
		t.Fatalf("PrepareRead() error = %v", err)
	}
	got := make([]sdspi.Block, len(want))
	for i := range got {
		if err := session.Read(&got[i]); err != nil {
			t.Fatalf("Read(%d) error = %v", i, err)
		}
	}
	if err := session.StopRead(); err != nil {
		t.Fatalf("StopRead() error = %v", err)
	}

	for i := range want {
		if got[i] != want[i] {
			t.Errorf("session block %d did not round-trip", i)
		}
	}
}

func TestMultiBlockSessionBadState(t *testing.T) {
	card := newTestCard()
	session, err := card.NewMultiBlockSession()
	if err != nil {
		t.Fatalf("NewMultiBlockSession() error = %v", err)
	}

	var b sdspi.Block
	err = session.Read(&b)
	if err == nil {
		t.Fatal("Read() before PrepareRead: want error, got nil")
	}
	sdErr, ok := err.(*sdspi.Error)
	if !ok {
		t.Fatalf("Read() error type = %T, want *sdspi.Error", err)
	}
	if sdErr.Kind != sdspi.ErrBadState {
		t.Errorf("Read() error kind = %v, want ErrBadState", sdErr.Kind)
	}

	// The session is still in Init: no Prepare* succeeded, so no lock was
	// taken and StopWrite has nothing to stop.
	if err := session.StopWrite(); err == nil {
		t.Error("StopWrite() on a session never prepared: want error, got nil")
	}
}

func TestMultiBlockSessionReadErrorReleasesCard(t *testing.T) {
	fake := newFakeCard()
	opts := sdspi.DefaultAcquireOpts()
	opts.UseCRC = false
	card := sdspi.NewWithOptions(fake, fake, fake, opts)

	var block sdspi.Block
	for i := range block {
		block[i] = byte(i)
	}
	if err := card.WriteBlocks([]sdspi.Block{block}, 5); err != nil {
		t.Fatalf("WriteBlocks() error = %v", err)
	}

	session, err := card.NewMultiBlockSession()
	if err != nil {
		t.Fatalf("NewMultiBlockSession() error = %v", err)
	}
	if err := session.PrepareRead(5, 1); err != nil {
		t.Fatalf("PrepareRead() error = %v", err)
	}

	fake.injectReadError = true
	var got sdspi.Block
	if err := session.Read(&got); err == nil {
		t.Fatal("Read() with an injected protocol error: want error, got nil")
	}

	// Read's error should already have forced the session back to Init and
	// released the card, so StopRead must now report ErrBadState rather than
	// hang or double-release the lock.
	if err := session.StopRead(); err == nil {
		t.Error("StopRead() after a Read error: want ErrBadState, got nil")
	}

	// A fresh operation on the same card must not block on a leaked lock.
	again := make([]sdspi.Block, 1)
	if err := card.ReadBlocks(again, 5, "test"); err != nil {
		t.Fatalf("ReadBlocks() after session error = %v, want the card usable again", err)
	}
}

func TestMultiBlockSessionWriteErrorReleasesCard(t *testing.T) {
	fake := newFakeCard()
	opts := sdspi.DefaultAcquireOpts()
	opts.UseCRC = false
	card := sdspi.NewWithOptions(fake, fake, fake, opts)

	session, err := card.NewMultiBlockSession()
	if err != nil {
		t.Fatalf("NewMultiBlockSession() error = %v", err)
	}
	if err := session.PrepareWrite(20, 1); err != nil {
		t.Fatalf("PrepareWrite() error = %v", err)
	}

	fake.injectWriteError = true

	var block sdspi.Block
	if err := session.Write(&block); err == nil {
		t.Fatal("Write() with an injected protocol error: want error, got nil")
	}

	if err := session.StopWrite(); err == nil {
		t.Error("StopWrite() after a Write error: want ErrBadState, got nil")
	}

	if err := card.WriteBlocks([]sdspi.Block{block}, 21); err != nil {
		t.Fatalf("WriteBlocks() after session error = %v, want the card usable again", err)
	}
}

func TestSPIAccessor(t *testing.T) {
	card := newTestCard()
	if _, err := card.GetCardType(); err != nil {
		t.Fatalf("GetCardType() error = %v", err)
	}

	called := false
	err := card.SPI(func(tr sdspi.Transport) error {
		called = true
		if tr == nil {
			t.Error("SPI() passed a nil Transport")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("SPI() error = %v", err)
	}
	if !called {
		t.Error("SPI() did not invoke fn")
	}
}
