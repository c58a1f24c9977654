package sdspi

import "runtime"

type sessionState int

const (
	sessionInit sessionState = iota
	sessionReading
	sessionWriting
)

// MultiBlockSession is an explicit, lower-level alternative to SdCard's
// ReadBlocks/WriteBlocks: it keeps CMD18/CMD25 open across a sequence of
// block transfers instead of re-issuing a command per call, which matters
// on hosts where command overhead dominates (for example, streaming many
// contiguous blocks to or from a filesystem driver).
//
// A session is a three-state machine: Init, Reading and Writing. PrepareRead
// moves Init -> Reading; StopRead moves Reading -> Init. PrepareWrite and
// StopWrite do the same for Writing. Read/Write may only be called in their
// matching state, and a session must not be abandoned mid-transfer: the
// underlying card holds its data line open and its chip-select asserted for
// the whole Reading/Writing span, so the card is locked out of other
// operations (including other SdCard calls on the same instance) until the
// matching Stop* call runs.
//
// If a session is garbage-collected while still in Reading or Writing, a
// finalizer reports it through the card's tracer as a best-effort diagnostic;
// the card itself remains wedged, since there is no way to run the
// CMD12/stop-token cleanup without suspending I/O from finalizer context.
type MultiBlockSession struct {
	card  *SdCard
	state sessionState

	// remaining counts blocks left in the active transfer, purely for
	// ErrBadState bookkeeping (calling Read/Write more times than prepared).
	remaining uint32

	locked bool
}

func newMultiBlockSession(card *SdCard) *MultiBlockSession {
	s := &MultiBlockSession{card: card, state: sessionInit}
	runtime.SetFinalizer(s, finalizeSession)
	return s
}

func finalizeSession(s *MultiBlockSession) {
	switch s.state {
	case sessionReading:
		s.card.eng.trace("session:abandoned:read")
	case sessionWriting:
		s.card.eng.trace("session:abandoned:write")
	}
}

// PrepareRead begins a multi-block read of numBlocks blocks starting at
// start. It must be followed by exactly numBlocks calls to Read and then one
// call to StopRead.
func (s *MultiBlockSession) PrepareRead(start BlockIdx, numBlocks uint32) error {
	if s.state != sessionInit {
		return newErr(ErrBadState)
	}
	s.card.mu.Lock()
	s.locked = true
	if err := s.card.eng.prepareRead(start); err != nil {
		s.card.mu.Unlock()
		s.locked = false
		return err
	}
	s.state = sessionReading
	s.remaining = numBlocks
	return nil
}

// Read reads the next block of the prepared sequence. An error from the
// underlying transfer forces the session back to Init and releases the card,
// matching StopRead; a StopRead after that returns ErrBadState.
func (s *MultiBlockSession) Read(block *Block) error {
	if s.state != sessionReading || s.remaining == 0 {
		return newErr(ErrBadState)
	}
	if err := s.card.eng.readData(block[:]); err != nil {
		_ = s.card.eng.endRead()
		s.state = sessionInit
		if s.locked {
			s.card.mu.Unlock()
			s.locked = false
		}
		return err
	}
	s.remaining--
	return nil
}

// StopRead ends the multi-block read sequence, releasing the card for other
// operations.
func (s *MultiBlockSession) StopRead() error {
	if s.state != sessionReading {
		return newErr(ErrBadState)
	}
	err := s.card.eng.endRead()
	s.state = sessionInit
	if s.locked {
		s.card.mu.Unlock()
		s.locked = false
	}
	return err
}

// PrepareWrite begins a multi-block write of numBlocks blocks starting at
// start. It must be followed by exactly numBlocks calls to Write and then
// one call to StopWrite.
func (s *MultiBlockSession) PrepareWrite(start BlockIdx, numBlocks uint32) error {
	if s.state != sessionInit {
		return newErr(ErrBadState)
	}
	s.card.mu.Lock()
	s.locked = true
	if err := s.card.eng.prepareWrite(start, numBlocks); err != nil {
		s.card.mu.Unlock()
		s.locked = false
		return err
	}
	s.state = sessionWriting
	s.remaining = numBlocks
	return nil
}

// Write writes the next block of the prepared sequence. An error from the
// underlying transfer forces the session back to Init and releases the card,
// matching StopWrite; a StopWrite after that returns ErrBadState.
func (s *MultiBlockSession) Write(block *Block) error {
	if s.state != sessionWriting || s.remaining == 0 {
		return newErr(ErrBadState)
	}
	if err := s.card.eng.writeInnerBlock(block[:]); err != nil {
		_ = s.card.eng.endWrite()
		s.state = sessionInit
		if s.locked {
			s.card.mu.Unlock()
			s.locked = false
		}
		return err
	}
	s.remaining--
	return nil
}

// StopWrite ends the multi-block write sequence, releasing the card for
// other operations.
func (s *MultiBlockSession) StopWrite() error {
	if s.state != sessionWriting {
		return newErr(ErrBadState)
	}
	err := s.card.eng.endWrite()
	s.state = sessionInit
	if s.locked {
		s.card.mu.Unlock()
		s.locked = false
	}
	return err
}
