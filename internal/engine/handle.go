package engine

import (
	"encoding/binary"
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
)

// Handle is the opaque token naming an execution context.
//
// The high 32 bits are a salt drawn once per Engine, the low 32 bits a
// sequence number. Handles from another engine, or from an earlier process,
// therefore fail validation instead of naming an unrelated context. The zero
// Handle is never issued.
type Handle uint64

// String renders the handle in hex.
func (h Handle) String() string {
	return fmt.Sprintf("ctx-%016x", uint64(h))
}

// handleSeq issues handles. Safe for concurrent use.
type handleSeq struct {
	salt uint32
	seq  atomic.Uint32
}

func newHandleSeq() *handleSeq {
	u := uuid.New()
	salt := binary.BigEndian.Uint32(u[:4])
	if salt == 0 {
		salt = 1
	}
	return &handleSeq{salt: salt}
}

// next returns a handle not issued before by this sequence.
func (s *handleSeq) next() Handle {
	return Handle(uint64(s.salt)<<32 | uint64(s.seq.Add(1)))
}

// issued reports whether h carries this sequence's salt and a sequence
// number already handed out.
func (s *handleSeq) issued(h Handle) bool {
	n := uint32(h)
	return uint32(h>>32) == s.salt && n != 0 && n <= s.seq.Load()
}
