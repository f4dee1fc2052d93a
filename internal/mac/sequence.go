package mac

import "mesh-mac-simulation/internal/frame"

// SequenceTracker numbers outbound unicast frames per destination and
// detects duplicates per source.
type SequenceTracker struct {
	outbound map[frame.Address]uint32 // next number to assign
	inbound  map[frame.Address]uint32 // next number expected
}

func NewSequenceTracker() *SequenceTracker {
	return &SequenceTracker{
		outbound: make(map[frame.Address]uint32),
		inbound:  make(map[frame.Address]uint32),
	}
}

// NextOutbound returns 0 for the first frame to dst and counts up from there.
func (s *SequenceTracker) NextOutbound(dst frame.Address) uint32 {
	seq := s.outbound[dst]
	s.outbound[dst] = seq + 1
	return seq
}

// Accept reports whether seq from src is new. Accepted numbers move the
// expectation to seq+1; a duplicate leaves it untouched.
func (s *SequenceTracker) Accept(src frame.Address, seq uint32) bool {
	if expected, ok := s.inbound[src]; ok && seq < expected {
		return false
	}
	s.inbound[src] = seq + 1
	return true
}

func (s *SequenceTracker) expected(src frame.Address) (uint32, bool) {
	v, ok := s.inbound[src]
	return v, ok
}
