// Package align implements the multi-stream alignment engine (spec §4.4,
// component C4): bringing every stream's first buffered packet to a common
// target packet number despite drops, reordering and per-stream clock
// drift, using a bounded binary search within each stream's buffered
// window rather than a linear scan.
package align

import (
	"github.com/banshee-data/rtics/internal/rtics/header"
	"github.com/banshee-data/rtics/internal/rtics/rerr"
	"github.com/banshee-data/rtics/internal/rtics/stream"
)

// defaultMaxWidenAttempts bounds the number of times the binary search may
// retry after advancing the target by one packet (spec §4.4: "fail with
// AlignmentImpossible after bounded widening").
const defaultMaxWidenAttempts = 64

// Engine drives one alignment pass across a set of streams.
type Engine struct {
	MaxWidenAttempts int
}

// New returns an Engine configured with the default widen-attempt bound.
func New() *Engine {
	return &Engine{MaxWidenAttempts: defaultMaxWidenAttempts}
}

// Result reports, per stream, how many leading packets of its buffered
// window must be discarded so that logical index 0 holds the target packet
// (spec §4.4 step 3: "shift each stream's buffer by its own amount").
type Result struct {
	Shift       []int
	ClockBit    bool
	FinalTarget uint64
}

// packetNumberAt parses the header at logical slot i and returns its
// packet number, or ok=false if slot i is out of the currently filled
// range or its header fails to parse.
func packetNumberAt(s *stream.State, i int) (uint64, bool) {
	if i < 0 || i >= s.Buf.FilledPackets() {
		return 0, false
	}
	h, err := header.Parse(s.Buf.Packet(i))
	if err != nil {
		return 0, false
	}
	return h.PacketNumber(), true
}

func clockBitAt(s *stream.State, i int) (bool, bool) {
	if i < 0 || i >= s.Buf.FilledPackets() {
		return false, false
	}
	h, err := header.Parse(s.Buf.Packet(i))
	if err != nil {
		return false, false
	}
	return h.ClockBit(), true
}

// refill issues one backend read into the stream's unfilled window
// remainder, extending FilledBytes by however much the backend supplied.
// It returns the number of bytes newly added; zero with a nil error means
// the backend is exhausted.
func refill(s *stream.State) (int, error) {
	dst := s.Buf.RefillDest()
	if len(dst) == 0 {
		return 0, nil
	}
	n, err := s.Backend.Read(dst)
	if n > 0 {
		s.Buf.SetFilledBytes(s.Buf.FilledBytes() + n)
	}
	return n, err
}

// fillToTarget repeatedly refills s until its last filled packet's number
// is at least target, the window is full, or the backend is exhausted
// (spec §4.4 step 1).
func fillToTarget(s *stream.State, target uint64) error {
	for {
		filled := s.Buf.FilledPackets()
		if filled > 0 {
			last, ok := packetNumberAt(s, filled-1)
			if !ok {
				return rerr.New(rerr.DataIntegrity, "stream %d: cannot parse header at filled boundary", s.ID)
			}
			if last >= target || filled >= s.Buf.M() {
				return nil
			}
		}
		n, err := refill(s)
		if err != nil {
			return rerr.New(rerr.ShortRead, "stream %d: refill: %v", s.ID, err)
		}
		if n == 0 {
			s.EOF = true
			return nil
		}
	}
}

// locate finds the logical index within s's filled window whose packet
// number equals target, using the spec's no-loss fast guess followed by a
// bounded binary search with widen-on-miss (spec §4.4 step 2).
func (e *Engine) locate(s *stream.State, firstBuffered, target uint64) (shift int, newTarget uint64, err error) {
	widenBudget := e.MaxWidenAttempts
	if widenBudget <= 0 {
		widenBudget = defaultMaxWidenAttempts
	}
	curTarget := target

	for attempt := 0; ; attempt++ {
		filled := s.Buf.FilledPackets()
		if filled == 0 {
			return 0, 0, rerr.New(rerr.AlignmentImpossible, "stream %d: empty buffer, cannot locate packet %d", s.ID, curTarget)
		}

		// Fast guess: assume no loss since firstBuffered.
		guess := int(curTarget - firstBuffered)
		if guess >= 0 && guess < filled {
			if n, ok := packetNumberAt(s, guess); ok && n == curTarget {
				return guess, curTarget, nil
			}
		}

		lo, hi := 0, filled-1
		found := -1
		for lo <= hi {
			mid := (lo + hi) / 2
			n, ok := packetNumberAt(s, mid)
			if !ok {
				return 0, 0, rerr.New(rerr.DataIntegrity, "stream %d: cannot parse header at probe %d", s.ID, mid)
			}
			switch {
			case n == curTarget:
				found = mid
				lo = hi + 1 // stop; ties broken by monotonicity, first exact hit wins
			case n < curTarget:
				lo = mid + 1
			default:
				hi = mid - 1
			}
		}
		if found >= 0 {
			return found, curTarget, nil
		}

		// Search collapsed without a match: the target is unreachable on
		// this stream. Widen by advancing the target one packet and retry,
		// bounded so a permanently missing run does not spin forever.
		if attempt >= widenBudget {
			return 0, 0, rerr.New(rerr.AlignmentImpossible, "stream %d: target unreachable after %d widen attempts", s.ID, widenBudget)
		}
		curTarget++
		if err := fillToTarget(s, curTarget); err != nil {
			return 0, 0, err
		}
	}
}

// Prime performs an initial fill of s sufficient to read its first
// packet's number, for establishing the observation's starting target at
// open (spec §4.4: "after an initial fill, drive every stream's first
// buffered packet to equal the target lastPacket" presumes some packet
// number is already known to target against). ok is false if the backend
// is exhausted before producing even one whole packet.
func Prime(s *stream.State) (packetNumber uint64, ok bool, err error) {
	if err := fillToTarget(s, 0); err != nil {
		return 0, false, err
	}
	pn, ok := packetNumberAt(s, 0)
	return pn, ok, nil
}

// Align brings every stream's buffered window to cover target, locates the
// target packet in each, and reports the per-stream shift needed so that
// logical index 0 of every stream holds the same packet number (spec
// §4.4, invariant P8). It does not itself perform the shift — callers
// apply Result.Shift via streambuf.Buffer.Shift and then refill tails.
func (e *Engine) Align(streams []*stream.State, target uint64) (*Result, error) {
	res := &Result{Shift: make([]int, len(streams)), FinalTarget: target}

	var clockBit bool
	clockBitSet := false

	for idx, s := range streams {
		if err := fillToTarget(s, target); err != nil {
			return nil, err
		}
		if s.Buf.FilledPackets() == 0 {
			continue // stream exhausted before producing any packet; caller treats as EOF
		}

		cb, ok := clockBitAt(s, 0)
		if ok {
			if !clockBitSet {
				clockBit = cb
				clockBitSet = true
			} else if cb != clockBit {
				return nil, rerr.New(rerr.ClockMismatch, "stream %d: clock bit %v disagrees with established %v", s.ID, cb, clockBit)
			}
		}

		first, ok := packetNumberAt(s, 0)
		if !ok {
			return nil, rerr.New(rerr.DataIntegrity, "stream %d: cannot parse header at slot 0", s.ID)
		}

		shift, newTarget, err := e.locate(s, first, target)
		if err != nil {
			return nil, err
		}
		if newTarget != target {
			// This stream forced the whole alignment forward; every
			// stream must now converge on the widened target too.
			target = newTarget
			res.FinalTarget = target
			for j := 0; j < idx; j++ {
				if err := fillToTarget(streams[j], target); err != nil {
					return nil, err
				}
				firstJ, ok := packetNumberAt(streams[j], 0)
				if !ok {
					return nil, rerr.New(rerr.DataIntegrity, "stream %d: cannot parse header at slot 0", streams[j].ID)
				}
				rs, _, err := e.locate(streams[j], firstJ, target)
				if err != nil {
					return nil, err
				}
				res.Shift[j] = rs
			}
		}
		res.Shift[idx] = shift
	}

	res.ClockBit = clockBit
	return res, nil
}
