// Package kernel implements the gap-fill policy (spec §4.5, component C5)
// and the per-packet transform kernels (spec §4.8, component C8) that turn
// an aligned stream window into one of the output layouts. The ~30
// processing-mode variants are not independent implementations: they
// share the walk loop in this file (the gap-fill decision + input-cursor
// advance) and a handful of sample-decode and layout-emit helpers, varying
// only in what the emit callback does with each packet's payload (spec
// Design Notes §9).
package kernel

import (
	"github.com/banshee-data/rtics/internal/rtics/header"
	"github.com/banshee-data/rtics/internal/rtics/rerr"
	"github.com/banshee-data/rtics/internal/rtics/stream"
)

// Emit receives one output slot's full packet bytes (header followed by
// payload, whether real or gap-filled) and writes whatever slice of it the
// calling kernel's output layout needs.
type Emit func(outSlot int, raw []byte, h header.Header, synthetic bool)

// WalkResult reports what the walk loop observed for one stream.
type WalkResult struct {
	Dropped          int
	LastPacketNumber uint64
	// Consumed is how many of the buffer's leading physical packets the
	// walk read from (real matches plus discarded out-of-order-in-the-past
	// stragglers); it excludes synthesized slots, which never advance the
	// input cursor. Callers use it to free that much of the buffer's
	// filled range before the next iteration's refill.
	Consumed int
}

// excessiveDropThreshold bounds how negative the running drop balance may
// go before a stream's walk is treated as corrupted input rather than
// ordinary reordering (spec §4.5: "a large negative balance from runaway
// out-of-order").
func excessiveDropThreshold(m int) int {
	t := m / 1000
	if t < 1 {
		t = 1
	}
	return t
}

// Walk executes the gap-fill decision loop over one stream's buffered
// window (spec §4.5, §4.8's per-stream inner loop), calling emit once per
// output slot in order. meta.LastPacket is the target packet number the
// alignment engine already placed at logical slot 0.
func Walk(s *stream.State, metaLastPacket uint64, replayMode bool, emit Emit) (*WalkResult, error) {
	buf := s.Buf
	m := buf.M()
	filled := buf.FilledPackets()

	expected := metaLastPacket
	inCursor := 0
	dropped := 0
	var lastGoodRaw []byte
	threshold := excessiveDropThreshold(m)

	outSlot := 0
	for outSlot < m {
		var (
			h        header.Header
			current  uint64
			haveReal bool
		)
		if inCursor < filled {
			hh, err := header.Parse(buf.Packet(inCursor))
			if err != nil {
				return nil, rerr.New(rerr.DataIntegrity, "stream %d: malformed header at input slot %d: %v", s.ID, inCursor, err)
			}
			h = hh
			current = h.PacketNumber()
			haveReal = true
		}

		switch {
		case haveReal && current < expected:
			// Out-of-order-in-the-past: this packet was already counted
			// as missing; correct that false positive and drop it.
			dropped--
			inCursor++
			continue

		case haveReal && current == expected:
			raw := buf.Packet(inCursor)
			emit(outSlot, raw, h, false)
			lastGoodRaw = raw
			inCursor++
			expected++
			outSlot++

		default:
			// One or more packets missing (or input exhausted): synthesize
			// this slot.
			var raw []byte
			var synthHeader header.Header
			if replayMode {
				// "The previously processed slot": whatever this walk most
				// recently emitted, or the prior iteration's carry-over
				// (streambuf.Buffer.Shift's replay guard) if this is the
				// very first slot of a fresh window.
				if len(lastGoodRaw) >= header.Size {
					raw = lastGoodRaw
				} else {
					raw = buf.ReplayGuard()
				}
				synthHeader, _ = header.Parse(raw)
			} else {
				buf.ZeroGuardSlot()
				zero := buf.ZeroGuard()
				if len(lastGoodRaw) >= header.Size {
					copy(zero[:header.Size], lastGoodRaw[:header.Size])
					lastGood, _ := header.Parse(lastGoodRaw)
					header.Synthetic{Timestamp: lastGood.Timestamp(), Sequence: lastGood.NextSequence()}.WriteInto(zero)
				} else {
					header.Synthetic{Timestamp: 0, Sequence: 0}.WriteInto(zero)
				}
				synthHeader, _ = header.Parse(zero)
				raw = zero
			}
			emit(outSlot, raw, synthHeader, true)
			dropped++
			expected++
			outSlot++
		}

		if dropped < -threshold {
			return nil, rerr.New(rerr.DataIntegrity, "stream %d: drop balance %d exceeds integrity threshold", s.ID, dropped)
		}
	}

	return &WalkResult{Dropped: dropped, LastPacketNumber: expected - 1, Consumed: inCursor}, nil
}
