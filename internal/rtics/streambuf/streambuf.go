// Package streambuf implements the per-stream, double-buffered packet
// array described in spec §4.3: a single allocation of (M+2) packet-sized
// slots per stream, where the first two slots are "guard" slots used to
// synthesize a missing packet's payload (zero-fill or replay-the-previous)
// without special-casing negative indices anywhere else in the engine.
//
// Design Notes §9 calls this out explicitly: express the guard region as
// "logical index 0 maps to physical index 2", not as negative pointer
// arithmetic. That mapping is exactly what Buffer.Packet implements.
package streambuf

import "fmt"

// GuardSlots is the fixed number of guard packets preceding the logical
// window (spec §3: "two guard slots at the head").
const GuardSlots = 2

// Buffer owns the contiguous byte region for one stream: GuardSlots guard
// packets followed by M logical packets, each PacketLen bytes wide.
type Buffer struct {
	data      []byte
	packetLen int
	m         int

	// filledBytes is how many bytes of the logical window (starting at
	// logical index 0) hold data read from the backend. It is tracked in
	// bytes rather than whole packets because a compressed backend may
	// hand back a short read that ends mid-packet; the next refill must
	// resume at that exact byte offset, not at the next packet boundary.
	filledBytes int
}

// New allocates a buffer for m logical packets of packetLen bytes each,
// plus the two guard slots.
func New(m, packetLen int) *Buffer {
	if m <= 0 || packetLen <= 0 {
		panic(fmt.Sprintf("streambuf: invalid dimensions m=%d packetLen=%d", m, packetLen))
	}
	return &Buffer{
		data:      make([]byte, (m+GuardSlots)*packetLen),
		packetLen: packetLen,
		m:         m,
	}
}

// M returns the number of logical (non-guard) packet slots.
func (b *Buffer) M() int { return b.m }

// PacketLen returns the per-packet byte width.
func (b *Buffer) PacketLen() int { return b.packetLen }

// Packet returns the byte slice for logical index i, where i ranges over
// [-GuardSlots, M). Index -2 and -1 address the guard slots; index 0 is the
// first packet of the current iteration's window.
func (b *Buffer) Packet(i int) []byte {
	phys := i + GuardSlots
	if phys < 0 || phys >= b.m+GuardSlots {
		panic(fmt.Sprintf("streambuf: index %d out of range [-%d, %d)", i, GuardSlots, b.m))
	}
	off := phys * b.packetLen
	return b.data[off : off+b.packetLen]
}

// ZeroGuard and ReplayGuard return guard slot -2 and -1 by name, for
// readability at call sites instead of magic negative indices.
func (b *Buffer) ZeroGuard() []byte   { return b.Packet(-2) }
func (b *Buffer) ReplayGuard() []byte { return b.Packet(-1) }

// Tail returns the byte region starting at logical packet index i through
// the end of the logical window, suitable for passing to an input backend
// as the destination of a refill read.
func (b *Buffer) Tail(i int) []byte {
	phys := i + GuardSlots
	off := phys * b.packetLen
	end := (b.m + GuardSlots) * b.packetLen
	return b.data[off:end]
}

// FilledBytes returns how many bytes of the logical window currently hold
// data placed there by a refill.
func (b *Buffer) FilledBytes() int { return b.filledBytes }

// FilledPackets returns how many whole packets the filled byte range
// covers; a short read that ended mid-packet does not count that packet.
func (b *Buffer) FilledPackets() int { return b.filledBytes / b.packetLen }

// SetFilledBytes records the window's new filled-byte count after a
// refill. Callers must not report more bytes than the window holds.
func (b *Buffer) SetFilledBytes(n int) {
	max := b.m * b.packetLen
	if n < 0 || n > max {
		panic(fmt.Sprintf("streambuf: filled byte count %d out of range [0, %d]", n, max))
	}
	b.filledBytes = n
}

// RefillDest returns the window region a backend read should target to
// extend the filled range: the unfilled remainder of the logical window,
// starting exactly at the current filled-byte offset so a mid-packet short
// read resumes without re-reading or skipping bytes.
func (b *Buffer) RefillDest() []byte {
	start := GuardSlots*b.packetLen + b.filledBytes
	end := (b.m + GuardSlots) * b.packetLen
	return b.data[start:end]
}

// ZeroGuardSlot clears guard slot -2, the source for a zero-padded
// synthesized packet (spec invariant I4).
func (b *Buffer) ZeroGuardSlot() {
	clear(b.ZeroGuard())
}

// Shift moves the last k logical packets (indices M-k..M-1) down to the
// start of the logical region (indices 0..k-1), so that packets a stream
// read ahead of the current iteration's target carry over into the next
// iteration instead of being re-read (spec §4.3, §4.9 step 2).
//
// It also caches the last packet of the shifted region into the replay
// guard slot, since that is the "previously processed slot" a replay-mode
// gap-fill would need if the very first packet of the new window is
// itself missing.
func (b *Buffer) Shift(k int) {
	if k <= 0 {
		return
	}
	if k > b.m {
		panic(fmt.Sprintf("streambuf: shift count %d exceeds window size %d", k, b.m))
	}
	dstStart := GuardSlots * b.packetLen
	srcStart := (b.m - k + GuardSlots) * b.packetLen
	n := k * b.packetLen
	copy(b.data[dstStart:dstStart+n], b.data[srcStart:srcStart+n])
	copy(b.ReplayGuard(), b.Packet(k-1))
	b.filledBytes = n
}
