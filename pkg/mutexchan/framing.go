package mutexchan

import "fmt"

const (
	// LeadingBitDiscard is the number of samples dropped before the first byte.
	// The Receiver's first sample falls half a slot before the Sender starts.
	LeadingBitDiscard = 1
	// LeadingByteDiscard is the number of assembled bytes dropped. The Sender
	// transmits its first byte twice.
	LeadingByteDiscard = 1
	// DefaultInitialBufferSize is the Receiver's starting payload capacity.
	DefaultInitialBufferSize = 1024
)

// Frame returns the byte sequence the Sender puts on the primitive for
// payload: the first byte, then the whole payload.
func Frame(payload []byte) []byte {
	if len(payload) == 0 {
		return nil
	}
	out := make([]byte, 0, len(payload)+1)
	out = append(out, payload[0])
	return append(out, payload...)
}

// BitStates returns the primitive states for b, most significant bit first.
// true means free (bit 1), false means held (bit 0).
func BitStates(b byte) [8]bool {
	var s [8]bool
	for i := range s {
		s[i] = b&(1<<(7-i)) != 0
	}
	return s
}

// Decoder assembles sampled bits into the payload, dropping the leading
// bit and byte artifacts of the rendezvous.
type Decoder struct {
	buf       []byte
	n         int
	cur       byte
	nbits     int
	skipBits  int
	skipBytes int
	max       int

	// OnByte, if set, sees every assembled byte including dropped ones.
	OnByte func(byte)
}

// NewDecoder returns a Decoder with the given initial capacity. The buffer
// doubles when full but never grows past max; max <= 0 means no limit.
func NewDecoder(initial, max int) *Decoder {
	if initial <= 0 {
		initial = DefaultInitialBufferSize
	}
	return &Decoder{
		buf:       make([]byte, initial),
		skipBits:  LeadingBitDiscard,
		skipBytes: LeadingByteDiscard,
		max:       max,
	}
}

// PushBit appends one sampled bit.
func (d *Decoder) PushBit(bit bool) error {
	if d.skipBits > 0 {
		d.skipBits--
		return nil
	}
	d.cur <<= 1
	if bit {
		d.cur |= 1
	}
	d.nbits++
	if d.nbits < 8 {
		return nil
	}
	b := d.cur
	d.cur, d.nbits = 0, 0
	if d.OnByte != nil {
		d.OnByte(b)
	}
	if d.skipBytes > 0 {
		d.skipBytes--
		return nil
	}
	if d.n >= len(d.buf) {
		if err := d.grow(); err != nil {
			return err
		}
	}
	d.buf[d.n] = b
	d.n++
	return nil
}

func (d *Decoder) grow() error {
	size := 2 * len(d.buf)
	if d.max > 0 && size > d.max {
		if len(d.buf) >= d.max {
			return fmt.Errorf("%w: %d bytes", ErrAllocation, d.max)
		}
		size = d.max
	}
	buf := make([]byte, size)
	copy(buf, d.buf[:d.n])
	d.buf = buf
	return nil
}

// Bytes returns the decoded payload.
func (d *Decoder) Bytes() []byte { return d.buf[:d.n:d.n] }

// Len returns the number of decoded payload bytes.
func (d *Decoder) Len() int { return d.n }

// Cap returns the current buffer capacity.
func (d *Decoder) Cap() int { return len(d.buf) }

// Pending returns the number of bits of an incomplete byte.
func (d *Decoder) Pending() int { return d.nbits }
