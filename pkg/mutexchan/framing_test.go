package mutexchan

import (
	"bytes"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pushByte feeds b into d most significant bit first.
func pushByte(t *testing.T, d *Decoder, b byte) {
	t.Helper()
	for _, bit := range BitStates(b) {
		require.NoError(t, d.PushBit(bit))
	}
}

func TestBitStates(t *testing.T) {
	// 0x41 = 01000001: free means 1, held means 0.
	want := [8]bool{false, true, false, false, false, false, false, true}
	assert.Equal(t, want, BitStates(0x41))
	assert.Equal(t, [8]bool{}, BitStates(0x00))
	assert.Equal(t, [8]bool{true, true, true, true, true, true, true, true}, BitStates(0xff))
}

func TestFrame(t *testing.T) {
	assert.Nil(t, Frame(nil))
	assert.Nil(t, Frame([]byte{}))
	assert.Equal(t, []byte("HHi"), Frame([]byte("Hi")))
	assert.Equal(t, []byte{0, 0}, Frame([]byte{0}))

	payload := []byte("abc")
	_ = Frame(payload)
	assert.Equal(t, []byte("abc"), payload)
}

func TestDecoderDropsLeadingArtifacts(t *testing.T) {
	d := NewDecoder(0, 0)
	// The first sample precedes the Sender and is garbage.
	require.NoError(t, d.PushBit(true))
	for _, b := range Frame([]byte("Hi")) {
		pushByte(t, d, b)
	}
	assert.Equal(t, []byte("Hi"), d.Bytes())
	assert.Equal(t, 2, d.Len())
	assert.Zero(t, d.Pending())
}

func TestDecoderSeesDroppedBytes(t *testing.T) {
	d := NewDecoder(16, 0)
	var seen []byte
	d.OnByte = func(b byte) { seen = append(seen, b) }
	require.NoError(t, d.PushBit(false))
	for _, b := range Frame([]byte("ok")) {
		pushByte(t, d, b)
	}
	assert.Equal(t, []byte("ook"), seen)
	assert.Equal(t, []byte("ok"), d.Bytes())
}

func TestDecoderPartialByte(t *testing.T) {
	d := NewDecoder(0, 0)
	require.NoError(t, d.PushBit(true))
	pushByte(t, d, 'x')
	pushByte(t, d, 'x')
	require.NoError(t, d.PushBit(true))
	require.NoError(t, d.PushBit(false))
	assert.Equal(t, []byte("x"), d.Bytes())
	assert.Equal(t, 2, d.Pending())
}

func TestDecoderGrowth(t *testing.T) {
	payload := bytes.Repeat([]byte{0xa5, 0x3c, 0x00}, 1000)
	d := NewDecoder(DefaultInitialBufferSize, 0)
	require.NoError(t, d.PushBit(true))
	for _, b := range Frame(payload) {
		pushByte(t, d, b)
	}
	assert.Equal(t, 4096, d.Cap())
	if diff := cmp.Diff(payload, d.Bytes()); diff != "" {
		t.Fatalf("decoded payload mismatch (-want +got):\n%s", diff)
	}
}

func TestDecoderAllocationLimit(t *testing.T) {
	d := NewDecoder(4, 6)
	require.NoError(t, d.PushBit(true))
	pushByte(t, d, 1)
	for i := 0; i < 6; i++ {
		pushByte(t, d, byte(i))
	}
	assert.Equal(t, 6, d.Cap())
	var err error
	for _, bit := range BitStates(7) {
		if err = d.PushBit(bit); err != nil {
			break
		}
	}
	require.ErrorIs(t, err, ErrAllocation)
	assert.Equal(t, []byte{0, 1, 2, 3, 4, 5}, d.Bytes())
}
