package codec

import (
	"testing"

	"github.com/samsamfire/gocanif/pkg/can"
	"github.com/stretchr/testify/assert"
)

func makePayload(size int) []byte {
	payload := make([]byte, size)
	for i := range payload {
		payload[i] = byte(i*7 + 3)
	}
	return payload
}

func TestEncodeEmpty(t *testing.T) {
	buf, err := Encode(0x100, nil, false)
	assert.Nil(t, err)
	assert.Equal(t, 0, buf.Len())
	assert.Empty(t, ExtractPayload(buf))
}

func TestEncodeRemainder(t *testing.T) {
	payload := makePayload(20)
	buf, err := Encode(0x100, payload, false)
	assert.Nil(t, err)
	assert.Equal(t, 3, buf.Len())
	lengths := []uint8{8, 8, 4}
	for i, frame := range buf.Frames() {
		assert.EqualValues(t, 0x100, frame.ID)
		assert.Equal(t, lengths[i], frame.Length)
		assert.False(t, frame.RTR)
		assert.Equal(t, payload[i*8:i*8+int(frame.Length)], frame.Payload())
	}
}

func TestEncodeExactMultiple(t *testing.T) {
	t.Run("16 bytes", func(t *testing.T) {
		buf, err := Encode(0x20, makePayload(16), false)
		assert.Nil(t, err)
		assert.Equal(t, 2, buf.Len())
		for _, frame := range buf.Frames() {
			assert.EqualValues(t, 8, frame.Length)
		}
	})
	t.Run("every multiple of 8", func(t *testing.T) {
		for k := 1; k <= can.BufferSize; k++ {
			buf, err := Encode(0x20, makePayload(8*k), false)
			assert.Nil(t, err)
			assert.Equal(t, k, buf.Len())
			for _, frame := range buf.Frames() {
				assert.EqualValues(t, 8, frame.Length)
			}
		}
	})
}

func TestEncodeTooLarge(t *testing.T) {
	buf, err := Encode(0x100, makePayload(MaxPayloadSize+1), false)
	assert.Equal(t, ErrOperationAborted, err)
	assert.Nil(t, buf)

	buf, err = Encode(0x100, makePayload(1000), false)
	assert.ErrorIs(t, err, ErrOperationAborted)
	assert.Nil(t, buf)
}

func TestRoundTrip(t *testing.T) {
	for size := 1; size <= MaxPayloadSize; size++ {
		payload := makePayload(size)
		buf, err := Encode(0x1ABCDEF, payload, false)
		assert.Nil(t, err)
		assert.Equal(t, FrameCount(size), buf.Len())
		assert.Equal(t, payload, ExtractPayload(buf), "size %v", size)
	}
}

func TestEncodeRemote(t *testing.T) {
	for _, payload := range [][]byte{nil, makePayload(3), makePayload(MaxPayloadSize + 50)} {
		buf, err := Encode(0x7FF, payload, true)
		assert.Nil(t, err)
		assert.Equal(t, 1, buf.Len())
		frame, err := buf.At(0)
		assert.Nil(t, err)
		assert.EqualValues(t, 0x7FF, frame.ID)
		assert.EqualValues(t, 0, frame.Length)
		assert.Equal(t, can.RtrBit, frame.LenByte())
		rtr, err := IsRTR(buf, 0)
		assert.Nil(t, err)
		assert.True(t, rtr)
		assert.Empty(t, ExtractPayload(buf))
	}
}

func TestIsRTR(t *testing.T) {
	buf, err := Encode(0x100, makePayload(MaxPayloadSize), false)
	assert.Nil(t, err)
	for i := 0; i < buf.Len(); i++ {
		rtr, err := IsRTR(buf, i)
		assert.Nil(t, err)
		assert.False(t, rtr)
	}
	_, err = IsRTR(buf, buf.Len())
	assert.Equal(t, can.ErrIndexOutOfRange, err)
	_, err = IsRTR(buf, -1)
	assert.Equal(t, can.ErrIndexOutOfRange, err)
}

func TestFrameCount(t *testing.T) {
	assert.Equal(t, 0, FrameCount(0))
	assert.Equal(t, 1, FrameCount(1))
	assert.Equal(t, 1, FrameCount(8))
	assert.Equal(t, 2, FrameCount(9))
	assert.Equal(t, 25, FrameCount(200))
	assert.Equal(t, 26, FrameCount(201))
}

func BenchmarkEncode(b *testing.B) {
	payload := makePayload(MaxPayloadSize)
	b.Run("encode full buffer", func(b *testing.B) {
		for n := 0; n < b.N; n++ {
			_, err := Encode(0x100, payload, false)
			assert.Nil(b, err)
		}
	})
}
