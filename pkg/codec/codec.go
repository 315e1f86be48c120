// Package codec splits payloads into sequences of CAN frames
// and rebuilds payloads from received frame sequences.
package codec

import (
	"errors"

	"github.com/samsamfire/gocanif/pkg/can"
)

// Max payload that fits in a single frame buffer
const MaxPayloadSize = can.BufferSize * can.MaxDataLength

var ErrOperationAborted = errors.New("operation aborted : payload needs more frames than buffer can hold")

// Number of frames needed to carry size bytes
func FrameCount(size int) int {
	count := size / can.MaxDataLength
	if size%can.MaxDataLength > 0 {
		count++
	}
	return count
}

// Encode payload into a buffer of frames all carrying id.
// A remote request produces a single empty frame and payload is ignored.
// Otherwise payload is cut in 8 byte chunks, the last frame holding the remainder.
// If payload does not fit in one buffer, ErrOperationAborted is returned
// and no buffer is produced
func Encode(id uint32, payload []byte, rtr bool) (*can.FrameBuffer, error) {
	buf := can.NewFrameBuffer()
	if rtr {
		_ = buf.Append(can.NewRemoteFrame(id))
		return buf, nil
	}

	nbFrames := FrameCount(len(payload))
	if nbFrames > can.BufferSize {
		return nil, ErrOperationAborted
	}
	for x := 0; x < nbFrames; x++ {
		start := x * can.MaxDataLength
		end := start + can.MaxDataLength
		if end > len(payload) {
			end = len(payload)
		}
		frame, err := can.NewDataFrame(id, payload[start:end])
		if err != nil {
			return nil, err
		}
		if err := buf.Append(frame); err != nil {
			return nil, err
		}
	}
	return buf, nil
}

// Check the RTR bit of the frame at index in buf
func IsRTR(buf *can.FrameBuffer, index int) (bool, error) {
	frame, err := buf.At(index)
	if err != nil {
		return false, err
	}
	return frame.LenByte()&can.RtrBit != 0, nil
}

// Concatenate the valid data of every frame in buf, in order
func ExtractPayload(buf *can.FrameBuffer) []byte {
	payload := make([]byte, 0, buf.Len()*can.MaxDataLength)
	for _, frame := range buf.Frames() {
		payload = append(payload, frame.Payload()...)
	}
	return payload
}
