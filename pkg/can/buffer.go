package can

// Fixed capacity batch of frames, used for one transmit
// or one receive operation
type FrameBuffer struct {
	frames [BufferSize]Frame
	length int
}

func NewFrameBuffer() *FrameBuffer {
	return &FrameBuffer{}
}

// Number of valid frames
func (b *FrameBuffer) Len() int {
	return b.length
}

func (b *FrameBuffer) Cap() int {
	return BufferSize
}

func (b *FrameBuffer) Full() bool {
	return b.length == BufferSize
}

// Append a frame, fails if buffer is already full
func (b *FrameBuffer) Append(frame Frame) error {
	if b.length >= BufferSize {
		return ErrBufferFull
	}
	b.frames[b.length] = frame
	b.length++
	return nil
}

// Get frame at index, index must be within [0,Len())
func (b *FrameBuffer) At(index int) (Frame, error) {
	if index < 0 || index >= b.length {
		return Frame{}, ErrIndexOutOfRange
	}
	return b.frames[index], nil
}

// Valid frames, the returned slice shares memory with the buffer
func (b *FrameBuffer) Frames() []Frame {
	return b.frames[:b.length]
}

func (b *FrameBuffer) Reset() {
	b.length = 0
}

// Deep copy of buffer
func (b *FrameBuffer) Clone() *FrameBuffer {
	clone := *b
	return &clone
}
