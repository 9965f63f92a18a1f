package audio

// DefaultFrameSize is the capture frame length in samples: about 100 ms of
// mono audio at [DefaultSampleRate].
const DefaultFrameSize = 2400

// DefaultSampleRate is the PCM16 rate spoken by the realtime speech service.
const DefaultSampleRate = 24000

// Frame is a block of mono PCM16 samples.
// Capture frames are at least the framer's frame size, except for the final
// partial frame flushed on STOP. A nil Frame posted to a [Dejitterer] is the
// clear sentinel.
type Frame []int16

// ChunkType is the message type carried by every [Chunk].
const ChunkType = "audio-chunk"

// Chunk is the data message the capture context emits for each frame.
type Chunk struct {
	Type      string `json:"type"`
	AudioData Frame  `json:"audioData"`
}

// Control commands accepted by the capture context.
const (
	CommandStart = "START_RECORDING"
	CommandStop  = "STOP_RECORDING"
)

// Command is a control message for the capture context.
type Command struct {
	Command string `json:"command"`
}

// Input is one message for the capture context: a sample block, or a
// command when Command.Command is set.
type Input struct {
	Block   []float32
	Command Command
}
