package audio

import (
	"context"
	"log/slog"
	"sync"
)

// Framer accumulates captured float samples while recording and emits them as
// PCM16 [Chunk]s of roughly frameSize samples.
//
// A Framer is owned by a single capture goroutine: HandleCommand, Process and
// Run must not be called concurrently. Output goes through a [Mailbox] so the
// capture goroutine never blocks on its consumer.
type Framer struct {
	frameSize int
	out       *Mailbox[Chunk]

	recording bool
	acc       []float32

	panicOnce sync.Once
}

// NewFramer returns a Framer that emits into out. A non-positive frameSize
// selects [DefaultFrameSize].
func NewFramer(frameSize int, out *Mailbox[Chunk]) *Framer {
	if frameSize <= 0 {
		frameSize = DefaultFrameSize
	}
	return &Framer{
		frameSize: frameSize,
		out:       out,
		acc:       make([]float32, 0, frameSize*2),
	}
}

// Recording reports whether the framer is currently accepting input.
func (f *Framer) Recording() bool { return f.recording }

// Buffered returns the number of samples waiting in the accumulator.
func (f *Framer) Buffered() int { return len(f.acc) }

// FrameSize returns the emission threshold in samples.
func (f *Framer) FrameSize() int { return f.frameSize }

// HandleCommand applies a control message. START_RECORDING begins accepting
// input; STOP_RECORDING stops and flushes any partial frame. Other commands
// are ignored.
func (f *Framer) HandleCommand(cmd Command) {
	defer f.recoverPanic()
	switch cmd.Command {
	case CommandStart:
		f.recording = true
	case CommandStop:
		f.recording = false
		f.flush()
	}
}

// Process consumes one input block. While recording the whole block is
// appended; once the accumulator reaches the frame size it is converted and
// emitted in full, so emitted frames may exceed the frame size by up to one
// block. Input is discarded while not recording.
func (f *Framer) Process(block []float32) {
	defer f.recoverPanic()
	if !f.recording {
		return
	}
	f.acc = append(f.acc, block...)
	if len(f.acc) >= f.frameSize {
		f.flush()
	}
}

// Run is the capture loop. It applies inputs strictly in the order they
// were sent on in and calls onCommand, when non-nil, after each command
// has been applied. Run returns nil when in is closed, or ctx.Err().
func (f *Framer) Run(ctx context.Context, in <-chan Input, onCommand func(Command)) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-in:
			if !ok {
				return nil
			}
			if msg.Command.Command == "" {
				f.Process(msg.Block)
				continue
			}
			f.HandleCommand(msg.Command)
			if onCommand != nil {
				onCommand(msg.Command)
			}
		}
	}
}

func (f *Framer) flush() {
	if len(f.acc) == 0 {
		return
	}
	frame := FloatsToPCM16(f.acc)
	f.acc = f.acc[:0]
	f.out.TrySend(Chunk{Type: ChunkType, AudioData: frame})
}

// recoverPanic keeps the capture context alive: a fault drops the partial
// frame instead of tearing down the goroutine.
func (f *Framer) recoverPanic() {
	if r := recover(); r != nil {
		f.acc = f.acc[:0]
		f.panicOnce.Do(func() {
			slog.Error("audio framer: recovered from panic, partial frame dropped", "panic", r)
		})
	}
}
