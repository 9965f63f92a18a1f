package audio_test

import (
	"context"
	"testing"
	"time"

	"github.com/cognify-ai/cognify/pkg/audio"
)

func block(n int, v float32) []float32 {
	b := make([]float32, n)
	for i := range b {
		b[i] = v
	}
	return b
}

func drainChunks(mb *audio.Mailbox[audio.Chunk]) []audio.Chunk {
	var out []audio.Chunk
	for {
		select {
		case c := <-mb.C():
			out = append(out, c)
		default:
			return out
		}
	}
}

func TestFramer_DiscardsWhileIdle(t *testing.T) {
	mb := audio.NewMailbox[audio.Chunk](8)
	f := audio.NewFramer(2400, mb)

	f.Process(block(3000, 0.5))
	if f.Buffered() != 0 {
		t.Errorf("buffered = %d, want 0 while not recording", f.Buffered())
	}
	if got := drainChunks(mb); len(got) != 0 {
		t.Errorf("emitted %d chunks while not recording", len(got))
	}
}

func TestFramer_EmitsWholeAccumulator(t *testing.T) {
	mb := audio.NewMailbox[audio.Chunk](8)
	f := audio.NewFramer(2400, mb)
	f.HandleCommand(audio.Command{Command: audio.CommandStart})
	if !f.Recording() {
		t.Fatal("expected recording after START_RECORDING")
	}

	// 18 blocks of 128 = 2304 samples, still below the threshold.
	for range 18 {
		f.Process(block(128, 0.5))
	}
	if got := drainChunks(mb); len(got) != 0 {
		t.Fatalf("emitted %d chunks before reaching frame size", len(got))
	}

	// The 19th block crosses 2400; all 2432 samples go out together.
	f.Process(block(128, 0.5))
	got := drainChunks(mb)
	if len(got) != 1 {
		t.Fatalf("chunks = %d, want 1", len(got))
	}
	c := got[0]
	if c.Type != audio.ChunkType {
		t.Errorf("type = %q, want %q", c.Type, audio.ChunkType)
	}
	if len(c.AudioData) != 2432 {
		t.Errorf("frame length = %d, want 2432", len(c.AudioData))
	}
	if c.AudioData[0] != 16383 {
		t.Errorf("sample = %d, want 16383", c.AudioData[0])
	}
	if f.Buffered() != 0 {
		t.Errorf("buffered = %d, want 0 after emission", f.Buffered())
	}
}

func TestFramer_StopFlushesPartial(t *testing.T) {
	mb := audio.NewMailbox[audio.Chunk](8)
	f := audio.NewFramer(2400, mb)
	f.HandleCommand(audio.Command{Command: audio.CommandStart})
	f.Process(block(1000, -1))
	f.HandleCommand(audio.Command{Command: audio.CommandStop})

	got := drainChunks(mb)
	if len(got) != 1 {
		t.Fatalf("chunks = %d, want 1", len(got))
	}
	if len(got[0].AudioData) != 1000 {
		t.Errorf("frame length = %d, want 1000", len(got[0].AudioData))
	}
	if got[0].AudioData[0] != -32768 {
		t.Errorf("sample = %d, want -32768", got[0].AudioData[0])
	}
	if f.Recording() {
		t.Error("expected not recording after STOP_RECORDING")
	}

	// A second STOP with an empty accumulator emits nothing.
	f.HandleCommand(audio.Command{Command: audio.CommandStop})
	if got := drainChunks(mb); len(got) != 0 {
		t.Errorf("emitted %d chunks on empty flush", len(got))
	}
}

func TestFramer_SampleConservation(t *testing.T) {
	mb := audio.NewMailbox[audio.Chunk](64)
	f := audio.NewFramer(100, mb)
	f.HandleCommand(audio.Command{Command: audio.CommandStart})
	total := 0
	for i := range 37 {
		n := 7 + i%13
		total += n
		f.Process(block(n, 0.1))
	}
	f.HandleCommand(audio.Command{Command: audio.CommandStop})

	sum := 0
	for _, c := range drainChunks(mb) {
		sum += len(c.AudioData)
	}
	if sum != total {
		t.Errorf("emitted %d samples, recorded %d", sum, total)
	}
}

func TestFramer_UnknownCommandIgnored(t *testing.T) {
	mb := audio.NewMailbox[audio.Chunk](1)
	f := audio.NewFramer(0, mb)
	if f.FrameSize() != audio.DefaultFrameSize {
		t.Errorf("frame size = %d, want default %d", f.FrameSize(), audio.DefaultFrameSize)
	}
	f.HandleCommand(audio.Command{Command: "PAUSE"})
	if f.Recording() {
		t.Error("unknown command must not start recording")
	}
}

func TestFramer_FullMailboxDrops(t *testing.T) {
	mb := audio.NewMailbox[audio.Chunk](1)
	f := audio.NewFramer(10, mb)
	f.HandleCommand(audio.Command{Command: audio.CommandStart})
	f.Process(block(10, 0))
	f.Process(block(10, 0))
	if mb.Len() != 1 {
		t.Errorf("mailbox len = %d, want 1", mb.Len())
	}
	if mb.Dropped() != 1 {
		t.Errorf("dropped = %d, want 1", mb.Dropped())
	}
}

func TestFramer_Run(t *testing.T) {
	mb := audio.NewMailbox[audio.Chunk](8)
	f := audio.NewFramer(4, mb)
	in := make(chan audio.Input)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var stops int
	done := make(chan error, 1)
	go func() {
		done <- f.Run(ctx, in, func(cmd audio.Command) {
			if cmd.Command == audio.CommandStop {
				stops++
			}
		})
	}()

	in <- audio.Input{Command: audio.Command{Command: audio.CommandStart}}
	in <- audio.Input{Block: block(2, 1)}
	in <- audio.Input{Command: audio.Command{Command: audio.CommandStop}}

	select {
	case c := <-mb.C():
		if len(c.AudioData) != 2 {
			t.Errorf("frame length = %d, want 2", len(c.AudioData))
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for flushed chunk")
	}

	close(in)
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned %v, want nil after input closed", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after input closed")
	}
	if stops != 1 {
		t.Errorf("onCommand saw %d stops, want 1", stops)
	}
}

func TestFramer_RunKeepsBufferedOrder(t *testing.T) {
	for i := range 200 {
		mb := audio.NewMailbox[audio.Chunk](4)
		f := audio.NewFramer(1024, mb)
		in := make(chan audio.Input, 3)
		in <- audio.Input{Command: audio.Command{Command: audio.CommandStart}}
		in <- audio.Input{Block: block(2, 0.5)}
		in <- audio.Input{Command: audio.Command{Command: audio.CommandStop}}
		close(in)

		if err := f.Run(context.Background(), in, nil); err != nil {
			t.Fatalf("run %d: Run = %v", i, err)
		}
		select {
		case c := <-mb.C():
			if len(c.AudioData) != 2 {
				t.Fatalf("run %d: frame length = %d, want 2", i, len(c.AudioData))
			}
		default:
			t.Fatalf("run %d: block processed out of order, no frame emitted", i)
		}
	}
}
