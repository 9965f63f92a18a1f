package audio

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Dejitterer smooths bursty frame arrival into a steady output: each render
// tick plays exactly one queued frame, or silence when the queue is empty.
//
// Post and Clear may be called from any goroutine and never block. Render,
// Len and Run belong to the render goroutine.
type Dejitterer struct {
	inbox *Mailbox[tagged]
	gen   atomic.Uint64

	// Render-side state.
	seen  uint64
	queue []Frame

	underruns atomic.Uint64
	played    atomic.Uint64
	panicOnce sync.Once
}

type tagged struct {
	gen   uint64
	frame Frame
}

// NewDejitterer returns a Dejitterer whose inbox buffers up to inboxSize
// frames between render ticks. The queue behind it is unbounded.
func NewDejitterer(inboxSize int) *Dejitterer {
	return &Dejitterer{inbox: NewMailbox[tagged](inboxSize)}
}

// Post hands a frame to the render side. A nil frame is the clear sentinel
// and behaves like [Dejitterer.Clear]. Post reports false if the inbox was
// full and the frame was dropped.
func (d *Dejitterer) Post(f Frame) bool {
	if f == nil {
		d.Clear()
		return true
	}
	return d.inbox.TrySend(tagged{gen: d.gen.Load(), frame: f})
}

// Clear discards every frame posted before it. Frames posted afterwards are
// kept. Clear cannot be dropped.
func (d *Dejitterer) Clear() {
	d.gen.Add(1)
}

// Render fills out with the next queued frame converted to float (sample /
// 32767). Samples beyond len(out) are dropped and a short frame is padded
// with silence. With nothing queued out is silenced. Render reports whether
// a frame was played.
func (d *Dejitterer) Render(out []float32) (played bool) {
	defer func() {
		if r := recover(); r != nil {
			clear(out)
			played = false
			d.panicOnce.Do(func() {
				slog.Error("audio dejitterer: recovered from panic, rendering silence", "panic", r)
			})
		}
	}()

	d.sync()
	if len(d.queue) == 0 {
		clear(out)
		d.underruns.Add(1)
		return false
	}

	f := d.queue[0]
	d.queue[0] = nil
	d.queue = d.queue[1:]

	n := min(len(f), len(out))
	for i := range n {
		out[i] = PCM16ToFloat(f[i])
	}
	clear(out[n:])
	d.played.Add(1)
	return true
}

// sync applies pending clears and moves posted frames into the queue in
// order. A frame tagged with a newer generation than the last applied clear
// proves that clear happened before it was posted, so the clear is applied
// and the frame kept. Only frames older than the last clear are dropped.
func (d *Dejitterer) sync() {
	if g := d.gen.Load(); g != d.seen {
		d.reset(g)
	}
	for {
		select {
		case t := <-d.inbox.C():
			switch {
			case t.gen < d.seen:
				continue
			case t.gen > d.seen:
				d.reset(t.gen)
			}
			d.queue = append(d.queue, t.frame)
		default:
			return
		}
	}
}

func (d *Dejitterer) reset(gen uint64) {
	d.seen = gen
	clear(d.queue)
	d.queue = d.queue[:0]
}

// Len returns the number of frames queued for playback, including posted
// frames not yet moved out of the inbox.
func (d *Dejitterer) Len() int {
	return len(d.queue) + d.inbox.Len()
}

// Underruns returns how many render ticks found nothing to play.
func (d *Dejitterer) Underruns() uint64 { return d.underruns.Load() }

// Played returns how many frames have been rendered.
func (d *Dejitterer) Played() uint64 { return d.played.Load() }

// Dropped returns how many posted frames were lost to a full inbox.
func (d *Dejitterer) Dropped() uint64 { return d.inbox.Dropped() }

// Run renders one blockSize block per interval and hands it to sink together
// with whether it carried audio. It returns when ctx is cancelled. The block
// passed to sink is reused on the next tick.
func (d *Dejitterer) Run(ctx context.Context, blockSize int, interval time.Duration, sink func(block []float32, played bool)) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	block := make([]float32, blockSize)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			played := d.Render(block)
			sink(block, played)
		}
	}
}
