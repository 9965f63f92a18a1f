package audio

import "sync/atomic"

// Mailbox is a bounded hand-off between a real-time context and the rest of
// the program. Senders never block: when the buffer is full the value is
// dropped and counted.
type Mailbox[T any] struct {
	ch      chan T
	dropped atomic.Uint64
}

// NewMailbox returns a mailbox that buffers up to capacity values.
// A capacity below 1 is raised to 1.
func NewMailbox[T any](capacity int) *Mailbox[T] {
	return &Mailbox[T]{ch: make(chan T, max(capacity, 1))}
}

// TrySend enqueues v without blocking. It reports false if v was dropped.
func (m *Mailbox[T]) TrySend(v T) bool {
	select {
	case m.ch <- v:
		return true
	default:
		m.dropped.Add(1)
		return false
	}
}

// C returns the receive side of the mailbox.
func (m *Mailbox[T]) C() <-chan T { return m.ch }

// Len returns the number of buffered values.
func (m *Mailbox[T]) Len() int { return len(m.ch) }

// Dropped returns how many values TrySend has discarded.
func (m *Mailbox[T]) Dropped() uint64 { return m.dropped.Load() }
