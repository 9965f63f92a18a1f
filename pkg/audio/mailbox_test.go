package audio_test

import (
	"testing"

	"github.com/cognify-ai/cognify/pkg/audio"
)

func TestMailbox_NonBlocking(t *testing.T) {
	mb := audio.NewMailbox[int](2)
	for i := range 5 {
		mb.TrySend(i)
	}
	if mb.Len() != 2 {
		t.Errorf("len = %d, want 2", mb.Len())
	}
	if mb.Dropped() != 3 {
		t.Errorf("dropped = %d, want 3", mb.Dropped())
	}
	if v := <-mb.C(); v != 0 {
		t.Errorf("first value = %d, want 0 (FIFO)", v)
	}
}

func TestMailbox_MinimumCapacity(t *testing.T) {
	mb := audio.NewMailbox[string](0)
	if !mb.TrySend("x") {
		t.Error("capacity 0 should be raised to 1")
	}
}
