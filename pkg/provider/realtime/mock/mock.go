// Package mock provides test doubles for the realtime package interfaces.
//
// Use Provider to observe Connect calls and hand out a controlled Session. The
// test drives the Session by writing to its channels:
//
//	sess := mock.NewSession()
//	p := &mock.Provider{Session: sess}
//	sess.AudioCh <- pcm
//	sess.TranscriptsCh <- realtime.Transcript{Role: realtime.RoleUser, Text: "hi"}
package mock

import (
	"context"
	"sync"

	"github.com/cognify-ai/cognify/pkg/provider/realtime"
)

// Provider is a mock implementation of realtime.Provider.
type Provider struct {
	mu sync.Mutex

	// Session is returned by Connect. Nil makes Connect return a fresh
	// NewSession.
	Session *Session

	// ConnectErr, if non-nil, is returned by Connect.
	ConnectErr error

	// ConnectCalls records the config passed to every Connect call.
	ConnectCalls []realtime.SessionConfig
}

// Connect records the call and returns Session or ConnectErr.
func (p *Provider) Connect(_ context.Context, cfg realtime.SessionConfig) (realtime.Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ConnectCalls = append(p.ConnectCalls, cfg)
	if p.ConnectErr != nil {
		return nil, p.ConnectErr
	}
	if p.Session == nil {
		p.Session = NewSession()
	}
	return p.Session, nil
}

// ConnectCount returns the number of Connect calls.
func (p *Provider) ConnectCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.ConnectCalls)
}

// Session is a mock implementation of realtime.Session. Close closes the
// three event channels, so tests must not write to them afterwards.
type Session struct {
	AudioCh       chan []byte
	TranscriptsCh chan realtime.Transcript
	SpeechCh      chan struct{}

	// SendAudioErr, if non-nil, is returned by every SendAudio call.
	SendAudioErr error

	// ErrVal is returned by Err.
	ErrVal error

	mu             sync.Mutex
	sent           [][]byte
	interrupts     int
	commits        int
	closeCount     int
	errorHandler   func(error)
	closeOnce      sync.Once
	sentSignal     chan struct{}
	closedSignal   chan struct{}
	interruptCalls chan struct{}
}

// NewSession returns a Session with buffered channels.
func NewSession() *Session {
	return &Session{
		AudioCh:        make(chan []byte, 64),
		TranscriptsCh:  make(chan realtime.Transcript, 16),
		SpeechCh:       make(chan struct{}, 1),
		sentSignal:     make(chan struct{}, 1),
		closedSignal:   make(chan struct{}),
		interruptCalls: make(chan struct{}, 16),
	}
}

// SendAudio records a copy of chunk.
func (s *Session) SendAudio(chunk []byte) error {
	s.mu.Lock()
	s.sent = append(s.sent, append([]byte(nil), chunk...))
	err := s.SendAudioErr
	s.mu.Unlock()
	select {
	case s.sentSignal <- struct{}{}:
	default:
	}
	return err
}

func (s *Session) Audio() <-chan []byte                    { return s.AudioCh }
func (s *Session) Transcripts() <-chan realtime.Transcript { return s.TranscriptsCh }
func (s *Session) SpeechStarted() <-chan struct{}          { return s.SpeechCh }

// BargeIn queues the speech-start marker on AudioCh and then signals
// SpeechCh, the way a provider reports the user interrupting.
func (s *Session) BargeIn() {
	s.AudioCh <- nil
	select {
	case s.SpeechCh <- struct{}{}:
	default:
	}
}

// OnError stores the handler for EmitError.
func (s *Session) OnError(handler func(error)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errorHandler = handler
}

// EmitError invokes the registered error handler, if any.
func (s *Session) EmitError(err error) {
	s.mu.Lock()
	h := s.errorHandler
	s.mu.Unlock()
	if h != nil {
		h(err)
	}
}

// Interrupt counts the call.
func (s *Session) Interrupt() error {
	s.mu.Lock()
	s.interrupts++
	s.mu.Unlock()
	select {
	case s.interruptCalls <- struct{}{}:
	default:
	}
	return nil
}

// Commit counts the call.
func (s *Session) Commit() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commits++
	return nil
}

// Commits returns the number of Commit calls.
func (s *Session) Commits() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commits
}

func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ErrVal
}

// Close closes the event channels on first call and counts every call.
func (s *Session) Close() error {
	s.mu.Lock()
	s.closeCount++
	s.mu.Unlock()
	s.closeOnce.Do(func() {
		close(s.AudioCh)
		close(s.TranscriptsCh)
		close(s.SpeechCh)
		close(s.closedSignal)
	})
	return nil
}

// Sent returns copies of every chunk passed to SendAudio.
func (s *Session) Sent() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]byte, len(s.sent))
	copy(out, s.sent)
	return out
}

// SentSignal fires (coalesced) after each SendAudio call.
func (s *Session) SentSignal() <-chan struct{} { return s.sentSignal }

// InterruptSignal fires after each Interrupt call.
func (s *Session) InterruptSignal() <-chan struct{} { return s.interruptCalls }

// Closed is closed once Close has been called.
func (s *Session) Closed() <-chan struct{} { return s.closedSignal }

// Interrupts returns the number of Interrupt calls.
func (s *Session) Interrupts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.interrupts
}

// CloseCount returns the number of Close calls.
func (s *Session) CloseCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeCount
}

var (
	_ realtime.Provider = (*Provider)(nil)
	_ realtime.Session  = (*Session)(nil)
)
