// Package realtime defines the interface for speech-to-speech providers used
// by the voice companion.
//
// A provider accepts a continuous stream of PCM16 microphone audio and answers
// with synthesised PCM16 speech plus text transcripts of both sides of the
// conversation. Turn detection happens on the provider side, so the caller only
// streams audio and reacts to events.
package realtime

import "context"

// Speaker roles reported on transcripts.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// SessionConfig holds the parameters used when opening a session.
type SessionConfig struct {
	// Instructions is the system prompt for the conversation.
	Instructions string

	// Voice is the provider-specific voice identifier (e.g. "alloy").
	Voice string

	// Temperature controls sampling. Zero leaves the provider default.
	Temperature float64

	// TranscriptionModel enables transcription of the user's speech
	// (e.g. "whisper-1"). Empty disables user transcripts.
	TranscriptionModel string

	// ServerVAD enables provider-side voice activity detection so that the
	// model answers automatically when the user stops speaking.
	ServerVAD bool
}

// Transcript is one finished utterance of either party.
type Transcript struct {
	// Role is RoleUser or RoleAssistant.
	Role string `json:"role"`
	Text string `json:"text"`
}

// Session is a live speech-to-speech conversation.
//
// Audio and Transcripts are closed when the session ends, whether by Close or
// by a connection failure; Err then reports the cause.
type Session interface {
	// SendAudio streams one chunk of little-endian PCM16 mono audio at the
	// provider's input rate.
	SendAudio(chunk []byte) error

	// Audio delivers synthesised PCM16 speech chunks. A nil chunk marks the
	// user starting to speak: chunks received before it belong to the
	// interrupted response. The marker is ordered with the audio, which
	// SpeechStarted is not.
	Audio() <-chan []byte

	// Transcripts delivers completed utterances.
	Transcripts() <-chan Transcript

	// SpeechStarted fires when the provider detects the user starting to
	// speak, after the nil marker has been queued on Audio. Bursts are
	// coalesced.
	SpeechStarted() <-chan struct{}

	// OnError registers a callback for non-fatal provider error events.
	OnError(handler func(error))

	// Interrupt cancels the response currently being generated.
	Interrupt() error

	// Commit ends the user's turn and asks for a response. Only needed when
	// ServerVAD is off.
	Commit() error

	// Err returns the error that terminated the session, if any.
	Err() error

	// Close ends the session. It is safe to call more than once.
	Close() error
}

// Provider opens speech-to-speech sessions.
type Provider interface {
	Connect(ctx context.Context, cfg SessionConfig) (Session, error)
}
