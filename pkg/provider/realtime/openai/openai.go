// Package openai implements realtime.Provider for the OpenAI Realtime API and
// its Azure OpenAI deployment variant.
//
// A session is a single WebSocket carrying JSON events. Microphone audio goes
// up as base64 PCM16 in input_audio_buffer.append events; the model answers
// with response.audio.delta events. Turn detection runs on the server.
package openai

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/coder/websocket"

	"github.com/cognify-ai/cognify/pkg/provider/realtime"
)

var (
	_ realtime.Provider = (*Provider)(nil)
	_ realtime.Session  = (*session)(nil)
)

const (
	defaultModel   = "gpt-4o-realtime-preview"
	defaultBaseURL = "wss://api.openai.com/v1/realtime"

	// DefaultAzureAPIVersion is the realtime API version used for Azure
	// deployments when none is configured.
	DefaultAzureAPIVersion = "2024-10-01-preview"
)

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithModel sets the model (or, for Azure, the deployment name).
func WithModel(model string) Option {
	return func(p *Provider) {
		if model != "" {
			p.model = model
		}
	}
}

// WithBaseURL overrides the WebSocket endpoint used for OpenAI sessions.
func WithBaseURL(u string) Option {
	return func(p *Provider) {
		if u != "" {
			p.baseURL = u
		}
	}
}

// WithAzure routes sessions to an Azure OpenAI resource. endpoint is the
// resource URL (https://<name>.openai.azure.com); the model set through
// WithModel is used as the deployment name.
func WithAzure(endpoint, apiVersion string) Option {
	return func(p *Provider) {
		p.azureEndpoint = strings.TrimRight(endpoint, "/")
		p.azureAPIVersion = apiVersion
		if p.azureAPIVersion == "" {
			p.azureAPIVersion = DefaultAzureAPIVersion
		}
	}
}

// Provider implements realtime.Provider.
type Provider struct {
	apiKey  string
	model   string
	baseURL string

	azureEndpoint   string
	azureAPIVersion string
}

// New creates a Provider with the given API key.
func New(apiKey string, opts ...Option) *Provider {
	p := &Provider{
		apiKey:  apiKey,
		model:   defaultModel,
		baseURL: defaultBaseURL,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// dialTarget returns the WebSocket URL and auth headers for a new session.
func (p *Provider) dialTarget() (string, http.Header, error) {
	if p.azureEndpoint == "" {
		q := url.Values{"model": {p.model}}
		return p.baseURL + "?" + q.Encode(), http.Header{
			"Authorization": {"Bearer " + p.apiKey},
			"OpenAI-Beta":   {"realtime=v1"},
		}, nil
	}

	u, err := url.Parse(p.azureEndpoint)
	if err != nil {
		return "", nil, fmt.Errorf("openai: invalid azure endpoint %q: %w", p.azureEndpoint, err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/openai/realtime"
	u.RawQuery = url.Values{
		"api-version": {p.azureAPIVersion},
		"deployment":  {p.model},
	}.Encode()
	return u.String(), http.Header{"api-key": {p.apiKey}}, nil
}

// Connect dials the realtime endpoint and configures the session. The
// returned session accepts audio immediately.
func (p *Provider) Connect(ctx context.Context, cfg realtime.SessionConfig) (realtime.Session, error) {
	target, header, err := p.dialTarget()
	if err != nil {
		return nil, err
	}

	conn, _, err := websocket.Dial(ctx, target, &websocket.DialOptions{HTTPHeader: header})
	if err != nil {
		return nil, fmt.Errorf("openai: dial: %w", err)
	}
	// Audio deltas can be large.
	conn.SetReadLimit(4 << 20)

	sessCtx, sessCancel := context.WithCancel(context.Background())
	sess := &session{
		conn:        conn,
		audioCh:     make(chan []byte, 64),
		transcripts: make(chan realtime.Transcript, 16),
		speech:      make(chan struct{}, 1),
		ctx:         sessCtx,
		cancel:      sessCancel,
	}

	if err := sess.writeJSON(sessionUpdateMessage{Type: "session.update", Session: newSessionParams(cfg)}); err != nil {
		sessCancel()
		conn.Close(websocket.StatusInternalError, "session update failed")
		return nil, fmt.Errorf("openai: session update: %w", err)
	}

	go sess.receiveLoop()

	return sess, nil
}

// ── outgoing events ───────────────────────────────────────────────────────────

type sessionUpdateMessage struct {
	Type    string        `json:"type"`
	Session sessionParams `json:"session"`
}

type sessionParams struct {
	Modalities              []string             `json:"modalities"`
	Instructions            string               `json:"instructions,omitempty"`
	Voice                   string               `json:"voice,omitempty"`
	Temperature             float64              `json:"temperature,omitempty"`
	InputAudioFormat        string               `json:"input_audio_format"`
	OutputAudioFormat       string               `json:"output_audio_format"`
	InputAudioTranscription *transcriptionParams `json:"input_audio_transcription,omitempty"`
	TurnDetection           *turnDetectionParams `json:"turn_detection,omitempty"`
}

type transcriptionParams struct {
	Model string `json:"model"`
}

type turnDetectionParams struct {
	Type string `json:"type"`
}

func newSessionParams(cfg realtime.SessionConfig) sessionParams {
	params := sessionParams{
		Modalities:        []string{"audio", "text"},
		Instructions:      cfg.Instructions,
		Voice:             cfg.Voice,
		Temperature:       cfg.Temperature,
		InputAudioFormat:  "pcm16",
		OutputAudioFormat: "pcm16",
	}
	if cfg.TranscriptionModel != "" {
		params.InputAudioTranscription = &transcriptionParams{Model: cfg.TranscriptionModel}
	}
	if cfg.ServerVAD {
		params.TurnDetection = &turnDetectionParams{Type: "server_vad"}
	}
	return params
}

type appendAudioMessage struct {
	Type  string `json:"type"`
	Audio string `json:"audio"`
}

// ── incoming events ───────────────────────────────────────────────────────────

type serverEvent struct {
	Type string `json:"type"`

	// response.audio.delta, response.audio_transcript.delta
	Delta string `json:"delta,omitempty"`

	// response.audio_transcript.done,
	// conversation.item.input_audio_transcription.completed
	Transcript string `json:"transcript,omitempty"`

	Error *serverErrorDetail `json:"error,omitempty"`
}

type serverErrorDetail struct {
	Type    string `json:"type"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

// ── session ───────────────────────────────────────────────────────────────────

type session struct {
	conn        *websocket.Conn
	audioCh     chan []byte
	transcripts chan realtime.Transcript
	speech      chan struct{}

	mu           sync.Mutex
	errVal       error
	closed       bool
	errorHandler func(error)

	// pending accumulates response.audio_transcript.delta text until the
	// matching done event.
	pending strings.Builder

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

func (s *session) writeJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("openai: marshal: %w", err)
	}
	return s.conn.Write(s.ctx, websocket.MessageText, data)
}

// receiveLoop owns the outbound channels and closes them when it exits.
func (s *session) receiveLoop() {
	defer s.closeChannels()

	for {
		_, data, err := s.conn.Read(s.ctx)
		if err != nil {
			if s.ctx.Err() == nil {
				s.setErr(err)
			}
			return
		}

		var evt serverEvent
		if err := json.Unmarshal(data, &evt); err != nil {
			continue
		}
		s.handleServerEvent(&evt)
	}
}

func (s *session) handleServerEvent(evt *serverEvent) {
	switch evt.Type {
	case "response.audio.delta":
		pcm, err := base64.StdEncoding.DecodeString(evt.Delta)
		if err != nil || len(pcm) == 0 {
			return
		}
		select {
		case s.audioCh <- pcm:
		case <-s.ctx.Done():
		}

	case "response.audio_transcript.delta":
		s.mu.Lock()
		s.pending.WriteString(evt.Delta)
		s.mu.Unlock()

	case "response.audio_transcript.done":
		s.mu.Lock()
		text := s.pending.String()
		s.pending.Reset()
		s.mu.Unlock()
		if text == "" {
			text = evt.Transcript
		}
		s.emitTranscript(realtime.RoleAssistant, text)

	case "conversation.item.input_audio_transcription.completed":
		s.emitTranscript(realtime.RoleUser, strings.TrimSpace(evt.Transcript))

	case "input_audio_buffer.speech_started":
		select {
		case s.audioCh <- nil:
		case <-s.ctx.Done():
			return
		}
		select {
		case s.speech <- struct{}{}:
		default:
		}

	case "error":
		s.mu.Lock()
		handler := s.errorHandler
		s.mu.Unlock()
		if handler == nil {
			return
		}
		msg := "unknown error"
		if evt.Error != nil && evt.Error.Message != "" {
			msg = evt.Error.Message
		}
		handler(fmt.Errorf("openai: %s", msg))
	}
}

func (s *session) emitTranscript(role, text string) {
	if text == "" {
		return
	}
	select {
	case s.transcripts <- realtime.Transcript{Role: role, Text: text}:
	case <-s.ctx.Done():
	}
}

func (s *session) setErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.errVal == nil {
		s.errVal = err
	}
}

func (s *session) closeChannels() {
	s.closeOnce.Do(func() {
		close(s.audioCh)
		close(s.transcripts)
		close(s.speech)
	})
}

// SendAudio streams a PCM16 chunk to the model.
func (s *session) SendAudio(chunk []byte) error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return fmt.Errorf("openai: session closed")
	}
	return s.writeJSON(appendAudioMessage{
		Type:  "input_audio_buffer.append",
		Audio: base64.StdEncoding.EncodeToString(chunk),
	})
}

func (s *session) Audio() <-chan []byte                    { return s.audioCh }
func (s *session) Transcripts() <-chan realtime.Transcript { return s.transcripts }
func (s *session) SpeechStarted() <-chan struct{}          { return s.speech }

func (s *session) OnError(handler func(error)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errorHandler = handler
}

// Interrupt sends response.cancel.
func (s *session) Interrupt() error {
	return s.writeJSON(map[string]string{"type": "response.cancel"})
}

// Commit sends input_audio_buffer.commit followed by response.create.
func (s *session) Commit() error {
	if err := s.writeJSON(map[string]string{"type": "input_audio_buffer.commit"}); err != nil {
		return err
	}
	return s.writeJSON(map[string]string{"type": "response.create"})
}

func (s *session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errVal
}

// Close terminates the session. Idempotent.
func (s *session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	s.conn.Close(websocket.StatusNormalClosure, "session closed")
	return nil
}
