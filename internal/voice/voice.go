// Package voice bridges browser voice sessions to a realtime speech provider.
//
// Each WebSocket client gets its own [Gateway.Serve] call, which runs the
// capture and render contexts of the browser audio pipeline on the server
// side:
//
//	browser float32 blocks ─▶ Framer ─▶ mailbox ─▶ resample ─▶ realtime.SendAudio
//	realtime.Audio ─▶ resample ─▶ split ─▶ Dejitterer ─▶ render clock ─▶ browser
//
// Speech-start events from the provider clear queued playback (barge-in).
// Neither real-time loop waits on the network; hand-offs go through bounded
// mailboxes that drop on overflow.
package voice

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"

	"github.com/cognify-ai/cognify/internal/observe"
	"github.com/cognify-ai/cognify/pkg/audio"
	"github.com/cognify-ai/cognify/pkg/provider/realtime"
)

// Conn is the client side of a session. *websocket.Conn satisfies it.
type Conn interface {
	Read(ctx context.Context) (websocket.MessageType, []byte, error)
	Write(ctx context.Context, typ websocket.MessageType, p []byte) error
}

var _ Conn = (*websocket.Conn)(nil)

// Config tunes the audio pipeline of every session.
type Config struct {
	// ServiceRate is the provider's PCM16 sample rate.
	ServiceRate int

	// ClientRate is the browser audio context rate.
	ClientRate int

	// FrameSize is the capture framing threshold in client samples.
	FrameSize int

	// BlockSize is the render block in client samples. The render clock
	// ticks once per block duration unless RenderInterval is set.
	BlockSize int

	RenderInterval time.Duration

	// CaptureBuffer and PlaybackBuffer size the mailboxes between the
	// real-time contexts and the network.
	CaptureBuffer  int
	PlaybackBuffer int
}

func (c Config) withDefaults() Config {
	if c.ServiceRate <= 0 {
		c.ServiceRate = audio.DefaultSampleRate
	}
	if c.ClientRate <= 0 {
		c.ClientRate = c.ServiceRate
	}
	if c.FrameSize <= 0 {
		c.FrameSize = audio.DefaultFrameSize
	}
	if c.BlockSize <= 0 {
		c.BlockSize = c.FrameSize
	}
	if c.RenderInterval <= 0 {
		c.RenderInterval = time.Duration(c.BlockSize) * time.Second / time.Duration(c.ClientRate)
	}
	if c.CaptureBuffer <= 0 {
		c.CaptureBuffer = 32
	}
	if c.PlaybackBuffer <= 0 {
		c.PlaybackBuffer = 256
	}
	return c
}

// Server messages sent as JSON text frames.
type (
	transcriptMessage struct {
		Type string `json:"type"`
		Role string `json:"role"`
		Text string `json:"text"`
	}
	clearMessage struct {
		Type string `json:"type"`
	}
	errorMessage struct {
		Type  string `json:"type"`
		Error string `json:"error"`
	}
)

// commitChunk marks the end of a push-to-talk turn in the capture mailbox.
const commitChunk = "commit"

// errClientGone ends a session when the browser disconnects.
var errClientGone = errors.New("voice: client disconnected")

// Gateway opens one realtime session per client.
type Gateway struct {
	provider realtime.Provider
	cfg      Config
	metrics  *observe.Metrics

	mu      sync.RWMutex
	persona realtime.SessionConfig
}

// Option configures a [Gateway].
type Option func(*Gateway)

// WithMetrics records session metrics on m.
func WithMetrics(m *observe.Metrics) Option {
	return func(g *Gateway) { g.metrics = m }
}

// NewGateway returns a Gateway that connects to p with persona.
func NewGateway(p realtime.Provider, cfg Config, persona realtime.SessionConfig, opts ...Option) *Gateway {
	g := &Gateway{provider: p, cfg: cfg.withDefaults(), persona: persona}
	for _, o := range opts {
		o(g)
	}
	if g.metrics == nil {
		g.metrics = observe.DefaultMetrics()
	}
	return g
}

// SetPersona changes the session config used by sessions opened from now on.
func (g *Gateway) SetPersona(persona realtime.SessionConfig) {
	g.mu.Lock()
	g.persona = persona
	g.mu.Unlock()
}

// Persona returns the session config for new sessions.
func (g *Gateway) Persona() realtime.SessionConfig {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.persona
}

// Serve runs one voice session over conn until the client disconnects, the
// provider session ends, or ctx is cancelled. A normal client disconnect
// returns nil.
func (g *Gateway) Serve(ctx context.Context, conn Conn) error {
	id := uuid.NewString()
	log := observe.Logger(ctx).With("session_id", id)
	persona := g.Persona()

	rs, err := g.provider.Connect(ctx, persona)
	if err != nil {
		log.Warn("voice: realtime connect failed", "err", err)
		g.writeJSON(ctx, conn, errorMessage{Type: "error", Error: "Voice service unavailable."})
		return fmt.Errorf("voice: connect: %w", err)
	}
	defer rs.Close()

	g.metrics.ActiveVoiceSessions.Add(ctx, 1)
	defer g.metrics.ActiveVoiceSessions.Add(context.WithoutCancel(ctx), -1)
	log.Info("voice: session started", "voice", persona.Voice, "server_vad", persona.ServerVAD)

	s := &session{
		cfg:      g.cfg,
		vad:      persona.ServerVAD,
		conn:     conn,
		rs:       rs,
		log:      log,
		metrics:  g.metrics,
		inbound:  make(chan audio.Input, 16),
		capture:  audio.NewMailbox[audio.Chunk](g.cfg.CaptureBuffer),
		player:   audio.NewDejitterer(g.cfg.PlaybackBuffer),
		outAudio: audio.NewMailbox[[]byte](8),
		control:  make(chan []byte, 32),
	}
	s.framer = audio.NewFramer(g.cfg.FrameSize, s.capture)

	start := time.Now()
	err = s.run(ctx)
	s.recordDrops(context.WithoutCancel(ctx))

	if errors.Is(err, errClientGone) || errors.Is(err, context.Canceled) {
		log.Info("voice: session ended", "duration", time.Since(start))
		return nil
	}
	log.Warn("voice: session failed", "err", err, "duration", time.Since(start))
	g.writeJSON(context.WithoutCancel(ctx), conn, errorMessage{Type: "error", Error: err.Error()})
	return err
}

func (g *Gateway) writeJSON(ctx context.Context, conn Conn, v any) {
	data, _ := json.Marshal(v)
	wctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	_ = conn.Write(wctx, websocket.MessageText, data)
}

// session is the per-client state. Each goroutine in run owns the fields it
// is named after.
type session struct {
	cfg     Config
	vad     bool
	conn    Conn
	rs      realtime.Session
	log     *slog.Logger
	metrics *observe.Metrics

	inbound chan audio.Input
	framer  *audio.Framer
	capture *audio.Mailbox[audio.Chunk]
	player  *audio.Dejitterer

	outAudio *audio.Mailbox[[]byte]
	control  chan []byte

	gaps int64
}

func (s *session) run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	s.rs.OnError(func(err error) {
		s.log.Warn("voice: realtime error event", "err", err)
		s.sendControl(ctx, errorMessage{Type: "error", Error: err.Error()})
	})

	g.Go(func() error { return s.readClient(ctx) })
	g.Go(func() error { return s.captureLoop(ctx) })
	g.Go(func() error { return s.uplink(ctx) })
	g.Go(func() error { return s.downlink(ctx) })
	g.Go(func() error { return s.events(ctx) })
	g.Go(func() error { return s.render(ctx) })
	g.Go(func() error { return s.writeClient(ctx) })

	return g.Wait()
}

// readClient decodes browser messages: binary frames are float32 sample
// blocks, text frames are recording commands.
func (s *session) readClient(ctx context.Context) error {
	for {
		typ, data, err := s.conn.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				return errClientGone
			}
			return fmt.Errorf("%w: %w", errClientGone, err)
		}

		var msg audio.Input
		if typ == websocket.MessageBinary {
			msg.Block = audio.DecodeFloat32(data)
		} else if err := json.Unmarshal(data, &msg.Command); err != nil || msg.Command.Command == "" {
			s.log.Debug("voice: ignoring malformed control message", "err", err)
			continue
		}
		select {
		case s.inbound <- msg:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// captureLoop is the capture context. It is the only user of the framer.
// In push-to-talk mode STOP also queues a commit behind the flushed frame.
func (s *session) captureLoop(ctx context.Context) error {
	return s.framer.Run(ctx, s.inbound, func(cmd audio.Command) {
		if cmd.Command == audio.CommandStop && !s.vad {
			s.capture.TrySend(audio.Chunk{Type: commitChunk})
		}
	})
}

func (s *session) uplink(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case chunk := <-s.capture.C():
			if chunk.Type == commitChunk {
				if err := s.rs.Commit(); err != nil {
					return fmt.Errorf("voice: commit turn: %w", err)
				}
				continue
			}
			pcm := audio.Resample16(chunk.AudioData, s.cfg.ClientRate, s.cfg.ServiceRate)
			if err := s.rs.SendAudio(audio.EncodePCM16(pcm)); err != nil {
				return fmt.Errorf("voice: send audio: %w", err)
			}
		}
	}
}

// downlink feeds provider speech to the dejitterer in render-block frames.
// The barge-in marker clears playback in stream order, so speech queued
// ahead of it never plays.
func (s *session) downlink(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case b, ok := <-s.rs.Audio():
			if !ok {
				return s.providerClosed()
			}
			if b == nil {
				s.player.Clear()
				continue
			}
			pcm := audio.Resample16(audio.DecodePCM16(b), s.cfg.ServiceRate, s.cfg.ClientRate)
			for _, f := range audio.Split(pcm, s.cfg.BlockSize) {
				s.player.Post(f)
			}
		}
	}
}

// events relays transcripts and tells the client and provider about
// barge-in. Local playback is cleared by downlink.
func (s *session) events(ctx context.Context) error {
	transcripts, speech := s.rs.Transcripts(), s.rs.SpeechStarted()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case t, ok := <-transcripts:
			if !ok {
				return s.providerClosed()
			}
			s.sendControl(ctx, transcriptMessage{Type: "transcript", Role: t.Role, Text: t.Text})
		case _, ok := <-speech:
			if !ok {
				speech = nil
				continue
			}
			s.sendControl(ctx, clearMessage{Type: "clear"})
			if err := s.rs.Interrupt(); err != nil {
				s.log.Debug("voice: interrupt failed", "err", err)
			}
		}
	}
}

// render is the render clock. Blocks are forwarded while speech is queued
// and for one tick after it drains, so the client hears the tail.
func (s *session) render(ctx context.Context) error {
	prev := false
	return s.player.Run(ctx, s.cfg.BlockSize, s.cfg.RenderInterval, func(block []float32, played bool) {
		if !played && prev {
			s.gaps++
		}
		if played || prev {
			s.outAudio.TrySend(audio.EncodeFloat32(block))
		}
		prev = played
	})
}

// writeClient is the only writer to the connection.
func (s *session) writeClient(ctx context.Context) error {
	for {
		var (
			typ  websocket.MessageType
			data []byte
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case data = <-s.control:
			typ = websocket.MessageText
		case data = <-s.outAudio.C():
			typ = websocket.MessageBinary
		}
		if err := s.conn.Write(ctx, typ, data); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("%w: %w", errClientGone, err)
		}
	}
}

func (s *session) sendControl(ctx context.Context, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	select {
	case s.control <- data:
	case <-ctx.Done():
	}
}

func (s *session) providerClosed() error {
	if err := s.rs.Err(); err != nil {
		return fmt.Errorf("voice: realtime session: %w", err)
	}
	return errors.New("voice: realtime session closed")
}

func (s *session) recordDrops(ctx context.Context) {
	s.metrics.RecordDroppedFrames(ctx, "capture", int64(s.capture.Dropped()))
	s.metrics.RecordDroppedFrames(ctx, "playback", int64(s.player.Dropped()+s.outAudio.Dropped()))
	if s.gaps > 0 {
		s.metrics.PlaybackUnderruns.Add(ctx, s.gaps, metric.WithAttributes(attribute.String("stage", "playback")))
	}
}
