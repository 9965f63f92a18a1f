// Package api exposes the HTTP surface of the service: lesson generation,
// companion chat and the voice WebSocket.
//
// Every error response has the shape {"error": "<message>"}.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	"slices"

	"github.com/coder/websocket"

	"github.com/cognify-ai/cognify/internal/chat"
	"github.com/cognify-ai/cognify/internal/generate"
	"github.com/cognify-ai/cognify/internal/observe"
	"github.com/cognify-ai/cognify/internal/voice"
	"github.com/cognify-ai/cognify/pkg/provider/llm"
)

// multipartSlack is allowed on top of the file limit for multipart framing
// and other form fields.
const multipartSlack = 1 << 20

// maxChatBody caps a /chat request body.
const maxChatBody = 256 << 10

// maxVoiceMessage caps a single WebSocket message from the browser.
const maxVoiceMessage = 1 << 20

// Generator produces lessons from uploads. *generate.Orchestrator satisfies it.
type Generator interface {
	Generate(ctx context.Context, up generate.Upload) (*generate.Result, error)
}

// Chatter answers chat messages. *chat.Service satisfies it.
type Chatter interface {
	Reply(ctx context.Context, message string, history []llm.Message) (llm.Message, error)
}

// VoiceServer runs one voice session. *voice.Gateway satisfies it.
type VoiceServer interface {
	Serve(ctx context.Context, conn voice.Conn) error
}

var (
	_ Generator   = (*generate.Orchestrator)(nil)
	_ Chatter     = (*chat.Service)(nil)
	_ VoiceServer = (*voice.Gateway)(nil)
)

// Config holds request limits and browser access settings.
type Config struct {
	MaxUploadBytes int64
	CORSOrigins    []string
}

// Server routes API requests. Chat and voice routes exist only when their
// backends are configured.
type Server struct {
	cfg   Config
	gen   Generator
	chat  Chatter
	voice VoiceServer
}

// Option configures a [Server].
type Option func(*Server)

// WithChat enables POST /chat.
func WithChat(c Chatter) Option {
	return func(s *Server) { s.chat = c }
}

// WithVoice enables GET /voice.
func WithVoice(v VoiceServer) Option {
	return func(s *Server) { s.voice = v }
}

// New returns a Server generating lessons with gen.
func New(cfg Config, gen Generator, opts ...Option) *Server {
	s := &Server{cfg: cfg, gen: gen}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Register adds the API routes to mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /analyze-and-generate", s.handleGenerate)
	if s.chat != nil {
		mux.HandleFunc("POST /chat", s.handleChat)
	}
	if s.voice != nil {
		mux.HandleFunc("GET /voice", s.handleVoice)
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// handleGenerate handles POST /analyze-and-generate. The "file" part is
// streamed straight into the generator, which stages it on disk.
func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	log := observe.Logger(r.Context())
	if s.cfg.MaxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes+multipartSlack)
	}

	part, err := filePart(r)
	if err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			writeError(w, http.StatusRequestEntityTooLarge, generate.PublicMessage(generate.ErrTooLarge))
			return
		}
		log.Debug("api: no file part", "err", err)
		writeError(w, http.StatusBadRequest, generate.PublicMessage(generate.ErrNoFile))
		return
	}
	defer part.Close()

	res, err := s.gen.Generate(r.Context(), generate.Upload{
		Reader:   part,
		Name:     part.FileName(),
		MimeType: part.Header.Get("Content-Type"),
		Size:     -1,
	})
	if err != nil {
		status := statusFor(err)
		if status >= http.StatusInternalServerError {
			log.Error("api: lesson generation failed", "err", err)
		} else {
			log.Info("api: lesson generation rejected", "err", err)
		}
		msg := generate.PublicMessage(err)
		if status == http.StatusRequestEntityTooLarge {
			msg = generate.PublicMessage(generate.ErrTooLarge)
		}
		writeError(w, status, msg)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// filePart returns the first part named "file".
func filePart(r *http.Request) (*multipart.Part, error) {
	ct, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || ct != "multipart/form-data" {
		return nil, errors.New("request is not multipart/form-data")
	}
	mr, err := r.MultipartReader()
	if err != nil {
		return nil, err
	}
	for {
		p, err := mr.NextPart()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil, errors.New("no file part")
			}
			return nil, err
		}
		if p.FormName() == "file" {
			return p, nil
		}
		_ = p.Close()
	}
}

// statusFor maps a generation error to an HTTP status.
func statusFor(err error) int {
	var mbe *http.MaxBytesError
	switch {
	case errors.Is(err, generate.ErrNoFile):
		return http.StatusBadRequest
	case errors.Is(err, generate.ErrTooLarge), errors.As(err, &mbe):
		return http.StatusRequestEntityTooLarge
	default:
		return http.StatusInternalServerError
	}
}

type chatRequest struct {
	Message string        `json:"message"`
	History []llm.Message `json:"history"`
}

// handleChat handles POST /chat.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxChatBody))
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body.")
		return
	}

	reply, err := s.chat.Reply(r.Context(), req.Message, req.History)
	switch {
	case errors.Is(err, chat.ErrEmptyMessage):
		writeError(w, http.StatusBadRequest, "Message is required.")
		return
	case err != nil:
		observe.Logger(r.Context()).Error("api: chat reply failed", "err", err)
		writeError(w, http.StatusInternalServerError, "The companion is unavailable right now. Please try again.")
		return
	}
	writeJSON(w, http.StatusOK, reply)
}

// handleVoice upgrades GET /voice to a WebSocket and runs a voice session.
func (s *Server) handleVoice(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, s.acceptOptions())
	if err != nil {
		observe.Logger(r.Context()).Info("api: voice upgrade rejected", "err", err)
		return
	}
	defer conn.CloseNow()
	conn.SetReadLimit(maxVoiceMessage)

	if err := s.voice.Serve(r.Context(), conn); err != nil {
		conn.Close(websocket.StatusInternalError, "voice session failed")
		return
	}
	conn.Close(websocket.StatusNormalClosure, "")
}

func (s *Server) acceptOptions() *websocket.AcceptOptions {
	if slices.Contains(s.cfg.CORSOrigins, "*") {
		return &websocket.AcceptOptions{InsecureSkipVerify: true}
	}
	opts := &websocket.AcceptOptions{}
	for _, o := range s.cfg.CORSOrigins {
		if u, err := url.Parse(o); err == nil && u.Host != "" {
			opts.OriginPatterns = append(opts.OriginPatterns, u.Host)
		}
	}
	return opts
}
