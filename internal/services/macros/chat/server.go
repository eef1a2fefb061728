// Package chat hosts the table chat websocket: players join a table, chat,
// and run macros whose cards are delivered to everyone allowed to see them.
package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/louisbranch/macrotable/internal/platform/timeouts"
	"github.com/louisbranch/macrotable/internal/services/macros/app"
	"github.com/louisbranch/macrotable/internal/services/macros/storage"
)

const (
	tokenCookieName = "mt_token"

	maxFramePayloadBytes   = 16 * 1024
	maxFramesPerSecond     = 40
	maxDecodeErrorsPerConn = 3

	maxMessageBodyRunes     = 2000
	maxClientMessageIDRunes = 128
)

// Macros is the macro service surface the websocket drives.
type Macros interface {
	CounteractCheck(ctx context.Context, req app.CounteractCheckRequest) (app.CounteractCheckResult, error)
	WhirlingThrow(ctx context.Context, req app.WhirlingThrowRequest) (app.WhirlingThrowResult, error)
	PostChat(ctx context.Context, req app.PostChatRequest) (storage.Message, error)
	HistoryBefore(ctx context.Context, tableID string, beforeSequenceID int64, limit int) ([]storage.Message, error)
}

// Config defines the inputs for the chat transport boundary.
type Config struct {
	HTTPAddr string
	// TokenSecret signs table tokens. Empty disables auth, and identities
	// then come from the user_id and role query parameters.
	TokenSecret       string
	TokenIssuer       string
	ReadHeaderTimeout time.Duration
	ShutdownTimeout   time.Duration
}

// Server hosts the chat HTTP/WebSocket process.
type Server struct {
	httpAddr        string
	shutdownTimeout time.Duration
	httpServer      *http.Server
}

type wsFrame struct {
	Type      string          `json:"type"`
	RequestID string          `json:"request_id,omitempty"`
	Payload   json.RawMessage `json:"payload"`
}

type wsErrorEnvelope struct {
	Error wsError `json:"error"`
}

type wsError struct {
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	Retryable bool           `json:"retryable"`
	Details   map[string]any `json:"details,omitempty"`
}

type joinPayload struct {
	TableID        string `json:"table_id"`
	LastSequenceID int64  `json:"last_sequence_id,omitempty"`
	Locale         string `json:"locale,omitempty"`
}

type joinedPayload struct {
	TableID          string `json:"table_id"`
	UserID           string `json:"user_id"`
	Role             string `json:"role"`
	LatestSequenceID int64  `json:"latest_sequence_id"`
	ServerTime       string `json:"server_time"`
}

type sendPayload struct {
	ClientMessageID string `json:"client_message_id"`
	Body            string `json:"body"`
	Whisper         bool   `json:"whisper,omitempty"`
}

type historyBeforePayload struct {
	BeforeSequenceID int64 `json:"before_sequence_id"`
	Limit            int   `json:"limit"`
}

type counteractPayload struct {
	ClientMessageID string `json:"client_message_id"`
	Modifier        int    `json:"modifier"`
	Bonus           int    `json:"bonus"`
	DC              int    `json:"dc"`
	YourRank        int    `json:"your_rank"`
	OppRank         int    `json:"opp_rank"`
	Secret          bool   `json:"secret,omitempty"`
	UseLastRoll     bool   `json:"use_last_roll,omitempty"`
	Seed            *int64 `json:"seed,omitempty"`
}

type whirlingThrowPayload struct {
	ClientMessageID string `json:"client_message_id"`
	CharacterID     string `json:"character_id,omitempty"`
	RollDamage      bool   `json:"roll_damage,omitempty"`
	Seed            *int64 `json:"seed,omitempty"`
}

type messageEnvelope struct {
	Message chatMessage `json:"message"`
}

type chatMessage struct {
	MessageID       string `json:"message_id"`
	TableID         string `json:"table_id"`
	SequenceID      int64  `json:"sequence_id"`
	SentAt          string `json:"sent_at"`
	Kind            string `json:"kind"`
	UserID          string `json:"user_id"`
	Flavor          string `json:"flavor,omitempty"`
	Body            string `json:"body"`
	DieResult       int    `json:"die_result,omitempty"`
	RollTotal       int    `json:"roll_total,omitempty"`
	Whisper         bool   `json:"whisper,omitempty"`
	Blind           bool   `json:"blind,omitempty"`
	ClientMessageID string `json:"client_message_id,omitempty"`
}

type ackEnvelope struct {
	Result ackResult `json:"result"`
}

type ackResult struct {
	Status     string       `json:"status"`
	MessageID  string       `json:"message_id,omitempty"`
	SequenceID int64        `json:"sequence_id,omitempty"`
	Count      int          `json:"count,omitempty"`
	Macro      *macroResult `json:"macro,omitempty"`
}

type macroResult struct {
	Degree       string `json:"degree,omitempty"`
	Counteracted bool   `json:"counteracted"`
	Total        int    `json:"total,omitempty"`
	Breakdown    string `json:"breakdown,omitempty"`
	DistanceFeet int    `json:"distance_feet,omitempty"`
	Damage       string `json:"damage,omitempty"`
	Text         string `json:"text"`
}

func toChatMessage(msg storage.Message) chatMessage {
	return chatMessage{
		MessageID:       msg.ID,
		TableID:         msg.TableID,
		SequenceID:      msg.SequenceID,
		SentAt:          msg.SentAt.UTC().Format(time.RFC3339),
		Kind:            string(msg.Kind),
		UserID:          msg.UserID,
		Flavor:          msg.Flavor,
		Body:            msg.Body,
		DieResult:       msg.DieResult,
		RollTotal:       msg.RollTotal,
		Whisper:         msg.Whisper,
		Blind:           msg.Blind,
		ClientMessageID: msg.ClientMessageID,
	}
}

// NewServer builds a chat server over macros. hub must also be registered as
// a listener on the sink macros post through.
func NewServer(config Config, macros Macros, hub *Hub) (*Server, error) {
	httpAddr := strings.TrimSpace(config.HTTPAddr)
	if httpAddr == "" {
		return nil, errors.New("http address is required")
	}
	if macros == nil {
		return nil, errors.New("macro service is required")
	}
	if hub == nil {
		return nil, errors.New("hub is required")
	}
	if config.ReadHeaderTimeout <= 0 {
		config.ReadHeaderTimeout = timeouts.ReadHeader
	}
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = timeouts.Shutdown
	}

	var handler http.Handler
	if secret := strings.TrimSpace(config.TokenSecret); secret != "" {
		authorizer, err := NewTokenAuthorizer(TokenConfig{Secret: []byte(secret), Issuer: config.TokenIssuer})
		if err != nil {
			return nil, fmt.Errorf("init token authorizer: %w", err)
		}
		handler = NewHandlerWithAuthorizer(macros, hub, authorizer)
	} else {
		log.Printf("chat: websocket auth disabled, identities come from query parameters")
		handler = NewHandler(macros, hub)
	}

	return &Server{
		httpAddr:        httpAddr,
		shutdownTimeout: config.ShutdownTimeout,
		httpServer: &http.Server{
			Addr:              httpAddr,
			Handler:           handler,
			ReadHeaderTimeout: config.ReadHeaderTimeout,
		},
	}, nil
}

// ListenAndServe runs the HTTP server until the context ends.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if s == nil {
		return errors.New("chat server is nil")
	}
	listener, err := net.Listen("tcp", s.httpAddr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.httpAddr, err)
	}
	return s.Serve(ctx, listener)
}

// Serve runs the HTTP server on listener until the context ends.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	if s == nil {
		return errors.New("chat server is nil")
	}
	if ctx == nil {
		return errors.New("context is required")
	}

	serveErr := make(chan error, 1)
	log.Printf("chat server listening on %s", listener.Addr())
	go func() {
		serveErr <- s.httpServer.Serve(listener)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		err := s.httpServer.Shutdown(shutdownCtx)
		cancel()
		if err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		return nil
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve http: %w", err)
	}
}
