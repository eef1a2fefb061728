package chat

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	apperrors "github.com/louisbranch/macrotable/internal/platform/errors"
	"github.com/louisbranch/macrotable/internal/platform/errors/i18n"
	"github.com/louisbranch/macrotable/internal/platform/i18n/catalog"
	"github.com/louisbranch/macrotable/internal/services/macros/app"
	"github.com/louisbranch/macrotable/internal/services/macros/render"
	"golang.org/x/net/websocket"
)

type wsIdentityContextKey struct{}

// NewHandler serves chat without token checks. Identities come from the
// user_id and role query parameters.
func NewHandler(macros Macros, hub *Hub) http.Handler {
	return newHandler(macros, hub, identityFromQuery)
}

// NewHandlerWithAuthorizer serves chat only to requests carrying a valid
// table token cookie.
func NewHandlerWithAuthorizer(macros Macros, hub *Hub, authorizer Authorizer) http.Handler {
	return newHandler(macros, hub, cookieIdentity(authorizer))
}

// identityResolver returns the caller's identity, or writes an HTTP error
// and reports false.
type identityResolver func(w http.ResponseWriter, r *http.Request) (Identity, bool)

func newHandler(macros Macros, hub *Hub, resolve identityResolver) http.Handler {
	ws := websocket.Handler(func(conn *websocket.Conn) {
		serveConn(conn, macros, hub)
	})

	mux := http.NewServeMux()
	mux.HandleFunc("/up", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		identity, ok := resolve(w, r)
		if !ok {
			return
		}
		ws.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), wsIdentityContextKey{}, identity)))
	})
	return mux
}

func cookieIdentity(authorizer Authorizer) identityResolver {
	return func(w http.ResponseWriter, r *http.Request) (Identity, bool) {
		if authorizer == nil {
			http.Error(w, "websocket auth is not configured", http.StatusServiceUnavailable)
			return Identity{}, false
		}
		cookie, err := r.Cookie(tokenCookieName)
		if err != nil || strings.TrimSpace(cookie.Value) == "" {
			log.Printf("chat: websocket unauthorized: missing %s remote=%s", tokenCookieName, r.RemoteAddr)
			http.Error(w, "authentication required", http.StatusUnauthorized)
			return Identity{}, false
		}
		identity, err := authorizer.Authenticate(r.Context(), strings.TrimSpace(cookie.Value))
		if err != nil {
			log.Printf("chat: websocket unauthorized: remote=%s err=%v", r.RemoteAddr, err)
			http.Error(w, "authentication required", http.StatusUnauthorized)
			return Identity{}, false
		}
		return identity, true
	}
}

func identityFromQuery(_ http.ResponseWriter, r *http.Request) (Identity, bool) {
	query := r.URL.Query()
	identity := Identity{UserID: strings.TrimSpace(query.Get("user_id")), Role: RolePlayer}
	if identity.UserID == "" {
		identity.UserID = "participant"
	}
	if role, err := parseRole(query.Get("role")); err == nil {
		identity.Role = role
	}
	return identity, true
}

// frameLimiter counts frames in fixed one-second windows.
type frameLimiter struct {
	windowStart time.Time
	count       int
}

func (l *frameLimiter) allow(now time.Time) bool {
	if now.Sub(l.windowStart) >= time.Second {
		l.windowStart = now
		l.count = 0
	}
	l.count++
	return l.count <= maxFramesPerSecond
}

// frameCall is one inbound frame and everything a handler needs to answer it.
type frameCall struct {
	ctx     context.Context
	session *wsSession
	macros  Macros
	hub     *Hub
	frame   wsFrame
}

type frameHandler func(call *frameCall)

var frameHandlers = map[string]frameHandler{
	"table.join":           handleJoin,
	"chat.send":            handleSend,
	"chat.history.before":  handleHistoryBefore,
	"macro.counteract":     handleCounteract,
	"macro.whirling_throw": handleWhirlingThrow,
}

func serveConn(conn *websocket.Conn, macros Macros, hub *Hub) {
	defer conn.Close()

	ctx := context.Background()
	identity := Identity{UserID: "participant", Role: RolePlayer}
	if request := conn.Request(); request != nil {
		ctx = request.Context()
		if resolved, ok := ctx.Value(wsIdentityContextKey{}).(Identity); ok && resolved.UserID != "" {
			identity = resolved
		}
	}

	session := newWSSession(newWSPeer(json.NewEncoder(conn), identity))
	defer func() {
		if room, _ := session.currentRoom(); room != nil {
			hub.leave(room, session.peer)
		}
	}()

	decoder := json.NewDecoder(conn)
	var limiter frameLimiter
	badFrames := 0
	for {
		var frame wsFrame
		if err := decoder.Decode(&frame); err != nil {
			if errors.Is(err, io.EOF) {
				return
			}
			badFrames++
			_ = writeWSError(session.peer, "", "INVALID_ARGUMENT", "invalid frame payload")
			if badFrames >= maxDecodeErrorsPerConn {
				return
			}
			continue
		}
		badFrames = 0

		if len(frame.Payload) > maxFramePayloadBytes {
			_ = writeWSError(session.peer, frame.RequestID, "INVALID_ARGUMENT", "payload too large")
			continue
		}
		if !limiter.allow(time.Now()) {
			_ = writeWSError(session.peer, frame.RequestID, "RESOURCE_EXHAUSTED", "rate limit exceeded")
			return
		}

		handler, ok := frameHandlers[frame.Type]
		if !ok {
			_ = writeWSError(session.peer, frame.RequestID, "INVALID_ARGUMENT", "unsupported frame type")
			continue
		}
		handler(&frameCall{ctx: ctx, session: session, macros: macros, hub: hub, frame: frame})
	}
}

func (c *frameCall) fail(code, message string) {
	_ = writeWSError(c.session.peer, c.frame.RequestID, code, message)
}

// decode unmarshals the payload into v; name labels the payload in errors.
func (c *frameCall) decode(v any, name string) bool {
	if err := json.Unmarshal(c.frame.Payload, v); err != nil {
		c.fail("INVALID_ARGUMENT", "invalid "+name+" payload")
		return false
	}
	return true
}

// room returns the joined table and locale, failing with FORBIDDEN when the
// session has not joined one. action completes "must join table before ...".
func (c *frameCall) room(action string) (*tableRoom, string, bool) {
	room, locale := c.session.currentRoom()
	if room == nil {
		c.fail("FORBIDDEN", "must join table before "+action)
		return nil, "", false
	}
	return room, locale, true
}

func (c *frameCall) clientMessageID(raw string) (string, bool) {
	id := strings.TrimSpace(raw)
	switch {
	case id == "":
		c.fail("INVALID_ARGUMENT", "client_message_id is required")
		return "", false
	case utf8.RuneCountInString(id) > maxClientMessageIDRunes:
		c.fail("INVALID_ARGUMENT", "client_message_id must be at most 128 characters")
		return "", false
	}
	return id, true
}

func (c *frameCall) ack(result ackResult) {
	_ = c.session.peer.writeFrame(wsFrame{
		Type:      "chat.ack",
		RequestID: c.frame.RequestID,
		Payload:   mustJSON(ackEnvelope{Result: result}),
	})
}

// domainError reports err with its catalog code and localized message.
// Errors outside the catalog are logged and reported as INTERNAL.
func (c *frameCall) domainError(err error, locale string) {
	message, _ := i18n.UserMessage(err, locale)
	domainErr, ok := apperrors.As(err)
	if !ok {
		log.Printf("chat: macro failed user=%q err=%v", c.session.peer.identity.UserID, err)
		c.fail("INTERNAL", message)
		return
	}
	_ = c.session.peer.writeFrame(wsFrame{
		Type:      "chat.error",
		RequestID: c.frame.RequestID,
		Payload: mustJSON(wsErrorEnvelope{Error: wsError{
			Code:      string(domainErr.Code),
			Message:   message,
			Retryable: domainErr.Code == apperrors.CodeSeedUnavailable,
		}}),
	})
}

func handleJoin(c *frameCall) {
	var payload joinPayload
	if !c.decode(&payload, "join") {
		return
	}
	tableID := strings.TrimSpace(payload.TableID)
	if tableID == "" {
		c.fail("INVALID_ARGUMENT", "table_id is required")
		return
	}

	var latest int64
	recent, err := c.macros.HistoryBefore(c.ctx, tableID, 0, 1)
	if err != nil {
		log.Printf("chat: read latest sequence table=%q err=%v", tableID, err)
		c.fail("UNAVAILABLE", "table history unavailable")
		return
	}
	if len(recent) > 0 {
		latest = recent[len(recent)-1].SequenceID
	}

	locale := catalog.Default().MatchLocale(payload.Locale)
	peer := c.session.peer
	room := c.hub.join(tableID, peer)
	if previous := c.session.setRoom(room, locale); previous != nil && previous != room {
		c.hub.leave(previous, peer)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	_ = peer.writeFrame(wsFrame{
		Type:      "table.joined",
		RequestID: c.frame.RequestID,
		Payload: mustJSON(joinedPayload{
			TableID:          tableID,
			UserID:           peer.identity.UserID,
			Role:             string(peer.identity.Role),
			LatestSequenceID: latest,
			ServerTime:       now,
		}),
	})
	_ = peer.writeFrame(wsFrame{
		Type: "chat.message",
		Payload: mustJSON(messageEnvelope{Message: chatMessage{
			MessageID:  "sys_" + tableID,
			TableID:    tableID,
			SequenceID: latest,
			SentAt:     now,
			Kind:       "system",
			UserID:     "system",
			Body:       render.NewLocalizer(locale).Sprintf("macros.chat.joined", peer.identity.UserID),
		}}),
	})
}

func handleSend(c *frameCall) {
	var payload sendPayload
	if !c.decode(&payload, "send") {
		return
	}
	clientMessageID, ok := c.clientMessageID(payload.ClientMessageID)
	if !ok {
		return
	}
	body := strings.TrimSpace(payload.Body)
	switch {
	case body == "":
		c.fail("INVALID_ARGUMENT", "body is required")
		return
	case utf8.RuneCountInString(body) > maxMessageBodyRunes:
		c.fail("INVALID_ARGUMENT", "body must be at most 2000 characters")
		return
	}
	room, locale, ok := c.room("sending")
	if !ok {
		return
	}

	msg, err := c.macros.PostChat(c.ctx, app.PostChatRequest{
		TableID:         room.tableID,
		UserID:          c.session.peer.identity.UserID,
		Body:            body,
		Whisper:         payload.Whisper,
		ClientMessageID: clientMessageID,
	})
	if err != nil {
		c.domainError(err, locale)
		return
	}
	c.ack(ackResult{Status: "ok", MessageID: msg.ID, SequenceID: msg.SequenceID})
}

// handleHistoryBefore replays older messages the caller may see, then acks
// with how many were sent.
func handleHistoryBefore(c *frameCall) {
	var payload historyBeforePayload
	if !c.decode(&payload, "history") {
		return
	}
	if payload.BeforeSequenceID < 1 {
		c.fail("INVALID_ARGUMENT", "before_sequence_id must be >= 1")
		return
	}
	room, locale, ok := c.room("requesting history")
	if !ok {
		return
	}

	history, err := c.macros.HistoryBefore(c.ctx, room.tableID, payload.BeforeSequenceID, payload.Limit)
	if err != nil {
		c.domainError(err, locale)
		return
	}
	peer := c.session.peer
	sent := 0
	for _, msg := range history {
		if !peer.canSee(msg) {
			continue
		}
		sent++
		_ = peer.writeFrame(wsFrame{Type: "chat.message", Payload: mustJSON(messageEnvelope{Message: toChatMessage(msg)})})
	}
	c.ack(ackResult{Status: "ok", Count: sent})
}

func handleCounteract(c *frameCall) {
	var payload counteractPayload
	if !c.decode(&payload, "counteract") {
		return
	}
	clientMessageID, ok := c.clientMessageID(payload.ClientMessageID)
	if !ok {
		return
	}
	room, locale, ok := c.room("running macros")
	if !ok {
		return
	}

	result, err := c.macros.CounteractCheck(c.ctx, app.CounteractCheckRequest{
		TableID:         room.tableID,
		UserID:          c.session.peer.identity.UserID,
		Modifier:        payload.Modifier,
		Bonus:           payload.Bonus,
		DC:              payload.DC,
		YourRank:        payload.YourRank,
		OppRank:         payload.OppRank,
		Secret:          payload.Secret,
		UseLastRoll:     payload.UseLastRoll,
		Seed:            payload.Seed,
		Locale:          locale,
		ClientMessageID: clientMessageID,
	})
	if err != nil {
		c.domainError(err, locale)
		return
	}
	c.ack(ackResult{
		Status:     "ok",
		MessageID:  result.CardMessage.ID,
		SequenceID: result.CardMessage.SequenceID,
		Macro: &macroResult{
			Degree:       result.Result.Degree.Code(),
			Counteracted: result.Result.Counteracted,
			Total:        result.Input.RollTotal,
			Breakdown:    result.Breakdown,
			Text:         result.Text,
		},
	})
}

func handleWhirlingThrow(c *frameCall) {
	var payload whirlingThrowPayload
	if !c.decode(&payload, "whirling throw") {
		return
	}
	clientMessageID, ok := c.clientMessageID(payload.ClientMessageID)
	if !ok {
		return
	}
	room, locale, ok := c.room("running macros")
	if !ok {
		return
	}

	result, err := c.macros.WhirlingThrow(c.ctx, app.WhirlingThrowRequest{
		TableID:         room.tableID,
		UserID:          c.session.peer.identity.UserID,
		CharacterID:     payload.CharacterID,
		Locale:          locale,
		RollDamage:      payload.RollDamage,
		Seed:            payload.Seed,
		ClientMessageID: clientMessageID,
	})
	if err != nil {
		c.domainError(err, locale)
		return
	}
	macro := &macroResult{
		DistanceFeet: result.Throw.DistanceFeet,
		Damage:       result.Throw.DamageSyntax,
		Text:         result.Text,
	}
	if result.Damage != nil {
		macro.Total = result.Damage.Total
	}
	c.ack(ackResult{Status: "ok", MessageID: result.Card.ID, SequenceID: result.Card.SequenceID, Macro: macro})
}

func writeWSError(peer *wsPeer, requestID string, code string, message string) error {
	return peer.writeFrame(wsFrame{
		Type:      "chat.error",
		RequestID: requestID,
		Payload:   mustJSON(wsErrorEnvelope{Error: wsError{Code: code, Message: message}}),
	})
}

func mustJSON(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		log.Printf("chat: marshal frame payload: %v", err)
		return nil
	}
	return b
}
