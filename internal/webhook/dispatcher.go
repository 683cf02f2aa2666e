// ABOUTME: HTTP dispatcher for provider webhooks and the operator API.
// ABOUTME: Webhook intake always acknowledges with 200 so the provider never retries.

package webhook

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/clinicops/intake-gateway/internal/auth"
	"github.com/clinicops/intake-gateway/internal/chatlog"
	"github.com/clinicops/intake-gateway/internal/dedupe"
	"github.com/clinicops/intake-gateway/internal/flow"
	"github.com/clinicops/intake-gateway/internal/identity"
	"github.com/clinicops/intake-gateway/internal/menu"
	"github.com/clinicops/intake-gateway/internal/outbound"
	"github.com/clinicops/intake-gateway/internal/session"
)

const maxBodyBytes = 1 << 20

// Dispatcher wires the inbound pipeline and the operator surface into one
// HTTP handler.
type Dispatcher struct {
	normalizer *identity.Normalizer
	ledger     dedupe.Ledger
	log        chatlog.Log
	sessions   session.Store
	router     *menu.Router
	gw         *outbound.Gateway
	issuer     *auth.TokenIssuer
	verifyTok  string
	logger     *slog.Logger
}

// Options bundles the Dispatcher's collaborators.
type Options struct {
	Normalizer  *identity.Normalizer
	Ledger      dedupe.Ledger
	Log         chatlog.Log
	Sessions    session.Store
	Router      *menu.Router
	Gateway     *outbound.Gateway
	Issuer      *auth.TokenIssuer
	VerifyToken string
	Logger      *slog.Logger
}

// New creates a Dispatcher.
func New(opts Options) *Dispatcher {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		normalizer: opts.Normalizer,
		ledger:     opts.Ledger,
		log:        opts.Log,
		sessions:   opts.Sessions,
		router:     opts.Router,
		gw:         opts.Gateway,
		issuer:     opts.Issuer,
		verifyTok:  opts.VerifyToken,
		logger:     logger.With("component", "webhook"),
	}
}

// Handler returns the full HTTP routing tree.
func (d *Dispatcher) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/health", d.handleHealth)
	r.Get("/wsp/webhook", d.handleVerify)
	r.Post("/wsp/webhook", d.handleEvents)

	r.Route("/api/operator", func(r chi.Router) {
		r.Use(auth.RequireOperator(d.issuer, d.logger))
		r.Get("/chats", d.handleChats)
		r.Get("/history", d.handleHistory)
		r.Post("/send", d.handleSend)
		r.Post("/token", d.handleToken)
	})

	return r
}

func (d *Dispatcher) handleHealth(w http.ResponseWriter, r *http.Request) {
	d.writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// handleVerify answers the provider's subscription handshake: echo the
// challenge when the verify token matches, reject otherwise.
func (d *Dispatcher) handleVerify(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("hub.mode") == "subscribe" && d.verifyTok != "" && q.Get("hub.verify_token") == d.verifyTok {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(q.Get("hub.challenge")))
		return
	}
	d.logger.Warn("webhook verification rejected", "mode", q.Get("hub.mode"))
	http.Error(w, "forbidden", http.StatusForbidden)
}

// handleEvents runs the inbound pipeline. The provider retries anything
// that is not a 2xx, so every outcome past body reading acknowledges 200.
func (d *Dispatcher) handleEvents(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		d.logger.Warn("failed to read webhook body", "error", err)
		d.writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
		return
	}

	events, err := ParseEnvelope(body)
	if err != nil {
		d.logger.Warn("unparsable webhook envelope", "error", err)
		d.writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
		return
	}

	for _, ev := range events {
		d.processEvent(r.Context(), ev)
	}

	d.writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (d *Dispatcher) processEvent(ctx context.Context, ev Event) {
	if ev.Kind == EventStatus {
		d.logger.Debug("delivery status update", "event_id", ev.EventID, "status", ev.Text)
		return
	}

	key, err := d.normalizer.Canonicalize(ev.SenderRaw)
	if err != nil {
		d.logger.Warn("dropping event with unparsable sender", "sender", ev.SenderRaw, "event_id", ev.EventID)
		return
	}

	if ev.EventID != "" && d.ledger.CheckAndMark(ctx, key, ev.EventID) {
		d.logger.Debug("duplicate event short-circuited", "key", key, "event_id", ev.EventID)
		return
	}

	d.appendInbound(ctx, key, ev)

	// Remember the raw address the provider used; outbound sends prefer it.
	sess := d.sessions.Get(ctx, key)
	if sess.LastAddress != ev.SenderRaw {
		sess.LastAddress = ev.SenderRaw
		if err := d.sessions.Put(ctx, key, sess); err != nil {
			d.logger.Warn("failed to persist session", "key", key, "error", err)
		}
	}

	t := outbound.Target{Key: key, Address: identity.SendAddress(key, ev.SenderRaw)}

	switch ev.Kind {
	case EventMedia:
		d.router.AcknowledgeUpload(ctx, t)
	case EventText, EventInteractive:
		d.router.Route(ctx, t, flow.Input{Text: ev.Text, OptionID: ev.OptionID})
	default:
		d.logger.Debug("ignoring event of unknown kind", "key", key, "event_id", ev.EventID)
	}
}

// appendInbound records the inbound message before any reply is attempted,
// so operators see what arrived even when handling fails downstream.
func (d *Dispatcher) appendInbound(ctx context.Context, key string, ev Event) {
	msg := &chatlog.Message{
		ID:              ev.EventID,
		ConversationKey: key,
		Direction:       chatlog.DirectionIn,
		Timestamp:       ev.Timestamp,
		Kind:            chatlog.KindText,
		Text:            ev.Text,
	}
	if msg.ID == "" {
		msg.ID = "in-" + uuid.New().String()
	}

	switch ev.Kind {
	case EventMedia:
		switch ev.MediaKind {
		case "image":
			msg.Kind = chatlog.KindImage
		case "document":
			msg.Kind = chatlog.KindDocument
		}
		msg.Text = mediaPlaceholder(ev.MediaKind)
		msg.Caption = ev.Caption
	case EventUnknown:
		msg.Text = "[mensaje no soportado]"
	}

	if err := d.log.Append(ctx, msg); err != nil {
		d.logger.Error("failed to record inbound message", "key", key, "error", err)
	}
}

func mediaPlaceholder(kind string) string {
	switch kind {
	case "image":
		return "[imagen]"
	case "document":
		return "[documento]"
	case "audio":
		return "[audio]"
	case "video":
		return "[video]"
	default:
		return "[archivo]"
	}
}

// chatsResponse is the JSON response for GET /api/operator/chats.
type chatsResponse struct {
	Chats []chatlog.ChatSummary `json:"chats"`
}

func (d *Dispatcher) handleChats(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	// Operator reads degrade to an empty result so the tooling keeps working
	// while the store is unavailable.
	chats, err := d.log.RecentChats(r.Context(), limit)
	if err != nil {
		d.logger.Error("failed to list chats", "error", err)
		chats = nil
	}
	if chats == nil {
		chats = []chatlog.ChatSummary{}
	}
	d.writeJSON(w, http.StatusOK, chatsResponse{Chats: chats})
}

// historyResponse is the JSON response for GET /api/operator/history.
type historyResponse struct {
	ConversationKey string             `json:"conversation_key"`
	Messages        []*chatlog.Message `json:"messages"`
}

func (d *Dispatcher) handleHistory(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("wa")
	if raw == "" {
		d.sendJSONError(w, http.StatusBadRequest, "wa parameter is required")
		return
	}
	key, err := d.normalizer.Canonicalize(raw)
	if err != nil {
		d.sendJSONError(w, http.StatusBadRequest, "unparsable wa parameter")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	msgs, err := d.log.History(r.Context(), key, limit)
	if err != nil {
		d.logger.Error("failed to read history", "key", key, "error", err)
		msgs = nil
	}
	if msgs == nil {
		msgs = []*chatlog.Message{}
	}
	d.writeJSON(w, http.StatusOK, historyResponse{ConversationKey: key, Messages: msgs})
}

// sendRequest is the JSON request body for POST /api/operator/send. The
// secret field is consumed by the auth middleware.
type sendRequest struct {
	Op              string `json:"op,omitempty"`
	Secret          string `json:"secret,omitempty"`
	ConversationKey string `json:"conversationKey"`
	Text            string `json:"text,omitempty"`
	MediaType       string `json:"mediaType,omitempty"`
	Link            string `json:"link,omitempty"`
	Caption         string `json:"caption,omitempty"`
}

// sendResponse is the JSON response for POST /api/operator/send.
type sendResponse struct {
	ConversationKey string `json:"conversationKey"`
	Delivered       bool   `json:"delivered"`
}

func (d *Dispatcher) handleSend(w http.ResponseWriter, r *http.Request) {
	var req sendRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		d.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.ConversationKey == "" {
		d.sendJSONError(w, http.StatusBadRequest, "conversationKey is required")
		return
	}

	key, err := d.normalizer.Canonicalize(req.ConversationKey)
	if err != nil {
		d.sendJSONError(w, http.StatusBadRequest, "unparsable conversationKey")
		return
	}

	sess := d.sessions.Get(r.Context(), key)
	t := outbound.Target{Key: key, Address: identity.SendAddress(key, sess.LastAddress)}

	switch req.Op {
	case "", "send":
		if req.Text == "" {
			d.sendJSONError(w, http.StatusBadRequest, "text is required")
			return
		}
		err = d.gw.SendText(r.Context(), t, req.Text)
		if err != nil {
			d.appendDeliveryFailure(r.Context(), key, "No se pudo entregar el mensaje anterior")
		}

	case "send-media":
		kind := outbound.MediaKind(req.MediaType)
		if kind != outbound.MediaImage && kind != outbound.MediaDocument {
			d.sendJSONError(w, http.StatusBadRequest, "mediaType must be image or document")
			return
		}
		if req.Link == "" {
			d.sendJSONError(w, http.StatusBadRequest, "link is required")
			return
		}
		err = d.gw.SendMedia(r.Context(), t, kind, req.Link, req.Caption)
		if err != nil {
			// Media has no text degradation; leave a marker so the thread
			// shows the attempted delivery.
			d.appendDeliveryFailure(r.Context(), key, "No se pudo entregar el archivo "+mediaPlaceholder(req.MediaType))
		}

	default:
		d.sendJSONError(w, http.StatusBadRequest, "unknown op")
		return
	}

	if err != nil {
		d.logger.Warn("operator send failed", "key", key, "op", req.Op, "error", err)
	}
	d.writeJSON(w, http.StatusOK, sendResponse{ConversationKey: key, Delivered: err == nil})
}

// appendDeliveryFailure leaves an outbound marker after a failed operator
// send so the thread shows the delivery did not go through.
func (d *Dispatcher) appendDeliveryFailure(ctx context.Context, key, text string) {
	msg := &chatlog.Message{
		ID:              "out-" + uuid.New().String(),
		ConversationKey: key,
		Direction:       chatlog.DirectionOut,
		Timestamp:       time.Now().UTC(),
		Kind:            chatlog.KindText,
		Text:            text,
	}
	if err := d.log.Append(ctx, msg); err != nil {
		d.logger.Error("failed to record delivery failure", "key", key, "error", err)
	}
}

// tokenRequest is the JSON request body for POST /api/operator/token.
type tokenRequest struct {
	Operator string `json:"operator"`
	TTL      string `json:"ttl,omitempty"`
}

// tokenResponse is the JSON response for POST /api/operator/token.
type tokenResponse struct {
	Token     string `json:"token"`
	ExpiresIn int64  `json:"expires_in"`
}

func (d *Dispatcher) handleToken(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		d.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Operator == "" {
		d.sendJSONError(w, http.StatusBadRequest, "operator is required")
		return
	}

	ttl := auth.DefaultTokenTTL
	if req.TTL != "" {
		parsed, err := time.ParseDuration(req.TTL)
		if err != nil || parsed <= 0 {
			d.sendJSONError(w, http.StatusBadRequest, "invalid ttl")
			return
		}
		ttl = parsed
	}

	token, err := d.issuer.Mint(req.Operator, ttl)
	if err != nil {
		d.logger.Error("failed to mint operator token", "error", err)
		d.sendJSONError(w, http.StatusInternalServerError, "token minting failed")
		return
	}

	d.writeJSON(w, http.StatusOK, tokenResponse{Token: token, ExpiresIn: int64(ttl.Seconds())})
}

func (d *Dispatcher) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		d.logger.Error("failed to encode response", "error", err)
	}
}

// sendJSONError writes a JSON error response.
func (d *Dispatcher) sendJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
