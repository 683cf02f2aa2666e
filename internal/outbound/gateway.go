// ABOUTME: Outbound gateway pairing every provider send with a message log append.
// ABOUTME: Failed rich sends retry once as a plain numbered text menu.

package outbound

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/clinicops/intake-gateway/internal/chatlog"
)

// Target addresses one conversation for delivery: the canonical key for
// the log, and the raw provider address for the wire.
type Target struct {
	Key     string
	Address string
}

// Gateway sends messages through the Provider and snapshots what was
// actually delivered into the message log. Log append failures are logged
// and never block delivery.
type Gateway struct {
	provider Provider
	log      chatlog.Log
	logger   *slog.Logger
}

// NewGateway creates a Gateway over the provider and message log.
func NewGateway(provider Provider, log chatlog.Log, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{
		provider: provider,
		log:      log,
		logger:   logger.With("component", "outbound"),
	}
}

// SendText delivers a plain text message and records it. Delivery failure
// still records the message under a synthesized id so the operator console
// shows what the subscriber was meant to receive.
func (g *Gateway) SendText(ctx context.Context, t Target, body string) error {
	providerID, err := g.provider.SendText(ctx, t.Address, body)
	if err != nil {
		g.logger.Warn("text send failed", "key", t.Key, "error", err)
	}
	g.record(ctx, t, &chatlog.Message{
		ID:   providerID,
		Kind: chatlog.KindText,
		Text: body,
	})
	return err
}

// SendButtons delivers an interactive button message, paginating beyond
// the provider's three-button limit into multiple messages. A failed
// button send degrades to an equivalent numbered text menu; only the
// message actually delivered is recorded.
func (g *Gateway) SendButtons(ctx context.Context, t Target, body string, options []Option) error {
	var firstErr error
	for i, chunk := range paginate(options, maxButtons) {
		chunkBody := body
		if i > 0 {
			chunkBody = "Más opciones:"
		}

		providerID, err := g.provider.SendButtons(ctx, t.Address, chunkBody, chunk)
		if err != nil {
			g.logger.Warn("button send failed, falling back to text menu", "key", t.Key, "error", err)
			// Numbering continues across chunks so numeric replies stay
			// unambiguous.
			fallback := numberedMenuFrom(chunkBody, chunk, i*maxButtons+1)
			if err := g.SendText(ctx, t, fallback); err != nil && firstErr == nil {
				firstErr = err
			}
			continue
		}

		g.record(ctx, t, &chatlog.Message{
			ID:      providerID,
			Kind:    chatlog.KindButtons,
			Text:    chunkBody,
			Options: titles(chunk),
		})
	}
	return firstErr
}

// SendList delivers an interactive list message, degrading to a numbered
// text menu on failure.
func (g *Gateway) SendList(ctx context.Context, t Target, header, body, buttonLabel string, rows []Option) error {
	providerID, err := g.provider.SendList(ctx, t.Address, header, body, buttonLabel, rows)
	if err != nil {
		g.logger.Warn("list send failed, falling back to text menu", "key", t.Key, "error", err)
		return g.SendText(ctx, t, numberedMenu(header+"\n"+body, rows))
	}

	g.record(ctx, t, &chatlog.Message{
		ID:      providerID,
		Kind:    chatlog.KindList,
		Text:    body,
		Options: titles(rows),
	})
	return nil
}

// SendMedia delivers an image or document by link and records it. There is
// no text degradation for media; the error is returned for the caller to
// record as it sees fit.
func (g *Gateway) SendMedia(ctx context.Context, t Target, kind MediaKind, link, caption string) error {
	providerID, err := g.provider.SendMedia(ctx, t.Address, kind, link, caption)
	if err != nil {
		return err
	}

	text := "[" + string(kind) + "]"
	if caption != "" {
		text = caption
	}
	g.record(ctx, t, &chatlog.Message{
		ID:        providerID,
		Kind:      chatlog.Kind(kind),
		Text:      text,
		MediaLink: link,
		Caption:   caption,
	})
	return nil
}

// record appends an outbound message, synthesizing an id when the provider
// did not assign one.
func (g *Gateway) record(ctx context.Context, t Target, msg *chatlog.Message) {
	if msg.ID == "" {
		msg.ID = "out-" + uuid.New().String()
	}
	msg.ConversationKey = t.Key
	msg.Direction = chatlog.DirectionOut
	msg.Timestamp = time.Now().UTC()

	if err := g.log.Append(ctx, msg); err != nil {
		g.logger.Error("failed to record outbound message", "key", t.Key, "error", err)
	}
}

// numberedMenu renders interactive options as a plain text menu with the
// same semantic content.
func numberedMenu(body string, options []Option) string {
	return numberedMenuFrom(body, options, 1)
}

func numberedMenuFrom(body string, options []Option, start int) string {
	var b strings.Builder
	b.WriteString(body)
	b.WriteString("\n")
	for i, opt := range options {
		fmt.Fprintf(&b, "\n%d) %s", start+i, opt.Title)
		if opt.Description != "" {
			fmt.Fprintf(&b, " (%s)", opt.Description)
		}
	}
	b.WriteString("\n\nRespondé con el número de la opción.")
	return b.String()
}

func paginate(options []Option, size int) [][]Option {
	var chunks [][]Option
	for len(options) > size {
		chunks = append(chunks, options[:size])
		options = options[size:]
	}
	if len(options) > 0 {
		chunks = append(chunks, options)
	}
	return chunks
}

func titles(options []Option) []string {
	out := make([]string, len(options))
	for i, opt := range options {
		out[i] = opt.Title
	}
	return out
}
