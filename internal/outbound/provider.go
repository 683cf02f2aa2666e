// ABOUTME: HTTP client for the messaging provider's send API.
// ABOUTME: Speaks the Graph-style /PHONE_ID/messages JSON contract.

package outbound

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// MediaKind selects the media payload shape.
type MediaKind string

const (
	MediaImage    MediaKind = "image"
	MediaDocument MediaKind = "document"
)

// Option is one selectable entry of an interactive message.
type Option struct {
	ID          string
	Title       string
	Description string
}

// maxButtons is the provider's hard limit on reply buttons per message.
const maxButtons = 3

// ErrNotConfigured is returned when provider credentials are missing.
var ErrNotConfigured = errors.New("provider credentials not configured")

// Provider is the logical send contract against the messaging provider.
// Every method returns the provider-assigned message id on success.
type Provider interface {
	SendText(ctx context.Context, to, body string) (string, error)
	SendButtons(ctx context.Context, to, body string, options []Option) (string, error)
	SendList(ctx context.Context, to, header, body, buttonLabel string, rows []Option) (string, error)
	SendMedia(ctx context.Context, to string, kind MediaKind, link, caption string) (string, error)
}

// GraphProvider implements Provider against a Graph-style messages API:
// POST <base>/<phone_id>/messages with a bearer token.
type GraphProvider struct {
	apiBase string
	phoneID string
	token   string
	client  *http.Client
}

// NewGraphProvider creates a provider client. apiBase is the API root,
// e.g. "https://graph.facebook.com/v20.0".
func NewGraphProvider(apiBase, phoneID, token string) *GraphProvider {
	return &GraphProvider{
		apiBase: apiBase,
		phoneID: phoneID,
		token:   token,
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

type sendResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
}

func (p *GraphProvider) post(ctx context.Context, payload map[string]any) (string, error) {
	if p.token == "" || p.phoneID == "" {
		return "", ErrNotConfigured
	}

	payload["messaging_product"] = "whatsapp"
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encoding send payload: %w", err)
	}

	url := fmt.Sprintf("%s/%s/messages", p.apiBase, p.phoneID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("building send request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("sending message: %w", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("provider returned %d: %s", resp.StatusCode, string(raw))
	}

	var parsed sendResponse
	if err := json.Unmarshal(raw, &parsed); err == nil && len(parsed.Messages) > 0 {
		return parsed.Messages[0].ID, nil
	}
	return "", nil
}

// SendText delivers a plain text message.
func (p *GraphProvider) SendText(ctx context.Context, to, body string) (string, error) {
	return p.post(ctx, map[string]any{
		"to":   to,
		"type": "text",
		"text": map[string]any{"body": body},
	})
}

// SendButtons delivers an interactive reply-button message. The provider
// accepts at most three buttons; callers paginate beyond that.
func (p *GraphProvider) SendButtons(ctx context.Context, to, body string, options []Option) (string, error) {
	if len(options) > maxButtons {
		return "", fmt.Errorf("at most %d buttons per message, got %d", maxButtons, len(options))
	}

	buttons := make([]map[string]any, 0, len(options))
	for _, opt := range options {
		buttons = append(buttons, map[string]any{
			"type":  "reply",
			"reply": map[string]any{"id": opt.ID, "title": opt.Title},
		})
	}

	return p.post(ctx, map[string]any{
		"to":   to,
		"type": "interactive",
		"interactive": map[string]any{
			"type":   "button",
			"body":   map[string]any{"text": body},
			"action": map[string]any{"buttons": buttons},
		},
	})
}

// SendList delivers an interactive list message: one button opening a
// titled list of option rows.
func (p *GraphProvider) SendList(ctx context.Context, to, header, body, buttonLabel string, rows []Option) (string, error) {
	listRows := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		entry := map[string]any{"id": row.ID, "title": row.Title}
		if row.Description != "" {
			entry["description"] = row.Description
		}
		listRows = append(listRows, entry)
	}

	return p.post(ctx, map[string]any{
		"to":   to,
		"type": "interactive",
		"interactive": map[string]any{
			"type":   "list",
			"header": map[string]any{"type": "text", "text": header},
			"body":   map[string]any{"text": body},
			"action": map[string]any{
				"button":   buttonLabel,
				"sections": []map[string]any{{"title": header, "rows": listRows}},
			},
		},
	})
}

// SendMedia delivers an image or document by external link reference.
func (p *GraphProvider) SendMedia(ctx context.Context, to string, kind MediaKind, link, caption string) (string, error) {
	media := map[string]any{"link": link}
	if caption != "" {
		media["caption"] = caption
	}
	return p.post(ctx, map[string]any{
		"to":         to,
		"type":       string(kind),
		string(kind): media,
	})
}
