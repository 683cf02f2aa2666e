// ABOUTME: Provider webhook envelope parsing into semantic inbound events.
// ABOUTME: Unknown payload shapes degrade to EventUnknown, never to an error.

package webhook

import (
	"encoding/json"
	"strconv"
	"time"
)

// EventKind classifies one inbound webhook event.
type EventKind string

const (
	EventText        EventKind = "text"
	EventInteractive EventKind = "interactive"
	EventMedia       EventKind = "media"
	EventStatus      EventKind = "status"
	EventUnknown     EventKind = "unknown"
)

// Event is one semantic inbound unit extracted from a webhook envelope.
// SenderRaw is the provider-reported address before normalization.
type Event struct {
	Kind      EventKind
	SenderRaw string
	EventID   string
	Timestamp time.Time

	// Text carries the message body for EventText and the selected option
	// title for EventInteractive.
	Text string

	// OptionID is set for EventInteractive.
	OptionID string

	// Media fields, set for EventMedia.
	MediaKind string
	MediaID   string
	Caption   string
}

// Envelope wire shapes, following the provider's nested change-log format.
type envelope struct {
	Object string  `json:"object"`
	Entry  []entry `json:"entry"`
}

type entry struct {
	ID      string   `json:"id"`
	Changes []change `json:"changes"`
}

type change struct {
	Field string      `json:"field"`
	Value changeValue `json:"value"`
}

type changeValue struct {
	MessagingProduct string       `json:"messaging_product"`
	Messages         []rawMessage `json:"messages"`
	Statuses         []rawStatus  `json:"statuses"`
}

type rawMessage struct {
	From        string          `json:"from"`
	ID          string          `json:"id"`
	Timestamp   string          `json:"timestamp"`
	Type        string          `json:"type"`
	Text        *rawText        `json:"text"`
	Interactive *rawInteractive `json:"interactive"`
	Image       *rawMedia       `json:"image"`
	Document    *rawMedia       `json:"document"`
	Audio       *rawMedia       `json:"audio"`
	Video       *rawMedia       `json:"video"`
}

type rawText struct {
	Body string `json:"body"`
}

type rawInteractive struct {
	Type        string    `json:"type"`
	ButtonReply *rawReply `json:"button_reply"`
	ListReply   *rawReply `json:"list_reply"`
}

type rawReply struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

type rawMedia struct {
	ID       string `json:"id"`
	Caption  string `json:"caption"`
	MimeType string `json:"mime_type"`
}

type rawStatus struct {
	ID          string `json:"id"`
	Status      string `json:"status"`
	RecipientID string `json:"recipient_id"`
	Timestamp   string `json:"timestamp"`
}

// ParseEnvelope extracts the inbound events from a webhook request body.
// A body that is not valid JSON is an error; valid JSON with unrecognized
// content yields zero events or EventUnknown entries.
func ParseEnvelope(body []byte) ([]Event, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, err
	}

	var events []Event
	for _, e := range env.Entry {
		for _, c := range e.Changes {
			for _, m := range c.Value.Messages {
				events = append(events, parseMessage(m))
			}
			for _, s := range c.Value.Statuses {
				events = append(events, Event{
					Kind:      EventStatus,
					SenderRaw: s.RecipientID,
					EventID:   s.ID,
					Text:      s.Status,
					Timestamp: parseTimestamp(s.Timestamp),
				})
			}
		}
	}
	return events, nil
}

func parseMessage(m rawMessage) Event {
	ev := Event{
		Kind:      EventUnknown,
		SenderRaw: m.From,
		EventID:   m.ID,
		Timestamp: parseTimestamp(m.Timestamp),
	}

	switch {
	case m.Type == "text" && m.Text != nil:
		ev.Kind = EventText
		ev.Text = m.Text.Body

	case m.Type == "interactive" && m.Interactive != nil:
		var reply *rawReply
		switch {
		case m.Interactive.ButtonReply != nil:
			reply = m.Interactive.ButtonReply
		case m.Interactive.ListReply != nil:
			reply = m.Interactive.ListReply
		}
		if reply != nil {
			ev.Kind = EventInteractive
			ev.OptionID = reply.ID
			ev.Text = reply.Title
		}

	case m.Image != nil:
		ev.Kind = EventMedia
		ev.MediaKind = "image"
		ev.MediaID = m.Image.ID
		ev.Caption = m.Image.Caption

	case m.Document != nil:
		ev.Kind = EventMedia
		ev.MediaKind = "document"
		ev.MediaID = m.Document.ID
		ev.Caption = m.Document.Caption

	case m.Audio != nil:
		ev.Kind = EventMedia
		ev.MediaKind = "audio"
		ev.MediaID = m.Audio.ID

	case m.Video != nil:
		ev.Kind = EventMedia
		ev.MediaKind = "video"
		ev.MediaID = m.Video.ID
		ev.Caption = m.Video.Caption
	}

	return ev
}

// parseTimestamp converts the provider's unix-seconds string. Absent or
// malformed timestamps fall back to the receive time.
func parseTimestamp(s string) time.Time {
	if secs, err := strconv.ParseInt(s, 10, 64); err == nil && secs > 0 {
		return time.Unix(secs, 0).UTC()
	}
	return time.Now().UTC()
}
